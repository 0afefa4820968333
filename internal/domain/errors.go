package domain

import "errors"

var (
	errEmptySet      = errors.New("domain: In requires a non-empty tag set")
	errEmptyChildren = errors.New("domain: Or/And require at least one child")
	errNilChild      = errors.New("domain: Not requires a non-nil child")
	errNilQuery      = errors.New("domain: nil TagQuery")
	errEmptyTag      = errors.New("domain: Tag requires a non-empty tag string")
	errEmptyAdvanced = errors.New("domain: Advanced requires a non-empty expression")
	errUnknownKind   = errors.New("domain: unknown TagQuery kind")
	errTagQueryShape = errors.New("domain: TagQuery document must set exactly one of tag/$in/$or/$and/$not/$advanced")
)
