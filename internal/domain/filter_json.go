package domain

import (
	"bytes"
	"encoding/json"
)

// tagQueryWire mirrors the untagged-union JSON wire format for tag queries:
//
//	{"tag": "<t>"}
//	{"$in": ["<t>", ...]}
//	{"$or":  [<TagQuery>, ...]}
//	{"$and": [<TagQuery>, ...]}
//	{"$not": <TagQuery>}
//	{"$advanced": "<string>"}
//
// Decoding rejects extra or mixed keys rather than silently picking one, so
// a malformed document fails fast instead of being coerced.
type tagQueryWire struct {
	Tag      *string           `json:"tag,omitempty"`
	In       []string          `json:"$in,omitempty"`
	Or       []json.RawMessage `json:"$or,omitempty"`
	And      []json.RawMessage `json:"$and,omitempty"`
	Not      json.RawMessage   `json:"$not,omitempty"`
	Advanced *string           `json:"$advanced,omitempty"`
}

// MarshalJSON encodes the TagQuery using the untagged-union wire format.
func (q *TagQuery) MarshalJSON() ([]byte, error) {
	switch q.Kind {
	case TagQueryTag:
		return json.Marshal(tagQueryWire{Tag: &q.Tag})
	case TagQueryIn:
		return json.Marshal(tagQueryWire{In: q.Set})
	case TagQueryOr:
		raws, err := marshalChildren(q.Children)
		if err != nil {
			return nil, err
		}
		return json.Marshal(tagQueryWire{Or: raws})
	case TagQueryAnd:
		raws, err := marshalChildren(q.Children)
		if err != nil {
			return nil, err
		}
		return json.Marshal(tagQueryWire{And: raws})
	case TagQueryNot:
		raw, err := json.Marshal(q.Child)
		if err != nil {
			return nil, err
		}
		return json.Marshal(tagQueryWire{Not: raw})
	case TagQueryAdvanced:
		return json.Marshal(tagQueryWire{Advanced: &q.Advanced})
	default:
		return nil, errUnknownKind
	}
}

func marshalChildren(children []*TagQuery) ([]json.RawMessage, error) {
	raws := make([]json.RawMessage, len(children))
	for i, c := range children {
		b, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		raws[i] = b
	}
	return raws, nil
}

// UnmarshalJSON decodes a TagQuery from its wire format, rejecting
// documents that set more than one variant key or none at all, and
// documents with any key outside the wire format.
func (q *TagQuery) UnmarshalJSON(data []byte) error {
	var wire tagQueryWire
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&wire); err != nil {
		return err
	}

	set := 0
	if wire.Tag != nil {
		set++
	}
	if wire.In != nil {
		set++
	}
	if wire.Or != nil {
		set++
	}
	if wire.And != nil {
		set++
	}
	if wire.Not != nil {
		set++
	}
	if wire.Advanced != nil {
		set++
	}
	if set != 1 {
		return errTagQueryShape
	}

	switch {
	case wire.Tag != nil:
		q.Kind = TagQueryTag
		q.Tag = *wire.Tag
	case wire.In != nil:
		if len(wire.In) == 0 {
			return errEmptySet
		}
		q.Kind = TagQueryIn
		q.Set = wire.In
	case wire.Or != nil:
		children, err := unmarshalChildren(wire.Or)
		if err != nil {
			return err
		}
		if len(children) == 0 {
			return errEmptyChildren
		}
		q.Kind = TagQueryOr
		q.Children = children
	case wire.And != nil:
		children, err := unmarshalChildren(wire.And)
		if err != nil {
			return err
		}
		if len(children) == 0 {
			return errEmptyChildren
		}
		q.Kind = TagQueryAnd
		q.Children = children
	case wire.Not != nil:
		child := &TagQuery{}
		if err := json.Unmarshal(wire.Not, child); err != nil {
			return err
		}
		q.Kind = TagQueryNot
		q.Child = child
	case wire.Advanced != nil:
		if *wire.Advanced == "" {
			return errEmptyAdvanced
		}
		q.Kind = TagQueryAdvanced
		q.Advanced = *wire.Advanced
	}
	return nil
}

func unmarshalChildren(raws []json.RawMessage) ([]*TagQuery, error) {
	children := make([]*TagQuery, len(raws))
	for i, raw := range raws {
		c := &TagQuery{}
		if err := json.Unmarshal(raw, c); err != nil {
			return nil, err
		}
		children[i] = c
	}
	return children, nil
}
