package domain

// FilterMode enumerates how a session's filter was supplied.
type FilterMode string

const (
	FilterModeNone      FilterMode = "none"
	FilterModeSimpleOr  FilterMode = "simple-or"
	FilterModeAdvanced  FilterMode = "advanced"
	FilterModePreset    FilterMode = "preset"
	FilterModeTagQuery  FilterMode = "tag-query"
)

// FilterSpec describes which outbound servers a session may see. Exactly
// one of the fields below is meaningful, selected by Mode.
type FilterSpec struct {
	Mode          FilterMode
	Tags          []string // FilterModeSimpleOr
	Expression    string   // FilterModeAdvanced
	PresetName    string   // FilterModePreset
	Query         *TagQuery
}

// TagQueryKind is the discriminant of the TagQuery closed sum type.
type TagQueryKind string

const (
	TagQueryTag      TagQueryKind = "tag"
	TagQueryIn       TagQueryKind = "in"
	TagQueryOr       TagQueryKind = "or"
	TagQueryAnd      TagQueryKind = "and"
	TagQueryNot      TagQueryKind = "not"
	TagQueryAdvanced TagQueryKind = "advanced"
)

// TagQuery is a structured, tree-shaped boolean expression over tags. It is
// a closed sum type: exactly one field is populated, selected by Kind.
// Construction helpers below enforce each kind's arity so an invalid shape
// cannot be built in the first place.
type TagQuery struct {
	Kind     TagQueryKind
	Tag      string      // TagQueryTag
	Set      []string    // TagQueryIn, non-empty
	Children []*TagQuery // TagQueryOr, TagQueryAnd, non-empty
	Child    *TagQuery   // TagQueryNot
	Advanced string      // TagQueryAdvanced
}

// NewTag builds a Tag leaf.
func NewTag(t string) *TagQuery { return &TagQuery{Kind: TagQueryTag, Tag: t} }

// NewIn builds an In leaf. set must be non-empty.
func NewIn(set []string) (*TagQuery, error) {
	if len(set) == 0 {
		return nil, errEmptySet
	}
	return &TagQuery{Kind: TagQueryIn, Set: set}, nil
}

// NewOr builds an Or node. children must be non-empty.
func NewOr(children []*TagQuery) (*TagQuery, error) {
	if len(children) == 0 {
		return nil, errEmptyChildren
	}
	return &TagQuery{Kind: TagQueryOr, Children: children}, nil
}

// NewAnd builds an And node. children must be non-empty.
func NewAnd(children []*TagQuery) (*TagQuery, error) {
	if len(children) == 0 {
		return nil, errEmptyChildren
	}
	return &TagQuery{Kind: TagQueryAnd, Children: children}, nil
}

// NewNot builds a Not node wrapping a single child.
func NewNot(child *TagQuery) (*TagQuery, error) {
	if child == nil {
		return nil, errNilChild
	}
	return &TagQuery{Kind: TagQueryNot, Child: child}, nil
}

// NewAdvanced builds an Advanced leaf that delegates to the expression
// parser at evaluation time.
func NewAdvanced(expr string) *TagQuery { return &TagQuery{Kind: TagQueryAdvanced, Advanced: expr} }

// Validate recursively checks arity constraints on a TagQuery tree built
// outside the New* constructors (e.g. deserialized from JSON).
func (q *TagQuery) Validate() []error {
	if q == nil {
		return []error{errNilQuery}
	}
	var errs []error
	switch q.Kind {
	case TagQueryTag:
		if q.Tag == "" {
			errs = append(errs, errEmptyTag)
		}
	case TagQueryIn:
		if len(q.Set) == 0 {
			errs = append(errs, errEmptySet)
		}
	case TagQueryOr, TagQueryAnd:
		if len(q.Children) == 0 {
			errs = append(errs, errEmptyChildren)
		}
		for _, c := range q.Children {
			errs = append(errs, c.Validate()...)
		}
	case TagQueryNot:
		if q.Child == nil {
			errs = append(errs, errNilChild)
		} else {
			errs = append(errs, q.Child.Validate()...)
		}
	case TagQueryAdvanced:
		if q.Advanced == "" {
			errs = append(errs, errEmptyAdvanced)
		}
	default:
		errs = append(errs, errUnknownKind)
	}
	return errs
}
