package tagquery

import "mcpmux/internal/domain"

// PickState is the three-state value a tag can hold in the external TUI's
// tag picker widget.
type PickState int

const (
	PickEmpty PickState = iota
	PickSelected
	PickNotSelected
)

// Picker is the supporting data structure for the tag picker: a set of tags
// each carrying one of the three pick states, plus the strategy used to
// combine Selected tags.
type Picker struct {
	States   map[string]PickState
	Strategy domain.PresetStrategy
}

// NewPicker creates an empty picker using the given combination strategy
// for Selected tags: And combines them with And; any other strategy,
// Advanced included, combines them with Or.
func NewPicker(strategy domain.PresetStrategy) *Picker {
	return &Picker{States: make(map[string]PickState), Strategy: strategy}
}

// Set assigns a pick state to a tag.
func (p *Picker) Set(tag string, state PickState) {
	p.States[NormalizeTag(tag)] = state
}

// ToTagQuery converts the picker's selections into a TagQuery: all Selected
// tags combined via the strategy (Or/And), and if any NotSelected tags
// exist, the whole thing is wrapped as And(original, Not(Or(notSelected))).
// A single Selected tag with no NotSelected tags collapses to a bare Tag.
func (p *Picker) ToTagQuery() (*domain.TagQuery, error) {
	var selected, notSelected []string
	for tag, state := range p.States {
		switch state {
		case PickSelected:
			selected = append(selected, tag)
		case PickNotSelected:
			notSelected = append(notSelected, tag)
		}
	}

	if len(selected) == 0 {
		if len(notSelected) == 0 {
			return nil, nil
		}
		notQuery, err := notQueryFor(notSelected)
		if err != nil {
			return nil, err
		}
		return notQuery, nil
	}

	var original *domain.TagQuery
	if len(selected) == 1 && len(notSelected) == 0 {
		return domain.NewTag(selected[0]), nil
	}

	leaves := make([]*domain.TagQuery, len(selected))
	for i, t := range selected {
		leaves[i] = domain.NewTag(t)
	}

	var err error
	switch p.Strategy {
	case domain.PresetStrategyAnd:
		original, err = domain.NewAnd(leaves)
	default:
		original, err = domain.NewOr(leaves)
	}
	if err != nil {
		return nil, err
	}

	if len(notSelected) == 0 {
		return original, nil
	}

	notQuery, err := notQueryFor(notSelected)
	if err != nil {
		return nil, err
	}
	return domain.NewAnd([]*domain.TagQuery{original, notQuery})
}

func notQueryFor(notSelected []string) (*domain.TagQuery, error) {
	leaves := make([]*domain.TagQuery, len(notSelected))
	for i, t := range notSelected {
		leaves[i] = domain.NewTag(t)
	}
	orQuery, err := domain.NewOr(leaves)
	if err != nil {
		return nil, err
	}
	return domain.NewNot(orQuery)
}
