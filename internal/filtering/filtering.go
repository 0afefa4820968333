// Package filtering applies a session's filter specification to the set of
// outbound connections. It is a pure, synchronous function: no I/O, no
// locking beyond what the caller already holds on its inputs.
package filtering

import (
	"sort"

	"mcpmux/internal/domain"
	"mcpmux/internal/tagquery"
)

// Server is the minimal view of an outbound connection the filter needs:
// enough to decide membership without depending on the Client Manager.
type Server struct {
	Name     string
	Tags     []string
	Disabled bool
}

// PresetResolver resolves a preset name to its TagQuery. The Filtering
// Service itself does not read the preset store; it is handed a resolver
// so it stays a pure function of its inputs.
type PresetResolver func(name string) (*domain.TagQuery, bool)

// Summary reports how many servers were excluded at each filtering stage,
// used for telemetry.
type Summary struct {
	Total      int
	Disabled   int
	FilteredOut int
	Matched    int
}

// Apply filters servers by spec, returning the matching subset in
// lexicographic order by name. Disabled servers are always excluded.
// resolvePreset may be nil if spec.Mode != FilterModePreset.
func Apply(servers []Server, spec domain.FilterSpec, resolvePreset PresetResolver) ([]Server, Summary, error) {
	summary := Summary{Total: len(servers)}

	enabled := make([]Server, 0, len(servers))
	for _, s := range servers {
		if s.Disabled {
			summary.Disabled++
			continue
		}
		enabled = append(enabled, s)
	}

	var query *domain.TagQuery
	switch spec.Mode {
	case domain.FilterModeNone, "":
		sort.Slice(enabled, func(i, j int) bool { return enabled[i].Name < enabled[j].Name })
		summary.Matched = len(enabled)
		return enabled, summary, nil

	case domain.FilterModeSimpleOr:
		leaves := make([]*domain.TagQuery, 0, len(spec.Tags))
		for _, t := range spec.Tags {
			leaves = append(leaves, domain.NewTag(t))
		}
		if len(leaves) == 0 {
			sort.Slice(enabled, func(i, j int) bool { return enabled[i].Name < enabled[j].Name })
			summary.Matched = len(enabled)
			return enabled, summary, nil
		}
		q, err := domain.NewOr(leaves)
		if err != nil {
			return nil, summary, err
		}
		query = q

	case domain.FilterModeAdvanced:
		q, err := tagquery.Parse(spec.Expression)
		if err != nil {
			return nil, summary, err
		}
		query = q

	case domain.FilterModePreset:
		if resolvePreset == nil {
			sort.Slice(enabled, func(i, j int) bool { return enabled[i].Name < enabled[j].Name })
			summary.Matched = len(enabled)
			return enabled, summary, nil
		}
		q, ok := resolvePreset(spec.PresetName)
		if !ok {
			// Unknown/deleted preset behaves as None: never fail session
			// establishment over a preset an operator happened to delete.
			sort.Slice(enabled, func(i, j int) bool { return enabled[i].Name < enabled[j].Name })
			summary.Matched = len(enabled)
			return enabled, summary, nil
		}
		query = q

	case domain.FilterModeTagQuery:
		query = spec.Query

	default:
		sort.Slice(enabled, func(i, j int) bool { return enabled[i].Name < enabled[j].Name })
		summary.Matched = len(enabled)
		return enabled, summary, nil
	}

	matched := make([]Server, 0, len(enabled))
	for _, s := range enabled {
		ok, err := tagquery.EvaluateTags(query, s.Tags)
		if err != nil {
			return nil, summary, err
		}
		if ok {
			matched = append(matched, s)
		} else {
			summary.FilteredOut++
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Name < matched[j].Name })
	summary.Matched = len(matched)
	return matched, summary, nil
}
