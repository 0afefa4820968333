package tagquery

import (
	"strings"

	"mcpmux/internal/domain"
)

// NormalizeTag trims and lowercases a tag so comparisons are
// case-insensitive and whitespace-insensitive.
func NormalizeTag(t string) string {
	return strings.ToLower(strings.TrimSpace(t))
}

// NormalizeTags normalizes a slice of server tags into a lookup set.
func NormalizeTags(tags []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		set[NormalizeTag(t)] = struct{}{}
	}
	return set
}

// Evaluate reports whether the given (already-normalized) server tag set
// satisfies the query.
func Evaluate(q *domain.TagQuery, serverTags map[string]struct{}) (bool, error) {
	if q == nil {
		return false, newParseError(ErrEmptyInput, 0, "nil query")
	}
	switch q.Kind {
	case domain.TagQueryTag:
		_, ok := serverTags[NormalizeTag(q.Tag)]
		return ok, nil
	case domain.TagQueryIn:
		for _, t := range q.Set {
			if _, ok := serverTags[NormalizeTag(t)]; ok {
				return true, nil
			}
		}
		return false, nil
	case domain.TagQueryOr:
		for _, c := range q.Children {
			ok, err := Evaluate(c, serverTags)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case domain.TagQueryAnd:
		for _, c := range q.Children {
			ok, err := Evaluate(c, serverTags)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	case domain.TagQueryNot:
		ok, err := Evaluate(q.Child, serverTags)
		if err != nil {
			return false, err
		}
		return !ok, nil
	case domain.TagQueryAdvanced:
		parsed, err := Parse(q.Advanced)
		if err != nil {
			return false, err
		}
		return Evaluate(parsed, serverTags)
	default:
		return false, newParseError(ErrUnexpectedChar, 0, "unknown TagQuery kind")
	}
}

// EvaluateTags is a convenience wrapper taking raw (unnormalized) server
// tags.
func EvaluateTags(q *domain.TagQuery, serverTags []string) (bool, error) {
	return Evaluate(q, NormalizeTags(serverTags))
}
