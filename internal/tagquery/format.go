package tagquery

import (
	"strings"

	"mcpmux/internal/domain"
)

// Format renders a TagQuery tree back to surface syntax, parenthesizing
// only where precedence would otherwise change meaning. Parse(Format(q))
// evaluates identically to q for any well-formed tree (the round-trip
// invariant).
func Format(q *domain.TagQuery) string {
	return formatOr(q)
}

func formatOr(q *domain.TagQuery) string {
	if q.Kind == domain.TagQueryOr {
		parts := make([]string, len(q.Children))
		for i, c := range q.Children {
			parts[i] = formatAnd(c)
		}
		return strings.Join(parts, " or ")
	}
	return formatAnd(q)
}

func formatAnd(q *domain.TagQuery) string {
	if q.Kind == domain.TagQueryAnd {
		parts := make([]string, len(q.Children))
		for i, c := range q.Children {
			parts[i] = formatNot(c)
		}
		return strings.Join(parts, " and ")
	}
	return formatNot(q)
}

func formatNot(q *domain.TagQuery) string {
	if q.Kind == domain.TagQueryNot {
		return "!" + formatAtom(q.Child)
	}
	return formatAtom(q)
}

func formatAtom(q *domain.TagQuery) string {
	switch q.Kind {
	case domain.TagQueryTag:
		return q.Tag
	case domain.TagQueryIn:
		parts := make([]string, len(q.Set))
		for i, t := range q.Set {
			parts[i] = t
		}
		return "(" + strings.Join(parts, " or ") + ")"
	case domain.TagQueryAdvanced:
		return "(" + q.Advanced + ")"
	case domain.TagQueryOr, domain.TagQueryAnd, domain.TagQueryNot:
		return "(" + formatOr(q) + ")"
	default:
		return ""
	}
}
