package tagquery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcpmux/internal/domain"
)

func TestParsePrecedence(t *testing.T) {
	// S1: "web or api and !test"
	q, err := Parse("web or api and !test")
	require.NoError(t, err)

	ok, err := EvaluateTags(q, []string{"web", "test"})
	require.NoError(t, err)
	assert.True(t, ok, "web is true so the OR short-circuits true")

	ok, err = EvaluateTags(q, []string{"test"})
	require.NoError(t, err)
	assert.False(t, ok, "api=false, !test=false => and=false; web=false => or=false")
}

func TestParseOperatorSpellings(t *testing.T) {
	cases := []string{
		"a && b",
		"a and b",
		"a + b",
	}
	for _, expr := range cases {
		q, err := Parse(expr)
		require.NoError(t, err, expr)
		ok, err := EvaluateTags(q, []string{"a", "b"})
		require.NoError(t, err)
		assert.True(t, ok, expr)
		ok, err = EvaluateTags(q, []string{"a"})
		require.NoError(t, err)
		assert.False(t, ok, expr)
	}
}

func TestParseNotSpellings(t *testing.T) {
	for _, expr := range []string{"!a", "-a", "not a"} {
		q, err := Parse(expr)
		require.NoError(t, err, expr)
		ok, err := EvaluateTags(q, []string{"a"})
		require.NoError(t, err)
		assert.False(t, ok, expr)
		ok, err = EvaluateTags(q, []string{"b"})
		require.NoError(t, err)
		assert.True(t, ok, expr)
	}
}

func TestParseGrouping(t *testing.T) {
	q, err := Parse("(a or b) and c")
	require.NoError(t, err)
	ok, err := EvaluateTags(q, []string{"b", "c"})
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = EvaluateTags(q, []string{"b"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestParseErrors(t *testing.T) {
	cases := map[string]ParseErrorKind{
		"":         ErrEmptyInput,
		"(a":       ErrMismatchedParen,
		"a)":       ErrMismatchedParen,
		"a and":    ErrDanglingOperator,
		"a $ b":    ErrUnexpectedChar,
	}
	for expr, wantKind := range cases {
		_, err := Parse(expr)
		require.Error(t, err, expr)
		var pe *ParseError
		require.ErrorAs(t, err, &pe, expr)
		assert.Equal(t, wantKind, pe.Kind, expr)
	}
}

func TestDashDisambiguation(t *testing.T) {
	// internal hyphen is part of the tag, not a NOT.
	q, err := Parse("my-tag")
	require.NoError(t, err)
	ok, err := EvaluateTags(q, []string{"my-tag"})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRoundTripInvariant(t *testing.T) {
	exprs := []string{
		"web or api and !test",
		"(a or b) and !c",
		"!a and !b or c",
	}
	tagSets := [][]string{
		{"web", "test"},
		{"a", "b", "c"},
		{"a"},
		{},
	}
	for _, expr := range exprs {
		q, err := Parse(expr)
		require.NoError(t, err, expr)
		formatted := Format(q)
		q2, err := Parse(formatted)
		require.NoError(t, err, formatted)
		for _, tags := range tagSets {
			a, err := EvaluateTags(q, tags)
			require.NoError(t, err)
			b, err := EvaluateTags(q2, tags)
			require.NoError(t, err)
			assert.Equal(t, a, b, "round-trip mismatch for %q over tags %v", expr, tags)
		}
	}
}

func TestDeMorgan(t *testing.T) {
	a := domain.NewTag("a")
	b := domain.NewTag("b")
	and, err := domain.NewAnd([]*domain.TagQuery{a, b})
	require.NoError(t, err)
	notAnd, err := domain.NewNot(and)
	require.NoError(t, err)

	notA, err := domain.NewNot(domain.NewTag("a"))
	require.NoError(t, err)
	notB, err := domain.NewNot(domain.NewTag("b"))
	require.NoError(t, err)
	orNots, err := domain.NewOr([]*domain.TagQuery{notA, notB})
	require.NoError(t, err)

	for _, tags := range [][]string{{"a", "b"}, {"a"}, {"b"}, {}} {
		left, err := EvaluateTags(notAnd, tags)
		require.NoError(t, err)
		right, err := EvaluateTags(orNots, tags)
		require.NoError(t, err)
		assert.Equal(t, left, right, "De Morgan mismatch over %v", tags)
	}
}

func TestPickerToTagQuery(t *testing.T) {
	p := NewPicker(domain.PresetStrategyOr)
	p.Set("web", PickSelected)
	p.Set("legacy", PickNotSelected)

	q, err := p.ToTagQuery()
	require.NoError(t, err)
	require.NotNil(t, q)

	ok, err := EvaluateTags(q, []string{"web"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = EvaluateTags(q, []string{"web", "legacy"})
	require.NoError(t, err)
	assert.False(t, ok, "legacy is excluded even though web matches")
}

func TestPickerSingleSelectedCollapses(t *testing.T) {
	p := NewPicker(domain.PresetStrategyOr)
	p.Set("web", PickSelected)
	q, err := p.ToTagQuery()
	require.NoError(t, err)
	assert.Equal(t, domain.TagQueryTag, q.Kind)
}
