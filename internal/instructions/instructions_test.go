package instructions

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcpmux/internal/domain"
	"mcpmux/internal/filtering"
)

func TestSetAndClear(t *testing.T) {
	s := New()
	assert.True(t, s.Set("A", "do things"))
	assert.Equal(t, 1, s.Len())

	assert.False(t, s.Set("A", "do things"), "no-op set should not report a change")
	assert.True(t, s.Set("A", "   "), "whitespace clears the instruction")
	assert.Equal(t, 0, s.Len())
}

func TestSetBulkCoalescesToOneEvent(t *testing.T) {
	s := New()
	events := s.Subscribe()
	s.SetBulk(map[string]string{"A": "a instructions", "B": "b instructions"})

	select {
	case <-events:
	default:
		t.Fatal("expected one coalesced event")
	}
	select {
	case <-events:
		t.Fatal("expected exactly one coalesced event, got a second")
	default:
	}
	assert.Equal(t, 2, s.Len())
}

func TestRenderDeterministic(t *testing.T) {
	r := NewRenderer(0)
	conns := []filtering.Server{{Name: "B"}, {Name: "A"}}
	instr := map[string]string{"A": "hello"}

	out1 := r.Render("", domain.FilterSpec{Mode: domain.FilterModeNone}, conns, 2, "{server}_1mcp_{tool}", "", "", instr, nil)
	out2 := r.Render("", domain.FilterSpec{Mode: domain.FilterModeNone}, conns, 2, "{server}_1mcp_{tool}", "", "", instr, nil)
	assert.Equal(t, out1, out2)
	assert.True(t, strings.Index(out1, "A") < strings.Index(out1, "B"), "lexicographic order")
}

func TestRenderFallsBackOnTemplateTooLarge(t *testing.T) {
	r := NewRenderer(16)
	big := strings.Repeat("x", 1024)
	conns := []filtering.Server{{Name: "A"}}
	out := r.Render(big, domain.FilterSpec{Mode: domain.FilterModeNone}, conns, 1, "p", "", "", nil, nil)
	require.NotEmpty(t, out)
}

func TestRenderFallsBackOnCompileError(t *testing.T) {
	r := NewRenderer(0)
	conns := []filtering.Server{{Name: "A"}}
	out := r.Render("{{ .Nope poi +++", domain.FilterSpec{Mode: domain.FilterModeNone}, conns, 1, "p", "", "", nil, nil)
	require.NotEmpty(t, out)
}
