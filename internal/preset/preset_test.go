package preset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcpmux/internal/domain"
	"mcpmux/internal/filtering"
)

func serversFixture() []filtering.Server {
	return []filtering.Server{
		{Name: "A", Tags: []string{"web"}},
		{Name: "B", Tags: []string{"api"}},
		{Name: "C", Tags: []string{"db"}},
	}
}

func TestSaveAndGet(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, func() []filtering.Server { return serversFixture() })
	require.NoError(t, s.Load())

	query, err := domain.NewOr([]*domain.TagQuery{domain.NewTag("web"), domain.NewTag("api")})
	require.NoError(t, err)

	p, err := s.Save("dev", domain.PresetStrategyOr, query, "dev servers")
	require.NoError(t, err)
	assert.Equal(t, "dev", p.Name)

	got, ok := s.Get("dev")
	require.True(t, ok)
	assert.Equal(t, "dev servers", got.Description)
}

func TestSaveRejectsBadName(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, func() []filtering.Server { return serversFixture() })
	_, err := s.Save("bad name!", domain.PresetStrategyOr, domain.NewTag("web"), "")
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestPersistsAcrossLoad(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, func() []filtering.Server { return serversFixture() })
	require.NoError(t, s.Load())
	_, err := s.Save("dev", domain.PresetStrategyOr, domain.NewTag("web"), "")
	require.NoError(t, err)

	s2 := New(dir, func() []filtering.Server { return serversFixture() })
	require.NoError(t, s2.Load())
	got, ok := s2.Get("dev")
	require.True(t, ok)
	assert.Equal(t, domain.TagQueryTag, got.Query.Kind)
}

func TestReloadEmitsPresetChangedOnSetChange(t *testing.T) {
	// S4: preset resolves to {A,B}; an external edit then widens its query
	// so the db-tagged server C also matches; reload must emit a
	// preset-changed("dev") and test("dev") must then include C.
	dir := t.TempDir()
	servers := serversFixture()
	s := New(dir, func() []filtering.Server { return servers })
	require.NoError(t, s.Load())

	query, err := domain.NewOr([]*domain.TagQuery{domain.NewTag("web"), domain.NewTag("api")})
	require.NoError(t, err)
	_, err = s.Save("dev", domain.PresetStrategyOr, query, "")
	require.NoError(t, err)

	names, _, err := s.Test("dev")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"A", "B"}, names)

	events := s.Subscribe()

	// Rewrite the query to include db, so the existing db-tagged server C
	// now matches.
	query2, err := domain.NewOr([]*domain.TagQuery{domain.NewTag("web"), domain.NewTag("api"), domain.NewTag("db")})
	require.NoError(t, err)
	raw, err := query2.MarshalJSON()
	require.NoError(t, err)
	_ = raw

	// Directly rewrite the persisted preset to simulate an external edit,
	// then Reload to pick it up.
	s.mu.Lock()
	s.presets["dev"].Query = query2
	require.NoError(t, s.saveLocked())
	s.mu.Unlock()

	require.NoError(t, s.Reload())

	select {
	case ev := <-events:
		assert.Equal(t, EventPresetChanged, ev.Kind)
		assert.Equal(t, "dev", ev.Name)
	default:
		t.Fatal("expected a preset-changed event")
	}

	names, _, err = s.Test("dev")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"A", "B", "C"}, names)
}

func TestDeleteDoesNotEmitSetChangeEvent(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, func() []filtering.Server { return serversFixture() })
	require.NoError(t, s.Load())
	_, err := s.Save("dev", domain.PresetStrategyOr, domain.NewTag("web"), "")
	require.NoError(t, err)

	events := s.Subscribe()
	require.NoError(t, s.Delete("dev"))

	ev := <-events
	assert.Equal(t, EventListChanged, ev.Kind)

	_, ok := s.Get("dev")
	assert.False(t, ok)
}
