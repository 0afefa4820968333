package filtering

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcpmux/internal/domain"
)

func testServers() []Server {
	return []Server{
		{Name: "B", Tags: []string{"api"}},
		{Name: "A", Tags: []string{"web"}},
		{Name: "C", Tags: []string{"db"}, Disabled: true},
		{Name: "D", Tags: []string{"web", "api"}},
	}
}

func TestApplyNoneReturnsEnabledLexicographic(t *testing.T) {
	servers, summary, err := Apply(testServers(), domain.FilterSpec{Mode: domain.FilterModeNone}, nil)
	require.NoError(t, err)
	names := []string{servers[0].Name, servers[1].Name, servers[2].Name}
	assert.Equal(t, []string{"A", "B", "D"}, names)
	assert.Equal(t, 1, summary.Disabled)
}

func TestApplySimpleOr(t *testing.T) {
	servers, _, err := Apply(testServers(), domain.FilterSpec{Mode: domain.FilterModeSimpleOr, Tags: []string{"api"}}, nil)
	require.NoError(t, err)
	require.Len(t, servers, 2)
	assert.Equal(t, "B", servers[0].Name)
	assert.Equal(t, "D", servers[1].Name)
}

func TestApplyAdvanced(t *testing.T) {
	servers, _, err := Apply(testServers(), domain.FilterSpec{Mode: domain.FilterModeAdvanced, Expression: "web and api"}, nil)
	require.NoError(t, err)
	require.Len(t, servers, 1)
	assert.Equal(t, "D", servers[0].Name)
}

func TestApplyUnknownPresetBehavesAsNone(t *testing.T) {
	resolver := func(name string) (*domain.TagQuery, bool) { return nil, false }
	servers, _, err := Apply(testServers(), domain.FilterSpec{Mode: domain.FilterModePreset, PresetName: "missing"}, resolver)
	require.NoError(t, err)
	assert.Len(t, servers, 3)
}

func TestApplyPresetResolved(t *testing.T) {
	resolver := func(name string) (*domain.TagQuery, bool) {
		return domain.NewTag("db"), true
	}
	servers, _, err := Apply(testServers(), domain.FilterSpec{Mode: domain.FilterModePreset, PresetName: "dbonly"}, resolver)
	require.NoError(t, err)
	assert.Empty(t, servers, "C is disabled so db-tagged server is excluded")
}
