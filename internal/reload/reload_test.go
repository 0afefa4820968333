package reload

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcpmux/internal/domain"
	"mcpmux/internal/loadstate"
)

type fakeLoader struct {
	loaded    map[string]domain.ServerDescriptor
	cancelled []string
}

func (f *fakeLoader) LoadAll(ctx context.Context, servers map[string]domain.ServerDescriptor) error {
	if f.loaded == nil {
		f.loaded = map[string]domain.ServerDescriptor{}
	}
	for k, v := range servers {
		f.loaded[k] = v
	}
	return nil
}

func (f *fakeLoader) CancelServerLoading(name string) {
	f.cancelled = append(f.cancelled, name)
}

type fakeCloser struct {
	closed  []string
	failFor map[string]bool
}

func (f *fakeCloser) CloseServer(name string) error {
	f.closed = append(f.closed, name)
	if f.failFor[name] {
		return errors.New("boom")
	}
	return nil
}

func desc(name string, args ...string) domain.ServerDescriptor {
	return domain.ServerDescriptor{Name: name, Transport: domain.TransportSubprocess, Command: "cmd", Args: args}
}

func TestComputeDetectsAddedRemovedChanged(t *testing.T) {
	oldSet := map[string]domain.ServerDescriptor{
		"alpha": desc("alpha"),
		"beta":  desc("beta"),
	}
	newSet := map[string]domain.ServerDescriptor{
		"alpha": desc("alpha"),
		"beta":  desc("beta", "--verbose"),
		"gamma": desc("gamma"),
	}

	diff := Compute(oldSet, newSet)
	assert.Contains(t, diff.Added, "gamma")
	assert.Contains(t, diff.Changed, "beta")
	assert.NotContains(t, diff.Changed, "alpha")
	assert.Empty(t, diff.Removed)
}

func TestComputeDetectsRemoval(t *testing.T) {
	oldSet := map[string]domain.ServerDescriptor{"alpha": desc("alpha"), "beta": desc("beta")}
	newSet := map[string]domain.ServerDescriptor{"alpha": desc("alpha")}

	diff := Compute(oldSet, newSet)
	assert.Contains(t, diff.Removed, "beta")
	assert.Empty(t, diff.Added)
	assert.Empty(t, diff.Changed)
}

func TestApplyReconcilesRemovedChangedAndAdded(t *testing.T) {
	tracker := loadstate.New()
	tracker.Init("beta")
	tracker.Init("gone")

	loader := &fakeLoader{}
	closer := &fakeCloser{}
	d := New(loader, closer, tracker)

	diff := Diff{
		Added:   map[string]domain.ServerDescriptor{"gamma": desc("gamma")},
		Removed: map[string]domain.ServerDescriptor{"gone": desc("gone")},
		Changed: map[string]domain.ServerDescriptor{"beta": desc("beta", "--v2")},
	}

	err := d.Apply(context.Background(), diff)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"gone", "beta"}, closer.closed)
	assert.ElementsMatch(t, []string{"gone", "beta"}, loader.cancelled)
	assert.Contains(t, loader.loaded, "gamma")
	assert.Contains(t, loader.loaded, "beta")

	_, stillTracked := tracker.Get("gone")
	assert.False(t, stillTracked)
}

func TestApplyContinuesAfterCloseError(t *testing.T) {
	tracker := loadstate.New()
	tracker.Init("bad")
	loader := &fakeLoader{}
	closer := &fakeCloser{failFor: map[string]bool{"bad": true}}
	d := New(loader, closer, tracker)

	diff := Diff{Removed: map[string]domain.ServerDescriptor{"bad": desc("bad")}}
	err := d.Apply(context.Background(), diff)
	require.NoError(t, err)

	_, stillTracked := tracker.Get("bad")
	assert.False(t, stillTracked)
}

func TestApplyNoOpWhenNothingToLoad(t *testing.T) {
	tracker := loadstate.New()
	loader := &fakeLoader{}
	closer := &fakeCloser{}
	d := New(loader, closer, tracker)

	err := d.Apply(context.Background(), Diff{})
	require.NoError(t, err)
	assert.Nil(t, loader.loaded)
}
