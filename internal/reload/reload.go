// Package reload implements the Config-Reload Dispatcher: on an
// outbound-config change it diffs the new descriptor set against the old
// one by name and by ServerDescriptor.Hash(), then reconciles the Loading
// Manager and Client Manager without dropping any live session (a
// session's view is recomputed on its next request, never pushed to).
package reload

import (
	"context"

	"mcpmux/internal/domain"
	"mcpmux/internal/loadstate"
	"mcpmux/pkg/logging"
)

// Loader is the subset of the Loading Manager the dispatcher depends on.
type Loader interface {
	LoadAll(ctx context.Context, servers map[string]domain.ServerDescriptor) error
	CancelServerLoading(name string)
}

// Closer is the subset of the Client Manager the dispatcher depends on.
type Closer interface {
	CloseServer(name string) error
}

// Diff is the computed added/removed/changed partition between two
// descriptor sets, keyed by server name.
type Diff struct {
	Added   map[string]domain.ServerDescriptor
	Removed map[string]domain.ServerDescriptor
	Changed map[string]domain.ServerDescriptor
}

// Compute partitions newServers against oldServers: a name present in both
// with a differing Hash() is Changed; present only in newServers is Added;
// present only in oldServers is Removed.
func Compute(oldServers, newServers map[string]domain.ServerDescriptor) Diff {
	d := Diff{
		Added:   make(map[string]domain.ServerDescriptor),
		Removed: make(map[string]domain.ServerDescriptor),
		Changed: make(map[string]domain.ServerDescriptor),
	}

	for name, desc := range newServers {
		old, existed := oldServers[name]
		if !existed {
			d.Added[name] = desc
			continue
		}
		if old.Hash() != desc.Hash() {
			d.Changed[name] = desc
		}
	}

	for name, desc := range oldServers {
		if _, stillPresent := newServers[name]; !stillPresent {
			d.Removed[name] = desc
		}
	}

	return d
}

// Dispatcher reconciles the Loading Manager and Client Manager against a
// computed Diff.
type Dispatcher struct {
	loader  Loader
	closer  Closer
	tracker *loadstate.Tracker
}

// New creates a Dispatcher bound to the shared Loading Manager, Client
// Manager, and state tracker.
func New(loader Loader, closer Closer, tracker *loadstate.Tracker) *Dispatcher {
	return &Dispatcher{loader: loader, closer: closer, tracker: tracker}
}

// Apply reconciles one computed Diff: removed servers are cancelled,
// closed, and evicted; changed servers are removed then re-added; added
// servers (including those from a changed-server's re-add) are enqueued
// into the Loading Manager as one batch. Errors closing individual
// transports are logged and never block the rest.
func (d *Dispatcher) Apply(ctx context.Context, diff Diff) error {
	for name := range diff.Removed {
		d.evict(name)
	}
	for name := range diff.Changed {
		d.evict(name)
	}

	toLoad := make(map[string]domain.ServerDescriptor, len(diff.Added)+len(diff.Changed))
	for name, desc := range diff.Added {
		toLoad[name] = desc
	}
	for name, desc := range diff.Changed {
		toLoad[name] = desc
	}

	if len(toLoad) == 0 {
		return nil
	}
	return d.loader.LoadAll(ctx, toLoad)
}

func (d *Dispatcher) evict(name string) {
	d.loader.CancelServerLoading(name)
	if err := d.closer.CloseServer(name); err != nil {
		logging.Warn("reload", "closing transport for %q: %v", name, err)
	}
	d.tracker.Evict(name)
}
