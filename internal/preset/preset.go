// Package preset persists named, saved filter specifications to a single
// JSON file, watches it for external edits, and emits a change event for
// each preset whose effective outbound-server set actually changed.
package preset

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"

	"mcpmux/internal/domain"
	"mcpmux/internal/filtering"
	"mcpmux/pkg/logging"
)

const schemaVersion = "1.0.0"

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,50}$`)

var (
	ErrInvalidName    = errors.New("preset: name must match [A-Za-z0-9_-]{1,50}")
	ErrNotFound       = errors.New("preset: not found")
	ErrInvalidQuery   = errors.New("preset: invalid tag query")
)

// fileDoc is the on-disk representation (preset file format v1).
type fileDoc struct {
	Version string                     `json:"version"`
	Presets map[string]*domain.Preset  `json:"presets"`
}

// presetWire is the per-preset JSON shape; domain.Preset doesn't carry JSON
// tags of its own since it's an internal type, so the store marshals
// through this wire-shaped mirror.
type presetWire struct {
	Name         string             `json:"name"`
	Description  string             `json:"description,omitempty"`
	Strategy     domain.PresetStrategy `json:"strategy"`
	TagQuery     *domain.TagQuery   `json:"tagQuery"`
	Created      time.Time          `json:"created"`
	LastModified time.Time          `json:"lastModified"`
}

type wireDoc struct {
	Version string                 `json:"version"`
	Presets map[string]presetWire  `json:"presets"`
}

// ServerSet is the effective outbound server-name set a preset currently
// resolves to, used both by test() and by the reload-diff that decides
// whether to emit preset-changed.
type ServerSet map[string]struct{}

func (s ServerSet) equal(other ServerSet) bool {
	if len(s) != len(other) {
		return false
	}
	for k := range s {
		if _, ok := other[k]; !ok {
			return false
		}
	}
	return true
}

// ServerSource supplies the current outbound server set (name+tags+
// disabled) the store evaluates presets against. It is satisfied by the
// Client Manager in the full wiring, and by a plain slice in tests.
type ServerSource func() []filtering.Server

// Store is the Preset Store component.
type Store struct {
	mu       sync.RWMutex
	path     string
	presets  map[string]*domain.Preset
	sets     map[string]ServerSet
	servers  ServerSource
	subs     []chan Event
	watcher  *watcher
}

// Event is emitted to subscribers on preset-changed or preset-list-changed.
type Event struct {
	Kind EventKind
	Name string
}

type EventKind int

const (
	EventPresetChanged EventKind = iota
	EventListChanged
)

// New creates a Store rooted at directory dir (the preset JSON file lives
// at dir/presets.json). servers supplies the live outbound set used to
// compute each preset's effective server set.
func New(dir string, servers ServerSource) *Store {
	return &Store{
		path:    filepath.Join(dir, "presets.json"),
		presets: make(map[string]*domain.Preset),
		sets:    make(map[string]ServerSet),
		servers: servers,
	}
}

// Load reads the preset file if present, computing initial effective
// server sets. A missing file is not an error: the store starts empty.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Store) loadLocked() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.presets = make(map[string]*domain.Preset)
		s.sets = make(map[string]ServerSet)
		return nil
	}
	if err != nil {
		return fmt.Errorf("preset: read %s: %w", s.path, err)
	}

	var doc wireDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("preset: decode %s: %w", s.path, err)
	}

	presets := make(map[string]*domain.Preset, len(doc.Presets))
	for name, w := range doc.Presets {
		presets[name] = &domain.Preset{
			Name:         w.Name,
			Description:  w.Description,
			Strategy:     w.Strategy,
			Query:        w.TagQuery,
			CreatedAt:    w.Created,
			LastModified: w.LastModified,
		}
	}
	s.presets = presets
	s.sets = s.computeSetsLocked()
	return nil
}

func (s *Store) computeSetsLocked() map[string]ServerSet {
	sets := make(map[string]ServerSet, len(s.presets))
	if s.servers == nil {
		return sets
	}
	servers := s.servers()
	for name, p := range s.presets {
		sets[name] = s.effectiveSetFor(p, servers)
	}
	return sets
}

func (s *Store) effectiveSetFor(p *domain.Preset, servers []filtering.Server) ServerSet {
	spec := domain.FilterSpec{Mode: domain.FilterModeTagQuery, Query: p.Query}
	matched, _, err := filtering.Apply(servers, spec, nil)
	if err != nil {
		logging.Warn("preset", "failed to evaluate preset %q: %v", p.Name, err)
		return ServerSet{}
	}
	set := make(ServerSet, len(matched))
	for _, m := range matched {
		set[m.Name] = struct{}{}
	}
	return set
}

// save persists the current preset map via write-temp-then-rename.
func (s *Store) saveLocked() error {
	doc := wireDoc{Version: schemaVersion, Presets: make(map[string]presetWire, len(s.presets))}
	for name, p := range s.presets {
		doc.Presets[name] = presetWire{
			Name:         p.Name,
			Description:  p.Description,
			Strategy:     p.Strategy,
			TagQuery:     p.Query,
			Created:      p.CreatedAt,
			LastModified: p.LastModified,
		}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("preset: encode: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("preset: mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".presets-*.json.tmp")
	if err != nil {
		return fmt.Errorf("preset: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("preset: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("preset: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("preset: rename into place: %w", err)
	}
	return nil
}

// Save creates or updates a preset and persists it.
func (s *Store) Save(name string, strategy domain.PresetStrategy, query *domain.TagQuery, description string) (*domain.Preset, error) {
	if !namePattern.MatchString(name) {
		return nil, ErrInvalidName
	}
	if query == nil {
		return nil, ErrInvalidQuery
	}
	if errs := query.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, errs)
	}

	s.mu.Lock()
	now := time.Now()
	existing, exists := s.presets[name]
	p := &domain.Preset{
		Name:        name,
		Description: description,
		Strategy:    strategy,
		Query:       query,
		CreatedAt:   now,
		LastModified: now,
	}
	if exists {
		p.CreatedAt = existing.CreatedAt
	}
	s.presets[name] = p
	if err := s.saveLocked(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.sets[name] = s.effectiveSetFor(p, s.serversLocked())
	s.mu.Unlock()

	s.publish(Event{Kind: EventListChanged, Name: name})
	return p, nil
}

func (s *Store) serversLocked() []filtering.Server {
	if s.servers == nil {
		return nil
	}
	return s.servers()
}

// Delete removes a preset. Deletion notifies only through a generic list
// event; it does not emit a server-set-change event.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	if _, ok := s.presets[name]; !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	delete(s.presets, name)
	delete(s.sets, name)
	err := s.saveLocked()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.publish(Event{Kind: EventListChanged, Name: name})
	return nil
}

// Get returns a preset by name.
func (s *Store) Get(name string) (*domain.Preset, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.presets[name]
	return p, ok
}

// List returns all presets, sorted by name.
func (s *Store) List() []*domain.Preset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Preset, 0, len(s.presets))
	for _, p := range s.presets {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Test resolves a preset's effective server set and tags, used by the
// `test(name)` operation.
func (s *Store) Test(name string) (servers []string, tags []string, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.presets[name]
	if !ok {
		return nil, nil, ErrNotFound
	}
	set := s.sets[name]
	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, collectTags(p.Query), nil
}

func collectTags(q *domain.TagQuery) []string {
	if q == nil {
		return nil
	}
	seen := map[string]struct{}{}
	var walk func(*domain.TagQuery)
	walk = func(q *domain.TagQuery) {
		if q == nil {
			return
		}
		switch q.Kind {
		case domain.TagQueryTag:
			seen[q.Tag] = struct{}{}
		case domain.TagQueryIn:
			for _, t := range q.Set {
				seen[t] = struct{}{}
			}
		case domain.TagQueryOr, domain.TagQueryAnd:
			for _, c := range q.Children {
				walk(c)
			}
		case domain.TagQueryNot:
			walk(q.Child)
		}
	}
	walk(q)
	tags := make([]string, 0, len(seen))
	for t := range seen {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

// Subscribe registers a channel to receive preset events. The channel is
// never closed by the store; callers stop reading when they're done.
func (s *Store) Subscribe() <-chan Event {
	ch := make(chan Event, 64)
	s.mu.Lock()
	s.subs = append(s.subs, ch)
	s.mu.Unlock()
	return ch
}

func (s *Store) publish(ev Event) {
	s.mu.RLock()
	subs := append([]chan Event(nil), s.subs...)
	s.mu.RUnlock()
	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
			logging.Warn("preset", "subscriber channel full, dropping event %v for %s", ev.Kind, ev.Name)
		}
	}
}

// Reload re-reads the preset file from disk, diffs each preset's effective
// server set against its previous value, and emits preset-changed for each
// preset whose set changed.
func (s *Store) Reload() error {
	s.mu.Lock()
	previous := s.sets
	if err := s.loadLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	current := s.sets
	var changed []string
	for name, set := range current {
		if old, ok := previous[name]; !ok || !set.equal(old) {
			changed = append(changed, name)
		}
	}
	s.mu.Unlock()

	sort.Strings(changed)
	for _, name := range changed {
		s.publish(Event{Kind: EventPresetChanged, Name: name})
	}
	return nil
}
