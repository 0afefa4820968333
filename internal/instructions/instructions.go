// Package instructions composes a single, filtered, templated instruction
// string from per-server instruction text. Rendering always succeeds:
// template or compile failures fall back to the built-in default
// template, and a failure of the default template itself still returns a
// short error document rather than propagating.
package instructions

import (
	"sort"
	"strings"
	"sync"

	"mcpmux/internal/domain"
	"mcpmux/internal/filtering"
	"mcpmux/pkg/logging"
)

const DefaultTemplateSizeLimit = 1 << 20 // 1 MiB

// Store holds the per-server instruction map and emits one coalesced
// instructions-changed event per mutating call.
type Store struct {
	mu     sync.RWMutex
	byName map[string]string
	subs   []chan struct{}
}

// New creates an empty instruction store.
func New() *Store {
	return &Store{byName: make(map[string]string)}
}

// Set records (or clears, if trimmed value is empty) the instruction text
// for a server. It reports whether the effective value changed.
func (s *Store) Set(server, instruction string) bool {
	trimmed := strings.TrimSpace(instruction)
	s.mu.Lock()
	prev, had := s.byName[server]
	changed := false
	if trimmed == "" {
		if had {
			delete(s.byName, server)
			changed = true
		}
	} else if !had || prev != trimmed {
		s.byName[server] = trimmed
		changed = true
	}
	s.mu.Unlock()

	if changed {
		s.publish()
	}
	return changed
}

// SetBulk applies many Set calls but emits at most one event total,
// satisfying the "bulk mutations coalesce to a single event" requirement.
func (s *Store) SetBulk(values map[string]string) {
	s.mu.Lock()
	changed := false
	for server, instruction := range values {
		trimmed := strings.TrimSpace(instruction)
		prev, had := s.byName[server]
		if trimmed == "" {
			if had {
				delete(s.byName, server)
				changed = true
			}
			continue
		}
		if !had || prev != trimmed {
			s.byName[server] = trimmed
			changed = true
		}
	}
	s.mu.Unlock()

	if changed {
		s.publish()
	}
}

// Len reports the number of servers with a registered non-empty
// instruction.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byName)
}

// Get returns a server's instruction text and whether it is registered.
func (s *Store) Get(server string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.byName[server]
	return v, ok
}

// snapshot returns a defensive copy of the instruction map.
func (s *Store) snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.byName))
	for k, v := range s.byName {
		out[k] = v
	}
	return out
}

// Subscribe registers a channel notified (empty struct, no payload) on any
// change to the instruction map.
func (s *Store) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.subs = append(s.subs, ch)
	s.mu.Unlock()
	return ch
}

func (s *Store) publish() {
	s.mu.RLock()
	subs := append([]chan struct{}(nil), s.subs...)
	s.mu.RUnlock()
	for _, ch := range subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// ServerRecord is one row of the per-server template data.
type ServerRecord struct {
	Name           string
	Instructions   string
	HasInstructions bool
	Index          int
	First          bool
	Last           bool
}

// Vars is the immutable template-variable record computed per render.
type Vars struct {
	ServerCount              int
	ConnectedServerCount     int
	HasServers               bool
	HasInstructionalServers  bool
	ServerNames              []string
	Servers                  []ServerRecord
	AggregatedInstructions   string
	FilterContext            string
	ToolPattern              string
	Title                    string
	Examples                 []string
}

// pluralServers returns "server" or "servers" depending on count.
func pluralServers(n int) string {
	if n == 1 {
		return "server"
	}
	return "servers"
}

// isAre returns "is" or "are" depending on count.
func isAre(n int) string {
	if n == 1 {
		return "is"
	}
	return "are"
}

// BuildVars computes the template variables for the filtered view V
// (already produced by the Filtering Service) intersected with the current
// instruction map.
func BuildVars(view []filtering.Server, connectedCount int, toolPattern, filterContext, title string, instructions map[string]string) Vars {
	names := make([]string, len(view))
	for i, s := range view {
		names[i] = s.Name
	}
	sort.Strings(names)

	records := make([]ServerRecord, len(names))
	instructional := 0
	for i, name := range names {
		instr, has := instructions[name]
		if has {
			instructional++
		}
		records[i] = ServerRecord{
			Name:            name,
			Instructions:    instr,
			HasInstructions: has,
			Index:           i,
			First:           i == 0,
			Last:            i == len(names)-1,
		}
	}

	var agg strings.Builder
	for _, r := range records {
		if !r.HasInstructions {
			continue
		}
		agg.WriteString("<server name=\"")
		agg.WriteString(r.Name)
		agg.WriteString("\">\n")
		agg.WriteString(r.Instructions)
		agg.WriteString("\n</server>\n")
	}

	return Vars{
		ServerCount:             len(names),
		ConnectedServerCount:    connectedCount,
		HasServers:              len(names) > 0,
		HasInstructionalServers: instructional > 0,
		ServerNames:             names,
		Servers:                 records,
		AggregatedInstructions:  agg.String(),
		FilterContext:           filterContext,
		ToolPattern:             toolPattern,
		Title:                   title,
		Examples:                defaultExamples(toolPattern),
	}
}

func defaultExamples(toolPattern string) []string {
	if toolPattern == "" {
		toolPattern = "{server}_1mcp_{tool}"
	}
	return []string{
		"Call a namespaced tool: " + toolPattern,
	}
}

// domainErrTemplateTooLarge builds the kind-tagged error the render
// contract raises when the custom template exceeds the size limit.
func domainErrTemplateTooLarge(limit int) *domain.Error {
	return domain.NewError(domain.KindTemplateTooBig, "instruction template exceeds size limit")
}
