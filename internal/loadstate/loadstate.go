// Package loadstate implements the per-outbound-server state machine:
// Pending -> Loading -> Ready, with OAuth interception, retry, and
// cancellation branches, plus the event family consumed by the Loading
// Manager and Server Manager.
package loadstate

import (
	"sort"
	"sync"
	"time"

	"mcpmux/internal/domain"
)

// EventKind discriminates the typed event channels published by the
// tracker, one per event family.
type EventKind int

const (
	EventStateChanged EventKind = iota
	EventServerReady
	EventServerFailed
	EventOAuthRequired
	EventLoadingProgress
	EventLoadingComplete
)

// Event is published on the tracker's bus.
type Event struct {
	Kind   EventKind
	Server string
	Info   domain.LoadingInfo
}

// Tracker owns the LoadingInfo map for every outbound server enumerated by
// startLoading, and republishes every transition on a bounded, non-blocking
// fan-out bus.
type Tracker struct {
	mu    sync.RWMutex
	infos map[string]*domain.LoadingInfo
	subs  []chan Event
}

// New creates an empty Tracker.
func New() *Tracker {
	return &Tracker{infos: make(map[string]*domain.LoadingInfo)}
}

// Subscribe registers a channel to receive every Event published by the
// tracker. Late subscribers do not receive replay of past events.
func (t *Tracker) Subscribe() <-chan Event {
	ch := make(chan Event, 256)
	t.mu.Lock()
	t.subs = append(t.subs, ch)
	t.mu.Unlock()
	return ch
}

func (t *Tracker) publish(ev Event) {
	t.mu.RLock()
	subs := append([]chan Event(nil), t.subs...)
	t.mu.RUnlock()
	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Init creates a Pending LoadingInfo for a server name. Called when
// startLoading enumerates the server set.
func (t *Tracker) Init(name string) {
	t.mu.Lock()
	t.infos[name] = &domain.LoadingInfo{Name: name, State: domain.StatePending}
	t.mu.Unlock()
}

// Get returns a copy of the current LoadingInfo for a server.
func (t *Tracker) Get(name string) (domain.LoadingInfo, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	info, ok := t.infos[name]
	if !ok {
		return domain.LoadingInfo{}, false
	}
	return *info, true
}

// Evict removes a server from the tracker entirely, used by the
// config-reload dispatcher when a server is removed from the outbound
// configuration. No event is published: the server is gone, not
// transitioning.
func (t *Tracker) Evict(name string) {
	t.mu.Lock()
	delete(t.infos, name)
	t.mu.Unlock()
}

// All returns a snapshot of every tracked server's LoadingInfo, sorted by
// name.
func (t *Tracker) All() []domain.LoadingInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]domain.LoadingInfo, 0, len(t.infos))
	for _, info := range t.infos {
		out = append(out, *info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (t *Tracker) transition(name string, mutate func(*domain.LoadingInfo)) domain.LoadingInfo {
	t.mu.Lock()
	info, ok := t.infos[name]
	if !ok {
		info = &domain.LoadingInfo{Name: name}
		t.infos[name] = info
	}
	mutate(info)
	snapshot := *info
	t.mu.Unlock()
	return snapshot
}

// StartLoading transitions Pending (or Failed/AwaitingOAuth on retry) to
// Loading, setting the "connecting" phase.
func (t *Tracker) StartLoading(name string) {
	snap := t.transition(name, func(info *domain.LoadingInfo) {
		info.State = domain.StateLoading
		info.StartTime = time.Now()
		info.EndTime = time.Time{}
		info.Progress = &domain.LoadingProgress{Phase: "connecting"}
	})
	t.publish(Event{Kind: EventStateChanged, Server: name, Info: snap})
	t.publishCompletionIfDone()
}

// Retrying transitions Loading to Loading with an incremented retry count
// and the "retrying" phase.
func (t *Tracker) Retrying(name string, attempt int) {
	snap := t.transition(name, func(info *domain.LoadingInfo) {
		info.State = domain.StateLoading
		info.RetryCount = attempt
		info.LastRetryTime = time.Now()
		info.Progress = &domain.LoadingProgress{Phase: "retrying"}
	})
	t.publish(Event{Kind: EventLoadingProgress, Server: name, Info: snap})
}

// Ready transitions Loading to the terminal Ready state.
func (t *Tracker) Ready(name string) {
	snap := t.transition(name, func(info *domain.LoadingInfo) {
		info.State = domain.StateReady
		info.EndTime = time.Now()
		info.Progress = nil
		info.Err = nil
	})
	t.publish(Event{Kind: EventServerReady, Server: name, Info: snap})
	t.publishCompletionIfDone()
}

// Failed transitions Loading to the terminal Failed state.
func (t *Tracker) Failed(name string, err error) {
	snap := t.transition(name, func(info *domain.LoadingInfo) {
		info.State = domain.StateFailed
		info.EndTime = time.Now()
		info.Err = err
	})
	t.publish(Event{Kind: EventServerFailed, Server: name, Info: snap})
	t.publishCompletionIfDone()
}

// AwaitingOAuth transitions Loading to AwaitingOAuth, stopping retries.
func (t *Tracker) AwaitingOAuth(name, authURL string) {
	snap := t.transition(name, func(info *domain.LoadingInfo) {
		info.State = domain.StateAwaitingOAuth
		info.AuthURL = authURL
		info.Progress = nil
	})
	t.publish(Event{Kind: EventOAuthRequired, Server: name, Info: snap})
	t.publishCompletionIfDone()
}

// FinishAuth transitions AwaitingOAuth back to Loading after finishAuth
// succeeds.
func (t *Tracker) FinishAuth(name string) {
	snap := t.transition(name, func(info *domain.LoadingInfo) {
		info.State = domain.StateLoading
		info.AuthURL = ""
		info.Progress = &domain.LoadingProgress{Phase: "connecting"}
	})
	t.publish(Event{Kind: EventStateChanged, Server: name, Info: snap})
}

// Cancel transitions any non-terminal state to Cancelled.
func (t *Tracker) Cancel(name string) {
	snap := t.transition(name, func(info *domain.LoadingInfo) {
		if isTerminal(info.State) {
			return
		}
		info.State = domain.StateCancelled
		info.EndTime = time.Now()
	})
	t.publish(Event{Kind: EventStateChanged, Server: name, Info: snap})
	t.publishCompletionIfDone()
}

func isTerminal(s domain.State) bool {
	switch s {
	case domain.StateReady, domain.StateFailed, domain.StateCancelled:
		return true
	default:
		return false
	}
}

// Summary is the aggregate view over all tracked servers.
type Summary struct {
	Pending         int
	Loading         int
	Ready           int
	Failed          int
	AwaitingOAuth   int
	Cancelled       int
	Total           int
	SuccessRate     float64
	IsComplete      bool
	AverageLoadTime time.Duration
}

// Summary computes counts-by-state and derived metrics. IsComplete is true
// iff no server is Pending or Loading.
func (t *Tracker) Summary() Summary {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var s Summary
	var totalDuration time.Duration
	var durationSamples int
	for _, info := range t.infos {
		s.Total++
		switch info.State {
		case domain.StatePending:
			s.Pending++
		case domain.StateLoading:
			s.Loading++
		case domain.StateReady:
			s.Ready++
			if !info.EndTime.IsZero() && !info.StartTime.IsZero() {
				totalDuration += info.EndTime.Sub(info.StartTime)
				durationSamples++
			}
		case domain.StateFailed:
			s.Failed++
		case domain.StateAwaitingOAuth:
			s.AwaitingOAuth++
		case domain.StateCancelled:
			s.Cancelled++
		}
	}
	s.IsComplete = s.Pending == 0 && s.Loading == 0
	if s.Total > 0 {
		s.SuccessRate = float64(s.Ready) / float64(s.Total)
	}
	if durationSamples > 0 {
		s.AverageLoadTime = totalDuration / time.Duration(durationSamples)
	}
	return s
}

func (t *Tracker) publishCompletionIfDone() {
	summary := t.Summary()
	if summary.IsComplete {
		t.publish(Event{Kind: EventLoadingComplete})
	}
}
