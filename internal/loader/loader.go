// Package loader implements the Loading Manager: it brings a map of
// outbound server descriptors from Pending to Ready, enforcing bounded
// concurrency, per-server single-flight, retry with exponential backoff,
// OAuth interception, timeouts, cancellation, and background re-attempts
// for servers that exhausted retries.
//
// Concurrency and de-duplication lean on golang.org/x/sync's errgroup
// (bounded batching across a load pass) and singleflight (collapsing
// concurrent load requests for the same server into one attempt).
package loader

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"mcpmux/internal/domain"
	"mcpmux/internal/loadstate"
	"mcpmux/pkg/logging"
)

// Config holds the Loading Manager's tunables. withDefaults replaces zero
// or negative durations and counts with defaults; the two bool fields are
// used as given.
type Config struct {
	ServerTimeout           time.Duration
	MaxRetries              int
	RetryDelay              time.Duration
	MaxConcurrentLoads      int
	ContinueOnFailure       bool
	EnableBackgroundRetry   bool
	BackgroundRetryInterval time.Duration
}

// DefaultConfig returns the Loading Manager's out-of-the-box tunables.
func DefaultConfig() Config {
	return Config{
		ServerTimeout:           30 * time.Second,
		MaxRetries:              3,
		RetryDelay:              2 * time.Second,
		MaxConcurrentLoads:      5,
		ContinueOnFailure:       true,
		EnableBackgroundRetry:   true,
		BackgroundRetryInterval: 60 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	if c.ServerTimeout <= 0 {
		c.ServerTimeout = 30 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 2 * time.Second
	}
	if c.MaxConcurrentLoads <= 0 {
		c.MaxConcurrentLoads = 5
	}
	if c.BackgroundRetryInterval <= 0 {
		c.BackgroundRetryInterval = 60 * time.Second
	}
	return c
}

// ClientConnector is the subset of the Client Manager the Loading Manager
// depends on: establishing a single outbound connection.
// Declared here, rather than imported from the outbound package, to keep
// the dependency direction loader -> outbound at the interface level only.
type ClientConnector interface {
	CreateSingleClient(ctx context.Context, name string, transport domain.ServerDescriptor) error
}

// Manager is the Loading Manager.
type Manager struct {
	cfg       Config
	connector ClientConnector
	tracker   *loadstate.Tracker

	mu          sync.Mutex
	cancelFuncs map[string]context.CancelFunc
	sf          singleflight.Group

	bgMu     sync.Mutex
	bgCancel context.CancelFunc
}

// New creates a Loading Manager bound to the given tracker and connector.
func New(cfg Config, tracker *loadstate.Tracker, connector ClientConnector) *Manager {
	return &Manager{
		cfg:         cfg.withDefaults(),
		connector:   connector,
		tracker:     tracker,
		cancelFuncs: make(map[string]context.CancelFunc),
	}
}

// LoadAll enumerates servers, partitions them into batches of
// MaxConcurrentLoads, and loads each batch to completion before starting
// the next. When all batches settle, it arms the background-retry ticker
// if there are Failed servers and EnableBackgroundRetry is set.
func (m *Manager) LoadAll(ctx context.Context, servers map[string]domain.ServerDescriptor) error {
	names := make([]string, 0, len(servers))
	for name := range servers {
		names = append(names, name)
		m.tracker.Init(name)
	}

	for start := 0; start < len(names); start += m.cfg.MaxConcurrentLoads {
		end := start + m.cfg.MaxConcurrentLoads
		if end > len(names) {
			end = len(names)
		}
		batch := names[start:end]

		g, gctx := errgroup.WithContext(ctx)
		for _, name := range batch {
			name := name
			desc := servers[name]
			g.Go(func() error {
				err := m.loadWithRetry(gctx, name, desc)
				if err != nil && !m.cfg.ContinueOnFailure {
					return err
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}

	m.maybeStartBackgroundRetry(ctx, servers)
	return nil
}

// loadWithRetry drives a single server through Loading, with single-flight
// de-duplication, retries with exponential backoff, and OAuth interception.
func (m *Manager) loadWithRetry(ctx context.Context, name string, desc domain.ServerDescriptor) error {
	_, err, _ := m.sf.Do(name, func() (interface{}, error) {
		return nil, m.attemptLoop(ctx, name, desc)
	})
	return err
}

func (m *Manager) attemptLoop(ctx context.Context, name string, desc domain.ServerDescriptor) error {
	delay := m.cfg.RetryDelay
	var lastErr error

	maxAttempts := m.cfg.MaxRetries + 1
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		serverCtx, cancel := context.WithTimeout(ctx, m.cfg.ServerTimeout)
		m.setCancel(name, cancel)

		if attempt == 1 {
			m.tracker.StartLoading(name)
		} else {
			m.tracker.Retrying(name, attempt-1)
		}

		err := m.connector.CreateSingleClient(serverCtx, name, desc)
		cancel()
		m.clearCancel(name)

		if err == nil {
			m.tracker.Ready(name)
			return nil
		}

		if domain.IsCancelled(err) || errors.Is(err, context.Canceled) {
			m.tracker.Cancel(name)
			return err
		}

		var de *domain.Error
		if errors.As(err, &de) && de.Kind == domain.KindOAuthRequired {
			m.tracker.AwaitingOAuth(name, de.AuthURL)
			return err
		}

		lastErr = err
		logging.Warn("loader", "attempt %d/%d for %q failed: %v", attempt, maxAttempts, name, err)

		if attempt < maxAttempts {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				m.tracker.Cancel(name)
				return ctx.Err()
			}
			delay *= 2
		}
	}

	m.tracker.Failed(name, lastErr)
	return lastErr
}

func (m *Manager) setCancel(name string, cancel context.CancelFunc) {
	m.mu.Lock()
	m.cancelFuncs[name] = cancel
	m.mu.Unlock()
}

func (m *Manager) clearCancel(name string) {
	m.mu.Lock()
	delete(m.cancelFuncs, name)
	m.mu.Unlock()
}

// CancelServerLoading trips a server's in-flight cancel-token, transitioning
// it to Cancelled if not already terminal.
func (m *Manager) CancelServerLoading(name string) {
	m.mu.Lock()
	cancel, ok := m.cancelFuncs[name]
	delete(m.cancelFuncs, name)
	m.mu.Unlock()
	if ok {
		cancel()
	}
	m.tracker.Cancel(name)
}

// Shutdown cancels every in-flight load, stops the background-retry ticker,
// and moves any remaining Pending/Loading server to Cancelled.
func (m *Manager) Shutdown() {
	m.bgMu.Lock()
	if m.bgCancel != nil {
		m.bgCancel()
		m.bgCancel = nil
	}
	m.bgMu.Unlock()

	m.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(m.cancelFuncs))
	for _, c := range m.cancelFuncs {
		cancels = append(cancels, c)
	}
	m.cancelFuncs = make(map[string]context.CancelFunc)
	m.mu.Unlock()
	for _, c := range cancels {
		c()
	}

	for _, info := range m.tracker.All() {
		if info.State == domain.StatePending || info.State == domain.StateLoading {
			m.tracker.Cancel(info.Name)
		}
	}
}

// maybeStartBackgroundRetry arms a periodic ticker that re-drives up to 3
// Failed servers per tick, without blocking the caller. Nothing is armed
// when none of servers is Failed.
func (m *Manager) maybeStartBackgroundRetry(ctx context.Context, servers map[string]domain.ServerDescriptor) {
	if !m.cfg.EnableBackgroundRetry {
		return
	}
	hasFailed := false
	for name := range servers {
		if info, ok := m.tracker.Get(name); ok && info.State == domain.StateFailed {
			hasFailed = true
			break
		}
	}
	if !hasFailed {
		return
	}

	bgCtx, cancel := context.WithCancel(ctx)
	m.bgMu.Lock()
	if m.bgCancel != nil {
		m.bgCancel()
	}
	m.bgCancel = cancel
	m.bgMu.Unlock()

	go func() {
		ticker := time.NewTicker(m.cfg.BackgroundRetryInterval)
		defer ticker.Stop()
		for {
			select {
			case <-bgCtx.Done():
				return
			case <-ticker.C:
				m.retryFailedBatch(bgCtx, servers)
			}
		}
	}()
}

func (m *Manager) retryFailedBatch(ctx context.Context, servers map[string]domain.ServerDescriptor) {
	const maxPerTick = 3
	var retry []string
	for _, info := range m.tracker.All() {
		if info.State == domain.StateFailed {
			retry = append(retry, info.Name)
			if len(retry) == maxPerTick {
				break
			}
		}
	}
	if len(retry) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range retry {
		name := name
		desc, ok := servers[name]
		if !ok {
			continue
		}
		g.Go(func() error {
			_ = m.loadWithRetry(gctx, name, desc)
			return nil
		})
	}
	_ = g.Wait()
}
