package outbound

import (
	"context"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"

	"mcpmux/internal/domain"
	"mcpmux/pkg/logging"
)

// Manager is the Client Manager: it owns the map of outbound connections,
// creates and tears down individual clients, and republishes each
// connection's notification stream on its own bus keyed by server name.
// It is the connection map's single writer; readers obtain a defensive
// snapshot.
type Manager struct {
	mu         sync.RWMutex
	clients    map[string]Client
	transports map[string]domain.ServerDescriptor

	authProviders map[string]AuthProvider

	cachesMu sync.RWMutex
	caches   map[string]*capabilityCache

	subsMu sync.RWMutex
	subs   []chan Notification
}

// New creates an empty Client Manager.
func New() *Manager {
	return &Manager{
		clients:       make(map[string]Client),
		transports:    make(map[string]domain.ServerDescriptor),
		authProviders: make(map[string]AuthProvider),
		caches:        make(map[string]*capabilityCache),
	}
}

// SetAuthProvider registers the auth provider a server's HTTP/SSE transport
// should consult for bearer tokens. Must be called before CreateSingleClient
// for that server if authentication is required.
func (m *Manager) SetAuthProvider(server string, provider AuthProvider) {
	m.mu.Lock()
	m.authProviders[server] = provider
	m.mu.Unlock()
}

// Subscribe registers a channel to receive every republished outbound
// notification.
func (m *Manager) Subscribe() <-chan Notification {
	ch := make(chan Notification, 256)
	m.subsMu.Lock()
	m.subs = append(m.subs, ch)
	m.subsMu.Unlock()
	return ch
}

func (m *Manager) publish(n Notification) {
	m.subsMu.RLock()
	subs := append([]chan Notification(nil), m.subs...)
	m.subsMu.RUnlock()
	for _, ch := range subs {
		select {
		case ch <- n:
		default:
		}
	}
}

// CreateSingleClient connects to one outbound server, honoring cancel at
// every await point. Disconnection on failure is guaranteed: every error
// path below closes whatever was partially opened before returning.
// Implements loader.ClientConnector.
func (m *Manager) CreateSingleClient(ctx context.Context, name string, desc domain.ServerDescriptor) error {
	m.mu.RLock()
	provider := m.authProviders[name]
	m.mu.RUnlock()

	client, err := NewClient(desc, provider)
	if err != nil {
		return fmt.Errorf("outbound: build client for %q: %w", name, err)
	}

	if err := client.Connect(ctx); err != nil {
		return err
	}

	client.OnNotification(func(n mcp.JSONRPCNotification) {
		m.handleNotification(name, n)
	})

	m.mu.Lock()
	if old, ok := m.clients[name]; ok {
		_ = old.Close()
	}
	m.clients[name] = client
	m.transports[name] = desc
	m.mu.Unlock()

	m.refreshCaches(context.Background(), name)
	return nil
}

func (m *Manager) handleNotification(server string, n mcp.JSONRPCNotification) {
	var kind NotificationKind
	switch n.Method {
	case "notifications/tools/list_changed":
		kind = NotificationToolsListChanged
	case "notifications/resources/list_changed":
		kind = NotificationResourcesListChanged
	case "notifications/prompts/list_changed":
		kind = NotificationPromptsListChanged
	case "notifications/resources/updated":
		kind = NotificationResourceUpdated
	default:
		logging.Debug("outbound.manager", "ignoring unrecognized notification %q from %q", n.Method, server)
		return
	}

	note := Notification{Server: server, Kind: kind}
	if kind == NotificationResourceUpdated {
		if uriVal, ok := n.Params.AdditionalFields["uri"]; ok {
			if uri, ok := uriVal.(string); ok {
				note.URI = uri
			}
		}
	}

	if kind == NotificationToolsListChanged || kind == NotificationResourcesListChanged || kind == NotificationPromptsListChanged {
		go m.refreshCaches(context.Background(), server)
	}

	m.publish(note)
}

// UpdateClientsAndTransports atomically swaps the connection map, used by
// the config-reload dispatcher. Clients present in the old map but
// absent from newClients are not closed here; callers close evicted
// connections explicitly before or after the swap as the reload protocol
// requires.
func (m *Manager) UpdateClientsAndTransports(newClients map[string]Client, newTransports map[string]domain.ServerDescriptor) {
	m.mu.Lock()
	m.clients = newClients
	m.transports = newTransports
	m.mu.Unlock()
}

// GetClients returns a defensive snapshot of the connection map.
func (m *Manager) GetClients() map[string]Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Client, len(m.clients))
	for k, v := range m.clients {
		out[k] = v
	}
	return out
}

// GetClient returns one server's client, if connected.
func (m *Manager) GetClient(name string) (Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clients[name]
	return c, ok
}

// GetTransport returns one server's descriptor, if known.
func (m *Manager) GetTransport(name string) (domain.ServerDescriptor, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.transports[name]
	return d, ok
}

// CloseServer closes and evicts one server's connection. Missing servers
// are a no-op.
func (m *Manager) CloseServer(name string) error {
	m.mu.Lock()
	client, ok := m.clients[name]
	delete(m.clients, name)
	delete(m.transports, name)
	m.mu.Unlock()

	m.cachesMu.Lock()
	delete(m.caches, name)
	m.cachesMu.Unlock()

	if !ok {
		return nil
	}
	return client.Close()
}
