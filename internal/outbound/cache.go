package outbound

import (
	"context"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"mcpmux/pkg/logging"
)

// capabilityCache holds one server's most recently fetched tool/resource/
// prompt lists, refreshed on connect and whenever the server's
// list_changed notification fires. The Server Manager reads these caches
// rather than calling the outbound server synchronously on every
// inbound tools/list.
type capabilityCache struct {
	mu        sync.RWMutex
	tools     []mcp.Tool
	resources []mcp.Resource
	prompts   []mcp.Prompt
}

// RefreshCaches re-fetches and stores one server's tool/resource/prompt
// lists. Exported for callers that connect a client outside the normal
// CreateSingleClient/notification paths (e.g. a reload that swaps clients
// directly) and still need the cache populated before the next list
// request.
func (m *Manager) RefreshCaches(ctx context.Context, name string) {
	m.refreshCaches(ctx, name)
}

func (m *Manager) refreshCaches(ctx context.Context, name string) {
	client, ok := m.GetClient(name)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tools, err := client.ListTools(ctx)
	if err != nil {
		logging.Warn("outbound.cache", "refresh tools for %q: %v", name, err)
		tools = nil
	}
	resources, err := client.ListResources(ctx)
	if err != nil {
		logging.Warn("outbound.cache", "refresh resources for %q: %v", name, err)
		resources = nil
	}
	prompts, err := client.ListPrompts(ctx)
	if err != nil {
		logging.Warn("outbound.cache", "refresh prompts for %q: %v", name, err)
		prompts = nil
	}

	m.cachesMu.Lock()
	c, ok := m.caches[name]
	if !ok {
		c = &capabilityCache{}
		m.caches[name] = c
	}
	m.cachesMu.Unlock()

	c.mu.Lock()
	c.tools = tools
	c.resources = resources
	c.prompts = prompts
	c.mu.Unlock()
}

// CachedTools returns the most recently cached tool list for a server.
func (m *Manager) CachedTools(name string) []mcp.Tool {
	m.cachesMu.RLock()
	c, ok := m.caches[name]
	m.cachesMu.RUnlock()
	if !ok {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]mcp.Tool(nil), c.tools...)
}

// CachedResources returns the most recently cached resource list for a server.
func (m *Manager) CachedResources(name string) []mcp.Resource {
	m.cachesMu.RLock()
	c, ok := m.caches[name]
	m.cachesMu.RUnlock()
	if !ok {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]mcp.Resource(nil), c.resources...)
}

// CachedPrompts returns the most recently cached prompt list for a server.
func (m *Manager) CachedPrompts(name string) []mcp.Prompt {
	m.cachesMu.RLock()
	c, ok := m.caches[name]
	m.cachesMu.RUnlock()
	if !ok {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]mcp.Prompt(nil), c.prompts...)
}
