// Package outbound implements the Client Manager: the outbound transport
// abstraction over Subprocess/StreamingHTTP/SSE MCP servers, the
// connection map it owns, and OAuth-401 interception, built on
// pkg/oauth.ParseWWWAuthenticate rather than ad hoc string matching.
package outbound

import (
	"context"
	"fmt"
	"sync"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"mcpmux/internal/domain"
)

// DefaultInitTimeout bounds the MCP handshake for transports that do not
// already have a deadline on their incoming context.
const DefaultInitTimeout = 10 * time.Second

// NotificationKind discriminates the four outbound notification families
// the Client Manager republishes.
type NotificationKind int

const (
	NotificationToolsListChanged NotificationKind = iota
	NotificationResourcesListChanged
	NotificationPromptsListChanged
	NotificationResourceUpdated
)

// Notification is republished on the Client Manager's bus, keyed by the
// originating server name.
type Notification struct {
	Server string
	Kind   NotificationKind
	URI    string // populated for NotificationResourceUpdated
}

// Client is the polymorphic per-transport MCP client interface shared by
// every transport implementation in this package.
type Client interface {
	Connect(ctx context.Context) error
	Close() error
	ListTools(ctx context.Context) ([]mcp.Tool, error)
	CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error)
	ListResources(ctx context.Context) ([]mcp.Resource, error)
	ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error)
	ListPrompts(ctx context.Context) ([]mcp.Prompt, error)
	GetPrompt(ctx context.Context, name string, args map[string]interface{}) (*mcp.GetPromptResult, error)
	Ping(ctx context.Context) error
	Instructions() string
	OnNotification(cb func(mcp.JSONRPCNotification))
}

// baseClient provides the shared MCP-operation plumbing common to every
// transport.
type baseClient struct {
	mu           sync.RWMutex
	raw          mcpclient.MCPClient
	connected    bool
	instructions string
}

func (b *baseClient) checkConnected() error {
	if !b.connected || b.raw == nil {
		return fmt.Errorf("outbound: client not connected")
	}
	return nil
}

func (b *baseClient) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected || b.raw == nil {
		return nil
	}
	err := b.raw.Close()
	b.connected = false
	b.raw = nil
	return err
}

func (b *baseClient) Instructions() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.instructions
}

func (b *baseClient) OnNotification(cb func(mcp.JSONRPCNotification)) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.raw != nil {
		b.raw.OnNotification(cb)
	}
}

func (b *baseClient) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkConnected(); err != nil {
		return nil, err
	}
	result, err := b.raw.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("outbound: list tools: %w", err)
	}
	return result.Tools, nil
}

func (b *baseClient) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkConnected(); err != nil {
		return nil, err
	}
	result, err := b.raw.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: name, Arguments: args},
	})
	if err != nil {
		return nil, fmt.Errorf("outbound: call tool %q: %w", name, err)
	}
	return result, nil
}

func (b *baseClient) ListResources(ctx context.Context) ([]mcp.Resource, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkConnected(); err != nil {
		return nil, err
	}
	result, err := b.raw.ListResources(ctx, mcp.ListResourcesRequest{})
	if err != nil {
		return nil, fmt.Errorf("outbound: list resources: %w", err)
	}
	return result.Resources, nil
}

func (b *baseClient) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkConnected(); err != nil {
		return nil, err
	}
	result, err := b.raw.ReadResource(ctx, mcp.ReadResourceRequest{
		Params: struct {
			URI       string         `json:"uri"`
			Arguments map[string]any `json:"arguments,omitempty"`
		}{URI: uri},
	})
	if err != nil {
		return nil, fmt.Errorf("outbound: read resource %q: %w", uri, err)
	}
	return result, nil
}

func (b *baseClient) ListPrompts(ctx context.Context) ([]mcp.Prompt, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkConnected(); err != nil {
		return nil, err
	}
	result, err := b.raw.ListPrompts(ctx, mcp.ListPromptsRequest{})
	if err != nil {
		return nil, fmt.Errorf("outbound: list prompts: %w", err)
	}
	return result.Prompts, nil
}

func (b *baseClient) GetPrompt(ctx context.Context, name string, args map[string]interface{}) (*mcp.GetPromptResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkConnected(); err != nil {
		return nil, err
	}
	stringArgs := make(map[string]string, len(args))
	for k, v := range args {
		if s, ok := v.(string); ok {
			stringArgs[k] = s
		} else {
			stringArgs[k] = fmt.Sprintf("%v", v)
		}
	}
	result, err := b.raw.GetPrompt(ctx, mcp.GetPromptRequest{
		Params: struct {
			Name      string            `json:"name"`
			Arguments map[string]string `json:"arguments,omitempty"`
		}{Name: name, Arguments: stringArgs},
	})
	if err != nil {
		return nil, fmt.Errorf("outbound: get prompt %q: %w", name, err)
	}
	return result, nil
}

func (b *baseClient) Ping(ctx context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkConnected(); err != nil {
		return err
	}
	return b.raw.Ping(ctx)
}

func initializeRequest(clientName string) mcp.InitializeRequest {
	return mcp.InitializeRequest{
		Params: struct {
			ProtocolVersion string                 `json:"protocolVersion"`
			Capabilities    mcp.ClientCapabilities `json:"capabilities"`
			ClientInfo      mcp.Implementation     `json:"clientInfo"`
		}{
			ProtocolVersion: "2024-11-05",
			ClientInfo:      mcp.Implementation{Name: clientName, Version: "1.0.0"},
			Capabilities:    mcp.ClientCapabilities{},
		},
	}
}

// NewClient dispatches to the transport-specific constructor by descriptor
// kind.
func NewClient(desc domain.ServerDescriptor, authProvider AuthProvider) (Client, error) {
	switch desc.Transport {
	case domain.TransportSubprocess:
		if desc.Command == "" {
			return nil, fmt.Errorf("outbound: command is required for subprocess transport")
		}
		return newSubprocessClient(desc.Command, desc.Args, desc.Env), nil
	case domain.TransportStreamingHTTP:
		if desc.URL == "" {
			return nil, fmt.Errorf("outbound: url is required for streaming-http transport")
		}
		return newStreamingHTTPClient(desc.URL, desc.Headers, authProvider), nil
	case domain.TransportSSE:
		if desc.URL == "" {
			return nil, fmt.Errorf("outbound: url is required for sse transport")
		}
		return newSSEClient(desc.URL, desc.Headers, authProvider), nil
	default:
		return nil, fmt.Errorf("outbound: unsupported transport kind %q", desc.Transport)
	}
}
