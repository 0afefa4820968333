package main

import (
	"context"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"mcpmux/internal/filtering"
	"mcpmux/internal/instructions"
	"mcpmux/internal/loadstate"
	"mcpmux/internal/outbound"
	"mcpmux/internal/session"
	"mcpmux/pkg/logging"
)

const serverVersion = "1.0.0"

const httpShutdownTimeout = 5 * time.Second

// defaultSessionID is used when an inbound transport carries no mcp-go
// client session (stdio is inherently single-connection).
const defaultSessionID = "stdio"

// inboundDeps are the ambient subsystems an inboundServer wires every
// per-connection session.Session against.
type inboundDeps struct {
	servers       session.ServerSource
	tracker       *loadstate.Tracker
	conn          *outbound.Manager
	resolvePreset filtering.PresetResolver
	instrStore    *instructions.Store
	renderer      *instructions.Renderer
	toolPattern   string
	defaultOpts   session.Options
}

// inboundServer owns the single shared mcp-go server and the per-inbound-
// session Server Manager views layered behind it. Tool visibility is
// trimmed per session through mcp-go's WithToolFilter hook; the resource and
// prompt catalogs are registered once from the unfiltered root view (mcp-go
// exposes no equivalent per-session filter for those lists) but every call,
// prompt-get, and resource-read still routes through the requesting
// session's own Session so visibility is enforced at call time regardless.
type inboundServer struct {
	deps inboundDeps
	mcp  *mcpserver.MCPServer
	root *session.Session

	mu       sync.Mutex
	sessions map[string]*session.Session

	catalogMu      sync.Mutex
	registeredTool map[string]struct{}
	registeredRes  map[string]struct{}
	registeredProm map[string]struct{}
}

func newInboundServer(deps inboundDeps) *inboundServer {
	srv := &inboundServer{
		deps:           deps,
		sessions:       make(map[string]*session.Session),
		registeredTool: make(map[string]struct{}),
		registeredRes:  make(map[string]struct{}),
		registeredProm: make(map[string]struct{}),
	}
	srv.root = session.New("", session.Options{}, deps.servers, deps.tracker, deps.conn, deps.resolvePreset, deps.instrStore, deps.renderer, deps.toolPattern)

	srv.mcp = mcpserver.NewMCPServer(
		"mcpmux",
		serverVersion,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(true, true),
		mcpserver.WithPromptCapabilities(true),
		mcpserver.WithToolFilter(srv.sessionToolFilter),
	)

	srv.syncCatalog()
	go srv.watchCatalog()

	return srv
}

// sessionFor returns (lazily creating) the Session backing an inbound mcp-go
// connection, keyed by its client session ID.
func (s *inboundServer) sessionFor(ctx context.Context) *session.Session {
	id := clientSessionID(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		return sess
	}
	sess := session.New(id, s.deps.defaultOpts, s.deps.servers, s.deps.tracker, s.deps.conn, s.deps.resolvePreset, s.deps.instrStore, s.deps.renderer, s.deps.toolPattern)
	s.sessions[id] = sess
	return sess
}

func clientSessionID(ctx context.Context) string {
	if cs := mcpserver.ClientSessionFromContext(ctx); cs != nil {
		if id := cs.SessionID(); id != "" {
			return id
		}
	}
	return defaultSessionID
}

// sessionToolFilter is the mcp-go WithToolFilter callback: it ignores the
// globally-registered list mcp-go passes in and substitutes the requesting
// session's own filtered, namespaced view.
func (s *inboundServer) sessionToolFilter(ctx context.Context, _ []mcp.Tool) []mcp.Tool {
	sess := s.sessionFor(ctx)
	tools, _, err := sess.ListTools("")
	if err != nil {
		logging.Warn("proxyd.inbound", "session %s tool filter: %v", logging.TruncateSessionID(sess.ID), err)
		return nil
	}
	return tools
}

func (s *inboundServer) watchCatalog() {
	toolEvents := s.deps.tracker.Subscribe()
	connEvents := s.deps.conn.Subscribe()
	for {
		select {
		case _, ok := <-toolEvents:
			if !ok {
				return
			}
			s.syncCatalog()
		case _, ok := <-connEvents:
			if !ok {
				return
			}
			s.syncCatalog()
		}
	}
}

// syncCatalog reconciles the shared mcp-go server's registered tools,
// resources, and prompts against the root (unfiltered) Session's current
// view, so every session's filter sees a superset it can trim from and
// every namespaced call has a registered handler to dispatch to.
func (s *inboundServer) syncCatalog() {
	s.catalogMu.Lock()
	defer s.catalogMu.Unlock()

	tools, _, err := s.root.ListTools("")
	if err != nil {
		logging.Warn("proxyd.inbound", "catalog sync: list tools: %v", err)
		tools = nil
	}
	s.syncTools(tools)

	resources, _, err := s.root.ListResources("")
	if err != nil {
		logging.Warn("proxyd.inbound", "catalog sync: list resources: %v", err)
		resources = nil
	}
	s.syncResources(resources)

	prompts, _, err := s.root.ListPrompts("")
	if err != nil {
		logging.Warn("proxyd.inbound", "catalog sync: list prompts: %v", err)
		prompts = nil
	}
	s.syncPrompts(prompts)
}

func (s *inboundServer) syncTools(tools []mcp.Tool) {
	want := make(map[string]mcp.Tool, len(tools))
	for _, t := range tools {
		want[t.Name] = t
	}

	var toRemove []string
	for name := range s.registeredTool {
		if _, ok := want[name]; !ok {
			toRemove = append(toRemove, name)
			delete(s.registeredTool, name)
		}
	}
	if len(toRemove) > 0 {
		s.mcp.DeleteTools(toRemove...)
	}

	var toAdd []mcpserver.ServerTool
	for name, tool := range want {
		if _, ok := s.registeredTool[name]; ok {
			continue
		}
		s.registeredTool[name] = struct{}{}
		toAdd = append(toAdd, mcpserver.ServerTool{
			Tool:    tool,
			Handler: s.toolHandler(name),
		})
	}
	if len(toAdd) > 0 {
		s.mcp.AddTools(toAdd...)
	}
}

func (s *inboundServer) syncResources(resources []mcp.Resource) {
	want := make(map[string]mcp.Resource, len(resources))
	for _, r := range resources {
		want[r.URI] = r
	}

	for uri := range s.registeredRes {
		if _, ok := want[uri]; !ok {
			s.mcp.RemoveResource(uri)
			delete(s.registeredRes, uri)
		}
	}

	var toAdd []mcpserver.ServerResource
	for uri, res := range want {
		if _, ok := s.registeredRes[uri]; ok {
			continue
		}
		s.registeredRes[uri] = struct{}{}
		toAdd = append(toAdd, mcpserver.ServerResource{
			Resource: res,
			Handler:  s.resourceHandler(uri),
		})
	}
	if len(toAdd) > 0 {
		s.mcp.AddResources(toAdd...)
	}
}

func (s *inboundServer) syncPrompts(prompts []mcp.Prompt) {
	want := make(map[string]mcp.Prompt, len(prompts))
	for _, p := range prompts {
		want[p.Name] = p
	}

	var toRemove []string
	for name := range s.registeredProm {
		if _, ok := want[name]; !ok {
			toRemove = append(toRemove, name)
			delete(s.registeredProm, name)
		}
	}
	if len(toRemove) > 0 {
		s.mcp.DeletePrompts(toRemove...)
	}

	var toAdd []mcpserver.ServerPrompt
	for name, prompt := range want {
		if _, ok := s.registeredProm[name]; ok {
			continue
		}
		s.registeredProm[name] = struct{}{}
		toAdd = append(toAdd, mcpserver.ServerPrompt{
			Prompt:  prompt,
			Handler: s.promptHandler(name),
		})
	}
	if len(toAdd) > 0 {
		s.mcp.AddPrompts(toAdd...)
	}
}

func (s *inboundServer) toolHandler(exposedName string) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := map[string]interface{}{}
		if m, ok := req.Params.Arguments.(map[string]interface{}); ok {
			args = m
		}
		sess := s.sessionFor(ctx)
		return sess.CallTool(ctx, exposedName, args)
	}
}

func (s *inboundServer) promptHandler(exposedName string) func(context.Context, mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	return func(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		args := map[string]interface{}{}
		for k, v := range req.Params.Arguments {
			args[k] = v
		}
		sess := s.sessionFor(ctx)
		return sess.GetPrompt(ctx, exposedName, args)
	}
}

func (s *inboundServer) resourceHandler(exposedURI string) func(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		sess := s.sessionFor(ctx)
		result, err := sess.ReadResource(ctx, exposedURI)
		if err != nil {
			return nil, err
		}
		return result.Contents, nil
	}
}

// ServeStdio blocks serving the shared MCP server over stdin/stdout until
// ctx is cancelled.
func (s *inboundServer) ServeStdio(ctx context.Context) error {
	stdio := mcpserver.NewStdioServer(s.mcp)
	logging.Info("proxyd", "serving MCP over stdio")
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// ServeHTTP blocks serving the shared MCP server over the streamable-HTTP
// transport on addr until ctx is cancelled.
func (s *inboundServer) ServeHTTP(ctx context.Context, addr string) error {
	handler := mcpserver.NewStreamableHTTPServer(s.mcp)
	httpSrv := &http.Server{Addr: addr, Handler: handler}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("proxyd", "serving MCP over streamable HTTP on %s", addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
