package session

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"mcpmux/internal/domain"
	"mcpmux/internal/filtering"
	"mcpmux/internal/instructions"
	"mcpmux/internal/loadstate"
	"mcpmux/internal/outbound"
	"mcpmux/pkg/auth"
	mcpstrings "mcpmux/pkg/strings"
)

// Options are the per-session filter/pagination settings.
type Options struct {
	Tags            []string
	TagExpression   string
	TagFilterMode   domain.FilterMode
	TagQuery        *domain.TagQuery
	PresetName      string
	EnablePagination bool
}

func (o Options) filterSpec() domain.FilterSpec {
	mode := o.TagFilterMode
	if mode == "" {
		mode = domain.FilterModeNone
	}
	return domain.FilterSpec{
		Mode:       mode,
		Tags:       o.Tags,
		Expression: o.TagExpression,
		PresetName: o.PresetName,
		Query:      o.TagQuery,
	}
}

// ServerSource supplies the full set of configured outbound server
// descriptors (enabled/disabled and tags), independent of loading state.
type ServerSource func() []domain.ServerDescriptor

// Session is the per-inbound-session Server Manager: a filtered,
// namespaced, routed view over the shared Client Manager.
type Session struct {
	ID      string
	Options Options

	servers       ServerSource
	tracker       *loadstate.Tracker
	conn          *outbound.Manager
	resolvePreset filtering.PresetResolver
	instrStore    *instructions.Store
	renderer      *instructions.Renderer
	toolPattern   string

	Names     *NameTracker
	Coalescer *Coalescer
}

// New creates a Session bound to the shared subsystems. An empty id
// generates a fresh one via uuid.New().String().
func New(id string, opts Options, servers ServerSource, tracker *loadstate.Tracker, conn *outbound.Manager, resolvePreset filtering.PresetResolver, instrStore *instructions.Store, renderer *instructions.Renderer, toolPattern string) *Session {
	if id == "" {
		id = uuid.New().String()
	}
	if toolPattern == "" {
		toolPattern = DefaultToolNamePattern
	}
	return &Session{
		ID:            id,
		Options:       opts,
		servers:       servers,
		tracker:       tracker,
		conn:          conn,
		resolvePreset: resolvePreset,
		instrStore:    instrStore,
		renderer:      renderer,
		toolPattern:   toolPattern,
		Names:         NewNameTracker(toolPattern),
		Coalescer:     NewCoalescer(0, 0),
	}
}

// View computes the filtered, Ready subset of outbound servers this
// session may see, in server-lexicographic order. A filter resolving to
// zero servers is not an error.
func (s *Session) View() ([]filtering.Server, error) {
	descs := s.servers()
	candidates := make([]filtering.Server, 0, len(descs))
	for _, d := range descs {
		candidates = append(candidates, filtering.Server{Name: d.Name, Tags: d.Tags, Disabled: d.Disabled})
	}

	filtered, _, err := filtering.Apply(candidates, s.Options.filterSpec(), s.resolvePreset)
	if err != nil {
		return nil, err
	}

	ready := make([]filtering.Server, 0, len(filtered))
	for _, srv := range filtered {
		info, ok := s.tracker.Get(srv.Name)
		if ok && info.State == domain.StateReady {
			ready = append(ready, srv)
		}
	}
	return ready, nil
}

// Status reports the authentication state of every server this session's
// filter resolves to, regardless of Ready state, so a caller can tell a
// server awaiting an OAuth redirect apart from one that simply isn't
// configured for this session.
func (s *Session) Status() ([]auth.ServerStatus, error) {
	descs := s.servers()
	candidates := make([]filtering.Server, 0, len(descs))
	for _, d := range descs {
		candidates = append(candidates, filtering.Server{Name: d.Name, Tags: d.Tags, Disabled: d.Disabled})
	}
	filtered, _, err := filtering.Apply(candidates, s.Options.filterSpec(), s.resolvePreset)
	if err != nil {
		return nil, err
	}

	statuses := make([]auth.ServerStatus, 0, len(filtered))
	for _, srv := range filtered {
		info, ok := s.tracker.Get(srv.Name)
		st := auth.ServerStatus{ServerName: srv.Name}
		if !ok {
			st.Status = "initializing"
			statuses = append(statuses, st)
			continue
		}
		switch info.State {
		case domain.StateReady:
			st.Status = "connected"
		case domain.StateAwaitingOAuth:
			st.Status = "auth_required"
			st.Challenge = &auth.ChallengeInfo{AuthorizationURL: info.AuthURL}
		case domain.StateFailed:
			st.Status = "error"
			if info.Err != nil {
				st.Error = mcpstrings.TruncateDescription(info.Err.Error(), mcpstrings.DefaultDescriptionMaxLen)
			}
		case domain.StateCancelled:
			st.Status = "disconnected"
		default:
			st.Status = "initializing"
		}
		statuses = append(statuses, st)
	}
	return statuses, nil
}

// Initialize returns the aggregated instructions string for the union of
// this session's filtered Ready servers.
func (s *Session) Initialize() (string, error) {
	view, err := s.View()
	if err != nil {
		return "", err
	}

	instrByServer := map[string]string{}
	if s.instrStore != nil {
		for _, srv := range view {
			if instr, ok := s.instrStore.Get(srv.Name); ok {
				instrByServer[srv.Name] = instr
			}
		}
	}

	if s.renderer == nil {
		return "", nil
	}
	return s.renderer.Render("", s.Options.filterSpec(), view, len(view), s.toolPattern, "", "", instrByServer, s.resolvePreset), nil
}

// ListTools returns the namespaced tool list across the session's view, in
// server-lexicographic order, paginating one server per page when
// EnablePagination is set.
func (s *Session) ListTools(cursor string) ([]mcp.Tool, string, error) {
	view, err := s.View()
	if err != nil {
		return nil, "", err
	}
	sort.Slice(view, func(i, j int) bool { return view[i].Name < view[j].Name })

	if !s.Options.EnablePagination {
		var out []mcp.Tool
		for _, srv := range view {
			out = append(out, s.namespacedTools(srv.Name)...)
		}
		return out, "", nil
	}

	pc, err := decodeCursor(cursor)
	if err != nil {
		return nil, "", err
	}
	if pc.ServerIndex >= len(view) {
		return nil, "", nil
	}

	srv := view[pc.ServerIndex]
	tools := s.namespacedTools(srv.Name)

	next := ""
	if pc.ServerIndex+1 < len(view) {
		next = encodeCursor(pageCursor{ServerIndex: pc.ServerIndex + 1})
	}
	return tools, next, nil
}

func (s *Session) namespacedTools(server string) []mcp.Tool {
	raw := s.conn.CachedTools(server)
	out := make([]mcp.Tool, len(raw))
	for i, t := range raw {
		t.Name = s.Names.ExposedName(server, t.Name, ItemTool)
		out[i] = t
	}
	return out
}

// ListResources mirrors ListTools for resources, rewriting URIs instead of
// names.
func (s *Session) ListResources(cursor string) ([]mcp.Resource, string, error) {
	view, err := s.View()
	if err != nil {
		return nil, "", err
	}
	sort.Slice(view, func(i, j int) bool { return view[i].Name < view[j].Name })

	if !s.Options.EnablePagination {
		var out []mcp.Resource
		for _, srv := range view {
			out = append(out, s.namespacedResources(srv.Name)...)
		}
		return out, "", nil
	}

	pc, err := decodeCursor(cursor)
	if err != nil {
		return nil, "", err
	}
	if pc.ServerIndex >= len(view) {
		return nil, "", nil
	}
	srv := view[pc.ServerIndex]
	resources := s.namespacedResources(srv.Name)
	next := ""
	if pc.ServerIndex+1 < len(view) {
		next = encodeCursor(pageCursor{ServerIndex: pc.ServerIndex + 1})
	}
	return resources, next, nil
}

func (s *Session) namespacedResources(server string) []mcp.Resource {
	raw := s.conn.CachedResources(server)
	out := make([]mcp.Resource, len(raw))
	for i, r := range raw {
		r.URI = s.Names.ExposedResourceURI(server, r.URI)
		out[i] = r
	}
	return out
}

// ListPrompts mirrors ListTools for prompts.
func (s *Session) ListPrompts(cursor string) ([]mcp.Prompt, string, error) {
	view, err := s.View()
	if err != nil {
		return nil, "", err
	}
	sort.Slice(view, func(i, j int) bool { return view[i].Name < view[j].Name })

	if !s.Options.EnablePagination {
		var out []mcp.Prompt
		for _, srv := range view {
			out = append(out, s.namespacedPrompts(srv.Name)...)
		}
		return out, "", nil
	}

	pc, err := decodeCursor(cursor)
	if err != nil {
		return nil, "", err
	}
	if pc.ServerIndex >= len(view) {
		return nil, "", nil
	}
	srv := view[pc.ServerIndex]
	prompts := s.namespacedPrompts(srv.Name)
	next := ""
	if pc.ServerIndex+1 < len(view) {
		next = encodeCursor(pageCursor{ServerIndex: pc.ServerIndex + 1})
	}
	return prompts, next, nil
}

func (s *Session) namespacedPrompts(server string) []mcp.Prompt {
	raw := s.conn.CachedPrompts(server)
	out := make([]mcp.Prompt, len(raw))
	for i, p := range raw {
		p.Name = s.Names.ExposedName(server, p.Name, ItemPrompt)
		out[i] = p
	}
	return out
}

// resolveTargetServer looks up the owning server for a namespaced name and
// confirms it is both in the session's current view and Ready: unknown
// name -> MethodNotFound, not-Ready -> ServiceUnavailable.
func (s *Session) resolveTargetServer(exposedName string) (server, original string, err error) {
	server, original, _, ok := s.Names.ResolveName(exposedName)
	if !ok {
		return "", "", domain.NewError(domain.KindMethodNotFound, unknownNameError(exposedName).Error())
	}

	view, verr := s.View()
	if verr != nil {
		return "", "", verr
	}
	visible := false
	for _, srv := range view {
		if srv.Name == server {
			visible = true
			break
		}
	}
	if !visible {
		return "", "", domain.NewError(domain.KindServiceUnavail, "server not ready").WithServer(server)
	}
	return server, original, nil
}

// CallTool parses a namespaced tool name, routes to the owning server, and
// forwards the call unmodified except for the stripped name.
func (s *Session) CallTool(ctx context.Context, exposedName string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	server, original, err := s.resolveTargetServer(exposedName)
	if err != nil {
		return nil, err
	}
	client, ok := s.conn.GetClient(server)
	if !ok {
		return nil, domain.NewError(domain.KindServiceUnavail, "server not connected").WithServer(server)
	}
	result, err := client.CallTool(ctx, original, args)
	if err != nil {
		return nil, domain.NewError(domain.KindTransport, err.Error()).WithServer(server)
	}
	return result, nil
}

// GetPrompt parses a namespaced prompt name and routes to the owning server.
func (s *Session) GetPrompt(ctx context.Context, exposedName string, args map[string]interface{}) (*mcp.GetPromptResult, error) {
	server, original, err := s.resolveTargetServer(exposedName)
	if err != nil {
		return nil, err
	}
	client, ok := s.conn.GetClient(server)
	if !ok {
		return nil, domain.NewError(domain.KindServiceUnavail, "server not connected").WithServer(server)
	}
	result, err := client.GetPrompt(ctx, original, args)
	if err != nil {
		return nil, domain.NewError(domain.KindTransport, err.Error()).WithServer(server)
	}
	return result, nil
}

// ReadResource parses a namespaced resource URI and routes to the owning
// server.
func (s *Session) ReadResource(ctx context.Context, exposedURI string) (*mcp.ReadResourceResult, error) {
	server, uri, ok := s.Names.ResolveResourceURI(exposedURI)
	if !ok {
		return nil, domain.NewError(domain.KindMethodNotFound, unknownNameError(exposedURI).Error())
	}

	view, err := s.View()
	if err != nil {
		return nil, err
	}
	visible := false
	for _, srv := range view {
		if srv.Name == server {
			visible = true
			break
		}
	}
	if !visible {
		return nil, domain.NewError(domain.KindServiceUnavail, "server not ready").WithServer(server)
	}

	client, ok := s.conn.GetClient(server)
	if !ok {
		return nil, domain.NewError(domain.KindServiceUnavail, "server not connected").WithServer(server)
	}
	result, err := client.ReadResource(ctx, uri)
	if err != nil {
		return nil, domain.NewError(domain.KindTransport, err.Error()).WithServer(server)
	}
	return result, nil
}

// Ping replies locally without contacting any outbound server.
func (s *Session) Ping(context.Context) error {
	return nil
}
