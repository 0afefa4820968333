package session

import (
	"context"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcpmux/internal/domain"
	"mcpmux/internal/instructions"
	"mcpmux/internal/loadstate"
	"mcpmux/internal/outbound"
	"mcpmux/pkg/auth"
)

type fakeClient struct {
	tools      []mcp.Tool
	resources  []mcp.Resource
	prompts    []mcp.Prompt
	calledTool string
	calledArgs map[string]interface{}
	callErr    error
}

func (f *fakeClient) Connect(context.Context) error { return nil }
func (f *fakeClient) Close() error                  { return nil }
func (f *fakeClient) ListTools(context.Context) ([]mcp.Tool, error) {
	return f.tools, nil
}
func (f *fakeClient) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	f.calledTool = name
	f.calledArgs = args
	if f.callErr != nil {
		return nil, f.callErr
	}
	return &mcp.CallToolResult{}, nil
}
func (f *fakeClient) ListResources(context.Context) ([]mcp.Resource, error) { return f.resources, nil }
func (f *fakeClient) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	return &mcp.ReadResourceResult{}, nil
}
func (f *fakeClient) ListPrompts(context.Context) ([]mcp.Prompt, error) { return f.prompts, nil }
func (f *fakeClient) GetPrompt(ctx context.Context, name string, args map[string]interface{}) (*mcp.GetPromptResult, error) {
	f.calledTool = name
	return &mcp.GetPromptResult{}, nil
}
func (f *fakeClient) Ping(context.Context) error                       { return nil }
func (f *fakeClient) Instructions() string                            { return "" }
func (f *fakeClient) OnNotification(func(mcp.JSONRPCNotification))    {}

func newTestSession(t *testing.T, descs []domain.ServerDescriptor, readyServers []string, opts Options) (*Session, *outbound.Manager, *fakeClient) {
	t.Helper()

	tracker := loadstate.New()
	for _, d := range descs {
		tracker.Init(d.Name)
	}
	for _, name := range readyServers {
		tracker.StartLoading(name)
		tracker.Ready(name)
	}

	conn := outbound.New()
	fc := &fakeClient{
		tools:     []mcp.Tool{{Name: "echo"}},
		resources: []mcp.Resource{{URI: "file:///a"}},
		prompts:   []mcp.Prompt{{Name: "greeting"}},
	}
	clients := map[string]outbound.Client{}
	transports := map[string]domain.ServerDescriptor{}
	for _, d := range descs {
		clients[d.Name] = fc
		transports[d.Name] = d
	}
	conn.UpdateClientsAndTransports(clients, transports)
	for _, name := range readyServers {
		conn.RefreshCaches(context.Background(), name)
	}

	servers := func() []domain.ServerDescriptor { return descs }

	sess := New("sess-1", opts, servers, tracker, conn, nil, instructions.New(), instructions.NewRenderer(0), "")
	return sess, conn, fc
}

func TestViewFiltersDisabledAndNotReady(t *testing.T) {
	descs := []domain.ServerDescriptor{
		{Name: "alpha", Tags: []string{"x"}},
		{Name: "beta", Disabled: true},
		{Name: "gamma"},
	}
	sess, _, _ := newTestSession(t, descs, []string{"alpha"}, Options{})

	view, err := sess.View()
	require.NoError(t, err)
	require.Len(t, view, 1)
	assert.Equal(t, "alpha", view[0].Name)
}

func TestViewAppliesTagFilter(t *testing.T) {
	descs := []domain.ServerDescriptor{
		{Name: "alpha", Tags: []string{"prod"}},
		{Name: "beta", Tags: []string{"dev"}},
	}
	sess, _, _ := newTestSession(t, descs, []string{"alpha", "beta"}, Options{
		TagFilterMode: domain.FilterModeSimpleOr,
		Tags:          []string{"prod"},
	})

	view, err := sess.View()
	require.NoError(t, err)
	require.Len(t, view, 1)
	assert.Equal(t, "alpha", view[0].Name)
}

func TestViewEmptyFilterIsNotAnError(t *testing.T) {
	descs := []domain.ServerDescriptor{{Name: "alpha", Tags: []string{"prod"}}}
	sess, _, _ := newTestSession(t, descs, []string{"alpha"}, Options{
		TagFilterMode: domain.FilterModeSimpleOr,
		Tags:          []string{"nonexistent"},
	})

	view, err := sess.View()
	require.NoError(t, err)
	assert.Empty(t, view)
}

func TestListToolsNamespacesAcrossServers(t *testing.T) {
	descs := []domain.ServerDescriptor{{Name: "alpha"}, {Name: "beta"}}
	sess, _, _ := newTestSession(t, descs, []string{"alpha", "beta"}, Options{})

	tools, cursor, err := sess.ListTools("")
	require.NoError(t, err)
	assert.Empty(t, cursor)
	require.Len(t, tools, 2)
	assert.Equal(t, "alpha_1mcp_echo", tools[0].Name)
	assert.Equal(t, "beta_1mcp_echo", tools[1].Name)
}

func TestListToolsPaginatesOneServerPerPage(t *testing.T) {
	descs := []domain.ServerDescriptor{{Name: "alpha"}, {Name: "beta"}}
	sess, _, _ := newTestSession(t, descs, []string{"alpha", "beta"}, Options{EnablePagination: true})

	tools, cursor, err := sess.ListTools("")
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "alpha_1mcp_echo", tools[0].Name)
	require.NotEmpty(t, cursor)

	tools2, cursor2, err := sess.ListTools(cursor)
	require.NoError(t, err)
	require.Len(t, tools2, 1)
	assert.Equal(t, "beta_1mcp_echo", tools2[0].Name)
	assert.Empty(t, cursor2)
}

func TestListResourcesNamespacesURI(t *testing.T) {
	descs := []domain.ServerDescriptor{{Name: "alpha"}}
	sess, _, _ := newTestSession(t, descs, []string{"alpha"}, Options{})

	resources, _, err := sess.ListResources("")
	require.NoError(t, err)
	require.Len(t, resources, 1)
	assert.Equal(t, "alpha/file:///a", resources[0].URI)
}

func TestCallToolUnknownNameReturnsMethodNotFound(t *testing.T) {
	descs := []domain.ServerDescriptor{{Name: "alpha"}}
	sess, _, _ := newTestSession(t, descs, []string{"alpha"}, Options{})

	_, err := sess.CallTool(context.Background(), "does_not_exist", nil)
	require.Error(t, err)
	assert.Equal(t, domain.KindMethodNotFound, domain.Kind(err))
}

func TestCallToolServerNotReadyReturnsServiceUnavailable(t *testing.T) {
	descs := []domain.ServerDescriptor{{Name: "alpha"}}
	sess, _, _ := newTestSession(t, descs, nil, Options{}) // alpha never becomes Ready

	// Manually register a namespaced name as if discovered earlier, since
	// ListTools would also return nothing for a non-Ready server.
	exposed := sess.Names.ExposedName("alpha", "echo", ItemTool)

	_, err := sess.CallTool(context.Background(), exposed, nil)
	require.Error(t, err)
	assert.Equal(t, domain.KindServiceUnavail, domain.Kind(err))
}

func TestCallToolForwardsToOwningServer(t *testing.T) {
	descs := []domain.ServerDescriptor{{Name: "alpha"}, {Name: "beta"}}
	sess, _, fc := newTestSession(t, descs, []string{"alpha", "beta"}, Options{})

	tools, _, err := sess.ListTools("")
	require.NoError(t, err)
	require.NotEmpty(t, tools)

	_, err = sess.CallTool(context.Background(), "beta_1mcp_echo", map[string]interface{}{"x": 1})
	require.NoError(t, err)
	assert.Equal(t, "echo", fc.calledTool)
	assert.Equal(t, 1, fc.calledArgs["x"])
}

func TestInitializeRendersAggregatedInstructions(t *testing.T) {
	descs := []domain.ServerDescriptor{{Name: "alpha"}}
	sess, _, _ := newTestSession(t, descs, []string{"alpha"}, Options{})
	sess.instrStore.Set("alpha", "Use the echo tool wisely.")

	out, err := sess.Initialize()
	require.NoError(t, err)
	assert.Contains(t, out, "alpha")
	assert.Contains(t, out, "Use the echo tool wisely.")
}

func TestStatusReportsConnectedAndAwaitingOAuth(t *testing.T) {
	descs := []domain.ServerDescriptor{{Name: "alpha"}, {Name: "beta"}}
	sess, _, _ := newTestSession(t, descs, []string{"alpha"}, Options{})

	tracker := sess.tracker
	tracker.StartLoading("beta")
	tracker.AwaitingOAuth("beta", "https://idp.example.com/authorize")

	statuses, err := sess.Status()
	require.NoError(t, err)
	require.Len(t, statuses, 2)

	byName := map[string]auth.ServerStatus{}
	for _, st := range statuses {
		byName[st.ServerName] = st
	}
	assert.Equal(t, "connected", byName["alpha"].Status)
	assert.Equal(t, "auth_required", byName["beta"].Status)
	require.NotNil(t, byName["beta"].Challenge)
	assert.Equal(t, "https://idp.example.com/authorize", byName["beta"].Challenge.AuthorizationURL)
}

func TestPingReturnsNil(t *testing.T) {
	sess, _, _ := newTestSession(t, nil, nil, Options{})
	assert.NoError(t, sess.Ping(context.Background()))
}
