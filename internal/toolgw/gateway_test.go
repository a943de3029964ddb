package toolgw

import (
	"context"
	"errors"
	"testing"

	"github.com/fkaule/docpilot/internal/models"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

type fakeSession struct {
	tools        []*mcp.Tool
	prompts      []*mcp.Prompt
	resources    []*mcp.Resource
	listErr      error
	callResult   *mcp.CallToolResult
	callErr      error
	lastCallName string
	lastCallArgs any
	closed       bool
}

func (f *fakeSession) ListTools(_ context.Context, _ *mcp.ListToolsParams) (*mcp.ListToolsResult, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return &mcp.ListToolsResult{Tools: f.tools}, nil
}

func (f *fakeSession) ListPrompts(_ context.Context, _ *mcp.ListPromptsParams) (*mcp.ListPromptsResult, error) {
	return &mcp.ListPromptsResult{Prompts: f.prompts}, nil
}

func (f *fakeSession) ListResources(_ context.Context, _ *mcp.ListResourcesParams) (*mcp.ListResourcesResult, error) {
	return &mcp.ListResourcesResult{Resources: f.resources}, nil
}

func (f *fakeSession) CallTool(_ context.Context, params *mcp.CallToolParams) (*mcp.CallToolResult, error) {
	f.lastCallName = params.Name
	f.lastCallArgs = params.Arguments
	if f.callErr != nil {
		return nil, f.callErr
	}
	return f.callResult, nil
}

func (f *fakeSession) Close() error {
	f.closed = true
	return nil
}

func testServer(id string) *models.ToolServer {
	return &models.ToolServer{
		ID:        surrealmodels.RecordID{Table: "tool_server", ID: id},
		Name:      "test-server",
		Transport: models.TransportStdio,
		Command:   "mcp-test",
		Status:    models.ToolServerDisconnected,
	}
}

func gatewayWith(sess session, dialErr error) *Gateway {
	g := New(nil)
	g.dial = func(_ context.Context, _ *models.ToolServer) (session, error) {
		if dialErr != nil {
			return nil, dialErr
		}
		return sess, nil
	}
	return g
}

func TestConnectSuccess(t *testing.T) {
	sess := &fakeSession{
		tools:     []*mcp.Tool{{Name: "read_file", Description: "Read a file"}},
		prompts:   []*mcp.Prompt{{Name: "summarize"}},
		resources: []*mcp.Resource{{Name: "docs", URI: "file:///docs"}},
	}
	g := gatewayWith(sess, nil)
	server := testServer("srv1")

	info := g.Connect(context.Background(), server)

	assert.Equal(t, models.ToolServerReady, info.Status)
	assert.Nil(t, info.LastError)
	assert.GreaterOrEqual(t, info.LatencyMs, int64(0))
	require.Len(t, info.Tools, 1)
	assert.Equal(t, "read_file", info.Tools[0].Name)
	require.Len(t, info.Prompts, 1)
	require.Len(t, info.Resources, 1)
	assert.Equal(t, "file:///docs", info.Resources[0].URI)

	assert.Equal(t, models.ToolServerReady, g.Status("srv1"))
	assert.Len(t, g.Tools("srv1"), 1)
}

func TestConnectDialFailure(t *testing.T) {
	g := gatewayWith(nil, errors.New("connection refused"))
	server := testServer("srv1")

	info := g.Connect(context.Background(), server)

	assert.Equal(t, models.ToolServerError, info.Status)
	require.NotNil(t, info.LastError)
	assert.Contains(t, *info.LastError, "connection refused")
	assert.Equal(t, models.ToolServerError, g.Status("srv1"))
	assert.Empty(t, g.Tools("srv1"))
}

func TestConnectListFailureClosesSession(t *testing.T) {
	sess := &fakeSession{listErr: errors.New("protocol error")}
	g := gatewayWith(sess, nil)

	info := g.Connect(context.Background(), testServer("srv1"))

	assert.Equal(t, models.ToolServerError, info.Status)
	assert.True(t, sess.closed)
}

func TestReconnectClosesPriorSession(t *testing.T) {
	first := &fakeSession{tools: []*mcp.Tool{{Name: "a"}}}
	second := &fakeSession{tools: []*mcp.Tool{{Name: "a"}, {Name: "b"}}}
	sessions := []session{first, second}

	g := New(nil)
	g.dial = func(_ context.Context, _ *models.ToolServer) (session, error) {
		sess := sessions[0]
		sessions = sessions[1:]
		return sess, nil
	}
	server := testServer("srv1")

	g.Connect(context.Background(), server)
	require.False(t, first.closed)

	info := g.Connect(context.Background(), server)

	assert.True(t, first.closed)
	assert.False(t, second.closed)
	assert.Equal(t, models.ToolServerReady, info.Status)
	assert.Len(t, g.Tools("srv1"), 2)
}

func TestReconnectDialFailureClosesPriorSession(t *testing.T) {
	first := &fakeSession{tools: []*mcp.Tool{{Name: "a"}}}
	dialErr := error(nil)

	g := New(nil)
	g.dial = func(_ context.Context, _ *models.ToolServer) (session, error) {
		if dialErr != nil {
			return nil, dialErr
		}
		return first, nil
	}
	server := testServer("srv1")

	g.Connect(context.Background(), server)
	require.Equal(t, models.ToolServerReady, g.Status("srv1"))

	dialErr = errors.New("connection refused")
	info := g.Connect(context.Background(), server)

	assert.True(t, first.closed)
	assert.Equal(t, models.ToolServerError, info.Status)
}

func TestConnectDisabledServer(t *testing.T) {
	g := gatewayWith(&fakeSession{}, nil)
	server := testServer("srv1")
	server.Status = models.ToolServerDisabled

	info := g.Connect(context.Background(), server)

	assert.Equal(t, models.ToolServerDisabled, info.Status)
	// Untouched servers report disconnected.
	assert.Equal(t, models.ToolServerDisconnected, g.Status("srv1"))
}

func TestDisconnect(t *testing.T) {
	sess := &fakeSession{tools: []*mcp.Tool{{Name: "a"}}}
	g := gatewayWith(sess, nil)

	g.Connect(context.Background(), testServer("srv1"))
	require.Equal(t, models.ToolServerReady, g.Status("srv1"))

	g.Disconnect("srv1")

	assert.Equal(t, models.ToolServerDisconnected, g.Status("srv1"))
	assert.True(t, sess.closed)
	assert.Empty(t, g.Tools("srv1"))
}

func TestListingsEmptyWhenNotReady(t *testing.T) {
	g := New(nil)

	assert.Empty(t, g.Tools("unknown"))
	assert.Empty(t, g.Prompts("unknown"))
	assert.Empty(t, g.Resources("unknown"))
}

func TestExecuteToolNotReady(t *testing.T) {
	g := New(nil)

	result := g.ExecuteTool(context.Background(), "srv1", "read_file", nil)

	assert.False(t, result.Success)
	assert.Equal(t, "Server not ready", result.Error)
}

func TestExecuteToolNotFound(t *testing.T) {
	sess := &fakeSession{tools: []*mcp.Tool{{Name: "read_file"}}}
	g := gatewayWith(sess, nil)
	g.Connect(context.Background(), testServer("srv1"))

	result := g.ExecuteTool(context.Background(), "srv1", "write_file", nil)

	assert.Equal(t, "Tool not found: write_file", result.Error)
}

func TestExecuteToolSuccess(t *testing.T) {
	sess := &fakeSession{
		tools: []*mcp.Tool{{Name: "read_file"}},
		callResult: &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: "file contents"}},
		},
	}
	g := gatewayWith(sess, nil)
	g.Connect(context.Background(), testServer("srv1"))

	result := g.ExecuteTool(context.Background(), "srv1", "read_file", map[string]any{"path": "/tmp/a"})

	assert.True(t, result.Success)
	assert.Equal(t, "file contents", result.Result)
	assert.Empty(t, result.Error)
	assert.Equal(t, "read_file", sess.lastCallName)
}

func TestExecuteToolServerReportedError(t *testing.T) {
	sess := &fakeSession{
		tools: []*mcp.Tool{{Name: "read_file"}},
		callResult: &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{&mcp.TextContent{Text: "permission denied"}},
		},
	}
	g := gatewayWith(sess, nil)
	g.Connect(context.Background(), testServer("srv1"))

	result := g.ExecuteTool(context.Background(), "srv1", "read_file", nil)

	assert.False(t, result.Success)
	assert.Equal(t, "permission denied", result.Error)
}

func TestExecuteToolTransportError(t *testing.T) {
	sess := &fakeSession{
		tools:   []*mcp.Tool{{Name: "read_file"}},
		callErr: errors.New("broken pipe"),
	}
	g := gatewayWith(sess, nil)
	g.Connect(context.Background(), testServer("srv1"))

	result := g.ExecuteTool(context.Background(), "srv1", "read_file", nil)

	assert.False(t, result.Success)
	assert.Equal(t, "broken pipe", result.Error)
}
