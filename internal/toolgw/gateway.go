// Package toolgw manages client connections to external MCP tool servers.
//
// Per-server state machine: disabled → disconnected → connecting →
// {ready, error}; ready and error return to disconnected on Disconnect.
// Tool failures are answers, not faults: ExecuteTool always returns a
// Result, never an error that would end the caller's turn.
package toolgw

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fkaule/docpilot/internal/models"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// session is the slice of mcp.ClientSession the gateway needs. Narrowed for
// test fakes.
type session interface {
	ListTools(ctx context.Context, params *mcp.ListToolsParams) (*mcp.ListToolsResult, error)
	ListPrompts(ctx context.Context, params *mcp.ListPromptsParams) (*mcp.ListPromptsResult, error)
	ListResources(ctx context.Context, params *mcp.ListResourcesParams) (*mcp.ListResourcesResult, error)
	CallTool(ctx context.Context, params *mcp.CallToolParams) (*mcp.CallToolResult, error)
	Close() error
}

type dialFunc func(ctx context.Context, server *models.ToolServer) (session, error)

// Result is the structured outcome of a tool execution.
type Result struct {
	Success bool   `json:"success,omitempty"`
	Result  string `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ConnectInfo is the snapshot produced by a connect attempt; callers persist
// it onto the tool server record.
type ConnectInfo struct {
	Status    models.ToolServerStatus
	LastError *string
	LatencyMs int64
	Tools     []models.ToolDescriptor
	Prompts   []models.PromptDescriptor
	Resources []models.ResourceDescriptor
}

type conn struct {
	session   session
	status    models.ToolServerStatus
	tools     []models.ToolDescriptor
	prompts   []models.PromptDescriptor
	resources []models.ResourceDescriptor
}

// Gateway tracks live MCP sessions keyed by tool server record ID.
type Gateway struct {
	mu     sync.Mutex
	conns  map[string]*conn
	dial   dialFunc
	logger *slog.Logger
}

// New creates an empty gateway.
func New(logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		conns:  make(map[string]*conn),
		dial:   defaultDial,
		logger: logger,
	}
}

// Status returns the in-memory connection state for a server. Servers the
// gateway has never touched report their stored status via the DB instead.
func (g *Gateway) Status(serverID string) models.ToolServerStatus {
	g.mu.Lock()
	defer g.mu.Unlock()

	if c, ok := g.conns[serverID]; ok {
		return c.status
	}
	return models.ToolServerDisconnected
}

// Connect opens a session to the server, caches its tool/prompt/resource
// listings and records the handshake latency. The returned snapshot reflects
// the resulting state; a failed attempt yields status error with the cause.
func (g *Gateway) Connect(ctx context.Context, server *models.ToolServer) ConnectInfo {
	serverID := models.MustRecordIDString(server.ID)

	if server.Status == models.ToolServerDisabled {
		msg := "server is disabled"
		return ConnectInfo{Status: models.ToolServerDisabled, LastError: &msg}
	}

	// A reconnect replaces the entry in conns; the old session must be
	// closed first or its transport (a subprocess, for stdio) leaks.
	g.Disconnect(serverID)
	g.setStatus(serverID, models.ToolServerConnecting)
	g.logger.Info("connecting tool server", "server", server.Name, "transport", server.Transport)

	start := time.Now()
	sess, err := g.dial(ctx, server)
	if err != nil {
		return g.fail(serverID, server.Name, fmt.Errorf("dial: %w", err))
	}

	tools, prompts, resources, err := listAll(ctx, sess)
	if err != nil {
		_ = sess.Close()
		return g.fail(serverID, server.Name, err)
	}
	latency := time.Since(start).Milliseconds()

	g.mu.Lock()
	g.conns[serverID] = &conn{
		session:   sess,
		status:    models.ToolServerReady,
		tools:     tools,
		prompts:   prompts,
		resources: resources,
	}
	g.mu.Unlock()

	g.logger.Info("tool server ready", "server", server.Name, "tools", len(tools), "latency_ms", latency)
	return ConnectInfo{
		Status:    models.ToolServerReady,
		LatencyMs: latency,
		Tools:     tools,
		Prompts:   prompts,
		Resources: resources,
	}
}

// Disconnect closes the session and returns the server to disconnected.
func (g *Gateway) Disconnect(serverID string) {
	g.mu.Lock()
	c, ok := g.conns[serverID]
	if ok {
		delete(g.conns, serverID)
	}
	g.mu.Unlock()

	if ok && c.session != nil {
		_ = c.session.Close()
	}
}

// Shutdown disconnects every server.
func (g *Gateway) Shutdown() {
	g.mu.Lock()
	conns := g.conns
	g.conns = make(map[string]*conn)
	g.mu.Unlock()

	for _, c := range conns {
		if c.session != nil {
			_ = c.session.Close()
		}
	}
}

// Tools returns the cached tool listing. A server that is not ready lists
// empty without error.
func (g *Gateway) Tools(serverID string) []models.ToolDescriptor {
	g.mu.Lock()
	defer g.mu.Unlock()

	if c, ok := g.conns[serverID]; ok && c.status == models.ToolServerReady {
		return c.tools
	}
	return nil
}

// Prompts returns the cached prompt listing, empty unless ready.
func (g *Gateway) Prompts(serverID string) []models.PromptDescriptor {
	g.mu.Lock()
	defer g.mu.Unlock()

	if c, ok := g.conns[serverID]; ok && c.status == models.ToolServerReady {
		return c.prompts
	}
	return nil
}

// Resources returns the cached resource listing, empty unless ready.
func (g *Gateway) Resources(serverID string) []models.ResourceDescriptor {
	g.mu.Lock()
	defer g.mu.Unlock()

	if c, ok := g.conns[serverID]; ok && c.status == models.ToolServerReady {
		return c.resources
	}
	return nil
}

// ExecuteTool invokes a tool on a ready server. All failure modes come back
// as Result values so the model loop can read them.
func (g *Gateway) ExecuteTool(ctx context.Context, serverID, name string, args map[string]any) Result {
	g.mu.Lock()
	c, ok := g.conns[serverID]
	if !ok || c.status != models.ToolServerReady {
		g.mu.Unlock()
		return Result{Error: "Server not ready"}
	}

	known := false
	for _, tool := range c.tools {
		if tool.Name == name {
			known = true
			break
		}
	}
	sess := c.session
	g.mu.Unlock()

	if !known {
		return Result{Error: fmt.Sprintf("Tool not found: %s", name)}
	}

	result, err := sess.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		g.logger.Warn("tool call failed", "tool", name, "error", err)
		return Result{Error: err.Error()}
	}

	text := contentText(result.Content)
	if result.IsError {
		return Result{Error: text}
	}
	return Result{Success: true, Result: text}
}

func (g *Gateway) setStatus(serverID string, status models.ToolServerStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if c, ok := g.conns[serverID]; ok {
		c.status = status
		return
	}
	g.conns[serverID] = &conn{status: status}
}

func (g *Gateway) fail(serverID, name string, err error) ConnectInfo {
	g.logger.Warn("tool server connect failed", "server", name, "error", err)

	g.mu.Lock()
	g.conns[serverID] = &conn{status: models.ToolServerError}
	g.mu.Unlock()

	msg := err.Error()
	return ConnectInfo{Status: models.ToolServerError, LastError: &msg}
}

// listAll collects the server's tool, prompt and resource listings. Prompt
// and resource listing failures are tolerated: many servers implement tools
// only.
func listAll(ctx context.Context, sess session) ([]models.ToolDescriptor, []models.PromptDescriptor, []models.ResourceDescriptor, error) {
	toolsResult, err := sess.ListTools(ctx, nil)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("list tools: %w", err)
	}

	var tools []models.ToolDescriptor
	for _, tool := range toolsResult.Tools {
		tools = append(tools, models.ToolDescriptor{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: schemaToMap(tool.InputSchema),
		})
	}

	var prompts []models.PromptDescriptor
	if promptsResult, err := sess.ListPrompts(ctx, nil); err == nil {
		for _, prompt := range promptsResult.Prompts {
			prompts = append(prompts, models.PromptDescriptor{
				Name:        prompt.Name,
				Description: prompt.Description,
			})
		}
	}

	var resources []models.ResourceDescriptor
	if resourcesResult, err := sess.ListResources(ctx, nil); err == nil {
		for _, resource := range resourcesResult.Resources {
			resources = append(resources, models.ResourceDescriptor{
				Name: resource.Name,
				URI:  resource.URI,
			})
		}
	}

	return tools, prompts, resources, nil
}

// schemaToMap converts a tool input schema to a plain map via JSON.
func schemaToMap(schema any) map[string]any {
	if schema == nil {
		return nil
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

// contentText flattens text content blocks into a single string.
func contentText(content []mcp.Content) string {
	var parts []string
	for _, item := range content {
		if text, ok := item.(*mcp.TextContent); ok {
			parts = append(parts, text.Text)
		}
	}
	return strings.Join(parts, "\n")
}
