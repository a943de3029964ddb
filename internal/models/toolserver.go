package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// ToolServerStatus is the connection state of a tool server.
//
// State machine: disabled → disconnected → connecting → {ready, error};
// ready and error transition back to disconnected on explicit disconnect.
type ToolServerStatus string

const (
	ToolServerDisabled     ToolServerStatus = "disabled"
	ToolServerDisconnected ToolServerStatus = "disconnected"
	ToolServerConnecting   ToolServerStatus = "connecting"
	ToolServerReady        ToolServerStatus = "ready"
	ToolServerError        ToolServerStatus = "error"
)

// TransportKind is how a tool server is reached.
type TransportKind string

const (
	TransportStdio      TransportKind = "stdio"
	TransportStreamable TransportKind = "streamable"
	TransportSSE        TransportKind = "sse"
)

// ToolDescriptor is a cached tool definition listed from a server.
type ToolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema,omitempty"`
}

// PromptDescriptor is a cached prompt definition listed from a server.
type PromptDescriptor struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// ResourceDescriptor is a cached resource definition listed from a server.
type ResourceDescriptor struct {
	Name string `json:"name"`
	URI  string `json:"uri"`
}

// ToolServer is a registered external tool endpoint.
type ToolServer struct {
	ID        surrealmodels.RecordID `json:"id"`
	Account   surrealmodels.RecordID `json:"account"`
	Name      string                 `json:"name"`
	Transport TransportKind          `json:"transport"`

	// stdio transport
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`

	// streamable / sse transports
	Endpoint string            `json:"endpoint,omitempty"`
	Headers  map[string]string `json:"headers,omitempty"`
	Token    string            `json:"token,omitempty"`
	APIKey   string            `json:"api_key,omitempty"`

	Status          ToolServerStatus     `json:"status"`
	LastError       *string              `json:"last_error,omitempty"`
	LatencyMs       *int64               `json:"latency_ms,omitempty"`
	Tools           []ToolDescriptor     `json:"tools_cache,omitempty"`
	Prompts         []PromptDescriptor   `json:"prompts_cache,omitempty"`
	Resources       []ResourceDescriptor `json:"resources_cache,omitempty"`
	LastConnectedAt *time.Time           `json:"last_connected_at,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
}

// ToolServerInput is the payload for registering a tool server.
type ToolServerInput struct {
	AccountID string            `json:"account_id"`
	Name      string            `json:"name"`
	Transport TransportKind     `json:"transport"`
	Command   string            `json:"command,omitempty"`
	Args      []string          `json:"args,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
	Endpoint  string            `json:"endpoint,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	Token     string            `json:"token,omitempty"`
	APIKey    string            `json:"api_key,omitempty"`
	Disabled  bool              `json:"disabled,omitempty"`
}

// ToolBinding associates a conversation with a tool server. Unique per
// (conversation, tool server) pair.
type ToolBinding struct {
	ID             surrealmodels.RecordID `json:"id"`
	Conversation   surrealmodels.RecordID `json:"conversation"`
	ToolServer     surrealmodels.RecordID `json:"tool_server"`
	Enabled        bool                   `json:"enabled"`
	ToolCallCount  int                    `json:"tool_call_count"`
	LastToolCallAt *time.Time             `json:"last_tool_call_at,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
}
