// Package client provides an HTTP client for the docpilot server API.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// Client talks to the docpilot REST API.
type Client struct {
	baseURL    string
	token      string
	account    string
	httpClient *http.Client
}

// New creates an API client.
// An empty baseURL falls back to DOCPILOT_SERVER_URL, then localhost:8088.
// Token and account come from DOCPILOT_API_TOKEN / DOCPILOT_ACCOUNT unless
// set explicitly via the option setters.
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("DOCPILOT_SERVER_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:8088"
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	timeout := 10 * time.Minute // conversion and batch ingest can run long
	if t := os.Getenv("DOCPILOT_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		baseURL:    baseURL,
		token:      os.Getenv("DOCPILOT_API_TOKEN"),
		account:    os.Getenv("DOCPILOT_ACCOUNT"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// WithToken overrides the bearer token.
func (c *Client) WithToken(token string) *Client {
	c.token = token
	return c
}

// WithAccount overrides the tenant account.
func (c *Client) WithAccount(account string) *Client {
	c.account = account
	return c
}

// apiError is the server's error envelope.
type apiError struct {
	Error string `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, payload, result any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server error (%s): %s", resp.Status, apiErr.Error)
		}
		return fmt.Errorf("server error: %s - %s", resp.Status, string(data))
	}

	if result != nil && len(data) > 0 {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.account != "" {
		req.Header.Set("X-Account-ID", c.account)
	}
}

// Source mirrors the server's source representation.
type Source struct {
	ID        any            `json:"id"`
	Kind      string         `json:"kind"`
	Title     string         `json:"title"`
	URL       *string        `json:"url,omitempty"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// SourceRequest is the payload for creating a source.
type SourceRequest struct {
	Kind       string         `json:"kind"`
	Title      string         `json:"title,omitempty"`
	URL        string         `json:"url,omitempty"`
	Content    string         `json:"content,omitempty"`
	FileName   string         `json:"file_name,omitempty"`
	FileBase64 string         `json:"file_base64,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// CreateSourceResult is the server's create-source response.
type CreateSourceResult struct {
	Source Source `json:"source"`
	Chunks int    `json:"chunks"`
}

// CreateSource ingests a single source synchronously.
func (c *Client) CreateSource(ctx context.Context, req SourceRequest) (*CreateSourceResult, error) {
	var result CreateSourceResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/sources", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListSources returns the account's sources.
func (c *Client) ListSources(ctx context.Context) ([]Source, error) {
	var sources []Source
	if err := c.do(ctx, http.MethodGet, "/api/v1/sources", nil, &sources); err != nil {
		return nil, err
	}
	return sources, nil
}

// GetSource retrieves a single source including its content.
func (c *Client) GetSource(ctx context.Context, id string) (*Source, error) {
	var source Source
	if err := c.do(ctx, http.MethodGet, "/api/v1/sources/"+id, nil, &source); err != nil {
		return nil, err
	}
	return &source, nil
}

// UpdateSourceContent replaces a source's content and re-chunks it.
func (c *Client) UpdateSourceContent(ctx context.Context, id, content string) (*CreateSourceResult, error) {
	var result CreateSourceResult
	payload := map[string]string{"content": content}
	if err := c.do(ctx, http.MethodPut, "/api/v1/sources/"+id+"/content", payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DeleteSource removes a source and its chunks.
func (c *Client) DeleteSource(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/sources/"+id, nil, nil)
}

// Job mirrors the server's job view.
type Job struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"`
	Status      string     `json:"status"`
	Progress    int        `json:"progress"`
	Total       int        `json:"total"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Result      *JobResult `json:"result,omitempty"`
}

// JobResult summarizes a completed ingestion job.
type JobResult struct {
	SourcesCreated int      `json:"sources_created"`
	ChunksCreated  int      `json:"chunks_created"`
	SourceIDs      []string `json:"source_ids,omitempty"`
	Errors         []string `json:"errors,omitempty"`
}

// IngestAsync starts a background ingestion job for multiple sources.
func (c *Client) IngestAsync(ctx context.Context, sources []SourceRequest) (*Job, error) {
	var job Job
	payload := map[string]any{"sources": sources}
	if err := c.do(ctx, http.MethodPost, "/api/v1/ingest", payload, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// GetJob retrieves a job by ID.
func (c *Client) GetJob(ctx context.Context, id string) (*Job, error) {
	var job Job
	if err := c.do(ctx, http.MethodGet, "/api/v1/jobs/"+id, nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// ListJobs returns known jobs, newest first.
func (c *Client) ListJobs(ctx context.Context) ([]Job, error) {
	var jobs []Job
	if err := c.do(ctx, http.MethodGet, "/api/v1/jobs", nil, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// Conversation mirrors the server's conversation representation.
type Conversation struct {
	ID any `json:"id"`
}

// CreateConversation starts a new conversation.
func (c *Client) CreateConversation(ctx context.Context, userID string) (*Conversation, error) {
	var conversation Conversation
	payload := map[string]any{"user_id": userID}
	if err := c.do(ctx, http.MethodPost, "/api/v1/conversations", payload, &conversation); err != nil {
		return nil, err
	}
	return &conversation, nil
}

// StopConversation cancels the conversation's in-flight completion.
func (c *Client) StopConversation(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/conversations/"+id+"/stop", struct{}{}, nil)
}

// completionChunk is one streamed chat.completion.chunk frame.
type completionChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	ConversationID string `json:"conversation_id"`
}

// CompleteStream sends a chat completion request and streams answer deltas to
// onDelta. Returns the conversation ID for follow-up turns.
func (c *Client) CompleteStream(ctx context.Context, conversationID, question, model string, onDelta func(delta string) error) (string, error) {
	payload := map[string]any{
		"model":  model,
		"stream": true,
		"messages": []map[string]string{
			{"role": "user", "content": question},
		},
	}
	if conversationID != "" {
		payload["conversation_id"] = conversationID
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/completions", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("server error: %s - %s", resp.Status, string(body))
	}

	returnedConversation := conversationID
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			break
		}

		var chunk completionChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue
		}
		if chunk.ConversationID != "" {
			returnedConversation = chunk.ConversationID
		}
		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				if err := onDelta(choice.Delta.Content); err != nil {
					return returnedConversation, err
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return returnedConversation, fmt.Errorf("read stream: %w", err)
	}

	return returnedConversation, nil
}

// SearchResult is one retrieved chunk.
type SearchResult struct {
	Content  string         `json:"content"`
	Distance float64        `json:"distance"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Search retrieves grounding chunks for a query.
func (c *Client) Search(ctx context.Context, query string) ([]SearchResult, error) {
	var result struct {
		Chunks []SearchResult `json:"chunks"`
	}
	path := "/api/v1/search?q=" + strings.ReplaceAll(query, " ", "+")
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result.Chunks, nil
}

// ToolServer mirrors the server's tool server representation.
type ToolServer struct {
	ID        any    `json:"id"`
	Name      string `json:"name"`
	Transport string `json:"transport"`
	Status    string `json:"status"`
}

// ToolServerRequest is the payload for registering a tool server.
type ToolServerRequest struct {
	Name      string            `json:"name"`
	Transport string            `json:"transport"`
	Command   string            `json:"command,omitempty"`
	Args      []string          `json:"args,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
	Endpoint  string            `json:"endpoint,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	Token     string            `json:"token,omitempty"`
	APIKey    string            `json:"api_key,omitempty"`
}

// CreateToolServer registers a tool server.
func (c *Client) CreateToolServer(ctx context.Context, req ToolServerRequest) (*ToolServer, error) {
	var server ToolServer
	if err := c.do(ctx, http.MethodPost, "/api/v1/toolservers", req, &server); err != nil {
		return nil, err
	}
	return &server, nil
}

// ListToolServers returns the account's registered tool servers.
func (c *Client) ListToolServers(ctx context.Context) ([]ToolServer, error) {
	var servers []ToolServer
	if err := c.do(ctx, http.MethodGet, "/api/v1/toolservers", nil, &servers); err != nil {
		return nil, err
	}
	return servers, nil
}

// ConnectToolServer opens the server's MCP session.
func (c *Client) ConnectToolServer(ctx context.Context, id string) (map[string]any, error) {
	var result map[string]any
	if err := c.do(ctx, http.MethodPost, "/api/v1/toolservers/"+id+"/connect", struct{}{}, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// DisconnectToolServer closes the server's MCP session.
func (c *Client) DisconnectToolServer(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/toolservers/"+id+"/disconnect", struct{}{}, nil)
}

// DeleteToolServer removes a tool server and its bindings.
func (c *Client) DeleteToolServer(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/toolservers/"+id, nil, nil)
}

// BindToolServer enables or disables a tool server for a conversation.
func (c *Client) BindToolServer(ctx context.Context, conversationID, serverID string, enabled bool) error {
	payload := map[string]bool{"enabled": enabled}
	return c.do(ctx, http.MethodPost, "/api/v1/conversations/"+conversationID+"/toolservers/"+serverID, payload, nil)
}

// OperationStats holds timing and token aggregates for one operation type.
type OperationStats struct {
	Count       int64   `json:"count"`
	TotalTimeMs int64   `json:"total_time_ms"`
	AvgTimeMs   float64 `json:"avg_time_ms"`
	MinTimeMs   int64   `json:"min_time_ms"`
	MaxTimeMs   int64   `json:"max_time_ms"`

	TotalInputTokens  *int64   `json:"total_input_tokens,omitempty"`
	TotalOutputTokens *int64   `json:"total_output_tokens,omitempty"`
	AvgInputTokens    *float64 `json:"avg_input_tokens,omitempty"`
	AvgOutputTokens   *float64 `json:"avg_output_tokens,omitempty"`
	MinInputTokens    *int64   `json:"min_input_tokens,omitempty"`
	MaxInputTokens    *int64   `json:"max_input_tokens,omitempty"`
	MinOutputTokens   *int64   `json:"min_output_tokens,omitempty"`
	MaxOutputTokens   *int64   `json:"max_output_tokens,omitempty"`
}

// ServerStats mirrors the server's in-memory statistics snapshot.
type ServerStats struct {
	UptimeSeconds float64         `json:"uptime_seconds"`
	Embedding     *OperationStats `json:"embedding,omitempty"`
	LLMGenerate   *OperationStats `json:"llm_generate,omitempty"`
	LLMStream     *OperationStats `json:"llm_stream,omitempty"`
	GuardCheck    *OperationStats `json:"guard_check,omitempty"`
	ToolCall      *OperationStats `json:"tool_call,omitempty"`
	Conversion    *OperationStats `json:"conversion,omitempty"`
	DBQuery       *OperationStats `json:"db_query,omitempty"`
	DBSearch      *OperationStats `json:"db_search,omitempty"`
}

// Stats returns the server's runtime statistics snapshot.
func (c *Client) Stats(ctx context.Context) (*ServerStats, error) {
	var stats ServerStats
	if err := c.do(ctx, http.MethodGet, "/api/v1/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}
