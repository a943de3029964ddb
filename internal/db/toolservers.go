// Package db provides SurrealDB query functions for tool servers and bindings.
package db

import (
	"context"
	"fmt"

	"github.com/fkaule/docpilot/internal/models"
	"github.com/surrealdb/surrealdb.go"
)

// QueryCreateToolServer registers a tool server. The (account, name) pair is
// unique; reusing a name returns ErrAlreadyExists.
func (c *Client) QueryCreateToolServer(ctx context.Context, in models.ToolServerInput) (*models.ToolServer, error) {
	status := models.ToolServerDisconnected
	if in.Disabled {
		status = models.ToolServerDisabled
	}

	sql := `
		CREATE tool_server SET
			account = type::record("account", $account),
			name = $name,
			transport = $transport,
			command = $command,
			args = $args,
			env = $env,
			endpoint = $endpoint,
			headers = $headers,
			token = $token,
			api_key = $api_key,
			status = $status
		RETURN AFTER
	`

	results, err := surrealdb.Query[[]models.ToolServer](ctx, c.db, sql, map[string]any{
		"account":   in.AccountID,
		"name":      in.Name,
		"transport": string(in.Transport),
		"command":   in.Command,
		"args":      in.Args,
		"env":       in.Env,
		"endpoint":  in.Endpoint,
		"headers":   in.Headers,
		"token":     in.Token,
		"api_key":   in.APIKey,
		"status":    string(status),
	})
	if err != nil {
		return nil, fmt.Errorf("create tool server: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("create tool server: no result returned")
	}
	return &(*results)[0].Result[0], nil
}

// QueryGetToolServer retrieves a tool server by ID.
// Returns nil if not found.
func (c *Client) QueryGetToolServer(ctx context.Context, id string) (*models.ToolServer, error) {
	results, err := surrealdb.Query[[]models.ToolServer](ctx, c.db, `
		SELECT * FROM type::record("tool_server", $id)
	`, map[string]any{"id": id})

	if err != nil {
		return nil, fmt.Errorf("get tool server: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	return &(*results)[0].Result[0], nil
}

// QueryGetToolServerByName retrieves a tool server by account-scoped name.
// Returns nil if not found.
func (c *Client) QueryGetToolServerByName(ctx context.Context, accountID, name string) (*models.ToolServer, error) {
	results, err := surrealdb.Query[[]models.ToolServer](ctx, c.db, `
		SELECT * FROM tool_server
		WHERE account = type::record("account", $account) AND name = $name
		LIMIT 1
	`, map[string]any{"account": accountID, "name": name})
	if err != nil {
		return nil, fmt.Errorf("get tool server by name: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	return &(*results)[0].Result[0], nil
}

// QueryListToolServers returns the account's tool servers.
func (c *Client) QueryListToolServers(ctx context.Context, accountID string) ([]models.ToolServer, error) {
	results, err := surrealdb.Query[[]models.ToolServer](ctx, c.db, `
		SELECT * FROM tool_server
		WHERE account = type::record("account", $account)
		ORDER BY name ASC
	`, map[string]any{"account": accountID})
	if err != nil {
		return nil, fmt.Errorf("list tool servers: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []models.ToolServer{}, nil
	}
	return (*results)[0].Result, nil
}

// QueryUpdateToolServerStatus records a state transition. A transition to
// ready also stamps last_connected_at.
func (c *Client) QueryUpdateToolServerStatus(
	ctx context.Context,
	id string,
	status models.ToolServerStatus,
	lastErr *string,
	latencyMs *int64,
) error {
	sql := `
		UPDATE type::record("tool_server", $id) SET
			status = $status,
			last_error = $last_error,
			latency_ms = $latency_ms
	`
	if status == models.ToolServerReady {
		sql += `, last_connected_at = time::now()`
	}

	_, err := surrealdb.Query[any](ctx, c.db, sql, map[string]any{
		"id":         id,
		"status":     string(status),
		"last_error": lastErr,
		"latency_ms": latencyMs,
	})
	if err != nil {
		return fmt.Errorf("update tool server status: %w", wrapQueryError(err))
	}
	return nil
}

// QueryUpdateToolServerCaches replaces the cached tool/prompt/resource
// listings collected on connect.
func (c *Client) QueryUpdateToolServerCaches(
	ctx context.Context,
	id string,
	tools []models.ToolDescriptor,
	prompts []models.PromptDescriptor,
	resources []models.ResourceDescriptor,
) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("tool_server", $id) SET
			tools_cache = $tools,
			prompts_cache = $prompts,
			resources_cache = $resources
	`, map[string]any{
		"id":        id,
		"tools":     tools,
		"prompts":   prompts,
		"resources": resources,
	})
	if err != nil {
		return fmt.Errorf("update tool server caches: %w", wrapQueryError(err))
	}
	return nil
}

// QueryDeleteToolServer removes a tool server and its bindings.
func (c *Client) QueryDeleteToolServer(ctx context.Context, id string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		DELETE tool_binding WHERE tool_server = type::record("tool_server", $id);
		DELETE type::record("tool_server", $id);
	`, map[string]any{"id": id})
	if err != nil {
		return fmt.Errorf("delete tool server: %w", wrapQueryError(err))
	}
	return nil
}

// QueryUpsertToolBinding enables or disables a tool server for a
// conversation, creating the binding on first use.
func (c *Client) QueryUpsertToolBinding(ctx context.Context, conversationID, serverID string, enabled bool) (*models.ToolBinding, error) {
	// Update first; the unique (conversation, tool_server) index makes the
	// create path race-safe enough for a second attempt by the caller.
	results, err := surrealdb.Query[[]models.ToolBinding](ctx, c.db, `
		UPDATE tool_binding SET enabled = $enabled
		WHERE conversation = type::record("conversation", $conversation)
			AND tool_server = type::record("tool_server", $server)
		RETURN AFTER
	`, map[string]any{
		"conversation": conversationID,
		"server":       serverID,
		"enabled":      enabled,
	})
	if err != nil {
		return nil, fmt.Errorf("upsert tool binding: %w", wrapQueryError(err))
	}
	if results != nil && len(*results) > 0 && len((*results)[0].Result) > 0 {
		return &(*results)[0].Result[0], nil
	}

	results, err = surrealdb.Query[[]models.ToolBinding](ctx, c.db, `
		CREATE tool_binding SET
			conversation = type::record("conversation", $conversation),
			tool_server = type::record("tool_server", $server),
			enabled = $enabled
		RETURN AFTER
	`, map[string]any{
		"conversation": conversationID,
		"server":       serverID,
		"enabled":      enabled,
	})
	if err != nil {
		return nil, fmt.Errorf("upsert tool binding: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("upsert tool binding: no result returned")
	}
	return &(*results)[0].Result[0], nil
}

// QueryListToolBindings returns the conversation's bindings. When
// enabledOnly is set, disabled bindings are filtered out.
func (c *Client) QueryListToolBindings(ctx context.Context, conversationID string, enabledOnly bool) ([]models.ToolBinding, error) {
	sql := `
		SELECT * FROM tool_binding
		WHERE conversation = type::record("conversation", $id)
	`
	if enabledOnly {
		sql += ` AND enabled = true`
	}

	results, err := surrealdb.Query[[]models.ToolBinding](ctx, c.db, sql, map[string]any{"id": conversationID})
	if err != nil {
		return nil, fmt.Errorf("list tool bindings: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []models.ToolBinding{}, nil
	}
	return (*results)[0].Result, nil
}

// QueryBumpToolCall increments a binding's call counter.
func (c *Client) QueryBumpToolCall(ctx context.Context, bindingID string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("tool_binding", $id) SET
			tool_call_count += 1,
			last_tool_call_at = time::now()
	`, map[string]any{"id": bindingID})
	if err != nil {
		return fmt.Errorf("bump tool call: %w", wrapQueryError(err))
	}
	return nil
}
