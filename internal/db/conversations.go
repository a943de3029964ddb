// Package db provides SurrealDB query functions for conversations and messages.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/fkaule/docpilot/internal/models"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// QueryCreateConversation creates a conversation for an account and user.
// parentID, when non-nil, nests the conversation under an existing one.
func (c *Client) QueryCreateConversation(ctx context.Context, accountID, userID string, parentID *string) (*models.Conversation, error) {
	sql := `
		CREATE conversation SET
			account = type::record("account", $account),
			user_id = $user,
			parent = IF $parent THEN type::record("conversation", $parent) ELSE NONE END
		RETURN AFTER
	`

	results, err := surrealdb.Query[[]models.Conversation](ctx, c.db, sql, map[string]any{
		"account": accountID,
		"user":    userID,
		"parent":  parentID,
	})
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("create conversation: no result returned")
	}
	return &(*results)[0].Result[0], nil
}

// QueryGetConversation retrieves a conversation by ID.
// Returns nil if not found.
func (c *Client) QueryGetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	results, err := surrealdb.Query[[]models.Conversation](ctx, c.db, `
		SELECT * FROM type::record("conversation", $id)
	`, map[string]any{"id": id})

	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	return &(*results)[0].Result[0], nil
}

// QuerySetGenerating flips the conversation's generating flag. The flag is
// the cancellation point for an in-flight completion.
func (c *Client) QuerySetGenerating(ctx context.Context, id string, generating bool) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("conversation", $id) SET
			generating = $generating,
			updated_at = time::now()
	`, map[string]any{"id": id, "generating": generating})
	if err != nil {
		return fmt.Errorf("set generating: %w", wrapQueryError(err))
	}
	return nil
}

// QueryUpdateConversationParams merges model/generation parameter defaults
// onto the conversation. Only the keys present in params are touched.
func (c *Client) QueryUpdateConversationParams(ctx context.Context, id string, params map[string]any) (*models.Conversation, error) {
	results, err := surrealdb.Query[[]models.Conversation](ctx, c.db, `
		UPDATE type::record("conversation", $id) MERGE $params RETURN AFTER
	`, map[string]any{"id": id, "params": params})
	if err != nil {
		return nil, fmt.Errorf("update conversation params: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("update conversation params: %w", ErrNotFound)
	}
	return &(*results)[0].Result[0], nil
}

// QueryCreateMessage appends a message to a conversation. Messages are
// created unsealed (done=false) and sealed via QuerySealMessage.
func (c *Client) QueryCreateMessage(ctx context.Context, conversationID, role, content string, metadata map[string]any) (*models.Message, error) {
	sql := `
		CREATE message SET
			conversation = type::record("conversation", $conversation),
			role = $role,
			content = $content,
			metadata = $metadata
		RETURN AFTER
	`

	results, err := surrealdb.Query[[]models.Message](ctx, c.db, sql, map[string]any{
		"conversation": conversationID,
		"role":         role,
		"content":      content,
		"metadata":     metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("create message: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("create message: no result returned")
	}
	return &(*results)[0].Result[0], nil
}

// QueryUpdateMessageContent replaces an unsealed message's content, used
// while streaming deltas into the tail assistant message.
func (c *Client) QueryUpdateMessageContent(ctx context.Context, id, content string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("message", $id) SET content = $content
	`, map[string]any{"id": id, "content": content})
	if err != nil {
		return fmt.Errorf("update message content: %w", wrapQueryError(err))
	}
	return nil
}

// QuerySealMessage marks a message done and records the chunks that grounded
// it. A sealed message is immutable.
func (c *Client) QuerySealMessage(ctx context.Context, id string, similarChunkIDs []surrealmodels.RecordID) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("message", $id) SET
			done = true,
			similar_chunk_ids = $chunks
	`, map[string]any{"id": id, "chunks": similarChunkIDs})
	if err != nil {
		return fmt.Errorf("seal message: %w", wrapQueryError(err))
	}
	return nil
}

// QueryListMessages returns a conversation's messages in creation order.
func (c *Client) QueryListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	results, err := surrealdb.Query[[]models.Message](ctx, c.db, `
		SELECT * FROM message
		WHERE conversation = type::record("conversation", $id)
		ORDER BY created_at ASC
	`, map[string]any{"id": conversationID})
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []models.Message{}, nil
	}
	return (*results)[0].Result, nil
}

// QueryUnsealedAssistant returns the conversation's unsealed assistant
// message, or nil. At most one exists at a time.
func (c *Client) QueryUnsealedAssistant(ctx context.Context, conversationID string) (*models.Message, error) {
	results, err := surrealdb.Query[[]models.Message](ctx, c.db, `
		SELECT * FROM message
		WHERE conversation = type::record("conversation", $id)
			AND role = "assistant"
			AND done = false
		ORDER BY created_at DESC
		LIMIT 1
	`, map[string]any{"id": conversationID})
	if err != nil {
		return nil, fmt.Errorf("unsealed assistant: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	return &(*results)[0].Result[0], nil
}

// QueryUserMessagesSince returns the conversation's user messages created at
// or after the given instant, oldest first. Used to reconcile duplicate user
// turns created by the provider during a completion.
func (c *Client) QueryUserMessagesSince(ctx context.Context, conversationID string, since time.Time) ([]models.Message, error) {
	results, err := surrealdb.Query[[]models.Message](ctx, c.db, `
		SELECT * FROM message
		WHERE conversation = type::record("conversation", $id)
			AND role = "user"
			AND created_at >= $since
		ORDER BY created_at ASC
	`, map[string]any{"id": conversationID, "since": since})
	if err != nil {
		return nil, fmt.Errorf("user messages since: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []models.Message{}, nil
	}
	return (*results)[0].Result, nil
}

// QueryDeleteMessage removes a message, used to retract stale placeholders.
func (c *Client) QueryDeleteMessage(ctx context.Context, id string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		DELETE type::record("message", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return fmt.Errorf("delete message: %w", wrapQueryError(err))
	}
	return nil
}
