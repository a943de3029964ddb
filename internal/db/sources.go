// Package db provides SurrealDB query functions for source operations.
package db

import (
	"context"
	"fmt"

	"github.com/fkaule/docpilot/internal/models"
	"github.com/surrealdb/surrealdb.go"
)

// QueryEnsureAccount creates the tenant record if it does not already exist.
// Record links on source/chunk/conversation rows require the account row to
// be present.
func (c *Client) QueryEnsureAccount(ctx context.Context, accountID string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPSERT type::record("account", $id)
	`, map[string]any{"id": accountID})
	if err != nil {
		return fmt.Errorf("ensure account: %w", wrapQueryError(err))
	}
	return nil
}

// QueryCreateSource creates a source record.
func (c *Client) QueryCreateSource(ctx context.Context, in models.SourceInput) (*models.Source, error) {
	sql := `
		CREATE source SET
			account = type::record("account", $account),
			kind = $kind,
			title = $title,
			url = $url,
			content = $content,
			metadata = $metadata
		RETURN AFTER
	`

	results, err := surrealdb.Query[[]models.Source](ctx, c.db, sql, map[string]any{
		"account":  in.AccountID,
		"kind":     string(in.Kind),
		"title":    in.Title,
		"url":      in.URL,
		"content":  in.Content,
		"metadata": in.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("create source: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("create source: no result returned")
	}
	return &(*results)[0].Result[0], nil
}

// QueryGetSource retrieves a source by ID.
// Returns nil if not found.
func (c *Client) QueryGetSource(ctx context.Context, id string) (*models.Source, error) {
	results, err := surrealdb.Query[[]models.Source](ctx, c.db, `
		SELECT * FROM type::record("source", $id)
	`, map[string]any{"id": id})

	if err != nil {
		return nil, fmt.Errorf("get source: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	return &(*results)[0].Result[0], nil
}

// QueryListSources returns the account's sources, newest first.
func (c *Client) QueryListSources(ctx context.Context, accountID string) ([]models.Source, error) {
	results, err := surrealdb.Query[[]models.Source](ctx, c.db, `
		SELECT * FROM source
		WHERE account = type::record("account", $account)
		ORDER BY created_at DESC
	`, map[string]any{"account": accountID})
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []models.Source{}, nil
	}
	return (*results)[0].Result, nil
}

// QueryUpdateSourceContent replaces a source's content. The caller is
// responsible for re-chunkifying afterwards.
func (c *Client) QueryUpdateSourceContent(ctx context.Context, id, content string) (*models.Source, error) {
	results, err := surrealdb.Query[[]models.Source](ctx, c.db, `
		UPDATE type::record("source", $id) SET
			content = $content,
			updated_at = time::now()
		RETURN AFTER
	`, map[string]any{"id": id, "content": content})
	if err != nil {
		return nil, fmt.Errorf("update source content: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("update source content: %w", ErrNotFound)
	}
	return &(*results)[0].Result[0], nil
}

// QueryDeleteSource deletes a source and all chunks derived from it.
func (c *Client) QueryDeleteSource(ctx context.Context, id string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		DELETE chunk WHERE source = type::record("source", $id);
		DELETE type::record("source", $id);
	`, map[string]any{"id": id})
	if err != nil {
		return fmt.Errorf("delete source: %w", wrapQueryError(err))
	}
	return nil
}
