// Package db provides SurrealDB query functions for chunk operations.
package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/fkaule/docpilot/internal/models"
	"github.com/surrealdb/surrealdb.go"
)

// ScoredChunk is a chunk with its cosine distance to a query embedding.
// Lower distance means more similar.
type ScoredChunk struct {
	models.Chunk
	Distance float64 `json:"distance"`
}

// QueryCreateChunk creates a single chunk. Blank content is rejected: a
// chunk without retrievable text would pollute the index.
func (c *Client) QueryCreateChunk(ctx context.Context, in models.ChunkInput) (*models.Chunk, error) {
	if strings.TrimSpace(in.Content) == "" {
		return nil, fmt.Errorf("create chunk: blank content")
	}
	if len(in.Embedding) == 0 {
		return nil, fmt.Errorf("create chunk: missing embedding")
	}

	sql := `
		CREATE chunk SET
			account = type::record("account", $account),
			source = type::record("source", $source),
			content = $content,
			position = $position,
			metadata = $metadata,
			embedding = $embedding
		RETURN AFTER
	`

	results, err := surrealdb.Query[[]models.Chunk](ctx, c.db, sql, map[string]any{
		"account":   in.AccountID,
		"source":    in.SourceID,
		"content":   in.Content,
		"position":  in.Position,
		"metadata":  in.Metadata,
		"embedding": in.Embedding,
	})
	if err != nil {
		return nil, fmt.Errorf("create chunk: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("create chunk: no result returned")
	}
	return &(*results)[0].Result[0], nil
}

// QueryDeleteChunksBySource removes every chunk derived from a source.
// Returns the number of chunks deleted.
func (c *Client) QueryDeleteChunksBySource(ctx context.Context, sourceID string) (int, error) {
	results, err := surrealdb.Query[[]models.Chunk](ctx, c.db, `
		DELETE chunk WHERE source = type::record("source", $id) RETURN BEFORE
	`, map[string]any{"id": sourceID})
	if err != nil {
		return 0, fmt.Errorf("delete chunks: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 {
		return 0, nil
	}
	return len((*results)[0].Result), nil
}

// QueryListChunksBySource returns a source's chunks in position order.
func (c *Client) QueryListChunksBySource(ctx context.Context, sourceID string) ([]models.Chunk, error) {
	results, err := surrealdb.Query[[]models.Chunk](ctx, c.db, `
		SELECT * FROM chunk
		WHERE source = type::record("source", $id)
		ORDER BY position ASC
	`, map[string]any{"id": sourceID})
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []models.Chunk{}, nil
	}
	return (*results)[0].Result, nil
}

// QuerySearchChunks performs KNN vector search over the account's chunks.
// Results are ordered by ascending cosine distance, at most limit rows.
// HNSW with ef=40 for better recall.
func (c *Client) QuerySearchChunks(
	ctx context.Context,
	accountID string,
	embedding []float32,
	limit int,
) ([]ScoredChunk, error) {
	sql := fmt.Sprintf(`
		SELECT *, vector::distance::knn() AS distance FROM chunk
		WHERE account = type::record("account", $account)
			AND embedding <|%d,40|> $emb
		ORDER BY distance ASC
	`, limit)

	results, err := surrealdb.Query[[]ScoredChunk](ctx, c.db, sql, map[string]any{
		"account": accountID,
		"emb":     embedding,
	})
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []ScoredChunk{}, nil
	}
	return (*results)[0].Result, nil
}

// QuerySearchChunksText performs BM25 full-text search over the account's
// chunk contents.
func (c *Client) QuerySearchChunksText(
	ctx context.Context,
	accountID string,
	query string,
	limit int,
) ([]models.Chunk, error) {
	results, err := surrealdb.Query[[]models.Chunk](ctx, c.db, `
		SELECT * FROM chunk
		WHERE account = type::record("account", $account)
			AND content @0@ $q
		ORDER BY search::score(0) DESC
		LIMIT $limit
	`, map[string]any{
		"account": accountID,
		"q":       query,
		"limit":   limit,
	})
	if err != nil {
		return nil, fmt.Errorf("search chunks text: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []models.Chunk{}, nil
	}
	return (*results)[0].Result, nil
}
