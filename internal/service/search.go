package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fkaule/docpilot/internal/db"
	"github.com/fkaule/docpilot/internal/guard"
	"github.com/fkaule/docpilot/internal/llm"
	"github.com/fkaule/docpilot/internal/metrics"
	"github.com/fkaule/docpilot/internal/models"
)

// Retriever finds grounding chunks for a question.
type Retriever struct {
	db        *db.Client
	embedder  *llm.Embedder
	guard     *guard.RelevanceGuard
	collector *metrics.Collector
	fetchK    int
	logger    *slog.Logger
}

// NewRetriever creates the retrieval pipeline. fetchK is the KNN over-fetch
// count; the guard filters the fetched set down.
func NewRetriever(
	dbClient *db.Client,
	embedder *llm.Embedder,
	relevanceGuard *guard.RelevanceGuard,
	collector *metrics.Collector,
	fetchK int,
	logger *slog.Logger,
) *Retriever {
	if fetchK <= 0 {
		fetchK = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		db:        dbClient,
		embedder:  embedder,
		guard:     relevanceGuard,
		collector: collector,
		fetchK:    fetchK,
		logger:    logger,
	}
}

// Search performs raw KNN search without guard filtering.
func (r *Retriever) Search(ctx context.Context, accountID, query string, limit int) ([]db.ScoredChunk, error) {
	if limit <= 0 {
		limit = r.fetchK
	}

	start := time.Now()
	embedding, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if r.collector != nil {
		r.collector.RecordTiming(metrics.OpEmbedding, time.Since(start))
	}

	start = time.Now()
	chunks, err := r.db.QuerySearchChunks(ctx, accountID, embedding, limit)
	if err != nil {
		return nil, err
	}
	if r.collector != nil {
		r.collector.RecordTiming(metrics.OpDBSearch, time.Since(start))
	}

	return chunks, nil
}

// SearchText performs BM25 full-text search over the account's chunks.
func (r *Retriever) SearchText(ctx context.Context, accountID, query string, limit int) ([]models.Chunk, error) {
	if limit <= 0 {
		limit = r.fetchK
	}

	start := time.Now()
	chunks, err := r.db.QuerySearchChunksText(ctx, accountID, query, limit)
	if err != nil {
		return nil, err
	}
	if r.collector != nil {
		r.collector.RecordTiming(metrics.OpDBSearch, time.Since(start))
	}

	return chunks, nil
}

// Retrieve fetches the question's nearest chunks and guard-filters them.
// Distance order is preserved; the guard only removes, never reorders.
func (r *Retriever) Retrieve(ctx context.Context, accountID, question string) ([]db.ScoredChunk, error) {
	chunks, err := r.Search(ctx, accountID, question, r.fetchK)
	if err != nil {
		return nil, err
	}

	if r.guard == nil || !r.guard.Enabled() {
		return chunks, nil
	}

	relevant := make([]db.ScoredChunk, 0, len(chunks))
	for _, chunk := range chunks {
		start := time.Now()
		keep := r.guard.ContextRelevant(ctx, chunk.Content, question)
		if r.collector != nil {
			r.collector.RecordTiming(metrics.OpGuardCheck, time.Since(start))
		}
		if keep {
			relevant = append(relevant, chunk)
		}
	}

	if len(relevant) < len(chunks) {
		r.logger.Debug("guard filtered chunks", "fetched", len(chunks), "kept", len(relevant))
	}
	return relevant, nil
}
