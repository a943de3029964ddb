package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fkaule/docpilot/internal/convert"
	"github.com/fkaule/docpilot/internal/db"
	"github.com/fkaule/docpilot/internal/llm"
	"github.com/fkaule/docpilot/internal/metrics"
	"github.com/fkaule/docpilot/internal/models"
	"github.com/fkaule/docpilot/internal/parser"
)

// sourceStore is the slice of the db client the ingest pipeline uses.
// *db.Client satisfies it; tests substitute fakes.
type sourceStore interface {
	QueryCreateSource(ctx context.Context, in models.SourceInput) (*models.Source, error)
	QueryUpdateSourceContent(ctx context.Context, id, content string) (*models.Source, error)
	QueryDeleteSource(ctx context.Context, id string) error
	QueryDeleteChunksBySource(ctx context.Context, sourceID string) (int, error)
	QueryCreateChunk(ctx context.Context, in models.ChunkInput) (*models.Chunk, error)
}

// chunkEmbedder produces embedding vectors for chunk text. *llm.Embedder
// satisfies it.
type chunkEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// IngestService turns documents, websites and raw text into indexed chunks.
type IngestService struct {
	db        sourceStore
	embedder  chunkEmbedder
	segmenter *parser.Segmenter
	converter *convert.Client
	collector *metrics.Collector
	logger    *slog.Logger

	// Per-source serialization: concurrent chunkify runs on the same source
	// would race the delete/recreate cycle.
	sourceMu sync.Map // source ID -> *sync.Mutex
}

// NewIngestService creates the ingestion pipeline.
func NewIngestService(
	dbClient *db.Client,
	embedder *llm.Embedder,
	segmenter *parser.Segmenter,
	converter *convert.Client,
	collector *metrics.Collector,
	logger *slog.Logger,
) *IngestService {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestService{
		db:        dbClient,
		embedder:  embedder,
		segmenter: segmenter,
		converter: converter,
		collector: collector,
		logger:    logger,
	}
}

// SourceRequest describes one source to ingest. Document kinds carry file
// bytes for conversion, website kinds a URL; text and qna carry Markdown
// content directly.
type SourceRequest struct {
	Kind     models.SourceKind
	Title    string
	URL      string
	Content  string
	FileName string
	FileData []byte
	Metadata map[string]any
}

// IngestResult summarizes an ingestion run.
type IngestResult struct {
	SourcesCreated int      `json:"sources_created"`
	ChunksCreated  int      `json:"chunks_created"`
	SourceIDs      []string `json:"source_ids,omitempty"`
	Errors         []string `json:"errors,omitempty"`
}

// CreateSource converts (if needed), persists and chunkifies a single source.
func (s *IngestService) CreateSource(ctx context.Context, accountID string, req SourceRequest) (*models.Source, int, error) {
	content, err := s.resolveContent(ctx, req)
	if err != nil {
		return nil, 0, err
	}

	title := req.Title
	if title == "" {
		doc := parser.ParseMarkdown(content)
		title = doc.Title
	}
	if title == "" {
		title = req.FileName
	}

	input := models.SourceInput{
		AccountID: accountID,
		Kind:      req.Kind,
		Title:     title,
		Content:   content,
		Metadata:  req.Metadata,
	}
	if req.URL != "" {
		input.URL = &req.URL
	}

	source, err := s.db.QueryCreateSource(ctx, input)
	if err != nil {
		return nil, 0, fmt.Errorf("create source: %w", err)
	}

	chunks, err := s.Chunkify(ctx, source)
	if err != nil {
		return source, chunks, err
	}
	return source, chunks, nil
}

// resolveContent produces the Markdown content for a source request.
func (s *IngestService) resolveContent(ctx context.Context, req SourceRequest) (string, error) {
	switch req.Kind {
	case models.SourceKindDocument:
		if len(req.FileData) == 0 {
			return "", fmt.Errorf("document source requires file data")
		}
		md, err := s.converter.ConvertFile(ctx, req.FileName, req.FileData)
		if err != nil {
			if errors.Is(err, convert.ErrDisabled) {
				return "", fmt.Errorf("document ingestion requires a conversion service: %w", err)
			}
			return "", fmt.Errorf("convert document: %w", err)
		}
		return md, nil

	case models.SourceKindWebsite:
		if req.URL == "" {
			return "", fmt.Errorf("website source requires a URL")
		}
		md, err := s.converter.ConvertURL(ctx, req.URL)
		if err != nil {
			if errors.Is(err, convert.ErrDisabled) {
				return "", fmt.Errorf("website ingestion requires a conversion service: %w", err)
			}
			return "", fmt.Errorf("convert website: %w", err)
		}
		return md, nil

	case models.SourceKindText, models.SourceKindQna:
		return req.Content, nil

	default:
		return "", fmt.Errorf("unsupported source kind: %s", req.Kind)
	}
}

// UpdateSourceContent replaces a source's content and rebuilds its chunks.
func (s *IngestService) UpdateSourceContent(ctx context.Context, id, content string) (*models.Source, int, error) {
	source, err := s.db.QueryUpdateSourceContent(ctx, id, content)
	if err != nil {
		return nil, 0, err
	}

	chunks, err := s.Chunkify(ctx, source)
	return source, chunks, err
}

// DeleteSource removes a source and all chunks derived from it.
func (s *IngestService) DeleteSource(ctx context.Context, id string) error {
	return s.db.QueryDeleteSource(ctx, id)
}

// Chunkify rebuilds a source's chunks wholesale: segment, embed, persist.
// Runs for the same source are serialized. Blank pieces are skipped. A fatal
// provider error aborts the run; transient per-chunk failures skip the chunk
// but are reported in the returned error so the source can be re-ingested.
func (s *IngestService) Chunkify(ctx context.Context, source *models.Source) (int, error) {
	sourceID, err := models.RecordIDString(source.ID)
	if err != nil {
		return 0, fmt.Errorf("chunkify: %w", err)
	}
	accountID, err := models.RecordIDString(source.Account)
	if err != nil {
		return 0, fmt.Errorf("chunkify: %w", err)
	}

	muAny, _ := s.sourceMu.LoadOrStore(sourceID, &sync.Mutex{})
	mu := muAny.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	sourceMeta := map[string]any{
		"source_title": source.Title,
		"source_kind":  string(source.Kind),
	}
	pieces := s.segmenter.Segment(source.Content, sourceMeta)

	deleted, err := s.db.QueryDeleteChunksBySource(ctx, sourceID)
	if err != nil {
		return 0, fmt.Errorf("chunkify: %w", err)
	}
	if deleted > 0 {
		s.logger.Debug("replaced existing chunks", "source", sourceID, "deleted", deleted)
	}

	created := 0
	var chunkErrs []error
	for i, piece := range pieces {
		if strings.TrimSpace(piece.Content) == "" {
			continue
		}

		start := time.Now()
		embedding, err := s.embedder.Embed(ctx, piece.Content)
		if err != nil {
			if errors.Is(err, llm.ErrFatalAPI) {
				return created, fmt.Errorf("chunkify: %w", err)
			}
			s.logger.Warn("embedding failed, chunk skipped", "source", sourceID, "position", i, "error", err)
			chunkErrs = append(chunkErrs, fmt.Errorf("chunk %d: embed: %w", i, err))
			continue
		}
		if s.collector != nil {
			s.collector.RecordTiming(metrics.OpEmbedding, time.Since(start))
		}

		_, err = s.db.QueryCreateChunk(ctx, models.ChunkInput{
			AccountID: accountID,
			SourceID:  sourceID,
			Content:   piece.Content,
			Position:  i,
			Metadata:  piece.Metadata,
			Embedding: embedding,
		})
		if err != nil {
			s.logger.Warn("chunk create failed", "source", sourceID, "position", i, "error", err)
			chunkErrs = append(chunkErrs, fmt.Errorf("chunk %d: create: %w", i, err))
			continue
		}
		created++
	}

	s.logger.Info("source chunkified", "source", sourceID, "pieces", len(pieces), "chunks", created, "failed", len(chunkErrs))
	if len(chunkErrs) > 0 {
		return created, fmt.Errorf("chunkify %s: %w", sourceID, errors.Join(chunkErrs...))
	}
	return created, nil
}

// IngestAsync creates a background job that ingests the given sources with a
// worker pool. Failures are per-source; the job completes with errors listed.
func (s *IngestService) IngestAsync(ctx context.Context, jobManager *JobManager, accountID string, requests []SourceRequest) (*Job, error) {
	if len(requests) == 0 {
		return nil, fmt.Errorf("no sources to ingest")
	}

	job, err := jobManager.CreateJob(ctx, "ingest", accountID, len(requests))
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	go func() {
		bgCtx := context.Background()
		jobManager.SetRunning(bgCtx, job)

		result := s.processRequests(bgCtx, jobManager, job, accountID, requests)
		jobManager.Complete(bgCtx, job, result)
	}()

	return job, nil
}

// processRequests runs the worker pool over the source requests.
func (s *IngestService) processRequests(ctx context.Context, jobManager *JobManager, job *Job, accountID string, requests []SourceRequest) *IngestResult {
	concurrency := jobManager.Concurrency()
	if concurrency > len(requests) {
		concurrency = len(requests)
	}

	var (
		processed     atomic.Int32
		chunksCreated atomic.Int32
		resultMu      sync.Mutex
		sourceIDs     []string
		errs          []string
	)

	work := make(chan SourceRequest, len(requests))
	var wg sync.WaitGroup

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for req := range work {
				if ctx.Err() != nil {
					return
				}

				source, chunks, err := s.CreateSource(ctx, accountID, req)
				current := int(processed.Add(1))
				jobManager.UpdateProgress(ctx, job, current)

				// A source that failed mid-chunkify still exists with the
				// chunks that made it; the error says what is missing.
				chunksCreated.Add(int32(chunks))
				resultMu.Lock()
				if source != nil {
					if id, idErr := models.RecordIDString(source.ID); idErr == nil {
						sourceIDs = append(sourceIDs, id)
					}
				}
				if err != nil {
					errs = append(errs, fmt.Sprintf("%s: %v", req.Title, err))
				}
				resultMu.Unlock()
			}
		}()
	}

	for _, req := range requests {
		work <- req
	}
	close(work)
	wg.Wait()

	return &IngestResult{
		SourcesCreated: len(sourceIDs),
		ChunksCreated:  int(chunksCreated.Load()),
		SourceIDs:      sourceIDs,
		Errors:         errs,
	}
}
