package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/fkaule/docpilot/internal/llm"
	"github.com/fkaule/docpilot/internal/models"
	"github.com/fkaule/docpilot/internal/parser"
)

type fakeSourceStore struct {
	sources []models.SourceInput
	chunks  []models.ChunkInput
	deleted []string
}

func (f *fakeSourceStore) QueryCreateSource(_ context.Context, in models.SourceInput) (*models.Source, error) {
	f.sources = append(f.sources, in)
	return &models.Source{
		ID:      surrealmodels.RecordID{Table: "source", ID: fmt.Sprintf("s%d", len(f.sources))},
		Account: surrealmodels.RecordID{Table: "account", ID: in.AccountID},
		Kind:    in.Kind,
		Title:   in.Title,
		Content: in.Content,
	}, nil
}

func (f *fakeSourceStore) QueryUpdateSourceContent(_ context.Context, id, content string) (*models.Source, error) {
	return &models.Source{
		ID:      surrealmodels.RecordID{Table: "source", ID: id},
		Account: surrealmodels.RecordID{Table: "account", ID: "acme"},
		Kind:    models.SourceKindText,
		Content: content,
	}, nil
}

func (f *fakeSourceStore) QueryDeleteSource(_ context.Context, _ string) error { return nil }

func (f *fakeSourceStore) QueryDeleteChunksBySource(_ context.Context, sourceID string) (int, error) {
	f.deleted = append(f.deleted, sourceID)
	return 0, nil
}

func (f *fakeSourceStore) QueryCreateChunk(_ context.Context, in models.ChunkInput) (*models.Chunk, error) {
	f.chunks = append(f.chunks, in)
	return &models.Chunk{Content: in.Content, Position: in.Position}, nil
}

type fakeEmbedder struct {
	err    error  // returned for every call when set
	failOn string // substring that triggers a transient failure
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.failOn != "" && strings.Contains(text, f.failOn) {
		return nil, errors.New("connection reset")
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ingestServiceWith(store *fakeSourceStore, embedder chunkEmbedder) *IngestService {
	return &IngestService{
		db:        store,
		embedder:  embedder,
		segmenter: parser.NewSegmenter(parser.Config{MaxTokens: 512, MinTokens: 16}),
		logger:    testLogger(),
	}
}

func textSource(content string) *models.Source {
	return &models.Source{
		ID:      surrealmodels.RecordID{Table: "source", ID: "s1"},
		Account: surrealmodels.RecordID{Table: "account", ID: "acme"},
		Kind:    models.SourceKindText,
		Title:   "Handbook",
		Content: content,
	}
}

func TestChunkifyIndexesAllSections(t *testing.T) {
	store := &fakeSourceStore{}
	s := ingestServiceWith(store, &fakeEmbedder{})

	created, err := s.Chunkify(context.Background(), textSource(
		"# Alpha\n\nThe first section body.\n\n# Beta\n\nThe second section body.\n"))

	require.NoError(t, err)
	assert.Equal(t, len(store.chunks), created)
	assert.GreaterOrEqual(t, created, 1)
	assert.Equal(t, []string{"s1"}, store.deleted)
}

func TestChunkifyReportsTransientEmbedFailures(t *testing.T) {
	store := &fakeSourceStore{}
	s := ingestServiceWith(store, &fakeEmbedder{failOn: "second section"})

	created, err := s.Chunkify(context.Background(), textSource(
		"# Alpha\n\nThe first section body.\n\n# Beta\n\nThe second section body.\n"))

	// The healthy chunks land, but the run must not report clean success:
	// a skipped chunk would otherwise vanish without a trace.
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embed")
	assert.Equal(t, len(store.chunks), created)
	assert.GreaterOrEqual(t, created, 1)
	for _, chunk := range store.chunks {
		assert.NotContains(t, chunk.Content, "second section")
	}
}

func TestChunkifyFatalErrorAborts(t *testing.T) {
	store := &fakeSourceStore{}
	s := ingestServiceWith(store, &fakeEmbedder{
		err: fmt.Errorf("embed: %w", fmt.Errorf("%w: credit balance too low", llm.ErrFatalAPI)),
	})

	created, err := s.Chunkify(context.Background(), textSource("# Alpha\n\nBody text.\n"))

	assert.ErrorIs(t, err, llm.ErrFatalAPI)
	assert.Zero(t, created)
	assert.Empty(t, store.chunks)
}

func TestIngestAsyncRecordsEmbedFailures(t *testing.T) {
	store := &fakeSourceStore{}
	s := ingestServiceWith(store, &fakeEmbedder{failOn: "second section"})
	jobs := NewJobManager(1, nil, nil)

	job, err := s.IngestAsync(context.Background(), jobs, "acme", []SourceRequest{
		{Kind: models.SourceKindText, Title: "Handbook", Content: "# Alpha\n\nThe first section body.\n\n# Beta\n\nThe second section body.\n"},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return job.Snapshot().Status == JobStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	snap := job.Snapshot()
	require.NotNil(t, snap.Result)
	// The source exists with its surviving chunks, and the failure is on record.
	assert.Equal(t, 1, snap.Result.SourcesCreated)
	assert.Len(t, snap.Result.SourceIDs, 1)
	require.Len(t, snap.Result.Errors, 1)
	assert.Contains(t, snap.Result.Errors[0], "Handbook")
	assert.Contains(t, snap.Result.Errors[0], "embed")
}
