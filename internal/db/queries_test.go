// Package db contains integration tests for query functions.
package db

import (
	"context"
	"testing"
	"time"

	"github.com/fkaule/docpilot/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// createTestSource creates a source for the shared test account.
func createTestSource(t *testing.T, ctx context.Context, title, content string) *models.Source {
	t.Helper()

	source, err := testDB.QueryCreateSource(ctx, models.SourceInput{
		AccountID: "acme",
		Kind:      models.SourceKindText,
		Title:     title,
		Content:   content,
	})
	require.NoError(t, err, "create source")
	return source
}

// createTestChunk persists one chunk for a source.
func createTestChunk(t *testing.T, ctx context.Context, sourceID, content string, position int, embedding []float32) *models.Chunk {
	t.Helper()

	chunk, err := testDB.QueryCreateChunk(ctx, models.ChunkInput{
		AccountID: "acme",
		SourceID:  sourceID,
		Content:   content,
		Position:  position,
		Embedding: embedding,
	})
	require.NoError(t, err, "create chunk")
	return chunk
}

func TestCreateAndGetSource(t *testing.T) {
	ctx := context.Background()

	url := "https://example.com/handbook"
	source, err := testDB.QueryCreateSource(ctx, models.SourceInput{
		AccountID: "acme",
		Kind:      models.SourceKindWebsite,
		Title:     "Handbook",
		URL:       &url,
		Content:   "# Handbook\nwelcome",
		Metadata:  map[string]any{"lang": "en"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.SourceKindWebsite, source.Kind)
	assert.Equal(t, "Handbook", source.Title)
	require.NotNil(t, source.URL)
	assert.Equal(t, url, *source.URL)
	assert.False(t, source.CreatedAt.IsZero())

	got, err := testDB.QueryGetSource(ctx, models.MustRecordIDString(source.ID))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, source.Title, got.Title)
	assert.Equal(t, "en", got.Metadata["lang"])

	missing, err := testDB.QueryGetSource(ctx, "does-not-exist")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUpdateSourceContent(t *testing.T) {
	ctx := context.Background()
	source := createTestSource(t, ctx, "Notes", "v1")

	updated, err := testDB.QueryUpdateSourceContent(ctx, models.MustRecordIDString(source.ID), "v2")
	require.NoError(t, err)
	assert.Equal(t, "v2", updated.Content)
	assert.True(t, updated.UpdatedAt.After(source.UpdatedAt) || updated.UpdatedAt.Equal(source.UpdatedAt))

	_, err = testDB.QueryUpdateSourceContent(ctx, "does-not-exist", "v3")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteSourceRemovesChunks(t *testing.T) {
	ctx := context.Background()
	source := createTestSource(t, ctx, "Doomed", "body")
	sourceID := models.MustRecordIDString(source.ID)

	createTestChunk(t, ctx, sourceID, "chunk one", 0, unitEmbedding(0))
	createTestChunk(t, ctx, sourceID, "chunk two", 1, unitEmbedding(1))

	require.NoError(t, testDB.QueryDeleteSource(ctx, sourceID))

	chunks, err := testDB.QueryListChunksBySource(ctx, sourceID)
	require.NoError(t, err)
	assert.Empty(t, chunks)

	got, err := testDB.QueryGetSource(ctx, sourceID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCreateChunkValidation(t *testing.T) {
	ctx := context.Background()
	source := createTestSource(t, ctx, "Validation", "body")
	sourceID := models.MustRecordIDString(source.ID)

	_, err := testDB.QueryCreateChunk(ctx, models.ChunkInput{
		AccountID: "acme",
		SourceID:  sourceID,
		Content:   "   \n\t",
		Embedding: unitEmbedding(0),
	})
	assert.ErrorContains(t, err, "blank content")

	_, err = testDB.QueryCreateChunk(ctx, models.ChunkInput{
		AccountID: "acme",
		SourceID:  sourceID,
		Content:   "has content",
	})
	assert.ErrorContains(t, err, "missing embedding")
}

func TestDeleteChunksBySource(t *testing.T) {
	ctx := context.Background()
	source := createTestSource(t, ctx, "Rechunk", "body")
	sourceID := models.MustRecordIDString(source.ID)

	createTestChunk(t, ctx, sourceID, "first", 0, unitEmbedding(0))
	createTestChunk(t, ctx, sourceID, "second", 1, unitEmbedding(1))

	deleted, err := testDB.QueryDeleteChunksBySource(ctx, sourceID)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	deleted, err = testDB.QueryDeleteChunksBySource(ctx, sourceID)
	require.NoError(t, err)
	assert.Equal(t, 0, deleted)
}

func TestSearchChunksOrdering(t *testing.T) {
	ctx := context.Background()
	source := createTestSource(t, ctx, "Search", "body")
	sourceID := models.MustRecordIDString(source.ID)

	createTestChunk(t, ctx, sourceID, "orthogonal", 0, unitEmbedding(1))
	createTestChunk(t, ctx, sourceID, "exact", 1, unitEmbedding(0))
	createTestChunk(t, ctx, sourceID, "near", 2, mixedEmbedding(0, 1))

	results, err := testDB.QuerySearchChunks(ctx, "acme", unitEmbedding(0), 3)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(results), 2)

	// Ascending distance: exact match first, then the mixed vector.
	assert.Equal(t, "exact", results[0].Content)
	assert.Equal(t, "near", results[1].Content)
	for i := 1; i < len(results); i++ {
		assert.LessOrEqual(t, results[i-1].Distance, results[i].Distance)
	}

	t.Cleanup(func() { _, _ = testDB.QueryDeleteChunksBySource(ctx, sourceID) })
}

func TestSearchChunksTenantScoped(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testDB.QueryEnsureAccount(ctx, "other"))

	source := createTestSource(t, ctx, "Scoped", "body")
	sourceID := models.MustRecordIDString(source.ID)
	createTestChunk(t, ctx, sourceID, "acme only", 0, unitEmbedding(2))

	results, err := testDB.QuerySearchChunks(ctx, "other", unitEmbedding(2), 5)
	require.NoError(t, err)
	for _, chunk := range results {
		assert.NotEqual(t, "acme only", chunk.Content)
	}

	t.Cleanup(func() { _, _ = testDB.QueryDeleteChunksBySource(ctx, sourceID) })
}

func TestConversationLifecycle(t *testing.T) {
	ctx := context.Background()

	conv, err := testDB.QueryCreateConversation(ctx, "acme", "user-1", nil)
	require.NoError(t, err)
	assert.Equal(t, "user-1", conv.UserID)
	assert.False(t, conv.Generating)
	assert.Nil(t, conv.Parent)

	convID := models.MustRecordIDString(conv.ID)

	child, err := testDB.QueryCreateConversation(ctx, "acme", "user-1", &convID)
	require.NoError(t, err)
	require.NotNil(t, child.Parent)

	require.NoError(t, testDB.QuerySetGenerating(ctx, convID, true))
	got, err := testDB.QueryGetConversation(ctx, convID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Generating)

	temp := 0.7
	updated, err := testDB.QueryUpdateConversationParams(ctx, convID, map[string]any{
		"model":       "llama3",
		"temperature": temp,
	})
	require.NoError(t, err)
	assert.Equal(t, "llama3", updated.Model)
	require.NotNil(t, updated.Temperature)
	assert.InDelta(t, temp, *updated.Temperature, 1e-9)
}

func TestMessagesAndSealing(t *testing.T) {
	ctx := context.Background()

	conv, err := testDB.QueryCreateConversation(ctx, "acme", "user-2", nil)
	require.NoError(t, err)
	convID := models.MustRecordIDString(conv.ID)

	user, err := testDB.QueryCreateMessage(ctx, convID, models.RoleUser, "what is docpilot?", nil)
	require.NoError(t, err)
	assert.False(t, user.Done)

	assistant, err := testDB.QueryCreateMessage(ctx, convID, models.RoleAssistant, "", nil)
	require.NoError(t, err)
	assistantID := models.MustRecordIDString(assistant.ID)

	pending, err := testDB.QueryUnsealedAssistant(ctx, convID)
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, assistantID, models.MustRecordIDString(pending.ID))

	require.NoError(t, testDB.QueryUpdateMessageContent(ctx, assistantID, "docpilot is"))
	require.NoError(t, testDB.QueryUpdateMessageContent(ctx, assistantID, "docpilot is a document chat service."))

	source := createTestSource(t, ctx, "Sealing", "body")
	chunk := createTestChunk(t, ctx, models.MustRecordIDString(source.ID), "grounding", 0, unitEmbedding(3))

	require.NoError(t, testDB.QuerySealMessage(ctx, assistantID, []surrealmodels.RecordID{chunk.ID}))

	messages, err := testDB.QueryListMessages(ctx, convID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, models.RoleUser, messages[0].Role)
	assert.True(t, messages[1].Done)
	require.Len(t, messages[1].SimilarChunkIDs, 1)

	pending, err = testDB.QueryUnsealedAssistant(ctx, convID)
	require.NoError(t, err)
	assert.Nil(t, pending)

	require.NoError(t, testDB.QueryDeleteMessage(ctx, models.MustRecordIDString(user.ID)))
	messages, err = testDB.QueryListMessages(ctx, convID)
	require.NoError(t, err)
	assert.Len(t, messages, 1)
}

func TestUserMessagesSince(t *testing.T) {
	ctx := context.Background()

	conv, err := testDB.QueryCreateConversation(ctx, "acme", "user-3", nil)
	require.NoError(t, err)
	convID := models.MustRecordIDString(conv.ID)

	before := time.Now().Add(-time.Minute)

	_, err = testDB.QueryCreateMessage(ctx, convID, models.RoleUser, "first", nil)
	require.NoError(t, err)
	_, err = testDB.QueryCreateMessage(ctx, convID, models.RoleAssistant, "answer", nil)
	require.NoError(t, err)
	_, err = testDB.QueryCreateMessage(ctx, convID, models.RoleUser, "second", nil)
	require.NoError(t, err)

	users, err := testDB.QueryUserMessagesSince(ctx, convID, before)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "first", users[0].Content)
	assert.Equal(t, "second", users[1].Content)

	users, err = testDB.QueryUserMessagesSince(ctx, convID, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestToolServerCRUD(t *testing.T) {
	ctx := context.Background()

	server, err := testDB.QueryCreateToolServer(ctx, models.ToolServerInput{
		AccountID: "acme",
		Name:      "files",
		Transport: models.TransportStdio,
		Command:   "mcp-files",
		Args:      []string{"--root", "/data"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.ToolServerDisconnected, server.Status)
	serverID := models.MustRecordIDString(server.ID)

	_, err = testDB.QueryCreateToolServer(ctx, models.ToolServerInput{
		AccountID: "acme",
		Name:      "files",
		Transport: models.TransportStdio,
		Command:   "mcp-files",
	})
	assert.ErrorIs(t, err, ErrAlreadyExists)

	byName, err := testDB.QueryGetToolServerByName(ctx, "acme", "files")
	require.NoError(t, err)
	require.NotNil(t, byName)
	assert.Equal(t, serverID, models.MustRecordIDString(byName.ID))

	latency := int64(12)
	require.NoError(t, testDB.QueryUpdateToolServerStatus(ctx, serverID, models.ToolServerReady, nil, &latency))
	require.NoError(t, testDB.QueryUpdateToolServerCaches(ctx, serverID,
		[]models.ToolDescriptor{{Name: "read_file", Description: "Read a file"}},
		nil, nil))

	got, err := testDB.QueryGetToolServer(ctx, serverID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.ToolServerReady, got.Status)
	assert.NotNil(t, got.LastConnectedAt)
	require.Len(t, got.Tools, 1)
	assert.Equal(t, "read_file", got.Tools[0].Name)

	errMsg := "connection refused"
	require.NoError(t, testDB.QueryUpdateToolServerStatus(ctx, serverID, models.ToolServerError, &errMsg, nil))
	got, err = testDB.QueryGetToolServer(ctx, serverID)
	require.NoError(t, err)
	require.NotNil(t, got.LastError)
	assert.Equal(t, errMsg, *got.LastError)

	require.NoError(t, testDB.QueryDeleteToolServer(ctx, serverID))
	got, err = testDB.QueryGetToolServer(ctx, serverID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestToolBindingUpsert(t *testing.T) {
	ctx := context.Background()

	conv, err := testDB.QueryCreateConversation(ctx, "acme", "user-4", nil)
	require.NoError(t, err)
	convID := models.MustRecordIDString(conv.ID)

	server, err := testDB.QueryCreateToolServer(ctx, models.ToolServerInput{
		AccountID: "acme",
		Name:      "search",
		Transport: models.TransportStreamable,
		Endpoint:  "http://localhost:9090/mcp",
	})
	require.NoError(t, err)
	serverID := models.MustRecordIDString(server.ID)

	binding, err := testDB.QueryUpsertToolBinding(ctx, convID, serverID, true)
	require.NoError(t, err)
	assert.True(t, binding.Enabled)
	assert.Equal(t, 0, binding.ToolCallCount)

	// Second upsert updates in place, no duplicate row.
	binding, err = testDB.QueryUpsertToolBinding(ctx, convID, serverID, false)
	require.NoError(t, err)
	assert.False(t, binding.Enabled)

	all, err := testDB.QueryListToolBindings(ctx, convID, false)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	enabled, err := testDB.QueryListToolBindings(ctx, convID, true)
	require.NoError(t, err)
	assert.Empty(t, enabled)

	bindingID := models.MustRecordIDString(binding.ID)
	require.NoError(t, testDB.QueryBumpToolCall(ctx, bindingID))
	require.NoError(t, testDB.QueryBumpToolCall(ctx, bindingID))

	all, err = testDB.QueryListToolBindings(ctx, convID, false)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 2, all[0].ToolCallCount)
	assert.NotNil(t, all[0].LastToolCallAt)
}

func TestJobLifecycle(t *testing.T) {
	ctx := context.Background()

	job, err := testDB.QueryCreateJob(ctx, "job-1", "ingest", "acme", []string{"source:abc"}, 3)
	require.NoError(t, err)
	assert.Equal(t, "pending", job.Status)
	assert.Equal(t, 3, job.Total)

	require.NoError(t, testDB.QueryStartJob(ctx, "job-1"))
	require.NoError(t, testDB.QueryUpdateJobProgress(ctx, "job-1", 2))

	got, err := testDB.QueryGetJob(ctx, "job-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "running", got.Status)
	assert.Equal(t, 2, got.Progress)

	require.NoError(t, testDB.QueryCompleteJob(ctx, "job-1", map[string]any{"chunks": 42}))
	got, err = testDB.QueryGetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, "completed", got.Status)
	assert.Equal(t, 3, got.Progress)
	assert.NotNil(t, got.CompletedAt)

	_, err = testDB.QueryCreateJob(ctx, "job-2", "ingest", "acme", nil, 1)
	require.NoError(t, err)
	require.NoError(t, testDB.QueryFailJob(ctx, "job-2", "conversion timed out"))

	got, err = testDB.QueryGetJob(ctx, "job-2")
	require.NoError(t, err)
	assert.Equal(t, "failed", got.Status)
	require.NotNil(t, got.Error)
	assert.Equal(t, "conversion timed out", *got.Error)

	jobs, err := testDB.QueryListJobs(ctx, "acme", 10)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(jobs), 2)
}
