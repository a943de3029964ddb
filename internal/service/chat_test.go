package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/fkaule/docpilot/internal/db"
	"github.com/fkaule/docpilot/internal/models"
)

// fakeConversationStore implements conversationStore with in-memory
// bookkeeping for the calls the tests care about.
type fakeConversationStore struct {
	created []models.Message
	deleted []string
	since   []models.Message
}

func (f *fakeConversationStore) QueryGetConversation(_ context.Context, _ string) (*models.Conversation, error) {
	return nil, nil
}

func (f *fakeConversationStore) QueryUpdateConversationParams(_ context.Context, _ string, _ map[string]any) (*models.Conversation, error) {
	return nil, nil
}

func (f *fakeConversationStore) QuerySetGenerating(_ context.Context, _ string, _ bool) error {
	return nil
}

func (f *fakeConversationStore) QueryListMessages(_ context.Context, _ string) ([]models.Message, error) {
	return nil, nil
}

func (f *fakeConversationStore) QueryCreateMessage(_ context.Context, _ string, role, content string, _ map[string]any) (*models.Message, error) {
	msg := models.Message{
		ID:        surrealmodels.RecordID{Table: "message", ID: fmt.Sprintf("m%d", len(f.created)+1)},
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
	f.created = append(f.created, msg)
	return &msg, nil
}

func (f *fakeConversationStore) QueryUpdateMessageContent(_ context.Context, _, _ string) error {
	return nil
}

func (f *fakeConversationStore) QuerySealMessage(_ context.Context, _ string, _ []surrealmodels.RecordID) error {
	return nil
}

func (f *fakeConversationStore) QueryUnsealedAssistant(_ context.Context, _ string) (*models.Message, error) {
	return nil, nil
}

func (f *fakeConversationStore) QueryUserMessagesSince(_ context.Context, _ string, _ time.Time) ([]models.Message, error) {
	return f.since, nil
}

func (f *fakeConversationStore) QueryDeleteMessage(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeConversationStore) QueryListToolBindings(_ context.Context, _ string, _ bool) ([]models.ToolBinding, error) {
	return nil, nil
}

func (f *fakeConversationStore) QueryBumpToolCall(_ context.Context, _ string) error {
	return nil
}

func userMessage(id, content string, createdAt time.Time) models.Message {
	return models.Message{
		ID:        surrealmodels.RecordID{Table: "message", ID: id},
		Role:      models.RoleUser,
		Content:   content,
		Done:      true,
		CreatedAt: createdAt,
	}
}

func assistantMessage(id, content string, done bool, createdAt time.Time) models.Message {
	return models.Message{
		ID:        surrealmodels.RecordID{Table: "message", ID: id},
		Role:      models.RoleAssistant,
		Content:   content,
		Done:      done,
		CreatedAt: createdAt,
	}
}

func scoredChunk(sourceID, content string, meta map[string]any) db.ScoredChunk {
	return db.ScoredChunk{
		Chunk: models.Chunk{
			Source:   surrealmodels.RecordID{Table: "source", ID: sourceID},
			Content:  content,
			Metadata: meta,
		},
	}
}

func TestRenderContextBlock(t *testing.T) {
	chunks := []db.ScoredChunk{
		scoredChunk("s1", "First passage.", map[string]any{models.MetaCurrentHeader: "Intro"}),
		scoredChunk("s2", "Second passage.", nil),
	}

	block := renderContextBlock(chunks)

	assert.Contains(t, block, `[doc id="1" title="Intro" source="source:s1"]`)
	assert.Contains(t, block, "First passage.")
	assert.Contains(t, block, `[doc id="2"`)
	assert.Contains(t, block, "Second passage.")
	// Ordinals follow the retrieval order.
	assert.Less(t, strings.Index(block, `id="1"`), strings.Index(block, `id="2"`))
}

func TestRenderTemplate(t *testing.T) {
	out := renderTemplate("ctx: {context}\nq: {question}", "DOCS", "why?")
	assert.Equal(t, "ctx: DOCS\nq: why?", out)
}

func TestNormalizeQuestion(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"what  is\tthis?", "what is this?"},
		{"  padded  ", "padded"},
		{"one\nline\ntwo", "one line two"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeQuestion(tt.in))
	}
}

func TestIntFromInfo(t *testing.T) {
	info := map[string]any{
		"PromptTokens":     42,
		"CompletionTokens": float64(7),
		"Other":            "text",
	}
	assert.Equal(t, int64(42), intFromInfo(info, "PromptTokens"))
	assert.Equal(t, int64(7), intFromInfo(info, "CompletionTokens"))
	assert.Equal(t, int64(0), intFromInfo(info, "Other"))
	assert.Equal(t, int64(0), intFromInfo(info, "Missing"))
}

func TestResolveUserMessageReusesUnansweredQuestion(t *testing.T) {
	store := &fakeConversationStore{}
	o := &CompletionOrchestrator{db: store, logger: testLogger()}

	base := time.Now().Add(-time.Minute)
	history := []models.Message{
		userMessage("u1", "What is the SLA?", base),
		assistantMessage("a1", "", false, base.Add(time.Second)),
	}

	// Same question, sloppier whitespace: still the same turn.
	msg, turnStart, err := o.resolveUserMessage(context.Background(), "conversation:c1", "  What  is the SLA? ", history)

	require.NoError(t, err)
	assert.Equal(t, history[0].ID, msg.ID)
	assert.Equal(t, history[0].CreatedAt, turnStart)
	// Reuse must not persist a second visible user turn.
	assert.Empty(t, store.created)
}

func TestResolveUserMessageCreatesAfterAnsweredTurn(t *testing.T) {
	store := &fakeConversationStore{}
	o := &CompletionOrchestrator{db: store, logger: testLogger()}

	base := time.Now().Add(-time.Minute)
	history := []models.Message{
		userMessage("u1", "What is the SLA?", base),
		assistantMessage("a1", "Four nines.", true, base.Add(time.Second)),
	}

	msg, _, err := o.resolveUserMessage(context.Background(), "conversation:c1", "What is the SLA?", history)

	require.NoError(t, err)
	require.Len(t, store.created, 1)
	assert.Equal(t, models.RoleUser, store.created[0].Role)
	assert.NotEqual(t, history[0].ID, msg.ID)
	assert.True(t, msg.Done)
}

func TestResolveUserMessageCreatesForNewQuestion(t *testing.T) {
	store := &fakeConversationStore{}
	o := &CompletionOrchestrator{db: store, logger: testLogger()}

	base := time.Now().Add(-time.Minute)
	history := []models.Message{
		userMessage("u1", "What is the SLA?", base),
		assistantMessage("a1", "", false, base.Add(time.Second)),
	}

	_, _, err := o.resolveUserMessage(context.Background(), "conversation:c1", "What about support hours?", history)

	require.NoError(t, err)
	require.Len(t, store.created, 1)
	assert.Equal(t, "What about support hours?", store.created[0].Content)
}

func TestReconcileDuplicatesDeletesRecreatedQuestions(t *testing.T) {
	turnStart := time.Now().Add(-time.Minute)
	kept := userMessage("u1", "What is the SLA?", turnStart)

	store := &fakeConversationStore{
		since: []models.Message{
			kept,
			userMessage("u2", "What  is the SLA?", turnStart.Add(time.Second)),
			userMessage("u3", "Something else entirely?", turnStart.Add(2*time.Second)),
		},
	}
	o := &CompletionOrchestrator{db: store, logger: testLogger()}

	o.reconcileDuplicates(context.Background(), "conversation:c1", &kept, turnStart)

	// Only the re-created copy of the kept question goes; the kept message
	// and unrelated questions stay.
	assert.Equal(t, []string{"u2"}, store.deleted)
}

func TestMessageContextRoundTrip(t *testing.T) {
	chunks := []db.ScoredChunk{scoredChunk("s1", "grounding text", nil)}
	block := renderContextBlock(chunks)
	stored := "<context>\n" + block + "\n</context>\n\nwhat is docpilot?"

	msg := models.Message{Role: models.RoleUser, Content: stored}
	assert.Equal(t, "what is docpilot?", msg.Question())
	require.Contains(t, msg.Context(), "grounding text")
	assert.Equal(t, "what is docpilot?", msg.NormalizedQuestion())
}
