package models

import (
	"regexp"
	"strings"
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// Role values for messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Conversation is an ordered sequence of messages scoped to an account and
// user, optionally nested under a parent conversation. It carries the active
// model and generation parameters used as per-conversation defaults.
type Conversation struct {
	ID          surrealmodels.RecordID  `json:"id"`
	Account     surrealmodels.RecordID  `json:"account"`
	UserID      string                  `json:"user_id"`
	Parent      *surrealmodels.RecordID `json:"parent,omitempty"`
	Model       string                  `json:"model,omitempty"`
	Temperature *float64                `json:"temperature,omitempty"`
	TopK        *int                    `json:"top_k,omitempty"`
	TopP        *float64                `json:"top_p,omitempty"`
	MaxTokens   *int                    `json:"max_tokens,omitempty"`
	Generating  bool                    `json:"generating"`
	CreatedAt   time.Time               `json:"created_at"`
	UpdatedAt   time.Time               `json:"updated_at"`
}

// Message is a single turn within a conversation. Assistant messages are
// created unsealed (Done=false) and mutated in place while streaming; at most
// one unsealed assistant message exists per conversation.
type Message struct {
	ID              surrealmodels.RecordID   `json:"id"`
	Conversation    surrealmodels.RecordID   `json:"conversation"`
	Role            string                   `json:"role"`
	Content         string                   `json:"content"`
	Done            bool                     `json:"done"`
	SimilarChunkIDs []surrealmodels.RecordID `json:"similar_chunk_ids,omitempty"`
	Metadata        map[string]any           `json:"metadata,omitempty"`
	CreatedAt       time.Time                `json:"created_at"`
}

var (
	contextRe = regexp.MustCompile(`(?s)<context>.*?</context>`)
	thinkRe   = regexp.MustCompile(`(?s)<think>(.*?)</think>`)
)

// Question returns the user-visible question: the content with any embedded
// machine-readable <context> segment stripped.
func (m *Message) Question() string {
	return strings.TrimSpace(contextRe.ReplaceAllString(m.Content, ""))
}

// Context returns the embedded grounding segment, or "" when absent.
func (m *Message) Context() string {
	match := contextRe.FindString(m.Content)
	match = strings.TrimPrefix(match, "<context>")
	match = strings.TrimSuffix(match, "</context>")
	return strings.TrimSpace(match)
}

// ReasoningContent returns the model's <think> sub-content, or "".
func (m *Message) ReasoningContent() string {
	if match := thinkRe.FindStringSubmatch(m.Content); len(match) > 1 {
		return strings.TrimSpace(match[1])
	}
	return ""
}

// ResponseContent returns the content with any <think> segment removed.
func (m *Message) ResponseContent() string {
	return strings.TrimSpace(thinkRe.ReplaceAllString(m.Content, ""))
}

// NormalizedQuestion collapses whitespace for duplicate detection. Matching
// is exact after normalization; provider-side reformatting beyond whitespace
// defeats it.
func (m *Message) NormalizedQuestion() string {
	return strings.Join(strings.Fields(m.Question()), " ")
}
