package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/fkaule/docpilot/internal/models"
	"github.com/fkaule/docpilot/internal/service"
)

// OpenAI-compatible wire types. ConversationID is a docpilot extension that
// threads completions through a persistent conversation.
type completionRequest struct {
	Model          string              `json:"model"`
	Messages       []completionMessage `json:"messages" binding:"required"`
	Stream         bool                `json:"stream"`
	Temperature    *float64            `json:"temperature,omitempty"`
	TopP           *float64            `json:"top_p,omitempty"`
	TopK           *int                `json:"top_k,omitempty"`
	MaxTokens      *int                `json:"max_tokens,omitempty"`
	User           string              `json:"user,omitempty"`
	ConversationID string              `json:"conversation_id,omitempty"`
}

type completionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionChoice struct {
	Index        int                `json:"index"`
	Message      *completionMessage `json:"message,omitempty"`
	Delta        *completionMessage `json:"delta,omitempty"`
	FinishReason *string            `json:"finish_reason"`
}

type completionResponse struct {
	ID             string             `json:"id"`
	Object         string             `json:"object"`
	Created        int64              `json:"created"`
	Model          string             `json:"model"`
	Choices        []completionChoice `json:"choices"`
	ConversationID string             `json:"conversation_id,omitempty"`
}

func (s *Server) handleCompletions(c *gin.Context) {
	var req completionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}

	question := lastUserContent(req.Messages)
	if question == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no user message in request"})
		return
	}

	account := accountFromContext(c)
	conversationID := req.ConversationID
	if conversationID == "" {
		userID := req.User
		if userID == "" {
			userID = "api"
		}
		conversation, err := s.db.QueryCreateConversation(c.Request.Context(), account, userID, nil)
		if err != nil {
			s.logger.Error("create conversation failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "create conversation failed"})
			return
		}
		conversationID = models.MustRecordIDString(conversation.ID)
	}

	opts := service.CompleteOptions{
		Model:       req.Model,
		Temperature: req.Temperature,
		TopK:        req.TopK,
		TopP:        req.TopP,
		MaxTokens:   req.MaxTokens,
	}

	if req.Stream {
		s.streamCompletion(c, conversationID, question, opts, req.Model)
		return
	}

	answer, err := s.orchestrator.Complete(c.Request.Context(), conversationID, question, opts)
	if err != nil {
		s.logger.Error("completion failed", "conversation", conversationID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "completion failed"})
		return
	}

	finish := "stop"
	c.JSON(http.StatusOK, completionResponse{
		ID:      completionID(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []completionChoice{{
			Message:      &completionMessage{Role: models.RoleAssistant, Content: answer.Content},
			FinishReason: &finish,
		}},
		ConversationID: conversationID,
	})
}

// streamCompletion writes chat.completion.chunk SSE frames terminated by a
// [DONE] sentinel.
func (s *Server) streamCompletion(c *gin.Context, conversationID, question string, opts service.CompleteOptions, model string) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}

	id := completionID()
	created := time.Now().Unix()

	writeChunk := func(delta *completionMessage, finish *string) error {
		frame := completionResponse{
			ID:             id,
			Object:         "chat.completion.chunk",
			Created:        created,
			Model:          model,
			Choices:        []completionChoice{{Delta: delta, FinishReason: finish}},
			ConversationID: conversationID,
		}
		payload, err := json.Marshal(frame)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", payload); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	opts.OnDelta = func(delta string) error {
		return writeChunk(&completionMessage{Role: models.RoleAssistant, Content: delta}, nil)
	}

	if _, err := s.orchestrator.Complete(c.Request.Context(), conversationID, question, opts); err != nil {
		s.logger.Error("streaming completion failed", "conversation", conversationID, "error", err)
		fmt.Fprintf(c.Writer, "event: error\ndata: %s\n\n", sanitizeSSE(err.Error()))
		flusher.Flush()
		return
	}

	finish := "stop"
	if err := writeChunk(&completionMessage{}, &finish); err != nil {
		return
	}
	fmt.Fprint(c.Writer, "data: [DONE]\n\n")
	flusher.Flush()
}

func (s *Server) handleCreateConversation(c *gin.Context) {
	var req struct {
		UserID string  `json:"user_id"`
		Parent *string `json:"parent,omitempty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	if req.UserID == "" {
		req.UserID = "api"
	}

	conversation, err := s.db.QueryCreateConversation(c.Request.Context(), accountFromContext(c), req.UserID, req.Parent)
	if err != nil {
		s.logger.Error("create conversation failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create conversation failed"})
		return
	}
	c.JSON(http.StatusCreated, conversation)
}

func (s *Server) handleListMessages(c *gin.Context) {
	messages, err := s.db.QueryListMessages(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list messages failed"})
		return
	}
	c.JSON(http.StatusOK, messages)
}

func (s *Server) handleStopConversation(c *gin.Context) {
	conversationID := c.Param("id")
	stopped := s.jobs.StopRun(conversationID)

	if err := s.db.QuerySetGenerating(c.Request.Context(), conversationID, false); err != nil {
		s.logger.Warn("failed to clear generating flag", "conversation", conversationID, "error", err)
	}

	c.JSON(http.StatusOK, gin.H{"stopped": stopped})
}

func (s *Server) handleSearch(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing query parameter q"})
		return
	}

	chunks, err := s.retriever.Retrieve(c.Request.Context(), accountFromContext(c), query)
	if err != nil {
		s.logger.Error("search failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"chunks": chunks})
}

func lastUserContent(messages []completionMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == models.RoleUser {
			return strings.TrimSpace(messages[i].Content)
		}
	}
	return ""
}

func completionID() string {
	return "chatcmpl-" + strings.ReplaceAll(uuid.New().String(), "-", "")
}

func sanitizeSSE(input string) string {
	replaced := strings.ReplaceAll(input, "\r\n", "\\n")
	return strings.ReplaceAll(replaced, "\n", "\\n")
}
