package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/fkaule/docpilot/internal/config"
	"github.com/fkaule/docpilot/internal/db"
	"github.com/fkaule/docpilot/internal/guard"
	"github.com/fkaule/docpilot/internal/llm"
	"github.com/fkaule/docpilot/internal/metrics"
	"github.com/fkaule/docpilot/internal/models"
	"github.com/fkaule/docpilot/internal/pubsub"
	"github.com/fkaule/docpilot/internal/toolgw"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// maxToolRounds bounds the model/tool round trip loop.
const maxToolRounds = 5

// streamFlushInterval throttles persistence of streamed partial content.
const streamFlushInterval = 300 * time.Millisecond

// conversationStore is the slice of the db client the orchestrator uses.
// *db.Client satisfies it; tests substitute fakes.
type conversationStore interface {
	QueryGetConversation(ctx context.Context, id string) (*models.Conversation, error)
	QueryUpdateConversationParams(ctx context.Context, id string, params map[string]any) (*models.Conversation, error)
	QuerySetGenerating(ctx context.Context, id string, generating bool) error
	QueryListMessages(ctx context.Context, conversationID string) ([]models.Message, error)
	QueryCreateMessage(ctx context.Context, conversationID, role, content string, metadata map[string]any) (*models.Message, error)
	QueryUpdateMessageContent(ctx context.Context, id, content string) error
	QuerySealMessage(ctx context.Context, id string, similarChunkIDs []surrealmodels.RecordID) error
	QueryUnsealedAssistant(ctx context.Context, conversationID string) (*models.Message, error)
	QueryUserMessagesSince(ctx context.Context, conversationID string, since time.Time) ([]models.Message, error)
	QueryDeleteMessage(ctx context.Context, id string) error
	QueryListToolBindings(ctx context.Context, conversationID string, enabledOnly bool) ([]models.ToolBinding, error)
	QueryBumpToolCall(ctx context.Context, bindingID string) error
}

// CompletionOrchestrator runs a grounded chat turn: retrieval, prompt
// assembly, tool round trips, streaming generation and message sealing.
type CompletionOrchestrator struct {
	db        conversationStore
	model     *llm.Model
	guard     *guard.RelevanceGuard
	retriever *Retriever
	gateway   *toolgw.Gateway
	jobs      *JobManager
	broker    *pubsub.Broker[pubsub.MessageEvent]
	collector *metrics.Collector
	prompts   config.Prompts
	defaults  GenerationParams
	logger    *slog.Logger
}

// GenerationParams are the resolved model parameters for one turn.
type GenerationParams struct {
	Model       string
	Temperature float64
	TopK        int
	TopP        float64
	MaxTokens   int
}

// CompleteOptions carries per-call overrides and the streaming callback.
// Call values win over conversation values, which win over process defaults.
type CompleteOptions struct {
	Model       string
	Temperature *float64
	TopK        *int
	TopP        *float64
	MaxTokens   *int

	// OnDelta receives streamed answer fragments; nil disables the callback.
	OnDelta func(delta string) error
}

// NewCompletionOrchestrator wires the chat pipeline together.
func NewCompletionOrchestrator(
	dbClient *db.Client,
	model *llm.Model,
	relevanceGuard *guard.RelevanceGuard,
	retriever *Retriever,
	gateway *toolgw.Gateway,
	jobs *JobManager,
	broker *pubsub.Broker[pubsub.MessageEvent],
	collector *metrics.Collector,
	prompts config.Prompts,
	cfg config.Config,
	logger *slog.Logger,
) *CompletionOrchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &CompletionOrchestrator{
		db:        dbClient,
		model:     model,
		guard:     relevanceGuard,
		retriever: retriever,
		gateway:   gateway,
		jobs:      jobs,
		broker:    broker,
		collector: collector,
		prompts:   prompts,
		defaults: GenerationParams{
			Model:       cfg.LLMModel,
			Temperature: cfg.Temperature,
			TopK:        cfg.TopK,
			TopP:        cfg.TopP,
			MaxTokens:   cfg.LLMMaxTokens,
		},
		logger: logger,
	}
}

// Complete runs one chat turn for the conversation and returns the sealed
// assistant message. A stopped turn seals its partial content; a provider
// failure leaves the assistant message unsealed and returns the error.
func (o *CompletionOrchestrator) Complete(ctx context.Context, conversationID, question string, opts CompleteOptions) (*models.Message, error) {
	conversation, err := o.db.QueryGetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conversation == nil {
		return nil, fmt.Errorf("conversation not found: %s", conversationID)
	}
	accountID, err := models.RecordIDString(conversation.Account)
	if err != nil {
		return nil, fmt.Errorf("complete: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if o.jobs != nil && !o.jobs.BeginRun(conversationID, cancel) {
		return nil, fmt.Errorf("completion already in progress for conversation %s", conversationID)
	}
	defer func() {
		if o.jobs != nil {
			o.jobs.EndRun(conversationID)
		}
	}()

	params, err := o.resolveParams(ctx, conversation, opts)
	if err != nil {
		return nil, err
	}

	history, err := o.db.QueryListMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	history, err = o.ensureSystemPrompt(ctx, conversationID, history)
	if err != nil {
		return nil, err
	}

	userMsg, turnStart, err := o.resolveUserMessage(ctx, conversationID, question, history)
	if err != nil {
		return nil, err
	}

	if err := o.db.QuerySetGenerating(ctx, conversationID, true); err != nil {
		return nil, err
	}
	defer func() {
		if err := o.db.QuerySetGenerating(context.WithoutCancel(ctx), conversationID, false); err != nil {
			o.logger.Warn("failed to clear generating flag", "conversation", conversationID, "error", err)
		}
	}()

	o.publishProgress(conversationID, pubsub.StageSearching)

	chunks, err := o.retriever.Retrieve(runCtx, accountID, question)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}

	userPrompt := question
	if len(chunks) > 0 {
		contextBlock := renderContextBlock(chunks)
		userPrompt = renderTemplate(o.prompts.QueryTemplate, contextBlock, question)

		// Embed the grounding into the stored user message so the turn is
		// reproducible from history. Question() strips it back out.
		stored := "<context>\n" + contextBlock + "\n</context>\n\n" + question
		userMsgID := models.MustRecordIDString(userMsg.ID)
		if err := o.db.QueryUpdateMessageContent(ctx, userMsgID, stored); err != nil {
			o.logger.Warn("failed to store grounding context", "message", userMsgID, "error", err)
		}
	}

	llmMessages := o.buildLLMMessages(history, userMsg, userPrompt)

	toolRoutes, llmTools, err := o.collectTools(ctx, conversationID)
	if err != nil {
		o.logger.Warn("tool collection failed", "conversation", conversationID, "error", err)
	}

	assistant, err := o.resolveAssistantMessage(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	assistantID := models.MustRecordIDString(assistant.ID)

	o.publishProgress(conversationID, pubsub.StageGenerating)

	answer, genErr := o.generate(runCtx, conversationID, assistantID, llmMessages, params, llmTools, toolRoutes, opts.OnDelta)
	stopped := runCtx.Err() != nil && ctx.Err() == nil
	if genErr != nil && !stopped {
		o.logger.Error("generation failed", "conversation", conversationID, "model", params.Model, "error", genErr)
		return nil, genErr
	}
	if stopped {
		o.logger.Info("completion stopped", "conversation", conversationID, "partial_len", len(answer))
	}

	if !stopped && o.guard != nil && o.guard.Enabled() {
		start := time.Now()
		relevant := o.guard.AnswerRelevant(ctx, answer, question)
		if o.collector != nil {
			o.collector.RecordTiming(metrics.OpGuardCheck, time.Since(start))
		}
		if !relevant {
			answer += "\n\n" + o.prompts.IrrelevantNotice
		}
	}

	sealCtx := context.WithoutCancel(ctx)
	if err := o.db.QueryUpdateMessageContent(sealCtx, assistantID, answer); err != nil {
		return nil, err
	}
	chunkIDs := make([]surrealmodels.RecordID, 0, len(chunks))
	for _, chunk := range chunks {
		chunkIDs = append(chunkIDs, chunk.ID)
	}
	if err := o.db.QuerySealMessage(sealCtx, assistantID, chunkIDs); err != nil {
		return nil, err
	}

	o.reconcileDuplicates(sealCtx, conversationID, userMsg, turnStart)

	assistant.Content = answer
	assistant.Done = true
	assistant.SimilarChunkIDs = chunkIDs

	o.publish(pubsub.FinalizedEvent, pubsub.MessageEvent{
		ConversationID: conversationID,
		MessageID:      assistantID,
		Role:           models.RoleAssistant,
		Content:        answer,
		Done:           true,
	})

	return assistant, nil
}

// resolveParams merges call overrides onto conversation defaults onto process
// defaults and persists any call-provided values on the conversation.
func (o *CompletionOrchestrator) resolveParams(ctx context.Context, conversation *models.Conversation, opts CompleteOptions) (GenerationParams, error) {
	params := o.defaults

	if conversation.Model != "" {
		params.Model = conversation.Model
	}
	if conversation.Temperature != nil {
		params.Temperature = *conversation.Temperature
	}
	if conversation.TopK != nil {
		params.TopK = *conversation.TopK
	}
	if conversation.TopP != nil {
		params.TopP = *conversation.TopP
	}
	if conversation.MaxTokens != nil {
		params.MaxTokens = *conversation.MaxTokens
	}

	updates := map[string]any{}
	if opts.Model != "" && opts.Model != params.Model {
		params.Model = opts.Model
		updates["model"] = opts.Model
	}
	if opts.Temperature != nil {
		params.Temperature = *opts.Temperature
		updates["temperature"] = *opts.Temperature
	}
	if opts.TopK != nil {
		params.TopK = *opts.TopK
		updates["top_k"] = *opts.TopK
	}
	if opts.TopP != nil {
		params.TopP = *opts.TopP
		updates["top_p"] = *opts.TopP
	}
	if opts.MaxTokens != nil {
		params.MaxTokens = *opts.MaxTokens
		updates["max_tokens"] = *opts.MaxTokens
	}

	if len(updates) > 0 {
		id := models.MustRecordIDString(conversation.ID)
		if _, err := o.db.QueryUpdateConversationParams(ctx, id, updates); err != nil {
			return params, err
		}
	}

	return params, nil
}

// ensureSystemPrompt installs the system prompt as the conversation's first
// message exactly once.
func (o *CompletionOrchestrator) ensureSystemPrompt(ctx context.Context, conversationID string, history []models.Message) ([]models.Message, error) {
	for _, msg := range history {
		if msg.Role == models.RoleSystem {
			return history, nil
		}
	}

	msg, err := o.db.QueryCreateMessage(ctx, conversationID, models.RoleSystem, o.prompts.SystemPrompt, nil)
	if err != nil {
		return history, fmt.Errorf("install system prompt: %w", err)
	}
	if err := o.db.QuerySealMessage(ctx, models.MustRecordIDString(msg.ID), nil); err != nil {
		return history, err
	}
	msg.Done = true

	return append([]models.Message{*msg}, history...), nil
}

// resolveUserMessage reuses an already-persisted user message for this
// question when it is still unanswered, otherwise creates a new one.
func (o *CompletionOrchestrator) resolveUserMessage(ctx context.Context, conversationID, question string, history []models.Message) (*models.Message, time.Time, error) {
	normalized := normalizeQuestion(question)

	for i := len(history) - 1; i >= 0; i-- {
		msg := history[i]
		if msg.Role == models.RoleAssistant && msg.Done {
			break
		}
		if msg.Role == models.RoleUser && msg.NormalizedQuestion() == normalized {
			return &history[i], msg.CreatedAt, nil
		}
	}

	turnStart := time.Now()
	msg, err := o.db.QueryCreateMessage(ctx, conversationID, models.RoleUser, question, nil)
	if err != nil {
		return nil, turnStart, fmt.Errorf("create user message: %w", err)
	}
	if err := o.db.QuerySealMessage(ctx, models.MustRecordIDString(msg.ID), nil); err != nil {
		return nil, turnStart, err
	}
	msg.Done = true

	o.publish(pubsub.CreatedEvent, pubsub.MessageEvent{
		ConversationID: conversationID,
		MessageID:      models.MustRecordIDString(msg.ID),
		Role:           models.RoleUser,
		Content:        question,
		Done:           true,
	})

	return msg, turnStart, nil
}

// resolveAssistantMessage reuses the conversation's unsealed assistant
// message or creates a fresh one. At most one exists at a time.
func (o *CompletionOrchestrator) resolveAssistantMessage(ctx context.Context, conversationID string) (*models.Message, error) {
	existing, err := o.db.QueryUnsealedAssistant(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	msg, err := o.db.QueryCreateMessage(ctx, conversationID, models.RoleAssistant, "", nil)
	if err != nil {
		return nil, fmt.Errorf("create assistant message: %w", err)
	}
	return msg, nil
}

// buildLLMMessages converts stored history into the provider message list,
// ending with the current (possibly grounded) user prompt.
func (o *CompletionOrchestrator) buildLLMMessages(history []models.Message, userMsg *models.Message, userPrompt string) []llms.MessageContent {
	var out []llms.MessageContent

	for _, msg := range history {
		if msg.ID == userMsg.ID {
			continue
		}
		switch msg.Role {
		case models.RoleSystem:
			out = append(out, llms.TextParts(llms.ChatMessageTypeSystem, msg.Content))
		case models.RoleUser:
			out = append(out, llms.TextParts(llms.ChatMessageTypeHuman, msg.Question()))
		case models.RoleAssistant:
			if msg.Done && msg.ResponseContent() != "" {
				out = append(out, llms.TextParts(llms.ChatMessageTypeAI, msg.ResponseContent()))
			}
		}
	}

	return append(out, llms.TextParts(llms.ChatMessageTypeHuman, userPrompt))
}

// toolRoute maps a tool name to the server and binding that provide it.
type toolRoute struct {
	serverID  string
	bindingID string
}

// collectTools gathers the conversation's tool set: the union of enabled
// bindings whose server is currently ready. First registration wins on name
// collisions.
func (o *CompletionOrchestrator) collectTools(ctx context.Context, conversationID string) (map[string]toolRoute, []llms.Tool, error) {
	if o.gateway == nil {
		return nil, nil, nil
	}

	bindings, err := o.db.QueryListToolBindings(ctx, conversationID, true)
	if err != nil {
		return nil, nil, err
	}

	routes := make(map[string]toolRoute)
	var tools []llms.Tool
	for _, binding := range bindings {
		serverID := models.MustRecordIDString(binding.ToolServer)
		for _, tool := range o.gateway.Tools(serverID) {
			if _, taken := routes[tool.Name]; taken {
				continue
			}
			routes[tool.Name] = toolRoute{
				serverID:  serverID,
				bindingID: models.MustRecordIDString(binding.ID),
			}
			tools = append(tools, llms.Tool{
				Type: "function",
				Function: &llms.FunctionDefinition{
					Name:        tool.Name,
					Description: tool.Description,
					Parameters:  tool.InputSchema,
				},
			})
		}
	}

	return routes, tools, nil
}

// generate runs the model/tool loop, streaming deltas into the assistant
// message. Returns whatever content accumulated, even on error.
func (o *CompletionOrchestrator) generate(
	ctx context.Context,
	conversationID, assistantID string,
	llmMessages []llms.MessageContent,
	params GenerationParams,
	llmTools []llms.Tool,
	toolRoutes map[string]toolRoute,
	onDelta func(string) error,
) (string, error) {
	var content strings.Builder
	lastFlush := time.Now()

	streamFn := func(_ context.Context, delta []byte) error {
		content.Write(delta)

		o.publish(pubsub.DeltaEvent, pubsub.MessageEvent{
			ConversationID: conversationID,
			MessageID:      assistantID,
			Role:           models.RoleAssistant,
			Content:        string(delta),
		})
		if onDelta != nil {
			if err := onDelta(string(delta)); err != nil {
				return err
			}
		}

		if time.Since(lastFlush) > streamFlushInterval {
			lastFlush = time.Now()
			if err := o.db.QueryUpdateMessageContent(ctx, assistantID, content.String()); err != nil {
				o.logger.Warn("failed to persist partial content", "message", assistantID, "error", err)
			}
		}
		return nil
	}

	callOpts := []llms.CallOption{
		llms.WithModel(params.Model),
		llms.WithTemperature(params.Temperature),
		llms.WithTopK(params.TopK),
		llms.WithTopP(params.TopP),
		llms.WithMaxTokens(params.MaxTokens),
		llms.WithStreamingFunc(streamFn),
	}
	if len(llmTools) > 0 {
		callOpts = append(callOpts, llms.WithTools(llmTools))
	}

	for round := 0; round < maxToolRounds; round++ {
		start := time.Now()
		response, err := o.model.GenerateChat(ctx, llmMessages, callOpts...)
		if err != nil {
			return content.String(), err
		}
		o.recordGeneration(response, time.Since(start))

		choice := response.Choices[0]
		if len(choice.ToolCalls) == 0 {
			if content.Len() == 0 && choice.Content != "" {
				// Provider answered without invoking the streaming callback.
				content.WriteString(choice.Content)
			}
			return content.String(), nil
		}

		// A tool round's streamed fragments are scaffolding, not the answer.
		if content.Len() > 0 {
			content.Reset()
			o.publish(pubsub.RetractedEvent, pubsub.MessageEvent{
				ConversationID: conversationID,
				MessageID:      assistantID,
				Role:           models.RoleAssistant,
			})
			if err := o.db.QueryUpdateMessageContent(ctx, assistantID, ""); err != nil {
				o.logger.Warn("failed to clear tool-round content", "message", assistantID, "error", err)
			}
		}

		llmMessages = append(llmMessages, assistantToolCallMessage(choice.ToolCalls))
		llmMessages = append(llmMessages, o.executeToolCalls(ctx, conversationID, choice.ToolCalls, toolRoutes)...)
	}

	return content.String(), fmt.Errorf("tool round limit reached (%d)", maxToolRounds)
}

// executeToolCalls runs each requested tool through the gateway and returns
// the provider tool-response messages. Tool failures are answers the model
// reads, never turn-ending errors.
func (o *CompletionOrchestrator) executeToolCalls(ctx context.Context, conversationID string, calls []llms.ToolCall, routes map[string]toolRoute) []llms.MessageContent {
	var out []llms.MessageContent

	for _, call := range calls {
		name := call.FunctionCall.Name

		var result toolgw.Result
		route, known := routes[name]
		if !known {
			result = toolgw.Result{Error: fmt.Sprintf("Tool not found: %s", name)}
		} else {
			var args map[string]any
			if err := json.Unmarshal([]byte(call.FunctionCall.Arguments), &args); err != nil {
				result = toolgw.Result{Error: fmt.Sprintf("Invalid tool arguments: %v", err)}
			} else {
				start := time.Now()
				result = o.gateway.ExecuteTool(ctx, route.serverID, name, args)
				if o.collector != nil {
					o.collector.RecordTiming(metrics.OpToolCall, time.Since(start))
				}
				if err := o.db.QueryBumpToolCall(ctx, route.bindingID); err != nil {
					o.logger.Warn("failed to bump tool call count", "binding", route.bindingID, "error", err)
				}
			}
		}

		payload, err := json.Marshal(result)
		if err != nil {
			payload = []byte(`{"error":"failed to encode tool result"}`)
		}

		if msg, err := o.db.QueryCreateMessage(ctx, conversationID, models.RoleTool, string(payload), map[string]any{"tool_name": name}); err != nil {
			o.logger.Warn("failed to persist tool message", "tool", name, "error", err)
		} else if err := o.db.QuerySealMessage(ctx, models.MustRecordIDString(msg.ID), nil); err != nil {
			o.logger.Warn("failed to seal tool message", "tool", name, "error", err)
		}

		out = append(out, llms.MessageContent{
			Role: llms.ChatMessageTypeTool,
			Parts: []llms.ContentPart{llms.ToolCallResponse{
				ToolCallID: call.ID,
				Name:       name,
				Content:    string(payload),
			}},
		})
	}

	return out
}

// reconcileDuplicates deletes user messages the provider re-created for this
// turn. Matching is exact on whitespace-normalized question text.
func (o *CompletionOrchestrator) reconcileDuplicates(ctx context.Context, conversationID string, userMsg *models.Message, turnStart time.Time) {
	candidates, err := o.db.QueryUserMessagesSince(ctx, conversationID, turnStart)
	if err != nil {
		o.logger.Warn("duplicate reconciliation query failed", "conversation", conversationID, "error", err)
		return
	}

	normalized := userMsg.NormalizedQuestion()
	for _, candidate := range candidates {
		if candidate.ID == userMsg.ID || candidate.NormalizedQuestion() != normalized {
			continue
		}
		id := models.MustRecordIDString(candidate.ID)
		if err := o.db.QueryDeleteMessage(ctx, id); err != nil {
			o.logger.Warn("failed to delete duplicate user message", "message", id, "error", err)
			continue
		}
		o.publish(pubsub.RetractedEvent, pubsub.MessageEvent{
			ConversationID: conversationID,
			MessageID:      id,
			Role:           models.RoleUser,
		})
	}
}

func (o *CompletionOrchestrator) recordGeneration(response *llms.ContentResponse, duration time.Duration) {
	if o.collector == nil {
		return
	}

	info := response.Choices[0].GenerationInfo
	input := intFromInfo(info, "PromptTokens")
	output := intFromInfo(info, "CompletionTokens")
	if input > 0 || output > 0 {
		o.collector.RecordLLMUsage(metrics.OpLLMStream, duration, input, output)
		return
	}
	o.collector.RecordTiming(metrics.OpLLMStream, duration)
}

func (o *CompletionOrchestrator) publishProgress(conversationID string, stage string) {
	o.publish(pubsub.ProgressEvent, pubsub.MessageEvent{
		ConversationID: conversationID,
		Stage:          stage,
	})
}

func (o *CompletionOrchestrator) publish(eventType pubsub.EventType, event pubsub.MessageEvent) {
	if o.broker != nil {
		o.broker.Publish(event.ConversationID, eventType, event)
	}
}

// renderContextBlock formats retrieved chunks as an ordinal document list.
func renderContextBlock(chunks []db.ScoredChunk) string {
	var b strings.Builder
	for i, chunk := range chunks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		sourceRef := ""
		if id, err := models.RecordIDString(chunk.Source); err == nil {
			sourceRef = " source=\"source:" + id + "\""
		}
		fmt.Fprintf(&b, "[doc id=\"%d\" title=%q%s]\n%s", i+1, chunk.Title(), sourceRef, chunk.Content)
	}
	return b.String()
}

// renderTemplate fills the query template's {context} and {question}
// placeholders.
func renderTemplate(template, contextBlock, question string) string {
	out := strings.ReplaceAll(template, "{context}", contextBlock)
	return strings.ReplaceAll(out, "{question}", question)
}

func normalizeQuestion(question string) string {
	return strings.Join(strings.Fields(question), " ")
}

func assistantToolCallMessage(calls []llms.ToolCall) llms.MessageContent {
	parts := make([]llms.ContentPart, 0, len(calls))
	for _, call := range calls {
		parts = append(parts, call)
	}
	return llms.MessageContent{Role: llms.ChatMessageTypeAI, Parts: parts}
}

func intFromInfo(info map[string]any, key string) int64 {
	switch v := info[key].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	default:
		return 0
	}
}
