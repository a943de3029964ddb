// Package guard runs relevance checks on retrieved context and generated
// answers using a small, optional guard model.
package guard

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fkaule/docpilot/internal/config"
	"github.com/tmc/langchaingo/llms"
)

// Checker is the single-shot judgment the guard needs from a model.
// *llm.Model satisfies it.
type Checker interface {
	GenerateWithSystem(ctx context.Context, systemPrompt, userPrompt string, opts ...llms.CallOption) (string, error)
}

// RelevanceGuard decides whether retrieved chunks and finished answers are
// relevant to a question. A nil model disables guarding: everything passes.
type RelevanceGuard struct {
	model   Checker
	prompts config.Prompts
	logger  *slog.Logger
}

// New creates a relevance guard. model may be nil to disable guarding.
func New(model Checker, prompts config.Prompts, logger *slog.Logger) *RelevanceGuard {
	if logger == nil {
		logger = slog.Default()
	}
	return &RelevanceGuard{model: model, prompts: prompts, logger: logger}
}

// Enabled reports whether a guard model is configured.
func (g *RelevanceGuard) Enabled() bool {
	return g.model != nil
}

// ContextRelevant reports whether a retrieved chunk helps answer the
// question. Guard failures are recovered locally: a provider error drops the
// chunk rather than aborting the turn.
func (g *RelevanceGuard) ContextRelevant(ctx context.Context, chunkText, question string) bool {
	if g.model == nil {
		return true
	}

	verdict, err := g.check(ctx, g.prompts.ContextGuard, chunkText, question)
	if err != nil {
		g.logger.Warn("context guard check failed, dropping chunk", "error", err)
		return false
	}
	return verdict
}

// AnswerRelevant reports whether a finished answer addresses the question.
// A provider error resolves to relevant: a completed answer is never hidden
// because the guard was down.
func (g *RelevanceGuard) AnswerRelevant(ctx context.Context, answerText, question string) bool {
	if g.model == nil {
		return true
	}

	verdict, err := g.check(ctx, g.prompts.AnswerGuard, answerText, question)
	if err != nil {
		g.logger.Warn("answer guard check failed, keeping answer", "error", err)
		return true
	}
	return verdict
}

func (g *RelevanceGuard) check(ctx context.Context, instruction, text, question string) (bool, error) {
	userPrompt := fmt.Sprintf("Question: %s\n\nContext:\n%s", question, text)

	response, err := g.model.GenerateWithSystem(ctx, instruction, userPrompt, llms.WithTemperature(0))
	if err != nil {
		return false, err
	}

	// Anything other than a literal "true" is treated as not relevant.
	return strings.TrimSpace(strings.ToLower(response)) == "true", nil
}
