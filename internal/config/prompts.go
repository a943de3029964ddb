package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Prompts holds the instruction templates used by the chat pipeline.
// The query template supports {context} and {question} placeholders.
type Prompts struct {
	SystemPrompt     string `yaml:"system_prompt"`
	QueryTemplate    string `yaml:"query_prompt_template"`
	ContextGuard     string `yaml:"context_guard_prompt"`
	AnswerGuard      string `yaml:"answer_guard_prompt"`
	IrrelevantNotice string `yaml:"irrelevant_notice"`
}

// DefaultPrompts returns the built-in prompt set.
func DefaultPrompts() Prompts {
	return Prompts{
		SystemPrompt: "You are Docpilot. You are a helpful assistant. Answer using the provided context when it is available.",
		QueryTemplate: "Docpilot helpful content: {context}\n\n---\n\n" +
			"Now here is the question you need to answer.\n\nQuestion: {question}",
		ContextGuard:     "Determine if the provided context is relevant to answer the question. Respond with 'true' or 'false'.",
		AnswerGuard:      "Determine if the provided answer is relevant to the question. Respond with 'true' or 'false'.",
		IrrelevantNotice: "Note: this answer may not address your question.",
	}
}

// LoadPrompts reads prompt templates from a YAML file, filling any missing
// field from the defaults. An empty path returns the defaults unchanged.
func LoadPrompts(path string) (Prompts, error) {
	prompts := DefaultPrompts()
	if path == "" {
		return prompts, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return prompts, fmt.Errorf("read prompts file: %w", err)
	}

	var loaded Prompts
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return prompts, fmt.Errorf("parse prompts file: %w", err)
	}

	if loaded.SystemPrompt != "" {
		prompts.SystemPrompt = loaded.SystemPrompt
	}
	if loaded.QueryTemplate != "" {
		prompts.QueryTemplate = loaded.QueryTemplate
	}
	if loaded.ContextGuard != "" {
		prompts.ContextGuard = loaded.ContextGuard
	}
	if loaded.AnswerGuard != "" {
		prompts.AnswerGuard = loaded.AnswerGuard
	}
	if loaded.IrrelevantNotice != "" {
		prompts.IrrelevantNotice = loaded.IrrelevantNotice
	}

	return prompts, nil
}
