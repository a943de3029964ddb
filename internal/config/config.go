// Package config loads process configuration from the environment once at
// startup into an immutable struct.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Provider identifies an LLM / embedding backend.
type Provider string

const (
	ProviderOllama Provider = "ollama"
	ProviderOpenAI Provider = "openai"
)

// Config holds all configuration values.
type Config struct {
	// SurrealDB connection
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// LLM generation
	AIProvider   Provider
	LLMModel     string
	GuardModel   string // empty disables relevance guarding
	OllamaHost   string
	AIBaseURL    string
	AIAPIKey     string
	LLMMaxTokens int
	Temperature  float64
	TopK         int
	TopP         float64

	// Embedding
	EmbedProvider   Provider
	EmbedModel      string
	EmbedDimensions int
	EmbedBaseURL    string

	// Retrieval
	RetrievalFetchK int

	// Chunking
	ChunkMaxTokens  int
	ChunkMinTokens  int
	ChunkMergePeers bool

	// Document conversion (docling-serve); empty base URL disables conversion
	DoclingBaseURL      string
	ConvertPollInterval time.Duration
	ConvertTimeout      time.Duration

	// Server
	ServerPort string
	APIToken   string

	// Job execution
	JobConcurrency int

	// Logging
	LogFile  string
	LogLevel slog.Level

	// Prompt templates
	PromptsFile string
}

// Load reads configuration from environment variables.
func Load() Config {
	return Config{
		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "docpilot"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "main"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),

		AIProvider:   Provider(getEnv("AI_PROVIDER", "ollama")),
		LLMModel:     getEnv("LLM_MODEL", "granite3.3:2b"),
		GuardModel:   getEnv("GUARD_MODEL", ""),
		OllamaHost:   getEnv("OLLAMA_HOST", "http://localhost:11434"),
		AIBaseURL:    getEnv("AI_BASE_URL", ""),
		AIAPIKey:     getEnv("AI_API_KEY", ""),
		LLMMaxTokens: getEnvInt("LLM_MAX_TOKENS", 1024),
		Temperature:  getEnvFloat("LLM_TEMPERATURE", 0.1),
		TopK:         getEnvInt("LLM_TOP_K", 40),
		TopP:         getEnvFloat("LLM_TOP_P", 0.9),

		EmbedProvider:   Provider(getEnv("EMBEDDING_PROVIDER", getEnv("AI_PROVIDER", "ollama"))),
		EmbedModel:      getEnv("EMBEDDING_MODEL", "granite-embedding:278m"),
		EmbedDimensions: getEnvInt("EMBEDDING_DIMENSIONS", 768),
		EmbedBaseURL:    getEnv("EMBEDDING_BASE_URL", ""),

		RetrievalFetchK: getEnvInt("RETRIEVAL_FETCH_K", 4),

		ChunkMaxTokens:  getEnvInt("CHUNK_MAX_TOKENS", 512),
		ChunkMinTokens:  getEnvInt("CHUNK_MIN_TOKENS", 128),
		ChunkMergePeers: getEnv("CHUNK_MERGE_PEERS", "true") != "false",

		DoclingBaseURL:      getEnv("DOCLING_SERVE_BASE_URL", ""),
		ConvertPollInterval: getEnvDuration("CONVERT_POLL_INTERVAL", time.Second),
		ConvertTimeout:      getEnvDuration("CONVERT_TIMEOUT", 5*time.Minute),

		ServerPort: getEnv("DOCPILOT_PORT", "8088"),
		APIToken:   getEnv("DOCPILOT_API_TOKEN", ""),

		JobConcurrency: getEnvInt("JOB_CONCURRENCY", 4),

		LogFile:  getEnv("DOCPILOT_LOG_FILE", "/tmp/docpilot.log"),
		LogLevel: parseLogLevel(getEnv("DOCPILOT_LOG_LEVEL", "INFO")),

		PromptsFile: getEnv("DOCPILOT_PROMPTS_FILE", ""),
	}
}

// GuardEnabled reports whether a guard model is configured.
func (c Config) GuardEnabled() bool {
	return c.GuardModel != ""
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
