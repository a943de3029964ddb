package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// Metadata keys written by the segmenter.
const (
	MetaSectionPath     = "section_path"
	MetaHeaderHierarchy = "header_hierarchy"
	MetaCurrentHeader   = "current_header"
	MetaHeaderLevel     = "header_level"
	MetaChunkIndex      = "chunk_index"
	MetaTotalChunks     = "total_chunks"
	MetaContentType     = "content_type"
	MetaKeywords        = "keywords"
	MetaTokenCount      = "token_count"
)

// Chunk is a retrieval-sized passage of a source. Chunks are owned
// exclusively by their source and rebuilt wholesale on re-chunkify.
// A chunk is never persisted with blank content or without an embedding.
type Chunk struct {
	ID        surrealmodels.RecordID `json:"id"`
	Account   surrealmodels.RecordID `json:"account"`
	Source    surrealmodels.RecordID `json:"source"`
	Content   string                 `json:"content"`
	Position  int                    `json:"position"`
	Metadata  map[string]any         `json:"metadata,omitempty"`
	Embedding []float32              `json:"embedding"`
	CreatedAt time.Time              `json:"created_at"`
}

// ChunkInput is the payload for creating chunks during ingestion.
type ChunkInput struct {
	AccountID string         `json:"account_id"`
	SourceID  string         `json:"source_id"`
	Content   string         `json:"content"`
	Position  int            `json:"position"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Embedding []float32      `json:"embedding"`
}

// SectionPath returns the chunk's section path metadata, if any.
func (c *Chunk) SectionPath() string {
	if s, ok := c.Metadata[MetaSectionPath].(string); ok {
		return s
	}
	return ""
}

// Title derives a display title for the chunk: the innermost heading when
// present, otherwise a content prefix.
func (c *Chunk) Title() string {
	if h, ok := c.Metadata[MetaCurrentHeader].(string); ok && h != "" {
		return h
	}
	runes := []rune(c.Content)
	if len(runes) > 42 {
		return string(runes[:42])
	}
	return c.Content
}
