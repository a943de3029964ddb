// Package models defines data structures for the docpilot RAG store.
package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// SourceKind identifies how a source entered the system.
type SourceKind string

const (
	SourceKindDocument SourceKind = "document"
	SourceKindWebsite  SourceKind = "website"
	SourceKindText     SourceKind = "text"
	SourceKindQna      SourceKind = "qna"
)

// Source is an ingested document, website, raw text or Q&A item.
// Its content is Markdown (possibly produced by the conversion service);
// changing the content triggers a full re-chunkify.
type Source struct {
	ID        surrealmodels.RecordID `json:"id"`
	Account   surrealmodels.RecordID `json:"account"`
	Kind      SourceKind             `json:"kind"`
	Title     string                 `json:"title"`
	URL       *string                `json:"url,omitempty"`
	Content   string                 `json:"content"`
	Metadata  map[string]any         `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// SourceInput is the payload for creating a source.
type SourceInput struct {
	AccountID string         `json:"account_id"`
	Kind      SourceKind     `json:"kind"`
	Title     string         `json:"title"`
	URL       *string        `json:"url,omitempty"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}
