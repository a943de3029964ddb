package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// IngestJob is a persisted async ingestion job (conversion + chunking +
// indexing for one or more sources).
type IngestJob struct {
	ID          surrealmodels.RecordID `json:"id"`
	JobType     string                 `json:"job_type"`
	Status      string                 `json:"status"`
	AccountID   string                 `json:"account_id"`
	SourceIDs   []string               `json:"source_ids,omitempty"`
	Options     map[string]any         `json:"options,omitempty"`
	Total       int                    `json:"total"`
	Progress    int                    `json:"progress"`
	Result      map[string]any         `json:"result,omitempty"`
	Error       *string                `json:"error,omitempty"`
	StartedAt   time.Time              `json:"started_at"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
}
