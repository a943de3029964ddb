// Package db provides SurrealDB query functions for persisted ingest jobs.
package db

import (
	"context"
	"fmt"

	"github.com/fkaule/docpilot/internal/models"
	"github.com/surrealdb/surrealdb.go"
)

// QueryCreateJob persists a new job row with the caller-provided ID.
func (c *Client) QueryCreateJob(ctx context.Context, id, jobType, accountID string, sourceIDs []string, total int) (*models.IngestJob, error) {
	sql := `
		CREATE type::record("ingest_job", $id) SET
			job_type = $job_type,
			account_id = $account,
			source_ids = $source_ids,
			total = $total
		RETURN AFTER
	`

	results, err := surrealdb.Query[[]models.IngestJob](ctx, c.db, sql, map[string]any{
		"id":         id,
		"job_type":   jobType,
		"account":    accountID,
		"source_ids": sourceIDs,
		"total":      total,
	})
	if err != nil {
		return nil, fmt.Errorf("create job: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("create job: no result returned")
	}
	return &(*results)[0].Result[0], nil
}

// QueryStartJob marks a job running.
func (c *Client) QueryStartJob(ctx context.Context, id string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("ingest_job", $id) SET
			status = "running",
			started_at = time::now()
	`, map[string]any{"id": id})
	if err != nil {
		return fmt.Errorf("start job: %w", wrapQueryError(err))
	}
	return nil
}

// QueryUpdateJobProgress records incremental progress.
func (c *Client) QueryUpdateJobProgress(ctx context.Context, id string, progress int) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("ingest_job", $id) SET progress = $progress
	`, map[string]any{"id": id, "progress": progress})
	if err != nil {
		return fmt.Errorf("update job progress: %w", wrapQueryError(err))
	}
	return nil
}

// QueryCompleteJob marks a job completed with its result payload.
func (c *Client) QueryCompleteJob(ctx context.Context, id string, result map[string]any) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("ingest_job", $id) SET
			status = "completed",
			progress = total,
			result = $result,
			completed_at = time::now()
	`, map[string]any{"id": id, "result": result})
	if err != nil {
		return fmt.Errorf("complete job: %w", wrapQueryError(err))
	}
	return nil
}

// QueryFailJob marks a job failed with its error message.
func (c *Client) QueryFailJob(ctx context.Context, id, errMsg string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("ingest_job", $id) SET
			status = "failed",
			error = $error,
			completed_at = time::now()
	`, map[string]any{"id": id, "error": errMsg})
	if err != nil {
		return fmt.Errorf("fail job: %w", wrapQueryError(err))
	}
	return nil
}

// QueryGetJob retrieves a job by ID.
// Returns nil if not found.
func (c *Client) QueryGetJob(ctx context.Context, id string) (*models.IngestJob, error) {
	results, err := surrealdb.Query[[]models.IngestJob](ctx, c.db, `
		SELECT * FROM type::record("ingest_job", $id)
	`, map[string]any{"id": id})

	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	return &(*results)[0].Result[0], nil
}

// QueryListJobs returns the account's jobs, newest first.
func (c *Client) QueryListJobs(ctx context.Context, accountID string, limit int) ([]models.IngestJob, error) {
	results, err := surrealdb.Query[[]models.IngestJob](ctx, c.db, `
		SELECT * FROM ingest_job
		WHERE account_id = $account
		ORDER BY started_at DESC
		LIMIT $limit
	`, map[string]any{"account": accountID, "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []models.IngestJob{}, nil
	}
	return (*results)[0].Result, nil
}
