// Package service provides the ingestion, retrieval and chat pipelines.
package service

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fkaule/docpilot/internal/db"
)

// JobStatus represents the state of a background job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Job represents a background ingestion job.
type Job struct {
	ID          string
	Type        string // "ingest"
	Status      JobStatus
	AccountID   string
	SourceIDs   []string
	Progress    int
	Total       int
	Result      *IngestResult
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time

	mu                 sync.RWMutex
	lastProgressUpdate time.Time // debounces DB writes
}

// JobManager tracks background ingestion jobs and serializes real-time
// completion runs per conversation.
type JobManager struct {
	mu          sync.RWMutex
	jobs        map[string]*Job
	runs        map[string]context.CancelFunc
	concurrency int
	db          *db.Client
	logger      *slog.Logger
}

// NewJobManager creates a new job manager.
func NewJobManager(concurrency int, dbClient *db.Client, logger *slog.Logger) *JobManager {
	if concurrency <= 0 {
		concurrency = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &JobManager{
		jobs:        make(map[string]*Job),
		runs:        make(map[string]context.CancelFunc),
		concurrency: concurrency,
		db:          dbClient,
		logger:      logger,
	}
}

// Concurrency returns the configured worker count.
func (m *JobManager) Concurrency() int {
	return m.concurrency
}

// CreateJob creates a new pending job and persists it.
func (m *JobManager) CreateJob(ctx context.Context, jobType, accountID string, total int) (*Job, error) {
	job := &Job{
		ID:        uuid.New().String()[:8], // short ID for convenience
		Type:      jobType,
		Status:    JobStatusPending,
		AccountID: accountID,
		StartedAt: time.Now(),
		Total:     total,
	}

	if m.db != nil {
		if _, err := m.db.QueryCreateJob(ctx, job.ID, jobType, accountID, nil, total); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	m.logger.Info("job created", "job_id", job.ID, "type", jobType, "total", total)
	return job, nil
}

// GetJob retrieves a job by ID from the in-memory map.
func (m *JobManager) GetJob(id string) *Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[id]
}

// ListJobs returns all in-memory jobs, most recent first.
func (m *JobManager) ListJobs() []*Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job)
	}

	slices.SortFunc(jobs, func(a, b *Job) int {
		return b.StartedAt.Compare(a.StartedAt)
	})

	return jobs
}

// SetRunning marks a job as running.
func (m *JobManager) SetRunning(ctx context.Context, job *Job) {
	job.mu.Lock()
	job.Status = JobStatusRunning
	job.mu.Unlock()

	if m.db != nil {
		if err := m.db.QueryStartJob(ctx, job.ID); err != nil {
			m.logger.Warn("failed to set job running", "job_id", job.ID, "error", err)
		}
	}
}

// UpdateProgress updates job progress with debounced DB persistence.
func (m *JobManager) UpdateProgress(ctx context.Context, job *Job, current int) {
	job.mu.Lock()
	job.Progress = current
	if job.Status == JobStatusPending {
		job.Status = JobStatusRunning
	}

	// Persist at most every 5 seconds, plus the first and last update.
	shouldPersist := m.db != nil && (time.Since(job.lastProgressUpdate) > 5*time.Second ||
		current == job.Total)
	if shouldPersist {
		job.lastProgressUpdate = time.Now()
	}
	job.mu.Unlock()

	if shouldPersist {
		if err := m.db.QueryUpdateJobProgress(ctx, job.ID, current); err != nil {
			m.logger.Warn("failed to persist job progress", "job_id", job.ID, "error", err)
		}
	}
}

// Complete marks a job as completed with its result.
func (m *JobManager) Complete(ctx context.Context, job *Job, result *IngestResult) {
	job.mu.Lock()
	job.Status = JobStatusCompleted
	job.Progress = job.Total
	job.Result = result
	job.SourceIDs = result.SourceIDs
	now := time.Now()
	job.CompletedAt = &now
	job.mu.Unlock()

	if m.db != nil {
		resultMap := map[string]any{
			"sources_created": result.SourcesCreated,
			"chunks_created":  result.ChunksCreated,
			"source_ids":      result.SourceIDs,
			"errors":          result.Errors,
		}
		if err := m.db.QueryCompleteJob(ctx, job.ID, resultMap); err != nil {
			m.logger.Warn("failed to persist job completion", "job_id", job.ID, "error", err)
		}
	}

	m.logger.Info("job completed", "job_id", job.ID, "sources", result.SourcesCreated, "chunks", result.ChunksCreated, "errors", len(result.Errors))
}

// Fail marks a job as failed.
func (m *JobManager) Fail(ctx context.Context, job *Job, err error) {
	job.mu.Lock()
	job.Status = JobStatusFailed
	job.Error = err.Error()
	now := time.Now()
	job.CompletedAt = &now
	job.mu.Unlock()

	if m.db != nil {
		if dbErr := m.db.QueryFailJob(ctx, job.ID, err.Error()); dbErr != nil {
			m.logger.Warn("failed to persist job failure", "job_id", job.ID, "error", dbErr)
		}
	}

	m.logger.Error("job failed", "job_id", job.ID, "error", err)
}

// BeginRun registers an in-flight completion for a conversation. At most one
// completion runs per conversation; a second request while the first is live
// returns false.
func (m *JobManager) BeginRun(conversationID string, cancel context.CancelFunc) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, live := m.runs[conversationID]; live {
		return false
	}
	m.runs[conversationID] = cancel
	return true
}

// EndRun clears the in-flight completion for a conversation.
func (m *JobManager) EndRun(conversationID string) {
	m.mu.Lock()
	delete(m.runs, conversationID)
	m.mu.Unlock()
}

// StopRun cancels the conversation's in-flight completion, if any. The
// orchestrator seals the partial content on its way out.
func (m *JobManager) StopRun(conversationID string) bool {
	m.mu.Lock()
	cancel, ok := m.runs[conversationID]
	if ok {
		delete(m.runs, conversationID)
	}
	m.mu.Unlock()

	if ok {
		cancel()
	}
	return ok
}

// Snapshot returns a thread-safe copy of the job state.
func (j *Job) Snapshot() Job {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return Job{
		ID:          j.ID,
		Type:        j.Type,
		Status:      j.Status,
		AccountID:   j.AccountID,
		SourceIDs:   j.SourceIDs,
		Progress:    j.Progress,
		Total:       j.Total,
		Result:      j.Result,
		Error:       j.Error,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}
}
