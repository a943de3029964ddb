package server

import (
	"encoding/base64"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fkaule/docpilot/internal/db"
	"github.com/fkaule/docpilot/internal/models"
	"github.com/fkaule/docpilot/internal/service"
)

type sourceRequest struct {
	Kind       string         `json:"kind" binding:"required"`
	Title      string         `json:"title"`
	URL        string         `json:"url"`
	Content    string         `json:"content"`
	FileName   string         `json:"file_name"`
	FileBase64 string         `json:"file_base64"`
	Metadata   map[string]any `json:"metadata"`
}

func (r sourceRequest) toServiceRequest() (service.SourceRequest, error) {
	req := service.SourceRequest{
		Kind:     models.SourceKind(r.Kind),
		Title:    r.Title,
		URL:      r.URL,
		Content:  r.Content,
		FileName: r.FileName,
		Metadata: r.Metadata,
	}
	if r.FileBase64 != "" {
		data, err := base64.StdEncoding.DecodeString(r.FileBase64)
		if err != nil {
			return req, errors.New("file_base64 is not valid base64")
		}
		req.FileData = data
	}
	return req, nil
}

func (s *Server) handleCreateSource(c *gin.Context) {
	var req sourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}

	svcReq, err := req.toServiceRequest()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	source, chunks, err := s.ingest.CreateSource(c.Request.Context(), accountFromContext(c), svcReq)
	if err != nil {
		s.logger.Error("create source failed", "kind", req.Kind, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"source": source, "chunks": chunks})
}

func (s *Server) handleListSources(c *gin.Context) {
	sources, err := s.db.QueryListSources(c.Request.Context(), accountFromContext(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list sources failed"})
		return
	}
	c.JSON(http.StatusOK, sources)
}

func (s *Server) handleGetSource(c *gin.Context) {
	source, err := s.db.QueryGetSource(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get source failed"})
		return
	}
	if source == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "source not found"})
		return
	}
	c.JSON(http.StatusOK, source)
}

func (s *Server) handleUpdateSourceContent(c *gin.Context) {
	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}

	source, chunks, err := s.ingest.UpdateSourceContent(c.Request.Context(), c.Param("id"), req.Content)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "source not found"})
			return
		}
		s.logger.Error("update source failed", "source", c.Param("id"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update source failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"source": source, "chunks": chunks})
}

func (s *Server) handleDeleteSource(c *gin.Context) {
	if err := s.ingest.DeleteSource(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete source failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": c.Param("id")})
}

func (s *Server) handleIngestAsync(c *gin.Context) {
	var req struct {
		Sources []sourceRequest `json:"sources" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}

	requests := make([]service.SourceRequest, 0, len(req.Sources))
	for _, r := range req.Sources {
		svcReq, err := r.toServiceRequest()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		requests = append(requests, svcReq)
	}

	job, err := s.ingest.IngestAsync(c.Request.Context(), s.jobs, accountFromContext(c), requests)
	if err != nil {
		s.logger.Error("ingest job failed to start", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, jobView(job))
}

func (s *Server) handleListJobs(c *gin.Context) {
	jobs := s.jobs.ListJobs()
	views := make([]gin.H, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, jobView(job))
	}
	c.JSON(http.StatusOK, views)
}

func (s *Server) handleGetJob(c *gin.Context) {
	if job := s.jobs.GetJob(c.Param("id")); job != nil {
		c.JSON(http.StatusOK, jobView(job))
		return
	}

	// Fall back to the persisted row for jobs from earlier runs.
	stored, err := s.db.QueryGetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get job failed"})
		return
	}
	if stored == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, stored)
}

func jobView(job *service.Job) gin.H {
	snap := job.Snapshot()
	view := gin.H{
		"id":         snap.ID,
		"type":       snap.Type,
		"status":     snap.Status,
		"progress":   snap.Progress,
		"total":      snap.Total,
		"started_at": snap.StartedAt,
	}
	if snap.Error != "" {
		view["error"] = snap.Error
	}
	if snap.CompletedAt != nil {
		view["completed_at"] = snap.CompletedAt
	}
	if snap.Result != nil {
		view["result"] = snap.Result
	}
	return view
}
