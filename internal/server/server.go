// Package server exposes the docpilot HTTP API: OpenAI-compatible
// completions, source and tool server management, job inspection and a
// websocket event feed.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fkaule/docpilot/internal/config"
	"github.com/fkaule/docpilot/internal/db"
	"github.com/fkaule/docpilot/internal/metrics"
	"github.com/fkaule/docpilot/internal/pubsub"
	"github.com/fkaule/docpilot/internal/service"
	"github.com/fkaule/docpilot/internal/toolgw"
)

// Server holds the HTTP surface and its dependencies.
type Server struct {
	db           *db.Client
	ingest       *service.IngestService
	retriever    *service.Retriever
	orchestrator *service.CompletionOrchestrator
	jobs         *service.JobManager
	gateway      *toolgw.Gateway
	broker       *pubsub.Broker[pubsub.MessageEvent]
	collector    *metrics.Collector
	cfg          config.Config
	logger       *slog.Logger

	httpServer *http.Server
}

// New creates the server. The gin engine is built lazily by Router.
func New(
	dbClient *db.Client,
	ingest *service.IngestService,
	retriever *service.Retriever,
	orchestrator *service.CompletionOrchestrator,
	jobs *service.JobManager,
	gateway *toolgw.Gateway,
	broker *pubsub.Broker[pubsub.MessageEvent],
	collector *metrics.Collector,
	cfg config.Config,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		db:           dbClient,
		ingest:       ingest,
		retriever:    retriever,
		orchestrator: orchestrator,
		jobs:         jobs,
		gateway:      gateway,
		broker:       broker,
		collector:    collector,
		cfg:          cfg,
		logger:       logger,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api/v1", s.auth())
	{
		api.POST("/completions", s.handleCompletions)

		api.POST("/sources", s.handleCreateSource)
		api.GET("/sources", s.handleListSources)
		api.GET("/sources/:id", s.handleGetSource)
		api.PUT("/sources/:id/content", s.handleUpdateSourceContent)
		api.DELETE("/sources/:id", s.handleDeleteSource)

		api.POST("/ingest", s.handleIngestAsync)
		api.GET("/jobs", s.handleListJobs)
		api.GET("/jobs/:id", s.handleGetJob)

		api.GET("/search", s.handleSearch)

		api.POST("/conversations", s.handleCreateConversation)
		api.GET("/conversations/:id/messages", s.handleListMessages)
		api.POST("/conversations/:id/stop", s.handleStopConversation)
		api.GET("/conversations/:id/events", s.handleEvents)
		api.POST("/conversations/:id/toolservers/:serverID", s.handleBindToolServer)

		api.POST("/toolservers", s.handleCreateToolServer)
		api.GET("/toolservers", s.handleListToolServers)
		api.GET("/toolservers/:id", s.handleGetToolServer)
		api.DELETE("/toolservers/:id", s.handleDeleteToolServer)
		api.POST("/toolservers/:id/connect", s.handleConnectToolServer)
		api.POST("/toolservers/:id/disconnect", s.handleDisconnectToolServer)
		api.GET("/toolservers/:id/tools", s.handleToolServerTools)

		api.GET("/stats", s.handleStats)
	}

	return router
}

// Start runs the HTTP server until the context is cancelled, then shuts
// down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              ":" + s.cfg.ServerPort,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.collector.Snapshot())
}
