package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fkaule/docpilot/internal/db"
	"github.com/fkaule/docpilot/internal/models"
)

type toolServerRequest struct {
	Name      string            `json:"name" binding:"required"`
	Transport string            `json:"transport" binding:"required"`
	Command   string            `json:"command"`
	Args      []string          `json:"args"`
	Env       map[string]string `json:"env"`
	Endpoint  string            `json:"endpoint"`
	Headers   map[string]string `json:"headers"`
	Token     string            `json:"token"`
	APIKey    string            `json:"api_key"`
	Disabled  bool              `json:"disabled"`
}

func (s *Server) handleCreateToolServer(c *gin.Context) {
	var req toolServerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}

	server, err := s.db.QueryCreateToolServer(c.Request.Context(), models.ToolServerInput{
		AccountID: accountFromContext(c),
		Name:      req.Name,
		Transport: models.TransportKind(req.Transport),
		Command:   req.Command,
		Args:      req.Args,
		Env:       req.Env,
		Endpoint:  req.Endpoint,
		Headers:   req.Headers,
		Token:     req.Token,
		APIKey:    req.APIKey,
		Disabled:  req.Disabled,
	})
	if err != nil {
		if errors.Is(err, db.ErrAlreadyExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "tool server name already registered"})
			return
		}
		s.logger.Error("create tool server failed", "name", req.Name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create tool server failed"})
		return
	}

	c.JSON(http.StatusCreated, server)
}

func (s *Server) handleListToolServers(c *gin.Context) {
	servers, err := s.db.QueryListToolServers(c.Request.Context(), accountFromContext(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list tool servers failed"})
		return
	}

	// Overlay the live in-memory state; the stored status can be stale
	// after a restart.
	for i := range servers {
		id := models.MustRecordIDString(servers[i].ID)
		if live := s.gateway.Status(id); live != models.ToolServerDisconnected {
			servers[i].Status = live
		}
	}

	c.JSON(http.StatusOK, servers)
}

func (s *Server) handleGetToolServer(c *gin.Context) {
	server, err := s.db.QueryGetToolServer(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get tool server failed"})
		return
	}
	if server == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "tool server not found"})
		return
	}
	c.JSON(http.StatusOK, server)
}

func (s *Server) handleDeleteToolServer(c *gin.Context) {
	id := c.Param("id")
	s.gateway.Disconnect(id)

	if err := s.db.QueryDeleteToolServer(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete tool server failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

func (s *Server) handleConnectToolServer(c *gin.Context) {
	id := c.Param("id")
	server, err := s.db.QueryGetToolServer(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get tool server failed"})
		return
	}
	if server == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "tool server not found"})
		return
	}

	info := s.gateway.Connect(c.Request.Context(), server)

	if err := s.db.QueryUpdateToolServerStatus(c.Request.Context(), id, info.Status, info.LastError, &info.LatencyMs); err != nil {
		s.logger.Warn("failed to persist tool server status", "server", id, "error", err)
	}
	if info.Status == models.ToolServerReady {
		if err := s.db.QueryUpdateToolServerCaches(c.Request.Context(), id, info.Tools, info.Prompts, info.Resources); err != nil {
			s.logger.Warn("failed to persist tool server caches", "server", id, "error", err)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     info.Status,
		"last_error": info.LastError,
		"latency_ms": info.LatencyMs,
		"tools":      len(info.Tools),
		"prompts":    len(info.Prompts),
		"resources":  len(info.Resources),
	})
}

func (s *Server) handleDisconnectToolServer(c *gin.Context) {
	id := c.Param("id")
	s.gateway.Disconnect(id)

	if err := s.db.QueryUpdateToolServerStatus(c.Request.Context(), id, models.ToolServerDisconnected, nil, nil); err != nil {
		s.logger.Warn("failed to persist tool server status", "server", id, "error", err)
	}

	c.JSON(http.StatusOK, gin.H{"status": models.ToolServerDisconnected})
}

func (s *Server) handleToolServerTools(c *gin.Context) {
	id := c.Param("id")
	c.JSON(http.StatusOK, gin.H{
		"status":    s.gateway.Status(id),
		"tools":     s.gateway.Tools(id),
		"prompts":   s.gateway.Prompts(id),
		"resources": s.gateway.Resources(id),
	})
}

func (s *Server) handleBindToolServer(c *gin.Context) {
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	binding, err := s.db.QueryUpsertToolBinding(c.Request.Context(), c.Param("id"), c.Param("serverID"), enabled)
	if err != nil {
		s.logger.Error("bind tool server failed", "conversation", c.Param("id"), "server", c.Param("serverID"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "bind tool server failed"})
		return
	}
	c.JSON(http.StatusOK, binding)
}
