// Package server exposes the widget-facing HTTP boundary: configuration
// fetch, progress sync and the capture websocket.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/jkallio/tourguide/internal/capture"
	"github.com/jkallio/tourguide/internal/persistence"
	"github.com/jkallio/tourguide/pkg/api"
)

// Config carries the HTTP server settings.
type Config struct {
	Addr string

	// APIKey authorizes widget requests. Empty disables the check (local
	// development only).
	APIKey string

	// AllowedOrigins for CORS. Empty allows all origins.
	AllowedOrigins []string
}

// Server serves the tour runtime API.
type Server struct {
	cfg    Config
	stores persistence.Persistence
	bridge *capture.Bridge
	log    *slog.Logger
	router *gin.Engine
}

// New builds the server and its routes. bridge may be nil to disable the
// capture endpoint.
func New(cfg Config, stores persistence.Persistence, bridge *capture.Bridge, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	corsCfg := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	corsCfg.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	router.Use(cors.New(corsCfg))

	s := &Server{cfg: cfg, stores: stores, bridge: bridge, log: log, router: router}

	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	router.GET("/get-configuration", s.getConfiguration)
	router.POST("/save-progress", s.saveProgress)
	if bridge != nil {
		router.GET("/capture", s.captureWS)
	}
	return s
}

// Handler returns the underlying handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", slog.String("addr", s.cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// queryParam returns the first non-empty value among the given names. The
// published parameter names are camelCase; snake_case is tolerated.
func queryParam(c *gin.Context, names ...string) string {
	for _, name := range names {
		if v := c.Query(name); v != "" {
			return v
		}
	}
	return ""
}

func (s *Server) authorized(c *gin.Context, keys ...string) bool {
	if s.cfg.APIKey == "" {
		return true
	}
	for _, key := range append(keys, queryParam(c, "apiKey", "api_key")) {
		if key == s.cfg.APIKey {
			return true
		}
	}
	c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
	return false
}

// configurationResponse is the /get-configuration payload: the published
// definition plus the server's copy of the client's progress.
type configurationResponse struct {
	Configuration *api.Configuration `json:"configuration"`
	Progress      api.ProgressMap    `json:"progress,omitempty"`
}

func (s *Server) getConfiguration(c *gin.Context) {
	if !s.authorized(c) {
		return
	}
	configID := queryParam(c, "configId", "config_id")
	clientID := queryParam(c, "clientId", "client_id")
	if configID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "configId is required"})
		return
	}

	cfg, err := s.stores.Configurations.GetConfiguration(c.Request.Context(), configID)
	if err != nil {
		if errors.Is(err, persistence.ErrConfigurationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "configuration not found"})
			return
		}
		s.log.Error("configuration load failed", slog.String("config_id", configID), slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	resp := configurationResponse{Configuration: cfg}
	if clientID != "" {
		progress, err := s.stores.Progress.LoadProgress(c.Request.Context(), clientID, configID)
		if err != nil {
			s.log.Error("progress load failed", slog.String("config_id", configID), slog.Any("error", err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		resp.Progress = progress
	}
	c.JSON(http.StatusOK, resp)
}

// saveProgressRequest is the /save-progress payload: one progress entry per
// post, with the API key in the body. A batch "entries" map is tolerated as
// well. Re-sending the same entry is harmless: the store upserts per
// (client, configuration, step).
type saveProgressRequest struct {
	ClientID        string             `json:"client_id" binding:"required"`
	ConfigurationID string             `json:"configuration_id" binding:"required"`
	APIKey          string             `json:"api_key"`
	StepID          string             `json:"step_id"`
	Status          api.ProgressStatus `json:"status"`
	CompletedAt     *time.Time         `json:"completed_at"`
	SkippedAt       *time.Time         `json:"skipped_at"`

	Entries api.ProgressMap `json:"entries"`
}

func (s *Server) saveProgress(c *gin.Context) {
	var req saveProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !s.authorized(c, req.APIKey) {
		return
	}
	if req.StepID == "" && len(req.Entries) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "step_id or entries is required"})
		return
	}

	entries := make([]api.ProgressEntry, 0, len(req.Entries)+1)
	if req.StepID != "" {
		entries = append(entries, api.ProgressEntry{
			StepID:      req.StepID,
			Status:      req.Status,
			CompletedAt: req.CompletedAt,
			SkippedAt:   req.SkippedAt,
		})
	}
	for stepID, entry := range req.Entries {
		if entry.StepID == "" {
			entry.StepID = stepID
		}
		entries = append(entries, entry)
	}

	for _, entry := range entries {
		entry.ClientID = req.ClientID
		entry.ConfigurationID = req.ConfigurationID
		if err := s.stores.Progress.SaveProgress(c.Request.Context(), entry); err != nil {
			s.log.Error("progress save failed",
				slog.String("config_id", req.ConfigurationID),
				slog.String("step_id", entry.StepID),
				slog.Any("error", err),
			)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) captureWS(c *gin.Context) {
	s.bridge.ServeWS(c.Writer, c.Request)
}
