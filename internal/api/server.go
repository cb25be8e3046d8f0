// Package api exposes the control surface over HTTP. It is a thin
// adapter: every operation delegates to the supervisor, the store, or
// the config file, and errors are mapped to status codes verbatim.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ppiankov/filesentry/internal/config"
	"github.com/ppiankov/filesentry/internal/store"
	"github.com/ppiankov/filesentry/internal/supervisor"
)

// Server wires the HTTP routes to the supervisor and store.
type Server struct {
	sup        *supervisor.Supervisor
	store      *store.Store
	configPath string
	log        *slog.Logger
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// NewServer builds the API server. configPath is the monitor config
// file; reconfiguration operations rewrite it.
func NewServer(sup *supervisor.Supervisor, st *store.Store, configPath string, log *slog.Logger) *Server {
	return &Server{sup: sup, store: st, configPath: configPath, log: log}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api")
	{
		api.GET("/status", s.handleStatus)
		api.POST("/start", s.handleStart)
		api.POST("/stop", s.handleStop)
		api.POST("/restart", s.handleRestart)
		api.GET("/directories", s.handleGetDirectories)
		api.POST("/directories", s.handleUpdateDirectories)
		api.POST("/scan", s.handleRunScan)
		api.POST("/scan-interval", s.handleSetScanInterval)
		api.GET("/logs", s.handleQueryLogs)
		api.GET("/statistics", s.handleStatistics)
	}
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

// Serve runs the HTTP server until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// fail maps core errors onto HTTP status codes.
func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, supervisor.ErrAlreadyRunning),
		errors.Is(err, supervisor.ErrNotRunning):
		status = http.StatusConflict
	case errors.Is(err, config.ErrInvalid):
		status = http.StatusBadRequest
	}
	c.JSON(status, ErrorResponse{Error: err.Error()})
}
