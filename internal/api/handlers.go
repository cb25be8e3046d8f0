package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ppiankov/filesentry/internal/config"
	"github.com/ppiankov/filesentry/internal/model"
	"github.com/ppiankov/filesentry/internal/store"
)

// statusResponse is the /api/status body.
type statusResponse struct {
	Running       bool     `json:"running"`
	Roots         []string `json:"roots"`
	QueueDepth    int      `json:"queue_depth"`
	Workers       int      `json:"workers"`
	LastScanAt    string   `json:"last_scan_at,omitempty"`
	EventsDropped uint64   `json:"events_dropped_total"`
}

func (s *Server) handleStatus(c *gin.Context) {
	st := s.sup.Status()
	resp := statusResponse{
		Running:       st.Running,
		Roots:         st.Roots,
		QueueDepth:    st.QueueDepth,
		Workers:       st.Workers,
		EventsDropped: st.EventsDropped,
	}
	if !st.LastScanAt.IsZero() {
		resp.LastScanAt = st.LastScanAt.UTC().Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleStart(c *gin.Context) {
	cfg, err := config.Load(s.configPath)
	if err != nil {
		fail(c, err)
		return
	}
	if err := s.sup.Start(cfg); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"running": true})
}

func (s *Server) handleStop(c *gin.Context) {
	if err := s.sup.Stop(); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"running": false})
}

func (s *Server) handleRestart(c *gin.Context) {
	cfg, err := config.Load(s.configPath)
	if err != nil {
		fail(c, err)
		return
	}
	if err := s.sup.Restart(cfg); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"running": true})
}

type directoriesResponse struct {
	Paths             []string `json:"paths"`
	NonRecursivePaths []string `json:"non_recursive_paths"`
	Excludes          []string `json:"excludes"`
}

func (s *Server) handleGetDirectories(c *gin.Context) {
	cfg, err := config.Load(s.configPath)
	if err != nil {
		fail(c, err)
		return
	}
	resp := directoriesResponse{Paths: []string{}, NonRecursivePaths: []string{}, Excludes: cfg.Excludes}
	if resp.Excludes == nil {
		resp.Excludes = []string{}
	}
	for _, r := range cfg.Roots {
		if r.Recursive {
			resp.Paths = append(resp.Paths, r.Path)
		} else {
			resp.NonRecursivePaths = append(resp.NonRecursivePaths, r.Path)
		}
	}
	c.JSON(http.StatusOK, resp)
}

type updateDirectoriesRequest struct {
	Paths             []string `json:"paths"`
	NonRecursivePaths []string `json:"non_recursive_paths"`
}

func (s *Server) handleUpdateDirectories(c *gin.Context) {
	var req updateDirectoriesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request: " + err.Error()})
		return
	}
	if len(req.Paths)+len(req.NonRecursivePaths) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "no directories supplied"})
		return
	}

	cfg, err := config.Load(s.configPath)
	if err != nil {
		fail(c, err)
		return
	}
	var roots []config.Root
	for _, p := range req.Paths {
		roots = append(roots, config.Root{Path: config.NormalizePath(p), Recursive: true})
	}
	for _, p := range req.NonRecursivePaths {
		roots = append(roots, config.Root{Path: config.NormalizePath(p), Recursive: false})
	}
	cfg.Roots = roots

	if err := s.applyConfig(cfg); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": true, "roots": len(roots)})
}

func (s *Server) handleRunScan(c *gin.Context) {
	id, err := s.sup.RunFullScan()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"scan_id": id})
}

type scanIntervalRequest struct {
	Minutes int `json:"minutes"`
}

func (s *Server) handleSetScanInterval(c *gin.Context) {
	var req scanIntervalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request: " + err.Error()})
		return
	}
	if req.Minutes < 1 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "minutes must be at least 1"})
		return
	}

	cfg, err := config.Load(s.configPath)
	if err != nil {
		fail(c, err)
		return
	}
	cfg.ScanInterval = time.Duration(req.Minutes) * time.Minute

	if err := s.applyConfig(cfg); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"scan_interval_seconds": int(cfg.ScanInterval.Seconds())})
}

// applyConfig persists the config and restarts a running pipeline so
// the change takes effect.
func (s *Server) applyConfig(cfg *config.Config) error {
	if err := config.Save(s.configPath, cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	if s.sup.Running() {
		return s.sup.Restart(cfg)
	}
	return nil
}

type logEntryResponse struct {
	ID             int64  `json:"id"`
	Timestamp      string `json:"timestamp"`
	Path           string `json:"path"`
	Kind           string `json:"kind"`
	RiskLevel      string `json:"risk_level"`
	Recommendation string `json:"recommendation"`
	AnalysisID     *int64 `json:"analysis_id,omitempty"`
}

func (s *Server) handleQueryLogs(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("page_size", "50"))
	if size > 500 {
		size = 500
	}

	filter := store.Filter{
		RiskLevel:    model.RiskLevel(c.Query("risk_level")),
		Kind:         model.EventKind(c.Query("kind")),
		PathContains: c.Query("path"),
	}
	if v := c.Query("since"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid since timestamp"})
			return
		}
		filter.Since = ts
	}

	entries, total, err := s.store.QueryLogs(c.Request.Context(), filter, page, size)
	if err != nil {
		fail(c, err)
		return
	}

	out := make([]logEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, logEntryResponse{
			ID:             e.ID,
			Timestamp:      e.Timestamp.UTC().Format(time.RFC3339),
			Path:           e.Path,
			Kind:           string(e.Kind),
			RiskLevel:      string(e.RiskLevel),
			Recommendation: e.Recommendation,
			AnalysisID:     e.AnalysisID,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"entries":   out,
		"total":     total,
		"page":      page,
		"page_size": size,
	})
}

func (s *Server) handleStatistics(c *gin.Context) {
	ctx := c.Request.Context()
	counts, err := s.store.CountByRisk(ctx)
	if err != nil {
		fail(c, err)
		return
	}
	logs, analyses, err := s.store.Counts(ctx)
	if err != nil {
		fail(c, err)
		return
	}
	recent, err := s.store.RecentDangerous(ctx, 5)
	if err != nil {
		fail(c, err)
		return
	}

	recentOut := make([]logEntryResponse, 0, len(recent))
	for _, e := range recent {
		recentOut = append(recentOut, logEntryResponse{
			ID:        e.ID,
			Timestamp: e.Timestamp.UTC().Format(time.RFC3339),
			Path:      e.Path,
			Kind:      string(e.Kind),
			RiskLevel: string(e.RiskLevel),
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"by_risk_level":    counts,
		"total_logs":       logs,
		"total_analyses":   analyses,
		"recent_dangerous": recentOut,
	})
}
