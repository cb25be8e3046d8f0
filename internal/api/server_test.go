package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/filesentry/internal/config"
	"github.com/ppiankov/filesentry/internal/model"
	"github.com/ppiankov/filesentry/internal/store"
	"github.com/ppiankov/filesentry/internal/supervisor"
)

type testEnv struct {
	server *Server
	store  *store.Store
	sup    *supervisor.Supervisor
	cfg    string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "filesentry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	sup := supervisor.New(st, nil, filepath.Join(dir, "state"), log)
	t.Cleanup(func() { _ = sup.Stop() })

	cfgPath := filepath.Join(dir, "config.json")
	cfg := config.Default()
	cfg.Roots = []config.Root{{Path: config.NormalizePath(t.TempDir()), Recursive: true}}
	require.NoError(t, config.Save(cfgPath, cfg))

	return &testEnv{
		server: NewServer(sup, st, cfgPath, log),
		store:  st,
		sup:    sup,
		cfg:    cfgPath,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.server.Router().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
}

func TestStatusIdle(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp statusResponse
	decode(t, w, &resp)
	assert.False(t, resp.Running)
	assert.Zero(t, resp.Workers)
}

func TestStartStopLifecycle(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/start", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/api/status", nil)
	var resp statusResponse
	decode(t, w, &resp)
	assert.True(t, resp.Running)
	assert.Len(t, resp.Roots, 1)
	assert.GreaterOrEqual(t, resp.Workers, 1)

	// second start conflicts
	w = env.do(t, http.MethodPost, "/api/start", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodPost, "/api/stop", nil)
	require.Equal(t, http.StatusOK, w.Code)

	// second stop conflicts
	w = env.do(t, http.MethodPost, "/api/stop", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRestartFromIdleStarts(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/restart", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.sup.Running())
}

func TestScanRequiresRunning(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/scan", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/start", nil).Code)
	w = env.do(t, http.MethodPost, "/api/scan", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]string
	decode(t, w, &resp)
	assert.NotEmpty(t, resp["scan_id"])
}

func TestScanIntervalValidation(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/scan-interval", map[string]int{"minutes": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/scan-interval", map[string]int{"minutes": 5})
	require.Equal(t, http.StatusOK, w.Code)

	cfg, err := config.Load(env.cfg)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, cfg.ScanInterval)
}

func TestUpdateDirectoriesPersists(t *testing.T) {
	env := newTestEnv(t)
	newRoot := t.TempDir()
	flatRoot := t.TempDir()

	w := env.do(t, http.MethodPost, "/api/directories", map[string][]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/directories", map[string][]string{
		"paths":               {newRoot},
		"non_recursive_paths": {flatRoot},
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/api/directories", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp directoriesResponse
	decode(t, w, &resp)
	assert.Equal(t, []string{config.NormalizePath(newRoot)}, resp.Paths)
	assert.Equal(t, []string{config.NormalizePath(flatRoot)}, resp.NonRecursivePaths)
}

func TestUpdateDirectoriesRestartsRunningPipeline(t *testing.T) {
	env := newTestEnv(t)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/start", nil).Code)

	newRoot := t.TempDir()
	w := env.do(t, http.MethodPost, "/api/directories", map[string][]string{
		"paths": {newRoot},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp statusResponse
	decode(t, env.do(t, http.MethodGet, "/api/status", nil), &resp)
	require.True(t, resp.Running)
	assert.Equal(t, []string{config.NormalizePath(newRoot)}, resp.Roots)
}

func seedLogs(t *testing.T, st *store.Store, n int) {
	t.Helper()
	base := time.Now().Add(-time.Hour)
	for i := 0; i < n; i++ {
		level := model.RiskSafe
		if i%4 == 0 {
			level = model.RiskDangerous
		}
		_, err := st.InsertLog(t.Context(), store.LogEntry{
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Path:      filepath.Join("/watched", "f"+string(rune('a'+i%26))),
			Kind:      model.Modified,
			RiskLevel: level,
			DedupKey:  dedupKey(i),
		})
		require.NoError(t, err)
	}
}

func dedupKey(i int) string {
	const hex = "0123456789abcdef"
	b := make([]byte, 16)
	for j := range b {
		b[j] = hex[(i+j)%16]
	}
	b[0] = hex[i/16%16]
	b[1] = hex[i%16]
	return string(b)
}

func TestQueryLogsPagingAndFilter(t *testing.T) {
	env := newTestEnv(t)
	seedLogs(t, env.store, 12)

	w := env.do(t, http.MethodGet, "/api/logs?page=1&page_size=5", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Entries  []logEntryResponse `json:"entries"`
		Total    int                `json:"total"`
		Page     int                `json:"page"`
		PageSize int                `json:"page_size"`
	}
	decode(t, w, &resp)
	assert.Equal(t, 12, resp.Total)
	assert.Len(t, resp.Entries, 5)
	assert.Equal(t, 1, resp.Page)

	// newest first
	first, err := time.Parse(time.RFC3339, resp.Entries[0].Timestamp)
	require.NoError(t, err)
	second, err := time.Parse(time.RFC3339, resp.Entries[1].Timestamp)
	require.NoError(t, err)
	assert.False(t, first.Before(second))

	w = env.do(t, http.MethodGet, "/api/logs?risk_level=dangerous", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &resp)
	assert.Equal(t, 3, resp.Total)
	for _, e := range resp.Entries {
		assert.Equal(t, string(model.RiskDangerous), e.RiskLevel)
	}

	w = env.do(t, http.MethodGet, "/api/logs?since=not-a-time", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatisticsShape(t *testing.T) {
	env := newTestEnv(t)
	seedLogs(t, env.store, 8)

	w := env.do(t, http.MethodGet, "/api/statistics", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		ByRiskLevel     store.RiskCounts   `json:"by_risk_level"`
		TotalLogs       int64              `json:"total_logs"`
		TotalAnalyses   int64              `json:"total_analyses"`
		RecentDangerous []logEntryResponse `json:"recent_dangerous"`
	}
	decode(t, w, &resp)
	assert.Equal(t, int64(8), resp.TotalLogs)
	assert.Equal(t, int64(2), resp.ByRiskLevel.Dangerous)
	assert.Equal(t, int64(6), resp.ByRiskLevel.Safe)
	require.Len(t, resp.RecentDangerous, 2)
	assert.Equal(t, string(model.RiskDangerous), resp.RecentDangerous[0].RiskLevel)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
