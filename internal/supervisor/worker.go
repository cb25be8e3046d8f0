package supervisor

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ppiankov/filesentry/internal/alert"
	"github.com/ppiankov/filesentry/internal/analyze"
	"github.com/ppiankov/filesentry/internal/config"
	"github.com/ppiankov/filesentry/internal/dispatch"
	"github.com/ppiankov/filesentry/internal/metrics"
	"github.com/ppiankov/filesentry/internal/model"
	"github.com/ppiankov/filesentry/internal/state"
	"github.com/ppiankov/filesentry/internal/store"
)

// workerHandler builds the per-job function run by the dispatcher's
// worker pool: analyze, persist, link, alert.
func (s *Supervisor) workerHandler(cfg *config.Config, cache *state.Cache, analyzer *analyze.Analyzer) dispatch.Handler {
	return func(ctx context.Context, job model.Job) {
		if ctx.Err() != nil {
			return
		}
		now := time.Now()
		verdict := s.analyzeJob(ctx, cfg, analyzer, job, now)
		metrics.Analyses.WithLabelValues(string(verdict.RiskAnalysis.RiskLevel)).Inc()

		s.persist(ctx, cfg, cache, job, verdict, now)

		if s.alerts != nil && verdict.RiskAnalysis.RiskLevel.Rank() >= model.RiskSuspicious.Rank() {
			s.alerts.Dispatch(alert.Event{
				Timestamp:      verdict.Timestamp,
				Path:           job.Path,
				Kind:           string(job.Kind),
				RiskLevel:      verdict.RiskAnalysis.RiskLevel,
				RiskScore:      verdict.RiskAnalysis.OverallScore,
				Recommendation: verdict.Recommendation,
			})
		}
	}
}

// analyzeJob produces a verdict for the job, falling back to
// path-only analysis when the content is gone or skipped.
func (s *Supervisor) analyzeJob(ctx context.Context, cfg *config.Config, analyzer *analyze.Analyzer, job model.Job, now time.Time) *analyze.Verdict {
	meta := map[string]string{
		"event_kind": string(job.Kind),
		"source":     "watcher",
	}
	if job.OldPath != "" {
		meta["renamed_from"] = job.OldPath
	}

	if job.SkipAnalysis == model.SkipSize {
		var size int64
		if info, err := os.Stat(job.Path); err == nil {
			size = info.Size()
		}
		return analyzer.TooLarge(job.Path, size, meta, now)
	}
	if job.Kind == model.Deleted {
		// Content is gone; extension heuristics still apply.
		return analyzer.Analyze(job.Path, nil, meta, now)
	}

	verdict, err := analyzer.AnalyzeFile(ctx, job.Path, cfg.MaxAnalysisSize(), meta, now)
	if err != nil {
		s.log.Warn("file unreadable, analyzing path only", "level", "WARN",
			"path", job.Path, "error", err)
		return analyzer.Analyze(job.Path, nil, meta, now)
	}
	return verdict
}

// persist writes the log entry and analysis row, linking them. The
// dedup violation is expected and swallowed; other persistence errors
// get one jittered retry before the job is dropped.
func (s *Supervisor) persist(ctx context.Context, cfg *config.Config, cache *state.Cache, job model.Job, verdict *analyze.Verdict, now time.Time) {
	entry := store.LogEntry{
		Timestamp:      job.ObservedAt,
		Path:           job.Path,
		Kind:           job.Kind,
		RiskLevel:      verdict.RiskAnalysis.RiskLevel,
		Recommendation: verdict.Recommendation,
		DedupKey:       job.DedupKey,
	}

	var logID int64
	err := withRetry(ctx, func() error {
		var err error
		logID, err = s.store.InsertLog(ctx, entry)
		return err
	})
	if errors.Is(err, store.ErrDedup) {
		return
	}
	if err != nil {
		metrics.AnalysesDropped.Inc()
		s.log.Error("log insert failed, dropping job", "level", "ERROR",
			"path", job.Path, "error", err)
		return
	}

	verdictJSON, err := verdict.JSON()
	if err != nil {
		metrics.AnalysesDropped.Inc()
		s.log.Error("verdict serialization failed", "level", "ERROR",
			"path", job.Path, "error", err)
		return
	}

	var analysisID int64
	err = withRetry(ctx, func() error {
		var err error
		analysisID, err = s.store.UpsertAnalysis(ctx, store.AnalysisRow{
			Path:        job.Path,
			ContentHash: verdict.FileInfo.Hash,
			RiskScore:   verdict.RiskAnalysis.OverallScore,
			RiskLevel:   verdict.RiskAnalysis.RiskLevel,
			VerdictJSON: string(verdictJSON),
			CreatedAt:   now,
		})
		return err
	})
	if err != nil {
		// The log entry already exists and stays.
		metrics.AnalysesDropped.Inc()
		s.log.Error("analysis upsert failed", "level", "ERROR",
			"path", job.Path, "error", err)
		return
	}

	if err := withRetry(ctx, func() error {
		return s.store.LinkAnalysis(ctx, logID, analysisID)
	}); err != nil {
		s.log.Error("analysis link failed", "level", "ERROR",
			"path", job.Path, "error", err)
		return
	}

	if job.Kind != model.Deleted {
		lock := cache.RootLock(rootOf(cfg, job.Path))
		lock.Lock()
		if st, ok := cache.Get(job.Path); ok {
			st.LastAnalyzed = now.UnixNano()
			cache.Put(st)
		}
		lock.Unlock()
	}
}

// rootOf finds the configured root containing path, matching the lock
// keying used by the watchers and dispatcher.
func rootOf(cfg *config.Config, path string) string {
	for _, r := range cfg.Roots {
		if path == r.Path || strings.HasPrefix(path, r.Path+string(filepath.Separator)) {
			return r.Path
		}
	}
	return path
}

// withRetry runs fn, retrying once after a jittered backoff on
// failure. Dedup violations are terminal, not retried.
func withRetry(ctx context.Context, fn func() error) error {
	err := fn()
	if err == nil || errors.Is(err, store.ErrDedup) || ctx.Err() != nil {
		return err
	}
	select {
	case <-time.After(time.Duration(50+rand.Intn(100)) * time.Millisecond):
	case <-ctx.Done():
		return err
	}
	return fn()
}
