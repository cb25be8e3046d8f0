// Package retention keeps the log and analysis tables inside the
// configured age and count bounds. Cycles run on a ticker, delete in
// one transaction, and vacuum after commit.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ppiankov/filesentry/internal/config"
	"github.com/ppiankov/filesentry/internal/metrics"
	"github.com/ppiankov/filesentry/internal/store"
)

// Emergency parameters applied when a table overruns 10x max_records
// or an operator forces a purge.
const (
	EmergencyDaysToKeep = 1
	EmergencyMaxRecords = 500
	overflowFactor      = 10
)

// Result summarizes one cycle.
type Result struct {
	LogsDeleted     int64
	AnalysesDeleted int64
	Vacuumed        bool
}

// Manager runs retention cycles against the store.
type Manager struct {
	store  *store.Store
	policy config.Retention
	log    *slog.Logger
}

// New builds a manager for the given policy.
func New(s *store.Store, policy config.Retention, log *slog.Logger) *Manager {
	return &Manager{store: s, policy: policy, log: log}
}

// Run executes cycles at the cleanup interval until ctx is cancelled.
// No-op when auto cleanup is disabled, except for the overflow guard,
// which always runs.
func (m *Manager) Run(ctx context.Context) {
	interval := m.policy.CleanupInterval
	if interval <= 0 {
		interval = config.DefaultCleanupInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.tick(ctx); err != nil {
				m.log.Error("retention cycle failed", "level", "ERROR", "error", err)
			}
		}
	}
}

// tick runs one scheduled cycle, escalating to emergency parameters on
// overflow.
func (m *Manager) tick(ctx context.Context) error {
	logs, analyses, err := m.store.Counts(ctx)
	if err != nil {
		return err
	}
	limit := int64(m.policy.MaxRecords) * overflowFactor
	if limit > 0 && (logs > limit || analyses > limit) {
		m.log.Warn("table overflow, running emergency cleanup",
			"level", "WARN", "logs", logs, "analyses", analyses)
		_, err := m.Emergency(ctx)
		return err
	}
	if !m.policy.AutoEnabled {
		return nil
	}
	res, err := m.Cycle(ctx, m.policy.DaysToKeep, m.policy.MaxRecords)
	if err != nil {
		return err
	}
	if res.LogsDeleted > 0 || res.AnalysesDeleted > 0 {
		m.log.Info("retention cycle complete", "level", "INFO",
			"logs_deleted", res.LogsDeleted, "analyses_deleted", res.AnalysesDeleted)
	}
	return nil
}

// Cycle applies the age bound, then the count bound, to both tables in
// one transaction. Rows stamped at or after the cycle start are never
// deleted. Vacuum runs after commit when anything was removed.
func (m *Manager) Cycle(ctx context.Context, daysToKeep, maxRecords int) (Result, error) {
	cycleStart := time.Now()
	cutoff := cycleStart.AddDate(0, 0, -daysToKeep)

	var res Result
	err := m.store.WithTx(ctx, func(tx *store.Tx) error {
		n, err := tx.DeleteLogsOlderThan(cutoff, cycleStart)
		if err != nil {
			return err
		}
		res.LogsDeleted += n

		if maxRecords > 0 {
			n, err = tx.DeleteLogsBeyondRank(maxRecords, cycleStart)
			if err != nil {
				return err
			}
			res.LogsDeleted += n
		}

		n, err = tx.DeleteAnalysesOlderThan(cutoff, cycleStart)
		if err != nil {
			return err
		}
		res.AnalysesDeleted += n

		if maxRecords > 0 {
			n, err = tx.DeleteAnalysesBeyondRank(maxRecords, cycleStart)
			if err != nil {
				return err
			}
			res.AnalysesDeleted += n
		}
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("retention cycle: %w", err)
	}

	metrics.RetentionDeleted.WithLabelValues("change_log").Add(float64(res.LogsDeleted))
	metrics.RetentionDeleted.WithLabelValues("file_analysis").Add(float64(res.AnalysesDeleted))

	if res.LogsDeleted > 0 || res.AnalysesDeleted > 0 {
		if err := m.store.Vacuum(ctx); err != nil {
			m.log.Warn("vacuum failed", "level", "WARN", "error", err)
		} else {
			res.Vacuumed = true
		}
	}
	return res, nil
}

// Emergency runs a cycle with the aggressive parameters.
func (m *Manager) Emergency(ctx context.Context) (Result, error) {
	return m.Cycle(ctx, EmergencyDaysToKeep, EmergencyMaxRecords)
}
