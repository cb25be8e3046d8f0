package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Tx wraps a retention transaction. Delete methods never touch rows at
// or after the supplied boundary, so inserts racing the cycle survive.
type Tx struct {
	tx  *sql.Tx
	ctx context.Context
}

// WithTx runs fn inside one transaction bounded by the retention
// timeout. fn returning an error rolls everything back.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, txTimeout)
	defer cancel()

	dbtx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin retention tx: %w", err)
	}
	if err := fn(&Tx{tx: dbtx, ctx: ctx}); err != nil {
		_ = dbtx.Rollback()
		return err
	}
	if err := dbtx.Commit(); err != nil {
		return fmt.Errorf("commit retention tx: %w", err)
	}
	return nil
}

// DeleteLogsOlderThan removes log entries with timestamps before
// cutoff, bounded by notAfter.
func (t *Tx) DeleteLogsOlderThan(cutoff, notAfter time.Time) (int64, error) {
	return t.del(`DELETE FROM change_log WHERE timestamp < ? AND timestamp < ?`,
		cutoff.UnixNano(), notAfter.UnixNano())
}

// DeleteLogsBeyondRank keeps the newest keep entries, deleting the
// surplus oldest, bounded by notAfter.
func (t *Tx) DeleteLogsBeyondRank(keep int, notAfter time.Time) (int64, error) {
	return t.del(`DELETE FROM change_log
		WHERE timestamp < ?
		AND id NOT IN (
			SELECT id FROM change_log ORDER BY timestamp DESC, id DESC LIMIT ?
		)`, notAfter.UnixNano(), keep)
}

// DeleteAnalysesOlderThan removes analysis rows created before cutoff,
// bounded by notAfter.
func (t *Tx) DeleteAnalysesOlderThan(cutoff, notAfter time.Time) (int64, error) {
	return t.del(`DELETE FROM file_analysis WHERE created_at < ? AND created_at < ?`,
		cutoff.UnixNano(), notAfter.UnixNano())
}

// DeleteAnalysesBeyondRank keeps the newest keep analysis rows, bounded
// by notAfter.
func (t *Tx) DeleteAnalysesBeyondRank(keep int, notAfter time.Time) (int64, error) {
	return t.del(`DELETE FROM file_analysis
		WHERE created_at < ?
		AND id NOT IN (
			SELECT id FROM file_analysis ORDER BY created_at DESC, id DESC LIMIT ?
		)`, notAfter.UnixNano(), keep)
}

func (t *Tx) del(query string, args ...any) (int64, error) {
	res, err := t.tx.ExecContext(t.ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retention delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("retention delete: %w", err)
	}
	return n, nil
}
