// Package store persists change log entries and analysis rows in
// SQLite. One writer connection keeps modernc's file locking simple;
// retention deletes run inside transactions and Vacuum reclaims space
// afterwards.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ppiankov/filesentry/internal/model"
)

// ErrDedup marks an insert rejected by dedup_key uniqueness. Expected
// under normal operation; callers swallow it.
var ErrDedup = errors.New("duplicate dedup key")

// txTimeout bounds retention transactions.
const txTimeout = 30 * time.Second

const schema = `
CREATE TABLE IF NOT EXISTS change_log (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp      INTEGER NOT NULL,
	path           TEXT NOT NULL,
	kind           TEXT NOT NULL,
	risk_level     TEXT NOT NULL DEFAULT '',
	recommendation TEXT NOT NULL DEFAULT '',
	dedup_key      TEXT NOT NULL,
	analysis_id    INTEGER
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_change_log_dedup ON change_log(dedup_key);
CREATE INDEX IF NOT EXISTS idx_change_log_ts ON change_log(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_change_log_risk_ts ON change_log(risk_level, timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_change_log_path ON change_log(path);

CREATE TABLE IF NOT EXISTS file_analysis (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	path         TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	risk_score   REAL NOT NULL,
	risk_level   TEXT NOT NULL,
	verdict_json TEXT NOT NULL,
	created_at   INTEGER NOT NULL,
	UNIQUE(path, content_hash)
);
CREATE INDEX IF NOT EXISTS idx_file_analysis_created ON file_analysis(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_file_analysis_path ON file_analysis(path);
`

// LogEntry is one persisted change record.
type LogEntry struct {
	ID             int64
	Timestamp      time.Time
	Path           string
	Kind           model.EventKind
	RiskLevel      model.RiskLevel
	Recommendation string
	DedupKey       string
	AnalysisID     *int64
}

// AnalysisRow is one persisted verdict, keyed by path and content hash.
type AnalysisRow struct {
	ID          int64
	Path        string
	ContentHash string // SHA-256 hex
	RiskScore   float64
	RiskLevel   model.RiskLevel
	VerdictJSON string
	CreatedAt   time.Time
}

// Filter narrows QueryLogs results. Zero values match everything.
type Filter struct {
	RiskLevel    model.RiskLevel
	Kind         model.EventKind
	PathContains string
	Since        time.Time
	Until        time.Time
}

// RiskCounts is the per-level breakdown for statistics.
type RiskCounts struct {
	Safe       int64 `json:"safe"`
	Moderate   int64 `json:"moderate"`
	Suspicious int64 `json:"suspicious"`
	Dangerous  int64 `json:"dangerous"`
	Total      int64 `json:"total"`
}

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the
// schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// modernc/sqlite serializes writes; one connection avoids SQLITE_BUSY
	// churn between workers and retention.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// InsertLog writes one change record. A dedup_key collision returns
// ErrDedup and writes nothing.
func (s *Store) InsertLog(ctx context.Context, e LogEntry) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO change_log
			(timestamp, path, kind, risk_level, recommendation, dedup_key, analysis_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Timestamp.UnixNano(), e.Path, string(e.Kind), string(e.RiskLevel),
		e.Recommendation, e.DedupKey, e.AnalysisID)
	if err != nil {
		return 0, fmt.Errorf("insert log: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("insert log: %w", err)
	}
	if n == 0 {
		return 0, ErrDedup
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert log: %w", err)
	}
	return id, nil
}

// UpsertAnalysis writes or refreshes the verdict for (path, hash) and
// returns the row id.
func (s *Store) UpsertAnalysis(ctx context.Context, row AnalysisRow) (int64, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO file_analysis
			(path, content_hash, risk_score, risk_level, verdict_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(path, content_hash) DO UPDATE SET
			risk_score = excluded.risk_score,
			risk_level = excluded.risk_level,
			verdict_json = excluded.verdict_json,
			created_at = excluded.created_at`,
		row.Path, row.ContentHash, row.RiskScore, string(row.RiskLevel),
		row.VerdictJSON, row.CreatedAt.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("upsert analysis: %w", err)
	}
	var id int64
	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM file_analysis WHERE path = ? AND content_hash = ?`,
		row.Path, row.ContentHash).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert analysis: %w", err)
	}
	return id, nil
}

// LinkAnalysis points a log entry at its analysis row.
func (s *Store) LinkAnalysis(ctx context.Context, logID, analysisID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE change_log SET analysis_id = ? WHERE id = ?`, analysisID, logID)
	if err != nil {
		return fmt.Errorf("link analysis: %w", err)
	}
	return nil
}

// QueryLogs returns one page of entries ordered newest first, plus the
// total match count. Pages are 1-based.
func (s *Store) QueryLogs(ctx context.Context, f Filter, page, size int) ([]LogEntry, int64, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 50
	}

	where, args := buildFilter(f)

	var total int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM change_log`+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count logs: %w", err)
	}

	query := `SELECT id, timestamp, path, kind, risk_level, recommendation, dedup_key, analysis_id
		FROM change_log` + where + ` ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, query, append(args, size, (page-1)*size)...)
	if err != nil {
		return nil, 0, fmt.Errorf("query logs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []LogEntry
	for rows.Next() {
		var e LogEntry
		var ts int64
		var kind, level string
		var analysisID sql.NullInt64
		if err := rows.Scan(&e.ID, &ts, &e.Path, &kind, &level,
			&e.Recommendation, &e.DedupKey, &analysisID); err != nil {
			return nil, 0, fmt.Errorf("scan log: %w", err)
		}
		e.Timestamp = time.Unix(0, ts)
		e.Kind = model.EventKind(kind)
		e.RiskLevel = model.RiskLevel(level)
		if analysisID.Valid {
			id := analysisID.Int64
			e.AnalysisID = &id
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}

func buildFilter(f Filter) (string, []any) {
	var conds []string
	var args []any
	if f.RiskLevel != "" {
		conds = append(conds, "risk_level = ?")
		args = append(args, string(f.RiskLevel))
	}
	if f.Kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, string(f.Kind))
	}
	if f.PathContains != "" {
		conds = append(conds, "path LIKE ?")
		args = append(args, "%"+f.PathContains+"%")
	}
	if !f.Since.IsZero() {
		conds = append(conds, "timestamp >= ?")
		args = append(args, f.Since.UnixNano())
	}
	if !f.Until.IsZero() {
		conds = append(conds, "timestamp < ?")
		args = append(args, f.Until.UnixNano())
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// GetAnalysis fetches one analysis row by id.
func (s *Store) GetAnalysis(ctx context.Context, id int64) (AnalysisRow, error) {
	var row AnalysisRow
	var created int64
	var level string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, path, content_hash, risk_score, risk_level, verdict_json, created_at
		FROM file_analysis WHERE id = ?`, id).
		Scan(&row.ID, &row.Path, &row.ContentHash, &row.RiskScore, &level,
			&row.VerdictJSON, &created)
	if err != nil {
		return AnalysisRow{}, fmt.Errorf("get analysis: %w", err)
	}
	row.RiskLevel = model.RiskLevel(level)
	row.CreatedAt = time.Unix(0, created)
	return row, nil
}

// CountByRisk returns the per-level log entry counts.
func (s *Store) CountByRisk(ctx context.Context) (RiskCounts, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT risk_level, COUNT(*) FROM change_log GROUP BY risk_level`)
	if err != nil {
		return RiskCounts{}, fmt.Errorf("count by risk: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var c RiskCounts
	for rows.Next() {
		var level string
		var n int64
		if err := rows.Scan(&level, &n); err != nil {
			return RiskCounts{}, fmt.Errorf("count by risk: %w", err)
		}
		switch model.RiskLevel(level) {
		case model.RiskSafe:
			c.Safe = n
		case model.RiskModerate:
			c.Moderate = n
		case model.RiskSuspicious:
			c.Suspicious = n
		case model.RiskDangerous:
			c.Dangerous = n
		}
		c.Total += n
	}
	return c, rows.Err()
}

// Counts returns the row totals of both tables.
func (s *Store) Counts(ctx context.Context) (logs, analyses int64, err error) {
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM change_log`).Scan(&logs); err != nil {
		return 0, 0, fmt.Errorf("count logs: %w", err)
	}
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM file_analysis`).Scan(&analyses); err != nil {
		return 0, 0, fmt.Errorf("count analyses: %w", err)
	}
	return logs, analyses, nil
}

// RecentDangerous returns the newest dangerous log entries.
func (s *Store) RecentDangerous(ctx context.Context, limit int) ([]LogEntry, error) {
	entries, _, err := s.QueryLogs(ctx, Filter{RiskLevel: model.RiskDangerous}, 1, limit)
	return entries, err
}

// Vacuum reclaims file space. Call after large retention deletes,
// outside any transaction.
func (s *Store) Vacuum(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `VACUUM`); err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}
	return nil
}
