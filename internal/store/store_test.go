package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/filesentry/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "filesentry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func entry(path, key string, ts time.Time, level model.RiskLevel) LogEntry {
	return LogEntry{
		Timestamp:      ts,
		Path:           path,
		Kind:           model.Modified,
		RiskLevel:      level,
		Recommendation: "review",
		DedupKey:       key,
	}
}

func TestInsertLogDedup(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	id, err := s.InsertLog(ctx, entry("/srv/a", "key-1", now, model.RiskSafe))
	require.NoError(t, err)
	assert.Positive(t, id)

	_, err = s.InsertLog(ctx, entry("/srv/a", "key-1", now, model.RiskSafe))
	assert.ErrorIs(t, err, ErrDedup)

	logs, total, err := s.QueryLogs(ctx, Filter{}, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, logs, 1)
	assert.Equal(t, "/srv/a", logs[0].Path)
}

func TestUpsertAnalysisIsStableForSameContent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	row := AnalysisRow{
		Path:        "/srv/a.py",
		ContentHash: "abc123",
		RiskScore:   60,
		RiskLevel:   model.RiskDangerous,
		VerdictJSON: `{"v":1}`,
		CreatedAt:   time.Now(),
	}

	id1, err := s.UpsertAnalysis(ctx, row)
	require.NoError(t, err)

	row.RiskScore = 65
	row.VerdictJSON = `{"v":2}`
	id2, err := s.UpsertAnalysis(ctx, row)
	require.NoError(t, err)
	assert.Equal(t, id1, id2, "same (path, hash) must reuse the row")

	got, err := s.GetAnalysis(ctx, id1)
	require.NoError(t, err)
	assert.Equal(t, `{"v":2}`, got.VerdictJSON)
	assert.Equal(t, 65.0, got.RiskScore)

	// new content hash allocates a new row
	row.ContentHash = "def456"
	id3, err := s.UpsertAnalysis(ctx, row)
	require.NoError(t, err)
	assert.NotEqual(t, id1, id3)
}

func TestLinkAnalysis(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	logID, err := s.InsertLog(ctx, entry("/srv/a", "key-link", time.Now(), model.RiskDangerous))
	require.NoError(t, err)
	analysisID, err := s.UpsertAnalysis(ctx, AnalysisRow{
		Path: "/srv/a", ContentHash: "h", RiskScore: 60,
		RiskLevel: model.RiskDangerous, VerdictJSON: `{}`, CreatedAt: time.Now(),
	})
	require.NoError(t, err)

	require.NoError(t, s.LinkAnalysis(ctx, logID, analysisID))

	logs, _, err := s.QueryLogs(ctx, Filter{}, 1, 1)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.NotNil(t, logs[0].AnalysisID)
	assert.Equal(t, analysisID, *logs[0].AnalysisID)
	assert.Equal(t, logs[0].RiskLevel, model.RiskDangerous)
}

func TestQueryLogsFiltersAndPaging(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	for i := 0; i < 10; i++ {
		level := model.RiskSafe
		if i%2 == 0 {
			level = model.RiskDangerous
		}
		e := entry(fmt.Sprintf("/srv/f%d.txt", i), fmt.Sprintf("key-%d", i),
			base.Add(time.Duration(i)*time.Minute), level)
		_, err := s.InsertLog(ctx, e)
		require.NoError(t, err)
	}

	// newest first
	logs, total, err := s.QueryLogs(ctx, Filter{}, 1, 4)
	require.NoError(t, err)
	assert.EqualValues(t, 10, total)
	require.Len(t, logs, 4)
	assert.Equal(t, "/srv/f9.txt", logs[0].Path)
	assert.True(t, logs[0].Timestamp.After(logs[3].Timestamp))

	// second page continues the order
	page2, _, err := s.QueryLogs(ctx, Filter{}, 2, 4)
	require.NoError(t, err)
	require.Len(t, page2, 4)
	assert.Equal(t, "/srv/f5.txt", page2[0].Path)

	// risk filter
	dangerous, total, err := s.QueryLogs(ctx, Filter{RiskLevel: model.RiskDangerous}, 1, 50)
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)
	for _, e := range dangerous {
		assert.Equal(t, model.RiskDangerous, e.RiskLevel)
	}

	// path substring
	_, total, err = s.QueryLogs(ctx, Filter{PathContains: "f3"}, 1, 50)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)

	// time range
	_, total, err = s.QueryLogs(ctx, Filter{Since: base.Add(8 * time.Minute)}, 1, 50)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
}

func TestCountByRisk(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	levels := []model.RiskLevel{
		model.RiskSafe, model.RiskSafe, model.RiskSafe,
		model.RiskModerate, model.RiskModerate,
		model.RiskSuspicious,
		model.RiskDangerous,
	}
	for i, level := range levels {
		_, err := s.InsertLog(ctx, entry("/srv/x", fmt.Sprintf("risk-%d", i), now, level))
		require.NoError(t, err)
	}

	c, err := s.CountByRisk(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, c.Safe)
	assert.EqualValues(t, 2, c.Moderate)
	assert.EqualValues(t, 1, c.Suspicious)
	assert.EqualValues(t, 1, c.Dangerous)
	assert.EqualValues(t, 7, c.Total)
}

func TestRetentionDeletesAreBoundedByCycleStart(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()
	cycleStart := now.Add(-time.Minute)

	_, err := s.InsertLog(ctx, entry("/srv/old", "old", now.Add(-10*24*time.Hour), model.RiskSafe))
	require.NoError(t, err)
	// row inserted after cycle start must survive even though it would
	// rank beyond the keep limit
	_, err = s.InsertLog(ctx, entry("/srv/new", "new", now, model.RiskSafe))
	require.NoError(t, err)

	err = s.WithTx(ctx, func(tx *Tx) error {
		n, err := tx.DeleteLogsOlderThan(now.Add(-3*24*time.Hour), cycleStart)
		if err != nil {
			return err
		}
		assert.EqualValues(t, 1, n)
		return nil
	})
	require.NoError(t, err)

	logs, total, err := s.QueryLogs(ctx, Filter{}, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, "/srv/new", logs[0].Path)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	_, err := s.InsertLog(ctx, entry("/srv/a", "rollback", time.Now().Add(-10*24*time.Hour), model.RiskSafe))
	require.NoError(t, err)

	boom := errors.New("boom")
	err = s.WithTx(ctx, func(tx *Tx) error {
		if _, err := tx.DeleteLogsOlderThan(time.Now(), time.Now()); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, total, err := s.QueryLogs(ctx, Filter{}, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total, "rollback must restore the deleted row")
}

func TestDeleteBeyondRankKeepsNewest(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	for i := 0; i < 20; i++ {
		_, err := s.InsertLog(ctx, entry(fmt.Sprintf("/srv/f%02d", i),
			fmt.Sprintf("rank-%d", i), base.Add(time.Duration(i)*time.Second), model.RiskSafe))
		require.NoError(t, err)
	}

	err := s.WithTx(ctx, func(tx *Tx) error {
		n, err := tx.DeleteLogsBeyondRank(5, time.Now())
		assert.EqualValues(t, 15, n)
		return err
	})
	require.NoError(t, err)

	logs, total, err := s.QueryLogs(ctx, Filter{}, 1, 50)
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)
	assert.Equal(t, "/srv/f19", logs[0].Path)
	assert.Equal(t, "/srv/f15", logs[4].Path)

	require.NoError(t, s.Vacuum(ctx))
}

func TestCounts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.InsertLog(ctx, entry("/srv/a", "c1", time.Now(), model.RiskSafe))
	require.NoError(t, err)
	_, err = s.UpsertAnalysis(ctx, AnalysisRow{
		Path: "/srv/a", ContentHash: "h1", RiskLevel: model.RiskSafe,
		VerdictJSON: `{}`, CreatedAt: time.Now(),
	})
	require.NoError(t, err)

	logs, analyses, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, logs)
	assert.EqualValues(t, 1, analyses)
}
