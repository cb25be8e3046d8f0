package retention

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/filesentry/internal/config"
	"github.com/ppiankov/filesentry/internal/model"
	"github.com/ppiankov/filesentry/internal/store"
)

func testManager(t *testing.T, policy config.Retention) (*Manager, *store.Store) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "retention.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return New(s, policy, slog.New(slog.NewTextHandler(io.Discard, nil))), s
}

// seedLogs inserts n entries spread uniformly over the given span
// ending now.
func seedLogs(t *testing.T, s *store.Store, n int, span time.Duration) {
	t.Helper()
	ctx := context.Background()
	now := time.Now()
	step := span / time.Duration(n)
	for i := 0; i < n; i++ {
		ts := now.Add(-span + time.Duration(i)*step)
		_, err := s.InsertLog(ctx, store.LogEntry{
			Timestamp: ts,
			Path:      fmt.Sprintf("/srv/f%04d", i),
			Kind:      model.Modified,
			RiskLevel: model.RiskSafe,
			DedupKey:  fmt.Sprintf("seed-%d", i),
		})
		require.NoError(t, err)
	}
}

func TestCycleEnforcesAgeAndCountBounds(t *testing.T) {
	m, s := testManager(t, config.Retention{})
	ctx := context.Background()

	seedLogs(t, s, 2000, 10*24*time.Hour)

	res, err := m.Cycle(ctx, 3, 500)
	require.NoError(t, err)
	assert.EqualValues(t, 1500, res.LogsDeleted)
	assert.True(t, res.Vacuumed)

	logs, total, err := s.QueryLogs(ctx, store.Filter{}, 1, 2000)
	require.NoError(t, err)
	assert.EqualValues(t, 500, total)

	// the survivors are the newest 500 and all inside the age bound
	cutoff := time.Now().AddDate(0, 0, -3)
	oldest := logs[len(logs)-1]
	assert.True(t, oldest.Timestamp.After(cutoff),
		"oldest survivor %v predates cutoff %v", oldest.Timestamp, cutoff)
	assert.Equal(t, "/srv/f1999", logs[0].Path)
	assert.Equal(t, "/srv/f1500", logs[len(logs)-1].Path)
}

func TestCycleAppliesToAnalyses(t *testing.T) {
	m, s := testManager(t, config.Retention{})
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 10; i++ {
		_, err := s.UpsertAnalysis(ctx, store.AnalysisRow{
			Path:        fmt.Sprintf("/srv/a%d", i),
			ContentHash: fmt.Sprintf("h%d", i),
			RiskLevel:   model.RiskSafe,
			VerdictJSON: `{}`,
			CreatedAt:   now.Add(-time.Duration(i) * 24 * time.Hour),
		})
		require.NoError(t, err)
	}

	res, err := m.Cycle(ctx, 3, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 7, res.AnalysesDeleted)

	_, analyses, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, analyses)
}

func TestCycleIsNoOpWhenWithinBounds(t *testing.T) {
	m, s := testManager(t, config.Retention{})
	ctx := context.Background()
	seedLogs(t, s, 10, time.Hour)

	res, err := m.Cycle(ctx, 3, 1000)
	require.NoError(t, err)
	assert.Zero(t, res.LogsDeleted)
	assert.False(t, res.Vacuumed)

	_, total, err := s.QueryLogs(ctx, store.Filter{}, 1, 50)
	require.NoError(t, err)
	assert.EqualValues(t, 10, total)
}

func TestEmergencyParameters(t *testing.T) {
	m, s := testManager(t, config.Retention{})
	ctx := context.Background()
	seedLogs(t, s, 1200, 12*time.Hour)

	res, err := m.Emergency(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 700, res.LogsDeleted)

	_, total, err := s.QueryLogs(ctx, store.Filter{}, 1, 2000)
	require.NoError(t, err)
	assert.EqualValues(t, EmergencyMaxRecords, total)
}

func TestTickEscalatesOnOverflow(t *testing.T) {
	m, s := testManager(t, config.Retention{
		AutoEnabled: false,
		MaxRecords:  10,
		DaysToKeep:  3,
	})
	ctx := context.Background()

	// 10x max_records triggers emergency cleanup even with auto
	// cleanup disabled
	seedLogs(t, s, 150, time.Hour)
	require.NoError(t, m.tick(ctx))

	_, total, err := s.QueryLogs(ctx, store.Filter{}, 1, 1000)
	require.NoError(t, err)
	assert.EqualValues(t, 150, total, "emergency keeps up to 500, nothing deleted here")

	seedLogs2 := func(n int) {
		now := time.Now()
		for i := 0; i < n; i++ {
			_, err := s.InsertLog(ctx, store.LogEntry{
				Timestamp: now.Add(-time.Duration(i) * time.Second),
				Path:      fmt.Sprintf("/srv/x%04d", i),
				Kind:      model.Created,
				RiskLevel: model.RiskSafe,
				DedupKey:  fmt.Sprintf("extra-%d", i),
			})
			require.NoError(t, err)
		}
	}
	seedLogs2(500)
	require.NoError(t, m.tick(ctx))

	_, total, err = s.QueryLogs(ctx, store.Filter{}, 1, 1000)
	require.NoError(t, err)
	assert.EqualValues(t, EmergencyMaxRecords, total)
}

func TestRunToleratesZeroCleanupInterval(t *testing.T) {
	m, _ := testManager(t, config.Retention{AutoEnabled: true, CleanupInterval: 0})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	// Would panic constructing the ticker without the interval guard.
	m.Run(ctx)
}

func TestTickRespectsAutoDisabled(t *testing.T) {
	m, s := testManager(t, config.Retention{
		AutoEnabled: false,
		MaxRecords:  5,
		DaysToKeep:  1,
	})
	ctx := context.Background()
	seedLogs(t, s, 20, time.Hour)

	require.NoError(t, m.tick(ctx))

	_, total, err := s.QueryLogs(ctx, store.Filter{}, 1, 100)
	require.NoError(t, err)
	assert.EqualValues(t, 20, total, "auto cleanup disabled and no overflow")
}
