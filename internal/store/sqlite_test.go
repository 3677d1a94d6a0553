package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLite_CreateAndGetRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, KindNormalize, "survey.shp")
	require.NoError(t, err)
	assert.Len(t, run.ID, 36)
	assert.Equal(t, RunStatusRunning, run.Status)

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, KindNormalize, got.Kind)
	assert.Equal(t, RunStatusRunning, got.Status)
	assert.Equal(t, "survey.shp", got.Input)
	assert.Nil(t, got.Summary)
	assert.Empty(t, got.Error)
	assert.WithinDuration(t, run.CreatedAt, got.CreatedAt, time.Millisecond)
}

func TestSQLite_CompleteRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, KindVisualize, "sample")
	require.NoError(t, err)
	require.NoError(t, st.CompleteRun(ctx, run.ID, map[string]any{"score": 0.75, "model": "KMeans"}))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusComplete, got.Status)
	assert.JSONEq(t, `{"score":0.75,"model":"KMeans"}`, string(got.Summary))
	assert.False(t, got.UpdatedAt.Before(got.CreatedAt))
}

func TestSQLite_FailRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, KindRasterClip, "*SR_B*.TIF")
	require.NoError(t, err)
	require.NoError(t, st.FailRun(ctx, run.ID, errors.New("raster: bbox does not overlap raster")))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusFailed, got.Status)
	assert.Equal(t, "raster: bbox does not overlap raster", got.Error)
}

func TestSQLite_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, st.CompleteRun(ctx, "missing", nil), ErrNotFound)
	assert.ErrorIs(t, st.FailRun(ctx, "missing", errors.New("x")), ErrNotFound)
}

func TestSQLite_ListRuns(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	var ids []string
	for _, k := range []RunKind{KindNormalize, KindVisualize, KindNormalize, KindExport} {
		run, err := st.CreateRun(ctx, k, "in")
		require.NoError(t, err)
		ids = append(ids, run.ID)
	}
	require.NoError(t, st.CompleteRun(ctx, ids[0], "ok"))

	all, err := st.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	// Newest first.
	assert.Equal(t, ids[3], all[0].ID)
	assert.Equal(t, ids[0], all[3].ID)

	normalize, err := st.ListRuns(ctx, RunFilter{Kind: KindNormalize})
	require.NoError(t, err)
	assert.Len(t, normalize, 2)

	complete, err := st.ListRuns(ctx, RunFilter{Status: RunStatusComplete})
	require.NoError(t, err)
	require.Len(t, complete, 1)
	assert.Equal(t, ids[0], complete[0].ID)
	assert.Equal(t, json.RawMessage(`"ok"`), complete[0].Summary)

	page, err := st.ListRuns(ctx, RunFilter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[2], page[0].ID)

	none, err := st.ListRuns(ctx, RunFilter{Kind: "unknown"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestTrack(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := Track(ctx, st, KindExport, "out.gpkg", func() (any, error) {
		return map[string]int{"features": 3}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, RunStatusComplete, run.Status)
	assert.JSONEq(t, `{"features":3}`, string(run.Summary))

	boom := errors.New("boom")
	run, err = Track(ctx, st, KindExport, "out.gpkg", func() (any, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	require.NotNil(t, run)

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusFailed, got.Status)
	assert.Equal(t, "boom", got.Error)
}
