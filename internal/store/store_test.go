package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestRecordAndRecent(t *testing.T) {
	db := openTemp(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, db.Record(ctx, Event{Kind: KindSnapshot, Detail: "20240102-030405", At: base}))
	require.NoError(t, db.Record(ctx, Event{Kind: KindConfirm, TaskID: "981", TranslationID: "5521", OK: true, At: base.Add(time.Second)}))

	got, err := db.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, KindConfirm, got[0].Kind)
	assert.Equal(t, "981", got[0].TaskID)
	assert.Equal(t, "5521", got[0].TranslationID)
	assert.True(t, got[0].OK)
	assert.True(t, got[0].At.Equal(base.Add(time.Second)))

	assert.Equal(t, KindSnapshot, got[1].Kind)
	assert.False(t, got[1].OK)
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := openTemp(t)
	require.NoError(t, Migrate(db.Pool))

	var v int
	require.NoError(t, db.Pool.QueryRow(`PRAGMA user_version;`).Scan(&v))
	assert.Equal(t, 1, v)
}

func TestCleanup(t *testing.T) {
	db := openTemp(t)
	ctx := context.Background()

	require.NoError(t, db.Record(ctx, Event{Kind: KindAlert, At: time.Now().Add(-48 * time.Hour)}))
	require.NoError(t, db.Record(ctx, Event{Kind: KindAlert}))

	n, err := db.Cleanup(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err := db.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestNilDBIsNoop(t *testing.T) {
	var db *DB
	ctx := context.Background()
	assert.NoError(t, db.Record(ctx, Event{Kind: KindAlert}))
	got, err := db.Recent(ctx, 5)
	assert.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, db.Close())
}
