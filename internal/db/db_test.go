package db

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "cache", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "test.db")

	db, err := Open(context.Background(), dbPath)
	require.NoError(t, err, "should open database without error")
	defer func() { _ = db.Close() }()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "database file should exist")
	assert.Equal(t, dbPath, db.Path())
}

func TestSchemaVersion(t *testing.T) {
	db := openTestDB(t)

	var version int
	err := db.Conn().QueryRow("SELECT MAX(version) FROM schema_version").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 1, version)
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	db, err := Open(ctx, dbPath)
	require.NoError(t, err)
	require.NoError(t, db.PutCached(ctx, "k", []byte("v")))
	require.NoError(t, db.Close())

	db, err = Open(ctx, dbPath)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	body, ok, err := db.GetCached(ctx, "k", 0)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), body)
}

func TestCache_PutGet(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	_, ok, err := db.GetCached(ctx, "missing", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, db.PutCached(ctx, "url", []byte("<items/>")))
	require.NoError(t, db.PutCached(ctx, "url", []byte("<items totalitems=\"1\"/>")))

	body, ok, err := db.GetCached(ctx, "url", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `<items totalitems="1"/>`, string(body))
}

func TestCache_MaxAge(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	require.NoError(t, db.putCachedAt(ctx, "old", []byte("x"), time.Now().Add(-2*time.Hour)))

	_, ok, err := db.GetCached(ctx, "old", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok, "entries older than max age are ignored")

	_, ok, err = db.GetCached(ctx, "old", 0)
	require.NoError(t, err)
	assert.True(t, ok, "zero max age accepts any entry")
}

func TestCache_ClearAndStats(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	stats, err := db.CacheStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Entries)
	assert.True(t, stats.Oldest.IsZero())

	require.NoError(t, db.putCachedAt(ctx, "a", []byte("1234"), time.Now().Add(-48*time.Hour)))
	require.NoError(t, db.PutCached(ctx, "b", []byte("12")))

	stats, err = db.CacheStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Entries)
	assert.Equal(t, int64(6), stats.Bytes)
	assert.True(t, stats.Oldest.Before(stats.Newest))

	n, err := db.ClearCache(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = db.ClearCache(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
