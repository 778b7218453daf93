package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CacheStats summarizes the response cache.
type CacheStats struct {
	Entries int64
	Bytes   int64
	Oldest  time.Time
	Newest  time.Time
}

// GetCached returns the body stored for key when it is younger than maxAge.
// A non-positive maxAge accepts entries of any age.
func (db *DB) GetCached(ctx context.Context, key string, maxAge time.Duration) ([]byte, bool, error) {
	var body []byte
	var fetchedAt int64
	err := db.conn.QueryRowContext(ctx,
		"SELECT body, fetched_at FROM api_cache WHERE key = ?", key,
	).Scan(&body, &fetchedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read cache entry: %w", err)
	}
	if maxAge > 0 && time.Since(time.Unix(fetchedAt, 0)) > maxAge {
		return nil, false, nil
	}
	return body, true, nil
}

// PutCached stores body under key, replacing any previous entry.
func (db *DB) PutCached(ctx context.Context, key string, body []byte) error {
	return db.putCachedAt(ctx, key, body, time.Now())
}

func (db *DB) putCachedAt(ctx context.Context, key string, body []byte, at time.Time) error {
	query := `
		INSERT INTO api_cache (key, body, fetched_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			body = excluded.body,
			fetched_at = excluded.fetched_at
	`
	if _, err := db.conn.ExecContext(ctx, query, key, body, at.Unix()); err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}
	return nil
}

// ClearCache removes entries older than olderThan, or every entry when
// olderThan is zero. It returns the number of removed entries.
func (db *DB) ClearCache(ctx context.Context, olderThan time.Duration) (int64, error) {
	var res sql.Result
	var err error
	if olderThan > 0 {
		cutoff := time.Now().Add(-olderThan).Unix()
		res, err = db.conn.ExecContext(ctx, "DELETE FROM api_cache WHERE fetched_at < ?", cutoff)
	} else {
		res, err = db.conn.ExecContext(ctx, "DELETE FROM api_cache")
	}
	if err != nil {
		return 0, fmt.Errorf("failed to clear cache: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count cleared entries: %w", err)
	}
	return n, nil
}

// CacheStats returns the number and size of cached responses.
func (db *DB) CacheStats(ctx context.Context) (CacheStats, error) {
	var s CacheStats
	var oldest, newest sql.NullInt64
	err := db.conn.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(LENGTH(body)), 0), MIN(fetched_at), MAX(fetched_at)
		FROM api_cache
	`).Scan(&s.Entries, &s.Bytes, &oldest, &newest)
	if err != nil {
		return s, fmt.Errorf("failed to read cache stats: %w", err)
	}
	if oldest.Valid {
		s.Oldest = time.Unix(oldest.Int64, 0)
	}
	if newest.Valid {
		s.Newest = time.Unix(newest.Int64, 0)
	}
	return s, nil
}
