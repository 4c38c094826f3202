package db

import (
	"context"
	"fmt"
	"time"
)

// IncrementRateBucket atomically upserts the current window's bucket for
// (identifier, action): inserts count=1 if no bucket exists for
// [windowStart, windowEnd), otherwise increments it. Returns the
// post-increment count. Implemented as a single INSERT ... ON CONFLICT ...
// RETURNING statement so postgres and sqlite both commit the admission
// decision atomically, matching spec.md §4.3.
func (db *DB) IncrementRateBucket(ctx context.Context, q Querier, identifier, action string, windowStart, windowEnd time.Time) (int, error) {
	query := fmt.Sprintf(`
		INSERT INTO rate_limit (identifier, action, count, window_start, window_end)
		VALUES (%s, %s, 1, %s, %s)
		ON CONFLICT (identifier, action, window_start)
		DO UPDATE SET count = rate_limit.count + 1
		RETURNING count`,
		db.Placeholder(1), db.Placeholder(2), db.Placeholder(3), db.Placeholder(4))

	var count int
	err := q.QueryRowContext(ctx, query, identifier, action, db.timeValue(windowStart), db.timeValue(windowEnd)).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// GCExpiredBuckets deletes rate-limit buckets whose window has fully
// elapsed, called opportunistically by the rate limiter's SQLAdapter.
func (db *DB) GCExpiredBuckets(ctx context.Context, before time.Time) error {
	query := fmt.Sprintf(`DELETE FROM rate_limit WHERE window_end <= %s`, db.Placeholder(1))
	_, err := db.SQL.ExecContext(ctx, query, db.timeValue(before))
	return err
}
