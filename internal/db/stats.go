package db

import "context"

// Stats is a point-in-time row count snapshot used by the /api/v1/metrics
// gauge export; it is intentionally cheap (three COUNT(*) queries) rather
// than a maintained counter, since the metrics endpoint is scraped
// infrequently.
type Stats struct {
	Pods    int64
	Streams int64
	Records int64
}

func (db *DB) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	if err := db.SQL.QueryRowContext(ctx, "SELECT COUNT(*) FROM pod").Scan(&s.Pods); err != nil {
		return s, err
	}
	if err := db.SQL.QueryRowContext(ctx, "SELECT COUNT(*) FROM stream").Scan(&s.Streams); err != nil {
		return s, err
	}
	if err := db.SQL.QueryRowContext(ctx, "SELECT COUNT(*) FROM record").Scan(&s.Records); err != nil {
		return s, err
	}
	return s, nil
}
