package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// FindPodByDomain answers the host resolver's custom-domain lookup
// (SPEC_FULL.md §5: a `.config/domains` stream per pod, record name =
// the custom domain) by finding the owning pod's latest, non-deleted
// record named `domain` in any pod's `.config/domains` stream.
func (db *DB) FindPodByDomain(ctx context.Context, domain string) (string, error) {
	q := fmt.Sprintf(`
		SELECT s.pod_name
		FROM record r
		JOIN stream s ON s.id = r.stream_id
		WHERE s.path = '.config/domains' AND r.name = %s AND r.deleted = %s
		ORDER BY r.idx DESC
		LIMIT 1`, db.Placeholder(1), db.Placeholder(2))
	row := db.SQL.QueryRowContext(ctx, q, domain, boolParam(db.Dialect, false))
	var podName string
	if err := row.Scan(&podName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return podName, nil
}
