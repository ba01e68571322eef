package store

import (
	"context"
	"database/sql"
	"time"
)

// RecentPublications returns the newest publications, most recent first.
func (db *DB) RecentPublications(ctx context.Context, limit int) ([]Publication, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT retraction_id, user_id, variant, category, summary, published_at, retracted_at
		FROM publications ORDER BY published_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Publication
	for rows.Next() {
		var (
			p           Publication
			publishedAt int64
			retractedAt sql.NullInt64
		)
		if err := rows.Scan(&p.RetractionID, &p.UserID, &p.Variant, &p.Category, &p.Summary, &publishedAt, &retractedAt); err != nil {
			return nil, err
		}
		p.PublishedAt = time.UnixMilli(publishedAt)
		if retractedAt.Valid {
			t := time.UnixMilli(retractedAt.Int64)
			p.RetractedAt = &t
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CountPublishedSince counts publications made at or after since.
func (db *DB) CountPublishedSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM publications WHERE published_at >= ?`, since.UnixMilli()).Scan(&n)
	return n, err
}
