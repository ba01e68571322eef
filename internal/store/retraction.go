package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// InsertRetraction stores a pending retraction and its publication row in one
// transaction.
func (db *DB) InsertRetraction(ctx context.Context, r *Retraction, p *Publication) error {
	ids, err := json.Marshal(r.MessageIDs)
	if err != nil {
		return fmt.Errorf("encode message ids: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO retractions (id, chat_id, message_ids, delete_at, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.ChatID, string(ids), r.DeleteAt.UnixMilli(), r.CreatedAt.UnixMilli()); err != nil {
		return fmt.Errorf("insert retraction: %w", err)
	}

	if p != nil {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO publications (retraction_id, user_id, variant, category, summary, published_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			r.ID, p.UserID, p.Variant, p.Category, p.Summary, p.PublishedAt.UnixMilli()); err != nil {
			return fmt.Errorf("insert publication: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit retraction: %w", err)
	}
	return nil
}

// PendingRetractions returns every stored retraction, earliest deadline first.
func (db *DB) PendingRetractions(ctx context.Context) ([]Retraction, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, chat_id, message_ids, delete_at, created_at
		FROM retractions ORDER BY delete_at ASC, created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Retraction
	for rows.Next() {
		var (
			r         Retraction
			ids       string
			deleteAt  int64
			createdAt int64
		)
		if err := rows.Scan(&r.ID, &r.ChatID, &ids, &deleteAt, &createdAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(ids), &r.MessageIDs); err != nil {
			return nil, fmt.Errorf("decode message ids of %s: %w", r.ID, err)
		}
		r.DeleteAt = time.UnixMilli(deleteAt)
		r.CreatedAt = time.UnixMilli(createdAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// CompleteRetraction removes a fired retraction and stamps its publication.
func (db *DB) CompleteRetraction(ctx context.Context, id string, at time.Time) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM retractions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete retraction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE publications SET retracted_at = ? WHERE retraction_id = ?`, at.UnixMilli(), id); err != nil {
		return fmt.Errorf("stamp publication: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit retraction: %w", err)
	}
	return nil
}
