package store

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"
)

// KeyUpdateOffset holds the next update id to request from the bot API.
const KeyUpdateOffset = "telegram.update_offset"

// SetState upserts a key/value checkpoint.
func (db *DB) SetState(ctx context.Context, key, value string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO kv_state (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixMilli())
	return err
}

// GetState returns a checkpoint value or ErrNotFound.
func (db *DB) GetState(ctx context.Context, key string) (string, error) {
	var value string
	err := db.QueryRowContext(ctx, `SELECT value FROM kv_state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return value, err
}

// UpdateOffset returns the stored update offset, zero when none was saved.
func (db *DB) UpdateOffset(ctx context.Context) (int, error) {
	v, err := db.GetState(ctx, KeyUpdateOffset)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(v)
}

// SaveUpdateOffset persists the next update offset.
func (db *DB) SaveUpdateOffset(ctx context.Context, offset int) error {
	return db.SetState(ctx, KeyUpdateOffset, strconv.Itoa(offset))
}
