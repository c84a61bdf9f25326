package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Prefs is a key-value store backed by the prefs table.
type Prefs struct {
	DB  *sql.DB
	Now func() time.Time
}

func (p Prefs) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := p.DB.QueryRowContext(ctx, `SELECT value FROM prefs WHERE key=?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (p Prefs) Set(ctx context.Context, key, value string) error {
	_, err := p.DB.ExecContext(ctx, `INSERT INTO prefs(key,value,updated_at) VALUES (?,?,?)
ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`, key, value, p.now())
	return err
}

// SetIfAbsent stores value only when key is unset and reports whether it did.
func (p Prefs) SetIfAbsent(ctx context.Context, key, value string) (bool, error) {
	res, err := p.DB.ExecContext(ctx, `INSERT OR IGNORE INTO prefs(key,value,updated_at) VALUES (?,?,?)`, key, value, p.now())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (p Prefs) Delete(ctx context.Context, key string) error {
	_, err := p.DB.ExecContext(ctx, `DELETE FROM prefs WHERE key=?`, key)
	return err
}

func (p Prefs) now() string {
	if p.Now == nil {
		return time.Now().UTC().Format(time.RFC3339)
	}
	return p.Now().UTC().Format(time.RFC3339)
}
