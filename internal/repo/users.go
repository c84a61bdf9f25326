package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"flowin/internal/domain"
)

const userColumns = `id,email,display_name,photo_url,password_hash,created_at,updated_at,password_changed_at`

// ErrEmailTaken is returned when inserting a user whose email already exists.
var ErrEmailTaken = errors.New("email already registered")

func scanUser(row *sql.Row) (domain.User, error) {
	var u domain.User
	var photo, changed sql.NullString
	err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &photo, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt, &changed)
	if errors.Is(err, sql.ErrNoRows) {
		return u, ErrNotFound
	}
	u.PhotoURL = stringPtr(photo)
	u.PasswordChangedAt = stringPtr(changed)
	return u, err
}

func (r Repo) InsertUser(ctx context.Context, tx *sql.Tx, u domain.User) error {
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO users(`+userColumns+`) VALUES (?,?,?,?,?,?,?,?)`,
		u.ID, u.Email, u.DisplayName, nullableStringPtr(u.PhotoURL), u.PasswordHash, u.CreatedAt, u.UpdatedAt, nullableStringPtr(u.PasswordChangedAt))
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed: users.email") {
		return ErrEmailTaken
	}
	return err
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id))
}

func (r Repo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email=? COLLATE NOCASE`, strings.TrimSpace(email)))
}

// UpdateUserProfile changes display name and photo; nil leaves a field untouched.
func (r Repo) UpdateUserProfile(ctx context.Context, id string, displayName, photoURL *string, updatedAt string) error {
	fields := []string{"updated_at=?"}
	args := []any{updatedAt}
	if displayName != nil {
		fields = append(fields, "display_name=?")
		args = append(args, *displayName)
	}
	if photoURL != nil {
		fields = append(fields, "photo_url=?")
		args = append(args, nullable(*photoURL))
	}
	args = append(args, id)
	res, err := r.DB.ExecContext(ctx, fmt.Sprintf(`UPDATE users SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) UpdatePasswordHash(ctx context.Context, id, hash, changedAt string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE users SET password_hash=?, password_changed_at=?, updated_at=? WHERE id=?`, hash, changedAt, changedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteUser removes the account row and its API keys. Projects, tasks and notifications are left in place.
func (r Repo) DeleteUser(ctx context.Context, tx *sql.Tx, id string) error {
	q := r.on(tx)
	if _, err := q.ExecContext(ctx, `DELETE FROM api_keys WHERE user_id=?`, id); err != nil {
		return err
	}
	res, err := q.ExecContext(ctx, `DELETE FROM users WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
