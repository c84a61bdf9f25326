package repo

import (
	"context"
	"database/sql"
	"errors"

	"flowin/internal/domain"
)

const notificationColumns = `id,user_id,type,title,message,COALESCE(action_url,''),read,priority,COALESCE(project_id,''),COALESCE(task_id,''),COALESCE(from_user_id,''),created_at`

func scanNotification(sc interface{ Scan(...any) error }) (domain.Notification, error) {
	var n domain.Notification
	err := sc.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.ActionURL, &n.Read, &n.Priority, &n.ProjectID, &n.TaskID, &n.FromUser, &n.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return n, ErrNotFound
	}
	return n, err
}

func (r Repo) InsertNotification(ctx context.Context, tx *sql.Tx, n domain.Notification) error {
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO notifications(id,user_id,type,title,message,action_url,read,priority,project_id,task_id,from_user_id,created_at) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		n.ID, n.UserID, n.Type, n.Title, n.Message, nullable(n.ActionURL), n.Read, n.Priority,
		nullable(n.ProjectID), nullable(n.TaskID), nullable(n.FromUser), n.CreatedAt)
	return err
}

func (r Repo) GetNotification(ctx context.Context, id string) (domain.Notification, error) {
	return scanNotification(r.DB.QueryRowContext(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id=?`, id))
}

// ListNotifications returns the user's notifications, newest first. limit <= 0 means all.
func (r Repo) ListNotifications(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE user_id=? ORDER BY created_at DESC, rowid DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	return res, rows.Err()
}

func (r Repo) CountNotifications(ctx context.Context, userID string, unreadOnly bool) (int, error) {
	query := `SELECT count(*) FROM notifications WHERE user_id=?`
	if unreadOnly {
		query += ` AND read=0`
	}
	var n int
	err := r.DB.QueryRowContext(ctx, query, userID).Scan(&n)
	return n, err
}

// MarkNotificationRead flips one notification owned by userID to read.
func (r Repo) MarkNotificationRead(ctx context.Context, userID, id string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE notifications SET read=1 WHERE id=? AND user_id=?`, id, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkAllNotificationsRead updates only unread rows and returns how many changed.
func (r Repo) MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `UPDATE notifications SET read=1 WHERE user_id=? AND read=0`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
