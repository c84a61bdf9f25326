package engine

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"flowin/internal/domain"
	"flowin/internal/feed"
	"flowin/internal/kv"
	"flowin/internal/metrics"
)

func (e Engine) insertNotification(ctx context.Context, tx *sql.Tx, n domain.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Priority == "" {
		n.Priority = domain.NotificationMedium
	}
	if n.CreatedAt == "" {
		n.CreatedAt = e.stamp()
	}
	if err := e.Repo.InsertNotification(ctx, tx, n); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	metrics.RecordNotification(string(n.Type))
	return nil
}

// CreateNotification stores an unread notification for n.UserID.
func (e Engine) CreateNotification(ctx context.Context, n domain.Notification) (domain.Notification, error) {
	if err := domain.Required("user_id", n.UserID); err != nil {
		return n, err
	}
	if err := domain.Required("title", n.Title); err != nil {
		return n, err
	}
	if !n.Type.Valid() {
		return n, domain.ValidationError{Field: "type", Message: fmt.Sprintf("invalid type %q", n.Type)}
	}
	if n.Priority != "" && !n.Priority.Valid() {
		return n, domain.ValidationError{Field: "priority", Message: fmt.Sprintf("invalid priority %q", n.Priority)}
	}
	n.ID = uuid.NewString()
	n.Read = false
	if n.Priority == "" {
		n.Priority = domain.NotificationMedium
	}
	n.CreatedAt = e.stamp()
	if err := e.insertNotification(ctx, nil, n); err != nil {
		return n, err
	}
	e.publish(ctx, feed.UserNotifications(n.UserID))
	return n, nil
}

// NotificationSummary is a user's notification list plus the unread count.
type NotificationSummary struct {
	Items       []domain.Notification `json:"items"`
	UnreadCount int                   `json:"unread_count"`
}

func (e Engine) ListNotifications(ctx context.Context, userID string, limit int) (NotificationSummary, error) {
	items, err := e.Repo.ListNotifications(ctx, userID, limit)
	if err != nil {
		return NotificationSummary{}, err
	}
	unread, err := e.Repo.CountNotifications(ctx, userID, true)
	if err != nil {
		return NotificationSummary{}, err
	}
	return NotificationSummary{Items: items, UnreadCount: unread}, nil
}

func (e Engine) MarkNotificationRead(ctx context.Context, userID, id string) error {
	if err := e.Repo.MarkNotificationRead(ctx, userID, id); err != nil {
		return err
	}
	e.publish(ctx, feed.UserNotifications(userID))
	return nil
}

// MarkAllNotificationsRead flips every unread notification of userID.
func (e Engine) MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error) {
	n, err := e.Repo.MarkAllNotificationsRead(ctx, userID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		e.publish(ctx, feed.UserNotifications(userID))
	}
	return n, nil
}

// DeleteNotification hides a notification by marking it read; rows are never removed.
func (e Engine) DeleteNotification(ctx context.Context, userID, id string) error {
	return e.MarkNotificationRead(ctx, userID, id)
}

// ClearNotifications marks every notification of userID read.
func (e Engine) ClearNotifications(ctx context.Context, userID string) (int64, error) {
	return e.MarkAllNotificationsRead(ctx, userID)
}

var welcomeNotifications = []domain.Notification{
	{
		Type:      domain.NotificationSystem,
		Title:     "🎉 Welcome to Flowin!",
		Message:   "Get started by creating your first project and inviting team members.",
		Priority:  domain.NotificationHigh,
		ActionURL: "/dashboard/projects",
	},
	{
		Type:      domain.NotificationSystem,
		Title:     "📊 Explore the Kanban Board",
		Message:   "Organize your tasks with our intuitive drag-and-drop Kanban board.",
		Priority:  domain.NotificationMedium,
		ActionURL: "/dashboard/projects",
	},
	{
		Type:      domain.NotificationSystem,
		Title:     "👥 Team Collaboration",
		Message:   "Invite team members and collaborate on projects in real-time.",
		Priority:  domain.NotificationMedium,
		ActionURL: "/dashboard/team",
	},
}

// EnsureWelcomeNotifications sends the welcome set once per user. It reports whether it sent them.
func (e Engine) EnsureWelcomeNotifications(ctx context.Context, userID string) (bool, error) {
	if !e.Config.Welcome.Notifications {
		return false, nil
	}
	if e.Prefs != nil {
		if _, done, err := e.Prefs.Get(ctx, kv.WelcomeKey(userID)); err != nil {
			return false, err
		} else if done {
			return false, nil
		}
	}
	count, err := e.Repo.CountNotifications(ctx, userID, false)
	if err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}
	if e.Prefs != nil {
		// claim the flag first so concurrent loads send at most one set
		claimed, err := e.Prefs.SetIfAbsent(ctx, kv.WelcomeKey(userID), "true")
		if err != nil {
			return false, err
		}
		if !claimed {
			return false, nil
		}
	}
	err = e.withTx(ctx, func(tx *sql.Tx) error {
		for _, tmpl := range welcomeNotifications {
			n := tmpl
			n.UserID = userID
			if err := e.insertNotification(ctx, tx, n); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if e.Prefs != nil {
			if derr := e.Prefs.Delete(ctx, kv.WelcomeKey(userID)); derr != nil {
				e.logger().Warn("release welcome flag failed", zap.String("user_id", userID), zap.Error(derr))
			}
		}
		return false, err
	}
	e.publish(ctx, feed.UserNotifications(userID))
	return true, nil
}
