package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"flowin/internal/domain"
	"flowin/internal/feed"
	"flowin/internal/kv"
	"flowin/internal/repo"
)

// SendDeadlineReminders notifies assignees (or creators) of open tasks due
// within window. Each task and due date pair is reminded once.
func (e Engine) SendDeadlineReminders(ctx context.Context, window time.Duration) (int, error) {
	now := e.now().UTC()
	tasks, err := e.Repo.ListTasksDueBetween(ctx, now.Format(dueDateLayout), now.Add(window).Format(dueDateLayout))
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, t := range tasks {
		recipient := strPtrValue(t.AssigneeID)
		if recipient == "" {
			recipient = t.CreatedBy
		}
		if _, err := e.Repo.GetUser(ctx, recipient); errors.Is(err, repo.ErrNotFound) {
			continue
		} else if err != nil {
			return sent, err
		}
		flag := kv.DeadlineReminderKey(t.ID, *t.DueDate)
		if e.Prefs != nil {
			claimed, err := e.Prefs.SetIfAbsent(ctx, flag, now.Format(time.RFC3339))
			if err != nil {
				return sent, err
			}
			if !claimed {
				continue
			}
		}
		err := e.insertNotification(ctx, nil, domain.Notification{
			UserID:    recipient,
			Type:      domain.NotificationDeadlineReminder,
			Title:     "Task due soon",
			Message:   fmt.Sprintf("%q is due on %s.", t.Title, *t.DueDate),
			ActionURL: "/dashboard/projects/" + t.ProjectID,
			Priority:  notificationPriorityFor(t.Priority),
			ProjectID: t.ProjectID,
			TaskID:    t.ID,
		})
		if err != nil {
			if e.Prefs != nil {
				if derr := e.Prefs.Delete(ctx, flag); derr != nil {
					e.logger().Warn("release reminder flag failed", zap.String("task_id", t.ID), zap.Error(derr))
				}
			}
			return sent, err
		}
		sent++
		e.publish(ctx, feed.UserNotifications(recipient))
	}
	if sent > 0 {
		e.logger().Info("deadline reminders sent", zap.Int("count", sent))
	}
	return sent, nil
}

// RunDeadlineReminders sweeps on every interval until ctx is done.
func (e Engine) RunDeadlineReminders(ctx context.Context, interval, window time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := e.SendDeadlineReminders(ctx, window); err != nil && ctx.Err() == nil {
			e.logger().Warn("deadline reminder sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
