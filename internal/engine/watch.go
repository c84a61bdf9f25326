package engine

import (
	"context"

	"go.uber.org/zap"

	"flowin/internal/domain"
	"flowin/internal/feed"
	"flowin/internal/metrics"
)

// watch pushes load() once immediately and again after every signal on topic.
// Every push is the complete current state. The channel closes when ctx ends.
func watch[T any](ctx context.Context, e Engine, topic, kind string, load func(context.Context) (T, error)) (<-chan T, error) {
	signals, err := e.Feed.Subscribe(ctx, topic)
	if err != nil {
		return nil, err
	}
	out := make(chan T, 1)
	go func() {
		defer close(out)
		release := metrics.TrackSubscriber(kind)
		defer release()
		push := func() bool {
			v, err := load(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return false
				}
				// keep the subscription; the next signal retries the read
				e.logger().Warn("feed snapshot failed", zap.String("topic", topic), zap.Error(err))
				return true
			}
			select {
			case out <- v:
				return true
			case <-ctx.Done():
				return false
			}
		}
		if !push() {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-signals:
				if !ok || !push() {
					return
				}
			}
		}
	}()
	return out, nil
}

// WatchProjectTasks streams task snapshots of a project in feed order.
func (e Engine) WatchProjectTasks(ctx context.Context, projectID, actorID string) (<-chan []domain.Task, error) {
	if err := e.requireMember(ctx, projectID, actorID); err != nil {
		return nil, err
	}
	return watch(ctx, e, feed.ProjectTasks(projectID), "tasks", func(ctx context.Context) ([]domain.Task, error) {
		return e.Repo.ListProjectTasks(ctx, projectID)
	})
}

// WatchNotifications streams the user's notification list.
func (e Engine) WatchNotifications(ctx context.Context, userID string, limit int) (<-chan NotificationSummary, error) {
	return watch(ctx, e, feed.UserNotifications(userID), "notifications", func(ctx context.Context) (NotificationSummary, error) {
		return e.ListNotifications(ctx, userID, limit)
	})
}

// WatchUserProjects streams the user's project list.
func (e Engine) WatchUserProjects(ctx context.Context, userID string) (<-chan []domain.Project, error) {
	return watch(ctx, e, feed.UserProjects(userID), "projects", func(ctx context.Context) ([]domain.Project, error) {
		return e.ListUserProjects(ctx, userID)
	})
}
