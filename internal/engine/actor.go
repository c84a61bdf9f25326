package engine

import (
	"context"

	"flowin/internal/domain"
)

// Actor binds the engine to one signed-in user so board and search code
// can persist and subscribe without passing the user around.
type Actor struct {
	Engine Engine
	UserID string
}

func (e Engine) As(userID string) Actor {
	return Actor{Engine: e, UserID: userID}
}

func (a Actor) SetTaskStatus(ctx context.Context, taskID string, status domain.TaskStatus) error {
	_, err := a.Engine.UpdateTask(ctx, TaskUpdateOptions{ID: taskID, Status: &status, ActorID: a.UserID})
	return err
}

func (a Actor) ReorderTasks(ctx context.Context, projectID string, updates []domain.OrderUpdate) error {
	return a.Engine.BatchUpdateOrders(ctx, projectID, updates, a.UserID)
}

func (a Actor) Projects(ctx context.Context) ([]domain.Project, error) {
	return a.Engine.ListUserProjects(ctx, a.UserID)
}

func (a Actor) WatchProjectTasks(ctx context.Context, projectID string) (<-chan []domain.Task, error) {
	return a.Engine.WatchProjectTasks(ctx, projectID, a.UserID)
}

func (a Actor) WatchProjects(ctx context.Context) (<-chan []domain.Project, error) {
	return a.Engine.WatchUserProjects(ctx, a.UserID)
}
