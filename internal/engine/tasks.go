package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"flowin/internal/domain"
	"flowin/internal/events"
	"flowin/internal/feed"
	"flowin/internal/metrics"
	"flowin/internal/repo"
)

const dueDateLayout = "2006-01-02"

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	ProjectID   string
	Title       string
	Description string
	Priority    domain.Priority
	AssigneeID  string
	DueDate     string
	Labels      []string
	ActorID     string
}

// CreateTask adds a task to the top of the todo column.
func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	if err := domain.Required("title", opts.Title); err != nil {
		return domain.Task{}, err
	}
	if err := domain.Required("project_id", opts.ProjectID); err != nil {
		return domain.Task{}, err
	}
	if opts.Priority == "" {
		opts.Priority = domain.PriorityMedium
	}
	if !opts.Priority.Valid() {
		return domain.Task{}, domain.ValidationError{Field: "priority", Message: fmt.Sprintf("invalid priority %q", opts.Priority)}
	}
	if err := validateDueDate(opts.DueDate); err != nil {
		return domain.Task{}, err
	}
	if err := e.requireMember(ctx, opts.ProjectID, opts.ActorID); err != nil {
		return domain.Task{}, err
	}
	var t domain.Task
	var notify []string
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		t, notify, err = e.createTaskTx(ctx, tx, opts)
		return err
	})
	if err != nil {
		return domain.Task{}, err
	}
	metrics.RecordTaskMutation("create")
	e.publish(ctx, append(notify, feed.ProjectTasks(t.ProjectID))...)
	return t, nil
}

func (e Engine) createTaskTx(ctx context.Context, tx *sql.Tx, opts TaskCreateOptions) (domain.Task, []string, error) {
	now := e.stamp()
	t := domain.Task{
		ID:          uuid.NewString(),
		ProjectID:   opts.ProjectID,
		Title:       strings.TrimSpace(opts.Title),
		Description: strings.TrimSpace(opts.Description),
		Status:      domain.StatusTodo,
		Priority:    opts.Priority,
		AssigneeID:  optionalString(opts.AssigneeID),
		DueDate:     optionalString(opts.DueDate),
		Labels:      domain.NormalizeLabels(opts.Labels),
		Order:       0,
		CreatedBy:   opts.ActorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return t, nil, fmt.Errorf("insert task: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.TaskCreated, t.ProjectID, "task", t.ID, opts.ActorID, events.EventPayload{
		"title":    t.Title,
		"priority": t.Priority,
	}); err != nil {
		return t, nil, err
	}
	topics, err := e.notifyAssignee(ctx, tx, t, opts.ActorID)
	return t, topics, err
}

// TaskUpdateOptions carries a partial update; nil fields are left untouched.
// An empty AssigneeID or DueDate clears the field.
type TaskUpdateOptions struct {
	ID          string
	Title       *string
	Description *string
	Status      *domain.TaskStatus
	Priority    *domain.Priority
	AssigneeID  *string
	DueDate     *string
	Labels      *[]string
	Order       *int
	ActorID     string
}

func (e Engine) UpdateTask(ctx context.Context, opts TaskUpdateOptions) (domain.Task, error) {
	if opts.Title != nil {
		if err := domain.Required("title", *opts.Title); err != nil {
			return domain.Task{}, err
		}
	}
	if opts.Status != nil && !opts.Status.Valid() {
		return domain.Task{}, domain.ValidationError{Field: "status", Message: fmt.Sprintf("invalid status %q", *opts.Status)}
	}
	if opts.Priority != nil && !opts.Priority.Valid() {
		return domain.Task{}, domain.ValidationError{Field: "priority", Message: fmt.Sprintf("invalid priority %q", *opts.Priority)}
	}
	if opts.DueDate != nil {
		if err := validateDueDate(*opts.DueDate); err != nil {
			return domain.Task{}, err
		}
	}
	t, err := e.Repo.GetTask(ctx, nil, opts.ID)
	if err != nil {
		return t, err
	}
	if err := e.requireMember(ctx, t.ProjectID, opts.ActorID); err != nil {
		return domain.Task{}, err
	}
	original := t
	if opts.Title != nil {
		t.Title = strings.TrimSpace(*opts.Title)
	}
	if opts.Description != nil {
		t.Description = strings.TrimSpace(*opts.Description)
	}
	if opts.Status != nil {
		t.Status = *opts.Status
	}
	if opts.Priority != nil {
		t.Priority = *opts.Priority
	}
	if opts.AssigneeID != nil {
		t.AssigneeID = optionalString(*opts.AssigneeID)
	}
	if opts.DueDate != nil {
		t.DueDate = optionalString(*opts.DueDate)
	}
	if opts.Labels != nil {
		t.Labels = domain.NormalizeLabels(*opts.Labels)
	}
	if opts.Order != nil {
		t.Order = *opts.Order
	}
	t.UpdatedAt = e.stamp()

	var topics []string
	err = e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
			return err
		}
		if err := e.Events.Append(ctx, tx, events.TaskUpdated, t.ProjectID, "task", t.ID, opts.ActorID, events.EventPayload{
			"from_status": original.Status,
			"to_status":   t.Status,
		}); err != nil {
			return err
		}
		if strPtrValue(original.AssigneeID) != strPtrValue(t.AssigneeID) {
			assigned, err := e.notifyAssignee(ctx, tx, t, opts.ActorID)
			if err != nil {
				return err
			}
			topics = append(topics, assigned...)
		}
		if original.Status != domain.StatusDone && t.Status == domain.StatusDone {
			completed, err := e.notifyCompleted(ctx, tx, t, opts.ActorID)
			if err != nil {
				return err
			}
			topics = append(topics, completed...)
		}
		return nil
	})
	if err != nil {
		return domain.Task{}, err
	}
	metrics.RecordTaskMutation("update")
	e.publish(ctx, append(topics, feed.ProjectTasks(t.ProjectID))...)
	return t, nil
}

func (e Engine) GetTask(ctx context.Context, taskID, actorID string) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, nil, taskID)
	if err != nil {
		return t, err
	}
	if err := e.requireMember(ctx, t.ProjectID, actorID); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// ListProjectTasks returns the full task set of a project in feed order.
func (e Engine) ListProjectTasks(ctx context.Context, projectID, actorID string) ([]domain.Task, error) {
	if err := e.requireMember(ctx, projectID, actorID); err != nil {
		return nil, err
	}
	return e.Repo.ListProjectTasks(ctx, projectID)
}

func (e Engine) DeleteTask(ctx context.Context, taskID, actorID string) error {
	t, err := e.Repo.GetTask(ctx, nil, taskID)
	if err != nil {
		return err
	}
	if err := e.requireMember(ctx, t.ProjectID, actorID); err != nil {
		return err
	}
	err = e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.DeleteTask(ctx, tx, taskID); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, events.TaskDeleted, t.ProjectID, "task", t.ID, actorID, events.EventPayload{"title": t.Title})
	})
	if err != nil {
		return err
	}
	metrics.RecordTaskMutation("delete")
	e.publish(ctx, feed.ProjectTasks(t.ProjectID))
	return nil
}

// BatchUpdateOrders writes order and status for every entry atomically.
func (e Engine) BatchUpdateOrders(ctx context.Context, projectID string, updates []domain.OrderUpdate, actorID string) error {
	if len(updates) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(updates))
	for _, u := range updates {
		if err := domain.Required("id", u.ID); err != nil {
			return err
		}
		if seen[u.ID] {
			return domain.ValidationError{Field: "id", Message: fmt.Sprintf("task %s listed twice", u.ID)}
		}
		seen[u.ID] = true
		if !u.Status.Valid() {
			return domain.ValidationError{Field: "status", Message: fmt.Sprintf("invalid status %q", u.Status)}
		}
		if u.Order < 0 {
			return domain.ValidationError{Field: "order", Message: "must not be negative"}
		}
	}
	if err := e.requireMember(ctx, projectID, actorID); err != nil {
		return err
	}
	ids := make([]string, 0, len(updates))
	for _, u := range updates {
		ids = append(ids, u.ID)
	}
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.ApplyOrders(ctx, tx, projectID, updates, e.stamp()); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, events.TasksReordered, projectID, "task", "", actorID, events.EventPayload{"task_ids": ids})
	})
	if err != nil {
		return err
	}
	metrics.RecordTaskMutation("reorder")
	e.publish(ctx, feed.ProjectTasks(projectID))
	return nil
}

func (e Engine) notifyAssignee(ctx context.Context, tx *sql.Tx, t domain.Task, actorID string) ([]string, error) {
	assignee := strPtrValue(t.AssigneeID)
	if assignee == "" || assignee == actorID {
		return nil, nil
	}
	if _, err := e.Repo.GetUser(ctx, assignee); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	err := e.insertNotification(ctx, tx, domain.Notification{
		UserID:    assignee,
		Type:      domain.NotificationTaskAssigned,
		Title:     "New task assigned",
		Message:   fmt.Sprintf("You were assigned %q.", t.Title),
		ActionURL: "/dashboard/projects/" + t.ProjectID,
		Priority:  notificationPriorityFor(t.Priority),
		ProjectID: t.ProjectID,
		TaskID:    t.ID,
		FromUser:  actorID,
	})
	if err != nil {
		return nil, err
	}
	return []string{feed.UserNotifications(assignee)}, nil
}

func (e Engine) notifyCompleted(ctx context.Context, tx *sql.Tx, t domain.Task, actorID string) ([]string, error) {
	if t.CreatedBy == "" || t.CreatedBy == actorID {
		return nil, nil
	}
	err := e.insertNotification(ctx, tx, domain.Notification{
		UserID:    t.CreatedBy,
		Type:      domain.NotificationTaskCompleted,
		Title:     "Task completed",
		Message:   fmt.Sprintf("%q was moved to Done.", t.Title),
		ActionURL: "/dashboard/projects/" + t.ProjectID,
		Priority:  domain.NotificationLow,
		ProjectID: t.ProjectID,
		TaskID:    t.ID,
		FromUser:  actorID,
	})
	if err != nil {
		return nil, err
	}
	return []string{feed.UserNotifications(t.CreatedBy)}, nil
}

func notificationPriorityFor(p domain.Priority) domain.NotificationPriority {
	switch p {
	case domain.PriorityHigh, domain.PriorityUrgent:
		return domain.NotificationHigh
	case domain.PriorityLow:
		return domain.NotificationLow
	}
	return domain.NotificationMedium
}

func validateDueDate(v string) error {
	if v == "" {
		return nil
	}
	if _, err := time.Parse(dueDateLayout, v); err != nil {
		return domain.ValidationError{Field: "due_date", Message: "must be YYYY-MM-DD"}
	}
	return nil
}

func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func strPtrValue(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
