package server

import (
	"flowin/internal/domain"
	"flowin/internal/engine"
)

// Request payloads

type SignUpRequest struct {
	Email       string `json:"email" format:"email"`
	Password    string `json:"password" minLength:"6"`
	DisplayName string `json:"display_name,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type UpdateProfileRequest struct {
	DisplayName *string `json:"display_name,omitempty"`
	PhotoURL    *string `json:"photo_url,omitempty"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password" minLength:"6"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

type CreateProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type UpdateProjectRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

type AddMemberRequest struct {
	UserID string `json:"user_id,omitempty"`
	Email  string `json:"email,omitempty"`
}

type CreateTaskRequest struct {
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Priority    domain.Priority `json:"priority,omitempty" enum:"low,medium,high,urgent"`
	AssigneeID  string          `json:"assignee_id,omitempty"`
	DueDate     string          `json:"due_date,omitempty"`
	Labels      []string        `json:"labels,omitempty"`
}

type UpdateTaskRequest struct {
	Title       *string            `json:"title,omitempty"`
	Description *string            `json:"description,omitempty"`
	Status      *domain.TaskStatus `json:"status,omitempty" enum:"todo,in-progress,done"`
	Priority    *domain.Priority   `json:"priority,omitempty" enum:"low,medium,high,urgent"`
	AssigneeID  *string            `json:"assignee_id,omitempty"`
	DueDate     *string            `json:"due_date,omitempty"`
	Labels      *[]string          `json:"labels,omitempty"`
	Order       *int               `json:"order,omitempty"`
}

type ReorderTasksRequest struct {
	Updates []domain.OrderUpdate `json:"updates"`
}

type CreateNotificationRequest struct {
	UserID    string                      `json:"user_id,omitempty"`
	Type      domain.NotificationType     `json:"type" enum:"task_assigned,task_completed,project_invite,deadline_reminder,team_update,system"`
	Title     string                      `json:"title"`
	Message   string                      `json:"message,omitempty"`
	ActionURL string                      `json:"action_url,omitempty"`
	Priority  domain.NotificationPriority `json:"priority,omitempty" enum:"low,medium,high"`
	ProjectID string                      `json:"project_id,omitempty"`
	TaskID    string                      `json:"task_id,omitempty"`
}

// Response payloads

type APIKeyResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Key       string `json:"key"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type DashboardProject struct {
	Project domain.Project      `json:"project"`
	Stats   domain.ProjectStats `json:"stats"`
}

type DashboardResponse struct {
	User           domain.User        `json:"user"`
	Projects       []DashboardProject `json:"projects"`
	TotalTasks     int                `json:"total_tasks"`
	CompletedTasks int                `json:"completed_tasks"`
	UnreadCount    int                `json:"unread_count"`
	WelcomeSeeded  bool               `json:"welcome_seeded"`
}

type CountResponse struct {
	Updated int64 `json:"updated"`
}

type EventResponse struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type RecentSearchesResponse struct {
	Items []string `json:"items"`
}

// Feed messages

type taskSnapshot struct {
	ProjectID string        `json:"project_id"`
	Tasks     []domain.Task `json:"tasks"`
}

type projectListSnapshot struct {
	Projects []domain.Project `json:"projects"`
}

type notificationSnapshot engine.NotificationSummary

func eventResponse(evt domain.Event) EventResponse {
	return EventResponse{
		ID:         evt.ID,
		TS:         evt.TS,
		Type:       evt.Type,
		ProjectID:  evt.ProjectID,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
		Payload:    evt.Payload,
	}
}

func nonNilTasks(items []domain.Task) []domain.Task {
	if items == nil {
		return []domain.Task{}
	}
	return items
}

func nonNilProjects(items []domain.Project) []domain.Project {
	if items == nil {
		return []domain.Project{}
	}
	return items
}
