package domain

import (
	"fmt"
	"strings"
)

type TaskStatus string

const (
	StatusTodo       TaskStatus = "todo"
	StatusInProgress TaskStatus = "in-progress"
	StatusDone       TaskStatus = "done"
)

// Statuses lists the board columns in display order.
var Statuses = []TaskStatus{StatusTodo, StatusInProgress, StatusDone}

func (s TaskStatus) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// Title is the column heading used by the CLI board.
func (s TaskStatus) Title() string {
	switch s {
	case StatusTodo:
		return "To Do"
	case StatusInProgress:
		return "In Progress"
	case StatusDone:
		return "Done"
	}
	return string(s)
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

type NotificationType string

const (
	NotificationTaskAssigned     NotificationType = "task_assigned"
	NotificationTaskCompleted    NotificationType = "task_completed"
	NotificationProjectInvite    NotificationType = "project_invite"
	NotificationDeadlineReminder NotificationType = "deadline_reminder"
	NotificationTeamUpdate       NotificationType = "team_update"
	NotificationSystem           NotificationType = "system"
)

func (t NotificationType) Valid() bool {
	switch t {
	case NotificationTaskAssigned, NotificationTaskCompleted, NotificationProjectInvite,
		NotificationDeadlineReminder, NotificationTeamUpdate, NotificationSystem:
		return true
	}
	return false
}

type NotificationPriority string

const (
	NotificationLow    NotificationPriority = "low"
	NotificationMedium NotificationPriority = "medium"
	NotificationHigh   NotificationPriority = "high"
)

func (p NotificationPriority) Valid() bool {
	switch p {
	case NotificationLow, NotificationMedium, NotificationHigh:
		return true
	}
	return false
}

type User struct {
	ID                string  `json:"id"`
	Email             string  `json:"email"`
	DisplayName       string  `json:"display_name"`
	PhotoURL          *string `json:"photo_url,omitempty"`
	PasswordHash      string  `json:"-"`
	CreatedAt         string  `json:"created_at" format:"date-time"`
	UpdatedAt         string  `json:"updated_at" format:"date-time"`
	PasswordChangedAt *string `json:"password_changed_at,omitempty" format:"date-time"`
}

type Project struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	OwnerID     string   `json:"owner_id"`
	Members     []string `json:"members"`
	CreatedAt   string   `json:"created_at" format:"date-time"`
	UpdatedAt   string   `json:"updated_at" format:"date-time"`
}

// HasMember reports whether userID belongs to the project.
func (p Project) HasMember(userID string) bool {
	for _, m := range p.Members {
		if m == userID {
			return true
		}
	}
	return false
}

type Task struct {
	ID          string     `json:"id"`
	ProjectID   string     `json:"project_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      TaskStatus `json:"status" enum:"todo,in-progress,done"`
	Priority    Priority   `json:"priority" enum:"low,medium,high,urgent"`
	AssigneeID  *string    `json:"assignee_id,omitempty"`
	DueDate     *string    `json:"due_date,omitempty" format:"date"`
	Labels      []string   `json:"labels"`
	Order       int        `json:"order"`
	CreatedBy   string     `json:"created_by"`
	CreatedAt   string     `json:"created_at" format:"date-time"`
	UpdatedAt   string     `json:"updated_at" format:"date-time"`
}

// OrderUpdate is one entry of an atomic batch reorder.
type OrderUpdate struct {
	ID     string     `json:"id"`
	Order  int        `json:"order"`
	Status TaskStatus `json:"status" enum:"todo,in-progress,done"`
}

type Notification struct {
	ID        string               `json:"id"`
	UserID    string               `json:"user_id"`
	Type      NotificationType     `json:"type" enum:"task_assigned,task_completed,project_invite,deadline_reminder,team_update,system"`
	Title     string               `json:"title"`
	Message   string               `json:"message"`
	ActionURL string               `json:"action_url,omitempty"`
	Read      bool                 `json:"read"`
	Priority  NotificationPriority `json:"priority" enum:"low,medium,high"`
	ProjectID string               `json:"project_id,omitempty"`
	TaskID    string               `json:"task_id,omitempty"`
	FromUser  string               `json:"from_user_id,omitempty"`
	CreatedAt string               `json:"created_at" format:"date-time"`
}

type ProjectStats struct {
	ProjectID      string `json:"project_id"`
	Total          int    `json:"total"`
	Todo           int    `json:"todo"`
	InProgress     int    `json:"in_progress"`
	Done           int    `json:"done"`
	CompletionRate int    `json:"completion_rate"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"-"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// ValidationError is returned before any write when input is rejected.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Required rejects empty or whitespace-only values.
func Required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return ValidationError{Field: field, Message: "required"}
	}
	return nil
}

// NormalizeLabels trims labels, drops empties and duplicates, keeping first-seen order.
func NormalizeLabels(labels []string) []string {
	out := make([]string, 0, len(labels))
	seen := map[string]bool{}
	for _, l := range labels {
		l = strings.TrimSpace(l)
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out
}
