// Package search keeps a flat in-memory index of the projects and tasks a
// user can see and filters it by plain substring match.
package search

import (
	"strings"

	"flowin/internal/domain"
)

const (
	DefaultMaxResults     = 20
	DefaultMaxSuggestions = 5
)

type Kind string

const (
	KindProject Kind = "project"
	KindTask    Kind = "task"
)

// Item is one searchable record. Task-only fields stay empty for projects.
type Item struct {
	ID          string            `json:"id"`
	Kind        Kind              `json:"type" enum:"project,task"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	ProjectID   string            `json:"project_id,omitempty"`
	ProjectName string            `json:"project_name,omitempty"`
	Status      domain.TaskStatus `json:"status,omitempty"`
	Priority    domain.Priority   `json:"priority,omitempty"`
	AssigneeID  *string           `json:"assignee_id,omitempty"`
	DueDate     *string           `json:"due_date,omitempty"`
	Labels      []string          `json:"labels,omitempty"`
	CreatedAt   string            `json:"created_at"`
	UpdatedAt   string            `json:"updated_at"`
}

func ProjectItem(p domain.Project) Item {
	return Item{
		ID:          p.ID,
		Kind:        KindProject,
		Title:       p.Name,
		Description: p.Description,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func TaskItem(t domain.Task, projectName string) Item {
	return Item{
		ID:          t.ID,
		Kind:        KindTask,
		Title:       t.Title,
		Description: t.Description,
		ProjectID:   t.ProjectID,
		ProjectName: projectName,
		Status:      t.Status,
		Priority:    t.Priority,
		AssigneeID:  t.AssigneeID,
		DueDate:     t.DueDate,
		Labels:      t.Labels,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func normalize(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

func (it Item) matches(q string) bool {
	if strings.Contains(strings.ToLower(it.Title), q) ||
		strings.Contains(strings.ToLower(it.Description), q) ||
		strings.Contains(strings.ToLower(it.ProjectName), q) ||
		strings.Contains(strings.ToLower(string(it.Status)), q) ||
		strings.Contains(strings.ToLower(string(it.Priority)), q) {
		return true
	}
	for _, l := range it.Labels {
		if strings.Contains(strings.ToLower(l), q) {
			return true
		}
	}
	return false
}

// Filter returns items matching query in index order, at most limit of them.
// A blank query matches nothing.
func Filter(items []Item, query string, limit int) []Item {
	q := normalize(query)
	if q == "" {
		return []Item{}
	}
	if limit <= 0 {
		limit = DefaultMaxResults
	}
	out := []Item{}
	for _, it := range items {
		if !it.matches(q) {
			continue
		}
		out = append(out, it)
		if len(out) == limit {
			break
		}
	}
	return out
}

// Suggest returns distinct completions for query: titles of items whose title
// or a label starts with it, then labels that start with it.
func Suggest(items []Item, query string, limit int) []string {
	q := normalize(query)
	if q == "" {
		return []string{}
	}
	if limit <= 0 {
		limit = DefaultMaxSuggestions
	}
	var candidates []string
	for _, it := range items {
		if strings.HasPrefix(strings.ToLower(it.Title), q) || labelHasPrefix(it.Labels, q) {
			candidates = append(candidates, it.Title)
		}
	}
	for _, it := range items {
		for _, l := range it.Labels {
			if strings.HasPrefix(strings.ToLower(l), q) {
				candidates = append(candidates, l)
			}
		}
	}
	out := []string{}
	seen := map[string]bool{}
	for _, c := range candidates {
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
		if len(out) == limit {
			break
		}
	}
	return out
}

func labelHasPrefix(labels []string, q string) bool {
	for _, l := range labels {
		if strings.HasPrefix(strings.ToLower(l), q) {
			return true
		}
	}
	return false
}
