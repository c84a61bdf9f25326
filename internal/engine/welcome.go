package engine

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"flowin/internal/domain"
	"flowin/internal/feed"
)

const (
	welcomeProjectName        = "Welcome Project 🎉"
	welcomeProjectDescription = "This is your first project! Try adding some tasks, editing them, and dragging them between columns."
)

type welcomeTask struct {
	title       string
	description string
	priority    domain.Priority
	assignSelf  bool
	labels      []string
	dueIn       time.Duration
}

var welcomeTasks = []welcomeTask{
	{
		title:       "🚀 Welcome to Flowin!",
		description: "This is a sample task. Click the edit button to modify it, add labels, set priorities, or drag it to different columns. Try all the features!",
		priority:    domain.PriorityHigh,
		assignSelf:  true,
		labels:      []string{"welcome", "getting-started"},
		dueIn:       7 * 24 * time.Hour,
	},
	{
		title:       "✏️ Try editing this task",
		description: "Click the edit button to see the task modal. You can update the title, description, priority, assignee, due date, and labels.",
		priority:    domain.PriorityMedium,
		labels:      []string{"demo", "editing"},
	},
	{
		title:       "🎯 Set task priorities",
		description: "Tasks can have different priority levels: Low, Medium, High, and Urgent. Use priorities to organize your work effectively.",
		priority:    domain.PriorityLow,
		labels:      []string{"demo", "priorities"},
		dueIn:       3 * 24 * time.Hour,
	},
	{
		title:       "✅ Drag me to \"Done\"!",
		description: "Try dragging this task to the \"Done\" column. All changes sync in real-time with the database.",
		priority:    domain.PriorityUrgent,
		assignSelf:  true,
		labels:      []string{"demo", "drag-drop"},
	},
}

// EnsureWelcomeProject seeds one sample project with four tasks for a user who has no projects.
// It returns the seeded project and true, or false when the user already had projects.
func (e Engine) EnsureWelcomeProject(ctx context.Context, userID string) (domain.Project, bool, error) {
	if !e.Config.Welcome.SeedProject {
		return domain.Project{}, false, nil
	}
	if e.seedMu != nil {
		e.seedMu.Lock()
		defer e.seedMu.Unlock()
	}
	var (
		p      domain.Project
		seeded bool
	)
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		n, err := e.Repo.CountUserProjects(ctx, tx, userID)
		if err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
		p, err = e.createProjectTx(ctx, tx, welcomeProjectName, welcomeProjectDescription, userID)
		if err != nil {
			return err
		}
		for _, wt := range welcomeTasks {
			opts := TaskCreateOptions{
				ProjectID:   p.ID,
				Title:       wt.title,
				Description: wt.description,
				Priority:    wt.priority,
				Labels:      wt.labels,
				ActorID:     userID,
			}
			if wt.assignSelf {
				opts.AssigneeID = userID
			}
			if wt.dueIn > 0 {
				opts.DueDate = e.now().UTC().Add(wt.dueIn).Format(dueDateLayout)
			}
			if _, _, err := e.createTaskTx(ctx, tx, opts); err != nil {
				return err
			}
		}
		seeded = true
		return nil
	})
	if err != nil {
		return domain.Project{}, false, err
	}
	if seeded {
		e.logger().Info("seeded welcome project", zap.String("user_id", userID), zap.String("project_id", p.ID))
		e.publish(ctx, feed.UserProjects(userID), feed.ProjectTasks(p.ID))
	}
	return p, seeded, nil
}
