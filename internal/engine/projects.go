package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"flowin/internal/domain"
	"flowin/internal/engine/auth"
	"flowin/internal/events"
	"flowin/internal/feed"
	"flowin/internal/repo"
)

// CreateProject stores a project whose only member is its owner.
func (e Engine) CreateProject(ctx context.Context, name, description, ownerID string) (domain.Project, error) {
	if err := domain.Required("name", name); err != nil {
		return domain.Project{}, err
	}
	if err := domain.Required("owner_id", ownerID); err != nil {
		return domain.Project{}, err
	}
	var p domain.Project
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		p, err = e.createProjectTx(ctx, tx, name, description, ownerID)
		return err
	})
	if err != nil {
		return domain.Project{}, err
	}
	e.publish(ctx, feed.UserProjects(ownerID))
	return p, nil
}

func (e Engine) createProjectTx(ctx context.Context, tx *sql.Tx, name, description, ownerID string) (domain.Project, error) {
	now := e.stamp()
	p := domain.Project{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(name),
		Description: strings.TrimSpace(description),
		OwnerID:     ownerID,
		Members:     []string{ownerID},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
		return domain.Project{}, fmt.Errorf("insert project: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.ProjectCreated, p.ID, "project", p.ID, ownerID, events.EventPayload{"name": p.Name}); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// ListUserProjects returns every project userID is a member of.
func (e Engine) ListUserProjects(ctx context.Context, userID string) ([]domain.Project, error) {
	projects, err := e.Repo.ListUserProjects(ctx, userID)
	if err != nil {
		return nil, err
	}
	if projects == nil {
		projects = []domain.Project{}
	}
	return projects, nil
}

// GetProject loads a project visible to actorID.
func (e Engine) GetProject(ctx context.Context, projectID, actorID string) (domain.Project, error) {
	p, err := e.Repo.GetProject(ctx, nil, projectID)
	if err != nil {
		return p, err
	}
	if !p.HasMember(actorID) {
		return domain.Project{}, auth.ForbiddenError{Permission: "project.member"}
	}
	return p, nil
}

type ProjectUpdateOptions struct {
	ID          string
	Name        *string
	Description *string
	ActorID     string
}

func (e Engine) UpdateProject(ctx context.Context, opts ProjectUpdateOptions) (domain.Project, error) {
	if opts.Name != nil {
		if err := domain.Required("name", *opts.Name); err != nil {
			return domain.Project{}, err
		}
		trimmed := strings.TrimSpace(*opts.Name)
		opts.Name = &trimmed
	}
	if _, err := e.GetProject(ctx, opts.ID, opts.ActorID); err != nil {
		return domain.Project{}, err
	}
	var p domain.Project
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.UpdateProject(ctx, tx, opts.ID, opts.Name, opts.Description, e.stamp()); err != nil {
			return err
		}
		var err error
		if p, err = e.Repo.GetProject(ctx, tx, opts.ID); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, events.ProjectUpdated, p.ID, "project", p.ID, opts.ActorID, events.EventPayload{"name": p.Name})
	})
	if err != nil {
		return domain.Project{}, err
	}
	e.publish(ctx, e.memberTopics(p.Members)...)
	return p, nil
}

// DeleteProject removes a project and its tasks. Only the owner may delete.
func (e Engine) DeleteProject(ctx context.Context, projectID, actorID string) error {
	p, err := e.GetProject(ctx, projectID, actorID)
	if err != nil {
		return err
	}
	if p.OwnerID != actorID {
		return auth.ForbiddenError{Permission: "project.owner"}
	}
	err = e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.DeleteProject(ctx, tx, projectID); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, events.ProjectDeleted, projectID, "project", projectID, actorID, events.EventPayload{"name": p.Name})
	})
	if err != nil {
		return err
	}
	e.publish(ctx, append(e.memberTopics(p.Members), feed.ProjectTasks(projectID))...)
	return nil
}

// AddProjectMember appends memberID when absent and sends them an invite notification.
func (e Engine) AddProjectMember(ctx context.Context, projectID, memberID, actorID string) (domain.Project, error) {
	if err := domain.Required("member_id", memberID); err != nil {
		return domain.Project{}, err
	}
	p, err := e.GetProject(ctx, projectID, actorID)
	if err != nil {
		return domain.Project{}, err
	}
	if p.HasMember(memberID) {
		return p, nil
	}
	member, err := e.Repo.GetUser(ctx, memberID)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return domain.Project{}, err
	}
	err = e.withTx(ctx, func(tx *sql.Tx) error {
		now := e.stamp()
		if err := e.Repo.AddMember(ctx, tx, projectID, memberID, now); err != nil {
			return err
		}
		if err := e.Repo.TouchProject(ctx, tx, projectID, now); err != nil {
			return err
		}
		if err := e.Events.Append(ctx, tx, events.ProjectMemberAdded, projectID, "project", projectID, actorID, events.EventPayload{"member_id": memberID}); err != nil {
			return err
		}
		if member.ID == "" {
			return nil
		}
		return e.insertNotification(ctx, tx, domain.Notification{
			UserID:    memberID,
			Type:      domain.NotificationProjectInvite,
			Title:     "Added to " + p.Name,
			Message:   "You were added to the project " + p.Name + ".",
			ActionURL: "/dashboard/projects/" + projectID,
			Priority:  domain.NotificationMedium,
			ProjectID: projectID,
			FromUser:  actorID,
		})
	})
	if err != nil {
		return domain.Project{}, err
	}
	p, err = e.Repo.GetProject(ctx, nil, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	if member.ID == "" {
		e.logger().Info("member added without account", zap.String("project_id", projectID), zap.String("member_id", memberID))
	} else {
		e.publish(ctx, feed.UserNotifications(memberID))
	}
	e.publish(ctx, e.memberTopics(p.Members)...)
	return p, nil
}

// ProjectStats counts tasks per column and the completion percentage.
func (e Engine) ProjectStats(ctx context.Context, projectID, actorID string) (domain.ProjectStats, error) {
	if _, err := e.GetProject(ctx, projectID, actorID); err != nil {
		return domain.ProjectStats{}, err
	}
	counts, err := e.Repo.CountTasksByStatus(ctx, projectID)
	if err != nil {
		return domain.ProjectStats{}, err
	}
	return statsFromCounts(projectID, counts), nil
}

func statsFromCounts(projectID string, counts map[domain.TaskStatus]int) domain.ProjectStats {
	s := domain.ProjectStats{
		ProjectID:  projectID,
		Todo:       counts[domain.StatusTodo],
		InProgress: counts[domain.StatusInProgress],
		Done:       counts[domain.StatusDone],
	}
	s.Total = s.Todo + s.InProgress + s.Done
	if s.Total > 0 {
		s.CompletionRate = (s.Done*100 + s.Total/2) / s.Total
	}
	return s
}

// requireMember fails with ForbiddenError unless actorID belongs to projectID.
func (e Engine) requireMember(ctx context.Context, projectID, actorID string) error {
	ok, err := e.Repo.IsMember(ctx, projectID, actorID)
	if err != nil {
		return err
	}
	if !ok {
		if _, err := e.Repo.GetProject(ctx, nil, projectID); err != nil {
			return err
		}
		return auth.ForbiddenError{Permission: "project.member"}
	}
	return nil
}
