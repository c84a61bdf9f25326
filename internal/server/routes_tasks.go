package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"flowin/internal/domain"
	"flowin/internal/engine"
)

type taskPath struct {
	ID string `path:"id"`
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/tasks",
		Summary:       "Create task in the To Do column",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string            `path:"project_id"`
		Body      CreateTaskRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.CreateTask(ctx, engine.TaskCreateOptions{
			ProjectID:   input.ProjectID,
			Title:       input.Body.Title,
			Description: input.Body.Description,
			Priority:    input.Body.Priority,
			AssigneeID:  input.Body.AssigneeID,
			DueDate:     input.Body.DueDate,
			Labels:      input.Body.Labels,
			ActorID:     userID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/tasks",
		Summary:     "List tasks in feed order",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Status    string `query:"status" enum:"todo,in-progress,done"`
	}) (*struct {
		Body []domain.Task `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		tasks, err := e.ListProjectTasks(ctx, input.ProjectID, userID)
		if err != nil {
			return nil, handleError(err)
		}
		if input.Status != "" {
			filtered := make([]domain.Task, 0, len(tasks))
			for _, t := range tasks {
				if string(t.Status) == input.Status {
					filtered = append(filtered, t)
				}
			}
			tasks = filtered
		}
		return &struct {
			Body []domain.Task `json:"body"`
		}{Body: nonNilTasks(tasks)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "reorder-tasks",
		Method:        http.MethodPut,
		Path:          "/projects/{project_id}/tasks/order",
		Summary:       "Write order and status of several tasks atomically",
		DefaultStatus: http.StatusNoContent,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string              `path:"project_id"`
		Body      ReorderTasksRequest `json:"body"`
	}) (*struct{}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.BatchUpdateOrders(ctx, input.ProjectID, input.Body.Updates, userID); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}",
		Summary:     "Get task",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *taskPath) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.GetTask(ctx, input.ID, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/tasks/{id}",
		Summary:     "Update task fields",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body UpdateTaskRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.UpdateTask(ctx, engine.TaskUpdateOptions{
			ID:          input.ID,
			Title:       input.Body.Title,
			Description: input.Body.Description,
			Status:      input.Body.Status,
			Priority:    input.Body.Priority,
			AssigneeID:  input.Body.AssigneeID,
			DueDate:     input.Body.DueDate,
			Labels:      input.Body.Labels,
			Order:       input.Body.Order,
			ActorID:     userID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-task",
		Method:        http.MethodDelete,
		Path:          "/tasks/{id}",
		Summary:       "Delete task",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *taskPath) (*struct{}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteTask(ctx, input.ID, userID); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})
}

// registerTaskFeed streams a full task snapshot of the project on connect and
// after every change. Errors after the stream opened arrive as an error event.
func registerTaskFeed(api huma.API, e engine.Engine) {
	sse.Register(api, huma.Operation{
		OperationID: "task-feed",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/tasks/feed",
		Summary:     "Live task snapshots (server-sent events)",
	}, map[string]any{
		"snapshot": taskSnapshot{},
		"error":    apiErrorBody{},
	}, func(ctx context.Context, input *projectPath, send sse.Sender) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			_ = send.Data(errorEvent(authErr))
			return
		}
		feed, err := e.WatchProjectTasks(ctx, input.ProjectID, userID)
		if err != nil {
			_ = send.Data(errorEvent(handleError(err)))
			return
		}
		for tasks := range feed {
			if err := send.Data(taskSnapshot{ProjectID: input.ProjectID, Tasks: nonNilTasks(tasks)}); err != nil {
				return
			}
		}
	})
}

// registerProjectFeed streams the caller's project list on connect and after
// every create, delete, rename or membership change.
func registerProjectFeed(api huma.API, e engine.Engine) {
	sse.Register(api, huma.Operation{
		OperationID: "project-feed",
		Method:      http.MethodGet,
		Path:        "/projects/feed",
		Summary:     "Live project list snapshots (server-sent events)",
	}, map[string]any{
		"snapshot": projectListSnapshot{},
		"error":    apiErrorBody{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			_ = send.Data(errorEvent(authErr))
			return
		}
		feed, err := e.WatchUserProjects(ctx, userID)
		if err != nil {
			_ = send.Data(errorEvent(handleError(err)))
			return
		}
		for projects := range feed {
			if err := send.Data(projectListSnapshot{Projects: nonNilProjects(projects)}); err != nil {
				return
			}
		}
	})
}

func errorEvent(err huma.StatusError) apiErrorBody {
	if ae, ok := err.(*apiError); ok {
		return ae.Body
	}
	return apiErrorBody{Code: defaultCodeForStatus(err.GetStatus()), Message: err.Error()}
}
