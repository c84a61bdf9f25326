package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"flowin/internal/domain"
	"flowin/internal/engine"
)

type notificationPath struct {
	ID string `path:"id"`
}

func registerNotifications(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-notifications",
		Method:      http.MethodGet,
		Path:        "/notifications",
		Summary:     "Notifications, newest first, with unread count",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit" default:"50"`
	}) (*struct {
		Body engine.NotificationSummary `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		sum, err := e.ListNotifications(ctx, userID, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		if sum.Items == nil {
			sum.Items = []domain.Notification{}
		}
		return &struct {
			Body engine.NotificationSummary `json:"body"`
		}{Body: sum}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-notification",
		Method:        http.MethodPost,
		Path:          "/notifications",
		Summary:       "Send a notification (defaults to the current user)",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body CreateNotificationRequest `json:"body"`
	}) (*struct {
		Body domain.Notification `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		target := strings.TrimSpace(input.Body.UserID)
		if target == "" {
			target = userID
		}
		n, err := e.CreateNotification(ctx, domain.Notification{
			UserID:    target,
			Type:      input.Body.Type,
			Title:     input.Body.Title,
			Message:   input.Body.Message,
			ActionURL: input.Body.ActionURL,
			Priority:  input.Body.Priority,
			ProjectID: input.Body.ProjectID,
			TaskID:    input.Body.TaskID,
			FromUser:  userID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Notification `json:"body"`
		}{Body: n}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "read-notification",
		Method:        http.MethodPost,
		Path:          "/notifications/{id}/read",
		Summary:       "Mark one notification read",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *notificationPath) (*struct{}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.MarkNotificationRead(ctx, userID, input.ID); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})

	// Notifications are never removed; deleting one hides it by marking it read.
	huma.Register(api, huma.Operation{
		OperationID:   "delete-notification",
		Method:        http.MethodDelete,
		Path:          "/notifications/{id}",
		Summary:       "Dismiss one notification",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *notificationPath) (*struct{}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteNotification(ctx, userID, input.ID); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})

	bulk := []struct {
		id, path, summary string
		fn                func(context.Context, string) (int64, error)
	}{
		{"read-all-notifications", "/notifications/read-all", "Mark every unread notification read", e.MarkAllNotificationsRead},
		{"clear-notifications", "/notifications/clear", "Clear all notifications", e.ClearNotifications},
	}
	for _, b := range bulk {
		fn := b.fn
		huma.Register(api, huma.Operation{
			OperationID: b.id,
			Method:      http.MethodPost,
			Path:        b.path,
			Summary:     b.summary,
			Errors:      []int{http.StatusUnauthorized},
		}, func(ctx context.Context, _ *struct{}) (*struct {
			Body CountResponse `json:"body"`
		}, error) {
			userID, authErr := userIDFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			n, err := fn(ctx, userID)
			if err != nil {
				return nil, handleError(err)
			}
			return &struct {
				Body CountResponse `json:"body"`
			}{Body: CountResponse{Updated: n}}, nil
		})
	}

	sse.Register(api, huma.Operation{
		OperationID: "notification-feed",
		Method:      http.MethodGet,
		Path:        "/notifications/feed",
		Summary:     "Live notification list (server-sent events)",
	}, map[string]any{
		"snapshot": notificationSnapshot{},
		"error":    apiErrorBody{},
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit" default:"50"`
	}, send sse.Sender) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			_ = send.Data(errorEvent(authErr))
			return
		}
		feed, err := e.WatchNotifications(ctx, userID, normalizeLimit(input.Limit))
		if err != nil {
			_ = send.Data(errorEvent(handleError(err)))
			return
		}
		for sum := range feed {
			if sum.Items == nil {
				sum.Items = []domain.Notification{}
			}
			if err := send.Data(notificationSnapshot(sum)); err != nil {
				return
			}
		}
	})
}
