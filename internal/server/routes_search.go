package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"flowin/internal/engine"
	"flowin/internal/search"
)

func registerSearch(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "search",
		Method:      http.MethodGet,
		Path:        "/search",
		Summary:     "Substring search over visible projects and tasks",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Query string `query:"q"`
	}) (*struct {
		Body search.Result `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.Search(ctx, userID, input.Query)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body search.Result `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "recent-searches",
		Method:      http.MethodGet,
		Path:        "/search/recent",
		Summary:     "Recent queries, newest first",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body RecentSearchesResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.RecentSearches(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RecentSearchesResponse `json:"body"`
		}{Body: RecentSearchesResponse{Items: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "clear-recent-searches",
		Method:        http.MethodDelete,
		Path:          "/search/recent",
		Summary:       "Forget recent queries",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct{}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.ClearRecentSearches(ctx, userID); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})
}
