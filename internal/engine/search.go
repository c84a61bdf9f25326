package engine

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"flowin/internal/search"
)

// SearchIndex loads every project the user belongs to and their tasks.
func (e Engine) SearchIndex(ctx context.Context, userID string) (*search.Index, error) {
	projects, err := e.Repo.ListUserProjects(ctx, userID)
	if err != nil {
		return nil, err
	}
	ix := search.NewIndex()
	ix.SetProjects(projects)
	for _, p := range projects {
		tasks, err := e.Repo.ListProjectTasks(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		ix.ReplaceProjectTasks(p.ID, tasks)
	}
	return ix, nil
}

func (e Engine) recents(userID string) *search.Recents {
	return search.NewRecents(e.Prefs, userID, e.Config.Search.RecentLimit)
}

// Search filters the user's projects and tasks and records a non-blank query
// in the recent list.
func (e Engine) Search(ctx context.Context, userID, query string) (search.Result, error) {
	res := search.Result{Query: query, Items: []search.Item{}, Suggestions: []string{}}
	if strings.TrimSpace(query) == "" {
		return res, nil
	}
	ix, err := e.SearchIndex(ctx, userID)
	if err != nil {
		return res, err
	}
	items := ix.Items()
	res.Items = search.Filter(items, query, e.Config.Search.MaxResults)
	res.Suggestions = search.Suggest(items, query, e.Config.Search.MaxSuggestions)

	r := e.recents(userID)
	if _, err := r.Load(ctx); err != nil {
		e.logger().Warn("recent searches unreadable; starting over", zap.String("user_id", userID), zap.Error(err))
	}
	if _, err := r.Add(ctx, query); err != nil {
		e.logger().Warn("recent search not saved", zap.String("user_id", userID), zap.Error(err))
	}
	return res, nil
}

func (e Engine) RecentSearches(ctx context.Context, userID string) ([]string, error) {
	return e.recents(userID).Load(ctx)
}

func (e Engine) ClearRecentSearches(ctx context.Context, userID string) error {
	return e.recents(userID).Clear(ctx)
}
