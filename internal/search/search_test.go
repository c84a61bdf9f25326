package search

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowin/internal/domain"
	"flowin/internal/kv"
)

func sampleItems() []Item {
	web := domain.Project{ID: "p1", Name: "Website Redesign", Description: "New marketing site"}
	ops := domain.Project{ID: "p2", Name: "Ops"}
	return []Item{
		ProjectItem(web),
		ProjectItem(ops),
		TaskItem(domain.Task{ID: "t1", ProjectID: "p1", Title: "Fix login bug", Status: domain.StatusInProgress, Priority: domain.PriorityHigh, Labels: []string{"bug", "auth"}}, web.Name),
		TaskItem(domain.Task{ID: "t2", ProjectID: "p2", Title: "Rotate certificates", Status: domain.StatusTodo, Priority: domain.PriorityUrgent, Labels: []string{"security"}}, ops.Name),
		TaskItem(domain.Task{ID: "t3", ProjectID: "p2", Title: "Budget review", Status: domain.StatusDone, Priority: domain.PriorityLow, Labels: []string{"finance"}}, ops.Name),
	}
}

func itemIDs(items []Item) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}

func TestFilterMatchesTitleLabelAndProject(t *testing.T) {
	items := sampleItems()

	assert.Equal(t, []string{"t1"}, itemIDs(Filter(items, "login", 0)))
	assert.Equal(t, []string{"t1"}, itemIDs(Filter(items, "BUG", 0)))
	assert.Equal(t, []string{"p1", "t1"}, itemIDs(Filter(items, "redesign", 0)))
	assert.Equal(t, []string{"p1"}, itemIDs(Filter(items, "marketing", 0)))
	assert.Equal(t, []string{"t2"}, itemIDs(Filter(items, "urgent", 0)))
	assert.Equal(t, []string{"t1"}, itemIDs(Filter(items, "in-progress", 0)))
	assert.Equal(t, []string{"t2"}, itemIDs(Filter(items, "  secur ", 0)))
}

func TestFilterBlankAndLimit(t *testing.T) {
	items := sampleItems()
	assert.Empty(t, Filter(items, "   ", 0))

	var many []Item
	for i := 0; i < 30; i++ {
		many = append(many, Item{ID: fmt.Sprintf("t%d", i), Kind: KindTask, Title: "task"})
	}
	got := Filter(many, "task", 0)
	require.Len(t, got, DefaultMaxResults)
	assert.Equal(t, "t0", got[0].ID)
	assert.Len(t, Filter(many, "task", 3), 3)
}

func TestSuggestTitlesThenLabelsDistinct(t *testing.T) {
	items := []Item{
		{ID: "1", Title: "Bugfix sprint", Labels: []string{"bug"}},
		{ID: "2", Title: "Login", Labels: []string{"bug", "backend"}},
		{ID: "3", Title: "Bugfix sprint"},
	}
	got := Suggest(items, "b", 0)
	assert.Equal(t, []string{"Bugfix sprint", "Login", "bug", "backend"}, got)
	assert.Equal(t, []string{"Bugfix sprint", "Login"}, Suggest(items, "b", 2))
	assert.Empty(t, Suggest(items, "", 0))
}

func TestIndexItemsOrderAndRemoval(t *testing.T) {
	ix := NewIndex()
	ix.SetProjects([]domain.Project{{ID: "p1", Name: "One"}, {ID: "p2", Name: "Two"}})
	ix.ReplaceProjectTasks("p2", []domain.Task{{ID: "b", ProjectID: "p2", Title: "B", UpdatedAt: "2024-01-01T00:00:00Z"}})
	ix.ReplaceProjectTasks("p1", []domain.Task{
		{ID: "old", ProjectID: "p1", Title: "Old", UpdatedAt: "2024-01-01T00:00:00Z"},
		{ID: "new", ProjectID: "p1", Title: "New", UpdatedAt: "2024-02-01T00:00:00Z"},
	})

	items := ix.Items()
	assert.Equal(t, []string{"p1", "p2", "new", "old", "b"}, itemIDs(items))
	assert.Equal(t, "One", items[2].ProjectName)

	ix.RemoveProject("p1")
	assert.Equal(t, []string{"p2", "b"}, itemIDs(ix.Items()))

	ix.ReplaceProjectTasks("p2", nil)
	assert.Equal(t, []string{"p2"}, itemIDs(ix.Items()))
}

type fakeSource struct {
	mu       sync.Mutex
	projects []domain.Project
	lists    chan []domain.Project
	feeds    map[string]chan []domain.Task
	watched  map[string]int
}

func newFakeSource(projects ...domain.Project) *fakeSource {
	return &fakeSource{
		projects: projects,
		lists:    make(chan []domain.Project),
		feeds:    map[string]chan []domain.Task{},
		watched:  map[string]int{},
	}
}

func (f *fakeSource) WatchProjects(ctx context.Context) (<-chan []domain.Project, error) {
	out := make(chan []domain.Project)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case list := <-f.lists:
				select {
				case out <- list:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (f *fakeSource) pushProjects(t *testing.T, projects ...domain.Project) {
	select {
	case f.lists <- projects:
	case <-time.After(time.Second):
		t.Fatal("project feed not consumed")
	}
}

func (f *fakeSource) Projects(context.Context) ([]domain.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Project(nil), f.projects...), nil
}

func (f *fakeSource) setProjects(projects ...domain.Project) {
	f.mu.Lock()
	f.projects = projects
	f.mu.Unlock()
}

func (f *fakeSource) WatchProjectTasks(ctx context.Context, projectID string) (<-chan []domain.Task, error) {
	in := make(chan []domain.Task)
	out := make(chan []domain.Task)
	f.mu.Lock()
	f.feeds[projectID] = in
	f.watched[projectID]++
	f.mu.Unlock()
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case tasks := <-in:
				select {
				case out <- tasks:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (f *fakeSource) push(t *testing.T, projectID string, tasks []domain.Task) {
	f.mu.Lock()
	ch := f.feeds[projectID]
	f.mu.Unlock()
	require.NotNil(t, ch)
	select {
	case ch <- tasks:
	case <-time.After(time.Second):
		t.Fatalf("feed %s not consumed", projectID)
	}
}

func TestSupervisorTracksProjectList(t *testing.T) {
	web := domain.Project{ID: "p1", Name: "Website Redesign"}
	ops := domain.Project{ID: "p2", Name: "Ops"}
	src := newFakeSource(web, ops)
	sup := NewSupervisor(src, nil, nil)
	defer sup.Close()

	ctx := context.Background()
	require.NoError(t, sup.Sync(ctx))
	assert.Equal(t, []string{"p1", "p2"}, sup.Subscriptions())

	src.push(t, "p1", []domain.Task{{ID: "t1", ProjectID: "p1", Title: "Fix login bug", Labels: []string{"bug"}}})
	require.Eventually(t, func() bool {
		return len(Filter(sup.Index.Items(), "login", 0)) == 1
	}, time.Second, 5*time.Millisecond)

	// a deleted task disappears with the next snapshot
	src.push(t, "p1", []domain.Task{})
	require.Eventually(t, func() bool {
		return len(Filter(sup.Index.Items(), "login", 0)) == 0
	}, time.Second, 5*time.Millisecond)

	src.setProjects(ops)
	require.NoError(t, sup.Sync(ctx))
	assert.Equal(t, []string{"p2"}, sup.Subscriptions())
	assert.Empty(t, Filter(sup.Index.Items(), "redesign", 0))

	require.NoError(t, sup.Sync(ctx))
	src.mu.Lock()
	assert.Equal(t, 1, src.watched["p2"])
	src.mu.Unlock()
}

func TestSupervisorFollowsProjectFeed(t *testing.T) {
	web := domain.Project{ID: "p1", Name: "Website Redesign"}
	src := newFakeSource(web)
	sup := NewSupervisor(src, nil, nil)
	defer sup.Close()

	ctx := context.Background()
	require.NoError(t, sup.Sync(ctx))
	require.NoError(t, sup.Follow(ctx))
	assert.Equal(t, []string{"p1"}, sup.Subscriptions())

	launch := domain.Project{ID: "p3", Name: "Launch"}
	src.pushProjects(t, web, launch)
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"p1", "p3"}, sup.Subscriptions())
	}, time.Second, 5*time.Millisecond)
	assert.Len(t, Filter(sup.Index.Items(), "launch", 0), 1)

	src.pushProjects(t, launch)
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"p3"}, sup.Subscriptions())
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, Filter(sup.Index.Items(), "redesign", 0))
}

func TestSupervisorCloseCancelsAll(t *testing.T) {
	src := newFakeSource(domain.Project{ID: "p1"}, domain.Project{ID: "p2"})
	sup := NewSupervisor(src, nil, nil)
	require.NoError(t, sup.Sync(context.Background()))

	done := make(chan struct{})
	go func() {
		sup.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("close did not return")
	}
	assert.Empty(t, sup.Subscriptions())
}

func TestRecentsMoveToFrontAndLimit(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	r := NewRecents(store, "u1", 3)

	list, err := r.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	for _, q := range []string{"alpha", "beta", "  ", "gamma", "beta", "delta"} {
		_, err = r.Add(ctx, q)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"delta", "beta", "gamma"}, r.List())

	reloaded := NewRecents(store, "u1", 3)
	list, err = reloaded.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"delta", "beta", "gamma"}, list)

	other := NewRecents(store, "u2", 3)
	list, err = other.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, reloaded.Clear(ctx))
	_, ok, err := store.Get(ctx, kv.RecentSearchesKey("u1"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecentsDedupeOnExactText(t *testing.T) {
	ctx := context.Background()
	r := NewRecents(kv.NewMemory(), "u1", 0)
	for _, q := range []string{"login", "Login", " login "} {
		_, err := r.Add(ctx, q)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"login", "Login"}, r.List())
}

func TestSessionDebouncesToLastQuery(t *testing.T) {
	ctx := context.Background()
	recents := NewRecents(kv.NewMemory(), "u1", 0)
	s := NewSession(ctx, sampleItems, SessionOptions{Debounce: 30 * time.Millisecond, Recents: recents})
	defer s.Close()

	s.SetQuery("lo")
	s.SetQuery("log")
	s.SetQuery("login")

	select {
	case res := <-s.Results():
		assert.Equal(t, "login", res.Query)
		assert.Equal(t, []string{"t1"}, itemIDs(res.Items))
	case <-time.After(time.Second):
		t.Fatal("no result")
	}
	assert.Equal(t, []string{"login"}, recents.List())
	assert.Equal(t, "login", s.Query())
}

func TestSessionFlushRunsPendingQuery(t *testing.T) {
	ctx := context.Background()
	recents := NewRecents(kv.NewMemory(), "u1", 0)
	s := NewSession(ctx, sampleItems, SessionOptions{Debounce: time.Hour, Recents: recents})
	defer s.Close()

	s.SetQuery("log")
	s.SetQuery("login")
	res, ok := s.Flush()
	require.True(t, ok)
	assert.Equal(t, "login", res.Query)
	assert.Equal(t, []string{"t1"}, itemIDs(res.Items))
	assert.Equal(t, []string{"login"}, recents.List())

	_, ok = s.Flush()
	assert.False(t, ok)
	select {
	case res := <-s.Results():
		t.Fatalf("unexpected delivery for %q", res.Query)
	default:
	}
}

func TestSessionFlushWaitsForRunningSearch(t *testing.T) {
	s := NewSession(context.Background(), sampleItems, SessionOptions{Debounce: time.Millisecond})
	defer s.Close()

	s.SetQuery("login")
	time.Sleep(50 * time.Millisecond)
	_, ok := s.Flush()
	assert.False(t, ok)
	select {
	case res := <-s.Results():
		assert.Equal(t, "login", res.Query)
	default:
		t.Fatal("debounced result not delivered")
	}
}

func TestSessionBlankQueryClearsImmediately(t *testing.T) {
	s := NewSession(context.Background(), sampleItems, SessionOptions{Debounce: time.Hour})
	defer s.Close()

	s.SetQuery("login")
	s.Clear()
	select {
	case res := <-s.Results():
		assert.Empty(t, res.Items)
		assert.Empty(t, res.Suggestions)
	case <-time.After(time.Second):
		t.Fatal("no result")
	}

	res := s.Search("bug")
	assert.Equal(t, []string{"t1"}, itemIDs(res.Items))
	assert.Equal(t, []string{"Fix login bug", "bug"}, res.Suggestions)
}
