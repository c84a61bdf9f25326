package flowinsdk

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"flowin/internal/board"
	"flowin/internal/config"
	"flowin/internal/db"
	"flowin/internal/domain"
	"flowin/internal/engine"
	"flowin/internal/migrate"
	"flowin/internal/search"
	"flowin/internal/server"
)

var (
	_ board.Persister = (*Client)(nil)
	_ search.Source   = (*Client)(nil)
)

func newAPI(t *testing.T) *httptest.Server {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(context.Background(), conn))
	cfg := config.Default()
	cfg.Auth.JWTSecret = "sdk-secret"
	e := engine.New(conn, cfg)
	e.Auth.Cost = bcrypt.MinCost
	handler, err := server.New(server.Config{Engine: e, BasePath: "/v0"})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestClientRoundTrip(t *testing.T) {
	srv := newAPI(t)
	ctx := context.Background()
	c := New(srv.URL)

	_, err := c.Projects(ctx)
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusUnauthorized))

	sess, err := c.SignUp(ctx, "sdk@example.com", "secret1", "SDK")
	require.NoError(t, err)
	assert.Equal(t, sess.Token, c.BearerToken)

	p, err := c.CreateProject(ctx, "Client Project", "")
	require.NoError(t, err)
	a, err := c.CreateTask(ctx, p.ID, TaskInput{Title: "Alpha", Labels: []string{"api"}})
	require.NoError(t, err)
	b, err := c.CreateTask(ctx, p.ID, TaskInput{Title: "Beta"})
	require.NoError(t, err)

	require.NoError(t, c.SetTaskStatus(ctx, a.ID, domain.StatusDone))
	stats, err := c.ProjectStats(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Done)
	assert.Equal(t, 50, stats.CompletionRate)

	require.NoError(t, c.ReorderTasks(ctx, p.ID, []OrderUpdate{{ID: b.ID, Order: 0, Status: domain.StatusInProgress}}))
	tasks, err := c.Tasks(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	res, err := c.Search(ctx, "alp")
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, a.ID, res.Items[0].ID)
	recents, err := c.RecentSearches(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alp"}, recents)

	page, err := c.EventsPage(ctx, p.ID, 2, "")
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)

	err = c.DeleteTask(ctx, "missing")
	assert.True(t, IsStatus(err, http.StatusNotFound))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "not_found", apiErr.Code)
}

func TestClientDrivesBoardReconciler(t *testing.T) {
	srv := newAPI(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	c := New(srv.URL)
	_, err := c.SignUp(ctx, "board@example.com", "secret1", "")
	require.NoError(t, err)
	p, err := c.CreateProject(ctx, "Board", "")
	require.NoError(t, err)
	task, err := c.CreateTask(ctx, p.ID, TaskInput{Title: "Drag me"})
	require.NoError(t, err)

	feed, err := c.WatchProjectTasks(ctx, p.ID)
	require.NoError(t, err)
	b := board.New(p.ID)
	go b.Run(ctx, feed)
	require.Eventually(t, func() bool { return b.Snapshots() > 0 }, 5*time.Second, 10*time.Millisecond)

	rec := board.NewReconciler(b, c, nil)
	require.NoError(t, rec.Start(task.ID))
	m, err := rec.Drop(ctx, board.ColumnTarget(domain.StatusInProgress))
	require.NoError(t, err)
	assert.Equal(t, board.MutationStatus, m.Kind)

	require.Eventually(t, func() bool {
		got, ok := b.Task(task.ID)
		return ok && got.Status == domain.StatusInProgress && b.Snapshots() > 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestWatchProjectTasksReturnsRefusal(t *testing.T) {
	srv := newAPI(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	owner := New(srv.URL)
	_, err := owner.SignUp(ctx, "owner@example.com", "secret1", "")
	require.NoError(t, err)
	p, err := owner.CreateProject(ctx, "Private", "")
	require.NoError(t, err)

	stranger := New(srv.URL)
	_, err = stranger.SignUp(ctx, "stranger@example.com", "secret1", "")
	require.NoError(t, err)
	feed, err := stranger.WatchProjectTasks(ctx, p.ID)
	assert.Nil(t, feed)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "forbidden", apiErr.Code)
}

func TestStreamErrorAfterFirstSnapshot(t *testing.T) {
	srv := newAPI(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	c := New(srv.URL)
	_, err := c.SignUp(ctx, "drop@example.com", "secret1", "")
	require.NoError(t, err)
	p, err := c.CreateProject(ctx, "Dropped", "")
	require.NoError(t, err)

	ended := make(chan error, 1)
	c.OnStreamError = func(endpoint string, err error) {
		assert.Contains(t, endpoint, p.ID)
		ended <- err
	}
	feed, err := c.WatchProjectTasks(ctx, p.ID)
	require.NoError(t, err)
	<-feed
	srv.CloseClientConnections()

	select {
	case err := <-ended:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("stream error not reported")
	}
	for range feed {
	}
}

func TestSupervisorFollowsProjectsOverHTTP(t *testing.T) {
	srv := newAPI(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	c := New(srv.URL)
	_, err := c.SignUp(ctx, "follow@example.com", "secret1", "")
	require.NoError(t, err)

	sup := search.NewSupervisor(c, nil, nil)
	defer sup.Close()
	require.NoError(t, sup.Sync(ctx))
	require.NoError(t, sup.Follow(ctx))
	assert.Empty(t, sup.Subscriptions())

	p, err := c.CreateProject(ctx, "Launch Plan", "")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{p.ID}, sup.Subscriptions())
	}, 5*time.Second, 10*time.Millisecond)
	_, err = c.CreateTask(ctx, p.ID, TaskInput{Title: "Book venue"})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return len(search.Filter(sup.Index.Items(), "venue", 0)) == 1
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, c.DeleteProject(ctx, p.ID))
	require.Eventually(t, func() bool {
		return len(sup.Subscriptions()) == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestReadEvents(t *testing.T) {
	stream := "event: snapshot\ndata: {\"n\":1}\n\n: keepalive\n\nevent: snapshot\ndata: {\"n\":2}\n\n"
	var got []string
	err := readEvents(strings.NewReader(stream), func(name string, data []byte) bool {
		got = append(got, name+" "+string(data))
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, []string{`snapshot {"n":1}`, `snapshot {"n":2}`}, got)

	err = readEvents(strings.NewReader("event: error\ndata: {\"code\":\"forbidden\",\"message\":\"no\"}\n\n"), func(string, []byte) bool {
		t.Fatal("error events are not delivered")
		return true
	})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "forbidden", apiErr.Code)
}
