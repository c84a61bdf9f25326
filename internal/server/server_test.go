package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"flowin/internal/config"
	"flowin/internal/db"
	"flowin/internal/domain"
	"flowin/internal/engine"
	"flowin/internal/engine/auth"
	"flowin/internal/migrate"
	"flowin/internal/search"
)

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestEngine(t *testing.T, cfg *config.Config) engine.Engine {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err, "open db")
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(context.Background(), conn), "migrate")
	if cfg == nil {
		cfg = config.Default()
	}
	cfg.Auth.JWTSecret = "test-secret"
	e := engine.New(conn, cfg)
	e.Auth.Cost = bcrypt.MinCost
	e.Log = zap.NewNop()
	return e
}

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	e := newTestEngine(t, nil)
	handler, err := New(Config{Engine: e, BasePath: "/v0", Logger: e.Log})
	require.NoError(t, err, "build handler")
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err, "listen")
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Close()
			ln.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err, "marshal body")
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err, "new request")
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	require.NoError(t, err, "do request")
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err, "read body")
	return res, data
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func signUp(t *testing.T, srv *testServer, email string) auth.Session {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/auth/signup", map[string]any{
		"email":    email,
		"password": "secret1",
	}, nil)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var sess auth.Session
	require.NoError(t, json.Unmarshal(data, &sess))
	require.NotEmpty(t, sess.Token)
	return sess
}

func createProject(t *testing.T, srv *testServer, token, name string) domain.Project {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects", map[string]any{
		"name":        name,
		"description": "marketing site",
	}, bearer(token))
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var p domain.Project
	require.NoError(t, json.Unmarshal(data, &p))
	return p
}

func createTask(t *testing.T, srv *testServer, token, projectID string, body map[string]any) domain.Task {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects/"+projectID+"/tasks", body, bearer(token))
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var task domain.Task
	require.NoError(t, json.Unmarshal(data, &task))
	return task
}

func decodeError(t *testing.T, data []byte) apiErrorBody {
	t.Helper()
	var env struct {
		Error apiErrorBody `json:"error"`
	}
	require.NoError(t, json.Unmarshal(data, &env), string(data))
	return env.Error
}

func TestHealthIsPublic(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode, string(data))
}

func TestAuthRequired(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/projects", nil, nil)
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "unauthorized", decodeError(t, data).Code)

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/projects", nil, bearer("garbage"))
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "invalid_credentials", decodeError(t, data).Code)

	// dev header is off by default
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/projects", nil, map[string]string{"X-User-Id": "u1"})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestSignUpLoginAndAPIKey(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	sess := signUp(t, srv, "Ada@Example.com")
	assert.Equal(t, "ada@example.com", sess.User.Email)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/auth/signup", map[string]any{
		"email":    "ada@example.com",
		"password": "secret1",
	}, nil)
	require.Equal(t, http.StatusConflict, res.StatusCode, string(data))
	assert.Equal(t, "email_taken", decodeError(t, data).Code)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/auth/login", map[string]any{
		"email":    "ada@example.com",
		"password": "wrong-password",
	}, nil)
	require.Equal(t, http.StatusUnauthorized, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/auth/login", map[string]any{
		"email":    "ada@example.com",
		"password": "secret1",
	}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/me/api-keys", map[string]any{"name": "cli"}, bearer(sess.Token))
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var key APIKeyResponse
	require.NoError(t, json.Unmarshal(data, &key))
	require.NotEmpty(t, key.Key)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"X-Api-Key": key.Key})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var me domain.User
	require.NoError(t, json.Unmarshal(data, &me))
	assert.Equal(t, sess.User.ID, me.ID)

	res, _ = doJSON(t, client, http.MethodPost, srv.URL+"/v0/auth/logout", nil, bearer(sess.Token))
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
}

func TestProjectTaskLifecycle(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	owner := signUp(t, srv, "owner@example.com")
	other := signUp(t, srv, "other@example.com")

	p := createProject(t, srv, owner.Token, "Website Redesign")
	assert.Equal(t, []string{owner.User.ID}, p.Members)

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects/"+p.ID, nil, bearer(other.Token))
	require.Equal(t, http.StatusForbidden, res.StatusCode, string(data))
	assert.Equal(t, "forbidden", decodeError(t, data).Code)

	a := createTask(t, srv, owner.Token, p.ID, map[string]any{"title": "Design", "labels": []string{"ui", "ui ", ""}})
	b := createTask(t, srv, owner.Token, p.ID, map[string]any{"title": "Build", "priority": "high"})
	assert.Equal(t, domain.StatusTodo, a.Status)
	assert.Equal(t, []string{"ui"}, a.Labels)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/"+p.ID+"/tasks", map[string]any{"title": "  "}, bearer(owner.Token))
	require.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v0/projects/"+p.ID+"/tasks/order", map[string]any{
		"updates": []map[string]any{
			{"id": b.ID, "order": 0, "status": "in-progress"},
			{"id": a.ID, "order": 1, "status": "in-progress"},
		},
	}, bearer(owner.Token))
	require.Equal(t, http.StatusNoContent, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects/"+p.ID+"/tasks?status=in-progress", nil, bearer(owner.Token))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var tasks []domain.Task
	require.NoError(t, json.Unmarshal(data, &tasks))
	require.Len(t, tasks, 2)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/"+p.ID+"/members", map[string]any{"email": "other@example.com"}, bearer(owner.Token))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/tasks/"+a.ID, map[string]any{"status": "done"}, bearer(other.Token))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects/"+p.ID+"/stats", nil, bearer(owner.Token))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var stats domain.ProjectStats
	require.NoError(t, json.Unmarshal(data, &stats))
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Done)
	assert.Equal(t, 50, stats.CompletionRate)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects/"+p.ID+"/events?limit=2", nil, bearer(owner.Token))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var page paginatedEvents
	require.NoError(t, json.Unmarshal(data, &page))
	assert.Len(t, page.Items, 2)
	assert.NotEmpty(t, page.NextCursor)

	res, _ = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/projects/"+p.ID, nil, bearer(other.Token))
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
	res, _ = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/projects/"+p.ID, nil, bearer(owner.Token))
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks/"+a.ID, nil, bearer(owner.Token))
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestSearchAndRecents(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	owner := signUp(t, srv, "owner@example.com")
	p := createProject(t, srv, owner.Token, "Website Redesign")
	createTask(t, srv, owner.Token, p.ID, map[string]any{"title": "Fix login bug", "labels": []string{"bug"}})

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/search?q=LOGIN", nil, bearer(owner.Token))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var result search.Result
	require.NoError(t, json.Unmarshal(data, &result))
	require.Len(t, result.Items, 1)
	assert.Equal(t, search.KindTask, result.Items[0].Kind)
	assert.Equal(t, "Website Redesign", result.Items[0].ProjectName)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/search?q=redesign", nil, bearer(owner.Token))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/search/recent", nil, bearer(owner.Token))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var recents RecentSearchesResponse
	require.NoError(t, json.Unmarshal(data, &recents))
	assert.Equal(t, []string{"redesign", "LOGIN"}, recents.Items)

	res, _ = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/search/recent", nil, bearer(owner.Token))
	require.Equal(t, http.StatusNoContent, res.StatusCode)
	_, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/search/recent", nil, bearer(owner.Token))
	require.NoError(t, json.Unmarshal(data, &recents))
	assert.Empty(t, recents.Items)
}

func TestDashboardSeedsWelcomeOnce(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	sess := signUp(t, srv, "new@example.com")

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/dashboard", nil, bearer(sess.Token))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var dash DashboardResponse
	require.NoError(t, json.Unmarshal(data, &dash))
	assert.True(t, dash.WelcomeSeeded)
	require.Len(t, dash.Projects, 1)
	assert.Equal(t, 4, dash.TotalTasks)
	assert.Equal(t, 3, dash.UnreadCount)

	_, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/dashboard", nil, bearer(sess.Token))
	require.NoError(t, json.Unmarshal(data, &dash))
	assert.False(t, dash.WelcomeSeeded)
	assert.Len(t, dash.Projects, 1)
	assert.Equal(t, 3, dash.UnreadCount)
}

func TestNotificationsEndpoints(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	sess := signUp(t, srv, "n@example.com")
	h := bearer(sess.Token)

	var created []domain.Notification
	for _, title := range []string{"one", "two", "three"} {
		res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/notifications", map[string]any{
			"type":  "team_update",
			"title": title,
		}, h)
		require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
		var n domain.Notification
		require.NoError(t, json.Unmarshal(data, &n))
		assert.Equal(t, sess.User.ID, n.UserID)
		assert.False(t, n.Read)
		created = append(created, n)
	}

	res, _ := doJSON(t, client, http.MethodPost, srv.URL+"/v0/notifications/"+created[0].ID+"/read", nil, h)
	require.Equal(t, http.StatusNoContent, res.StatusCode)
	res, _ = doJSON(t, client, http.MethodPost, srv.URL+"/v0/notifications/missing/read", nil, h)
	require.Equal(t, http.StatusNotFound, res.StatusCode)
	res, _ = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/notifications/"+created[1].ID, nil, h)
	require.Equal(t, http.StatusNoContent, res.StatusCode)

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/notifications", nil, h)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var sum engine.NotificationSummary
	require.NoError(t, json.Unmarshal(data, &sum))
	assert.Len(t, sum.Items, 3)
	assert.Equal(t, 1, sum.UnreadCount)
	assert.Equal(t, "three", sum.Items[0].Title)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/notifications/read-all", nil, h)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var count CountResponse
	require.NoError(t, json.Unmarshal(data, &count))
	assert.Equal(t, int64(1), count.Updated)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/notifications/clear", nil, h)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	require.NoError(t, json.Unmarshal(data, &count))
	assert.Equal(t, int64(0), count.Updated)
}

// readSSEData returns the payload of the next data line on the stream.
func readSSEData(t *testing.T, r *bufio.Reader) []byte {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err, "read stream")
		if strings.HasPrefix(line, "data:") {
			return []byte(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
}

func TestTaskFeedStreamsSnapshots(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	owner := signUp(t, srv, "owner@example.com")
	p := createProject(t, srv, owner.Token, "Live")
	createTask(t, srv, owner.Token, p.ID, map[string]any{"title": "First"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v0/projects/"+p.ID+"/tasks/feed", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+owner.Token)
	res, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, res.Header.Get("Content-Type"), "text/event-stream")

	stream := bufio.NewReader(res.Body)
	var snap taskSnapshot
	require.NoError(t, json.Unmarshal(readSSEData(t, stream), &snap))
	assert.Equal(t, p.ID, snap.ProjectID)
	require.Len(t, snap.Tasks, 1)

	createTask(t, srv, owner.Token, p.ID, map[string]any{"title": "Second"})
	require.NoError(t, json.Unmarshal(readSSEData(t, stream), &snap))
	assert.Len(t, snap.Tasks, 2)
}

func TestTaskFeedRejectsNonMember(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	owner := signUp(t, srv, "owner@example.com")
	other := signUp(t, srv, "other@example.com")
	p := createProject(t, srv, owner.Token, "Private")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v0/projects/"+p.ID+"/tasks/feed", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+other.Token)
	res, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	var body apiErrorBody
	require.NoError(t, json.Unmarshal(readSSEData(t, bufio.NewReader(res.Body)), &body))
	assert.Equal(t, "forbidden", body.Code)
}

func TestWebhookDelivery(t *testing.T) {
	var (
		mu       sync.Mutex
		received []webhookEvent
		headers  []http.Header
	)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var evt webhookEvent
		_ = json.NewDecoder(r.Body).Decode(&evt)
		mu.Lock()
		received = append(received, evt)
		headers = append(headers, r.Header.Clone())
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	cfg := config.Default()
	cfg.Webhooks = []config.WebhookConfig{{URL: hook.URL, Events: []string{"task.*"}, Secret: "s3cret"}}
	e := newTestEngine(t, cfg)
	ctx := context.Background()

	d := newWebhookDispatcher(e, e.Log, time.Hour)
	d.dispatchAll(ctx) // pins the cursor before any event exists

	p, err := e.CreateProject(ctx, "Hooks", "", "u1")
	require.NoError(t, err)
	task, err := e.CreateTask(ctx, engine.TaskCreateOptions{ProjectID: p.ID, Title: "Ping", ActorID: "u1"})
	require.NoError(t, err)

	d.dispatchAll(ctx)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, "task.created", received[0].Type)
	assert.Equal(t, task.ID, received[0].EntityID)
	assert.Equal(t, "task.created", headers[0].Get("X-Flowin-Event"))
	assert.Equal(t, p.ID, headers[0].Get("X-Flowin-Project"))
	assert.Equal(t, "s3cret", headers[0].Get("X-Flowin-Secret"))
}

func TestEventFilter(t *testing.T) {
	all := newEventFilter(nil)
	assert.True(t, all.match("project.created"))

	f := newEventFilter([]string{"project.deleted", "task.*", " "})
	assert.True(t, f.match("project.deleted"))
	assert.True(t, f.match("task.updated"))
	assert.False(t, f.match("project.created"))
}
