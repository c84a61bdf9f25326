package flowinsdk

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"flowin/internal/domain"
	"flowin/internal/search"
)

// Model types shared with the server.
type (
	User                 = domain.User
	Project              = domain.Project
	Task                 = domain.Task
	TaskStatus           = domain.TaskStatus
	OrderUpdate          = domain.OrderUpdate
	ProjectStats         = domain.ProjectStats
	Notification         = domain.Notification
	SearchResult         = search.Result
	NotificationPriority = domain.NotificationPriority
)

// Client is a minimal Flowin HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
	// OnStreamError receives the error that ends a feed after its first
	// snapshot, such as revoked access or a dropped connection.
	OnStreamError func(endpoint string, err error)
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		// delivered as a stream event, after the response status was sent
		return fmt.Sprintf("api error: code=%s message=%s", e.Code, e.Message)
	}
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

// Session is returned by SignUp and Login.
type Session struct {
	User      User   `json:"user"`
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id"`
	EntityID   string `json:"entity_id"`
	EntityKind string `json:"entity_kind"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// NotificationList is the inbox plus its unread count.
type NotificationList struct {
	Items       []Notification `json:"items"`
	UnreadCount int            `json:"unread_count"`
}

// TaskInput carries fields for CreateTask.
type TaskInput struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Priority    string   `json:"priority,omitempty"`
	AssigneeID  string   `json:"assignee_id,omitempty"`
	DueDate     string   `json:"due_date,omitempty"`
	Labels      []string `json:"labels,omitempty"`
}

// TaskPatch carries the fields UpdateTask changes; nil fields are left alone.
type TaskPatch struct {
	Title       *string     `json:"title,omitempty"`
	Description *string     `json:"description,omitempty"`
	Status      *TaskStatus `json:"status,omitempty"`
	Priority    *string     `json:"priority,omitempty"`
	AssigneeID  *string     `json:"assignee_id,omitempty"`
	DueDate     *string     `json:"due_date,omitempty"`
	Labels      *[]string   `json:"labels,omitempty"`
}

// SignUp creates an account and keeps its token for later calls.
func (c *Client) SignUp(ctx context.Context, email, password, displayName string) (Session, error) {
	var resp Session
	err := c.do(ctx, http.MethodPost, "v0/auth/signup", map[string]any{
		"email":        email,
		"password":     password,
		"display_name": displayName,
	}, &resp)
	if err == nil {
		c.BearerToken = resp.Token
	}
	return resp, err
}

// Login signs in and keeps the token for later calls.
func (c *Client) Login(ctx context.Context, email, password string) (Session, error) {
	var resp Session
	err := c.do(ctx, http.MethodPost, "v0/auth/login", map[string]any{
		"email":    email,
		"password": password,
	}, &resp)
	if err == nil {
		c.BearerToken = resp.Token
	}
	return resp, err
}

// Me returns the current user.
func (c *Client) Me(ctx context.Context) (User, error) {
	var resp User
	err := c.do(ctx, http.MethodGet, "v0/me", nil, &resp)
	return resp, err
}

// CreateProject creates a project owned by the current user.
func (c *Client) CreateProject(ctx context.Context, name, description string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodPost, "v0/projects", map[string]any{
		"name":        name,
		"description": description,
	}, &resp)
	return resp, err
}

// Projects lists projects the current user belongs to.
func (c *Client) Projects(ctx context.Context) ([]Project, error) {
	var resp []Project
	err := c.do(ctx, http.MethodGet, "v0/projects", nil, &resp)
	return resp, err
}

// Project fetches one project.
func (c *Client) Project(ctx context.Context, projectID string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodGet, c.projectPath(projectID, ""), nil, &resp)
	return resp, err
}

// DeleteProject removes a project and its tasks.
func (c *Client) DeleteProject(ctx context.Context, projectID string) error {
	return c.do(ctx, http.MethodDelete, c.projectPath(projectID, ""), nil, nil)
}

// AddMemberByEmail adds a registered user to a project.
func (c *Client) AddMemberByEmail(ctx context.Context, projectID, email string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodPost, c.projectPath(projectID, "members"), map[string]any{"email": email}, &resp)
	return resp, err
}

// ProjectStats returns task counts per column.
func (c *Client) ProjectStats(ctx context.Context, projectID string) (ProjectStats, error) {
	var resp ProjectStats
	err := c.do(ctx, http.MethodGet, c.projectPath(projectID, "stats"), nil, &resp)
	return resp, err
}

// CreateTask adds a task to the To Do column.
func (c *Client) CreateTask(ctx context.Context, projectID string, in TaskInput) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, c.projectPath(projectID, "tasks"), in, &resp)
	return resp, err
}

// Tasks lists a project's tasks in feed order.
func (c *Client) Tasks(ctx context.Context, projectID string) ([]Task, error) {
	var resp []Task
	err := c.do(ctx, http.MethodGet, c.projectPath(projectID, "tasks"), nil, &resp)
	return resp, err
}

// UpdateTask applies a partial update.
func (c *Client) UpdateTask(ctx context.Context, taskID string, patch TaskPatch) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPatch, "v0/tasks/"+url.PathEscape(taskID), patch, &resp)
	return resp, err
}

// DeleteTask removes a task.
func (c *Client) DeleteTask(ctx context.Context, taskID string) error {
	return c.do(ctx, http.MethodDelete, "v0/tasks/"+url.PathEscape(taskID), nil, nil)
}

// SetTaskStatus moves a task to another column.
func (c *Client) SetTaskStatus(ctx context.Context, taskID string, status TaskStatus) error {
	_, err := c.UpdateTask(ctx, taskID, TaskPatch{Status: &status})
	return err
}

// ReorderTasks writes order and status for several tasks at once.
func (c *Client) ReorderTasks(ctx context.Context, projectID string, updates []OrderUpdate) error {
	return c.do(ctx, http.MethodPut, c.projectPath(projectID, "tasks/order"), map[string]any{"updates": updates}, nil)
}

// Search runs a substring search over the user's projects and tasks.
func (c *Client) Search(ctx context.Context, query string) (SearchResult, error) {
	var resp SearchResult
	err := c.do(ctx, http.MethodGet, "v0/search?q="+url.QueryEscape(query), nil, &resp)
	return resp, err
}

// RecentSearches returns recent queries, newest first.
func (c *Client) RecentSearches(ctx context.Context) ([]string, error) {
	var resp struct {
		Items []string `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "v0/search/recent", nil, &resp)
	return resp.Items, err
}

// ClearRecentSearches forgets the recent query list.
func (c *Client) ClearRecentSearches(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "v0/search/recent", nil, nil)
}

// Notifications returns the inbox, newest first.
func (c *Client) Notifications(ctx context.Context, limit int) (NotificationList, error) {
	endpoint := "v0/notifications"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp NotificationList
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// MarkNotificationRead marks one notification read.
func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "v0/notifications/"+url.PathEscape(id)+"/read", nil, nil)
}

// MarkAllNotificationsRead returns how many notifications changed.
func (c *Client) MarkAllNotificationsRead(ctx context.Context) (int64, error) {
	var resp struct {
		Updated int64 `json:"updated"`
	}
	err := c.do(ctx, http.MethodPost, "v0/notifications/read-all", nil, &resp)
	return resp.Updated, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, projectID string, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := c.projectPath(projectID, "events")
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// WatchProjectTasks streams task snapshots of a project until ctx is done
// or the server ends the stream. It returns once the first snapshot arrived,
// so a refused subscription comes back as the error. The channel is closed
// on exit.
func (c *Client) WatchProjectTasks(ctx context.Context, projectID string) (<-chan []Task, error) {
	return watchSnapshots(ctx, c, c.projectPath(projectID, "tasks/feed"), func(data []byte) ([]Task, error) {
		var snap struct {
			Tasks []Task `json:"tasks"`
		}
		err := json.Unmarshal(data, &snap)
		return snap.Tasks, err
	})
}

// WatchProjects streams the caller's project list the same way.
func (c *Client) WatchProjects(ctx context.Context) (<-chan []Project, error) {
	return watchSnapshots(ctx, c, "v0/projects/feed", func(data []byte) ([]Project, error) {
		var snap struct {
			Projects []Project `json:"projects"`
		}
		err := json.Unmarshal(data, &snap)
		return snap.Projects, err
	})
}

var errStreamClosed = errors.New("feed closed by server")

// watchSnapshots forwards decoded "snapshot" events. Errors before the first
// snapshot are returned; later ones go to OnStreamError unless ctx ended.
func watchSnapshots[T any](ctx context.Context, c *Client, endpoint string, decode func([]byte) (T, error)) (<-chan T, error) {
	body, err := c.stream(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	first := make(chan error, 1)
	out := make(chan T, 1)
	go func() {
		defer close(out)
		defer body.Close()
		started := false
		var decodeErr error
		err := readEvents(body, func(name string, data []byte) bool {
			if name != "snapshot" {
				return true
			}
			v, err := decode(data)
			if err != nil {
				decodeErr = fmt.Errorf("decode %s snapshot: %w", endpoint, err)
				return false
			}
			if !started {
				started = true
				first <- nil
			}
			select {
			case out <- v:
				return true
			case <-ctx.Done():
				return false
			}
		})
		if decodeErr != nil {
			err = decodeErr
		}
		if ctx.Err() != nil {
			err = ctx.Err()
		} else if err == nil {
			err = errStreamClosed
		}
		if !started {
			first <- err
			return
		}
		if ctx.Err() == nil && c.OnStreamError != nil {
			c.OnStreamError(endpoint, err)
		}
	}()
	select {
	case err := <-first:
		if err != nil {
			return nil, err
		}
		return out, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// stream opens a server-sent event stream. The request is bound to ctx only;
// the client timeout would cut long-lived streams.
func (c *Client) stream(ctx context.Context, endpoint string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base()+"/"+strings.TrimLeft(endpoint, "/"), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	c.authorize(req)
	hc := &http.Client{}
	if c.HTTPClient != nil {
		hc.Transport = c.HTTPClient.Transport
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, decodeAPIError(resp)
	}
	return resp.Body, nil
}

// readEvents calls fn for every complete event until fn returns false or the
// stream ends. An "error" event ends the stream with that error.
func readEvents(r io.Reader, fn func(name string, data []byte) bool) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	var (
		name string
		data bytes.Buffer
	)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if data.Len() == 0 {
				name = ""
				continue
			}
			if name == "" {
				name = "message"
			}
			if name == "error" {
				var body struct {
					Code    string `json:"code"`
					Message string `json:"message"`
				}
				_ = json.Unmarshal(data.Bytes(), &body)
				return &APIError{Code: body.Code, Message: body.Message, Body: data.String()}
			}
			if !fn(name, data.Bytes()) {
				return nil
			}
			name = ""
			data.Reset()
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	return scanner.Err()
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
}

func decodeAPIError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	var env struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(b, &env) == nil {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
	}
	return apiErr
}

func (c *Client) projectPath(projectID, p string) string {
	endpoint := "v0/projects/" + url.PathEscape(projectID)
	if p != "" {
		endpoint += "/" + strings.TrimLeft(p, "/")
	}
	return endpoint
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
