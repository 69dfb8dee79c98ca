package taskqueuesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal taskqueue HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  10 * time.Second,
	}
}

type TaskSpec struct {
	Title               string `json:"title"`
	Description         string `json:"description"`
	ToolRecommendations string `json:"toolRecommendations,omitempty"`
	RuleRecommendations string `json:"ruleRecommendations,omitempty"`
}

type Task struct {
	ID                  string `json:"id"`
	ProjectID           string `json:"projectId"`
	Title               string `json:"title"`
	Description         string `json:"description"`
	Status              string `json:"status"`
	Approved            bool   `json:"approved"`
	CompletedDetails    string `json:"completedDetails"`
	ToolRecommendations string `json:"toolRecommendations"`
	RuleRecommendations string `json:"ruleRecommendations"`
}

type Summary struct {
	TotalTasks     int `json:"totalTasks"`
	CompletedTasks int `json:"completedTasks"`
	ApprovedTasks  int `json:"approvedTasks"`
}

type Project struct {
	ProjectID     string  `json:"projectId"`
	InitialPrompt string  `json:"initialPrompt"`
	ProjectPlan   string  `json:"projectPlan"`
	Completed     bool    `json:"completed"`
	AutoApprove   bool    `json:"autoApprove"`
	Summary       Summary `json:"summary"`
	Tasks         []Task  `json:"tasks"`
}

type CreateProjectRequest struct {
	InitialPrompt string     `json:"initialPrompt"`
	ProjectPlan   string     `json:"projectPlan,omitempty"`
	Tasks         []TaskSpec `json:"tasks"`
	AutoApprove   bool       `json:"autoApprove,omitempty"`
}

type CreateProjectResponse struct {
	Project Project `json:"project"`
	Message string  `json:"message"`
}

type NextTask struct {
	ProjectID    string `json:"projectId"`
	Task         *Task  `json:"task"`
	AllTasksDone bool   `json:"allTasksDone"`
	Message      string `json:"message"`
}

// TaskUpdate carries the fields to change; nil leaves a field alone.
type TaskUpdate struct {
	Title               *string `json:"title,omitempty"`
	Description         *string `json:"description,omitempty"`
	Status              *string `json:"status,omitempty"`
	CompletedDetails    *string `json:"completedDetails,omitempty"`
	ToolRecommendations *string `json:"toolRecommendations,omitempty"`
	RuleRecommendations *string `json:"ruleRecommendations,omitempty"`
}

type UpdateTaskResponse struct {
	Task             Task   `json:"task"`
	Changed          bool   `json:"changed"`
	ApprovalRequired bool   `json:"approvalRequired"`
	Message          string `json:"message"`
}

type ApproveTaskResponse struct {
	Task            Task   `json:"task"`
	AlreadyApproved bool   `json:"alreadyApproved"`
	Message         string `json:"message"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	ProjectID  string         `json:"project_id"`
	EntityID   string         `json:"entity_id"`
	EntityKind string         `json:"entity_kind"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Reason     string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error: status=%d code=%s reason=%s: %s", e.StatusCode, e.Code, e.Reason, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

func (c *Client) CreateProject(ctx context.Context, req CreateProjectRequest) (CreateProjectResponse, error) {
	var resp CreateProjectResponse
	err := c.do(ctx, http.MethodPost, "projects", req, &resp)
	return resp, err
}

func (c *Client) GetProject(ctx context.Context, projectID string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodGet, projectPath(projectID), nil, &resp)
	return resp, err
}

// ListProjects lists projects; state is open, pending_approval, completed or empty for all.
func (c *Client) ListProjects(ctx context.Context, state string) ([]Project, error) {
	var resp []Project
	err := c.do(ctx, http.MethodGet, withQuery("projects", url.Values{"state": {state}}), nil, &resp)
	return resp, err
}

func (c *Client) DeleteProject(ctx context.Context, projectID string) error {
	return c.do(ctx, http.MethodDelete, projectPath(projectID), nil, nil)
}

func (c *Client) FinalizeProject(ctx context.Context, projectID string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodPost, projectPath(projectID, "finalize"), nil, &resp)
	return resp, err
}

func (c *Client) NextTask(ctx context.Context, projectID string) (NextTask, error) {
	var resp NextTask
	err := c.do(ctx, http.MethodGet, projectPath(projectID, "next-task"), nil, &resp)
	return resp, err
}

func (c *Client) AddTasks(ctx context.Context, projectID string, tasks []TaskSpec) ([]Task, error) {
	var resp []Task
	err := c.do(ctx, http.MethodPost, projectPath(projectID, "tasks"), map[string]any{"tasks": tasks}, &resp)
	return resp, err
}

func (c *Client) UpdateTask(ctx context.Context, projectID, taskID string, upd TaskUpdate) (UpdateTaskResponse, error) {
	var resp UpdateTaskResponse
	err := c.do(ctx, http.MethodPatch, projectPath(projectID, "tasks", taskID), upd, &resp)
	return resp, err
}

func (c *Client) ApproveTask(ctx context.Context, projectID, taskID string) (ApproveTaskResponse, error) {
	var resp ApproveTaskResponse
	err := c.do(ctx, http.MethodPost, projectPath(projectID, "tasks", taskID, "approve"), nil, &resp)
	return resp, err
}

func (c *Client) DeleteTask(ctx context.Context, projectID, taskID string) error {
	return c.do(ctx, http.MethodDelete, projectPath(projectID, "tasks", taskID), nil, nil)
}

// GetTask finds a task by id in any project.
func (c *Client) GetTask(ctx context.Context, taskID string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodGet, "tasks/"+url.PathEscape(taskID), nil, &resp)
	return resp, err
}

// ListTasks lists tasks; an empty projectID lists across projects.
func (c *Client) ListTasks(ctx context.Context, projectID, state string) ([]Task, error) {
	var resp []Task
	err := c.do(ctx, http.MethodGet, withQuery("tasks", url.Values{"project_id": {projectID}, "state": {state}}), nil, &resp)
	return resp, err
}

// Events returns recent events, newest first.
func (c *Client) Events(ctx context.Context, projectID, eventType string, limit int) ([]Event, error) {
	q := url.Values{"project_id": {projectID}, "type": {eventType}}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, withQuery("events", q), nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return decodeError(resp.StatusCode, b)
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func decodeError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Body: string(body)}
	var env struct {
		Error struct {
			Code    string         `json:"code"`
			Message string         `json:"message"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &env) == nil {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
		if reason, ok := env.Error.Details["reason"].(string); ok {
			apiErr.Reason = reason
		}
	}
	return apiErr
}

func projectPath(projectID string, parts ...string) string {
	segs := []string{"projects", url.PathEscape(projectID)}
	for _, p := range parts {
		segs = append(segs, url.PathEscape(p))
	}
	return strings.Join(segs, "/")
}

func withQuery(endpoint string, q url.Values) string {
	for k, v := range q {
		if len(v) == 0 || v[0] == "" {
			q.Del(k)
		}
	}
	if len(q) == 0 {
		return endpoint
	}
	return endpoint + "?" + q.Encode()
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.Trim(c.BasePath, "/")
}
