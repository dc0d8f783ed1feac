package stagelinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal Stageline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Project represents the API project model.
type Project struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	CreatorID  string   `json:"creator_id"`
	Stage      string   `json:"stage"`
	Risk       string   `json:"risk"`
	DueDate    *string  `json:"due_date,omitempty"`
	ValueCents int64    `json:"value_cents"`
	Tags       []string `json:"tags,omitempty"`
	AssigneeID string   `json:"assignee_id,omitempty"`
}

// HistoryEntry is one stage-history record.
type HistoryEntry struct {
	ID        int64  `json:"id"`
	ProjectID string `json:"project_id"`
	FromStage string `json:"from_stage"`
	ToStage   string `json:"to_stage"`
	Actor     string `json:"actor"`
	Note      string `json:"note,omitempty"`
	CreatedAt string `json:"created_at"`
}

// BulkMoveResult reports per-item outcomes of a bulk move.
type BulkMoveResult struct {
	UpdatedCount int             `json:"updated_count"`
	Updated      []Project       `json:"updated"`
	Errors       []BulkMoveError `json:"errors,omitempty"`
}

// BulkMoveError is one failed item of a bulk move.
type BulkMoveError struct {
	ProjectID string `json:"project_id"`
	Message   string `json:"error"`
}

// Trigger represents an automation rule.
type Trigger struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	Enabled    bool             `json:"enabled"`
	Type       string           `json:"type"`
	Stage      string           `json:"stage,omitempty"`
	Days       int              `json:"days,omitempty"`
	ValueCents int64            `json:"value_cents,omitempty"`
	Actions    []map[string]any `json:"actions"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedHistory wraps history listings with a cursor.
type PaginatedHistory struct {
	Items      []HistoryEntry `json:"items"`
	NextCursor int64          `json:"next_cursor,omitempty"`
}

// CreateProject creates a project in the pipeline's initial stage.
func (c *Client) CreateProject(ctx context.Context, title, creatorID string, valueCents int64, tags []string) (Project, error) {
	body := map[string]any{
		"title":       title,
		"creator_id":  creatorID,
		"value_cents": valueCents,
		"tags":        tags,
	}
	var resp Project
	err := c.do(ctx, http.MethodPost, "v0/projects", body, &resp)
	return resp, err
}

// GetProject fetches a project with its derived risk.
func (c *Client) GetProject(ctx context.Context, id string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodGet, "v0/projects/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ListProjects returns projects matching the given query values, for example
// {"stage": {"in_progress"}, "risk": {"high"}}.
func (c *Client) ListProjects(ctx context.Context, query url.Values) ([]Project, error) {
	endpoint := "v0/projects"
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	var resp []Project
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Move transitions a project to a stage.
func (c *Client) Move(ctx context.Context, projectID, stage, note string) (Project, error) {
	body := map[string]any{"stage": stage, "note": note}
	var resp Project
	endpoint := fmt.Sprintf("v0/projects/%s/move", url.PathEscape(projectID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// SetDueDate sets a project's due date (RFC3339) or clears it when due is nil.
func (c *Client) SetDueDate(ctx context.Context, projectID string, due *string) (Project, error) {
	body := map[string]any{"due_date": due}
	var resp Project
	endpoint := fmt.Sprintf("v0/projects/%s/due-date", url.PathEscape(projectID))
	err := c.do(ctx, http.MethodPut, endpoint, body, &resp)
	return resp, err
}

// BulkMove transitions many projects to the same stage. Items succeed and
// fail independently; inspect the returned errors.
func (c *Client) BulkMove(ctx context.Context, projectIDs []string, stage, note string) (BulkMoveResult, error) {
	body := map[string]any{"project_ids": projectIDs, "stage": stage, "note": note}
	var resp BulkMoveResult
	err := c.do(ctx, http.MethodPost, "v0/projects/bulk/move", body, &resp)
	return resp, err
}

// History returns a project's stage history, newest first.
func (c *Client) History(ctx context.Context, projectID string, limit int, cursor int64) (PaginatedHistory, error) {
	endpoint := fmt.Sprintf("v0/projects/%s/history", url.PathEscape(projectID))
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor > 0 {
		q.Set("cursor", strconv.FormatInt(cursor, 10))
	}
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedHistory
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Analytics returns aggregated pipeline metrics for a trailing window of
// 7, 30 or 90 days. The result is left loosely typed on purpose.
func (c *Client) Analytics(ctx context.Context, windowDays int) (map[string]any, error) {
	endpoint := "v0/analytics"
	if windowDays > 0 {
		endpoint = fmt.Sprintf("%s?window=%d", endpoint, windowDays)
	}
	var resp map[string]any
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// ListTriggers returns all automation triggers.
func (c *Client) ListTriggers(ctx context.Context) ([]Trigger, error) {
	var resp []Trigger
	err := c.do(ctx, http.MethodGet, "v0/triggers", nil, &resp)
	return resp, err
}

// CreateTrigger creates an automation trigger. Requires an admin credential.
func (c *Client) CreateTrigger(ctx context.Context, t Trigger) (Trigger, error) {
	var resp Trigger
	err := c.do(ctx, http.MethodPost, "v0/triggers", t, &resp)
	return resp, err
}

// GetConfig fetches the active pipeline configuration.
func (c *Client) GetConfig(ctx context.Context) (map[string]any, error) {
	var resp map[string]any
	err := c.do(ctx, http.MethodGet, "v0/config", nil, &resp)
	return resp, err
}

// PatchConfig merge-patches the pipeline configuration. Requires an admin
// credential.
func (c *Client) PatchConfig(ctx context.Context, patch map[string]any) (map[string]any, error) {
	var resp map[string]any
	err := c.do(ctx, http.MethodPatch, "v0/config", patch, &resp)
	return resp, err
}

// Sweep runs time and value triggers over open projects and returns the
// emitted intents. Requires an admin credential.
func (c *Client) Sweep(ctx context.Context) (map[string]any, error) {
	var resp map[string]any
	err := c.do(ctx, http.MethodPost, "v0/sweep", nil, &resp)
	return resp, err
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
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
