package engineapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// defaultTimeout bounds engine calls whose context carries no deadline.
const defaultTimeout = 60 * time.Second

// Client issues authenticated requests against one engine instance. The
// *http.Client is the instance's pre-built client carrying the default
// Authorization and CSRF headers.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a client for the engine at baseURL.
func New(baseURL string, httpClient *http.Client) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// do performs one JSON request. Error bodies are parsed by {code, error} when
// present; the engine code travels verbatim inside the returned error.
func (c *Client) do(ctx context.Context, method, path, operation string, body, out any) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultTimeout)
		defer cancel()
	}

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return parseError{expected: "request body", message: err.Error()}
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return requestError{operation: operation, message: err.Error()}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return requestError{operation: operation, message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var apiErr struct {
			Code  string `json:"code"`
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(b))
		if err := json.Unmarshal(b, &apiErr); err == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		return requestError{operation: operation, status: resp.StatusCode, apiCode: apiErr.Code, message: msg}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return parseError{expected: operation + " response", message: err.Error()}
	}
	return nil
}

// Status fetches the repository status; also used as the readiness probe
// target.
func (c *Client) Status(ctx context.Context) (RepositoryStatus, error) {
	var out RepositoryStatus
	err := c.do(ctx, http.MethodGet, "/api/v1/repo/status", "repo status", nil, &out)
	return out, err
}

// Algorithms lists the supported repository algorithms.
func (c *Client) Algorithms(ctx context.Context) (Algorithms, error) {
	var out Algorithms
	err := c.do(ctx, http.MethodGet, "/api/v1/repo/algorithms", "algorithms", nil, &out)
	return out, err
}

// ConnectRepository connects the engine to an existing repository.
func (c *Client) ConnectRepository(ctx context.Context, req ConnectRequest) (RepositoryStatus, error) {
	var out RepositoryStatus
	err := c.do(ctx, http.MethodPost, "/api/v1/repo/connect", "repo connect", req, &out)
	return out, err
}

// CreateRepository initializes a new repository and connects to it.
func (c *Client) CreateRepository(ctx context.Context, req CreateRequest) (RepositoryStatus, error) {
	var out RepositoryStatus
	err := c.do(ctx, http.MethodPost, "/api/v1/repo/create", "repo create", req, &out)
	return out, err
}

// DisconnectRepository disconnects the engine from its repository.
func (c *Client) DisconnectRepository(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/v1/repo/disconnect", "repo disconnect", struct{}{}, nil)
}

// Sources lists the configured snapshot sources.
func (c *Client) Sources(ctx context.Context) (SourcesResponse, error) {
	var out SourcesResponse
	err := c.do(ctx, http.MethodGet, "/api/v1/sources", "sources", nil, &out)
	return out, err
}

// CreateSnapshot triggers an upload for one source.
func (c *Client) CreateSnapshot(ctx context.Context, source SourceInfo) error {
	return c.do(ctx, http.MethodPost, "/api/v1/sources/upload?"+sourceQuery(source), "snapshot upload", struct{}{}, nil)
}

// Snapshots lists the snapshot history of one source.
func (c *Client) Snapshots(ctx context.Context, source SourceInfo) (SnapshotsResponse, error) {
	var out SnapshotsResponse
	err := c.do(ctx, http.MethodGet, "/api/v1/snapshots?"+sourceQuery(source), "snapshots", nil, &out)
	return out, err
}

// Policies lists all defined policies.
func (c *Client) Policies(ctx context.Context) (PoliciesResponse, error) {
	var out PoliciesResponse
	err := c.do(ctx, http.MethodGet, "/api/v1/policies", "policies", nil, &out)
	return out, err
}

// Policy fetches the policy for one target.
func (c *Client) Policy(ctx context.Context, target SourceInfo) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.do(ctx, http.MethodGet, "/api/v1/policy?"+sourceQuery(target), "policy get", nil, &out)
	return out, err
}

// SetPolicy writes the policy for one target.
func (c *Client) SetPolicy(ctx context.Context, target SourceInfo, policy json.RawMessage) error {
	return c.do(ctx, http.MethodPut, "/api/v1/policy?"+sourceQuery(target), "policy set", policy, nil)
}

// DeletePolicy removes the policy for one target.
func (c *Client) DeletePolicy(ctx context.Context, target SourceInfo) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/policy?"+sourceQuery(target), "policy delete", nil, nil)
}

// Tasks lists the engine's tasks.
func (c *Client) Tasks(ctx context.Context) (TasksResponse, error) {
	var out TasksResponse
	err := c.do(ctx, http.MethodGet, "/api/v1/tasks", "tasks", nil, &out)
	return out, err
}

// Task fetches one task by id.
func (c *Client) Task(ctx context.Context, id string) (Task, error) {
	var out Task
	err := c.do(ctx, http.MethodGet, "/api/v1/tasks/"+url.PathEscape(id), "task get", nil, &out)
	return out, err
}

// TaskLogs fetches the log document of one task.
func (c *Client) TaskLogs(ctx context.Context, id string) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.do(ctx, http.MethodGet, "/api/v1/tasks/"+url.PathEscape(id)+"/logs", "task logs", nil, &out)
	return out, err
}

// CancelTask requests cancellation of one task.
func (c *Client) CancelTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/tasks/"+url.PathEscape(id)+"/cancel", "task cancel", struct{}{}, nil)
}

// RunMaintenance triggers repository maintenance.
func (c *Client) RunMaintenance(ctx context.Context, req MaintenanceRequest) error {
	return c.do(ctx, http.MethodPost, "/api/v1/repo/maintenance/run", "maintenance", req, nil)
}

// Restore starts a snapshot restore.
func (c *Client) Restore(ctx context.Context, req RestoreRequest) (Task, error) {
	var out Task
	err := c.do(ctx, http.MethodPost, "/api/v1/restore", "restore", req, &out)
	return out, err
}

// Mount mounts a snapshot root.
func (c *Client) Mount(ctx context.Context, req MountRequest) (MountInfo, error) {
	var out MountInfo
	err := c.do(ctx, http.MethodPost, "/api/v1/mounts", "mount", req, &out)
	return out, err
}

// Mounts lists the active mounts.
func (c *Client) Mounts(ctx context.Context) (MountsResponse, error) {
	var out MountsResponse
	err := c.do(ctx, http.MethodGet, "/api/v1/mounts", "mounts", nil, &out)
	return out, err
}

// Unmount removes one mount by root id.
func (c *Client) Unmount(ctx context.Context, root string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/mounts/"+url.PathEscape(root), "unmount", nil, nil)
}

func sourceQuery(s SourceInfo) string {
	q := url.Values{}
	q.Set("userName", s.UserName)
	q.Set("host", s.Host)
	q.Set("path", s.Path)
	return q.Encode()
}
