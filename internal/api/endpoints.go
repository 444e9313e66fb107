package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/bkonkle/cowork/internal/task"
)

func taskPath(id, suffix string) string {
	return "/api/tasks/" + url.PathEscape(id) + suffix
}

// CreatePlan creates a task and its plan from a validated draft.
func (c *Client) CreatePlan(ctx context.Context, draft task.Draft) (*Plan, error) {
	var out Plan
	err := c.do(ctx, request{name: "create_plan", method: http.MethodPost, path: "/api/tasks/plan", body: draft}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetPlan fetches the plan of a task.
func (c *Client) GetPlan(ctx context.Context, id string) (*Plan, error) {
	var out Plan
	if err := c.do(ctx, request{name: "get_plan", method: http.MethodGet, path: taskPath(id, "/plan")}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Execute starts execution of a planned task.
func (c *Client) Execute(ctx context.Context, id string) (*ExecutionStatus, error) {
	var out ExecutionStatus
	if err := c.do(ctx, request{name: "execute", method: http.MethodPost, path: taskPath(id, "/execute")}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Status polls the execution status of a task.
func (c *Client) Status(ctx context.Context, id string) (*ExecutionStatus, error) {
	var out ExecutionStatus
	if err := c.do(ctx, request{name: "status", method: http.MethodGet, path: taskPath(id, "/status")}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Result fetches the final result of a finished task.
func (c *Client) Result(ctx context.Context, id string) (*ExecutionResult, error) {
	var out ExecutionResult
	if err := c.do(ctx, request{name: "result", method: http.MethodGet, path: taskPath(id, "/result")}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Cancel stops a running task.
func (c *Client) Cancel(ctx context.Context, id string) error {
	return c.do(ctx, request{name: "cancel", method: http.MethodPost, path: taskPath(id, "/cancel")}, nil)
}

// Confirm answers a confirmation prompt.
func (c *Client) Confirm(ctx context.Context, req ConfirmationRequest) error {
	return c.do(ctx, request{name: "confirm", method: http.MethodPost, path: taskPath(req.TaskID, "/confirm"), body: req}, nil)
}

// ListTasks returns a page of task history.
func (c *Client) ListTasks(ctx context.Context, opts ListOptions) (*TaskPage, error) {
	q := url.Values{}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}
	if opts.Status != "" {
		q.Set("status", opts.Status)
	}

	var out TaskPage
	if err := c.do(ctx, request{name: "list_tasks", method: http.MethodGet, path: "/api/tasks", query: q}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetTask fetches the full record of a task.
func (c *Client) GetTask(ctx context.Context, id string) (*TaskDetail, error) {
	var out TaskDetail
	if err := c.do(ctx, request{name: "get_task", method: http.MethodGet, path: taskPath(id, "")}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteTask deletes a task on the backend.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, request{name: "delete_task", method: http.MethodDelete, path: taskPath(id, "")}, nil)
}

// Audit returns audit log entries.
func (c *Client) Audit(ctx context.Context, opts AuditOptions) (*AuditLog, error) {
	q := url.Values{}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}
	if opts.TaskID != "" {
		q.Set("task_id", opts.TaskID)
	}

	var out AuditLog
	if err := c.do(ctx, request{name: "audit", method: http.MethodGet, path: "/api/audit", query: q}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetPolicy reads the permission policy.
func (c *Client) GetPolicy(ctx context.Context) (*Policy, error) {
	var out Policy
	if err := c.do(ctx, request{name: "get_policy", method: http.MethodGet, path: "/api/policies"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdatePolicy replaces the permission policy.
func (c *Client) UpdatePolicy(ctx context.Context, p *Policy) error {
	return c.do(ctx, request{name: "update_policy", method: http.MethodPut, path: "/api/policies", body: p}, nil)
}

// Health probes backend liveness.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var out Health
	if err := c.do(ctx, request{name: "health", method: http.MethodGet, path: "/health"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
