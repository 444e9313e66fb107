package tasksync

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/bkonkle/cowork/internal/api"
	"github.com/bkonkle/cowork/internal/channel"
	"github.com/bkonkle/cowork/internal/task"
)

// fakeGateway is an in-memory backend.
type fakeGateway struct {
	mu       sync.Mutex
	calls    map[string]int
	plan     *api.Plan
	exec     *api.ExecutionStatus
	status   *api.ExecutionStatus
	detail   *api.TaskDetail
	result   *api.ExecutionResult
	page     *api.TaskPage
	confirms []api.ConfirmationRequest

	confirmErr error
	deleteErr  error
	statusErr  error

	// statusGate, when set, blocks Status until it is closed.
	statusGate chan struct{}
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{calls: make(map[string]int)}
}

func (g *fakeGateway) record(name string) {
	g.mu.Lock()
	g.calls[name]++
	g.mu.Unlock()
}

func (g *fakeGateway) count(name string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[name]
}

func (g *fakeGateway) setStatus(s *api.ExecutionStatus) {
	g.mu.Lock()
	g.status = s
	g.mu.Unlock()
}

func (g *fakeGateway) setStatusErr(err error) {
	g.mu.Lock()
	g.statusErr = err
	g.mu.Unlock()
}

func (g *fakeGateway) setResult(r *api.ExecutionResult) {
	g.mu.Lock()
	g.result = r
	g.mu.Unlock()
}

func (g *fakeGateway) confirmed() []api.ConfirmationRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]api.ConfirmationRequest(nil), g.confirms...)
}

func (g *fakeGateway) CreatePlan(_ context.Context, d task.Draft) (*api.Plan, error) {
	g.record("create_plan")
	g.mu.Lock()
	defer g.mu.Unlock()
	p := *g.plan
	return &p, nil
}

func (g *fakeGateway) Execute(_ context.Context, id string) (*api.ExecutionStatus, error) {
	g.record("execute")
	g.mu.Lock()
	defer g.mu.Unlock()
	s := *g.exec
	return &s, nil
}

func (g *fakeGateway) Status(ctx context.Context, id string) (*api.ExecutionStatus, error) {
	g.record("status")
	g.mu.Lock()
	gate, st, err := g.statusGate, g.status, g.statusErr
	g.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if st == nil {
		return &api.ExecutionStatus{TaskID: id, Status: "pending"}, nil
	}
	s := *st
	return &s, nil
}

func (g *fakeGateway) GetTask(_ context.Context, id string) (*api.TaskDetail, error) {
	g.record("get_task")
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.detail == nil {
		return &api.TaskDetail{TaskID: id, Goal: "remote goal", Status: "pending"}, nil
	}
	d := *g.detail
	return &d, nil
}

func (g *fakeGateway) Result(_ context.Context, id string) (*api.ExecutionResult, error) {
	g.record("result")
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.result == nil {
		return nil, &api.Error{StatusCode: http.StatusBadRequest}
	}
	r := *g.result
	return &r, nil
}

func (g *fakeGateway) Cancel(_ context.Context, id string) error {
	g.record("cancel")
	return nil
}

func (g *fakeGateway) Confirm(_ context.Context, req api.ConfirmationRequest) error {
	g.record("confirm")
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.confirmErr != nil {
		return g.confirmErr
	}
	g.confirms = append(g.confirms, req)
	return nil
}

func (g *fakeGateway) DeleteTask(_ context.Context, id string) error {
	g.record("delete_task")
	return g.deleteErr
}

func (g *fakeGateway) ListTasks(_ context.Context, opts api.ListOptions) (*api.TaskPage, error) {
	g.record("list_tasks")
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.page == nil {
		return &api.TaskPage{}, nil
	}
	return g.page, nil
}

// pipeConn is an in-memory transport driven by the test.
type pipeConn struct {
	frames chan []byte
	eof    chan struct{}
	closed chan struct{}
	once   sync.Once
	eofMu  sync.Once

	mu      sync.Mutex
	written [][]byte
}

func newPipeConn() *pipeConn {
	return &pipeConn{
		frames: make(chan []byte, 16),
		eof:    make(chan struct{}),
		closed: make(chan struct{}),
	}
}

func (c *pipeConn) ReadMessage() (int, []byte, error) {
	select {
	case f := <-c.frames:
		return 1, f, nil
	case <-c.eof:
		return 0, nil, io.EOF
	case <-c.closed:
		return 0, nil, errors.New("closed")
	}
}

func (c *pipeConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, append([]byte(nil), data...))
	return nil
}

func (c *pipeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *pipeConn) push(frame string) { c.frames <- []byte(frame) }

func (c *pipeConn) drop() { c.eofMu.Do(func() { close(c.eof) }) }

func (c *pipeConn) writes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.written))
	for i, w := range c.written {
		out[i] = string(w)
	}
	return out
}

// pipeDialer hands out queued conns and fails once the queue is empty.
type pipeDialer struct {
	mu    sync.Mutex
	conns []*pipeConn
	calls int
}

func (d *pipeDialer) queue(c ...*pipeConn) {
	d.mu.Lock()
	d.conns = append(d.conns, c...)
	d.mu.Unlock()
}

func (d *pipeDialer) Dial(context.Context, string, http.Header) (channel.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if len(d.conns) == 0 {
		return nil, errors.New("connection refused")
	}
	c := d.conns[0]
	d.conns = d.conns[1:]
	return c, nil
}

func (d *pipeDialer) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// quickScheduler runs callbacks almost immediately.
type quickScheduler struct{}

func (quickScheduler) AfterFunc(_ time.Duration, f func()) channel.Timer {
	return time.AfterFunc(time.Millisecond, f)
}
