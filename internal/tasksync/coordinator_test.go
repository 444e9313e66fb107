package tasksync

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bkonkle/cowork/internal/api"
	"github.com/bkonkle/cowork/internal/channel"
	"github.com/bkonkle/cowork/internal/connection"
	"github.com/bkonkle/cowork/internal/store"
	"github.com/bkonkle/cowork/internal/task"
)

const waitFor = 2 * time.Second

type harness struct {
	gw     *fakeGateway
	dialer *pipeDialer
	store  *store.Store
	coord  *Coordinator
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	gw := newFakeGateway()
	gw.plan = &api.Plan{
		TaskID: "t-1",
		Goal:   "Summarize Q4 notes",
		Steps:  []api.Step{{Step: 1, Action: "read_file"}, {Step: 2, Action: "write_file"}},
	}
	gw.exec = &api.ExecutionStatus{TaskID: "t-1", Status: "running", TotalSteps: 2}

	dialer := &pipeDialer{}
	factory, err := connection.NewFactory(connection.Options{
		BaseURL: "http://backend.test",
		Channel: channel.Options{Dialer: dialer, Scheduler: quickScheduler{}, MaxAttempts: 2},
	})
	require.NoError(t, err)

	st := store.New()
	coord := New(Options{
		API:          gw,
		Connections:  connection.NewManager(factory, nil),
		Store:        st,
		PollInterval: 10 * time.Millisecond,
	})
	t.Cleanup(coord.Close)

	return &harness{gw: gw, dialer: dialer, store: st, coord: coord}
}

func (h *harness) status(id string) task.Status {
	t, ok := h.store.Get(id)
	if !ok {
		return ""
	}
	return t.Status
}

func TestEndToEnd_CreateExecuteComplete(t *testing.T) {
	h := newHarness(t)
	conn := newPipeConn()
	h.dialer.queue(conn)
	ctx := context.Background()

	created, err := h.coord.Create(ctx, task.Draft{Goal: "  Summarize Q4 notes  "})
	require.NoError(t, err)
	require.Equal(t, "t-1", created.ID)

	tasks := h.store.Tasks()
	require.Len(t, tasks, 1)
	require.Equal(t, task.StatusNotStarted, tasks[0].Status)
	require.Equal(t, "Summarize Q4 notes", tasks[0].Goal)
	require.Equal(t, "t-1", h.store.Current().ID)

	executed, err := h.coord.Execute(ctx, "t-1")
	require.NoError(t, err)
	require.Equal(t, task.StatusExecuting, executed.Status)
	require.NotNil(t, executed.StartedAt)
	require.Equal(t, "open", h.store.Connection("t-1"))

	conn.push(`{"type":"task_complete","timestamp":"2026-03-01T10:00:00Z","data":{"status":"completed","result":"Q4 summary"}}`)
	require.Eventually(t, func() bool { return h.status("t-1") == task.StatusCompleted }, waitFor, 5*time.Millisecond)

	got, _ := h.store.Get("t-1")
	assert.Equal(t, "Q4 summary", got.Result)
	assert.Len(t, h.store.Tasks(), 1)
	assert.Len(t, h.store.History(), 1)
	assert.Equal(t, task.StatusCompleted, h.store.History()[0].Status)
	assert.Equal(t, task.StatusCompleted, h.store.Current().Status)
}

func TestCreate_InvalidDraftNeverReachesBackend(t *testing.T) {
	h := newHarness(t)

	_, err := h.coord.Create(context.Background(), task.Draft{Goal: "   "})
	require.Error(t, err)

	var verrs task.ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Zero(t, h.gw.count("create_plan"))
	assert.Empty(t, h.store.Tasks())
}

func TestStepEventsTrackProgress(t *testing.T) {
	h := newHarness(t)
	conn := newPipeConn()
	h.dialer.queue(conn)
	ctx := context.Background()

	_, err := h.coord.Create(ctx, task.Draft{Goal: "Summarize Q4 notes"})
	require.NoError(t, err)
	require.NoError(t, h.coord.Watch(ctx, "t-1"))

	conn.push(`{"type":"step_started","timestamp":1767261600,"data":{"step":1,"total_steps":2,"action":"read_file"}}`)
	conn.push(`{"type":"step_complete","timestamp":1767261601,"data":{"step":1,"status":"success"}}`)

	require.Eventually(t, func() bool {
		got, _ := h.store.Get("t-1")
		return got.Progress != nil && got.Progress.CompletedSteps == 1
	}, waitFor, 5*time.Millisecond)

	got, _ := h.store.Get("t-1")
	assert.Equal(t, task.StatusExecuting, got.Status)
	assert.Equal(t, 2, got.Progress.TotalSteps)
	assert.Equal(t, 50.0, got.Progress.Percent)
	assert.Equal(t, "read_file", got.Metadata["last_action"])
}

func TestLateEventsDoNotReopenTerminalTask(t *testing.T) {
	h := newHarness(t)
	conn := newPipeConn()
	h.dialer.queue(conn)
	ctx := context.Background()

	_, err := h.coord.Create(ctx, task.Draft{Goal: "Summarize Q4 notes"})
	require.NoError(t, err)
	require.NoError(t, h.coord.Watch(ctx, "t-1"))

	conn.push(`{"type":"task_complete","timestamp":"2026-03-01T10:00:05Z","data":{"status":"completed"}}`)
	conn.push(`{"type":"step_started","timestamp":"2026-03-01T10:00:01Z","data":{"step":2}}`)
	conn.push(`{"type":"step_started","data":{"step":3}}`)
	conn.push(`{"type":"error","timestamp":"2026-03-01T10:00:09Z","data":{"error":"boom"}}`)

	// The error is newer and terminal: it replaces completed. Nothing else may.
	require.Eventually(t, func() bool { return h.status("t-1") == task.StatusFailed }, waitFor, 5*time.Millisecond)

	_, err = h.coord.Execute(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, task.StatusFailed, h.status("t-1"), "REST executing must not reopen a failed task")
}

func TestErrorEventFailsTask(t *testing.T) {
	h := newHarness(t)
	conn := newPipeConn()
	h.dialer.queue(conn)
	ctx := context.Background()

	_, err := h.coord.Create(ctx, task.Draft{Goal: "Summarize Q4 notes"})
	require.NoError(t, err)
	require.NoError(t, h.coord.Watch(ctx, "t-1"))

	conn.push(`{"type":"error","data":{"message":"sandbox crashed"}}`)
	require.Eventually(t, func() bool { return h.status("t-1") == task.StatusFailed }, waitFor, 5*time.Millisecond)

	got, _ := h.store.Get("t-1")
	assert.Equal(t, "sandbox crashed", got.Error)
	assert.NotNil(t, got.CompletedAt)
}

func TestConfirmationFlow(t *testing.T) {
	h := newHarness(t)
	conn := newPipeConn()
	h.dialer.queue(conn)
	ctx := context.Background()

	_, err := h.coord.Create(ctx, task.Draft{Goal: "Summarize Q4 notes"})
	require.NoError(t, err)
	require.NoError(t, h.coord.Watch(ctx, "t-1"))

	conn.push(`{"type":"confirmation_needed","data":{"id":"p-1","step_num":2,"action":"file_write","message":"Write summary.md?","dangerous":true}}`)
	require.Eventually(t, func() bool { return len(h.store.Prompts("t-1")) == 1 }, waitFor, 5*time.Millisecond)

	p := h.store.Prompts("t-1")[0]
	assert.Equal(t, "p-1", p.ID)
	assert.True(t, p.Dangerous)
	assert.Equal(t, []string{"Yes", "No"}, p.Options)

	require.NoError(t, h.coord.Confirm(ctx, "p-1", true))
	assert.Empty(t, h.store.Prompts("t-1"))
	confirms := h.gw.confirmed()
	require.Len(t, confirms, 1)
	assert.Equal(t, api.ConfirmationRequest{TaskID: "t-1", Action: "file_write", Confirmed: true}, confirms[0])

	err = h.coord.Confirm(ctx, "p-1", true)
	assert.True(t, errors.Is(err, ErrPromptNotFound))
}

func TestConfirmFallsBackToChannel(t *testing.T) {
	h := newHarness(t)
	conn := newPipeConn()
	h.dialer.queue(conn)
	h.gw.confirmErr = &api.Error{StatusCode: 502}
	ctx := context.Background()

	_, err := h.coord.Create(ctx, task.Draft{Goal: "Summarize Q4 notes"})
	require.NoError(t, err)
	require.NoError(t, h.coord.Watch(ctx, "t-1"))

	conn.push(`{"type":"confirmation_needed","data":{"action":"shell","message":"Run it?"}}`)
	require.Eventually(t, func() bool { return len(h.store.Prompts("t-1")) == 1 }, waitFor, 5*time.Millisecond)

	id := h.store.Prompts("t-1")[0].ID
	require.NotEmpty(t, id, "prompts without an id get a generated one")
	require.NoError(t, h.coord.Confirm(ctx, id, false))
	assert.Contains(t, conn.writes(), `{"task_id":"t-1","action":"shell","confirmed":false}`)
}

func TestWatch_RetriesOnceThenPolls(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.coord.Create(ctx, task.Draft{Goal: "Summarize Q4 notes"})
	require.NoError(t, err)

	err = h.coord.Watch(ctx, "t-1")
	require.Error(t, err)
	assert.Equal(t, 2, h.dialer.callCount())
	assert.True(t, h.coord.Polling("t-1"))

	h.gw.setStatus(&api.ExecutionStatus{TaskID: "t-1", Status: "running", CurrentStep: 1, TotalSteps: 2})
	require.Eventually(t, func() bool { return h.status("t-1") == task.StatusExecuting }, waitFor, 5*time.Millisecond)

	h.gw.setResult(&api.ExecutionResult{TaskID: "t-1", Status: "success", Summary: "polled result"})
	h.gw.setStatus(&api.ExecutionStatus{TaskID: "t-1", Status: "success"})
	require.Eventually(t, func() bool {
		got, _ := h.store.Get("t-1")
		return got.Status == task.StatusCompleted && got.Result == "polled result"
	}, waitFor, 5*time.Millisecond)
	require.Eventually(t, func() bool { return !h.coord.Polling("t-1") }, waitFor, 5*time.Millisecond)
}

func TestExhaustedChannelFallsBackToPolling(t *testing.T) {
	h := newHarness(t)
	conn := newPipeConn()
	h.dialer.queue(conn)
	ctx := context.Background()

	_, err := h.coord.Create(ctx, task.Draft{Goal: "Summarize Q4 notes"})
	require.NoError(t, err)
	require.NoError(t, h.coord.Watch(ctx, "t-1"))
	require.False(t, h.coord.Polling("t-1"))

	conn.drop()
	require.Eventually(t, func() bool {
		return h.store.Connection("t-1") == channel.StateClosedExhausted.String()
	}, waitFor, 5*time.Millisecond)
	require.Eventually(t, func() bool { return h.gw.count("status") > 0 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, 3, h.dialer.callCount(), "initial dial plus two reconnects")
}

func TestWatch_UnknownTaskIsFetched(t *testing.T) {
	h := newHarness(t)
	h.dialer.queue(newPipeConn())
	h.gw.detail = &api.TaskDetail{TaskID: "remote", Goal: "from elsewhere", Status: "running"}
	h.gw.setStatus(&api.ExecutionStatus{TaskID: "remote", Status: "running"})

	require.NoError(t, h.coord.Watch(context.Background(), "remote"))

	got, ok := h.store.Get("remote")
	require.True(t, ok)
	assert.Equal(t, "from elsewhere", got.Goal)
	assert.Equal(t, task.StatusExecuting, got.Status)
}

func TestRefresh_CollapsesConcurrentCalls(t *testing.T) {
	h := newHarness(t)
	gate := make(chan struct{})
	h.gw.statusGate = gate

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = h.coord.Refresh(context.Background(), "t-9")
		}()
		if i == 0 {
			require.Eventually(t, func() bool { return h.gw.count("status") == 1 }, waitFor, time.Millisecond)
		}
	}
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.Equal(t, 1, h.gw.count("status"))
	assert.Equal(t, 1, h.gw.count("get_task"))
	_, ok := h.store.Get("t-9")
	assert.True(t, ok)
}

func TestExecute_UnknownTaskWhenFetchFails(t *testing.T) {
	h := newHarness(t)
	conn := newPipeConn()
	h.dialer.queue(conn)
	h.gw.setStatusErr(&api.Error{StatusCode: http.StatusServiceUnavailable})
	ctx := context.Background()

	got, err := h.coord.Execute(ctx, "t-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "t-1", got.ID)
	assert.Equal(t, task.StatusExecuting, got.Status)
	assert.Equal(t, 1, h.gw.count("execute"))
	assert.True(t, h.coord.Polling("t-1"), "task is polled until the backend answers")

	conn.push(`{"type":"step_started","timestamp":1767261600,"data":{"step":1,"total_steps":2,"action":"read_file"}}`)
	require.Eventually(t, func() bool {
		got, _ := h.store.Get("t-1")
		return got.Progress != nil && got.Progress.CurrentStep == 1
	}, waitFor, 5*time.Millisecond)

	h.gw.setStatus(&api.ExecutionStatus{TaskID: "t-1", Status: "running", CurrentStep: 1, TotalSteps: 2})
	h.gw.setStatusErr(nil)
	require.Eventually(t, func() bool { return !h.coord.Polling("t-1") }, waitFor, 5*time.Millisecond)
}

func TestWatch_MissingTaskFails(t *testing.T) {
	h := newHarness(t)
	h.gw.setStatusErr(&api.Error{StatusCode: http.StatusNotFound})

	err := h.coord.Watch(context.Background(), "t-404")
	require.Error(t, err)
	assert.True(t, api.IsNotFound(err))
	assert.False(t, h.coord.Polling("t-404"))
	assert.Equal(t, 0, h.dialer.callCount())
}

func TestRefresh_CallerCancelDoesNotFailSharedCall(t *testing.T) {
	h := newHarness(t)
	gate := make(chan struct{})
	h.gw.statusGate = gate

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := h.coord.Refresh(first, "t-9")
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return h.gw.count("status") == 1 }, waitFor, time.Millisecond)

	type outcome struct {
		t   *task.Task
		err error
	}
	second := make(chan outcome, 1)
	go func() {
		got, err := h.coord.Refresh(context.Background(), "t-9")
		second <- outcome{got, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(waitFor):
		t.Fatal("cancelled caller did not return")
	}

	close(gate)
	select {
	case res := <-second:
		require.NoError(t, res.err)
		require.NotNil(t, res.t)
		assert.Equal(t, "t-9", res.t.ID)
	case <-time.After(waitFor):
		t.Fatal("second caller did not return")
	}
	assert.Equal(t, 1, h.gw.count("status"))
}

func TestClose_StopsLatePolling(t *testing.T) {
	h := newHarness(t)
	h.coord.Close()

	h.coord.startPolling("t-1")
	assert.False(t, h.coord.Polling("t-1"))
}

func TestRefresh_Error(t *testing.T) {
	h := newHarness(t)
	h.gw.statusErr = &api.Error{StatusCode: 404}

	_, err := h.coord.Refresh(context.Background(), "t-1")
	require.Error(t, err)
	assert.True(t, api.IsNotFound(err))
}

func TestCancel(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.coord.Create(ctx, task.Draft{Goal: "Summarize Q4 notes"})
	require.NoError(t, err)
	require.NoError(t, h.coord.Cancel(ctx, "t-1"))

	assert.Equal(t, task.StatusCancelled, h.status("t-1"))
	assert.Equal(t, 1, h.gw.count("cancel"))
}

func TestDelete(t *testing.T) {
	h := newHarness(t)
	conn := newPipeConn()
	h.dialer.queue(conn)
	ctx := context.Background()

	_, err := h.coord.Create(ctx, task.Draft{Goal: "Summarize Q4 notes"})
	require.NoError(t, err)
	require.NoError(t, h.coord.Watch(ctx, "t-1"))
	conn.push(`{"type":"confirmation_needed","data":{"id":"p-1","action":"x","message":"y"}}`)
	require.Eventually(t, func() bool { return len(h.store.Prompts("")) == 1 }, waitFor, 5*time.Millisecond)

	require.NoError(t, h.coord.Delete(ctx, "t-1"))

	_, ok := h.store.Get("t-1")
	assert.False(t, ok)
	assert.Nil(t, h.store.Current())
	assert.Len(t, h.store.History(), 1, "deleted tasks stay in history")
	assert.Empty(t, h.store.Prompts(""))
	assert.Empty(t, h.store.Connection("t-1"))

	// Events after delete are ignored.
	h.store.UpdateTask(&task.Task{ID: "t-1", Status: task.StatusExecuting})
	_, ok = h.store.Get("t-1")
	assert.False(t, ok)
}

func TestDelete_BackendError(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.coord.Create(ctx, task.Draft{Goal: "Summarize Q4 notes"})
	require.NoError(t, err)

	h.gw.deleteErr = &api.Error{StatusCode: 500}
	require.Error(t, h.coord.Delete(ctx, "t-1"))
	_, ok := h.store.Get("t-1")
	assert.True(t, ok)

	h.gw.deleteErr = &api.Error{StatusCode: 404}
	require.NoError(t, h.coord.Delete(ctx, "t-1"))
	_, ok = h.store.Get("t-1")
	assert.False(t, ok)
}

func TestLoadHistory(t *testing.T) {
	h := newHarness(t)
	h.gw.page = &api.TaskPage{Tasks: []api.TaskSummary{
		{TaskID: "old-1", Goal: "a", Status: "completed", CreatedAt: "2026-01-01T00:00:00"},
		{TaskID: "old-2", Goal: "b", Status: "failed"},
	}}

	n, err := h.coord.LoadHistory(context.Background(), api.ListOptions{Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	hist := h.store.History()
	require.Len(t, hist, 2)
	assert.Equal(t, task.StatusFailed, hist[1].Status)
	assert.Empty(t, h.store.Tasks(), "remote history does not populate the active set")
}
