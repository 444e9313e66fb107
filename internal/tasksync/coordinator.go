// Package tasksync keeps the task store in step with the backend.
//
// The Coordinator is the only writer that talks to both the REST gateway and
// the event channels. REST responses and channel events race freely; both are
// funnelled into store.UpdateTask, whose reconciliation decides what sticks.
// When a task's channel cannot be opened, or gives up reconnecting, the
// coordinator polls the REST status endpoint instead.
package tasksync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/bkonkle/cowork/internal/api"
	"github.com/bkonkle/cowork/internal/channel"
	"github.com/bkonkle/cowork/internal/connection"
	"github.com/bkonkle/cowork/internal/event"
	"github.com/bkonkle/cowork/internal/logging"
	"github.com/bkonkle/cowork/internal/store"
	"github.com/bkonkle/cowork/internal/task"
)

// DefaultPollInterval is used when Options.PollInterval is zero.
const DefaultPollInterval = 2 * time.Second

// ErrPromptNotFound is returned by Confirm for unknown or already answered prompts.
var ErrPromptNotFound = errors.New("confirmation prompt not found")

// Gateway is the subset of the REST client the coordinator uses.
type Gateway interface {
	CreatePlan(ctx context.Context, draft task.Draft) (*api.Plan, error)
	Execute(ctx context.Context, id string) (*api.ExecutionStatus, error)
	Status(ctx context.Context, id string) (*api.ExecutionStatus, error)
	GetTask(ctx context.Context, id string) (*api.TaskDetail, error)
	Result(ctx context.Context, id string) (*api.ExecutionResult, error)
	Cancel(ctx context.Context, id string) error
	Confirm(ctx context.Context, req api.ConfirmationRequest) error
	DeleteTask(ctx context.Context, id string) error
	ListTasks(ctx context.Context, opts api.ListOptions) (*api.TaskPage, error)
}

// Options configures a Coordinator.
type Options struct {
	API          Gateway
	Connections  *connection.Manager
	Store        *store.Store
	PollInterval time.Duration
	Logger       logging.Logger
}

// Coordinator merges REST and channel updates into the store.
type Coordinator struct {
	api      Gateway
	conns    *connection.Manager
	store    *store.Store
	interval time.Duration
	log      logging.Logger
	flight   singleflight.Group

	mu      sync.Mutex
	closed  bool
	watched map[string][]func()
	pollers map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a coordinator.
func New(opts Options) *Coordinator {
	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Coordinator{
		api:      opts.API,
		conns:    opts.Connections,
		store:    opts.Store,
		interval: interval,
		log:      logging.OrNop(opts.Logger),
		watched:  make(map[string][]func()),
		pollers:  make(map[string]context.CancelFunc),
	}
}

// Store returns the store the coordinator writes to.
func (c *Coordinator) Store() *store.Store {
	return c.store
}

// Create validates the draft, creates the plan and selects the new task.
func (c *Coordinator) Create(ctx context.Context, draft task.Draft) (*task.Task, error) {
	_, t, err := c.Plan(ctx, draft)
	return t, err
}

// Plan is Create, also returning the backend's plan.
func (c *Coordinator) Plan(ctx context.Context, draft task.Draft) (*api.Plan, *task.Task, error) {
	if err := task.ValidateDraft(&draft); err != nil {
		return nil, nil, err
	}

	plan, err := c.api.CreatePlan(ctx, draft)
	if err != nil {
		return nil, nil, fmt.Errorf("create plan: %w", err)
	}
	if plan.TaskID == "" {
		return nil, nil, errors.New("create plan: backend returned no task id")
	}

	t := plan.Task()
	if t.Goal == "" {
		t.Goal = draft.Goal
	}
	t.Description = draft.Description
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	c.store.AddTask(t)
	c.store.SetCurrentTask(t)
	c.log.Info("created task %s with %d steps", t.ID, len(plan.Steps))
	return plan, t, nil
}

// Execute starts watching the task, then asks the backend to run it and
// applies the returned status.
func (c *Coordinator) Execute(ctx context.Context, id string) (*task.Task, error) {
	if err := c.Watch(ctx, id); err != nil {
		c.log.Warn("live updates unavailable for %s, polling: %v", id, err)
	}

	st, err := c.api.Execute(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("execute task %s: %w", id, err)
	}

	upd := st.Task()
	upd.ID = id
	if upd.Status == task.StatusExecuting {
		now := time.Now().UTC()
		upd.StartedAt = &now
	}
	if _, ok := c.store.Get(id); ok {
		c.store.UpdateTask(upd)
	} else {
		if !upd.Status.IsValid() {
			upd.Status = task.StatusNotStarted
		}
		c.store.AddTask(upd)
	}

	t, ok := c.store.Get(id)
	if !ok {
		return upd, nil
	}
	return t, nil
}

// Watch subscribes the store to the task's event channel and connects it.
// A failed connect is retried once; after that the task is polled instead
// and the connect error is returned for the caller's information.
//
// A task the store does not know yet is fetched first. A backend that says
// the task does not exist fails the watch; any other fetch failure leaves the
// task to the poller, which adds it once the backend answers.
func (c *Coordinator) Watch(ctx context.Context, id string) error {
	if id == "" {
		return connection.ErrEmptyTaskID
	}
	known := true
	if _, ok := c.store.Get(id); !ok {
		if _, err := c.Refresh(ctx, id); err != nil {
			if api.IsNotFound(err) {
				return err
			}
			c.log.Warn("fetch task %s failed, polling until it answers: %v", id, err)
			known = false
		}
	}

	c.mu.Lock()
	if _, ok := c.watched[id]; !ok {
		c.watched[id] = c.subscribe(id, c.conns.GetOrCreate(id))
	}
	c.mu.Unlock()

	err := c.conns.Connect(ctx, id)
	if err != nil && !errors.Is(err, channel.ErrClosed) && ctx.Err() == nil {
		c.log.Debug("connect to task %s failed, retrying once: %v", id, err)
		err = c.conns.Connect(ctx, id)
	}
	if err != nil || !known {
		c.startPolling(id)
	}
	return err
}

// Unwatch disconnects the task's channel and stops polling it.
func (c *Coordinator) Unwatch(id string) {
	c.mu.Lock()
	unsubs := c.watched[id]
	delete(c.watched, id)
	c.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	c.stopPolling(id)
	c.conns.Disconnect(id)
	c.store.SetConnection(id, "")
}

func (c *Coordinator) subscribe(id string, ch *channel.Channel) []func() {
	c.store.SetConnection(id, ch.State().String())

	return []func(){
		ch.Subscribe(event.StepStarted, func(ev event.Event) { c.onStep(id, ev, false) }),
		ch.Subscribe(event.StepComplete, func(ev event.Event) { c.onStep(id, ev, true) }),
		ch.Subscribe(event.ConfirmationNeeded, func(ev event.Event) { c.onConfirmation(id, ev) }),
		ch.Subscribe(event.TaskComplete, func(ev event.Event) { c.onComplete(id, ev) }),
		ch.Subscribe(event.Error, func(ev event.Event) { c.onError(id, ev) }),
		ch.OnStateChange(func(s channel.State) { c.onState(id, s) }),
	}
}

func (c *Coordinator) onState(id string, s channel.State) {
	c.store.SetConnection(id, s.String())
	switch s {
	case channel.StateOpen:
		c.stopPolling(id)
	case channel.StateClosedExhausted:
		c.log.Warn("live updates for %s lost, falling back to polling", id)
		c.startPolling(id)
	}
}

func (c *Coordinator) onStep(id string, ev event.Event, complete bool) {
	var p event.StepPayload
	if err := ev.Decode(&p); err != nil {
		c.log.Warn("task %s: %v", id, err)
		return
	}

	stored, ok := c.store.Get(id)
	if !ok {
		return
	}
	prog := task.Progress{}
	if stored.Progress != nil {
		prog = *stored.Progress
	}
	if p.TotalSteps > 0 {
		prog.TotalSteps = p.TotalSteps
	}
	if p.Step > prog.CurrentStep {
		prog.CurrentStep = p.Step
	}
	if complete {
		if p.Error != "" || task.NormalizeStatus(p.Status) == task.StatusFailed {
			prog.FailedSteps++
		} else if p.Step > prog.CompletedSteps {
			prog.CompletedSteps = p.Step
		}
	}
	if prog.TotalSteps > 0 {
		prog.Percent = float64(prog.CompletedSteps) / float64(prog.TotalSteps) * 100
	}

	upd := &task.Task{
		ID:        id,
		Status:    task.StatusExecuting,
		Progress:  &prog,
		UpdatedAt: ev.Timestamp,
	}
	if p.Action != "" {
		upd.Metadata = map[string]any{"last_action": p.Action}
	}
	c.store.UpdateTask(upd)
}

func (c *Coordinator) onConfirmation(id string, ev event.Event) {
	var p event.ConfirmationPayload
	if err := ev.Decode(&p); err != nil {
		c.log.Warn("task %s: %v", id, err)
		return
	}

	prompt := task.NewConfirmation(p.ID, id, p.Action, p.Message)
	prompt.StepNum = p.StepNum
	prompt.Dangerous = p.Dangerous
	if len(p.Options) > 0 {
		prompt.Options = p.Options
	}
	if !ev.Timestamp.IsZero() {
		prompt.CreatedAt = ev.Timestamp
	}
	c.store.AddPrompt(prompt)
}

func (c *Coordinator) onComplete(id string, ev event.Event) {
	var p event.CompletePayload
	if err := ev.Decode(&p); err != nil {
		c.log.Warn("task %s: %v", id, err)
		return
	}

	status := task.NormalizeStatus(p.Status)
	if p.Status == "" {
		status = task.StatusCompleted
	}
	completedAt := ev.Timestamp
	if completedAt.IsZero() {
		completedAt = time.Now().UTC()
	}
	result := p.Result
	if result == "" {
		result = p.Summary
	}

	c.store.UpdateTask(&task.Task{
		ID:          id,
		Status:      status,
		Result:      result,
		Error:       p.Error,
		CompletedAt: &completedAt,
		UpdatedAt:   ev.Timestamp,
	})
	c.finish(id)
}

func (c *Coordinator) onError(id string, ev event.Event) {
	var p event.ErrorPayload
	if err := ev.Decode(&p); err != nil {
		c.log.Warn("task %s: %v", id, err)
		return
	}

	now := time.Now().UTC()
	c.store.UpdateTask(&task.Task{
		ID:          id,
		Status:      task.StatusFailed,
		Error:       p.Text(),
		CompletedAt: &now,
		UpdatedAt:   ev.Timestamp,
	})
	c.finish(id)
}

// finish stops background work for a task once the store holds a terminal status.
func (c *Coordinator) finish(id string) {
	if t, ok := c.store.Get(id); ok && t.Status.IsTerminal() {
		c.stopPolling(id)
		c.store.PurgePrompts(id)
	}
}

// Refresh fetches status and detail in parallel and reconciles them into the
// store. A task the store does not know yet is added. Concurrent refreshes of
// the same id share one round trip.
//
// The shared round trip runs detached from any one caller's context, so a
// caller giving up never fails the others; each caller waits only as long as
// its own ctx allows.
func (c *Coordinator) Refresh(ctx context.Context, id string) (*task.Task, error) {
	shared := context.WithoutCancel(ctx)
	results := c.flight.DoChan(id, func() (any, error) {
		var (
			st     *api.ExecutionStatus
			detail *api.TaskDetail
		)
		g, gctx := errgroup.WithContext(shared)
		g.Go(func() error {
			var err error
			st, err = c.api.Status(gctx, id)
			return err
		})
		g.Go(func() error {
			var err error
			detail, err = c.api.GetTask(gctx, id)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, fmt.Errorf("refresh task %s: %w", id, err)
		}

		rec := detail.Task()
		if rec.ID == "" {
			rec.ID = id
		}
		live := st.Task()
		if live.Status != "" {
			rec.Status = live.Status
		}
		rec.Progress = live.Progress

		if _, ok := c.store.Get(id); ok {
			c.store.UpdateTask(rec)
		} else {
			if !rec.Status.IsValid() {
				rec.Status = task.StatusNotStarted
			}
			c.store.AddTask(rec)
		}
		t, _ := c.store.Get(id)
		return t, nil
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("refresh task %s: %w", id, ctx.Err())
	case res := <-results:
		if res.Err != nil {
			return nil, res.Err
		}
		t, _ := res.Val.(*task.Task)
		return t.Clone(), nil
	}
}

// Cancel cancels the task on the backend and records the cancellation.
func (c *Coordinator) Cancel(ctx context.Context, id string) error {
	if err := c.api.Cancel(ctx, id); err != nil {
		return fmt.Errorf("cancel task %s: %w", id, err)
	}
	now := time.Now().UTC()
	c.store.UpdateTask(&task.Task{ID: id, Status: task.StatusCancelled, CompletedAt: &now})
	c.finish(id)
	return nil
}

// Delete deletes the task on the backend, then drops it from the active set,
// its channel and its prompts. A task already gone from the backend is still
// removed locally.
func (c *Coordinator) Delete(ctx context.Context, id string) error {
	if err := c.api.DeleteTask(ctx, id); err != nil && !api.IsNotFound(err) {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	c.Unwatch(id)
	c.store.PurgePrompts(id)
	c.store.DeleteTask(id)
	return nil
}

// Confirm answers a pending prompt. The answer goes over REST; if that fails
// and the task's channel is open, it is sent over the channel instead.
func (c *Coordinator) Confirm(ctx context.Context, promptID string, accept bool) error {
	var prompt *task.Confirmation
	for _, p := range c.store.Prompts("") {
		if p.ID == promptID {
			prompt = p
			break
		}
	}
	if prompt == nil {
		return fmt.Errorf("%w: %s", ErrPromptNotFound, promptID)
	}

	req := api.ConfirmationRequest{TaskID: prompt.TaskID, Action: prompt.Action, Confirmed: accept}
	if err := c.api.Confirm(ctx, req); err != nil {
		ch, ok := c.conns.Get(prompt.TaskID)
		if !ok || !ch.Send(req) {
			return fmt.Errorf("confirm %s: %w", promptID, err)
		}
		c.log.Warn("confirm via REST failed, sent over channel: %v", err)
	}

	c.store.ResolvePrompt(promptID, accept)
	return nil
}

// LoadHistory merges a page of the backend's task list into history.
func (c *Coordinator) LoadHistory(ctx context.Context, opts api.ListOptions) (int, error) {
	page, err := c.api.ListTasks(ctx, opts)
	if err != nil {
		return 0, fmt.Errorf("list tasks: %w", err)
	}
	tasks := make([]*task.Task, 0, len(page.Tasks))
	for _, s := range page.Tasks {
		tasks = append(tasks, s.Task())
	}
	return c.store.MergeHistory(tasks), nil
}

// Close stops all polling and disconnects every channel.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	pollers := c.pollers
	c.pollers = make(map[string]context.CancelFunc)
	watched := c.watched
	c.watched = make(map[string][]func())
	c.mu.Unlock()

	for _, cancel := range pollers {
		cancel()
	}
	for _, unsubs := range watched {
		for _, unsub := range unsubs {
			unsub()
		}
	}
	c.wg.Wait()
	c.conns.DisconnectAll()
}

// Polling reports whether the task is being polled.
func (c *Coordinator) Polling(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pollers[id]
	return ok
}

// startPolling is a no-op once Close has begun.
func (c *Coordinator) startPolling(id string) {
	c.mu.Lock()
	if _, ok := c.pollers[id]; ok || c.closed {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.pollers[id] = cancel
	c.wg.Add(1)
	c.mu.Unlock()

	c.log.Debug("polling task %s every %v", id, c.interval)
	go func() {
		defer c.wg.Done()
		c.poll(ctx, id)
	}()
}

func (c *Coordinator) stopPolling(id string) {
	c.mu.Lock()
	cancel, ok := c.pollers[id]
	delete(c.pollers, id)
	c.mu.Unlock()

	if ok {
		cancel()
	}
}

func (c *Coordinator) poll(ctx context.Context, id string) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		t, err := c.Refresh(ctx, id)
		if err != nil {
			if ctx.Err() == nil {
				c.log.Warn("poll %s: %v", id, err)
			}
			continue
		}
		if t != nil && !t.Status.IsTerminal() {
			if ch, ok := c.conns.Get(id); ok && ch.IsConnected() {
				c.log.Debug("channel for %s is open, stopping poll", id)
				c.stopPolling(id)
				return
			}
			continue
		}
		if t != nil && t.Status.IsTerminal() {
			if res, err := c.api.Result(ctx, id); err == nil {
				final := res.Task()
				final.ID = id
				c.store.UpdateTask(final)
			}
			c.finish(id)
			return
		}
	}
}
