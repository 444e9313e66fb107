package store

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bkonkle/cowork/internal/task"
)

func newTask(id string, status task.Status) *task.Task {
	return &task.Task{ID: id, Goal: "goal " + id, Status: status, CreatedAt: time.Now()}
}

func ids(list []*task.Task) []string {
	out := make([]string, len(list))
	for i, t := range list {
		out[i] = t.ID
	}
	return out
}

func TestAddTask_Prepends(t *testing.T) {
	s := New()
	s.AddTask(newTask("a", task.StatusNotStarted))
	s.AddTask(newTask("b", task.StatusNotStarted))

	if got := ids(s.Tasks()); fmt.Sprint(got) != "[b a]" {
		t.Errorf("Tasks() = %v, want [b a]", got)
	}
	if got := ids(s.History()); fmt.Sprint(got) != "[b a]" {
		t.Errorf("History() = %v, want [b a]", got)
	}
}

func TestAddTask_IgnoresInvalid(t *testing.T) {
	s := New()
	s.AddTask(nil)
	s.AddTask(&task.Task{Goal: "no id"})
	if len(s.Tasks()) != 0 || len(s.History()) != 0 {
		t.Error("tasks without an id must be ignored")
	}
}

func TestAddTask_ReAddDoesNotDuplicate(t *testing.T) {
	s := New()
	s.AddTask(newTask("a", task.StatusNotStarted))
	s.AddTask(newTask("b", task.StatusNotStarted))
	s.AddTask(newTask("a", task.StatusExecuting))

	if got := ids(s.Tasks()); fmt.Sprint(got) != "[a b]" {
		t.Errorf("Tasks() = %v, want [a b]", got)
	}
	if got := ids(s.History()); fmt.Sprint(got) != "[a b]" {
		t.Errorf("History() = %v, want [a b]", got)
	}
}

func TestHistoryCap_FIFO(t *testing.T) {
	s := New(WithHistoryCap(3))
	for i := 1; i <= 5; i++ {
		s.AddTask(newTask(fmt.Sprintf("t%d", i), task.StatusNotStarted))
		if n := len(s.History()); n > 3 {
			t.Fatalf("history grew to %d, cap is 3", n)
		}
	}

	if got := ids(s.History()); fmt.Sprint(got) != "[t5 t4 t3]" {
		t.Errorf("History() = %v, want oldest evicted [t5 t4 t3]", got)
	}
	if len(s.Tasks()) != 5 {
		t.Errorf("active set should not be capped, got %d", len(s.Tasks()))
	}
}

func TestUpdateTask_UnknownIDIsNoop(t *testing.T) {
	s := New()
	s.AddTask(newTask("a", task.StatusNotStarted))
	before := s.History()

	if s.UpdateTask(newTask("ghost", task.StatusExecuting)) {
		t.Error("UpdateTask() on unknown id returned true")
	}
	if len(s.Tasks()) != 1 || len(s.History()) != len(before) {
		t.Error("unknown id must not create a task")
	}
}

func TestUpdateTask_AfterDeleteIsNoop(t *testing.T) {
	s := New()
	s.AddTask(newTask("a", task.StatusNotStarted))
	s.DeleteTask("a")

	if s.UpdateTask(newTask("a", task.StatusExecuting)) {
		t.Error("UpdateTask() after DeleteTask() returned true")
	}
	if len(s.Tasks()) != 0 {
		t.Error("deleted task reappeared in the active set")
	}
	h := s.History()
	if len(h) != 1 || h[0].Status != task.StatusNotStarted {
		t.Errorf("history entry should be retained unchanged, got %+v", h)
	}
}

func TestUpdateTask_UpdatesEverywhere(t *testing.T) {
	s := New()
	a := newTask("a", task.StatusNotStarted)
	s.AddTask(a)
	s.SetCurrentTask(a)

	if !s.UpdateTask(&task.Task{ID: "a", Status: task.StatusExecuting}) {
		t.Fatal("UpdateTask() returned false")
	}

	got, ok := s.Get("a")
	if !ok || got.Status != task.StatusExecuting || got.Goal != "goal a" {
		t.Errorf("Get() = %+v", got)
	}
	if h := s.History(); h[0].Status != task.StatusExecuting {
		t.Errorf("history status = %s", h[0].Status)
	}
	if cur := s.Current(); cur == nil || cur.Status != task.StatusExecuting {
		t.Errorf("Current() = %+v", cur)
	}
}

func TestUpdateTask_TerminalProtection(t *testing.T) {
	s := New()
	s.AddTask(newTask("a", task.StatusNotStarted))
	s.UpdateTask(&task.Task{ID: "a", Status: task.StatusCompleted, Result: "done"})

	if s.UpdateTask(&task.Task{ID: "a", Status: task.StatusExecuting}) {
		t.Error("executing must not overwrite completed")
	}
	got, _ := s.Get("a")
	if got.Status != task.StatusCompleted || got.Result != "done" {
		t.Errorf("Get() = %+v, want completed", got)
	}
}

func TestUpdateTask_StaleByTimestamp(t *testing.T) {
	s := New()
	now := time.Now()
	s.AddTask(newTask("a", task.StatusNotStarted))
	s.UpdateTask(&task.Task{ID: "a", Status: task.StatusExecuting, UpdatedAt: now, Progress: &task.Progress{CurrentStep: 3}})

	if s.UpdateTask(&task.Task{ID: "a", Status: task.StatusExecuting, UpdatedAt: now.Add(-time.Second), Progress: &task.Progress{CurrentStep: 1}}) {
		t.Error("older update must be ignored")
	}
	got, _ := s.Get("a")
	if got.Progress.CurrentStep != 3 {
		t.Errorf("CurrentStep = %d, want 3", got.Progress.CurrentStep)
	}
}

func TestUpdateTask_ReturnsCopies(t *testing.T) {
	s := New()
	s.AddTask(newTask("a", task.StatusNotStarted))

	got, _ := s.Get("a")
	got.Status = task.StatusFailed
	got.Goal = "mutated"

	again, _ := s.Get("a")
	if again.Status != task.StatusNotStarted || again.Goal != "goal a" {
		t.Error("callers must not be able to mutate stored records")
	}
}

func TestUpdateTask_ConcurrentNeverRegressesTerminal(t *testing.T) {
	s := New()
	s.AddTask(newTask("a", task.StatusExecuting))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.UpdateTask(&task.Task{ID: "a", Status: task.StatusCompleted})
		}()
		go func() {
			defer wg.Done()
			s.UpdateTask(&task.Task{ID: "a", Status: task.StatusExecuting})
		}()
	}
	wg.Wait()

	got, _ := s.Get("a")
	if got.Status != task.StatusCompleted {
		t.Errorf("status = %s, want completed", got.Status)
	}
}

func TestDeleteTask(t *testing.T) {
	s := New()
	a := newTask("a", task.StatusNotStarted)
	s.AddTask(a)
	s.AddTask(newTask("b", task.StatusNotStarted))
	s.SetCurrentTask(a)

	if !s.DeleteTask("a") {
		t.Fatal("DeleteTask() returned false")
	}
	if s.DeleteTask("a") {
		t.Error("second DeleteTask() should report false")
	}
	if s.Current() != nil {
		t.Error("current task should be cleared")
	}
	if got := ids(s.Tasks()); fmt.Sprint(got) != "[b]" {
		t.Errorf("Tasks() = %v", got)
	}
	if len(s.History()) != 2 {
		t.Error("history keeps deleted tasks")
	}
}

func TestDeleteTask_KeepsOtherCurrent(t *testing.T) {
	s := New()
	a, b := newTask("a", task.StatusNotStarted), newTask("b", task.StatusNotStarted)
	s.AddTask(a)
	s.AddTask(b)
	s.SetCurrentTask(b)

	s.DeleteTask("a")
	if cur := s.Current(); cur == nil || cur.ID != "b" {
		t.Errorf("Current() = %+v, want b", cur)
	}
}

func TestSetCurrentTaskNil(t *testing.T) {
	s := New()
	s.SetCurrentTask(newTask("a", task.StatusNotStarted))
	s.SetCurrentTask(nil)
	if s.Current() != nil {
		t.Error("SetCurrentTask(nil) should clear the selection")
	}
}

func TestClearHistory(t *testing.T) {
	s := New()
	s.AddTask(newTask("a", task.StatusNotStarted))
	s.ClearHistory()

	if len(s.History()) != 0 {
		t.Error("history should be empty")
	}
	if len(s.Tasks()) != 1 {
		t.Error("ClearHistory must not touch the active set")
	}
}

func TestMergeHistory(t *testing.T) {
	s := New(WithHistoryCap(3))
	s.AddTask(newTask("a", task.StatusExecuting))

	n := s.MergeHistory([]*task.Task{
		{ID: "a", Status: task.StatusCompleted, Result: "remote"},
		{ID: "r1", Status: task.StatusFailed},
		{ID: "r2", Status: "weird"},
		{ID: "r3", Status: task.StatusCompleted},
		{ID: "r4", Status: task.StatusCompleted},
	})

	if n != 3 {
		t.Errorf("MergeHistory() = %d, want 3", n)
	}
	h := s.History()
	if got := ids(h); fmt.Sprint(got) != "[a r1 r3]" {
		t.Errorf("History() = %v", got)
	}
	if h[0].Result != "remote" || h[0].Goal != "goal a" {
		t.Errorf("known entry not reconciled: %+v", h[0])
	}
}

func TestPrompts(t *testing.T) {
	s := New()
	p1 := task.NewConfirmation("p1", "a", "file_write", "Write report.md?")
	p2 := task.NewConfirmation("p2", "b", "shell", "Run rm?")
	p2.Dangerous = true

	if !s.AddPrompt(p1) || !s.AddPrompt(p2) {
		t.Fatal("AddPrompt() returned false")
	}
	if s.AddPrompt(p1) {
		t.Error("duplicate prompt id should be ignored")
	}

	if got := s.Prompts(""); len(got) != 2 {
		t.Errorf("Prompts(\"\") = %d, want 2", len(got))
	}
	if got := s.Prompts("b"); len(got) != 1 || !got[0].Dangerous {
		t.Errorf("Prompts(b) = %+v", got)
	}

	resolved, ok := s.ResolvePrompt("p1", true)
	if !ok || !resolved.Resolved || !resolved.Accepted {
		t.Errorf("ResolvePrompt() = %+v, %v", resolved, ok)
	}
	if _, ok := s.ResolvePrompt("p1", false); ok {
		t.Error("resolving twice should fail")
	}
	if got := s.Prompts("a"); len(got) != 0 {
		t.Errorf("resolved prompt still pending: %+v", got)
	}

	s.PurgePrompts("b")
	if got := s.Prompts(""); len(got) != 0 {
		t.Errorf("Prompts() after purge = %+v", got)
	}
}

func TestConnectionIndicators(t *testing.T) {
	s := New()
	var changes []Change
	s.Subscribe(func(c Change) { changes = append(changes, c) })

	s.SetConnection("a", "open")
	s.SetConnection("a", "open")
	s.SetConnection("a", "closed_exhausted")

	if got := s.Connection("a"); got != "closed_exhausted" {
		t.Errorf("Connection() = %q", got)
	}
	if len(changes) != 2 {
		t.Errorf("expected 2 change notifications, got %d", len(changes))
	}

	s.SetConnection("a", "")
	if got := s.Connection("a"); got != "" {
		t.Errorf("Connection() after clear = %q", got)
	}
}

func TestSubscribe(t *testing.T) {
	s := New()
	var got []Change
	unsub := s.Subscribe(func(c Change) { got = append(got, c) })
	s.Subscribe(func(Change) { panic("listener bug") })

	s.AddTask(newTask("a", task.StatusNotStarted))
	s.UpdateTask(&task.Task{ID: "a", Status: task.StatusExecuting})
	s.UpdateTask(&task.Task{ID: "a", Status: task.StatusNotStarted}) // rejected

	unsub()
	unsub()
	s.DeleteTask("a")

	want := []Change{{Kind: TaskAdded, TaskID: "a"}, {Kind: TaskUpdated, TaskID: "a"}}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("changes = %v, want %v", got, want)
	}
}

func TestPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "history.json")

	s := New(WithPersistence(NewHistoryFile(path)))
	s.AddTask(newTask("a", task.StatusNotStarted))
	s.UpdateTask(&task.Task{ID: "a", Status: task.StatusCompleted, Result: "ok"})
	s.AddTask(newTask("b", task.StatusNotStarted))

	restored := New(WithPersistence(NewHistoryFile(path)))
	if err := restored.Restore(); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	h := restored.History()
	if got := ids(h); fmt.Sprint(got) != "[b a]" {
		t.Fatalf("restored history = %v", got)
	}
	if h[1].Status != task.StatusCompleted || h[1].Result != "ok" {
		t.Errorf("restored entry = %+v", h[1])
	}
	if len(restored.Tasks()) != 0 {
		t.Error("restore only touches history")
	}
}

type failingPersister struct{}

func (failingPersister) Load() ([]*task.Task, error) { return nil, errors.New("disk gone") }
func (failingPersister) Save([]*task.Task) error     { return errors.New("disk gone") }

func TestPersistenceFailureIsNotFatal(t *testing.T) {
	s := New(WithPersistence(failingPersister{}))
	s.AddTask(newTask("a", task.StatusNotStarted))

	if len(s.History()) != 1 {
		t.Error("in-memory state must survive persistence failures")
	}
	if err := s.Restore(); err == nil {
		t.Error("Restore() should surface load errors")
	}
}

func TestEndToEnd_SingleHistoryEntry(t *testing.T) {
	s := New()
	s.AddTask(&task.Task{ID: "t-1", Goal: "Summarize Q4 notes", Status: task.StatusNotStarted})
	s.UpdateTask(&task.Task{ID: "t-1", Status: task.StatusExecuting})
	s.UpdateTask(&task.Task{ID: "t-1", Status: task.StatusCompleted, UpdatedAt: time.Now()})

	tasks := s.Tasks()
	if len(tasks) != 1 || tasks[0].Status != task.StatusCompleted {
		t.Errorf("Tasks() = %+v", tasks)
	}
	if len(s.History()) != 1 {
		t.Errorf("history has %d entries, want 1", len(s.History()))
	}
}
