package tui

import (
	"fmt"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/bkonkle/cowork/internal/store"
	"github.com/bkonkle/cowork/internal/task"
)

// EventLine is one entry in the events pane.
type EventLine struct {
	Timestamp time.Time
	TaskID    string
	Content   string
	Level     string
}

// changeMsg carries a store change into the BubbleTea loop.
type changeMsg store.Change

// Listen subscribes to s and forwards changes to the returned channel.
// Changes arriving while the buffer is full are dropped; the dashboard
// reloads its whole snapshot on every message it does receive. Call stop to
// unsubscribe.
func Listen(s *store.Store, buffer int) (changes <-chan store.Change, stop func()) {
	ch := make(chan store.Change, max(1, buffer))
	done := make(chan struct{})
	unsub := s.Subscribe(func(c store.Change) {
		select {
		case <-done:
			return
		default:
		}
		select {
		case ch <- c:
		default:
		}
	})
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			unsub()
			close(done)
		})
	}
}

// waitForChange blocks until the next store change.
func waitForChange(changes <-chan store.Change) tea.Cmd {
	if changes == nil {
		return nil
	}
	return func() tea.Msg {
		c, ok := <-changes
		if !ok {
			return nil
		}
		return changeMsg(c)
	}
}

// describe turns a store change into an events pane line. Changes with
// nothing worth showing report false.
func describe(src Source, c store.Change, now time.Time) (EventLine, bool) {
	line := EventLine{Timestamp: now, TaskID: c.TaskID, Level: "info"}

	switch c.Kind {
	case store.TaskAdded:
		t, ok := src.Get(c.TaskID)
		if !ok {
			return line, false
		}
		line.Content = fmt.Sprintf("task added: %s", t.Goal)

	case store.TaskUpdated:
		t, ok := src.Get(c.TaskID)
		if !ok {
			return line, false
		}
		line.Content = describeTask(t)
		switch t.Status {
		case task.StatusFailed:
			line.Level = "error"
		case task.StatusCompleted:
			line.Level = "success"
		case task.StatusCancelled:
			line.Level = "warn"
		}

	case store.TaskDeleted:
		line.Content = "task removed"

	case store.PromptsChanged:
		prompts := src.Prompts(c.TaskID)
		if len(prompts) == 0 {
			line.Content = "confirmation answered"
			break
		}
		p := prompts[len(prompts)-1]
		line.Content = fmt.Sprintf("confirmation needed: %s", p.Message)
		line.Level = "warn"

	case store.ConnectionChanged:
		state := src.Connection(c.TaskID)
		if state == "" {
			line.Content = "channel closed"
		} else {
			line.Content = "channel " + state
		}
		switch state {
		case "closed_exhausted":
			line.Level = "error"
		case "closed_retrying":
			line.Level = "warn"
		}

	default:
		return line, false
	}
	return line, true
}

func describeTask(t *task.Task) string {
	switch {
	case t.Status == task.StatusExecuting && t.Progress != nil && t.Progress.TotalSteps > 0:
		return fmt.Sprintf("executing step %d/%d (%.0f%%)", t.Progress.CurrentStep, t.Progress.TotalSteps, t.Progress.Percent)
	case t.Status == task.StatusFailed && t.Error != "":
		return "failed: " + t.Error
	case t.Status == task.StatusCompleted && t.Result != "":
		return "completed: " + t.Result
	default:
		return string(t.Status)
	}
}
