package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/manifoldco/promptui"

	"github.com/bkonkle/cowork/internal/store"
	"github.com/bkonkle/cowork/internal/task"
	"github.com/bkonkle/cowork/internal/tasksync"
	"github.com/bkonkle/cowork/internal/tui"
)

// askFunc asks the user to answer a confirmation prompt.
type askFunc func(p *task.Confirmation) (bool, error)

// followOptions controls how a task is followed to completion.
type followOptions struct {
	// autoApprove answers every prompt with yes.
	autoApprove bool
	// ask answers prompts interactively. Nil leaves prompts pending.
	ask askFunc
	// recheck is how often the store is re-read besides change notifications.
	recheck time.Duration
}

// follower prints a task's progress as the store changes and relays
// confirmation prompts until the task reaches a terminal state.
type follower struct {
	w     io.Writer
	st    *store.Store
	coord *tasksync.Coordinator
	opts  followOptions

	last  string
	asked map[string]bool
}

// follow watches id and blocks until the task is terminal or ctx is done.
func follow(ctx context.Context, w io.Writer, st *store.Store, coord *tasksync.Coordinator, id string, opts followOptions) (*task.Task, error) {
	if opts.recheck <= 0 {
		opts.recheck = time.Second
	}
	f := &follower{w: w, st: st, coord: coord, opts: opts, asked: make(map[string]bool)}
	if t, done := f.step(ctx, id); done {
		return t, nil
	}

	changes, stop := tui.Listen(st, 64)
	defer stop()

	if err := coord.Watch(ctx, id); err != nil {
		if _, ok := st.Get(id); !ok {
			return nil, err
		}
		fmt.Fprintf(w, "%s live updates unavailable, polling instead: %v\n", color.YellowString("!"), err)
	}
	defer coord.Unwatch(id)

	ticker := time.NewTicker(opts.recheck)
	defer ticker.Stop()

	for {
		if t, done := f.step(ctx, id); done {
			return t, nil
		}

		select {
		case <-ctx.Done():
			t, _ := st.Get(id)
			return t, ctx.Err()
		case c := <-changes:
			if c.Kind == store.ConnectionChanged && c.TaskID == id {
				f.printConnection(st.Connection(id))
			}
		case <-ticker.C:
		}
	}
}

// step prints the task's current state and answers new prompts. It reports
// true once the task is terminal.
func (f *follower) step(ctx context.Context, id string) (*task.Task, bool) {
	t, ok := f.st.Get(id)
	if !ok {
		return nil, false
	}

	if line := progressLine(t); line != f.last {
		f.last = line
		fmt.Fprintln(f.w, line)
	}

	for _, p := range f.st.Prompts(id) {
		if f.asked[p.ID] {
			continue
		}
		f.asked[p.ID] = true
		f.answer(ctx, p)
	}

	return t, t.Status.IsTerminal()
}

func (f *follower) answer(ctx context.Context, p *task.Confirmation) {
	label := p.Message
	if label == "" {
		label = p.Action
	}
	fmt.Fprintf(f.w, "%s confirmation needed: %s\n", color.YellowString("?"), label)

	var accept bool
	switch {
	case f.opts.autoApprove:
		accept = true
		fmt.Fprintln(f.w, "  approved (--yes)")
	case f.opts.ask != nil:
		var err error
		accept, err = f.opts.ask(p)
		if err != nil {
			fmt.Fprintf(f.w, "  left unanswered: %v\n", err)
			return
		}
	default:
		fmt.Fprintf(f.w, "  answer with: cowork confirm %s --action %s [--deny]\n", p.TaskID, p.Action)
		return
	}

	if err := f.coord.Confirm(ctx, p.ID, accept); err != nil {
		fmt.Fprintf(f.w, "  %s failed to send answer: %v\n", color.RedString("✗"), err)
	}
}

func (f *follower) printConnection(state string) {
	switch state {
	case "closed_retrying":
		fmt.Fprintf(f.w, "%s connection lost, reconnecting...\n", color.YellowString("!"))
	case "closed_exhausted":
		fmt.Fprintf(f.w, "%s could not reconnect, polling for updates\n", color.YellowString("!"))
	}
}

// progressLine summarizes a task for the follow output.
func progressLine(t *task.Task) string {
	status := colorStatus(string(t.Status))
	switch {
	case t.Status == task.StatusExecuting && t.Progress != nil && t.Progress.TotalSteps > 0:
		line := fmt.Sprintf("[%s] step %d/%d (%.0f%%)", status, t.Progress.CurrentStep, t.Progress.TotalSteps, t.Progress.Percent)
		if action, ok := t.Metadata["last_action"].(string); ok && action != "" {
			line += " " + action
		}
		return line
	case t.Status == task.StatusFailed && t.Error != "":
		return fmt.Sprintf("[%s] %s", status, t.Error)
	case t.Status == task.StatusCompleted && t.Result != "":
		return fmt.Sprintf("[%s] %s", status, t.Result)
	default:
		return fmt.Sprintf("[%s]", status)
	}
}

// promptAsk asks on the terminal with a y/N confirm prompt. It returns nil
// when stdin is not a terminal, leaving prompts pending.
func promptAsk() askFunc {
	if !isTTY(os.Stdin) {
		return nil
	}
	return func(p *task.Confirmation) (bool, error) {
		label := p.Message
		if label == "" {
			label = p.Action
		}
		if p.Dangerous {
			label = color.RedString("[dangerous] ") + label
		}
		prompt := promptui.Prompt{Label: label, IsConfirm: true}
		_, err := prompt.Run()
		if errors.Is(err, promptui.ErrAbort) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return true, nil
	}
}
