// Package store holds the client's task state: the active task set, the
// currently selected task, a bounded history, pending confirmation prompts
// and per-task connection indicators.
//
// The store is the single merge point for REST responses and channel events.
// Every mutation goes through a named method; readers get copies. Updates
// are reconciled under the store lock (see Reconcile) so an out-of-order
// update can never overwrite newer state.
package store

import (
	"sync"

	"github.com/bkonkle/cowork/internal/logging"
	"github.com/bkonkle/cowork/internal/task"
)

// DefaultHistoryCap is the default number of history entries kept in memory.
const DefaultHistoryCap = 100

// ChangeKind describes what a mutation touched.
type ChangeKind int

const (
	// TaskAdded - A task was added to the active set
	TaskAdded ChangeKind = iota
	// TaskUpdated - A task record changed
	TaskUpdated
	// TaskDeleted - A task left the active set
	TaskDeleted
	// CurrentChanged - The selected task changed
	CurrentChanged
	// HistoryChanged - History was cleared or restored
	HistoryChanged
	// PromptsChanged - A prompt was added, resolved or purged
	PromptsChanged
	// ConnectionChanged - A task's connection indicator changed
	ConnectionChanged
)

// Change is delivered to listeners after a mutation.
type Change struct {
	Kind   ChangeKind
	TaskID string
}

// Listener observes store changes. Listeners run outside the store lock.
type Listener func(Change)

// Option configures a Store.
type Option func(*Store)

// WithHistoryCap sets the history bound. Values below 1 are ignored.
func WithHistoryCap(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.historyCap = n
		}
	}
}

// WithPersistence saves history through p after every history change.
func WithPersistence(p Persister) Option {
	return func(s *Store) {
		s.persist = p
	}
}

// WithLogger sets the store logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Store) {
		s.log = logging.OrNop(l)
	}
}

type listenerReg struct {
	id uint64
	fn Listener
}

// Store is the task state container.
type Store struct {
	historyCap int
	persist    Persister
	log        logging.Logger

	mu          sync.Mutex
	tasks       []*task.Task
	history     []*task.Task
	current     *task.Task
	prompts     []*task.Confirmation
	connections map[string]string
	listeners   []listenerReg
	nextID      uint64
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		historyCap:  DefaultHistoryCap,
		log:         logging.Nop(),
		connections: make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Restore replaces history with what the persister holds.
func (s *Store) Restore() error {
	if s.persist == nil {
		return nil
	}
	loaded, err := s.persist.Load()
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.history = s.history[:0]
	for _, t := range loaded {
		if len(s.history) == s.historyCap {
			break
		}
		s.history = append(s.history, t.Clone())
	}
	s.mu.Unlock()

	s.notify(Change{Kind: HistoryChanged})
	return nil
}

// AddTask prepends t to the active set and to history. A task already in the
// active set is moved to the front rather than duplicated. History is capped;
// the oldest entries are evicted first.
func (s *Store) AddTask(t *task.Task) {
	if t == nil || t.ID == "" {
		return
	}
	rec := t.Clone()

	s.mu.Lock()
	s.tasks = prepend(removeID(s.tasks, rec.ID), rec.Clone())
	s.history = prepend(removeID(s.history, rec.ID), rec.Clone())
	if len(s.history) > s.historyCap {
		for _, evicted := range s.history[s.historyCap:] {
			s.log.Debug("evicting task %s from history", evicted.ID)
		}
		s.history = s.history[:s.historyCap]
	}
	s.saveLocked()
	s.mu.Unlock()

	s.notify(Change{Kind: TaskAdded, TaskID: rec.ID})
}

// UpdateTask reconciles t into the active set, history and the current task.
// It returns false and changes nothing when the id is not in the active set
// or when reconciliation rejects the update.
func (s *Store) UpdateTask(t *task.Task) bool {
	if t == nil {
		return false
	}

	s.mu.Lock()
	idx := indexOf(s.tasks, t.ID)
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	stored := s.tasks[idx]
	if d := Reconcile(stored, t); !d.Accepted() {
		s.mu.Unlock()
		s.log.Debug("ignoring update for task %s (%s -> %s): %s", t.ID, stored.Status, t.Status, d)
		return false
	}

	merged := Merge(stored, t)
	s.tasks[idx] = merged
	if h := indexOf(s.history, t.ID); h >= 0 {
		s.history[h] = merged.Clone()
	}
	if s.current != nil && s.current.ID == t.ID {
		s.current = merged.Clone()
	}
	s.saveLocked()
	s.mu.Unlock()

	s.notify(Change{Kind: TaskUpdated, TaskID: t.ID})
	return true
}

// DeleteTask removes the task from the active set and clears the current
// task if it pointed at id. History keeps the entry.
func (s *Store) DeleteTask(id string) bool {
	s.mu.Lock()
	if indexOf(s.tasks, id) < 0 {
		s.mu.Unlock()
		return false
	}
	s.tasks = removeID(s.tasks, id)
	clearedCurrent := s.current != nil && s.current.ID == id
	if clearedCurrent {
		s.current = nil
	}
	s.mu.Unlock()

	s.notify(Change{Kind: TaskDeleted, TaskID: id})
	if clearedCurrent {
		s.notify(Change{Kind: CurrentChanged})
	}
	return true
}

// SetCurrentTask selects t. nil clears the selection.
func (s *Store) SetCurrentTask(t *task.Task) {
	s.mu.Lock()
	s.current = t.Clone()
	id := ""
	if t != nil {
		id = t.ID
	}
	s.mu.Unlock()

	s.notify(Change{Kind: CurrentChanged, TaskID: id})
}

// ClearHistory drops all history entries.
func (s *Store) ClearHistory() {
	s.mu.Lock()
	s.history = nil
	s.saveLocked()
	s.mu.Unlock()

	s.notify(Change{Kind: HistoryChanged})
}

// MergeHistory folds remotely listed tasks into history. Known ids are
// reconciled; unknown ids are appended behind local entries within the cap.
// It returns how many entries changed.
func (s *Store) MergeHistory(remote []*task.Task) int {
	s.mu.Lock()
	changed := 0
	for _, t := range remote {
		if t == nil || t.ID == "" {
			continue
		}
		if i := indexOf(s.history, t.ID); i >= 0 {
			if Reconcile(s.history[i], t).Accepted() {
				s.history[i] = Merge(s.history[i], t)
				changed++
			}
			continue
		}
		if len(s.history) < s.historyCap && t.Status.IsValid() {
			s.history = append(s.history, t.Clone())
			changed++
		}
	}
	if changed > 0 {
		s.saveLocked()
	}
	s.mu.Unlock()

	if changed > 0 {
		s.notify(Change{Kind: HistoryChanged})
	}
	return changed
}

// Tasks returns the active set, newest first.
func (s *Store) Tasks() []*task.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneAll(s.tasks)
}

// History returns history, newest first.
func (s *Store) History() []*task.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneAll(s.history)
}

// Current returns the selected task or nil.
func (s *Store) Current() *task.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Clone()
}

// Get returns the active task with id.
func (s *Store) Get(id string) (*task.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := indexOf(s.tasks, id); i >= 0 {
		return s.tasks[i].Clone(), true
	}
	return nil, false
}

// AddPrompt records a pending confirmation. A prompt whose id is already
// known is ignored.
func (s *Store) AddPrompt(c *task.Confirmation) bool {
	if c == nil || c.ID == "" {
		return false
	}

	s.mu.Lock()
	for _, p := range s.prompts {
		if p.ID == c.ID {
			s.mu.Unlock()
			return false
		}
	}
	cp := *c
	s.prompts = append(s.prompts, &cp)
	s.mu.Unlock()

	s.notify(Change{Kind: PromptsChanged, TaskID: c.TaskID})
	return true
}

// ResolvePrompt marks the prompt answered and discards it. It returns the
// resolved prompt, or false if no pending prompt has that id.
func (s *Store) ResolvePrompt(id string, accepted bool) (*task.Confirmation, bool) {
	s.mu.Lock()
	var found *task.Confirmation
	for i, p := range s.prompts {
		if p.ID == id && !p.Resolved {
			found = p
			s.prompts = append(s.prompts[:i:i], s.prompts[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	if found == nil {
		return nil, false
	}
	found.Resolved = true
	found.Accepted = accepted
	s.notify(Change{Kind: PromptsChanged, TaskID: found.TaskID})
	return found, true
}

// Prompts returns pending prompts in arrival order. An empty taskID returns
// prompts for every task.
func (s *Store) Prompts(taskID string) []*task.Confirmation {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*task.Confirmation, 0, len(s.prompts))
	for _, p := range s.prompts {
		if taskID == "" || p.TaskID == taskID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out
}

// PurgePrompts drops every pending prompt for taskID.
func (s *Store) PurgePrompts(taskID string) {
	s.mu.Lock()
	kept := s.prompts[:0]
	removed := 0
	for _, p := range s.prompts {
		if p.TaskID == taskID {
			removed++
			continue
		}
		kept = append(kept, p)
	}
	s.prompts = kept
	s.mu.Unlock()

	if removed > 0 {
		s.notify(Change{Kind: PromptsChanged, TaskID: taskID})
	}
}

// SetConnection records the connection indicator for a task. An empty state
// removes it.
func (s *Store) SetConnection(taskID, state string) {
	s.mu.Lock()
	if s.connections[taskID] == state {
		s.mu.Unlock()
		return
	}
	if state == "" {
		delete(s.connections, taskID)
	} else {
		s.connections[taskID] = state
	}
	s.mu.Unlock()

	s.notify(Change{Kind: ConnectionChanged, TaskID: taskID})
}

// Connection returns the connection indicator for a task, or "".
func (s *Store) Connection(taskID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connections[taskID]
}

// Subscribe registers l for change notifications.
func (s *Store) Subscribe(l Listener) (unsubscribe func()) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, listenerReg{id: id, fn: l})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, r := range s.listeners {
				if r.id == id {
					s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

func (s *Store) notify(c Change) {
	s.mu.Lock()
	regs := make([]listenerReg, len(s.listeners))
	copy(regs, s.listeners)
	s.mu.Unlock()

	for _, r := range regs {
		func() {
			defer func() {
				if p := recover(); p != nil {
					s.log.Error("store listener panicked: %v", p)
				}
			}()
			r.fn(c)
		}()
	}
}

// saveLocked persists history. Failures are logged; the in-memory state
// stays authoritative.
func (s *Store) saveLocked() {
	if s.persist == nil {
		return
	}
	if err := s.persist.Save(cloneAll(s.history)); err != nil {
		s.log.Warn("failed to persist history: %v", err)
	}
}

func indexOf(list []*task.Task, id string) int {
	for i, t := range list {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func removeID(list []*task.Task, id string) []*task.Task {
	i := indexOf(list, id)
	if i < 0 {
		return list
	}
	return append(list[:i:i], list[i+1:]...)
}

func prepend(list []*task.Task, t *task.Task) []*task.Task {
	out := make([]*task.Task, 0, len(list)+1)
	out = append(out, t)
	return append(out, list...)
}

func cloneAll(list []*task.Task) []*task.Task {
	out := make([]*task.Task, len(list))
	for i, t := range list {
		out[i] = t.Clone()
	}
	return out
}
