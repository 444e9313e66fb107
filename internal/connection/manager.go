// Package connection tracks at most one event channel per task.
package connection

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/bkonkle/cowork/internal/channel"
	"github.com/bkonkle/cowork/internal/logging"
)

// ErrEmptyTaskID is returned when an operation is given a blank task id.
var ErrEmptyTaskID = errors.New("task id is required")

// Factory builds a new, unconnected channel for a task.
type Factory func(taskID string) *channel.Channel

// Options configures NewFactory.
type Options struct {
	// BaseURL is the backend base URL (http, https, ws or wss).
	BaseURL string
	// Global selects the shared /ws?task_id= endpoint instead of /ws/tasks/{id}.
	Global bool
	// Channel is the template applied to every channel; URL is overwritten.
	Channel channel.Options
}

// NewFactory returns a Factory that points every channel at the task's
// websocket URL. The base URL is validated once here.
func NewFactory(opts Options) (Factory, error) {
	if _, err := channel.TaskURL(opts.BaseURL, "probe", opts.Global); err != nil {
		return nil, err
	}
	return func(taskID string) *channel.Channel {
		// Cannot fail: the base was validated above.
		u, _ := channel.TaskURL(opts.BaseURL, taskID, opts.Global)
		co := opts.Channel
		co.URL = u
		return channel.New(co)
	}, nil
}

// Manager maps task ids to channels.
type Manager struct {
	factory Factory
	log     logging.Logger

	mu       sync.Mutex
	channels map[string]*channel.Channel
}

// NewManager creates a manager that builds channels with factory.
func NewManager(factory Factory, logger logging.Logger) *Manager {
	return &Manager{
		factory:  factory,
		log:      logging.OrNop(logger),
		channels: make(map[string]*channel.Channel),
	}
}

// GetOrCreate returns the channel registered for taskID, creating and
// registering one if needed. The channel is not connected.
func (m *Manager) GetOrCreate(taskID string) *channel.Channel {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ch, ok := m.channels[taskID]; ok {
		return ch
	}
	ch := m.factory(taskID)
	m.channels[taskID] = ch
	m.log.Debug("registered channel for task %s", taskID)
	return ch
}

// Get returns the channel for taskID if one is registered.
func (m *Manager) Get(taskID string) (*channel.Channel, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.channels[taskID]
	return ch, ok
}

// Connect gets or creates the task's channel and connects it. It is a no-op
// when the channel is already open.
func (m *Manager) Connect(ctx context.Context, taskID string) error {
	if taskID == "" {
		return ErrEmptyTaskID
	}
	ch := m.GetOrCreate(taskID)
	if ch.IsConnected() {
		return nil
	}
	return ch.Connect(ctx)
}

// Disconnect closes and forgets the task's channel. Unknown ids are ignored.
func (m *Manager) Disconnect(taskID string) {
	m.mu.Lock()
	ch, ok := m.channels[taskID]
	delete(m.channels, taskID)
	m.mu.Unlock()

	if ok {
		ch.Disconnect()
		m.log.Debug("disconnected channel for task %s", taskID)
	}
}

// DisconnectAll closes every tracked channel and clears the registry.
func (m *Manager) DisconnectAll() {
	m.mu.Lock()
	all := m.channels
	m.channels = make(map[string]*channel.Channel)
	m.mu.Unlock()

	for _, ch := range all {
		ch.Disconnect()
	}
	if len(all) > 0 {
		m.log.Debug("disconnected %d channels", len(all))
	}
}

// Len returns the number of registered channels.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.channels)
}

// TaskIDs returns the registered task ids in sorted order.
func (m *Manager) TaskIDs() []string {
	m.mu.Lock()
	ids := make([]string, 0, len(m.channels))
	for id := range m.channels {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	sort.Strings(ids)
	return ids
}
