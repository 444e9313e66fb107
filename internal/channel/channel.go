// Package channel maintains a single logical real-time connection to the
// backend for one task and dispatches parsed events to subscribers.
//
// Transport drops are recovered transparently: an unexpected close schedules
// a reconnect after BaseDelay * 2^attempt, up to MaxAttempts consecutive
// failures, after which the channel settles in StateClosedExhausted.
// Disconnect cancels any pending reconnect before it returns.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/bkonkle/cowork/internal/event"
	"github.com/bkonkle/cowork/internal/logging"
	"github.com/bkonkle/cowork/internal/metrics"
)

const (
	defaultBaseDelay    = time.Second
	defaultMaxAttempts  = 5
	defaultDialTimeout  = 10 * time.Second
	defaultDedupeWindow = 256
)

// ErrClosed is returned by Connect when Disconnect raced with the dial.
var ErrClosed = errors.New("channel closed")

// Handler receives events of one kind.
type Handler func(event.Event)

// Options configures a Channel.
type Options struct {
	// URL is the websocket endpoint (see TaskURL).
	URL string
	// Header is sent with every dial (e.g. Authorization).
	Header http.Header

	Dialer    Dialer
	Scheduler Scheduler

	// BaseDelay is the first reconnect delay; attempt n waits BaseDelay * 2^n.
	BaseDelay time.Duration
	// MaxAttempts is the number of consecutive failed reconnects tolerated.
	MaxAttempts int
	// DialTimeout bounds each reconnect dial.
	DialTimeout time.Duration
	// KeepaliveInterval sends a ping frame on this interval while open. Zero disables.
	KeepaliveInterval time.Duration
	// DedupeWindow is how many recent event fingerprints are remembered.
	DedupeWindow int

	Logger  logging.Logger
	Metrics *metrics.Metrics
}

func (o Options) withDefaults() Options {
	out := o
	if out.Dialer == nil {
		out.Dialer = WebsocketDialer{}
	}
	if out.Scheduler == nil {
		out.Scheduler = realScheduler{}
	}
	if out.BaseDelay <= 0 {
		out.BaseDelay = defaultBaseDelay
	}
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = defaultMaxAttempts
	}
	if out.DialTimeout <= 0 {
		out.DialTimeout = defaultDialTimeout
	}
	if out.DedupeWindow <= 0 {
		out.DedupeWindow = defaultDedupeWindow
	}
	out.Logger = logging.OrNop(out.Logger)
	return out
}

// Backoff returns the reconnect delay for a 0-indexed attempt.
func Backoff(base time.Duration, attempt int) time.Duration {
	return base * time.Duration(1<<uint(attempt))
}

type registration struct {
	id      uint64
	handler Handler
}

type stateRegistration struct {
	id uint64
	fn StateListener
}

// Channel is a reconnecting event connection for one task.
type Channel struct {
	opts Options
	log  logging.Logger
	seen *lru.Cache[string, struct{}]

	connectMu sync.Mutex
	writeMu   sync.Mutex

	mu        sync.Mutex
	conn      Conn
	state     State
	manual    bool
	epoch     uint64
	attempt   int
	pending   Timer
	stopPing  chan struct{}
	handlers  map[event.Kind][]registration
	listeners []stateRegistration
	nextID    uint64
}

// New creates a channel. It does not connect.
func New(opts Options) *Channel {
	opts = opts.withDefaults()
	seen, _ := lru.New[string, struct{}](opts.DedupeWindow)
	return &Channel{
		opts:     opts,
		log:      opts.Logger,
		seen:     seen,
		state:    StateClosedClean,
		handlers: make(map[event.Kind][]registration),
	}
}

// URL returns the endpoint this channel dials.
func (c *Channel) URL() string {
	return c.opts.URL
}

// Connect establishes the transport and returns once it is open. If the
// dial fails the error is returned and no reconnect is scheduled; the caller
// decides whether to try again. Connect on an open channel is a no-op.
func (c *Channel) Connect(ctx context.Context) error {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	c.mu.Lock()
	if c.state == StateOpen {
		c.mu.Unlock()
		return nil
	}
	c.manual = false
	c.cancelPendingLocked()
	c.epoch++
	epoch := c.epoch
	notify := c.setStateLocked(StateConnecting)
	c.mu.Unlock()
	notify()

	conn, err := c.opts.Dialer.Dial(ctx, c.opts.URL, c.opts.Header)

	c.mu.Lock()
	if epoch != c.epoch {
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return ErrClosed
	}
	if err != nil {
		notify = c.setStateLocked(StateClosedClean)
		c.mu.Unlock()
		notify()
		return fmt.Errorf("connect %s: %w", c.opts.URL, err)
	}
	c.attempt = 0
	notify = c.installLocked(conn)
	c.mu.Unlock()
	notify()

	c.log.Debug("connected to %s", c.opts.URL)
	return nil
}

// Subscribe registers h for events of kind. Handlers of one kind run in
// registration order. The returned func removes exactly this registration
// and is safe to call more than once.
func (c *Channel) Subscribe(kind event.Kind, h Handler) (unsubscribe func()) {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.handlers[kind] = append(c.handlers[kind], registration{id: id, handler: h})
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			regs := c.handlers[kind]
			for i, r := range regs {
				if r.id == id {
					c.handlers[kind] = append(regs[:i:i], regs[i+1:]...)
					return
				}
			}
		})
	}
}

// OnStateChange registers fn for state transitions. fn runs outside the
// channel lock.
func (c *Channel) OnStateChange(fn StateListener) (remove func()) {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.listeners = append(c.listeners, stateRegistration{id: id, fn: fn})
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			for i, l := range c.listeners {
				if l.id == id {
					c.listeners = append(c.listeners[:i:i], c.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// Send encodes payload as JSON and writes it if the transport is open.
// Undeliverable payloads are dropped with a warning; the return value
// reports whether the write happened.
func (c *Channel) Send(payload any) bool {
	data, err := json.Marshal(payload)
	if err != nil {
		c.log.Warn("dropping unencodable payload for %s: %v", c.opts.URL, err)
		return false
	}

	c.mu.Lock()
	conn := c.conn
	open := c.state == StateOpen
	c.mu.Unlock()

	if conn == nil || !open {
		c.log.Warn("channel %s not open; dropping message", c.opts.URL)
		return false
	}
	if err := c.write(conn, data); err != nil {
		c.log.Warn("send on %s failed: %v", c.opts.URL, err)
		return false
	}
	return true
}

// Disconnect closes the channel for good: no reconnect fires after it
// returns, the transport is closed and all event subscriptions are cleared.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	c.manual = true
	c.epoch++
	c.cancelPendingLocked()
	conn := c.conn
	c.conn = nil
	c.stopPingLocked()
	c.handlers = make(map[event.Kind][]registration)
	notify := c.setStateLocked(StateClosedClean)
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	notify()
}

// IsConnected reports whether the transport is open.
func (c *Channel) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateOpen
}

// State returns the current lifecycle state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// installLocked adopts conn as the live transport.
func (c *Channel) installLocked(conn Conn) func() {
	c.conn = conn
	notify := c.setStateLocked(StateOpen)

	if c.opts.KeepaliveInterval > 0 {
		stop := make(chan struct{})
		c.stopPing = stop
		go c.keepalive(conn, stop)
	}
	go c.readLoop(conn)
	return notify
}

func (c *Channel) readLoop(conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleDrop(conn, err)
			return
		}
		c.handleFrame(data)
	}
}

func (c *Channel) handleFrame(data []byte) {
	ev, err := event.Parse(data)
	if err != nil {
		c.log.Warn("ignoring frame on %s: %v", c.opts.URL, err)
		c.opts.Metrics.EventDropped("malformed")
		return
	}

	if ev.Kind != event.Keepalive {
		if seen, _ := c.seen.ContainsOrAdd(ev.Fingerprint(), struct{}{}); seen {
			c.log.Debug("dropping duplicate %s event", ev.Kind)
			c.opts.Metrics.EventDropped("duplicate")
			return
		}
	}
	c.opts.Metrics.EventReceived(ev.Kind.String())

	c.mu.Lock()
	regs := make([]registration, len(c.handlers[ev.Kind]))
	copy(regs, c.handlers[ev.Kind])
	c.mu.Unlock()

	for _, r := range regs {
		c.invoke(r.handler, ev)
	}
}

func (c *Channel) invoke(h Handler, ev event.Event) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("%s handler panicked: %v", ev.Kind, r)
		}
	}()
	h(ev)
}

func (c *Channel) handleDrop(conn Conn, cause error) {
	c.mu.Lock()
	if c.conn != conn {
		// Superseded or closed via Disconnect.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.stopPingLocked()
	_ = conn.Close()

	var notify func()
	if c.manual {
		notify = c.setStateLocked(StateClosedClean)
	} else {
		c.log.Warn("connection to %s lost: %v", c.opts.URL, cause)
		notify = c.scheduleReconnectLocked()
	}
	c.mu.Unlock()
	notify()
}

// scheduleReconnectLocked arms the next reconnect, or gives up when the
// attempt budget is spent.
func (c *Channel) scheduleReconnectLocked() func() {
	if c.attempt >= c.opts.MaxAttempts {
		c.log.Error("giving up on %s after %d reconnect attempts", c.opts.URL, c.attempt)
		return c.setStateLocked(StateClosedExhausted)
	}

	delay := Backoff(c.opts.BaseDelay, c.attempt)
	c.attempt++
	epoch := c.epoch
	notify := c.setStateLocked(StateClosedRetrying)

	c.log.Info("reconnecting to %s in %v (attempt %d/%d)", c.opts.URL, delay, c.attempt, c.opts.MaxAttempts)
	c.opts.Metrics.ReconnectScheduled()
	c.pending = c.opts.Scheduler.AfterFunc(delay, func() {
		c.reconnect(epoch)
	})
	return notify
}

func (c *Channel) reconnect(epoch uint64) {
	c.mu.Lock()
	if epoch != c.epoch || c.manual {
		c.mu.Unlock()
		return
	}
	c.pending = nil
	notify := c.setStateLocked(StateConnecting)
	c.mu.Unlock()
	notify()

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.DialTimeout)
	conn, err := c.opts.Dialer.Dial(ctx, c.opts.URL, c.opts.Header)
	cancel()

	c.mu.Lock()
	if epoch != c.epoch || c.manual {
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if err != nil {
		c.log.Warn("reconnect to %s failed: %v", c.opts.URL, err)
		notify = c.scheduleReconnectLocked()
	} else {
		c.attempt = 0
		notify = c.installLocked(conn)
		c.log.Info("reconnected to %s", c.opts.URL)
	}
	c.mu.Unlock()
	notify()
}

func (c *Channel) cancelPendingLocked() {
	if c.pending != nil {
		c.pending.Stop()
		c.pending = nil
	}
}

func (c *Channel) stopPingLocked() {
	if c.stopPing != nil {
		close(c.stopPing)
		c.stopPing = nil
	}
}

var pingFrame = []byte(`{"type":"ping"}`)

func (c *Channel) keepalive(conn Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(c.opts.KeepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := c.write(conn, pingFrame); err != nil {
				c.log.Debug("keepalive on %s failed: %v", c.opts.URL, err)
			}
		}
	}
}

func (c *Channel) write(conn Conn, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

// setStateLocked records a transition and returns a func that notifies
// listeners; call it after releasing the lock.
func (c *Channel) setStateLocked(s State) func() {
	if c.state == s {
		return func() {}
	}
	c.state = s
	c.opts.Metrics.ChannelState(s.String())

	listeners := make([]stateRegistration, len(c.listeners))
	copy(listeners, c.listeners)
	return func() {
		for _, l := range listeners {
			func() {
				defer func() {
					if r := recover(); r != nil {
						c.log.Error("state listener panicked: %v", r)
					}
				}()
				l.fn(s)
			}()
		}
	}
}
