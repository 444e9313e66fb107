package channel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is the subset of a websocket connection the channel needs.
// *websocket.Conn satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer opens transports.
type Dialer interface {
	Dial(ctx context.Context, rawURL string, header http.Header) (Conn, error)
}

// WebsocketDialer dials with gorilla/websocket.
type WebsocketDialer struct {
	Dialer *websocket.Dialer
}

// Dial implements Dialer.
func (d WebsocketDialer) Dial(ctx context.Context, rawURL string, header http.Header) (Conn, error) {
	wd := d.Dialer
	if wd == nil {
		wd = websocket.DefaultDialer
	}
	conn, resp, err := wd.DialContext(ctx, rawURL, header)
	if err != nil {
		if errors.Is(err, websocket.ErrBadHandshake) && resp != nil {
			return nil, fmt.Errorf("websocket handshake: http %d", resp.StatusCode)
		}
		return nil, err
	}
	return conn, nil
}

// Timer is a cancellable handle for a scheduled callback.
type Timer interface {
	// Stop prevents the callback from firing. It returns false if the
	// callback already fired or was already stopped.
	Stop() bool
}

// Scheduler runs deferred callbacks.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// TaskURL builds the websocket URL for a task.
//
// With global=false the per-task endpoint /ws/tasks/{id} is used, otherwise the
// shared endpoint /ws?task_id={id}. http and https bases are rewritten to ws
// and wss.
func TaskURL(base, taskID string, global bool) (string, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", fmt.Errorf("invalid websocket base url %q: %w", base, err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported websocket scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("websocket base url %q has no host", base)
	}

	prefix := strings.TrimSuffix(u.Path, "/")
	if global {
		u.Path = prefix + "/ws"
		q := u.Query()
		q.Set("task_id", taskID)
		u.RawQuery = q.Encode()
	} else {
		u.Path = prefix + "/ws/tasks/" + taskID
		u.RawPath = ""
	}
	return u.String(), nil
}
