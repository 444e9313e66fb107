// Package event defines the closed set of real-time events the backend pushes
// for a task and decodes their wire envelope.
//
// Every server frame is a JSON envelope {type, timestamp, data}. The type is
// mapped onto Kind; frames with any other type are rejected by Parse so
// dispatch stays statically checkable.
package event

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Kind identifies the type of a channel event.
type Kind int

const (
	// StepStarted signals the backend began a plan step.
	StepStarted Kind = iota
	// StepComplete signals a plan step finished (successfully or not).
	StepComplete
	// ConfirmationNeeded asks the user to approve an action.
	ConfirmationNeeded
	// TaskComplete carries the final task status.
	TaskComplete
	// Error reports a task-level failure.
	Error
	// Keepalive is the server's reply to a client ping.
	Keepalive
)

// Kinds lists every event kind in declaration order.
var Kinds = []Kind{StepStarted, StepComplete, ConfirmationNeeded, TaskComplete, Error, Keepalive}

var wireNames = map[Kind]string{
	StepStarted:        "step_started",
	StepComplete:       "step_complete",
	ConfirmationNeeded: "confirmation_needed",
	TaskComplete:       "task_complete",
	Error:              "error",
	Keepalive:          "pong",
}

// String returns the wire name of the kind.
func (k Kind) String() string {
	if name, ok := wireNames[k]; ok {
		return name
	}
	return "unknown(" + strconv.Itoa(int(k)) + ")"
}

// ParseKind maps a wire name onto a Kind.
func ParseKind(s string) (Kind, error) {
	for k, name := range wireNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown event type %q", s)
}

// ErrMalformed is wrapped by every Parse failure.
var ErrMalformed = errors.New("malformed event")

// Event is a decoded server frame.
type Event struct {
	Kind      Kind
	Timestamp time.Time
	Data      json.RawMessage
}

type envelope struct {
	Type      string          `json:"type"`
	Timestamp json.RawMessage `json:"timestamp,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Parse decodes a raw frame into an Event.
func Parse(raw []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return Event{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}

	kind, err := ParseKind(env.Type)
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	ts, err := parseTimestamp(env.Timestamp)
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	return Event{Kind: kind, Timestamp: ts, Data: env.Data}, nil
}

// parseTimestamp accepts an RFC3339 string, unix seconds, or nothing.
func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}, nil
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, err
		}
		if s == "" {
			return time.Time{}, nil
		}
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999"} {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts, nil
			}
		}
		return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
	}

	var secs float64
	if err := json.Unmarshal(raw, &secs); err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %s", string(raw))
	}
	whole := int64(secs)
	nanos := int64((secs - float64(whole)) * float64(time.Second))
	return time.Unix(whole, nanos).UTC(), nil
}

// Decode unmarshals the event payload into v. An empty payload leaves v untouched.
func (e Event) Decode(v any) error {
	if len(e.Data) == 0 || string(e.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Kind, err)
	}
	return nil
}

// Fingerprint returns a stable identity for duplicate suppression.
func (e Event) Fingerprint() string {
	sum := sha256.Sum256(e.Data)
	return e.Kind.String() + "|" + strconv.FormatInt(e.Timestamp.UnixNano(), 10) + "|" + hex.EncodeToString(sum[:8])
}
