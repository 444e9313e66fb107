package api

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is returned when a request fails after all attempts.
type Error struct {
	Method string
	Path   string
	// StatusCode is the last HTTP status observed, or 0 if no response arrived.
	StatusCode int
	// Message is the backend's error detail when the body carried one.
	Message  string
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s failed after %d attempt(s)", e.Method, e.Path, e.Attempts)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": http %d", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusCode extracts the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}

// statusError is a single non-2xx response.
type statusError struct {
	code    int
	message string
}

func (e *statusError) Error() string {
	if e.message != "" {
		return fmt.Sprintf("http %d: %s", e.code, e.message)
	}
	return fmt.Sprintf("http %d", e.code)
}
