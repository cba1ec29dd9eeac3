package textgen

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a failed text generation call.
type Error struct {
	Op         string
	StatusCode int  // 0 when no HTTP response was received
	Transient  bool // network failures, 429 and 5xx; retrying may succeed
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("textgen %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("textgen %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsTransient reports whether err is a text generation failure worth retrying.
func IsTransient(err error) bool {
	var tgErr *Error
	return errors.As(err, &tgErr) && tgErr.Transient
}

// classifyHTTPError determines if an HTTP error is transient or fatal.
func classifyHTTPError(op string, statusCode int, body []byte) *Error {
	bodyStr := string(body)
	if len(bodyStr) > 200 {
		bodyStr = bodyStr[:200] + "..."
	}
	e := &Error{Op: op, StatusCode: statusCode, Err: fmt.Errorf("LLM API error: %s", bodyStr)}

	switch {
	case statusCode == http.StatusTooManyRequests:
		e.Transient = true
	case statusCode >= 500:
		e.Transient = true
	}
	return e
}
