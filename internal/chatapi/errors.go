package chatapi

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnauthorized marks a 401 from any call. Callers send the user to login.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRequestFailed marks any other non-2xx status or a transport error.
	ErrRequestFailed = errors.New("request failed")

	// ErrEmptyContent is returned by SendMessage for blank content.
	ErrEmptyContent = errors.New("message content is empty")
)

// RequestError describes a failed call. It matches ErrUnauthorized or
// ErrRequestFailed with errors.Is, and exposes the transport cause if any.
type RequestError struct {
	Method     string
	Path       string
	StatusCode int    // 0 when no response was received
	Message    string // server-provided "message", if any
	Err        error  // transport or decode cause
}

func (e *RequestError) Error() string {
	switch {
	case e.StatusCode == 0 && e.Err != nil:
		return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode))
	}
}

func (e *RequestError) Unwrap() []error {
	kind := ErrRequestFailed
	if e.StatusCode == http.StatusUnauthorized {
		kind = ErrUnauthorized
	}
	if e.Err != nil {
		return []error{kind, e.Err}
	}
	return []error{kind}
}

// IsUnauthorized reports whether err came from a 401 response.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// ServerMessage returns the server-provided message carried by err, or "".
func ServerMessage(err error) string {
	var re *RequestError
	if errors.As(err, &re) {
		return re.Message
	}
	return ""
}
