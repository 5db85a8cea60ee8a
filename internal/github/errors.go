package github

import (
	"errors"
	"fmt"
	"net/http"
)

// TransportError is a failure below HTTP: DNS, connect, TLS, timeout or a
// truncated response.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("github: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// StatusError is a response with a status the operation does not accept.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("github: %s %s: status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("github: %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// Conflict reports a stale sha on write.
func (e *StatusError) Conflict() bool {
	return e.StatusCode == http.StatusConflict
}

func (e *StatusError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// ResponseError means the server accepted the request but its response
// body could not be read.
type ResponseError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("github: %s: status %d accepted, unreadable response: %v", e.Op, e.StatusCode, e.Err)
}

func (e *ResponseError) Unwrap() error {
	return e.Err
}

func IsConflict(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Conflict()
}

func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsAcceptedUnreadable reports a write that was committed even though its
// response could not be decoded.
func IsAcceptedUnreadable(err error) bool {
	var re *ResponseError
	return errors.As(err, &re)
}
