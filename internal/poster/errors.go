package poster

import (
	"errors"
	"fmt"
)

// Kind classifies a failed fetch or post.
type Kind int

const (
	KindInvalidInput Kind = iota + 1
	KindTransport
	KindRemoteFetch
	KindDecode
	KindRemoteWrite
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid input"
	case KindTransport:
		return "transport"
	case KindRemoteFetch:
		return "remote fetch"
	case KindDecode:
		return "decode"
	case KindRemoteWrite:
		return "remote write"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is returned by Post and Fetch. Conflict is set when the write was
// rejected because the captured sha was stale.
type Error struct {
	Kind       Kind
	StatusCode int
	Conflict   bool
	Attempts   int
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.Conflict:
		return fmt.Sprintf("%s: stale sha after %d attempt(s): %v", e.Kind, e.Attempts, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: status %d: %v", e.Kind, e.StatusCode, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func AsError(err error) *Error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	return nil
}

func IsKind(err error, kind Kind) bool {
	pe := AsError(err)
	return pe != nil && pe.Kind == kind
}
