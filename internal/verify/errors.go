package verify

import (
	"errors"
	"fmt"
	"strings"
)

// Violation is one append-only or proof check that failed.
type Violation struct {
	Index     int
	MessageID string
	Reason    string
}

func (v Violation) String() string {
	if v.MessageID == "" {
		return fmt.Sprintf("#%d: %s", v.Index, v.Reason)
	}
	return fmt.Sprintf("#%d %s: %s", v.Index, v.MessageID, v.Reason)
}

// IntegrityError reports that the remote log or the local journal no
// longer matches what was appended.
type IntegrityError struct {
	Scope      string
	Violations []Violation
}

func (e *IntegrityError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.String())
	}
	return fmt.Sprintf("INTEGRITY VIOLATION in %s: %d problem(s): %s",
		e.Scope, len(e.Violations), strings.Join(parts, "; "))
}

func NewIntegrityError(scope string, violations []Violation) *IntegrityError {
	return &IntegrityError{
		Scope:      scope,
		Violations: violations,
	}
}

func IsIntegrityError(err error) bool {
	var ie *IntegrityError
	return errors.As(err, &ie)
}

func AsIntegrityError(err error) *IntegrityError {
	var ie *IntegrityError
	if errors.As(err, &ie) {
		return ie
	}
	return nil
}
