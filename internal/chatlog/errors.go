package chatlog

import (
	"errors"
	"fmt"
)

// Decode stages, outermost first.
const (
	StageBase64 = "base64"
	StageUTF8   = "utf8"
	StageJSON   = "json"
	StageSchema = "schema"
)

// DecodeError reports which stage of content decoding failed.
type DecodeError struct {
	Stage string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Stage, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}
