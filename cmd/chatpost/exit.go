package main

import (
	"fmt"

	"github.com/aichat/chatpost/internal/chatlog"
	"github.com/aichat/chatpost/internal/poster"
	"github.com/aichat/chatpost/internal/verify"
)

const (
	exitOK = iota
	exitError
	exitInvalidInput
	exitTransport
	exitRemoteFetch
	exitDecode
	exitRemoteWrite
	exitIntegrity
)

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	if verify.IsIntegrityError(err) {
		return exitIntegrity
	}
	if pe := poster.AsError(err); pe != nil {
		switch pe.Kind {
		case poster.KindInvalidInput:
			return exitInvalidInput
		case poster.KindTransport:
			return exitTransport
		case poster.KindRemoteFetch:
			return exitRemoteFetch
		case poster.KindDecode:
			return exitDecode
		case poster.KindRemoteWrite:
			return exitRemoteWrite
		}
	}
	if chatlog.IsDecodeError(err) {
		return exitDecode
	}
	return exitError
}

// describe turns err into the one-line message shown to the operator.
func describe(err error) string {
	if verify.IsIntegrityError(err) {
		return fmt.Sprintf("integrity check failed: %v", err)
	}

	pe := poster.AsError(err)
	if pe == nil {
		return err.Error()
	}

	switch pe.Kind {
	case poster.KindInvalidInput:
		return fmt.Sprintf("invalid message: %v", pe.Err)
	case poster.KindTransport:
		return fmt.Sprintf("could not reach remote: %v", pe.Err)
	case poster.KindRemoteFetch:
		return fmt.Sprintf("could not read remote log (status %d): %v", pe.StatusCode, pe.Err)
	case poster.KindDecode:
		return fmt.Sprintf("remote state unreadable: %v", pe.Err)
	case poster.KindRemoteWrite:
		if pe.Conflict {
			return fmt.Sprintf("write rejected: log changed concurrently, gave up after %d attempt(s)", pe.Attempts)
		}
		return fmt.Sprintf("write rejected (status %d): %v", pe.StatusCode, pe.Err)
	default:
		return err.Error()
	}
}
