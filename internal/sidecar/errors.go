package sidecar

import (
	"errors"
	"fmt"
)

var (
	// ErrUnavailable indicates the engine binary is missing or unusable;
	// callers should fall back to another transcription path, not retry.
	ErrUnavailable = errors.New("transcription engine unavailable")

	// ErrProcessTerminated indicates the engine exited while a request was
	// outstanding. The client respawns the process on next use.
	ErrProcessTerminated = errors.New("engine process terminated")

	// ErrInvalidResponse indicates a malformed or out-of-order engine
	// response.
	ErrInvalidResponse = errors.New("invalid engine response")

	// ErrBusy indicates a request was rejected because another request is
	// already in flight on the same process.
	ErrBusy = errors.New("engine busy with another request")
)

// BackendError is a domain failure reported by the engine itself, surfaced
// to the caller verbatim.
type BackendError struct {
	Code    string
	Message string
	Details map[string]any
}

func (e *BackendError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("engine error: %s", e.Message)
	}
	return fmt.Sprintf("engine error %s: %s", e.Code, e.Message)
}
