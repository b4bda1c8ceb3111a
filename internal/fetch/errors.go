package fetch

import (
	"errors"
	"fmt"
)

// Kind classifies a fetch failure.
type Kind string

const (
	// KindNetwork is a transport failure or a non-success status.
	KindNetwork Kind = "network"
	// KindTimeout is a request that exceeded the configured deadline.
	KindTimeout Kind = "timeout"
)

var (
	// ErrNetwork matches every *Error of KindNetwork via errors.Is.
	ErrNetwork = errors.New("network error")
	// ErrTimeout matches every *Error of KindTimeout via errors.Is.
	ErrTimeout = errors.New("fetch timeout")
)

// Error is a failed fetch.
type Error struct {
	Kind   Kind
	URL    string
	Status int // HTTP status, 0 when no response was received
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("fetch %s: %s: status %d", e.URL, e.Kind, e.Status)
	default:
		return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNetwork:
		return e.Kind == KindNetwork
	case ErrTimeout:
		return e.Kind == KindTimeout
	}
	return false
}
