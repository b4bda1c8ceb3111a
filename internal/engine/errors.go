package engine

import (
	"errors"
	"fmt"
)

// ErrStopped is returned by engine methods once Run has returned.
var ErrStopped = errors.New("engine stopped")

// SessionError is a failure that ended a buffering session.
type SessionError struct {
	RenditionID string
	SessionID   string
	Segment     int
	Err         error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("rendition %s segment %d: %v", e.RenditionID, e.Segment, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}
