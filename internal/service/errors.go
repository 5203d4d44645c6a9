package service

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadySubmitted = errors.New("service: submission already exists for owner")
	ErrNotAwaitingInput = errors.New("service: submission is not accepting input")
	ErrSessionEnded     = errors.New("service: session ended")
)

// TransportMessage is shown to users for any backend failure.
const TransportMessage = "Failed to submit track. Please try again."

// TransportError wraps a storage or document store failure.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// UserMessage is the text the presentation layer shows for err.
func UserMessage(err error) string {
	var verr *ValidationError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &verr):
		return verr.Error()
	case errors.Is(err, ErrAlreadySubmitted):
		return "You have already submitted a track"
	case errors.Is(err, ErrSessionEnded):
		return "Your session has ended. Please sign in again"
	case errors.Is(err, ErrNotAwaitingInput):
		return "A submission is already in progress"
	default:
		return TransportMessage
	}
}
