package session

import (
	"errors"
	"fmt"
)

var (
	ErrNotEntered     = errors.New("session has not entered a room")
	ErrAlreadyEntered = errors.New("session already entered a room")
	ErrClosed         = errors.New("session closed")
	ErrInvalidRoom    = errors.New("room and identity are required")
	ErrDisconnected   = errors.New("relay connection lost")
)

// Error describes which session step failed.
type Error struct {
	Op      string
	Err     error
	Details string
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *Error {
	return &Error{Op: op, Err: err}
}

func WrapError(op string, err error, details string) *Error {
	return &Error{Op: op, Err: err, Details: details}
}
