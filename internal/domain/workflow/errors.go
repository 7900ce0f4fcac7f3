package workflow

import "errors"

var (
	// ErrInvalidTransition is returned when a state transition is not in the table
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrTerminalStatus is returned when a transition starts from a terminal status
	ErrTerminalStatus = errors.New("record is in a terminal status")

	// ErrInvalidState is returned when a status is not part of the table
	ErrInvalidState = errors.New("invalid state")

	// ErrPermissionDenied is returned when the caller's role or relationship to
	// the record does not allow the operation
	ErrPermissionDenied = errors.New("permission denied")
)
