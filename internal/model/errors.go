package model

import "errors"

var (
	// ErrInvalidInput marks malformed items, fees or messages. It is raised
	// before the budget ledger is touched.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidTransition is returned when the current status does not allow the event.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrForbidden is returned when the actor may not perform the event.
	ErrForbidden = errors.New("forbidden")
)
