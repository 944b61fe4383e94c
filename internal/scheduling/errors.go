// Package scheduling computes availability and books appointments without double-booking.
package scheduling

import "errors"

var (
	// ErrSlotUnavailable means the requested start is no longer free. Callers should re-offer slots.
	ErrSlotUnavailable = errors.New("scheduling: slot unavailable")
	// ErrPracticeNotFound is fatal for the request.
	ErrPracticeNotFound = errors.New("scheduling: practice not found")
	// ErrConfigurationMissing means the practice has no usable calendar configuration.
	ErrConfigurationMissing = errors.New("scheduling: calendar configuration missing")
	// ErrInvalidRequest wraps booking input validation failures.
	ErrInvalidRequest = errors.New("scheduling: invalid request")
)
