package bookings

import "errors"

var (
	// ErrBookingNotFound is returned when a request id resolves to nothing.
	ErrBookingNotFound = errors.New("booking not found")

	// ErrEmptyUpdate is returned when an update carries no mutable field.
	ErrEmptyUpdate = errors.New("no updatable fields supplied")
)
