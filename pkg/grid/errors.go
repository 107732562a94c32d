package grid

import "errors"

var (
	// ErrOutOfBounds is returned when a coordinate lies outside the room's bounds.
	ErrOutOfBounds = errors.New("coordinate out of bounds")
	// ErrRange is returned when a resize exceeds MaxSpan on an axis or is inverted.
	ErrRange = errors.New("grid range too large")
	// ErrBaseOutOfRange is returned when a resize would leave the base outside the grid.
	ErrBaseOutOfRange = errors.New("base outside new range")
	// ErrDestinationNotFound is returned when an into-target does not resolve to a room.
	ErrDestinationNotFound = errors.New("destination not found")
	// ErrNotGrid is returned for rooms that carry no grid.
	ErrNotGrid = errors.New("not a grid room")
)
