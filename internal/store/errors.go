package store

import "errors"

// ErrUnavailable is returned when the backing directory is unwritable.
// It is the only fatal error class in the system:
// callers propagate it up; the request surface reports it as a 5xx-equivalent.
var ErrUnavailable = errors.New("store: unavailable")

// ErrNotFound is returned when an operation references a strand, goal,
// or task id that does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrConflict is returned when a mutation would violate one of the
// document invariants (see Invariants in invariants.go).
var ErrConflict = errors.New("store: conflict")
