package object

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the object database.
var (
	// ErrNotSupported is returned for operations the database refuses by
	// design: writing an index with unmerged stages, reserved pack object
	// types, and offset deltas.
	ErrNotSupported = errors.New("gitdb: not supported")
)

// CorruptObjectError is returned when stored bytes cannot be decoded: an
// illegal tree entry mode, a truncated record, a bad index signature, or a
// pack index whose size does not match its object count.
type CorruptObjectError struct {
	ID     ID
	Reason string
}

func (e *CorruptObjectError) Error() string {
	if e.ID.IsZero() {
		return "gitdb: corrupt object: " + e.Reason
	}
	return fmt.Sprintf("gitdb: corrupt object %s: %s", e.ID, e.Reason)
}

// MissingObjectError is returned when a required object is absent from the
// repository.
type MissingObjectError struct {
	ID   ID
	Type string
}

func (e *MissingObjectError) Error() string {
	return fmt.Sprintf("gitdb: missing %s %s", e.Type, e.ID)
}

// IncorrectTypeError is returned when a stored object's type tag disagrees
// with the type the caller asked for.
type IncorrectTypeError struct {
	ID   ID
	Want string
	Got  string
}

func (e *IncorrectTypeError) Error() string {
	return fmt.Sprintf("gitdb: object %s is a %s, not a %s", e.ID, e.Got, e.Want)
}
