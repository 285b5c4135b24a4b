package gitdb

import (
	"github.com/meigma/gitdb/index"
	"github.com/meigma/gitdb/object"
	"github.com/meigma/gitdb/tree"
)

// Errors re-exported from the codec packages for callers that only import
// the facade.
var (
	// ErrNotSupported is returned for operations the database refuses by
	// design.
	ErrNotSupported = object.ErrNotSupported

	// ErrIndexLocked is returned when another writer holds the index lock.
	ErrIndexLocked = index.ErrIndexLocked
)

// Error types re-exported from the codec packages.
type (
	// CorruptObjectError is returned when stored bytes cannot be decoded.
	CorruptObjectError = object.CorruptObjectError

	// MissingObjectError is returned when a required object is absent.
	MissingObjectError = object.MissingObjectError

	// IncorrectTypeError is returned when an object's type tag disagrees
	// with the requested kind.
	IncorrectTypeError = object.IncorrectTypeError

	// EntryExistsError is returned when a tree add collides with an
	// existing entry.
	EntryExistsError = tree.EntryExistsError
)
