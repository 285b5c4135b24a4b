// Package object defines the identity model shared by every part of the
// object database: the 20-byte content-addressed identifier, the file mode
// enumeration used by trees and the index, raw object loaders, and the
// error types raised when on-disk data does not hold up.
package object

import (
	"bytes"
	"encoding/hex"
	"fmt"
)

// IDLength is the length of a raw object identifier in bytes.
const IDLength = 20

// HexLength is the length of an object identifier in hexadecimal form.
const HexLength = 2 * IDLength

// ID is a content-addressed object identifier.
//
// IDs are immutable values compared byte-wise. The zero ID is distinguished
// and means "absent"; no real object hashes to it.
type ID [IDLength]byte

// ZeroID is the absent identifier.
var ZeroID ID

// ParseID parses a 40-character hexadecimal identifier.
func ParseID(s string) (ID, error) {
	var id ID
	if len(s) != HexLength {
		return ZeroID, fmt.Errorf("gitdb: invalid object id %q: length %d", s, len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return ZeroID, fmt.Errorf("gitdb: invalid object id %q: %w", s, err)
	}
	copy(id[:], b)
	return id, nil
}

// IDFromRaw copies the first 20 bytes of b into an ID.
// It panics if b is shorter than 20 bytes.
func IDFromRaw(b []byte) ID {
	var id ID
	if len(b) < IDLength {
		panic("gitdb: raw object id shorter than 20 bytes")
	}
	copy(id[:], b)
	return id
}

// String returns the identifier as 40 lowercase hexadecimal characters.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// Raw returns the identifier as a fresh 20-byte slice.
func (id ID) Raw() []byte {
	b := make([]byte, IDLength)
	copy(b, id[:])
	return b
}

// IsZero reports whether id is the absent identifier.
func (id ID) IsZero() bool {
	return id == ZeroID
}

// Compare orders identifiers by unsigned lexicographic comparison of their
// raw bytes. It returns -1, 0, or 1.
func (id ID) Compare(other ID) int {
	return bytes.Compare(id[:], other[:])
}

// CompareRaw compares id against a raw 20-byte identifier without copying.
func (id ID) CompareRaw(raw []byte) int {
	return bytes.Compare(id[:], raw)
}
