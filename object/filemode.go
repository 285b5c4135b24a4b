package object

import "strconv"

// FileMode is the POSIX-like mode recorded for a tree entry or index entry.
//
// Only the enumerated values are meaningful; the four other than
// ModeMissing are the modes a tree object may carry. When reading
// an index, mode words may carry stray permission bits; Matches extracts
// the kind and ignores the rest.
type FileMode uint32

const (
	// ModeMissing marks an entry with no recorded mode.
	ModeMissing FileMode = 0

	// ModeTree is a directory entry.
	ModeTree FileMode = 0o040000

	// ModeRegular is a non-executable file.
	ModeRegular FileMode = 0o100644

	// ModeExecutable is an executable file.
	ModeExecutable FileMode = 0o100755

	// ModeSymlink is a symbolic link.
	ModeSymlink FileMode = 0o120000
)

// typeMask extracts the object-kind nibble from a mode word.
const typeMask = 0o170000

// Matches reports whether bits carries this mode's kind.
//
// Regular and executable files compare the full bit pattern so the two can
// be told apart. Trees and symlinks compare only the kind bits, since index
// files in the wild carry junk in the low bits for those entries.
func (m FileMode) Matches(bits uint32) bool {
	switch m {
	case ModeMissing:
		return bits == 0
	case ModeRegular, ModeExecutable:
		return bits == uint32(m)
	default:
		return bits&typeMask == uint32(m)
	}
}

// Bits returns the raw mode word.
func (m FileMode) Bits() uint32 {
	return uint32(m)
}

// Octal returns the wire representation: ASCII octal without leading zeros.
func (m FileMode) Octal() []byte {
	return strconv.AppendUint(nil, uint64(m), 8)
}

// ParseMode interprets a mode word parsed from a tree object. The second
// return is false for any value outside the four wire modes.
func ParseMode(bits uint32) (FileMode, bool) {
	switch FileMode(bits) {
	case ModeTree, ModeRegular, ModeExecutable, ModeSymlink:
		return FileMode(bits), true
	}
	return ModeMissing, false
}

// String renders the mode as zero-padded octal, matching ls-tree output.
func (m FileMode) String() string {
	s := strconv.FormatUint(uint64(m), 8)
	for len(s) < 6 {
		s = "0" + s
	}
	return s
}
