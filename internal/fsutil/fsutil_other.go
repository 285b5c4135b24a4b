//go:build !unix

package fsutil

import "io/fs"

// SupportsExecute reports whether the filesystem records an executable bit.
func SupportsExecute() bool { return false }

// CanExecute reports whether the file at path carries an executable bit.
func CanExecute(path string) bool { return false }

// SetExecute adds or removes the executable bits. It is a no-op on
// platforms without one.
func SetExecute(path string, on bool) error { return nil }

// FileID extracts the stat identity fields recorded in the index.
func FileID(info fs.FileInfo) (dev, ino, uid, gid uint32) {
	return 0, 0, 0, 0
}
