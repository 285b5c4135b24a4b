//go:build unix

package fsutil

import (
	"io/fs"
	"os"
	"syscall"
)

// SupportsExecute reports whether the filesystem records an executable bit.
func SupportsExecute() bool { return true }

// CanExecute reports whether the file at path carries an executable bit.
func CanExecute(path string) bool {
	fi, err := os.Stat(path)
	if err != nil {
		return false
	}
	return fi.Mode().Perm()&0o111 != 0
}

// SetExecute adds or removes the owner/group/other executable bits.
func SetExecute(path string, on bool) error {
	fi, err := os.Stat(path)
	if err != nil {
		return err
	}
	perm := fi.Mode().Perm()
	if on {
		// Mirror the read bits into the execute bits.
		perm |= (perm & 0o444) >> 2
	} else {
		perm &^= 0o111
	}
	return os.Chmod(path, perm)
}

// FileID extracts the stat identity fields recorded in the index.
func FileID(info fs.FileInfo) (dev, ino, uid, gid uint32) {
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		return uint32(stat.Dev), uint32(stat.Ino), stat.Uid, stat.Gid
	}
	return 0, 0, 0, 0
}
