// Package fsutil wraps the platform-dependent filesystem probes the object
// database needs: executable-bit support, stat identity fields, and
// workdir-relative path normalization.
package fsutil

import (
	"fmt"
	"path/filepath"
	"strings"
)

// StripWorkDir returns the path of file relative to workDir in '/'-form.
// file must be inside workDir.
func StripWorkDir(workDir, file string) (string, error) {
	rel, err := filepath.Rel(workDir, file)
	if err != nil {
		return "", fmt.Errorf("gitdb: %q is not in work dir %q: %w", file, workDir, err)
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("gitdb: %q is not in work dir %q", file, workDir)
	}
	return rel, nil
}

// ToSlash normalizes path separators in b to '/'. On POSIX this is a no-op.
func ToSlash(b []byte) []byte {
	if filepath.Separator == '/' {
		return b
	}
	return []byte(strings.ReplaceAll(string(b), string(filepath.Separator), "/"))
}
