package fsutil

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestStripWorkDir(t *testing.T) {
	t.Parallel()

	wd := filepath.Join(string(filepath.Separator), "work", "repo")
	got, err := StripWorkDir(wd, filepath.Join(wd, "a", "b.txt"))
	if err != nil {
		t.Fatalf("StripWorkDir() error = %v", err)
	}
	if got != "a/b.txt" {
		t.Fatalf("StripWorkDir() = %q, want %q", got, "a/b.txt")
	}

	if _, err := StripWorkDir(wd, filepath.Join(string(filepath.Separator), "elsewhere", "c")); err == nil {
		t.Fatal("StripWorkDir() accepted a path outside the work dir")
	}
}

func TestSetExecute(t *testing.T) {
	t.Parallel()

	if !SupportsExecute() {
		t.Skip("filesystem does not track an executable bit")
	}

	path := filepath.Join(t.TempDir(), "script")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if CanExecute(path) {
		t.Fatal("fresh 0644 file reported executable")
	}
	if err := SetExecute(path, true); err != nil {
		t.Fatalf("SetExecute(true) error = %v", err)
	}
	if !CanExecute(path) {
		t.Fatal("CanExecute() = false after SetExecute(true)")
	}
	if err := SetExecute(path, false); err != nil {
		t.Fatalf("SetExecute(false) error = %v", err)
	}
	if CanExecute(path) {
		t.Fatal("CanExecute() = true after SetExecute(false)")
	}
}

func TestFileID(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "f")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	fi, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	_, ino, _, _ := FileID(fi)
	if runtime.GOOS == "linux" && ino == 0 {
		t.Fatal("FileID() inode = 0 on linux")
	}
}
