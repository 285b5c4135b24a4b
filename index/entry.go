package index

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/meigma/gitdb/internal/fsutil"
	"github.com/meigma/gitdb/object"
)

// Flag word layout: assume-valid bit, update-needed bit, a 2-bit merge
// stage, and the name length clamped to 12 bits.
const (
	flagAssumeValid  = 0x8000
	flagUpdateNeeded = 0x4000
	stageMask        = 0x3000
	stageShift       = 12
	nameMask         = 0x0FFF
)

// entryFixedLen is the byte length of an entry record before the name.
const entryFixedLen = 62

// Entry is a single index record: a working-tree path, the blob it was
// last hashed to, and the stat cache used to detect modification without
// re-reading content.
type Entry struct {
	// ctime and mtime are kept in nanoseconds and serialized as two
	// 32-bit words each.
	ctime int64
	mtime int64

	dev  uint32
	ino  uint32
	mode uint32
	uid  uint32
	gid  uint32

	// size is widened internally; the wire format truncates it to 32 bits.
	size int64

	id    object.ID
	flags uint16
	name  []byte

	idx *Index
}

// newEntryFromFile builds an entry for a file being added from the working
// tree. The blob is written to the repository as part of construction.
func newEntryFromFile(idx *Index, key []byte, file string, stage int) (*Entry, error) {
	e := &Entry{idx: idx, name: key}
	e.flags = makeFlags(stage, len(key))
	if err := e.refresh(file); err != nil {
		return nil, err
	}
	return e, nil
}

// refresh captures stat data from file and rewrites the blob, updating the
// entry in place.
func (e *Entry) refresh(file string) error {
	fi, err := os.Stat(file)
	if err != nil {
		return err
	}
	mt := fi.ModTime().UnixNano()
	e.ctime = mt
	e.mtime = mt
	e.dev, e.ino, e.uid, e.gid = fsutil.FileID(fi)
	if e.idx.repo.FileModeTracked() && fsutil.CanExecute(file) {
		e.mode = object.ModeExecutable.Bits()
	} else {
		e.mode = object.ModeRegular.Bits()
	}
	e.size = fi.Size()
	id, err := e.idx.repo.WriteBlob(file)
	if err != nil {
		return err
	}
	e.id = id
	return nil
}

// update refreshes the stat cache from file and re-hashes the content when
// the cached mtime, size, or mode no longer match. It reports whether
// anything changed.
func (e *Entry) update(file string) (bool, error) {
	fi, err := os.Stat(file)
	if err != nil {
		return false, err
	}
	modified := false
	mt := fi.ModTime().UnixNano()
	if e.mtime != mt {
		modified = true
	}
	e.mtime = mt
	if e.size != fi.Size() {
		modified = true
	}
	if e.idx.repo.FileModeTracked() {
		canExec := fsutil.CanExecute(file)
		if canExec != object.ModeExecutable.Matches(e.mode) {
			if canExec {
				e.mode = object.ModeExecutable.Bits()
			} else {
				e.mode = object.ModeRegular.Bits()
			}
			modified = true
		}
	}
	if modified {
		e.size = fi.Size()
		id, err := e.idx.repo.WriteBlob(file)
		if err != nil {
			return false, err
		}
		e.id = id
	}
	return modified, nil
}

// parseEntry decodes one record starting at data[off]. It returns the
// entry and the offset of the next record.
func parseEntry(idx *Index, data []byte, off int) (*Entry, int, error) {
	if off+entryFixedLen > len(data) {
		return nil, 0, &object.CorruptObjectError{Reason: "truncated index entry"}
	}
	e := &Entry{idx: idx}
	be := binary.BigEndian
	e.ctime = int64(be.Uint32(data[off:]))*1e9 + int64(be.Uint32(data[off+4:]))
	e.mtime = int64(be.Uint32(data[off+8:]))*1e9 + int64(be.Uint32(data[off+12:]))
	e.dev = be.Uint32(data[off+16:])
	e.ino = be.Uint32(data[off+20:])
	e.mode = be.Uint32(data[off+24:])
	e.uid = be.Uint32(data[off+28:])
	e.gid = be.Uint32(data[off+32:])
	e.size = int64(be.Uint32(data[off+36:]))
	e.id = object.IDFromRaw(data[off+40:])
	e.flags = be.Uint16(data[off+60:])

	nameLen := int(e.flags & nameMask)
	if off+entryFixedLen+nameLen > len(data) {
		return nil, 0, &object.CorruptObjectError{Reason: "truncated index entry name"}
	}
	e.name = append([]byte(nil), data[off+entryFixedLen:off+entryFixedLen+nameLen]...)

	next := off + alignedLen(nameLen)
	if next > len(data) {
		return nil, 0, &object.CorruptObjectError{Reason: "truncated index entry padding"}
	}
	return e, next, nil
}

// appendEntry serializes the record, zero-padded to the 8-byte boundary.
func (e *Entry) appendEntry(buf []byte) []byte {
	start := len(buf)
	be := binary.BigEndian
	buf = be.AppendUint32(buf, uint32(e.ctime/1e9))
	buf = be.AppendUint32(buf, uint32(e.ctime%1e9))
	buf = be.AppendUint32(buf, uint32(e.mtime/1e9))
	buf = be.AppendUint32(buf, uint32(e.mtime%1e9))
	buf = be.AppendUint32(buf, e.dev)
	buf = be.AppendUint32(buf, e.ino)
	buf = be.AppendUint32(buf, e.mode)
	buf = be.AppendUint32(buf, e.uid)
	buf = be.AppendUint32(buf, e.gid)
	buf = be.AppendUint32(buf, uint32(e.size))
	buf = append(buf, e.id[:]...)
	buf = be.AppendUint16(buf, e.flags)
	buf = append(buf, e.name...)
	for len(buf)-start < alignedLen(len(e.name)) {
		buf = append(buf, 0)
	}
	return buf
}

// alignedLen is the on-disk record length for a name of the given length:
// the fixed fields, the name, and at least one NUL terminator, rounded up
// to a multiple of 8 bytes.
func alignedLen(nameLen int) int {
	return (entryFixedLen + nameLen + 8) &^ 7
}

func makeFlags(stage, nameLen int) uint16 {
	if nameLen > nameMask {
		nameLen = nameMask
	}
	return uint16(stage<<stageShift) | uint16(nameLen)
}

// Name returns the entry's workdir-relative '/'-separated path.
func (e *Entry) Name() string { return string(e.name) }

// NameBytes returns the raw path key. The slice must not be mutated.
func (e *Entry) NameBytes() []byte { return e.name }

// ObjectID returns the blob id recorded for the path.
func (e *Entry) ObjectID() object.ID { return e.id }

// Stage returns the entry's merge stage: 0 merged, 1 base, 2 ours,
// 3 theirs.
func (e *Entry) Stage() int { return int(e.flags&stageMask) >> stageShift }

// Size returns the cached file size.
func (e *Entry) Size() int64 { return e.size }

// ModeBits returns the raw cached mode word.
func (e *Entry) ModeBits() uint32 { return e.mode }

// IsAssumedValid reports whether tools should skip filesystem probes for
// this entry.
func (e *Entry) IsAssumedValid() bool { return e.flags&flagAssumeValid != 0 }

// SetAssumeValid sets or clears the assume-valid bit.
func (e *Entry) SetAssumeValid(on bool) {
	if on {
		e.flags |= flagAssumeValid
	} else {
		e.flags &^= flagAssumeValid
	}
}

// IsUpdateNeeded reports whether the entry is marked for re-checking.
func (e *Entry) IsUpdateNeeded() bool { return e.flags&flagUpdateNeeded != 0 }

// SetUpdateNeeded sets or clears the update-needed bit.
func (e *Entry) SetUpdateNeeded(on bool) {
	if on {
		e.flags |= flagUpdateNeeded
	} else {
		e.flags &^= flagUpdateNeeded
	}
}

// IsModified reports whether the working-tree file at workDir/name most
// likely differs from the indexed blob.
//
// The decision ladder: the assume-valid bit wins, then the update-needed
// bit, then file existence, mode coherence, size, and finally the mtime
// comparison. When the cached mtime carries no sub-second component the
// filesystem mtime is rounded to whole seconds first, so indexes written
// on seconds-only filesystems do not flag everything. An mtime mismatch is
// conservatively treated as modified unless forceContentCheck re-hashes
// the content.
func (e *Entry) IsModified(workDir string, forceContentCheck bool) (bool, error) {
	if e.IsAssumedValid() {
		return false, nil
	}
	if e.IsUpdateNeeded() {
		return true, nil
	}

	file := filepath.Join(workDir, filepath.FromSlash(e.Name()))
	fi, err := os.Stat(file)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, err
	}

	tracked := e.idx.repo.FileModeTracked()
	switch {
	case tracked && object.ModeExecutable.Matches(e.mode):
		if fsutil.SupportsExecute() && !fsutil.CanExecute(file) {
			return true, nil
		}
	case object.ModeRegular.Matches(e.mode &^ execDiffBits):
		if !fi.Mode().IsRegular() {
			return true, nil
		}
		if tracked && fsutil.SupportsExecute() && fsutil.CanExecute(file) {
			return true, nil
		}
	case object.ModeSymlink.Matches(e.mode):
		return true, nil
	case object.ModeTree.Matches(e.mode):
		if !fi.IsDir() {
			return true, nil
		}
	default:
		return true, nil
	}

	if fi.Size() != e.size {
		return true, nil
	}

	fsMtime := fi.ModTime().UnixNano()
	if e.mtime%1e9 == 0 {
		fsMtime -= fsMtime % 1e9
	}
	if fsMtime != e.mtime {
		if !forceContentCheck {
			return true, nil
		}
		f, err := os.Open(file)
		if err != nil {
			return false, err
		}
		defer f.Close()
		id, err := e.idx.repo.HashBlob(fi.Size(), f)
		if err != nil {
			return false, err
		}
		return id != e.id, nil
	}
	return false, nil
}

// execDiffBits is the bit distance between the two file modes, used to
// fold executable files into the regular-file coherence check.
const execDiffBits = uint32(object.ModeExecutable ^ object.ModeRegular)

// forceRecheck invalidates the cached mtime so the next IsModified call
// sees an mtime mismatch: it reports modified, or compares content when
// forceContentCheck is set.
func (e *Entry) forceRecheck() { e.mtime = -1 }

func (e *Entry) String() string {
	return fmt.Sprintf("%s/SHA-1(%s)/m%o/s%d/f%x/@%d",
		e.Name(), e.id, e.mode, e.size, e.flags, e.Stage())
}
