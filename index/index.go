// Package index implements the staging area: the binary index file that
// bridges the working directory and the object database.
//
// The on-disk format is version 2: a "DIRC" header, big-endian entry
// records aligned to 8 bytes, and a trailing SHA-1 over everything before
// it. Entries are ordered by the unsigned byte values of their path keys.
package index

import (
	"crypto/sha1"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/meigma/gitdb/internal/fsutil"
	"github.com/meigma/gitdb/object"
	"github.com/meigma/gitdb/tree"
)

const (
	indexMagic   = 0x44495243 // "DIRC"
	indexVersion = 2
	headerLen    = 12
)

// ErrIndexLocked is returned when another writer holds the index lock.
var ErrIndexLocked = errors.New("gitdb: index file is in use")

// Repository is the narrow surface the index consumes from the object
// database.
type Repository interface {
	// Dir returns the repository metadata directory. The index lives at
	// Dir()/index.
	Dir() string

	// OpenBlob returns a loader for the blob with the given id.
	OpenBlob(object.ID) (*object.Loader, error)

	// WriteBlob stores the file's content as a blob and returns its id.
	WriteBlob(file string) (object.ID, error)

	// HashBlob computes a blob id over r without storing anything.
	HashBlob(size int64, r io.Reader) (object.ID, error)

	// WriteTree stores the tree and every modified subtree, returning the
	// root id.
	WriteTree(*tree.Tree) (object.ID, error)

	// TreeSource supplies raw objects for tree hydration.
	TreeSource() tree.Source

	// FileModeTracked reports core.filemode: whether the executable bit
	// is tracked and applied.
	FileModeTracked() bool
}

// Index is an in-memory image of the index file. It is not safe for
// concurrent mutation; serialize access externally.
type Index struct {
	repo    Repository
	path    string
	entries map[string]*Entry

	// changed tracks entry additions, removals, and content updates;
	// statDirty tracks refreshed stat data with unchanged content.
	changed   bool
	statDirty bool

	// lastCacheTime is the index file's mtime when it was last read.
	lastCacheTime time.Time
}

// New creates an index bound to repo's index file. The index starts empty;
// call Read to load the on-disk state.
func New(repo Repository) *Index {
	return &Index{
		repo:    repo,
		path:    filepath.Join(repo.Dir(), "index"),
		entries: make(map[string]*Entry),
	}
}

// Path returns the location of the backing index file.
func (x *Index) Path() string { return x.path }

// IsChanged reports whether the in-memory state differs from the file.
func (x *Index) IsChanged() bool { return x.changed || x.statDirty }

// Read loads the index file, replacing the in-memory state. A missing
// file yields an empty index.
func (x *Index) Read() error {
	x.changed = false
	x.statDirty = false

	fi, err := os.Stat(x.path)
	if os.IsNotExist(err) {
		x.entries = make(map[string]*Entry)
		x.lastCacheTime = time.Time{}
		return nil
	}
	if err != nil {
		return err
	}

	data, err := os.ReadFile(x.path)
	if err != nil {
		return err
	}
	if len(data) < headerLen+object.IDLength {
		return &object.CorruptObjectError{Reason: "index file too short"}
	}

	be := binary.BigEndian
	if be.Uint32(data) != indexMagic {
		return &object.CorruptObjectError{Reason: fmt.Sprintf("invalid index signature %#x", be.Uint32(data))}
	}
	if v := be.Uint32(data[4:]); v != indexVersion {
		return &object.CorruptObjectError{Reason: fmt.Sprintf("unknown index version %d", v)}
	}
	count := be.Uint32(data[8:])

	// Extensions between the last entry and the trailing digest (the tree
	// cache among them) are ignored; writing discards them.
	entries := make(map[string]*Entry, count)
	off := headerLen
	for i := uint32(0); i < count; i++ {
		e, next, err := parseEntry(x, data, off)
		if err != nil {
			return err
		}
		entries[string(e.name)] = e
		off = next
	}

	x.entries = entries
	x.lastCacheTime = fi.ModTime()
	return nil
}

// RereadIfNecessary reloads the index when the backing file's mtime
// differs from the one recorded at the last read.
func (x *Index) RereadIfNecessary() error {
	fi, err := os.Stat(x.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if !fi.ModTime().Equal(x.lastCacheTime) {
		return x.Read()
	}
	return nil
}

// Write replaces the index file atomically. The full body is written to
// index.tmp with a streaming SHA-1 appended, then renamed over the index
// while index.lock is held. Writing refuses when any entry carries a
// non-zero merge stage.
//
// A lock file that already exists belongs to another writer and is left
// in place; only a lock this call created is removed.
func (x *Index) Write() error {
	if err := x.checkWriteOK(); err != nil {
		return err
	}

	lockPath := x.path + ".lock"
	tmpPath := x.path + ".tmp"

	lock, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o666)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("%w: %s", ErrIndexLocked, lockPath)
		}
		return err
	}
	lock.Close()
	defer os.Remove(lockPath)
	defer os.Remove(tmpPath)

	if err := x.writeTo(tmpPath); err != nil {
		return err
	}

	if _, err := os.Stat(x.path); err == nil {
		if err := os.Remove(x.path); err != nil {
			return fmt.Errorf("gitdb: could not remove old index: %w", err)
		}
	}
	if err := os.Rename(tmpPath, x.path); err != nil {
		return fmt.Errorf("gitdb: could not rename temporary index: %w", err)
	}

	x.changed = false
	x.statDirty = false
	return nil
}

func (x *Index) writeTo(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o666)
	if err != nil {
		return err
	}
	defer f.Close()

	digest := sha1.New()
	w := io.MultiWriter(f, digest)

	hdr := make([]byte, 0, headerLen)
	hdr = binary.BigEndian.AppendUint32(hdr, indexMagic)
	hdr = binary.BigEndian.AppendUint32(hdr, indexVersion)
	hdr = binary.BigEndian.AppendUint32(hdr, uint32(len(x.entries)))
	if _, err := w.Write(hdr); err != nil {
		return err
	}

	for _, e := range x.Members() {
		if _, err := w.Write(e.appendEntry(nil)); err != nil {
			return err
		}
	}

	if _, err := f.Write(digest.Sum(nil)); err != nil {
		return err
	}
	return f.Close()
}

func (x *Index) checkWriteOK() error {
	for _, e := range x.entries {
		if e.Stage() != 0 {
			return fmt.Errorf("%w: cannot write index with unmerged stages", object.ErrNotSupported)
		}
	}
	return nil
}

// Add stages the file at the given absolute path, keyed by its
// workdir-relative '/'-separated path. An existing entry is refreshed in
// place; a new one captures stat data and writes the blob.
func (x *Index) Add(workDir, file string) (*Entry, error) {
	key, err := makeKey(workDir, file)
	if err != nil {
		return nil, err
	}
	if e, ok := x.entries[string(key)]; ok {
		modified, err := e.update(file)
		if err != nil {
			return nil, err
		}
		if modified {
			x.changed = true
		} else {
			x.statDirty = true
		}
		return e, nil
	}
	e, err := newEntryFromFile(x, key, file, 0)
	if err != nil {
		return nil, err
	}
	x.entries[string(key)] = e
	x.changed = true
	return e, nil
}

// Remove drops the entry for the file's workdir-relative path, reporting
// whether one existed.
func (x *Index) Remove(workDir, file string) bool {
	key, err := makeKey(workDir, file)
	if err != nil {
		return false
	}
	if _, ok := x.entries[string(key)]; !ok {
		return false
	}
	delete(x.entries, string(key))
	x.changed = true
	return true
}

// Entry returns the entry for the '/'-separated path, or nil.
func (x *Index) Entry(path string) *Entry {
	return x.entries[string(fsutil.ToSlash([]byte(path)))]
}

// Members returns all entries in ascending unsigned-byte key order.
func (x *Index) Members() []*Entry {
	keys := make([]string, 0, len(x.entries))
	for k := range x.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*Entry, len(keys))
	for i, k := range keys {
		out[i] = x.entries[k]
	}
	return out
}

// ReadTree adds a stage-0 entry for every blob and symlink reachable from
// t, keyed by full path. Existing entries are kept, except that an entry
// at the same path is replaced.
func (x *Index) ReadTree(t *tree.Tree) error {
	return x.readTree("", t)
}

func (x *Index) readTree(prefix string, t *tree.Tree) error {
	members, err := t.Members()
	if err != nil {
		return err
	}
	for _, te := range members {
		name := string(te.Name())
		if prefix != "" {
			name = prefix + "/" + name
		}
		if sub, ok := te.(*tree.Tree); ok {
			if err := x.readTree(name, sub); err != nil {
				return err
			}
			continue
		}
		if err := x.addTreeEntry(name, te); err != nil {
			return err
		}
	}
	return nil
}

// AddTreeEntry stages a single tree member under its full path.
func (x *Index) AddTreeEntry(te tree.Entry) (*Entry, error) {
	name := te.FullName()
	if err := x.addTreeEntry(name, te); err != nil {
		return nil, err
	}
	return x.entries[name], nil
}

func (x *Index) addTreeEntry(name string, te tree.Entry) error {
	ldr, err := x.repo.OpenBlob(te.ID())
	if err != nil {
		return err
	}
	e := &Entry{
		idx:   x,
		ctime: -1,
		mtime: -1,
		mode:  te.Mode().Bits(),
		size:  ldr.Size(),
		id:    te.ID(),
		name:  []byte(name),
		flags: makeFlags(0, len(name)),
	}
	x.entries[name] = e
	x.changed = true
	return nil
}

// WriteTree materializes the staged entries as tree objects, bottom-up,
// and returns the root tree's id. It refuses when any entry carries a
// non-zero merge stage.
func (x *Index) WriteTree() (object.ID, error) {
	if err := x.checkWriteOK(); err != nil {
		return object.ZeroID, err
	}

	current := tree.New(x.repo.TreeSource())
	stack := []*tree.Tree{current}
	var prev []string

	for _, e := range x.Members() {
		if e.Stage() != 0 {
			continue
		}
		parts := strings.Split(e.Name(), "/")
		c := commonPrefix(prev, parts)

		// Close trees deeper than the shared prefix, writing each as it
		// pops.
		for c < len(stack)-1 {
			id, err := x.repo.WriteTree(current)
			if err != nil {
				return object.ZeroID, err
			}
			current.SetID(id)
			stack = stack[:len(stack)-1]
			current = stack[len(stack)-1]
		}

		// Open the trees leading to this entry's directory.
		for len(stack) < len(parts) {
			sub, err := current.AddTree(parts[len(stack)-1])
			if err != nil {
				return object.ZeroID, err
			}
			current = sub
			stack = append(stack, sub)
		}

		ne := tree.NewFileEntry(
			[]byte(parts[len(parts)-1]),
			e.id,
			object.ModeExecutable.Matches(e.mode),
		)
		if err := current.AddEntry(ne); err != nil {
			return object.ZeroID, err
		}
		prev = parts
	}

	var rootID object.ID
	for len(stack) > 0 {
		id, err := x.repo.WriteTree(current)
		if err != nil {
			return object.ZeroID, err
		}
		current.SetID(id)
		rootID = id
		stack = stack[:len(stack)-1]
		if len(stack) > 0 {
			current = stack[len(stack)-1]
		}
	}
	return rootID, nil
}

// Checkout writes every stage-0 entry's blob into the working directory.
func (x *Index) Checkout(workDir string) error {
	for _, e := range x.Members() {
		if e.Stage() != 0 {
			continue
		}
		if err := x.CheckoutEntry(workDir, e); err != nil {
			return err
		}
	}
	return nil
}

// CheckoutEntry truncate-replaces the entry's working-tree file with the
// indexed blob, applies the executable bit when tracked, and restamps the
// entry's times from the written file so the next status check does not
// flag it.
func (x *Index) CheckoutEntry(workDir string, e *Entry) error {
	ldr, err := x.repo.OpenBlob(e.id)
	if err != nil {
		return err
	}
	file := filepath.Join(workDir, filepath.FromSlash(e.Name()))
	if err := os.MkdirAll(filepath.Dir(file), 0o777); err != nil {
		return err
	}
	if err := os.Remove(file); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.WriteFile(file, ldr.Bytes(), 0o666); err != nil {
		return err
	}
	if x.repo.FileModeTracked() && fsutil.SupportsExecute() {
		wantExec := object.ModeExecutable.Matches(e.mode)
		if fsutil.CanExecute(file) != wantExec {
			if err := fsutil.SetExecute(file, wantExec); err != nil {
				return err
			}
		}
	}
	fi, err := os.Stat(file)
	if err != nil {
		return err
	}
	e.mtime = fi.ModTime().UnixNano()
	e.ctime = e.mtime
	x.statDirty = true
	return nil
}

// VerifyChecksum recomputes the trailing digest of the on-disk index and
// compares it to the stored one.
func (x *Index) VerifyChecksum() error {
	data, err := os.ReadFile(x.path)
	if err != nil {
		return err
	}
	if len(data) < object.IDLength {
		return &object.CorruptObjectError{Reason: "index file too short"}
	}
	body := data[:len(data)-object.IDLength]
	sum := sha1.Sum(body)
	if object.IDFromRaw(data[len(body):]) != object.ID(sum) {
		return &object.CorruptObjectError{Reason: "index checksum mismatch"}
	}
	return nil
}

func makeKey(workDir, file string) ([]byte, error) {
	rel, err := fsutil.StripWorkDir(workDir, file)
	if err != nil {
		return nil, err
	}
	return []byte(rel), nil
}

func commonPrefix(a, b []string) int {
	i := 0
	for i < len(a) && i < len(b) && a[i] == b[i] {
		i++
	}
	return i
}
