package tree

import (
	"bytes"
	"errors"
	"fmt"
	"slices"

	"github.com/meigma/gitdb/object"
)

// Tree is a directory snapshot: an ordered set of entries sorted in git
// tree order (see compareNames).
//
// A Tree with a known id and no children is unloaded; it hydrates from its
// Source the first time the children are needed. A Tree is modified exactly
// when its id is absent, and any structural change below it invalidates the
// ids of every ancestor.
type Tree struct {
	base
	src      Source
	contents []Entry
	loaded   bool
}

// New creates an empty root tree. An empty tree is loaded and modified:
// its content is novel and has never been written.
func New(src Source) *Tree {
	return &Tree{src: src, loaded: true}
}

// NewWithID creates an unloaded root tree bound to an existing tree object.
// The children are read from src on first access.
func NewWithID(src Source, id object.ID) *Tree {
	return &Tree{base: base{id: id}, src: src}
}

// Decode creates a loaded root tree from raw tree object bytes.
func Decode(src Source, id object.ID, raw []byte) (*Tree, error) {
	t := &Tree{base: base{id: id}, src: src}
	if err := t.decode(raw); err != nil {
		return nil, err
	}
	return t, nil
}

// Mode returns ModeTree.
func (t *Tree) Mode() object.FileMode { return object.ModeTree }

// Source returns the object source this tree hydrates from.
func (t *Tree) Source() Source { return t.src }

// IsRoot reports whether this tree has no parent.
func (t *Tree) IsRoot() bool { return t.parent == nil }

// IsLoaded reports whether the children are in memory.
func (t *Tree) IsLoaded() bool { return t.loaded }

// Unload drops the in-memory children. Only a clean tree may be unloaded;
// a modified tree has state that exists nowhere else.
func (t *Tree) Unload() error {
	if t.IsModified() {
		return errors.New("gitdb: cannot unload a modified tree")
	}
	t.contents = nil
	t.loaded = false
	return nil
}

// MemberCount returns the number of direct children.
func (t *Tree) MemberCount() (int, error) {
	if err := t.ensureLoaded(); err != nil {
		return 0, err
	}
	return len(t.contents), nil
}

// Members returns the direct children in git tree order. The returned
// slice is a copy; mutating it does not affect the tree.
func (t *Tree) Members() ([]Entry, error) {
	if err := t.ensureLoaded(); err != nil {
		return nil, err
	}
	return slices.Clone(t.contents), nil
}

// AddFile adds a file at the '/'-separated path, creating intermediate
// trees as needed. Colliding with an existing file or symlink of the same
// name returns an EntryExistsError. A tree of the same name is a distinct
// key in git tree order, so the file is added beside it.
func (t *Tree) AddFile(path string) (*FileEntry, error) {
	return t.addFile([]byte(path), 0)
}

func (t *Tree) addFile(s []byte, offset int) (*FileEntry, error) {
	slash := offset
	for slash < len(s) && s[slash] != '/' {
		slash++
	}

	if err := t.ensureLoaded(); err != nil {
		return nil, err
	}
	xlast := 0
	if slash < len(s) {
		xlast = '/'
	}
	p := search(t.contents, s, xlast, offset, slash)
	if p >= 0 && slash < len(s) {
		if sub, ok := t.contents[p].(*Tree); ok {
			return sub.addFile(s, slash+1)
		}
	}

	name := slices.Clone(s[offset:slash])
	if len(name) == 0 {
		return nil, errors.New("gitdb: empty path component")
	}
	if p >= 0 {
		return nil, &EntryExistsError{Name: string(name)}
	}
	if slash < len(s) {
		sub := &Tree{base: base{parent: t, name: name}, src: t.src, loaded: true}
		t.insert(p, sub)
		return sub.addFile(s, slash+1)
	}
	f := &FileEntry{base: base{parent: t, name: name}}
	t.insert(p, f)
	return f, nil
}

// AddTree adds a subtree at the '/'-separated path, creating intermediate
// trees as needed. Adding a tree that already exists returns the existing
// tree. A file or symlink of the same name is a distinct key in git tree
// order, so the tree is added beside it rather than failing.
func (t *Tree) AddTree(path string) (*Tree, error) {
	return t.addTree([]byte(path), 0)
}

func (t *Tree) addTree(s []byte, offset int) (*Tree, error) {
	slash := offset
	for slash < len(s) && s[slash] != '/' {
		slash++
	}

	if err := t.ensureLoaded(); err != nil {
		return nil, err
	}
	p := search(t.contents, s, '/', offset, slash)
	if p >= 0 {
		sub, ok := t.contents[p].(*Tree)
		if !ok {
			return nil, &EntryExistsError{Name: string(s[offset:slash])}
		}
		if slash == len(s) {
			return sub, nil
		}
		return sub.addTree(s, slash+1)
	}

	name := slices.Clone(s[offset:slash])
	if len(name) == 0 {
		return nil, errors.New("gitdb: empty path component")
	}
	sub := &Tree{base: base{parent: t, name: name}, src: t.src, loaded: true}
	t.insert(p, sub)
	if slash == len(s) {
		return sub, nil
	}
	return sub.addTree(s, slash+1)
}

// AddEntry attaches a detached entry to this tree. The name must not
// collide with an existing member.
func (t *Tree) AddEntry(e Entry) error {
	if err := t.ensureLoaded(); err != nil {
		return err
	}
	name := e.Name()
	if len(name) == 0 || bytes.IndexByte(name, '/') >= 0 || bytes.IndexByte(name, 0) >= 0 {
		return fmt.Errorf("gitdb: invalid entry name %q", name)
	}
	p := search(t.contents, name, lastChar(e), 0, len(name))
	if p >= 0 {
		return &EntryExistsError{Name: string(name)}
	}
	e.attach(t)
	t.insert(p, e)
	return nil
}

// Remove detaches a direct child, clearing its parent pointer. It reports
// whether the entry was a member of this tree.
func (t *Tree) Remove(e Entry) bool {
	if !t.loaded {
		return false
	}
	p := search(t.contents, e.Name(), lastChar(e), 0, len(e.Name()))
	if p < 0 || t.contents[p] != e {
		return false
	}
	t.contents = slices.Delete(t.contents, p, p+1)
	e.detach()
	t.SetModified()
	return true
}

// FindBlob returns the blob or symlink entry at the '/'-separated path,
// or nil when no such entry exists.
func (t *Tree) FindBlob(path string) (Entry, error) {
	return t.findMember([]byte(path), 0, 0)
}

// FindTree returns the tree entry at the '/'-separated path, or nil when
// no such entry exists.
func (t *Tree) FindTree(path string) (Entry, error) {
	return t.findMember([]byte(path), '/', 0)
}

// ExistsBlob reports whether a blob or symlink exists at path.
func (t *Tree) ExistsBlob(path string) (bool, error) {
	e, err := t.FindBlob(path)
	return e != nil, err
}

// ExistsTree reports whether a tree exists at path.
func (t *Tree) ExistsTree(path string) (bool, error) {
	e, err := t.FindTree(path)
	return e != nil, err
}

func (t *Tree) findMember(s []byte, slast, offset int) (Entry, error) {
	slash := offset
	for slash < len(s) && s[slash] != '/' {
		slash++
	}

	if err := t.ensureLoaded(); err != nil {
		return nil, err
	}
	xlast := slast
	if slash < len(s) {
		xlast = '/'
	}
	p := search(t.contents, s, xlast, offset, slash)
	if p < 0 {
		return nil, nil
	}
	r := t.contents[p]
	if slash < len(s)-1 {
		sub, ok := r.(*Tree)
		if !ok {
			return nil, nil
		}
		return sub.findMember(s, slast, slash+1)
	}
	return r, nil
}

// Accept walks the visitor over this subtree in pre/post order.
func (t *Tree) Accept(v Visitor, flags int) error {
	if flags&ModifiedOnly != 0 && !t.IsModified() {
		return nil
	}

	if flags&LoadedOnly != 0 && !t.loaded {
		if err := v.StartTree(t); err != nil {
			return err
		}
		return v.EndTree(t)
	}

	if err := t.ensureLoaded(); err != nil {
		return err
	}
	if err := v.StartTree(t); err != nil {
		return err
	}

	c := t.contents
	if flags&ConcurrentModification != 0 {
		c = slices.Clone(c)
	}
	for _, e := range c {
		if err := e.Accept(v, flags); err != nil {
			return err
		}
	}
	return v.EndTree(t)
}

// Encode serializes the tree in wire form: for each child in order, the
// ASCII octal mode, a space, the name bytes, a NUL, and the raw 20-byte id.
// Every child must already have an id.
func (t *Tree) Encode() ([]byte, error) {
	if err := t.ensureLoaded(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	for _, e := range t.contents {
		id := e.ID()
		if id.IsZero() {
			return nil, fmt.Errorf("gitdb: cannot encode tree: entry %q has no object id", e.FullName())
		}
		buf.Write(e.Mode().Octal())
		buf.WriteByte(' ')
		buf.Write(e.Name())
		buf.WriteByte(0)
		buf.Write(id[:])
	}
	return buf.Bytes(), nil
}

func (t *Tree) insert(p int, e Entry) {
	t.contents = slices.Insert(t.contents, -(p + 1), e)
	t.SetModified()
}

func (t *Tree) ensureLoaded() error {
	if t.loaded {
		return nil
	}
	if t.src == nil {
		return &object.MissingObjectError{ID: t.id, Type: object.TypeTree}
	}
	ldr, err := t.src.OpenObject(t.id)
	if err != nil {
		return err
	}
	if ldr == nil {
		return &object.MissingObjectError{ID: t.id, Type: object.TypeTree}
	}
	if ldr.Type() != object.TypeTree {
		return &object.IncorrectTypeError{ID: t.id, Want: object.TypeTree, Got: ldr.Type()}
	}
	return t.decode(ldr.Bytes())
}

func (t *Tree) decode(raw []byte) error {
	corrupt := func(reason string) error {
		return &object.CorruptObjectError{ID: t.id, Reason: reason}
	}

	entries := make([]Entry, 0, 16)
	ptr := 0
	for ptr < len(raw) {
		c := raw[ptr]
		ptr++
		if c < '0' || c > '7' {
			return corrupt("invalid entry mode")
		}
		mode := uint32(c - '0')
		for {
			if ptr >= len(raw) {
				return corrupt("truncated entry mode")
			}
			c = raw[ptr]
			ptr++
			if c == ' ' {
				break
			}
			if c < '0' || c > '7' {
				return corrupt("invalid mode")
			}
			mode = mode<<3 + uint32(c-'0')
		}

		nul := bytes.IndexByte(raw[ptr:], 0)
		if nul < 0 {
			return corrupt("unterminated entry name")
		}
		name := slices.Clone(raw[ptr : ptr+nul])
		ptr += nul + 1

		if ptr+object.IDLength > len(raw) {
			return corrupt("truncated entry id")
		}
		id := object.IDFromRaw(raw[ptr:])
		ptr += object.IDLength

		fm, ok := object.ParseMode(mode)
		if !ok {
			return corrupt(fmt.Sprintf("invalid mode: %o", mode))
		}
		var ent Entry
		switch fm {
		case object.ModeRegular:
			ent = &FileEntry{base: base{parent: t, id: id, name: name}}
		case object.ModeExecutable:
			ent = &FileEntry{base: base{parent: t, id: id, name: name}, executable: true}
		case object.ModeTree:
			ent = &Tree{base: base{parent: t, id: id, name: name}, src: t.src}
		case object.ModeSymlink:
			ent = &SymlinkEntry{base: base{parent: t, id: id, name: name}}
		}
		entries = append(entries, ent)
	}

	t.contents = entries
	t.loaded = true
	return nil
}

func (t *Tree) String() string {
	return t.id.String() + " T " + t.FullName()
}
