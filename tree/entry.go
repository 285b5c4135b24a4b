// Package tree implements the directory-snapshot object: a polymorphic
// entry hierarchy, the git-ordered binary codec, and lazy hydration of
// nested trees from an object source.
package tree

import (
	"strings"

	"github.com/meigma/gitdb/object"
)

// Source supplies raw objects for lazy tree hydration.
//
// OpenObject returns (nil, nil) when no object with the given id exists.
type Source interface {
	OpenObject(object.ID) (*object.Loader, error)
}

// Entry is a single member of a Tree: a file, a symlink, or a subtree.
//
// Entries are created through Tree methods and cannot be renamed; the name
// is fixed at construction. An entry whose id is absent (zero) is modified:
// its content has not been written to the object database yet.
type Entry interface {
	// Name returns the entry's name bytes. The returned slice must not be
	// mutated.
	Name() []byte

	// FullName returns the '/'-joined path from the root tree.
	FullName() string

	// ID returns the entry's object id, or the zero id while modified.
	ID() object.ID

	// SetID records the entry's object id, clearing the modified state.
	// Changing an attached entry's id marks the parent modified.
	SetID(object.ID)

	// Mode returns the entry's file mode.
	Mode() object.FileMode

	// Parent returns the containing tree, or nil for a root.
	Parent() *Tree

	// IsModified reports whether the entry differs from its last written
	// state.
	IsModified() bool

	// Accept walks the visitor over this entry, honoring flags.
	Accept(v Visitor, flags int) error

	attach(parent *Tree)
	detach()
}

// base carries the state shared by every entry kind. The parent pointer is
// a non-owning back-reference; the tree owns its children.
type base struct {
	parent *Tree
	id     object.ID
	name   []byte
}

func (b *base) Name() []byte { return b.name }

func (b *base) ID() object.ID { return b.id }

func (b *base) Parent() *Tree { return b.parent }

func (b *base) IsModified() bool { return b.id.IsZero() }

// SetID records the object id. When the id actually changes and the entry
// is attached, the parent's own id is invalidated all the way to the root.
func (b *base) SetID(id object.ID) {
	if b.parent != nil && b.id != id {
		b.parent.SetModified()
	}
	b.id = id
}

// SetModified drops the entry's id and invalidates every ancestor.
func (b *base) SetModified() {
	b.SetID(object.ZeroID)
}

func (b *base) FullName() string {
	if b.parent == nil {
		return string(b.name)
	}
	var sb strings.Builder
	b.appendFullName(&sb)
	return sb.String()
}

func (b *base) appendFullName(sb *strings.Builder) {
	if b.parent != nil {
		b.parent.appendFullName(sb)
		if sb.Len() > 0 {
			sb.WriteByte('/')
		}
	}
	sb.Write(b.name)
}

func (b *base) attach(parent *Tree) { b.parent = parent }

func (b *base) detach() { b.parent = nil }

// FileEntry is a tree member holding versioned file contents.
type FileEntry struct {
	base
	executable bool
}

// NewFileEntry creates a detached file entry ready for AddEntry.
func NewFileEntry(name []byte, id object.ID, executable bool) *FileEntry {
	return &FileEntry{base: base{id: id, name: name}, executable: executable}
}

// Mode returns ModeExecutable or ModeRegular depending on the entry's
// executable flag.
func (f *FileEntry) Mode() object.FileMode {
	if f.executable {
		return object.ModeExecutable
	}
	return object.ModeRegular
}

// IsExecutable reports whether the file carries the executable bit.
func (f *FileEntry) IsExecutable() bool { return f.executable }

// SetExecutable flips the executable bit, marking the entry modified.
func (f *FileEntry) SetExecutable(on bool) {
	if f.executable == on {
		return
	}
	f.executable = on
	f.SetModified()
}

// Accept visits the file.
func (f *FileEntry) Accept(v Visitor, flags int) error {
	if flags&ModifiedOnly != 0 && !f.IsModified() {
		return nil
	}
	return v.VisitFile(f)
}

func (f *FileEntry) String() string {
	kind := " F "
	if f.executable {
		kind = " X "
	}
	return f.id.String() + kind + f.FullName()
}

// SymlinkEntry is a tree member recording a symbolic link target blob.
type SymlinkEntry struct {
	base
}

// Mode returns ModeSymlink.
func (s *SymlinkEntry) Mode() object.FileMode { return object.ModeSymlink }

// Accept visits the symlink.
func (s *SymlinkEntry) Accept(v Visitor, flags int) error {
	if flags&ModifiedOnly != 0 && !s.IsModified() {
		return nil
	}
	return v.VisitSymlink(s)
}

func (s *SymlinkEntry) String() string {
	return s.id.String() + " S " + s.FullName()
}
