package tree

// Traversal flags for Accept.
const (
	// ModifiedOnly skips clean entries and subtrees.
	ModifiedOnly = 1 << iota

	// LoadedOnly visits unloaded trees without hydrating them.
	LoadedOnly

	// ConcurrentModification iterates a copy of each tree's children so the
	// visitor may mutate the tree it is walking.
	ConcurrentModification
)

// Visitor receives pre-/post-order callbacks over a subtree.
type Visitor interface {
	StartTree(*Tree) error
	EndTree(*Tree) error
	VisitFile(*FileEntry) error
	VisitSymlink(*SymlinkEntry) error
}
