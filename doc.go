// Package gitdb is a content-addressable object database compatible with
// the git on-disk formats: loose objects, tree objects, the version 2
// binary index, and pack files with their legacy index sidecar.
//
// The Repository type is the facade the codec packages collaborate with.
// It opens and writes loose objects, binds lazy trees, and owns the
// repository configuration. The tree, index, and pack packages each accept
// the narrow interface they consume, so they can be exercised against any
// object source.
package gitdb
