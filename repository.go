package gitdb

import (
	"bytes"
	"crypto/sha1"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/klauspost/compress/zlib"
	"golang.org/x/sync/singleflight"

	"github.com/meigma/gitdb/index"
	"github.com/meigma/gitdb/object"
	"github.com/meigma/gitdb/pack"
	"github.com/meigma/gitdb/tree"
)

// Interface compliance.
var (
	_ tree.Source      = (*Repository)(nil)
	_ index.Repository = (*Repository)(nil)
	_ pack.Source      = (*Repository)(nil)
)

// Repository is the object database rooted at a git metadata directory.
//
// Reads are safe for concurrent use; concurrent loads of the same loose
// object are deduplicated. The Index and Tree values a Repository hands
// out are not thread-safe and must be serialized by the caller.
type Repository struct {
	dir     string
	workDir string
	cfg     *Config
	logger  *slog.Logger

	group  singleflight.Group
	staged *index.Index
}

// Option configures a Repository.
type Option func(*Repository)

// WithLogger sets the logger used for debug-level tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Repository) {
		r.logger = logger
	}
}

// WithWorkDir overrides the working directory, which otherwise defaults
// to the parent of the metadata directory.
func WithWorkDir(dir string) Option {
	return func(r *Repository) {
		r.workDir = dir
	}
}

// Open binds a Repository to an existing metadata directory (the ".git"
// directory; the index lives at dir/index, loose objects under
// dir/objects).
func Open(dir string, opts ...Option) (*Repository, error) {
	r := &Repository{dir: dir, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	if r.workDir == "" {
		r.workDir = filepath.Dir(dir)
	}
	cfg, err := LoadConfig(filepath.Join(dir, "config"))
	if err != nil {
		return nil, err
	}
	r.cfg = cfg
	return r, nil
}

// Init creates a fresh metadata directory with an objects area and a
// default configuration, then opens it.
func Init(dir string, opts ...Option) (*Repository, error) {
	for _, sub := range []string{"", "objects", "refs", "refs/heads"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o777); err != nil {
			return nil, err
		}
	}
	cfgPath := filepath.Join(dir, "config")
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		cfg := "[core]\n\trepositoryformatversion = 0\n\tfilemode = true\n"
		if err := os.WriteFile(cfgPath, []byte(cfg), 0o666); err != nil {
			return nil, err
		}
	}
	return Open(dir, opts...)
}

// Dir returns the metadata directory.
func (r *Repository) Dir() string { return r.dir }

// WorkDir returns the working directory.
func (r *Repository) WorkDir() string { return r.workDir }

// Config returns the repository configuration.
func (r *Repository) Config() *Config { return r.cfg }

// FileModeTracked reports core.filemode: whether the executable bit is
// tracked and applied.
func (r *Repository) FileModeTracked() bool {
	return r.cfg.Bool("core", "", "filemode", true)
}

// TreeSource returns the object source trees hydrate from.
func (r *Repository) TreeSource() tree.Source { return r }

// Index returns the staging area, reading the index file on first use and
// rereading it when the file changed on disk since.
func (r *Repository) Index() (*index.Index, error) {
	if r.staged == nil {
		idx := index.New(r)
		if err := idx.Read(); err != nil {
			return nil, err
		}
		r.staged = idx
		return idx, nil
	}
	if err := r.staged.RereadIfNecessary(); err != nil {
		return nil, err
	}
	return r.staged, nil
}

// OpenObject returns a loader for the loose object with the given id, or
// (nil, nil) when no such object exists. Concurrent loads of the same id
// share one read.
func (r *Repository) OpenObject(id object.ID) (*object.Loader, error) {
	v, err, _ := r.group.Do(id.String(), func() (any, error) {
		return r.readLooseObject(id)
	})
	if err != nil {
		return nil, err
	}
	ldr := v.(*object.Loader)
	if ldr == nil {
		return nil, nil
	}
	return ldr, nil
}

// OpenBlob returns a loader for the blob with the given id. A missing
// object is an error here, unlike OpenObject.
func (r *Repository) OpenBlob(id object.ID) (*object.Loader, error) {
	return r.openTyped(id, object.TypeBlob)
}

// OpenTree returns a loader for the tree object with the given id.
func (r *Repository) OpenTree(id object.ID) (*object.Loader, error) {
	return r.openTyped(id, object.TypeTree)
}

func (r *Repository) openTyped(id object.ID, want string) (*object.Loader, error) {
	ldr, err := r.OpenObject(id)
	if err != nil {
		return nil, err
	}
	if ldr == nil {
		return nil, &object.MissingObjectError{ID: id, Type: want}
	}
	if ldr.Type() != want {
		return nil, &object.IncorrectTypeError{ID: id, Want: want, Got: ldr.Type()}
	}
	return ldr, nil
}

// MapTree returns a lazy Tree bound to this repository. The children load
// on first access.
func (r *Repository) MapTree(id object.ID) *tree.Tree {
	return tree.NewWithID(r, id)
}

// OpenPack opens a pack file and its index sidecar, with this repository
// resolving delta bases.
func (r *Repository) OpenPack(packPath string) (*pack.Reader, error) {
	return pack.NewReader(r, packPath)
}

// WriteBlob deflates and stores the file's content as a blob, returning
// its id.
func (r *Repository) WriteBlob(file string) (object.ID, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return object.ZeroID, err
	}
	return r.writeObject(object.TypeBlob, data)
}

// WriteBlobBytes stores raw content as a blob.
func (r *Repository) WriteBlobBytes(data []byte) (object.ID, error) {
	return r.writeObject(object.TypeBlob, data)
}

// HashBlob computes the blob id of size bytes from in without storing
// anything.
func (r *Repository) HashBlob(size int64, in io.Reader) (object.ID, error) {
	h := sha1.New()
	h.Write(objectHeader(object.TypeBlob, size))
	n, err := io.Copy(h, in)
	if err != nil {
		return object.ZeroID, err
	}
	if n != size {
		return object.ZeroID, fmt.Errorf("gitdb: blob content is %d bytes, expected %d", n, size)
	}
	return object.IDFromRaw(h.Sum(nil)), nil
}

// WriteTree serializes and stores the tree, writing modified subtrees
// bottom-up first, and returns the tree's id.
func (r *Repository) WriteTree(t *tree.Tree) (object.ID, error) {
	if !t.IsModified() {
		return t.ID(), nil
	}
	members, err := t.Members()
	if err != nil {
		return object.ZeroID, err
	}
	for _, e := range members {
		sub, ok := e.(*tree.Tree)
		if !ok || !sub.IsModified() {
			continue
		}
		id, err := r.WriteTree(sub)
		if err != nil {
			return object.ZeroID, err
		}
		sub.SetID(id)
	}
	raw, err := t.Encode()
	if err != nil {
		return object.ZeroID, err
	}
	return r.writeObject(object.TypeTree, raw)
}

func (r *Repository) objectPath(id object.ID) string {
	hex := id.String()
	return filepath.Join(r.dir, "objects", hex[:2], hex[2:])
}

func (r *Repository) readLooseObject(id object.ID) (*object.Loader, error) {
	f, err := os.Open(r.objectPath(id))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	zr, err := zlib.NewReader(f)
	if err != nil {
		return nil, &object.CorruptObjectError{ID: id, Reason: "bad deflate stream"}
	}
	defer zr.Close()
	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, &object.CorruptObjectError{ID: id, Reason: "bad deflate stream"}
	}

	nul := bytes.IndexByte(data, 0)
	if nul < 0 {
		return nil, &object.CorruptObjectError{ID: id, Reason: "missing object header"}
	}
	typ, sizeStr, ok := bytes.Cut(data[:nul], []byte{' '})
	if !ok {
		return nil, &object.CorruptObjectError{ID: id, Reason: "malformed object header"}
	}
	size, err := strconv.ParseInt(string(sizeStr), 10, 64)
	if err != nil || size != int64(len(data)-nul-1) {
		return nil, &object.CorruptObjectError{ID: id, Reason: "object size mismatch"}
	}

	r.logger.Debug("read loose object", "id", id.String(), "type", string(typ), "size", size)
	return object.NewLoader(string(typ), data[nul+1:]), nil
}

// writeObject stores content under its computed id. The write is atomic:
// the deflated bytes land in a temp file in the shard directory and are
// renamed into place. Existing objects are left alone.
func (r *Repository) writeObject(typ string, content []byte) (object.ID, error) {
	h := sha1.New()
	h.Write(objectHeader(typ, int64(len(content))))
	h.Write(content)
	id := object.IDFromRaw(h.Sum(nil))

	path := r.objectPath(id)
	if _, err := os.Stat(path); err == nil {
		return id, nil
	} else if !os.IsNotExist(err) {
		return object.ZeroID, err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o777); err != nil {
		return object.ZeroID, err
	}
	tmp, err := os.CreateTemp(dir, "obj-*")
	if err != nil {
		return object.ZeroID, err
	}
	defer os.Remove(tmp.Name())

	zw := zlib.NewWriter(tmp)
	if _, err := zw.Write(objectHeader(typ, int64(len(content)))); err != nil {
		tmp.Close()
		return object.ZeroID, err
	}
	if _, err := zw.Write(content); err != nil {
		tmp.Close()
		return object.ZeroID, err
	}
	if err := zw.Close(); err != nil {
		tmp.Close()
		return object.ZeroID, err
	}
	if err := tmp.Close(); err != nil {
		return object.ZeroID, err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return object.ZeroID, err
	}

	r.logger.Debug("wrote object", "id", id.String(), "type", typ, "size", len(content))
	return id, nil
}

func objectHeader(typ string, size int64) []byte {
	return []byte(typ + " " + strconv.FormatInt(size, 10) + "\x00")
}
