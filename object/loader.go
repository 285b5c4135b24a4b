package object

// Object type tags as they appear in loose object headers.
const (
	TypeCommit = "commit"
	TypeTree   = "tree"
	TypeBlob   = "blob"
	TypeTag    = "tag"
)

// Loader carries a fully inflated object read from storage.
type Loader struct {
	typ  string
	size int64
	data []byte
}

// NewLoader wraps inflated object data. The data is not copied.
func NewLoader(typ string, data []byte) *Loader {
	return &Loader{typ: typ, size: int64(len(data)), data: data}
}

// Type returns the object's ASCII type tag ("blob", "tree", ...).
func (l *Loader) Type() string { return l.typ }

// Size returns the inflated object size in bytes.
func (l *Loader) Size() int64 { return l.size }

// Bytes returns the inflated object content without the header.
func (l *Loader) Bytes() []byte { return l.data }
