// Package pack reads pack files: the compact storage format holding many
// zlib-deflated objects behind variable-length record headers, with a
// legacy (version 1) pack-index sidecar for random access.
//
// The reader locates REF_DELTA records and exposes their base identifier;
// applying deltas is the caller's job. Offset deltas and reserved type
// codes are rejected.
package pack

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"strings"
	"sync"

	"github.com/klauspost/compress/zlib"

	"github.com/meigma/gitdb/object"
)

const (
	headerLen = 12 // "PACK" + version + object count

	objExt      = 0
	objCommit   = 1
	objTree     = 2
	objBlob     = 3
	objTag      = 4
	objType5    = 5
	objOfsDelta = 6
	objRefDelta = 7
)

var packSignature = [4]byte{'P', 'A', 'C', 'K'}

// Source resolves objects outside the pack, used for REF_DELTA bases.
//
// OpenObject returns (nil, nil) when no object with the given id exists.
type Source interface {
	OpenObject(object.ID) (*object.Loader, error)
}

// Reader reads one pack file. Get, object reads, and Close serialize on an
// internal lock because they share the underlying stream; the sequence
// produced by Objects is not safe under interleaved Get calls and should
// be drained before random access resumes.
type Reader struct {
	mu  sync.Mutex
	src Source

	f      *os.File   // nil in stream mode
	stream *posReader // nil in file mode

	version uint32
	count   uint32
	idx     *idxFile
}

// NewReader opens a pack file together with its ".idx" sidecar, enabling
// both sequential iteration and random access by id.
func NewReader(src Source, packPath string) (*Reader, error) {
	f, err := os.Open(packPath)
	if err != nil {
		return nil, err
	}
	r := &Reader{src: src, f: f}
	if err := r.readHeader(&fileReader{f: f}); err != nil {
		f.Close()
		return nil, err
	}

	idxPath := packPath
	if i := strings.LastIndex(idxPath, "."); i >= 0 {
		idxPath = idxPath[:i]
	}
	idxPath += ".idx"
	idx, err := loadIdx(idxPath, r.count)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.idx = idx
	return r, nil
}

// NewStreamReader reads a pack from a forward-only stream. Only sequential
// iteration is available; Get reports the stream as not seekable.
func NewStreamReader(src Source, in io.Reader) (*Reader, error) {
	r := &Reader{src: src, stream: newPosReader(in)}
	if err := r.readHeader(r.stream); err != nil {
		return nil, err
	}
	return r, nil
}

// Version returns the pack format version (2 or 3).
func (r *Reader) Version() uint32 { return r.version }

// Count returns the number of objects recorded in the pack header.
func (r *Reader) Count() uint32 { return r.count }

// Close releases the underlying pack file.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f != nil {
		return r.f.Close()
	}
	return nil
}

// Get returns the object with the given id, positioned at the offset
// recorded in the pack index, with its type and inflated size parsed.
// It returns (nil, nil) when the id is not in this pack.
func (r *Reader) Get(id object.ID) (*Object, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.idx == nil {
		return nil, errors.New("gitdb: pack stream is not seekable")
	}
	offset := r.idx.findOffset(id)
	if offset < 0 {
		return nil, nil
	}
	obj, err := r.readObjectAt(offset)
	if err != nil {
		return nil, err
	}
	obj.id = id
	return obj, nil
}

// Objects yields every object record in pack order. Reading a body is
// optional: when the previous object's deflate stream was not consumed,
// the iterator inflates it to completion on a small scratch buffer so the
// next header is parsed at the correct offset.
func (r *Reader) Objects() iter.Seq2[*Object, error] {
	return func(yield func(*Object, error) bool) {
		pos := int64(headerLen)
		var last *Object
		for i := uint32(0); i < r.count; i++ {
			r.mu.Lock()
			if last != nil {
				if last.endOffset == 0 {
					if err := r.drainLocked(last); err != nil {
						r.mu.Unlock()
						yield(nil, err)
						return
					}
				}
				pos = last.endOffset
			}
			obj, err := r.readObjectAt(pos)
			r.mu.Unlock()
			if err != nil {
				yield(nil, err)
				return
			}
			last = obj
			if !yield(obj, nil) {
				return
			}
		}
	}
}

// ResolveBase looks up a delta base outside the pack.
func (r *Reader) ResolveBase(id object.ID) (*object.Loader, error) {
	if r.src == nil {
		return nil, &object.MissingObjectError{ID: id, Type: "delta base"}
	}
	return r.src.OpenObject(id)
}

func (r *Reader) readHeader(in byteSource) error {
	var sig [4]byte
	if _, err := io.ReadFull(in, sig[:]); err != nil {
		return fmt.Errorf("gitdb: not a pack file: %w", err)
	}
	if sig != packSignature {
		return errors.New("gitdb: not a pack file")
	}
	vers, err := readUint32(in)
	if err != nil {
		return err
	}
	if vers != 2 && vers != 3 {
		return fmt.Errorf("gitdb: unsupported pack version %d", vers)
	}
	cnt, err := readUint32(in)
	if err != nil {
		return err
	}
	r.version = vers
	r.count = cnt
	return nil
}

// readObjectAt parses one record header. The caller holds the lock.
func (r *Reader) readObjectAt(offset int64) (*Object, error) {
	in, err := r.sectionAt(offset)
	if err != nil {
		return nil, err
	}

	c, err := in.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("gitdb: truncated pack object header: %w", err)
	}
	typeCode := (c >> 4) & 7
	size := int64(c & 15)
	shift := uint(4)
	for c&0x80 != 0 {
		c, err = in.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("gitdb: truncated pack object header: %w", err)
		}
		size += int64(c&0x7f) << shift
		shift += 7
	}

	obj := &Object{r: r, offset: offset, size: size}
	switch typeCode {
	case objCommit:
		obj.typ = object.TypeCommit
	case objTree:
		obj.typ = object.TypeTree
	case objBlob:
		obj.typ = object.TypeBlob
	case objTag:
		obj.typ = object.TypeTag
	case objRefDelta:
		var base [object.IDLength]byte
		if _, err := io.ReadFull(in, base[:]); err != nil {
			return nil, fmt.Errorf("gitdb: truncated delta base: %w", err)
		}
		obj.deltaBase = object.ID(base)
	case objExt, objType5, objOfsDelta:
		return nil, fmt.Errorf("%w: pack object type %d", object.ErrNotSupported, typeCode)
	default:
		return nil, fmt.Errorf("gitdb: unknown pack object type %d", typeCode)
	}

	obj.dataOffset = in.offset()
	return obj, nil
}

// sectionAt returns a byte source positioned at the given pack offset.
func (r *Reader) sectionAt(offset int64) (byteSource, error) {
	if r.f != nil {
		return &fileReader{f: r.f, pos: offset}, nil
	}
	if r.stream.offset() != offset {
		return nil, fmt.Errorf("gitdb: pack stream is at %d, not %d", r.stream.offset(), offset)
	}
	return r.stream, nil
}

// inflateLocked inflates the object body starting at its data offset and
// records where the deflate stream ended. The caller holds the lock.
func (r *Reader) inflateLocked(o *Object) ([]byte, error) {
	in, err := r.sectionAt(o.dataOffset)
	if err != nil {
		return nil, err
	}
	zr, err := zlib.NewReader(in)
	if err != nil {
		return nil, fmt.Errorf("gitdb: corrupt pack object data: %w", err)
	}
	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("gitdb: corrupt pack object data: %w", err)
	}
	zr.Close()
	o.endOffset = in.offset()
	return data, nil
}

// drainLocked runs the object's deflate stream to completion, discarding
// output, so the stream position lands on the next record header.
func (r *Reader) drainLocked(o *Object) error {
	in, err := r.sectionAt(o.dataOffset)
	if err != nil {
		return err
	}
	zr, err := zlib.NewReader(in)
	if err != nil {
		return fmt.Errorf("gitdb: corrupt pack object data: %w", err)
	}
	scratch := make([]byte, 1024)
	for {
		_, err := zr.Read(scratch)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("gitdb: corrupt pack object data: %w", err)
		}
	}
	zr.Close()
	o.endOffset = in.offset()
	return nil
}

// byteSource is a positioned reader. The ByteReader side matters: handing
// the inflater a ByteReader keeps it from reading past the deflate stream,
// so offset() is exact when the stream ends.
type byteSource interface {
	io.Reader
	io.ByteReader
	offset() int64
}

// fileReader reads a pack file at an explicit position via ReadAt, leaving
// the file's own cursor alone.
type fileReader struct {
	f   *os.File
	pos int64
}

func (r *fileReader) Read(p []byte) (int, error) {
	n, err := r.f.ReadAt(p, r.pos)
	r.pos += int64(n)
	if n > 0 && errors.Is(err, io.EOF) {
		err = nil
	}
	return n, err
}

func (r *fileReader) ReadByte() (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *fileReader) offset() int64 { return r.pos }

// posReader counts consumed bytes on a forward-only stream.
type posReader struct {
	br  *bufio.Reader
	pos int64
}

func newPosReader(in io.Reader) *posReader {
	return &posReader{br: bufio.NewReader(in)}
}

func (r *posReader) Read(p []byte) (int, error) {
	n, err := r.br.Read(p)
	r.pos += int64(n)
	return n, err
}

func (r *posReader) ReadByte() (byte, error) {
	b, err := r.br.ReadByte()
	if err == nil {
		r.pos++
	}
	return b, err
}

func (r *posReader) offset() int64 { return r.pos }

func readUint32(in io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(in, b[:]); err != nil {
		return 0, err
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), nil
}
