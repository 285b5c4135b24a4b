package pack

import (
	"bytes"
	"crypto/sha1"
	"encoding/binary"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/gitdb/object"
)

type testObj struct {
	typeCode byte
	data     []byte
	base     object.ID
}

// buildPack assembles a version 2 pack and returns its bytes plus each
// record's offset.
func buildPack(t *testing.T, objs []testObj) ([]byte, []int64) {
	t.Helper()

	var buf bytes.Buffer
	buf.Write(packSignature[:])
	var hdr [8]byte
	binary.BigEndian.PutUint32(hdr[:4], 2)
	binary.BigEndian.PutUint32(hdr[4:], uint32(len(objs)))
	buf.Write(hdr[:])

	offsets := make([]int64, len(objs))
	for i, o := range objs {
		offsets[i] = int64(buf.Len())

		size := len(o.data)
		c := o.typeCode<<4 | byte(size&0x0f)
		size >>= 4
		for size > 0 {
			buf.WriteByte(c | 0x80)
			c = byte(size & 0x7f)
			size >>= 7
		}
		buf.WriteByte(c)

		if o.typeCode == objRefDelta {
			buf.Write(o.base[:])
		}

		zw := zlib.NewWriter(&buf)
		_, err := zw.Write(o.data)
		require.NoError(t, err)
		require.NoError(t, zw.Close())
	}

	sum := sha1.Sum(buf.Bytes())
	buf.Write(sum[:])
	return buf.Bytes(), offsets
}

// buildIdx assembles a legacy (version 1) pack index for the given
// id-to-offset mapping.
func buildIdx(t *testing.T, entries map[object.ID]int64) []byte {
	t.Helper()

	ids := make([]object.ID, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Compare(ids[j]) < 0 })

	var buf bytes.Buffer
	var fanout [256]uint32
	for _, id := range ids {
		for b := int(id[0]); b < 256; b++ {
			fanout[b]++
		}
	}
	var word [4]byte
	for _, n := range fanout {
		binary.BigEndian.PutUint32(word[:], n)
		buf.Write(word[:])
	}
	for _, id := range ids {
		binary.BigEndian.PutUint32(word[:], uint32(entries[id]))
		buf.Write(word[:])
		buf.Write(id[:])
	}
	buf.Write(make([]byte, 2*object.IDLength))
	return buf.Bytes()
}

func writePackFiles(t *testing.T, pack, idx []byte) string {
	t.Helper()
	dir := t.TempDir()
	packPath := filepath.Join(dir, "test.pack")
	require.NoError(t, os.WriteFile(packPath, pack, 0o666))
	if idx != nil {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "test.idx"), idx, 0o666))
	}
	return packPath
}

func testID(first byte, rest byte) object.ID {
	var id object.ID
	id[0] = first
	for i := 1; i < len(id); i++ {
		id[i] = rest
	}
	return id
}

func threeObjectPack(t *testing.T) (string, []object.ID, []int64) {
	t.Helper()
	objs := []testObj{
		{typeCode: objBlob, data: []byte("first object body")},
		{typeCode: objTree, data: bytes.Repeat([]byte("x"), 3000)},
		{typeCode: objBlob, data: []byte("third")},
	}
	packBytes, offsets := buildPack(t, objs)

	// Ids spanning three fan-out buckets, in pack order.
	ids := []object.ID{testID(0x00, 0xaa), testID(0x7f, 0xbb), testID(0xfe, 0xcc)}
	idx := buildIdx(t, map[object.ID]int64{
		ids[0]: offsets[0],
		ids[1]: offsets[1],
		ids[2]: offsets[2],
	})
	return writePackFiles(t, packBytes, idx), ids, offsets
}

func TestGetRandomAccess(t *testing.T) {
	t.Parallel()

	packPath, ids, offsets := threeObjectPack(t)
	r, err := NewReader(nil, packPath)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, uint32(2), r.Version())
	assert.Equal(t, uint32(3), r.Count())

	obj, err := r.Get(ids[1])
	require.NoError(t, err)
	require.NotNil(t, obj)
	assert.Equal(t, offsets[1], obj.Offset())
	assert.Equal(t, object.TypeTree, obj.Type())
	assert.Equal(t, int64(3000), obj.Size())
	assert.Equal(t, ids[1], obj.ID())

	data, err := obj.Bytes()
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte("x"), 3000), data)

	// Every id maps to its recorded offset.
	for i, id := range ids {
		obj, err := r.Get(id)
		require.NoError(t, err)
		require.NotNil(t, obj)
		assert.Equal(t, offsets[i], obj.Offset())
	}

	// An absent id is a miss, not an error.
	missing, err := r.Get(testID(0x7f, 0x01))
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestIterateWithoutReadingBodies(t *testing.T) {
	t.Parallel()

	packPath, _, offsets := threeObjectPack(t)
	r, err := NewReader(nil, packPath)
	require.NoError(t, err)
	defer r.Close()

	var got []int64
	for obj, err := range r.Objects() {
		require.NoError(t, err)
		got = append(got, obj.Offset())
	}
	assert.Equal(t, offsets, got)
}

func TestIterateReadingEveryBody(t *testing.T) {
	t.Parallel()

	objs := []testObj{
		{typeCode: objBlob, data: []byte("alpha")},
		{typeCode: objCommit, data: []byte("tree 0000\n")},
		{typeCode: objTag, data: bytes.Repeat([]byte("t"), 5000)},
	}
	packBytes, _ := buildPack(t, objs)

	r, err := NewStreamReader(nil, bytes.NewReader(packBytes))
	require.NoError(t, err)

	i := 0
	for obj, err := range r.Objects() {
		require.NoError(t, err)
		data, err := obj.Bytes()
		require.NoError(t, err)
		assert.Equal(t, objs[i].data, data)
		assert.Equal(t, int64(len(objs[i].data)), obj.Size())
		i++
	}
	assert.Equal(t, len(objs), i)
}

func TestIterateMixedConsumption(t *testing.T) {
	t.Parallel()

	objs := []testObj{
		{typeCode: objBlob, data: bytes.Repeat([]byte("a"), 2048)},
		{typeCode: objBlob, data: []byte("small")},
		{typeCode: objBlob, data: bytes.Repeat([]byte("c"), 4096)},
		{typeCode: objBlob, data: []byte("tail")},
	}
	packBytes, offsets := buildPack(t, objs)

	// No idx sidecar is needed for pure iteration over a stream.
	r, err := NewStreamReader(nil, bytes.NewReader(packBytes))
	require.NoError(t, err)

	// Read bodies only for the even records; the iterator must drain the
	// others to land on each following header.
	i := 0
	for obj, err := range r.Objects() {
		require.NoError(t, err)
		assert.Equal(t, offsets[i], obj.Offset())
		if i%2 == 0 {
			data, err := obj.Bytes()
			require.NoError(t, err)
			assert.Equal(t, objs[i].data, data)
		}
		i++
	}
	assert.Equal(t, len(objs), i)
}

func TestRefDelta(t *testing.T) {
	t.Parallel()

	base := testID(0x11, 0x22)
	objs := []testObj{
		{typeCode: objRefDelta, data: []byte("delta instructions"), base: base},
	}
	packBytes, offsets := buildPack(t, objs)
	idx := buildIdx(t, map[object.ID]int64{testID(0x50, 0): offsets[0]})
	packPath := writePackFiles(t, packBytes, idx)

	src := mapSource{base: object.NewLoader(object.TypeBlob, []byte("base content"))}
	r, err := NewReader(src, packPath)
	require.NoError(t, err)
	defer r.Close()

	obj, err := r.Get(testID(0x50, 0))
	require.NoError(t, err)
	require.NotNil(t, obj)
	assert.True(t, obj.IsDelta())
	assert.Empty(t, obj.Type())
	assert.Equal(t, base, obj.DeltaBase())

	data, err := obj.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte("delta instructions"), data)

	ldr, err := obj.ResolveBase()
	require.NoError(t, err)
	require.NotNil(t, ldr)
	assert.Equal(t, []byte("base content"), ldr.Bytes())
}

func TestRejectedObjectTypes(t *testing.T) {
	t.Parallel()

	for _, code := range []byte{objExt, objType5, objOfsDelta} {
		packBytes, _ := buildPack(t, []testObj{{typeCode: code, data: []byte("x")}})
		r, err := NewStreamReader(nil, bytes.NewReader(packBytes))
		require.NoError(t, err)
		for _, err := range r.Objects() {
			require.ErrorIs(t, err, object.ErrNotSupported, "type %d", code)
		}
	}
}

func TestBadIdxSize(t *testing.T) {
	t.Parallel()

	packBytes, offsets := buildPack(t, []testObj{{typeCode: objBlob, data: []byte("x")}})
	idx := buildIdx(t, map[object.ID]int64{testID(1, 1): offsets[0]})
	packPath := writePackFiles(t, packBytes, append(idx, 0))

	_, err := NewReader(nil, packPath)
	var corrupt *object.CorruptObjectError
	require.ErrorAs(t, err, &corrupt)
}

func TestNotAPack(t *testing.T) {
	t.Parallel()

	_, err := NewStreamReader(nil, bytes.NewReader([]byte("JUNKJUNKJUNKJUNK")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a pack file")
}

func TestUnsupportedVersion(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	buf.Write(packSignature[:])
	var word [4]byte
	binary.BigEndian.PutUint32(word[:], 5)
	buf.Write(word[:])
	binary.BigEndian.PutUint32(word[:], 0)
	buf.Write(word[:])

	_, err := NewStreamReader(nil, bytes.NewReader(buf.Bytes()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported pack version")
}

func TestStreamGetNotSeekable(t *testing.T) {
	t.Parallel()

	packBytes, _ := buildPack(t, []testObj{{typeCode: objBlob, data: []byte("x")}})
	r, err := NewStreamReader(nil, bytes.NewReader(packBytes))
	require.NoError(t, err)
	_, err = r.Get(testID(1, 1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not seekable")
}

// mapSource serves delta bases from memory.
type mapSource map[object.ID]*object.Loader

func (m mapSource) OpenObject(id object.ID) (*object.Loader, error) {
	return m[id], nil
}
