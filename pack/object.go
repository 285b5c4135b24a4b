package pack

import (
	"github.com/meigma/gitdb/object"
)

// Object is one record in a pack: its parsed header plus access to the
// deflated body. For REF_DELTA records Type is empty and DeltaBase carries
// the base object's identifier; the inflated body is then delta
// instructions, not object content.
type Object struct {
	r *Reader

	typ        string
	size       int64
	offset     int64
	dataOffset int64
	deltaBase  object.ID
	id         object.ID

	// endOffset is the first byte after the deflate stream, learned when
	// the body is inflated or drained.
	endOffset int64
}

// Type returns the object's type tag, or "" for a REF_DELTA record.
func (o *Object) Type() string { return o.typ }

// IsDelta reports whether this record is a REF_DELTA.
func (o *Object) IsDelta() bool { return !o.deltaBase.IsZero() }

// DeltaBase returns the base identifier of a REF_DELTA record, or the
// zero id.
func (o *Object) DeltaBase() object.ID { return o.deltaBase }

// Size returns the inflated size from the record header.
func (o *Object) Size() int64 { return o.size }

// Offset returns the record's byte offset in the pack, as stored in the
// pack index.
func (o *Object) Offset() int64 { return o.offset }

// ID returns the identifier this object was looked up by, or the zero id
// for records reached through iteration.
func (o *Object) ID() object.ID { return o.id }

// Bytes inflates and returns the object body.
func (o *Object) Bytes() ([]byte, error) {
	o.r.mu.Lock()
	defer o.r.mu.Unlock()
	return o.r.inflateLocked(o)
}

// ResolveBase opens the delta base through the pack's object source.
// It returns (nil, nil) when the base is absent.
func (o *Object) ResolveBase() (*object.Loader, error) {
	if !o.IsDelta() {
		return nil, nil
	}
	return o.r.ResolveBase(o.deltaBase)
}
