package pack

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/meigma/gitdb/object"
)

// Legacy pack-index layout: a 256-entry fan-out table of cumulative counts
// keyed by the first id byte, then (uint32 offset, 20-byte id) records
// sorted by id, then the pack digest and the index's own digest.
const (
	idxFanoutLen  = 256 * 4
	idxRecordLen  = 4 + object.IDLength
	idxTrailerLen = 2 * object.IDLength
)

type idxFile struct {
	fanout  [256]uint32
	records []byte // objectCount × idxRecordLen, sorted by id
}

// loadIdx reads a version 1 pack index and validates its size against the
// pack's object count. Version 2 indexes fail the size check and are
// reported as corrupt.
func loadIdx(path string, objectCount uint32) (*idxFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	want := idxFanoutLen + idxRecordLen*int(objectCount) + idxTrailerLen
	if len(data) != want {
		return nil, &object.CorruptObjectError{
			Reason: fmt.Sprintf("pack index %s has incorrect file size", path),
		}
	}

	ix := &idxFile{}
	for i := range ix.fanout {
		ix.fanout[i] = binary.BigEndian.Uint32(data[4*i:])
	}
	ix.records = data[idxFanoutLen : len(data)-idxTrailerLen]
	return ix, nil
}

// findOffset returns the pack offset recorded for id, or -1. The search
// window comes from the fan-out table; within it the ids are sorted, so a
// binary search on the 20-byte keys finishes the lookup.
func (ix *idxFile) findOffset(id object.ID) int64 {
	levelOne := int(id[0])
	high := int64(ix.fanout[levelOne])
	var low int64
	if levelOne > 0 {
		low = int64(ix.fanout[levelOne-1])
	}
	for low < high {
		mid := (low + high) / 2
		rec := ix.records[mid*idxRecordLen:]
		cmp := id.CompareRaw(rec[4 : 4+object.IDLength])
		switch {
		case cmp < 0:
			high = mid
		case cmp == 0:
			return int64(binary.BigEndian.Uint32(rec))
		default:
			low = mid + 1
		}
	}
	return -1
}
