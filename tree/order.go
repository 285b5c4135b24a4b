package tree

// Git tree order compares entry names byte-by-byte as unsigned values,
// with a virtual trailing byte breaking prefix ties: '/' when the entry is
// a tree, NUL otherwise. A tree named "abc" therefore sorts as "abc/",
// after a blob "abc" and after a blob "abc-". This is not ordinary
// lexicographic order and it is load-bearing: tree objects must serialize
// byte-exact.

func lastChar(e Entry) int {
	if _, ok := e.(*Tree); ok {
		return '/'
	}
	return 0
}

// compareNames compares a against b[bStart:bEnd] with virtual trailing
// bytes lastA and lastB. It returns <0, 0, or >0.
func compareNames(a, b []byte, bStart, bEnd, lastA, lastB int) int {
	j, k := 0, bStart
	for j < len(a) && k < bEnd {
		aj, bk := int(a[j]), int(b[k])
		if aj != bk {
			return aj - bk
		}
		j++
		k++
	}
	if j < len(a) {
		return int(a[j]) - lastB
	}
	if k < bEnd {
		return lastA - int(b[k])
	}
	if lastA != lastB {
		return lastA - lastB
	}
	return len(a) - (bEnd - bStart)
}

// search locates name[start:end] (with virtual trailing byte last) among
// entries. A hit returns its index; a miss returns -(insertion+1).
func search(entries []Entry, name []byte, last, start, end int) int {
	if len(entries) == 0 {
		return -1
	}
	low, high := 0, len(entries)
	for {
		mid := (low + high) / 2
		cmp := compareNames(entries[mid].Name(), name, start, end, lastChar(entries[mid]), last)
		switch {
		case cmp < 0:
			low = mid + 1
		case cmp == 0:
			return mid
		default:
			high = mid
		}
		if low >= high {
			return -(low + 1)
		}
	}
}
