package object

import (
	"strings"
	"testing"
)

func TestParseIDRoundTrip(t *testing.T) {
	t.Parallel()

	const hex = "9d8e7f4a0c1b2d3e4f5a6b7c8d9e0f1a2b3c4d5e"
	id, err := ParseID(hex)
	if err != nil {
		t.Fatalf("ParseID() error = %v", err)
	}
	if got := id.String(); got != hex {
		t.Fatalf("String() = %q, want %q", got, hex)
	}
	if id.IsZero() {
		t.Fatal("IsZero() = true for a parsed id")
	}
}

func TestParseIDRejectsBadInput(t *testing.T) {
	t.Parallel()

	cases := []string{
		"",
		"abcd",
		strings.Repeat("g", 40),
		strings.Repeat("a", 39),
		strings.Repeat("a", 41),
	}
	for _, c := range cases {
		if _, err := ParseID(c); err == nil {
			t.Errorf("ParseID(%q) error = nil, want error", c)
		}
	}
}

func TestIDCompare(t *testing.T) {
	t.Parallel()

	lo := IDFromRaw(append([]byte{0x00}, make([]byte, 19)...))
	hi := IDFromRaw(append([]byte{0xff}, make([]byte, 19)...))
	if lo.Compare(hi) >= 0 {
		t.Fatal("Compare() treated 0xff as signed")
	}
	if hi.Compare(lo) <= 0 {
		t.Fatal("Compare() ordering inverted")
	}
	if lo.Compare(lo) != 0 {
		t.Fatal("Compare() self != 0")
	}
}

func TestZeroIDIsAbsent(t *testing.T) {
	t.Parallel()

	var id ID
	if !id.IsZero() {
		t.Fatal("zero value IsZero() = false")
	}
	if !ZeroID.IsZero() {
		t.Fatal("ZeroID.IsZero() = false")
	}
}

func TestFileModeMatches(t *testing.T) {
	t.Parallel()

	cases := []struct {
		mode FileMode
		bits uint32
		want bool
	}{
		{ModeRegular, 0o100644, true},
		{ModeRegular, 0o100755, false},
		{ModeExecutable, 0o100755, true},
		{ModeExecutable, 0o100644, false},
		{ModeSymlink, 0o120000, true},
		{ModeSymlink, 0o120777, true}, // stray permission bits ignored
		{ModeTree, 0o040000, true},
		{ModeTree, 0o040755, true},
		{ModeTree, 0o100644, false},
		{ModeMissing, 0, true},
		{ModeMissing, 0o100644, false},
	}
	for _, c := range cases {
		if got := c.mode.Matches(c.bits); got != c.want {
			t.Errorf("%v.Matches(%o) = %v, want %v", c.mode, c.bits, got, c.want)
		}
	}
}

func TestFileModeOctal(t *testing.T) {
	t.Parallel()

	if got := string(ModeRegular.Octal()); got != "100644" {
		t.Fatalf("ModeRegular.Octal() = %q", got)
	}
	if got := string(ModeTree.Octal()); got != "40000" {
		t.Fatalf("ModeTree.Octal() = %q, want no leading zero", got)
	}
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	for _, bits := range []uint32{0o100644, 0o100755, 0o120000, 0o040000} {
		if _, ok := ParseMode(bits); !ok {
			t.Errorf("ParseMode(%o) rejected a wire mode", bits)
		}
	}
	for _, bits := range []uint32{0, 0o100600, 0o160000, 0o644} {
		if _, ok := ParseMode(bits); ok {
			t.Errorf("ParseMode(%o) accepted a non-wire mode", bits)
		}
	}
}
