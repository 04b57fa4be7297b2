package buffermgr

import (
	"strings"
	"testing"
)

func TestParsePGLookupFile(t *testing.T) {
	input := `# speed cable size xon xoff threshold
10000 5 1024 0 0 0
40000 40 2048 100 50 10 20
`
	profiles, err := ParsePGLookupFile(strings.NewReader(input))
	if err != nil {
		t.Fatal(err)
	}
	if len(profiles) != 2 {
		t.Fatalf("got %d profiles, want 2", len(profiles))
	}
	if profiles[0].SpeedMbps != 10000 || profiles[0].XonOffset != 0 {
		t.Errorf("profile 0 = %+v", profiles[0])
	}
	if profiles[1].XonOffset != 20 {
		t.Errorf("profile 1 XonOffset = %d, want 20", profiles[1].XonOffset)
	}
}

func TestParsePGLookupFileRejectsMalformed(t *testing.T) {
	_, err := ParsePGLookupFile(strings.NewReader("10000 5 1024\n"))
	if err == nil {
		t.Fatal("expected error for too few fields")
	}
}

func TestParsePGLookupFileRejectsNonInteger(t *testing.T) {
	_, err := ParsePGLookupFile(strings.NewReader("fast 5 1024 0 0 0\n"))
	if err == nil {
		t.Fatal("expected error for non-integer field")
	}
}

func TestPGRangesTwoBits(t *testing.T) {
	got := PGRanges([]int{3, 5})
	want := []string{"3", "5", "3-5"}
	assertSameSet(t, got, want)
}

func TestPGRangesThreeBits(t *testing.T) {
	got := PGRanges([]int{3, 4, 5})
	want := []string{"3", "4", "5", "3-4", "4-5", "3-5"}
	assertSameSet(t, got, want)
}

func TestParseVendor(t *testing.T) {
	cases := map[string]Vendor{
		"Mellanox": VendorMellanox,
		"mlnx":     VendorMellanox,
		"BAREFOOT": VendorBarefoot,
		"unknown":  VendorOther,
		"":         VendorOther,
	}
	for in, want := range cases {
		if got := ParseVendor(in); got != want {
			t.Errorf("ParseVendor(%q) = %v, want %v", in, got, want)
		}
	}
}

func assertSameSet(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %v (len %d), want %v (len %d)", got, len(got), want, len(want))
	}
	set := make(map[string]bool, len(got))
	for _, g := range got {
		set[g] = true
	}
	for _, w := range want {
		if !set[w] {
			t.Errorf("missing expected range %q in %v", w, got)
		}
	}
}
