// Package buffermgr parses the platform's priority-group (PG) lookup
// file and generates the contiguous PG ranges a PFC-enabled bitmap
// implies (spec.md §4.7 "Buffer manager").
//
// Grounded on the teacher's pkg/newtron/network/node's field-parsing
// helpers (strict whitespace-split-then-validate, never silently
// skipping malformed lines) and ASIC_VENDOR environment dispatch
// mirrored from cmd/newtron/main.go's flag/env precedence.
package buffermgr

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// Vendor selects platform-specific PG/buffer behavior (spec.md §6
// "ASIC_VENDOR selects platform-specific behavior in the buffer
// manager").
type Vendor string

const (
	VendorMellanox Vendor = "mellanox"
	VendorBarefoot Vendor = "barefoot"
	VendorOther    Vendor = "other"
)

// ParseVendor maps the ASIC_VENDOR environment value to a Vendor,
// defaulting to VendorOther for anything unrecognized.
func ParseVendor(s string) Vendor {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mellanox", "mlnx":
		return VendorMellanox
	case "barefoot", "bfn":
		return VendorBarefoot
	default:
		return VendorOther
	}
}

// PGProfile is one row of the PG lookup file: "speed cable size xon
// xoff threshold [xon_offset]" (spec.md §4.7).
type PGProfile struct {
	SpeedMbps   int
	CableMeters int
	SizeBytes   int
	Xon         int
	Xoff        int
	Threshold   int
	XonOffset   int // 0 if the optional field was absent
}

// ParsePGLookupFile parses the whitespace-separated PG-profile lookup
// file format. Blank lines and lines starting with "#" are skipped;
// every other line must have 6 or 7 fields.
func ParsePGLookupFile(r io.Reader) ([]PGProfile, error) {
	var profiles []PGProfile
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 6 && len(fields) != 7 {
			return nil, fmt.Errorf("buffermgr: line %d: want 6 or 7 fields, got %d", lineNo, len(fields))
		}
		ints := make([]int, len(fields))
		for i, f := range fields {
			n, err := strconv.Atoi(f)
			if err != nil {
				return nil, fmt.Errorf("buffermgr: line %d: field %d not an integer: %q", lineNo, i+1, f)
			}
			ints[i] = n
		}
		p := PGProfile{
			SpeedMbps:   ints[0],
			CableMeters: ints[1],
			SizeBytes:   ints[2],
			Xon:         ints[3],
			Xoff:        ints[4],
			Threshold:   ints[5],
		}
		if len(ints) == 7 {
			p.XonOffset = ints[6]
		}
		profiles = append(profiles, p)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("buffermgr: reading PG lookup file: %w", err)
	}
	return profiles, nil
}

// PGRanges generates the power set of a PFC-enable bitmap's bits,
// rendered the way SONiC's BUFFER_PG table keys a range: each
// non-empty subset collapses to "<min>" if it is a single bit or
// "<min>-<max>" otherwise, regardless of whether the subset's members
// are themselves numerically adjacent (a BUFFER_PG range spans from
// its lowest to highest priority). For bits {3,5}: "3", "5", "3-5".
// For {3,4,5}: "3", "4", "5", "3-4", "4-5", "3-5" (spec.md §4.7's
// worked examples; duplicate min-max pairs collapse to one entry,
// which is why {3,4,5}'s 7 subsets yield only 6 distinct ranges).
func PGRanges(bits []int) []string {
	sorted := append([]int(nil), bits...)
	sort.Ints(sorted)
	n := len(sorted)

	var ranges []string
	seen := make(map[string]bool)
	add := func(s string) {
		if !seen[s] {
			seen[s] = true
			ranges = append(ranges, s)
		}
	}

	for mask := 1; mask < (1 << n); mask++ {
		lo, hi := -1, -1
		for i := 0; i < n; i++ {
			if mask&(1<<i) == 0 {
				continue
			}
			if lo == -1 {
				lo = sorted[i]
			}
			hi = sorted[i]
		}
		if lo == hi {
			add(strconv.Itoa(lo))
		} else {
			add(fmt.Sprintf("%d-%d", lo, hi))
		}
	}
	return ranges
}
