package value

import (
	"bytes"
	"strings"
)

// Equal reports whether a and b are the same value, recursively. Doubles
// compare bit-identically so that NaN round-trips as itself (spec §4.A
// "bit-identical round-trip").
func Equal(a, b Value) bool {
	return Compare(a, b) == 0
}

// Compare provides a total order over values of the same kind, used for
// map/set key ordering and deterministic textual output (grounded on the
// original's CompareValues/compareWithoutCase, supplemented per
// SPEC_FULL.md §C.1). Values of different kinds order by Kind first.
func Compare(a, b Value) int {
	if a.kind != b.kind {
		if a.kind < b.kind {
			return -1
		}
		return 1
	}

	switch a.kind {
	case Invalid:
		return strings.Compare(a.flaw, b.flaw)
	case Logical:
		if a.b == b.b {
			return 0
		}
		if !a.b {
			return -1
		}
		return 1
	case Integer:
		switch {
		case a.i < b.i:
			return -1
		case a.i > b.i:
			return 1
		default:
			return 0
		}
	case Double:
		// bit-identical compare first so distinct NaN payloads and +-0
		// are distinguished per the round-trip property, falling back to
		// numeric ordering for everything else.
		if doubleBits(a.d) == doubleBits(b.d) {
			return 0
		}
		switch {
		case a.d < b.d:
			return -1
		case a.d > b.d:
			return 1
		default:
			return compareUint64(doubleBits(a.d), doubleBits(b.d))
		}
	case String:
		return strings.Compare(a.s, b.s)
	case Blob:
		return bytes.Compare(a.blob, b.blob)
	case Address:
		switch {
		case a.addr < b.addr:
			return -1
		case a.addr > b.addr:
			return 1
		default:
			return 0
		}
	case Array:
		return compareSlices(a.arr, b.arr)
	case Map:
		if c := int(a.keyKind) - int(b.keyKind); c != 0 {
			return c
		}
		if c := compareSlices(a.keys, b.keys); c != 0 {
			return c
		}
		return compareSlices(a.vals, b.vals)
	case Set:
		if c := int(a.keyKind) - int(b.keyKind); c != 0 {
			return c
		}
		return compareSlices(a.keys, b.keys)
	}
	return 0
}

func compareSlices(a, b []Value) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if c := Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return len(a) - len(b)
}

func compareUint64(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// CompareStringsWithoutCase compares two strings ignoring case, grounded
// on the original's compareWithoutCase — used for machine-name identity
// (spec §3 "case-insensitive short host name").
func CompareStringsWithoutCase(a, b string) int {
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}
