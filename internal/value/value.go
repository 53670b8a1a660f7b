package value

import (
	"fmt"
	"net"
)

// Value is the closed tagged union described in spec §4.A. Exactly one of
// the payload fields is meaningful, selected by kind.
type Value struct {
	kind Kind

	b    bool
	i    int64
	d    float64
	s    string
	blob []byte
	addr uint32

	arr []Value

	// Map/Set containers: keys share keyKind (spec §4.A "all keys in one
	// map share a kind"). vals is nil for Set.
	keyKind Kind
	keys    []Value
	vals    []Value

	// Invalid/flaw payload: a textual description and an optional
	// decode-failure position.
	flaw       string
	flawPos    int
	hasFlawPos bool
}

// Kind returns the value's kind.
func (v Value) Kind() Kind { return v.kind }

// --- Constructors ---

func NewLogical(b bool) Value { return Value{kind: Logical, b: b} }

func NewInteger(i int64) Value { return Value{kind: Integer, i: i} }

func NewDouble(d float64) Value { return Value{kind: Double, d: d} }

func NewString(s string) Value { return Value{kind: String, s: s} }

func NewBlob(b []byte) Value {
	cp := make([]byte, len(b))
	copy(cp, b)
	return Value{kind: Blob, blob: cp}
}

func NewAddress(addr uint32) Value { return Value{kind: Address, addr: addr} }

// NewAddressFromIP packs a dotted-quad IPv4 address into an Address value.
func NewAddressFromIP(ip net.IP) (Value, error) {
	ip4 := ip.To4()
	if ip4 == nil {
		return Value{}, fmt.Errorf("not an IPv4 address: %v", ip)
	}
	addr := uint32(ip4[0])<<24 | uint32(ip4[1])<<16 | uint32(ip4[2])<<8 | uint32(ip4[3])
	return NewAddress(addr), nil
}

// IP renders an Address value as a net.IP. Panics if not an Address.
func (v Value) IP() net.IP {
	if v.kind != Address {
		panic("value: IP() on non-address value")
	}
	return net.IPv4(byte(v.addr>>24), byte(v.addr>>16), byte(v.addr>>8), byte(v.addr))
}

func NewArray(elems []Value) Value {
	cp := make([]Value, len(elems))
	copy(cp, elems)
	return Value{kind: Array, arr: cp}
}

// NewMap builds a Map value from parallel key/value slices. All keys must
// share keyKind and keyKind must be a valid key kind (spec §4.A). Keys
// must be unique; later duplicates are rejected with an error rather than
// silently overwriting, since nImO maps are not a general dictionary type.
func NewMap(keyKind Kind, keys, vals []Value) (Value, error) {
	if !IsKeyKind(keyKind) {
		return Value{}, fmt.Errorf("invalid map key kind: %v", keyKind)
	}
	if len(keys) != len(vals) {
		return Value{}, fmt.Errorf("map keys/values length mismatch: %d keys, %d values", len(keys), len(vals))
	}
	for i, k := range keys {
		if k.kind != keyKind {
			return Value{}, fmt.Errorf("map key %d has kind %v, want %v", i, k.kind, keyKind)
		}
		for j := 0; j < i; j++ {
			if Equal(keys[j], k) {
				return Value{}, fmt.Errorf("duplicate map key at index %d", i)
			}
		}
	}
	kc := make([]Value, len(keys))
	vc := make([]Value, len(vals))
	copy(kc, keys)
	copy(vc, vals)
	return Value{kind: Map, keyKind: keyKind, keys: kc, vals: vc}, nil
}

// NewSet builds a Set value. Members must share keyKind and be unique.
func NewSet(keyKind Kind, members []Value) (Value, error) {
	if !IsKeyKind(keyKind) {
		return Value{}, fmt.Errorf("invalid set key kind: %v", keyKind)
	}
	for i, m := range members {
		if m.kind != keyKind {
			return Value{}, fmt.Errorf("set member %d has kind %v, want %v", i, m.kind, keyKind)
		}
		for j := 0; j < i; j++ {
			if Equal(members[j], m) {
				return Value{}, fmt.Errorf("duplicate set member at index %d", i)
			}
		}
	}
	mc := make([]Value, len(members))
	copy(mc, members)
	return Value{kind: Set, keyKind: keyKind, keys: mc}, nil
}

// NewFlaw builds an Invalid value carrying a textual description and an
// optional byte position where decoding failed.
func NewFlaw(description string) Value {
	return Value{kind: Invalid, flaw: description}
}

func NewFlawAt(description string, pos int) Value {
	return Value{kind: Invalid, flaw: description, flawPos: pos, hasFlawPos: true}
}

// --- Accessors ---

func (v Value) AsBool() (bool, bool) {
	if v.kind != Logical {
		return false, false
	}
	return v.b, true
}

func (v Value) AsInt64() (int64, bool) {
	if v.kind != Integer {
		return 0, false
	}
	return v.i, true
}

func (v Value) AsFloat64() (float64, bool) {
	if v.kind != Double {
		return 0, false
	}
	return v.d, true
}

func (v Value) AsString() (string, bool) {
	if v.kind != String {
		return "", false
	}
	return v.s, true
}

func (v Value) AsBlob() ([]byte, bool) {
	if v.kind != Blob {
		return nil, false
	}
	cp := make([]byte, len(v.blob))
	copy(cp, v.blob)
	return cp, true
}

func (v Value) AsAddress() (uint32, bool) {
	if v.kind != Address {
		return 0, false
	}
	return v.addr, true
}

func (v Value) AsArray() ([]Value, bool) {
	if v.kind != Array {
		return nil, false
	}
	cp := make([]Value, len(v.arr))
	copy(cp, v.arr)
	return cp, true
}

// MapKeyKind returns the key kind of a Map or Set value.
func (v Value) MapKeyKind() Kind { return v.keyKind }

// MapEntries returns the parallel key/value slices of a Map value.
func (v Value) MapEntries() ([]Value, []Value, bool) {
	if v.kind != Map {
		return nil, nil, false
	}
	kc := make([]Value, len(v.keys))
	vc := make([]Value, len(v.vals))
	copy(kc, v.keys)
	copy(vc, v.vals)
	return kc, vc, true
}

// MapGet looks up key in a Map value.
func (v Value) MapGet(key Value) (Value, bool) {
	if v.kind != Map {
		return Value{}, false
	}
	for i, k := range v.keys {
		if Equal(k, key) {
			return v.vals[i], true
		}
	}
	return Value{}, false
}

// SetMembers returns the members of a Set value.
func (v Value) SetMembers() ([]Value, bool) {
	if v.kind != Set {
		return nil, false
	}
	cp := make([]Value, len(v.keys))
	copy(cp, v.keys)
	return cp, true
}

// SetContains reports whether member is present in a Set value.
func (v Value) SetContains(member Value) bool {
	if v.kind != Set {
		return false
	}
	for _, k := range v.keys {
		if Equal(k, member) {
			return true
		}
	}
	return false
}

// Flaw returns the description and position (if any) of an Invalid value.
func (v Value) Flaw() (description string, pos int, hasPos bool) {
	return v.flaw, v.flawPos, v.hasFlawPos
}

func (v Value) String() string { return Text(v) }
