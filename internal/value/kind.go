// Package value implements the self-describing value model (spec §4.A):
// a closed tagged union over logical, integer, double, string, blob,
// address, array, map, set and invalid/flaw values, with a compact binary
// wire encoding and a textual form for logs and human interfaces.
//
// Values are represented as a single concrete struct with a Kind tag
// rather than an interface hierarchy, per the "Polymorphism of values"
// design note: the wire codec is a flat switch on Kind, not virtual
// dispatch.
package value

import "fmt"

// Kind identifies which variant of the closed union a Value holds.
type Kind byte

const (
	Invalid Kind = iota
	Logical
	Integer
	Double
	String
	Blob
	Address
	Array
	Map
	Set
)

func (k Kind) String() string {
	switch k {
	case Invalid:
		return "invalid"
	case Logical:
		return "logical"
	case Integer:
		return "integer"
	case Double:
		return "double"
	case String:
		return "string"
	case Blob:
		return "blob"
	case Address:
		return "address"
	case Array:
		return "array"
	case Map:
		return "map"
	case Set:
		return "set"
	}
	return fmt.Sprintf("Kind(%d)", byte(k))
}

// IsKeyKind reports whether k may be used as a map/set key kind. Keys are
// restricted to logical, integer or string, and every key in one
// container shares the same kind (spec §4.A).
func IsKeyKind(k Kind) bool {
	return k == Logical || k == Integer || k == String
}
