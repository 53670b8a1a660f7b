// Binary codec for Value, per spec §4.A: a tag-prefixed, length-prefixed
// format designed for unambiguous recovery. Grounded on the teacher's
// general shape of "one goroutine, one encoder, flat switch on a tag
// byte" (meshage/ron used gob for this; nImO's wire format is specified
// explicitly by spec.md, so the codec below is hand-rolled rather than
// gob-based, but keeps the teacher's single-pass encode/decode style).
package value

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Wire tags. The high nibble selects the kind, the low nibble carries a
// size class or subtype where one is needed.
const (
	tagInvalid      byte = 0x00
	tagLogicalFalse byte = 0x01
	tagLogicalTrue  byte = 0x02

	tagInteger1 byte = 0x10
	tagInteger2 byte = 0x11
	tagInteger4 byte = 0x12
	tagInteger8 byte = 0x13

	tagDouble byte = 0x20

	tagString byte = 0x30
	tagBlob   byte = 0x40
	tagAddress byte = 0x50

	tagArray byte = 0x60

	tagMapLogicalKey byte = 0x70
	tagMapIntegerKey byte = 0x71
	tagMapStringKey  byte = 0x72

	tagSetLogicalKey byte = 0x80
	tagSetIntegerKey byte = 0x81
	tagSetStringKey  byte = 0x82
)

func doubleBits(d float64) uint64 { return math.Float64bits(d) }

// Encode appends the binary encoding of v to buf and returns the result.
func Encode(buf []byte, v Value) ([]byte, error) {
	switch v.kind {
	case Invalid:
		buf = append(buf, tagInvalid)
		buf = encodeUvarint(buf, uint64(len(v.flaw)))
		buf = append(buf, v.flaw...)
		return buf, nil

	case Logical:
		if v.b {
			return append(buf, tagLogicalTrue), nil
		}
		return append(buf, tagLogicalFalse), nil

	case Integer:
		return encodeInteger(buf, v.i), nil

	case Double:
		buf = append(buf, tagDouble)
		var tmp [8]byte
		binary.BigEndian.PutUint64(tmp[:], doubleBits(v.d))
		return append(buf, tmp[:]...), nil

	case String:
		buf = append(buf, tagString)
		buf = encodeUvarint(buf, uint64(len(v.s)))
		return append(buf, v.s...), nil

	case Blob:
		buf = append(buf, tagBlob)
		buf = encodeUvarint(buf, uint64(len(v.blob)))
		return append(buf, v.blob...), nil

	case Address:
		buf = append(buf, tagAddress)
		var tmp [4]byte
		binary.BigEndian.PutUint32(tmp[:], v.addr)
		return append(buf, tmp[:]...), nil

	case Array:
		buf = append(buf, tagArray)
		buf = encodeUvarint(buf, uint64(len(v.arr)))
		var err error
		for _, e := range v.arr {
			buf, err = Encode(buf, e)
			if err != nil {
				return nil, err
			}
		}
		return buf, nil

	case Map:
		tag, err := mapKeyTag(v.keyKind)
		if err != nil {
			return nil, err
		}
		buf = append(buf, tag)
		buf = encodeUvarint(buf, uint64(len(v.keys)))
		for i := range v.keys {
			buf, err = Encode(buf, v.keys[i])
			if err != nil {
				return nil, err
			}
			buf, err = Encode(buf, v.vals[i])
			if err != nil {
				return nil, err
			}
		}
		return buf, nil

	case Set:
		tag, err := setKeyTag(v.keyKind)
		if err != nil {
			return nil, err
		}
		buf = append(buf, tag)
		buf = encodeUvarint(buf, uint64(len(v.keys)))
		for _, k := range v.keys {
			buf, err = Encode(buf, k)
			if err != nil {
				return nil, err
			}
		}
		return buf, nil
	}

	return nil, fmt.Errorf("value: encode: unknown kind %v", v.kind)
}

func mapKeyTag(k Kind) (byte, error) {
	switch k {
	case Logical:
		return tagMapLogicalKey, nil
	case Integer:
		return tagMapIntegerKey, nil
	case String:
		return tagMapStringKey, nil
	}
	return 0, fmt.Errorf("value: invalid map key kind %v", k)
}

func setKeyTag(k Kind) (byte, error) {
	switch k {
	case Logical:
		return tagSetLogicalKey, nil
	case Integer:
		return tagSetIntegerKey, nil
	case String:
		return tagSetStringKey, nil
	}
	return 0, fmt.Errorf("value: invalid set key kind %v", k)
}

// encodeInteger picks the smallest of 1/2/4/8 signed bytes that can
// represent i, sign-extending on decode (spec §4.A).
func encodeInteger(buf []byte, i int64) []byte {
	switch {
	case i >= -0x80 && i <= 0x7f:
		buf = append(buf, tagInteger1)
		return append(buf, byte(i))
	case i >= -0x8000 && i <= 0x7fff:
		buf = append(buf, tagInteger2)
		var tmp [2]byte
		binary.BigEndian.PutUint16(tmp[:], uint16(i))
		return append(buf, tmp[:]...)
	case i >= -0x80000000 && i <= 0x7fffffff:
		buf = append(buf, tagInteger4)
		var tmp [4]byte
		binary.BigEndian.PutUint32(tmp[:], uint32(i))
		return append(buf, tmp[:]...)
	default:
		buf = append(buf, tagInteger8)
		var tmp [8]byte
		binary.BigEndian.PutUint64(tmp[:], uint64(i))
		return append(buf, tmp[:]...)
	}
}

func encodeUvarint(buf []byte, u uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], u)
	return append(buf, tmp[:n]...)
}

// Decode reads one Value from the front of buf and returns it along with
// the number of bytes consumed. Empty, truncated or otherwise malformed
// input returns a non-nil error; an encoded Invalid value decodes to a
// flaw Value carrying its description.
func Decode(buf []byte) (Value, int, error) {
	if len(buf) == 0 {
		return Value{}, 0, fmt.Errorf("value: decode: empty input")
	}

	tag := buf[0]
	rest := buf[1:]
	consumed := 1

	switch tag {
	case tagInvalid:
		s, n, err := decodeString(rest)
		if err != nil {
			return Value{}, 0, err
		}
		return NewFlaw(s), consumed + n, nil

	case tagLogicalFalse:
		return NewLogical(false), consumed, nil
	case tagLogicalTrue:
		return NewLogical(true), consumed, nil

	case tagInteger1:
		if len(rest) < 1 {
			return Value{}, 0, fmt.Errorf("value: decode: truncated integer1")
		}
		return NewInteger(int64(int8(rest[0]))), consumed + 1, nil
	case tagInteger2:
		if len(rest) < 2 {
			return Value{}, 0, fmt.Errorf("value: decode: truncated integer2")
		}
		return NewInteger(int64(int16(binary.BigEndian.Uint16(rest)))), consumed + 2, nil
	case tagInteger4:
		if len(rest) < 4 {
			return Value{}, 0, fmt.Errorf("value: decode: truncated integer4")
		}
		return NewInteger(int64(int32(binary.BigEndian.Uint32(rest)))), consumed + 4, nil
	case tagInteger8:
		if len(rest) < 8 {
			return Value{}, 0, fmt.Errorf("value: decode: truncated integer8")
		}
		return NewInteger(int64(binary.BigEndian.Uint64(rest))), consumed + 8, nil

	case tagDouble:
		if len(rest) < 8 {
			return Value{}, 0, fmt.Errorf("value: decode: truncated double")
		}
		bits := binary.BigEndian.Uint64(rest)
		return NewDouble(math.Float64frombits(bits)), consumed + 8, nil

	case tagString:
		s, n, err := decodeString(rest)
		if err != nil {
			return Value{}, 0, err
		}
		return NewString(s), consumed + n, nil

	case tagBlob:
		length, n, err := decodeUvarint(rest)
		if err != nil {
			return Value{}, 0, err
		}
		rest2 := rest[n:]
		if uint64(len(rest2)) < length {
			return Value{}, 0, fmt.Errorf("value: decode: truncated blob")
		}
		return NewBlob(rest2[:length]), consumed + n + int(length), nil

	case tagAddress:
		if len(rest) < 4 {
			return Value{}, 0, fmt.Errorf("value: decode: truncated address")
		}
		return NewAddress(binary.BigEndian.Uint32(rest)), consumed + 4, nil

	case tagArray:
		count, n, err := decodeUvarint(rest)
		if err != nil {
			return Value{}, 0, err
		}
		off := n
		elems := make([]Value, 0, count)
		for i := uint64(0); i < count; i++ {
			v, m, err := Decode(rest[off:])
			if err != nil {
				return Value{}, 0, err
			}
			elems = append(elems, v)
			off += m
		}
		return NewArray(elems), consumed + off, nil

	case tagMapLogicalKey, tagMapIntegerKey, tagMapStringKey:
		keyKind := mapTagKind(tag)
		count, n, err := decodeUvarint(rest)
		if err != nil {
			return Value{}, 0, err
		}
		off := n
		keys := make([]Value, 0, count)
		vals := make([]Value, 0, count)
		for i := uint64(0); i < count; i++ {
			k, m, err := Decode(rest[off:])
			if err != nil {
				return Value{}, 0, err
			}
			off += m
			val, m2, err := Decode(rest[off:])
			if err != nil {
				return Value{}, 0, err
			}
			off += m2
			keys = append(keys, k)
			vals = append(vals, val)
		}
		mv, err := NewMap(keyKind, keys, vals)
		if err != nil {
			return Value{}, 0, err
		}
		return mv, consumed + off, nil

	case tagSetLogicalKey, tagSetIntegerKey, tagSetStringKey:
		keyKind := setTagKind(tag)
		count, n, err := decodeUvarint(rest)
		if err != nil {
			return Value{}, 0, err
		}
		off := n
		members := make([]Value, 0, count)
		for i := uint64(0); i < count; i++ {
			k, m, err := Decode(rest[off:])
			if err != nil {
				return Value{}, 0, err
			}
			members = append(members, k)
			off += m
		}
		sv, err := NewSet(keyKind, members)
		if err != nil {
			return Value{}, 0, err
		}
		return sv, consumed + off, nil
	}

	return Value{}, 0, fmt.Errorf("value: decode: unknown tag 0x%02x", tag)
}

func mapTagKind(tag byte) Kind {
	switch tag {
	case tagMapLogicalKey:
		return Logical
	case tagMapIntegerKey:
		return Integer
	default:
		return String
	}
}

func setTagKind(tag byte) Kind {
	switch tag {
	case tagSetLogicalKey:
		return Logical
	case tagSetIntegerKey:
		return Integer
	default:
		return String
	}
}

func decodeUvarint(buf []byte) (uint64, int, error) {
	u, n := binary.Uvarint(buf)
	if n <= 0 {
		return 0, 0, fmt.Errorf("value: decode: bad varint")
	}
	return u, n, nil
}

func decodeString(buf []byte) (string, int, error) {
	length, n, err := decodeUvarint(buf)
	if err != nil {
		return "", 0, err
	}
	rest := buf[n:]
	if uint64(len(rest)) < length {
		return "", 0, fmt.Errorf("value: decode: truncated string")
	}
	return string(rest[:length]), n + int(length), nil
}
