package value

import (
	"fmt"
	"strconv"
	"strings"
)

// Text renders v as a human-readable string for logs and interactive
// tools. Per spec §4.A this form is NOT self-delimiting and MUST NOT be
// used on the wire — only Encode/Decode are wire-safe.
func Text(v Value) string {
	var b strings.Builder
	writeText(&b, v)
	return b.String()
}

func writeText(b *strings.Builder, v Value) {
	switch v.kind {
	case Invalid:
		if v.hasFlawPos {
			fmt.Fprintf(b, "<invalid: %s @%d>", v.flaw, v.flawPos)
		} else {
			fmt.Fprintf(b, "<invalid: %s>", v.flaw)
		}
	case Logical:
		b.WriteString(strconv.FormatBool(v.b))
	case Integer:
		b.WriteString(strconv.FormatInt(v.i, 10))
	case Double:
		b.WriteString(strconv.FormatFloat(v.d, 'g', -1, 64))
	case String:
		b.WriteString(strconv.Quote(v.s))
	case Blob:
		fmt.Fprintf(b, "blob(%d bytes)", len(v.blob))
	case Address:
		ip := v.IP()
		b.WriteString(ip.String())
	case Array:
		b.WriteByte('[')
		for i, e := range v.arr {
			if i > 0 {
				b.WriteString(", ")
			}
			writeText(b, e)
		}
		b.WriteByte(']')
	case Map:
		b.WriteByte('{')
		for i := range v.keys {
			if i > 0 {
				b.WriteString(", ")
			}
			writeText(b, v.keys[i])
			b.WriteString(": ")
			writeText(b, v.vals[i])
		}
		b.WriteByte('}')
	case Set:
		b.WriteByte('(')
		for i, k := range v.keys {
			if i > 0 {
				b.WriteString(", ")
			}
			writeText(b, k)
		}
		b.WriteByte(')')
	default:
		fmt.Fprintf(b, "<unknown kind %v>", v.kind)
	}
}
