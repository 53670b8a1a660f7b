package message

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/opendragon/nimo/internal/value"
)

// Sentinel is the literal line that terminates a MIME-encoded message on
// a TCP stream (spec §4.B).
const Sentinel = "$$$"

// mimeLineWidth matches classic MIME line wrapping so framed messages can
// share a stream with ordinary log lines without looking exotic.
const mimeLineWidth = 76

// udpMaxPayload is the conservative UDP payload ceiling nImO enforces at
// send time; exceeding it fails with ErrMessageTooLarge rather than
// fragmenting (spec §4.B). 1472 bytes is the common Ethernet-MTU-minus-
// headers figure for UDP/IPv4.
const udpMaxPayload = 1472

// EncodeTCP renders v as the line-wrapped, "$$$"-terminated MIME form
// used on TCP channels and command-port connections.
func EncodeTCP(v value.Value) ([]byte, error) {
	framed, err := Frame(v)
	if err != nil {
		return nil, err
	}

	encoded := base64.StdEncoding.EncodeToString(framed)

	var b strings.Builder
	for len(encoded) > mimeLineWidth {
		b.WriteString(encoded[:mimeLineWidth])
		b.WriteByte('\n')
		encoded = encoded[mimeLineWidth:]
	}
	if len(encoded) > 0 {
		b.WriteString(encoded)
		b.WriteByte('\n')
	}
	b.WriteString(Sentinel)
	b.WriteByte('\n')

	return []byte(b.String()), nil
}

// WriteTCP writes v to w in the TCP MIME form.
func WriteTCP(w io.Writer, v value.Value) error {
	buf, err := EncodeTCP(v)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

// TCPReader accumulates MIME lines from a stream until the sentinel
// arrives, then decodes the resulting Message. Receivers keep one
// TCPReader per connection (spec §4.B "receivers accumulate lines until
// the sentinel").
type TCPReader struct {
	r *bufio.Reader
}

func NewTCPReader(r io.Reader) *TCPReader {
	return &TCPReader{r: bufio.NewReader(r)}
}

// ReadMessage reads and decodes the next Message from the stream. It
// returns io.EOF if the connection closed cleanly between messages.
func (t *TCPReader) ReadMessage() (value.Value, error) {
	var b strings.Builder

	for {
		line, err := t.r.ReadString('\n')
		trimmed := strings.TrimRight(line, "\r\n")

		if trimmed == Sentinel {
			break
		}
		if trimmed != "" {
			b.WriteString(trimmed)
		}

		if err != nil {
			return value.Value{}, err
		}
	}

	raw, err := base64.StdEncoding.DecodeString(b.String())
	if err != nil {
		return value.Value{}, fmt.Errorf("message: bad MIME encoding: %w", err)
	}

	return Parse(raw)
}

// EncodeUDP renders v as the single-datagram MIME form used on UDP
// channels and the UDP status multicast. It fails with
// ErrMessageTooLarge if the encoded datagram would not fit in one
// packet (spec §4.B "messages exceeding the MTU are rejected at send
// time").
func EncodeUDP(v value.Value) ([]byte, error) {
	framed, err := Frame(v)
	if err != nil {
		return nil, err
	}

	encoded := base64.StdEncoding.EncodeToString(framed)
	if len(encoded) > udpMaxPayload {
		return nil, ErrMessageTooLarge
	}

	return []byte(encoded), nil
}

// DecodeUDP decodes a single UDP datagram produced by EncodeUDP.
func DecodeUDP(datagram []byte) (value.Value, error) {
	raw, err := base64.StdEncoding.DecodeString(string(datagram))
	if err != nil {
		return value.Value{}, fmt.Errorf("message: bad MIME encoding: %w", err)
	}
	return Parse(raw)
}
