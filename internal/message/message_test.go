package message_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opendragon/nimo/internal/message"
	"github.com/opendragon/nimo/internal/value"
)

func sampleArray() value.Value {
	return value.NewArray([]value.Value{
		value.NewString("addNode?"),
		value.NewString("N1"),
		value.NewLogical(true),
	})
}

func TestFrameParseRoundTrip(t *testing.T) {
	v := sampleArray()

	framed, err := message.Frame(v)
	require.NoError(t, err)

	got, err := message.Parse(framed)
	require.NoError(t, err)
	require.True(t, value.Equal(v, got))
}

func TestFrameParseDetectsCorruption(t *testing.T) {
	v := sampleArray()
	framed, err := message.Frame(v)
	require.NoError(t, err)

	framed[len(framed)/2] ^= 0xFF

	_, err = message.Parse(framed)
	require.Error(t, err)
}

func TestTCPWriteReadRoundTrip(t *testing.T) {
	v := sampleArray()

	var buf bytes.Buffer
	require.NoError(t, message.WriteTCP(&buf, v))

	r := message.NewTCPReader(&buf)
	got, err := r.ReadMessage()
	require.NoError(t, err)
	require.True(t, value.Equal(v, got))
}

func TestTCPReaderHandlesMultipleMessages(t *testing.T) {
	v1 := value.NewString("first")
	v2 := value.NewString("second")

	var buf bytes.Buffer
	require.NoError(t, message.WriteTCP(&buf, v1))
	require.NoError(t, message.WriteTCP(&buf, v2))

	r := message.NewTCPReader(&buf)

	got1, err := r.ReadMessage()
	require.NoError(t, err)
	require.True(t, value.Equal(v1, got1))

	got2, err := r.ReadMessage()
	require.NoError(t, err)
	require.True(t, value.Equal(v2, got2))
}

func TestUDPEncodeDecodeRoundTrip(t *testing.T) {
	v := sampleArray()

	datagram, err := message.EncodeUDP(v)
	require.NoError(t, err)

	got, err := message.DecodeUDP(datagram)
	require.NoError(t, err)
	require.True(t, value.Equal(v, got))
}

func TestUDPRejectsOversizeMessage(t *testing.T) {
	big := make([]byte, 4096)
	v := value.NewBlob(big)

	_, err := message.EncodeUDP(v)
	require.ErrorIs(t, err, message.ErrMessageTooLarge)
}

func TestEscapeUnescapeLosslessOverAllBytes(t *testing.T) {
	// Exercise escaping across every possible byte value, including the
	// reserved start/end/escape bytes, wrapped in a Blob so Frame/Parse
	// drive escape()/unescape() end to end.
	all := make([]byte, 256)
	for i := range all {
		all[i] = byte(i)
	}

	v := value.NewBlob(all)
	framed, err := message.Frame(v)
	require.NoError(t, err)

	got, err := message.Parse(framed)
	require.NoError(t, err)
	require.True(t, value.Equal(v, got))
}
