package channel_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opendragon/nimo/internal/channel"
	"github.com/opendragon/nimo/internal/registry"
	"github.com/opendragon/nimo/internal/value"
)

func TestStateTransitionsFollowLifecycle(t *testing.T) {
	in := channel.New(nil, "N1", "/in", registry.DirectionInput, "logic data", registry.TransportTCP, true)
	require.Equal(t, channel.Configured, in.State())

	require.NoError(t, in.SetUp())
	require.Equal(t, channel.SetUp, in.State())

	ctx := context.Background()
	require.NoError(t, in.Start(ctx))
	require.Equal(t, channel.Running, in.State())

	require.NoError(t, in.Stop())
	require.Equal(t, channel.Stopped, in.State())

	// Stop is idempotent.
	require.NoError(t, in.Stop())
}

func TestSetUpRejectsFromWrongState(t *testing.T) {
	in := channel.New(nil, "N1", "/in", registry.DirectionInput, "logic data", registry.TransportTCP, true)
	require.NoError(t, in.SetUp())
	require.Error(t, in.SetUp())
}

func TestTCPLoopbackRoundTrip(t *testing.T) {
	in := channel.New(nil, "N2", "/in", registry.DirectionInput, "logic data", registry.TransportTCP, true)
	require.NoError(t, in.SetUp())

	out := channel.New(nil, "N1", "/out", registry.DirectionOutput, "logic data", registry.TransportTCP, true)
	require.NoError(t, out.SetUp())

	ctx := context.Background()
	require.NoError(t, in.Start(ctx))
	require.NoError(t, out.Connect(in.Endpoint(), registry.TransportTCP))
	require.NoError(t, out.Start(ctx))

	defer in.Stop()
	defer out.Stop()

	sendCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, out.Send(sendCtx, value.NewInteger(42)))

	select {
	case received := <-in.Receive():
		n, ok := received.Value.AsInt64()
		require.True(t, ok)
		require.Equal(t, int64(42), n)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestUDPLoopbackRoundTrip(t *testing.T) {
	in := channel.New(nil, "N2", "/in", registry.DirectionInput, "logic data", registry.TransportUDP, true)
	require.NoError(t, in.SetUp())

	out := channel.New(nil, "N1", "/out", registry.DirectionOutput, "logic data", registry.TransportUDP, true)
	require.NoError(t, out.SetUp())

	ctx := context.Background()
	require.NoError(t, in.Start(ctx))
	require.NoError(t, out.Connect(in.Endpoint(), registry.TransportUDP))
	require.NoError(t, out.Start(ctx))

	defer in.Stop()
	defer out.Stop()

	sendCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, out.Send(sendCtx, value.NewString("hello")))

	select {
	case received := <-in.Receive():
		s, ok := received.Value.AsString()
		require.True(t, ok)
		require.Equal(t, "hello", s)
		require.NotNil(t, received.FromAddress)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}

	stats := in.Statistics()
	require.Equal(t, int64(1), stats.Messages)
	require.Greater(t, stats.Bytes, int64(0))
}

func TestSendOnInputChannelRejected(t *testing.T) {
	in := channel.New(nil, "N1", "/in", registry.DirectionInput, "logic data", registry.TransportTCP, true)
	require.NoError(t, in.SetUp())
	require.NoError(t, in.Start(context.Background()))
	defer in.Stop()

	err := in.Send(context.Background(), value.NewInteger(1))
	require.Error(t, err)
}

func TestDropOldestOverridesBlockingBackpressure(t *testing.T) {
	out := channel.New(nil, "N1", "/out", registry.DirectionOutput, "logic data", registry.TransportTCP, true)
	out.SetDropOldest(true)
	require.NoError(t, out.SetUp())

	// No peer connected and Start is never called, so the send loop never
	// starts draining. Filling the queue past capacity must not block
	// under the drop-oldest policy.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for i := 0; i < channel.DefaultQueueSize+8; i++ {
		require.NoError(t, out.Send(ctx, value.NewInteger(int64(i))))
	}
}
