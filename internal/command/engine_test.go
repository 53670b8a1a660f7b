package command_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opendragon/nimo/internal/command"
	"github.com/opendragon/nimo/internal/value"
)

func startEngine(t *testing.T) (*command.Engine, net.Listener) {
	t.Helper()

	e := command.NewEngine("test", 4)
	e.MustRegister("echo?", func(ctx context.Context, args []value.Value) (value.Value, error) {
		return value.NewArray(args), nil
	})
	e.MustRegister("fail.", func(ctx context.Context, args []value.Value) (value.Value, error) {
		return value.Value{}, command.Fail(command.BadArgument, "nope")
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go e.Serve(ln)

	return e, ln
}

func TestEngineDispatchesAndReplies(t *testing.T) {
	_, ln := startEngine(t)
	defer ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	resp, err := command.Call(ctx, ln.Addr().String(), command.Request{
		Key:  "echo?",
		Args: []value.Value{value.NewInteger(42)},
	})
	require.NoError(t, err)
	require.True(t, resp.OK)
	require.Equal(t, "echo=", resp.Key)

	arr, ok := resp.Payload.AsArray()
	require.True(t, ok)
	require.Len(t, arr, 1)
	i, _ := arr[0].AsInt64()
	require.Equal(t, int64(42), i)
}

func TestEngineReturnsFailureReason(t *testing.T) {
	_, ln := startEngine(t)
	defer ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	resp, err := command.Call(ctx, ln.Addr().String(), command.Request{Key: "fail."})
	require.NoError(t, err)
	require.False(t, resp.OK)
	require.Equal(t, "badArgument: nope", resp.FailureReason)

	f := resp.AsFailure()
	require.NotNil(t, f)
	require.Equal(t, command.BadArgument, f.Kind)
	require.Equal(t, "nope", f.Reason)
}

func TestEngineUnknownKeyReportsUnknownRequest(t *testing.T) {
	_, ln := startEngine(t)
	defer ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	resp, err := command.Call(ctx, ln.Addr().String(), command.Request{Key: "bogus?"})
	require.NoError(t, err)
	require.False(t, resp.OK)
	require.Equal(t, "unknown request", resp.FailureReason)
}

func TestRegisterAfterServeFails(t *testing.T) {
	e, ln := startEngine(t)
	defer ln.Close()

	// give Serve a moment to flip the started flag
	time.Sleep(10 * time.Millisecond)

	err := e.Register("late.", func(ctx context.Context, args []value.Value) (value.Value, error) {
		return value.Value{}, nil
	})
	require.Error(t, err)
}
