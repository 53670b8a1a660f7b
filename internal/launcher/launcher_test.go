package launcher_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opendragon/nimo/internal/command"
	"github.com/opendragon/nimo/internal/launcher"
	"github.com/opendragon/nimo/internal/nimocontext"
	"github.com/opendragon/nimo/internal/registry"
	"github.com/opendragon/nimo/internal/value"
)

func newTestLauncher(t *testing.T) *launcher.Launcher {
	t.Helper()
	ctx := nimocontext.New("nimo-launcherd", "launcher", "L1", "host1", registry.KindLauncher)
	l := launcher.New(ctx)
	l.Load([]launcher.AppDescriptor{
		{ShortName: "echo", Description: "echoes its input", Path: "/bin/echo", ArgParams: []string{"text"}, Options: []string{"-n"}},
	})
	return l
}

func TestGetNumberOfApplications(t *testing.T) {
	l := newTestLauncher(t)
	resp := l.Engine().Dispatch(context.Background(), command.Request{Key: "getNumberOfApplications?"})
	require.True(t, resp.OK)
	n, ok := resp.Payload.AsInt64()
	require.True(t, ok)
	require.Equal(t, int64(1), n)
}

func TestGetApplicationInfoNotFound(t *testing.T) {
	l := newTestLauncher(t)
	resp := l.Engine().Dispatch(context.Background(), command.Request{Key: "getApplicationInfo?", Args: []value.Value{value.NewString("missing")}})
	require.False(t, resp.OK)
	require.Equal(t, command.NotFound, resp.AsFailure().Kind)
}

func TestStartAppRejectsMissingShortName(t *testing.T) {
	l := newTestLauncher(t)
	resp := l.Engine().Dispatch(context.Background(), command.Request{Key: "startApp?"})
	require.False(t, resp.OK)
	require.Equal(t, command.MissingArgument, resp.AsFailure().Kind)
}

func TestStartAppSpawnsProcessAndReportsPID(t *testing.T) {
	l := newTestLauncher(t)
	req := command.Request{Key: "startApp?", Args: []value.Value{
		value.NewString("echo"),
		value.NewArray([]value.Value{value.NewString("hello")}),
		value.NewArray(nil),
	}}
	resp := l.Engine().Dispatch(context.Background(), req)
	require.True(t, resp.OK)

	pid, ok := resp.Payload.AsInt64()
	require.True(t, ok)
	require.Greater(t, pid, int64(0))
}
