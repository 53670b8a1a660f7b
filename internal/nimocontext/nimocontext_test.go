package nimocontext_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opendragon/nimo/internal/command"
	"github.com/opendragon/nimo/internal/nimocontext"
	"github.com/opendragon/nimo/internal/registry"
)

func TestContextProfilesMatchParticipationTable(t *testing.T) {
	cases := []struct {
		kind                          registry.ServiceKind
		dataPlane, registers, in, out bool
	}{
		{registry.KindUtility, false, false, false, false},
		{registry.KindMiscellaneous, false, false, false, false},
		{registry.KindFilter, true, true, true, true},
		{registry.KindSource, true, true, false, true},
		{registry.KindSink, true, true, true, false},
		{registry.KindService, true, true, true, true},
		{registry.KindLauncher, false, true, false, false},
		{registry.KindRegistry, false, true, false, false},
	}

	for _, tc := range cases {
		c := nimocontext.New("nimo-test", "test", "N-"+string(tc.kind), "host1", tc.kind)
		require.Equal(t, tc.dataPlane, c.ParticipatesInDataPlane(), tc.kind)
		require.Equal(t, tc.registers, c.RegistersAsNode(), tc.kind)
		require.Equal(t, tc.in, c.AllowsInputChannels(), tc.kind)
		require.Equal(t, tc.out, c.AllowsOutputChannels(), tc.kind)
	}
}

func TestGetChannelLimitsHandlerIsWired(t *testing.T) {
	c := nimocontext.New("nimo-test", "test", "N1", "host1", registry.KindFilter, nimocontext.WithChannelLimits(2, 3))

	resp := c.Engine().Dispatch(context.Background(), command.Request{Key: "getChannelLimits?"})
	require.True(t, resp.OK)

	arr, ok := resp.Payload.AsArray()
	require.True(t, ok)
	require.Len(t, arr, 2)

	maxIn, ok := arr[0].AsInt64()
	require.True(t, ok)
	require.Equal(t, int64(2), maxIn)

	maxOut, ok := arr[1].AsInt64()
	require.True(t, ok)
	require.Equal(t, int64(3), maxOut)
}

func TestAddChannelRejectsWrongDirectionForKind(t *testing.T) {
	c := nimocontext.New("nimo-test", "test", "N1", "host1", registry.KindSource)

	_, err := c.AddChannel(context.Background(), "/in", registry.DirectionInput, "logic data", registry.TransportAny, true)
	require.Error(t, err)
	require.Equal(t, command.BadArgument, command.AsFailure(err).Kind)
}

func TestAddChannelEnforcesLimitExceeded(t *testing.T) {
	c := nimocontext.New("nimo-test", "test", "N1", "host1", registry.KindSource, nimocontext.WithChannelLimits(0, 1))

	_, err := c.AddChannel(context.Background(), "/out1", registry.DirectionOutput, "logic data", registry.TransportAny, true)
	require.NoError(t, err)

	_, err = c.AddChannel(context.Background(), "/out2", registry.DirectionOutput, "logic data", registry.TransportAny, true)
	require.Error(t, err)
	require.Equal(t, command.LimitExceeded, command.AsFailure(err).Kind)
}

func TestRemoveChannelForgetsIt(t *testing.T) {
	c := nimocontext.New("nimo-test", "test", "N1", "host1", registry.KindSource)

	_, err := c.AddChannel(context.Background(), "/out", registry.DirectionOutput, "logic data", registry.TransportAny, true)
	require.NoError(t, err)

	require.NoError(t, c.RemoveChannel(context.Background(), "/out"))

	_, ok := c.Channel("/out")
	require.False(t, ok)
}
