package registry_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opendragon/nimo/internal/command"
	"github.com/opendragon/nimo/internal/registry"
)

func newTestRegistry() *registry.Registry {
	return registry.New(nil, 0)
}

func failureKind(t *testing.T, err error) command.FailureKind {
	t.Helper()
	f := command.AsFailure(err)
	require.NotNil(t, f)
	return f.Kind
}

func TestAddNodeRejectsDuplicateName(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.AddNode("N1", "host1", registry.KindFilter, registry.Endpoint{Address: 1, Port: 9000}))

	err := r.AddNode("N1", "host2", registry.KindFilter, registry.Endpoint{})
	require.Error(t, err)
	require.Equal(t, command.AlreadyExists, failureKind(t, err))
}

func TestCascadingRemoveNode(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.AddNode("N1", "host1", registry.KindFilter, registry.Endpoint{}))
	require.NoError(t, r.AddChannel("N1", "/out", registry.DirectionOutput, "logic data", registry.TransportAny, true))

	require.NoError(t, r.RemoveNode("N1"))

	require.False(t, r.IsNodePresent("N1"))
	require.False(t, r.IsChannelPresent("N1", "/out"))
}

func TestCascadingRemoveNodeDropsConnections(t *testing.T) {
	r := newTestRegistry()
	setupConnectedPair(t, r)

	require.NoError(t, r.RemoveNode("N1"))

	require.Equal(t, 0, r.GetNumberOfConnections())
	ch, err := r.GetChannelInformation("N2", "/in")
	require.NoError(t, err)
	require.False(t, ch.InUse)
}

func setupConnectedPair(t *testing.T, r *registry.Registry) {
	t.Helper()
	require.NoError(t, r.AddNode("N1", "host1", registry.KindSource, registry.Endpoint{}))
	require.NoError(t, r.AddNode("N2", "host1", registry.KindSink, registry.Endpoint{}))
	require.NoError(t, r.AddChannel("N1", "/out", registry.DirectionOutput, "logic data", registry.TransportTCP, true))
	require.NoError(t, r.AddChannel("N2", "/in", registry.DirectionInput, "logic data", registry.TransportAny, true))

	transport, err := r.AddConnection("N1", "/out", "N2", "/in")
	require.NoError(t, err)
	require.Equal(t, registry.TransportTCP, transport)
}

func TestAddConnectionSecondSinkAttemptFailsChannelInUse(t *testing.T) {
	r := newTestRegistry()
	setupConnectedPair(t, r)
	require.NoError(t, r.AddNode("N3", "host1", registry.KindSource, registry.Endpoint{}))
	require.NoError(t, r.AddChannel("N3", "/o", registry.DirectionOutput, "logic data", registry.TransportTCP, true))

	_, err := r.AddConnection("N3", "/o", "N2", "/in")
	require.Error(t, err)
	require.Equal(t, command.ChannelInUse, failureKind(t, err))
}

func TestAddConnectionDataTypeMismatch(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.AddNode("N1", "host1", registry.KindSource, registry.Endpoint{}))
	require.NoError(t, r.AddNode("N2", "host1", registry.KindSink, registry.Endpoint{}))
	require.NoError(t, r.AddChannel("N1", "/out", registry.DirectionOutput, "image", registry.TransportAny, true))
	require.NoError(t, r.AddChannel("N2", "/in", registry.DirectionInput, "logic data", registry.TransportAny, true))

	_, err := r.AddConnection("N1", "/out", "N2", "/in")
	require.Error(t, err)
	require.Equal(t, command.BadArgument, failureKind(t, err))
	require.Contains(t, command.AsFailure(err).Reason, "data type")
}

func TestAddConnectionTransportMismatch(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.AddNode("N1", "host1", registry.KindSource, registry.Endpoint{}))
	require.NoError(t, r.AddNode("N2", "host1", registry.KindSink, registry.Endpoint{}))
	require.NoError(t, r.AddChannel("N1", "/out", registry.DirectionOutput, "logic data", registry.TransportTCP, true))
	require.NoError(t, r.AddChannel("N2", "/in", registry.DirectionInput, "logic data", registry.TransportUDP, true))

	_, err := r.AddConnection("N1", "/out", "N2", "/in")
	require.Error(t, err)
	require.Equal(t, command.TransportMismatch, failureKind(t, err))
}

func TestRemoveChannelBlockedWhileInUse(t *testing.T) {
	r := newTestRegistry()
	setupConnectedPair(t, r)

	err := r.RemoveChannel("N2", "/in")
	require.Error(t, err)
	require.Equal(t, command.ChannelInUse, failureKind(t, err))
}

func TestRemoveConnectionBySinkClearsInUse(t *testing.T) {
	r := newTestRegistry()
	setupConnectedPair(t, r)

	require.NoError(t, r.RemoveConnection("N2", "/in"))

	ch, err := r.GetChannelInformation("N2", "/in")
	require.NoError(t, err)
	require.False(t, ch.InUse)
	require.Equal(t, 0, r.GetNumberOfConnections())
}

func TestMachineNamesAreCaseInsensitive(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.AddMachine("Host1", 0x7f000001))
	require.True(t, r.IsMachinePresent("host1"))
	require.True(t, r.IsMachinePresent("HOST1"))
}

func TestConcurrentAddConnectionClaimsSinkOnce(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.AddNode("N2", "host1", registry.KindSink, registry.Endpoint{}))
	require.NoError(t, r.AddChannel("N2", "/in", registry.DirectionInput, "logic data", registry.TransportAny, true))
	require.NoError(t, r.AddNode("N1", "host1", registry.KindSource, registry.Endpoint{}))
	require.NoError(t, r.AddChannel("N1", "/out", registry.DirectionOutput, "logic data", registry.TransportAny, true))
	require.NoError(t, r.AddNode("N3", "host1", registry.KindSource, registry.Endpoint{}))
	require.NoError(t, r.AddChannel("N3", "/o", registry.DirectionOutput, "logic data", registry.TransportAny, true))

	results := make(chan error, 2)
	start := make(chan struct{})
	attempt := func(fromNode, fromPath string) {
		<-start
		_, err := r.AddConnection(fromNode, fromPath, "N2", "/in")
		results <- err
	}
	go attempt("N1", "/out")
	go attempt("N3", "/o")
	close(start)

	err1 := <-results
	err2 := <-results

	successes := 0
	failures := 0
	for _, err := range []error{err1, err2} {
		if err == nil {
			successes++
		} else {
			require.Equal(t, command.ChannelInUse, failureKind(t, err))
			failures++
		}
	}
	require.Equal(t, 1, successes)
	require.Equal(t, 1, failures)
}

func TestApplicationCatalogueReload(t *testing.T) {
	r := newTestRegistry()
	r.RegisterApplication(registry.Application{LauncherNode: "L1", ShortName: "a", Path: "/bin/a"})
	r.RegisterApplication(registry.Application{LauncherNode: "L1", ShortName: "b", Path: "/bin/b"})
	require.Equal(t, 2, r.GetNumberOfApplications())

	r.UnregisterApplicationsExcept("L1", []string{"a"})

	require.Equal(t, 1, r.GetNumberOfApplications())
	_, err := r.GetApplicationInformation("L1", "a")
	require.NoError(t, err)
	_, err = r.GetApplicationInformation("L1", "b")
	require.Error(t, err)
	require.Equal(t, command.NotFound, failureKind(t, err))
}

func TestAddNodeCreatesMachineOnFirstRegistration(t *testing.T) {
	r := newTestRegistry()
	require.False(t, r.IsMachinePresent("alpha"))

	require.NoError(t, r.AddNode("N1", "alpha", registry.KindFilter, registry.Endpoint{Address: 0x0a000001, Port: 9000}))

	require.True(t, r.IsMachinePresent("alpha"))
	m, err := r.GetMachineInformation("alpha")
	require.NoError(t, err)
	require.Equal(t, uint32(0x0a000001), m.Address)
	require.Equal(t, 1, r.GetNumberOfMachines())
}

func TestRemoveNodeDeletesMachineOnceItsLastNodeIsGone(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.AddNode("N1", "alpha", registry.KindFilter, registry.Endpoint{Address: 0x0a000001, Port: 9000}))
	require.NoError(t, r.AddNode("N2", "alpha", registry.KindSink, registry.Endpoint{Address: 0x0a000001, Port: 9001}))

	require.NoError(t, r.RemoveNode("N1"))
	require.True(t, r.IsMachinePresent("alpha"), "machine should survive while N2 is still registered")

	require.NoError(t, r.RemoveNode("N2"))
	require.False(t, r.IsMachinePresent("alpha"), "machine should be removed once its last node leaves")
}

func TestAddConnectionAgreesOnTheConcreteDataType(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.AddNode("N1", "host1", registry.KindSource, registry.Endpoint{}))
	require.NoError(t, r.AddNode("N2", "host1", registry.KindSink, registry.Endpoint{}))
	require.NoError(t, r.AddChannel("N1", "/out", registry.DirectionOutput, "logic data", registry.TransportAny, true))
	require.NoError(t, r.AddChannel("N2", "/in", registry.DirectionInput, registry.WildcardDataType, registry.TransportAny, true))

	_, err := r.AddConnection("N1", "/out", "N2", "/in")
	require.NoError(t, err)

	conns := r.GetInformationForAllConnections()
	require.Len(t, conns, 1)
	require.Equal(t, "logic data", conns[0].DataType)
}

func TestRemoveNodeDropsItsApplications(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.AddNode("L1", "host1", registry.KindLauncher, registry.Endpoint{}))
	r.RegisterApplication(registry.Application{LauncherNode: "L1", ShortName: "a", Path: "/bin/a"})

	require.NoError(t, r.RemoveNode("L1"))

	require.Equal(t, 0, r.GetNumberOfApplications())
}
