package registryproxy_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opendragon/nimo/internal/command"
	"github.com/opendragon/nimo/internal/registry"
	"github.com/opendragon/nimo/internal/registryproxy"
)

func startRegistry(t *testing.T) *registryproxy.Proxy {
	t.Helper()

	r := registry.New(nil, 0)
	engine := command.NewEngine("registry", 8)
	require.NoError(t, registry.RegisterHandlers(engine, r, nil))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go engine.Serve(ln)

	return registryproxy.New(ln.Addr().String())
}

func TestProxyAddAndQueryNode(t *testing.T) {
	p := startRegistry(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, p.AddNode(ctx, "N1", "host1", registry.KindFilter, registry.Endpoint{Address: 0x7f000001, Port: 9000}))

	present, err := p.IsNodePresent(ctx, "N1")
	require.NoError(t, err)
	require.True(t, present)

	n, err := p.GetNodeInformation(ctx, "N1")
	require.NoError(t, err)
	require.Equal(t, "N1", n.Name)
	require.Equal(t, registry.KindFilter, n.Kind)
	require.Equal(t, 9000, n.Command.Port)
}

func TestProxyChannelAndConnectionLifecycle(t *testing.T) {
	p := startRegistry(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, p.AddNode(ctx, "N1", "host1", registry.KindSource, registry.Endpoint{}))
	require.NoError(t, p.AddNode(ctx, "N2", "host1", registry.KindSink, registry.Endpoint{}))
	require.NoError(t, p.AddOutputChannel(ctx, "N1", "/out", "logic data", registry.TransportTCP, true))
	require.NoError(t, p.AddInputChannel(ctx, "N2", "/in", "logic data", registry.TransportAny, true))

	transport, err := p.AddConnection(ctx, "N1", "/out", "N2", "/in")
	require.NoError(t, err)
	require.Equal(t, registry.TransportTCP, transport)

	_, err = p.AddConnection(ctx, "N1", "/out", "N2", "/in")
	require.Error(t, err)

	count, err := p.GetNumberOfConnections(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	require.NoError(t, p.Disconnect(ctx, "N2", "/in"))

	count, err = p.GetNumberOfConnections(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, count)
}

func TestProxyApplicationCatalogueReload(t *testing.T) {
	p := startRegistry(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, p.RegisterApplication(ctx, registry.Application{LauncherNode: "L1", ShortName: "alpha", Description: "d", Path: "/bin/alpha"}))
	require.NoError(t, p.RegisterApplication(ctx, registry.Application{LauncherNode: "L1", ShortName: "beta", Description: "d", Path: "/bin/beta"}))

	n, err := p.GetNumberOfApplications(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	require.NoError(t, p.UnregisterApplicationsExcept(ctx, "L1", []string{"alpha"}))

	n, err = p.GetNumberOfApplications(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	a, err := p.GetApplicationInformation(ctx, "L1", "alpha")
	require.NoError(t, err)
	require.Equal(t, "alpha", a.ShortName)
}

func TestProxyNotFoundSurfacesTypedFailure(t *testing.T) {
	p := startRegistry(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := p.GetNodeInformation(ctx, "missing")
	require.Error(t, err)

	f := command.AsFailure(err)
	require.Equal(t, command.NotFound, f.Kind)
}
