package registry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opendragon/nimo/internal/command"
	"github.com/opendragon/nimo/internal/registry"
	"github.com/opendragon/nimo/internal/value"
)

func TestRegisterHandlersWiresAddAndQueryNode(t *testing.T) {
	r := newTestRegistry()
	engine := command.NewEngine("registry", 4)
	require.NoError(t, registry.RegisterHandlers(engine, r, nil))

	addResp := engine.Dispatch(context.Background(), command.Request{
		Key: "addNode?",
		Args: []value.Value{
			value.NewString("N1"), value.NewString("host1"), value.NewString(string(registry.KindFilter)),
			value.NewAddress(0x7f000001), value.NewInteger(9000),
		},
	})
	require.True(t, addResp.OK)

	presentResp := engine.Dispatch(context.Background(), command.Request{
		Key:  "isNodePresent?",
		Args: []value.Value{value.NewString("N1")},
	})
	require.True(t, presentResp.OK)
	b, ok := presentResp.Payload.AsBool()
	require.True(t, ok)
	require.True(t, b)
}

func TestRegisterHandlersReportsNotFoundAsFailureReason(t *testing.T) {
	r := newTestRegistry()
	engine := command.NewEngine("registry", 4)
	require.NoError(t, registry.RegisterHandlers(engine, r, nil))

	resp := engine.Dispatch(context.Background(), command.Request{
		Key:  "getNodeInformation?",
		Args: []value.Value{value.NewString("missing")},
	})
	require.False(t, resp.OK)
	f := resp.AsFailure()
	require.NotNil(t, f)
	require.Equal(t, command.NotFound, f.Kind)
}

func TestRegisterHandlersApplicationCatalogueReload(t *testing.T) {
	r := newTestRegistry()
	engine := command.NewEngine("registry", 4)
	require.NoError(t, registry.RegisterHandlers(engine, r, nil))

	register := func(shortName string) command.Response {
		return engine.Dispatch(context.Background(), command.Request{
			Key: "registerApplication?",
			Args: []value.Value{
				value.NewString("L1"), value.NewString(shortName),
				value.NewString("desc"), value.NewString("/bin/"+shortName),
			},
		})
	}
	require.True(t, register("alpha").OK)
	require.True(t, register("beta").OK)

	countResp := engine.Dispatch(context.Background(), command.Request{Key: "getNumberOfApplications?"})
	n, _ := countResp.Payload.AsInt64()
	require.Equal(t, int64(2), n)

	unregResp := engine.Dispatch(context.Background(), command.Request{
		Key: "unregisterApplicationsExcept?",
		Args: []value.Value{
			value.NewString("L1"), value.NewArray([]value.Value{value.NewString("alpha")}),
		},
	})
	require.True(t, unregResp.OK)

	countResp = engine.Dispatch(context.Background(), command.Request{Key: "getNumberOfApplications?"})
	n, _ = countResp.Payload.AsInt64()
	require.Equal(t, int64(1), n)

	infoResp := engine.Dispatch(context.Background(), command.Request{
		Key:  "getApplicationInformation?",
		Args: []value.Value{value.NewString("L1"), value.NewString("beta")},
	})
	require.False(t, infoResp.OK)
	require.Equal(t, command.NotFound, infoResp.AsFailure().Kind)
}
