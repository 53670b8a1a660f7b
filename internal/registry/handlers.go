package registry

import (
	"context"
	"fmt"

	"github.com/opendragon/nimo/internal/command"
	"github.com/opendragon/nimo/internal/value"
)

// RegisterHandlers wires every Registry operation into engine's handler
// table under the request keys spec §4.G enumerates, translating
// between wire Values and Go types at the boundary. If metrics is
// non-nil, each dispatch is counted by request key and outcome.
//
// Grounded on the teacher's minicli.Register pattern: one key, one
// HandlerFunc, registered before the server starts accepting connections
// (internal/command/engine.go already enforces the "read-only once
// started" rule from spec §4.C).
func RegisterHandlers(engine *command.Engine, r *Registry, metrics *Metrics) error {
	for _, h := range []struct {
		key string
		fn  command.HandlerFunc
	}{
		{"addMachine?", wrap(metrics, "addMachine", r.handleAddMachine)},
		{"removeMachine?", wrap(metrics, "removeMachine", r.handleRemoveMachine)},
		{"isMachinePresent?", wrap(metrics, "isMachinePresent", r.handleIsMachinePresent)},
		{"getMachineInformation?", wrap(metrics, "getMachineInformation", r.handleGetMachineInformation)},
		{"getNamesOfMachines?", wrap(metrics, "getNamesOfMachines", r.handleGetNamesOfMachines)},
		{"getNumberOfMachines?", wrap(metrics, "getNumberOfMachines", r.handleGetNumberOfMachines)},

		{"addNode?", wrap(metrics, "addNode", r.handleAddNode)},
		{"removeNode?", wrap(metrics, "removeNode", r.handleRemoveNode)},
		{"heartbeat?", wrap(metrics, "heartbeat", r.handleHeartbeat)},
		{"isNodePresent?", wrap(metrics, "isNodePresent", r.handleIsNodePresent)},
		{"getNodeInformation?", wrap(metrics, "getNodeInformation", r.handleGetNodeInformation)},
		{"getNamesOfNodes?", wrap(metrics, "getNamesOfNodes", r.handleGetNamesOfNodes)},
		{"getNamesOfNodesOnMachine?", wrap(metrics, "getNamesOfNodesOnMachine", r.handleGetNamesOfNodesOnMachine)},
		{"getNumberOfNodes?", wrap(metrics, "getNumberOfNodes", r.handleGetNumberOfNodes)},
		{"getNumberOfNodesOnMachine?", wrap(metrics, "getNumberOfNodesOnMachine", r.handleGetNumberOfNodesOnMachine)},

		{"addChannel?", wrap(metrics, "addChannel", r.handleAddChannel)},
		{"removeChannel?", wrap(metrics, "removeChannel", r.handleRemoveChannel)},
		{"removeChannelsForNode?", wrap(metrics, "removeChannelsForNode", r.handleRemoveChannelsForNode)},
		{"isChannelPresent?", wrap(metrics, "isChannelPresent", r.handleIsChannelPresent)},
		{"getChannelInformation?", wrap(metrics, "getChannelInformation", r.handleGetChannelInformation)},
		{"getInformationForAllChannelsOnNode?", wrap(metrics, "getInformationForAllChannelsOnNode", r.handleGetInformationForAllChannelsOnNode)},
		{"getNumberOfInputChannelsOnNode?", wrap(metrics, "getNumberOfInputChannelsOnNode", r.handleGetNumberOfInputChannelsOnNode)},
		{"getNumberOfOutputChannelsOnNode?", wrap(metrics, "getNumberOfOutputChannelsOnNode", r.handleGetNumberOfOutputChannelsOnNode)},
		{"setChannelInUse?", wrap(metrics, "setChannelInUse", r.handleSetChannelInUse)},
		{"getChannelStatistics?", wrap(metrics, "getChannelStatistics", r.handleGetChannelStatistics)},
		{"updateChannelStatistics?", wrap(metrics, "updateChannelStatistics", r.handleUpdateChannelStatistics)},

		{"addConnection?", wrap(metrics, "addConnection", r.handleAddConnection)},
		{"removeConnection?", wrap(metrics, "removeConnection", r.handleRemoveConnection)},
		{"getInformationForAllConnections?", wrap(metrics, "getInformationForAllConnections", r.handleGetInformationForAllConnections)},
		{"getInformationForAllConnectionsOnNode?", wrap(metrics, "getInformationForAllConnectionsOnNode", r.handleGetInformationForAllConnectionsOnNode)},
		{"getNumberOfConnections?", wrap(metrics, "getNumberOfConnections", r.handleGetNumberOfConnections)},

		{"registerApplication?", wrap(metrics, "registerApplication", r.handleRegisterApplication)},
		{"unregisterApplicationsExcept?", wrap(metrics, "unregisterApplicationsExcept", r.handleUnregisterApplicationsExcept)},
		{"getApplicationInformation?", wrap(metrics, "getApplicationInformation", r.handleGetApplicationInformation)},
		{"getNumberOfApplications?", wrap(metrics, "getNumberOfApplications", r.handleGetNumberOfApplications)},
		{"getNamesOfApplicationsOnNode?", wrap(metrics, "getNamesOfApplicationsOnNode", r.handleGetNamesOfApplicationsOnNode)},
		{"getInformationForAllApplicationsOnNode?", wrap(metrics, "getInformationForAllApplicationsOnNode", r.handleGetInformationForAllApplicationsOnNode)},
	} {
		if err := engine.Register(h.key, h.fn); err != nil {
			return fmt.Errorf("registry: register %v: %w", h.key, err)
		}
	}
	return nil
}

func wrap(m *Metrics, request string, fn command.HandlerFunc) command.HandlerFunc {
	return func(ctx context.Context, args []value.Value) (value.Value, error) {
		v, err := fn(ctx, args)
		if m != nil {
			m.observe(request, err == nil)
		}
		return v, err
	}
}

func stringArg(args []value.Value, i int) (string, error) {
	if i >= len(args) {
		return "", command.Fail(command.MissingArgument, "missing argument")
	}
	s, ok := args[i].AsString()
	if !ok {
		return "", command.Fail(command.BadArgument, "argument is not a string")
	}
	return s, nil
}

func boolArg(args []value.Value, i int) (bool, error) {
	if i >= len(args) {
		return false, command.Fail(command.MissingArgument, "missing argument")
	}
	b, ok := args[i].AsBool()
	if !ok {
		return false, command.Fail(command.BadArgument, "argument is not a logical")
	}
	return b, nil
}

func intArg(args []value.Value, i int) (int64, error) {
	if i >= len(args) {
		return 0, command.Fail(command.MissingArgument, "missing argument")
	}
	n, ok := args[i].AsInt64()
	if !ok {
		return 0, command.Fail(command.BadArgument, "argument is not an integer")
	}
	return n, nil
}

func namesToValue(names []string) value.Value {
	elems := make([]value.Value, len(names))
	for i, n := range names {
		elems[i] = value.NewString(n)
	}
	return value.NewArray(elems)
}

func (r *Registry) handleAddMachine(_ context.Context, args []value.Value) (value.Value, error) {
	name, err := stringArg(args, 0)
	if err != nil {
		return value.Value{}, err
	}
	addr, err := intArg(args, 1)
	if err != nil {
		return value.Value{}, err
	}
	if err := r.AddMachine(name, uint32(addr)); err != nil {
		return value.Value{}, err
	}
	return value.NewLogical(true), nil
}

func (r *Registry) handleRemoveMachine(_ context.Context, args []value.Value) (value.Value, error) {
	name, err := stringArg(args, 0)
	if err != nil {
		return value.Value{}, err
	}
	if err := r.RemoveMachine(name); err != nil {
		return value.Value{}, err
	}
	return value.NewLogical(true), nil
}

func (r *Registry) handleIsMachinePresent(_ context.Context, args []value.Value) (value.Value, error) {
	name, err := stringArg(args, 0)
	if err != nil {
		return value.Value{}, err
	}
	return value.NewLogical(r.IsMachinePresent(name)), nil
}

func machineToValue(m Machine) value.Value {
	return value.NewArray([]value.Value{value.NewString(m.Name), value.NewAddress(m.Address)})
}

func (r *Registry) handleGetMachineInformation(_ context.Context, args []value.Value) (value.Value, error) {
	name, err := stringArg(args, 0)
	if err != nil {
		return value.Value{}, err
	}
	m, err := r.GetMachineInformation(name)
	if err != nil {
		return value.Value{}, err
	}
	return machineToValue(m), nil
}

func (r *Registry) handleGetNamesOfMachines(_ context.Context, _ []value.Value) (value.Value, error) {
	return namesToValue(r.GetNamesOfMachines()), nil
}

func (r *Registry) handleGetNumberOfMachines(_ context.Context, _ []value.Value) (value.Value, error) {
	return value.NewInteger(int64(r.GetNumberOfMachines())), nil
}

func (r *Registry) handleAddNode(_ context.Context, args []value.Value) (value.Value, error) {
	name, err := stringArg(args, 0)
	if err != nil {
		return value.Value{}, err
	}
	machine, err := stringArg(args, 1)
	if err != nil {
		return value.Value{}, err
	}
	kind, err := stringArg(args, 2)
	if err != nil {
		return value.Value{}, err
	}
	if len(args) <= 3 {
		return value.Value{}, command.Fail(command.MissingArgument, "missing argument")
	}
	addr, ok := args[3].AsAddress()
	if !ok {
		return value.Value{}, command.Fail(command.BadArgument, "argument is not an address")
	}
	port, err := intArg(args, 4)
	if err != nil {
		return value.Value{}, err
	}
	ep := Endpoint{Address: addr, Port: int(port)}
	if err := r.AddNode(name, machine, ServiceKind(kind), ep); err != nil {
		return value.Value{}, err
	}
	return value.NewLogical(true), nil
}

func (r *Registry) handleRemoveNode(_ context.Context, args []value.Value) (value.Value, error) {
	name, err := stringArg(args, 0)
	if err != nil {
		return value.Value{}, err
	}
	if err := r.RemoveNode(name); err != nil {
		return value.Value{}, err
	}
	return value.NewLogical(true), nil
}

func (r *Registry) handleHeartbeat(_ context.Context, args []value.Value) (value.Value, error) {
	name, err := stringArg(args, 0)
	if err != nil {
		return value.Value{}, err
	}
	if err := r.Heartbeat(name); err != nil {
		return value.Value{}, err
	}
	return value.NewLogical(true), nil
}

func (r *Registry) handleIsNodePresent(_ context.Context, args []value.Value) (value.Value, error) {
	name, err := stringArg(args, 0)
	if err != nil {
		return value.Value{}, err
	}
	return value.NewLogical(r.IsNodePresent(name)), nil
}

func nodeToValue(n Node) value.Value {
	return value.NewArray([]value.Value{
		value.NewString(n.Name),
		value.NewString(n.Machine),
		value.NewString(string(n.Kind)),
		value.NewAddress(n.Command.Address),
		value.NewInteger(int64(n.Command.Port)),
	})
}

func (r *Registry) handleGetNodeInformation(_ context.Context, args []value.Value) (value.Value, error) {
	name, err := stringArg(args, 0)
	if err != nil {
		return value.Value{}, err
	}
	n, err := r.GetNodeInformation(name)
	if err != nil {
		return value.Value{}, err
	}
	return nodeToValue(n), nil
}

func (r *Registry) handleGetNamesOfNodes(_ context.Context, _ []value.Value) (value.Value, error) {
	return namesToValue(r.GetNamesOfNodes()), nil
}

func (r *Registry) handleGetNamesOfNodesOnMachine(_ context.Context, args []value.Value) (value.Value, error) {
	machine, err := stringArg(args, 0)
	if err != nil {
		return value.Value{}, err
	}
	return namesToValue(r.GetNamesOfNodesOnMachine(machine)), nil
}

func (r *Registry) handleGetNumberOfNodes(_ context.Context, _ []value.Value) (value.Value, error) {
	return value.NewInteger(int64(r.GetNumberOfNodes())), nil
}

func (r *Registry) handleGetNumberOfNodesOnMachine(_ context.Context, args []value.Value) (value.Value, error) {
	machine, err := stringArg(args, 0)
	if err != nil {
		return value.Value{}, err
	}
	return value.NewInteger(int64(r.GetNumberOfNodesOnMachine(machine))), nil
}

func (r *Registry) handleAddChannel(_ context.Context, args []value.Value) (value.Value, error) {
	node, err := stringArg(args, 0)
	if err != nil {
		return value.Value{}, err
	}
	path, err := stringArg(args, 1)
	if err != nil {
		return value.Value{}, err
	}
	isOutput, err := boolArg(args, 2)
	if err != nil {
		return value.Value{}, err
	}
	dataType, err := stringArg(args, 3)
	if err != nil {
		return value.Value{}, err
	}
	transport, err := stringArg(args, 4)
	if err != nil {
		return value.Value{}, err
	}
	modifiable := true
	if len(args) > 5 {
		modifiable, err = boolArg(args, 5)
		if err != nil {
			return value.Value{}, err
		}
	}
	dir := DirectionInput
	if isOutput {
		dir = DirectionOutput
	}
	if err := r.AddChannel(node, path, dir, dataType, Transport(transport), modifiable); err != nil {
		return value.Value{}, err
	}
	return value.NewLogical(true), nil
}

func (r *Registry) handleRemoveChannel(_ context.Context, args []value.Value) (value.Value, error) {
	node, err := stringArg(args, 0)
	if err != nil {
		return value.Value{}, err
	}
	path, err := stringArg(args, 1)
	if err != nil {
		return value.Value{}, err
	}
	if err := r.RemoveChannel(node, path); err != nil {
		return value.Value{}, err
	}
	return value.NewLogical(true), nil
}

func (r *Registry) handleRemoveChannelsForNode(_ context.Context, args []value.Value) (value.Value, error) {
	node, err := stringArg(args, 0)
	if err != nil {
		return value.Value{}, err
	}
	r.RemoveChannelsForNode(node)
	return value.NewLogical(true), nil
}

func (r *Registry) handleIsChannelPresent(_ context.Context, args []value.Value) (value.Value, error) {
	node, err := stringArg(args, 0)
	if err != nil {
		return value.Value{}, err
	}
	path, err := stringArg(args, 1)
	if err != nil {
		return value.Value{}, err
	}
	return value.NewLogical(r.IsChannelPresent(node, path)), nil
}

func channelToValue(c Channel) value.Value {
	return value.NewArray([]value.Value{
		value.NewString(c.Node),
		value.NewString(c.Path),
		value.NewLogical(c.Direction == DirectionOutput),
		value.NewString(c.DataType),
		value.NewString(string(c.Transport)),
		value.NewLogical(c.InUse),
		value.NewLogical(c.Modifiable),
		value.NewInteger(c.Statistics.Bytes),
		value.NewInteger(c.Statistics.Messages),
	})
}

func (r *Registry) handleGetChannelInformation(_ context.Context, args []value.Value) (value.Value, error) {
	node, err := stringArg(args, 0)
	if err != nil {
		return value.Value{}, err
	}
	path, err := stringArg(args, 1)
	if err != nil {
		return value.Value{}, err
	}
	c, err := r.GetChannelInformation(node, path)
	if err != nil {
		return value.Value{}, err
	}
	return channelToValue(c), nil
}

func (r *Registry) handleGetInformationForAllChannelsOnNode(_ context.Context, args []value.Value) (value.Value, error) {
	node, err := stringArg(args, 0)
	if err != nil {
		return value.Value{}, err
	}
	chans := r.GetInformationForAllChannelsOnNode(node)
	elems := make([]value.Value, len(chans))
	for i, c := range chans {
		elems[i] = channelToValue(c)
	}
	return value.NewArray(elems), nil
}

func (r *Registry) handleGetNumberOfInputChannelsOnNode(_ context.Context, args []value.Value) (value.Value, error) {
	node, err := stringArg(args, 0)
	if err != nil {
		return value.Value{}, err
	}
	return value.NewInteger(int64(r.GetNumberOfInputChannelsOnNode(node))), nil
}

func (r *Registry) handleGetNumberOfOutputChannelsOnNode(_ context.Context, args []value.Value) (value.Value, error) {
	node, err := stringArg(args, 0)
	if err != nil {
		return value.Value{}, err
	}
	return value.NewInteger(int64(r.GetNumberOfOutputChannelsOnNode(node))), nil
}

func (r *Registry) handleSetChannelInUse(_ context.Context, args []value.Value) (value.Value, error) {
	node, err := stringArg(args, 0)
	if err != nil {
		return value.Value{}, err
	}
	path, err := stringArg(args, 1)
	if err != nil {
		return value.Value{}, err
	}
	inUse, err := boolArg(args, 2)
	if err != nil {
		return value.Value{}, err
	}
	if err := r.SetChannelInUse(node, path, inUse); err != nil {
		return value.Value{}, err
	}
	return value.NewLogical(true), nil
}

func (r *Registry) handleGetChannelStatistics(_ context.Context, args []value.Value) (value.Value, error) {
	node, err := stringArg(args, 0)
	if err != nil {
		return value.Value{}, err
	}
	path, err := stringArg(args, 1)
	if err != nil {
		return value.Value{}, err
	}
	stats, err := r.GetChannelStatistics(node, path)
	if err != nil {
		return value.Value{}, err
	}
	return value.NewArray([]value.Value{
		value.NewInteger(stats.Bytes), value.NewInteger(stats.Messages),
	}), nil
}

func (r *Registry) handleUpdateChannelStatistics(_ context.Context, args []value.Value) (value.Value, error) {
	node, err := stringArg(args, 0)
	if err != nil {
		return value.Value{}, err
	}
	path, err := stringArg(args, 1)
	if err != nil {
		return value.Value{}, err
	}
	deltaBytes, err := intArg(args, 2)
	if err != nil {
		return value.Value{}, err
	}
	deltaMessages, err := intArg(args, 3)
	if err != nil {
		return value.Value{}, err
	}
	if err := r.UpdateChannelStatistics(node, path, deltaBytes, deltaMessages); err != nil {
		return value.Value{}, err
	}
	return value.NewLogical(true), nil
}

func (r *Registry) handleAddConnection(_ context.Context, args []value.Value) (value.Value, error) {
	fromNode, err := stringArg(args, 0)
	if err != nil {
		return value.Value{}, err
	}
	fromPath, err := stringArg(args, 1)
	if err != nil {
		return value.Value{}, err
	}
	toNode, err := stringArg(args, 2)
	if err != nil {
		return value.Value{}, err
	}
	toPath, err := stringArg(args, 3)
	if err != nil {
		return value.Value{}, err
	}
	transport, err := r.AddConnection(fromNode, fromPath, toNode, toPath)
	if err != nil {
		return value.Value{}, err
	}
	return value.NewString(string(transport)), nil
}

func (r *Registry) handleRemoveConnection(_ context.Context, args []value.Value) (value.Value, error) {
	node, err := stringArg(args, 0)
	if err != nil {
		return value.Value{}, err
	}
	path, err := stringArg(args, 1)
	if err != nil {
		return value.Value{}, err
	}
	if err := r.RemoveConnection(node, path); err != nil {
		return value.Value{}, err
	}
	return value.NewLogical(true), nil
}

func connectionToValue(c Connection) value.Value {
	return value.NewArray([]value.Value{
		value.NewString(c.SourceNode), value.NewString(c.SourcePath),
		value.NewString(c.SinkNode), value.NewString(c.SinkPath),
		value.NewString(string(c.Transport)), value.NewString(c.DataType),
	})
}

func (r *Registry) handleGetInformationForAllConnections(_ context.Context, _ []value.Value) (value.Value, error) {
	conns := r.GetInformationForAllConnections()
	elems := make([]value.Value, len(conns))
	for i, c := range conns {
		elems[i] = connectionToValue(c)
	}
	return value.NewArray(elems), nil
}

func (r *Registry) handleGetInformationForAllConnectionsOnNode(_ context.Context, args []value.Value) (value.Value, error) {
	node, err := stringArg(args, 0)
	if err != nil {
		return value.Value{}, err
	}
	conns := r.GetInformationForAllConnectionsOnNode(node)
	elems := make([]value.Value, len(conns))
	for i, c := range conns {
		elems[i] = connectionToValue(c)
	}
	return value.NewArray(elems), nil
}

func (r *Registry) handleGetNumberOfConnections(_ context.Context, _ []value.Value) (value.Value, error) {
	return value.NewInteger(int64(r.GetNumberOfConnections())), nil
}

func (r *Registry) handleRegisterApplication(_ context.Context, args []value.Value) (value.Value, error) {
	launcherNode, err := stringArg(args, 0)
	if err != nil {
		return value.Value{}, err
	}
	shortName, err := stringArg(args, 1)
	if err != nil {
		return value.Value{}, err
	}
	description, err := stringArg(args, 2)
	if err != nil {
		return value.Value{}, err
	}
	path, err := stringArg(args, 3)
	if err != nil {
		return value.Value{}, err
	}
	r.RegisterApplication(Application{LauncherNode: launcherNode, ShortName: shortName, Description: description, Path: path})
	return value.NewLogical(true), nil
}

func (r *Registry) handleUnregisterApplicationsExcept(_ context.Context, args []value.Value) (value.Value, error) {
	launcherNode, err := stringArg(args, 0)
	if err != nil {
		return value.Value{}, err
	}
	if len(args) < 2 {
		return value.Value{}, command.Fail(command.MissingArgument, "missing argument")
	}
	keepArr, ok := args[1].AsArray()
	if !ok {
		return value.Value{}, command.Fail(command.BadArgument, "keep list is not an array")
	}
	keep := make([]string, len(keepArr))
	for i, v := range keepArr {
		s, ok := v.AsString()
		if !ok {
			return value.Value{}, command.Fail(command.BadArgument, "keep list entry is not a string")
		}
		keep[i] = s
	}
	r.UnregisterApplicationsExcept(launcherNode, keep)
	return value.NewLogical(true), nil
}

func (r *Registry) handleGetApplicationInformation(_ context.Context, args []value.Value) (value.Value, error) {
	launcherNode, err := stringArg(args, 0)
	if err != nil {
		return value.Value{}, err
	}
	shortName, err := stringArg(args, 1)
	if err != nil {
		return value.Value{}, err
	}
	a, err := r.GetApplicationInformation(launcherNode, shortName)
	if err != nil {
		return value.Value{}, err
	}
	return applicationToValue(a), nil
}

func (r *Registry) handleGetNumberOfApplications(_ context.Context, _ []value.Value) (value.Value, error) {
	return value.NewInteger(int64(r.GetNumberOfApplications())), nil
}

func (r *Registry) handleGetNamesOfApplicationsOnNode(_ context.Context, args []value.Value) (value.Value, error) {
	node, err := stringArg(args, 0)
	if err != nil {
		return value.Value{}, err
	}
	return namesToValue(r.GetNamesOfApplicationsOnNode(node)), nil
}

func applicationToValue(a Application) value.Value {
	return value.NewArray([]value.Value{
		value.NewString(a.LauncherNode),
		value.NewString(a.ShortName),
		value.NewString(a.Description),
		value.NewString(a.Path),
	})
}

func (r *Registry) handleGetInformationForAllApplicationsOnNode(_ context.Context, args []value.Value) (value.Value, error) {
	node, err := stringArg(args, 0)
	if err != nil {
		return value.Value{}, err
	}
	apps := r.GetInformationForAllApplicationsOnNode(node)
	elems := make([]value.Value, len(apps))
	for i, a := range apps {
		elems[i] = applicationToValue(a)
	}
	return value.NewArray(elems), nil
}
