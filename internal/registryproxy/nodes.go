package registryproxy

import (
	"context"

	"github.com/opendragon/nimo/internal/registry"
	"github.com/opendragon/nimo/internal/value"
)

// AddNode registers a node with the Registry.
func (p *Proxy) AddNode(ctx context.Context, name, machine string, kind registry.ServiceKind, commandEndpoint registry.Endpoint) error {
	_, err := p.call(ctx, "addNode?",
		value.NewString(name), value.NewString(machine), value.NewString(string(kind)),
		value.NewAddress(commandEndpoint.Address), value.NewInteger(int64(commandEndpoint.Port)))
	return err
}

// RemoveNode removes a node from the Registry, cascading to its channels
// and connections.
func (p *Proxy) RemoveNode(ctx context.Context, name string) error {
	_, err := p.call(ctx, "removeNode?", value.NewString(name))
	return err
}

// Heartbeat refreshes a node's liveness timestamp.
func (p *Proxy) Heartbeat(ctx context.Context, name string) error {
	_, err := p.call(ctx, "heartbeat?", value.NewString(name))
	return err
}

// IsNodePresent reports whether name is registered.
func (p *Proxy) IsNodePresent(ctx context.Context, name string) (bool, error) {
	v, err := p.call(ctx, "isNodePresent?", value.NewString(name))
	if err != nil {
		return false, err
	}
	return boolOf(v)
}

func nodeFromValue(v value.Value) (registry.Node, error) {
	arr, err := arrayArg(v)
	if err != nil {
		return registry.Node{}, err
	}
	if len(arr) != 5 {
		return registry.Node{}, errMalformed("node")
	}
	name, ok1 := arr[0].AsString()
	machine, ok2 := arr[1].AsString()
	kind, ok3 := arr[2].AsString()
	addr, ok4 := arr[3].AsAddress()
	port, ok5 := arr[4].AsInt64()
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 {
		return registry.Node{}, errMalformed("node")
	}
	return registry.Node{
		Name:    name,
		Machine: machine,
		Kind:    registry.ServiceKind(kind),
		Command: registry.Endpoint{Address: addr, Port: int(port)},
	}, nil
}

// GetNodeInformation fetches one node's recorded attributes.
func (p *Proxy) GetNodeInformation(ctx context.Context, name string) (registry.Node, error) {
	v, err := p.call(ctx, "getNodeInformation?", value.NewString(name))
	if err != nil {
		return registry.Node{}, err
	}
	return nodeFromValue(v)
}

// GetNamesOfNodes lists every registered node.
func (p *Proxy) GetNamesOfNodes(ctx context.Context) ([]string, error) {
	v, err := p.call(ctx, "getNamesOfNodes?")
	if err != nil {
		return nil, err
	}
	return stringsOf(v)
}

// GetNamesOfNodesOnMachine lists the nodes running on machine.
func (p *Proxy) GetNamesOfNodesOnMachine(ctx context.Context, machine string) ([]string, error) {
	v, err := p.call(ctx, "getNamesOfNodesOnMachine?", value.NewString(machine))
	if err != nil {
		return nil, err
	}
	return stringsOf(v)
}

// GetNumberOfNodes returns the registered node count.
func (p *Proxy) GetNumberOfNodes(ctx context.Context) (int, error) {
	v, err := p.call(ctx, "getNumberOfNodes?")
	if err != nil {
		return 0, err
	}
	n, err := intOf(v)
	return int(n), err
}

// GetNumberOfNodesOnMachine returns how many nodes run on machine.
func (p *Proxy) GetNumberOfNodesOnMachine(ctx context.Context, machine string) (int, error) {
	v, err := p.call(ctx, "getNumberOfNodesOnMachine?", value.NewString(machine))
	if err != nil {
		return 0, err
	}
	n, err := intOf(v)
	return int(n), err
}
