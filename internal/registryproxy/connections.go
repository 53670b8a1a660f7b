package registryproxy

import (
	"context"

	"github.com/opendragon/nimo/internal/registry"
	"github.com/opendragon/nimo/internal/value"
)

// AddConnection wires an output channel to an input channel, returning
// the agreed transport.
func (p *Proxy) AddConnection(ctx context.Context, fromNode, fromPath, toNode, toPath string) (registry.Transport, error) {
	v, err := p.call(ctx, "addConnection?",
		value.NewString(fromNode), value.NewString(fromPath), value.NewString(toNode), value.NewString(toPath))
	if err != nil {
		return "", err
	}
	s, ok := v.AsString()
	if !ok {
		return "", errMalformed("connection transport")
	}
	return registry.Transport(s), nil
}

// RemoveConnection tears down the connection touching (node, path), as
// either its source or its sink.
func (p *Proxy) RemoveConnection(ctx context.Context, node, path string) error {
	_, err := p.call(ctx, "removeConnection?", value.NewString(node), value.NewString(path))
	return err
}

// Disconnect is a sink-only convenience over RemoveConnection: most
// callers tearing down a connection know their own input channel, not
// the peer's output channel (SPEC_FULL §C.5 "sink-only disconnect
// convenience").
func (p *Proxy) Disconnect(ctx context.Context, sinkNode, sinkPath string) error {
	return p.RemoveConnection(ctx, sinkNode, sinkPath)
}

func connectionFromValue(v value.Value) (registry.Connection, error) {
	arr, err := arrayArg(v)
	if err != nil {
		return registry.Connection{}, err
	}
	if len(arr) != 6 {
		return registry.Connection{}, errMalformed("connection")
	}
	srcNode, ok1 := arr[0].AsString()
	srcPath, ok2 := arr[1].AsString()
	sinkNode, ok3 := arr[2].AsString()
	sinkPath, ok4 := arr[3].AsString()
	transport, ok5 := arr[4].AsString()
	dataType, ok6 := arr[5].AsString()
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 || !ok6 {
		return registry.Connection{}, errMalformed("connection")
	}
	return registry.Connection{
		SourceNode: srcNode, SourcePath: srcPath,
		SinkNode: sinkNode, SinkPath: sinkPath,
		Transport: registry.Transport(transport), DataType: dataType,
	}, nil
}

// GetInformationForAllConnections lists every connection.
func (p *Proxy) GetInformationForAllConnections(ctx context.Context) ([]registry.Connection, error) {
	v, err := p.call(ctx, "getInformationForAllConnections?")
	if err != nil {
		return nil, err
	}
	return connectionsFromArray(v)
}

// GetInformationForAllConnectionsOnNode lists every connection touching
// node as either source or sink.
func (p *Proxy) GetInformationForAllConnectionsOnNode(ctx context.Context, node string) ([]registry.Connection, error) {
	v, err := p.call(ctx, "getInformationForAllConnectionsOnNode?", value.NewString(node))
	if err != nil {
		return nil, err
	}
	return connectionsFromArray(v)
}

func connectionsFromArray(v value.Value) ([]registry.Connection, error) {
	arr, err := arrayArg(v)
	if err != nil {
		return nil, err
	}
	out := make([]registry.Connection, len(arr))
	for i, e := range arr {
		c, err := connectionFromValue(e)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

// GetNumberOfConnections returns the total connection count.
func (p *Proxy) GetNumberOfConnections(ctx context.Context) (int, error) {
	v, err := p.call(ctx, "getNumberOfConnections?")
	if err != nil {
		return 0, err
	}
	n, err := intOf(v)
	return int(n), err
}
