package registry

import (
	"github.com/opendragon/nimo/internal/command"
	"github.com/opendragon/nimo/internal/statusbus"
	"github.com/opendragon/nimo/internal/value"
)

// AddConnection wires an output channel (source) to an input channel
// (sink). It enforces the full set of spec §3 connection invariants: both
// channels must exist, directions must match their role, data types must
// agree (exact match or one side wildcard), transports must agree (spec
// §4.F transport agreement), and the sink must not already be bound
// (spec §3 invariant 2: "an input channel cannot appear as the sink of
// two live connections"). The agreed data type recorded on the
// connection is always the concrete side, falling back to the wildcard
// only when both endpoints are wildcard.
//
// channelsMu and connectionsMu are held together for the whole check-
// then-set-then-insert sequence, never released in between: this is what
// makes claiming the sink's in-use flag and inserting the connection row
// a single atomic step, so two concurrent addConnection calls racing for
// the same sink cannot both succeed and no reader observes the sink
// marked in-use without a matching connection row (spec §5).
func (r *Registry) AddConnection(fromNode, fromPath, toNode, toPath string) (Transport, error) {
	r.channelsMu.Lock()
	defer r.channelsMu.Unlock()
	r.connectionsMu.Lock()
	defer r.connectionsMu.Unlock()

	source, ok := r.channels[channelKey{node: fromNode, path: fromPath}]
	if !ok {
		return "", command.Fail(command.NotFound, "channel "+fromNode+":"+fromPath+" not found")
	}
	sink, ok := r.channels[channelKey{node: toNode, path: toPath}]
	if !ok {
		return "", command.Fail(command.NotFound, "channel "+toNode+":"+toPath+" not found")
	}

	if source.Direction != DirectionOutput {
		return "", command.Fail(command.BadArgument, fromNode+":"+fromPath+" is not an output channel")
	}
	if sink.Direction != DirectionInput {
		return "", command.Fail(command.BadArgument, toNode+":"+toPath+" is not an input channel")
	}

	if source.DataType != WildcardDataType && sink.DataType != WildcardDataType && source.DataType != sink.DataType {
		return "", command.Fail(command.BadArgument, "data type mismatch: "+source.DataType+" vs "+sink.DataType)
	}
	agreedType := sink.DataType
	if agreedType == WildcardDataType {
		agreedType = source.DataType
	}

	transport, agree := source.Transport.Intersect(sink.Transport)
	if !agree {
		return "", command.Fail(command.TransportMismatch, "no common transport between "+fromNode+":"+fromPath+" and "+toNode+":"+toPath)
	}

	if sink.InUse {
		return "", command.Fail(command.ChannelInUse, "channel "+toNode+":"+toPath+" is in use")
	}

	key := connKey{fromNode, fromPath, toNode, toPath}
	if _, exists := r.connections[key]; exists {
		return "", command.Fail(command.AlreadyExists, "connection already exists")
	}

	sink.InUse = true
	r.connections[key] = &Connection{
		SourceNode: fromNode, SourcePath: fromPath,
		SinkNode: toNode, SinkPath: toPath,
		Transport: transport, DataType: agreedType,
	}

	r.events.Publish(statusbus.ConnectionAdded, value.NewArray([]value.Value{
		value.NewString(fromNode), value.NewString(fromPath),
		value.NewString(toNode), value.NewString(toPath),
	}))
	return transport, nil
}

// RemoveConnection removes the connection identified by either its source
// or its sink endpoint (spec §4.G: `removeConnection(fromNode, fromPath)
// | (toNode, toPath)`). It clears the sink's in-use flag.
func (r *Registry) RemoveConnection(node, path string) error {
	r.connectionsMu.Lock()
	var found *Connection
	var foundKey connKey
	for key, c := range r.connections {
		if (c.SourceNode == node && c.SourcePath == path) || (c.SinkNode == node && c.SinkPath == path) {
			found = c
			foundKey = key
			break
		}
	}
	if found == nil {
		r.connectionsMu.Unlock()
		return command.Fail(command.NotFound, "no connection touching "+node+":"+path)
	}
	delete(r.connections, foundKey)
	r.connectionsMu.Unlock()

	_ = r.ClearChannelInUse(found.SinkNode, found.SinkPath)

	r.events.Publish(statusbus.ConnectionRemoved, value.NewArray([]value.Value{
		value.NewString(found.SourceNode), value.NewString(found.SourcePath),
		value.NewString(found.SinkNode), value.NewString(found.SinkPath),
	}))
	return nil
}

// GetInformationForAllConnections returns a snapshot of every connection.
func (r *Registry) GetInformationForAllConnections() []Connection {
	r.connectionsMu.RLock()
	defer r.connectionsMu.RUnlock()
	out := make([]Connection, 0, len(r.connections))
	for _, c := range r.connections {
		out = append(out, *c)
	}
	return out
}

// GetInformationForAllConnectionsOnNode returns every connection that
// touches node as either source or sink.
func (r *Registry) GetInformationForAllConnectionsOnNode(node string) []Connection {
	r.connectionsMu.RLock()
	defer r.connectionsMu.RUnlock()
	var out []Connection
	for _, c := range r.connections {
		if c.SourceNode == node || c.SinkNode == node {
			out = append(out, *c)
		}
	}
	return out
}

// GetNumberOfConnections returns the total connection count.
func (r *Registry) GetNumberOfConnections() int {
	r.connectionsMu.RLock()
	defer r.connectionsMu.RUnlock()
	return len(r.connections)
}
