package registry

import (
	"github.com/opendragon/nimo/internal/command"
	"github.com/opendragon/nimo/internal/statusbus"
	"github.com/opendragon/nimo/internal/value"
)

// AddChannel registers a new channel on node. The (node, path) pair is
// the channel's identity (spec §3 invariant: "a channel is identified by
// the pair (node name, path), unique within that pair"); re-adding an
// existing pair is alreadyExists.
func (r *Registry) AddChannel(node, path string, dir Direction, dataType string, transport Transport, modifiable bool) error {
	if path == "" {
		return command.Fail(command.BadArgument, "channel path must not be empty")
	}
	if !r.IsNodePresent(node) {
		return command.Fail(command.NotFound, "node "+node+" not found")
	}

	key := channelKey{node: node, path: path}

	r.channelsMu.Lock()
	if _, exists := r.channels[key]; exists {
		r.channelsMu.Unlock()
		return command.Fail(command.AlreadyExists, "channel "+node+":"+path+" already exists")
	}
	r.channels[key] = &Channel{
		Node:       node,
		Path:       path,
		Direction:  dir,
		DataType:   dataType,
		Transport:  transport,
		Modifiable: modifiable,
	}
	r.channelsMu.Unlock()

	r.events.Publish(statusbus.ChannelAdded, value.NewArray([]value.Value{
		value.NewString(node), value.NewString(path),
	}))
	return nil
}

// RemoveChannel removes a channel. It fails with channelInUse if the
// channel currently has a live connection (spec §3 invariant: "a channel
// with an active connection cannot be removed until the connection is
// torn down").
func (r *Registry) RemoveChannel(node, path string) error {
	key := channelKey{node: node, path: path}

	r.channelsMu.Lock()
	ch, ok := r.channels[key]
	if !ok {
		r.channelsMu.Unlock()
		return command.Fail(command.NotFound, "channel "+node+":"+path+" not found")
	}
	inUse := ch.InUse
	r.connectionsMu.RLock()
	for _, c := range r.connections {
		if (c.SourceNode == node && c.SourcePath == path) || (c.SinkNode == node && c.SinkPath == path) {
			inUse = true
			break
		}
	}
	r.connectionsMu.RUnlock()
	if inUse {
		r.channelsMu.Unlock()
		return command.Fail(command.ChannelInUse, "channel "+node+":"+path+" is in use")
	}
	delete(r.channels, key)
	r.channelsMu.Unlock()

	r.events.Publish(statusbus.ChannelRemoved, value.NewArray([]value.Value{
		value.NewString(node), value.NewString(path),
	}))
	return nil
}

// IsChannelPresent reports whether (node, path) identifies a known
// channel.
func (r *Registry) IsChannelPresent(node, path string) bool {
	r.channelsMu.RLock()
	defer r.channelsMu.RUnlock()
	_, ok := r.channels[channelKey{node: node, path: path}]
	return ok
}

// GetChannelInformation returns the recorded Channel, or notFound.
func (r *Registry) GetChannelInformation(node, path string) (Channel, error) {
	r.channelsMu.RLock()
	defer r.channelsMu.RUnlock()
	ch, ok := r.channels[channelKey{node: node, path: path}]
	if !ok {
		return Channel{}, command.Fail(command.NotFound, "channel "+node+":"+path+" not found")
	}
	return *ch, nil
}

// GetInformationForAllChannelsOnNode returns a snapshot of every channel
// belonging to node.
func (r *Registry) GetInformationForAllChannelsOnNode(node string) []Channel {
	r.channelsMu.RLock()
	defer r.channelsMu.RUnlock()
	var out []Channel
	for _, ch := range r.channels {
		if ch.Node == node {
			out = append(out, *ch)
		}
	}
	return out
}

// GetNumberOfInputChannelsOnNode counts node's input channels.
func (r *Registry) GetNumberOfInputChannelsOnNode(node string) int {
	return r.countChannelsOnNode(node, DirectionInput)
}

// GetNumberOfOutputChannelsOnNode counts node's output channels.
func (r *Registry) GetNumberOfOutputChannelsOnNode(node string) int {
	return r.countChannelsOnNode(node, DirectionOutput)
}

// GetNumberOfChannels returns the total channel count across all nodes.
func (r *Registry) GetNumberOfChannels() int {
	r.channelsMu.RLock()
	defer r.channelsMu.RUnlock()
	return len(r.channels)
}

func (r *Registry) countChannelsOnNode(node string, dir Direction) int {
	r.channelsMu.RLock()
	defer r.channelsMu.RUnlock()
	n := 0
	for _, ch := range r.channels {
		if ch.Node == node && ch.Direction == dir {
			n++
		}
	}
	return n
}

// SetChannelInUse directly sets a channel's in-use flag, for channel-layer
// code that needs to mark activity on a channel outside of addConnection
// (e.g. an output channel mid-transmission). Setting true on an input
// channel that is already in use fails with channelInUse; the race-free
// connect path is AddConnection.
func (r *Registry) SetChannelInUse(node, path string, inUse bool) error {
	if !inUse {
		return r.ClearChannelInUse(node, path)
	}
	_, err := r.getChannelInUseAndSet(node, path)
	return err
}

// getChannelInUseAndSet atomically reads a channel's current InUse state
// and sets it to true, returning the PREVIOUS state. SetChannelInUse uses
// it; AddConnection makes the same claim inline while holding channelsMu
// and connectionsMu together, so two concurrent addConnection calls
// targeting the same input channel cannot both succeed (spec §5:
// "getChannelInUseAndSet must be atomic").
func (r *Registry) getChannelInUseAndSet(node, path string) (wasInUse bool, err error) {
	key := channelKey{node: node, path: path}

	r.channelsMu.Lock()
	defer r.channelsMu.Unlock()

	ch, ok := r.channels[key]
	if !ok {
		return false, command.Fail(command.NotFound, "channel "+node+":"+path+" not found")
	}
	if ch.Direction == DirectionInput && ch.InUse {
		return true, command.Fail(command.ChannelInUse, "channel "+node+":"+path+" is in use")
	}
	wasInUse = ch.InUse
	ch.InUse = true
	return wasInUse, nil
}

// ClearChannelInUse marks a channel as disconnected.
func (r *Registry) ClearChannelInUse(node, path string) error {
	key := channelKey{node: node, path: path}

	r.channelsMu.Lock()
	defer r.channelsMu.Unlock()

	ch, ok := r.channels[key]
	if !ok {
		return command.Fail(command.NotFound, "channel "+node+":"+path+" not found")
	}
	ch.InUse = false
	return nil
}

// GetChannelStatistics returns a channel's cumulative transfer counters.
func (r *Registry) GetChannelStatistics(node, path string) (ChannelStatistics, error) {
	r.channelsMu.RLock()
	defer r.channelsMu.RUnlock()
	ch, ok := r.channels[channelKey{node: node, path: path}]
	if !ok {
		return ChannelStatistics{}, command.Fail(command.NotFound, "channel "+node+":"+path+" not found")
	}
	return ch.Statistics, nil
}

// UpdateChannelStatistics adds deltaBytes/deltaMessages to a channel's
// running totals. Channels report their own transfer activity
// periodically; the Registry only accumulates (spec §4.F).
func (r *Registry) UpdateChannelStatistics(node, path string, deltaBytes, deltaMessages int64) error {
	r.channelsMu.Lock()
	defer r.channelsMu.Unlock()
	ch, ok := r.channels[channelKey{node: node, path: path}]
	if !ok {
		return command.Fail(command.NotFound, "channel "+node+":"+path+" not found")
	}
	ch.Statistics.Bytes += deltaBytes
	ch.Statistics.Messages += deltaMessages
	return nil
}

// RemoveChannelsForNode removes every channel owned by node, cascading to
// any connections touching them, without removing the node itself (spec
// §4.G: `removeChannelsForNode(node)` is exposed independently of
// `removeNode` so a node can drop all its channels while staying
// registered, e.g. before re-announcing a new set).
func (r *Registry) RemoveChannelsForNode(node string) {
	removedChannels, removedConnections := r.cascadeRemoveNodeChannels(node)

	for _, key := range removedChannels {
		r.events.Publish(statusbus.ChannelRemoved, value.NewArray([]value.Value{
			value.NewString(key.node), value.NewString(key.path),
		}))
	}
	for _, c := range removedConnections {
		r.events.Publish(statusbus.ConnectionRemoved, value.NewArray([]value.Value{
			value.NewString(c.SourceNode), value.NewString(c.SourcePath),
			value.NewString(c.SinkNode), value.NewString(c.SinkPath),
		}))
	}
}

// cascadeRemoveNodeChannels removes every channel owned by node and every
// connection that touched one of those channels, without removing the
// node itself (the caller's Node entry, if any, is left untouched —
// RemoveNode's own cascade in nodes.go handles the node-table case).
// channelsMu and connectionsMu are held together for the whole cascade,
// never released in between, so a reader of either table observes only
// the full pre- or post-cascade state (spec §5). Lock order is always
// channelsMu before connectionsMu, matching AddConnection, so the two
// cascades can never deadlock against each other.
func (r *Registry) cascadeRemoveNodeChannels(node string) ([]channelKey, []*Connection) {
	r.channelsMu.Lock()
	defer r.channelsMu.Unlock()
	r.connectionsMu.Lock()
	defer r.connectionsMu.Unlock()

	var removedChannels []channelKey
	for key, ch := range r.channels {
		if ch.Node == node {
			removedChannels = append(removedChannels, key)
			delete(r.channels, key)
		}
	}

	var removedConnections []*Connection
	for key, c := range r.connections {
		for _, ck := range removedChannels {
			if (c.SourceNode == ck.node && c.SourcePath == ck.path) || (c.SinkNode == ck.node && c.SinkPath == ck.path) {
				removedConnections = append(removedConnections, c)
				delete(r.connections, key)
				break
			}
		}
	}
	for _, c := range removedConnections {
		sinkKey := channelKey{node: c.SinkNode, path: c.SinkPath}
		if ch, ok := r.channels[sinkKey]; ok {
			ch.InUse = false
		}
	}

	return removedChannels, removedConnections
}
