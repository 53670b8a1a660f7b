package registry

import (
	"time"

	"github.com/opendragon/nimo/internal/command"
	"github.com/opendragon/nimo/internal/statusbus"
	"github.com/opendragon/nimo/internal/value"
)

// AddNode records a newly-announced Node. Node names are globally unique
// regardless of machine (spec §3 invariant: "node names are unique
// fleet-wide, not just per-machine"); re-announcing an existing name is
// alreadyExists, not an update — a node that wants to change its
// command endpoint must remove itself first.
//
// The owning Machine is created on first node registration from that
// host (spec §3: "a Machine is created on first node registration from
// that host"), keyed by machine case-insensitively and addressed from
// the node's own command endpoint. A machine already known by that name
// (e.g. via an explicit addMachine call) keeps its recorded address.
func (r *Registry) AddNode(name, machine string, kind ServiceKind, commandEndpoint Endpoint) error {
	if name == "" {
		return command.Fail(command.BadArgument, "node name must not be empty")
	}

	now := time.Now()

	r.machinesMu.Lock()
	r.nodesMu.Lock()
	if _, exists := r.nodes[name]; exists {
		r.nodesMu.Unlock()
		r.machinesMu.Unlock()
		return command.Fail(command.AlreadyExists, "node "+name+" already registered")
	}
	r.nodes[name] = &Node{
		Name:        name,
		Machine:     machine,
		Kind:        kind,
		Command:     commandEndpoint,
		LastSeen:    now,
		HeartbeatAt: now,
	}
	machineKeyed := machineKey(machine)
	_, machineExisted := r.machines[machineKeyed]
	if !machineExisted {
		r.machines[machineKeyed] = &Machine{Name: machine, Address: commandEndpoint.Address}
	}
	r.nodesMu.Unlock()
	r.machinesMu.Unlock()

	if !machineExisted {
		r.events.Publish(statusbus.MachineAdded, value.NewString(machine))
	}
	r.events.Publish(statusbus.NodeAdded, value.NewString(name))
	return nil
}

// RemoveNode removes a node and cascades the removal to every channel it
// owns, any connections touching them, and its application catalogue
// entries if it was a launcher (spec §3 invariant: "removing a node
// cascades to its channels and any connections touching them"). If this
// was the last node on its machine, the machine is removed too (spec §3:
// "deleted when its last node is removed").
//
// Every table this cascade touches is locked together, in the fixed
// order machinesMu, nodesMu, channelsMu, connectionsMu, applicationsMu,
// for the whole operation, so a concurrent reader of any one of those
// tables observes either the full pre-removal state or the full
// post-removal state, never an intermediate one (spec §5).
func (r *Registry) RemoveNode(name string) error {
	removed, err := r.removeNodeLocked(name)
	if err != nil {
		return err
	}

	for _, key := range removed.channels {
		r.events.Publish(statusbus.ChannelRemoved, value.NewArray([]value.Value{
			value.NewString(key.node), value.NewString(key.path),
		}))
	}
	for _, c := range removed.connections {
		r.events.Publish(statusbus.ConnectionRemoved, value.NewArray([]value.Value{
			value.NewString(c.SourceNode), value.NewString(c.SourcePath),
			value.NewString(c.SinkNode), value.NewString(c.SinkPath),
		}))
	}
	r.events.Publish(statusbus.NodeRemoved, value.NewString(name))
	if removed.machine != "" {
		r.events.Publish(statusbus.MachineRemoved, value.NewString(removed.machine))
	}
	return nil
}

type nodeRemoval struct {
	channels    []channelKey
	connections []*Connection
	machine     string // non-empty if the owning machine was also removed
}

func (r *Registry) removeNodeLocked(name string) (nodeRemoval, error) {
	r.machinesMu.Lock()
	defer r.machinesMu.Unlock()
	r.nodesMu.Lock()
	defer r.nodesMu.Unlock()
	r.channelsMu.Lock()
	defer r.channelsMu.Unlock()
	r.connectionsMu.Lock()
	defer r.connectionsMu.Unlock()
	r.applicationsMu.Lock()
	defer r.applicationsMu.Unlock()

	n, ok := r.nodes[name]
	if !ok {
		return nodeRemoval{}, command.Fail(command.NotFound, "node "+name+" not found")
	}
	delete(r.nodes, name)

	var removedChannels []channelKey
	for key, ch := range r.channels {
		if ch.Node == name {
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

	for key := range r.applications {
		if key.launcherNode == name {
			delete(r.applications, key)
		}
	}

	var machineRemoved string
	mkey := machineKey(n.Machine)
	remaining := 0
	for _, other := range r.nodes {
		if machineKey(other.Machine) == mkey {
			remaining++
		}
	}
	if remaining == 0 {
		if _, ok := r.machines[mkey]; ok {
			delete(r.machines, mkey)
			machineRemoved = n.Machine
		}
	}

	return nodeRemoval{channels: removedChannels, connections: removedConnections, machine: machineRemoved}, nil
}

// Heartbeat refreshes a node's liveness timestamp (spec §4.E: nodes
// heartbeat periodically to the Registry; the reaper in registry.go acts
// on staleness of this timestamp).
func (r *Registry) Heartbeat(name string) error {
	r.nodesMu.Lock()
	defer r.nodesMu.Unlock()
	n, ok := r.nodes[name]
	if !ok {
		return command.Fail(command.NotFound, "node "+name+" not found")
	}
	n.HeartbeatAt = time.Now()
	return nil
}

// IsNodePresent reports whether name is a registered node.
func (r *Registry) IsNodePresent(name string) bool {
	r.nodesMu.RLock()
	defer r.nodesMu.RUnlock()
	_, ok := r.nodes[name]
	return ok
}

// GetNodeInformation returns the recorded Node, or notFound.
func (r *Registry) GetNodeInformation(name string) (Node, error) {
	r.nodesMu.RLock()
	defer r.nodesMu.RUnlock()
	n, ok := r.nodes[name]
	if !ok {
		return Node{}, command.Fail(command.NotFound, "node "+name+" not found")
	}
	return *n, nil
}

// GetNamesOfNodes returns every registered node's name.
func (r *Registry) GetNamesOfNodes() []string {
	r.nodesMu.RLock()
	defer r.nodesMu.RUnlock()
	names := make([]string, 0, len(r.nodes))
	for name := range r.nodes {
		names = append(names, name)
	}
	return names
}

// GetNamesOfNodesOnMachine returns the names of nodes running on machine.
func (r *Registry) GetNamesOfNodesOnMachine(machine string) []string {
	r.nodesMu.RLock()
	defer r.nodesMu.RUnlock()
	var names []string
	for name, n := range r.nodes {
		if machineKey(n.Machine) == machineKey(machine) {
			names = append(names, name)
		}
	}
	return names
}

// GetInformationForAllNodes returns a snapshot of every registered Node.
func (r *Registry) GetInformationForAllNodes() []Node {
	r.nodesMu.RLock()
	defer r.nodesMu.RUnlock()
	out := make([]Node, 0, len(r.nodes))
	for _, n := range r.nodes {
		out = append(out, *n)
	}
	return out
}

// GetNumberOfNodes returns the registered node count.
func (r *Registry) GetNumberOfNodes() int {
	r.nodesMu.RLock()
	defer r.nodesMu.RUnlock()
	return len(r.nodes)
}

// GetNumberOfNodesOnMachine returns how many nodes are running on
// machine.
func (r *Registry) GetNumberOfNodesOnMachine(machine string) int {
	return len(r.GetNamesOfNodesOnMachine(machine))
}
