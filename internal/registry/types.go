// Package registry implements the Registry core of spec §4.G: the
// authoritative tables for machines, nodes, channels, connections and
// applications, and the invariants that bind them (spec §3).
//
// Grounded on the teacher's ron.Server: one process, entity maps guarded
// by dedicated mutexes, a reaper goroutine for stale clients, and a
// command counter — generalized here from ron's single "client" entity
// to nImO's five-table data model, and from gob-over-TCP to the
// command/message stack built in internal/command and internal/message.
package registry

import (
	"fmt"
	"strings"
	"time"
)

// ServiceKind enumerates the roles a Node may play (spec §3, §4.E).
type ServiceKind string

const (
	KindFilter        ServiceKind = "filter"
	KindSource        ServiceKind = "source"
	KindSink          ServiceKind = "sink"
	KindService       ServiceKind = "service"
	KindUtility       ServiceKind = "utility"
	KindLauncher      ServiceKind = "launcher"
	KindRegistry      ServiceKind = "registry"
	KindMiscellaneous ServiceKind = "miscellaneous"
)

// Transport is a channel's wire protocol preference or agreement (spec
// §3, §4.F).
type Transport string

const (
	TransportAny Transport = "any"
	TransportTCP Transport = "tcp"
	TransportUDP Transport = "udp"
)

// Intersect returns the agreed transport between two endpoint
// preferences, or ("", false) if there is none (spec §4.F "Transport
// agreement at addConnection").
func (t Transport) Intersect(other Transport) (Transport, bool) {
	if t == other {
		if t == TransportAny {
			return TransportTCP, true
		}
		return t, true
	}
	if t == TransportAny {
		return other, true
	}
	if other == TransportAny {
		return t, true
	}
	return "", false
}

// Direction is a channel's data-plane direction.
type Direction string

const (
	DirectionInput  Direction = "input"
	DirectionOutput Direction = "output"
)

// WildcardDataType matches any other data type on connect (spec §3
// invariant 1: "exact string equality unless one side is the wildcard
// data-type").
const WildcardDataType = "*"

// Endpoint is an IPv4 address plus port, used for both command ports and
// channel wire endpoints.
type Endpoint struct {
	Address uint32
	Port    int
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%d.%d.%d.%d:%d", byte(e.Address>>24), byte(e.Address>>16), byte(e.Address>>8), byte(e.Address), e.Port)
}

func (e Endpoint) IsZero() bool { return e.Address == 0 && e.Port == 0 }

// Machine is a host participating in the fleet, identified
// case-insensitively by short host name (spec §3).
type Machine struct {
	Name    string
	Address uint32
}

func machineKey(name string) string { return strings.ToLower(name) }

// Node is a process that has announced itself to the Registry (spec §3).
type Node struct {
	Name        string
	Machine     string
	Kind        ServiceKind
	Command     Endpoint
	LastSeen    time.Time
	HeartbeatAt time.Time
}

// ChannelStatistics tracks cumulative transfer counters for one channel
// (spec §3, §4.F).
type ChannelStatistics struct {
	Bytes    int64
	Messages int64
}

// Channel is a typed, directed endpoint on a node (spec §3, §4.F).
type Channel struct {
	Node            string
	Path            string
	Direction       Direction
	DataType        string
	Transport       Transport
	InUse           bool
	Modifiable      bool
	Statistics      ChannelStatistics
	WireEndpoint    Endpoint
}

type channelKey struct {
	node string
	path string
}

func (c Channel) key() channelKey { return channelKey{node: c.Node, path: c.Path} }

// Connection is a directed edge from exactly one output channel to
// exactly one input channel (spec §3).
type Connection struct {
	SourceNode string
	SourcePath string
	SinkNode   string
	SinkPath   string
	Transport  Transport
	DataType   string
}

type connKey struct {
	sourceNode, sourcePath string
	sinkNode, sinkPath     string
}

func (c Connection) key() connKey {
	return connKey{c.SourceNode, c.SourcePath, c.SinkNode, c.SinkPath}
}

// Application is one runnable entry in a launcher's catalogue (spec §3,
// §4.I).
type Application struct {
	LauncherNode string
	ShortName    string
	Description  string
	Path         string
	Args         []string
	Options      []string
}

type appKey struct {
	launcherNode, shortName string
}

func (a Application) key() appKey { return appKey{a.LauncherNode, a.ShortName} }
