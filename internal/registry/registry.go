package registry

import (
	"sync"
	"time"

	"github.com/opendragon/nimo/internal/nimolog"
	"github.com/opendragon/nimo/internal/statusbus"
	"github.com/opendragon/nimo/internal/value"
)

// EventPublisher is the subset of statusbus.Publisher the Registry needs.
// Accepting the interface rather than the concrete type keeps the core
// testable without opening a real socket (spec §4.G's bus is explicitly
// best-effort and optional).
type EventPublisher interface {
	Publish(kind statusbus.EventKind, subject value.Value)
}

type noopPublisher struct{}

func (noopPublisher) Publish(statusbus.EventKind, value.Value) {}

// Registry is the authoritative, in-memory data model of spec §3/§4.G:
// machines, nodes, channels, connections and applications, and the
// invariants that bind them. One process runs exactly one Registry.
//
// Grounded on the teacher's ron.Server, which guards a single
// map[string]*Client behind one mutex plus a periodic reaper; here the
// map is split five ways by entity kind, each behind its own RWMutex so
// that pure queries confined to one table never block writers on
// another, and a reaper goroutine expires nodes whose heartbeat has gone
// stale exactly as ron's clientReaper expires unresponsive clients.
//
// An operation that cascades across more than one table (removeNode,
// removeChannelsForNode, addConnection's claim-the-sink-then-insert
// step) acquires every mutex it touches up front, in the fixed order
// machinesMu, nodesMu, channelsMu, connectionsMu, applicationsMu, and
// holds all of them for the whole cascade rather than releasing one
// before taking the next. That is what makes the cascade atomic from a
// reader's point of view (spec §5: readers observe either the pre- or
// the post-state, never a partially-cascaded one): a reader blocked on
// any one of those tables' locks cannot observe the system until every
// table the cascade touches has settled.
type Registry struct {
	machinesMu sync.RWMutex
	machines   map[string]*Machine // keyed by machineKey(name)

	nodesMu sync.RWMutex
	nodes   map[string]*Node // keyed by Node.Name

	channelsMu sync.RWMutex
	channels   map[channelKey]*Channel

	connectionsMu sync.RWMutex
	connections   map[connKey]*Connection

	applicationsMu sync.RWMutex
	applications   map[appKey]*Application

	heartbeatTimeout time.Duration
	events           EventPublisher
	log              *nimolog.TaggedLogger

	stopReaper chan struct{}
	reaperOnce sync.Once
}

// DefaultHeartbeatTimeout is how long a Node may go without a heartbeat
// before the reaper treats it as gone (spec §9 Open Question: the
// original never bounds this; nImO decides on a fixed grace period — see
// DESIGN.md).
const DefaultHeartbeatTimeout = 90 * time.Second

// New constructs an empty Registry. A nil events publisher is replaced
// with a no-op, so tests can construct a Registry without a live
// status-bus socket.
func New(events EventPublisher, heartbeatTimeout time.Duration) *Registry {
	if events == nil {
		events = noopPublisher{}
	}
	if heartbeatTimeout <= 0 {
		heartbeatTimeout = DefaultHeartbeatTimeout
	}
	r := &Registry{
		machines:         make(map[string]*Machine),
		nodes:            make(map[string]*Node),
		channels:         make(map[channelKey]*Channel),
		connections:      make(map[connKey]*Connection),
		applications:     make(map[appKey]*Application),
		heartbeatTimeout: heartbeatTimeout,
		events:           events,
		log:              nimolog.Tagged("registry"),
		stopReaper:       make(chan struct{}),
	}
	return r
}

// StartReaper launches the background goroutine that expires nodes whose
// heartbeat has gone stale, cascading their channels and connections just
// as an explicit removeNode would (spec §3 invariant: "removing a node
// cascades to its channels and any connections touching them").
func (r *Registry) StartReaper(interval time.Duration) {
	if interval <= 0 {
		interval = r.heartbeatTimeout / 3
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-r.stopReaper:
				return
			case <-ticker.C:
				r.reapStaleNodes()
			}
		}
	}()
}

// StopReaper halts the reaper goroutine. Safe to call multiple times.
func (r *Registry) StopReaper() {
	r.reaperOnce.Do(func() { close(r.stopReaper) })
}

func (r *Registry) reapStaleNodes() {
	deadline := time.Now().Add(-r.heartbeatTimeout)

	r.nodesMu.RLock()
	var stale []string
	for name, n := range r.nodes {
		if n.HeartbeatAt.Before(deadline) {
			stale = append(stale, name)
		}
	}
	r.nodesMu.RUnlock()

	for _, name := range stale {
		r.log.Warn("reaping stale node %v (no heartbeat for %v)", name, r.heartbeatTimeout)
		_ = r.RemoveNode(name)
	}
}
