// Package nimocontext implements the execution context every nImO
// process constructs at start-up (spec §4.E): identity, command engine,
// Registry proxy, logger, and channel map, with behavior gated by the
// context's kind per spec §4.E's participation table.
//
// Grounded on the teacher's per-process setup in `cmd/minimega` (one
// long-lived object owning a logger, a command dispatcher, and its own
// bookkeeping maps), generalized here from minimega's single node kind
// to nImO's eight context kinds.
package nimocontext

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/opendragon/nimo/internal/channel"
	"github.com/opendragon/nimo/internal/command"
	"github.com/opendragon/nimo/internal/nimolog"
	"github.com/opendragon/nimo/internal/registry"
	"github.com/opendragon/nimo/internal/registryproxy"
	"github.com/opendragon/nimo/internal/value"
)

// profile captures spec §4.E's participation table for one context kind.
type profile struct {
	DataPlane     bool
	RegistersNode bool
	AllowsInput   bool
	AllowsOutput  bool
}

var profiles = map[registry.ServiceKind]profile{
	registry.KindUtility:       {DataPlane: false, RegistersNode: false, AllowsInput: false, AllowsOutput: false},
	registry.KindMiscellaneous: {DataPlane: false, RegistersNode: false, AllowsInput: false, AllowsOutput: false},
	registry.KindFilter:        {DataPlane: true, RegistersNode: true, AllowsInput: true, AllowsOutput: true},
	registry.KindSource:        {DataPlane: true, RegistersNode: true, AllowsInput: false, AllowsOutput: true},
	registry.KindSink:          {DataPlane: true, RegistersNode: true, AllowsInput: true, AllowsOutput: false},
	registry.KindService:       {DataPlane: true, RegistersNode: true, AllowsInput: true, AllowsOutput: true},
	registry.KindLauncher:      {DataPlane: false, RegistersNode: true, AllowsInput: false, AllowsOutput: false},
	registry.KindRegistry:      {DataPlane: false, RegistersNode: true, AllowsInput: false, AllowsOutput: false},
}

// Unlimited is the sentinel GetChannelLimits returns for an uncapped
// direction.
const Unlimited = -1

// DefaultMaxWorkers bounds a context's command engine worker pool absent
// an explicit override.
const DefaultMaxWorkers = 8

// Context is one process's handle on the fabric: its identity, its
// command surface, its Registry proxy, and the channels it owns.
type Context struct {
	executable, tag, nodeName, machine string
	kind                                registry.ServiceKind
	commandEndpoint                     registry.Endpoint

	engine *command.Engine
	proxy  *registryproxy.Proxy
	log    *nimolog.TaggedLogger

	limitsMu       sync.RWMutex
	maxIn, maxOut  int

	channelsMu sync.RWMutex
	channels   map[string]*channel.Channel

	listener net.Listener
}

// Option configures a Context at construction time.
type Option func(*Context)

// WithProxy attaches a Registry proxy. Utility/miscellaneous contexts
// typically omit this.
func WithProxy(p *registryproxy.Proxy) Option {
	return func(c *Context) { c.proxy = p }
}

// WithChannelLimits sets the maxIn/maxOut policy enforced by AddChannel.
// Pass Unlimited for an uncapped direction.
func WithChannelLimits(maxIn, maxOut int) Option {
	return func(c *Context) { c.maxIn, c.maxOut = maxIn, maxOut }
}

// WithMaxWorkers overrides the command engine's worker pool bound.
func WithMaxWorkers(n int) Option {
	return func(c *Context) {
		c.engine = command.NewEngine(c.tag, n)
		registerCoreHandlers(c)
	}
}

// New constructs a Context of the given kind. nodeName must be globally
// unique per spec §3; machine is the host it runs on.
func New(executable, tag, nodeName, machine string, kind registry.ServiceKind, opts ...Option) *Context {
	c := &Context{
		executable: executable,
		tag:        tag,
		nodeName:   nodeName,
		machine:    machine,
		kind:       kind,
		maxIn:      Unlimited,
		maxOut:     Unlimited,
		engine:     command.NewEngine(tag, DefaultMaxWorkers),
		log:        nimolog.Tagged(fmt.Sprintf("context[%s]", nodeName)),
		channels:   make(map[string]*channel.Channel),
	}
	registerCoreHandlers(c)

	for _, opt := range opts {
		opt(c)
	}
	return c
}

func registerCoreHandlers(c *Context) {
	c.engine.MustRegister("getChannelLimits?", func(ctx context.Context, args []value.Value) (value.Value, error) {
		maxIn, maxOut := c.GetChannelLimits()
		return value.NewArray([]value.Value{value.NewInteger(int64(maxIn)), value.NewInteger(int64(maxOut))}), nil
	})
}

func (c *Context) Kind() registry.ServiceKind { return c.kind }
func (c *Context) NodeName() string           { return c.nodeName }
func (c *Context) Machine() string            { return c.machine }
func (c *Context) Tag() string                { return c.tag }
func (c *Context) Engine() *command.Engine    { return c.engine }
func (c *Context) Proxy() *registryproxy.Proxy { return c.proxy }
func (c *Context) Logger() *nimolog.TaggedLogger { return c.log }
func (c *Context) CommandEndpoint() registry.Endpoint { return c.commandEndpoint }

// ParticipatesInDataPlane reports whether this context's kind moves
// Values over channels (spec §4.E).
func (c *Context) ParticipatesInDataPlane() bool { return profiles[c.kind].DataPlane }

// RegistersAsNode reports whether this context's kind announces itself
// to the Registry as a Node (spec §4.E).
func (c *Context) RegistersAsNode() bool { return profiles[c.kind].RegistersNode }

// AllowsInputChannels reports whether this context's kind may hold input
// channels (spec §4.E).
func (c *Context) AllowsInputChannels() bool { return profiles[c.kind].AllowsInput }

// AllowsOutputChannels reports whether this context's kind may hold
// output channels (spec §4.E).
func (c *Context) AllowsOutputChannels() bool { return profiles[c.kind].AllowsOutput }

// GetChannelLimits returns the maxIn/maxOut policy AddChannel enforces
// (spec §4.E, SPEC_FULL §C.2 "getChannelLimits?").
func (c *Context) GetChannelLimits() (maxIn, maxOut int) {
	c.limitsMu.RLock()
	defer c.limitsMu.RUnlock()
	return c.maxIn, c.maxOut
}

// SetChannelLimits changes the policy GetChannelLimits reports.
func (c *Context) SetChannelLimits(maxIn, maxOut int) {
	c.limitsMu.Lock()
	defer c.limitsMu.Unlock()
	c.maxIn, c.maxOut = maxIn, maxOut
}

func (c *Context) countChannels(dir registry.Direction) int {
	c.channelsMu.RLock()
	defer c.channelsMu.RUnlock()
	n := 0
	for _, ch := range c.channels {
		if ch.Direction() == dir {
			n++
		}
	}
	return n
}

// Serve starts the context's command engine listener, and if the
// context's kind registers as a Node, announces it to the Registry.
func (c *Context) Serve(ctx context.Context, listenAddr string) error {
	ln, err := net.Listen("tcp4", listenAddr)
	if err != nil {
		return fmt.Errorf("context %s: listen: %w", c.nodeName, err)
	}
	c.listener = ln
	c.commandEndpoint = registry.Endpoint{Address: localIPv4(), Port: ln.Addr().(*net.TCPAddr).Port}

	go func() {
		if err := c.engine.Serve(ln); err != nil {
			c.log.Warn("command engine stopped: %v", err)
		}
	}()

	if c.RegistersAsNode() && c.proxy != nil {
		if err := c.proxy.AddNode(ctx, c.nodeName, c.machine, c.kind, c.commandEndpoint); err != nil {
			return fmt.Errorf("context %s: register with registry: %w", c.nodeName, err)
		}
	}
	return nil
}

// Stop closes every owned channel, closes the command listener, and (if
// registered) removes this context's Node from the Registry.
func (c *Context) Stop(ctx context.Context) error {
	c.channelsMu.Lock()
	for path, ch := range c.channels {
		if err := ch.Stop(); err != nil {
			c.log.Warn("stop channel %s: %v", path, err)
		}
	}
	c.channels = make(map[string]*channel.Channel)
	c.channelsMu.Unlock()

	if c.listener != nil {
		c.listener.Close()
	}

	if c.RegistersAsNode() && c.proxy != nil {
		if err := c.proxy.RemoveNode(ctx, c.nodeName); err != nil {
			c.log.Warn("deregister node: %v", err)
		}
	}
	return nil
}

func localIPv4() uint32 {
	conn, err := net.Dial("udp4", "8.8.8.8:80")
	if err != nil {
		return 0
	}
	defer conn.Close()
	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok || addr.IP.To4() == nil {
		return 0
	}
	ip := addr.IP.To4()
	return uint32(ip[0])<<24 | uint32(ip[1])<<16 | uint32(ip[2])<<8 | uint32(ip[3])
}
