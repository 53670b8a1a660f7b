// Package channel implements the data-plane channel layer of spec §4.F:
// typed, directed endpoints that move Values over TCP or UDP, with a
// configured→setUp→running→stopped lifecycle, per-channel send/receive
// queues, and transfer statistics.
//
// Grounded on the teacher's meshage per-connection pattern (one goroutine
// owning a connection's read loop, a separate send path, state guarded by
// a mutex) generalized from meshage's always-on mesh topology to a single
// point-to-point data channel, and riding internal/message's framing
// instead of gob.
package channel

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/opendragon/nimo/internal/message"
	"github.com/opendragon/nimo/internal/nimolog"
	"github.com/opendragon/nimo/internal/registry"
	"github.com/opendragon/nimo/internal/registryproxy"
	"github.com/opendragon/nimo/internal/value"
)

// DefaultQueueSize bounds the send and receive queues absent an explicit
// override.
const DefaultQueueSize = 64

// Received is one message pulled off an input channel's receive queue,
// tagged with the sender's address as spec §4.F requires for UDP.
type Received struct {
	Value       value.Value
	FromAddress net.IP
	FromPort    int
}

// Channel is one directed, typed endpoint on a node.
type Channel struct {
	node, path string
	direction  registry.Direction
	dataType   string

	transportPref registry.Transport
	transport     registry.Transport // agreed transport, valid from SetUp onward
	modifiable    bool
	dropOldest    bool

	stateMu sync.Mutex
	state   State

	wireMu sync.Mutex
	wire   registry.Endpoint

	statsMu sync.Mutex
	stats   registry.ChannelStatistics

	sendQueue    chan value.Value
	receiveQueue chan Received

	tcpListener net.Listener
	tcpConnMu   sync.Mutex
	tcpConn     net.Conn

	udpConn    *net.UDPConn
	udpPeer    *net.UDPAddr

	proxy *registryproxy.Proxy
	log   *nimolog.TaggedLogger

	stop     chan struct{}
	stopOnce sync.Once
}

// New constructs a channel in the Configured state. proxy may be nil for
// tests that don't need Registry statistics/in-use propagation.
func New(proxy *registryproxy.Proxy, node, path string, dir registry.Direction, dataType string, transportPref registry.Transport, modifiable bool) *Channel {
	return &Channel{
		node: node, path: path, direction: dir, dataType: dataType,
		transportPref: transportPref, modifiable: modifiable,
		state:        Configured,
		sendQueue:    make(chan value.Value, DefaultQueueSize),
		receiveQueue: make(chan Received, DefaultQueueSize),
		proxy:        proxy,
		log:          nimolog.Tagged(fmt.Sprintf("channel[%s:%s]", node, path)),
		stop:         make(chan struct{}),
	}
}

// SetDropOldest overrides the default blocking backpressure policy with
// drop-oldest (spec §4.F "the context may override to drop-oldest").
// Must be called before Start.
func (c *Channel) SetDropOldest(dropOldest bool) { c.dropOldest = dropOldest }

func (c *Channel) State() State {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

func (c *Channel) transition(from, to State) error {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if c.state != from {
		return fmt.Errorf("channel %s:%s: cannot move %v -> %v from state %v", c.node, c.path, from, to, c.state)
	}
	c.state = to
	return nil
}

// Direction returns the channel's data-plane direction.
func (c *Channel) Direction() registry.Direction { return c.direction }

// Path returns the channel's path on its owning node.
func (c *Channel) Path() string { return c.path }

// DataType returns the channel's declared data type.
func (c *Channel) DataType() string { return c.dataType }

// Endpoint returns the channel's current wire endpoint (valid once SetUp
// has run).
func (c *Channel) Endpoint() registry.Endpoint {
	c.wireMu.Lock()
	defer c.wireMu.Unlock()
	return c.wire
}

// Statistics returns a snapshot of the channel's cumulative counters.
func (c *Channel) Statistics() registry.ChannelStatistics {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats
}

func (c *Channel) recordTransfer(bytes int) {
	c.statsMu.Lock()
	c.stats.Bytes += int64(bytes)
	c.stats.Messages++
	c.statsMu.Unlock()

	if c.proxy != nil {
		if err := c.proxy.UpdateChannelStatistics(context.Background(), c.node, c.path, int64(bytes), 1); err != nil {
			c.log.Warn("report statistics to registry: %v", err)
		}
	}
}

// SetUp allocates the channel's local sockets (spec §4.F
// "configured→setUp"). For an input channel this binds the listening
// socket(s) implied by its transport preference; for an output channel
// it only records the preference, since the remote endpoint arrives at
// Connect.
func (c *Channel) SetUp() error {
	if err := c.transition(Configured, SetUp); err != nil {
		return err
	}

	if c.direction != registry.DirectionInput {
		return nil
	}
	return c.setUpInput()
}

func (c *Channel) setUpInput() error {
	var ep registry.Endpoint

	if c.transportPref == registry.TransportTCP || c.transportPref == registry.TransportAny {
		ln, err := net.Listen("tcp4", ":0")
		if err != nil {
			return fmt.Errorf("channel %s:%s: listen tcp: %w", c.node, c.path, err)
		}
		c.tcpListener = ln
		ep.Port = ln.Addr().(*net.TCPAddr).Port
	}
	if c.transportPref == registry.TransportUDP || c.transportPref == registry.TransportAny {
		addr, err := net.ResolveUDPAddr("udp4", ":0")
		if err != nil {
			return fmt.Errorf("channel %s:%s: resolve udp: %w", c.node, c.path, err)
		}
		conn, err := net.ListenUDP("udp4", addr)
		if err != nil {
			return fmt.Errorf("channel %s:%s: listen udp: %w", c.node, c.path, err)
		}
		c.udpConn = conn
		if ep.Port == 0 {
			ep.Port = conn.LocalAddr().(*net.UDPAddr).Port
		}
	}

	ep.Address = localIPv4()

	c.wireMu.Lock()
	c.wire = ep
	c.wireMu.Unlock()
	return nil
}

// localIPv4 returns this host's outbound IPv4 address as a uint32,
// matching registry.Endpoint's encoding. It opens no real connection:
// UDP dial only resolves a route.
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

// Connect supplies the remote endpoint and agreed transport for an
// output channel (spec §4.F: "for output channels, the socket connects
// to the remote endpoint supplied at connect time").
func (c *Channel) Connect(remote registry.Endpoint, transport registry.Transport) error {
	if c.direction != registry.DirectionOutput {
		return fmt.Errorf("channel %s:%s: Connect is only valid for output channels", c.node, c.path)
	}
	if c.State() != SetUp {
		return fmt.Errorf("channel %s:%s: Connect requires state setUp, have %v", c.node, c.path, c.State())
	}

	c.transport = transport
	switch transport {
	case registry.TransportTCP:
		conn, err := net.Dial("tcp4", remote.String())
		if err != nil {
			return fmt.Errorf("channel %s:%s: dial %v: %w", c.node, c.path, remote, err)
		}
		c.tcpConn = conn
	case registry.TransportUDP:
		addr, err := net.ResolveUDPAddr("udp4", remote.String())
		if err != nil {
			return fmt.Errorf("channel %s:%s: resolve %v: %w", c.node, c.path, remote, err)
		}
		conn, err := net.DialUDP("udp4", nil, addr)
		if err != nil {
			return fmt.Errorf("channel %s:%s: dial udp %v: %w", c.node, c.path, remote, err)
		}
		c.udpConn = conn
		c.udpPeer = addr
	default:
		return fmt.Errorf("channel %s:%s: unsupported agreed transport %v", c.node, c.path, transport)
	}
	return nil
}

// bind records the agreed transport on an input channel once a
// connection has been accepted (called by the accept/UDP-arrival path,
// not by user code).
func (c *Channel) bind(transport registry.Transport) {
	c.transport = transport
}

// Start moves the channel into the running state and launches its
// send or receive loop (spec §4.F "setUp→running").
func (c *Channel) Start(ctx context.Context) error {
	if err := c.transition(SetUp, Running); err != nil {
		return err
	}

	if c.proxy != nil {
		if err := c.proxy.SetChannelInUse(ctx, c.node, c.path, true); err != nil {
			c.log.Warn("mark in-use: %v", err)
		}
	}

	switch c.direction {
	case registry.DirectionOutput:
		go c.sendLoop()
	case registry.DirectionInput:
		if c.tcpListener != nil {
			go c.acceptLoop()
		}
		if c.udpConn != nil {
			go c.udpReceiveLoop()
		}
	}
	return nil
}

// Stop closes sockets, drains the send queue, and clears the channel's Registry
// in-use flag (spec §4.F "any→stopped").
func (c *Channel) Stop() error {
	c.stateMu.Lock()
	if c.state == Stopped {
		c.stateMu.Unlock()
		return nil
	}
	c.state = Stopped
	c.stateMu.Unlock()

	c.stopOnce.Do(func() { close(c.stop) })

	if c.tcpListener != nil {
		c.tcpListener.Close()
	}
	c.tcpConnMu.Lock()
	if c.tcpConn != nil {
		c.tcpConn.Close()
	}
	c.tcpConnMu.Unlock()
	if c.udpConn != nil {
		c.udpConn.Close()
	}

drain:
	for {
		select {
		case <-c.sendQueue:
		default:
			break drain
		}
	}

	if c.proxy != nil {
		if err := c.proxy.SetChannelInUse(context.Background(), c.node, c.path, false); err != nil {
			c.log.Warn("clear in-use: %v", err)
		}
	}
	return nil
}

// Send enqueues v for transmission on an output channel, honoring
// per-channel backpressure policy (spec §4.F "blocking by default ...
// drop-oldest").
func (c *Channel) Send(ctx context.Context, v value.Value) error {
	if c.direction != registry.DirectionOutput {
		return fmt.Errorf("channel %s:%s: Send is only valid for output channels", c.node, c.path)
	}

	if c.dropOldest {
		select {
		case c.sendQueue <- v:
		default:
			select {
			case <-c.sendQueue:
			default:
			}
			select {
			case c.sendQueue <- v:
			default:
			}
		}
		return nil
	}

	select {
	case c.sendQueue <- v:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.stop:
		return fmt.Errorf("channel %s:%s: stopped", c.node, c.path)
	}
}

// Receive returns the channel on which an input channel's consumer loop
// should read incoming messages, FIFO (spec §4.F "ReceiveQueue").
func (c *Channel) Receive() <-chan Received {
	return c.receiveQueue
}

func (c *Channel) sendLoop() {
	for {
		select {
		case v := <-c.sendQueue:
			c.transmit(v)
		case <-c.stop:
			return
		}
	}
}

func (c *Channel) transmit(v value.Value) {
	switch c.transport {
	case registry.TransportUDP:
		if c.udpConn == nil {
			c.log.Error("transmit: no udp socket")
			return
		}
		datagram, err := message.EncodeUDP(v)
		if err != nil {
			c.log.Error("encode udp message: %v", err)
			return
		}
		n, err := c.udpConn.Write(datagram)
		if err != nil {
			c.log.Error("write udp message: %v", err)
			return
		}
		c.recordTransfer(n)
	default:
		c.tcpConnMu.Lock()
		conn := c.tcpConn
		c.tcpConnMu.Unlock()
		if conn == nil {
			c.log.Error("transmit: no tcp connection")
			return
		}
		encoded, err := message.EncodeTCP(v)
		if err != nil {
			c.log.Error("encode tcp message: %v", err)
			return
		}
		n, err := conn.Write(encoded)
		if err != nil {
			c.log.Error("write tcp message: %v", err)
			return
		}
		c.recordTransfer(n)
	}
}

func (c *Channel) acceptLoop() {
	for {
		conn, err := c.tcpListener.Accept()
		if err != nil {
			return
		}

		c.tcpConnMu.Lock()
		if c.tcpConn != nil {
			c.tcpConnMu.Unlock()
			c.log.Warn("rejecting second tcp connection: channelInUse")
			conn.Close()
			continue
		}
		c.tcpConn = conn
		c.tcpConnMu.Unlock()
		c.bind(registry.TransportTCP)

		go c.tcpReceiveLoop(conn)
	}
}

func (c *Channel) tcpReceiveLoop(conn net.Conn) {
	reader := message.NewTCPReader(conn)
	remoteAddr, _ := conn.RemoteAddr().(*net.TCPAddr)

	for {
		v, err := reader.ReadMessage()
		if err != nil {
			c.tcpConnMu.Lock()
			if c.tcpConn == conn {
				c.tcpConn = nil
			}
			c.tcpConnMu.Unlock()
			return
		}

		received := Received{Value: v}
		if remoteAddr != nil {
			received.FromAddress = remoteAddr.IP
			received.FromPort = remoteAddr.Port
		}

		bytes := 0
		if encoded, err := message.EncodeTCP(v); err == nil {
			bytes = len(encoded)
		}
		c.deliver(received, bytes)
	}
}

func (c *Channel) udpReceiveLoop() {
	c.bind(registry.TransportUDP)
	buf := make([]byte, 65535)
	for {
		n, addr, err := c.udpConn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		v, err := message.DecodeUDP(buf[:n])
		if err != nil {
			c.log.Error("decode udp message from %v: %v", addr, err)
			continue
		}
		c.deliver(Received{Value: v, FromAddress: addr.IP, FromPort: addr.Port}, n)
	}
}

func (c *Channel) deliver(r Received, bytes int) {
	c.recordTransfer(bytes)

	if c.dropOldest {
		select {
		case c.receiveQueue <- r:
		default:
			select {
			case <-c.receiveQueue:
			default:
			}
			select {
			case c.receiveQueue <- r:
			default:
			}
		}
		return
	}

	select {
	case c.receiveQueue <- r:
	case <-c.stop:
	}
}
