// Package statusbus implements the best-effort UDP multicast fan-out of
// Registry state changes (spec §4.G "Status bus", §4.J). Subscribers
// must tolerate duplicates and out-of-order delivery and reconcile via
// the RPC surface when they notice an inconsistency — the bus is a hint,
// never a source of truth.
//
// Grounded on the teacher's meshage broadcast path (node.go
// broadcastSend/handleMessage): a fire-and-forget fan-out keyed by event
// kind rather than meshage's arbitrary message body, riding nImO's own
// Message framing (internal/message) instead of gob.
package statusbus

import (
	"context"
	"fmt"
	"net"

	"github.com/google/uuid"

	"github.com/opendragon/nimo/internal/message"
	"github.com/opendragon/nimo/internal/nimolog"
	"github.com/opendragon/nimo/internal/value"
)

// EventKind enumerates the Registry state-change kinds broadcast on the
// bus (spec §4.G).
type EventKind string

const (
	MachineAdded     EventKind = "machineAdded"
	MachineRemoved   EventKind = "machineRemoved"
	NodeAdded        EventKind = "nodeAdded"
	NodeRemoved      EventKind = "nodeRemoved"
	ChannelAdded     EventKind = "channelAdded"
	ChannelRemoved   EventKind = "channelRemoved"
	ConnectionAdded  EventKind = "connectionAdded"
	ConnectionRemoved EventKind = "connectionRemoved"
)

// DefaultGroup is the well-known multicast group:port for the status bus
// (spec §6, configurable via internal/config).
const DefaultGroup = "239.0.0.1:9991"

// Event is one status-bus datagram: a kind, a subject describing what
// changed, and an ID subscribers can use to drop duplicates they've
// already reconciled.
type Event struct {
	ID      string
	Kind    EventKind
	Subject value.Value
}

func (e Event) toValue() value.Value {
	return value.NewArray([]value.Value{
		value.NewString(e.ID),
		value.NewString(string(e.Kind)),
		e.Subject,
	})
}

func eventFromValue(v value.Value) (Event, error) {
	arr, ok := v.AsArray()
	if !ok || len(arr) != 3 {
		return Event{}, fmt.Errorf("statusbus: malformed event")
	}
	id, ok1 := arr[0].AsString()
	kind, ok2 := arr[1].AsString()
	if !ok1 || !ok2 {
		return Event{}, fmt.Errorf("statusbus: malformed event fields")
	}
	return Event{ID: id, Kind: EventKind(kind), Subject: arr[2]}, nil
}

// Publisher sends status-bus events from the Registry process.
type Publisher struct {
	conn *net.UDPConn
	addr *net.UDPAddr
	log  *nimolog.TaggedLogger
}

// NewPublisher prepares a Publisher that sends to group (a "host:port"
// multicast address).
func NewPublisher(group string) (*Publisher, error) {
	addr, err := net.ResolveUDPAddr("udp4", group)
	if err != nil {
		return nil, fmt.Errorf("statusbus: resolve %v: %w", group, err)
	}
	conn, err := net.DialUDP("udp4", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("statusbus: dial %v: %w", group, err)
	}
	return &Publisher{conn: conn, addr: addr, log: nimolog.Tagged("statusbus")}, nil
}

// Publish sends one event. It never blocks the caller on network errors
// beyond the UDP write itself and never returns an error to the Registry
// writer, since the bus is explicitly best-effort (spec §4.G).
func (p *Publisher) Publish(kind EventKind, subject value.Value) {
	ev := Event{ID: uuid.NewString(), Kind: kind, Subject: subject}

	datagram, err := message.EncodeUDP(ev.toValue())
	if err != nil {
		p.log.Error("encode event %v: %v", kind, err)
		return
	}
	if _, err := p.conn.Write(datagram); err != nil {
		p.log.Error("publish event %v: %v", kind, err)
	}
}

func (p *Publisher) Close() error { return p.conn.Close() }

// Subscriber receives status-bus events. Multiple contexts may subscribe
// independently; none of them are authoritative (spec §4.J).
type Subscriber struct {
	conn *net.UDPConn
	log  *nimolog.TaggedLogger
}

// NewSubscriber joins the multicast group and returns a Subscriber ready
// to receive events.
func NewSubscriber(group string) (*Subscriber, error) {
	addr, err := net.ResolveUDPAddr("udp4", group)
	if err != nil {
		return nil, fmt.Errorf("statusbus: resolve %v: %w", group, err)
	}
	conn, err := net.ListenMulticastUDP("udp4", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("statusbus: join %v: %w", group, err)
	}
	return &Subscriber{conn: conn, log: nimolog.Tagged("statusbus")}, nil
}

// Events streams decoded events on a channel until ctx is cancelled or
// Close is called. The channel is closed when the subscriber stops.
func (s *Subscriber) Events(ctx context.Context) <-chan Event {
	out := make(chan Event, 64)

	go func() {
		defer close(out)

		buf := make([]byte, 65535)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			n, _, err := s.conn.ReadFromUDP(buf)
			if err != nil {
				return
			}

			v, err := message.DecodeUDP(buf[:n])
			if err != nil {
				s.log.Error("decode event: %v", err)
				continue
			}
			ev, err := eventFromValue(v)
			if err != nil {
				s.log.Error("parse event: %v", err)
				continue
			}

			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

func (s *Subscriber) Close() error { return s.conn.Close() }
