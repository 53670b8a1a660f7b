package discovery

import (
	"context"
	"fmt"
	"net"

	"github.com/miekg/dns"

	"github.com/opendragon/nimo/internal/nimolog"
)

// Announcer answers mDNS queries for ServiceType with the Registry's
// location. Exactly one should be running per fleet (spec §4.D); a
// second announcer detects the collision by querying for itself at
// startup (see Resolver.Resolve) and aborts rather than racing another
// responder.
type Announcer struct {
	loc  Location
	conn *net.UDPConn
	stop chan struct{}
	log  *nimolog.TaggedLogger
}

// NewAnnouncer prepares an Announcer for loc. Start must be called to
// begin answering queries.
func NewAnnouncer(loc Location) *Announcer {
	if loc.Version == "" {
		loc.Version = ProtocolVersion
	}
	return &Announcer{
		loc:  loc,
		stop: make(chan struct{}),
		log:  nimolog.Tagged("discovery"),
	}
}

// Start joins the mDNS multicast group and begins answering queries in a
// background goroutine. It returns once the socket is bound, or with an
// error if another registry already answers a query for ServiceType.
func (a *Announcer) Start() error {
	if other, err := NewResolver().Resolve(context.Background(), DefaultTimeout); err == nil {
		return fmt.Errorf("discovery: another registry is already announced at %v", other)
	}
	conn, err := multicastConn()
	if err != nil {
		return err
	}
	a.conn = conn

	go a.serve()
	a.log.Info("announcing registry %v for %v", a.loc, ServiceType)
	return nil
}

// Stop closes the announcer's socket, ending the background goroutine.
func (a *Announcer) Stop() {
	close(a.stop)
	if a.conn != nil {
		a.conn.Close()
	}
}

func (a *Announcer) serve() {
	buf := make([]byte, 65535)
	for {
		select {
		case <-a.stop:
			return
		default:
		}

		n, src, err := a.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-a.stop:
				return
			default:
				a.log.Error("mdns read: %v", err)
				continue
			}
		}

		m := new(dns.Msg)
		if err := m.Unpack(buf[:n]); err != nil {
			continue
		}
		if len(m.Question) != 1 || m.Question[0].Name != ServiceType {
			continue
		}

		reply := buildAnswer(m.Question[0], a.loc)
		reply.Id = m.Id

		out, err := reply.Pack()
		if err != nil {
			a.log.Error("mdns pack reply: %v", err)
			continue
		}
		if _, err := a.conn.WriteToUDP(out, src); err != nil {
			a.log.Error("mdns reply to %v: %v", src, err)
		}
	}
}
