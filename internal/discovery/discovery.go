// Package discovery implements spec §4.D: the Registry announces itself
// over mDNS under a service type token, and every other node resolves
// "where is the Registry" from that announcement before joining the
// fleet.
//
// Grounded on the teacher's protonuke/dns.go, which builds and parses
// raw *dns.Msg records by hand with github.com/miekg/dns rather than a
// higher-level mDNS library — the same style fits here since true
// multicast mDNS group membership (not just message construction) is
// simple enough to hand-roll over net.ListenMulticastUDP.
package discovery

import (
	"fmt"
	"net"
	"strings"

	"github.com/miekg/dns"
)

// ServiceType is the mDNS service type token (spec §4.D: "the exact
// token is opaque to the design; the only requirement is that the same
// token is used by publisher and all subscribers").
const ServiceType = "_nimo-registry._tcp.local."

// TXTVersionKey is the TXT record key carrying the Registry protocol
// version (spec §6).
const TXTVersionKey = "version"

// ProtocolVersion is the current Registry wire-protocol version
// advertised in the TXT record.
const ProtocolVersion = "1"

// MulticastAddr is the mDNS multicast group and port used for discovery
// traffic (distinct from the application status-bus multicast group of
// §4.G/§6).
const MulticastAddr = "224.0.0.251:5353"

// Location describes where the Registry's command port lives, as
// resolved from a discovery response.
type Location struct {
	Address net.IP
	Port    int
	Version string
}

func (l Location) String() string {
	return fmt.Sprintf("%v:%d", l.Address, l.Port)
}

func multicastConn() (*net.UDPConn, error) {
	addr, err := net.ResolveUDPAddr("udp4", MulticastAddr)
	if err != nil {
		return nil, err
	}
	iface, err := defaultMulticastInterface()
	if err != nil {
		return nil, err
	}
	return net.ListenMulticastUDP("udp4", iface, addr)
}

func defaultMulticastInterface() (*net.Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagMulticast == 0 {
			continue
		}
		return &iface, nil
	}
	return nil, fmt.Errorf("discovery: no multicast-capable interface found")
}

func buildAnswer(question dns.Question, loc Location) *dns.Msg {
	m := new(dns.Msg)
	m.Response = true
	m.Authoritative = true
	m.Question = []dns.Question{question}

	srv := &dns.SRV{
		Hdr: dns.RR_Header{
			Name:   ServiceType,
			Rrtype: dns.TypeSRV,
			Class:  dns.ClassINET,
			Ttl:    120,
		},
		Priority: 0,
		Weight:   0,
		Port:     uint16(loc.Port),
		Target:   dns.Fqdn(loc.Address.String()),
	}

	a := &dns.A{
		Hdr: dns.RR_Header{
			Name:   dns.Fqdn(loc.Address.String()),
			Rrtype: dns.TypeA,
			Class:  dns.ClassINET,
			Ttl:    120,
		},
		A: loc.Address,
	}

	txt := &dns.TXT{
		Hdr: dns.RR_Header{
			Name:   ServiceType,
			Rrtype: dns.TypeTXT,
			Class:  dns.ClassINET,
			Ttl:    120,
		},
		Txt: []string{fmt.Sprintf("%s=%s", TXTVersionKey, loc.Version)},
	}

	m.Answer = append(m.Answer, srv, a, txt)
	return m
}

func parseAnswer(m *dns.Msg) (Location, error) {
	var loc Location
	var haveSRV, haveA bool

	for _, rr := range m.Answer {
		switch rec := rr.(type) {
		case *dns.SRV:
			loc.Port = int(rec.Port)
			haveSRV = true
		case *dns.A:
			loc.Address = rec.A
			haveA = true
		case *dns.TXT:
			for _, kv := range rec.Txt {
				k, v, ok := strings.Cut(kv, "=")
				if ok && k == TXTVersionKey {
					loc.Version = v
				}
			}
		}
	}

	if !haveSRV || !haveA {
		return Location{}, fmt.Errorf("discovery: incomplete answer (srv=%v a=%v)", haveSRV, haveA)
	}
	return loc, nil
}
