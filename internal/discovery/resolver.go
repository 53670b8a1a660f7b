package discovery

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"

	"github.com/opendragon/nimo/internal/command"
	"github.com/opendragon/nimo/internal/nimolog"
)

// DefaultTimeout is the bounded deadline for a single discovery query
// before it is considered failed (spec §4.D, default 5s).
const DefaultTimeout = 5 * time.Second

// Resolver locates the Registry by querying the mDNS multicast group.
type Resolver struct {
	log *nimolog.TaggedLogger
}

func NewResolver() *Resolver {
	return &Resolver{log: nimolog.Tagged("discovery")}
}

// Resolve issues one mDNS query and waits up to timeout for a response.
// It returns command.Fail(command.RegistryNotFound, ...) on timeout,
// matching the error taxonomy of spec §7.
func (r *Resolver) Resolve(ctx context.Context, timeout time.Duration) (Location, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	conn, err := multicastConn()
	if err != nil {
		return Location{}, command.Fail(command.Internal, fmt.Sprintf("discovery: join multicast: %v", err))
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(timeout))

	m := new(dns.Msg)
	m.SetQuestion(ServiceType, dns.TypeSRV)

	out, err := m.Pack()
	if err != nil {
		return Location{}, command.Fail(command.Internal, fmt.Sprintf("discovery: pack query: %v", err))
	}

	addr, err := net.ResolveUDPAddr("udp4", MulticastAddr)
	if err != nil {
		return Location{}, command.Fail(command.Internal, err.Error())
	}
	if _, err := conn.WriteTo(out, addr); err != nil {
		return Location{}, command.Fail(command.RegistryNotFound, fmt.Sprintf("discovery: send query: %v", err))
	}

	buf := make([]byte, 65535)
	for {
		select {
		case <-ctx.Done():
			return Location{}, command.Fail(command.RegistryNotFound, "discovery: "+ctx.Err().Error())
		default:
		}

		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			return Location{}, command.Fail(command.RegistryNotFound, fmt.Sprintf("registry not found within %v: %v", timeout, err))
		}

		reply := new(dns.Msg)
		if err := reply.Unpack(buf[:n]); err != nil || !reply.Response {
			continue
		}

		loc, err := parseAnswer(reply)
		if err != nil {
			continue
		}
		return loc, nil
	}
}

// WaitForRegistry repeats Resolve at geometric back-off until a response
// arrives or ctx is cancelled (spec §4.D "wait-for-registry").
func (r *Resolver) WaitForRegistry(ctx context.Context) (Location, error) {
	backoff := 500 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for {
		loc, err := r.Resolve(ctx, DefaultTimeout)
		if err == nil {
			return loc, nil
		}

		r.log.Warn("registry not found, retrying in %v: %v", backoff, err)

		select {
		case <-ctx.Done():
			return Location{}, command.Fail(command.RegistryNotFound, "discovery: "+ctx.Err().Error())
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
