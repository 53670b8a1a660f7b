// Package registryproxy implements spec §4.H: a thin typed wrapper a
// calling context uses instead of speaking the raw command protocol
// directly. Each public method packs arguments, round-trips them through
// internal/command to the Registry's command port, and decodes the
// response payload back into Go types, failing with the same taxonomy
// the handler itself would use.
//
// Grounded on the teacher's ron client path (client.go dials the ron
// server, sends a Command, and waits for exactly one correlated
// response) generalized from ron's single always-connect-over-TCP shape
// to nImO's per-call dial via internal/command.Call, since the Registry
// proxy is deliberately stateless between calls (spec §4.H "awaits the
// correlated response").
package registryproxy

import (
	"context"
	"time"

	"github.com/opendragon/nimo/internal/command"
	"github.com/opendragon/nimo/internal/discovery"
	"github.com/opendragon/nimo/internal/nimolog"
	"github.com/opendragon/nimo/internal/value"
)

// DefaultCallTimeout bounds a single proxy round-trip absent a deadline
// on the caller's context.
const DefaultCallTimeout = 5 * time.Second

// Proxy is the client-side handle to a Registry. It holds only the
// Registry's resolved command endpoint, never a live connection (spec
// §4.H dataflow note: "the proxy holds only connection state (the
// Registry endpoint); no cycles exist").
type Proxy struct {
	addr string
	log  *nimolog.TaggedLogger
}

// New builds a Proxy bound to addr (host:port of the Registry's command
// port).
func New(addr string) *Proxy {
	return &Proxy{addr: addr, log: nimolog.Tagged("registryproxy")}
}

// Discover resolves the Registry's location via mDNS and returns a Proxy
// bound to it (spec §4.D + §4.H composition).
func Discover(ctx context.Context) (*Proxy, error) {
	loc, err := discovery.NewResolver().WaitForRegistry(ctx)
	if err != nil {
		return nil, err
	}
	return New(loc.String()), nil
}

func (p *Proxy) call(ctx context.Context, key string, args ...value.Value) (value.Value, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultCallTimeout)
		defer cancel()
	}

	resp, err := command.Call(ctx, p.addr, command.Request{Key: key, Args: args})
	if err != nil {
		return value.Value{}, err
	}
	if f := resp.AsFailure(); f != nil {
		return value.Value{}, f
	}
	if resp.Payload == nil {
		return value.Value{}, nil
	}
	return *resp.Payload, nil
}

func arrayArg(v value.Value) ([]value.Value, error) {
	arr, ok := v.AsArray()
	if !ok {
		return nil, command.Fail(command.DecodeFailed, "expected array payload")
	}
	return arr, nil
}

func stringsOf(v value.Value) ([]string, error) {
	arr, err := arrayArg(v)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(arr))
	for i, e := range arr {
		s, ok := e.AsString()
		if !ok {
			return nil, command.Fail(command.DecodeFailed, "expected string element")
		}
		out[i] = s
	}
	return out, nil
}

func intOf(v value.Value) (int64, error) {
	n, ok := v.AsInt64()
	if !ok {
		return 0, command.Fail(command.DecodeFailed, "expected integer payload")
	}
	return n, nil
}

func boolOf(v value.Value) (bool, error) {
	b, ok := v.AsBool()
	if !ok {
		return false, command.Fail(command.DecodeFailed, "expected logical payload")
	}
	return b, nil
}

func errMalformed(what string) error {
	return command.Fail(command.DecodeFailed, "malformed "+what+" payload")
}

func namesToValue(names []string) value.Value {
	elems := make([]value.Value, len(names))
	for i, n := range names {
		elems[i] = value.NewString(n)
	}
	return value.NewArray(elems)
}
