package command

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/opendragon/nimo/internal/message"
	"github.com/opendragon/nimo/internal/nimolog"
	"github.com/opendragon/nimo/internal/value"
)

// HandlerFunc executes one request and returns its payload, or an error
// (ideally a *Failure) describing why it could not be executed. The
// socket/connection is intentionally not exposed to handlers — per spec
// §4.C handlers "MUST NOT block indefinitely on external I/O while
// holding engine resources"; anything a handler needs is passed in args.
type HandlerFunc func(ctx context.Context, args []value.Value) (value.Value, error)

// Handler pairs a literal requestKey with the function that answers it.
type Handler struct {
	Key  string
	Func HandlerFunc
}

// DefaultMaxWorkers bounds the engine's handler goroutine pool (spec
// §4.C "a bounded pool"), grounded on ron's pattern of never letting one
// slow client starve the others.
const DefaultMaxWorkers = 64

// Engine is the per-process command/response dispatcher (spec §4.C). Its
// handler table is populated at construction time and becomes read-only
// once Serve is called, eliminating the need for a lock on the hot
// dispatch path.
type Engine struct {
	name string

	handlers map[string]HandlerFunc
	started  bool

	sem *semaphore.Weighted

	shutdownMu sync.Mutex
	shutdownFn func()

	log *nimolog.TaggedLogger
}

// NewEngine creates an Engine for a context named name (used only for
// logging), with room for maxWorkers concurrent handler calls.
func NewEngine(name string, maxWorkers int) *Engine {
	if maxWorkers <= 0 {
		maxWorkers = DefaultMaxWorkers
	}
	return &Engine{
		name:     name,
		handlers: make(map[string]HandlerFunc),
		sem:      semaphore.NewWeighted(int64(maxWorkers)),
		log:      nimolog.Tagged(name),
	}
}

// Register adds a handler for key. It is an error to register twice for
// the same key, or to register after Serve has been called (spec §4.C
// "once the port is accepting connections the table is read-only").
func (e *Engine) Register(key string, fn HandlerFunc) error {
	if e.started {
		return fmt.Errorf("command: engine %q already serving, cannot register %q", e.name, key)
	}
	if _, exists := e.handlers[key]; exists {
		return fmt.Errorf("command: handler for %q already registered", key)
	}
	e.handlers[key] = fn
	return nil
}

// MustRegister panics on registration error, for use during fixed
// startup sequences where a collision is a programming bug.
func (e *Engine) MustRegister(key string, fn HandlerFunc) {
	if err := e.Register(key, fn); err != nil {
		panic(err)
	}
}

// OnShutdown installs the callback invoked when a "stop." request is
// dispatched, after the reply has been written (spec §4.C).
func (e *Engine) OnShutdown(fn func()) {
	e.shutdownMu.Lock()
	defer e.shutdownMu.Unlock()
	e.shutdownFn = fn
}

// Dispatch looks up and runs the handler for req, applying the bounded
// worker pool and catching panics at the dispatch boundary (spec §7:
// "unexpected runtime faults inside a handler are caught ... and
// reported as internal").
func (e *Engine) Dispatch(ctx context.Context, req Request) Response {
	callID := uuid.NewString()
	e.log.Debug("dispatch %s key=%v call=%v", e.name, req.Key, callID)

	fn, ok := e.handlers[req.Key]
	if !ok {
		return Response{
			Key:           ResponseKey(req.Key),
			OK:            false,
			FailureReason: "unknown request",
		}
	}

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return failureResponse(req.Key, Fail(ServiceBusy, "engine busy: "+err.Error()))
	}
	defer e.sem.Release(1)

	payload, err := e.runHandler(ctx, fn, req.Args)
	if err != nil {
		return failureResponse(req.Key, err)
	}

	p := payload
	resp := Response{Key: ResponseKey(req.Key), OK: true, Payload: &p}

	if req.Key == "stop." {
		e.shutdownMu.Lock()
		fn := e.shutdownFn
		e.shutdownMu.Unlock()
		if fn != nil {
			go fn()
		}
	}

	return resp
}

func failureResponse(requestKey string, err error) Response {
	f := AsFailure(err)
	return Response{
		Key:           ResponseKey(requestKey),
		OK:            false,
		FailureReason: f.WireReason(),
	}
}

// runHandler calls fn, recovering a panic into an internal Failure so one
// broken handler never takes down the listener goroutine (spec §7's
// "last-resort log-and-exit" is reserved for main; this is the per-call
// analogue for handler dispatch).
func (e *Engine) runHandler(ctx context.Context, fn HandlerFunc, args []value.Value) (payload value.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("handler panic: %v", r)
			err = Fail(Internal, fmt.Sprintf("handler panic: %v", r))
		}
	}()
	return fn(ctx, args)
}

// Serve accepts TCP connections on ln and services each with its own
// request/response loop until ln is closed.
func (e *Engine) Serve(ln net.Listener) error {
	e.started = true
	e.log.Info("command engine %v listening on %v", e.name, ln.Addr())

	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go e.serveConn(conn)
	}
}

func (e *Engine) serveConn(conn net.Conn) {
	defer conn.Close()

	reader := message.NewTCPReader(conn)
	for {
		reqValue, err := reader.ReadMessage()
		if err != nil {
			return
		}

		req, err := RequestFromValue(reqValue)
		if err != nil {
			e.log.Error("malformed request from %v: %v", conn.RemoteAddr(), err)
			return
		}

		resp := e.Dispatch(context.Background(), req)

		if err := message.WriteTCP(conn, resp.ToValue()); err != nil {
			e.log.Error("write response to %v: %v", conn.RemoteAddr(), err)
			return
		}
	}
}

// ServeUDP answers one request per datagram on conn, for small status
// queries (spec §4.C "the default command port can optionally be reached
// via UDP").
func (e *Engine) ServeUDP(conn *net.UDPConn) error {
	e.started = true
	buf := make([]byte, 65535)

	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			return err
		}

		datagram := make([]byte, n)
		copy(datagram, buf[:n])

		go func(datagram []byte, addr *net.UDPAddr) {
			reqValue, err := message.DecodeUDP(datagram)
			if err != nil {
				e.log.Error("malformed UDP request from %v: %v", addr, err)
				return
			}

			req, err := RequestFromValue(reqValue)
			if err != nil {
				e.log.Error("malformed UDP request from %v: %v", addr, err)
				return
			}

			resp := e.Dispatch(context.Background(), req)
			out, err := message.EncodeUDP(resp.ToValue())
			if err != nil {
				e.log.Error("encode UDP response to %v: %v", addr, err)
				return
			}
			if _, err := conn.WriteToUDP(out, addr); err != nil {
				e.log.Error("write UDP response to %v: %v", addr, err)
			}
		}(datagram, addr)
	}
}
