package command

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/opendragon/nimo/internal/message"
)

// Call dials addr over TCP, sends req, and waits for the correlated
// response, honoring ctx's deadline. One connection is used per call,
// matching minicli's simple request/response shape rather than a
// persistent multiplexed session — the engine's bounded worker pool
// (§4.C) is what protects the server, not connection reuse.
func Call(ctx context.Context, addr string, req Request) (Response, error) {
	var d net.Dialer
	if deadline, ok := ctx.Deadline(); ok {
		d.Timeout = time.Until(deadline)
	}

	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return Response{}, Fail(RegistryNotFound, fmt.Sprintf("dial %v: %v", addr, err))
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	if err := message.WriteTCP(conn, req.ToValue()); err != nil {
		return Response{}, Fail(Internal, fmt.Sprintf("write request: %v", err))
	}

	reader := message.NewTCPReader(conn)
	respValue, err := reader.ReadMessage()
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return Response{}, Fail(Timeout, fmt.Sprintf("waiting for response to %v", req.Key))
		}
		return Response{}, Fail(Internal, fmt.Sprintf("read response: %v", err))
	}

	resp, err := ResponseFromValue(respValue)
	if err != nil {
		return Response{}, Fail(DecodeFailed, fmt.Sprintf("decode response: %v", err))
	}
	if resp.Key != ResponseKey(req.Key) {
		return Response{}, Fail(DecodeFailed, fmt.Sprintf("response key %q does not correlate with request %q", resp.Key, req.Key))
	}

	return resp, nil
}

// CallUDP is the UDP analogue of Call, for small status queries (spec
// §4.C).
func CallUDP(ctx context.Context, addr string, req Request) (Response, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", addr)
	if err != nil {
		return Response{}, Fail(RegistryNotFound, fmt.Sprintf("dial %v: %v", addr, err))
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	datagram, err := message.EncodeUDP(req.ToValue())
	if err != nil {
		return Response{}, Fail(MessageTooLarge, err.Error())
	}
	if _, err := conn.Write(datagram); err != nil {
		return Response{}, Fail(Internal, fmt.Sprintf("write request: %v", err))
	}

	buf := make([]byte, 65535)
	n, err := conn.Read(buf)
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return Response{}, Fail(Timeout, fmt.Sprintf("waiting for response to %v", req.Key))
		}
		return Response{}, Fail(Internal, fmt.Sprintf("read response: %v", err))
	}

	respValue, err := message.DecodeUDP(buf[:n])
	if err != nil {
		return Response{}, Fail(DecodeFailed, err.Error())
	}
	return ResponseFromValue(respValue)
}
