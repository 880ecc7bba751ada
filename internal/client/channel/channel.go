// Package channel implements the dual-channel transport used to talk to the
// credential server: a persistent multiplexed websocket preferred for
// latency, and a plain HTTP channel used as fallback.
package channel

import (
	"context"
	"fmt"
)

// Request describes one credential-server call, independent of transport.
type Request struct {
	Method string
	Path   string
	Body   []byte
}

// Channel sends a request over one concrete transport and returns the raw
// response body.
type Channel interface {
	Send(ctx context.Context, req Request) ([]byte, error)
	// CanAcceptRequests reports whether the channel is currently able to
	// take a request (e.g. the socket is connected).
	CanAcceptRequests() bool
}

// Requester picks a channel per request.
type Requester interface {
	Fetch(ctx context.Context, req Request) ([]byte, error)
}

// DualRequester tries the socket channel first and falls back to the plain
// channel. The failover is single-level: one socket attempt at most, then
// exactly one plain attempt.
type DualRequester struct {
	socket Channel
	plain  Channel

	// ForcePlain skips the socket channel entirely.
	ForcePlain bool
}

func NewDualRequester(socket, plain Channel) *DualRequester {
	return &DualRequester{socket: socket, plain: plain}
}

// Fetch sends req over the socket channel when it is usable, transparently
// retrying once over the plain channel on any socket error.
func (d *DualRequester) Fetch(ctx context.Context, req Request) ([]byte, error) {
	if d.ForcePlain || d.socket == nil || !d.socket.CanAcceptRequests() {
		return d.plain.Send(ctx, req)
	}

	resp, err := d.socket.Send(ctx, req)
	if err == nil {
		return resp, nil
	}

	resp, perr := d.plain.Send(ctx, req)
	if perr != nil {
		return nil, fmt.Errorf("socket channel: %v; plain channel: %w", err, perr)
	}
	return resp, nil
}
