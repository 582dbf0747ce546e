// Copyright 2026 The ResourceTracker Authors
// SPDX-License-Identifier: Apache-2.0

package queue

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gladiatordan/ResourceTracker/lib/wire"
)

// dialTimeout bounds the connect phase of an attach.
const dialTimeout = 5 * time.Second

// ErrUnavailable is returned when the broker cannot be reached even
// after the one-shot reconnect. Callers surface this as "backend
// unavailable" rather than crashing.
var ErrUnavailable = errors.New("backend unavailable")

// ErrBadSecret is returned when the broker rejects the attach
// handshake. Retrying is pointless: the processes disagree on the
// shared secret.
var ErrBadSecret = errors.New("broker rejected shared secret")

// Client attaches to a broker by address and shared secret. It keeps
// a small pool of authenticated connections so that a long-polling
// consumer never blocks an unrelated publisher.
//
// Client is safe for concurrent use. Every request that fails on a
// broken connection is retried exactly once on a fresh connection
// before ErrUnavailable is reported.
type Client struct {
	address string
	secret  []byte

	mu   sync.Mutex
	idle []*clientConn
}

// clientConn is one authenticated broker connection with its codec
// state.
type clientConn struct {
	conn    net.Conn
	encoder *wire.Encoder
	decoder *frameDecoder
}

// NewClient creates a client for the broker at address. No connection
// is made until the first request.
func NewClient(address string, secret []byte) *Client {
	return &Client{address: address, secret: secret}
}

// Publish enqueues a message on the named channel. The message may be
// anything JSON-serializable — packets on ingress, replies on egress.
// The call returns as soon as the broker acknowledges the enqueue; it
// never waits for a consumer.
func (c *Client) Publish(ctx context.Context, channel string, message any) error {
	encoded, err := wire.Marshal(message)
	if err != nil {
		return fmt.Errorf("encoding message for %q: %w", channel, err)
	}
	resp, err := c.roundTrip(ctx, request{Op: opPublish, Channel: channel, Message: encoded})
	if err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("publish to %q: %s", channel, resp.Error)
	}
	return nil
}

// Consume waits up to timeout for a message on the named channel. The
// second return is false when the wait expired with the channel still
// empty — a normal outcome, not an error, so consumer loops can
// re-check their shutdown condition between polls.
func (c *Client) Consume(ctx context.Context, channel string, timeout time.Duration) (wire.RawMessage, bool, error) {
	resp, err := c.roundTrip(ctx, request{
		Op:            opConsume,
		Channel:       channel,
		TimeoutMillis: timeout.Milliseconds(),
	})
	if err != nil {
		return nil, false, err
	}
	if !resp.OK {
		return nil, false, fmt.Errorf("consume from %q: %s", channel, resp.Error)
	}
	if resp.Empty || len(resp.Message) == 0 {
		return nil, false, nil
	}
	return resp.Message, true, nil
}

// ConsumePacket consumes and decodes one packet from the channel.
func (c *Client) ConsumePacket(ctx context.Context, channel string, timeout time.Duration) (wire.Packet, bool, error) {
	raw, ok, err := c.Consume(ctx, channel, timeout)
	if err != nil || !ok {
		return wire.Packet{}, false, err
	}
	var packet wire.Packet
	if err := wire.Unmarshal(raw, &packet); err != nil {
		return wire.Packet{}, false, fmt.Errorf("decoding packet from %q: %w", channel, err)
	}
	return packet, true, nil
}

// ConsumeReply consumes and decodes one reply from the channel.
func (c *Client) ConsumeReply(ctx context.Context, channel string, timeout time.Duration) (wire.Reply, bool, error) {
	raw, ok, err := c.Consume(ctx, channel, timeout)
	if err != nil || !ok {
		return wire.Reply{}, false, err
	}
	var reply wire.Reply
	if err := wire.Unmarshal(raw, &reply); err != nil {
		return wire.Reply{}, false, fmt.Errorf("decoding reply from %q: %w", channel, err)
	}
	return reply, true, nil
}

// Close drops all pooled connections. In-flight requests finish on
// their own connections.
func (c *Client) Close() {
	c.mu.Lock()
	idle := c.idle
	c.idle = nil
	c.mu.Unlock()
	for _, cc := range idle {
		cc.conn.Close()
	}
}

// roundTrip sends one frame and reads its response, retrying once on
// a fresh connection if the transport fails mid-request.
func (c *Client) roundTrip(ctx context.Context, req request) (response, error) {
	resp, err := c.attempt(ctx, req)
	if err == nil || errors.Is(err, ErrBadSecret) || ctx.Err() != nil {
		return resp, err
	}

	// The connection may have been a stale pool entry or the broker
	// may have restarted. One reconnect-and-resend before giving up.
	resp, err = c.attempt(ctx, req)
	if err == nil || errors.Is(err, ErrBadSecret) {
		return resp, err
	}
	return response{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// attempt performs one request on a pooled or fresh connection. A
// transport failure closes the connection; success returns it to the
// pool.
func (c *Client) attempt(ctx context.Context, req request) (response, error) {
	cc, err := c.acquire(ctx)
	if err != nil {
		return response{}, err
	}

	// The read deadline covers the longest broker-side consume wait
	// plus slack; publishes answer immediately.
	wait := maxConsumeWait
	if d := time.Duration(req.TimeoutMillis) * time.Millisecond; req.Op == opConsume && d > 0 && d < wait {
		wait = d
	}
	cc.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	cc.conn.SetReadDeadline(time.Now().Add(wait + 10*time.Second))

	if err := cc.encoder.Encode(req); err != nil {
		cc.conn.Close()
		return response{}, fmt.Errorf("writing frame: %w", err)
	}

	var resp response
	if err := cc.decoder.Decode(&resp); err != nil {
		cc.conn.Close()
		return response{}, fmt.Errorf("reading frame: %w", err)
	}

	c.release(cc)
	return resp, nil
}

// acquire pops an idle connection or dials a new one.
func (c *Client) acquire(ctx context.Context) (*clientConn, error) {
	c.mu.Lock()
	if n := len(c.idle); n > 0 {
		cc := c.idle[n-1]
		c.idle = c.idle[:n-1]
		c.mu.Unlock()
		return cc, nil
	}
	c.mu.Unlock()
	return c.dial(ctx)
}

// release returns a healthy connection to the pool.
func (c *Client) release(cc *clientConn) {
	c.mu.Lock()
	c.idle = append(c.idle, cc)
	c.mu.Unlock()
}

// dial opens a TCP connection and runs the attach handshake.
func (c *Client) dial(ctx context.Context) (*clientConn, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.address)
	if err != nil {
		return nil, fmt.Errorf("connecting to broker at %s: %w", c.address, err)
	}

	cc := &clientConn{
		conn:    conn,
		encoder: wire.NewEncoder(conn),
		decoder: newFrameDecoder(conn),
	}

	conn.SetDeadline(time.Now().Add(handshakeTimeout))

	var ch challenge
	if err := cc.decoder.Decode(&ch); err != nil {
		conn.Close()
		return nil, fmt.Errorf("reading challenge: %w", err)
	}

	if err := cc.encoder.Encode(challengeAnswer{Digest: answerChallenge(c.secret, ch.Nonce)}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("answering challenge: %w", err)
	}

	var result challengeResult
	if err := cc.decoder.Decode(&result); err != nil {
		conn.Close()
		return nil, fmt.Errorf("reading handshake result: %w", err)
	}
	if !result.OK {
		conn.Close()
		return nil, ErrBadSecret
	}

	conn.SetDeadline(time.Time{})
	return cc, nil
}
