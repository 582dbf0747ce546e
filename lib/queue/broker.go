// Copyright 2026 The ResourceTracker Authors
// SPDX-License-Identifier: Apache-2.0

package queue

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/gladiatordan/ResourceTracker/lib/wire"
)

// handshakeNonceSize is the size of the random challenge nonce.
const handshakeNonceSize = 32

// handshakeTimeout bounds the entire attach handshake. A client that
// connects and stalls is cut off rather than holding a goroutine.
const handshakeTimeout = 10 * time.Second

// maxConsumeWait is the longest a single consume frame may block
// broker-side. Clients long-poll: a consume that comes back empty is
// simply reissued, which keeps every connection responsive to
// shutdown.
const maxConsumeWait = 30 * time.Second

// maxFrameSize caps a single JSON frame. Resource payloads are small;
// 1 MB is generous and prevents a misbehaving client from exhausting
// broker memory with one frame.
const maxFrameSize = 1024 * 1024

// Broker hosts the named queues and serves the attach protocol on a
// local TCP address. Queues are created on first use and live for the
// broker's lifetime.
//
// Broker is safe for concurrent use; each attached connection is
// served by its own goroutine.
type Broker struct {
	address string
	secret  []byte
	logger  *slog.Logger

	mu     sync.Mutex
	queues map[string]*fifo

	// ready is closed once the listener is bound, after which Addr
	// is valid. Mirrors the lifecycle of the process's other
	// long-running servers.
	ready chan struct{}
	addr  net.Addr

	activeConns sync.WaitGroup

	published    *prometheus.CounterVec
	consumed     *prometheus.CounterVec
	consumeEmpty *prometheus.CounterVec
	authFailures prometheus.Counter
}

// BrokerConfig configures a Broker.
type BrokerConfig struct {
	// Address is the TCP listen address (e.g., "127.0.0.1:7474").
	// Use port 0 for an OS-assigned port (tests). Required.
	Address string

	// Secret is the shared secret known only to cooperating
	// processes. Required, non-empty.
	Secret []byte

	// Logger is the structured logger. Required.
	Logger *slog.Logger

	// Registerer receives the broker's metrics. Nil means the
	// metrics are created but not registered (tests).
	Registerer prometheus.Registerer
}

// NewBroker creates a broker. Call Serve to bind and accept.
func NewBroker(config BrokerConfig) (*Broker, error) {
	if config.Address == "" {
		return nil, errors.New("queue.Broker: Address is required")
	}
	if len(config.Secret) == 0 {
		return nil, errors.New("queue.Broker: Secret is required")
	}
	if config.Logger == nil {
		return nil, errors.New("queue.Broker: Logger is required")
	}

	factory := promauto.With(config.Registerer)
	return &Broker{
		address: config.Address,
		secret:  config.Secret,
		logger:  config.Logger,
		queues:  make(map[string]*fifo),
		ready:   make(chan struct{}),
		published: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "queue_published_total",
			Help: "Packets accepted into a channel.",
		}, []string{"channel"}),
		consumed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "queue_consumed_total",
			Help: "Packets handed to a consumer.",
		}, []string{"channel"}),
		consumeEmpty: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "queue_consume_empty_total",
			Help: "Consume requests that timed out with an empty channel.",
		}, []string{"channel"}),
		authFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "queue_auth_failures_total",
			Help: "Connections rejected by the attach handshake.",
		}),
	}, nil
}

// Ready returns a channel closed once the broker is bound and
// accepting connections.
func (b *Broker) Ready() <-chan struct{} { return b.ready }

// Addr returns the resolved listen address. Only valid after Ready()
// is closed.
func (b *Broker) Addr() net.Addr { return b.addr }

// Serve binds the listener and accepts connections until ctx is
// cancelled, then waits for active connections to drain.
func (b *Broker) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", b.address)
	if err != nil {
		return fmt.Errorf("queue broker: listening on %s: %w", b.address, err)
	}
	b.addr = listener.Addr()
	close(b.ready)

	// Unblock Accept when the context is cancelled.
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	b.logger.Info("queue broker listening", "address", b.addr.String())

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			b.logger.Error("accept failed", "error", err)
			continue
		}

		b.activeConns.Add(1)
		go func() {
			defer b.activeConns.Done()
			b.handleConnection(ctx, conn)
		}()
	}

	b.activeConns.Wait()
	b.logger.Info("queue broker stopped")
	return nil
}

// queue returns the named queue, creating it on first use.
func (b *Broker) queue(name string) *fifo {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[name]
	if !ok {
		q = newFIFO()
		b.queues[name] = q
	}
	return q
}

// Depth reports the number of packets waiting in the named channel.
// Unknown channels report zero.
func (b *Broker) Depth(name string) int {
	b.mu.Lock()
	q, ok := b.queues[name]
	b.mu.Unlock()
	if !ok {
		return 0
	}
	return q.depth()
}

// handleConnection runs the handshake, then serves frames until the
// client disconnects or the broker shuts down.
func (b *Broker) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	if err := b.handshake(conn); err != nil {
		b.authFailures.Inc()
		b.logger.Warn("attach handshake failed",
			"remote", conn.RemoteAddr().String(),
			"error", err,
		)
		return
	}

	decoder := newFrameDecoder(conn)
	encoder := wire.NewEncoder(conn)

	for {
		if ctx.Err() != nil {
			return
		}

		// A connection with no pending frame is idle; the read
		// deadline keeps the loop re-checking shutdown. Consume
		// waits are bounded by maxConsumeWait, so the deadline
		// must exceed it.
		conn.SetReadDeadline(time.Now().Add(maxConsumeWait + handshakeTimeout))

		var req request
		if err := decoder.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return
			}
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			b.writeResponse(conn, encoder, response{OK: false, Error: fmt.Sprintf("invalid frame: %v", err)})
			return
		}

		b.writeResponse(conn, encoder, b.serveFrame(req))
	}
}

// serveFrame executes one publish or consume request.
func (b *Broker) serveFrame(req request) response {
	if req.Channel == "" {
		return response{OK: false, Error: "missing required field: channel"}
	}

	switch req.Op {
	case opPublish:
		if len(req.Message) == 0 {
			return response{OK: false, Error: "publish without message"}
		}
		b.queue(req.Channel).push(req.Message)
		b.published.WithLabelValues(req.Channel).Inc()
		return response{OK: true}

	case opConsume:
		wait := time.Duration(req.TimeoutMillis) * time.Millisecond
		if wait <= 0 || wait > maxConsumeWait {
			wait = maxConsumeWait
		}
		message, ok := b.queue(req.Channel).pop(wait)
		if !ok {
			b.consumeEmpty.WithLabelValues(req.Channel).Inc()
			return response{OK: true, Empty: true}
		}
		b.consumed.WithLabelValues(req.Channel).Inc()
		return response{OK: true, Message: message}

	default:
		return response{OK: false, Error: fmt.Sprintf("unknown op %q", req.Op)}
	}
}

// handshake challenges the client and verifies its keyed digest in
// constant time. The whole exchange is bounded by handshakeTimeout.
func (b *Broker) handshake(conn net.Conn) error {
	conn.SetDeadline(time.Now().Add(handshakeTimeout))
	defer conn.SetDeadline(time.Time{})

	nonce := make([]byte, handshakeNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("generating nonce: %w", err)
	}

	encoder := wire.NewEncoder(conn)
	if err := encoder.Encode(challenge{Nonce: nonce}); err != nil {
		return fmt.Errorf("sending challenge: %w", err)
	}

	var answer challengeAnswer
	if err := newFrameDecoder(conn).Decode(&answer); err != nil {
		return fmt.Errorf("reading challenge answer: %w", err)
	}

	expected := answerChallenge(b.secret, nonce)
	if !hmac.Equal(expected, answer.Digest) {
		// Tell the client before closing so it can distinguish a
		// bad secret from a network fault.
		encoder.Encode(challengeResult{OK: false})
		return errors.New("digest mismatch")
	}

	if err := encoder.Encode(challengeResult{OK: true}); err != nil {
		return fmt.Errorf("confirming handshake: %w", err)
	}
	return nil
}

// writeResponse encodes one response frame, logging write failures at
// debug level — the client is gone either way.
func (b *Broker) writeResponse(conn net.Conn, encoder *wire.Encoder, resp response) {
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := encoder.Encode(resp); err != nil {
		b.logger.Debug("failed to write response frame", "error", err)
	}
}
