// Copyright 2026 The ResourceTracker Authors
// SPDX-License-Identifier: Apache-2.0

package correlate

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/gladiatordan/ResourceTracker/lib/clock"
	"github.com/gladiatordan/ResourceTracker/lib/queue"
	"github.com/gladiatordan/ResourceTracker/lib/wire"
)

// TimedOutError is the message carried by the synthetic reply a caller
// receives when the backend does not answer within the deadline.
const TimedOutError = "request timed out"

// DefaultTimeout bounds a Send that does not specify its own deadline.
const DefaultTimeout = 10 * time.Second

// pollTimeout is the listener's long-poll wait per consume.
const pollTimeout = 5 * time.Second

// Config configures a Mailbox.
type Config struct {
	// Client is the queue-fabric client. Required.
	Client *queue.Client

	// Egress is the name of the fabric channel this process's
	// replies arrive on. Every packet sent through the mailbox
	// carries it as ReplyTo. Required.
	Egress string

	// Logger is the structured logger. Required.
	Logger *slog.Logger

	// Clock drives timeouts. Nil means the real clock.
	Clock clock.Clock

	// Registerer receives the mailbox's metrics. Nil means the
	// metrics are created but not registered (tests).
	Registerer prometheus.Registerer
}

// Mailbox is a process-wide correlation table. Safe for concurrent
// use: any number of goroutines may Send at once, each blocking on its
// own wait slot while the single listener goroutine routes replies.
type Mailbox struct {
	client *queue.Client
	egress string
	logger *slog.Logger
	clk    clock.Clock

	mu    sync.Mutex
	slots map[string]chan wire.Reply

	timeouts    prometheus.Counter
	lateReplies prometheus.Counter
}

// New creates a mailbox. Call Serve to start the reply listener.
func New(config Config) (*Mailbox, error) {
	if config.Client == nil {
		return nil, errors.New("correlate.Mailbox: Client is required")
	}
	if config.Egress == "" {
		return nil, errors.New("correlate.Mailbox: Egress is required")
	}
	if config.Logger == nil {
		return nil, errors.New("correlate.Mailbox: Logger is required")
	}

	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}

	factory := promauto.With(config.Registerer)
	return &Mailbox{
		client: config.Client,
		egress: config.Egress,
		logger: config.Logger,
		clk:    clk,
		slots:  make(map[string]chan wire.Reply),
		timeouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "correlate_timeouts_total",
			Help: "Requests answered with a synthetic timed-out reply.",
		}),
		lateReplies: factory.NewCounter(prometheus.CounterOpts{
			Name: "correlate_late_replies_total",
			Help: "Replies that arrived after their wait slot was gone.",
		}),
	}, nil
}

// Serve drains the egress channel until ctx is cancelled, waking the
// wait slot matching each reply's correlation id. Replies with no
// slot — late arrivals past their timeout, or ids this process never
// issued — are discarded and counted.
func (m *Mailbox) Serve(ctx context.Context) error {
	m.logger.Info("correlation listener running", "egress", m.egress)
	for {
		if ctx.Err() != nil {
			m.logger.Info("correlation listener stopped")
			return nil
		}

		reply, ok, err := m.client.ConsumeReply(ctx, m.egress, pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			m.logger.Error("egress consume failed", "error", err)
			select {
			case <-ctx.Done():
			case <-m.clk.After(time.Second):
			}
			continue
		}
		if !ok {
			continue
		}

		m.deliver(reply)
	}
}

// deliver routes one reply to its wait slot, removing the slot so a
// duplicate reply cannot wake a future request that reuses nothing but
// the map bucket.
func (m *Mailbox) deliver(reply wire.Reply) {
	m.mu.Lock()
	slot, ok := m.slots[reply.ID]
	if ok {
		delete(m.slots, reply.ID)
	}
	m.mu.Unlock()

	if !ok {
		m.lateReplies.Inc()
		m.logger.Debug("discarding unmatched reply", "correlation_id", reply.ID)
		return
	}

	// The slot is buffered and owned solely by this delivery once
	// removed from the map, so the send cannot block.
	slot <- reply
}

// Send publishes packet to ingress and blocks until the correlated
// reply arrives, the timeout elapses, or ctx is cancelled. A timeout
// yields a synthetic error reply rather than an error: the caller sees
// the same shape either way. A zero timeout means DefaultTimeout.
//
// The packet's ReplyTo is overwritten with this mailbox's egress
// channel; its ID must be unique among outstanding requests, which
// [wire.NewPacket] guarantees.
func (m *Mailbox) Send(ctx context.Context, packet wire.Packet, timeout time.Duration) (wire.Reply, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	packet.ReplyTo = m.egress

	slot := make(chan wire.Reply, 1)
	m.mu.Lock()
	if _, exists := m.slots[packet.ID]; exists {
		m.mu.Unlock()
		return wire.Reply{}, errors.New("correlation id already in flight")
	}
	m.slots[packet.ID] = slot
	m.mu.Unlock()

	if err := m.client.Publish(ctx, wire.ChannelIngress, packet); err != nil {
		m.remove(packet.ID)
		return wire.Reply{}, err
	}

	select {
	case reply := <-slot:
		return reply, nil

	case <-m.clk.After(timeout):
		m.remove(packet.ID)
		m.timeouts.Inc()
		m.logger.Warn("request timed out",
			"correlation_id", packet.ID,
			"action", packet.Action,
			"timeout", timeout,
		)
		return wire.ErrorReply(packet.ID, TimedOutError), nil

	case <-ctx.Done():
		m.remove(packet.ID)
		return wire.Reply{}, ctx.Err()
	}
}

// remove drops a wait slot. Harmless if delivery already claimed it.
func (m *Mailbox) remove(id string) {
	m.mu.Lock()
	delete(m.slots, id)
	m.mu.Unlock()
}

// Pending reports the number of outstanding wait slots.
func (m *Mailbox) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.slots)
}
