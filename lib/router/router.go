// Copyright 2026 The ResourceTracker Authors
// SPDX-License-Identifier: Apache-2.0

package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/gladiatordan/ResourceTracker/lib/dbexec"
	"github.com/gladiatordan/ResourceTracker/lib/queue"
	"github.com/gladiatordan/ResourceTracker/lib/wire"
)

// pollTimeout is the long-poll wait per consume. Short enough that the
// router notices shutdown promptly, long enough that an idle system is
// not spinning.
const pollTimeout = 5 * time.Second

// Config configures a Router.
type Config struct {
	// Client is the queue-fabric client the router consumes ingress
	// through and answers direct database packets through. Required.
	Client *queue.Client

	// Validation receives packets addressed to the gatekeeper.
	// Required.
	Validation chan<- wire.Packet

	// DB receives commands translated from packets addressed
	// directly to the executor. Required.
	DB chan<- dbexec.Command

	// Logger is the structured logger. Required.
	Logger *slog.Logger

	// Registerer receives the router's metrics. Nil means the
	// metrics are created but not registered (tests).
	Registerer prometheus.Registerer
}

// Router is the single ingress dispatcher. One goroutine drains the
// ingress channel and forwards each packet whole; the router never
// composes replies, so a misaddressed request surfaces to its caller
// only as a correlation timeout.
type Router struct {
	client     *queue.Client
	validation chan<- wire.Packet
	db         chan<- dbexec.Command
	logger     *slog.Logger

	dispatched *prometheus.CounterVec
	dropped    *prometheus.CounterVec
}

// New creates a router. Call Serve to start dispatching.
func New(config Config) (*Router, error) {
	if config.Client == nil {
		return nil, errors.New("router: Client is required")
	}
	if config.Validation == nil {
		return nil, errors.New("router: Validation is required")
	}
	if config.DB == nil {
		return nil, errors.New("router: DB is required")
	}
	if config.Logger == nil {
		return nil, errors.New("router: Logger is required")
	}

	factory := promauto.With(config.Registerer)
	return &Router{
		client:     config.Client,
		validation: config.Validation,
		db:         config.DB,
		logger:     config.Logger,
		dispatched: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "router_dispatched_total",
			Help: "Packets forwarded to an internal queue, by target.",
		}, []string{"target"}),
		dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "router_dropped_total",
			Help: "Packets dropped for carrying an unknown target.",
		}, []string{"target"}),
	}, nil
}

// Serve consumes ingress packets until ctx is cancelled. Consume
// timeouts are normal; transport errors are logged and retried after a
// short pause rather than crashing the dispatcher.
func (r *Router) Serve(ctx context.Context) error {
	r.logger.Info("router running")
	for {
		if ctx.Err() != nil {
			r.logger.Info("router stopped")
			return nil
		}

		packet, ok, err := r.client.ConsumePacket(ctx, wire.ChannelIngress, pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			r.logger.Error("ingress consume failed", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}
		if !ok {
			continue
		}

		r.dispatch(ctx, packet)
	}
}

// dispatch forwards one packet to its target queue.
func (r *Router) dispatch(ctx context.Context, packet wire.Packet) {
	switch packet.Target {
	case wire.TargetValidation:
		select {
		case r.validation <- packet:
			r.dispatched.WithLabelValues(packet.Target).Inc()
		case <-ctx.Done():
		}

	case wire.TargetDB:
		cmd, err := r.translate(packet)
		if err != nil {
			r.logger.Warn("malformed database packet dropped",
				"packet_id", packet.ID,
				"action", packet.Action,
				"error", err,
			)
			r.dropped.WithLabelValues(packet.Target).Inc()
			return
		}
		select {
		case r.db <- cmd:
			r.dispatched.WithLabelValues(packet.Target).Inc()
		case <-ctx.Done():
		}

	default:
		r.logger.Warn("packet with unknown target dropped",
			"packet_id", packet.ID,
			"target", packet.Target,
			"action", packet.Action,
		)
		r.dropped.WithLabelValues(packet.Target).Inc()
	}
}

// translate converts a direct database packet into an executor
// command. The payload carries either a single "sql"/"params" pair or
// a "statements" list; "mode" selects the execution mode. Replies go
// straight to the packet's egress channel.
func (r *Router) translate(packet wire.Packet) (dbexec.Command, error) {
	mode := dbexec.Mode(wire.PayloadString(packet.Payload, "mode"))
	switch mode {
	case dbexec.ModeQuery, dbexec.ModeExecute, dbexec.ModeExecuteFetch:
	default:
		return dbexec.Command{}, fmt.Errorf("unknown mode %q", mode)
	}

	statements, err := parseStatements(packet.Payload)
	if err != nil {
		return dbexec.Command{}, err
	}

	cmd := dbexec.Command{ID: packet.ID, Mode: mode, Statements: statements}
	if packet.ReplyTo != "" {
		cmd.Reply = dbexec.QueueSink{
			Client:  r.client,
			Channel: packet.ReplyTo,
			Logger:  r.logger,
		}
	}
	return cmd, nil
}

// parseStatements extracts the statement list from a database packet
// payload.
func parseStatements(payload map[string]any) ([]dbexec.Statement, error) {
	if sql := wire.PayloadString(payload, "sql"); sql != "" {
		params, _ := payload["params"].([]any)
		return []dbexec.Statement{{SQL: sql, Params: params}}, nil
	}

	raw, ok := payload["statements"].([]any)
	if !ok || len(raw) == 0 {
		return nil, errors.New("payload carries neither sql nor statements")
	}

	statements := make([]dbexec.Statement, 0, len(raw))
	for i, item := range raw {
		fields, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("statement %d is not an object", i)
		}
		sql := wire.PayloadString(fields, "sql")
		if sql == "" {
			return nil, fmt.Errorf("statement %d has no sql", i)
		}
		params, _ := fields["params"].([]any)
		require, _ := fields["require_change"].(bool)
		statements = append(statements, dbexec.Statement{
			SQL:           sql,
			Params:        params,
			RequireChange: require,
		})
	}
	return statements, nil
}
