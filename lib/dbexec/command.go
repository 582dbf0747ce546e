// Copyright 2026 The ResourceTracker Authors
// SPDX-License-Identifier: Apache-2.0

package dbexec

import (
	"context"
	"log/slog"
	"time"

	"github.com/gladiatordan/ResourceTracker/lib/queue"
	"github.com/gladiatordan/ResourceTracker/lib/wire"
)

// Mode selects how a command's statements execute.
type Mode string

const (
	// ModeQuery is read-only: all rows are returned, nothing
	// commits.
	ModeQuery Mode = "query"

	// ModeExecute mutates and commits on success, returning the
	// number of affected rows.
	ModeExecute Mode = "execute"

	// ModeExecuteFetch mutates and also returns rows (insert ...
	// returning). The fetch happens before the commit so returned
	// values reflect the transaction about to commit.
	ModeExecuteFetch Mode = "execute_fetch"
)

// Statement is one parameterized SQL statement. Commands usually
// carry exactly one; the atomic archive-move in retire carries two.
type Statement struct {
	SQL    string
	Params []any

	// RequireChange rolls the whole transaction back with
	// ErrNoRows when this statement changes zero rows. Only
	// meaningful in the mutating modes.
	RequireChange bool
}

// Command is one unit of database work. Statements share a single
// transaction in the mutating modes.
type Command struct {
	ID         string
	Mode       Mode
	Statements []Statement

	// Reply receives the outcome. Nil makes the command
	// fire-and-forget: errors are logged, nothing is delivered.
	Reply ReplySink
}

// Result is the success payload of a database reply.
type Result struct {
	Rows         []map[string]any `json:"rows,omitempty"`
	AffectedRows int64            `json:"affected_rows"`
}

// ReplySink receives the executor's reply for one command. The
// executor does not know or care who is listening: the gatekeeper's
// hydration channel, the web process's egress queue, or nobody.
type ReplySink interface {
	Deliver(reply wire.Reply)
}

// ChanSink delivers replies to an in-process channel. The send is
// non-blocking — a sink nobody is draining must not stall the
// executor — so the channel should be buffered for at least the
// number of outstanding commands.
type ChanSink chan wire.Reply

// Deliver implements ReplySink.
func (s ChanSink) Deliver(reply wire.Reply) {
	select {
	case s <- reply:
	default:
	}
}

// QueueSink publishes replies to a named queue-fabric channel,
// letting the executor answer an external process directly.
type QueueSink struct {
	Client  *queue.Client
	Channel string
	Logger  *slog.Logger
}

// publishTimeout bounds the egress publish. The broker acknowledges
// from memory, so this only trips when the broker is gone.
const publishTimeout = 5 * time.Second

// Deliver implements ReplySink. A failed publish is logged and
// dropped; the caller's correlation timeout handles the rest.
func (s QueueSink) Deliver(reply wire.Reply) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := s.Client.Publish(ctx, s.Channel, reply); err != nil && s.Logger != nil {
		s.Logger.Error("failed to deliver reply to egress channel",
			"channel", s.Channel,
			"correlation_id", reply.ID,
			"error", err,
		)
	}
}
