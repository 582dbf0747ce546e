// Copyright 2026 The ResourceTracker Authors
// SPDX-License-Identifier: Apache-2.0

package dbexec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/gladiatordan/ResourceTracker/lib/wire"
)

// ErrNoRows is the rollback cause when a statement marked
// RequireChange affected zero rows. The whole transaction unwinds and
// the caller gets a "not found" reply.
var ErrNoRows = errors.New("not found")

// ExecutorConfig configures an Executor.
type ExecutorConfig struct {
	// Pool is the connection pool commands run against. Required.
	Pool *Pool

	// Commands is the inbound work channel, fed by the router.
	// Required.
	Commands <-chan Command

	// Logger is the structured logger. Required.
	Logger *slog.Logger

	// Registerer receives the executor's metrics. Nil means the
	// metrics are created but not registered (tests).
	Registerer prometheus.Registerer
}

// Executor drains the command channel and runs each command against
// the pool: reads collect rows, mutations run in an immediate
// transaction that commits only if every statement succeeds. Failures
// of any kind become error replies — the executor never crashes on bad
// SQL, and a failed mutation leaves the database untouched.
type Executor struct {
	pool     *Pool
	commands <-chan Command
	logger   *slog.Logger

	executed *prometheus.CounterVec
}

// NewExecutor creates an executor. Call Serve to start draining.
func NewExecutor(config ExecutorConfig) (*Executor, error) {
	if config.Pool == nil {
		return nil, errors.New("dbexec.Executor: Pool is required")
	}
	if config.Commands == nil {
		return nil, errors.New("dbexec.Executor: Commands is required")
	}
	if config.Logger == nil {
		return nil, errors.New("dbexec.Executor: Logger is required")
	}

	factory := promauto.With(config.Registerer)
	return &Executor{
		pool:     config.Pool,
		commands: config.Commands,
		logger:   config.Logger,
		executed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "db_commands_total",
			Help: "Database commands processed, by mode and outcome.",
		}, []string{"mode", "status"}),
	}, nil
}

// Serve processes commands until ctx is cancelled. Commands are
// handled one at a time in arrival order; SQLite serializes writers
// anyway, and ordering keeps retire-then-read sequences predictable.
func (e *Executor) Serve(ctx context.Context) error {
	e.logger.Info("database executor running")
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("database executor stopped")
			return nil
		case cmd := <-e.commands:
			reply := e.run(ctx, cmd)
			e.executed.WithLabelValues(string(cmd.Mode), reply.Status).Inc()
			if cmd.Reply != nil {
				cmd.Reply.Deliver(reply)
			} else if !reply.OK() {
				e.logger.Error("fire-and-forget command failed",
					"command_id", cmd.ID,
					"mode", cmd.Mode,
					"error", reply.Error,
				)
			}
		}
	}
}

// run executes one command and builds its reply. Every failure path
// returns an error reply; nothing panics past this frame.
func (e *Executor) run(ctx context.Context, cmd Command) wire.Reply {
	if len(cmd.Statements) == 0 {
		return wire.ErrorReply(cmd.ID, "command carries no statements")
	}

	conn, err := e.pool.Take(ctx)
	if err != nil {
		e.logger.Error("connection pool exhausted or closed",
			"command_id", cmd.ID,
			"error", err,
		)
		return wire.ErrorReply(cmd.ID, "connection pool error")
	}
	defer e.pool.Put(conn)

	switch cmd.Mode {
	case ModeQuery:
		result, err := e.runQuery(conn, cmd)
		if err != nil {
			e.logger.Error("query failed", "command_id", cmd.ID, "error", err)
			return wire.ErrorReply(cmd.ID, fmt.Sprintf("database error: %v", err))
		}
		return wire.SuccessReply(cmd.ID, result)

	case ModeExecute, ModeExecuteFetch:
		result, err := e.runMutation(conn, cmd)
		if err != nil {
			if errors.Is(err, ErrNoRows) {
				return wire.ErrorReply(cmd.ID, ErrNoRows.Error())
			}
			e.logger.Error("mutation rolled back", "command_id", cmd.ID, "error", err)
			return wire.ErrorReply(cmd.ID, fmt.Sprintf("database error: %v", err))
		}
		return wire.SuccessReply(cmd.ID, result)

	default:
		return wire.ErrorReply(cmd.ID, fmt.Sprintf("unknown command mode %q", cmd.Mode))
	}
}

// runQuery executes read-only statements, concatenating their rows.
func (e *Executor) runQuery(conn *sqlite.Conn, cmd Command) (Result, error) {
	var result Result
	for _, st := range cmd.Statements {
		if err := executeCollecting(conn, st, &result.Rows); err != nil {
			return Result{}, err
		}
	}
	return result, nil
}

// runMutation runs all statements in one immediate transaction. Any
// error — SQL failure or an unmet RequireChange — rolls the whole
// transaction back, so multi-statement commands like the retire
// archive-move are all-or-nothing.
func (e *Executor) runMutation(conn *sqlite.Conn, cmd Command) (result Result, err error) {
	endFn, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return Result{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer endFn(&err)

	for _, st := range cmd.Statements {
		if cmd.Mode == ModeExecuteFetch {
			err = executeCollecting(conn, st, &result.Rows)
		} else {
			err = executeCollecting(conn, st, nil)
		}
		if err != nil {
			return Result{}, err
		}

		changed := int64(conn.Changes())
		if st.RequireChange && changed == 0 {
			err = ErrNoRows
			return Result{}, err
		}
		result.AffectedRows += changed
	}
	return result, nil
}

// executeCollecting runs one statement, appending any result rows to
// dst when dst is non-nil.
func executeCollecting(conn *sqlite.Conn, st Statement, dst *[]map[string]any) error {
	opts := &sqlitex.ExecOptions{Args: st.Params}
	if dst != nil {
		opts.ResultFunc = func(stmt *sqlite.Stmt) error {
			*dst = append(*dst, collectRow(stmt))
			return nil
		}
	}
	if err := sqlitex.Execute(conn, st.SQL, opts); err != nil {
		return fmt.Errorf("executing statement: %w", err)
	}
	return nil
}

// collectRow copies the current result row into a column-name map.
func collectRow(stmt *sqlite.Stmt) map[string]any {
	row := make(map[string]any, stmt.ColumnCount())
	for i := 0; i < stmt.ColumnCount(); i++ {
		name := stmt.ColumnName(i)
		switch stmt.ColumnType(i) {
		case sqlite.TypeInteger:
			row[name] = stmt.ColumnInt64(i)
		case sqlite.TypeFloat:
			row[name] = stmt.ColumnFloat(i)
		case sqlite.TypeText:
			row[name] = stmt.ColumnText(i)
		case sqlite.TypeBlob:
			buf := make([]byte, stmt.ColumnLen(i))
			stmt.ColumnBytes(i, buf)
			row[name] = buf
		default:
			row[name] = nil
		}
	}
	return row
}
