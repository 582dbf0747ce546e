// Copyright 2026 The ResourceTracker Authors
// SPDX-License-Identifier: Apache-2.0

package dbexec

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gladiatordan/ResourceTracker/lib/testutil"
	"github.com/gladiatordan/ResourceTracker/lib/wire"
)

// startExecutor opens a fresh database in the test's temp dir and
// serves an executor over it.
func startExecutor(t *testing.T) chan<- Command {
	t.Helper()

	pool, err := OpenPool(PoolConfig{
		Path:     filepath.Join(t.TempDir(), "test.db"),
		PoolSize: 2,
		Logger:   slog.New(slog.DiscardHandler),
	})
	if err != nil {
		t.Fatalf("OpenPool: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	commands := make(chan Command, 16)
	executor, err := NewExecutor(ExecutorConfig{
		Pool:     pool,
		Commands: commands,
		Logger:   slog.New(slog.DiscardHandler),
	})
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		executor.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		testutil.RequireClosed(t, done, 5*time.Second, "executor shutdown")
	})
	return commands
}

// exec runs one command and returns its reply.
func exec(t *testing.T, commands chan<- Command, mode Mode, statements ...Statement) wire.Reply {
	t.Helper()
	sink := make(ChanSink, 1)
	testutil.RequireSend(t, commands, Command{
		ID:         wire.NewID(),
		Mode:       mode,
		Statements: statements,
		Reply:      sink,
	}, 5*time.Second, "queueing command")
	return testutil.RequireReceive(t, (chan wire.Reply)(sink), 5*time.Second, "awaiting reply")
}

func TestExecuteAndQuery(t *testing.T) {
	commands := startExecutor(t)

	reply := exec(t, commands, ModeExecute, Statement{
		SQL:    "INSERT INTO game_servers (id, name) VALUES (?, ?)",
		Params: []any{"legends", "SWG Legends"},
	})
	if !reply.OK() {
		t.Fatalf("insert failed: %s", reply.Error)
	}
	if got := reply.Data.(Result).AffectedRows; got != 1 {
		t.Errorf("affected rows = %d, want 1", got)
	}

	reply = exec(t, commands, ModeQuery, Statement{
		SQL:    "SELECT id, name FROM game_servers WHERE id = ?",
		Params: []any{"legends"},
	})
	if !reply.OK() {
		t.Fatalf("query failed: %s", reply.Error)
	}
	rows := reply.Data.(Result).Rows
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if got := rows[0]["name"]; got != "SWG Legends" {
		t.Errorf("name = %v, want SWG Legends", got)
	}
}

func TestExecuteFetchReturnsRowsBeforeCommit(t *testing.T) {
	commands := startExecutor(t)

	reply := exec(t, commands, ModeExecuteFetch, Statement{
		SQL:    "INSERT INTO users (user_id, username) VALUES (?, ?) RETURNING user_id, global_role",
		Params: []any{"42", "dan"},
	})
	if !reply.OK() {
		t.Fatalf("execute_fetch failed: %s", reply.Error)
	}
	result := reply.Data.(Result)
	if len(result.Rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(result.Rows))
	}
	if got := result.Rows[0]["global_role"]; got != "USER" {
		t.Errorf("global_role = %v, want the USER default", got)
	}
}

func TestRequireChangeRollsBackWholeTransaction(t *testing.T) {
	commands := startExecutor(t)

	reply := exec(t, commands, ModeExecute,
		Statement{
			SQL:    "INSERT INTO game_servers (id, name) VALUES (?, ?)",
			Params: []any{"restoration", "SWG Restoration"},
		},
		Statement{
			SQL:           "UPDATE game_servers SET name = ? WHERE id = ?",
			Params:        []any{"renamed", "no-such-server"},
			RequireChange: true,
		},
	)
	if reply.OK() {
		t.Fatal("command with an unmet RequireChange succeeded")
	}
	if reply.Error != "not found" {
		t.Errorf("error = %q, want %q", reply.Error, "not found")
	}

	// The first statement must have rolled back with the second.
	check := exec(t, commands, ModeQuery, Statement{
		SQL:    "SELECT id FROM game_servers WHERE id = ?",
		Params: []any{"restoration"},
	})
	if rows := check.Data.(Result).Rows; len(rows) != 0 {
		t.Errorf("found %d rows after rollback, want 0", len(rows))
	}
}

func TestStatementErrorBecomesErrorReply(t *testing.T) {
	commands := startExecutor(t)

	reply := exec(t, commands, ModeQuery, Statement{SQL: "SELECT * FROM no_such_table"})
	if reply.OK() {
		t.Fatal("query against a missing table succeeded")
	}
	if !strings.Contains(reply.Error, "database error") {
		t.Errorf("error = %q, want a database error message", reply.Error)
	}

	// The executor must keep serving after a failure.
	reply = exec(t, commands, ModeQuery, Statement{SQL: "SELECT 1 AS one"})
	if !reply.OK() {
		t.Fatalf("executor stopped serving after an error: %s", reply.Error)
	}
}

func TestUniqueConstraintSurfacesAsError(t *testing.T) {
	commands := startExecutor(t)

	seed := exec(t, commands, ModeExecute,
		Statement{SQL: "INSERT INTO game_servers (id, name) VALUES (?, ?)", Params: []any{"core", "Core"}},
		Statement{SQL: "INSERT INTO resource_taxonomy (id, class_label, enum_name) VALUES (?, ?, ?)", Params: []any{1, "Copper", "copper"}},
		Statement{SQL: `INSERT INTO resource_spawns (server_id, type_id, type_label, name) VALUES (?, ?, ?, ?)`, Params: []any{"core", 1, "Copper", "kovah"}},
	)
	if !seed.OK() {
		t.Fatalf("seed failed: %s", seed.Error)
	}

	dup := exec(t, commands, ModeExecute, Statement{
		SQL:    `INSERT INTO resource_spawns (server_id, type_id, type_label, name) VALUES (?, ?, ?, ?)`,
		Params: []any{"core", 1, "Copper", "kovah"},
	})
	if dup.OK() {
		t.Fatal("duplicate spawn name was accepted")
	}
	if !strings.Contains(dup.Error, "UNIQUE") {
		t.Errorf("error = %q, want a UNIQUE constraint message", dup.Error)
	}
}

func TestEmptyCommandRejected(t *testing.T) {
	commands := startExecutor(t)
	reply := exec(t, commands, ModeQuery)
	if reply.OK() {
		t.Fatal("empty command succeeded")
	}
}

func TestChanSinkDropsWhenFull(t *testing.T) {
	sink := make(ChanSink, 1)
	sink.Deliver(wire.SuccessReply("a", nil))
	sink.Deliver(wire.SuccessReply("b", nil)) // must not block

	got := <-sink
	if got.ID != "a" {
		t.Errorf("first delivered reply id = %q, want a", got.ID)
	}
	select {
	case extra := <-sink:
		t.Errorf("unexpected second reply %q", extra.ID)
	default:
	}
}
