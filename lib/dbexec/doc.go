// Copyright 2026 The ResourceTracker Authors
// SPDX-License-Identifier: Apache-2.0

// Package dbexec is the database executor: the single component that
// touches the relational store. Other components — the gatekeeper
// above all — submit [Command] values carrying parameterized SQL and
// an execution mode, and the executor delivers a correlated reply to
// whatever sink the command names.
//
// The sink indirection matters: the gatekeeper routinely asks the
// executor to reply directly to the web process's egress channel,
// skipping a hop. A command without a sink is fire-and-forget (the
// audit log is written this way).
//
// The executor owns no state beyond its connection pool. Each process
// constructs its own pool at startup; pools are never inherited
// across process boundaries.
package dbexec
