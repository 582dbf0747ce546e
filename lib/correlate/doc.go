// Copyright 2026 The ResourceTracker Authors
// SPDX-License-Identifier: Apache-2.0

// Package correlate matches replies to outstanding requests across the
// queue fabric. Each process owns one Mailbox: callers publish a
// packet to ingress and block on a per-request wait slot; a single
// background listener drains the process's egress channel and wakes
// the matching slot by correlation id. A request that outlives its
// timeout gets a synthetic timed-out reply, and the real reply — if it
// ever arrives — is discarded and counted rather than waking a
// stranger.
package correlate
