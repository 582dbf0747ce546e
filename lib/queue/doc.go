// Copyright 2026 The ResourceTracker Authors
// SPDX-License-Identifier: Apache-2.0

// Package queue implements the queue fabric: named, unbounded, FIFO
// packet channels hosted by a broker and reachable from any local
// process that knows the broker address and the shared secret.
//
// The broker is in-memory only. Once enqueued, a packet is never lost
// except on broker crash — durability is an explicit design boundary,
// not a bug. Enqueue is at-least-once from the caller's point of view
// (a reconnecting client may republish), dequeue is at-most-once.
//
// Clients speak a small JSON frame protocol over one persistent TCP
// connection, strictly request/response. Attachment requires an
// HMAC-SHA256 challenge handshake: the broker sends a random nonce,
// the client answers with the keyed digest, and the broker verifies
// in constant time before any frame is accepted.
package queue
