// Copyright 2026 The ResourceTracker Authors
// SPDX-License-Identifier: Apache-2.0

// Package gatekeeper is the validation actor of the tracker backend:
// the single authority on what may enter the resource database.
//
// The gatekeeper hydrates its caches from the database, then serves
// commands one at a time from a single goroutine — permission checks,
// payload validation, rating computation, and cache maintenance all
// happen on that loop, so no cache ever needs a lock. A periodic
// refresh rebuilds the mutable datasets off-loop and hands the result
// to the loop over a channel; the taxonomy and its validity cache only
// change on an explicit reload.
//
// Database work is delegated to the executor over its command channel
// and awaited on a private reply channel, keeping the gatekeeper free
// of SQL connection handling.
package gatekeeper
