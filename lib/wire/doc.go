// Copyright 2026 The ResourceTracker Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire defines the message types that cross process boundaries
// and the JSON codec used to put them on the wire.
//
// Every request entering the backend is a [Packet]; every correlated
// response is a [Reply]. Packets and replies are JSON-serializable maps
// by contract — the web front end, the chat bot, and the backend all
// speak the same shape, so the codec here is the single place that
// pins the encoding.
//
// Correlation ids are caller-generated v4 UUIDs. An id is unique only
// for the lifetime of one outstanding request; once the reply has been
// delivered and the wait slot removed, the id may be reused.
package wire
