// Copyright 2026 The ResourceTracker Authors
// SPDX-License-Identifier: Apache-2.0

// Package router drains the ingress channel of the queue fabric and
// dispatches each packet by target: validation packets go to the
// gatekeeper's command channel, database packets are translated into
// executor commands. Packets with any other target are dropped,
// logged, and counted — the router itself never replies and never
// interprets payloads beyond the translation a db target requires.
package router
