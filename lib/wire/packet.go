// Copyright 2026 The ResourceTracker Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import "github.com/google/uuid"

// Well-known queue-fabric channel names. The broker creates channels
// on first use, so these are conventions rather than registrations:
// the router drains ChannelIngress, the web and bot processes each
// drain their own egress channel.
const (
	ChannelIngress   = "ingress"
	ChannelWebEgress = "web-egress"
	ChannelBotEgress = "bot-egress"
)

// Packet targets. The router inspects Target and forwards the packet
// verbatim to the matching internal queue. Anything else is dropped.
const (
	TargetValidation = "validation"
	TargetDB         = "db"
)

// Reply statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// DefaultServerID is the tenant used when a packet does not name one.
const DefaultServerID = "core"

// UserContext identifies the human behind a packet. Nil means an
// anonymous caller — the gatekeeper treats those as GUEST.
type UserContext struct {
	UserID     string `json:"user_id"`
	Username   string `json:"username"`
	Avatar     string `json:"avatar,omitempty"`
	GlobalRole string `json:"global_role,omitempty"`
}

// Packet is the unit of work crossing process boundaries. The id is
// caller-generated and unique per outstanding request; ReplyTo names
// the egress channel the eventual Reply must be published to. An empty
// ReplyTo marks the packet fire-and-forget.
type Packet struct {
	ID          string         `json:"id"`
	Target      string         `json:"target"`
	Action      string         `json:"action"`
	ServerID    string         `json:"server_id,omitempty"`
	ReplyTo     string         `json:"reply_to,omitempty"`
	UserContext *UserContext   `json:"user_context,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
}

// NewPacket builds a packet with a fresh correlation id. An empty
// serverID falls back to [DefaultServerID].
func NewPacket(target, action, serverID string, userCtx *UserContext, payload map[string]any) Packet {
	if serverID == "" {
		serverID = DefaultServerID
	}
	return Packet{
		ID:          NewID(),
		Target:      target,
		Action:      action,
		ServerID:    serverID,
		UserContext: userCtx,
		Payload:     payload,
	}
}

// Reply is the correlated response to exactly one packet. ID always
// equals the triggering packet's id.
type Reply struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Data   any    `json:"data,omitempty"`
	Error  string `json:"error,omitempty"`
}

// SuccessReply builds a success reply carrying data (which may be nil).
func SuccessReply(id string, data any) Reply {
	return Reply{ID: id, Status: StatusSuccess, Data: data}
}

// ErrorReply builds an error reply with a human-readable message.
func ErrorReply(id, message string) Reply {
	return Reply{ID: id, Status: StatusError, Error: message}
}

// OK reports whether the reply carries a success status.
func (r Reply) OK() bool { return r.Status == StatusSuccess }

// NewID returns a fresh correlation id: a v4 UUID string.
func NewID() string { return uuid.NewString() }
