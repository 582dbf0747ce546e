// Copyright 2026 The ResourceTracker Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/json"
	"testing"
)

func TestNewPacketDefaultsServerID(t *testing.T) {
	pkt := NewPacket(TargetValidation, "get_resource_data", "", nil, nil)
	if pkt.ServerID != DefaultServerID {
		t.Errorf("ServerID = %q, want %q", pkt.ServerID, DefaultServerID)
	}
	if pkt.ID == "" {
		t.Error("packet has no correlation id")
	}
}

func TestNewPacketIDsAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		pkt := NewPacket(TargetValidation, "x", "core", nil, nil)
		if seen[pkt.ID] {
			t.Fatalf("duplicate correlation id %q", pkt.ID)
		}
		seen[pkt.ID] = true
	}
}

func TestReplyBuilders(t *testing.T) {
	success := SuccessReply("abc", map[string]any{"n": 1})
	if !success.OK() {
		t.Error("success reply reports !OK")
	}
	if success.ID != "abc" {
		t.Errorf("ID = %q, want abc", success.ID)
	}

	failure := ErrorReply("abc", "name is required")
	if failure.OK() {
		t.Error("error reply reports OK")
	}
	if failure.Error != "name is required" {
		t.Errorf("Error = %q", failure.Error)
	}
}

func TestPacketRoundTrip(t *testing.T) {
	original := NewPacket(TargetValidation, "add_resource", "legends",
		&UserContext{UserID: "42", Username: "dan", GlobalRole: "ADMIN"},
		map[string]any{"name": "kovah", "res_oq": float64(512)},
	)
	original.ReplyTo = ChannelWebEgress

	encoded, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded Packet
	if err := Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if decoded.ID != original.ID {
		t.Errorf("ID = %q, want %q", decoded.ID, original.ID)
	}
	if decoded.ReplyTo != ChannelWebEgress {
		t.Errorf("ReplyTo = %q, want %q", decoded.ReplyTo, ChannelWebEgress)
	}
	if decoded.UserContext == nil || decoded.UserContext.UserID != "42" {
		t.Errorf("UserContext did not survive: %+v", decoded.UserContext)
	}
	if got := PayloadString(decoded.Payload, "name"); got != "kovah" {
		t.Errorf("payload name = %q, want kovah", got)
	}
}

func TestPayloadInt(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
		want    int64
		wantOK  bool
	}{
		{"float64 from json", map[string]any{"v": float64(512)}, 512, true},
		{"int64", map[string]any{"v": int64(7)}, 7, true},
		{"int", map[string]any{"v": 7}, 7, true},
		{"numeric string", map[string]any{"v": "960"}, 960, true},
		{"negative string", map[string]any{"v": "-3"}, -3, true},
		{"json.Number", map[string]any{"v": json.Number("12")}, 12, true},
		{"empty string", map[string]any{"v": ""}, 0, false},
		{"non-numeric string", map[string]any{"v": "abc"}, 0, false},
		{"absent", map[string]any{}, 0, false},
		{"wrong type", map[string]any{"v": true}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := PayloadInt(tt.payload, "v")
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("PayloadInt = (%d, %v), want (%d, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
