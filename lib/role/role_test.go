// Copyright 2026 The ResourceTracker Authors
// SPDX-License-Identifier: Apache-2.0

package role

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{"ADMIN", Admin, false},
		{"admin", Admin, false},
		{"  Editor ", Editor, false},
		{"SUPERADMIN", Superadmin, false},
		{"GUEST", Guest, false},
		{"owner", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := Parse(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("Parse(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("Parse(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPowerOrdering(t *testing.T) {
	order := []Role{Guest, User, Editor, Admin, Superadmin}
	for i := 1; i < len(order); i++ {
		if Power(order[i-1]) >= Power(order[i]) {
			t.Errorf("Power(%s) = %d is not below Power(%s) = %d",
				order[i-1], Power(order[i-1]), order[i], Power(order[i]))
		}
	}
}

func TestPowerUnknownRanksAsGuest(t *testing.T) {
	if got := Power(Role("WIZARD")); got != PowerGuest {
		t.Errorf("Power(WIZARD) = %d, want %d", got, PowerGuest)
	}
}

func TestEffective(t *testing.T) {
	tests := []struct {
		name   string
		global Role
		grant  Role
		want   int
	}{
		{"grant raises global", User, Admin, PowerAdmin},
		{"global raises grant", Admin, User, PowerAdmin},
		{"superadmin ignores grant", Superadmin, Guest, PowerSuperadmin},
		{"both empty", "", "", PowerGuest},
		{"grant only", "", Editor, PowerEditor},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Effective(tt.global, tt.grant); got != tt.want {
				t.Errorf("Effective(%q, %q) = %d, want %d", tt.global, tt.grant, got, tt.want)
			}
		})
	}
}
