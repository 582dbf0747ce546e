// Copyright 2026 The ResourceTracker Authors
// SPDX-License-Identifier: Apache-2.0

package gatekeeper

import (
	"errors"
	"strings"
	"testing"

	"github.com/gladiatordan/ResourceTracker/lib/taxonomy"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"plain", "kovah", "kovah", false},
		{"trimmed", "  kovah  ", "kovah", false},
		{"apostrophe and hyphen", "ko'vah-prime", "ko'vah-prime", false},
		{"digits and spaces", "spawn 42", "spawn 42", false},
		{"empty", "", "", true},
		{"whitespace only", "   ", "", true},
		{"too long", strings.Repeat("a", 65), "", true},
		{"exactly max", strings.Repeat("a", 64), strings.Repeat("a", 64), false},
		{"html", "<b>kovah</b>", "", true},
		{"underscore", "ko_vah", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := validateName(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("validateName(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err != nil {
				var ve ValidationError
				if !errors.As(err, &ve) {
					t.Errorf("error is %T, want ValidationError", err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("validateName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestResolvePlanet(t *testing.T) {
	multi := taxonomy.Node{Label: "Desh Copper", Planets: []string{"Corellia", "Naboo"}}
	single := taxonomy.Node{Label: "Vornskr Meat", Planets: []string{"Dathomir"}}

	if got, err := resolvePlanet(single, "Corellia"); err != nil || got != "Dathomir" {
		t.Errorf("single-planet type: got (%q, %v), want forced Dathomir", got, err)
	}
	if got, err := resolvePlanet(multi, "naboo"); err != nil || got != "naboo" {
		t.Errorf("member planet: got (%q, %v)", got, err)
	}
	if _, err := resolvePlanet(multi, "Dathomir"); err == nil {
		t.Error("non-member planet accepted")
	}
	if _, err := resolvePlanet(multi, ""); err == nil {
		t.Error("missing planet accepted for a multi-planet type")
	}
}

func TestParseStats(t *testing.T) {
	node := taxonomy.Node{
		Label: "Desh Copper",
		Slots: []taxonomy.Slot{
			{Code: "OQ", Min: 1, Max: 1000},
			{Code: "CD", Min: 322, Max: 650},
		},
	}

	values, err := parseStats(node, map[string]any{
		"res_oq": float64(500),
		"res_cd": "650",
	})
	if err != nil {
		t.Fatalf("parseStats: %v", err)
	}
	if values["OQ"] != 500 || values["CD"] != 650 {
		t.Errorf("values = %v", values)
	}

	if _, err := parseStats(node, map[string]any{"res_cd": float64(321)}); err == nil {
		t.Error("below-minimum value accepted")
	}
	if _, err := parseStats(node, map[string]any{"res_oq": float64(1001)}); err == nil {
		t.Error("above-maximum value accepted")
	}
	if _, err := parseStats(node, map[string]any{"res_fl": float64(5)}); err == nil {
		t.Error("positive value for an undefined slot accepted")
	}

	// Zero is a clear, never a range violation, defined slot or not.
	values, err = parseStats(node, map[string]any{"res_cd": float64(0), "res_fl": float64(0)})
	if err != nil {
		t.Fatalf("zero values rejected: %v", err)
	}
	if v, ok := values["CD"]; !ok || v != 0 {
		t.Errorf("zero clear lost: %v", values)
	}
}
