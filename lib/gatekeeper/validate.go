// Copyright 2026 The ResourceTracker Authors
// SPDX-License-Identifier: Apache-2.0

package gatekeeper

import (
	"regexp"
	"strings"

	"github.com/gladiatordan/ResourceTracker/lib/taxonomy"
	"github.com/gladiatordan/ResourceTracker/lib/wire"
)

// maxNameLength is the longest accepted spawn name.
const maxNameLength = 64

// namePattern accepts letters, digits, spaces, apostrophes, and
// hyphens — the character set spawn names use in game.
var namePattern = regexp.MustCompile(`^[A-Za-z0-9' -]+$`)

// validateName normalizes and checks a spawn name.
func validateName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", ValidationError("name is required")
	}
	if len(name) > maxNameLength {
		return "", validationf("name exceeds %d characters", maxNameLength)
	}
	if !namePattern.MatchString(name) {
		return "", ValidationError("name may contain only letters, digits, spaces, apostrophes, and hyphens")
	}
	return name, nil
}

// resolveType maps a submitted type label to a spawnable taxonomy
// node. Labels that exist but are not in the validity set — interior
// nodes, space resources, recycled scrap — are rejected the same way
// as unknown labels, with the friendlier message for the known ones.
func (g *Gatekeeper) resolveType(label string) (taxonomy.Node, error) {
	trimmed := strings.TrimSpace(label)
	if trimmed == "" {
		return taxonomy.Node{}, ValidationError("type is required")
	}
	id, ok := g.labels[strings.ToLower(trimmed)]
	if !ok {
		return taxonomy.Node{}, validationf("unknown resource type %q", trimmed)
	}
	if _, ok := g.validity[id]; !ok {
		return taxonomy.Node{}, validationf("%q is not a spawnable resource type", trimmed)
	}
	return g.nodes[id], nil
}

// resolvePlanet determines the spawn's planet. Single-planet types
// force their planet regardless of what was submitted; otherwise the
// planet is optional, and a submitted one must be a member of the
// type's allowed set.
func resolvePlanet(node taxonomy.Node, submitted string) (string, error) {
	if len(node.Planets) == 1 {
		return node.Planets[0], nil
	}
	planet := strings.TrimSpace(submitted)
	if planet == "" {
		return "", nil
	}
	if !node.AllowsPlanet(planet) {
		return "", validationf("%s does not spawn on %s", node.Label, planet)
	}
	return planet, nil
}

// parseStats extracts the submitted stat values and checks each
// against the node's slot ranges. Zero clears a stat and is always
// accepted; a positive value for a stat the type does not define is
// rejected.
func parseStats(node taxonomy.Node, payload map[string]any) (map[string]int64, error) {
	values := make(map[string]int64)
	for _, code := range taxonomy.StatCodes {
		value, ok := wire.PayloadInt(payload, taxonomy.ColumnForCode(code))
		if !ok {
			continue
		}
		slot, defined := node.Slot(code)
		if !defined {
			if value > 0 {
				return nil, validationf("%s is not applicable to %s", code, node.Label)
			}
			continue
		}
		if value != 0 && (value < slot.Min || value > slot.Max) {
			return nil, validationf("%s must be between %d and %d", code, slot.Min, slot.Max)
		}
		values[code] = value
	}
	return values, nil
}
