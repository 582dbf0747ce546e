// Copyright 2026 The ResourceTracker Authors
// SPDX-License-Identifier: Apache-2.0

package taxonomy

import "strings"

// MaxSlots is the number of stat slot positions a node can populate.
const MaxSlots = 11

// Stat codes, in canonical column order. Each maps to a res_* payload
// and database column (OQ → res_oq and so on).
var StatCodes = []string{"OQ", "CD", "DR", "FL", "HR", "MA", "PE", "SR", "UT", "CR"}

// ColumnForCode returns the payload/column key for a stat code.
func ColumnForCode(code string) string {
	return "res_" + strings.ToLower(code)
}

// Slot is one populated stat slot on a node: the stat it constrains
// and the inclusive value range a spawn of this type may carry.
type Slot struct {
	Code string
	Min  int64
	Max  int64
}

// Node is one entry in the resource type tree.
type Node struct {
	ID       int64
	Label    string
	EnumName string

	// ParentID is zero for roots.
	ParentID int64

	// Slots holds the populated stat slots, at most MaxSlots.
	Slots []Slot

	// Planets is the set of planets this type may spawn on. A
	// single-planet type forces that planet on every spawn.
	Planets []string
}

// Slot returns the node's slot for a stat code, if it defines one.
func (n Node) Slot(code string) (Slot, bool) {
	for _, s := range n.Slots {
		if s.Code == code {
			return s, true
		}
	}
	return Slot{}, false
}

// AllowsPlanet reports whether the node permits spawning on planet.
func (n Node) AllowsPlanet(planet string) bool {
	for _, p := range n.Planets {
		if strings.EqualFold(p, planet) {
			return true
		}
	}
	return false
}

// recycledSentinel is the min=max range marking a recycled slot. A
// node whose every populated slot is pinned here is craftable scrap,
// never a spawn.
const recycledSentinel = 200

// spaceMarker tags the space-resource ladder, which shares the tree
// but cannot spawn planetside.
const spaceMarker = "space_"

// BuildValiditySet computes the derived is_valid flag for every node
// and returns the set of node ids eligible to spawn as resources.
//
// A node is valid iff it has no children, its enum name does not
// contain the space marker, and it is not recycled (at least one
// populated slot off the sentinel range, or no populated slots at
// all).
func BuildValiditySet(nodes map[int64]Node) map[int64]struct{} {
	hasChildren := make(map[int64]struct{})
	for _, n := range nodes {
		if n.ParentID != 0 {
			hasChildren[n.ParentID] = struct{}{}
		}
	}

	valid := make(map[int64]struct{})
	for id, n := range nodes {
		if _, ok := hasChildren[id]; ok {
			continue
		}
		if strings.Contains(strings.ToLower(n.EnumName), spaceMarker) {
			continue
		}
		if isRecycled(n) {
			continue
		}
		valid[id] = struct{}{}
	}
	return valid
}

// isRecycled reports whether every populated slot sits at the
// recycled sentinel range. Nodes with no populated slots are not
// recycled.
func isRecycled(n Node) bool {
	if len(n.Slots) == 0 {
		return false
	}
	for _, s := range n.Slots {
		if s.Min != recycledSentinel || s.Max != recycledSentinel {
			return false
		}
	}
	return true
}
