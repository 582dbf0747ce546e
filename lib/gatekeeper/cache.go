// Copyright 2026 The ResourceTracker Authors
// SPDX-License-Identifier: Apache-2.0

package gatekeeper

import (
	"fmt"
	"strings"

	"github.com/gladiatordan/ResourceTracker/lib/role"
	"github.com/gladiatordan/ResourceTracker/lib/taxonomy"
	"github.com/gladiatordan/ResourceTracker/lib/wire"
)

// authState bundles the mutable permission datasets. The serve loop
// owns the current instance; the periodic refresh builds a fresh one
// from the database and swaps it in whole, so the loop never sees a
// half-rebuilt table.
type authState struct {
	// servers maps tenant id → display name.
	servers map[string]string

	// permissions maps action → minimum required power. Actions
	// absent from the table require SUPERADMIN.
	permissions map[string]int

	// superadmins is the set of user ids with the SUPERADMIN global
	// role, checked before any claimed role from the packet.
	superadmins map[string]struct{}

	// grants maps user id → tenant id → granted role.
	grants map[string]map[string]role.Role
}

func newAuthState() *authState {
	return &authState{
		servers:     make(map[string]string),
		permissions: make(map[string]int),
		superadmins: make(map[string]struct{}),
		grants:      make(map[string]map[string]role.Role),
	}
}

// grant records a per-tenant role for a user.
func (a *authState) grant(userID, serverID string, r role.Role) {
	byServer, ok := a.grants[userID]
	if !ok {
		byServer = make(map[string]role.Role)
		a.grants[userID] = byServer
	}
	byServer[serverID] = r
}

// rowString reads a text column from an executor result row. Numeric
// and blob values are not coerced; absent or NULL columns read as "".
func rowString(row map[string]any, key string) string {
	switch v := row[key].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}

// rowInt reads an integer column from an executor result row. Rows
// that crossed the wire as JSON carry float64; rows straight from the
// executor carry int64.
func rowInt(row map[string]any, key string) int64 {
	switch v := row[key].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	default:
		return 0
	}
}

// nodeFromRow converts a resource_taxonomy row into a tree node. Slot
// columns come in attr_N / att_N_min / att_N_max triples; empty attr
// columns are unpopulated slots.
func nodeFromRow(row map[string]any) taxonomy.Node {
	n := taxonomy.Node{
		ID:       rowInt(row, "id"),
		Label:    rowString(row, "class_label"),
		EnumName: rowString(row, "enum_name"),
		ParentID: rowInt(row, "parent_id"),
	}

	if raw := rowString(row, "planets"); raw != "" {
		var planets []string
		if err := wire.Unmarshal([]byte(raw), &planets); err == nil {
			n.Planets = planets
		}
	}

	for i := 1; i <= taxonomy.MaxSlots; i++ {
		code := rowString(row, fmt.Sprintf("attr_%d", i))
		if code == "" {
			continue
		}
		n.Slots = append(n.Slots, taxonomy.Slot{
			Code: strings.ToUpper(code),
			Min:  rowInt(row, fmt.Sprintf("att_%d_min", i)),
			Max:  rowInt(row, fmt.Sprintf("att_%d_max", i)),
		})
	}
	return n
}
