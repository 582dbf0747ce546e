// Copyright 2026 The ResourceTracker Authors
// SPDX-License-Identifier: Apache-2.0

// Package role defines the permission hierarchy shared by every
// process that gates access: an ordered set of named roles, each with
// an integer power, compared numerically.
//
// The hierarchy is deliberately sparse at the top — SUPERADMIN sits
// at 100, far above ADMIN's 3, so new intermediate roles can be added
// without renumbering.
package role

import (
	"fmt"
	"strings"
)

// Role is a named rank in the hierarchy.
type Role string

// The hierarchy, weakest first.
const (
	Guest      Role = "GUEST"
	User       Role = "USER"
	Editor     Role = "EDITOR"
	Admin      Role = "ADMIN"
	Superadmin Role = "SUPERADMIN"
)

// Power levels. A caller's effective power must meet or exceed an
// action's required power.
const (
	PowerGuest      = 0
	PowerUser       = 1
	PowerEditor     = 2
	PowerAdmin      = 3
	PowerSuperadmin = 100
)

var powers = map[Role]int{
	Guest:      PowerGuest,
	User:       PowerUser,
	Editor:     PowerEditor,
	Admin:      PowerAdmin,
	Superadmin: PowerSuperadmin,
}

// Parse normalizes a role name. Unknown names are an error so that a
// typo in a grant never silently becomes GUEST.
func Parse(name string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(name)))
	if _, ok := powers[r]; !ok {
		return "", fmt.Errorf("unknown role %q", name)
	}
	return r, nil
}

// Power returns the integer power of r. Unknown roles rank as GUEST.
func Power(r Role) int {
	if p, ok := powers[r]; ok {
		return p
	}
	return PowerGuest
}

// Effective computes a caller's power for one tenant: the maximum of
// the global role and the per-tenant grant, with SUPERADMIN
// short-circuiting to full power everywhere.
func Effective(globalRole, tenantGrant Role) int {
	global := Power(globalRole)
	if global >= PowerSuperadmin {
		return PowerSuperadmin
	}
	if grant := Power(tenantGrant); grant > global {
		return grant
	}
	return global
}
