// Copyright 2026 The ResourceTracker Authors
// SPDX-License-Identifier: Apache-2.0

// Package taxonomy models the resource type tree and the rules
// derived from it: which types are valid to spawn, which stat slots a
// type defines, and how submitted stat values normalize into ratings.
//
// The tree is a forest — multiple roots, each node optionally naming
// a parent. Validity is computed once per full load and cached by the
// gatekeeper: only leaf nodes qualify, space-ladder entries are
// excluded, and so are "recycled" types whose every populated slot is
// pinned at the 200/200 sentinel range (those exist in the source
// data for crafting bookkeeping, not spawning).
package taxonomy
