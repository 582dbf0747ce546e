// Copyright 2026 The ResourceTracker Authors
// SPDX-License-Identifier: Apache-2.0

package gatekeeper

import (
	"context"
	"fmt"
	"strings"

	"github.com/gladiatordan/ResourceTracker/lib/dbexec"
	"github.com/gladiatordan/ResourceTracker/lib/role"
	"github.com/gladiatordan/ResourceTracker/lib/taxonomy"
)

// hydrate loads every cache from the database, in dependency order:
// the permission datasets first, then the taxonomy and its derived
// validity set, then the active resources. Each dataset load is
// bounded by the hydration timeout and any failure aborts the whole
// hydration.
func (g *Gatekeeper) hydrate(ctx context.Context) error {
	auth, err := g.loadAuthState(ctx)
	if err != nil {
		return fmt.Errorf("loading permission datasets: %w", err)
	}

	nodes, err := g.loadTaxonomy(ctx)
	if err != nil {
		return fmt.Errorf("loading taxonomy: %w", err)
	}

	resources, err := g.loadResources(ctx)
	if err != nil {
		return fmt.Errorf("loading active resources: %w", err)
	}

	g.auth = auth
	g.nodes = nodes
	g.validity = taxonomy.BuildValiditySet(nodes)
	g.labels = buildLabelIndex(nodes)
	g.resources = resources
	return nil
}

// loadAuthState fetches the mutable permission datasets: known
// servers, the action permission table, the superadmin set, and the
// per-tenant grants. Used for initial hydration and for the periodic
// off-loop refresh.
func (g *Gatekeeper) loadAuthState(ctx context.Context) (*authState, error) {
	auth := newAuthState()

	result, err := g.runDB(ctx, dbexec.ModeQuery, []dbexec.Statement{
		{SQL: "SELECT id, name FROM game_servers"},
	}, g.hydrationTimeout)
	if err != nil {
		return nil, fmt.Errorf("game_servers: %w", err)
	}
	for _, row := range result.Rows {
		auth.servers[rowString(row, "id")] = rowString(row, "name")
	}

	result, err = g.runDB(ctx, dbexec.ModeQuery, []dbexec.Statement{
		{SQL: "SELECT command, min_role_level FROM command_permissions"},
	}, g.hydrationTimeout)
	if err != nil {
		return nil, fmt.Errorf("command_permissions: %w", err)
	}
	for _, row := range result.Rows {
		auth.permissions[rowString(row, "command")] = int(rowInt(row, "min_role_level"))
	}

	result, err = g.runDB(ctx, dbexec.ModeQuery, []dbexec.Statement{
		{SQL: "SELECT user_id FROM users WHERE global_role = ?", Params: []any{string(role.Superadmin)}},
	}, g.hydrationTimeout)
	if err != nil {
		return nil, fmt.Errorf("superadmins: %w", err)
	}
	for _, row := range result.Rows {
		auth.superadmins[rowString(row, "user_id")] = struct{}{}
	}

	result, err = g.runDB(ctx, dbexec.ModeQuery, []dbexec.Statement{
		{SQL: "SELECT user_id, server_id, role FROM server_permissions"},
	}, g.hydrationTimeout)
	if err != nil {
		return nil, fmt.Errorf("server_permissions: %w", err)
	}
	for _, row := range result.Rows {
		r, err := role.Parse(rowString(row, "role"))
		if err != nil {
			// A corrupt grant must not take the process down;
			// it simply confers nothing.
			g.logger.Warn("ignoring grant with unknown role",
				"user_id", rowString(row, "user_id"),
				"server_id", rowString(row, "server_id"),
				"role", rowString(row, "role"),
			)
			continue
		}
		auth.grant(rowString(row, "user_id"), rowString(row, "server_id"), r)
	}

	return auth, nil
}

// loadTaxonomy fetches the full resource type tree.
func (g *Gatekeeper) loadTaxonomy(ctx context.Context) (map[int64]taxonomy.Node, error) {
	result, err := g.runDB(ctx, dbexec.ModeQuery, []dbexec.Statement{
		{SQL: "SELECT * FROM resource_taxonomy"},
	}, g.hydrationTimeout)
	if err != nil {
		return nil, err
	}

	nodes := make(map[int64]taxonomy.Node, len(result.Rows))
	for _, row := range result.Rows {
		n := nodeFromRow(row)
		nodes[n.ID] = n
	}
	return nodes, nil
}

// loadResources fetches every active spawn, grouped by tenant and
// keyed by spawn id.
func (g *Gatekeeper) loadResources(ctx context.Context) (map[string]map[int64]map[string]any, error) {
	result, err := g.runDB(ctx, dbexec.ModeQuery, []dbexec.Statement{
		{SQL: "SELECT * FROM resource_spawns WHERE is_active = 1"},
	}, g.hydrationTimeout)
	if err != nil {
		return nil, err
	}

	resources := make(map[string]map[int64]map[string]any)
	for _, row := range result.Rows {
		serverID := rowString(row, "server_id")
		byID, ok := resources[serverID]
		if !ok {
			byID = make(map[int64]map[string]any)
			resources[serverID] = byID
		}
		byID[rowInt(row, "id")] = row
	}
	return resources, nil
}

// buildLabelIndex maps lowercased class labels to node ids for payload
// type resolution.
func buildLabelIndex(nodes map[int64]taxonomy.Node) map[string]int64 {
	labels := make(map[string]int64, len(nodes))
	for id, n := range nodes {
		labels[strings.ToLower(n.Label)] = id
	}
	return labels
}
