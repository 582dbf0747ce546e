// Copyright 2026 The ResourceTracker Authors
// SPDX-License-Identifier: Apache-2.0

package gatekeeper

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/gladiatordan/ResourceTracker/lib/dbexec"
	"github.com/gladiatordan/ResourceTracker/lib/role"
	"github.com/gladiatordan/ResourceTracker/lib/taxonomy"
	"github.com/gladiatordan/ResourceTracker/lib/wire"
)

// handleGetResourceData serves the active spawn list from the cache.
// An optional "since" timestamp narrows the answer to spawns modified
// after it, which is how pollers fetch deltas cheaply.
func (g *Gatekeeper) handleGetResourceData(ctx context.Context, pkt wire.Packet, power int) (any, error) {
	serverID := serverOf(pkt)
	since, _ := wire.PayloadInt(pkt.Payload, "since")

	rows := make([]map[string]any, 0, len(g.resources[serverID]))
	for _, row := range g.resources[serverID] {
		if since > 0 && rowInt(row, "last_modified") <= since {
			continue
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		return rowString(rows[i], "name") < rowString(rows[j], "name")
	})

	return map[string]any{
		"server_id": serverID,
		"resources": rows,
		"count":     len(rows),
	}, nil
}

// handleGetTaxonomyData serves the full type tree with each node's
// derived spawnability.
func (g *Gatekeeper) handleGetTaxonomyData(ctx context.Context, pkt wire.Packet, power int) (any, error) {
	nodes := make([]map[string]any, 0, len(g.nodes))
	for id, n := range g.nodes {
		slots := make([]map[string]any, 0, len(n.Slots))
		for _, s := range n.Slots {
			slots = append(slots, map[string]any{"code": s.Code, "min": s.Min, "max": s.Max})
		}
		_, valid := g.validity[id]
		nodes = append(nodes, map[string]any{
			"id":        n.ID,
			"label":     n.Label,
			"enum_name": n.EnumName,
			"parent_id": n.ParentID,
			"planets":   n.Planets,
			"slots":     slots,
			"is_valid":  valid,
		})
	}
	sort.Slice(nodes, func(i, j int) bool {
		return rowInt(nodes[i], "id") < rowInt(nodes[j], "id")
	})

	return map[string]any{"nodes": nodes, "count": len(nodes)}, nil
}

// handleAddResource validates and inserts a new spawn, updates the
// cache, logs the command, and broadcasts the arrival to the bot
// process.
func (g *Gatekeeper) handleAddResource(ctx context.Context, pkt wire.Packet, power int) (any, error) {
	serverID := serverOf(pkt)

	node, err := g.resolveType(wire.PayloadString(pkt.Payload, "type"))
	if err != nil {
		return nil, err
	}
	name, err := validateName(wire.PayloadString(pkt.Payload, "name"))
	if err != nil {
		return nil, err
	}
	if existing := g.findByName(serverID, name); existing != nil {
		return nil, validationf("a resource named %q already exists", name)
	}
	planet, err := resolvePlanet(node, wire.PayloadString(pkt.Payload, "planet"))
	if err != nil {
		return nil, err
	}
	values, err := parseStats(node, pkt.Payload)
	if err != nil {
		return nil, err
	}

	notes := g.sanitize.Sanitize(wire.PayloadString(pkt.Payload, "notes"))
	ratings := taxonomy.ComputeRatings(node, values)

	var reportedBy any
	if uc := pkt.UserContext; uc != nil && uc.UserID != "" {
		reportedBy = uc.UserID
	}

	params := []any{serverID, node.ID, node.Label, name, planet, notes, reportedBy}
	params = statParams(params, values, ratings)
	params = append(params, ratings.Aggregate)

	result, err := g.runDB(ctx, dbexec.ModeExecuteFetch, []dbexec.Statement{
		{SQL: insertResourceSQL, Params: params, RequireChange: true},
	}, opTimeout)
	if err != nil {
		// The cache pre-check races true concurrency; the storage
		// constraint is the guarantee.
		if strings.Contains(err.Error(), "UNIQUE") {
			return nil, validationf("a resource named %q already exists", name)
		}
		return nil, err
	}
	if len(result.Rows) == 0 {
		return nil, fmt.Errorf("insert returned no row")
	}

	row := result.Rows[0]
	g.cacheResource(serverID, row)
	g.audit(pkt)
	g.alertNewResource(ctx, serverID, row)

	return map[string]any{"resource": row}, nil
}

// handleUpdateResource merges the submitted fields over the cached
// spawn, revalidates, recomputes ratings, and persists the result.
func (g *Gatekeeper) handleUpdateResource(ctx context.Context, pkt wire.Packet, power int) (any, error) {
	serverID := serverOf(pkt)

	existing := g.findResource(serverID, pkt.Payload)
	if existing == nil {
		return nil, ValidationError("resource not found")
	}

	node, ok := g.nodes[rowInt(existing, "type_id")]
	if !ok {
		return nil, fmt.Errorf("resource type %d missing from taxonomy", rowInt(existing, "type_id"))
	}

	submitted, err := parseStats(node, pkt.Payload)
	if err != nil {
		return nil, err
	}
	values := make(map[string]int64)
	for _, code := range taxonomy.StatCodes {
		if v := rowInt(existing, taxonomy.ColumnForCode(code)); v > 0 {
			values[code] = v
		}
	}
	for code, v := range submitted {
		if v > 0 {
			values[code] = v
		} else {
			delete(values, code)
		}
	}

	planet := rowString(existing, "planet")
	if submitted := wire.PayloadString(pkt.Payload, "planet"); submitted != "" {
		planet, err = resolvePlanet(node, submitted)
		if err != nil {
			return nil, err
		}
	}
	notes := rowString(existing, "notes")
	if _, ok := pkt.Payload["notes"]; ok {
		notes = g.sanitize.Sanitize(wire.PayloadString(pkt.Payload, "notes"))
	}

	ratings := taxonomy.ComputeRatings(node, values)

	params := []any{planet, notes}
	params = statParams(params, values, ratings)
	params = append(params, ratings.Aggregate, rowInt(existing, "id"), serverID)

	result, err := g.runDB(ctx, dbexec.ModeExecuteFetch, []dbexec.Statement{
		{SQL: updateResourceSQL, Params: params, RequireChange: true},
	}, opTimeout)
	if err != nil {
		return nil, err
	}
	if len(result.Rows) == 0 {
		return nil, fmt.Errorf("update returned no row")
	}

	row := result.Rows[0]
	g.cacheResource(serverID, row)
	g.audit(pkt)

	return map[string]any{"resource": row}, nil
}

// handleRetireResource archives a spawn and removes it from the live
// table in one transaction. Both statements must change a row: a
// missing spawn rolls the whole move back and answers "not found".
func (g *Gatekeeper) handleRetireResource(ctx context.Context, pkt wire.Packet, power int) (any, error) {
	serverID := serverOf(pkt)

	var statements []dbexec.Statement
	id, hasID := wire.PayloadInt(pkt.Payload, "id")
	name := strings.TrimSpace(wire.PayloadString(pkt.Payload, "name"))
	switch {
	case hasID:
		statements = []dbexec.Statement{
			{SQL: archiveByIDSQL, Params: []any{serverID, id}, RequireChange: true},
			{SQL: deleteByIDSQL, Params: []any{serverID, id}, RequireChange: true},
		}
	case name != "":
		statements = []dbexec.Statement{
			{SQL: archiveByNameSQL, Params: []any{serverID, name}, RequireChange: true},
			{SQL: deleteByNameSQL, Params: []any{serverID, name}, RequireChange: true},
		}
	default:
		return nil, ValidationError("id or name is required")
	}

	if _, err := g.runDB(ctx, dbexec.ModeExecute, statements, opTimeout); err != nil {
		return nil, err
	}

	g.uncacheResource(serverID, id, hasID, name)
	g.audit(pkt)

	return map[string]any{"retired": true, "server_id": serverID}, nil
}

// handleSetUserRole grants a per-tenant role. A grantor below
// SUPERADMIN may only hand out roles strictly below their own power.
func (g *Gatekeeper) handleSetUserRole(ctx context.Context, pkt wire.Packet, power int) (any, error) {
	serverID := serverOf(pkt)

	targetID := wire.PayloadString(pkt.Payload, "user_id")
	if targetID == "" {
		return nil, ValidationError("user_id is required")
	}
	granted, err := role.Parse(wire.PayloadString(pkt.Payload, "role"))
	if err != nil {
		return nil, validationf("unknown role %q", wire.PayloadString(pkt.Payload, "role"))
	}
	if power < role.PowerSuperadmin && role.Power(granted) >= power {
		return nil, PermissionError("cannot assign a role at or above your own")
	}

	_, err = g.runDB(ctx, dbexec.ModeExecute, []dbexec.Statement{
		{SQL: upsertGrantSQL, Params: []any{targetID, serverID, string(granted)}},
	}, opTimeout)
	if err != nil {
		return nil, err
	}

	g.auth.grant(targetID, serverID, granted)
	g.audit(pkt)

	return map[string]any{"user_id": targetID, "server_id": serverID, "role": string(granted)}, nil
}

// handleSyncUser upserts the caller's identity and idempotently grants
// default USER membership on every known tenant. The reply carries the
// stored global role, which the web process needs for its session.
func (g *Gatekeeper) handleSyncUser(ctx context.Context, pkt wire.Packet, power int) (any, error) {
	uc := pkt.UserContext
	if uc == nil || uc.UserID == "" {
		return nil, ValidationError("user context is required")
	}

	statements := []dbexec.Statement{
		{SQL: upsertUserSQL, Params: []any{uc.UserID, uc.Username, uc.Avatar}},
	}
	serverIDs := make([]string, 0, len(g.auth.servers))
	for id := range g.auth.servers {
		serverIDs = append(serverIDs, id)
	}
	sort.Strings(serverIDs)
	for _, id := range serverIDs {
		statements = append(statements, dbexec.Statement{
			SQL:    defaultGrantSQL,
			Params: []any{uc.UserID, id, string(role.User)},
		})
	}

	result, err := g.runDB(ctx, dbexec.ModeExecuteFetch, statements, opTimeout)
	if err != nil {
		return nil, err
	}
	if len(result.Rows) == 0 {
		return nil, fmt.Errorf("user upsert returned no row")
	}
	globalRole := rowString(result.Rows[0], "global_role")

	if globalRole == string(role.Superadmin) {
		g.auth.superadmins[uc.UserID] = struct{}{}
	}
	for _, id := range serverIDs {
		if _, ok := g.auth.grants[uc.UserID][id]; !ok {
			g.auth.grant(uc.UserID, id, role.User)
		}
	}
	g.audit(pkt)

	return map[string]any{"user_id": uc.UserID, "global_role": globalRole}, nil
}

// handleReloadCache rebuilds every cache from the database, taxonomy
// and validity set included. A failed reload keeps the previous caches
// in place.
func (g *Gatekeeper) handleReloadCache(ctx context.Context, pkt wire.Packet, power int) (any, error) {
	if err := g.hydrate(ctx); err != nil {
		return nil, fmt.Errorf("reload failed: %w", err)
	}
	g.audit(pkt)

	return map[string]any{
		"reloaded":       true,
		"taxonomy_nodes": len(g.nodes),
		"valid_types":    len(g.validity),
		"servers":        len(g.auth.servers),
	}, nil
}

// findResource locates a cached spawn by payload id or name.
func (g *Gatekeeper) findResource(serverID string, payload map[string]any) map[string]any {
	if id, ok := wire.PayloadInt(payload, "id"); ok {
		return g.resources[serverID][id]
	}
	return g.findByName(serverID, wire.PayloadString(payload, "name"))
}

// findByName scans the tenant's cache for a spawn by case-insensitive
// name.
func (g *Gatekeeper) findByName(serverID, name string) map[string]any {
	for _, row := range g.resources[serverID] {
		if strings.EqualFold(rowString(row, "name"), name) {
			return row
		}
	}
	return nil
}

// cacheResource stores a freshly returned row in the tenant's cache.
func (g *Gatekeeper) cacheResource(serverID string, row map[string]any) {
	byID, ok := g.resources[serverID]
	if !ok {
		byID = make(map[int64]map[string]any)
		g.resources[serverID] = byID
	}
	byID[rowInt(row, "id")] = row
}

// uncacheResource drops a retired spawn from the cache.
func (g *Gatekeeper) uncacheResource(serverID string, id int64, hasID bool, name string) {
	byID := g.resources[serverID]
	if hasID {
		delete(byID, id)
		return
	}
	for key, row := range byID {
		if strings.EqualFold(rowString(row, "name"), name) {
			delete(byID, key)
			return
		}
	}
}

// audit appends a fire-and-forget command-log entry. A saturated
// executor queue drops the entry rather than stalling the loop; the
// command itself already succeeded.
func (g *Gatekeeper) audit(pkt wire.Packet) {
	snapshot, err := wire.Marshal(pkt.Payload)
	if err != nil || len(snapshot) == 0 {
		snapshot = []byte("{}")
	}
	var userID, username any
	if uc := pkt.UserContext; uc != nil {
		userID, username = uc.UserID, uc.Username
	}

	cmd := dbexec.Command{
		ID:   wire.NewID(),
		Mode: dbexec.ModeExecute,
		Statements: []dbexec.Statement{{
			SQL:    insertLogSQL,
			Params: []any{serverOf(pkt), userID, username, pkt.Action, string(snapshot)},
		}},
	}
	select {
	case g.db <- cmd:
	default:
		g.logger.Warn("command log entry dropped", "action", pkt.Action)
	}
}

// alertNewResource broadcasts a spawn arrival on the bot egress
// channel. Best effort: the insert already committed.
func (g *Gatekeeper) alertNewResource(ctx context.Context, serverID string, row map[string]any) {
	alert := wire.NewPacket("bot", "new_resource", serverID, nil, map[string]any{"resource": row})
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := g.client.Publish(pubCtx, wire.ChannelBotEgress, alert); err != nil {
		g.logger.Warn("new resource alert not delivered",
			"server_id", serverID,
			"error", err,
		)
	}
}
