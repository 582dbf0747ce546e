// Copyright 2026 The ResourceTracker Authors
// SPDX-License-Identifier: Apache-2.0

package gatekeeper

import "github.com/gladiatordan/ResourceTracker/lib/taxonomy"

const insertResourceSQL = `
INSERT INTO resource_spawns (
    server_id, type_id, type_label, name, planet, notes, reported_by,
    res_oq, res_oq_rating, res_cd, res_cd_rating, res_dr, res_dr_rating,
    res_fl, res_fl_rating, res_hr, res_hr_rating, res_ma, res_ma_rating,
    res_pe, res_pe_rating, res_sr, res_sr_rating, res_ut, res_ut_rating,
    res_cr, res_cr_rating, res_weight_rating
) VALUES (?, ?, ?, ?, ?, ?, ?,
    ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING *`

const updateResourceSQL = `
UPDATE resource_spawns SET
    planet = ?, notes = ?,
    res_oq = ?, res_oq_rating = ?, res_cd = ?, res_cd_rating = ?,
    res_dr = ?, res_dr_rating = ?, res_fl = ?, res_fl_rating = ?,
    res_hr = ?, res_hr_rating = ?, res_ma = ?, res_ma_rating = ?,
    res_pe = ?, res_pe_rating = ?, res_sr = ?, res_sr_rating = ?,
    res_ut = ?, res_ut_rating = ?, res_cr = ?, res_cr_rating = ?,
    res_weight_rating = ?, last_modified = unixepoch()
WHERE id = ? AND server_id = ?
RETURNING *`

// archivedColumns is shared by the retire statements so the archive
// row is a faithful copy of the live one.
const archivedColumns = `id, server_id, type_id, type_label, name, planet, notes, reported_by,
    res_oq, res_oq_rating, res_cd, res_cd_rating, res_dr, res_dr_rating,
    res_fl, res_fl_rating, res_hr, res_hr_rating, res_ma, res_ma_rating,
    res_pe, res_pe_rating, res_sr, res_sr_rating, res_ut, res_ut_rating,
    res_cr, res_cr_rating, res_weight_rating, created_at, last_modified`

const archiveByIDSQL = `
INSERT INTO retired_resources (` + archivedColumns + `, is_active)
SELECT ` + archivedColumns + `, 0 FROM resource_spawns
WHERE server_id = ? AND id = ?`

const deleteByIDSQL = `
DELETE FROM resource_spawns WHERE server_id = ? AND id = ?`

const archiveByNameSQL = `
INSERT INTO retired_resources (` + archivedColumns + `, is_active)
SELECT ` + archivedColumns + `, 0 FROM resource_spawns
WHERE server_id = ? AND lower(name) = lower(?)`

const deleteByNameSQL = `
DELETE FROM resource_spawns WHERE server_id = ? AND lower(name) = lower(?)`

const upsertGrantSQL = `
INSERT INTO server_permissions (user_id, server_id, role) VALUES (?, ?, ?)
ON CONFLICT (user_id, server_id) DO UPDATE SET role = excluded.role`

const upsertUserSQL = `
INSERT INTO users (user_id, username, avatar_url, last_login)
VALUES (?, ?, ?, unixepoch())
ON CONFLICT (user_id) DO UPDATE SET
    username = excluded.username,
    avatar_url = excluded.avatar_url,
    last_login = excluded.last_login
RETURNING global_role`

const defaultGrantSQL = `
INSERT OR IGNORE INTO server_permissions (user_id, server_id, role)
VALUES (?, ?, ?)`

const insertLogSQL = `
INSERT INTO command_log (server_id, user_id, username, action, payload)
VALUES (?, ?, ?, ?, ?)`

// statParams appends one value/rating parameter pair per stat code, in
// canonical column order. Absent and cleared stats store NULL.
func statParams(params []any, values map[string]int64, ratings taxonomy.Ratings) []any {
	for _, code := range taxonomy.StatCodes {
		if v, ok := values[code]; ok && v > 0 {
			params = append(params, v)
		} else {
			params = append(params, nil)
		}
		if r, ok := ratings.PerStat[code]; ok {
			params = append(params, r)
		} else {
			params = append(params, nil)
		}
	}
	return params
}
