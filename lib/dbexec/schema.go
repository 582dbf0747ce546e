// Copyright 2026 The ResourceTracker Authors
// SPDX-License-Identifier: Apache-2.0

package dbexec

// schema is the tracker's full relational schema, applied
// idempotently to every pooled connection.
//
// resource_spawns carries a storage-level UNIQUE(server_id, name):
// the gatekeeper's uniqueness pre-check is an optimization and a
// friendlier error, but the constraint is the guarantee under true
// concurrency.
const schema = `
CREATE TABLE IF NOT EXISTS game_servers (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    created_at INTEGER NOT NULL DEFAULT (unixepoch())
);

CREATE TABLE IF NOT EXISTS resource_taxonomy (
    id          INTEGER PRIMARY KEY,
    class_label TEXT NOT NULL,
    enum_name   TEXT NOT NULL,
    parent_id   INTEGER,
    planets     TEXT NOT NULL DEFAULT '[]',
    attr_1 TEXT, att_1_min INTEGER, att_1_max INTEGER,
    attr_2 TEXT, att_2_min INTEGER, att_2_max INTEGER,
    attr_3 TEXT, att_3_min INTEGER, att_3_max INTEGER,
    attr_4 TEXT, att_4_min INTEGER, att_4_max INTEGER,
    attr_5 TEXT, att_5_min INTEGER, att_5_max INTEGER,
    attr_6 TEXT, att_6_min INTEGER, att_6_max INTEGER,
    attr_7 TEXT, att_7_min INTEGER, att_7_max INTEGER,
    attr_8 TEXT, att_8_min INTEGER, att_8_max INTEGER,
    attr_9 TEXT, att_9_min INTEGER, att_9_max INTEGER,
    attr_10 TEXT, att_10_min INTEGER, att_10_max INTEGER,
    attr_11 TEXT, att_11_min INTEGER, att_11_max INTEGER
);

CREATE TABLE IF NOT EXISTS resource_spawns (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    server_id      TEXT NOT NULL REFERENCES game_servers(id),
    type_id        INTEGER NOT NULL REFERENCES resource_taxonomy(id),
    type_label     TEXT NOT NULL,
    name           TEXT NOT NULL,
    planet         TEXT,
    notes          TEXT NOT NULL DEFAULT '',
    reported_by    TEXT,
    is_active      INTEGER NOT NULL DEFAULT 1,
    res_oq INTEGER, res_oq_rating REAL,
    res_cd INTEGER, res_cd_rating REAL,
    res_dr INTEGER, res_dr_rating REAL,
    res_fl INTEGER, res_fl_rating REAL,
    res_hr INTEGER, res_hr_rating REAL,
    res_ma INTEGER, res_ma_rating REAL,
    res_pe INTEGER, res_pe_rating REAL,
    res_sr INTEGER, res_sr_rating REAL,
    res_ut INTEGER, res_ut_rating REAL,
    res_cr INTEGER, res_cr_rating REAL,
    res_weight_rating REAL NOT NULL DEFAULT 0,
    created_at     INTEGER NOT NULL DEFAULT (unixepoch()),
    last_modified  INTEGER NOT NULL DEFAULT (unixepoch()),
    UNIQUE (server_id, name)
);

CREATE TABLE IF NOT EXISTS retired_resources (
    id             INTEGER PRIMARY KEY,
    server_id      TEXT NOT NULL,
    type_id        INTEGER NOT NULL,
    type_label     TEXT NOT NULL,
    name           TEXT NOT NULL,
    planet         TEXT,
    notes          TEXT NOT NULL DEFAULT '',
    reported_by    TEXT,
    is_active      INTEGER NOT NULL DEFAULT 0,
    res_oq INTEGER, res_oq_rating REAL,
    res_cd INTEGER, res_cd_rating REAL,
    res_dr INTEGER, res_dr_rating REAL,
    res_fl INTEGER, res_fl_rating REAL,
    res_hr INTEGER, res_hr_rating REAL,
    res_ma INTEGER, res_ma_rating REAL,
    res_pe INTEGER, res_pe_rating REAL,
    res_sr INTEGER, res_sr_rating REAL,
    res_ut INTEGER, res_ut_rating REAL,
    res_cr INTEGER, res_cr_rating REAL,
    res_weight_rating REAL NOT NULL DEFAULT 0,
    created_at     INTEGER NOT NULL DEFAULT (unixepoch()),
    last_modified  INTEGER NOT NULL DEFAULT (unixepoch()),
    retired_at     INTEGER NOT NULL DEFAULT (unixepoch())
);

CREATE TABLE IF NOT EXISTS users (
    user_id     TEXT PRIMARY KEY,
    username    TEXT NOT NULL,
    avatar_url  TEXT,
    global_role TEXT NOT NULL DEFAULT 'USER',
    last_login  INTEGER NOT NULL DEFAULT (unixepoch())
);

CREATE TABLE IF NOT EXISTS server_permissions (
    user_id   TEXT NOT NULL,
    server_id TEXT NOT NULL,
    role      TEXT NOT NULL,
    PRIMARY KEY (user_id, server_id)
);

CREATE TABLE IF NOT EXISTS command_permissions (
    command        TEXT PRIMARY KEY,
    min_role_level INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS command_log (
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    server_id TEXT NOT NULL,
    user_id   TEXT,
    username  TEXT,
    action    TEXT NOT NULL,
    payload   TEXT NOT NULL DEFAULT '{}',
    logged_at INTEGER NOT NULL DEFAULT (unixepoch())
);

CREATE TABLE IF NOT EXISTS bot_subscriptions (
    guild_id   TEXT NOT NULL,
    channel_id TEXT NOT NULL,
    server_id  TEXT NOT NULL,
    PRIMARY KEY (channel_id, server_id)
);

CREATE INDEX IF NOT EXISTS idx_spawns_server_active
    ON resource_spawns (server_id, is_active);

CREATE INDEX IF NOT EXISTS idx_command_log_server
    ON command_log (server_id, logged_at);
`
