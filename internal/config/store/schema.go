package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// SchemaVersion is the schema version written to PRAGMA user_version once
// every migration has been applied.
const SchemaVersion = 1

type migration struct {
	version    int
	statements []string
}

// migrations are applied in order; each runs in its own transaction together
// with the user_version bump, so a crash never leaves a half-applied step.
var migrations = []migration{
	{
		version: 1,
		statements: []string{
			`CREATE TABLE IF NOT EXISTS status (
				id INTEGER PRIMARY KEY CHECK (id = 1),
				state TEXT NOT NULL DEFAULT 'initialized' CHECK (state IN ('initialized', 'started', 'stopped', 'closed')),
				mode TEXT NOT NULL DEFAULT 'client' CHECK (mode IN ('client', 'server')),
				updated_at INTEGER NOT NULL DEFAULT 0
			)`,
			`CREATE TABLE IF NOT EXISTS client_config (
				id INTEGER PRIMARY KEY CHECK (id = 1),
				remote_url TEXT NOT NULL DEFAULT '',
				http_upgrade_path_prefix TEXT NOT NULL DEFAULT 'v1',
				http_upgrade_credentials TEXT NOT NULL DEFAULT '',
				tls_verify INTEGER NOT NULL DEFAULT 0,
				tls_sni_override TEXT NOT NULL DEFAULT '',
				tls_sni_disable INTEGER NOT NULL DEFAULT 0,
				websocket_ping_frequency INTEGER NOT NULL DEFAULT 30,
				websocket_mask_frame INTEGER NOT NULL DEFAULT 0,
				connection_min_idle INTEGER NOT NULL DEFAULT 0,
				connection_retry_max_backoff INTEGER NOT NULL DEFAULT 300,
				http_proxy TEXT NOT NULL DEFAULT '',
				worker_threads INTEGER NOT NULL DEFAULT 2,
				updated_at INTEGER NOT NULL DEFAULT 0
			)`,
			`CREATE TABLE IF NOT EXISTS server_config (
				id INTEGER PRIMARY KEY CHECK (id = 1),
				bind_url TEXT NOT NULL DEFAULT '',
				tls_certificate TEXT NOT NULL DEFAULT '',
				tls_private_key TEXT NOT NULL DEFAULT '',
				tls_client_ca_certs TEXT NOT NULL DEFAULT '',
				websocket_ping_frequency INTEGER NOT NULL DEFAULT 30,
				websocket_mask_frame INTEGER NOT NULL DEFAULT 0,
				worker_threads INTEGER NOT NULL DEFAULT 2,
				updated_at INTEGER NOT NULL DEFAULT 0
			)`,
			`CREATE TABLE IF NOT EXISTS tunnels (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				tunnel_type TEXT NOT NULL CHECK (tunnel_type IN ('udp', 'tcp', 'socks5')),
				local_host TEXT NOT NULL DEFAULT '127.0.0.1',
				local_port INTEGER NOT NULL,
				remote_host TEXT NOT NULL DEFAULT '',
				remote_port INTEGER NOT NULL DEFAULT 0,
				timeout_secs INTEGER NOT NULL DEFAULT 0,
				created_at INTEGER NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS server_restrictions (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				restriction_type TEXT NOT NULL CHECK (restriction_type IN ('target', 'path_prefix')),
				value TEXT NOT NULL,
				created_at INTEGER NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS http_headers (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				name TEXT NOT NULL,
				value TEXT NOT NULL,
				created_at INTEGER NOT NULL
			)`,
		},
	},
}

func applyPragmas(ctx context.Context, db *sql.DB, readOnly bool) error {
	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", int(defaultBusyTimeout.Milliseconds())),
		"PRAGMA foreign_keys = ON",
	}

	if !readOnly {
		pragmas = append(pragmas,
			"PRAGMA journal_mode = WAL",
			"PRAGMA synchronous = NORMAL",
			"PRAGMA temp_store = MEMORY",
		)
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("store: apply pragma %q: %w", pragma, err)
		}
	}

	return nil
}

func schemaVersion(ctx context.Context, q interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}) (int, error) {
	var version int
	if err := q.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("store: read schema version: %w", err)
	}
	return version, nil
}

// applyMigrations brings the database up to SchemaVersion. Migrations at or
// below the stored user_version are skipped, so reopening never touches
// existing data.
func applyMigrations(ctx context.Context, db *sql.DB) error {
	current, err := schemaVersion(ctx, db)
	if err != nil {
		return err
	}
	if current > SchemaVersion {
		return fmt.Errorf("store: database schema version %d is newer than supported version %d", current, SchemaVersion)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := applyMigration(ctx, db, m); err != nil {
			return err
		}
		current = m.version
	}
	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, m migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin migration %d: %w", m.version, err)
	}

	for _, stmt := range m.statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("store: migration %d statement %q: %w", m.version, abbreviate(stmt), err)
		}
	}

	// PRAGMA does not accept bound parameters.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", m.version)); err != nil {
		tx.Rollback()
		return fmt.Errorf("store: set schema version %d: %w", m.version, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit migration %d: %w", m.version, err)
	}
	return nil
}

func abbreviate(stmt string) string {
	const maxLen = 64
	trimmed := strings.Join(strings.Fields(stmt), " ")
	if len(trimmed) <= maxLen {
		return trimmed
	}
	return trimmed[:maxLen] + "…"
}
