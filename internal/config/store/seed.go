package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// seedDefaults inserts the status, client_config and server_config singleton
// rows when absent. Existing rows are never modified.
func seedDefaults(ctx context.Context, db *sql.DB, mode Mode, now time.Time) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin seed transaction: %w", err)
	}

	ts := now.Unix()
	seeds := []struct {
		name string
		stmt string
		args []any
	}{
		{"status", `INSERT INTO status (id, state, mode, updated_at) VALUES (1, ?, ?, ?) ON CONFLICT(id) DO NOTHING`, []any{string(StateInitialized), string(mode), ts}},
		{"client config", `INSERT INTO client_config (id, updated_at) VALUES (1, ?) ON CONFLICT(id) DO NOTHING`, []any{ts}},
		{"server config", `INSERT INTO server_config (id, updated_at) VALUES (1, ?) ON CONFLICT(id) DO NOTHING`, []any{ts}},
	}

	for _, seed := range seeds {
		if _, err := tx.ExecContext(ctx, seed.stmt, seed.args...); err != nil {
			tx.Rollback()
			return fmt.Errorf("store: seed %s: %w", seed.name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit seed transaction: %w", err)
	}
	return nil
}
