package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/phantomwg/wsbridge/internal/bridgeerr"
)

// GetStatus reads the singleton status row. A store whose status row is
// missing reports a wrapped NotFoundError.
func (s *Store) GetStatus(ctx context.Context) (Status, error) {
	db, err := s.conn()
	if err != nil {
		return Status{}, err
	}

	var (
		status    Status
		state     string
		mode      string
		updatedAt int64
	)
	err = db.QueryRowContext(ctx, `SELECT state, mode, updated_at FROM status WHERE id = 1`).
		Scan(&state, &mode, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Status{}, bridgeerr.Wrap(bridgeerr.DbQuery, NotFoundError{Entity: "status"}, "get status")
	}
	if err != nil {
		return Status{}, bridgeerr.Wrap(bridgeerr.DbQuery, err, "get status")
	}

	status.State = State(state)
	status.Mode = Mode(mode)
	status.UpdatedAt = time.Unix(updatedAt, 0)
	return status, nil
}

// SetState records a lifecycle transition.
func (s *Store) SetState(ctx context.Context, state State) error {
	if !state.Valid() {
		return bridgeerr.New(bridgeerr.InvalidParam, "unknown state %q", state)
	}
	db, err := s.writable()
	if err != nil {
		return err
	}
	return s.updateStatus(ctx, db, "state", string(state))
}

// SetMode switches the configured role. Takes effect on the next start.
func (s *Store) SetMode(ctx context.Context, mode Mode) error {
	if !mode.Valid() {
		return bridgeerr.New(bridgeerr.InvalidParam, "unknown mode %q", mode)
	}
	db, err := s.writable()
	if err != nil {
		return err
	}
	return s.updateStatus(ctx, db, "mode", string(mode))
}

func (s *Store) updateStatus(ctx context.Context, ex execer, column, value string) error {
	// column is one of the two literals passed by SetState/SetMode/Import.
	res, err := ex.ExecContext(ctx, `UPDATE status SET `+column+` = ?, updated_at = ? WHERE id = 1`, value, s.timestamp())
	if err != nil {
		return bridgeerr.Wrap(bridgeerr.DbWrite, err, "set status %s", column)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return bridgeerr.Wrap(bridgeerr.DbWrite, NotFoundError{Entity: "status"}, "set status %s", column)
	}
	return nil
}
