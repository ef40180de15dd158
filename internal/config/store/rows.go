package store

import (
	"context"
	"database/sql"
	"strconv"

	"github.com/phantomwg/wsbridge/internal/bridgeerr"
)

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type rowScanner interface {
	Scan(dest ...any) error
}

// queryRows runs a read query and scans every row with scan. Any failure,
// including one surfaced only by rows.Err, is DbQuery tagged with what.
func queryRows[T any](ctx context.Context, s *Store, what string, scan func(rowScanner) (T, error), query string, args ...any) ([]T, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, bridgeerr.Wrap(bridgeerr.DbQuery, err, "%s", what)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, bridgeerr.Wrap(bridgeerr.DbQuery, err, "%s: row %d", what, len(out)+1)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, bridgeerr.Wrap(bridgeerr.DbQuery, err, "%s", what)
	}
	return out, nil
}

// deleteByID removes one row. An unknown id is InvalidParam wrapping a
// NotFoundError. Table names come from package literals only.
func (s *Store) deleteByID(ctx context.Context, table, entity string, id int64) error {
	db, err := s.writable()
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, id)
	if err != nil {
		return bridgeerr.Wrap(bridgeerr.DbWrite, err, "delete %s %d", entity, id)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &bridgeerr.Error{Kind: bridgeerr.InvalidParam, Cause: NotFoundError{Entity: entity, Key: strconv.FormatInt(id, 10)}}
	}
	return nil
}

func (s *Store) clearTable(ctx context.Context, table string) error {
	db, err := s.writable()
	if err != nil {
		return err
	}
	return clearRows(ctx, db, table)
}

func clearRows(ctx context.Context, ex execer, table string) error {
	if _, err := ex.ExecContext(ctx, `DELETE FROM `+table); err != nil {
		return bridgeerr.Wrap(bridgeerr.DbWrite, err, "clear %s", table)
	}
	return nil
}
