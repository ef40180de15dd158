package store

import (
	"context"
	"strings"
	"time"

	"github.com/phantomwg/wsbridge/internal/bridgeerr"
	"github.com/phantomwg/wsbridge/internal/validate"
)

// AddHeader appends an HTTP header sent with the client's upgrade request.
// Duplicate names are kept; order is preserved.
func (s *Store) AddHeader(ctx context.Context, name, value string) (int64, error) {
	name, err := checkHeader(name, value)
	if err != nil {
		return 0, err
	}
	db, err := s.writable()
	if err != nil {
		return 0, err
	}
	return s.insertHeader(ctx, db, name, value)
}

// checkHeader returns the trimmed name or InvalidParam.
func checkHeader(name, value string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", bridgeerr.New(bridgeerr.InvalidParam, "header name is empty")
	}
	if !validate.HeaderName(name) || strings.ContainsAny(value, "\r\n") {
		return "", bridgeerr.New(bridgeerr.InvalidParam, "header %q contains forbidden characters", name)
	}
	return name, nil
}

func (s *Store) insertHeader(ctx context.Context, ex execer, name, value string) (int64, error) {
	res, err := ex.ExecContext(ctx, `
		INSERT INTO http_headers (name, value, created_at) VALUES (?, ?, ?)
	`, name, value, s.timestamp())
	if err != nil {
		return 0, bridgeerr.Wrap(bridgeerr.DbWrite, err, "add header")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, bridgeerr.Wrap(bridgeerr.DbWrite, err, "add header id")
	}
	return id, nil
}

// ListHeaders returns every header in insertion order.
func (s *Store) ListHeaders(ctx context.Context) ([]Header, error) {
	return queryRows(ctx, s, "list headers", scanHeader, `SELECT id, name, value, created_at FROM http_headers ORDER BY id`)
}

// DeleteHeader removes one header. An unknown id is InvalidParam.
func (s *Store) DeleteHeader(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, "http_headers", "header", id)
}

// ClearHeaders removes every header.
func (s *Store) ClearHeaders(ctx context.Context) error {
	return s.clearTable(ctx, "http_headers")
}

// CountHeaders returns the number of stored headers.
func (s *Store) CountHeaders(ctx context.Context) (int, error) {
	return s.count(ctx, "http_headers")
}

func scanHeader(scanner rowScanner) (Header, error) {
	var (
		h         Header
		createdAt int64
	)
	if err := scanner.Scan(&h.ID, &h.Name, &h.Value, &createdAt); err != nil {
		return Header{}, err
	}
	h.CreatedAt = time.Unix(createdAt, 0)
	return h, nil
}
