package store

import (
	"context"
	"database/sql"

	"github.com/phantomwg/wsbridge/internal/bridgeerr"
)

// ImportSet is a whole-configuration update. Empty Mode and nil maps leave
// the stored values alone. A nil collection is left alone; a non-nil one,
// even empty, replaces every stored row.
type ImportSet struct {
	Mode         Mode
	Client       Fields
	Server       Fields
	Tunnels      []TunnelRule
	Restrictions []RestrictionRule
	Headers      []Header // only Name and Value are read
}

// Import validates everything in set and then writes it in one transaction,
// so either all of it lands or none of it does.
func (s *Store) Import(ctx context.Context, set ImportSet) error {
	if _, err := s.writable(); err != nil {
		return err
	}
	if set.Mode != "" && !set.Mode.Valid() {
		return bridgeerr.New(bridgeerr.InvalidParam, "unknown mode %q", set.Mode)
	}
	clientUpd, err := s.prepareUpdate(clientTable, set.Client)
	if err != nil {
		return err
	}
	serverUpd, err := s.prepareUpdate(serverTable, set.Server)
	if err != nil {
		return err
	}

	tunnels := make([]tunnelRow, 0, len(set.Tunnels))
	for i, rule := range set.Tunnels {
		row, err := flattenTunnel(rule)
		if err != nil {
			return bridgeerr.Wrap(bridgeerr.InvalidParam, err, "tunnels[%d]", i)
		}
		tunnels = append(tunnels, row)
	}
	for i, rule := range set.Restrictions {
		if err := checkRestriction(rule); err != nil {
			return bridgeerr.Wrap(bridgeerr.InvalidParam, err, "restrictions[%d]", i)
		}
	}
	headers := make([]Header, 0, len(set.Headers))
	for i, h := range set.Headers {
		name, err := checkHeader(h.Name, h.Value)
		if err != nil {
			return bridgeerr.Wrap(bridgeerr.InvalidParam, err, "headers[%d]", i)
		}
		headers = append(headers, Header{Name: name, Value: h.Value})
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if set.Mode != "" {
			if err := s.updateStatus(ctx, tx, "mode", string(set.Mode)); err != nil {
				return err
			}
		}
		for _, upd := range []*rowUpdate{clientUpd, serverUpd} {
			if upd == nil {
				continue
			}
			if err := upd.exec(ctx, tx); err != nil {
				return err
			}
		}
		if set.Tunnels != nil {
			if err := clearRows(ctx, tx, "tunnels"); err != nil {
				return err
			}
			for _, row := range tunnels {
				if _, err := s.insertTunnel(ctx, tx, row); err != nil {
					return err
				}
			}
		}
		if set.Restrictions != nil {
			if err := clearRows(ctx, tx, "server_restrictions"); err != nil {
				return err
			}
			for _, rule := range set.Restrictions {
				if _, err := s.insertRestriction(ctx, tx, rule); err != nil {
					return err
				}
			}
		}
		if set.Headers != nil {
			if err := clearRows(ctx, tx, "http_headers"); err != nil {
				return err
			}
			for _, h := range headers {
				if _, err := s.insertHeader(ctx, tx, h.Name, h.Value); err != nil {
					return err
				}
			}
		}
		return nil
	})
}
