package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/phantomwg/wsbridge/internal/bridgeerr"
	"github.com/phantomwg/wsbridge/internal/validate"
)

// RestrictionKind is the stored restriction_type tag.
type RestrictionKind string

const (
	RestrictTarget     RestrictionKind = "target"
	RestrictPathPrefix RestrictionKind = "path_prefix"
)

// RestrictionRule limits what a server session accepts. Implementations:
// TargetRestriction and PathPrefixRestriction.
type RestrictionRule interface {
	Kind() RestrictionKind
	Value() string
	Accept(v RestrictionVisitor) error
	restrictionRule()
}

// RestrictionVisitor handles every restriction variant.
type RestrictionVisitor interface {
	VisitTarget(TargetRestriction) error
	VisitPathPrefix(PathPrefixRestriction) error
}

// TargetRestriction allows forwarding only to Target (host:port).
type TargetRestriction struct {
	Target string
}

// PathPrefixRestriction accepts only upgrade requests under Prefix.
type PathPrefixRestriction struct {
	Prefix string
}

func (TargetRestriction) Kind() RestrictionKind     { return RestrictTarget }
func (PathPrefixRestriction) Kind() RestrictionKind { return RestrictPathPrefix }

func (r TargetRestriction) Value() string     { return r.Target }
func (r PathPrefixRestriction) Value() string { return r.Prefix }

func (r TargetRestriction) Accept(v RestrictionVisitor) error     { return v.VisitTarget(r) }
func (r PathPrefixRestriction) Accept(v RestrictionVisitor) error { return v.VisitPathPrefix(r) }

func (TargetRestriction) restrictionRule()     {}
func (PathPrefixRestriction) restrictionRule() {}

// Restriction is a stored server restriction.
type Restriction struct {
	ID        int64
	Rule      RestrictionRule
	CreatedAt time.Time
}

// NewRestriction builds a rule from its stored tag.
func NewRestriction(kind RestrictionKind, value string) (RestrictionRule, error) {
	switch kind {
	case RestrictTarget:
		return TargetRestriction{Target: value}, nil
	case RestrictPathPrefix:
		return PathPrefixRestriction{Prefix: value}, nil
	}
	return nil, fmt.Errorf("unknown restriction type %q", kind)
}

// AddRestriction appends a server restriction and returns its id.
func (s *Store) AddRestriction(ctx context.Context, rule RestrictionRule) (int64, error) {
	if err := checkRestriction(rule); err != nil {
		return 0, err
	}
	db, err := s.writable()
	if err != nil {
		return 0, err
	}
	return s.insertRestriction(ctx, db, rule)
}

func checkRestriction(rule RestrictionRule) error {
	if rule == nil {
		return bridgeerr.New(bridgeerr.InvalidParam, "restriction rule is nil")
	}
	if strings.TrimSpace(rule.Value()) == "" {
		return bridgeerr.New(bridgeerr.InvalidParam, "%s restriction requires a value", rule.Kind())
	}
	if t, ok := rule.(TargetRestriction); ok {
		if err := validate.HostPort(t.Target); err != nil {
			return bridgeerr.Wrap(bridgeerr.InvalidParam, err, "target restriction")
		}
	}
	return nil
}

func (s *Store) insertRestriction(ctx context.Context, ex execer, rule RestrictionRule) (int64, error) {
	res, err := ex.ExecContext(ctx, `
		INSERT INTO server_restrictions (restriction_type, value, created_at) VALUES (?, ?, ?)
	`, string(rule.Kind()), rule.Value(), s.timestamp())
	if err != nil {
		return 0, bridgeerr.Wrap(bridgeerr.DbWrite, err, "add restriction")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, bridgeerr.Wrap(bridgeerr.DbWrite, err, "add restriction id")
	}
	return id, nil
}

// ListRestrictions returns every restriction in insertion order.
func (s *Store) ListRestrictions(ctx context.Context) ([]Restriction, error) {
	return queryRows(ctx, s, "list restrictions", scanRestriction, `
		SELECT id, restriction_type, value, created_at FROM server_restrictions ORDER BY id
	`)
}

// DeleteRestriction removes one restriction. An unknown id is InvalidParam.
func (s *Store) DeleteRestriction(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, "server_restrictions", "restriction", id)
}

// ClearRestrictions removes every restriction.
func (s *Store) ClearRestrictions(ctx context.Context) error {
	return s.clearTable(ctx, "server_restrictions")
}

// CountRestrictions returns the number of stored restrictions.
func (s *Store) CountRestrictions(ctx context.Context) (int, error) {
	return s.count(ctx, "server_restrictions")
}

func scanRestriction(scanner rowScanner) (Restriction, error) {
	var (
		r         Restriction
		kind      string
		value     string
		createdAt int64
	)
	if err := scanner.Scan(&r.ID, &kind, &value, &createdAt); err != nil {
		return Restriction{}, err
	}
	rule, err := NewRestriction(RestrictionKind(kind), value)
	if err != nil {
		return Restriction{}, fmt.Errorf("restriction %d: %w", r.ID, err)
	}
	r.Rule = rule
	r.CreatedAt = time.Unix(createdAt, 0)
	return r, nil
}
