package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/phantomwg/wsbridge/internal/bridgeerr"
	storecrypto "github.com/phantomwg/wsbridge/internal/config/store/crypto"
	"github.com/phantomwg/wsbridge/internal/constants"
)

const (
	defaultBusyTimeout        = 5 * time.Second
	defaultConnectionLifetime = 0 // unlimited
)

// Options describes parameters for opening a state store.
type Options struct {
	DBPath   string             // Path of the SQLite database file (created if absent)
	Mode     Mode               // Mode seeded into the status row on first open (defaults to client)
	ReadOnly bool               // Open database in read-only mode; no migrations or seeding
	Logger   logrus.FieldLogger // Optional; defaults to a discarding logger
	Clock    func() time.Time   // Optional; defaults to time.Now
}

// Store provides access to the state database.
type Store struct {
	db       *sql.DB
	readOnly bool
	secrets  *storecrypto.Box // nil when read-only without a key file
	log      logrus.FieldLogger
	now      func() time.Time
}

// NotFoundError indicates a requested record does not exist.
type NotFoundError struct {
	Entity string
	Key    string
}

func (e NotFoundError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s not found", e.Entity)
	}
	return fmt.Sprintf("%s %s not found", e.Entity, e.Key)
}

// IsNotFound returns true when err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var target NotFoundError
	return errors.As(err, &target)
}

// Open opens or creates the state database at opts.DBPath, migrates it to the
// current schema version and seeds the singleton rows without overwriting
// existing values. All failures are reported as bridgeerr.DbOpen.
func Open(opts Options) (*Store, error) {
	if opts.DBPath == "" {
		return nil, bridgeerr.New(bridgeerr.DbOpen, "database path is empty")
	}
	if opts.Mode == "" {
		opts.Mode = ModeClient
	}
	if !opts.Mode.Valid() {
		return nil, bridgeerr.New(bridgeerr.InvalidParam, "unknown mode %q", opts.Mode)
	}
	logger := opts.Logger
	if logger == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		logger = discard
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}

	dsn := opts.DBPath
	if opts.ReadOnly {
		dsn = fmt.Sprintf("file:%s?mode=ro", opts.DBPath)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, bridgeerr.Wrap(bridgeerr.DbOpen, err, "open sqlite store %s", opts.DBPath)
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(defaultConnectionLifetime)
	db.SetConnMaxIdleTime(defaultConnectionLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), constants.StoreOpenTimeout)
	defer cancel()

	fail := func(err error) (*Store, error) {
		db.Close()
		return nil, bridgeerr.Wrap(bridgeerr.DbOpen, err, "%s", opts.DBPath)
	}

	if err := db.PingContext(ctx); err != nil {
		return fail(fmt.Errorf("store: ping: %w", err))
	}

	if err := applyPragmas(ctx, db, opts.ReadOnly); err != nil {
		return fail(err)
	}

	if !opts.ReadOnly {
		if err := applyMigrations(ctx, db); err != nil {
			return fail(err)
		}
		if err := seedDefaults(ctx, db, opts.Mode, now()); err != nil {
			return fail(err)
		}
	}

	secrets, err := storecrypto.Unlock(ctx, db, opts.DBPath, opts.ReadOnly, logger)
	if err != nil {
		return fail(err)
	}

	return &Store{
		db:       db,
		readOnly: opts.ReadOnly,
		secrets:  secrets,
		log:      logger,
		now:      now,
	}, nil
}

// Close finalises the underlying database connection. Operations on a closed
// store fail with bridgeerr.NotInitialized.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// DB exposes the underlying sql.DB handle for internal usage.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) conn() (*sql.DB, error) {
	if s == nil || s.db == nil {
		return nil, bridgeerr.New(bridgeerr.NotInitialized, "store is closed")
	}
	return s.db, nil
}

func (s *Store) writable() (*sql.DB, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	if s.readOnly {
		return nil, bridgeerr.New(bridgeerr.DbWrite, "store opened read-only")
	}
	return db, nil
}

func (s *Store) timestamp() int64 {
	return s.now().Unix()
}

func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	db, err := s.writable()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return bridgeerr.Wrap(bridgeerr.DbWrite, err, "begin transaction")
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return bridgeerr.Wrap(bridgeerr.DbWrite, rbErr, "rollback failed after %v", err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return bridgeerr.Wrap(bridgeerr.DbWrite, err, "commit transaction")
	}
	return nil
}
