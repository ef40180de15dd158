package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/phantomwg/wsbridge/internal/bridgeerr"
	storecrypto "github.com/phantomwg/wsbridge/internal/config/store/crypto"
)

// Fields is a partial update keyed by column name.
type Fields map[string]any

// Client config columns accepted by SetClientConfig.
const (
	ClientRemoteURL                 = "remote_url"
	ClientHTTPUpgradePathPrefix     = "http_upgrade_path_prefix"
	ClientHTTPUpgradeCredentials    = "http_upgrade_credentials"
	ClientTLSVerify                 = "tls_verify"
	ClientTLSSNIOverride            = "tls_sni_override"
	ClientTLSSNIDisable             = "tls_sni_disable"
	ClientWebsocketPingFrequency    = "websocket_ping_frequency"
	ClientWebsocketMaskFrame        = "websocket_mask_frame"
	ClientConnectionMinIdle         = "connection_min_idle"
	ClientConnectionRetryMaxBackoff = "connection_retry_max_backoff"
	ClientHTTPProxy                 = "http_proxy"
	ClientWorkerThreads             = "worker_threads"
)

// Server config columns accepted by SetServerConfig.
const (
	ServerBindURL                = "bind_url"
	ServerTLSCertificate         = "tls_certificate"
	ServerTLSPrivateKey          = "tls_private_key"
	ServerTLSClientCACerts       = "tls_client_ca_certs"
	ServerWebsocketPingFrequency = "websocket_ping_frequency"
	ServerWebsocketMaskFrame     = "websocket_mask_frame"
	ServerWorkerThreads          = "worker_threads"
)

type fieldKind int

const (
	kindString fieldKind = iota
	kindNonEmptyString
	kindInt
	kindPositiveInt
	kindBool
)

func (k fieldKind) String() string {
	switch k {
	case kindString:
		return "string"
	case kindNonEmptyString:
		return "non-empty string"
	case kindInt:
		return "non-negative integer"
	case kindPositiveInt:
		return "positive integer"
	case kindBool:
		return "boolean"
	}
	return "unknown"
}

type fieldSpec struct {
	kind   fieldKind
	secret bool
}

type tableSpec struct {
	name    string
	columns map[string]fieldSpec
}

var clientTable = tableSpec{
	name: "client_config",
	columns: map[string]fieldSpec{
		ClientRemoteURL:                 {kind: kindString},
		ClientHTTPUpgradePathPrefix:     {kind: kindNonEmptyString},
		ClientHTTPUpgradeCredentials:    {kind: kindString, secret: true},
		ClientTLSVerify:                 {kind: kindBool},
		ClientTLSSNIOverride:            {kind: kindString},
		ClientTLSSNIDisable:             {kind: kindBool},
		ClientWebsocketPingFrequency:    {kind: kindInt},
		ClientWebsocketMaskFrame:        {kind: kindBool},
		ClientConnectionMinIdle:         {kind: kindInt},
		ClientConnectionRetryMaxBackoff: {kind: kindInt},
		ClientHTTPProxy:                 {kind: kindString},
		ClientWorkerThreads:             {kind: kindPositiveInt},
	},
}

var serverTable = tableSpec{
	name: "server_config",
	columns: map[string]fieldSpec{
		ServerBindURL:                {kind: kindString},
		ServerTLSCertificate:         {kind: kindString},
		ServerTLSPrivateKey:          {kind: kindString},
		ServerTLSClientCACerts:       {kind: kindString},
		ServerWebsocketPingFrequency: {kind: kindInt},
		ServerWebsocketMaskFrame:     {kind: kindBool},
		ServerWorkerThreads:          {kind: kindPositiveInt},
	},
}

// ClientFieldNames returns the sorted column names SetClientConfig accepts.
func ClientFieldNames() []string { return clientTable.fieldNames() }

// ServerFieldNames returns the sorted column names SetServerConfig accepts.
func ServerFieldNames() []string { return serverTable.fieldNames() }

// ParseClientField converts a textual value (CLI, env) into the typed value
// expected for the named client column.
func ParseClientField(name, raw string) (any, error) { return clientTable.parse(name, raw) }

// ParseServerField converts a textual value into the typed value expected
// for the named server column.
func ParseServerField(name, raw string) (any, error) { return serverTable.parse(name, raw) }

func (t tableSpec) fieldNames() []string {
	names := make([]string, 0, len(t.columns))
	for name := range t.columns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (t tableSpec) parse(name, raw string) (any, error) {
	spec, ok := t.columns[name]
	if !ok {
		return nil, bridgeerr.New(bridgeerr.InvalidParam, "unknown %s field %q", t.name, name)
	}
	switch spec.kind {
	case kindString, kindNonEmptyString:
		return raw, nil
	case kindBool:
		v, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return nil, bridgeerr.New(bridgeerr.InvalidParam, "%s.%s: %q is not a boolean", t.name, name, raw)
		}
		return v, nil
	default:
		v, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return nil, bridgeerr.New(bridgeerr.InvalidParam, "%s.%s: %q is not an integer", t.name, name, raw)
		}
		return v, nil
	}
}

// validate checks every name and value before anything is written, so a bad
// entry anywhere in fields rejects the whole update. It returns the column
// names in a stable order and the SQL arguments matching them.
func (t tableSpec) validate(fields Fields) ([]string, []any, error) {
	var unknown []string
	for name := range fields {
		if _, ok := t.columns[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, nil, bridgeerr.New(bridgeerr.InvalidParam, "unknown %s field(s): %s", t.name, strings.Join(unknown, ", "))
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	args := make([]any, 0, len(names))
	for _, name := range names {
		spec := t.columns[name]
		v, err := coerce(spec.kind, fields[name])
		if err != nil {
			return nil, nil, bridgeerr.New(bridgeerr.InvalidParam, "%s.%s: %v", t.name, name, err)
		}
		args = append(args, v)
	}
	return names, args, nil
}

func coerce(kind fieldKind, value any) (any, error) {
	switch kind {
	case kindString, kindNonEmptyString:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("expected %s, got %T", kind, value)
		}
		if kind == kindNonEmptyString && strings.TrimSpace(s) == "" {
			return nil, fmt.Errorf("expected %s", kind)
		}
		return s, nil
	case kindBool:
		b, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("expected %s, got %T", kind, value)
		}
		if b {
			return 1, nil
		}
		return 0, nil
	case kindInt, kindPositiveInt:
		n, ok := toInt64(value)
		if !ok {
			return nil, fmt.Errorf("expected %s, got %T", kind, value)
		}
		if n < 0 || (kind == kindPositiveInt && n == 0) {
			return nil, fmt.Errorf("expected %s, got %d", kind, n)
		}
		return n, nil
	}
	return nil, fmt.Errorf("unsupported field kind %d", kind)
}

func toInt64(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint:
		if uint64(v) > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case uint64:
		if v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case float64:
		// encoding/json decodes every number as float64.
		if v != math.Trunc(v) || v > math.MaxInt64 || v < math.MinInt64 {
			return 0, false
		}
		return int64(v), true
	}
	return 0, false
}

// partialUpdate writes exactly the named columns plus updated_at. An empty
// update is a no-op that does not touch updated_at.
func (s *Store) partialUpdate(ctx context.Context, table tableSpec, fields Fields) error {
	if _, err := s.writable(); err != nil {
		return err
	}
	upd, err := s.prepareUpdate(table, fields)
	if err != nil || upd == nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return upd.exec(ctx, tx)
	})
}

// rowUpdate is a validated singleton-row UPDATE ready to run.
type rowUpdate struct {
	table string
	query string
	args  []any
}

// prepareUpdate validates fields, seals secret columns and builds the
// statement. It returns nil for an empty update.
func (s *Store) prepareUpdate(table tableSpec, fields Fields) (*rowUpdate, error) {
	names, args, err := table.validate(fields)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, nil
	}

	for i, name := range names {
		if !table.columns[name].secret {
			continue
		}
		plain := args[i].(string)
		if plain == "" || s.secrets == nil {
			continue
		}
		enc, err := s.secrets.Seal(plain)
		if err != nil {
			return nil, bridgeerr.Wrap(bridgeerr.DbWrite, err, "encrypt %s.%s", table.name, name)
		}
		args[i] = enc
	}

	sets := make([]string, 0, len(names)+1)
	for _, name := range names {
		sets = append(sets, name+" = ?")
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, s.timestamp())

	return &rowUpdate{
		table: table.name,
		query: fmt.Sprintf("UPDATE %s SET %s WHERE id = 1", table.name, strings.Join(sets, ", ")),
		args:  args,
	}, nil
}

func (u *rowUpdate) exec(ctx context.Context, ex execer) error {
	res, err := ex.ExecContext(ctx, u.query, u.args...)
	if err != nil {
		return bridgeerr.Wrap(bridgeerr.DbWrite, err, "update %s", u.table)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return bridgeerr.Wrap(bridgeerr.DbWrite, NotFoundError{Entity: u.table}, "update %s", u.table)
	}
	return nil
}

func (s *Store) revealSecret(stored string) (string, error) {
	if !storecrypto.Sealed(stored) {
		return stored, nil
	}
	if s.secrets == nil {
		return "", fmt.Errorf("encryption key unavailable")
	}
	return s.secrets.Open(stored)
}
