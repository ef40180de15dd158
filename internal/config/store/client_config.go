package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/phantomwg/wsbridge/internal/bridgeerr"
)

// GetClientConfig reads the client-mode configuration with credentials decrypted.
func (s *Store) GetClientConfig(ctx context.Context) (ClientConfig, error) {
	db, err := s.conn()
	if err != nil {
		return ClientConfig{}, err
	}

	var (
		cfg                   ClientConfig
		tlsVerify, sniDisable int
		maskFrame             int
		credentials           string
		updatedAt             int64
	)
	err = db.QueryRowContext(ctx, `
		SELECT remote_url, http_upgrade_path_prefix, http_upgrade_credentials,
		       tls_verify, tls_sni_override, tls_sni_disable,
		       websocket_ping_frequency, websocket_mask_frame,
		       connection_min_idle, connection_retry_max_backoff,
		       http_proxy, worker_threads, updated_at
		FROM client_config WHERE id = 1
	`).Scan(
		&cfg.RemoteURL, &cfg.HTTPUpgradePathPrefix, &credentials,
		&tlsVerify, &cfg.TLSSNIOverride, &sniDisable,
		&cfg.WebsocketPingFrequency, &maskFrame,
		&cfg.ConnectionMinIdle, &cfg.ConnectionRetryMaxBackoff,
		&cfg.HTTPProxy, &cfg.WorkerThreads, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return ClientConfig{}, bridgeerr.Wrap(bridgeerr.DbQuery, NotFoundError{Entity: "client config"}, "get client config")
	}
	if err != nil {
		return ClientConfig{}, bridgeerr.Wrap(bridgeerr.DbQuery, err, "get client config")
	}

	cfg.HTTPUpgradeCredentials, err = s.revealSecret(credentials)
	if err != nil {
		return ClientConfig{}, bridgeerr.Wrap(bridgeerr.DbQuery, err, "decrypt %s", ClientHTTPUpgradeCredentials)
	}
	cfg.TLSVerify = tlsVerify != 0
	cfg.TLSSNIDisable = sniDisable != 0
	cfg.WebsocketMaskFrame = maskFrame != 0
	cfg.UpdatedAt = time.Unix(updatedAt, 0)
	return cfg, nil
}

// SetClientConfig applies a partial update to the client-mode configuration.
// Unknown field names or mistyped values fail with bridgeerr.InvalidParam and
// commit nothing; an empty fields map is a no-op.
func (s *Store) SetClientConfig(ctx context.Context, fields Fields) error {
	return s.partialUpdate(ctx, clientTable, fields)
}
