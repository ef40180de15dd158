package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/phantomwg/wsbridge/internal/bridgeerr"
)

// GetServerConfig reads the server-mode configuration.
func (s *Store) GetServerConfig(ctx context.Context) (ServerConfig, error) {
	db, err := s.conn()
	if err != nil {
		return ServerConfig{}, err
	}

	var (
		cfg       ServerConfig
		maskFrame int
		updatedAt int64
	)
	err = db.QueryRowContext(ctx, `
		SELECT bind_url, tls_certificate, tls_private_key, tls_client_ca_certs,
		       websocket_ping_frequency, websocket_mask_frame, worker_threads, updated_at
		FROM server_config WHERE id = 1
	`).Scan(
		&cfg.BindURL, &cfg.TLSCertificate, &cfg.TLSPrivateKey, &cfg.TLSClientCACerts,
		&cfg.WebsocketPingFrequency, &maskFrame, &cfg.WorkerThreads, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return ServerConfig{}, bridgeerr.Wrap(bridgeerr.DbQuery, NotFoundError{Entity: "server config"}, "get server config")
	}
	if err != nil {
		return ServerConfig{}, bridgeerr.Wrap(bridgeerr.DbQuery, err, "get server config")
	}

	cfg.WebsocketMaskFrame = maskFrame != 0
	cfg.UpdatedAt = time.Unix(updatedAt, 0)
	return cfg, nil
}

// SetServerConfig applies a partial update to the server-mode configuration
// with the same rules as SetClientConfig.
func (s *Store) SetServerConfig(ctx context.Context, fields Fields) error {
	return s.partialUpdate(ctx, serverTable, fields)
}
