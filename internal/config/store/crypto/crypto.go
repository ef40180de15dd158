// Package crypto seals the client's HTTP upgrade credentials at rest.
//
// A sealed value is "enc:v1:" followed by base64(nonce || AES-256-GCM
// ciphertext). The key is a raw 32-byte file kept beside the database.
package crypto

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	KeySize     = 32
	KeyFileName = ".secrets.key"
	SealPrefix  = "enc:v1:"
)

// ErrKeyLost means sealed values exist but the key file that sealed them is
// missing or has been replaced.
var ErrKeyLost = errors.New("encryption key missing or replaced while sealed credentials exist")

// Box seals and opens values with one key.
type Box struct {
	aead cipher.AEAD
}

// NewBox builds a Box for a KeySize key.
func NewBox(key []byte) (*Box, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("crypto: key is %d bytes, want %d", len(key), KeySize)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: %w", err)
	}
	return &Box{aead: aead}, nil
}

// Seal encrypts plain under a fresh random nonce.
func (b *Box) Seal(plain string) (string, error) {
	nonce := make([]byte, b.aead.NonceSize(), b.aead.NonceSize()+len(plain)+b.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("crypto: nonce: %w", err)
	}
	sealed := b.aead.Seal(nonce, nonce, []byte(plain), nil)
	return SealPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal. Unprefixed input is an error, not a passthrough.
func (b *Box) Open(stored string) (string, error) {
	encoded, ok := strings.CutPrefix(stored, SealPrefix)
	if !ok {
		return "", fmt.Errorf("crypto: value lacks %s prefix", SealPrefix)
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("crypto: decode: %w", err)
	}
	n := b.aead.NonceSize()
	if len(raw) < n+b.aead.Overhead() {
		return "", errors.New("crypto: sealed value truncated")
	}
	plain, err := b.aead.Open(nil, raw[:n], raw[n:], nil)
	if err != nil {
		return "", fmt.Errorf("crypto: open: %w", err)
	}
	return string(plain), nil
}

// Sealed reports whether stored carries SealPrefix.
func Sealed(stored string) bool {
	return strings.HasPrefix(stored, SealPrefix)
}

// KeyFile is the key path that belongs to dbPath.
func KeyFile(dbPath string) string {
	return filepath.Join(filepath.Dir(dbPath), KeyFileName)
}

// ReadKey loads the key at path. A missing file yields (nil, nil).
func ReadKey(path string, log logrus.FieldLogger) ([]byte, error) {
	key, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("crypto: read key: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("crypto: key %s is %d bytes, want %d", path, len(key), KeySize)
	}
	// Mode bits are synthetic on windows.
	if log != nil && runtime.GOOS != "windows" {
		if info, err := os.Stat(path); err == nil && info.Mode().Perm()&0o077 != 0 {
			log.WithField("path", path).Warnf("encryption key is readable by others (mode %#o)", info.Mode().Perm())
		}
	}
	return key, nil
}

// WriteKey creates a random key at path. The key is staged in a private temp
// file and hard-linked into place, so readers never see a partial key and
// concurrent writers agree on whichever link landed first.
func WriteKey(path string) ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("crypto: generate key: %w", err)
	}

	staged, err := stageKey(filepath.Dir(path), key)
	if err != nil {
		return nil, err
	}
	defer os.Remove(staged)

	switch err := os.Link(staged, path); {
	case err == nil:
		return key, nil
	case errors.Is(err, fs.ErrExist):
		winner, err := ReadKey(path, nil)
		if err != nil {
			return nil, err
		}
		if winner == nil {
			return nil, fmt.Errorf("crypto: key %s vanished while linking", path)
		}
		return winner, nil
	default:
		return nil, fmt.Errorf("crypto: install key: %w", err)
	}
}

func stageKey(dir string, key []byte) (string, error) {
	f, err := os.CreateTemp(dir, KeyFileName+".tmp.*")
	if err != nil {
		return "", fmt.Errorf("crypto: stage key: %w", err)
	}
	name := f.Name()
	err = f.Chmod(0o600)
	if err == nil {
		_, err = f.Write(key)
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(name)
		return "", fmt.Errorf("crypto: stage key: %w", err)
	}
	return name, nil
}

// Unlock returns the Box for the database at dbPath.
//
// A read-only caller without a key file gets a nil Box. A writer creates the
// key on first use, refusing with ErrKeyLost when sealed credentials already
// exist, and then seals any plaintext credential left in client_config.
// Sealed credentials that the key cannot open are also ErrKeyLost.
func Unlock(ctx context.Context, db *sql.DB, dbPath string, readOnly bool, log logrus.FieldLogger) (*Box, error) {
	path := KeyFile(dbPath)
	key, err := ReadKey(path, log)
	if err != nil {
		return nil, err
	}
	if key == nil {
		if readOnly {
			return nil, nil
		}
		lost, err := hasSealedCredentials(ctx, db)
		if err != nil {
			return nil, err
		}
		if lost {
			return nil, fmt.Errorf("crypto: %s: %w", path, ErrKeyLost)
		}
		if key, err = WriteKey(path); err != nil {
			return nil, err
		}
	}

	box, err := NewBox(key)
	if err != nil {
		return nil, err
	}
	if !readOnly {
		sealed, err := box.sealPlaintext(ctx, db)
		if err != nil {
			return nil, err
		}
		if sealed && log != nil {
			log.Info("sealed plaintext upgrade credentials")
		}
	}
	return box, nil
}

func hasSealedCredentials(ctx context.Context, db *sql.DB) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM client_config WHERE http_upgrade_credentials LIKE ?`, SealPrefix+"%",
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("crypto: look for sealed credentials: %w", err)
	}
	return n > 0, nil
}

// sealPlaintext rewrites a plaintext credential in place. A sealed value that
// does not open under this key means the key file was replaced; that is
// ErrKeyLost rather than something to seal again.
func (b *Box) sealPlaintext(ctx context.Context, db *sql.DB) (bool, error) {
	var current string
	err := db.QueryRowContext(ctx, `SELECT http_upgrade_credentials FROM client_config WHERE id = 1`).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && current == "") {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("crypto: read credentials: %w", err)
	}
	if Sealed(current) {
		if _, err := b.Open(current); err != nil {
			return false, fmt.Errorf("crypto: stored credentials do not open with this key: %w", ErrKeyLost)
		}
		return false, nil
	}
	sealed, err := b.Seal(current)
	if err != nil {
		return false, err
	}
	if _, err := db.ExecContext(ctx, `UPDATE client_config SET http_upgrade_credentials = ? WHERE id = 1`, sealed); err != nil {
		return false, fmt.Errorf("crypto: seal credentials: %w", err)
	}
	return true, nil
}
