package vault

import (
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/fyrsmithlabs/scrubd/internal/fsutil"
)

// KeySize is the required vault key length in bytes.
const KeySize = chacha20poly1305.KeySize

var (
	// ErrKeyNotFound indicates no key file exists at the configured path.
	// Scrubbing must not start without a persisted key: a throwaway
	// per-process key would leave every prior vault permanently unreadable.
	ErrKeyNotFound = errors.New("vault key not found")

	// ErrKeyInvalid indicates the key file exists but cannot be used.
	ErrKeyInvalid = errors.New("vault key file is invalid")

	// ErrKeyExists indicates a generate would overwrite a live key.
	ErrKeyExists = errors.New("vault key already exists")
)

// LoadKey reads the vault key from disk. The file must hold exactly KeySize
// raw bytes and must not be readable by group or others.
func LoadKey(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s (generate one with: scrubd keygen)", ErrKeyNotFound, path)
		}
		return nil, fmt.Errorf("failed to stat key file: %w", err)
	}

	if mode := info.Mode().Perm(); mode&0o077 != 0 {
		return nil, fmt.Errorf("%w: insecure permissions %04o on %s (expected 0600)", ErrKeyInvalid, mode, path)
	}

	key, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrKeyInvalid, KeySize, len(key))
	}
	return key, nil
}

// GenerateKey creates a fresh random key and persists it atomically with
// 0600 permissions. It refuses to overwrite an existing key file: replacing
// the key renders every vault and receipt written under the old key
// unreadable.
func GenerateKey(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %s", ErrKeyExists, path)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat key file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}

	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return fmt.Errorf("failed to generate key material: %w", err)
	}

	if err := fsutil.WriteFileAtomic(path, key, 0o600); err != nil {
		return fmt.Errorf("failed to persist key: %w", err)
	}
	return nil
}
