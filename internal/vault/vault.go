// Package vault is the encrypted per-operation store of raw detected
// values. One record set is written per scrub operation; values are
// decrypted individually and only for requested identifiers during descrub.
package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/scrubd/internal/fsutil"
)

var (
	// ErrNotFound indicates no vault record set exists for the operation.
	ErrNotFound = errors.New("vault record set not found")

	// ErrBadOperationID indicates an operation ID unusable as a file name.
	ErrBadOperationID = errors.New("invalid operation id")
)

// Item is one raw value headed into the vault.
type Item struct {
	Identifier string
	Label      string
	Value      string
}

// Record is one encrypted value at rest.
type Record struct {
	Identifier     string    `json:"identifier"`
	Label          string    `json:"label"`
	EncryptedValue string    `json:"encrypted_value"`
	Timestamp      time.Time `json:"timestamp"`
}

// recordSet is the persisted per-operation file layout.
type recordSet struct {
	OperationID string   `json:"operation_id"`
	Records     []Record `json:"records"`
}

// Vault stores encrypted record sets under dir, one JSON file per
// operation.
type Vault struct {
	dir    string
	cipher Cipher
	logger *zap.Logger
}

// New creates a vault rooted at dir.
func New(dir string, cipher Cipher, logger *zap.Logger) (*Vault, error) {
	if dir == "" {
		return nil, errors.New("vault directory is required")
	}
	if cipher == nil {
		return nil, errors.New("cipher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create vault directory: %w", err)
	}
	return &Vault{dir: dir, cipher: cipher, logger: logger}, nil
}

// PutMany encrypts every item independently and writes the operation's
// record set in one atomic step. Any encryption or write failure fails the
// whole call; no partial record set is left behind.
func (v *Vault) PutMany(ctx context.Context, operationID string, items []Item) error {
	if err := checkOperationID(operationID); err != nil {
		return err
	}

	set := recordSet{
		OperationID: operationID,
		Records:     make([]Record, 0, len(items)),
	}
	now := time.Now().UTC()
	for _, item := range items {
		token, err := v.cipher.Seal([]byte(item.Value))
		if err != nil {
			return fmt.Errorf("failed to encrypt value for %s: %w", item.Identifier, err)
		}
		set.Records = append(set.Records, Record{
			Identifier:     item.Identifier,
			Label:          item.Label,
			EncryptedValue: token,
			Timestamp:      now,
		})
	}

	data, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode record set: %w", err)
	}
	if err := fsutil.WriteFileAtomic(v.Path(operationID), data, 0o600); err != nil {
		return fmt.Errorf("failed to write record set: %w", err)
	}

	v.logger.Debug("vault record set written",
		zap.String("operation_id", operationID),
		zap.Int("records", len(set.Records)))
	return nil
}

// GetMap decrypts the requested identifiers from an operation's record set.
// An empty ids slice requests everything. Identifiers that do not exist and
// records that fail authentication are simply absent from the result; a
// missing record set is ErrNotFound.
func (v *Vault) GetMap(ctx context.Context, operationID string, ids []string) (map[string]string, error) {
	if err := checkOperationID(operationID); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(v.Path(operationID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: operation %s", ErrNotFound, operationID)
		}
		return nil, fmt.Errorf("failed to read record set: %w", err)
	}

	var set recordSet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("failed to decode record set: %w", err)
	}

	requested := make(map[string]bool, len(ids))
	for _, id := range ids {
		requested[id] = true
	}

	out := make(map[string]string)
	for _, rec := range set.Records {
		if len(requested) > 0 && !requested[rec.Identifier] {
			continue
		}
		plaintext, err := v.cipher.Open(rec.EncryptedValue)
		if err != nil {
			v.logger.Warn("skipping undecryptable vault record",
				zap.String("operation_id", operationID),
				zap.String("identifier", rec.Identifier),
				zap.Error(err))
			continue
		}
		out[rec.Identifier] = string(plaintext)
	}
	return out, nil
}

// Remove deletes an operation's record set. Used to roll back a scrub whose
// later persistence steps failed; removing a missing set is not an error.
func (v *Vault) Remove(ctx context.Context, operationID string) error {
	if err := checkOperationID(operationID); err != nil {
		return err
	}
	if err := os.Remove(v.Path(operationID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove record set: %w", err)
	}
	return nil
}

// Path returns the record set file for an operation.
func (v *Vault) Path(operationID string) string {
	return filepath.Join(v.dir, operationID+".json")
}

// checkOperationID rejects IDs that would escape the vault directory.
func checkOperationID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return fmt.Errorf("%w: %q", ErrBadOperationID, id)
	}
	return nil
}
