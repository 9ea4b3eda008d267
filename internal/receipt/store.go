package receipt

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/scrubd/internal/fsutil"
	"github.com/fyrsmithlabs/scrubd/internal/policy"
	"github.com/fyrsmithlabs/scrubd/internal/vault"
)

var (
	// ErrNotFound indicates no receipt exists for the reference.
	ErrNotFound = errors.New("receipt not found")

	// ErrBadOperationID indicates an operation ID unusable as a file name.
	ErrBadOperationID = errors.New("invalid operation id")
)

// Draft holds everything a scrub produces that the receipt must capture.
// Values maps entity identifiers to their raw detected values; the store
// encrypts them before anything touches disk.
type Draft struct {
	OperationID    string
	OriginalText   string
	ScrubbedText   string
	ClearanceTier  policy.Tier
	Filename       string
	PolicyVersion  string
	PlaceholderMap map[string]string
	Entities       []policy.Entity
	Values         map[string]string
}

// Store reads and writes receipts under dir, one JSON file per operation.
type Store struct {
	dir    string
	cipher vault.Cipher
	logger *zap.Logger
}

// NewStore creates a receipt store rooted at dir.
func NewStore(dir string, cipher vault.Cipher, logger *zap.Logger) (*Store, error) {
	if dir == "" {
		return nil, errors.New("receipt directory is required")
	}
	if cipher == nil {
		return nil, errors.New("cipher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create receipt directory: %w", err)
	}
	return &Store{dir: dir, cipher: cipher, logger: logger}, nil
}

// Write builds the receipt from a draft, encrypting every entity's raw
// value, and persists it in one atomic step. A draft entity without a raw
// value fails the whole write; a receipt that cannot restore its own
// entities must never exist.
func (s *Store) Write(ctx context.Context, d Draft) (*Receipt, error) {
	if err := checkOperationID(d.OperationID); err != nil {
		return nil, err
	}

	rcpt := &Receipt{
		OperationID:   d.OperationID,
		CreatedAt:     time.Now().UTC(),
		ClearanceTier: d.ClearanceTier,
		Filename:      d.Filename,
		PolicyVersion: d.PolicyVersion,
		ScrubbedText:  d.ScrubbedText,
		Hashes: Hashes{
			Original: HashText(d.OriginalText),
			Scrubbed: HashText(d.ScrubbedText),
		},
		PlaceholderMap: d.PlaceholderMap,
		Entities:       make([]Entity, 0, len(d.Entities)),
	}
	if rcpt.PlaceholderMap == nil {
		rcpt.PlaceholderMap = map[string]string{}
	}

	for _, e := range d.Entities {
		raw, ok := d.Values[e.Identifier]
		if !ok {
			return nil, fmt.Errorf("missing raw value for entity %s", e.Identifier)
		}
		token, err := s.cipher.Seal([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt value for %s: %w", e.Identifier, err)
		}
		rcpt.Entities = append(rcpt.Entities, Entity{Entity: e, OriginalEncrypted: token})
	}

	data, err := json.MarshalIndent(rcpt, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode receipt: %w", err)
	}
	if err := fsutil.WriteFileAtomic(s.Path(d.OperationID), data, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write receipt: %w", err)
	}

	s.logger.Debug("receipt written",
		zap.String("operation_id", d.OperationID),
		zap.Int("entities", len(rcpt.Entities)))
	return rcpt, nil
}

// Read loads a receipt by direct file path or by operation ID.
func (s *Store) Read(ctx context.Context, ref string) (*Receipt, error) {
	if ref == "" {
		return nil, fmt.Errorf("%w: empty reference", ErrBadOperationID)
	}
	path := ref
	if !strings.ContainsAny(ref, `/\`) && !strings.HasSuffix(ref, ".json") {
		path = s.Path(ref)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		return nil, fmt.Errorf("failed to read receipt: %w", err)
	}

	var rcpt Receipt
	if err := json.Unmarshal(data, &rcpt); err != nil {
		return nil, fmt.Errorf("failed to decode receipt: %w", err)
	}
	return &rcpt, nil
}

// Remove deletes an operation's receipt. Used to roll back a scrub whose
// later persistence steps failed; removing a missing receipt is not an
// error.
func (s *Store) Remove(ctx context.Context, operationID string) error {
	if err := checkOperationID(operationID); err != nil {
		return err
	}
	if err := os.Remove(s.Path(operationID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove receipt: %w", err)
	}
	return nil
}

// Path returns the receipt file for an operation.
func (s *Store) Path(operationID string) string {
	return filepath.Join(s.dir, operationID+".json")
}

// HashText returns the hex SHA-256 of a text, the hash form used in
// receipts and audit payloads.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func checkOperationID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return fmt.Errorf("%w: %q", ErrBadOperationID, id)
	}
	return nil
}
