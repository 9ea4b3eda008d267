package receipt

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/scrubd/internal/policy"
	"github.com/fyrsmithlabs/scrubd/internal/vault"
)

func testStore(t *testing.T) (*Store, vault.Cipher) {
	t.Helper()
	key := make([]byte, vault.KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	box, err := vault.NewBox(key)
	require.NoError(t, err)
	s, err := NewStore(filepath.Join(t.TempDir(), "receipts"), box, zap.NewNop())
	require.NoError(t, err)
	return s, box
}

func testDraft() Draft {
	return Draft{
		OperationID:   "11111111-2222-3333-4444-555555555555",
		OriginalText:  "Email a@b.com",
		ScrubbedText:  "Email C3::EMAIL::abcdef0123",
		ClearanceTier: policy.TierC3,
		PolicyVersion: "2025.1",
		PlaceholderMap: map[string]string{
			"C3::EMAIL::abcdef0123": "C3::EMAIL::abcdef0123",
		},
		Entities: []policy.Entity{{
			Identifier: "C3::EMAIL::abcdef0123",
			Label:      "EMAIL",
			DetectorID: "regex:email",
			Tier:       policy.TierC3,
			Action:     policy.ActionMask,
			Confidence: 0.98,
			Span:       policy.Span{Start: 6, End: 13},
		}},
		Values: map[string]string{"C3::EMAIL::abcdef0123": "a@b.com"},
	}
}

func TestStore_WriteReadRoundTrip(t *testing.T) {
	s, box := testStore(t)
	ctx := context.Background()

	written, err := s.Write(ctx, testDraft())
	require.NoError(t, err)
	require.Len(t, written.Entities, 1)
	assert.NotEmpty(t, written.Entities[0].OriginalEncrypted)
	assert.False(t, written.CreatedAt.IsZero())

	got, err := s.Read(ctx, written.OperationID)
	require.NoError(t, err)
	assert.Equal(t, written.OperationID, got.OperationID)
	assert.Equal(t, written.Hashes, got.Hashes)
	assert.Equal(t, written.ScrubbedText, got.ScrubbedText)
	require.Len(t, got.Entities, 1)

	plaintext, err := box.Open(got.Entities[0].OriginalEncrypted)
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", string(plaintext))
}

func TestStore_ReadByPath(t *testing.T) {
	s, _ := testStore(t)
	ctx := context.Background()

	written, err := s.Write(ctx, testDraft())
	require.NoError(t, err)

	got, err := s.Read(ctx, s.Path(written.OperationID))
	require.NoError(t, err)
	assert.Equal(t, written.OperationID, got.OperationID)
}

func TestStore_WriteComputesHashes(t *testing.T) {
	s, _ := testStore(t)

	written, err := s.Write(context.Background(), testDraft())
	require.NoError(t, err)

	assert.Equal(t, HashText("Email a@b.com"), written.Hashes.Original)
	assert.Equal(t, HashText("Email C3::EMAIL::abcdef0123"), written.Hashes.Scrubbed)
	assert.NotEqual(t, written.Hashes.Original, written.Hashes.Scrubbed)
	assert.Len(t, written.Hashes.Original, 64)
}

func TestStore_WriteKeepsPlaintextOffDisk(t *testing.T) {
	s, _ := testStore(t)
	ctx := context.Background()

	written, err := s.Write(ctx, testDraft())
	require.NoError(t, err)

	data, err := os.ReadFile(s.Path(written.OperationID))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "a@b.com")
}

func TestStore_WriteRejectsMissingValue(t *testing.T) {
	s, _ := testStore(t)

	d := testDraft()
	d.Values = nil
	_, err := s.Write(context.Background(), d)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing raw value")

	// Nothing half-written.
	_, err = s.Read(context.Background(), d.OperationID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ReadMissing(t *testing.T) {
	s, _ := testStore(t)

	_, err := s.Read(context.Background(), "no-such-operation")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStore_Remove(t *testing.T) {
	s, _ := testStore(t)
	ctx := context.Background()

	written, err := s.Write(ctx, testDraft())
	require.NoError(t, err)
	require.NoError(t, s.Remove(ctx, written.OperationID))

	_, err = s.Read(ctx, written.OperationID)
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, s.Remove(ctx, written.OperationID))
}

func TestStore_StableFieldNames(t *testing.T) {
	s, _ := testStore(t)
	ctx := context.Background()

	written, err := s.Write(ctx, testDraft())
	require.NoError(t, err)

	data, err := os.ReadFile(s.Path(written.OperationID))
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, field := range []string{
		"operation_id", "created_at", "hashes", "clearance_tier",
		"policy_version", "placeholder_map", "scrubbed_text", "entities",
	} {
		assert.Contains(t, raw, field)
	}

	var entities []map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw["entities"], &entities))
	require.Len(t, entities, 1)
	for _, field := range []string{
		"identifier", "label", "detector_id", "clearance_tier",
		"confidence", "span", "original_encrypted",
	} {
		assert.Contains(t, entities[0], field)
	}
}

func TestStore_FilePermissions(t *testing.T) {
	s, _ := testStore(t)

	written, err := s.Write(context.Background(), testDraft())
	require.NoError(t, err)

	info, err := os.Stat(s.Path(written.OperationID))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestStore_RejectsUnsafeOperationID(t *testing.T) {
	s, _ := testStore(t)

	d := testDraft()
	d.OperationID = "../escape"
	_, err := s.Write(context.Background(), d)
	require.ErrorIs(t, err, ErrBadOperationID)
}

func TestHashText(t *testing.T) {
	// Known SHA-256 of the empty string.
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		HashText(""))
	assert.True(t, strings.EqualFold(HashText("abc"),
		"BA7816BF8F01CFEA414140DE5DAE2223B00361A396177A9CB410FF61F20015AD"))
}
