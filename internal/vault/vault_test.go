package vault

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testVault(t *testing.T) *Vault {
	t.Helper()
	box, err := NewBox(testKey(t))
	require.NoError(t, err)
	v, err := New(filepath.Join(t.TempDir(), "vault"), box, zap.NewNop())
	require.NoError(t, err)
	return v
}

func TestVault_PutManyGetMapRoundTrip(t *testing.T) {
	v := testVault(t)
	ctx := context.Background()

	items := []Item{
		{Identifier: "C4::PAN::0123456789", Label: "PAN", Value: "4111 1111 1111 1111"},
		{Identifier: "C3::EMAIL::abcdef0123", Label: "EMAIL", Value: "a@b.com"},
	}
	require.NoError(t, v.PutMany(ctx, "op-1", items))

	got, err := v.GetMap(ctx, "op-1", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"C4::PAN::0123456789":  "4111 1111 1111 1111",
		"C3::EMAIL::abcdef0123": "a@b.com",
	}, got)
}

func TestVault_GetMapFiltersByIdentifier(t *testing.T) {
	v := testVault(t)
	ctx := context.Background()

	items := []Item{
		{Identifier: "C4::PAN::0123456789", Label: "PAN", Value: "4111111111111111"},
		{Identifier: "C3::EMAIL::abcdef0123", Label: "EMAIL", Value: "a@b.com"},
	}
	require.NoError(t, v.PutMany(ctx, "op-1", items))

	got, err := v.GetMap(ctx, "op-1", []string{"C3::EMAIL::abcdef0123", "C1::STATUS::ffffffffff"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"C3::EMAIL::abcdef0123": "a@b.com"}, got)
}

func TestVault_GetMapMissingOperation(t *testing.T) {
	v := testVault(t)

	_, err := v.GetMap(context.Background(), "no-such-op", nil)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestVault_GetMapSkipsUndecryptableRecords(t *testing.T) {
	v := testVault(t)
	ctx := context.Background()

	require.NoError(t, v.PutMany(ctx, "op-1", []Item{
		{Identifier: "C3::EMAIL::abcdef0123", Label: "EMAIL", Value: "a@b.com"},
		{Identifier: "C4::PAN::0123456789", Label: "PAN", Value: "4111111111111111"},
	}))

	// Corrupt one record's ciphertext on disk.
	data, err := os.ReadFile(v.Path("op-1"))
	require.NoError(t, err)
	var set recordSet
	require.NoError(t, json.Unmarshal(data, &set))
	set.Records[0].EncryptedValue = set.Records[0].EncryptedValue[:len(set.Records[0].EncryptedValue)-4] + "AAAA"
	data, err = json.Marshal(set)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(v.Path("op-1"), data, 0o600))

	got, err := v.GetMap(ctx, "op-1", nil)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, "4111111111111111", got["C4::PAN::0123456789"])
}

func TestVault_PutManyEmptyItems(t *testing.T) {
	v := testVault(t)
	ctx := context.Background()

	require.NoError(t, v.PutMany(ctx, "op-1", nil))

	got, err := v.GetMap(ctx, "op-1", nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestVault_Remove(t *testing.T) {
	v := testVault(t)
	ctx := context.Background()

	require.NoError(t, v.PutMany(ctx, "op-1", []Item{
		{Identifier: "C3::EMAIL::abcdef0123", Label: "EMAIL", Value: "a@b.com"},
	}))
	require.NoError(t, v.Remove(ctx, "op-1"))

	_, err := v.GetMap(ctx, "op-1", nil)
	require.ErrorIs(t, err, ErrNotFound)

	// Removing again is not an error.
	require.NoError(t, v.Remove(ctx, "op-1"))
}

func TestVault_RejectsUnsafeOperationID(t *testing.T) {
	v := testVault(t)
	ctx := context.Background()

	for _, id := range []string{"", "../escape", "a/b", `a\b`} {
		err := v.PutMany(ctx, id, nil)
		require.ErrorIs(t, err, ErrBadOperationID, "id %q", id)
		_, err = v.GetMap(ctx, id, nil)
		require.ErrorIs(t, err, ErrBadOperationID, "id %q", id)
	}
}

func TestVault_RecordFilePermissions(t *testing.T) {
	v := testVault(t)
	ctx := context.Background()

	require.NoError(t, v.PutMany(ctx, "op-1", []Item{
		{Identifier: "C3::EMAIL::abcdef0123", Label: "EMAIL", Value: "a@b.com"},
	}))

	info, err := os.Stat(v.Path("op-1"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestNew_Validation(t *testing.T) {
	box, err := NewBox(testKey(t))
	require.NoError(t, err)

	_, err = New("", box, nil)
	require.Error(t, err)

	_, err = New(t.TempDir(), nil, nil)
	require.Error(t, err)
}
