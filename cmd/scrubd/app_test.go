package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/scrubd/internal/descrub"
	"github.com/fyrsmithlabs/scrubd/internal/policy"
	"github.com/fyrsmithlabs/scrubd/internal/scrub"
	"github.com/fyrsmithlabs/scrubd/internal/vault"
)

// setupTestHome points HOME at a fresh directory so config, data, and key
// paths stay inside the test.
func setupTestHome(t *testing.T) string {
	t.Helper()
	home, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	t.Setenv("HOME", home)
	return home
}

func TestApp_ScrubDescrubRoundTrip(t *testing.T) {
	setupTestHome(t)
	ctx := context.Background()

	a, err := initApp(ctx)
	require.NoError(t, err)
	defer a.Close(ctx)

	require.NoError(t, vault.GenerateKey(a.cfg.Data.KeyFile()))

	svc, err := a.scrubService(ctx)
	require.NoError(t, err)

	original := "escalated by alice@example.com after the second reminder"
	result, err := svc.Scrub(ctx, &scrub.Request{Text: original, Tier: policy.TierC3})
	require.NoError(t, err)

	assert.NotContains(t, result.ScrubbedText, "alice@example.com")
	assert.Contains(t, result.ScrubbedText, "::EMAIL::")
	require.NotEmpty(t, result.Entities)

	_, err = os.Stat(result.ReceiptPath)
	require.NoError(t, err)

	dsvc, err := a.descrubService()
	require.NoError(t, err)

	restored, err := dsvc.FromReceipt(ctx, &descrub.Request{
		OperationID: result.OperationID,
		Actor:       descrub.Actor{Name: "roundtrip-test", Role: "admin", Tier: policy.TierC4},
	})
	require.NoError(t, err)
	assert.Equal(t, original, restored.Text)
	assert.NotEmpty(t, restored.Restored)
	assert.Empty(t, restored.Skipped)

	log, err := a.openAudit()
	require.NoError(t, err)
	n, err := log.Verify(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestApp_KeygenRefusesOverwrite(t *testing.T) {
	setupTestHome(t)
	ctx := context.Background()

	a, err := initApp(ctx)
	require.NoError(t, err)
	defer a.Close(ctx)

	require.NoError(t, vault.GenerateKey(a.cfg.Data.KeyFile()))

	err = vault.GenerateKey(a.cfg.Data.KeyFile())
	require.ErrorIs(t, err, vault.ErrKeyExists)
}

func TestApp_ScrubWithoutKeyFails(t *testing.T) {
	setupTestHome(t)
	ctx := context.Background()

	a, err := initApp(ctx)
	require.NoError(t, err)
	defer a.Close(ctx)

	_, err = a.scrubService(ctx)
	require.ErrorIs(t, err, vault.ErrKeyNotFound)
}
