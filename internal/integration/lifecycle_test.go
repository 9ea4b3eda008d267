//go:build integration

package integration

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/scrubd/internal/audit"
	"github.com/fyrsmithlabs/scrubd/internal/descrub"
	"github.com/fyrsmithlabs/scrubd/internal/detect"
	"github.com/fyrsmithlabs/scrubd/internal/policy"
	"github.com/fyrsmithlabs/scrubd/internal/receipt"
	"github.com/fyrsmithlabs/scrubd/internal/scrub"
	"github.com/fyrsmithlabs/scrubd/internal/vault"
)

// pipeline wires every store and service against one temp directory, the
// same shape the CLI assembles per command.
type pipeline struct {
	scrub    scrub.Service
	descrub  descrub.Service
	audit    *audit.Log
	auditDir string
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	dir := t.TempDir()

	keyPath := filepath.Join(dir, "keys", "vault.key")
	require.NoError(t, vault.GenerateKey(keyPath))
	key, err := vault.LoadKey(keyPath)
	require.NoError(t, err)
	cipher, err := vault.NewBox(key)
	require.NoError(t, err)

	logger := zap.NewNop()
	v, err := vault.New(filepath.Join(dir, "vault"), cipher, logger)
	require.NoError(t, err)
	receipts, err := receipt.NewStore(filepath.Join(dir, "receipts"), cipher, logger)
	require.NoError(t, err)
	auditDir := filepath.Join(dir, "audit")
	auditLog, err := audit.Open(auditDir, logger)
	require.NoError(t, err)

	detectors, err := detect.NewSet(detect.DefaultRules())
	require.NoError(t, err)
	engine, err := policy.NewEngine(policy.DefaultConfig())
	require.NoError(t, err)

	scrubSvc, err := scrub.NewService(scrub.Deps{
		Detectors: detectors,
		Scorer:    detect.NewScorer(),
		Engine:    engine,
		Vault:     v,
		Receipts:  receipts,
		Audit:     auditLog,
	}, logger)
	require.NoError(t, err)

	descrubSvc, err := descrub.NewService(nil, descrub.Deps{
		Receipts: receipts,
		Vault:    v,
		Cipher:   cipher,
		Audit:    auditLog,
	}, logger)
	require.NoError(t, err)

	return &pipeline{
		scrub:    scrubSvc,
		descrub:  descrubSvc,
		audit:    auditLog,
		auditDir: auditDir,
	}
}

// TestOperationLifecycle_EndToEnd walks one operation through its whole
// life: scrub, selective descrub per clearance, vault descrub on edited
// text, a denied attempt, chain verification, and tamper detection.
func TestOperationLifecycle_EndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()
	p := newPipeline(t)

	original := "Contact alice@example.com, card 4111 1111 1111 1111, status open."

	result, err := p.scrub.Scrub(ctx, &scrub.Request{Text: original, Tier: policy.TierC3})
	require.NoError(t, err)

	var emailID, panID string
	for _, e := range result.Entities {
		switch e.Label {
		case "EMAIL":
			emailID = e.Identifier
		case "PAN":
			panID = e.Identifier
		}
	}

	t.Run("scrub_replaces_and_tiers", func(t *testing.T) {
		assert.NotContains(t, result.ScrubbedText, "alice@example.com")
		assert.NotContains(t, result.ScrubbedText, "4111")
		require.NotEmpty(t, emailID)
		require.NotEmpty(t, panID)

		// EMAIL keeps the requested C3; PAN's mapped C4 wins over it.
		assert.Contains(t, emailID, "C3::EMAIL::")
		assert.Contains(t, panID, "C4::PAN::")
		assert.Contains(t, result.ScrubbedText, emailID)
		assert.Contains(t, result.ScrubbedText, panID)
	})

	t.Run("descrub_c3_skips_pan", func(t *testing.T) {
		res, err := p.descrub.FromReceipt(ctx, &descrub.Request{
			OperationID: result.OperationID,
			Actor:       descrub.Actor{Name: "auditor-1", Role: "auditor", Tier: policy.TierC3},
		})
		require.NoError(t, err)
		assert.Contains(t, res.Text, "alice@example.com")
		assert.NotContains(t, res.Text, "4111")
		assert.Contains(t, res.Text, panID)
		assert.Equal(t, []string{emailID}, res.Restored)
		assert.Equal(t, []string{panID}, res.Skipped)
	})

	t.Run("descrub_c4_restores_everything", func(t *testing.T) {
		res, err := p.descrub.FromReceipt(ctx, &descrub.Request{
			OperationID: result.OperationID,
			Actor:       descrub.Actor{Name: "admin-1", Role: "admin", Tier: policy.TierC4},
		})
		require.NoError(t, err)
		assert.Equal(t, original, res.Text)
		assert.Len(t, res.Restored, len(result.Entities))
		assert.Empty(t, res.Skipped)
	})

	t.Run("vault_descrub_on_edited_text", func(t *testing.T) {
		edited := "summary: " + result.ScrubbedText
		res, err := p.descrub.FromVault(ctx, &descrub.Request{
			OperationID: result.OperationID,
			Text:        edited,
			IDs:         []string{emailID},
			Actor:       descrub.Actor{Name: "admin-1", Role: "admin", Tier: policy.TierC4},
		})
		require.NoError(t, err)
		assert.Contains(t, res.Text, "summary: ")
		assert.Contains(t, res.Text, "alice@example.com")
		assert.Contains(t, res.Text, panID)
		assert.Equal(t, []string{emailID}, res.Restored)
	})

	t.Run("denied_role_is_audited", func(t *testing.T) {
		_, err := p.descrub.FromReceipt(ctx, &descrub.Request{
			OperationID: result.OperationID,
			Actor:       descrub.Actor{Name: "intern-1", Role: "intern", Tier: policy.TierC4},
		})
		require.ErrorIs(t, err, descrub.ErrDenied)

		events, err := p.audit.FindByOperation(ctx, result.OperationID)
		require.NoError(t, err)
		var denied int
		for _, e := range events {
			if e.EventType == audit.EventAccessDenied {
				denied++
			}
		}
		assert.Equal(t, 1, denied)
	})

	t.Run("chain_verifies", func(t *testing.T) {
		n, err := p.audit.Verify(ctx)
		require.NoError(t, err)
		// scrub + three descrubs + one denial.
		assert.Equal(t, 5, n)
	})

	t.Run("tamper_breaks_chain", func(t *testing.T) {
		shards, err := filepath.Glob(filepath.Join(p.auditDir, "audit-*.jsonl"))
		require.NoError(t, err)
		require.Len(t, shards, 1)

		raw, err := os.ReadFile(shards[0])
		require.NoError(t, err)
		tampered := bytes.Replace(raw, []byte(`"event_type":"scrub"`), []byte(`"event_type":"scrap"`), 1)
		require.NotEqual(t, raw, tampered)
		require.NoError(t, os.WriteFile(shards[0], tampered, 0o600))

		_, err = p.audit.Verify(ctx)
		require.ErrorIs(t, err, audit.ErrChainBroken)
	})
}
