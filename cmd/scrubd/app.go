package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/scrubd/internal/audit"
	"github.com/fyrsmithlabs/scrubd/internal/config"
	"github.com/fyrsmithlabs/scrubd/internal/descrub"
	"github.com/fyrsmithlabs/scrubd/internal/detect"
	"github.com/fyrsmithlabs/scrubd/internal/logging"
	"github.com/fyrsmithlabs/scrubd/internal/policy"
	"github.com/fyrsmithlabs/scrubd/internal/receipt"
	"github.com/fyrsmithlabs/scrubd/internal/scrub"
	"github.com/fyrsmithlabs/scrubd/internal/telemetry"
	"github.com/fyrsmithlabs/scrubd/internal/vault"
)

// app carries what every command shares: configuration, the logger, and
// telemetry. Stores and services open per command, so keygen and the audit
// commands work without a vault key on disk.
type app struct {
	cfg *config.Config
	log *logging.Logger
	tel *telemetry.Telemetry
}

// initApp loads configuration and brings up logging and telemetry.
func initApp(ctx context.Context) (*app, error) {
	if err := config.EnsureConfigDir(); err != nil {
		return nil, fmt.Errorf("failed to ensure config directory: %w", err)
	}

	cfg, err := config.LoadWithFile(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	tcfg := telemetry.NewDefaultConfig()
	tcfg.Enabled = cfg.Observability.Enabled
	tcfg.ServiceVersion = version
	if cfg.Observability.Endpoint != "" {
		tcfg.Endpoint = cfg.Observability.Endpoint
	}
	if cfg.Observability.ServiceName != "" {
		tcfg.ServiceName = cfg.Observability.ServiceName
	}
	tcfg.Insecure = cfg.Observability.Insecure
	tel, err := telemetry.New(ctx, tcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	logCfg := logging.NewDefaultConfig()
	logCfg.Format = cfg.Logging.Format
	// Command results own stdout; the log stream moves to stderr.
	logCfg.Output.Stderr = true
	logCfg.Output.OTEL = cfg.Observability.Enabled
	level, err := logging.LevelFromString(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	logCfg.Level = level

	logger, err := logging.NewLogger(logCfg, tel.LoggerProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	for _, w := range cfg.Warnings() {
		logger.Warn(ctx, w)
	}

	return &app{cfg: cfg, log: logger, tel: tel}, nil
}

// Close flushes pending telemetry and the log stream.
func (a *app) Close(ctx context.Context) {
	if err := a.tel.Shutdown(ctx); err != nil {
		a.log.Warn(ctx, "telemetry shutdown failed", zap.Error(err))
	}
	_ = a.log.Sync() // Best-effort sync on shutdown
}

// openAudit opens the hash-chained audit log.
func (a *app) openAudit() (*audit.Log, error) {
	return audit.Open(a.cfg.Data.AuditDir(), a.log.Underlying())
}

// openCipher loads the vault key and builds the AEAD cipher around it.
func (a *app) openCipher() (*vault.Box, error) {
	key, err := vault.LoadKey(a.cfg.Data.KeyFile())
	if err != nil {
		return nil, err
	}
	return vault.NewBox(key)
}

// loadRules resolves the detection rule set: built-ins, optionally merged
// with the configured manifest. Manifest entries that fail validation are
// logged and skipped rather than aborting the command.
func (a *app) loadRules(ctx context.Context) ([]detect.Rule, *config.RuleSet, error) {
	if a.cfg.Detect.RulesFile == "" {
		return detect.DefaultRules(), nil, nil
	}

	rs, err := config.LoadManifest(a.cfg.Detect.RulesFile)
	if err != nil {
		return nil, nil, err
	}
	for _, skipped := range rs.Report.Skipped {
		a.log.Warn(ctx, "skipping invalid manifest rule",
			zap.String("rule_id", skipped.ID),
			zap.String("reason", skipped.Reason))
	}
	a.log.Debug(ctx, "loaded rule manifest",
		zap.String("path", a.cfg.Detect.RulesFile),
		zap.Int("rules", rs.Report.Loaded))
	return rs.Rules, rs, nil
}

// buildEngine constructs the policy engine from the config tables plus any
// tier and action overrides the rule manifest carried.
func (a *app) buildEngine(rs *config.RuleSet) (*policy.Engine, error) {
	ecfg := a.cfg.Policy.EngineConfig()
	if rs != nil {
		if rs.Version != "" {
			ecfg.Version = rs.Version
		}
		for label, tier := range rs.Tiers {
			ecfg.Tiers[label] = policy.Tier(tier)
		}
		for label, action := range rs.Actions {
			ecfg.Actions[label] = policy.Action(action)
		}
	}
	return policy.NewEngine(ecfg)
}

// buildDetectors assembles the detector set and scorer. The credential
// detector joins the set when enabled in config.
func (a *app) buildDetectors(rules []detect.Rule) (*detect.Set, *detect.Scorer, error) {
	var extra []detect.Detector
	if a.cfg.Detect.Credentials {
		allow, err := detect.LoadAllowlists(".", a.cfg.Detect.AllowlistFile)
		if err != nil {
			return nil, nil, err
		}
		cred, err := detect.NewCredentialDetector(&detect.CredentialConfig{Allowlist: allow})
		if err != nil {
			return nil, nil, err
		}
		extra = append(extra, cred)
	}

	set, err := detect.NewSet(rules, extra...)
	if err != nil {
		return nil, nil, err
	}

	mode, err := detect.ParseFusionMode(a.cfg.Detect.Fusion)
	if err != nil {
		return nil, nil, err
	}
	scorer := detect.NewScorer()
	scorer.Mode = mode
	return set, scorer, nil
}

// scrubService wires the full scrub pipeline.
func (a *app) scrubService(ctx context.Context) (scrub.Service, error) {
	rules, rs, err := a.loadRules(ctx)
	if err != nil {
		return nil, err
	}
	detectors, scorer, err := a.buildDetectors(rules)
	if err != nil {
		return nil, err
	}
	engine, err := a.buildEngine(rs)
	if err != nil {
		return nil, err
	}
	cipher, err := a.openCipher()
	if err != nil {
		return nil, err
	}
	v, err := vault.New(a.cfg.Data.VaultDir(), cipher, a.log.Underlying())
	if err != nil {
		return nil, err
	}
	receipts, err := receipt.NewStore(a.cfg.Data.ReceiptsDir(), cipher, a.log.Underlying())
	if err != nil {
		return nil, err
	}
	auditLog, err := a.openAudit()
	if err != nil {
		return nil, err
	}

	return scrub.NewService(scrub.Deps{
		Detectors: detectors,
		Scorer:    scorer,
		Engine:    engine,
		Vault:     v,
		Receipts:  receipts,
		Audit:     auditLog,
	}, a.log.Underlying())
}

// descrubService wires the restore pipeline.
func (a *app) descrubService() (descrub.Service, error) {
	cipher, err := a.openCipher()
	if err != nil {
		return nil, err
	}
	v, err := vault.New(a.cfg.Data.VaultDir(), cipher, a.log.Underlying())
	if err != nil {
		return nil, err
	}
	receipts, err := receipt.NewStore(a.cfg.Data.ReceiptsDir(), cipher, a.log.Underlying())
	if err != nil {
		return nil, err
	}
	auditLog, err := a.openAudit()
	if err != nil {
		return nil, err
	}

	dcfg := &descrub.Config{
		AllowedRoles:  a.cfg.Descrub.AllowedRoles,
		RatePerSecond: a.cfg.Descrub.RatePerSecond,
		Burst:         a.cfg.Descrub.Burst,
	}
	return descrub.NewService(dcfg, descrub.Deps{
		Receipts: receipts,
		Vault:    v,
		Cipher:   cipher,
		Audit:    auditLog,
	}, a.log.Underlying())
}
