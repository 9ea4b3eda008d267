// Package config provides configuration loading for scrubd.
//
// Configuration comes from a YAML file overridden by environment
// variables, with hardcoded defaults underneath. Sections map onto the
// services that consume them; the cmd layer translates each section
// into the service's own config type.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fyrsmithlabs/scrubd/internal/detect"
	"github.com/fyrsmithlabs/scrubd/internal/policy"
)

// Config holds the complete scrubd configuration.
type Config struct {
	Data          DataConfig          `koanf:"data"`
	Policy        PolicyConfig        `koanf:"policy"`
	Detect        DetectConfig        `koanf:"detect"`
	Descrub       DescrubConfig       `koanf:"descrub"`
	Logging       LoggingConfig       `koanf:"logging"`
	Observability ObservabilityConfig `koanf:"observability"`
}

// DataConfig holds the filesystem layout for everything scrubd persists:
// the vault key, encrypted vault records, receipts, and the audit log.
type DataConfig struct {
	Dir string `koanf:"dir"`
}

// KeyFile returns the path of the vault encryption key.
func (d DataConfig) KeyFile() string { return filepath.Join(d.Dir, "keys", "vault.key") }

// VaultDir returns the directory holding encrypted vault records.
func (d DataConfig) VaultDir() string { return filepath.Join(d.Dir, "vault") }

// ReceiptsDir returns the directory holding scrub receipts.
func (d DataConfig) ReceiptsDir() string { return filepath.Join(d.Dir, "receipts") }

// AuditDir returns the directory holding audit log shards.
func (d DataConfig) AuditDir() string { return filepath.Join(d.Dir, "audit") }

// PolicyConfig holds the clearance policy tables. Tier and action values
// are validated against the policy package at load time.
type PolicyConfig struct {
	// Version labels the policy tables in receipts and audit events.
	Version string `koanf:"version"`

	// Salt is mixed into every identifier hash. The built-in default is
	// fine for trying things out and nothing else.
	Salt Secret `koanf:"salt"`

	// Tiers maps entity labels to clearance tiers, extending the built-in
	// table. Labels are case-insensitive.
	Tiers map[string]string `koanf:"tiers"`

	// Actions overrides the per-tier default action for specific labels.
	Actions map[string]string `koanf:"actions"`
}

// EngineConfig translates the section into the policy engine's config,
// merging the built-in tables with the configured overrides.
func (p PolicyConfig) EngineConfig() *policy.Config {
	cfg := policy.DefaultConfig()
	if p.Version != "" {
		cfg.Version = p.Version
	}
	if p.Salt.IsSet() {
		cfg.Salt = p.Salt.Value()
	}
	for label, tier := range p.Tiers {
		cfg.Tiers[label] = policy.Tier(tier)
	}
	for label, action := range p.Actions {
		cfg.Actions[label] = policy.Action(action)
	}
	return cfg
}

// DetectConfig holds detection rule loading and confidence fusion settings.
type DetectConfig struct {
	// RulesFile points at an optional rule manifest merged over the
	// built-in rules. Empty means built-ins only.
	RulesFile string `koanf:"rules_file"`

	// Fusion selects how rule confidence and an external signal score
	// combine: "max", "avg", or "weighted:<w>".
	Fusion string `koanf:"fusion"`

	// Credentials enables the Gitleaks-backed credential detector
	// alongside the rule set.
	Credentials bool `koanf:"credentials"`

	// AllowlistFile points at a user allowlist TOML excluding known-safe
	// patterns from credential detection. The project `.gitleaks.toml`
	// in the working directory is always consulted.
	AllowlistFile string `koanf:"allowlist_file"`
}

// DescrubConfig holds restore authorization settings.
type DescrubConfig struct {
	// AllowedRoles lists the actor roles permitted to descrub.
	AllowedRoles []string `koanf:"allowed_roles"`

	// RatePerSecond caps descrub operations per second. Zero disables
	// the limiter.
	RatePerSecond float64 `koanf:"rate_per_second"`

	// Burst is the limiter burst size.
	Burst int `koanf:"burst"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, or error.
	Level string `koanf:"level"`

	// Format selects the encoder: json or console.
	Format string `koanf:"format"`
}

// ObservabilityConfig holds OpenTelemetry export settings.
type ObservabilityConfig struct {
	Enabled     bool   `koanf:"enabled"`
	Endpoint    string `koanf:"endpoint"`
	ServiceName string `koanf:"service_name"`
	Insecure    bool   `koanf:"insecure"`
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	// Data defaults
	if cfg.Data.Dir == "" {
		cfg.Data.Dir = defaultDataDir()
	}

	// Policy defaults
	if cfg.Policy.Version == "" {
		cfg.Policy.Version = "builtin"
	}
	if !cfg.Policy.Salt.IsSet() {
		cfg.Policy.Salt = Secret(policy.DefaultSalt)
	}

	// Detect defaults
	if cfg.Detect.Fusion == "" {
		cfg.Detect.Fusion = "max"
	}

	// Descrub defaults
	if len(cfg.Descrub.AllowedRoles) == 0 {
		cfg.Descrub.AllowedRoles = []string{"admin", "auditor"}
	}
	if cfg.Descrub.RatePerSecond == 0 {
		cfg.Descrub.RatePerSecond = 5
	}
	if cfg.Descrub.Burst == 0 {
		cfg.Descrub.Burst = 10
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	// Observability defaults (insecure transport only for the local default)
	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "scrubd"
	}
	if cfg.Observability.Endpoint == "" {
		cfg.Observability.Endpoint = "localhost:4317"
		cfg.Observability.Insecure = true
	}
}

// defaultDataDir returns ~/.config/scrubd/data, or empty when the home
// directory cannot be resolved; Validate rejects the empty value.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "scrubd", "data")
}

// Validate validates the configuration.
//
// Returns an error if:
//   - The data directory is empty
//   - A policy tier or action override does not parse
//   - The fusion mode is unknown
//   - Descrub roles are empty or the limiter settings are negative
//   - The log level or format is unknown
//   - Telemetry is enabled without a service name
func (c *Config) Validate() error {
	if c.Data.Dir == "" {
		return errors.New("data directory is required")
	}

	for label, tier := range c.Policy.Tiers {
		if _, err := policy.ParseTier(tier); err != nil {
			return fmt.Errorf("policy tier for label %s: %w", label, err)
		}
	}
	for label, action := range c.Policy.Actions {
		if _, err := policy.ParseAction(action); err != nil {
			return fmt.Errorf("policy action for label %s: %w", label, err)
		}
	}

	if _, err := detect.ParseFusionMode(c.Detect.Fusion); err != nil {
		return fmt.Errorf("detect fusion: %w", err)
	}

	if len(c.Descrub.AllowedRoles) == 0 {
		return errors.New("descrub allowed_roles must not be empty")
	}
	if c.Descrub.RatePerSecond < 0 {
		return fmt.Errorf("descrub rate_per_second cannot be negative: %v", c.Descrub.RatePerSecond)
	}
	if c.Descrub.Burst < 0 {
		return fmt.Errorf("descrub burst cannot be negative: %d", c.Descrub.Burst)
	}

	switch c.Logging.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level: %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("unknown log format: %q (expected json or console)", c.Logging.Format)
	}

	if c.Observability.Enabled && c.Observability.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}

	return nil
}

// Warnings reports configuration that loads fine but should not survive
// into production. The cmd layer logs each entry at startup.
func (c *Config) Warnings() []string {
	var warnings []string
	if c.Policy.Salt.Value() == policy.DefaultSalt {
		warnings = append(warnings, "policy salt is the built-in default; identifiers are predictable until it is changed")
	}
	return warnings
}
