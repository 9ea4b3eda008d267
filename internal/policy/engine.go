package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// identifierHashLen is the hex length of the identifier hash suffix.
// External systems grep for this exact shape; never change it.
const identifierHashLen = 10

// DefaultSalt is the out-of-the-box identifier salt. Deployments must
// override it; config validation warns when it survives into production.
const DefaultSalt = "change-me"

// Config holds the policy tables. Build one at startup and treat it as
// read-only afterward.
type Config struct {
	// Salt is mixed into every identifier hash
	Salt string `koanf:"salt"`

	// Version labels the policy tables in receipts and audit events
	Version string `koanf:"version"`

	// Tiers maps labels to clearance tiers; absent labels resolve to the
	// tier requested for the operation
	Tiers map[string]Tier `koanf:"tiers"`

	// Actions overrides the per-tier default action for specific labels
	Actions map[string]Action `koanf:"actions"`
}

// DefaultConfig returns the stock policy tables.
func DefaultConfig() *Config {
	return &Config{
		Salt:    DefaultSalt,
		Version: "builtin",
		Tiers: map[string]Tier{
			"PAN":         TierC4,
			"IBAN":        TierC4,
			"NATIONAL_ID": TierC4,
			"SECRET":      TierC4,
			"EMAIL":       TierC3,
			"PHONE":       TierC3,
			"NAME":        TierC3,
			"DOB":         TierC3,
			"ADDRESS":     TierC3,
			"DATE":        TierC2,
			"YEAR":        TierC2,
			"AMOUNT":      TierC2,
			"CURRENCY":    TierC2,
			"TRANSFER_ID": TierC2,
			"BIC":         TierC2,
			"STATUS":      TierC1,
		},
		Actions: map[string]Action{},
	}
}

// Decision is the policy outcome for one detected label.
type Decision struct {
	Tier   Tier
	Action Action
}

// Engine resolves labels to tiers, actions, and identifiers.
type Engine struct {
	salt    string
	version string
	tiers   map[string]Tier
	actions map[string]Action
}

// NewEngine validates the tables and builds an engine.
func NewEngine(cfg *Config) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Salt == "" {
		return nil, errors.New("identifier salt is required")
	}

	tiers := make(map[string]Tier, len(cfg.Tiers))
	for label, tier := range cfg.Tiers {
		parsed, err := ParseTier(string(tier))
		if err != nil {
			return nil, fmt.Errorf("label %s: %w", label, err)
		}
		tiers[strings.ToUpper(label)] = parsed
	}

	actions := make(map[string]Action, len(cfg.Actions))
	for label, action := range cfg.Actions {
		parsed, err := ParseAction(string(action))
		if err != nil {
			return nil, fmt.Errorf("label %s: %w", label, err)
		}
		actions[strings.ToUpper(label)] = parsed
	}

	version := cfg.Version
	if version == "" {
		version = "unknown"
	}

	return &Engine{
		salt:    cfg.Salt,
		version: version,
		tiers:   tiers,
		actions: actions,
	}, nil
}

// Version reports the policy table version recorded in receipts.
func (e *Engine) Version() string { return e.version }

// Decide resolves the tier and action for a label. Labels in the tier table
// keep their mapped tier regardless of the requested one; unknown labels
// take the requested tier. The action is the label override when present,
// else the tier default: C1/C2 allow, C3 mask, C4 redact.
func (e *Engine) Decide(label string, requested Tier) Decision {
	label = strings.ToUpper(label)

	tier, ok := e.tiers[label]
	if !ok {
		tier = requested
	}

	action, ok := e.actions[label]
	if !ok {
		action = defaultAction(tier)
	}

	return Decision{Tier: tier, Action: action}
}

func defaultAction(tier Tier) Action {
	switch tier {
	case TierC1, TierC2:
		return ActionAllow
	case TierC3:
		return ActionMask
	default:
		return ActionRedact
	}
}

// Identifier computes the deterministic token that replaces a raw value:
// "{TIER}::{LABEL}::{first 10 hex of SHA-256(salt || value)}". Identical
// (tier, label, value, salt) always produce the same identifier, which is
// what lets repeated values correlate across operations.
func (e *Engine) Identifier(tier Tier, label, value string) string {
	sum := sha256.Sum256([]byte(e.salt + value))
	return fmt.Sprintf("%s::%s::%s", tier, strings.ToUpper(label), hex.EncodeToString(sum[:])[:identifierHashLen])
}

// MaskPreview renders the masked presentation of a value: one asterisk per
// character with a minimum width of 3, so short values do not leak their
// exact length.
func MaskPreview(value string) string {
	n := utf8.RuneCountInString(value)
	if n < 3 {
		n = 3
	}
	return strings.Repeat("*", n)
}
