package detect

import (
	"fmt"
	"regexp"
	"strings"

	gitleaksConfig "github.com/zricethezav/gitleaks/v8/config"
	gitleaksDetect "github.com/zricethezav/gitleaks/v8/detect"
	gitleaksRegexp "github.com/zricethezav/gitleaks/v8/regexp"
)

// LabelSecret is the entity label credential findings are reported under.
const LabelSecret = "SECRET"

// CredentialConfig configures the Gitleaks-backed credential detector.
type CredentialConfig struct {
	// Priority orders overlap resolution against the regex rules
	// (default: 40, below every structured financial detector)
	Priority int `koanf:"priority"`

	// Confidence is the base confidence for credential findings
	// (default: 0.95)
	Confidence float64 `koanf:"confidence"`

	// Allowlist excludes known-safe patterns from detection
	Allowlist *Allowlist `koanf:"allowlist"`
}

// CredentialDetector scans for leaked credentials (API keys, tokens, private
// keys) using the Gitleaks SDK's default ruleset.
type CredentialDetector struct {
	detector   *gitleaksDetect.Detector
	priority   int
	confidence float64
}

// NewCredentialDetector builds the Gitleaks detector once; the instance is
// safe for concurrent scans.
func NewCredentialDetector(cfg *CredentialConfig) (*CredentialDetector, error) {
	if cfg == nil {
		cfg = &CredentialConfig{}
	}
	if cfg.Priority == 0 {
		cfg.Priority = 40
	}
	if cfg.Confidence == 0 {
		cfg.Confidence = 0.95
	}

	detector, err := gitleaksDetect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to build gitleaks detector: %w", err)
	}
	if cfg.Allowlist != nil {
		applyAllowlist(&detector.Config, cfg.Allowlist)
	}

	return &CredentialDetector{
		detector:   detector,
		priority:   cfg.Priority,
		confidence: cfg.Confidence,
	}, nil
}

func (d *CredentialDetector) Name() string  { return "credential_rule" }
func (d *CredentialDetector) Priority() int { return d.priority }

// Scan maps Gitleaks findings onto candidate spans. Findings whose secret
// cannot be located in the text are dropped rather than guessed at.
func (d *CredentialDetector) Scan(text string) []Candidate {
	findings := d.detector.DetectString(text)
	if len(findings) == 0 {
		return nil
	}

	lines := strings.Split(text, "\n")
	offsets := make([]int, len(lines))
	pos := 0
	for i, line := range lines {
		offsets[i] = pos
		pos += len(line) + 1
	}

	cands := make([]Candidate, 0, len(findings))
	for _, f := range findings {
		if f.Secret == "" {
			continue
		}

		start := -1
		if f.StartLine >= 1 && f.StartLine <= len(lines) {
			if col := strings.Index(lines[f.StartLine-1], f.Secret); col >= 0 {
				start = offsets[f.StartLine-1] + col
			}
		}
		if start < 0 {
			// Multi-line or re-flowed finding; fall back to a direct search.
			start = strings.Index(text, f.Secret)
		}
		if start < 0 {
			continue
		}

		cands = append(cands, Candidate{
			Label:      LabelSecret,
			Start:      start,
			End:        start + len(f.Secret),
			Value:      f.Secret,
			DetectorID: "gitleaks:" + f.RuleID,
			Confidence: d.confidence,
		})
	}
	return cands
}

// applyAllowlist merges allowlist patterns into the Gitleaks config.
func applyAllowlist(cfg *gitleaksConfig.Config, allowlist *Allowlist) {
	global := &gitleaksConfig.Allowlist{
		Description: "scrubd user/project allowlist",
	}

	// Patterns are validated when the allowlist is loaded; a failure here is
	// a programming error.
	for _, pattern := range allowlist.Paths {
		re, err := regexp.Compile(pattern)
		if err != nil {
			panic("BUG: pre-validated regex pattern failed to compile: " + pattern + ": " + err.Error())
		}
		global.Paths = append(global.Paths, (*gitleaksRegexp.Regexp)(re))
	}
	for _, pattern := range allowlist.Regexes {
		re, err := regexp.Compile(pattern)
		if err != nil {
			panic("BUG: pre-validated regex pattern failed to compile: " + pattern + ": " + err.Error())
		}
		global.Regexes = append(global.Regexes, (*gitleaksRegexp.Regexp)(re))
	}
	global.StopWords = append(global.StopWords, allowlist.Regexes...)

	cfg.Allowlists = append(cfg.Allowlists, global)
}
