// internal/config/manifest.go
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/fyrsmithlabs/scrubd/internal/detect"
	"github.com/fyrsmithlabs/scrubd/internal/policy"
)

// ManifestRule is one entry in a rule manifest: a detection rule plus the
// clearance tier and action its label should map to.
type ManifestRule struct {
	detect.Rule `yaml:",inline"`

	// Tier is the clearance tier for the rule's label, empty to leave the
	// policy tables untouched.
	Tier string `yaml:"tier"`

	// Action overrides the per-tier default action for the rule's label.
	Action string `yaml:"action"`
}

// manifestFile is the on-disk manifest layout.
type manifestFile struct {
	Version string         `yaml:"version"`
	Rules   []ManifestRule `yaml:"rules"`
}

// RuleSet is the outcome of loading a manifest over the built-in rules.
type RuleSet struct {
	// Version labels the manifest, recorded alongside the policy version.
	Version string

	// Rules is the merged rule list: built-ins with manifest overrides
	// applied by rule ID, then new manifest rules in file order.
	Rules []detect.Rule

	// Tiers and Actions collect the per-label policy the manifest carries.
	Tiers   map[string]string
	Actions map[string]string

	// Report records what was skipped and why.
	Report LoadReport
}

// LoadReport records manifest entries rejected during loading. A skipped
// rule never aborts the load; the caller logs each entry as a warning.
type LoadReport struct {
	Loaded  int
	Skipped []SkippedRule
}

// SkippedRule names one rejected manifest entry.
type SkippedRule struct {
	ID     string
	Reason string
}

// LoadManifest reads a YAML rule manifest and merges it over the built-in
// rules. Malformed entries are skipped and reported, never fatal; a
// missing or unreadable file is an error since the path was configured
// explicitly. The manifest holds patterns, not secrets, so only its size
// is checked.
func LoadManifest(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule manifest: %w", err)
	}
	if len(data) > maxConfigFileSize {
		return nil, fmt.Errorf("rule manifest too large: %d bytes (max %d)", len(data), maxConfigFileSize)
	}

	var mf manifestFile
	if err := yaml.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("failed to parse rule manifest %s: %w", path, err)
	}

	rs := &RuleSet{
		Version: mf.Version,
		Rules:   detect.DefaultRules(),
		Tiers:   make(map[string]string),
		Actions: make(map[string]string),
	}

	index := make(map[string]int, len(rs.Rules))
	for i, r := range rs.Rules {
		index[r.ID] = i
	}

	for _, mr := range mf.Rules {
		if reason := vetRule(mr); reason != "" {
			rs.Report.Skipped = append(rs.Report.Skipped, SkippedRule{ID: mr.ID, Reason: reason})
			continue
		}

		if i, ok := index[mr.ID]; ok {
			rs.Rules[i] = mr.Rule
		} else {
			index[mr.ID] = len(rs.Rules)
			rs.Rules = append(rs.Rules, mr.Rule)
		}
		if mr.Tier != "" {
			rs.Tiers[mr.Label] = mr.Tier
		}
		if mr.Action != "" {
			rs.Actions[mr.Label] = mr.Action
		}
		rs.Report.Loaded++
	}

	return rs, nil
}

// vetRule checks one manifest entry, returning an empty string when it is
// usable and the skip reason otherwise. Compiling a single-rule set
// exercises the same validation the detector set applies at startup.
func vetRule(mr ManifestRule) string {
	if _, err := detect.NewSet([]detect.Rule{mr.Rule}); err != nil {
		return err.Error()
	}
	if mr.Tier != "" {
		if _, err := policy.ParseTier(mr.Tier); err != nil {
			return err.Error()
		}
	}
	if mr.Action != "" {
		if _, err := policy.ParseAction(mr.Action); err != nil {
			return err.Error()
		}
	}
	return ""
}
