// Package policy maps detected labels onto clearance tiers, actions, and
// deterministic identifiers.
//
// Policy decisions are pure lookups over tables built once at startup.
// Reconfiguring requires a fresh Engine.
package policy

import (
	"fmt"
	"sort"
	"strings"
)

// Tier is an ordered clearance classification. C1 is the least restrictive,
// C4 the most.
type Tier string

const (
	TierC1 Tier = "C1"
	TierC2 Tier = "C2"
	TierC3 Tier = "C3"
	TierC4 Tier = "C4"
)

// ParseTier parses a tier string, case-insensitively.
func ParseTier(s string) (Tier, error) {
	switch Tier(strings.ToUpper(strings.TrimSpace(s))) {
	case TierC1:
		return TierC1, nil
	case TierC2:
		return TierC2, nil
	case TierC3:
		return TierC3, nil
	case TierC4:
		return TierC4, nil
	default:
		return "", fmt.Errorf("invalid clearance tier %q", s)
	}
}

// Rank orders tiers for clearance comparisons. Unknown tiers rank as C4 so a
// corrupted tier value gates as the most restricted, never as public.
func (t Tier) Rank() int {
	switch t {
	case TierC1:
		return 1
	case TierC2:
		return 2
	case TierC3:
		return 3
	default:
		return 4
	}
}

// Covers reports whether clearance t is sufficient to reveal data at tier
// other.
func (t Tier) Covers(other Tier) bool {
	return other.Rank() <= t.Rank()
}

// Action is what the caller should do with a detected value's presentation.
// Every action substitutes the identifier into scrubbed text; the action
// only changes the metadata surfaced alongside it.
type Action string

const (
	ActionAllow  Action = "allow"
	ActionMask   Action = "mask"
	ActionRedact Action = "redact"
)

// ParseAction parses an action string, case-insensitively.
func ParseAction(s string) (Action, error) {
	switch Action(strings.ToLower(strings.TrimSpace(s))) {
	case ActionAllow:
		return ActionAllow, nil
	case ActionMask:
		return ActionMask, nil
	case ActionRedact:
		return ActionRedact, nil
	default:
		return "", fmt.Errorf("invalid action %q", s)
	}
}

// Span delimits a detected value in the original text as [Start, End).
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Entity is the public view of one detection. It carries no raw value; the
// raw value exists only encrypted inside the vault and receipt.
type Entity struct {
	Identifier        string             `json:"identifier"`
	Label             string             `json:"label"`
	DetectorID        string             `json:"detector_id"`
	Tier              Tier               `json:"clearance_tier"`
	Action            Action             `json:"action"`
	Confidence        float64            `json:"confidence"`
	Span              Span               `json:"span"`
	ConfidenceSources map[string]float64 `json:"confidence_sources,omitempty"`
	Explanation       string             `json:"explanation,omitempty"`

	// MaskPreview is set only for masked entities: asterisks matching the
	// original value's length (minimum width 3).
	MaskPreview string `json:"mask_preview,omitempty"`

	// Sheet and Cell round-trip a tabular source location, when the caller
	// supplied one.
	Sheet string `json:"sheet,omitempty"`
	Cell  string `json:"cell,omitempty"`
}

// SortEntities orders entities for presentation: tier descending, confidence
// descending, then label and identifier ascending. The ordering is total, so
// repeated runs over the same input diff cleanly.
func SortEntities(entities []Entity) {
	sort.SliceStable(entities, func(i, j int) bool {
		a, b := entities[i], entities[j]
		if a.Tier.Rank() != b.Tier.Rank() {
			return a.Tier.Rank() > b.Tier.Rank()
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.Label != b.Label {
			return a.Label < b.Label
		}
		return a.Identifier < b.Identifier
	})
}

// IdentifierTier extracts the tier prefix from an identifier token
// ("C4::PAN::ab12cd34ef"). Malformed identifiers report C4, failing closed.
func IdentifierTier(identifier string) Tier {
	prefix, _, ok := strings.Cut(identifier, "::")
	if !ok {
		return TierC4
	}
	tier, err := ParseTier(prefix)
	if err != nil {
		return TierC4
	}
	return tier
}
