package detect

import (
	"fmt"
	"strconv"
	"strings"
)

// FusionMode selects how a rule confidence and an external signal score are
// combined. The zero value behaves like FuseMax.
type FusionMode struct {
	kind   string
	weight float64
}

var (
	// FuseMax takes the higher of the two scores.
	FuseMax = FusionMode{kind: "max"}

	// FuseAvg takes the arithmetic mean.
	FuseAvg = FusionMode{kind: "avg"}
)

// FuseWeighted blends rule and signal as w*rule + (1-w)*signal, with w
// clamped to [0, 1].
func FuseWeighted(w float64) FusionMode {
	if w < 0 {
		w = 0
	}
	if w > 1 {
		w = 1
	}
	return FusionMode{kind: "weighted", weight: w}
}

// ParseFusionMode parses "max", "avg", or "weighted:<w>".
func ParseFusionMode(s string) (FusionMode, error) {
	switch {
	case s == "" || s == "max":
		return FuseMax, nil
	case s == "avg":
		return FuseAvg, nil
	case strings.HasPrefix(s, "weighted:"):
		w, err := strconv.ParseFloat(strings.TrimPrefix(s, "weighted:"), 64)
		if err != nil {
			return FusionMode{}, fmt.Errorf("invalid fusion weight in %q: %w", s, err)
		}
		return FuseWeighted(w), nil
	default:
		return FusionMode{}, fmt.Errorf("unknown fusion mode %q", s)
	}
}

func (m FusionMode) String() string {
	if m.kind == "weighted" {
		return fmt.Sprintf("weighted:%g", m.weight)
	}
	if m.kind == "" {
		return "max"
	}
	return m.kind
}

// Fuse combines a rule confidence with an external signal score.
func Fuse(rule, signal float64, mode FusionMode) float64 {
	switch mode.kind {
	case "avg":
		return (rule + signal) / 2
	case "weighted":
		return mode.weight*rule + (1-mode.weight)*signal
	default:
		if signal > rule {
			return signal
		}
		return rule
	}
}
