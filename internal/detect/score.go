package detect

import "fmt"

// Scored is a candidate annotated with its confidence breakdown.
type Scored struct {
	Candidate

	// Sources maps each contributing source ("rule", "signal") to its score.
	Sources map[string]float64

	// Explanation is a human-readable account of the confidence.
	Explanation string
}

// SignalSource supplies an optional external confidence score for a detected
// value, such as an NER model running outside this process. Scoring never
// calls back into the source's own detection; only the score is fused.
type SignalSource interface {
	// Score returns a confidence in [0, 1] and whether the source has an
	// opinion about this value at all.
	Score(label, value string) (float64, bool)
}

// Scorer annotates candidates with confidence values and explanations.
// It is a pure lookup; construct once and share.
type Scorer struct {
	// Base maps labels to base confidences used when a rule carries none.
	Base map[string]float64

	// Default applies to labels absent from Base.
	Default float64

	// Signal, when set, is fused with the rule confidence via Mode.
	Signal SignalSource

	// Mode selects the fusion: FuseMax, FuseAvg, or weighted.
	Mode FusionMode
}

// baseConfidence is the stock per-label table, used when neither the rule
// nor the Scorer override it.
var baseConfidence = map[string]float64{
	"EMAIL": 0.98,
	"IBAN":  0.99,
	"PAN":   0.99,
	"PHONE": 0.98,
	"NAME":  0.90,
}

// NewScorer returns a Scorer with the stock confidence table.
func NewScorer() *Scorer {
	return &Scorer{
		Base:    baseConfidence,
		Default: 0.90,
		Mode:    FuseMax,
	}
}

// Score annotates every candidate. The rule's own confidence wins when
// present; otherwise the per-label base applies. An external signal, when
// available, is fused with the rule confidence.
func (s *Scorer) Score(cands []Candidate) []Scored {
	out := make([]Scored, 0, len(cands))
	for _, c := range cands {
		conf := c.Confidence
		if conf <= 0 {
			var ok bool
			if conf, ok = s.Base[c.Label]; !ok {
				conf = s.Default
			}
		}

		sc := Scored{
			Candidate:   c,
			Sources:     map[string]float64{"rule": conf},
			Explanation: fmt.Sprintf("rule %s (base %.2f)", c.Label, conf),
		}

		if s.Signal != nil {
			if sig, ok := s.Signal.Score(c.Label, c.Value); ok {
				fused := Fuse(conf, sig, s.Mode)
				sc.Sources["signal"] = sig
				sc.Explanation = fmt.Sprintf("rule %s (base %.2f) fused with signal %.2f (%s)", c.Label, conf, sig, s.Mode)
				conf = fused
			}
		}

		sc.Confidence = conf
		out = append(out, sc)
	}
	return out
}
