// Package detect finds sensitive data candidates in free text.
//
// A Set runs a fixed collection of detectors in priority order and resolves
// overlapping spans with greedy interval scheduling, so the output spans are
// pairwise non-overlapping. Detection is pure: a Set holds only compiled,
// read-only tables and is safe for concurrent use.
package detect

import (
	"errors"
	"fmt"
	"sort"
)

// Candidate is a detected span before any policy decision is applied.
type Candidate struct {
	// Label is the entity label (e.g. "IBAN", "EMAIL"), always uppercase.
	Label string

	// Start and End delimit the span as [Start, End) byte offsets.
	Start int
	End   int

	// Value is the raw matched text. It never leaves the scrub pipeline
	// except encrypted inside the vault and receipt.
	Value string

	// DetectorID names the rule that produced this candidate.
	DetectorID string

	// Confidence is the base rule confidence in [0, 1].
	Confidence float64
}

// Detector produces candidate spans from raw text.
type Detector interface {
	// Name is a stable identifier for the detector.
	Name() string

	// Priority orders overlap resolution; higher priority claims spans first.
	Priority() int

	// Scan returns all candidates found in text.
	Scan(text string) []Candidate
}

// Set is an ordered collection of detectors with overlap resolution.
type Set struct {
	detectors []Detector
}

// NewSet compiles the given rules into regex detectors and appends any extra
// detectors (such as a credential detector). At least one detector is
// required.
func NewSet(rules []Rule, extra ...Detector) (*Set, error) {
	detectors := make([]Detector, 0, len(rules)+len(extra))
	for _, rule := range rules {
		d, err := newRegexDetector(rule)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", rule.ID, err)
		}
		detectors = append(detectors, d)
	}
	detectors = append(detectors, extra...)
	if len(detectors) == 0 {
		return nil, errors.New("at least one detector is required")
	}
	return &Set{detectors: detectors}, nil
}

// Scan runs every detector and returns non-overlapping candidates sorted by
// (start, end, label).
func (s *Set) Scan(text string) []Candidate {
	var all []ranked
	for _, d := range s.detectors {
		prio := d.Priority()
		for _, c := range d.Scan(text) {
			if c.Start < 0 || c.Start >= c.End || c.End > len(text) {
				continue
			}
			all = append(all, ranked{Candidate: c, priority: prio})
		}
	}

	accepted := reduce(all)

	sort.Slice(accepted, func(i, j int) bool {
		a, b := accepted[i], accepted[j]
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		if a.End != b.End {
			return a.End < b.End
		}
		return a.Label < b.Label
	})
	return accepted
}

// ranked pairs a candidate with its detector's priority for overlap
// resolution.
type ranked struct {
	Candidate
	priority int
}

// reduce keeps the highest-priority claim on each region of text. Candidates
// are considered in priority order; ties break by span length (longer first),
// then start offset, then label for determinism.
func reduce(cands []ranked) []Candidate {
	sort.Slice(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.priority != b.priority {
			return a.priority > b.priority
		}
		if al, bl := a.End-a.Start, b.End-b.Start; al != bl {
			return al > bl
		}
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		return a.Label < b.Label
	})

	accepted := make([]Candidate, 0, len(cands))
	for _, c := range cands {
		if overlapsAny(c.Candidate, accepted) {
			continue
		}
		accepted = append(accepted, c.Candidate)
	}
	return accepted
}

func overlapsAny(c Candidate, accepted []Candidate) bool {
	for _, a := range accepted {
		if c.Start < a.End && a.Start < c.End {
			return true
		}
	}
	return false
}
