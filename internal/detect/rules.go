package detect

import (
	"fmt"
	"regexp"
	"strings"
)

// Rule defines a regex detection rule.
type Rule struct {
	// ID is the unique identifier for this rule
	ID string `koanf:"id"`

	// Label is the entity label the rule emits (uppercased)
	Label string `koanf:"label"`

	// Pattern is the regex pattern to match
	Pattern string `koanf:"pattern"`

	// Group selects the capture group holding the value (0 = whole match)
	Group int `koanf:"group"`

	// Validator names a registered checksum/format validator, empty for none
	Validator string `koanf:"validator"`

	// Confidence is the base rule confidence in [0, 1]
	Confidence float64 `koanf:"confidence"`

	// Priority orders overlap resolution; higher claims spans first
	Priority int `koanf:"priority"`
}

// regexDetector is a Detector backed by one compiled rule.
type regexDetector struct {
	rule      Rule
	pattern   *regexp.Regexp
	validator ValidatorFunc
}

func newRegexDetector(rule Rule) (*regexDetector, error) {
	if rule.ID == "" {
		return nil, fmt.Errorf("rule ID is required")
	}
	if rule.Label == "" {
		return nil, fmt.Errorf("label is required")
	}
	if rule.Pattern == "" {
		return nil, fmt.Errorf("pattern is required")
	}

	pattern, err := regexp.Compile(rule.Pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern: %w", err)
	}
	if rule.Group < 0 || rule.Group > pattern.NumSubexp() {
		return nil, fmt.Errorf("group %d out of range (pattern has %d)", rule.Group, pattern.NumSubexp())
	}

	validator, err := lookupValidator(rule.Validator)
	if err != nil {
		return nil, err
	}

	rule.Label = strings.ToUpper(rule.Label)
	return &regexDetector{
		rule:      rule,
		pattern:   pattern,
		validator: validator,
	}, nil
}

func (d *regexDetector) Name() string  { return d.rule.ID }
func (d *regexDetector) Priority() int { return d.rule.Priority }

// Scan returns every pattern match whose value passes the rule's validator.
// Checksum failures drop the candidate silently.
func (d *regexDetector) Scan(text string) []Candidate {
	matches := d.pattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return nil
	}

	cands := make([]Candidate, 0, len(matches))
	for _, m := range matches {
		start, end := m[2*d.rule.Group], m[2*d.rule.Group+1]
		if start < 0 || end < 0 {
			continue
		}
		value := text[start:end]
		if d.validator != nil && !d.validator(value) {
			continue
		}
		cands = append(cands, Candidate{
			Label:      d.rule.Label,
			Start:      start,
			End:        end,
			Value:      value,
			DetectorID: d.rule.ID,
			Confidence: d.rule.Confidence,
		})
	}
	return cands
}

// DefaultRules returns the built-in detection rules in priority order,
// highest specificity first. The policy manifest can extend or override
// these by rule ID.
func DefaultRules() []Rule {
	return []Rule{
		// Bank account numbers (checksummed, near-zero false positives)
		{
			ID:         "iban_rule",
			Label:      "IBAN",
			Pattern:    `\b[A-Z]{2}\d{2}(?:[ ]?[A-Z0-9]){11,30}\b`,
			Validator:  "iban",
			Confidence: 0.99,
			Priority:   120,
		},
		{
			ID:         "bic_rule",
			Label:      "BIC",
			Pattern:    `\b[A-Z]{6}[A-Z0-9]{2}(?:[A-Z0-9]{3})?\b`,
			Confidence: 0.85,
			Priority:   110,
		},

		// Contact info
		{
			ID:         "email_rule",
			Label:      "EMAIL",
			Pattern:    `\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`,
			Confidence: 0.98,
			Priority:   100,
		},

		// Dates: a birth date in context outranks a bare date, which
		// outranks a bare year
		{
			ID:         "dob_rule",
			Label:      "DOB",
			Pattern:    `(?i)\b(?:date of birth|geboortedatum|date de naissance|dob|born(?: on)?)\b[ \t]*[:\-]?[ \t]*(\d{4}-\d{2}-\d{2}|\d{2}[-/]\d{2}[-/]\d{4})`,
			Group:      1,
			Validator:  "date",
			Confidence: 0.95,
			Priority:   95,
		},
		{
			ID:         "date_rule",
			Label:      "DATE",
			Pattern:    `\b(?:\d{4}-\d{2}-\d{2}|\d{2}[-/]\d{2}[-/]\d{4})\b`,
			Validator:  "date",
			Confidence: 0.90,
			Priority:   90,
		},
		{
			ID:         "year_rule",
			Label:      "YEAR",
			Pattern:    `\b(?:19|20)\d{2}\b`,
			Confidence: 0.60,
			Priority:   85,
		},

		// Money: amounts paired with a currency marker, then bare markers
		{
			ID:         "amount_rule",
			Label:      "AMOUNT",
			Pattern:    `(?:€|\$|£|\b(?:EUR|USD|GBP)\b)[ \t]?(\d{1,3}(?:[.,]\d{3})*(?:[.,]\d{2})?)`,
			Group:      1,
			Confidence: 0.85,
			Priority:   80,
		},
		{
			ID:         "amount_trailing_rule",
			Label:      "AMOUNT",
			Pattern:    `(\d{1,3}(?:[.,]\d{3})*(?:[.,]\d{2})?)[ \t]?(?:€|\b(?:EUR|USD|GBP)\b)`,
			Group:      1,
			Confidence: 0.85,
			Priority:   80,
		},
		{
			ID:         "currency_rule",
			Label:      "CURRENCY",
			Pattern:    `[€$£]|\b(?:EUR|USD|GBP|CHF)\b`,
			Confidence: 0.80,
			Priority:   75,
		},

		// Card and national identifiers (checksummed)
		{
			ID:         "pan_rule",
			Label:      "PAN",
			Pattern:    `\b\d(?:[ -]?\d){12,18}\b`,
			Validator:  "luhn",
			Confidence: 0.99,
			Priority:   70,
		},
		{
			ID:         "national_id_rule",
			Label:      "NATIONAL_ID",
			Pattern:    `\b\d{2}\.?\d{2}\.?\d{2}[-. ]?\d{3}[-. ]?\d{2}\b`,
			Validator:  "rrn",
			Confidence: 0.97,
			Priority:   65,
		},

		// Transaction context
		{
			ID:         "status_rule",
			Label:      "STATUS",
			Pattern:    `(?i)\b(?:approved|declined|rejected|pending|settled|failed|refunded|blocked)\b`,
			Confidence: 0.70,
			Priority:   60,
		},
		{
			ID:         "transfer_id_rule",
			Label:      "TRANSFER_ID",
			Pattern:    `\b(?:TRX|TRF|REF|TXN)[-_]?[A-Z0-9]{5,}\b`,
			Confidence: 0.90,
			Priority:   55,
		},

		// Loose patterns last so structured detectors claim spans first
		{
			ID:         "phone_rule",
			Label:      "PHONE",
			Pattern:    `(?:\+|00)\d{1,3}[ .\-]?\(?\d{1,4}\)?(?:[ .\-]?\d{2,4}){2,4}\b|\b0\d{1,3}[ .\-/]?\d{2,3}(?:[ .\-]?\d{2,3}){2,3}\b`,
			Confidence: 0.98,
			Priority:   50,
		},
		{
			ID:         "name_rule",
			Label:      "NAME",
			Pattern:    `\b[A-Z][a-z]+ [A-Z][a-z]+\b`,
			Confidence: 0.90,
			Priority:   45,
		},
	}
}
