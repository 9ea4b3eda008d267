// Package audit is the append-only hash-chained ledger of every scrub,
// descrub, and denied attempt. Each event's hash covers the previous
// event's hash, so mutating any historical record invalidates every
// record after it.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/scrubd/internal/policy"
)

// Event types recorded by the pipeline.
const (
	EventScrub        = "scrub"
	EventDescrub      = "descrub"
	EventAccessDenied = "access_denied"
)

// genesisHash anchors the chain before the first event.
var genesisHash = strings.Repeat("0", 64)

// Event is one ledger record. PrevHash and Hash are assigned by Append;
// callers set the rest.
type Event struct {
	TS          time.Time      `json:"ts"`
	EventType   string         `json:"event_type"`
	OperationID string         `json:"operation_id,omitempty"`
	PrevHash    string         `json:"prev_hash"`
	Hash        string         `json:"hash"`
	Payload     map[string]any `json:"payload"`
}

// canonical serializes an event without its hash field, with
// deterministic key order. Verification re-derives exactly these bytes
// from a stored record, so only JSON-stable values belong in payloads.
func canonical(e Event) ([]byte, error) {
	m := map[string]any{
		"ts":         e.TS.Format(time.RFC3339Nano),
		"event_type": e.EventType,
		"prev_hash":  e.PrevHash,
		"payload":    e.Payload,
	}
	if e.OperationID != "" {
		m["operation_id"] = e.OperationID
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize event: %w", err)
	}
	return data, nil
}

// chainHash computes an event's hash from its predecessor's hash and its
// canonical form.
func chainHash(prevHash string, canonicalEvent []byte) string {
	h := sha256.New()
	h.Write([]byte(prevHash))
	h.Write(canonicalEvent)
	return hex.EncodeToString(h.Sum(nil))
}

// EntitySummary condenses a scrub's entities into an audit payload value.
// Raw values and identifiers stay out of the ledger; only counts go in.
func EntitySummary(entities []policy.Entity) map[string]any {
	byLabel := map[string]int{}
	byTier := map[string]int{}
	byAction := map[string]int{}
	for _, e := range entities {
		byLabel[e.Label]++
		byTier[string(e.Tier)]++
		byAction[string(e.Action)]++
	}
	return map[string]any{
		"entities_total": len(entities),
		"by_label":       byLabel,
		"by_tier":        byTier,
		"by_action":      byAction,
	}
}
