// Package receipt persists the immutable record of a scrub operation:
// the scrubbed text, the placeholder map, and every detected entity with
// its raw value encrypted. A receipt is written exactly once and is the
// sole input, together with the vault, for restoring the original text.
package receipt

import (
	"time"

	"github.com/fyrsmithlabs/scrubd/internal/policy"
)

// Hashes carries the content hashes of both sides of a scrub.
type Hashes struct {
	Original string `json:"original"`
	Scrubbed string `json:"scrubbed"`
}

// Entity is the receipt view of a detected entity. It extends the shared
// entity shape with the encrypted raw value; the plaintext never appears
// in a receipt.
type Entity struct {
	policy.Entity

	OriginalEncrypted string `json:"original_encrypted"`
}

// Receipt is the persisted artifact of one scrub operation. The schema is
// stable; other tools parse these files.
type Receipt struct {
	OperationID    string            `json:"operation_id"`
	CreatedAt      time.Time         `json:"created_at"`
	Hashes         Hashes            `json:"hashes"`
	ClearanceTier  policy.Tier       `json:"clearance_tier"`
	Filename       string            `json:"filename,omitempty"`
	PolicyVersion  string            `json:"policy_version"`
	PlaceholderMap map[string]string `json:"placeholder_map"`
	ScrubbedText   string            `json:"scrubbed_text"`
	Entities       []Entity          `json:"entities"`
}
