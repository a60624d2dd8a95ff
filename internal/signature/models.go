// Package signature binds electronic signatures to document approvals.
package signature

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// OutcomeApproved is the only outcome a signature currently records.
const OutcomeApproved = "approved"

// Event is an immutable signature record bound to the version that was
// current when the signer approved.
type Event struct {
	ID            string    `json:"event_id"`
	DocumentID    string    `json:"document_id"`
	VersionID     string    `json:"version_id"`
	SignerID      string    `json:"signer_id"`
	Outcome       string    `json:"outcome"`
	Meaning       string    `json:"meaning"`
	SignatureHash string    `json:"signature_hash"`
	SignedAt      time.Time `json:"signed_at"`
}

// Hash digests the fields the signer attests to.
func Hash(documentID, versionID, signerID, meaning string) string {
	sum := sha256.Sum256([]byte(strings.Join([]string{documentID, versionID, signerID, meaning}, "|")))
	return hex.EncodeToString(sum[:])
}

// Verify reports whether the stored hash still matches the attested fields.
func (e Event) Verify() bool {
	return e.SignatureHash == Hash(e.DocumentID, e.VersionID, e.SignerID, e.Meaning)
}
