package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	dErrors "edms/pkg/domain-errors"
)

// GenesisHash is the PrevHash of the first entry of every document.
const GenesisHash = ""

// ComputeHash digests the canonical form of an entry, excluding EntryHash.
// Metadata keys are sorted so map order never changes the digest.
func ComputeHash(e Entry) string {
	var b strings.Builder
	field := func(v string) {
		b.WriteString(strconv.Itoa(len(v)))
		b.WriteByte(':')
		b.WriteString(v)
		b.WriteByte('|')
	}
	field(e.ID)
	field(e.DocumentID)
	field(strconv.FormatInt(e.Sequence, 10))
	field(e.ActorID)
	field(string(e.Action))
	field(e.OccurredAt.UTC().Format(time.RFC3339Nano))
	field(e.PrevHash)

	keys := make([]string, 0, len(e.Metadata))
	for k := range e.Metadata {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		field(k)
		field(e.Metadata[k])
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// VerifyChain checks sequence continuity, hash linkage and per-entry digests
// of one document's entries, which must be ordered by Sequence.
func VerifyChain(entries []Entry) error {
	prev := GenesisHash
	for i, e := range entries {
		want := int64(i + 1)
		if e.Sequence != want {
			return dErrors.Newf(dErrors.CodeIntegrity, "audit chain gap: expected sequence %d, got %d", want, e.Sequence).
				With("document_id", e.DocumentID)
		}
		if e.PrevHash != prev {
			return dErrors.Newf(dErrors.CodeIntegrity, "audit chain broken at sequence %d", e.Sequence).
				With("document_id", e.DocumentID)
		}
		if got := ComputeHash(e); got != e.EntryHash {
			return dErrors.New(dErrors.CodeIntegrity, fmt.Sprintf("audit entry %s was altered", e.ID)).
				With("document_id", e.DocumentID)
		}
		prev = e.EntryHash
	}
	return nil
}
