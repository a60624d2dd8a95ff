package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "edms/pkg/domain-errors"
)

func buildChain(n int) []Entry {
	var out []Entry
	prev := GenesisHash
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 1; i <= n; i++ {
		e := Entry{
			ID:         "e" + string(rune('0'+i)),
			DocumentID: "SOP-1",
			Sequence:   int64(i),
			ActorID:    "alice",
			Action:     ActionVersionCreated,
			Metadata:   map[string]string{"a": "1", "b": "2"},
			OccurredAt: at.Add(time.Duration(i) * time.Second),
			PrevHash:   prev,
		}
		e.EntryHash = ComputeHash(e)
		prev = e.EntryHash
		out = append(out, e)
	}
	return out
}

func TestComputeHashIgnoresMapOrder(t *testing.T) {
	a := Entry{ID: "x", Metadata: map[string]string{"from": "draft", "to": "review", "v": "1"}}
	b := Entry{ID: "x", Metadata: map[string]string{"v": "1", "to": "review", "from": "draft"}}
	assert.Equal(t, ComputeHash(a), ComputeHash(b))
}

func TestComputeHashSeparatesFields(t *testing.T) {
	a := Entry{ActorID: "ab", DocumentID: "c"}
	b := Entry{ActorID: "a", DocumentID: "bc"}
	assert.NotEqual(t, ComputeHash(a), ComputeHash(b))
}

func TestVerifyChain(t *testing.T) {
	t.Run("intact chain verifies", func(t *testing.T) {
		require.NoError(t, VerifyChain(buildChain(4)))
	})

	t.Run("altered metadata is detected", func(t *testing.T) {
		chain := buildChain(3)
		chain[1].Metadata["a"] = "tampered"
		err := VerifyChain(chain)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeIntegrity))
	})

	t.Run("removed entry is detected", func(t *testing.T) {
		chain := buildChain(3)
		chain = append(chain[:1], chain[2:]...)
		err := VerifyChain(chain)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeIntegrity))
	})

	t.Run("rehashed entry breaks the link", func(t *testing.T) {
		chain := buildChain(3)
		chain[1].ActorID = "mallory"
		chain[1].EntryHash = ComputeHash(chain[1])
		err := VerifyChain(chain)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeIntegrity))
	})
}
