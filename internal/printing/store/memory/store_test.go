package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edms/internal/printing"
	"edms/pkg/platform/tx"
)

func TestRolledBackCreateLeavesInterleavedEvents(t *testing.T) {
	store := New()
	runner := tx.NewMemory()
	ctx := context.Background()

	err := runner.RunInTx(ctx, "SOP-1", func(txCtx context.Context) error {
		require.NoError(t, store.Create(txCtx, printing.Event{ID: "prt-a", DocumentID: "SOP-1", Quantity: 1}))
		// Another document's request commits while this unit of work is open.
		require.NoError(t, runner.RunInTx(ctx, "SOP-2", func(other context.Context) error {
			return store.Create(other, printing.Event{ID: "prt-b", DocumentID: "SOP-2", Quantity: 1})
		}))
		return errors.New("audit append failed")
	})
	require.Error(t, err)

	assert.Equal(t, []string{"prt-b"}, store.order)
	stale, err := store.ListByDocument(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, stale)

	require.NoError(t, store.Create(ctx, printing.Event{ID: "prt-a", DocumentID: "SOP-1", Quantity: 1}))
	events, err := store.ListByDocument(ctx, "SOP-1")
	require.NoError(t, err)
	assert.Len(t, events, 1)
}
