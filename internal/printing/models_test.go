package printing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "edms/pkg/domain-errors"
)

func TestIssueReturnsNewSnapshot(t *testing.T) {
	ev := Event{ID: "prt-1", Quantity: 3}
	next := ev.Issue([]int{1, 2})

	assert.Equal(t, 0, ev.IssuedQuantity)
	assert.Nil(t, ev.CopyNumbers)
	assert.Equal(t, 2, next.IssuedQuantity)
	assert.Equal(t, 1, next.Remaining())
}

func TestCanIssue(t *testing.T) {
	ev := Event{ID: "prt-1", Quantity: 3, IssuedQuantity: 2, CopyNumbers: []int{1, 2}}

	require.NoError(t, ev.CanIssue(1))

	err := ev.CanIssue(2)
	require.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	remaining, ok := dErrors.Detail(err, "remaining")
	require.True(t, ok)
	assert.Equal(t, 1, remaining)

	assert.True(t, dErrors.HasCode(ev.CanIssue(-1), dErrors.CodeValidation))
}

func TestReconcileIgnoresOrderAndDuplicates(t *testing.T) {
	ev := Event{ID: "prt-1", Quantity: 3, IssuedQuantity: 3, CopyNumbers: []int{1, 2, 3}}
	returned := []int{3, 1, 2, 2}

	require.NoError(t, ev.CanReconcile(returned))
	closed := ev.Reconcile(returned, time.Date(2026, 6, 2, 0, 0, 0, 0, time.UTC))

	assert.False(t, ev.Reconciled)
	assert.True(t, closed.Reconciled)
	assert.Equal(t, []int{1, 2, 3}, closed.ReturnedCopies)
	assert.Equal(t, []int{3, 1, 2, 2}, returned, "input is not reordered")
}

func TestReconcileWithNothingIssued(t *testing.T) {
	ev := Event{ID: "prt-1", Quantity: 3}
	assert.NoError(t, ev.CanReconcile(nil))
}
