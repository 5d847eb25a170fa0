package checkout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWizard_LinearFlow(t *testing.T) {
	w := NewWizard()
	assert.Equal(t, StepBilling, w.Current())
	assert.False(t, w.Ready())

	require.ErrorIs(t, w.Complete(StepPayment), ErrStepOutOfOrder)
	require.ErrorIs(t, w.Back(), ErrNoPreviousStep)

	require.NoError(t, w.Complete(StepBilling))
	require.NoError(t, w.Complete(StepShipping))
	assert.Equal(t, StepPayment, w.Current())
	assert.Equal(t, 50, w.Progress())

	require.NoError(t, w.Back())
	assert.Equal(t, StepShipping, w.Current())
	require.NoError(t, w.Complete(StepShipping))
	require.NoError(t, w.Complete(StepPayment))
	assert.Equal(t, StepConfirm, w.Current())
	assert.False(t, w.Ready())

	require.NoError(t, w.Complete(StepConfirm))
	assert.True(t, w.Ready())
	assert.Equal(t, 100, w.Progress())
	assert.Equal(t, StepConfirm, w.Current())
}

func TestStep_String(t *testing.T) {
	assert.Equal(t, "billing", StepBilling.String())
	assert.Equal(t, "confirm", StepConfirm.String())
	assert.Equal(t, "unknown", Step(9).String())
}
