package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStateTransitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to State
		ok       bool
	}{
		{StateInit, StateStreaming, true},
		{StateStreaming, StateDraining, true},
		{StateStreaming, StateAborted, true},
		{StateDraining, StateFlushing, true},
		{StateDraining, StateAborted, true},
		{StateFlushing, StateDone, true},
		{StateInit, StateDone, false},
		{StateStreaming, StateFlushing, false},
		{StateDone, StateStreaming, false},
		{StateAborted, StateFlushing, false},
	}
	for _, tc := range tests {
		require.Equal(t, tc.ok, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
	require.True(t, StateDone.Terminal())
	require.True(t, StateAborted.Terminal())
	require.False(t, StateFlushing.Terminal())
}
