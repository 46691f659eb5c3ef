package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to RecognitionStatus
		want     bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusPending, StatusCompleted, false},
		{StatusPending, StatusFailed, false},
		{StatusProcessing, StatusCompleted, true},
		{StatusProcessing, StatusFailed, true},
		{StatusProcessing, StatusProcessing, true},
		{StatusProcessing, StatusPending, false},
		{StatusFailed, StatusProcessing, true},
		{StatusFailed, StatusCompleted, false},
		{StatusCompleted, StatusProcessing, false},
		{StatusCompleted, StatusFailed, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}
}

func TestStatusValidAndTerminal(t *testing.T) {
	assert.True(t, StatusPending.Valid())
	assert.False(t, RecognitionStatus("done").Valid())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.False(t, StatusProcessing.Terminal())
}

func TestPlacementDate(t *testing.T) {
	p := &Photo{UploadedAt: time.Date(2024, 3, 9, 23, 59, 1, 0, time.UTC)}
	assert.Equal(t, time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC), p.PlacementDate())
}

func TestParseOperationType(t *testing.T) {
	op, err := ParseOperationType("put_in")
	require.NoError(t, err)
	assert.Equal(t, OperationPutIn, op)

	op, err = ParseOperationType("take_out")
	require.NoError(t, err)
	assert.Equal(t, OperationTakeOut, op)

	_, err = ParseOperationType("shake")
	assert.Error(t, err)
}

func TestPredecessorsOf(t *testing.T) {
	assert.Empty(t, PredecessorsOf(StatusPending))
	assert.ElementsMatch(t, []RecognitionStatus{StatusPending, StatusProcessing, StatusFailed}, PredecessorsOf(StatusProcessing))
	assert.Equal(t, []RecognitionStatus{StatusProcessing}, PredecessorsOf(StatusCompleted))
	assert.Equal(t, []RecognitionStatus{StatusProcessing}, PredecessorsOf(StatusFailed))
}
