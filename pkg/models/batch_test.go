package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBatchStatusIsTerminal(t *testing.T) {
	assert.False(t, BatchStatusRunning.IsTerminal())
	assert.True(t, BatchStatusSuccess.IsTerminal())
	assert.True(t, BatchStatusPartial.IsTerminal())
	assert.True(t, BatchStatusFailed.IsTerminal())
}

func TestBatchStatusCanTransitionTo(t *testing.T) {
	tests := []struct {
		from    BatchStatus
		to      BatchStatus
		allowed bool
	}{
		{BatchStatusRunning, BatchStatusSuccess, true},
		{BatchStatusRunning, BatchStatusPartial, true},
		{BatchStatusRunning, BatchStatusFailed, true},
		{BatchStatusRunning, BatchStatusRunning, false},
		{BatchStatusSuccess, BatchStatusFailed, false},
		{BatchStatusFailed, BatchStatusSuccess, false},
		{BatchStatusPartial, BatchStatusRunning, false},
	}

	for _, tt := range tests {
		assert.Equalf(t, tt.allowed, tt.from.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}
}
