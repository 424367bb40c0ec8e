package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fernkafka "github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/logging"
	"github.com/Ramsey-B/fern/pkg/models"
)

type fakePublisher struct {
	events []*fernkafka.PipelineEvent
	err    error
}

func (p *fakePublisher) PublishPipelineEvent(ctx context.Context, event *fernkafka.PipelineEvent) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func terminalBatch(status models.BatchStatus) *models.Batch {
	score := 94.0
	return &models.Batch{
		ID:           "batch-1",
		SourceID:     1,
		Name:         "AAPL.csv",
		Status:       status,
		RowCount:     100,
		QualityScore: &score,
	}
}

func TestEmitBatchFinalizedEventTypes(t *testing.T) {
	tests := []struct {
		status    models.BatchStatus
		eventType string
	}{
		{models.BatchStatusSuccess, EventTypeBatchCompleted},
		{models.BatchStatusPartial, EventTypeBatchPartial},
		{models.BatchStatusFailed, EventTypeBatchFailed},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			publisher := &fakePublisher{}
			emitter := NewEmitter(publisher, logging.NewTestLogger())

			emitter.EmitBatchFinalized(context.Background(), terminalBatch(tt.status), "csv_file")

			require.Len(t, publisher.events, 1)
			event := publisher.events[0]
			assert.Equal(t, tt.eventType, event.EventType)
			assert.Equal(t, "batch-1", event.BatchID)
			assert.Equal(t, "csv_file", event.SourceName)
			assert.Equal(t, string(tt.status), event.Status)
			assert.Equal(t, 100, event.RowCount)
			require.NotNil(t, event.QualityScore)
			assert.Equal(t, 94.0, *event.QualityScore)
			assert.False(t, event.Timestamp.IsZero())
		})
	}
}

func TestEmitGoldRefreshed(t *testing.T) {
	publisher := &fakePublisher{}
	emitter := NewEmitter(publisher, logging.NewTestLogger())

	emitter.EmitGoldRefreshed(context.Background(), &models.RefreshResult{
		Mode:     models.RefreshModeConcurrent,
		Duration: 2 * time.Second,
		RowCount: 1000,
	})

	require.Len(t, publisher.events, 1)
	assert.Equal(t, EventTypeGoldRefreshed, publisher.events[0].EventType)
	assert.Equal(t, 1000, publisher.events[0].RowCount)
}

func TestEmitPublishFailureIsSwallowed(t *testing.T) {
	publisher := &fakePublisher{err: assert.AnError}
	emitter := NewEmitter(publisher, logging.NewTestLogger())

	// Must not panic or propagate; the batch record is the source of truth.
	emitter.EmitBatchFinalized(context.Background(), terminalBatch(models.BatchStatusSuccess), "csv_file")
}

func TestNilEmitterIsSafe(t *testing.T) {
	var emitter *Emitter

	emitter.EmitBatchFinalized(context.Background(), terminalBatch(models.BatchStatusSuccess), "csv_file")
	emitter.EmitGoldRefreshed(context.Background(), &models.RefreshResult{})
}
