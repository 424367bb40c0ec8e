package events

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"

	fernkafka "github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	EventTypeBatchCompleted = "batch.completed"
	EventTypeBatchPartial   = "batch.partial"
	EventTypeBatchFailed    = "batch.failed"
	EventTypeGoldRefreshed  = "gold.refreshed"
)

// Publisher publishes pipeline events to the message bus.
type Publisher interface {
	PublishPipelineEvent(ctx context.Context, event *fernkafka.PipelineEvent) error
}

// Emitter handles emitting pipeline lifecycle events. A nil publisher
// disables emission, so callers never need to branch on whether Kafka
// is configured.
type Emitter struct {
	publisher Publisher
	logger    ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(publisher Publisher, logger ectologger.Logger) *Emitter {
	return &Emitter{
		publisher: publisher,
		logger:    logger,
	}
}

// EmitBatchFinalized emits the terminal-state event for a batch. The
// event type follows the batch status.
func (e *Emitter) EmitBatchFinalized(ctx context.Context, batch *models.Batch, sourceName string) {
	if e == nil || e.publisher == nil {
		return
	}

	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitBatchFinalized")
	defer span.End()

	eventType := EventTypeBatchCompleted
	switch batch.Status {
	case models.BatchStatusPartial:
		eventType = EventTypeBatchPartial
	case models.BatchStatusFailed:
		eventType = EventTypeBatchFailed
	}

	event := &fernkafka.PipelineEvent{
		EventType:    eventType,
		BatchID:      batch.ID,
		SourceName:   sourceName,
		Status:       string(batch.Status),
		RowCount:     batch.RowCount,
		QualityScore: batch.QualityScore,
		Timestamp:    time.Now().UTC(),
	}

	if err := e.publisher.PublishPipelineEvent(ctx, event); err != nil {
		// Event emission is best effort. The batch record is the source
		// of truth, so a publish failure must not fail the load.
		e.logger.WithContext(ctx).WithError(err).WithField("batch_id", batch.ID).Warn("Failed to emit batch event")
	}
}

// EmitGoldRefreshed emits an event after a gold refresh completes
func (e *Emitter) EmitGoldRefreshed(ctx context.Context, result *models.RefreshResult) {
	if e == nil || e.publisher == nil {
		return
	}

	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitGoldRefreshed")
	defer span.End()

	event := &fernkafka.PipelineEvent{
		EventType: EventTypeGoldRefreshed,
		Status:    string(result.Mode),
		RowCount:  int(result.RowCount),
		Timestamp: time.Now().UTC(),
	}

	if err := e.publisher.PublishPipelineEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Warn("Failed to emit gold refresh event")
	}
}
