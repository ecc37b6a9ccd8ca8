package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/stockledger/stockledger/internal/inventory"
	jobmetrics "github.com/stockledger/stockledger/internal/jobs"
	"github.com/stockledger/stockledger/internal/observability"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// OutboxSource lists and marks pending outbox messages.
type OutboxSource interface {
	ListPendingOutbox(ctx context.Context, limit int) ([]inventory.OutboxMessage, error)
	MarkOutboxDispatched(ctx context.Context, ids []string) error
}

// EventSink receives dispatched domain events. Delivery is at-least-once: a
// sink failure leaves the message pending for the next sweep.
type EventSink interface {
	Publish(ctx context.Context, msg inventory.OutboxMessage) error
}

// LogSink writes events to the structured log. It stands in until an external
// broker is wired.
type LogSink struct {
	Logger *slog.Logger
}

// Publish logs the event.
func (s LogSink) Publish(ctx context.Context, msg inventory.OutboxMessage) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("domain event",
		slog.String("event", msg.EventName),
		slog.String("inventory_id", msg.InventoryID),
		slog.String("payload", string(msg.Payload)))
	return nil
}

// OutboxDispatchJob drains the event outbox to a sink in batches.
type OutboxDispatchJob struct {
	source     OutboxSource
	sink       EventSink
	logger     *slog.Logger
	metrics    *observability.LedgerMetrics
	jobMetrics *jobmetrics.Metrics
	batch      int
}

// NewOutboxDispatchJob constructs the job. A zero batch size falls back to 100.
func NewOutboxDispatchJob(source OutboxSource, sink EventSink, logger *slog.Logger, metrics *observability.LedgerMetrics, batch int) *OutboxDispatchJob {
	if logger == nil {
		logger = slog.Default()
	}
	if batch <= 0 {
		batch = 100
	}
	return &OutboxDispatchJob{source: source, sink: sink, logger: logger, metrics: metrics, batch: batch}
}

// WithJobMetrics overrides the run tracker registry, mainly for tests.
func (j *OutboxDispatchJob) WithJobMetrics(m *jobmetrics.Metrics) *OutboxDispatchJob {
	j.jobMetrics = m
	return j
}

func (j *OutboxDispatchJob) runMetrics() *jobmetrics.Metrics {
	if j.jobMetrics != nil {
		return j.jobMetrics
	}
	return defaultJobMetrics
}

// Handle processes TaskOutboxDispatch tasks. Messages that fail to publish
// stay pending; the sweep continues with the rest of the batch.
func (j *OutboxDispatchJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	var payload OutboxDispatchPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.runMetrics().Track(TaskOutboxDispatch)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	msgs, err := j.source.ListPendingOutbox(ctx, j.batch)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}

	dispatched := make([]string, 0, len(msgs))
	failed := 0
	for _, msg := range msgs {
		if err := j.sink.Publish(ctx, msg); err != nil {
			failed++
			j.logger.Warn("publish event",
				slog.String("event", msg.EventName),
				slog.String("inventory_id", msg.InventoryID),
				slog.Any("error", err))
			continue
		}
		dispatched = append(dispatched, msg.ID)
	}
	if err := j.source.MarkOutboxDispatched(ctx, dispatched); err != nil {
		return err
	}
	j.metrics.ObserveOutboxDispatch(len(dispatched), failed)
	j.logger.Info("outbox sweep",
		slog.Int("dispatched", len(dispatched)),
		slog.Int("failed", failed))
	return nil
}
