package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/stockledger/stockledger/internal/inventory"
	jobmetrics "github.com/stockledger/stockledger/internal/jobs"
)

// AlertSource lists records whose available quantity fell to or below their
// minimum level.
type AlertSource interface {
	ListStockAlerts(ctx context.Context, limit int) ([]inventory.StockAlert, error)
}

// AlertEnqueuer fans individual alerts out to the queue.
type AlertEnqueuer interface {
	EnqueueSendAlert(ctx context.Context, payload SendAlertPayload) (*asynq.TaskInfo, error)
}

// LowStockScanJob sweeps the ledger for records needing replenishment and
// enqueues one alert per record.
type LowStockScanJob struct {
	source     AlertSource
	enqueuer   AlertEnqueuer
	logger     *slog.Logger
	jobMetrics *jobmetrics.Metrics
	batch      int
}

// NewLowStockScanJob constructs the job. A zero batch size falls back to 200.
func NewLowStockScanJob(source AlertSource, enqueuer AlertEnqueuer, logger *slog.Logger, batch int) *LowStockScanJob {
	if logger == nil {
		logger = slog.Default()
	}
	if batch <= 0 {
		batch = 200
	}
	return &LowStockScanJob{source: source, enqueuer: enqueuer, logger: logger, batch: batch}
}

// WithJobMetrics overrides the run tracker registry, mainly for tests.
func (j *LowStockScanJob) WithJobMetrics(m *jobmetrics.Metrics) *LowStockScanJob {
	j.jobMetrics = m
	return j
}

func (j *LowStockScanJob) runMetrics() *jobmetrics.Metrics {
	if j.jobMetrics != nil {
		return j.jobMetrics
	}
	return defaultJobMetrics
}

// Handle processes TaskLowStockScan tasks.
func (j *LowStockScanJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	var payload LowStockScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.runMetrics().Track(TaskLowStockScan)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	alerts, err := j.source.ListStockAlerts(ctx, j.batch)
	if err != nil {
		return err
	}
	enqueued := 0
	for _, alert := range alerts {
		_, err := j.enqueuer.EnqueueSendAlert(ctx, SendAlertPayload{
			InventoryID: alert.InventoryID,
			ProductID:   alert.ProductID,
			Available:   alert.Available,
			Minimum:     alert.Minimum,
			Status:      string(alert.Status),
		})
		if err != nil {
			j.logger.Warn("enqueue alert",
				slog.String("inventory_id", alert.InventoryID),
				slog.Any("error", err))
			continue
		}
		enqueued++
	}
	j.logger.Info("low stock sweep",
		slog.Int("flagged", len(alerts)),
		slog.Int("enqueued", enqueued))
	return nil
}
