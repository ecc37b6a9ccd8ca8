package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskOutboxDispatch drains pending domain events to the event sink.
	TaskOutboxDispatch = "outbox:dispatch"
	// TaskLowStockScan sweeps for records needing replenishment.
	TaskLowStockScan = "inventory:lowstock_scan"
	// TaskTypeSendAlert notifies operators about a single record.
	TaskTypeSendAlert = "alert:send"
)

// OutboxDispatchPayload carries scheduling metadata for an outbox sweep.
type OutboxDispatchPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewOutboxDispatchTask constructs an Asynq task for an outbox sweep.
func NewOutboxDispatchTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(OutboxDispatchPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOutboxDispatch, body, asynq.Queue(QueueDefault)), nil
}

// LowStockScanPayload carries scheduling metadata for a low-stock sweep.
type LowStockScanPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewLowStockScanTask constructs an Asynq task for a low-stock sweep.
func NewLowStockScanTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(LowStockScanPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLowStockScan, body, asynq.Queue(QueueDefault)), nil
}

// SendAlertPayload describes a stock alert for one record.
type SendAlertPayload struct {
	InventoryID string `json:"inventory_id"`
	ProductID   string `json:"product_id"`
	Available   int    `json:"available"`
	Minimum     int    `json:"minimum"`
	Status      string `json:"status"`
}

// NewSendAlertTask constructs an Asynq task.
func NewSendAlertTask(payload SendAlertPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendAlert, data), nil
}

// HandleSendAlertTask processes TaskTypeSendAlert tasks.
func HandleSendAlertTask(ctx context.Context, t *asynq.Task) error {
	var payload SendAlertPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	// Placeholder: route to the notification channel once one is wired.
	slog.Default().Warn("stock alert",
		slog.String("inventory_id", payload.InventoryID),
		slog.String("product_id", payload.ProductID),
		slog.Int("available", payload.Available),
		slog.Int("minimum", payload.Minimum),
		slog.String("status", payload.Status))
	return nil
}
