package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/stockledger/stockledger/internal/inventory"
	jobmetrics "github.com/stockledger/stockledger/internal/jobs"
)

type fakeAlertSource struct {
	alerts []inventory.StockAlert
	err    error
}

func (s *fakeAlertSource) ListStockAlerts(ctx context.Context, limit int) ([]inventory.StockAlert, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.alerts, nil
}

type fakeEnqueuer struct {
	payloads []SendAlertPayload
	failOn   string
}

func (e *fakeEnqueuer) EnqueueSendAlert(ctx context.Context, payload SendAlertPayload) (*asynq.TaskInfo, error) {
	if payload.InventoryID == e.failOn {
		return nil, errors.New("queue full")
	}
	e.payloads = append(e.payloads, payload)
	return &asynq.TaskInfo{}, nil
}

func scanTask(t *testing.T) *asynq.Task {
	t.Helper()
	task, err := NewLowStockScanTask(time.Now())
	require.NoError(t, err)
	return task
}

func TestLowStockScanJob(t *testing.T) {
	source := &fakeAlertSource{alerts: []inventory.StockAlert{
		{InventoryID: "r1", ProductID: "p1", Available: 0, Minimum: 10, Status: inventory.StatusOutOfStock},
		{InventoryID: "r2", ProductID: "p2", Available: 3, Minimum: 10, Status: inventory.StatusLowStock},
	}}
	enqueuer := &fakeEnqueuer{}
	job := NewLowStockScanJob(source, enqueuer, nil, 0).
		WithJobMetrics(jobmetrics.NewMetrics(prometheus.NewRegistry()))

	require.NoError(t, job.Handle(context.Background(), scanTask(t)))
	require.Len(t, enqueuer.payloads, 2)
	require.Equal(t, "r1", enqueuer.payloads[0].InventoryID)
	require.Equal(t, string(inventory.StatusLowStock), enqueuer.payloads[1].Status)
}

func TestLowStockScanJobContinuesPastEnqueueFailure(t *testing.T) {
	source := &fakeAlertSource{alerts: []inventory.StockAlert{
		{InventoryID: "r1"},
		{InventoryID: "r2"},
	}}
	enqueuer := &fakeEnqueuer{failOn: "r1"}
	job := NewLowStockScanJob(source, enqueuer, nil, 0)

	require.NoError(t, job.Handle(context.Background(), scanTask(t)))
	require.Len(t, enqueuer.payloads, 1)
	require.Equal(t, "r2", enqueuer.payloads[0].InventoryID)
}

func TestLowStockScanJobSourceError(t *testing.T) {
	boom := errors.New("db down")
	job := NewLowStockScanJob(&fakeAlertSource{err: boom}, &fakeEnqueuer{}, nil, 0)
	require.ErrorIs(t, job.Handle(context.Background(), scanTask(t)), boom)
}
