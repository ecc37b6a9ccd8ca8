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

type fakeOutboxSource struct {
	pending    []inventory.OutboxMessage
	dispatched []string
	listErr    error
}

func (s *fakeOutboxSource) ListPendingOutbox(ctx context.Context, limit int) ([]inventory.OutboxMessage, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	if limit > len(s.pending) {
		limit = len(s.pending)
	}
	return s.pending[:limit], nil
}

func (s *fakeOutboxSource) MarkOutboxDispatched(ctx context.Context, ids []string) error {
	s.dispatched = append(s.dispatched, ids...)
	return nil
}

type fakeSink struct {
	published []string
	failOn    map[string]bool
}

func (s *fakeSink) Publish(ctx context.Context, msg inventory.OutboxMessage) error {
	if s.failOn[msg.ID] {
		return errors.New("sink unavailable")
	}
	s.published = append(s.published, msg.ID)
	return nil
}

func dispatchTask(t *testing.T) *asynq.Task {
	t.Helper()
	task, err := NewOutboxDispatchTask(time.Now())
	require.NoError(t, err)
	return task
}

func TestOutboxDispatchJob(t *testing.T) {
	source := &fakeOutboxSource{pending: []inventory.OutboxMessage{
		{ID: "m1", InventoryID: "r1", EventName: "inventory.created"},
		{ID: "m2", InventoryID: "r1", EventName: "inventory.reserved"},
	}}
	sink := &fakeSink{}
	job := NewOutboxDispatchJob(source, sink, nil, nil, 10).
		WithJobMetrics(jobmetrics.NewMetrics(prometheus.NewRegistry()))

	require.NoError(t, job.Handle(context.Background(), dispatchTask(t)))
	require.Equal(t, []string{"m1", "m2"}, sink.published)
	require.Equal(t, []string{"m1", "m2"}, source.dispatched)
}

func TestOutboxDispatchJobSkipsFailedMessages(t *testing.T) {
	source := &fakeOutboxSource{pending: []inventory.OutboxMessage{
		{ID: "m1", EventName: "inventory.created"},
		{ID: "m2", EventName: "inventory.reserved"},
		{ID: "m3", EventName: "inventory.consumed"},
	}}
	sink := &fakeSink{failOn: map[string]bool{"m2": true}}
	job := NewOutboxDispatchJob(source, sink, nil, nil, 10)

	require.NoError(t, job.Handle(context.Background(), dispatchTask(t)))
	// The failed message stays pending for the next sweep.
	require.Equal(t, []string{"m1", "m3"}, source.dispatched)
}

func TestOutboxDispatchJobEmptyBacklog(t *testing.T) {
	source := &fakeOutboxSource{}
	sink := &fakeSink{}
	job := NewOutboxDispatchJob(source, sink, nil, nil, 0)

	require.NoError(t, job.Handle(context.Background(), dispatchTask(t)))
	require.Empty(t, sink.published)
	require.Empty(t, source.dispatched)
}

func TestOutboxDispatchJobSourceError(t *testing.T) {
	boom := errors.New("db down")
	job := NewOutboxDispatchJob(&fakeOutboxSource{listErr: boom}, &fakeSink{}, nil, nil, 10)
	require.ErrorIs(t, job.Handle(context.Background(), dispatchTask(t)), boom)
}

func TestOutboxDispatchJobBadPayload(t *testing.T) {
	job := NewOutboxDispatchJob(&fakeOutboxSource{}, &fakeSink{}, nil, nil, 10)
	err := job.Handle(context.Background(), asynq.NewTask(TaskOutboxDispatch, []byte("not json")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}
