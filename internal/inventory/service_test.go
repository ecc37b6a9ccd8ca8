package inventory

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stockledger/stockledger/internal/shared"
)

type memoryRepo struct {
	mu      sync.Mutex
	records map[string]ReconstructInput
	txs     map[string][]Transaction
	outbox  []OutboxMessage
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		records: make(map[string]ReconstructInput),
		txs:     make(map[string][]Transaction),
	}
}

type memoryTx struct {
	repo *memoryRepo
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) GetRecord(ctx context.Context, id string) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	input, ok := r.records[id]
	if !ok {
		return nil, fmt.Errorf("inventory: record: %w", shared.ErrNotFound)
	}
	input.Transactions = append([]Transaction(nil), r.txs[id]...)
	return Reconstruct(input, nil, nil)
}

func (r *memoryRepo) ListTransactions(ctx context.Context, inventoryID string, p shared.Pagination) ([]Transaction, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := r.txs[inventoryID]
	total := len(all)
	start := p.Offset()
	if start > total {
		start = total
	}
	end := start + p.PerPage
	if end > total {
		end = total
	}
	return append([]Transaction(nil), all[start:end]...), total, nil
}

func (r *memoryRepo) CountByStatus(ctx context.Context) (map[Status]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[Status]int)
	for _, input := range r.records {
		counts[input.Status]++
	}
	return counts, nil
}

func (tx *memoryTx) GetRecordForUpdate(ctx context.Context, id string) (*Record, error) {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	input, ok := tx.repo.records[id]
	if !ok {
		return nil, fmt.Errorf("inventory: record: %w", shared.ErrNotFound)
	}
	return Reconstruct(input, nil, nil)
}

func (tx *memoryTx) InsertRecord(ctx context.Context, rec *Record) error {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	tx.repo.records[rec.ID()] = snapshot(rec)
	return nil
}

func (tx *memoryTx) UpdateRecord(ctx context.Context, rec *Record) error {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	if _, ok := tx.repo.records[rec.ID()]; !ok {
		return fmt.Errorf("inventory: record: %w", shared.ErrNotFound)
	}
	tx.repo.records[rec.ID()] = snapshot(rec)
	return nil
}

func (tx *memoryTx) InsertTransactions(ctx context.Context, txs []Transaction) error {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	for _, t := range txs {
		tx.repo.txs[t.InventoryID] = append(tx.repo.txs[t.InventoryID], t)
	}
	return nil
}

func (tx *memoryTx) InsertOutbox(ctx context.Context, msgs []OutboxMessage) error {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	tx.repo.outbox = append(tx.repo.outbox, msgs...)
	return nil
}

func snapshot(rec *Record) ReconstructInput {
	return ReconstructInput{
		ID:                rec.ID(),
		ProductID:         rec.ProductID(),
		Quantity:          rec.Quantity(),
		ReservedQuantity:  rec.ReservedQuantity(),
		InitialQuantity:   rec.InitialQuantity(),
		MinimumStockLevel: rec.MinimumStockLevel(),
		MaximumStockLevel: rec.MaximumStockLevel(),
		Location:          rec.Location(),
		WarehouseCode:     rec.WarehouseCode(),
		UnitValue:         rec.UnitValue(),
		Status:            rec.Status(),
		CreatedAt:         rec.CreatedAt(),
		LastUpdated:       rec.LastUpdated(),
	}
}

type memoryAudit struct {
	mu   sync.Mutex
	logs []shared.AuditLog
}

func (a *memoryAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

func newTestService(repo *memoryRepo, audit AuditPort) *Service {
	return NewService(repo, audit, nil, ServiceConfig{
		References: NewReferenceGenerator(7),
		Now:        testClock(),
	})
}

func mustCreate(t *testing.T, svc *Service, quantity int) *Record {
	t.Helper()
	rec, err := svc.CreateRecord(context.Background(), CreateInput{
		ProductID:       "prod-1",
		InitialQuantity: quantity,
	})
	require.NoError(t, err)
	return rec
}

func TestServiceCreateAndGet(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	rec := mustCreate(t, svc, 100)
	require.Equal(t, StatusActive, rec.Status())
	require.Empty(t, rec.PendingEvents())

	// The creation event landed in the outbox.
	require.Len(t, repo.outbox, 1)
	require.Equal(t, "inventory.created", repo.outbox[0].EventName)

	loaded, err := svc.GetRecord(ctx, rec.ID())
	require.NoError(t, err)
	require.Equal(t, rec.ID(), loaded.ID())
	require.Equal(t, 100, loaded.Quantity())
	require.Empty(t, loaded.Transactions())

	_, err = svc.GetRecord(ctx, "missing")
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.GetRecord(ctx, "")
	require.ErrorIs(t, err, shared.ErrInvalidArgument)
}

func TestServiceMutationPersistsLogAndOutbox(t *testing.T) {
	repo := newMemoryRepo()
	audit := &memoryAudit{}
	svc := newTestService(repo, audit)
	ctx := context.Background()

	rec := mustCreate(t, svc, 100)

	updated, err := svc.ReserveStock(ctx, rec.ID(), 30, "order #42", "alice")
	require.NoError(t, err)
	require.Equal(t, 30, updated.ReservedQuantity())

	loaded, err := svc.GetRecord(ctx, rec.ID())
	require.NoError(t, err)
	require.Equal(t, 30, loaded.ReservedQuantity())
	require.Len(t, loaded.Transactions(), 1)
	require.Equal(t, TransactionTypeReservation, loaded.Transactions()[0].Type)
	require.Equal(t, "alice", loaded.Transactions()[0].PerformedBy)

	require.Len(t, repo.outbox, 2)
	require.Equal(t, "inventory.reserved", repo.outbox[1].EventName)

	require.Len(t, audit.logs, 2)
	require.Equal(t, "inventory:reserve", audit.logs[1].Action)
	require.Equal(t, "alice", audit.logs[1].Actor)
	require.Equal(t, rec.ID(), audit.logs[1].EntityID)
}

func TestServiceRejectedMutationLeavesNoTrace(t *testing.T) {
	repo := newMemoryRepo()
	audit := &memoryAudit{}
	svc := newTestService(repo, audit)
	ctx := context.Background()

	rec := mustCreate(t, svc, 50)
	outboxBefore := len(repo.outbox)
	auditBefore := len(audit.logs)

	_, err := svc.ReserveStock(ctx, rec.ID(), 51, "too much", "bob")
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	loaded, err := svc.GetRecord(ctx, rec.ID())
	require.NoError(t, err)
	require.Equal(t, 0, loaded.ReservedQuantity())
	require.Empty(t, loaded.Transactions())
	require.Len(t, repo.outbox, outboxBefore)
	require.Len(t, audit.logs, auditBefore)
}

func TestServiceFullCycle(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	rec := mustCreate(t, svc, 100)
	id := rec.ID()

	_, err := svc.ReserveStock(ctx, id, 40, "order", "ops")
	require.NoError(t, err)
	_, err = svc.ReleaseReservedStock(ctx, id, 10, "cancel", "ops")
	require.NoError(t, err)
	_, err = svc.ConsumeReservedStock(ctx, id, 30, "shipped", "ops")
	require.NoError(t, err)
	updated, err := svc.UpdateStock(ctx, id, 500, "restock", "ops")
	require.NoError(t, err)

	require.Equal(t, 500, updated.Quantity())
	require.Equal(t, 0, updated.ReservedQuantity())

	require.NoError(t, svc.VerifyLedger(ctx, id))

	txs, pagination, err := svc.ListTransactions(ctx, id, 1, 2)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	require.Equal(t, 4, pagination.Total)
	require.Equal(t, 2, pagination.TotalPages)

	txs, pagination, err = svc.ListTransactions(ctx, id, 2, 2)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	require.Equal(t, TransactionTypeConsumption, txs[0].Type)
	require.Equal(t, 2, pagination.Page)

	_, _, err = svc.ListTransactions(ctx, "", 1, 10)
	require.ErrorIs(t, err, shared.ErrInvalidArgument)
}

func TestServiceLevelAndLifecycleOperations(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	rec := mustCreate(t, svc, 100)
	id := rec.ID()

	updated, err := svc.UpdateMinimumStockLevel(ctx, id, 100, "ops")
	require.NoError(t, err)
	require.Equal(t, StatusLowStock, updated.Status())

	updated, err = svc.UpdateMaximumStockLevel(ctx, id, 150, "ops")
	require.NoError(t, err)
	require.Equal(t, 150, updated.MaximumStockLevel())

	_, err = svc.UpdateMinimumStockLevel(ctx, id, 150, "ops")
	require.ErrorIs(t, err, shared.ErrInvalidArgument)

	updated, err = svc.DeactivateRecord(ctx, id, "ops")
	require.NoError(t, err)
	require.Equal(t, StatusInactive, updated.Status())

	_, err = svc.ReserveStock(ctx, id, 1, "blocked", "ops")
	require.ErrorIs(t, err, shared.ErrInvalidArgument)

	updated, err = svc.ReactivateRecord(ctx, id, "ops")
	require.NoError(t, err)
	require.Equal(t, StatusLowStock, updated.Status())
}

func TestServiceVerifyLedgerDetectsDrift(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	rec := mustCreate(t, svc, 100)
	_, err := svc.ReserveStock(ctx, rec.ID(), 10, "order", "ops")
	require.NoError(t, err)
	require.NoError(t, svc.VerifyLedger(ctx, rec.ID()))

	// Simulate drift between the stored counters and the log.
	repo.mu.Lock()
	input := repo.records[rec.ID()]
	input.Quantity += 5
	repo.records[rec.ID()] = input
	repo.mu.Unlock()

	require.ErrorIs(t, svc.VerifyLedger(ctx, rec.ID()), shared.ErrInvariantViolation)
}

func TestServiceStatusSummary(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	mustCreate(t, svc, 100)
	mustCreate(t, svc, 100)
	mustCreate(t, svc, 0)
	mustCreate(t, svc, 5)

	summary, err := svc.StatusSummary(ctx)
	require.NoError(t, err)
	require.Equal(t, 4, summary.Total)
	require.Equal(t, 2, summary.Counts[StatusActive])
	require.Equal(t, 1, summary.Counts[StatusOutOfStock])
	require.Equal(t, 1, summary.Counts[StatusLowStock])
}

func TestServiceConcurrentReservations(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	rec := mustCreate(t, svc, 100)
	id := rec.ID()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.ReserveStock(ctx, id, 60, "race", fmt.Sprintf("worker-%d", i))
		}(i)
	}
	wg.Wait()

	// Exactly one of the competing reservations fits.
	var succeeded, failed int
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			require.ErrorIs(t, err, shared.ErrInsufficientStock)
			failed++
		}
	}
	require.Equal(t, 1, succeeded)
	require.Equal(t, 1, failed)

	loaded, err := svc.GetRecord(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 60, loaded.ReservedQuantity())
	require.Len(t, loaded.Transactions(), 1)
	require.NoError(t, svc.VerifyLedger(ctx, id))
}

func TestServiceRandomSequenceKeepsInvariants(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	rec := mustCreate(t, svc, 200)
	id := rec.ID()

	rng := rand.New(rand.NewPCG(99, 99))
	for i := 0; i < 300; i++ {
		amount := int(rng.Int32N(80)) + 1
		var err error
		switch rng.Int32N(4) {
		case 0:
			_, err = svc.UpdateStock(ctx, id, int(rng.Int32N(400)), "fuzz", "fuzzer")
		case 1:
			_, err = svc.ReserveStock(ctx, id, amount, "fuzz", "fuzzer")
		case 2:
			_, err = svc.ReleaseReservedStock(ctx, id, amount, "fuzz", "fuzzer")
		default:
			_, err = svc.ConsumeReservedStock(ctx, id, amount, "fuzz", "fuzzer")
		}
		if err != nil {
			rejected := errors.Is(err, shared.ErrInvalidArgument) || errors.Is(err, shared.ErrInsufficientStock)
			require.Truef(t, rejected, "operation %d returned unexpected error: %v", i, err)
		}

		loaded, err := svc.GetRecord(ctx, id)
		require.NoError(t, err)
		require.GreaterOrEqual(t, loaded.Quantity(), 0)
		require.GreaterOrEqual(t, loaded.ReservedQuantity(), 0)
		require.LessOrEqual(t, loaded.ReservedQuantity(), loaded.Quantity())
	}
	require.NoError(t, svc.VerifyLedger(ctx, id))
}
