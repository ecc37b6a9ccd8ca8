package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/stockledger/stockledger/internal/observability"
	"github.com/stockledger/stockledger/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetRecord(ctx context.Context, id string) (*Record, error)
	ListTransactions(ctx context.Context, inventoryID string, p shared.Pagination) ([]Transaction, int, error)
	CountByStatus(ctx context.Context) (map[Status]int, error)
}

// TxRepository exposes transactional operations used by the service. The
// implementation is responsible for per-record write serialization at the
// storage level (row locks).
type TxRepository interface {
	GetRecordForUpdate(ctx context.Context, id string) (*Record, error)
	InsertRecord(ctx context.Context, rec *Record) error
	UpdateRecord(ctx context.Context, rec *Record) error
	InsertTransactions(ctx context.Context, txs []Transaction) error
	InsertOutbox(ctx context.Context, msgs []OutboxMessage) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Locker abstracts the optional cross-process record lock.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

const summaryCacheKey = "inventory:summary"

// Service coordinates ledger operations: it serializes mutations per record,
// runs them inside a storage transaction together with the transaction log
// and the event outbox, and reports advisory rules, audit entries and
// metrics for successful mutations. Every operation either fully applies or
// fully rejects.
type Service struct {
	repo    RepositoryPort
	audit   AuditPort
	locks   *shared.RecordLocks
	dlock   Locker
	lockTTL time.Duration
	refs    *ReferenceGenerator
	now     func() time.Time
	logger  *slog.Logger
	metrics *observability.LedgerMetrics
	cache   *Cache
	group   singleflight.Group
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	// DistributedLock enables the cross-process lock when multiple service
	// instances mutate the same store.
	DistributedLock Locker
	LockTTL         time.Duration
	References      *ReferenceGenerator
	Now             func() time.Time
	Metrics         *observability.LedgerMetrics
	Cache           *Cache
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger, cfg ServiceConfig) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	refs := cfg.References
	if refs == nil {
		refs = DefaultReferenceGenerator()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	lockTTL := cfg.LockTTL
	if lockTTL <= 0 {
		lockTTL = 10 * time.Second
	}
	return &Service{
		repo:    repo,
		audit:   audit,
		locks:   shared.NewRecordLocks(),
		dlock:   cfg.DistributedLock,
		lockTTL: lockTTL,
		refs:    refs,
		now:     now,
		logger:  logger,
		metrics: cfg.Metrics,
		cache:   cfg.Cache,
	}
}

// CreateRecord validates input and persists a new record together with its
// creation event.
func (s *Service) CreateRecord(ctx context.Context, input CreateInput) (*Record, error) {
	rec, err := NewRecord(input, s.refs, s.now)
	if err != nil {
		s.metrics.ObserveMutation("create", err)
		return nil, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.InsertRecord(ctx, rec); err != nil {
			return err
		}
		msgs, err := OutboxMessages(rec.ID(), rec.PendingEvents())
		if err != nil {
			return err
		}
		return tx.InsertOutbox(ctx, msgs)
	})
	s.metrics.ObserveMutation("create", err)
	if err != nil {
		return nil, err
	}
	rec.DrainEvents()
	s.finishMutation(ctx, "inventory:create", "", rec, map[string]any{
		"product_id": rec.ProductID(),
		"quantity":   rec.Quantity(),
	})
	return rec, nil
}

// UpdateStock sets the total on-hand quantity of a record.
func (s *Service) UpdateStock(ctx context.Context, id string, newQuantity int, reason, changedBy string) (*Record, error) {
	return s.mutate(ctx, id, "update_stock", changedBy, map[string]any{
		"new_quantity": newQuantity,
		"reason":       reason,
	}, func(r *Record) error {
		return r.UpdateStock(newQuantity, reason, changedBy)
	})
}

// ReserveStock places a hold on available stock.
func (s *Service) ReserveStock(ctx context.Context, id string, quantity int, reason, reservedBy string) (*Record, error) {
	return s.mutate(ctx, id, "reserve", reservedBy, map[string]any{
		"quantity": quantity,
		"reason":   reason,
	}, func(r *Record) error {
		return r.ReserveStock(quantity, reason, reservedBy)
	})
}

// ReleaseReservedStock undoes part of a reservation.
func (s *Service) ReleaseReservedStock(ctx context.Context, id string, quantity int, reason, releasedBy string) (*Record, error) {
	return s.mutate(ctx, id, "release", releasedBy, map[string]any{
		"quantity": quantity,
		"reason":   reason,
	}, func(r *Record) error {
		return r.ReleaseReservedStock(quantity, reason, releasedBy)
	})
}

// ConsumeReservedStock converts a reservation into a permanent deduction.
func (s *Service) ConsumeReservedStock(ctx context.Context, id string, quantity int, reason, consumedBy string) (*Record, error) {
	return s.mutate(ctx, id, "consume", consumedBy, map[string]any{
		"quantity": quantity,
		"reason":   reason,
	}, func(r *Record) error {
		return r.ConsumeReservedStock(quantity, reason, consumedBy)
	})
}

// UpdateMinimumStockLevel adjusts the minimum level.
func (s *Service) UpdateMinimumStockLevel(ctx context.Context, id string, minimum int, changedBy string) (*Record, error) {
	return s.mutate(ctx, id, "update_minimum_level", changedBy, map[string]any{
		"minimum": minimum,
	}, func(r *Record) error {
		return r.UpdateMinimumStockLevel(minimum)
	})
}

// UpdateMaximumStockLevel adjusts the maximum level.
func (s *Service) UpdateMaximumStockLevel(ctx context.Context, id string, maximum int, changedBy string) (*Record, error) {
	return s.mutate(ctx, id, "update_maximum_level", changedBy, map[string]any{
		"maximum": maximum,
	}, func(r *Record) error {
		return r.UpdateMaximumStockLevel(maximum)
	})
}

// DeactivateRecord flags a record inactive without deleting it.
func (s *Service) DeactivateRecord(ctx context.Context, id, changedBy string) (*Record, error) {
	return s.mutate(ctx, id, "deactivate", changedBy, nil, func(r *Record) error {
		r.Deactivate()
		return nil
	})
}

// ReactivateRecord clears the inactive flag.
func (s *Service) ReactivateRecord(ctx context.Context, id, changedBy string) (*Record, error) {
	return s.mutate(ctx, id, "reactivate", changedBy, nil, func(r *Record) error {
		r.Reactivate()
		return nil
	})
}

// GetRecord loads a record with its transaction history.
func (s *Service) GetRecord(ctx context.Context, id string) (*Record, error) {
	if id == "" {
		return nil, fmt.Errorf("inventory: record id required: %w", shared.ErrInvalidArgument)
	}
	return s.repo.GetRecord(ctx, id)
}

// ListTransactions returns a page of the audit trail in creation order.
func (s *Service) ListTransactions(ctx context.Context, id string, page, perPage int) ([]Transaction, shared.Pagination, error) {
	if id == "" {
		return nil, shared.Pagination{}, fmt.Errorf("inventory: record id required: %w", shared.ErrInvalidArgument)
	}
	p := shared.NewPagination(page, perPage, 0)
	txs, total, err := s.repo.ListTransactions(ctx, id, p)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return txs, shared.NewPagination(page, perPage, total), nil
}

// VerifyLedger replays the full transaction log against the record's initial
// quantity and confirms it reproduces the current counters.
func (s *Service) VerifyLedger(ctx context.Context, id string) error {
	rec, err := s.GetRecord(ctx, id)
	if err != nil {
		return err
	}
	quantity, reserved, err := Replay(rec.InitialQuantity(), rec.Transactions())
	if err != nil {
		return err
	}
	if quantity != rec.Quantity() || reserved != rec.ReservedQuantity() {
		return fmt.Errorf("inventory: ledger replay produced quantity=%d reserved=%d, record holds quantity=%d reserved=%d: %w",
			quantity, reserved, rec.Quantity(), rec.ReservedQuantity(), shared.ErrInvariantViolation)
	}
	return nil
}

// Summary aggregates record counts by status. Results are cached and
// concurrent callers share a single load.
type Summary struct {
	Counts      map[Status]int `json:"counts"`
	Total       int            `json:"total"`
	GeneratedAt time.Time      `json:"generated_at"`
}

// StatusSummary returns record counts per status.
func (s *Service) StatusSummary(ctx context.Context) (Summary, error) {
	result, err, _ := s.group.Do(summaryCacheKey, func() (any, error) {
		var summary Summary
		err := s.cache.FetchJSON(ctx, summaryCacheKey, &summary, func(ctx context.Context) (any, error) {
			counts, err := s.repo.CountByStatus(ctx)
			if err != nil {
				return nil, err
			}
			total := 0
			for _, n := range counts {
				total += n
			}
			return Summary{Counts: counts, Total: total, GeneratedAt: s.now().UTC()}, nil
		})
		return summary, err
	})
	if err != nil {
		return Summary{}, err
	}
	return result.(Summary), nil
}

// mutate serializes the operation per record, applies it inside a storage
// transaction together with the transaction log and the outbox, and reports
// side channels (advisories, audit, metrics) after commit.
func (s *Service) mutate(ctx context.Context, id, operation, actor string, meta map[string]any, fn func(*Record) error) (*Record, error) {
	if id == "" {
		err := fmt.Errorf("inventory: record id required: %w", shared.ErrInvalidArgument)
		s.metrics.ObserveMutation(operation, err)
		return nil, err
	}
	unlock := s.locks.Lock(id)
	defer unlock()
	if s.dlock != nil {
		release, err := s.dlock.Acquire(ctx, shared.RecordLockKey(id), s.lockTTL)
		if err != nil {
			s.metrics.ObserveMutation(operation, err)
			return nil, err
		}
		defer release()
	}

	var rec *Record
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		r, err := tx.GetRecordForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(r); err != nil {
			return err
		}
		if err := tx.UpdateRecord(ctx, r); err != nil {
			return err
		}
		if txs := r.UncommittedTransactions(); len(txs) > 0 {
			if err := tx.InsertTransactions(ctx, txs); err != nil {
				return err
			}
		}
		msgs, err := OutboxMessages(r.ID(), r.PendingEvents())
		if err != nil {
			return err
		}
		if len(msgs) > 0 {
			if err := tx.InsertOutbox(ctx, msgs); err != nil {
				return err
			}
		}
		rec = r
		return nil
	})
	s.metrics.ObserveMutation(operation, err)
	if err != nil {
		return nil, err
	}
	rec.MarkCommitted()
	rec.DrainEvents()

	if meta == nil {
		meta = map[string]any{}
	}
	meta["status"] = string(rec.Status())
	s.finishMutation(ctx, "inventory:"+operation, actor, rec, meta)
	return rec, nil
}

// finishMutation handles the post-commit side channels: advisory rule
// logging, cache invalidation and the audit trail. Failures here are logged,
// never surfaced; the mutation already committed.
func (s *Service) finishMutation(ctx context.Context, action, actor string, rec *Record, meta map[string]any) {
	for _, rule := range rec.AdvisoryRules() {
		if rule.IsBroken() {
			s.logger.Warn("inventory advisory",
				slog.String("rule", rule.RuleName()),
				slog.String("code", rule.ErrorCode()),
				slog.String("inventory_id", rec.ID()),
				slog.String("message", rule.Message()))
		}
	}
	if err := s.cache.Invalidate(ctx, summaryCacheKey); err != nil {
		s.logger.Warn("invalidate summary cache", slog.Any("error", err))
	}
	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{
			Actor:    actor,
			Action:   action,
			Entity:   "inventory_record",
			EntityID: rec.ID(),
			Meta:     meta,
		}); err != nil {
			s.logger.Warn("audit record", slog.Any("error", err))
		}
	}
}
