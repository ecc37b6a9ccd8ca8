package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockledger/stockledger/internal/shared"
)

// Repository persists ledger data in PostgreSQL. Row locks taken by
// GetRecordForUpdate enforce per-record write serialization at the storage
// layer; the service adds an in-process lock on top so contention resolves
// before the database.
type Repository struct {
	pool *pgxpool.Pool
	refs *ReferenceGenerator
}

// NewRepository constructs Repository. The reference generator is only used
// to rebuild aggregates; pass nil for the production default.
func NewRepository(pool *pgxpool.Pool, refs *ReferenceGenerator) *Repository {
	return &Repository{pool: pool, refs: refs}
}

const recordColumns = `id, product_id, quantity, reserved_quantity, initial_quantity,
	minimum_stock_level, maximum_stock_level, location, warehouse_code,
	unit_value_amount, unit_value_currency, status, created_at, last_updated`

const transactionColumns = `id, inventory_id, tx_type, old_quantity, new_quantity,
	reason, performed_by, transaction_date, reference_number`

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx, refs: r.refs}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// GetRecord loads a record together with its full transaction history.
func (r *Repository) GetRecord(ctx context.Context, id string) (*Record, error) {
	if r == nil {
		return nil, errors.New("inventory repository not initialised")
	}
	row := r.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM inventory_records WHERE id = $1`, id)
	input, err := scanRecord(row)
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+transactionColumns+` FROM inventory_transactions WHERE inventory_id = $1 ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		input.Transactions = append(input.Transactions, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return Reconstruct(input, r.refs, nil)
}

// ListTransactions returns a page of the audit trail in creation order plus
// the total count.
func (r *Repository) ListTransactions(ctx context.Context, inventoryID string, p shared.Pagination) ([]Transaction, int, error) {
	if r == nil {
		return nil, 0, errors.New("inventory repository not initialised")
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM inventory_transactions WHERE inventory_id = $1`, inventoryID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+transactionColumns+` FROM inventory_transactions WHERE inventory_id = $1 ORDER BY seq LIMIT $2 OFFSET $3`,
		inventoryID, p.PerPage, p.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var txs []Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, err
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return txs, total, nil
}

// CountByStatus aggregates record counts per status.
func (r *Repository) CountByStatus(ctx context.Context) (map[Status]int, error) {
	if r == nil {
		return nil, errors.New("inventory repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM inventory_records GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[Status(status)] = count
	}
	return counts, rows.Err()
}

// StockAlert is a lightweight row for the low-stock scan.
type StockAlert struct {
	InventoryID string
	ProductID   string
	Available   int
	Minimum     int
	Status      Status
}

// ListStockAlerts returns records whose available quantity is at or below
// their minimum level. Inactive records are skipped.
func (r *Repository) ListStockAlerts(ctx context.Context, limit int) ([]StockAlert, error) {
	if r == nil {
		return nil, errors.New("inventory repository not initialised")
	}
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, product_id, quantity - reserved_quantity, minimum_stock_level, status
		FROM inventory_records
		WHERE status IN ($1, $2)
		ORDER BY quantity - reserved_quantity
		LIMIT $3`, string(StatusLowStock), string(StatusOutOfStock), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var alerts []StockAlert
	for rows.Next() {
		var a StockAlert
		var status string
		if err := rows.Scan(&a.InventoryID, &a.ProductID, &a.Available, &a.Minimum, &status); err != nil {
			return nil, err
		}
		a.Status = Status(status)
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// ListPendingOutbox returns undispatched outbox messages in occurrence order.
func (r *Repository) ListPendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error) {
	if r == nil {
		return nil, errors.New("inventory repository not initialised")
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT id, inventory_id, event_name, payload, occurred_at, dispatched_at
		FROM inventory_outbox WHERE dispatched_at IS NULL ORDER BY occurred_at, id LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var msgs []OutboxMessage
	for rows.Next() {
		var m OutboxMessage
		if err := rows.Scan(&m.ID, &m.InventoryID, &m.EventName, &m.Payload, &m.OccurredAt, &m.DispatchedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// MarkOutboxDispatched stamps messages as handed to the sink.
func (r *Repository) MarkOutboxDispatched(ctx context.Context, ids []string) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	if len(ids) == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx, `UPDATE inventory_outbox SET dispatched_at = NOW() WHERE id = ANY($1)`, ids)
	return err
}

type txRepository struct {
	tx   pgx.Tx
	refs *ReferenceGenerator
}

// GetRecordForUpdate loads a record under a row lock. The transaction
// history is not loaded; mutations only append.
func (t *txRepository) GetRecordForUpdate(ctx context.Context, id string) (*Record, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+recordColumns+` FROM inventory_records WHERE id = $1 FOR UPDATE`, id)
	input, err := scanRecord(row)
	if err != nil {
		return nil, err
	}
	return Reconstruct(input, t.refs, nil)
}

func (t *txRepository) InsertRecord(ctx context.Context, rec *Record) error {
	unitValue := rec.UnitValue()
	_, err := t.tx.Exec(ctx, `INSERT INTO inventory_records (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		rec.ID(), rec.ProductID(), rec.Quantity(), rec.ReservedQuantity(), rec.InitialQuantity(),
		rec.MinimumStockLevel(), rec.MaximumStockLevel(), rec.Location(), rec.WarehouseCode(),
		unitValue.Amount, unitValue.Currency, string(rec.Status()), rec.CreatedAt(), rec.LastUpdated())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("inventory: record %s already exists: %w", rec.ID(), shared.ErrInvalidArgument)
	}
	return err
}

func (t *txRepository) UpdateRecord(ctx context.Context, rec *Record) error {
	tag, err := t.tx.Exec(ctx, `UPDATE inventory_records SET
		quantity = $2, reserved_quantity = $3, minimum_stock_level = $4, maximum_stock_level = $5,
		status = $6, last_updated = $7
		WHERE id = $1`,
		rec.ID(), rec.Quantity(), rec.ReservedQuantity(), rec.MinimumStockLevel(), rec.MaximumStockLevel(),
		string(rec.Status()), rec.LastUpdated())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("inventory: record %s: %w", rec.ID(), shared.ErrNotFound)
	}
	return nil
}

func (t *txRepository) InsertTransactions(ctx context.Context, txs []Transaction) error {
	for _, tx := range txs {
		_, err := t.tx.Exec(ctx, `INSERT INTO inventory_transactions (`+transactionColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			tx.ID, tx.InventoryID, string(tx.Type), tx.OldQuantity, tx.NewQuantity,
			tx.Reason, tx.PerformedBy, tx.TransactionDate, tx.ReferenceNumber)
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepository) InsertOutbox(ctx context.Context, msgs []OutboxMessage) error {
	for _, m := range msgs {
		_, err := t.tx.Exec(ctx, `INSERT INTO inventory_outbox (id, inventory_id, event_name, payload, occurred_at)
			VALUES ($1, $2, $3, $4, $5)`,
			m.ID, m.InventoryID, m.EventName, m.Payload, m.OccurredAt)
		if err != nil {
			return err
		}
	}
	return nil
}

func scanRecord(row pgx.Row) (ReconstructInput, error) {
	var input ReconstructInput
	var status string
	var unitAmount int64
	var unitCurrency string
	var createdAt, lastUpdated time.Time
	err := row.Scan(&input.ID, &input.ProductID, &input.Quantity, &input.ReservedQuantity, &input.InitialQuantity,
		&input.MinimumStockLevel, &input.MaximumStockLevel, &input.Location, &input.WarehouseCode,
		&unitAmount, &unitCurrency, &status, &createdAt, &lastUpdated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ReconstructInput{}, fmt.Errorf("inventory: record: %w", shared.ErrNotFound)
		}
		return ReconstructInput{}, err
	}
	input.UnitValue = Money{Amount: unitAmount, Currency: unitCurrency}
	input.Status = Status(status)
	input.CreatedAt = createdAt
	input.LastUpdated = lastUpdated
	return input, nil
}

func scanTransaction(rows pgx.Rows) (Transaction, error) {
	var tx Transaction
	var txType string
	if err := rows.Scan(&tx.ID, &tx.InventoryID, &txType, &tx.OldQuantity, &tx.NewQuantity,
		&tx.Reason, &tx.PerformedBy, &tx.TransactionDate, &tx.ReferenceNumber); err != nil {
		return Transaction{}, err
	}
	tx.Type = TransactionType(txType)
	return tx, nil
}
