package receiving

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-ops/meridian-ops/internal/ledger"
	"github.com/meridian-ops/meridian-ops/internal/shared"
)

// TxRepository exposes the operations available inside one transaction.
// ApplyLedger shares the transaction with line updates and the status write
// so a receipt commits or rolls back as a unit.
type TxRepository interface {
	CreateOrder(ctx context.Context, o Order) (int64, error)
	InsertLine(ctx context.Context, line Line) error
	GetForUpdate(ctx context.Context, id int64) (Order, error)
	LinesForUpdate(ctx context.Context, orderID int64) ([]Line, error)
	AddReceived(ctx context.Context, lineID, qty int64) error
	SetStatus(ctx context.Context, id int64, status Status) error
	ApplyLedger(ctx context.Context, inputs []ledger.EntryInput) ([]ledger.Entry, error)
}

// Repository persists receiving orders in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	if err := fn(ctx, &txRepo{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func (t *txRepo) CreateOrder(ctx context.Context, o Order) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO receiving_orders (ref, supplier_ref, location_id, expected_date, status, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		RETURNING id`,
		o.Ref, o.SupplierRef, o.LocationID, o.ExpectedDate, o.Status, o.CreatedBy,
	).Scan(&id)
	return id, err
}

func (t *txRepo) InsertLine(ctx context.Context, line Line) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO receiving_lines (order_id, product_id, lot, ordered_qty, received_qty, unit_cost)
		VALUES ($1, $2, $3, $4, 0, $5)`,
		line.OrderID, line.ProductID, line.Lot, line.OrderedQty, line.UnitCost)
	return err
}

func (t *txRepo) GetForUpdate(ctx context.Context, id int64) (Order, error) {
	var o Order
	err := t.tx.QueryRow(ctx, `
		SELECT id, ref, supplier_ref, location_id, expected_date, status, created_by, created_at, updated_at
		FROM receiving_orders WHERE id = $1 FOR UPDATE`, id).
		Scan(&o.ID, &o.Ref, &o.SupplierRef, &o.LocationID, &o.ExpectedDate, &o.Status, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, fmt.Errorf("receiving: order %d: %w", id, shared.ErrNotFound)
	}
	return o, err
}

func (t *txRepo) LinesForUpdate(ctx context.Context, orderID int64) ([]Line, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, order_id, product_id, lot, ordered_qty, received_qty, unit_cost
		FROM receiving_lines WHERE order_id = $1 ORDER BY id FOR UPDATE`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLines(rows)
}

func (t *txRepo) AddReceived(ctx context.Context, lineID, qty int64) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE receiving_lines SET received_qty = received_qty + $1
		WHERE id = $2 AND received_qty + $1 <= ordered_qty`, qty, lineID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("receiving: line %d would exceed ordered quantity: %w", lineID, shared.ErrOverReceipt)
	}
	return nil
}

func (t *txRepo) SetStatus(ctx context.Context, id int64, status Status) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE receiving_orders SET status = $1, updated_at = now() WHERE id = $2`, status, id)
	return err
}

func (t *txRepo) ApplyLedger(ctx context.Context, inputs []ledger.EntryInput) ([]ledger.Entry, error) {
	return ledger.ApplyBatch(ctx, t.tx, inputs)
}

// Get loads an order with its lines.
func (r *Repository) Get(ctx context.Context, id int64) (Order, error) {
	var o Order
	err := r.pool.QueryRow(ctx, `
		SELECT id, ref, supplier_ref, location_id, expected_date, status, created_by, created_at, updated_at
		FROM receiving_orders WHERE id = $1`, id).
		Scan(&o.ID, &o.Ref, &o.SupplierRef, &o.LocationID, &o.ExpectedDate, &o.Status, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, fmt.Errorf("receiving: order %d: %w", id, shared.ErrNotFound)
	}
	if err != nil {
		return Order{}, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, order_id, product_id, lot, ordered_qty, received_qty, unit_cost
		FROM receiving_lines WHERE order_id = $1 ORDER BY id`, id)
	if err != nil {
		return Order{}, err
	}
	defer rows.Close()
	o.Lines, err = scanLines(rows)
	return o, err
}

// List returns orders newest first, optionally filtered by status.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Order, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `
		SELECT id, ref, supplier_ref, location_id, expected_date, status, created_by, created_at, updated_at
		FROM receiving_orders`
	args := []any{}
	if filter.Status != "" {
		query += ` WHERE status = $1 ORDER BY id DESC LIMIT $2`
		args = append(args, filter.Status, limit)
	} else {
		query += ` ORDER BY id DESC LIMIT $1`
		args = append(args, limit)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.Ref, &o.SupplierRef, &o.LocationID, &o.ExpectedDate, &o.Status, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func scanLines(rows pgx.Rows) ([]Line, error) {
	var lines []Line
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.OrderID, &line.ProductID, &line.Lot, &line.OrderedQty, &line.ReceivedQty, &line.UnitCost); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}
