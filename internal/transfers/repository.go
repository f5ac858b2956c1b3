package transfers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-ops/meridian-ops/internal/ledger"
	"github.com/meridian-ops/meridian-ops/internal/shared"
)

// TxRepository exposes the operations available inside one transaction.
// ApplyLedger shares the transaction with the status claim so the paired
// OUT/IN entries and the COMPLETED flip commit or roll back together.
type TxRepository interface {
	CreateTransfer(ctx context.Context, t Transfer) (int64, error)
	InsertLine(ctx context.Context, line Line) error
	GetForUpdate(ctx context.Context, id int64) (Transfer, error)
	Lines(ctx context.Context, transferID int64) ([]Line, error)
	SetStatus(ctx context.Context, id int64, from, to Status) (bool, error)
	ApplyLedger(ctx context.Context, inputs []ledger.EntryInput) ([]ledger.Entry, error)
}

// Repository persists transfers in PostgreSQL.
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

func (t *txRepo) CreateTransfer(ctx context.Context, tr Transfer) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO transfers (ref, from_location_id, to_location_id, status, note, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		RETURNING id`,
		tr.Ref, tr.FromLocationID, tr.ToLocationID, tr.Status, tr.Note, tr.CreatedBy,
	).Scan(&id)
	return id, err
}

func (t *txRepo) InsertLine(ctx context.Context, line Line) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO transfer_lines (transfer_id, product_id, lot, qty, unit_cost)
		VALUES ($1, $2, $3, $4, $5)`,
		line.TransferID, line.ProductID, line.Lot, line.Qty, line.UnitCost)
	return err
}

func (t *txRepo) GetForUpdate(ctx context.Context, id int64) (Transfer, error) {
	var tr Transfer
	err := t.tx.QueryRow(ctx, `
		SELECT id, ref, from_location_id, to_location_id, status, note, created_by, created_at, updated_at, completed_at
		FROM transfers WHERE id = $1 FOR UPDATE`, id).
		Scan(&tr.ID, &tr.Ref, &tr.FromLocationID, &tr.ToLocationID, &tr.Status, &tr.Note, &tr.CreatedBy, &tr.CreatedAt, &tr.UpdatedAt, &tr.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Transfer{}, fmt.Errorf("transfers: transfer %d: %w", id, shared.ErrNotFound)
	}
	return tr, err
}

func (t *txRepo) Lines(ctx context.Context, transferID int64) ([]Line, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, transfer_id, product_id, lot, qty, unit_cost
		FROM transfer_lines WHERE transfer_id = $1 ORDER BY id`, transferID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.TransferID, &line.ProductID, &line.Lot, &line.Qty, &line.UnitCost); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (t *txRepo) SetStatus(ctx context.Context, id int64, from, to Status) (bool, error) {
	var completedAt any
	if to == StatusCompleted {
		completedAt = time.Now().UTC()
	}
	tag, err := t.tx.Exec(ctx, `
		UPDATE transfers SET status = $1, completed_at = COALESCE($2, completed_at), updated_at = now()
		WHERE id = $3 AND status = $4`, to, completedAt, id, from)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (t *txRepo) ApplyLedger(ctx context.Context, inputs []ledger.EntryInput) ([]ledger.Entry, error) {
	return ledger.ApplyBatch(ctx, t.tx, inputs)
}

// Get loads a transfer with its lines.
func (r *Repository) Get(ctx context.Context, id int64) (Transfer, error) {
	var tr Transfer
	err := r.pool.QueryRow(ctx, `
		SELECT id, ref, from_location_id, to_location_id, status, note, created_by, created_at, updated_at, completed_at
		FROM transfers WHERE id = $1`, id).
		Scan(&tr.ID, &tr.Ref, &tr.FromLocationID, &tr.ToLocationID, &tr.Status, &tr.Note, &tr.CreatedBy, &tr.CreatedAt, &tr.UpdatedAt, &tr.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Transfer{}, fmt.Errorf("transfers: transfer %d: %w", id, shared.ErrNotFound)
	}
	if err != nil {
		return Transfer{}, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, transfer_id, product_id, lot, qty, unit_cost
		FROM transfer_lines WHERE transfer_id = $1 ORDER BY id`, id)
	if err != nil {
		return Transfer{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.TransferID, &line.ProductID, &line.Lot, &line.Qty, &line.UnitCost); err != nil {
			return Transfer{}, err
		}
		tr.Lines = append(tr.Lines, line)
	}
	return tr, rows.Err()
}

// List returns transfers newest first, optionally filtered by status.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Transfer, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `
		SELECT id, ref, from_location_id, to_location_id, status, note, created_by, created_at, updated_at, completed_at
		FROM transfers`
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
	var out []Transfer
	for rows.Next() {
		var tr Transfer
		if err := rows.Scan(&tr.ID, &tr.Ref, &tr.FromLocationID, &tr.ToLocationID, &tr.Status, &tr.Note, &tr.CreatedBy, &tr.CreatedAt, &tr.UpdatedAt, &tr.CompletedAt); err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}
