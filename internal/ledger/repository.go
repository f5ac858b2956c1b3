package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-ops/meridian-ops/internal/platform/db"
	"github.com/meridian-ops/meridian-ops/internal/shared"
)

// Repository persists ledger entries and positions in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// AppendBatch applies the inputs in a single repeatable-read transaction.
func (r *Repository) AppendBatch(ctx context.Context, inputs []EntryInput) ([]Entry, error) {
	if r == nil {
		return nil, errors.New("ledger repository not initialised")
	}
	var entries []Entry
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		applied, err := ApplyBatch(ctx, tx, inputs)
		if err != nil {
			return err
		}
		entries = applied
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// ApplyBatch validates and applies entries within the caller's transaction.
// Workflow repositories call this so a status change and its ledger effect
// commit or roll back together. Position rows are locked in deterministic
// key order; any failing entry aborts the whole batch.
func ApplyBatch(ctx context.Context, tx pgx.Tx, inputs []EntryInput) ([]Entry, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("ledger: empty batch: %w", shared.ErrValidation)
	}
	for _, in := range inputs {
		if err := ValidateInput(in); err != nil {
			return nil, err
		}
	}

	byKey := make(map[PositionKey][]int)
	keys := make([]PositionKey, 0, len(inputs))
	locationIDs := make(map[int64]struct{})
	for i, in := range inputs {
		key := in.Key()
		if _, ok := byKey[key]; !ok {
			keys = append(keys, key)
		}
		byKey[key] = append(byKey[key], i)
		locationIDs[in.LocationID] = struct{}{}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	for id := range locationIDs {
		if err := checkLocationActive(ctx, tx, id); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	entries := make([]Entry, len(inputs))
	for _, key := range keys {
		pos, err := positionForUpdate(ctx, tx, key)
		if err != nil {
			return nil, err
		}
		for _, idx := range byKey[key] {
			in := inputs[idx]
			next, err := ApplyDelta(pos.Qty, in.Delta, key)
			if err != nil {
				return nil, err
			}
			pos.UnitCost = movingCost(pos, in.Delta, in.UnitCost, next)
			pos.Qty = next
			if in.ExpiresAt != nil {
				pos.ExpiresAt = in.ExpiresAt
			}
			entry := Entry{
				ProductID:  in.ProductID,
				LocationID: in.LocationID,
				Lot:        in.Lot,
				Delta:      in.Delta,
				Kind:       in.Kind,
				OccurredAt: now,
				ActorID:    in.ActorID,
				Ref:        in.Ref,
			}
			id, err := insertEntry(ctx, tx, entry)
			if err != nil {
				return nil, err
			}
			entry.ID = id
			entries[idx] = entry
		}
		if err := upsertPosition(ctx, tx, pos); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

// Quantity returns the live projection for the key. A missing row is zero.
func (r *Repository) Quantity(ctx context.Context, key PositionKey) (int64, error) {
	var qty int64
	err := r.pool.QueryRow(ctx, `SELECT qty FROM stock_positions WHERE product_id=$1 AND location_id=$2 AND lot=$3`,
		key.ProductID, key.LocationID, key.Lot).Scan(&qty)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return qty, nil
}

// History produces a time-ordered, cursor-restartable entry listing.
func (r *Repository) History(ctx context.Context, filter HistoryFilter) ([]Entry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	query := `SELECT id, product_id, location_id, lot, qty_delta, kind, occurred_at, actor_id, ref
FROM stock_entries
WHERE product_id=$1 AND location_id=$2 AND id > $3`
	args := []any{filter.ProductID, filter.LocationID, filter.AfterID}
	if filter.Lot != nil {
		args = append(args, *filter.Lot)
		query += fmt.Sprintf(" AND lot=$%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY occurred_at ASC, id ASC LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.ProductID, &e.LocationID, &e.Lot, &e.Delta, &e.Kind, &e.OccurredAt, &e.ActorID, &e.Ref); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ListPositions returns all positions at a location, zero rows included.
func (r *Repository) ListPositions(ctx context.Context, locationID int64) ([]Position, error) {
	rows, err := r.pool.Query(ctx, `SELECT product_id, location_id, lot, qty, unit_cost, expires_at, updated_at
FROM stock_positions WHERE location_id=$1 ORDER BY product_id, lot`, locationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	positions := []Position{}
	for rows.Next() {
		var p Position
		if err := rows.Scan(&p.ProductID, &p.LocationID, &p.Lot, &p.Qty, &p.UnitCost, &p.ExpiresAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

func checkLocationActive(ctx context.Context, tx pgx.Tx, locationID int64) error {
	var active bool
	err := tx.QueryRow(ctx, `SELECT is_active FROM locations WHERE id=$1`, locationID).Scan(&active)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("ledger: location %d: %w", locationID, shared.ErrNotFound)
	}
	if err != nil {
		return err
	}
	if !active {
		return fmt.Errorf("ledger: location %d is inactive: %w", locationID, shared.ErrInvalidLocation)
	}
	return nil
}

func positionForUpdate(ctx context.Context, tx pgx.Tx, key PositionKey) (Position, error) {
	var pos Position
	err := tx.QueryRow(ctx, `SELECT product_id, location_id, lot, qty, unit_cost, expires_at, updated_at
FROM stock_positions WHERE product_id=$1 AND location_id=$2 AND lot=$3 FOR UPDATE`,
		key.ProductID, key.LocationID, key.Lot).
		Scan(&pos.ProductID, &pos.LocationID, &pos.Lot, &pos.Qty, &pos.UnitCost, &pos.ExpiresAt, &pos.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Position{ProductID: key.ProductID, LocationID: key.LocationID, Lot: key.Lot}, nil
	}
	if err != nil {
		return Position{}, err
	}
	return pos, nil
}

func insertEntry(ctx context.Context, tx pgx.Tx, e Entry) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, `INSERT INTO stock_entries (product_id, location_id, lot, qty_delta, kind, occurred_at, actor_id, ref)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`,
		e.ProductID, e.LocationID, e.Lot, e.Delta, string(e.Kind), e.OccurredAt, e.ActorID, e.Ref).Scan(&id)
	return id, err
}

func upsertPosition(ctx context.Context, tx pgx.Tx, pos Position) error {
	_, err := tx.Exec(ctx, `INSERT INTO stock_positions (product_id, location_id, lot, qty, unit_cost, expires_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW())
ON CONFLICT (product_id, location_id, lot) DO UPDATE SET qty=EXCLUDED.qty, unit_cost=EXCLUDED.unit_cost, expires_at=EXCLUDED.expires_at, updated_at=NOW()`,
		pos.ProductID, pos.LocationID, pos.Lot, pos.Qty, pos.UnitCost, pos.ExpiresAt)
	return err
}
