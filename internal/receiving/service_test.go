package receiving

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-ops/meridian-ops/internal/ledger"
	"github.com/meridian-ops/meridian-ops/internal/shared"
)

type memState struct {
	nextID      int64
	nextLineID  int64
	nextEntryID int64
	orders      map[int64]Order
	stock       map[ledger.PositionKey]int64
	entries     []ledger.Entry
}

func (s *memState) clone() *memState {
	c := &memState{
		nextID:      s.nextID,
		nextLineID:  s.nextLineID,
		nextEntryID: s.nextEntryID,
		orders:      make(map[int64]Order, len(s.orders)),
		stock:       make(map[ledger.PositionKey]int64, len(s.stock)),
		entries:     append([]ledger.Entry(nil), s.entries...),
	}
	for id, o := range s.orders {
		o.Lines = append([]Line(nil), o.Lines...)
		c.orders[id] = o
	}
	for key, qty := range s.stock {
		c.stock[key] = qty
	}
	return c
}

// memRepo commits the transactional clone only when fn succeeds, mirroring
// rollback semantics.
type memRepo struct {
	mu        sync.Mutex
	state     *memState
	locations map[int64]bool
}

func newMemRepo(activeLocations ...int64) *memRepo {
	r := &memRepo{
		state:     &memState{orders: map[int64]Order{}, stock: map[ledger.PositionKey]int64{}},
		locations: map[int64]bool{},
	}
	for _, id := range activeLocations {
		r.locations[id] = true
	}
	return r
}

func (r *memRepo) quantity(key ledger.PositionKey) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.stock[key]
}

func (r *memRepo) entryCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.state.entries)
}

func (r *memRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	staged := r.state.clone()
	if err := fn(ctx, &memTx{state: staged, locations: r.locations}); err != nil {
		return err
	}
	r.state = staged
	return nil
}

func (r *memRepo) Get(ctx context.Context, id int64) (Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.state.orders[id]
	if !ok {
		return Order{}, fmt.Errorf("receiving: order %d: %w", id, shared.ErrNotFound)
	}
	return o, nil
}

func (r *memRepo) List(ctx context.Context, filter ListFilter) ([]Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Order
	for _, o := range r.state.orders {
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

type memTx struct {
	state     *memState
	locations map[int64]bool
}

func (t *memTx) CreateOrder(ctx context.Context, o Order) (int64, error) {
	t.state.nextID++
	o.ID = t.state.nextID
	t.state.orders[o.ID] = o
	return o.ID, nil
}

func (t *memTx) InsertLine(ctx context.Context, line Line) error {
	o, ok := t.state.orders[line.OrderID]
	if !ok {
		return shared.ErrNotFound
	}
	t.state.nextLineID++
	line.ID = t.state.nextLineID
	o.Lines = append(o.Lines, line)
	t.state.orders[line.OrderID] = o
	return nil
}

func (t *memTx) GetForUpdate(ctx context.Context, id int64) (Order, error) {
	o, ok := t.state.orders[id]
	if !ok {
		return Order{}, fmt.Errorf("receiving: order %d: %w", id, shared.ErrNotFound)
	}
	return o, nil
}

func (t *memTx) LinesForUpdate(ctx context.Context, orderID int64) ([]Line, error) {
	o, ok := t.state.orders[orderID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return o.Lines, nil
}

func (t *memTx) AddReceived(ctx context.Context, lineID, qty int64) error {
	for id, o := range t.state.orders {
		for i, line := range o.Lines {
			if line.ID != lineID {
				continue
			}
			if line.ReceivedQty+qty > line.OrderedQty {
				return fmt.Errorf("receiving: line %d would exceed ordered quantity: %w", lineID, shared.ErrOverReceipt)
			}
			o.Lines[i].ReceivedQty += qty
			t.state.orders[id] = o
			return nil
		}
	}
	return shared.ErrNotFound
}

func (t *memTx) SetStatus(ctx context.Context, id int64, status Status) error {
	o, ok := t.state.orders[id]
	if !ok {
		return shared.ErrNotFound
	}
	o.Status = status
	t.state.orders[id] = o
	return nil
}

func (t *memTx) ApplyLedger(ctx context.Context, inputs []ledger.EntryInput) ([]ledger.Entry, error) {
	var out []ledger.Entry
	for _, in := range inputs {
		if err := ledger.ValidateInput(in); err != nil {
			return nil, err
		}
		active, known := t.locations[in.LocationID]
		if !known {
			return nil, fmt.Errorf("ledger: location %d: %w", in.LocationID, shared.ErrNotFound)
		}
		if !active {
			return nil, fmt.Errorf("ledger: location %d is inactive: %w", in.LocationID, shared.ErrInvalidLocation)
		}
		key := in.Key()
		next, err := ledger.ApplyDelta(t.state.stock[key], in.Delta, key)
		if err != nil {
			return nil, err
		}
		t.state.stock[key] = next
		t.state.nextEntryID++
		entry := ledger.Entry{
			ID:         t.state.nextEntryID,
			ProductID:  in.ProductID,
			LocationID: in.LocationID,
			Lot:        in.Lot,
			Delta:      in.Delta,
			Kind:       in.Kind,
			Ref:        in.Ref,
		}
		t.state.entries = append(t.state.entries, entry)
		out = append(out, entry)
	}
	return out, nil
}

type memLocations struct {
	active map[int64]bool
}

func (m *memLocations) Active(ctx context.Context, id int64) (bool, error) {
	active, known := m.active[id]
	if !known {
		return false, fmt.Errorf("locations: location %d: %w", id, shared.ErrNotFound)
	}
	return active, nil
}

func newTestService(repo *memRepo) *Service {
	return NewService(repo, &memLocations{active: repo.locations}, nil, nil, nil)
}

func createTestOrder(t *testing.T, svc *Service, ordered ...int64) Order {
	t.Helper()
	cmd := CreateOrderCommand{LocationID: 3, SupplierRef: "SUP-9"}
	for i, qty := range ordered {
		cmd.Lines = append(cmd.Lines, LineCommand{ProductID: int64(100 + i), OrderedQty: qty, UnitCost: 1.5})
	}
	order, err := svc.CreateOrder(context.Background(), cmd)
	require.NoError(t, err)
	require.Equal(t, StatusPending, order.Status)
	return order
}

func TestDeriveStatusTable(t *testing.T) {
	cases := []struct {
		name  string
		lines []Line
		want  Status
	}{
		{"nothing received", []Line{{OrderedQty: 10}}, StatusPending},
		{"partially received", []Line{{OrderedQty: 10, ReceivedQty: 4}}, StatusPartial},
		{"fully received", []Line{{OrderedQty: 10, ReceivedQty: 10}}, StatusReceived},
		{"one of two lines full", []Line{{OrderedQty: 10, ReceivedQty: 10}, {OrderedQty: 5}}, StatusPartial},
		{"all lines full", []Line{{OrderedQty: 10, ReceivedQty: 10}, {OrderedQty: 5, ReceivedQty: 5}}, StatusReceived},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, DeriveStatus(tc.lines))
		})
	}
}

func TestCreateOrderRejectsInactiveLocation(t *testing.T) {
	repo := newMemRepo(3)
	repo.locations[3] = false
	svc := newTestService(repo)

	_, err := svc.CreateOrder(context.Background(), CreateOrderCommand{
		LocationID: 3,
		Lines:      []LineCommand{{ProductID: 1, OrderedQty: 5}},
	})
	require.ErrorIs(t, err, shared.ErrInvalidLocation)
}

func TestCreateOrderRejectsBadLines(t *testing.T) {
	svc := newTestService(newMemRepo(3))
	ctx := context.Background()

	_, err := svc.CreateOrder(ctx, CreateOrderCommand{LocationID: 3})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.CreateOrder(ctx, CreateOrderCommand{
		LocationID: 3,
		Lines:      []LineCommand{{ProductID: 1, OrderedQty: 0}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestRecordReceiptUpdatesStockAndStatus(t *testing.T) {
	repo := newMemRepo(3)
	svc := newTestService(repo)
	ctx := context.Background()

	order := createTestOrder(t, svc, 10)
	line := order.Lines[0]

	require.NoError(t, svc.RecordReceipt(ctx, order.ID, []LineReceipt{{LineID: line.ID, Qty: 4}}, ""))
	status, err := svc.Status(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPartial, status)
	require.EqualValues(t, 4, repo.quantity(ledger.PositionKey{ProductID: line.ProductID, LocationID: 3}))

	require.NoError(t, svc.RecordReceipt(ctx, order.ID, []LineReceipt{{LineID: line.ID, Qty: 6}}, ""))
	status, err = svc.Status(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, StatusReceived, status)
	require.EqualValues(t, 10, repo.quantity(ledger.PositionKey{ProductID: line.ProductID, LocationID: 3}))
	require.Equal(t, 2, repo.entryCount())
}

func TestRecordReceiptRejectsOverReceipt(t *testing.T) {
	repo := newMemRepo(3)
	svc := newTestService(repo)
	ctx := context.Background()

	order := createTestOrder(t, svc, 10)
	line := order.Lines[0]

	require.NoError(t, svc.RecordReceipt(ctx, order.ID, []LineReceipt{{LineID: line.ID, Qty: 4}}, ""))

	// 4 received + 7 would exceed the 10 ordered; line stays at 4.
	err := svc.RecordReceipt(ctx, order.ID, []LineReceipt{{LineID: line.ID, Qty: 7}}, "")
	require.ErrorIs(t, err, shared.ErrOverReceipt)

	got, err := svc.Get(ctx, order.ID)
	require.NoError(t, err)
	require.EqualValues(t, 4, got.Lines[0].ReceivedQty)
	require.Equal(t, StatusPartial, got.Status)
	require.EqualValues(t, 4, repo.quantity(ledger.PositionKey{ProductID: line.ProductID, LocationID: 3}))
	require.Equal(t, 1, repo.entryCount())
}

func TestRecordReceiptAllOrNothingAcrossLines(t *testing.T) {
	repo := newMemRepo(3)
	svc := newTestService(repo)
	ctx := context.Background()

	order := createTestOrder(t, svc, 10, 5)
	good, bad := order.Lines[0], order.Lines[1]

	// Second line over-receives, so the first line must not be applied
	// either.
	err := svc.RecordReceipt(ctx, order.ID, []LineReceipt{
		{LineID: good.ID, Qty: 10},
		{LineID: bad.ID, Qty: 6},
	}, "")
	require.ErrorIs(t, err, shared.ErrOverReceipt)

	got, err := svc.Get(ctx, order.ID)
	require.NoError(t, err)
	require.EqualValues(t, 0, got.Lines[0].ReceivedQty)
	require.EqualValues(t, 0, got.Lines[1].ReceivedQty)
	require.Equal(t, StatusPending, got.Status)
	require.Equal(t, 0, repo.entryCount())
}

func TestRecordReceiptDuplicateLineAggregates(t *testing.T) {
	repo := newMemRepo(3)
	svc := newTestService(repo)
	ctx := context.Background()

	order := createTestOrder(t, svc, 10)
	line := order.Lines[0]

	// Two receipts for the same line inside one batch count together.
	err := svc.RecordReceipt(ctx, order.ID, []LineReceipt{
		{LineID: line.ID, Qty: 6},
		{LineID: line.ID, Qty: 6},
	}, "")
	require.ErrorIs(t, err, shared.ErrOverReceipt)

	require.NoError(t, svc.RecordReceipt(ctx, order.ID, []LineReceipt{
		{LineID: line.ID, Qty: 6},
		{LineID: line.ID, Qty: 4},
	}, ""))
	status, err := svc.Status(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, StatusReceived, status)
}

func TestRecordReceiptRejectsCancelledOrder(t *testing.T) {
	repo := newMemRepo(3)
	svc := newTestService(repo)
	ctx := context.Background()

	order := createTestOrder(t, svc, 10)
	require.NoError(t, svc.Cancel(ctx, order.ID))

	err := svc.RecordReceipt(ctx, order.ID, []LineReceipt{{LineID: order.Lines[0].ID, Qty: 1}}, "")
	require.ErrorIs(t, err, shared.ErrInvalidState)
	require.Equal(t, 0, repo.entryCount())
}

func TestCancelRules(t *testing.T) {
	repo := newMemRepo(3)
	svc := newTestService(repo)
	ctx := context.Background()

	// Partial orders may be cancelled.
	order := createTestOrder(t, svc, 10)
	require.NoError(t, svc.RecordReceipt(ctx, order.ID, []LineReceipt{{LineID: order.Lines[0].ID, Qty: 3}}, ""))
	require.NoError(t, svc.Cancel(ctx, order.ID))
	status, err := svc.Status(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, status)

	// Fully received orders may not.
	order = createTestOrder(t, svc, 5)
	require.NoError(t, svc.RecordReceipt(ctx, order.ID, []LineReceipt{{LineID: order.Lines[0].ID, Qty: 5}}, ""))
	require.ErrorIs(t, svc.Cancel(ctx, order.ID), shared.ErrInvalidState)
}
