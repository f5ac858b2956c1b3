package e2e

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/meridian-ops/meridian-ops/internal/ledger"
	"github.com/meridian-ops/meridian-ops/internal/receiving"
	"github.com/meridian-ops/meridian-ops/internal/shared"
	"github.com/meridian-ops/meridian-ops/internal/transfers"
	_ "github.com/meridian-ops/meridian-ops/testing"
)

// engine holds the whole in-memory stock state shared by the transfer and
// receiving fixtures, so one scenario can move stock through both workflows.
type engine struct {
	mu        sync.Mutex
	nextID    int64
	stock     map[ledger.PositionKey]int64
	entries   []ledger.Entry
	transfers map[int64]transfers.Transfer
	orders    map[int64]receiving.Order
	locations map[int64]bool
}

func newEngine(activeLocations ...int64) *engine {
	e := &engine{
		stock:     map[ledger.PositionKey]int64{},
		transfers: map[int64]transfers.Transfer{},
		orders:    map[int64]receiving.Order{},
		locations: map[int64]bool{},
	}
	for _, id := range activeLocations {
		e.locations[id] = true
	}
	return e
}

func (e *engine) id() int64 {
	e.nextID++
	return e.nextID
}

func (e *engine) applyLedger(inputs []ledger.EntryInput, stock map[ledger.PositionKey]int64, entries *[]ledger.Entry) ([]ledger.Entry, error) {
	var out []ledger.Entry
	for _, in := range inputs {
		if err := ledger.ValidateInput(in); err != nil {
			return nil, err
		}
		active, known := e.locations[in.LocationID]
		if !known {
			return nil, fmt.Errorf("ledger: location %d: %w", in.LocationID, shared.ErrNotFound)
		}
		if !active {
			return nil, fmt.Errorf("ledger: location %d is inactive: %w", in.LocationID, shared.ErrInvalidLocation)
		}
		key := in.Key()
		next, err := ledger.ApplyDelta(stock[key], in.Delta, key)
		if err != nil {
			return nil, err
		}
		stock[key] = next
		entry := ledger.Entry{
			ID:         e.id(),
			ProductID:  in.ProductID,
			LocationID: in.LocationID,
			Lot:        in.Lot,
			Delta:      in.Delta,
			Kind:       in.Kind,
			Ref:        in.Ref,
		}
		*entries = append(*entries, entry)
		out = append(out, entry)
	}
	return out, nil
}

func (e *engine) Active(ctx context.Context, id int64) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	active, known := e.locations[id]
	if !known {
		return false, fmt.Errorf("locations: location %d: %w", id, shared.ErrNotFound)
	}
	return active, nil
}

func (e *engine) quantity(key ledger.PositionKey) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stock[key]
}

func (e *engine) replaySum(key ledger.PositionKey) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	var sum int64
	for _, entry := range e.entries {
		if entry.Key() == key {
			sum += entry.Delta
		}
	}
	return sum
}

// transferRepo adapts engine to transfers ports with copy-commit tx
// semantics.
type transferRepo struct {
	engine *engine
}

type transferTx struct {
	engine  *engine
	stock   map[ledger.PositionKey]int64
	rows    map[int64]transfers.Transfer
	entries []ledger.Entry
}

func (r *transferRepo) WithTx(ctx context.Context, fn func(context.Context, transfers.TxRepository) error) error {
	e := r.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	tx := &transferTx{
		engine:  e,
		stock:   make(map[ledger.PositionKey]int64, len(e.stock)),
		rows:    make(map[int64]transfers.Transfer, len(e.transfers)),
		entries: append([]ledger.Entry(nil), e.entries...),
	}
	for k, v := range e.stock {
		tx.stock[k] = v
	}
	for k, v := range e.transfers {
		v.Lines = append([]transfers.Line(nil), v.Lines...)
		tx.rows[k] = v
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	e.stock = tx.stock
	e.transfers = tx.rows
	e.entries = tx.entries
	return nil
}

func (r *transferRepo) Get(ctx context.Context, id int64) (transfers.Transfer, error) {
	r.engine.mu.Lock()
	defer r.engine.mu.Unlock()
	tr, ok := r.engine.transfers[id]
	if !ok {
		return transfers.Transfer{}, fmt.Errorf("transfers: transfer %d: %w", id, shared.ErrNotFound)
	}
	return tr, nil
}

func (r *transferRepo) List(ctx context.Context, filter transfers.ListFilter) ([]transfers.Transfer, error) {
	r.engine.mu.Lock()
	defer r.engine.mu.Unlock()
	var out []transfers.Transfer
	for _, tr := range r.engine.transfers {
		if filter.Status != "" && tr.Status != filter.Status {
			continue
		}
		out = append(out, tr)
	}
	return out, nil
}

func (t *transferTx) CreateTransfer(ctx context.Context, tr transfers.Transfer) (int64, error) {
	tr.ID = t.engine.id()
	t.rows[tr.ID] = tr
	return tr.ID, nil
}

func (t *transferTx) InsertLine(ctx context.Context, line transfers.Line) error {
	tr, ok := t.rows[line.TransferID]
	if !ok {
		return shared.ErrNotFound
	}
	line.ID = t.engine.id()
	tr.Lines = append(tr.Lines, line)
	t.rows[line.TransferID] = tr
	return nil
}

func (t *transferTx) GetForUpdate(ctx context.Context, id int64) (transfers.Transfer, error) {
	tr, ok := t.rows[id]
	if !ok {
		return transfers.Transfer{}, fmt.Errorf("transfers: transfer %d: %w", id, shared.ErrNotFound)
	}
	return tr, nil
}

func (t *transferTx) Lines(ctx context.Context, transferID int64) ([]transfers.Line, error) {
	tr, ok := t.rows[transferID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return tr.Lines, nil
}

func (t *transferTx) SetStatus(ctx context.Context, id int64, from, to transfers.Status) (bool, error) {
	tr, ok := t.rows[id]
	if !ok || tr.Status != from {
		return false, nil
	}
	tr.Status = to
	t.rows[id] = tr
	return true, nil
}

func (t *transferTx) ApplyLedger(ctx context.Context, inputs []ledger.EntryInput) ([]ledger.Entry, error) {
	return t.engine.applyLedger(inputs, t.stock, &t.entries)
}

// receivingRepo adapts engine to receiving ports.
type receivingRepo struct {
	engine *engine
}

type receivingTx struct {
	engine  *engine
	stock   map[ledger.PositionKey]int64
	rows    map[int64]receiving.Order
	entries []ledger.Entry
}

func (r *receivingRepo) WithTx(ctx context.Context, fn func(context.Context, receiving.TxRepository) error) error {
	e := r.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	tx := &receivingTx{
		engine:  e,
		stock:   make(map[ledger.PositionKey]int64, len(e.stock)),
		rows:    make(map[int64]receiving.Order, len(e.orders)),
		entries: append([]ledger.Entry(nil), e.entries...),
	}
	for k, v := range e.stock {
		tx.stock[k] = v
	}
	for k, v := range e.orders {
		v.Lines = append([]receiving.Line(nil), v.Lines...)
		tx.rows[k] = v
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	e.stock = tx.stock
	e.orders = tx.rows
	e.entries = tx.entries
	return nil
}

func (r *receivingRepo) Get(ctx context.Context, id int64) (receiving.Order, error) {
	r.engine.mu.Lock()
	defer r.engine.mu.Unlock()
	o, ok := r.engine.orders[id]
	if !ok {
		return receiving.Order{}, fmt.Errorf("receiving: order %d: %w", id, shared.ErrNotFound)
	}
	return o, nil
}

func (r *receivingRepo) List(ctx context.Context, filter receiving.ListFilter) ([]receiving.Order, error) {
	r.engine.mu.Lock()
	defer r.engine.mu.Unlock()
	var out []receiving.Order
	for _, o := range r.engine.orders {
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

func (t *receivingTx) CreateOrder(ctx context.Context, o receiving.Order) (int64, error) {
	o.ID = t.engine.id()
	t.rows[o.ID] = o
	return o.ID, nil
}

func (t *receivingTx) InsertLine(ctx context.Context, line receiving.Line) error {
	o, ok := t.rows[line.OrderID]
	if !ok {
		return shared.ErrNotFound
	}
	line.ID = t.engine.id()
	o.Lines = append(o.Lines, line)
	t.rows[line.OrderID] = o
	return nil
}

func (t *receivingTx) GetForUpdate(ctx context.Context, id int64) (receiving.Order, error) {
	o, ok := t.rows[id]
	if !ok {
		return receiving.Order{}, fmt.Errorf("receiving: order %d: %w", id, shared.ErrNotFound)
	}
	return o, nil
}

func (t *receivingTx) LinesForUpdate(ctx context.Context, orderID int64) ([]receiving.Line, error) {
	o, ok := t.rows[orderID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return o.Lines, nil
}

func (t *receivingTx) AddReceived(ctx context.Context, lineID, qty int64) error {
	for id, o := range t.rows {
		for i, line := range o.Lines {
			if line.ID != lineID {
				continue
			}
			if line.ReceivedQty+qty > line.OrderedQty {
				return fmt.Errorf("receiving: line %d would exceed ordered quantity: %w", lineID, shared.ErrOverReceipt)
			}
			o.Lines[i].ReceivedQty += qty
			t.rows[id] = o
			return nil
		}
	}
	return shared.ErrNotFound
}

func (t *receivingTx) SetStatus(ctx context.Context, id int64, status receiving.Status) error {
	o, ok := t.rows[id]
	if !ok {
		return shared.ErrNotFound
	}
	o.Status = status
	t.rows[id] = o
	return nil
}

func (t *receivingTx) ApplyLedger(ctx context.Context, inputs []ledger.EntryInput) ([]ledger.Entry, error) {
	return t.engine.applyLedger(inputs, t.stock, &t.entries)
}

// EngineSuite walks one product through receiving, transfer and rejection
// paths against a shared stock state.
type EngineSuite struct {
	suite.Suite
	engine    *engine
	transfers *transfers.Service
	receiving *receiving.Service
}

func (s *EngineSuite) SetupTest() {
	// Locations: 1 = warehouse A, 2 = store B, 3 = warehouse C.
	s.engine = newEngine(1, 2, 3)
	s.transfers = transfers.NewService(&transferRepo{engine: s.engine}, s.engine, nil, nil, nil)
	s.receiving = receiving.NewService(&receivingRepo{engine: s.engine}, s.engine, nil, nil, nil)
}

func (s *EngineSuite) TestWarehouseFlow() {
	ctx := context.Background()
	const productID = int64(7001)

	// Stock warehouse A with 20 via a fully received supplier order.
	order, err := s.receiving.CreateOrder(ctx, receiving.CreateOrderCommand{
		SupplierRef: "SUP-ACME",
		LocationID:  1,
		Lines:       []receiving.LineCommand{{ProductID: productID, OrderedQty: 20, UnitCost: 2.5}},
	})
	s.Require().NoError(err)
	s.Require().NoError(s.receiving.RecordReceipt(ctx, order.ID, []receiving.LineReceipt{{LineID: order.Lines[0].ID, Qty: 20}}, ""))

	keyA := ledger.PositionKey{ProductID: productID, LocationID: 1}
	keyB := ledger.PositionKey{ProductID: productID, LocationID: 2}
	s.Require().EqualValues(20, s.engine.quantity(keyA))

	// Move 5 to store B.
	tr, err := s.transfers.Create(ctx, transfers.CreateCommand{
		FromLocationID: 1,
		ToLocationID:   2,
		Lines:          []transfers.LineCommand{{ProductID: productID, Qty: 5}},
	})
	s.Require().NoError(err)
	s.Require().NoError(s.transfers.Start(ctx, tr.ID))
	s.Require().NoError(s.transfers.Complete(ctx, tr.ID))

	s.Require().EqualValues(15, s.engine.quantity(keyA))
	s.Require().EqualValues(5, s.engine.quantity(keyB))

	// Retrying the completion is a no-op.
	s.Require().NoError(s.transfers.Complete(ctx, tr.ID))
	s.Require().EqualValues(15, s.engine.quantity(keyA))
	s.Require().EqualValues(5, s.engine.quantity(keyB))

	// Every position equals the replay of its entries.
	s.Require().Equal(s.engine.replaySum(keyA), s.engine.quantity(keyA))
	s.Require().Equal(s.engine.replaySum(keyB), s.engine.quantity(keyB))
}

func (s *EngineSuite) TestReceivingLifecycleAtWarehouseC() {
	ctx := context.Background()
	const productID = int64(7002)

	order, err := s.receiving.CreateOrder(ctx, receiving.CreateOrderCommand{
		SupplierRef: "SUP-ACME",
		LocationID:  3,
		Lines:       []receiving.LineCommand{{ProductID: productID, OrderedQty: 100, UnitCost: 1.2}},
	})
	s.Require().NoError(err)
	line := order.Lines[0]

	status, err := s.receiving.Status(ctx, order.ID)
	s.Require().NoError(err)
	s.Require().Equal(receiving.StatusPending, status)

	s.Require().NoError(s.receiving.RecordReceipt(ctx, order.ID, []receiving.LineReceipt{{LineID: line.ID, Qty: 60}}, ""))
	status, err = s.receiving.Status(ctx, order.ID)
	s.Require().NoError(err)
	s.Require().Equal(receiving.StatusPartial, status)

	s.Require().NoError(s.receiving.RecordReceipt(ctx, order.ID, []receiving.LineReceipt{{LineID: line.ID, Qty: 40}}, ""))
	status, err = s.receiving.Status(ctx, order.ID)
	s.Require().NoError(err)
	s.Require().Equal(receiving.StatusReceived, status)

	// One more unit is rejected and nothing changes.
	err = s.receiving.RecordReceipt(ctx, order.ID, []receiving.LineReceipt{{LineID: line.ID, Qty: 1}}, "")
	s.Require().ErrorIs(err, shared.ErrInvalidState)

	key := ledger.PositionKey{ProductID: productID, LocationID: 3}
	s.Require().EqualValues(100, s.engine.quantity(key))
	s.Require().Equal(s.engine.replaySum(key), s.engine.quantity(key))
}

func (s *EngineSuite) TestTransferFailsIntoInactiveStore() {
	ctx := context.Background()
	const productID = int64(7003)

	order, err := s.receiving.CreateOrder(ctx, receiving.CreateOrderCommand{
		LocationID: 1,
		Lines:      []receiving.LineCommand{{ProductID: productID, OrderedQty: 10, UnitCost: 1}},
	})
	s.Require().NoError(err)
	s.Require().NoError(s.receiving.RecordReceipt(ctx, order.ID, []receiving.LineReceipt{{LineID: order.Lines[0].ID, Qty: 10}}, ""))

	tr, err := s.transfers.Create(ctx, transfers.CreateCommand{
		FromLocationID: 1,
		ToLocationID:   2,
		Lines:          []transfers.LineCommand{{ProductID: productID, Qty: 4}},
	})
	s.Require().NoError(err)
	s.Require().NoError(s.transfers.Start(ctx, tr.ID))

	// Store B is retired between start and complete; the in-transaction
	// location check rejects the posting.
	s.engine.mu.Lock()
	s.engine.locations[2] = false
	s.engine.mu.Unlock()

	err = s.transfers.Complete(ctx, tr.ID)
	s.Require().ErrorIs(err, shared.ErrInvalidLocation)
	s.Require().EqualValues(10, s.engine.quantity(ledger.PositionKey{ProductID: productID, LocationID: 1}))
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func TestSelfTransferRejectedEndToEnd(t *testing.T) {
	e := newEngine(1)
	svc := transfers.NewService(&transferRepo{engine: e}, e, nil, nil, nil)
	_, err := svc.Create(context.Background(), transfers.CreateCommand{
		FromLocationID: 1,
		ToLocationID:   1,
		Lines:          []transfers.LineCommand{{ProductID: 1, Qty: 1}},
	})
	require.ErrorIs(t, err, shared.ErrInvalidLocation)
}
