package ledger

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-ops/meridian-ops/internal/shared"
)

func TestValidateKind(t *testing.T) {
	cases := []struct {
		name  string
		kind  MovementKind
		delta int64
		ok    bool
	}{
		{"in positive", KindIn, 5, true},
		{"in negative", KindIn, -5, false},
		{"in zero", KindIn, 0, false},
		{"out negative", KindOut, -3, true},
		{"out positive", KindOut, 3, false},
		{"transfer-in positive", KindTransferIn, 1, true},
		{"transfer-out negative", KindTransferOut, -1, true},
		{"transfer-out positive", KindTransferOut, 1, false},
		{"adjustment positive", KindAdjustment, 7, true},
		{"adjustment negative", KindAdjustment, -7, true},
		{"adjustment zero", KindAdjustment, 0, false},
		{"unknown kind", MovementKind("teleport"), 1, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateKind(tc.kind, tc.delta)
			if tc.ok {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, shared.ErrValidation)
		})
	}
}

func TestApplyDeltaGuardsNegative(t *testing.T) {
	key := PositionKey{ProductID: 1, LocationID: 2}

	next, err := ApplyDelta(10, -10, key)
	require.NoError(t, err)
	require.EqualValues(t, 0, next)

	_, err = ApplyDelta(10, -11, key)
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	// Failed application leaves the reported current untouched.
	cur, _ := ApplyDelta(4, -9, key)
	require.EqualValues(t, 4, cur)
}

func TestEnsureAvailable(t *testing.T) {
	key := PositionKey{ProductID: 9, LocationID: 1, Lot: "L1"}
	require.NoError(t, EnsureAvailable(5, 5, key))
	require.NoError(t, EnsureAvailable(5, -5, key))
	require.ErrorIs(t, EnsureAvailable(5, 6, key), shared.ErrInsufficientStock)
}

func TestMovingCost(t *testing.T) {
	pos := Position{Qty: 10, UnitCost: 2.0}

	// Inbound at a higher cost raises the average.
	cost := movingCost(pos, 10, 4.0, 20)
	require.InDelta(t, 3.0, cost, 1e-9)

	// Outbound keeps the average.
	cost = movingCost(pos, -4, 0, 6)
	require.InDelta(t, 2.0, cost, 1e-9)

	// Draining to zero resets the cost.
	cost = movingCost(pos, -10, 0, 0)
	require.Zero(t, cost)
}

func TestPositionKeyLess(t *testing.T) {
	a := PositionKey{ProductID: 1, LocationID: 2, Lot: "A"}
	b := PositionKey{ProductID: 1, LocationID: 2, Lot: "B"}
	c := PositionKey{ProductID: 2, LocationID: 1, Lot: ""}
	require.True(t, a.Less(b))
	require.True(t, b.Less(c))
	require.False(t, c.Less(a))
}
