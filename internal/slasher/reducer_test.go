package slasher_test

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/nodeinfra/boundless/internal/slasher"
	"github.com/nodeinfra/boundless/internal/store"
)

func openTestOrderStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "orders.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestReducerLockThenSlash(t *testing.T) {
	db := openTestOrderStore(t)
	fc := newFakeChain()
	prover := common.HexToAddress("0x1111111111111111111111111111111111111111")
	fc.addLocked(7, prover, 1000, 500, 2000, 10)

	r := slasher.NewReducer(fc, db, nil, nil, nil)
	require.NoError(t, r.Reduce(context.Background(), 1, 20))

	order, ok, err := db.Get(big.NewInt(7))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(1500), order.LockExpiresAt)
	require.Equal(t, uint64(3000), order.ExpiresAt)

	fc.addSlashed(7, 21)
	require.NoError(t, r.Reduce(context.Background(), 21, 21))

	_, ok, err = db.Get(big.NewInt(7))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestReducerInLockFulfillmentRemovesOrder(t *testing.T) {
	db := openTestOrderStore(t)
	fc := newFakeChain()
	prover := common.HexToAddress("0x2222222222222222222222222222222222222222")
	fc.addLocked(9, prover, 1000, 500, 2000, 10)
	fc.setTimestamp(15, 1300) // within the [1000, 1500] lock window

	r := slasher.NewReducer(fc, db, nil, nil, nil)
	require.NoError(t, r.Reduce(context.Background(), 1, 10))

	fc.addFulfilled(9, 15)
	require.NoError(t, r.Reduce(context.Background(), 11, 15))

	_, ok, err := db.Get(big.NewInt(9))
	require.NoError(t, err)
	require.False(t, ok, "in-lock fulfillment must remove the order")
}

func TestReducerLateFulfillmentRetainsOrder(t *testing.T) {
	db := openTestOrderStore(t)
	fc := newFakeChain()
	prover := common.HexToAddress("0x3333333333333333333333333333333333333333")
	fc.addLocked(11, prover, 1000, 500, 2000, 10)
	fc.setTimestamp(25, 1800) // past the 1500 lock expiry, still before the 3000 hard expiry

	r := slasher.NewReducer(fc, db, nil, nil, nil)
	require.NoError(t, r.Reduce(context.Background(), 1, 10))

	fc.addFulfilled(11, 25)
	require.NoError(t, r.Reduce(context.Background(), 20, 25))

	order, ok, err := db.Get(big.NewInt(11))
	require.NoError(t, err)
	require.True(t, ok, "late fulfillment must not remove the slash opportunity")
	require.Equal(t, uint64(1500), order.LockExpiresAt)
}

func TestReducerSkipsConfiguredProvers(t *testing.T) {
	db := openTestOrderStore(t)
	fc := newFakeChain()
	skipped := common.HexToAddress("0x4444444444444444444444444444444444444444")
	fc.addLocked(12, skipped, 1000, 500, 2000, 10)

	skip := slasher.NewSkipSet([]common.Address{skipped})
	r := slasher.NewReducer(fc, db, skip, nil, nil)
	require.NoError(t, r.Reduce(context.Background(), 1, 20))

	_, ok, err := db.Get(big.NewInt(12))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestReducerFulfilledForUntrackedRequestIsNoop(t *testing.T) {
	db := openTestOrderStore(t)
	fc := newFakeChain()
	fc.addFulfilled(99, 5)
	fc.setTimestamp(5, 100)

	r := slasher.NewReducer(fc, db, nil, nil, nil)
	require.NoError(t, r.Reduce(context.Background(), 1, 5))

	_, ok, err := db.Get(big.NewInt(99))
	require.NoError(t, err)
	require.False(t, ok)
}
