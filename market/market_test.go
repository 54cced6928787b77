package market

import (
	"context"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/abi/bind/backends"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/stretchr/testify/require"
)

func TestOfferDeadlines(t *testing.T) {
	o := Offer{RampUpStart: 1000, LockTimeout: 60, Timeout: 120}
	require.Equal(t, uint64(1060), o.LockExpiresAt())
	require.Equal(t, uint64(1120), o.ExpiresAt())
}

func newTestMarket(t *testing.T) (*Market, common.Address) {
	t.Helper()
	sim := backends.NewSimulatedBackend(core.GenesisAlloc{}, 8_000_000)
	t.Cleanup(func() { _ = sim.Close() })

	addr := common.HexToAddress("0xc0ffee00000000000000000000000000000000")
	m, err := NewMarket(addr, sim)
	require.NoError(t, err)
	return m, addr
}

func parsedABI(t *testing.T) abi.ABI {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(marketABI))
	require.NoError(t, err)
	return parsed
}

func TestUnpackRequestLockedLog(t *testing.T) {
	m, addr := newTestMarket(t)
	parsed := parsedABI(t)
	ev := parsed.Events["RequestLocked"]

	requestID := big.NewInt(42)
	prover := common.HexToAddress("0x1234500000000000000000000000000000000a")
	data, err := ev.Inputs.NonIndexed().Pack(uint64(1000), uint32(60), uint32(120))
	require.NoError(t, err)

	rawLog := types.Log{
		Address: addr,
		Topics: []common.Hash{
			ev.ID,
			common.BigToHash(requestID),
			common.BytesToHash(prover.Bytes()),
		},
		Data: data,
	}

	decoded := new(MarketRequestLocked)
	require.NoError(t, m.MarketFilterer.contract.UnpackLog(decoded, "RequestLocked", rawLog))
	require.Equal(t, 0, decoded.RequestId.Cmp(requestID))
	require.Equal(t, prover, decoded.Prover)
	require.Equal(t, uint64(1000), decoded.RampUpStart)
	require.Equal(t, uint32(60), decoded.LockTimeout)
	require.Equal(t, uint32(120), decoded.Timeout)

	offer := decoded.Offer()
	require.Equal(t, uint64(1060), offer.LockExpiresAt())
	require.Equal(t, uint64(1120), offer.ExpiresAt())
}

func TestParseProverSlashed(t *testing.T) {
	m, addr := newTestMarket(t)
	parsed := parsedABI(t)
	ev := parsed.Events["ProverSlashed"]

	requestID := big.NewInt(7)
	rawLog := types.Log{
		Address: addr,
		Topics:  []common.Hash{ev.ID, common.BigToHash(requestID)},
	}

	decoded, err := m.ParseProverSlashed(rawLog)
	require.NoError(t, err)
	require.Equal(t, 0, decoded.RequestId.Cmp(requestID))
}

// delayedLogSubscription builds an event.Subscription whose goroutine waits
// briefly before pushing log onto ch, the same way bind.BoundContract.FilterLogs
// delivers its historical results: the channel and subscription are handed
// back to the caller before the log has actually been pushed.
func delayedLogSubscription(ch chan<- types.Log, log types.Log) event.Subscription {
	return event.NewSubscription(func(quit <-chan struct{}) error {
		time.Sleep(5 * time.Millisecond)
		select {
		case ch <- log:
		case <-quit:
		}
		return nil
	})
}

func TestRequestFulfilledIteratorWaitsForAsyncDelivery(t *testing.T) {
	m, addr := newTestMarket(t)
	parsed := parsedABI(t)
	ev := parsed.Events["RequestFulfilled"]

	requestID := big.NewInt(99)
	rawLog := types.Log{
		Address: addr,
		Topics:  []common.Hash{ev.ID, common.BigToHash(requestID)},
	}

	logs := make(chan types.Log)
	it := &RequestFulfilledIterator{
		contract: m.MarketFilterer.contract,
		event:    "RequestFulfilled",
		logs:     logs,
		sub:      delayedLogSubscription(logs, rawLog),
	}
	defer it.Close()

	require.True(t, it.Next(), "Next must block until the asynchronously delivered log arrives")
	require.NoError(t, it.Error())
	require.Equal(t, 0, it.Event.RequestId.Cmp(requestID))
}

func TestProverSlashedIteratorWaitsForAsyncDelivery(t *testing.T) {
	m, addr := newTestMarket(t)
	parsed := parsedABI(t)
	ev := parsed.Events["ProverSlashed"]

	requestID := big.NewInt(13)
	rawLog := types.Log{
		Address: addr,
		Topics:  []common.Hash{ev.ID, common.BigToHash(requestID)},
	}

	logs := make(chan types.Log)
	it := &ProverSlashedIterator{
		contract: m.MarketFilterer.contract,
		event:    "ProverSlashed",
		logs:     logs,
		sub:      delayedLogSubscription(logs, rawLog),
	}
	defer it.Close()

	require.True(t, it.Next(), "Next must block until the asynchronously delivered log arrives")
	require.NoError(t, it.Error())
	require.Equal(t, 0, it.Event.RequestId.Cmp(requestID))
}

// TestFilterRequestFulfilledAgainstSimulatedBackend drives the real
// FilterRequestFulfilled/FilterProverSlashed path against a simulated
// backend end-to-end: no marketplace bytecode is deployed at addr, so the
// bounded filter window matches zero logs, but the iterator must still wait
// on the subscription's completion signal rather than racing ahead of the
// background delivery goroutine bind.BoundContract.FilterLogs spawns.
func TestFilterRequestFulfilledAgainstSimulatedBackend(t *testing.T) {
	m, _ := newTestMarket(t)
	end := uint64(0)

	it, err := m.FilterRequestFulfilled(&bind.FilterOpts{Start: 0, End: &end, Context: context.Background()})
	require.NoError(t, err)
	defer it.Close()

	require.False(t, it.Next())
	require.NoError(t, it.Error())
}

func TestFilterProverSlashedAgainstSimulatedBackend(t *testing.T) {
	m, _ := newTestMarket(t)
	end := uint64(0)

	it, err := m.FilterProverSlashed(&bind.FilterOpts{Start: 0, End: &end, Context: context.Background()})
	require.NoError(t, err)
	defer it.Close()

	require.False(t, it.Next())
	require.NoError(t, it.Error())
}
