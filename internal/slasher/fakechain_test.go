package slasher_test

import (
	"context"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/nodeinfra/boundless/internal/chain"
)

// fakeChain is a scripted ChainReader: events are registered against the
// block they occur at, block timestamps are an explicit map, and head can
// be advanced by the test as it simulates new blocks arriving.
type fakeChain struct {
	head       uint64
	timestamps map[uint64]uint64
	events     []chain.Event
	headErrs   []error
	tsErrs     map[uint64]error
}

func newFakeChain() *fakeChain {
	return &fakeChain{timestamps: make(map[uint64]uint64), tsErrs: make(map[uint64]error)}
}

func (f *fakeChain) HeadBlock(ctx context.Context) (uint64, error) {
	if len(f.headErrs) > 0 {
		err := f.headErrs[0]
		f.headErrs = f.headErrs[1:]
		if err != nil {
			return 0, err
		}
	}
	return f.head, nil
}

func (f *fakeChain) BlockTimestamp(ctx context.Context, blockNumber uint64) (uint64, error) {
	if err, ok := f.tsErrs[blockNumber]; ok {
		delete(f.tsErrs, blockNumber)
		return 0, err
	}
	ts, ok := f.timestamps[blockNumber]
	if !ok {
		return 0, errBlockNotFound
	}
	return ts, nil
}

func (f *fakeChain) Events(ctx context.Context, kind chain.EventKind, from, to uint64) ([]chain.Event, error) {
	var out []chain.Event
	for _, ev := range f.events {
		if ev.Kind == kind && ev.BlockNumber >= from && ev.BlockNumber <= to {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BlockNumber < out[j].BlockNumber })
	return out, nil
}

func (f *fakeChain) setTimestamp(block, ts uint64) {
	f.timestamps[block] = ts
}

func (f *fakeChain) addLocked(requestID int64, prover common.Address, rampUpStart uint64, lockTimeout, timeout uint32, block uint64) {
	f.events = append(f.events, chain.Event{
		Kind:        chain.EventLocked,
		RequestID:   big.NewInt(requestID),
		Prover:      prover,
		Offer:       offer(rampUpStart, lockTimeout, timeout),
		BlockNumber: block,
	})
}

func (f *fakeChain) addFulfilled(requestID int64, block uint64) {
	f.events = append(f.events, chain.Event{Kind: chain.EventFulfilled, RequestID: big.NewInt(requestID), BlockNumber: block})
}

func (f *fakeChain) addSlashed(requestID int64, block uint64) {
	f.events = append(f.events, chain.Event{Kind: chain.EventSlashed, RequestID: big.NewInt(requestID), BlockNumber: block})
}

var errBlockNotFound = blockNotFoundErr{}

type blockNotFoundErr struct{}

func (blockNotFoundErr) Error() string { return "block timestamp not found" }
