// Package slasher wires the durable order store, chain reader and slash
// submitter into an event reducer, deadline scheduler and supervisor loop
// that watch the proof marketplace for expired locked requests and slash
// the provers that failed to fulfill them in time.
package slasher

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/nodeinfra/boundless/internal/chain"
	"github.com/nodeinfra/boundless/internal/store"
	"github.com/nodeinfra/boundless/internal/submitter"
)

// OrderStore is the durable order store interface the reducer and
// scheduler mutate. store.Store satisfies it.
type OrderStore interface {
	Add(requestID *big.Int, expiresAt, lockExpiresAt uint64) error
	Remove(requestID *big.Int) error
	Get(requestID *big.Int) (store.Order, bool, error)
	DueBefore(ts uint64) ([]*big.Int, error)
	GetCursor() (uint64, bool, error)
	SetCursor(block uint64) error
}

// ChainReader is the chain reader interface the reducer and scheduler read
// from. chain.Reader satisfies it.
type ChainReader interface {
	HeadBlock(ctx context.Context) (uint64, error)
	BlockTimestamp(ctx context.Context, blockNumber uint64) (uint64, error)
	Events(ctx context.Context, kind chain.EventKind, from, to uint64) ([]chain.Event, error)
}

// Submitter is the slash submitter interface the scheduler dispatches to.
// submitter.Submitter satisfies it.
type Submitter interface {
	Slash(ctx context.Context, requestID *big.Int, attempt int) (submitter.Outcome, error)
}

// SkipSet is the process-wide set of prover addresses whose Locked events
// are ignored.
type SkipSet map[common.Address]struct{}

// NewSkipSet builds a SkipSet from a list of addresses.
func NewSkipSet(addresses []common.Address) SkipSet {
	set := make(SkipSet, len(addresses))
	for _, a := range addresses {
		set[a] = struct{}{}
	}
	return set
}

// Contains reports whether addr is in the skip set.
func (s SkipSet) Contains(addr common.Address) bool {
	_, ok := s[addr]
	return ok
}
