// Package chain is the slasher's chain reader (component B): a thin
// projection over a JSON-RPC endpoint that resolves the current head,
// block timestamps, and filtered marketplace event logs.
package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"

	"github.com/nodeinfra/boundless/internal/svcerr"
	"github.com/nodeinfra/boundless/market"
)

// EventKind selects which marketplace event a call to Events fetches.
type EventKind int

const (
	EventLocked EventKind = iota
	EventFulfilled
	EventSlashed
)

func (k EventKind) String() string {
	switch k {
	case EventLocked:
		return "locked"
	case EventFulfilled:
		return "fulfilled"
	case EventSlashed:
		return "slashed"
	default:
		return "unknown"
	}
}

// Event is the reducer-facing projection of a marketplace log: flat enough
// to cover Locked, Fulfilled and Slashed alike, with fields irrelevant to a
// given Kind left zero. go-ethereum's types.Log carries a block number but
// never a block timestamp, so the reducer resolves timestamps itself via
// Reader.BlockTimestamp when it needs one (only Fulfilled does).
type Event struct {
	Kind        EventKind
	RequestID   *big.Int
	Prover      common.Address
	Offer       market.Offer
	BlockNumber uint64
}

// Reader reads chain head, block headers and marketplace events.
type Reader struct {
	client *ethclient.Client
	market *market.Market
	log    log.Logger
}

// NewReader builds a Reader over an already-dialed client and bound market
// contract.
func NewReader(client *ethclient.Client, mkt *market.Market, logger log.Logger) *Reader {
	if logger == nil {
		logger = log.Root()
	}
	return &Reader{client: client, market: mkt, log: logger}
}

// HeadBlock returns the current chain tip.
func (r *Reader) HeadBlock(ctx context.Context) (uint64, error) {
	head, err := r.client.BlockNumber(ctx)
	if err != nil {
		return 0, svcerr.RPC(err)
	}
	return head, nil
}

// BlockTimestamp returns the header timestamp (seconds) for blockNumber.
func (r *Reader) BlockTimestamp(ctx context.Context, blockNumber uint64) (uint64, error) {
	header, err := r.client.HeaderByNumber(ctx, new(big.Int).SetUint64(blockNumber))
	if err != nil {
		return 0, svcerr.BlockTimestampNotFound(blockNumber)
	}
	if header == nil {
		return 0, svcerr.BlockTimestampNotFound(blockNumber)
	}
	return header.Time, nil
}

// Events returns every marketplace event of the given kind within the
// inclusive block range [from, to].
func (r *Reader) Events(ctx context.Context, kind EventKind, from, to uint64) ([]Event, error) {
	opts := &bind.FilterOpts{Start: from, End: &to, Context: ctx}

	switch kind {
	case EventLocked:
		return r.filterLocked(opts)
	case EventFulfilled:
		return r.filterFulfilled(opts)
	case EventSlashed:
		return r.filterSlashed(opts)
	default:
		return nil, svcerr.EventQuery(fmt.Errorf("chain: unknown event kind %d", int(kind)))
	}
}

func (r *Reader) filterLocked(opts *bind.FilterOpts) ([]Event, error) {
	it, err := r.market.FilterRequestLocked(opts)
	if err != nil {
		return nil, svcerr.EventQuery(err)
	}
	defer it.Close()

	var events []Event
	for it.Next() {
		ev := it.Event
		events = append(events, Event{
			Kind:        EventLocked,
			RequestID:   ev.RequestId,
			Prover:      ev.Prover,
			Offer:       ev.Offer(),
			BlockNumber: ev.Raw.BlockNumber,
		})
	}
	if err := it.Error(); err != nil {
		return nil, svcerr.EventQuery(err)
	}
	r.log.Debug("fetched locked events", "count", len(events), "from", opts.Start, "to", *opts.End)
	return events, nil
}

func (r *Reader) filterFulfilled(opts *bind.FilterOpts) ([]Event, error) {
	it, err := r.market.FilterRequestFulfilled(opts)
	if err != nil {
		return nil, svcerr.EventQuery(err)
	}
	defer it.Close()

	var events []Event
	for it.Next() {
		ev := it.Event
		events = append(events, Event{
			Kind:        EventFulfilled,
			RequestID:   ev.RequestId,
			BlockNumber: ev.Raw.BlockNumber,
		})
	}
	if err := it.Error(); err != nil {
		return nil, svcerr.EventQuery(err)
	}
	r.log.Debug("fetched fulfilled events", "count", len(events), "from", opts.Start, "to", *opts.End)
	return events, nil
}

func (r *Reader) filterSlashed(opts *bind.FilterOpts) ([]Event, error) {
	it, err := r.market.FilterProverSlashed(opts)
	if err != nil {
		return nil, svcerr.EventQuery(err)
	}
	defer it.Close()

	var events []Event
	for it.Next() {
		ev := it.Event
		events = append(events, Event{
			Kind:        EventSlashed,
			RequestID:   ev.RequestId,
			BlockNumber: ev.Raw.BlockNumber,
		})
	}
	if err := it.Error(); err != nil {
		return nil, svcerr.EventQuery(err)
	}
	r.log.Debug("fetched slashed events", "count", len(events), "from", opts.Start, "to", *opts.End)
	return events, nil
}
