package slasher

import (
	"context"

	"github.com/ethereum/go-ethereum/log"

	"github.com/nodeinfra/boundless/internal/chain"
	"github.com/nodeinfra/boundless/internal/metrics"
)

// Reducer applies a block range's worth of marketplace events to the
// order store (component D).
type Reducer struct {
	chain   ChainReader
	store   OrderStore
	skip    SkipSet
	log     log.Logger
	metrics *metrics.Set
}

// NewReducer builds a Reducer. metricSet may be nil, in which case the
// reducer simply does not report counters.
func NewReducer(chainReader ChainReader, orderStore OrderStore, skip SkipSet, logger log.Logger, metricSet *metrics.Set) *Reducer {
	if logger == nil {
		logger = log.Root()
	}
	return &Reducer{chain: chainReader, store: orderStore, skip: skip, log: logger, metrics: metricSet}
}

// Reduce applies every Locked, Fulfilled and Slashed event in [from, to] to
// the store, in that order: Locked must land before Fulfilled/Slashed so
// that an add-then-remove within the same window resolves correctly.
func (r *Reducer) Reduce(ctx context.Context, from, to uint64) error {
	if err := r.reduceLocked(ctx, from, to); err != nil {
		return err
	}
	if err := r.reduceFulfilled(ctx, from, to); err != nil {
		return err
	}
	return r.reduceSlashed(ctx, from, to)
}

func (r *Reducer) reduceLocked(ctx context.Context, from, to uint64) error {
	events, err := r.chain.Events(ctx, chain.EventLocked, from, to)
	if err != nil {
		return err
	}
	r.log.Info("processing locked events", "count", len(events), "from", from, "to", to)

	for _, ev := range events {
		if r.skip.Contains(ev.Prover) {
			r.log.Info("skipping locked event from skipped prover", "prover", ev.Prover, "request_id", ev.RequestID)
			continue
		}
		expiresAt := ev.Offer.ExpiresAt()
		lockExpiresAt := ev.Offer.LockExpiresAt()
		r.log.Debug("tracking locked request", "request_id", ev.RequestID, "prover", ev.Prover,
			"expires_at", expiresAt, "lock_expires_at", lockExpiresAt, "block", ev.BlockNumber)
		if err := r.store.Add(ev.RequestID, expiresAt, lockExpiresAt); err != nil {
			return err
		}
		if r.metrics != nil {
			r.metrics.LockedTracked.Inc(1)
		}
	}
	return nil
}

func (r *Reducer) reduceFulfilled(ctx context.Context, from, to uint64) error {
	events, err := r.chain.Events(ctx, chain.EventFulfilled, from, to)
	if err != nil {
		return err
	}
	r.log.Info("processing fulfilled events", "count", len(events), "from", from, "to", to)

	for _, ev := range events {
		order, ok, err := r.store.Get(ev.RequestID)
		if err != nil {
			return err
		}
		if !ok {
			r.log.Debug("fulfilled event for untracked request, dropping", "request_id", ev.RequestID)
			continue
		}

		blockTS, err := r.chain.BlockTimestamp(ctx, ev.BlockNumber)
		if err != nil {
			return err
		}

		if blockTS <= order.LockExpiresAt {
			r.log.Debug("request fulfilled within lock period, removing", "request_id", ev.RequestID,
				"fulfilled_at", blockTS, "lock_expires_at", order.LockExpiresAt)
			if err := r.store.Remove(ev.RequestID); err != nil {
				return err
			}
			if r.metrics != nil {
				r.metrics.FulfilledInLock.Inc(1)
			}
		} else {
			r.log.Debug("request fulfilled after lock expired, slash opportunity survives", "request_id", ev.RequestID,
				"fulfilled_at", blockTS, "lock_expires_at", order.LockExpiresAt)
			if r.metrics != nil {
				r.metrics.FulfilledLate.Inc(1)
			}
		}
	}
	return nil
}

func (r *Reducer) reduceSlashed(ctx context.Context, from, to uint64) error {
	events, err := r.chain.Events(ctx, chain.EventSlashed, from, to)
	if err != nil {
		return err
	}
	r.log.Info("processing slashed events", "count", len(events), "from", from, "to", to)

	for _, ev := range events {
		r.log.Debug("request slashed by someone else, removing", "request_id", ev.RequestID)
		if err := r.store.Remove(ev.RequestID); err != nil {
			return err
		}
		if r.metrics != nil {
			r.metrics.SlashedByOthers.Inc(1)
		}
	}
	return nil
}
