package slasher

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/log"

	"github.com/nodeinfra/boundless/internal/metrics"
	"github.com/nodeinfra/boundless/internal/submitter"
	"github.com/nodeinfra/boundless/internal/svcerr"
)

// Scheduler finds due requests after each reducer pass and dispatches them
// to the submitter (component E). Dispatch is sequential within a tick:
// concurrent dispatch would contend for nonces and muddle error
// classification.
type Scheduler struct {
	chain     ChainReader
	store     OrderStore
	submitter Submitter
	log       log.Logger
	metrics   *metrics.Set

	// attempts tracks consecutive transient failures per request within
	// this process's lifetime, used only as the attempt argument passed to
	// the submitter; it is
	// deliberately not persisted, since retries are a liveness concern of
	// a running process, not a durability concern of the store.
	attempts map[string]int
}

// NewScheduler builds a Scheduler. metricSet may be nil, in which case the
// scheduler simply does not report counters.
func NewScheduler(chainReader ChainReader, orderStore OrderStore, slashSubmitter Submitter, logger log.Logger, metricSet *metrics.Set) *Scheduler {
	if logger == nil {
		logger = log.Root()
	}
	return &Scheduler{
		chain:     chainReader,
		store:     orderStore,
		submitter: slashSubmitter,
		log:       logger,
		metrics:   metricSet,
		attempts:  make(map[string]int),
	}
}

// Run resolves the timestamp of block `to` and dispatches every due
// request to the submitter, applying each outcome to the store as it
// completes. It returns the first fatal error encountered, if any; a
// transient error from one request does not stop the pass over the
// remaining due requests, since each row is an independent retryable
// intent.
func (s *Scheduler) Run(ctx context.Context, to uint64) error {
	ts, err := s.chain.BlockTimestamp(ctx, to)
	if err != nil {
		return err
	}

	due, err := s.store.DueBefore(ts)
	if err != nil {
		return err
	}
	s.log.Info("scheduler pass", "due", len(due), "block", to, "timestamp", ts)

	var firstTransient error
	for _, requestID := range due {
		if err := s.dispatch(ctx, requestID); err != nil {
			if se := svcerr.As(err); se.Fatal() {
				return err
			}
			if firstTransient == nil {
				firstTransient = err
			}
		}
	}
	return firstTransient
}

func (s *Scheduler) dispatch(ctx context.Context, requestID *big.Int) error {
	key := requestID.String()
	attempt := s.attempts[key]

	if s.metrics != nil {
		s.metrics.SlashAttempts.Inc(1)
	}

	outcome, err := s.submitter.Slash(ctx, requestID, attempt)
	switch outcome.Kind {
	case submitter.OutcomeSuccess, submitter.OutcomeAlreadyResolved:
		delete(s.attempts, key)
		s.log.Info("slash resolved, removing order", "request_id", requestID, "outcome", outcomeName(outcome))
		if removeErr := s.store.Remove(requestID); removeErr != nil {
			return removeErr
		}
		if s.metrics != nil {
			s.metrics.SlashSuccesses.Inc(1)
		}
		return nil
	case submitter.OutcomeNotYetExpired, submitter.OutcomeInsufficientFunds:
		// Fatal: surface as-is, row retained for forensic purposes.
		if s.metrics != nil {
			s.metrics.SlashFatal.Inc(1)
		}
		return err
	default:
		// Revert, LogMissing, Transient: retained, retried next tick.
		s.attempts[key] = attempt + 1
		s.log.Warn("slash attempt did not resolve, will retry", "request_id", requestID, "attempt", attempt+1, "err", err)
		if s.metrics != nil {
			s.metrics.SlashTransient.Inc(1)
		}
		return err
	}
}

func outcomeName(o submitter.Outcome) string {
	switch o.Kind {
	case submitter.OutcomeSuccess:
		return "success"
	case submitter.OutcomeAlreadyResolved:
		return "already-resolved:" + o.Reason.String()
	default:
		return "unknown"
	}
}
