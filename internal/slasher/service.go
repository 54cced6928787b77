package slasher

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/nodeinfra/boundless/internal/metrics"
	"github.com/nodeinfra/boundless/internal/svcerr"
)

// Config holds the supervisor's tunable knobs.
type Config struct {
	Interval      time.Duration
	Retries       uint32
	MaxBlockRange uint64
}

// Service is the supervisor loop (component F): it drives a periodic tick,
// advancing the event reducer and deadline scheduler over bounded block
// windows and owning the cursor.
type Service struct {
	chain    ChainReader
	store    OrderStore
	reducer  *Reducer
	schedule *Scheduler
	cfg      Config
	log      log.Logger
	metrics  *metrics.Set
}

// NewService builds a Service. metricSet may be nil, in which case the
// service simply does not report counters/gauges.
func NewService(chainReader ChainReader, orderStore OrderStore, reducer *Reducer, scheduler *Scheduler, cfg Config, logger log.Logger, metricSet *metrics.Set) *Service {
	if logger == nil {
		logger = log.Root()
	}
	if cfg.MaxBlockRange == 0 {
		cfg.MaxBlockRange = 1
	}
	return &Service{chain: chainReader, store: orderStore, reducer: reducer, schedule: scheduler, cfg: cfg, log: logger, metrics: metricSet}
}

// Run drives the supervisor loop until ctx is cancelled or a fatal error
// occurs. startingBlock, if non-nil, overrides the stored cursor as the
// replay origin (capped at the current head).
func (s *Service) Run(ctx context.Context, startingBlock *uint64) error {
	fromBlock, err := s.resolveStartingBlock(ctx, startingBlock)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	var attempt uint32
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if s.metrics != nil {
			s.metrics.Ticks.Inc(1)
		}

		head, err := s.chain.HeadBlock(ctx)
		if err != nil {
			attempt++
			s.log.Warn("failed to fetch current block", "err", err, "attempt", attempt)
			if s.metrics != nil {
				s.metrics.TickErrors.Inc(1)
			}
			if attempt > s.cfg.Retries {
				return svcerr.MaxRetries()
			}
			continue
		}
		if s.metrics != nil {
			s.metrics.HeadBlock.Update(int64(head))
		}

		if head < fromBlock {
			s.log.Info("chain tip retreated, waiting", "head", head, "from_block", fromBlock)
			continue
		}

		chunkTo := fromBlock + s.cfg.MaxBlockRange - 1
		if chunkTo > head {
			chunkTo = head
		}
		s.log.Info("processing blocks", "from", fromBlock, "to", chunkTo, "head", head)

		if err := s.processRange(ctx, fromBlock, chunkTo); err != nil {
			se := svcerr.As(err)
			if se.Fatal() {
				s.log.Error("fatal error processing blocks", "from", fromBlock, "to", chunkTo, "err", err)
				return err
			}
			attempt++
			s.log.Warn("transient error processing blocks", "from", fromBlock, "to", chunkTo, "err", err, "attempt", attempt)
			if s.metrics != nil {
				s.metrics.TickErrors.Inc(1)
			}
			if attempt > s.cfg.Retries {
				return svcerr.MaxRetries()
			}
			continue
		}

		attempt = 0
		fromBlock = chunkTo + 1
	}
}

// processRange runs the reducer then the scheduler over [from, to], and
// advances the cursor only once both succeed, so a crash between the two
// can never skip a block range.
func (s *Service) processRange(ctx context.Context, from, to uint64) error {
	if err := s.reducer.Reduce(ctx, from, to); err != nil {
		return err
	}
	if err := s.schedule.Run(ctx, to); err != nil {
		return err
	}
	if err := s.store.SetCursor(to); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.Cursor.Update(int64(to))
	}
	return nil
}

func (s *Service) resolveStartingBlock(ctx context.Context, startingBlock *uint64) (uint64, error) {
	head, err := s.chain.HeadBlock(ctx)
	if err != nil {
		return 0, err
	}

	storedCursor, hasCursor, err := s.store.GetCursor()
	if err != nil {
		return 0, err
	}

	var from uint64
	switch {
	case startingBlock != nil:
		from = *startingBlock
	case hasCursor:
		from = storedCursor
	default:
		from = head
	}
	if from > head {
		from = head
	}
	return from, nil
}
