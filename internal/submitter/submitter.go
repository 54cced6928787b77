// Package submitter is the slasher's slash submitter (component C): it
// sends the slash transaction, waits for it to mine, and classifies the
// resulting receipt or error into a SlashOutcome the scheduler can act on.
package submitter

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"

	"github.com/nodeinfra/boundless/internal/signer"
	"github.com/nodeinfra/boundless/internal/svcerr"
	"github.com/nodeinfra/boundless/market"
)

// OutcomeKind is the classification tag of a SlashOutcome. OutcomeTransient
// is deliberately the zero value: any Outcome{} constructed on an early
// error path (paired with a non-nil error) must never be mistaken for
// success by a caller that forgets to check the error first.
type OutcomeKind int

const (
	OutcomeTransient OutcomeKind = iota
	OutcomeSuccess
	OutcomeAlreadyResolved
	OutcomeNotYetExpired
	OutcomeInsufficientFunds
	OutcomeRevert
	OutcomeLogMissing
)

// Reason further qualifies an OutcomeAlreadyResolved.
type Reason int

const (
	ReasonAlreadySlashed Reason = iota
	ReasonAlreadyFulfilled
	ReasonNotLocked
)

func (r Reason) String() string {
	switch r {
	case ReasonAlreadySlashed:
		return "already-slashed"
	case ReasonAlreadyFulfilled:
		return "already-fulfilled"
	case ReasonNotLocked:
		return "not-locked"
	default:
		return "unknown"
	}
}

// Outcome is the tagged result of a single slash attempt.
type Outcome struct {
	Kind   OutcomeKind
	Reason Reason
	TxHash common.Hash
}

// Chain is the subset of an ethclient.Client the submitter needs to wait
// for a mined transaction.
type Chain interface {
	bind.DeployBackend
}

// Submitter issues slash transactions against the bound market contract.
type Submitter struct {
	market    *market.Market
	chain     Chain
	signer    *signer.Signer
	txTimeout time.Duration
	log       log.Logger
}

// New builds a Submitter.
func New(mkt *market.Market, chain *ethclient.Client, sgn *signer.Signer, txTimeout time.Duration, logger log.Logger) *Submitter {
	if logger == nil {
		logger = log.Root()
	}
	return &Submitter{market: mkt, chain: chain, signer: sgn, txTimeout: txTimeout, log: logger}
}

// Slash submits the slash transaction for requestID and classifies the
// result. attempt is the consecutive retry count for this request this
// process has made; it is passed on to Signer.TransactOpts.
func (s *Submitter) Slash(ctx context.Context, requestID *big.Int, attempt int) (Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	opts, err := s.signer.TransactOpts(ctx, attempt)
	if err != nil {
		return Outcome{}, svcerr.Market(err)
	}

	tx, err := s.market.Slash(opts, requestID)
	if err != nil {
		return s.classifySendError(ctx, requestID, err)
	}

	receipt, err := bind.WaitMined(ctx, s.chain, tx)
	if err != nil {
		// Usually a context-deadline timeout while waiting for inclusion.
		return Outcome{Kind: OutcomeTransient}, svcerr.Market(err)
	}

	if receipt.Status == types.ReceiptStatusFailed {
		return s.reconcileOrRetry(ctx, requestID, tx.Hash(), OutcomeRevert)
	}
	if !s.emittedSlashedLog(receipt, requestID) {
		return s.reconcileOrRetry(ctx, requestID, tx.Hash(), OutcomeLogMissing)
	}

	s.log.Info("slash transaction confirmed", "request_id", requestID, "tx", tx.Hash())
	return Outcome{Kind: OutcomeSuccess, TxHash: tx.Hash()}, nil
}

// emittedSlashedLog reports whether the receipt contains a ProverSlashed
// log for requestID; a successful receipt without it indicates the
// contract silently no-op'd, which the caller treats like a revert.
func (s *Submitter) emittedSlashedLog(receipt *types.Receipt, requestID *big.Int) bool {
	for _, rawLog := range receipt.Logs {
		ev, err := s.market.ParseProverSlashed(*rawLog)
		if err == nil && ev.RequestId != nil && ev.RequestId.Cmp(requestID) == 0 {
			return true
		}
	}
	return false
}

// reconcileOrRetry re-queries on-chain slashed status after a revert or
// missing-log outcome: eventual consistency between a provider's pending
// and confirmed views can make a successful slash appear to have failed.
func (s *Submitter) reconcileOrRetry(ctx context.Context, requestID *big.Int, txHash common.Hash, kind OutcomeKind) (Outcome, error) {
	slashed, err := s.market.IsSlashed(&bind.CallOpts{Context: ctx}, requestID)
	if err != nil {
		return Outcome{Kind: OutcomeTransient, TxHash: txHash}, svcerr.Market(err)
	}
	if slashed {
		s.log.Warn("slash tx outcome ambiguous but request is already slashed", "request_id", requestID, "tx", txHash)
		return Outcome{Kind: OutcomeAlreadyResolved, Reason: ReasonAlreadySlashed, TxHash: txHash}, nil
	}
	s.log.Warn("slash tx outcome ambiguous and request is not slashed", "request_id", requestID, "tx", txHash)
	return Outcome{Kind: kind, TxHash: txHash}, svcerr.SlashRevert(requestID, txHash)
}

// classifySendError maps a synchronous Transact failure (i.e. rejected
// before or during simulation, never broadcast) to an Outcome. The
// contract doesn't expose typed custom-error ABI here, so classification
// falls back to matching on the revert reason string.
func (s *Submitter) classifySendError(ctx context.Context, requestID *big.Int, err error) (Outcome, error) {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "RequestIsSlashed"):
		return Outcome{Kind: OutcomeAlreadyResolved, Reason: ReasonAlreadySlashed}, nil
	case strings.Contains(msg, "RequestIsFulfilled"):
		return Outcome{Kind: OutcomeAlreadyResolved, Reason: ReasonAlreadyFulfilled}, nil
	case strings.Contains(msg, "RequestIsNotLocked"):
		return Outcome{Kind: OutcomeAlreadyResolved, Reason: ReasonNotLocked}, nil
	case strings.Contains(msg, "RequestIsNotExpired"):
		return Outcome{Kind: OutcomeNotYetExpired}, svcerr.RequestNotExpired(requestID)
	case strings.Contains(msg, "insufficient funds"), strings.Contains(msg, "gas required exceeds allowance"):
		return Outcome{Kind: OutcomeInsufficientFunds}, svcerr.InsufficientFunds(msg)
	default:
		return Outcome{Kind: OutcomeTransient}, svcerr.Market(err)
	}
}
