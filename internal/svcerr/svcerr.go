// Package svcerr defines the slasher's error taxonomy: every error that can
// cross a component boundary is wrapped into a Kind so the supervisor loop
// can classify it fatal-vs-transient without string matching.
package svcerr

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Kind identifies one of the error categories from the failure taxonomy.
type Kind int

const (
	// KindDatabase covers any durable-store failure. Fatal.
	KindDatabase Kind = iota
	// KindInsufficientFunds means the signer cannot cover gas. Fatal.
	KindInsufficientFunds
	// KindMaxRetries means the supervisor exhausted its retry budget. Fatal.
	KindMaxRetries
	// KindTransactionDecoding means ABI drift was detected. Fatal.
	KindTransactionDecoding
	// KindBlockNumberNotFound is an internal invariant violation. Fatal.
	KindBlockNumberNotFound
	// KindRequestNotExpired means the scheduler invariant was violated. Fatal.
	KindRequestNotExpired
	// KindMarket is a generic contract-call failure. Transient.
	KindMarket
	// KindSlashRevert means a slash tx reverted and reconciliation found it
	// not yet slashed. Transient.
	KindSlashRevert
	// KindEventQuery is a log-filtering RPC failure. Transient.
	KindEventQuery
	// KindRPC is a generic JSON-RPC transport failure. Transient.
	KindRPC
	// KindBlockTimestampNotFound means a header lookup came back empty.
	// Transient.
	KindBlockTimestampNotFound
)

func (k Kind) String() string {
	switch k {
	case KindDatabase:
		return "database_error"
	case KindInsufficientFunds:
		return "insufficient_funds"
	case KindMaxRetries:
		return "max_retries"
	case KindTransactionDecoding:
		return "transaction_decoding_error"
	case KindBlockNumberNotFound:
		return "block_number_not_found"
	case KindRequestNotExpired:
		return "request_not_expired"
	case KindMarket:
		return "market_error"
	case KindSlashRevert:
		return "slash_revert"
	case KindEventQuery:
		return "event_query_error"
	case KindRPC:
		return "rpc_error"
	case KindBlockTimestampNotFound:
		return "block_timestamp_not_found"
	default:
		return "unknown"
	}
}

// Fatal reports whether the supervisor must abort on this error rather than
// retry it.
func (k Kind) Fatal() bool {
	switch k {
	case KindDatabase, KindInsufficientFunds, KindMaxRetries, KindTransactionDecoding,
		KindBlockNumberNotFound, KindRequestNotExpired:
		return true
	default:
		return false
	}
}

// Error is a classified, context-carrying service error.
type Error struct {
	Kind      Kind
	RequestID *big.Int
	TxHash    common.Hash
	Block     uint64
	Err       error
}

func (e *Error) Error() string {
	switch {
	case e.RequestID != nil && (e.TxHash != common.Hash{}):
		return fmt.Sprintf("%s: request 0x%x tx %s: %v", e.Kind, e.RequestID, e.TxHash, e.Err)
	case e.RequestID != nil:
		return fmt.Sprintf("%s: request 0x%x: %v", e.Kind, e.RequestID, e.Err)
	case e.Block != 0:
		return fmt.Sprintf("%s: block %d: %v", e.Kind, e.Block, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Fatal reports whether this error should abort the supervisor.
func (e *Error) Fatal() bool { return e.Kind.Fatal() }

// As classifies a plain error into an *Error, or wraps it as KindRPC if it
// isn't already one of ours. Useful at component boundaries that call into
// third-party clients whose errors we don't otherwise control.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	return &Error{Kind: KindRPC, Err: err}
}

func Database(err error) error { return &Error{Kind: KindDatabase, Err: err} }

func InsufficientFunds(msg string) error {
	return &Error{Kind: KindInsufficientFunds, Err: fmt.Errorf("%s", msg)}
}

func MaxRetries() error { return &Error{Kind: KindMaxRetries, Err: fmt.Errorf("maximum retries reached")} }

func TransactionDecoding(err error) error { return &Error{Kind: KindTransactionDecoding, Err: err} }

func BlockNumberNotFound() error {
	return &Error{Kind: KindBlockNumberNotFound, Err: fmt.Errorf("block number not found")}
}

func RequestNotExpired(requestID *big.Int) error {
	return &Error{Kind: KindRequestNotExpired, RequestID: requestID, Err: fmt.Errorf("request not expired")}
}

func Market(err error) error { return &Error{Kind: KindMarket, Err: err} }

func SlashRevert(requestID *big.Int, txHash common.Hash) error {
	return &Error{Kind: KindSlashRevert, RequestID: requestID, TxHash: txHash, Err: fmt.Errorf("slash reverted")}
}

func EventQuery(err error) error { return &Error{Kind: KindEventQuery, Err: err} }

func RPC(err error) error { return &Error{Kind: KindRPC, Err: err} }

func BlockTimestampNotFound(block uint64) error {
	return &Error{Kind: KindBlockTimestampNotFound, Block: block, Err: fmt.Errorf("block timestamp not found")}
}
