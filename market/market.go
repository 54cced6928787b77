// Package market contains a hand-written Go binding for the boundless
// proof-marketplace contract. It follows the shape `abigen` produces: a
// MetaData holder with the parsed ABI, a thin wrapper around
// bind.BoundContract, and one iterator type per event the slasher cares
// about. Only the surface the slasher, operator CLI and order generator
// actually call is bound; the full marketplace ABI is much larger.
package market

import (
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
)

// MarketMetaData contains the ABI of the subset of the marketplace contract
// this binding exposes.
var MarketMetaData = &bind.MetaData{
	ABI: marketABI,
}

const marketABI = `[
	{"type":"event","name":"RequestLocked","inputs":[
		{"name":"requestId","type":"uint256","indexed":true},
		{"name":"prover","type":"address","indexed":true},
		{"name":"rampUpStart","type":"uint64","indexed":false},
		{"name":"lockTimeout","type":"uint32","indexed":false},
		{"name":"timeout","type":"uint32","indexed":false}
	]},
	{"type":"event","name":"RequestFulfilled","inputs":[
		{"name":"requestId","type":"uint256","indexed":true}
	]},
	{"type":"event","name":"ProverSlashed","inputs":[
		{"name":"requestId","type":"uint256","indexed":true}
	]},
	{"type":"function","name":"slash","stateMutability":"nonpayable","inputs":[
		{"name":"requestId","type":"uint256"}
	],"outputs":[]},
	{"type":"function","name":"isSlashed","stateMutability":"view","inputs":[
		{"name":"requestId","type":"uint256"}
	],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"lockRequest","stateMutability":"nonpayable","inputs":[
		{"name":"requestId","type":"uint256"},
		{"name":"rampUpStart","type":"uint64"},
		{"name":"lockTimeout","type":"uint32"},
		{"name":"timeout","type":"uint32"}
	],"outputs":[]}
]`

// Offer mirrors the on-chain offer embedded in a locked request: the
// auction parameters deadlines are derived from.
type Offer struct {
	RampUpStart uint64
	LockTimeout uint32
	Timeout     uint32
}

// ExpiresAt is the ultimate deadline a locked prover must fulfill by.
func (o Offer) ExpiresAt() uint64 {
	return o.RampUpStart + uint64(o.Timeout)
}

// LockExpiresAt is the earlier deadline at which the locked prover forfeits
// its collateral if it has not fulfilled.
func (o Offer) LockExpiresAt() uint64 {
	return o.RampUpStart + uint64(o.LockTimeout)
}

// MarketRequestLocked is the Go representation of a RequestLocked log. Its
// fields are flat to match the unpacking abi.UnpackLog performs by ABI
// input name; use Offer() for the derived deadline struct.
type MarketRequestLocked struct {
	RequestId   *big.Int
	Prover      common.Address
	RampUpStart uint64
	LockTimeout uint32
	Timeout     uint32
	Raw         types.Log
}

// Offer extracts the auction offer embedded in the locked request.
func (ev *MarketRequestLocked) Offer() Offer {
	return Offer{RampUpStart: ev.RampUpStart, LockTimeout: ev.LockTimeout, Timeout: ev.Timeout}
}

// MarketRequestFulfilled is the Go representation of a RequestFulfilled log.
type MarketRequestFulfilled struct {
	RequestId *big.Int
	Raw       types.Log
}

// MarketProverSlashed is the Go representation of a ProverSlashed log.
type MarketProverSlashed struct {
	RequestId *big.Int
	Raw       types.Log
}

// Market is a Go binding around the deployed marketplace contract.
type Market struct {
	MarketCaller
	MarketTransactor
	MarketFilterer
}

// MarketCaller wraps the contract's read-only calls.
type MarketCaller struct {
	contract *bind.BoundContract
}

// MarketTransactor wraps the contract's state-mutating calls.
type MarketTransactor struct {
	contract *bind.BoundContract
}

// MarketFilterer wraps the contract's event filtering/watching.
type MarketFilterer struct {
	contract *bind.BoundContract
}

// NewMarket binds a new instance of Market to a deployed contract.
func NewMarket(address common.Address, backend bind.ContractBackend) (*Market, error) {
	parsed, err := abi.JSON(strings.NewReader(marketABI))
	if err != nil {
		return nil, err
	}
	contract := bind.NewBoundContract(address, parsed, backend, backend, backend)
	return &Market{
		MarketCaller:     MarketCaller{contract: contract},
		MarketTransactor: MarketTransactor{contract: contract},
		MarketFilterer:   MarketFilterer{contract: contract},
	}, nil
}

// IsSlashed queries whether the given request has already been slashed.
func (c *MarketCaller) IsSlashed(opts *bind.CallOpts, requestId *big.Int) (bool, error) {
	var out []interface{}
	err := c.contract.Call(opts, &out, "isSlashed", requestId)
	if err != nil {
		return false, err
	}
	if len(out) == 0 {
		return false, errors.New("market: isSlashed returned no values")
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

// Slash submits the slash transaction for requestId.
func (t *MarketTransactor) Slash(opts *bind.TransactOpts, requestId *big.Int) (*types.Transaction, error) {
	return t.contract.Transact(opts, "slash", requestId)
}

// LockRequest submits a synthetic RequestLocked event for requestId, used by
// the order generator to seed test load against a development deployment.
func (t *MarketTransactor) LockRequest(opts *bind.TransactOpts, requestId *big.Int, offer Offer) (*types.Transaction, error) {
	return t.contract.Transact(opts, "lockRequest", requestId, offer.RampUpStart, offer.LockTimeout, offer.Timeout)
}

// RequestLockedIterator iterates over RequestLocked logs raised within a
// FilterRequestLocked call, following the abigen iterator convention.
type RequestLockedIterator struct {
	Event *MarketRequestLocked

	contract *bind.BoundContract
	event    string
	logs     chan types.Log
	sub      event.Subscription
	done     bool
	fail     error
}

// Next advances the iterator, unpacking the next log into Event. It
// returns false once logs are exhausted or an error occurred (see Error).
func (it *RequestLockedIterator) Next() bool {
	if it.fail != nil {
		return false
	}
	if it.done {
		select {
		case log := <-it.logs:
			return it.set(log)
		default:
			return false
		}
	}
	select {
	case log := <-it.logs:
		return it.set(log)
	case err := <-it.sub.Err():
		it.done = true
		it.fail = err
		select {
		case log := <-it.logs:
			return it.set(log)
		default:
			return false
		}
	}
}

func (it *RequestLockedIterator) set(log types.Log) bool {
	ev := new(MarketRequestLocked)
	if err := it.contract.UnpackLog(ev, it.event, log); err != nil {
		it.fail = err
		return false
	}
	ev.Raw = log
	it.Event = ev
	return true
}

// Error returns any error encountered while iterating.
func (it *RequestLockedIterator) Error() error { return it.fail }

// Close terminates the iteration.
func (it *RequestLockedIterator) Close() error {
	it.sub.Unsubscribe()
	return nil
}

// FilterRequestLocked returns an iterator over RequestLocked events within
// the given filter window.
func (f *MarketFilterer) FilterRequestLocked(opts *bind.FilterOpts) (*RequestLockedIterator, error) {
	logs, sub, err := f.contract.FilterLogs(opts, "RequestLocked")
	if err != nil {
		return nil, err
	}
	return &RequestLockedIterator{contract: f.contract, event: "RequestLocked", logs: logs, sub: sub}, nil
}

// RequestFulfilledIterator iterates over RequestFulfilled logs raised
// within a FilterRequestFulfilled call, following the abigen iterator
// convention.
type RequestFulfilledIterator struct {
	Event *MarketRequestFulfilled

	contract *bind.BoundContract
	event    string
	logs     chan types.Log
	sub      event.Subscription
	done     bool
	fail     error
}

// Next advances the iterator, unpacking the next log into Event. It
// returns false once logs are exhausted or an error occurred (see Error).
func (it *RequestFulfilledIterator) Next() bool {
	if it.fail != nil {
		return false
	}
	if it.done {
		select {
		case log := <-it.logs:
			return it.set(log)
		default:
			return false
		}
	}
	select {
	case log := <-it.logs:
		return it.set(log)
	case err := <-it.sub.Err():
		it.done = true
		it.fail = err
		select {
		case log := <-it.logs:
			return it.set(log)
		default:
			return false
		}
	}
}

func (it *RequestFulfilledIterator) set(log types.Log) bool {
	ev := new(MarketRequestFulfilled)
	if err := it.contract.UnpackLog(ev, it.event, log); err != nil {
		it.fail = err
		return false
	}
	ev.Raw = log
	it.Event = ev
	return true
}

// Error returns any error encountered while iterating.
func (it *RequestFulfilledIterator) Error() error { return it.fail }

// Close terminates the iteration.
func (it *RequestFulfilledIterator) Close() error {
	it.sub.Unsubscribe()
	return nil
}

// FilterRequestFulfilled returns an iterator over RequestFulfilled events.
func (f *MarketFilterer) FilterRequestFulfilled(opts *bind.FilterOpts) (*RequestFulfilledIterator, error) {
	logs, sub, err := f.contract.FilterLogs(opts, "RequestFulfilled")
	if err != nil {
		return nil, err
	}
	return &RequestFulfilledIterator{contract: f.contract, event: "RequestFulfilled", logs: logs, sub: sub}, nil
}

// ProverSlashedIterator iterates over ProverSlashed logs raised within a
// FilterProverSlashed call, following the abigen iterator convention.
type ProverSlashedIterator struct {
	Event *MarketProverSlashed

	contract *bind.BoundContract
	event    string
	logs     chan types.Log
	sub      event.Subscription
	done     bool
	fail     error
}

// Next advances the iterator, unpacking the next log into Event. It
// returns false once logs are exhausted or an error occurred (see Error).
func (it *ProverSlashedIterator) Next() bool {
	if it.fail != nil {
		return false
	}
	if it.done {
		select {
		case log := <-it.logs:
			return it.set(log)
		default:
			return false
		}
	}
	select {
	case log := <-it.logs:
		return it.set(log)
	case err := <-it.sub.Err():
		it.done = true
		it.fail = err
		select {
		case log := <-it.logs:
			return it.set(log)
		default:
			return false
		}
	}
}

func (it *ProverSlashedIterator) set(log types.Log) bool {
	ev := new(MarketProverSlashed)
	if err := it.contract.UnpackLog(ev, it.event, log); err != nil {
		it.fail = err
		return false
	}
	ev.Raw = log
	it.Event = ev
	return true
}

// Error returns any error encountered while iterating.
func (it *ProverSlashedIterator) Error() error { return it.fail }

// Close terminates the iteration.
func (it *ProverSlashedIterator) Close() error {
	it.sub.Unsubscribe()
	return nil
}

// FilterProverSlashed returns an iterator over ProverSlashed events.
func (f *MarketFilterer) FilterProverSlashed(opts *bind.FilterOpts) (*ProverSlashedIterator, error) {
	logs, sub, err := f.contract.FilterLogs(opts, "ProverSlashed")
	if err != nil {
		return nil, err
	}
	return &ProverSlashedIterator{contract: f.contract, event: "ProverSlashed", logs: logs, sub: sub}, nil
}

// ParseProverSlashed decodes a single already-fetched log (e.g. from a
// transaction receipt) as a ProverSlashed event, the way abigen-generated
// ParseXxx helpers do.
func (f *MarketFilterer) ParseProverSlashed(rawLog types.Log) (*MarketProverSlashed, error) {
	ev := new(MarketProverSlashed)
	if err := f.contract.UnpackLog(ev, "ProverSlashed", rawLog); err != nil {
		return nil, err
	}
	ev.Raw = rawLog
	return ev, nil
}
