package slasher_test

import (
	"context"
	"errors"
	"math/big"

	"github.com/nodeinfra/boundless/internal/submitter"
	"github.com/nodeinfra/boundless/market"
)

func offer(rampUpStart uint64, lockTimeout, timeout uint32) market.Offer {
	return market.Offer{RampUpStart: rampUpStart, LockTimeout: lockTimeout, Timeout: timeout}
}

// fakeSubmitter scripts a Slash outcome (or sequence of outcomes) per
// request id, and records every call it receives for assertions.
type fakeSubmitter struct {
	scripted map[string][]submitter.Outcome
	errs     map[string][]error
	calls    []fakeSlashCall
}

type fakeSlashCall struct {
	requestID *big.Int
	attempt   int
}

func newFakeSubmitter() *fakeSubmitter {
	return &fakeSubmitter{scripted: make(map[string][]submitter.Outcome), errs: make(map[string][]error)}
}

// script queues the outcome/error pair returned the next time requestID is
// slashed; repeated calls beyond the queued entries repeat the last one.
func (f *fakeSubmitter) script(requestID *big.Int, outcome submitter.Outcome, err error) {
	key := requestID.String()
	f.scripted[key] = append(f.scripted[key], outcome)
	f.errs[key] = append(f.errs[key], err)
}

func (f *fakeSubmitter) Slash(ctx context.Context, requestID *big.Int, attempt int) (submitter.Outcome, error) {
	f.calls = append(f.calls, fakeSlashCall{requestID: requestID, attempt: attempt})
	key := requestID.String()
	outs := f.scripted[key]
	errs := f.errs[key]
	if len(outs) == 0 {
		return submitter.Outcome{}, errors.New("fakeSubmitter: no outcome scripted for " + key)
	}
	var out submitter.Outcome
	var err error
	if n := f.countCalls(key); n < len(outs) {
		out, err = outs[n], errs[n]
	} else {
		out, err = outs[len(outs)-1], errs[len(errs)-1]
	}
	return out, err
}

func (f *fakeSubmitter) countCalls(key string) int {
	n := 0
	for _, c := range f.calls {
		if c.requestID.String() == key {
			n++
		}
	}
	return n - 1
}

func (f *fakeSubmitter) callCount(requestID *big.Int) int {
	return f.countCalls(requestID.String()) + 1
}
