package slasher_test

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/nodeinfra/boundless/internal/slasher"
	"github.com/nodeinfra/boundless/internal/submitter"
	"github.com/nodeinfra/boundless/internal/svcerr"
)

func TestSchedulerDispatchesDueRequestAndRemovesOnSuccess(t *testing.T) {
	db := openTestOrderStore(t)
	fc := newFakeChain()
	fc.setTimestamp(10, 5000)
	require.NoError(t, db.Add(big.NewInt(1), 4000, 3000))

	fs := newFakeSubmitter()
	fs.script(big.NewInt(1), submitter.Outcome{Kind: submitter.OutcomeSuccess, TxHash: common.Hash{}}, nil)

	sched := slasher.NewScheduler(fc, db, fs, nil, nil)
	require.NoError(t, sched.Run(context.Background(), 10))

	_, ok, err := db.Get(big.NewInt(1))
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 1, fs.callCount(big.NewInt(1)))
}

func TestSchedulerSkipsNotYetDueRequest(t *testing.T) {
	db := openTestOrderStore(t)
	fc := newFakeChain()
	fc.setTimestamp(10, 100)
	require.NoError(t, db.Add(big.NewInt(2), 4000, 3000))

	fs := newFakeSubmitter()
	sched := slasher.NewScheduler(fc, db, fs, nil, nil)
	require.NoError(t, sched.Run(context.Background(), 10))

	_, ok, err := db.Get(big.NewInt(2))
	require.NoError(t, err)
	require.True(t, ok, "request not yet expired must be retained")
	require.Equal(t, 0, len(fs.calls))
}

func TestSchedulerRetainsRowOnTransientOutcomeAndRetriesNextTick(t *testing.T) {
	db := openTestOrderStore(t)
	fc := newFakeChain()
	fc.setTimestamp(10, 5000)
	require.NoError(t, db.Add(big.NewInt(3), 4000, 3000))

	fs := newFakeSubmitter()
	fs.script(big.NewInt(3), submitter.Outcome{Kind: submitter.OutcomeRevert}, svcerr.SlashRevert(big.NewInt(3), [32]byte{}))
	fs.script(big.NewInt(3), submitter.Outcome{Kind: submitter.OutcomeSuccess}, nil)

	sched := slasher.NewScheduler(fc, db, fs, nil, nil)

	err := sched.Run(context.Background(), 10)
	require.Error(t, err)
	require.False(t, svcerr.As(err).Fatal())
	_, ok, getErr := db.Get(big.NewInt(3))
	require.NoError(t, getErr)
	require.True(t, ok, "transient outcome must retain the row for retry")

	require.NoError(t, sched.Run(context.Background(), 10))
	_, ok, getErr = db.Get(big.NewInt(3))
	require.NoError(t, getErr)
	require.False(t, ok)
	require.Equal(t, 2, fs.callCount(big.NewInt(3)))
}

func TestSchedulerGasBumpAttemptIncreasesAcrossRetries(t *testing.T) {
	db := openTestOrderStore(t)
	fc := newFakeChain()
	fc.setTimestamp(10, 5000)
	require.NoError(t, db.Add(big.NewInt(4), 4000, 3000))

	fs := newFakeSubmitter()
	fs.script(big.NewInt(4), submitter.Outcome{Kind: submitter.OutcomeTransient}, svcerr.Market(errTest))
	fs.script(big.NewInt(4), submitter.Outcome{Kind: submitter.OutcomeTransient}, svcerr.Market(errTest))

	sched := slasher.NewScheduler(fc, db, fs, nil, nil)
	_ = sched.Run(context.Background(), 10)
	_ = sched.Run(context.Background(), 10)

	require.Len(t, fs.calls, 2)
	require.Equal(t, 0, fs.calls[0].attempt)
	require.Equal(t, 1, fs.calls[1].attempt)
}

func TestSchedulerStopsOnFatalInsufficientFunds(t *testing.T) {
	db := openTestOrderStore(t)
	fc := newFakeChain()
	fc.setTimestamp(10, 5000)
	require.NoError(t, db.Add(big.NewInt(5), 4000, 3000))
	require.NoError(t, db.Add(big.NewInt(6), 4000, 3000))

	fs := newFakeSubmitter()
	fs.script(big.NewInt(5), submitter.Outcome{Kind: submitter.OutcomeInsufficientFunds}, svcerr.InsufficientFunds("no gas"))
	fs.script(big.NewInt(6), submitter.Outcome{Kind: submitter.OutcomeSuccess}, nil)

	sched := slasher.NewScheduler(fc, db, fs, nil, nil)
	err := sched.Run(context.Background(), 10)
	require.Error(t, err)
	require.True(t, svcerr.As(err).Fatal())
}

type staticErr string

func (e staticErr) Error() string { return string(e) }

const errTest = staticErr("boom")
