// Package alerts watches the signer's wallet balance and fans out a
// BalanceAlert whenever it crosses a configured threshold, so an operator
// process can page on low funds well before the submitter starts failing
// transactions with "insufficient funds".
package alerts

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"

	"github.com/nodeinfra/boundless/internal/metrics"
)

// Severity classifies a BalanceAlert.
type Severity int

const (
	// SeverityOK means the balance recovered above every threshold.
	SeverityOK Severity = iota
	SeverityWarn
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityWarn:
		return "warn"
	case SeverityCritical:
		return "critical"
	default:
		return "ok"
	}
}

// BalanceAlert is broadcast on the Monitor's feed whenever the wallet
// balance's severity changes.
type BalanceAlert struct {
	Address  common.Address
	Balance  *big.Int
	Severity Severity
}

// BalanceSource fetches the current balance of an address. *ethclient.Client
// satisfies this with its BalanceAt method.
type BalanceSource interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Monitor polls a wallet's balance and emits a BalanceAlert each time its
// severity changes, so subscribers are not flooded with a repeat alert
// every poll while the balance sits below a threshold.
type Monitor struct {
	source   BalanceSource
	address  common.Address
	warnAt   *big.Int
	critAt   *big.Int
	interval time.Duration
	log      log.Logger
	metrics  *metrics.Set

	feed event.Feed
	last Severity
}

// NewMonitor builds a Monitor. warnAt/critAt may be nil to disable that
// threshold. metricSet may be nil, in which case the monitor simply does
// not report the balance gauge.
func NewMonitor(source BalanceSource, address common.Address, warnAt, critAt *big.Int, interval time.Duration, logger log.Logger, metricSet *metrics.Set) *Monitor {
	if logger == nil {
		logger = log.Root()
	}
	return &Monitor{source: source, address: address, warnAt: warnAt, critAt: critAt, interval: interval, log: logger, metrics: metricSet}
}

// Subscribe registers ch to receive future BalanceAlerts.
func (m *Monitor) Subscribe(ch chan<- BalanceAlert) event.Subscription {
	return m.feed.Subscribe(ch)
}

// Run polls the balance every interval until ctx is cancelled, emitting an
// alert on every severity transition.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		balance, err := m.source.BalanceAt(ctx, m.address, nil)
		if err != nil {
			m.log.Warn("failed to fetch signer balance", "address", m.address, "err", err)
			continue
		}
		if m.metrics != nil {
			balanceFloat, _ := new(big.Float).SetInt(balance).Float64()
			m.metrics.SignerBalanceWei.Update(balanceFloat)
		}

		severity := m.classify(balance)
		if severity != m.last {
			m.log.Warn("signer balance severity changed", "address", m.address, "balance", balance, "severity", severity)
			m.feed.Send(BalanceAlert{Address: m.address, Balance: balance, Severity: severity})
			m.last = severity
		}
	}
}

func (m *Monitor) classify(balance *big.Int) Severity {
	if m.critAt != nil && balance.Cmp(m.critAt) <= 0 {
		return SeverityCritical
	}
	if m.warnAt != nil && balance.Cmp(m.warnAt) <= 0 {
		return SeverityWarn
	}
	return SeverityOK
}
