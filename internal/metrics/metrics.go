// Package metrics exposes the counters and gauges the supervisor loop and
// its collaborators update, built on go-ethereum's metrics registry. A
// process can expose them over an HTTP endpoint, push them to InfluxDB, or
// both; reporting is opt-in and off by default, matching metrics.Enabled.
package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/log"
	gethmetrics "github.com/ethereum/go-ethereum/metrics"
	"github.com/ethereum/go-ethereum/metrics/influxdb"
)

// Set holds every metric this process reports, registered in
// gethmetrics.DefaultRegistry at construction time.
type Set struct {
	Ticks            gethmetrics.Counter
	TickErrors       gethmetrics.Counter
	HeadBlock        gethmetrics.Gauge
	Cursor           gethmetrics.Gauge
	LockedTracked    gethmetrics.Counter
	FulfilledInLock  gethmetrics.Counter
	FulfilledLate    gethmetrics.Counter
	SlashedByOthers  gethmetrics.Counter
	SlashAttempts    gethmetrics.Counter
	SlashSuccesses   gethmetrics.Counter
	SlashTransient   gethmetrics.Counter
	SlashFatal       gethmetrics.Counter
	SignerBalanceWei gethmetrics.GaugeFloat64
}

// NewSet registers and returns the standard metric set. Calling it twice
// panics (the underlying registry rejects duplicate names), so a process
// should build exactly one Set.
func NewSet() *Set {
	return &Set{
		Ticks:            gethmetrics.NewRegisteredCounter("slasher/ticks", nil),
		TickErrors:       gethmetrics.NewRegisteredCounter("slasher/tick_errors", nil),
		HeadBlock:        gethmetrics.NewRegisteredGauge("slasher/head_block", nil),
		Cursor:           gethmetrics.NewRegisteredGauge("slasher/cursor", nil),
		LockedTracked:    gethmetrics.NewRegisteredCounter("slasher/events/locked", nil),
		FulfilledInLock:  gethmetrics.NewRegisteredCounter("slasher/events/fulfilled_in_lock", nil),
		FulfilledLate:    gethmetrics.NewRegisteredCounter("slasher/events/fulfilled_late", nil),
		SlashedByOthers:  gethmetrics.NewRegisteredCounter("slasher/events/slashed_by_others", nil),
		SlashAttempts:    gethmetrics.NewRegisteredCounter("slasher/slash/attempts", nil),
		SlashSuccesses:   gethmetrics.NewRegisteredCounter("slasher/slash/successes", nil),
		SlashTransient:   gethmetrics.NewRegisteredCounter("slasher/slash/transient", nil),
		SlashFatal:       gethmetrics.NewRegisteredCounter("slasher/slash/fatal", nil),
		SignerBalanceWei: gethmetrics.NewRegisteredGaugeFloat64("slasher/signer/balance_wei", nil),
	}
}

// ServeHTTP exposes a JSON snapshot of the default registry at /debug/metrics.
func ServeHTTP(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/metrics", snapshotHandler)
	log.Info("metrics HTTP endpoint listening", "addr", addr)
	return http.ListenAndServe(addr, mux)
}

func snapshotHandler(w http.ResponseWriter, r *http.Request) {
	snapshot := make(map[string]interface{})
	gethmetrics.DefaultRegistry.Each(func(name string, metric interface{}) {
		switch m := metric.(type) {
		case gethmetrics.Counter:
			snapshot[name] = m.Snapshot().Count()
		case gethmetrics.Gauge:
			snapshot[name] = m.Snapshot().Value()
		case gethmetrics.GaugeFloat64:
			snapshot[name] = m.Snapshot().Value()
		}
	})
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(snapshot)
}

// InfluxConfig configures the optional InfluxDB push reporter.
type InfluxConfig struct {
	Enabled      bool
	V2           bool
	Endpoint     string
	Database     string
	Username     string
	Password     string
	Token        string
	Bucket       string
	Organization string
	Namespace    string
	Interval     time.Duration
	Tags         map[string]string
}

// RunInflux pushes metrics to InfluxDB on Interval until ctx is cancelled.
// It blocks, so callers run it in its own goroutine.
func RunInflux(ctx context.Context, cfg InfluxConfig) {
	if !cfg.Enabled {
		return
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.Tags == nil {
		cfg.Tags = map[string]string{}
	}

	go func() {
		if cfg.V2 {
			influxdb.InfluxDBV2WithTags(gethmetrics.DefaultRegistry, cfg.Interval, cfg.Endpoint, cfg.Token, cfg.Bucket, cfg.Organization, cfg.Namespace, cfg.Tags)
			return
		}
		influxdb.InfluxDBWithTags(gethmetrics.DefaultRegistry, cfg.Interval, cfg.Endpoint, cfg.Database, cfg.Username, cfg.Password, cfg.Namespace, cfg.Tags)
	}()

	<-ctx.Done()
}
