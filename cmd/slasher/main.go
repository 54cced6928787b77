// Command slasher runs the supervisor loop that watches the proof
// marketplace for expired locked requests and slashes the provers that
// failed to fulfill them in time.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/nodeinfra/boundless/internal/alerts"
	"github.com/nodeinfra/boundless/internal/chain"
	"github.com/nodeinfra/boundless/internal/chainkit"
	"github.com/nodeinfra/boundless/internal/config"
	"github.com/nodeinfra/boundless/internal/logging"
	"github.com/nodeinfra/boundless/internal/metrics"
	"github.com/nodeinfra/boundless/internal/signer"
	"github.com/nodeinfra/boundless/internal/slasher"
	"github.com/nodeinfra/boundless/internal/store"
	"github.com/nodeinfra/boundless/internal/submitter"
	"github.com/nodeinfra/boundless/market"
)

func main() {
	app := &cli.App{
		Name:  "slasher",
		Usage: "watch a proof marketplace and slash provers that miss their lock deadline",
		Flags: append(config.Flags, &cli.Uint64Flag{Name: "start-block", Usage: "override the stored cursor and replay from this block"}),
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "slasher:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Resolve(c)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := logging.Setup(cfg.LogVerbosity, cfg.LogVmodule, cfg.LogJSON); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client, err := chainkit.Dial(ctx, cfg.RPCURL, 5, 2*time.Second)
	if err != nil {
		return err
	}
	defer client.Close()

	chainID, err := chainkit.ChainID(ctx, client)
	if err != nil {
		return fmt.Errorf("slasher: fetching chain id: %w", err)
	}

	gasFiller := signer.NewDynamicGasFiller(cfg.GasBaseBumpPercent, cfg.GasTipBumpPercent, cfg.GasMaxMultiplier)
	sgn, err := signer.New(cfg.PrivateKey, chainID, gasFiller)
	if err != nil {
		return fmt.Errorf("slasher: constructing signer: %w", err)
	}
	log.Info("signer ready", "address", sgn.Address(), "chain_id", chainID)

	mkt, err := market.NewMarket(cfg.MarketAddress, client)
	if err != nil {
		return fmt.Errorf("slasher: binding market contract: %w", err)
	}

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("slasher: opening order store: %w", err)
	}
	defer db.Close()

	var metricSet *metrics.Set
	if cfg.MetricsAddr != "" {
		metricSet = metrics.NewSet()
	}

	chainReader := chain.NewReader(client, mkt, log.Root())
	sub := submitter.New(mkt, client, sgn, cfg.TxTimeout, log.Root())
	skip := slasher.NewSkipSet(cfg.SkipAddresses)
	reducer := slasher.NewReducer(chainReader, db, skip, log.Root(), metricSet)
	scheduler := slasher.NewScheduler(chainReader, db, sub, log.Root(), metricSet)

	svcCfg := slasher.Config{Interval: cfg.Interval, Retries: cfg.Retries, MaxBlockRange: cfg.MaxBlockRange}
	svc := slasher.NewService(chainReader, db, reducer, scheduler, svcCfg, log.Root(), metricSet)

	group, gctx := errgroup.WithContext(ctx)

	if metricSet != nil {
		group.Go(func() error {
			if err := metrics.ServeHTTP(cfg.MetricsAddr); err != nil {
				log.Warn("metrics HTTP server exited", "err", err)
			}
			return nil
		})
	}
	if cfg.InfluxURL != "" && metricSet != nil {
		group.Go(func() error {
			metrics.RunInflux(gctx, metrics.InfluxConfig{
				Enabled:  true,
				Endpoint: cfg.InfluxURL,
				Interval: 10 * time.Second,
			})
			return nil
		})
	}

	if cfg.BalanceWarnThreshold != nil || cfg.BalanceErrorThreshold != nil {
		monitor := alerts.NewMonitor(client, sgn.Address(), cfg.BalanceWarnThreshold, cfg.BalanceErrorThreshold, cfg.BalancePollInterval, log.Root(), metricSet)
		group.Go(func() error {
			if err := monitor.Run(gctx); err != nil && gctx.Err() == nil {
				log.Warn("balance monitor exited", "err", err)
			}
			return nil
		})
	}

	var startBlock *uint64
	if c.IsSet("start-block") {
		v := c.Uint64("start-block")
		startBlock = &v
	}

	group.Go(func() error {
		log.Info("starting supervisor loop", "market", cfg.MarketAddress, "interval", cfg.Interval)
		if err := svc.Run(gctx, startBlock); err != nil {
			log.Error("supervisor loop exited with error", "err", err)
			return err
		}
		log.Info("supervisor loop stopped")
		return nil
	})

	return group.Wait()
}
