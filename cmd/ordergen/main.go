// Command ordergen is a timed synthetic-order generator: it repeatedly
// locks a freshly minted request id against the marketplace, so a slasher
// running against a development deployment has a steady stream of expiring
// locks to exercise against.
package main

import (
	"context"
	"fmt"
	"math/big"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/nodeinfra/boundless/internal/chainkit"
	"github.com/nodeinfra/boundless/internal/config"
	"github.com/nodeinfra/boundless/internal/logging"
	"github.com/nodeinfra/boundless/internal/signer"
	"github.com/nodeinfra/boundless/market"
)

func main() {
	app := &cli.App{
		Name:  "ordergen",
		Usage: "submit synthetic locked requests against a marketplace deployment",
		Flags: append(config.Flags,
			&cli.DurationFlag{Name: "submit-interval", Value: 15 * time.Second, Usage: "time between submitted requests"},
			&cli.Uint64Flag{Name: "lock-timeout", Value: 60, Usage: "seconds from lock until a slash opportunity opens"},
			&cli.Uint64Flag{Name: "timeout", Value: 120, Usage: "seconds from lock until the request hard-expires"},
		),
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "ordergen:", err)
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
		return err
	}
	sgn, err := signer.New(cfg.PrivateKey, chainID, signer.NewDynamicGasFiller(cfg.GasBaseBumpPercent, cfg.GasTipBumpPercent, cfg.GasMaxMultiplier))
	if err != nil {
		return err
	}
	mkt, err := market.NewMarket(cfg.MarketAddress, client)
	if err != nil {
		return err
	}

	interval := c.Duration("submit-interval")
	lockTimeout := uint32(c.Uint64("lock-timeout"))
	timeout := uint32(c.Uint64("timeout"))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	source := rand.New(rand.NewSource(time.Now().UnixNano()))

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		requestID := new(big.Int).SetUint64(source.Uint64())
		if err := submitLock(ctx, mkt, sgn, requestID, lockTimeout, timeout); err != nil {
			log.Warn("failed to submit synthetic lock", "request_id", requestID, "err", err)
			continue
		}
		log.Info("submitted synthetic lock", "request_id", requestID)
	}
}

func submitLock(ctx context.Context, mkt *market.Market, sgn *signer.Signer, requestID *big.Int, lockTimeout, timeout uint32) error {
	opts, err := sgn.TransactOpts(ctx, 0)
	if err != nil {
		return err
	}
	offer := market.Offer{RampUpStart: uint64(time.Now().Unix()), LockTimeout: lockTimeout, Timeout: timeout}
	_, err = mkt.LockRequest(opts, requestID, offer)
	return err
}
