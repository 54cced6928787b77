// Command operator is a thin, interactive counterpart to cmd/slasher: it
// lets an operator inspect the current state of the order store and chain,
// and trigger a manual slash attempt outside the supervisor's own schedule.
package main

import (
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/nodeinfra/boundless/internal/chain"
	"github.com/nodeinfra/boundless/internal/chainkit"
	"github.com/nodeinfra/boundless/internal/config"
	"github.com/nodeinfra/boundless/internal/logging"
	"github.com/nodeinfra/boundless/internal/signer"
	"github.com/nodeinfra/boundless/internal/store"
	"github.com/nodeinfra/boundless/internal/submitter"
	"github.com/nodeinfra/boundless/market"
)

func main() {
	app := &cli.App{
		Name:  "operator",
		Usage: "inspect and manually drive a running slasher's order store",
		Flags: config.Flags,
		Commands: []*cli.Command{
			statusCommand,
			slashCommand,
			configCommand,
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "operator:", err)
		os.Exit(1)
	}
}

func setup(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Resolve(c)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := logging.Setup(cfg.LogVerbosity, cfg.LogVmodule, cfg.LogJSON); err != nil {
		return nil, err
	}
	return cfg, nil
}

var statusCommand = &cli.Command{
	Name:  "status",
	Usage: "print the current head block, cursor and due-request count",
	Action: func(c *cli.Context) error {
		cfg, err := setup(c)
		if err != nil {
			return err
		}
		ctx := c.Context

		client, err := chainkit.Dial(ctx, cfg.RPCURL, 3, time.Second)
		if err != nil {
			return err
		}
		defer client.Close()

		mkt, err := market.NewMarket(cfg.MarketAddress, client)
		if err != nil {
			return err
		}
		db, err := store.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer db.Close()

		reader := chain.NewReader(client, mkt, log.Root())
		head, err := reader.HeadBlock(ctx)
		if err != nil {
			return err
		}
		cursor, hasCursor, err := db.GetCursor()
		if err != nil {
			return err
		}

		ts, err := reader.BlockTimestamp(ctx, head)
		if err != nil {
			return err
		}
		due, err := db.DueBefore(ts)
		if err != nil {
			return err
		}

		fmt.Printf("head block:     %d\n", head)
		if hasCursor {
			fmt.Printf("stored cursor:  %d\n", cursor)
		} else {
			fmt.Printf("stored cursor:  (none)\n")
		}
		fmt.Printf("due requests:   %d\n", len(due))
		for _, id := range due {
			fmt.Printf("  - %s\n", id.String())
		}
		return nil
	},
}

var slashCommand = &cli.Command{
	Name:      "slash",
	Usage:     "manually submit a slash transaction for a request id",
	ArgsUsage: "<request-id>",
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return fmt.Errorf("operator: slash requires exactly one request id argument")
		}
		requestID, ok := new(big.Int).SetString(c.Args().First(), 10)
		if !ok {
			return fmt.Errorf("operator: invalid request id %q", c.Args().First())
		}

		cfg, err := setup(c)
		if err != nil {
			return err
		}
		ctx := c.Context

		client, err := chainkit.Dial(ctx, cfg.RPCURL, 3, time.Second)
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

		sub := submitter.New(mkt, client, sgn, cfg.TxTimeout, log.Root())
		outcome, err := sub.Slash(ctx, requestID, 0)
		fmt.Printf("outcome: kind=%d reason=%d tx=%s\n", outcome.Kind, outcome.Reason, outcome.TxHash)
		return err
	},
}

var configCommand = &cli.Command{
	Name:  "config",
	Usage: "print the fully resolved configuration",
	Action: func(c *cli.Context) error {
		cfg, err := config.Resolve(c)
		if err != nil {
			return err
		}
		fmt.Printf("rpc_url:               %s\n", cfg.RPCURL)
		fmt.Printf("market_address:         %s\n", cfg.MarketAddress)
		fmt.Printf("db_path:                %s\n", cfg.DBPath)
		fmt.Printf("interval:               %s\n", cfg.Interval)
		fmt.Printf("retries:                %d\n", cfg.Retries)
		fmt.Printf("max_block_range:        %d\n", cfg.MaxBlockRange)
		fmt.Printf("tx_timeout:             %s\n", cfg.TxTimeout)
		fmt.Printf("skip_addresses:         %v\n", cfg.SkipAddresses)
		fmt.Printf("balance_warn_threshold: %v\n", cfg.BalanceWarnThreshold)
		fmt.Printf("balance_error_threshold:%v\n", cfg.BalanceErrorThreshold)
		fmt.Printf("metrics_addr:           %s\n", cfg.MetricsAddr)
		fmt.Printf("influx_url:             %s\n", cfg.InfluxURL)
		fmt.Printf("log_verbosity:          %d\n", cfg.LogVerbosity)
		return nil
	},
}
