// Package config resolves the slasher's operator-facing settings from three
// layers, lowest precedence first: a TOML file (if --config points at one),
// process environment variables, and explicit command-line flags. It is the
// single place cmd/slasher, cmd/operator and cmd/ordergen go to build their
// runtime configuration from a urfave/cli.Context.
package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"
)

// Config is the fully resolved set of operator knobs.
type Config struct {
	RPCURL        string
	PrivateKey    string
	MarketAddress common.Address
	DBPath        string

	Interval      time.Duration
	Retries       uint32
	MaxBlockRange uint64
	TxTimeout     time.Duration

	SkipAddresses []common.Address

	BalanceWarnThreshold  *big.Int
	BalanceErrorThreshold *big.Int
	BalancePollInterval   time.Duration

	GasBaseBumpPercent float64
	GasTipBumpPercent  float64
	GasMaxMultiplier   float64

	MetricsAddr string
	InfluxURL   string

	LogVerbosity int
	LogVmodule   string
	LogJSON      bool
}

// fileConfig mirrors the subset of Config that may be set from a TOML file.
// Durations and addresses are kept as strings here since toml has no native
// notion of either; Resolve parses them the same way a flag value would be.
type fileConfig struct {
	RPCURL        string `toml:"rpc_url"`
	PrivateKey    string `toml:"private_key"`
	MarketAddress string `toml:"market_address"`
	DBPath        string `toml:"db_path"`

	Interval      string `toml:"interval"`
	Retries       uint32 `toml:"retries"`
	MaxBlockRange uint64 `toml:"max_block_range"`
	TxTimeout     string `toml:"tx_timeout"`

	SkipAddresses []string `toml:"skip_addresses"`

	BalanceWarnThreshold  string `toml:"balance_warn_threshold"`
	BalanceErrorThreshold string `toml:"balance_error_threshold"`
	BalancePollInterval   string `toml:"balance_poll_interval"`

	GasBaseBumpPercent float64 `toml:"gas_base_bump_percent"`
	GasTipBumpPercent  float64 `toml:"gas_tip_bump_percent"`
	GasMaxMultiplier   float64 `toml:"gas_max_multiplier"`

	MetricsAddr string `toml:"metrics_addr"`
	InfluxURL   string `toml:"influx_url"`

	LogVerbosity int    `toml:"log_verbosity"`
	LogVmodule   string `toml:"log_vmodule"`
	LogJSON      bool   `toml:"log_json"`
}

// Flags is the full urfave/cli flag set every entrypoint registers. Each
// flag's EnvVars gives it an environment-variable fallback automatically;
// the remaining layer, a TOML file, is applied by Resolve before flags are
// read, so an explicit flag always wins.
var Flags = []cli.Flag{
	&cli.StringFlag{Name: "config", Usage: "path to a TOML configuration file"},
	&cli.StringFlag{Name: "rpc-url", EnvVars: []string{"SLASHER_RPC_URL"}, Usage: "JSON-RPC endpoint of the chain to watch"},
	&cli.StringFlag{Name: "private-key", EnvVars: []string{"SLASHER_PRIVATE_KEY"}, Usage: "hex-encoded private key the submitter signs with"},
	&cli.StringFlag{Name: "market-address", EnvVars: []string{"SLASHER_MARKET_ADDRESS"}, Usage: "address of the proof marketplace contract"},
	&cli.StringFlag{Name: "db-path", EnvVars: []string{"SLASHER_DB_PATH"}, Value: "slasher.db", Usage: "path to the SQLite order store"},

	&cli.DurationFlag{Name: "interval", EnvVars: []string{"SLASHER_INTERVAL"}, Value: 12 * time.Second, Usage: "tick period between event scans"},
	&cli.UintFlag{Name: "retries", EnvVars: []string{"SLASHER_RETRIES"}, Value: 5, Usage: "max consecutive transient failures before abort"},
	&cli.Uint64Flag{Name: "max-block-range", EnvVars: []string{"SLASHER_MAX_BLOCK_RANGE"}, Value: 1000, Usage: "upper bound on blocks scanned per tick"},
	&cli.DurationFlag{Name: "tx-timeout", EnvVars: []string{"SLASHER_TX_TIMEOUT"}, Value: 2 * time.Minute, Usage: "wall-clock deadline for a single slash transaction"},

	&cli.StringSliceFlag{Name: "skip-address", EnvVars: []string{"SLASHER_SKIP_ADDRESSES"}, Usage: "prover address whose locks are never tracked (repeatable)"},

	&cli.StringFlag{Name: "balance-warn-threshold", EnvVars: []string{"SLASHER_BALANCE_WARN_THRESHOLD"}, Usage: "wei balance at or below which a warning alert fires"},
	&cli.StringFlag{Name: "balance-error-threshold", EnvVars: []string{"SLASHER_BALANCE_ERROR_THRESHOLD"}, Usage: "wei balance at or below which a critical alert fires"},
	&cli.DurationFlag{Name: "balance-poll-interval", EnvVars: []string{"SLASHER_BALANCE_POLL_INTERVAL"}, Value: time.Minute, Usage: "how often the signer's balance is checked"},

	&cli.Float64Flag{Name: "gas-base-bump-percent", EnvVars: []string{"SLASHER_GAS_BASE_BUMP_PERCENT"}, Value: 0.2, Usage: "fractional fee bump applied to every gas estimate (0.2 = +20%)"},
	&cli.Float64Flag{Name: "gas-tip-bump-percent", EnvVars: []string{"SLASHER_GAS_TIP_BUMP_PERCENT"}, Value: 0.05, Usage: "fractional fee bump added per retry on top of the base bump"},
	&cli.Float64Flag{Name: "gas-max-multiplier", EnvVars: []string{"SLASHER_GAS_MAX_MULTIPLIER"}, Value: 2.0, Usage: "ceiling on the cumulative fee multiplier"},

	&cli.StringFlag{Name: "metrics-addr", EnvVars: []string{"SLASHER_METRICS_ADDR"}, Usage: "address to expose a metrics snapshot on, empty disables it"},
	&cli.StringFlag{Name: "influx-url", EnvVars: []string{"SLASHER_INFLUX_URL"}, Usage: "InfluxDB endpoint to push metrics to, empty disables it"},

	&cli.IntFlag{Name: "log-verbosity", EnvVars: []string{"SLASHER_LOG_VERBOSITY"}, Value: 3, Usage: "log verbosity level, 0 (silent) to 5 (trace)"},
	&cli.StringFlag{Name: "log-vmodule", EnvVars: []string{"SLASHER_LOG_VMODULE"}, Usage: "per-module verbosity overrides, glog vmodule syntax"},
	&cli.BoolFlag{Name: "log-json", EnvVars: []string{"SLASHER_LOG_JSON"}, Usage: "emit logs as JSON instead of the terminal format"},
}

// Resolve builds a Config from a cli.Context: it first loads --config (if
// set) as the base layer, then overwrites every field the operator actually
// set on the command line or via the flag's environment variable.
func Resolve(c *cli.Context) (*Config, error) {
	cfg := &Config{
		DBPath:              "slasher.db",
		Interval:            12 * time.Second,
		Retries:             5,
		MaxBlockRange:       1000,
		TxTimeout:           2 * time.Minute,
		BalancePollInterval: time.Minute,
		GasBaseBumpPercent:  0.2,
		GasTipBumpPercent:   0.05,
		GasMaxMultiplier:    2.0,
		LogVerbosity:        3,
	}

	if path := c.String("config"); path != "" {
		var fc fileConfig
		if _, err := toml.DecodeFile(path, &fc); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := applyFile(cfg, &fc); err != nil {
			return nil, fmt.Errorf("config: %s: %w", path, err)
		}
	}

	if err := applyFlags(c, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, fc *fileConfig) error {
	if fc.RPCURL != "" {
		cfg.RPCURL = fc.RPCURL
	}
	if fc.PrivateKey != "" {
		cfg.PrivateKey = fc.PrivateKey
	}
	if fc.MarketAddress != "" {
		cfg.MarketAddress = common.HexToAddress(fc.MarketAddress)
	}
	if fc.DBPath != "" {
		cfg.DBPath = fc.DBPath
	}
	if fc.Interval != "" {
		d, err := time.ParseDuration(fc.Interval)
		if err != nil {
			return fmt.Errorf("interval: %w", err)
		}
		cfg.Interval = d
	}
	if fc.Retries != 0 {
		cfg.Retries = fc.Retries
	}
	if fc.MaxBlockRange != 0 {
		cfg.MaxBlockRange = fc.MaxBlockRange
	}
	if fc.TxTimeout != "" {
		d, err := time.ParseDuration(fc.TxTimeout)
		if err != nil {
			return fmt.Errorf("tx_timeout: %w", err)
		}
		cfg.TxTimeout = d
	}
	for _, addr := range fc.SkipAddresses {
		cfg.SkipAddresses = append(cfg.SkipAddresses, common.HexToAddress(addr))
	}
	if fc.BalanceWarnThreshold != "" {
		v, ok := new(big.Int).SetString(fc.BalanceWarnThreshold, 10)
		if !ok {
			return fmt.Errorf("balance_warn_threshold: invalid integer %q", fc.BalanceWarnThreshold)
		}
		cfg.BalanceWarnThreshold = v
	}
	if fc.BalanceErrorThreshold != "" {
		v, ok := new(big.Int).SetString(fc.BalanceErrorThreshold, 10)
		if !ok {
			return fmt.Errorf("balance_error_threshold: invalid integer %q", fc.BalanceErrorThreshold)
		}
		cfg.BalanceErrorThreshold = v
	}
	if fc.BalancePollInterval != "" {
		d, err := time.ParseDuration(fc.BalancePollInterval)
		if err != nil {
			return fmt.Errorf("balance_poll_interval: %w", err)
		}
		cfg.BalancePollInterval = d
	}
	if fc.GasBaseBumpPercent != 0 {
		cfg.GasBaseBumpPercent = fc.GasBaseBumpPercent
	}
	if fc.GasTipBumpPercent != 0 {
		cfg.GasTipBumpPercent = fc.GasTipBumpPercent
	}
	if fc.GasMaxMultiplier != 0 {
		cfg.GasMaxMultiplier = fc.GasMaxMultiplier
	}
	if fc.MetricsAddr != "" {
		cfg.MetricsAddr = fc.MetricsAddr
	}
	if fc.InfluxURL != "" {
		cfg.InfluxURL = fc.InfluxURL
	}
	if fc.LogVerbosity != 0 {
		cfg.LogVerbosity = fc.LogVerbosity
	}
	if fc.LogVmodule != "" {
		cfg.LogVmodule = fc.LogVmodule
	}
	cfg.LogJSON = cfg.LogJSON || fc.LogJSON
	return nil
}

func applyFlags(c *cli.Context, cfg *Config) error {
	if c.IsSet("rpc-url") {
		cfg.RPCURL = c.String("rpc-url")
	}
	if c.IsSet("private-key") {
		cfg.PrivateKey = c.String("private-key")
	}
	if c.IsSet("market-address") {
		cfg.MarketAddress = common.HexToAddress(c.String("market-address"))
	}
	if c.IsSet("db-path") {
		cfg.DBPath = c.String("db-path")
	}
	if c.IsSet("interval") {
		cfg.Interval = c.Duration("interval")
	}
	if c.IsSet("retries") {
		cfg.Retries = uint32(c.Uint("retries"))
	}
	if c.IsSet("max-block-range") {
		cfg.MaxBlockRange = c.Uint64("max-block-range")
	}
	if c.IsSet("tx-timeout") {
		cfg.TxTimeout = c.Duration("tx-timeout")
	}
	if c.IsSet("skip-address") {
		cfg.SkipAddresses = nil
		for _, addr := range c.StringSlice("skip-address") {
			cfg.SkipAddresses = append(cfg.SkipAddresses, common.HexToAddress(strings.TrimSpace(addr)))
		}
	}
	if c.IsSet("balance-warn-threshold") {
		v, ok := new(big.Int).SetString(c.String("balance-warn-threshold"), 10)
		if !ok {
			return fmt.Errorf("config: invalid --balance-warn-threshold %q", c.String("balance-warn-threshold"))
		}
		cfg.BalanceWarnThreshold = v
	}
	if c.IsSet("balance-error-threshold") {
		v, ok := new(big.Int).SetString(c.String("balance-error-threshold"), 10)
		if !ok {
			return fmt.Errorf("config: invalid --balance-error-threshold %q", c.String("balance-error-threshold"))
		}
		cfg.BalanceErrorThreshold = v
	}
	if c.IsSet("balance-poll-interval") {
		cfg.BalancePollInterval = c.Duration("balance-poll-interval")
	}
	if c.IsSet("gas-base-bump-percent") {
		cfg.GasBaseBumpPercent = c.Float64("gas-base-bump-percent")
	}
	if c.IsSet("gas-tip-bump-percent") {
		cfg.GasTipBumpPercent = c.Float64("gas-tip-bump-percent")
	}
	if c.IsSet("gas-max-multiplier") {
		cfg.GasMaxMultiplier = c.Float64("gas-max-multiplier")
	}
	if c.IsSet("metrics-addr") {
		cfg.MetricsAddr = c.String("metrics-addr")
	}
	if c.IsSet("influx-url") {
		cfg.InfluxURL = c.String("influx-url")
	}
	if c.IsSet("log-verbosity") {
		cfg.LogVerbosity = c.Int("log-verbosity")
	}
	if c.IsSet("log-vmodule") {
		cfg.LogVmodule = c.String("log-vmodule")
	}
	if c.IsSet("log-json") {
		cfg.LogJSON = c.Bool("log-json")
	}
	return nil
}

// Validate checks the fields every entrypoint needs set regardless of which
// layer supplied them.
func (cfg *Config) Validate() error {
	if cfg.RPCURL == "" {
		return fmt.Errorf("config: rpc-url is required")
	}
	if cfg.PrivateKey == "" {
		return fmt.Errorf("config: private-key is required")
	}
	if (cfg.MarketAddress == common.Address{}) {
		return fmt.Errorf("config: market-address is required")
	}
	return nil
}
