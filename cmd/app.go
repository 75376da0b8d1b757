// Package cmd implements the CLI application to track realized gains from a
// ledger of transactions.
package cmd

import (
	"cmp"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"

	"github.com/google/subcommands"
	"github.com/jffcastro/assetflow"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Commands lists the subcommands in the order they are registered.
var Commands = []struct {
	Command subcommands.Command
	Group   string
}{
	{&holdingCmd{}, "reports"},
	{&gainsCmd{}, "reports"},
	{&soldCmd{}, "reports"},
	{newTradeCmd(assetflow.CmdBuy), "transactions"},
	{newTradeCmd(assetflow.CmdSell), "transactions"},
	{&valueCmd{}, "transactions"},
	{newCashCmd(assetflow.CmdDeposit), "transactions"},
	{newCashCmd(assetflow.CmdWithdrawal), "transactions"},
	{&editCmd{}, "transactions"},
	{&rmCmd{}, "transactions"},
	{&fmtCmd{}, "ledger"},
	{&rateCmd{}, "ledger"},
}

// Register the subcommands.
// A main package will call Register() to allow subcommands, and Execute() on the user-selected one.
func Register(c *subcommands.Commander) {
	for _, cmd := range Commands {
		c.Register(cmd.Command, cmd.Group)
	}
}

// Environment variables read as defaults for the global flags. They can also
// be set in a .env file.
const (
	EnvLedgerFile = "ASSETFLOW_LEDGER_FILE"
	EnvMarketFile = "ASSETFLOW_MARKET_FILE"
	EnvRatesFile  = "ASSETFLOW_RATES_FILE"
	EnvCurrency   = "ASSETFLOW_CURRENCY"
	EnvCostBasis  = "ASSETFLOW_COST_BASIS"
	EnvLogLevel   = "ASSETFLOW_LOG_LEVEL"
	EnvForexURL   = "ASSETFLOW_FOREX_URL"
)

// as a CLI application, it has a very short lived lifecycle, so it is ok to use global variables.

var (
	envFile         = flag.String("env-file", ".env", "Path to an optional file of environment variables")
	ledgerFile      = flag.String("ledger-file", "", "Path to the ledger file containing transactions (JSONL format). Defaults to $"+EnvLedgerFile+" or transactions.jsonl")
	marketFile      = flag.String("market-file", "", "Path to the market file with prices and manual adjustments (JSONL format). Defaults to $"+EnvMarketFile+" or market.jsonl")
	ratesFile       = flag.String("rates-file", "", "Path to the historical rates file (JSONL format). Defaults to $"+EnvRatesFile+" or rates.jsonl")
	defaultCurrency = flag.String("c", "", "Reporting currency. Defaults to $"+EnvCurrency+" or EUR")
	costBasis       = flag.String("cost-basis", "", "Cost basis of current holdings: average or fifo. Defaults to $"+EnvCostBasis+" or average")
	logLevel        = flag.String("log-level", "", "Log level: debug, info, warning or error. Defaults to $"+EnvLogLevel+" or warning")
	forexURL        = flag.String("forex-url", "", "Base URL of the exchange rates API. Defaults to $"+EnvForexURL+" or the public frankfurter API")
	offline         = flag.Bool("offline", false, "Do not fetch exchange rates, use cached ones only")
	raw             = flag.Bool("raw", false, "Print raw markdown")
	Verbose         = flag.Bool("v", false, "Verbose logging, overrides $"+EnvLogLevel)
)

// Config is the resolved application configuration.
type Config struct {
	LedgerFile string
	MarketFile string
	RatesFile  string
	Currency   string
	CostBasis  assetflow.CostBasisMethod
	LogLevel   logrus.Level
	ForexURL   string
	Offline    bool
}

// Settings are the raw configuration values, as flags or variables.
type Settings struct {
	LedgerFile, MarketFile, RatesFile, Currency, CostBasis, LogLevel, ForexURL string
	Offline, Verbose                                                           bool
}

// Resolve returns the configuration from s, completed by lookup for empty
// values, then by defaults.
func (s Settings) Resolve(lookup func(string) (string, bool)) (Config, error) {
	get := func(value, key, def string) string {
		if value != "" {
			return value
		}
		if v, ok := lookup(key); ok && v != "" {
			return v
		}
		return def
	}
	cfg := Config{
		LedgerFile: get(s.LedgerFile, EnvLedgerFile, "transactions.jsonl"),
		MarketFile: get(s.MarketFile, EnvMarketFile, "market.jsonl"),
		RatesFile:  get(s.RatesFile, EnvRatesFile, "rates.jsonl"),
		Currency:   get(s.Currency, EnvCurrency, "EUR"),
		ForexURL:   get(s.ForexURL, EnvForexURL, ""),
		Offline:    s.Offline,
	}

	var errs error
	if err := assetflow.ValidateCurrency(cfg.Currency); err != nil {
		errs = errors.Join(errs, fmt.Errorf("reporting currency: %w", err))
	}
	method, err := assetflow.ParseCostBasisMethod(get(s.CostBasis, EnvCostBasis, "average"))
	if err != nil {
		errs = errors.Join(errs, err)
	}
	cfg.CostBasis = method

	level := get(s.LogLevel, EnvLogLevel, "warning")
	if s.Verbose {
		level = "debug"
	}
	if cfg.LogLevel, err = logrus.ParseLevel(level); err != nil {
		errs = errors.Join(errs, err)
	}
	return cfg, errs
}

// loadConfig reads the optional .env file, then resolves the global flags.
func loadConfig() (Config, error) {
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("could not load %q: %w", *envFile, err)
	}
	s := Settings{
		LedgerFile: *ledgerFile,
		MarketFile: *marketFile,
		RatesFile:  *ratesFile,
		Currency:   *defaultCurrency,
		CostBasis:  *costBasis,
		LogLevel:   *logLevel,
		ForexURL:   *forexURL,
		Offline:    *offline,
		Verbose:    *Verbose,
	}
	return s.Resolve(os.LookupEnv)
}

// newLogger returns the application logger, writing to stderr.
func newLogger(level logrus.Level) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(level)
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	return log
}

// fail prints err and returns a failure exit status.
func fail(format string, args ...any) subcommands.ExitStatus {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	return subcommands.ExitFailure
}

// usage prints the usage of f and returns a usage error exit status.
func usage(f *flag.FlagSet, format string, args ...any) subcommands.ExitStatus {
	fmt.Fprintf(os.Stderr, cmp.Or(format, "invalid arguments")+"\n", args...)
	f.Usage()
	return subcommands.ExitUsageError
}
