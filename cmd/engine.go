package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/jffcastro/assetflow"
	"github.com/jffcastro/assetflow/forex"
	"github.com/sirupsen/logrus"
)

// app gathers what a subcommand needs to run the engine.
type app struct {
	cfg    Config
	log    *logrus.Logger
	rates  *assetflow.RateCache
	market *assetflow.Market
	engine *assetflow.Engine
}

// openApp loads the configuration, the market and the rates, and creates the
// engine over the ledger file.
func openApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: newLogger(cfg.LogLevel)}

	a.rates = assetflow.NewRateCache(time.Hour)
	if err := readFile(cfg.RatesFile, func(b []byte) error {
		return assetflow.DecodeRates(bytes.NewReader(b), a.rates)
	}); err != nil {
		return nil, err
	}

	a.market = assetflow.NewMarket()
	if err := readFile(cfg.MarketFile, func(b []byte) (err error) {
		a.market, err = assetflow.DecodeMarket(bytes.NewReader(b))
		return err
	}); err != nil {
		return nil, err
	}

	var source assetflow.RateSource
	if !cfg.Offline {
		opts := []forex.Option{forex.WithLogger(a.log)}
		if cfg.ForexURL != "" {
			opts = append(opts, forex.WithBaseURL(cfg.ForexURL))
		}
		if dir, err := os.UserCacheDir(); err == nil {
			dir = filepath.Join(dir, "assetflow")
			if err := os.MkdirAll(dir, 0o755); err == nil {
				opts = append(opts, forex.WithDiskCache(dir))
			}
		}
		source = forex.New(cfg.Currency, opts...)
	}
	converter, err := assetflow.NewCurrencyConverter(cfg.Currency, a.rates, source, a.log)
	if err != nil {
		return nil, err
	}

	a.engine, err = assetflow.NewEngine(assetflow.Config{
		Ledger:      assetflow.NewFileLedger(cfg.LedgerFile),
		Converter:   converter,
		Prices:      a.market,
		Adjustments: a.market,
		Holdings:    a.market,
		Method:      cfg.CostBasis,
		Logger:      a.log,
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// readFile calls decode with the content of name, if the file exists.
func readFile(name string, decode func([]byte) error) error {
	b, err := os.ReadFile(name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("could not read %q: %w", name, err)
	}
	if err := decode(b); err != nil {
		return fmt.Errorf("could not decode %q: %w", name, err)
	}
	return nil
}

// saveRates persists the historical rates resolved so far.
func (a *app) saveRates() error {
	var buf bytes.Buffer
	if err := assetflow.EncodeRates(&buf, a.rates); err != nil {
		return err
	}
	if buf.Len() == 0 {
		return nil
	}
	return os.WriteFile(a.cfg.RatesFile, buf.Bytes(), 0o644)
}

// saveMarket records the prices of exited assets and persists the market.
func (a *app) saveMarket(ctx context.Context) error {
	holdings, _, err := a.engine.GetHoldings(ctx)
	if err != nil {
		return err
	}
	moved := a.market.RecordExits(holdings)
	if len(moved) == 0 {
		return nil
	}
	a.log.WithField("assets", moved).Info("recorded last known prices of exited assets")
	var buf bytes.Buffer
	if err := assetflow.EncodeMarket(&buf, a.market); err != nil {
		return err
	}
	return os.WriteFile(a.cfg.MarketFile, buf.Bytes(), 0o644)
}

// close persists what the engine learned while running.
func (a *app) close(ctx context.Context) error {
	return errors.Join(a.saveRates(), a.saveMarket(ctx))
}

// warn logs each warning.
func (a *app) warn(warnings []error) {
	for _, w := range warnings {
		a.log.Warn(w.Error())
	}
}
