package assetflow

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/sirupsen/logrus"
)

// AdjustmentSource provides realized gains that are not backed by ledger
// transactions, by asset class.
type AdjustmentSource interface {
	ManualRealizedAdjustments() map[AssetClass]Money
}

// HoldingsSource provides the last persisted holdings, used for asset
// classes that are not lot tracked.
type HoldingsSource interface {
	PersistedHoldings() Holdings
}

// Config configures an Engine. Ledger and Converter are required.
type Config struct {
	Ledger      LedgerStore
	Converter   *CurrencyConverter
	Prices      PriceSource      // optional
	Adjustments AdjustmentSource // optional
	Holdings    HoldingsSource   // optional
	Method      CostBasisMethod  // Method is the cost basis of current holdings.
	Logger      logrus.FieldLogger
}

// DeriveInputs are the non-ledger inputs of Derive.
type DeriveInputs struct {
	Reporting string
	Method    CostBasisMethod
	Previous  Holdings
	Manual    map[AssetClass]Money
	Live      Rates
}

// DerivedState is everything derived from one ledger snapshot.
type DerivedState struct {
	Snapshot        Snapshot
	Inputs          DeriveInputs
	Holdings        Holdings
	HoldingWarnings []error
	Realized        RealizedPnLResult
}

// Derive rebuilds holdings and realized gains from snap. It only depends on
// its arguments.
func Derive(snap Snapshot, in DeriveInputs) *DerivedState {
	holdings, warnings := Reconstruct(snap, in.Previous, ReconstructOptions{
		Reporting: in.Reporting,
		Method:    in.Method,
		Live:      in.Live,
	})
	return &DerivedState{
		Snapshot:        snap,
		Inputs:          in,
		Holdings:        holdings,
		HoldingWarnings: warnings,
		Realized:        Aggregate(snap, in.Manual, in.Reporting, in.Live),
	}
}

// SoldAssetSummaries analyzes the sold assets of class in s.
func (s *DerivedState) SoldAssetSummaries(class AssetClass, prices PriceSource) ([]SoldAssetSummary, []error) {
	return Analyze(s.Snapshot, class, s.Holdings, prices, s.Inputs.Reporting, s.Inputs.Live)
}

// digest identifies a snapshot and its inputs.
func digest(snap Snapshot, in DeriveInputs) (string, error) {
	version, err := snap.Version()
	if err != nil {
		return "", err
	}
	inputs, err := json.Marshal(struct {
		Reporting string
		Method    string
		Previous  []Holding
		Manual    map[AssetClass]Money
		Live      Rates
	}{in.Reporting, in.Method.String(), slices.Collect(in.Previous.All()), in.Manual, in.Live})
	if err != nil {
		return "", fmt.Errorf("could not hash derivation inputs: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(version))
	h.Write(inputs)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Engine derives holdings, realized gains and sold asset summaries from a
// ledger, and records new transactions with their historical rates pinned.
//
// Derivations are memoized by the content of the ledger and of the other
// inputs, any change triggers a full recomputation.
type Engine struct {
	cfg Config
	log logrus.FieldLogger

	mu      sync.Mutex
	memoKey string
	memo    *DerivedState
}

// NewEngine returns a new Engine.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Ledger == nil {
		return nil, errors.New("engine: a ledger is required")
	}
	if cfg.Converter == nil {
		return nil, errors.New("engine: a currency converter is required")
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Engine{cfg: cfg, log: log}, nil
}

// Reporting returns the reporting currency.
func (e *Engine) Reporting() string { return e.cfg.Converter.Reporting() }

// Converter returns the engine currency converter.
func (e *Engine) Converter() *CurrencyConverter { return e.cfg.Converter }

// Derive returns the state derived from the current ledger.
func (e *Engine) Derive(ctx context.Context) (*DerivedState, error) {
	snap, err := e.cfg.Ledger.Load()
	if err != nil {
		return nil, fmt.Errorf("could not load ledger: %w", err)
	}

	in := DeriveInputs{Reporting: e.Reporting(), Method: e.cfg.Method, Previous: make(Holdings)}
	if e.cfg.Holdings != nil {
		in.Previous = e.cfg.Holdings.PersistedHoldings()
	}
	if e.cfg.Adjustments != nil {
		in.Manual = e.cfg.Adjustments.ManualRealizedAdjustments()
	}
	live, err := e.cfg.Converter.LiveRates(ctx, e.liveCurrencies(snap, in.Manual))
	if err != nil {
		e.log.WithError(err).Warn("some live rates are unavailable")
	}
	in.Live = live

	key, err := digest(snap, in)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.memo != nil && e.memoKey == key {
		e.log.WithField("digest", key[:12]).Debug("reusing derived state")
		return e.memo, nil
	}
	e.log.WithFields(logrus.Fields{"digest": key[:12], "transactions": snap.Len()}).Debug("deriving state")
	e.memo, e.memoKey = Derive(snap, in), key
	return e.memo, nil
}

// liveCurrencies lists the foreign currencies needing a live rate: unpinned
// foreign transactions, manual adjustments and market prices.
func (e *Engine) liveCurrencies(snap Snapshot, manual map[AssetClass]Money) []string {
	set := make(map[string]bool)
	addMoney := func(m Money, ok bool) {
		if ok && m.Currency() != "" && m.Currency() != e.Reporting() {
			set[m.Currency()] = true
		}
	}
	for _, tx := range snap.Transactions() {
		if f, ok := ForeignOf(tx); ok && !f.HasRate() {
			addMoney(f.Price, true)
		}
	}
	for _, m := range manual {
		addMoney(m, true)
	}
	if e.cfg.Prices != nil {
		keys, _ := partitions(snap)
		for _, key := range keys {
			class, symbol := key.Split()
			addMoney(e.cfg.Prices.CurrentPrice(class, symbol))
			addMoney(e.cfg.Prices.LastKnownPriceForExited(class, symbol))
		}
	}
	return slices.Sorted(maps.Keys(set))
}

func (e *Engine) invalidate() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.memo, e.memoKey = nil, ""
}

// GetHoldings returns the current holdings and the warnings of their
// reconstruction.
func (e *Engine) GetHoldings(ctx context.Context) (Holdings, []error, error) {
	s, err := e.Derive(ctx)
	if err != nil {
		return nil, nil, err
	}
	return s.Holdings, s.HoldingWarnings, nil
}

// GetRealizedPnL returns the realized gains of the ledger.
func (e *Engine) GetRealizedPnL(ctx context.Context) (RealizedPnLResult, error) {
	s, err := e.Derive(ctx)
	if err != nil {
		return RealizedPnLResult{}, err
	}
	return s.Realized, nil
}

// GetSoldAssetSummaries returns one summary per sold asset of class.
func (e *Engine) GetSoldAssetSummaries(ctx context.Context, class AssetClass) ([]SoldAssetSummary, []error, error) {
	s, err := e.Derive(ctx)
	if err != nil {
		return nil, nil, err
	}
	summaries, warnings := s.SoldAssetSummaries(class, e.cfg.Prices)
	return summaries, warnings, nil
}

// pin resolves the historical rate of a foreign transaction without one.
// When only the live rate is available the transaction is returned unpinned
// with the warning, so that its value keeps being reported as approximate.
func (e *Engine) pin(ctx context.Context, tx Transaction) (Transaction, *MissingRateWarning, error) {
	f, ok := ForeignOf(tx)
	if !ok || f.HasRate() {
		return tx, nil, nil
	}
	quote, warn, err := e.cfg.Converter.ResolveHistorical(ctx, f.Currency(), tx.When())
	if err != nil {
		return nil, nil, fmt.Errorf("transaction %s: %w", tx.Which(), err)
	}
	if warn != nil {
		warn.TxID = tx.Which()
		return tx, warn, nil
	}
	return PinRate(tx, quote.Rate, e.Reporting()), nil, nil
}

// Append pins the historical rate of tx and appends it to the ledger. It
// returns the transaction as recorded.
func (e *Engine) Append(ctx context.Context, tx Transaction) (Transaction, *MissingRateWarning, error) {
	tx, warn, err := e.pin(ctx, tx)
	if err != nil {
		return nil, nil, err
	}
	if err := e.cfg.Ledger.Append(tx); err != nil {
		return nil, nil, err
	}
	e.invalidate()
	e.log.WithFields(logrus.Fields{"tx": tx.Which(), "command": tx.What()}).Info("transaction appended")
	return tx, warn, nil
}

// Replace pins the historical rate of tx and records it in place of the
// transaction id.
func (e *Engine) Replace(ctx context.Context, id string, tx Transaction) (Transaction, *MissingRateWarning, error) {
	tx, warn, err := e.pin(ctx, tx.withID(id))
	if err != nil {
		return nil, nil, err
	}
	if err := e.cfg.Ledger.Replace(id, tx); err != nil {
		return nil, nil, err
	}
	e.invalidate()
	e.log.WithFields(logrus.Fields{"tx": id, "command": tx.What()}).Info("transaction replaced")
	return tx, warn, nil
}

// Remove deletes the transaction id from the ledger.
func (e *Engine) Remove(id string) error {
	if err := e.cfg.Ledger.Remove(id); err != nil {
		return err
	}
	e.invalidate()
	e.log.WithField("tx", id).Info("transaction removed")
	return nil
}

// Repin resolves the historical rate of every foreign transaction still
// recorded without one. It returns the ids of the pinned transactions and
// the warnings for those still unpinned.
func (e *Engine) Repin(ctx context.Context) ([]string, []error, error) {
	snap, err := e.cfg.Ledger.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("could not load ledger: %w", err)
	}
	var pinned []string
	var warnings []error
	for _, tx := range snap.Transactions() {
		if f, ok := ForeignOf(tx); !ok || f.HasRate() {
			continue
		}
		updated, warn, err := e.pin(ctx, tx)
		if err != nil {
			warnings = append(warnings, err)
			continue
		}
		if warn != nil {
			warnings = append(warnings, warn)
			continue
		}
		if err := e.cfg.Ledger.Replace(tx.Which(), updated); err != nil {
			return pinned, warnings, err
		}
		pinned = append(pinned, tx.Which())
	}
	if len(pinned) > 0 {
		e.invalidate()
	}
	return pinned, warnings, nil
}
