package assetflow

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/jffcastro/assetflow/date"
)

// PriceSource looks up market prices.
type PriceSource interface {
	// CurrentPrice returns the live price of a held asset.
	CurrentPrice(class AssetClass, symbol string) (Money, bool)
	// LastKnownPriceForExited returns the last price recorded for an asset
	// that is no longer held.
	LastKnownPriceForExited(class AssetClass, symbol string) (Money, bool)
}

// PriceOrigin tells which price lookup served a counterfactual.
type PriceOrigin string

const (
	PriceNone      PriceOrigin = ""
	PriceCurrent   PriceOrigin = "current"
	PriceLastKnown PriceOrigin = "last-known"
)

// SoldAssetSummary compares what selling an asset realized with what
// keeping it until now would have yielded. All amounts are in the reporting
// currency.
type SoldAssetSummary struct {
	AssetClass        AssetClass
	Symbol            string
	SoldQuantity      Quantity // SoldQuantity is the quantity matched against buys.
	UnmatchedQuantity Quantity // UnmatchedQuantity is the over-sold quantity, left out of every amount.
	AvgSellPrice      Money
	AvgCostBasis      Money // AvgCostBasis is the FIFO cost of one sold unit.
	Proceeds          Money
	CostBasis         Money
	RealizedPnL       Money
	CurrentPrice      Money
	// CounterfactualIfHeldPnL is the gain the sold quantity would show at
	// the current price.
	CounterfactualIfHeldPnL Money
	// Delta is CounterfactualIfHeldPnL minus RealizedPnL, positive when
	// selling was the wrong call.
	Delta             Money
	HasCounterfactual bool // HasCounterfactual is false when no price is known.
	PriceSource       PriceOrigin
	Sells             date.Range // Sells spans the sell dates.
}

// Analyze summarizes every asset of class with at least one sell, one row
// per asset, sorted by symbol.
//
// Held assets are priced with CurrentPrice, fully exited ones with
// LastKnownPriceForExited. Prices in another currency are converted at the
// live rate.
func Analyze(snap Snapshot, class AssetClass, holdings Holdings, prices PriceSource, reporting string, live Rates) ([]SoldAssetSummary, []error) {
	var summaries []SoldAssetSummary
	warnings := snap.Malformed()

	keys, groups := partitions(snap)
	for _, key := range keys {
		c, symbol := key.Split()
		if c != class {
			continue
		}
		match, err := matchPartition(key, groups[key], reporting, live, trade.skippable)
		if err != nil {
			warnings = append(warnings, &PartitionError{Key: key, Err: err})
			continue
		}
		warnings = append(warnings, match.Warnings...)
		if !match.Sold() {
			continue
		}

		s := summarize(match, reporting)
		s.AssetClass, s.Symbol = class, symbol

		price, origin := lookupPrice(prices, holdings, class, symbol)
		if origin != PriceNone {
			rate, _ := live.Rate(price.Currency())
			converted, err := ToReportingCurrency(price, reporting, rate)
			if err != nil {
				warnings = append(warnings, &MissingRateWarning{
					Currency: price.Currency(),
					On:       date.Today(),
					Err:      fmt.Errorf("price of %s not converted: %w", key, err),
				})
				origin = PriceNone
			} else {
				s.CurrentPrice = converted
			}
		}
		if origin != PriceNone {
			s.PriceSource = origin
			s.HasCounterfactual = true
			s.CounterfactualIfHeldPnL = s.CurrentPrice.Sub(s.AvgCostBasis).Mul(s.SoldQuantity)
			s.Delta = s.CounterfactualIfHeldPnL.Sub(s.RealizedPnL)
		}
		summaries = append(summaries, s)
	}

	slices.SortFunc(summaries, func(a, b SoldAssetSummary) int { return cmp.Compare(a.Symbol, b.Symbol) })
	return summaries, warnings
}

// summarize folds the sells of one asset into a summary.
func summarize(match MatchResult, reporting string) SoldAssetSummary {
	zero := M(0, reporting)
	s := SoldAssetSummary{
		AvgSellPrice: zero, AvgCostBasis: zero,
		Proceeds: zero, CostBasis: zero, RealizedPnL: zero,
		CurrentPrice: zero, CounterfactualIfHeldPnL: zero, Delta: zero,
	}
	for _, m := range match.Sells {
		s.SoldQuantity = s.SoldQuantity.Add(m.Matched)
		s.UnmatchedQuantity = s.UnmatchedQuantity.Add(m.Unmatched)
		s.Proceeds = s.Proceeds.Add(m.Proceeds)
		s.CostBasis = s.CostBasis.Add(m.Cost)
		s.Sells = s.Sells.Extend(m.Date)
	}
	s.RealizedPnL = match.Realized
	if s.SoldQuantity.IsPositive() {
		s.AvgSellPrice = s.Proceeds.Div(s.SoldQuantity)
		s.AvgCostBasis = s.CostBasis.Div(s.SoldQuantity)
	}
	return s
}

func lookupPrice(prices PriceSource, holdings Holdings, class AssetClass, symbol string) (Money, PriceOrigin) {
	if prices == nil {
		return Money{}, PriceNone
	}
	if holdings.Held(class, symbol) {
		if p, ok := prices.CurrentPrice(class, symbol); ok {
			return p, PriceCurrent
		}
		return Money{}, PriceNone
	}
	if p, ok := prices.LastKnownPriceForExited(class, symbol); ok {
		return p, PriceLastKnown
	}
	return Money{}, PriceNone
}
