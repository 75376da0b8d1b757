package assetflow

import (
	"fmt"

	"github.com/jffcastro/assetflow/date"
)

// RealizedPnLResult is the realized profit and loss of a ledger, in the
// reporting currency.
type RealizedPnLResult struct {
	Reporting     string
	PerAssetClass map[AssetClass]Money
	// PerAssetKey holds the assets with at least one sell. An asset that
	// was never sold has no entry, even at zero.
	PerAssetKey map[AssetKey]Money
	Total       Money // Total is the sum of PerAssetClass.
	Warnings    []error
}

// Classes returns the asset classes of r in reporting order.
func (r RealizedPnLResult) Classes() []AssetClass { return sortedClasses(r.PerAssetClass) }

// Aggregate matches the sells of every asset of the ledger and sums the
// realized gains by asset class, adding manual adjustments converted at the
// live rate.
//
// Each asset is matched on its own: an asset that fails is reported as a
// PartitionError and left out of the totals, the others are unaffected.
func Aggregate(snap Snapshot, manual map[AssetClass]Money, reporting string, live Rates) RealizedPnLResult {
	result := RealizedPnLResult{
		Reporting:     reporting,
		PerAssetClass: make(map[AssetClass]Money),
		PerAssetKey:   make(map[AssetKey]Money),
		Total:         M(0, reporting),
		Warnings:      snap.Malformed(),
	}
	add := func(class AssetClass, m Money) {
		sum, ok := result.PerAssetClass[class]
		if !ok {
			sum = M(0, reporting)
		}
		result.PerAssetClass[class] = sum.Add(m)
	}

	keys, groups := partitions(snap)
	for _, key := range keys {
		match, err := matchPartition(key, groups[key], reporting, live, trade.skippable)
		if err != nil {
			result.Warnings = append(result.Warnings, &PartitionError{Key: key, Err: err})
			continue
		}
		result.Warnings = append(result.Warnings, match.Warnings...)
		if !match.Sold() {
			continue
		}
		class, _ := key.Split()
		result.PerAssetKey[key] = match.Realized
		add(class, match.Realized)
	}

	for _, class := range sortedClasses(manual) {
		amount := manual[class]
		rate, _ := live.Rate(amount.Currency())
		converted, err := ToReportingCurrency(amount, reporting, rate)
		if err != nil {
			result.Warnings = append(result.Warnings, &MissingRateWarning{
				Currency: amount.Currency(),
				On:       date.Today(),
				Err:      fmt.Errorf("manual %s adjustment left out: %w", class, err),
			})
			continue
		}
		add(class, converted)
	}

	for _, sum := range result.PerAssetClass {
		result.Total = result.Total.Add(sum)
	}
	return result
}

func sortedClasses[V any](m map[AssetClass]V) []AssetClass {
	var classes []AssetClass
	for _, c := range AssetClasses {
		if _, ok := m[c]; ok {
			classes = append(classes, c)
		}
	}
	for c := range m {
		if c.order() == len(AssetClasses) {
			classes = append(classes, c)
		}
	}
	return classes
}
