package assetflow

import (
	"cmp"
	"iter"
	"maps"
	"slices"
)

// Holding is a position derived from the ledger. It is valid only for the
// ledger it was reconstructed from.
type Holding struct {
	AssetClass AssetClass
	Symbol     string
	Quantity   Quantity
	Cost       Money // Cost is the total cost of the held quantity.
	Value      Money // Value is the last reported value, zero if never reported.
}

// Key returns the holding asset key.
func (h Holding) Key() AssetKey { return Key(h.AssetClass, h.Symbol) }

// WeightedAverageCost returns the cost of one held unit.
func (h Holding) WeightedAverageCost() Money {
	if !h.Quantity.IsPositive() {
		return M(0, h.Cost.Currency())
	}
	return h.Cost.Div(h.Quantity)
}

// Holdings are positions by asset class and symbol.
type Holdings map[AssetClass]map[string]Holding

// Get returns the holding of symbol in class.
func (h Holdings) Get(class AssetClass, symbol string) (Holding, bool) {
	hd, ok := h[class][symbol]
	return hd, ok
}

// Held reports whether symbol is currently held in class.
func (h Holdings) Held(class AssetClass, symbol string) bool {
	_, ok := h.Get(class, symbol)
	return ok
}

func (h Holdings) set(hd Holding) {
	m, ok := h[hd.AssetClass]
	if !ok {
		m = make(map[string]Holding)
		h[hd.AssetClass] = m
	}
	m[hd.Symbol] = hd
}

// All iterates over holdings by asset class, then by symbol.
func (h Holdings) All() iter.Seq[Holding] {
	return func(yield func(Holding) bool) {
		classes := slices.SortedFunc(maps.Keys(h), func(a, b AssetClass) int {
			return cmp.Compare(a.order(), b.order())
		})
		for _, class := range classes {
			for _, symbol := range slices.Sorted(maps.Keys(h[class])) {
				if !yield(h[class][symbol]) {
					return
				}
			}
		}
	}
}

// ReconstructOptions configure Reconstruct.
type ReconstructOptions struct {
	Reporting string          // Reporting is the reporting currency.
	Method    CostBasisMethod // Method is the cost basis of current holdings.
	Live      Rates           // Live rates, for foreign trades without a pinned rate.
}

// Reconstruct replays the whole ledger into current holdings. Nothing from
// a previous reconstruction is reused, except the positions of asset classes
// that are not lot tracked, copied from previous unchanged.
//
// With AverageCost, records are replayed in ledger order: buys add their
// quantity and cost, sells remove quantity and cost at the running average
// cost of the position. A sell larger than the position closes it, and the
// excess is reported as a DataIntegrityWarning. With FIFO, the cost of a
// position is the cost of the lots left by the FIFO matching, whose
// over-sells are reported by the realized pass.
//
// Every trade moving quantity is replayed, including free acquisitions and
// worthless disposals. Positions with a quantity of zero are left out. The
// returned errors are warnings: malformed records, missing rates, over-sells
// and asset keys whose replay failed, which are left out too.
func Reconstruct(snap Snapshot, previous Holdings, opts ReconstructOptions) (Holdings, []error) {
	warnings := snap.Malformed()
	state := make(map[AssetKey]*Holding)
	failed := make(map[AssetKey]bool)

	position := func(class AssetClass, symbol string) *Holding {
		key := Key(class, symbol)
		h, ok := state[key]
		if !ok {
			h = &Holding{AssetClass: class, Symbol: symbol, Cost: M(0, opts.Reporting)}
			state[key] = h
		}
		return h
	}
	fail := func(key AssetKey, err error) {
		if !failed[key] {
			warnings = append(warnings, &PartitionError{Key: key, Err: err})
		}
		failed[key] = true
	}

	for _, tx := range snap.Transactions() {
		switch v := tx.(type) {
		case Buy:
			if !v.AssetClass.LotTracked() || v.empty() || failed[v.Key()] {
				continue
			}
			cost, warn, err := v.reportingTotal(opts.Reporting, opts.Live)
			if err != nil {
				fail(v.Key(), err)
				continue
			}
			if warn != nil {
				warnings = append(warnings, warn)
			}
			h := position(v.AssetClass, v.Symbol)
			h.Quantity = h.Quantity.Add(v.Quantity)
			h.Cost = h.Cost.Add(cost)

		case Sell:
			if !v.AssetClass.LotTracked() || v.empty() || failed[v.Key()] {
				continue
			}
			h := position(v.AssetClass, v.Symbol)
			if v.Quantity.GreaterThan(h.Quantity) {
				// the position never goes short, the excess is unmatched.
				if opts.Method == AverageCost {
					warnings = append(warnings, &DataIntegrityWarning{Key: v.Key(), SellID: v.ID, Unmatched: v.Quantity.Sub(h.Quantity)})
				}
				h.Quantity = Q(0)
				h.Cost = M(0, opts.Reporting)
				continue
			}
			h.Cost = h.Cost.Sub(h.WeightedAverageCost().Mul(v.Quantity))
			h.Quantity = h.Quantity.Sub(v.Quantity)
			if h.Quantity.IsZero() {
				h.Cost = M(0, opts.Reporting)
			}

		case ValueUpdate:
			if !v.AssetClass.LotTracked() {
				continue
			}
			position(v.AssetClass, v.Symbol).Value = v.Value
		}
	}

	if opts.Method == FIFO {
		keys, groups := partitions(snap)
		for _, key := range keys {
			class, symbol := key.Split()
			if !class.LotTracked() || failed[key] {
				continue
			}
			result, err := matchPartition(key, groups[key], opts.Reporting, opts.Live, trade.empty)
			if err != nil {
				fail(key, err)
				continue
			}
			// rate and over-sell warnings are reported by the realized pass.
			h := position(class, symbol)
			h.Quantity = result.Lots.Quantity()
			h.Cost = result.Lots.Cost(opts.Reporting)
		}
	}

	holdings := make(Holdings)
	for key, h := range state {
		if failed[key] || !h.Quantity.IsPositive() {
			continue
		}
		holdings.set(*h)
	}
	for class, positions := range previous {
		if class.LotTracked() {
			continue
		}
		for _, h := range positions {
			holdings.set(h)
		}
	}
	return holdings, warnings
}
