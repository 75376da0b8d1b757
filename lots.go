package assetflow

import (
	"fmt"
	"slices"

	"github.com/jffcastro/assetflow/date"
)

// lot is the unconsumed part of a buy, used for cost basis calculations.
type lot struct {
	Date     date.Date
	Quantity Quantity
	Cost     Money  // Total cost of the remaining quantity, in the reporting currency.
	source   string // id of the buy
}

// lots is a FIFO queue of lots, oldest first.
type lots []lot

// Quantity returns the total quantity held in the lots.
func (l lots) Quantity() Quantity {
	var q Quantity
	for _, lt := range l {
		q = q.Add(lt.Quantity)
	}
	return q
}

// Cost returns the total cost of the lots.
func (l lots) Cost(currency string) Money {
	c := M(0, currency)
	for _, lt := range l {
		c = c.Add(lt.Cost)
	}
	return c
}

// sell consumes up to quantityToSell from the oldest lots. It returns the
// quantity actually consumed, its cost and the remaining lots. The receiver
// is not modified.
func (l lots) sell(quantityToSell Quantity, currency string) (matched Quantity, cost Money, remaining lots) {
	cost = M(0, currency)
	i := 0
	for ; i < len(l) && quantityToSell.IsPositive(); i++ {
		current := l[i]
		if !current.Quantity.GreaterThan(quantityToSell) {
			// Full sale of this lot
			matched = matched.Add(current.Quantity)
			cost = cost.Add(current.Cost)
			quantityToSell = quantityToSell.Sub(current.Quantity)
			continue
		}
		// Partial sale from this lot
		soldCost := current.Cost.Mul(quantityToSell).Div(current.Quantity)
		matched = matched.Add(quantityToSell)
		cost = cost.Add(soldCost)
		remaining = append(remaining, lot{
			Date:     current.Date,
			Quantity: current.Quantity.Sub(quantityToSell),
			Cost:     current.Cost.Sub(soldCost),
			source:   current.source,
		})
		quantityToSell = Quantity{}
		i++
		break
	}
	remaining = append(remaining, l[i:]...)
	return matched, cost, remaining
}

// SellMatch is the allocation of one sell against the buy lots.
type SellMatch struct {
	SellID    string
	Date      date.Date
	Quantity  Quantity // Quantity is the quantity sold.
	Matched   Quantity // Matched is the quantity covered by buy lots.
	Unmatched Quantity // Unmatched is the over-sold remainder.
	Proceeds  Money    // Proceeds of the matched quantity, in the reporting currency.
	Cost      Money    // Cost of the matched quantity, in the reporting currency.
	Realized  Money
}

// MatchResult is the outcome of matching one asset's sells against its buys.
type MatchResult struct {
	Key      AssetKey
	Sells    []SellMatch
	Lots     lots  // Lots remaining after every sell.
	Realized Money // Realized is the sum of the sells' realized gains.
	Warnings []error
}

// Sold reports whether at least one sell was matched or flagged.
func (r MatchResult) Sold() bool { return len(r.Sells) > 0 }

// skippable reports whether a trade carries no quantity or no price, and
// therefore cannot take part in matching.
func (t trade) skippable() bool {
	if t.empty() {
		return true
	}
	return t.Price.IsZero() && t.Total.IsZero() && t.Foreign.Price.IsZero()
}

// empty reports whether a trade moves no quantity at all. Unlike skippable
// trades, free acquisitions and worthless disposals are not empty.
func (t trade) empty() bool { return t.Quantity.IsZero() }

// MatchFIFO allocates the sells of txs to its buys, oldest buy first. Only
// the buys and sells of the asset key are considered, other records are
// ignored.
//
// Buys and sells are each sorted by date, records of the same day keep their
// ledger order. Cash flows are converted into the reporting currency with
// their pinned rate, or the live rate with a MissingRateWarning. Sold
// quantities not covered by any buy produce a DataIntegrityWarning.
//
// An error is returned when a cash flow cannot be converted at all.
func MatchFIFO(key AssetKey, txs []Transaction, reporting string, live Rates) (MatchResult, error) {
	return matchFIFO(key, txs, reporting, live, trade.skippable)
}

// matchFIFO is MatchFIFO, leaving out the trades for which skip is true.
func matchFIFO(key AssetKey, txs []Transaction, reporting string, live Rates, skip func(trade) bool) (MatchResult, error) {
	result := MatchResult{Key: key, Realized: M(0, reporting)}

	var buys, sells []trade
	for _, tx := range txs {
		var t trade
		switch v := tx.(type) {
		case Buy:
			t = v.trade
		case Sell:
			t = v.trade
		default:
			continue
		}
		if t.Key() != key || skip(t) {
			continue
		}
		if tx.What() == CmdBuy {
			buys = append(buys, t)
		} else {
			sells = append(sells, t)
		}
	}
	byDate := func(a, b trade) int { return a.Date.Compare(b.Date) }
	slices.SortStableFunc(buys, byDate)
	slices.SortStableFunc(sells, byDate)

	for _, b := range buys {
		cost, warn, err := b.reportingTotal(reporting, live)
		if err != nil {
			return MatchResult{}, err
		}
		if warn != nil {
			result.Warnings = append(result.Warnings, warn)
		}
		result.Lots = append(result.Lots, lot{Date: b.Date, Quantity: b.Quantity, Cost: cost, source: b.ID})
	}

	for _, s := range sells {
		proceeds, warn, err := s.reportingTotal(reporting, live)
		if err != nil {
			return MatchResult{}, err
		}
		if warn != nil {
			result.Warnings = append(result.Warnings, warn)
		}

		var m SellMatch
		m.SellID, m.Date, m.Quantity = s.ID, s.Date, s.Quantity
		m.Matched, m.Cost, result.Lots = result.Lots.sell(s.Quantity, reporting)
		m.Unmatched = s.Quantity.Sub(m.Matched)

		if m.Unmatched.IsZero() {
			m.Proceeds = proceeds
		} else {
			// only the matched part is realized.
			m.Proceeds = proceeds.Mul(m.Matched).Div(s.Quantity)
			result.Warnings = append(result.Warnings, &DataIntegrityWarning{Key: key, SellID: s.ID, Unmatched: m.Unmatched})
		}
		m.Realized = m.Proceeds.Sub(m.Cost)
		result.Realized = result.Realized.Add(m.Realized)
		result.Sells = append(result.Sells, m)
	}
	return result, nil
}

// partitions groups the valid buys and sells of a snapshot by asset key, in
// order of first appearance. Malformed records are left out.
func partitions(snap Snapshot) ([]AssetKey, map[AssetKey][]Transaction) {
	var keys []AssetKey
	groups := make(map[AssetKey][]Transaction)
	for _, tx := range snap.Transactions() {
		var key AssetKey
		switch v := tx.(type) {
		case Buy:
			key = v.Key()
		case Sell:
			key = v.Key()
		default:
			continue
		}
		if _, ok := groups[key]; !ok {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], tx)
	}
	return keys, groups
}

// matchPartition runs the FIFO matching, turning a panic into an error so
// that one partition cannot abort the others.
func matchPartition(key AssetKey, txs []Transaction, reporting string, live Rates, skip func(trade) bool) (result MatchResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("matching failed: %v", r)
		}
	}()
	return matchFIFO(key, txs, reporting, live, skip)
}
