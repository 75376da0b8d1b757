package assetflow

import (
	"errors"
	"fmt"

	"github.com/jffcastro/assetflow/date"
	"github.com/shopspring/decimal"
)

// DataIntegrityWarning reports sold units that no buy lot could cover. The
// matched part of the sell is still reported, the remainder is not.
type DataIntegrityWarning struct {
	Key       AssetKey
	SellID    string
	Unmatched Quantity
}

func (w *DataIntegrityWarning) Error() string {
	return fmt.Sprintf("%s: sell %s exceeds matchable buys by %s units", w.Key, w.SellID, w.Unmatched)
}

// MissingRateWarning reports a foreign cash flow converted without a rate
// pinned to its date. Fallback is the live rate used instead, its
// contribution is approximate.
type MissingRateWarning struct {
	TxID     string
	Currency string
	On       date.Date
	Fallback decimal.Decimal
	Err      error // why the historical rate could not be obtained, if known.
}

func (w *MissingRateWarning) Error() string {
	msg := fmt.Sprintf("no %s rate for %s", w.Currency, w.On)
	if w.TxID != "" {
		msg = fmt.Sprintf("transaction %s: %s", w.TxID, msg)
	}
	if !w.Fallback.IsZero() {
		msg += fmt.Sprintf(", approximated with live rate %s", w.Fallback)
	}
	if w.Err != nil {
		msg += ": " + w.Err.Error()
	}
	return msg
}

func (w *MissingRateWarning) Unwrap() error { return w.Err }

// MalformedTransaction reports a ledger record excluded from every pass.
type MalformedTransaction struct {
	ID     string
	Reason error
}

func (m *MalformedTransaction) Error() string {
	return fmt.Sprintf("malformed transaction %q: %v", m.ID, m.Reason)
}

func (m *MalformedTransaction) Unwrap() error { return m.Reason }

// PartitionError reports a symbol whose matching failed. Its contribution is
// missing from the totals, other symbols are unaffected.
type PartitionError struct {
	Key AssetKey
	Err error
}

func (p *PartitionError) Error() string { return fmt.Sprintf("%s: %v", p.Key, p.Err) }

func (p *PartitionError) Unwrap() error { return p.Err }

// FilterWarnings returns the warnings of type T found in errs.
func FilterWarnings[T error](errs []error) []T {
	var found []T
	for _, err := range errs {
		var w T
		if errors.As(err, &w) {
			found = append(found, w)
		}
	}
	return found
}
