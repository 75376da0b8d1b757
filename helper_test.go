package assetflow

import (
	"errors"
	"testing"
	"time"

	"github.com/jffcastro/assetflow/date"
	"github.com/shopspring/decimal"
)

var errTest = errors.New("test error")

// EUR is a helper for test to create euro money from const
func EUR(v float64) Money { return M(v, "EUR") }

// USD is a helper for test to create usd money from const
func USD(v float64) Money { return M(v, "USD") }

// D is a helper for test to create a decimal from const
func D(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

// jan returns the given day of January 2024.
func jan(day int) date.Date { return date.New(2024, time.January, day) }

// withID overrides the generated id, to make expectations readable.
func withID[T Transaction](id string, tx T) Transaction { return tx.withID(id) }

// assertMoney checks that got equals want, ignoring the representation of
// the decimal.
func assertMoney(t *testing.T, name string, got, want Money) {
	t.Helper()
	if !got.Equal(want) {
		t.Errorf("%s = %s %s, want %s %s", name, got.Decimal(), got.Currency(), want.Decimal(), want.Currency())
	}
}

// assertRounded checks got equals want once rounded to 4 decimals.
func assertRounded(t *testing.T, name string, got Money, want string) {
	t.Helper()
	if s := got.Decimal().Round(4).String(); s != want {
		t.Errorf("%s = %s, want %s", name, s, want)
	}
}
