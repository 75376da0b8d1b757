package assetflow

import (
	"errors"
	"testing"
)

func TestLots_Sell(t *testing.T) {
	l := lots{
		{Date: jan(1), Quantity: Q(10), Cost: EUR(1000), source: "b1"},
		{Date: jan(2), Quantity: Q(10), Cost: EUR(1200), source: "b2"},
	}

	matched, cost, remaining := l.sell(Q(15), "EUR")
	if !matched.Equal(Q(15)) {
		t.Errorf("matched = %s, want 15", matched)
	}
	assertMoney(t, "cost", cost, EUR(1600))
	if len(remaining) != 1 || remaining[0].source != "b2" {
		t.Fatalf("remaining = %v, want a single b2 lot", remaining)
	}
	if !remaining[0].Quantity.Equal(Q(5)) {
		t.Errorf("remaining quantity = %s, want 5", remaining[0].Quantity)
	}
	assertMoney(t, "remaining cost", remaining[0].Cost, EUR(600))

	// the receiver is left untouched.
	if !l.Quantity().Equal(Q(20)) {
		t.Errorf("l.Quantity() = %s after sell, want 20", l.Quantity())
	}

	matched, cost, remaining = l.sell(Q(25), "EUR")
	if !matched.Equal(Q(20)) {
		t.Errorf("over-sell matched = %s, want 20", matched)
	}
	assertMoney(t, "over-sell cost", cost, EUR(2200))
	if len(remaining) != 0 {
		t.Errorf("over-sell remaining = %v, want none", remaining)
	}
}

func TestMatchFIFO(t *testing.T) {
	aapl := Key(Equity, "AAPL")

	tests := []struct {
		name      string
		txs       []Transaction
		live      Rates
		realized  string // rounded to 4 decimals
		sells     int
		remaining Quantity
		cost      string
		warnings  int
	}{
		{
			name: "two lots partially consumed",
			txs: []Transaction{
				NewBuy(jan(1), Equity, "AAPL", Q(10), EUR(100)),
				NewBuy(jan(2), Equity, "AAPL", Q(10), EUR(120)),
				NewSell(jan(3), Equity, "AAPL", Q(15), EUR(150)),
			},
			realized:  "650",
			sells:     1,
			remaining: Q(5),
			cost:      "600",
		},
		{
			name: "foreign trades use their own pinned rate",
			txs: []Transaction{
				NewForeignBuy(jan(1), Equity, "AAPL", Q(10), USD(100), D(1.10), "EUR"),
				NewForeignSell(jan(20), Equity, "AAPL", Q(10), USD(130), D(1.08), "EUR"),
			},
			realized:  "294.6128",
			sells:     1,
			remaining: Q(0),
			cost:      "0",
		},
		{
			name: "sell without buys",
			txs: []Transaction{
				NewSell(jan(3), Equity, "AAPL", Q(5), EUR(150)),
			},
			realized:  "0",
			sells:     1,
			remaining: Q(0),
			cost:      "0",
			warnings:  1,
		},
		{
			name: "buys only",
			txs: []Transaction{
				NewBuy(jan(1), Equity, "AAPL", Q(10), EUR(100)),
			},
			realized:  "0",
			remaining: Q(10),
			cost:      "1000",
		},
		{
			name: "buy order follows dates not ledger order",
			txs: []Transaction{
				NewBuy(jan(2), Equity, "AAPL", Q(10), EUR(120)),
				NewBuy(jan(1), Equity, "AAPL", Q(10), EUR(100)),
				NewSell(jan(3), Equity, "AAPL", Q(10), EUR(150)),
			},
			realized:  "500",
			sells:     1,
			remaining: Q(10),
			cost:      "1200",
		},
		{
			name: "sell dated before a surviving buy",
			txs: []Transaction{
				NewBuy(jan(1), Equity, "AAPL", Q(5), EUR(100)),
				NewSell(jan(2), Equity, "AAPL", Q(5), EUR(110)),
				NewBuy(jan(3), Equity, "AAPL", Q(5), EUR(90)),
				NewSell(jan(2), Equity, "AAPL", Q(5), EUR(110)),
			},
			realized:  "150",
			sells:     2,
			remaining: Q(0),
			cost:      "0",
		},
		{
			name: "zero quantity and zero price are skipped",
			txs: []Transaction{
				NewBuy(jan(1), Equity, "AAPL", Q(0), EUR(100)),
				NewBuy(jan(1), Equity, "AAPL", Q(10), EUR(0)),
				NewBuy(jan(1), Equity, "AAPL", Q(10), EUR(100)),
				NewSell(jan(2), Equity, "AAPL", Q(0), EUR(150)),
				NewSell(jan(2), Equity, "AAPL", Q(5), EUR(0)),
				NewSell(jan(2), Equity, "AAPL", Q(5), EUR(150)),
			},
			realized:  "250",
			sells:     1,
			remaining: Q(5),
			cost:      "500",
		},
		{
			name: "unpinned foreign trade uses the live rate",
			txs: []Transaction{
				NewBuy(jan(1), Equity, "AAPL", Q(10), EUR(100)),
				NewForeignSell(jan(2), Equity, "AAPL", Q(10), USD(150), D(0), "EUR"),
			},
			live:      Rates{"USD": D(1.25)},
			realized:  "200",
			sells:     1,
			remaining: Q(0),
			cost:      "0",
			warnings:  1,
		},
		{
			name: "other assets are ignored",
			txs: []Transaction{
				NewBuy(jan(1), Equity, "MSFT", Q(10), EUR(100)),
				NewBuy(jan(1), Fund, "AAPL", Q(10), EUR(100)),
				NewDeposit(jan(1), EUR(1000)),
				NewSell(jan(2), Equity, "MSFT", Q(10), EUR(150)),
			},
			realized:  "0",
			remaining: Q(0),
			cost:      "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MatchFIFO(aapl, tt.txs, "EUR", tt.live)
			if err != nil {
				t.Fatalf("MatchFIFO() error = %v", err)
			}
			assertRounded(t, "Realized", got.Realized, tt.realized)
			if len(got.Sells) != tt.sells {
				t.Errorf("len(Sells) = %d, want %d", len(got.Sells), tt.sells)
			}
			if q := got.Lots.Quantity(); !q.Equal(tt.remaining) {
				t.Errorf("remaining quantity = %s, want %s", q, tt.remaining)
			}
			assertRounded(t, "remaining cost", got.Lots.Cost("EUR"), tt.cost)
			if len(got.Warnings) != tt.warnings {
				t.Errorf("Warnings = %v, want %d", got.Warnings, tt.warnings)
			}
		})
	}
}

func TestMatchFIFO_OverSell(t *testing.T) {
	key := Key(Equity, "AAPL")
	txs := []Transaction{
		NewBuy(jan(1), Equity, "AAPL", Q(5), EUR(100)),
		withID("s1", NewSell(jan(2), Equity, "AAPL", Q(8), EUR(150))),
	}

	got, err := MatchFIFO(key, txs, "EUR", nil)
	if err != nil {
		t.Fatalf("MatchFIFO() error = %v", err)
	}
	m := got.Sells[0]
	if !m.Matched.Equal(Q(5)) || !m.Unmatched.Equal(Q(3)) {
		t.Errorf("matched/unmatched = %s/%s, want 5/3", m.Matched, m.Unmatched)
	}
	// the unmatched part brings no proceeds.
	assertMoney(t, "Proceeds", m.Proceeds, EUR(750))
	assertMoney(t, "Realized", got.Realized, EUR(250))

	warnings := FilterWarnings[*DataIntegrityWarning](got.Warnings)
	if len(warnings) != 1 {
		t.Fatalf("DataIntegrityWarnings = %v, want 1", got.Warnings)
	}
	if w := warnings[0]; w.Key != key || w.SellID != "s1" || !w.Unmatched.Equal(Q(3)) {
		t.Errorf("warning = %+v, want %s s1 3", w, key)
	}
}

func TestMatchFIFO_EqualDateSellsCommute(t *testing.T) {
	key := Key(Crypto, "BTC")
	b1 := NewBuy(jan(1), Crypto, "BTC", Q(1), EUR(20000))
	b2 := NewBuy(jan(2), Crypto, "BTC", Q(2), EUR(30000))
	s1 := NewSell(jan(5), Crypto, "BTC", Q(1.5), EUR(40000))
	s2 := NewSell(jan(5), Crypto, "BTC", Q(0.5), EUR(35000))

	a, err := MatchFIFO(key, []Transaction{b1, b2, s1, s2}, "EUR", nil)
	if err != nil {
		t.Fatal(err)
	}
	b, err := MatchFIFO(key, []Transaction{s2, b2, s1, b1}, "EUR", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !a.Realized.Equal(b.Realized) {
		t.Errorf("realized depends on the order of same day sells: %s != %s", a.Realized.Decimal(), b.Realized.Decimal())
	}
	// 1.5*40000 + 0.5*35000 - (20000 + 30000)
	assertMoney(t, "Realized", a.Realized, EUR(27500))
}

func TestMatchFIFO_Conservation(t *testing.T) {
	key := Key(Fund, "VWCE")
	txs := []Transaction{
		NewBuy(jan(1), Fund, "VWCE", Q(3), EUR(101.37)),
		NewBuy(jan(2), Fund, "VWCE", Q(7), EUR(99.11)),
		NewForeignBuy(jan(3), Fund, "VWCE", Q(4), USD(110.03), D(1.0931), "EUR"),
		NewSell(jan(4), Fund, "VWCE", Q(2.5), EUR(103.29)),
		NewForeignSell(jan(5), Fund, "VWCE", Q(6), USD(112.7), D(1.0874), "EUR"),
		NewSell(jan(6), Fund, "VWCE", Q(5.5), EUR(97.05)),
	}

	got, err := MatchFIFO(key, txs, "EUR", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Lots.Quantity().IsZero() {
		t.Fatalf("remaining = %s, want everything sold", got.Lots.Quantity())
	}

	proceeds, cost := EUR(0), EUR(0)
	for _, tx := range txs {
		switch v := tx.(type) {
		case Buy:
			c, _, _ := v.reportingTotal("EUR", nil)
			cost = cost.Add(c)
		case Sell:
			p, _, _ := v.reportingTotal("EUR", nil)
			proceeds = proceeds.Add(p)
		}
	}
	want := proceeds.Sub(cost)
	if diff := got.Realized.Sub(want).Decimal().Abs(); diff.GreaterThan(D(1e-9)) {
		t.Errorf("Realized = %s, want %s (diff %s)", got.Realized.Decimal(), want.Decimal(), diff)
	}
}

func TestMatchFIFO_Errors(t *testing.T) {
	key := Key(Equity, "AAPL")
	tests := []struct {
		name string
		txs  []Transaction
	}{
		{
			name: "foreign trade without any rate",
			txs:  []Transaction{NewForeignBuy(jan(1), Equity, "AAPL", Q(1), USD(100), D(0), "EUR")},
		},
		{
			name: "total in another currency",
			txs:  []Transaction{NewBuy(jan(1), Equity, "AAPL", Q(1), USD(100))},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := MatchFIFO(key, tt.txs, "EUR", nil); err == nil {
				t.Error("MatchFIFO() error = nil, want an error")
			}
		})
	}
}

func TestMatchPartition(t *testing.T) {
	key := Key(Equity, "AAPL")
	b := NewBuy(jan(1), Equity, "AAPL", Q(1), EUR(100))
	s := NewSell(jan(2), Equity, "AAPL", Q(1), USD(150))

	_, err := matchPartition(key, []Transaction{b, s}, "EUR", nil, trade.skippable)
	if err == nil {
		t.Fatal("matchPartition() error = nil, want an error")
	}
	var pe *PartitionError
	if errors.As(err, &pe) {
		t.Errorf("matchPartition() returned a PartitionError, wrapping is left to callers")
	}
}
