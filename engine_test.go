package assetflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
)

func newTestEngine(t *testing.T, src RateSource, txs ...Transaction) (*Engine, *MemoryLedger, *Market) {
	t.Helper()
	log, _ := test.NewNullLogger()
	conv, err := NewCurrencyConverter("EUR", NewRateCache(time.Hour), src, log)
	if err != nil {
		t.Fatal(err)
	}
	ledger := NewMemoryLedger(txs...)
	market := NewMarket()
	e, err := NewEngine(Config{
		Ledger:      ledger,
		Converter:   conv,
		Prices:      market,
		Adjustments: market,
		Holdings:    market,
		Logger:      log,
	})
	if err != nil {
		t.Fatal(err)
	}
	return e, ledger, market
}

func TestEngine_Queries(t *testing.T) {
	e, _, market := newTestEngine(t, nil,
		NewBuy(jan(1), Equity, "AAPL", Q(10), EUR(100)),
		NewBuy(jan(2), Equity, "AAPL", Q(10), EUR(120)),
		NewSell(jan(3), Equity, "AAPL", Q(15), EUR(150)),
	)
	market.SetCurrentPrice(Equity, "AAPL", EUR(160))
	market.SetAdjustment(CollectiblePortfolio, EUR(50))
	market.SetHolding(Holding{AssetClass: CollectiblePortfolio, Symbol: "cards", Quantity: Q(1), Value: EUR(800)})
	ctx := context.Background()

	holdings, warnings, err := e.GetHoldings(ctx)
	if err != nil || len(warnings) != 0 {
		t.Fatalf("GetHoldings() = %v, %v", warnings, err)
	}
	if h, ok := holdings.Get(Equity, "AAPL"); !ok || !h.Quantity.Equal(Q(5)) {
		t.Errorf("AAPL = %+v, want 5 units", h)
	}
	if !holdings.Held(CollectiblePortfolio, "cards") {
		t.Errorf("persisted collectible holding is missing")
	}

	realized, err := e.GetRealizedPnL(ctx)
	if err != nil {
		t.Fatal(err)
	}
	assertMoney(t, "Total", realized.Total, EUR(700))

	summaries, _, err := e.GetSoldAssetSummaries(ctx, Equity)
	if err != nil {
		t.Fatal(err)
	}
	if len(summaries) != 1 || summaries[0].PriceSource != PriceCurrent {
		t.Errorf("GetSoldAssetSummaries() = %+v, want AAPL at its current price", summaries)
	}
}

func TestEngine_Memoization(t *testing.T) {
	e, ledger, _ := newTestEngine(t, nil, NewBuy(jan(1), Equity, "AAPL", Q(10), EUR(100)))
	ctx := context.Background()

	first, err := e.Derive(ctx)
	if err != nil {
		t.Fatal(err)
	}
	second, _ := e.Derive(ctx)
	if first != second {
		t.Errorf("Derive() recomputed an unchanged ledger")
	}

	if _, _, err := e.Append(ctx, NewSell(jan(2), Equity, "AAPL", Q(10), EUR(150))); err != nil {
		t.Fatal(err)
	}
	third, _ := e.Derive(ctx)
	if third == second {
		t.Fatalf("Derive() reused a state after Append()")
	}
	if third.Holdings.Held(Equity, "AAPL") {
		t.Errorf("sold out AAPL is still held")
	}

	// a change made behind the engine's back is seen too.
	if err := ledger.Append(NewBuy(jan(3), Fund, "VWCE", Q(1), EUR(100))); err != nil {
		t.Fatal(err)
	}
	fourth, _ := e.Derive(ctx)
	if !fourth.Holdings.Held(Fund, "VWCE") {
		t.Errorf("Derive() missed a direct ledger change")
	}
}

func TestEngine_AppendPinsRate(t *testing.T) {
	src := &fakeRates{
		live:       map[string]decimal.Decimal{"USD": D(1.25)},
		historical: map[string]decimal.Decimal{"USD@2024-01-01": D(1.1)},
	}
	e, ledger, _ := newTestEngine(t, src)
	ctx := context.Background()

	tx, warn, err := e.Append(ctx, NewForeignBuy(jan(1), Equity, "AAPL", Q(10), USD(110), D(0), "EUR"))
	if err != nil || warn != nil {
		t.Fatalf("Append() = %v, %v", warn, err)
	}
	buy := tx.(Buy)
	if !buy.Foreign.Rate.Equal(D(1.1)) {
		t.Errorf("pinned rate = %s, want 1.1", buy.Foreign.Rate)
	}
	assertMoney(t, "Total", buy.Total, EUR(1000))

	snap, _ := ledger.Load()
	if stored, _ := snap.Get(buy.ID); !stored.(Buy).Foreign.HasRate() {
		t.Errorf("the stored transaction has no pinned rate")
	}

	t.Run("fallback leaves the rate unpinned", func(t *testing.T) {
		tx, warn, err := e.Append(ctx, NewForeignSell(jan(2), Equity, "AAPL", Q(5), USD(150), D(0), "EUR"))
		if err != nil {
			t.Fatal(err)
		}
		if warn == nil || warn.TxID != tx.Which() || !warn.Fallback.Equal(D(1.25)) {
			t.Errorf("warning = %v, want a live fallback for %s", warn, tx.Which())
		}
		if tx.(Sell).Foreign.HasRate() {
			t.Errorf("a live rate was pinned")
		}

		realized, err := e.GetRealizedPnL(ctx)
		if err != nil {
			t.Fatal(err)
		}
		// 750 USD at 1.25 against half of 1000 EUR.
		assertMoney(t, "Total", realized.Total, EUR(100))
		if w := FilterWarnings[*MissingRateWarning](realized.Warnings); len(w) != 1 {
			t.Errorf("MissingRateWarnings = %v, want one", w)
		}
	})

	t.Run("repin", func(t *testing.T) {
		src.mu.Lock()
		src.historical["USD@2024-01-02"] = D(1.2)
		src.mu.Unlock()

		pinned, warnings, err := e.Repin(ctx)
		if err != nil || len(warnings) != 0 {
			t.Fatalf("Repin() = %v, %v", warnings, err)
		}
		if len(pinned) != 1 {
			t.Errorf("Repin() pinned %v, want one transaction", pinned)
		}
		realized, _ := e.GetRealizedPnL(ctx)
		assertMoney(t, "Total", realized.Total, EUR(125))
	})
}

func TestEngine_ReplaceAndRemove(t *testing.T) {
	e, _, _ := newTestEngine(t, nil,
		withID("b", NewBuy(jan(1), Equity, "AAPL", Q(10), EUR(100))),
		withID("s", NewSell(jan(2), Equity, "AAPL", Q(10), EUR(150))),
	)
	ctx := context.Background()

	if _, _, err := e.Replace(ctx, "s", NewSell(jan(2), Equity, "AAPL", Q(10), EUR(90))); err != nil {
		t.Fatal(err)
	}
	realized, _ := e.GetRealizedPnL(ctx)
	assertMoney(t, "Total after Replace()", realized.Total, EUR(-100))

	if err := e.Remove("s"); err != nil {
		t.Fatal(err)
	}
	realized, _ = e.GetRealizedPnL(ctx)
	if len(realized.PerAssetKey) != 0 {
		t.Errorf("PerAssetKey = %v after Remove(), want empty", realized.PerAssetKey)
	}

	if err := e.Remove("s"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Remove(s) error = %v, want ErrNotFound", err)
	}
}

func TestNewEngine_Requires(t *testing.T) {
	if _, err := NewEngine(Config{Ledger: NewMemoryLedger()}); err == nil {
		t.Errorf("NewEngine() without converter error = nil")
	}
	conv, _ := NewCurrencyConverter("EUR", nil, nil, nil)
	if _, err := NewEngine(Config{Converter: conv}); err == nil {
		t.Errorf("NewEngine() without ledger error = nil")
	}
}

func TestDerive_Pure(t *testing.T) {
	snap := NewSnapshot(
		NewBuy(jan(1), Equity, "AAPL", Q(10), EUR(100)),
		NewSell(jan(2), Equity, "AAPL", Q(4), EUR(150)),
	)
	in := DeriveInputs{Reporting: "EUR", Method: FIFO}
	a, b := Derive(snap, in), Derive(snap, in)
	if !a.Realized.Total.Equal(b.Realized.Total) {
		t.Errorf("Derive() differs between calls")
	}
	k1, err := digest(snap, in)
	if err != nil {
		t.Fatal(err)
	}
	in.Method = AverageCost
	k2, _ := digest(snap, in)
	if k1 == k2 {
		t.Errorf("digest() ignores the cost basis method")
	}
}
