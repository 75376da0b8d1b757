package assetflow

import (
	"testing"
)

func TestAnalyze(t *testing.T) {
	snap := NewSnapshot(
		NewBuy(jan(1), Equity, "AAPL", Q(10), EUR(100)),
		NewBuy(jan(2), Equity, "AAPL", Q(10), EUR(120)),
		NewSell(jan(3), Equity, "AAPL", Q(15), EUR(150)),

		NewBuy(jan(1), Equity, "MSFT", Q(10), EUR(200)),
		NewSell(jan(5), Equity, "MSFT", Q(6), EUR(280)),
		NewSell(jan(3), Equity, "MSFT", Q(4), EUR(250)),

		NewBuy(jan(1), Equity, "NVDA", Q(2), EUR(400)),
		NewSell(jan(4), Equity, "NVDA", Q(2), EUR(500)),

		NewBuy(jan(1), Equity, "TSLA", Q(2), EUR(400)),

		NewBuy(jan(1), Fund, "VWCE", Q(2), EUR(100)),
		NewSell(jan(4), Fund, "VWCE", Q(1), EUR(110)),
	)
	live := Rates{"USD": D(1.2)}
	holdings, _ := Reconstruct(snap, nil, ReconstructOptions{Reporting: "EUR", Live: live})

	market := NewMarket()
	market.SetCurrentPrice(Equity, "AAPL", USD(192))
	market.SetCurrentPrice(Equity, "TSLA", EUR(410))
	market.SetExitedPrice(Equity, "MSFT", EUR(300))
	// a held asset is never priced with an exited price.
	market.SetExitedPrice(Equity, "AAPL", EUR(1))

	got, warnings := Analyze(snap, Equity, holdings, market, "EUR", live)
	if len(warnings) != 0 {
		t.Errorf("Analyze() warnings = %v", warnings)
	}
	if len(got) != 3 {
		t.Fatalf("Analyze() = %d summaries, want AAPL MSFT NVDA", len(got))
	}

	t.Run("still held", func(t *testing.T) {
		s := got[0]
		if s.Symbol != "AAPL" || s.AssetClass != Equity {
			t.Fatalf("got[0] = %s %s, want equity AAPL", s.AssetClass, s.Symbol)
		}
		if !s.SoldQuantity.Equal(Q(15)) {
			t.Errorf("SoldQuantity = %s, want 15", s.SoldQuantity)
		}
		assertMoney(t, "Proceeds", s.Proceeds, EUR(2250))
		assertMoney(t, "CostBasis", s.CostBasis, EUR(1600))
		assertMoney(t, "AvgSellPrice", s.AvgSellPrice, EUR(150))
		assertRounded(t, "AvgCostBasis", s.AvgCostBasis, "106.6667")
		assertMoney(t, "RealizedPnL", s.RealizedPnL, EUR(650))
		assertMoney(t, "CurrentPrice", s.CurrentPrice, EUR(160))
		assertRounded(t, "CounterfactualIfHeldPnL", s.CounterfactualIfHeldPnL, "800")
		assertRounded(t, "Delta", s.Delta, "150")
		if !s.HasCounterfactual || s.PriceSource != PriceCurrent {
			t.Errorf("price = %v %q, want a current price", s.HasCounterfactual, s.PriceSource)
		}
		if s.Sells.String() != "2024-01-03" {
			t.Errorf("Sells = %s, want 2024-01-03", s.Sells)
		}
	})

	t.Run("fully exited", func(t *testing.T) {
		s := got[1]
		if s.Symbol != "MSFT" {
			t.Fatalf("got[1] = %s, want MSFT", s.Symbol)
		}
		assertMoney(t, "RealizedPnL", s.RealizedPnL, EUR(680))
		assertMoney(t, "AvgCostBasis", s.AvgCostBasis, EUR(200))
		assertMoney(t, "AvgSellPrice", s.AvgSellPrice, EUR(268))
		assertMoney(t, "CounterfactualIfHeldPnL", s.CounterfactualIfHeldPnL, EUR(1000))
		// keeping MSFT would have been better.
		assertMoney(t, "Delta", s.Delta, EUR(320))
		if s.PriceSource != PriceLastKnown {
			t.Errorf("PriceSource = %q, want %q", s.PriceSource, PriceLastKnown)
		}
		if s.Sells.String() != "2024-01-03..2024-01-05" {
			t.Errorf("Sells = %s, want 2024-01-03..2024-01-05", s.Sells)
		}
	})

	t.Run("no price", func(t *testing.T) {
		s := got[2]
		if s.Symbol != "NVDA" {
			t.Fatalf("got[2] = %s, want NVDA", s.Symbol)
		}
		assertMoney(t, "RealizedPnL", s.RealizedPnL, EUR(200))
		if s.HasCounterfactual || s.PriceSource != PriceNone {
			t.Errorf("price = %v %q, want none", s.HasCounterfactual, s.PriceSource)
		}
		assertMoney(t, "Delta", s.Delta, EUR(0))
	})
}

func TestAnalyze_Warnings(t *testing.T) {
	snap := NewSnapshot(
		NewSell(jan(3), Crypto, "ETH", Q(2), EUR(2000)),
		NewBuy(jan(1), Crypto, "ETH", Q(1), EUR(1500)),
		NewBuy(jan(1), Crypto, "BTC", Q(1), EUR(30000)),
		NewSell(jan(2), Crypto, "BTC", Q(1), EUR(35000)),
	)
	market := NewMarket()
	market.SetExitedPrice(Crypto, "ETH", EUR(2500))
	market.SetExitedPrice(Crypto, "BTC", M(60000, "CHF"))

	got, warnings := Analyze(snap, Crypto, nil, market, "EUR", nil)
	if len(got) != 2 {
		t.Fatalf("Analyze() = %v, want BTC and ETH", got)
	}

	btc, eth := got[0], got[1]
	if btc.HasCounterfactual {
		t.Errorf("BTC has a counterfactual without a CHF rate")
	}
	if w := FilterWarnings[*MissingRateWarning](warnings); len(w) != 1 || w[0].Currency != "CHF" {
		t.Errorf("MissingRateWarnings = %v, want one for CHF", w)
	}

	// only the matched unit counts.
	if !eth.SoldQuantity.Equal(Q(1)) || !eth.UnmatchedQuantity.Equal(Q(1)) {
		t.Errorf("ETH sold/unmatched = %s/%s, want 1/1", eth.SoldQuantity, eth.UnmatchedQuantity)
	}
	assertMoney(t, "ETH RealizedPnL", eth.RealizedPnL, EUR(500))
	assertMoney(t, "ETH CounterfactualIfHeldPnL", eth.CounterfactualIfHeldPnL, EUR(1000))
	if w := FilterWarnings[*DataIntegrityWarning](warnings); len(w) != 1 {
		t.Errorf("DataIntegrityWarnings = %v, want one", w)
	}
}

func TestAnalyze_NoPriceSource(t *testing.T) {
	snap := NewSnapshot(
		NewBuy(jan(1), Equity, "AAPL", Q(1), EUR(100)),
		NewSell(jan(2), Equity, "AAPL", Q(1), EUR(90)),
	)
	got, _ := Analyze(snap, Equity, nil, nil, "EUR", nil)
	if len(got) != 1 || got[0].HasCounterfactual {
		t.Errorf("Analyze() = %+v, want one summary without counterfactual", got)
	}
}
