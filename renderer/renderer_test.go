package renderer

import (
	"strings"
	"testing"

	"github.com/jffcastro/assetflow"
	"github.com/jffcastro/assetflow/date"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// tableRows parses markdown and returns the number of body rows of each table.
func tableRows(t *testing.T, md string) []int {
	t.Helper()
	parser := goldmark.New(goldmark.WithExtensions(extension.GFM)).Parser()
	doc := parser.Parse(text.NewReader([]byte(md)))

	var rows []int
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || n.Kind() != east.KindTable {
			return ast.WalkContinue, nil
		}
		count := 0
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			if c.Kind() == east.KindTableRow {
				count++
			}
		}
		rows = append(rows, count)
		return ast.WalkSkipChildren, nil
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	return rows
}

func TestRenderHoldings(t *testing.T) {
	h := assetflow.Holdings{
		assetflow.Equity: {
			"AAPL": {AssetClass: assetflow.Equity, Symbol: "AAPL", Quantity: assetflow.Q(5), Cost: assetflow.M(550, "EUR")},
			"MSFT": {AssetClass: assetflow.Equity, Symbol: "MSFT", Quantity: assetflow.Q(2), Cost: assetflow.M(600, "EUR")},
		},
		assetflow.Crypto: {
			"BTC": {AssetClass: assetflow.Crypto, Symbol: "BTC", Quantity: assetflow.Q(1), Cost: assetflow.M(30000, "EUR")},
		},
	}
	md := RenderHoldings(h, "EUR")

	if got := tableRows(t, md); len(got) != 1 || got[0] != 3 {
		t.Errorf("RenderHoldings() tables rows = %v, want [3]\n%s", got, md)
	}
	// equity comes before crypto, symbols are sorted.
	aapl, msft, btc := strings.Index(md, "AAPL"), strings.Index(md, "MSFT"), strings.Index(md, "BTC")
	if !(aapl < msft && msft < btc) {
		t.Errorf("RenderHoldings() wrong row order:\n%s", md)
	}
	if !strings.Contains(md, "110.00") {
		t.Errorf("RenderHoldings() missing the average cost of AAPL:\n%s", md)
	}
}

func TestRenderHoldingsEmpty(t *testing.T) {
	md := RenderHoldings(assetflow.Holdings{}, "EUR")
	if got := tableRows(t, md); len(got) != 0 {
		t.Errorf("RenderHoldings() tables = %v, want none", got)
	}
	if !strings.Contains(md, "No holdings.") {
		t.Errorf("RenderHoldings() = %q, want a no holdings message", md)
	}
}

func TestRenderRealized(t *testing.T) {
	r := assetflow.RealizedPnLResult{
		Reporting: "EUR",
		PerAssetClass: map[assetflow.AssetClass]assetflow.Money{
			assetflow.Equity:               assetflow.M(650, "EUR"),
			assetflow.CollectiblePortfolio: assetflow.M(-20, "EUR"),
		},
		PerAssetKey: map[assetflow.AssetKey]assetflow.Money{
			assetflow.Key(assetflow.Equity, "AAPL"): assetflow.M(650, "EUR"),
		},
		Total: assetflow.M(630, "EUR"),
	}
	md := RenderRealized(r)

	got := tableRows(t, md)
	if len(got) != 2 || got[0] != 3 || got[1] != 1 {
		t.Errorf("RenderRealized() tables rows = %v, want [3 1]\n%s", got, md)
	}
	for _, want := range []string{"equity", "collectible-portfolio", "equity:AAPL", "650.00", "630.00"} {
		if !strings.Contains(md, want) {
			t.Errorf("RenderRealized() missing %q:\n%s", want, md)
		}
	}
}

func TestRenderSold(t *testing.T) {
	summaries := []assetflow.SoldAssetSummary{
		{
			Symbol:                  "AAPL",
			SoldQuantity:            assetflow.Q(15),
			AvgSellPrice:            assetflow.M(150, "EUR"),
			AvgCostBasis:            assetflow.M(106.67, "EUR"),
			RealizedPnL:             assetflow.M(650, "EUR"),
			CurrentPrice:            assetflow.M(200, "EUR"),
			CounterfactualIfHeldPnL: assetflow.M(1400, "EUR"),
			Delta:                   assetflow.M(750, "EUR"),
			HasCounterfactual:       true,
			PriceSource:             assetflow.PriceLastKnown,
			Sells:                   date.Range{}.Extend(date.New(2024, 3, 1)).Extend(date.New(2024, 4, 1)),
		},
		{
			Symbol:            "GHOST",
			UnmatchedQuantity: assetflow.Q(5),
			RealizedPnL:       assetflow.M(0, "EUR"),
			Sells:             date.Range{}.Extend(date.New(2024, 5, 1)),
		},
	}
	md := RenderSold(assetflow.Equity, summaries)

	if got := tableRows(t, md); len(got) != 1 || got[0] != 2 {
		t.Errorf("RenderSold() tables rows = %v, want [2]\n%s", got, md)
	}
	for _, want := range []string{"2024-03-01..2024-04-01", "(last known)", "+5 unmatched", "n/a"} {
		if !strings.Contains(md, want) {
			t.Errorf("RenderSold() missing %q:\n%s", want, md)
		}
	}
}

func TestRenderWarnings(t *testing.T) {
	if got := RenderWarnings(nil); got != "" {
		t.Errorf("RenderWarnings(nil) = %q, want empty", got)
	}
	md := RenderWarnings([]error{
		&assetflow.DataIntegrityWarning{Key: assetflow.Key(assetflow.Equity, "X"), SellID: "s1", Unmatched: assetflow.Q(5)},
		&assetflow.MalformedTransaction{ID: "line-3", Reason: errString("quantity is missing")},
	})
	for _, want := range []string{"### Over-sold assets", "### Malformed transactions", "line-3"} {
		if !strings.Contains(md, want) {
			t.Errorf("RenderWarnings() missing %q:\n%s", want, md)
		}
	}
	if strings.Contains(md, "### Other") {
		t.Errorf("RenderWarnings() unexpected other section:\n%s", md)
	}
}

type errString string

func (e errString) Error() string { return string(e) }
