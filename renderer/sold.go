package renderer

import (
	"github.com/jffcastro/assetflow"
)

type soldRow struct {
	Symbol, Sells, Quantity, AvgSell, AvgCost, Realized, Price, IfHeld, Delta string
}

type soldView struct {
	Class string
	Rows  []soldRow
}

// RenderSold renders sold asset summaries, comparing what was realized with
// what holding the assets would have yielded.
func RenderSold(class assetflow.AssetClass, summaries []assetflow.SoldAssetSummary) string {
	v := soldView{Class: class.String()}
	for _, s := range summaries {
		row := soldRow{
			Symbol:   s.Symbol,
			Sells:    s.Sells.String(),
			Quantity: s.SoldQuantity.String(),
			AvgSell:  s.AvgSellPrice.String(),
			AvgCost:  s.AvgCostBasis.String(),
			Realized: s.RealizedPnL.SignedString(),
			Price:    "n/a",
			IfHeld:   "n/a",
			Delta:    "n/a",
		}
		if !s.UnmatchedQuantity.IsZero() {
			row.Quantity += " (+" + s.UnmatchedQuantity.String() + " unmatched)"
		}
		if s.HasCounterfactual {
			row.Price = s.CurrentPrice.String()
			if s.PriceSource == assetflow.PriceLastKnown {
				row.Price += " (last known)"
			}
			row.IfHeld = s.CounterfactualIfHeldPnL.SignedString()
			row.Delta = s.Delta.SignedString()
		}
		v.Rows = append(v.Rows, row)
	}
	return renderTemplate("sold", "sold.md", nil, v)
}
