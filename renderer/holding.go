package renderer

import (
	"github.com/jffcastro/assetflow"
)

type holdingRow struct {
	Class, Symbol, Quantity, AverageCost, Cost, Value string
}

type holdingsView struct {
	Reporting string
	Rows      []holdingRow
	TotalCost string
}

// RenderHoldings renders the current holdings as a markdown table.
func RenderHoldings(h assetflow.Holdings, reporting string) string {
	v := holdingsView{Reporting: reporting}
	total := assetflow.M(0, reporting)
	for hd := range h.All() {
		row := holdingRow{
			Class:       hd.AssetClass.String(),
			Symbol:      hd.Symbol,
			Quantity:    hd.Quantity.String(),
			AverageCost: hd.WeightedAverageCost().String(),
			Cost:        hd.Cost.String(),
		}
		if !hd.Value.IsZero() {
			row.Value = hd.Value.String()
		}
		total = total.Add(hd.Cost)
		v.Rows = append(v.Rows, row)
	}
	v.TotalCost = total.String()
	return renderTemplate("holdings", "holdings.md", nil, v)
}
