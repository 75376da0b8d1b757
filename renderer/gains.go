package renderer

import (
	"cmp"
	"maps"
	"slices"

	"github.com/jffcastro/assetflow"
)

type gainRow struct {
	Name, Amount string
}

type gainsView struct {
	Reporting string
	Classes   []gainRow
	Assets    []gainRow
	Total     string
}

// RenderRealized renders realized gains by asset class, then by asset.
func RenderRealized(r assetflow.RealizedPnLResult) string {
	v := gainsView{Reporting: r.Reporting, Total: r.Total.SignedString()}
	for _, class := range r.Classes() {
		v.Classes = append(v.Classes, gainRow{class.String(), r.PerAssetClass[class].SignedString()})
	}
	keys := slices.SortedFunc(maps.Keys(r.PerAssetKey), func(a, b assetflow.AssetKey) int { return cmp.Compare(a, b) })
	for _, key := range keys {
		v.Assets = append(v.Assets, gainRow{string(key), r.PerAssetKey[key].SignedString()})
	}
	partials := map[string]string{"gains_assets": "gains_assets.md"}
	return renderTemplate("gains", "gains.md", partials, v)
}
