package assetflow

import (
	"fmt"
	"slices"
	"strings"
)

// AssetClass groups instruments that are matched and reported together.
type AssetClass string

// Known asset classes.
const (
	Equity               AssetClass = "equity"
	Fund                 AssetClass = "fund"
	Crypto               AssetClass = "crypto"
	CollectiblePortfolio AssetClass = "collectible-portfolio"
)

// AssetClasses lists the known asset classes in reporting order.
var AssetClasses = []AssetClass{Equity, Fund, Crypto, CollectiblePortfolio}

func (c AssetClass) String() string { return string(c) }

// order returns the rank of c in AssetClasses, unknown classes last.
func (c AssetClass) order() int {
	if i := slices.Index(AssetClasses, c); i >= 0 {
		return i
	}
	return len(AssetClasses)
}

// LotTracked reports whether holdings of this class are rebuilt from the
// ledger. Collectible portfolios are valued manually and carried over from
// the last persisted holdings instead.
func (c AssetClass) LotTracked() bool { return c != CollectiblePortfolio }

// ParseAssetClass parses a string into an AssetClass.
func ParseAssetClass(s string) (AssetClass, error) {
	switch c := AssetClass(strings.ToLower(strings.TrimSpace(s))); c {
	case Equity, Fund, Crypto, CollectiblePortfolio:
		return c, nil
	default:
		return "", fmt.Errorf("unknown asset class: %q", s)
	}
}

// AssetKey identifies a symbol within an asset class, for collectible
// portfolios the symbol is the portfolio key.
type AssetKey string

// Key returns the AssetKey of symbol in class c.
func Key(c AssetClass, symbol string) AssetKey { return AssetKey(string(c) + ":" + symbol) }

// Split returns the asset class and symbol of k.
func (k AssetKey) Split() (AssetClass, string) {
	c, s, _ := strings.Cut(string(k), ":")
	return AssetClass(c), s
}
