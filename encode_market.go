package assetflow

import (
	"bufio"
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
)

// The market file is a JSONL file, one fact per line, identified by its
// "kind": "price", "exited", "adjustment" or "holding".
const (
	kindPrice      = "price"
	kindExited     = "exited"
	kindAdjustment = "adjustment"
	kindHolding    = "holding"
)

type marketRecord struct {
	Kind       string           `json:"kind"`
	AssetClass AssetClass       `json:"assetClass"`
	Symbol     string           `json:"symbol"`
	Amount     *decimal.Decimal `json:"amount"`
	Currency   string           `json:"currency"`
	Quantity   Quantity         `json:"quantity"`
	Cost       decimal.Decimal  `json:"cost"`
	Value      decimal.Decimal  `json:"value"`
}

// DecodeMarket reads a market file.
func DecodeMarket(r io.Reader) (*Market, error) {
	m := NewMarket()
	scanner := bufio.NewScanner(r)
	i := 0
	for scanner.Scan() {
		i++
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		var rec marketRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("format error on line %d: %w", i, err)
		}
		if _, err := ParseAssetClass(string(rec.AssetClass)); err != nil {
			return nil, fmt.Errorf("format error on line %d: %w", i, err)
		}
		if err := ValidateCurrency(rec.Currency); err != nil {
			return nil, fmt.Errorf("format error on line %d: %w", i, err)
		}
		switch rec.Kind {
		case kindPrice, kindExited, kindAdjustment:
			if rec.Amount == nil {
				return nil, fmt.Errorf("format error on line %d: missing amount", i)
			}
			amount := M(*rec.Amount, rec.Currency)
			switch rec.Kind {
			case kindPrice:
				m.SetCurrentPrice(rec.AssetClass, rec.Symbol, amount)
			case kindExited:
				m.SetExitedPrice(rec.AssetClass, rec.Symbol, amount)
			default:
				m.SetAdjustment(rec.AssetClass, amount)
			}
		case kindHolding:
			if rec.AssetClass.LotTracked() {
				return nil, fmt.Errorf("format error on line %d: %s holdings are rebuilt from the ledger", i, rec.AssetClass)
			}
			m.SetHolding(Holding{
				AssetClass: rec.AssetClass,
				Symbol:     rec.Symbol,
				Quantity:   rec.Quantity,
				Cost:       M(rec.Cost, rec.Currency),
				Value:      M(rec.Value, rec.Currency),
			})
		default:
			return nil, fmt.Errorf("format error on line %d: unknown kind %q", i, rec.Kind)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading from input: %w", err)
	}
	return m, nil
}

// EncodeMarket writes m as JSONL, in a stable order.
func EncodeMarket(w io.Writer, m *Market) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var errs error
	writeLine := func(jw *jsonObjectWriter) {
		data, err := jw.MarshalJSON()
		if err != nil {
			errs = errors.Join(errs, err)
			return
		}
		if _, err := w.Write(append(data, '\n')); err != nil {
			errs = errors.Join(errs, err)
		}
	}
	price := func(kind string, key AssetKey, p Money) *jsonObjectWriter {
		class, symbol := key.Split()
		var jw jsonObjectWriter
		jw.Append("kind", kind)
		jw.Append("assetClass", class)
		jw.Append("symbol", symbol)
		jw.Append("amount", p.Decimal())
		jw.Append("currency", p.Currency())
		return &jw
	}

	for _, key := range slices.Sorted(maps.Keys(m.current)) {
		writeLine(price(kindPrice, key, m.current[key]))
	}
	for _, key := range slices.Sorted(maps.Keys(m.exited)) {
		writeLine(price(kindExited, key, m.exited[key]))
	}
	for _, class := range sortedClasses(m.adjustments) {
		var jw jsonObjectWriter
		jw.Append("kind", kindAdjustment)
		jw.Append("assetClass", class)
		jw.Append("amount", m.adjustments[class].Decimal())
		jw.Append("currency", m.adjustments[class].Currency())
		writeLine(&jw)
	}
	for h := range m.holdings.All() {
		var jw jsonObjectWriter
		jw.Append("kind", kindHolding)
		jw.Append("assetClass", h.AssetClass)
		jw.Append("symbol", h.Symbol)
		jw.Append("quantity", h.Quantity)
		jw.Optional("cost", h.Cost.Decimal())
		jw.Optional("value", h.Value.Decimal())
		jw.Append("currency", cmp.Or(h.Value.Currency(), h.Cost.Currency()))
		writeLine(&jw)
	}
	return errs
}
