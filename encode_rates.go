package assetflow

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jffcastro/assetflow/date"
	"github.com/shopspring/decimal"
)

// DecodeRates reads historical rates in JSONL format into c. Each line is
// {"currency":"USD","date":"2024-01-01","rate":1.1}.
func DecodeRates(r io.Reader, c *RateCache) error {
	scanner := bufio.NewScanner(r)
	i := 0
	for scanner.Scan() {
		i++
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		var rec struct {
			Currency string          `json:"currency"`
			Date     date.Date       `json:"date"`
			Rate     decimal.Decimal `json:"rate"`
		}
		if err := json.Unmarshal(line, &rec); err != nil {
			return fmt.Errorf("format error on line %d: %w", i, err)
		}
		if err := ValidateCurrency(rec.Currency); err != nil {
			return fmt.Errorf("format error on line %d: %w", i, err)
		}
		if rec.Date.IsZero() || !rec.Rate.IsPositive() {
			return fmt.Errorf("format error on line %d: a date and a positive rate are required", i)
		}
		c.SetHistorical(rec.Currency, rec.Date, rec.Rate)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading from input: %w", err)
	}
	return nil
}

// EncodeRates writes the historical rates of c in JSONL format, by currency
// then by date. Live rates are not persisted.
func EncodeRates(w io.Writer, c *RateCache) error {
	var err error
	for _, cur := range c.currencies() {
		c.history(cur, func(on date.Date, rate decimal.Decimal) {
			if err != nil {
				return
			}
			var jw jsonObjectWriter
			jw.Append("currency", cur)
			jw.Append("date", on)
			jw.Append("rate", rate)
			var data []byte
			if data, err = jw.MarshalJSON(); err != nil {
				return
			}
			_, err = w.Write(append(data, '\n'))
		})
		if err != nil {
			return fmt.Errorf("failed to write rates: %w", err)
		}
	}
	return nil
}
