package assetflow

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"time"

	"github.com/jffcastro/assetflow/date"
	"github.com/shopspring/decimal"
)

func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

// txRecord is the flat wire form of every transaction. Pointer fields tell a
// missing field from a zero one.
type txRecord struct {
	ID               string           `json:"id"`
	Command          CommandType      `json:"command"`
	Date             *date.Date       `json:"date"`
	Recorded         time.Time        `json:"recorded"`
	Memo             string           `json:"memo"`
	AssetClass       AssetClass       `json:"assetClass"`
	Symbol           string           `json:"symbol"`
	Quantity         *Quantity        `json:"quantity"`
	Price            *decimal.Decimal `json:"price"`
	Total            *decimal.Decimal `json:"total"`
	Currency         string           `json:"currency"`
	OriginalPrice    *decimal.Decimal `json:"originalPrice"`
	OriginalCurrency string           `json:"originalCurrency"`
	HistoricalRate   decimal.Decimal  `json:"historicalRate"`
}

func (r txRecord) base() baseCmd {
	b := baseCmd{ID: r.ID, Command: r.Command, Recorded: r.Recorded, Memo: r.Memo}
	if r.Date != nil {
		b.Date = *r.Date
	}
	return b
}

func (r txRecord) sec() secCmd {
	return secCmd{baseCmd: r.base(), AssetClass: r.AssetClass, Symbol: r.Symbol}
}

func (r txRecord) foreign() Foreign {
	if r.OriginalPrice == nil && r.OriginalCurrency == "" {
		return Foreign{}
	}
	var p decimal.Decimal
	if r.OriginalPrice != nil {
		p = *r.OriginalPrice
	}
	return Foreign{Price: M(p, r.OriginalCurrency), Rate: r.HistoricalRate}
}

// trade builds the trade fields, deriving the missing one of price or total.
func (r txRecord) trade() (trade, error) {
	if r.Quantity == nil {
		return trade{}, errors.New("quantity is missing")
	}
	t := trade{secCmd: r.sec(), Quantity: *r.Quantity, Foreign: r.foreign()}
	switch {
	case r.Price != nil && r.Total != nil:
		t.Price, t.Total = M(*r.Price, r.Currency), M(*r.Total, r.Currency)
	case r.Price != nil:
		t = t.priced(M(*r.Price, r.Currency))
	case r.Total != nil:
		t = t.totaled(M(*r.Total, r.Currency))
	case !t.Foreign.IsZero() && r.OriginalPrice != nil:
		t.Price, t.Total = M(0, r.Currency), M(0, r.Currency)
	default:
		return trade{}, errors.New("neither price nor total is set")
	}
	if r.Currency != "" {
		t = t.recompute(r.Currency)
	}
	return t, nil
}

func (r txRecord) cash() (cashCmd, error) {
	c := cashCmd{baseCmd: r.base(), Foreign: r.foreign()}
	switch {
	case r.Total != nil:
		c.Amount = M(*r.Total, r.Currency)
	case !c.Foreign.IsZero() && r.OriginalPrice != nil:
		c.Amount = M(0, r.Currency)
	default:
		return cashCmd{}, errors.New("total is missing")
	}
	if r.Currency != "" {
		c = c.recompute(r.Currency)
	}
	return c, nil
}

// decodeTransaction decodes one ledger line. Records that cannot be read as
// a valid transaction are returned as Malformed, never as an error.
func decodeTransaction(line []byte, lineNo int) Transaction {
	raw := json.RawMessage(bytes.Clone(line))
	malformed := func(b baseCmd, reason error) Transaction {
		if b.ID == "" {
			b.ID = fmt.Sprintf("line-%d", lineNo)
		}
		return Malformed{baseCmd: b, Raw: raw, Reason: reason}
	}

	var r txRecord
	if err := json.Unmarshal(line, &r); err != nil {
		return malformed(baseCmd{}, fmt.Errorf("invalid JSON: %w", err))
	}
	if r.Date == nil || r.Date.IsZero() {
		return malformed(r.base(), errors.New("date is missing"))
	}

	var tx Transaction
	switch r.Command {
	case CmdBuy, CmdSell:
		t, err := r.trade()
		if err != nil {
			return malformed(r.base(), err)
		}
		if r.Command == CmdBuy {
			tx = Buy{t}
		} else {
			tx = Sell{t}
		}
	case CmdValueUpdate:
		if r.Total == nil {
			return malformed(r.base(), errors.New("total is missing"))
		}
		tx = ValueUpdate{secCmd: r.sec(), Value: M(*r.Total, r.Currency)}
	case CmdDeposit, CmdWithdrawal:
		c, err := r.cash()
		if err != nil {
			return malformed(r.base(), err)
		}
		if r.Command == CmdDeposit {
			tx = Deposit{c}
		} else {
			tx = Withdrawal{c}
		}
	default:
		return malformed(r.base(), fmt.Errorf("unknown transaction command: %q", r.Command))
	}

	if err := tx.Validate(); err != nil {
		return malformed(r.base(), err)
	}
	return tx
}

// DecodeLedger decodes transactions from a stream of JSONL data, in ledger
// order. Broken records are kept as Malformed transactions. Only read errors
// are returned.
func DecodeLedger(r io.Reader) ([]Transaction, error) {
	var txs []Transaction
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue // Skip empty lines
		}
		txs = append(txs, decodeTransaction(line, lineNo))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading from input: %w", err)
	}
	return txs, nil
}

// EncodeTransaction marshals a single transaction to JSON and writes it to the
// writer, followed by a newline, in JSONL format.
// Malformed records are written back as they were read.
func EncodeTransaction(w io.Writer, tx Transaction) error {
	var data []byte
	if m, ok := tx.(Malformed); ok {
		data = m.Raw
	} else {
		var err error
		if data, err = json.Marshal(tx); err != nil {
			return fmt.Errorf("failed to marshal transaction %s: %w", tx.Which(), err)
		}
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write transaction: %w", err)
	}
	return nil
}

// EncodeLedger writes transactions in JSONL format, in the given order.
func EncodeLedger(w io.Writer, txs iter.Seq2[int, Transaction]) error {
	for _, tx := range txs {
		if err := EncodeTransaction(w, tx); err != nil {
			return err
		}
	}
	return nil
}
