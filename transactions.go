package assetflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jffcastro/assetflow/date"
	"github.com/shopspring/decimal"
)

// CommandType is a typed string for identifying transaction commands.
type CommandType string

// Command types used for identifying transactions.
const (
	CmdBuy         CommandType = "buy"
	CmdSell        CommandType = "sell"
	CmdValueUpdate CommandType = "value_update"
	CmdDeposit     CommandType = "deposit"
	CmdWithdrawal  CommandType = "withdrawal"
)

// Transaction is one immutable ledger record.
//
// It is implemented by Buy, Sell, ValueUpdate, Deposit, Withdrawal and
// Malformed only.
type Transaction interface {
	What() CommandType // What returns the command type of the transaction (e.g., "buy", "sell").
	When() date.Date   // When returns the date of economic effect.
	Which() string     // Which returns the transaction id.
	Validate() error
	withID(id string) Transaction
}

type baseCmd struct {
	ID       string      // ID is an opaque unique identifier.
	Command  CommandType // Command specifies the type of transaction.
	Date     date.Date   // Date is the date of economic effect.
	Recorded time.Time   // Recorded is the record creation time.
	Memo     string      // Memo is an optional note.
}

func newBase(cmd CommandType, on date.Date) baseCmd {
	return baseCmd{ID: uuid.NewString(), Command: cmd, Date: on, Recorded: time.Now().UTC()}
}

func (t baseCmd) What() CommandType { return t.Command }
func (t baseCmd) When() date.Date   { return t.Date }
func (t baseCmd) Which() string     { return t.ID }

func (t baseCmd) MarshalJSON() ([]byte, error) {
	var w jsonObjectWriter
	w.Append("id", t.ID)
	w.Append("command", t.Command)
	w.Append("date", t.Date)
	w.Optional("recorded", t.Recorded)
	w.Optional("memo", t.Memo)
	return w.MarshalJSON()
}

func (t baseCmd) validate() error {
	var errs error
	if t.ID == "" {
		errs = errors.Join(errs, errors.New("id is missing"))
	}
	if t.Date.IsZero() {
		errs = errors.Join(errs, errors.New("date is missing"))
	}
	return errs
}

// secCmd is a component for instrument transactions.
type secCmd struct {
	baseCmd
	AssetClass AssetClass
	Symbol     string // Symbol of the instrument, or the portfolio key of a collectible portfolio.
}

// Key returns the asset key of the instrument.
func (t secCmd) Key() AssetKey { return Key(t.AssetClass, t.Symbol) }

func (t secCmd) MarshalJSON() ([]byte, error) {
	var w jsonObjectWriter
	w.EmbedFrom(t.baseCmd)
	w.Append("assetClass", t.AssetClass)
	w.Append("symbol", t.Symbol)
	return w.MarshalJSON()
}

func (t secCmd) validate() error {
	errs := t.baseCmd.validate()
	if _, err := ParseAssetClass(string(t.AssetClass)); err != nil {
		errs = errors.Join(errs, err)
	}
	if t.Symbol == "" {
		errs = errors.Join(errs, errors.New("symbol is missing"))
	}
	return errs
}

// Foreign preserves the as-entered foreign currency price of a record and
// the rate pinned at its date, so that the reporting currency values can be
// recomputed at any time.
type Foreign struct {
	Price Money           // Price is the original unit price (the original amount for cash flows).
	Rate  decimal.Decimal // Rate is in foreign units per reporting unit, zero if not pinned yet.
}

// IsZero reports whether the record was entered in the reporting currency.
func (f Foreign) IsZero() bool { return f.Price.Currency() == "" && f.Price.IsZero() }

// HasRate reports whether a historical rate is pinned.
func (f Foreign) HasRate() bool { return f.Rate.IsPositive() }

// Currency returns the original currency.
func (f Foreign) Currency() string { return f.Price.Currency() }

func (f Foreign) validate() error {
	if f.IsZero() {
		return nil
	}
	var errs error
	if err := ValidateCurrency(f.Currency()); err != nil {
		errs = errors.Join(errs, fmt.Errorf("original currency: %w", err))
	}
	if f.Price.IsNegative() {
		errs = errors.Join(errs, fmt.Errorf("original price must not be negative, got %s", f.Price.Decimal()))
	}
	if f.Rate.IsNegative() {
		errs = errors.Join(errs, fmt.Errorf("historical rate must not be negative, got %s", f.Rate))
	}
	return errs
}

// trade holds the fields shared by buys and sells.
type trade struct {
	secCmd
	Quantity Quantity // Quantity is the number of units, 1 for non-quantity assets.
	Price    Money    // Price is the unit price in the reporting currency.
	Total    Money    // Total is the cash flow in the reporting currency.
	Foreign  Foreign  // Foreign is set when the trade was entered in a foreign currency.
}

func newTrade(cmd CommandType, on date.Date, class AssetClass, symbol string, quantity Quantity) trade {
	return trade{
		secCmd:   secCmd{baseCmd: newBase(cmd, on), AssetClass: class, Symbol: symbol},
		Quantity: quantity,
	}
}

// priced derives the total from the unit price.
func (t trade) priced(price Money) trade {
	t.Price, t.Total = price, price.Mul(t.Quantity)
	return t
}

// totaled derives the unit price from the total.
func (t trade) totaled(total Money) trade {
	t.Total, t.Price = total, M(0, total.Currency())
	if !t.Quantity.IsZero() {
		t.Price = total.Div(t.Quantity)
	}
	return t
}

// foreign sets the original price and derives the reporting values when a
// rate is known.
func (t trade) foreign(price Money, rate decimal.Decimal, reporting string) trade {
	t.Foreign = Foreign{Price: price, Rate: rate}
	return t.recompute(reporting)
}

// recompute derives Price and Total from the original price and the pinned
// rate. It is a no-op for reporting currency trades or when no rate is pinned.
func (t trade) recompute(reporting string) trade {
	if t.Foreign.IsZero() || !t.Foreign.HasRate() {
		return t
	}
	t.Price = t.Foreign.Price.in(reporting, t.Foreign.Rate)
	t.Total = t.Foreign.Price.Mul(t.Quantity).in(reporting, t.Foreign.Rate)
	return t
}

func (t trade) MarshalJSON() ([]byte, error) {
	var w jsonObjectWriter
	w.EmbedFrom(t.secCmd)
	w.Append("quantity", t.Quantity)
	w.Append("price", t.Price.Decimal())
	w.Append("total", t.Total.Decimal())
	w.Optional("currency", t.Total.Currency())
	if !t.Foreign.IsZero() {
		w.Append("originalPrice", t.Foreign.Price.Decimal())
		w.Append("originalCurrency", t.Foreign.Currency())
		w.Optional("historicalRate", t.Foreign.Rate)
	}
	return w.MarshalJSON()
}

func (t trade) validate() error {
	errs := t.secCmd.validate()
	if t.Quantity.IsNegative() {
		errs = errors.Join(errs, fmt.Errorf("quantity must not be negative, got %s", t.Quantity))
	}
	if t.Price.IsNegative() || t.Total.IsNegative() {
		errs = errors.Join(errs, fmt.Errorf("price and total must not be negative, got %s and %s", t.Price.Decimal(), t.Total.Decimal()))
	}
	if t.Foreign.IsZero() && t.Total.Currency() != "" {
		if err := ValidateCurrency(t.Total.Currency()); err != nil {
			errs = errors.Join(errs, err)
		}
	}
	return errors.Join(errs, t.Foreign.validate())
}

// reportingTotal returns the trade cash flow in the reporting currency.
//
// Foreign trades are always converted from their original price with the
// pinned rate. Without a pinned rate the live rate is used and a
// MissingRateWarning is returned along with the approximate value.
func (t trade) reportingTotal(reporting string, live Rates) (Money, *MissingRateWarning, error) {
	if t.Foreign.IsZero() {
		total := t.Total
		if total.IsZero() {
			total = t.Price.Mul(t.Quantity)
		}
		if c := total.Currency(); c != "" && c != reporting {
			return Money{}, nil, fmt.Errorf("transaction %s: recorded in %s without original price, reporting currency is %s", t.ID, c, reporting)
		}
		return M(total.Decimal(), reporting), nil, nil
	}
	original := t.Foreign.Price.Mul(t.Quantity)
	if t.Foreign.HasRate() {
		total, err := ToReportingCurrency(original, reporting, t.Foreign.Rate)
		return total, nil, err
	}
	warn := &MissingRateWarning{TxID: t.ID, Currency: t.Foreign.Currency(), On: t.Date}
	if rate, ok := live.Rate(t.Foreign.Currency()); ok {
		warn.Fallback = rate
		total, err := ToReportingCurrency(original, reporting, rate)
		return total, warn, err
	}
	if !t.Total.IsZero() {
		// last converted value is the best we have.
		return t.Total, warn, nil
	}
	return Money{}, nil, fmt.Errorf("transaction %s: no %s rate available to convert %s", t.ID, t.Foreign.Currency(), original.Decimal())
}

// Buy represents a transaction where a quantity of an asset is purchased.
type Buy struct{ trade }

// NewBuy creates a new Buy transaction from a reporting currency unit price.
func NewBuy(on date.Date, class AssetClass, symbol string, quantity Quantity, price Money) Buy {
	return Buy{newTrade(CmdBuy, on, class, symbol, quantity).priced(price)}
}

// NewBuyTotal creates a new Buy transaction from a reporting currency total.
func NewBuyTotal(on date.Date, class AssetClass, symbol string, quantity Quantity, total Money) Buy {
	return Buy{newTrade(CmdBuy, on, class, symbol, quantity).totaled(total)}
}

// NewForeignBuy creates a new Buy transaction entered in a foreign currency.
// A zero rate leaves the reporting values unset until a rate is pinned.
func NewForeignBuy(on date.Date, class AssetClass, symbol string, quantity Quantity, price Money, rate decimal.Decimal, reporting string) Buy {
	t := newTrade(CmdBuy, on, class, symbol, quantity)
	t.Price, t.Total = M(0, reporting), M(0, reporting)
	return Buy{t.foreign(price, rate, reporting)}
}

func (t Buy) Validate() error { return t.trade.validate() }

func (t Buy) withID(id string) Transaction { t.ID = id; return t }

// Sell represents a transaction where a quantity of an asset is sold.
type Sell struct{ trade }

// NewSell creates a new Sell transaction from a reporting currency unit price.
func NewSell(on date.Date, class AssetClass, symbol string, quantity Quantity, price Money) Sell {
	return Sell{newTrade(CmdSell, on, class, symbol, quantity).priced(price)}
}

// NewSellTotal creates a new Sell transaction from a reporting currency total.
func NewSellTotal(on date.Date, class AssetClass, symbol string, quantity Quantity, total Money) Sell {
	return Sell{newTrade(CmdSell, on, class, symbol, quantity).totaled(total)}
}

// NewForeignSell creates a new Sell transaction entered in a foreign currency.
func NewForeignSell(on date.Date, class AssetClass, symbol string, quantity Quantity, price Money, rate decimal.Decimal, reporting string) Sell {
	t := newTrade(CmdSell, on, class, symbol, quantity)
	t.Price, t.Total = M(0, reporting), M(0, reporting)
	return Sell{t.foreign(price, rate, reporting)}
}

func (t Sell) Validate() error { return t.trade.validate() }

func (t Sell) withID(id string) Transaction { t.ID = id; return t }

// ValueUpdate reconciles the value of a position that is not lot tracked.
type ValueUpdate struct {
	secCmd
	Value Money // Value is the position value in the reporting currency.
}

// NewValueUpdate creates a new ValueUpdate transaction.
func NewValueUpdate(on date.Date, class AssetClass, symbol string, value Money) ValueUpdate {
	return ValueUpdate{
		secCmd: secCmd{baseCmd: newBase(CmdValueUpdate, on), AssetClass: class, Symbol: symbol},
		Value:  value,
	}
}

func (t ValueUpdate) MarshalJSON() ([]byte, error) {
	var w jsonObjectWriter
	w.EmbedFrom(t.secCmd)
	w.Append("total", t.Value.Decimal())
	w.Optional("currency", t.Value.Currency())
	return w.MarshalJSON()
}

func (t ValueUpdate) Validate() error {
	errs := t.secCmd.validate()
	if t.Value.IsNegative() {
		errs = errors.Join(errs, fmt.Errorf("value must not be negative, got %s", t.Value.Decimal()))
	}
	return errs
}

func (t ValueUpdate) withID(id string) Transaction { t.ID = id; return t }

// cashCmd holds the fields shared by deposits and withdrawals.
type cashCmd struct {
	baseCmd
	Amount  Money   // Amount is in the reporting currency.
	Foreign Foreign // Foreign is set when the amount was entered in a foreign currency.
}

func (t cashCmd) MarshalJSON() ([]byte, error) {
	var w jsonObjectWriter
	w.EmbedFrom(t.baseCmd)
	w.Append("total", t.Amount.Decimal())
	w.Optional("currency", t.Amount.Currency())
	if !t.Foreign.IsZero() {
		w.Append("originalPrice", t.Foreign.Price.Decimal())
		w.Append("originalCurrency", t.Foreign.Currency())
		w.Optional("historicalRate", t.Foreign.Rate)
	}
	return w.MarshalJSON()
}

func (t cashCmd) validate() error {
	errs := t.baseCmd.validate()
	if t.Amount.IsNegative() {
		errs = errors.Join(errs, fmt.Errorf("amount must not be negative, got %s", t.Amount.Decimal()))
	}
	return errors.Join(errs, t.Foreign.validate())
}

func (t cashCmd) recompute(reporting string) cashCmd {
	if t.Foreign.IsZero() || !t.Foreign.HasRate() {
		return t
	}
	t.Amount = t.Foreign.Price.in(reporting, t.Foreign.Rate)
	return t
}

func newForeignCash(cmd CommandType, on date.Date, amount Money, rate decimal.Decimal, reporting string) cashCmd {
	c := cashCmd{baseCmd: newBase(cmd, on), Amount: M(0, reporting), Foreign: Foreign{Price: amount, Rate: rate}}
	return c.recompute(reporting)
}

// Deposit is cash entering the portfolio.
type Deposit struct{ cashCmd }

// NewDeposit creates a new Deposit of a reporting currency amount.
func NewDeposit(on date.Date, amount Money) Deposit {
	return Deposit{cashCmd{baseCmd: newBase(CmdDeposit, on), Amount: amount}}
}

// NewForeignDeposit creates a new Deposit entered in a foreign currency.
func NewForeignDeposit(on date.Date, amount Money, rate decimal.Decimal, reporting string) Deposit {
	return Deposit{newForeignCash(CmdDeposit, on, amount, rate, reporting)}
}

func (t Deposit) Validate() error { return t.cashCmd.validate() }

func (t Deposit) withID(id string) Transaction { t.ID = id; return t }

// Withdrawal is cash leaving the portfolio.
type Withdrawal struct{ cashCmd }

// NewWithdrawal creates a new Withdrawal of a reporting currency amount.
func NewWithdrawal(on date.Date, amount Money) Withdrawal {
	return Withdrawal{cashCmd{baseCmd: newBase(CmdWithdrawal, on), Amount: amount}}
}

// NewForeignWithdrawal creates a new Withdrawal entered in a foreign currency.
func NewForeignWithdrawal(on date.Date, amount Money, rate decimal.Decimal, reporting string) Withdrawal {
	return Withdrawal{newForeignCash(CmdWithdrawal, on, amount, rate, reporting)}
}

func (t Withdrawal) Validate() error { return t.cashCmd.validate() }

func (t Withdrawal) withID(id string) Transaction { t.ID = id; return t }

// Malformed is a ledger record that could not be read as a valid
// transaction. It keeps its place and id in the ledger so that it can be
// replaced, but every derivation pass skips it.
type Malformed struct {
	baseCmd
	Raw    json.RawMessage
	Reason error
}

func (t Malformed) Validate() error { return t.Reason }

func (t Malformed) MarshalJSON() ([]byte, error) { return t.Raw, nil }

func (t Malformed) withID(id string) Transaction { t.ID = id; return t }

// PinRate returns tx with its historical rate set to rate and its reporting
// currency values recomputed. Transactions entered in the reporting currency
// are returned unchanged.
func PinRate(tx Transaction, rate decimal.Decimal, reporting string) Transaction {
	switch v := tx.(type) {
	case Buy:
		if !v.Foreign.IsZero() {
			v.Foreign.Rate = rate
			v.trade = v.recompute(reporting)
		}
		return v
	case Sell:
		if !v.Foreign.IsZero() {
			v.Foreign.Rate = rate
			v.trade = v.recompute(reporting)
		}
		return v
	case Deposit:
		if !v.Foreign.IsZero() {
			v.Foreign.Rate = rate
			v.cashCmd = v.recompute(reporting)
		}
		return v
	case Withdrawal:
		if !v.Foreign.IsZero() {
			v.Foreign.Rate = rate
			v.cashCmd = v.recompute(reporting)
		}
		return v
	default:
		return tx
	}
}

// ForeignOf returns the foreign part of tx, if any.
func ForeignOf(tx Transaction) (Foreign, bool) {
	var f Foreign
	switch v := tx.(type) {
	case Buy:
		f = v.Foreign
	case Sell:
		f = v.Foreign
	case Deposit:
		f = v.Foreign
	case Withdrawal:
		f = v.Foreign
	}
	return f, !f.IsZero()
}
