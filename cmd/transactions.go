package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"github.com/jffcastro/assetflow"
	"github.com/jffcastro/assetflow/date"
	"github.com/shopspring/decimal"
)

// txFlags are the flags shared by the commands recording a transaction.
type txFlags struct {
	date     string
	class    string
	symbol   string
	quantity string
	price    string
	total    string
	currency string
	memo     string
}

func (t *txFlags) setFlags(f *flag.FlagSet, security bool) {
	f.StringVar(&t.date, "d", date.Today().String(), "Transaction date (YYYY-MM-DD)")
	if security {
		f.StringVar(&t.class, "class", string(assetflow.Equity), "Asset class (equity, fund, crypto, collectible-portfolio)")
		f.StringVar(&t.symbol, "s", "", "Asset symbol, or portfolio key of a collectible portfolio")
		f.StringVar(&t.quantity, "q", "", "Quantity, 1 for assets without units")
		f.StringVar(&t.price, "p", "", "Unit price")
	}
	f.StringVar(&t.total, "t", "", "Total amount, used when no unit price is given")
	f.StringVar(&t.currency, "cur", "", "Currency of the price or amount, defaults to the reporting currency. The rate of the transaction date is pinned")
	f.StringVar(&t.memo, "m", "", "An optional note for the transaction")
}

func parseDecimal(name, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q: %w", name, s, err)
	}
	return d, nil
}

// build returns the transaction described by the flags. Foreign
// transactions are returned without rate.
func (t *txFlags) build(cmd assetflow.CommandType, reporting string) (assetflow.Transaction, error) {
	on, err := date.Parse(t.date)
	if err != nil {
		return nil, fmt.Errorf("invalid date: %w", err)
	}
	cur := t.currency
	if cur == "" {
		cur = reporting
	}
	if err := assetflow.ValidateCurrency(cur); err != nil {
		return nil, err
	}
	foreign := cur != reporting

	var total, price decimal.Decimal
	if t.total != "" {
		if total, err = parseDecimal("total", t.total); err != nil {
			return nil, err
		}
	}
	if t.price != "" {
		if price, err = parseDecimal("price", t.price); err != nil {
			return nil, err
		}
	}

	var tx assetflow.Transaction
	switch cmd {
	case assetflow.CmdBuy, assetflow.CmdSell:
		class, err := assetflow.ParseAssetClass(t.class)
		if err != nil {
			return nil, err
		}
		if t.symbol == "" || t.quantity == "" {
			return nil, errors.New("a symbol and a quantity are required")
		}
		q, err := parseDecimal("quantity", t.quantity)
		if err != nil {
			return nil, err
		}
		qty := assetflow.Q(q)
		if t.price == "" && t.total == "" {
			return nil, errors.New("a price or a total is required")
		}
		if t.price == "" && !qty.IsZero() {
			price = total.Div(q)
		}
		switch {
		case foreign && cmd == assetflow.CmdBuy:
			b := assetflow.NewForeignBuy(on, class, t.symbol, qty, assetflow.M(price, cur), decimal.Zero, reporting)
			b.Memo = t.memo
			tx = b
		case foreign:
			s := assetflow.NewForeignSell(on, class, t.symbol, qty, assetflow.M(price, cur), decimal.Zero, reporting)
			s.Memo = t.memo
			tx = s
		case cmd == assetflow.CmdBuy && t.price == "":
			b := assetflow.NewBuyTotal(on, class, t.symbol, qty, assetflow.M(total, cur))
			b.Memo = t.memo
			tx = b
		case cmd == assetflow.CmdBuy:
			b := assetflow.NewBuy(on, class, t.symbol, qty, assetflow.M(price, cur))
			b.Memo = t.memo
			tx = b
		case t.price == "":
			s := assetflow.NewSellTotal(on, class, t.symbol, qty, assetflow.M(total, cur))
			s.Memo = t.memo
			tx = s
		default:
			s := assetflow.NewSell(on, class, t.symbol, qty, assetflow.M(price, cur))
			s.Memo = t.memo
			tx = s
		}

	case assetflow.CmdValueUpdate:
		class, err := assetflow.ParseAssetClass(t.class)
		if err != nil {
			return nil, err
		}
		if t.symbol == "" || t.total == "" {
			return nil, errors.New("a symbol and a total are required")
		}
		if foreign {
			return nil, errors.New("values are reported in the reporting currency")
		}
		v := assetflow.NewValueUpdate(on, class, t.symbol, assetflow.M(total, cur))
		v.Memo = t.memo
		tx = v

	case assetflow.CmdDeposit, assetflow.CmdWithdrawal:
		if t.total == "" {
			return nil, errors.New("an amount is required")
		}
		amount := assetflow.M(total, cur)
		switch {
		case cmd == assetflow.CmdDeposit && foreign:
			d := assetflow.NewForeignDeposit(on, amount, decimal.Zero, reporting)
			d.Memo = t.memo
			tx = d
		case cmd == assetflow.CmdDeposit:
			d := assetflow.NewDeposit(on, amount)
			d.Memo = t.memo
			tx = d
		case foreign:
			w := assetflow.NewForeignWithdrawal(on, amount, decimal.Zero, reporting)
			w.Memo = t.memo
			tx = w
		default:
			w := assetflow.NewWithdrawal(on, amount)
			w.Memo = t.memo
			tx = w
		}

	default:
		return nil, fmt.Errorf("unknown transaction command: %q", cmd)
	}
	return tx, tx.Validate()
}

// record appends or replaces tx through the engine, pinning its rate.
func record(ctx context.Context, id string, tx assetflow.Transaction) subcommands.ExitStatus {
	a, err := openApp()
	if err != nil {
		return fail("Error: %v", err)
	}
	var warn *assetflow.MissingRateWarning
	if id == "" {
		tx, warn, err = a.engine.Append(ctx, tx)
	} else {
		tx, warn, err = a.engine.Replace(ctx, id, tx)
	}
	if err != nil {
		return fail("Error recording transaction: %v", err)
	}
	if warn != nil {
		a.log.Warn(warn.Error())
	}
	if err := a.saveRates(); err != nil {
		a.log.WithError(err).Warn("could not save rates")
	}
	if err := assetflow.EncodeTransaction(os.Stdout, tx); err != nil {
		return fail("Error: %v", err)
	}
	return subcommands.ExitSuccess
}

// --- Buy and Sell Commands ---

type tradeCmd struct {
	cmd assetflow.CommandType
	txFlags
}

func newTradeCmd(cmd assetflow.CommandType) *tradeCmd { return &tradeCmd{cmd: cmd} }

func (c *tradeCmd) Name() string { return string(c.cmd) }
func (c *tradeCmd) Synopsis() string {
	if c.cmd == assetflow.CmdBuy {
		return "record a purchase of an asset"
	}
	return "record a sale of an asset"
}
func (c *tradeCmd) Usage() string {
	return fmt.Sprintf(`af %s -s <symbol> -q <quantity> (-p <price> | -t <total>) [-class <class>] [-d <date>] [-cur <currency>] [-m <memo>]

  Records a %s. When the price is in a foreign currency, the rate of the
  transaction date is resolved and pinned in the ledger.
`, c.cmd, c.cmd)
}

func (c *tradeCmd) SetFlags(f *flag.FlagSet) { c.setFlags(f, true) }

func (c *tradeCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := loadConfig()
	if err != nil {
		return fail("Error: %v", err)
	}
	tx, err := c.build(c.cmd, cfg.Currency)
	if err != nil {
		return usage(f, "Error: %v", err)
	}
	return record(ctx, "", tx)
}

// --- Value Command ---

type valueCmd struct {
	txFlags
}

func (*valueCmd) Name() string     { return "value" }
func (*valueCmd) Synopsis() string { return "record the current value of a position" }
func (*valueCmd) Usage() string {
	return `af value -s <symbol> -t <value> [-class <class>] [-d <date>] [-m <memo>]

  Records the value of a position, typically one that is not tracked by lots.
`
}

func (c *valueCmd) SetFlags(f *flag.FlagSet) { c.setFlags(f, true) }

func (c *valueCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := loadConfig()
	if err != nil {
		return fail("Error: %v", err)
	}
	tx, err := c.build(assetflow.CmdValueUpdate, cfg.Currency)
	if err != nil {
		return usage(f, "Error: %v", err)
	}
	return record(ctx, "", tx)
}

// --- Deposit and Withdraw Commands ---

type cashCmd struct {
	cmd assetflow.CommandType
	txFlags
}

func newCashCmd(cmd assetflow.CommandType) *cashCmd { return &cashCmd{cmd: cmd} }

func (c *cashCmd) Name() string {
	if c.cmd == assetflow.CmdDeposit {
		return "deposit"
	}
	return "withdraw"
}
func (c *cashCmd) Synopsis() string {
	if c.cmd == assetflow.CmdDeposit {
		return "record cash entering the portfolio"
	}
	return "record cash leaving the portfolio"
}
func (c *cashCmd) Usage() string {
	return fmt.Sprintf(`af %s -t <amount> [-d <date>] [-cur <currency>] [-m <memo>]

  Records a %s.
`, c.Name(), c.cmd)
}

func (c *cashCmd) SetFlags(f *flag.FlagSet) { c.setFlags(f, false) }

func (c *cashCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := loadConfig()
	if err != nil {
		return fail("Error: %v", err)
	}
	tx, err := c.build(c.cmd, cfg.Currency)
	if err != nil {
		return usage(f, "Error: %v", err)
	}
	return record(ctx, "", tx)
}

// --- Edit Command ---

type editCmd struct {
	id      string
	command string
	txFlags
}

func (*editCmd) Name() string     { return "edit" }
func (*editCmd) Synopsis() string { return "replace a transaction, keeping its id and position" }
func (*editCmd) Usage() string {
	return `af edit -id <id> -type <buy|sell|value_update|deposit|withdrawal> [transaction flags]

  Replaces the transaction with the given id by a new one. Every report is
  recomputed from the whole ledger afterwards.
`
}

func (c *editCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.id, "id", "", "Id of the transaction to replace")
	f.StringVar(&c.command, "type", "", "Type of the new transaction")
	c.setFlags(f, true)
}

func (c *editCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.id == "" || c.command == "" {
		return usage(f, "Error: -id and -type are required")
	}
	cfg, err := loadConfig()
	if err != nil {
		return fail("Error: %v", err)
	}
	tx, err := c.build(assetflow.CommandType(c.command), cfg.Currency)
	if err != nil {
		return usage(f, "Error: %v", err)
	}
	return record(ctx, c.id, tx)
}

// --- Remove Command ---

type rmCmd struct {
	id string
}

func (*rmCmd) Name() string     { return "rm" }
func (*rmCmd) Synopsis() string { return "remove a transaction" }
func (*rmCmd) Usage() string {
	return `af rm -id <id>

  Removes the transaction with the given id from the ledger.
`
}

func (c *rmCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.id, "id", "", "Id of the transaction to remove")
}

func (c *rmCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.id == "" {
		return usage(f, "Error: -id is required")
	}
	a, err := openApp()
	if err != nil {
		return fail("Error: %v", err)
	}
	if err := a.engine.Remove(c.id); err != nil {
		return fail("Error removing transaction: %v", err)
	}
	fmt.Printf("Removed transaction %s from %s\n", c.id, a.cfg.LedgerFile)
	return subcommands.ExitSuccess
}
