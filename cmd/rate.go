package cmd

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"
	"github.com/jffcastro/assetflow/date"
)

type rateCmd struct {
	currency string
	date     string
	repin    bool
}

func (*rateCmd) Name() string     { return "rate" }
func (*rateCmd) Synopsis() string { return "resolve and cache historical exchange rates" }
func (*rateCmd) Usage() string {
	return `af rate -cur <currency> [-d <date>]
af rate -repin

  Resolves the rate of a currency against the reporting currency on a date,
  and caches it in the rates file. With -repin, pins the historical rate of
  every foreign transaction of the ledger still recorded without one.
`
}

func (c *rateCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.currency, "cur", "", "Foreign currency")
	f.StringVar(&c.date, "d", date.Today().String(), "Date of the rate")
	f.BoolVar(&c.repin, "repin", false, "pin the missing historical rates of the ledger")
}

func (c *rateCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.currency == "" && !c.repin {
		return usage(f, "Error: -cur or -repin is required")
	}
	on, err := date.Parse(c.date)
	if err != nil {
		return usage(f, "Error parsing date: %v", err)
	}
	a, err := openApp()
	if err != nil {
		return fail("Error: %v", err)
	}

	if c.repin {
		pinned, warnings, err := a.engine.Repin(ctx)
		a.warn(warnings)
		if err != nil {
			return fail("Error pinning rates: %v", err)
		}
		fmt.Printf("pinned %d transactions, %d still without historical rate\n", len(pinned), len(warnings))
	} else {
		quote, warn, err := a.engine.Converter().ResolveHistorical(ctx, c.currency, on)
		if err != nil {
			return fail("Error: %v", err)
		}
		if warn != nil {
			a.log.Warn(warn.Error())
		}
		fmt.Printf("1 %s = %s %s on %s (%s)\n", a.cfg.Currency, quote.Rate, quote.Currency, quote.On, quote.Origin)
	}

	if err := a.saveRates(); err != nil {
		return fail("Error saving rates: %v", err)
	}
	return subcommands.ExitSuccess
}
