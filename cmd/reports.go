package cmd

import (
	"context"
	"flag"
	"slices"

	"github.com/google/subcommands"
	"github.com/jffcastro/assetflow"
	"github.com/jffcastro/assetflow/renderer"
)

// holdingCmd holds the flags for the 'holding' subcommand.
type holdingCmd struct {
	warnings bool
}

func (*holdingCmd) Name() string     { return "holding" }
func (*holdingCmd) Synopsis() string { return "display current holdings rebuilt from the ledger" }
func (*holdingCmd) Usage() string {
	return `af holding [-w]

  Replays the whole ledger and displays the current holdings with their cost.
  Fully sold assets are not listed. The cost is the running average cost,
  unless the global -cost-basis flag selects fifo.
`
}

func (c *holdingCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.warnings, "w", true, "display warnings")
}

func (c *holdingCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := openApp()
	if err != nil {
		return fail("Error: %v", err)
	}
	holdings, warnings, err := a.engine.GetHoldings(ctx)
	if err != nil {
		return fail("Error computing holdings: %v", err)
	}
	md := renderer.RenderHoldings(holdings, a.cfg.Currency)
	if c.warnings {
		md += renderer.RenderWarnings(warnings)
	}
	printMarkdown(md)
	if err := a.close(ctx); err != nil {
		a.log.WithError(err).Warn("could not save state")
	}
	return subcommands.ExitSuccess
}

// gainsCmd holds the flags for the 'gains' subcommand.
type gainsCmd struct {
	warnings bool
}

func (*gainsCmd) Name() string     { return "gains" }
func (*gainsCmd) Synopsis() string { return "display realized gains, FIFO matched" }
func (*gainsCmd) Usage() string {
	return `af gains [-w]

  Matches every sell against the oldest buys of the same asset and displays
  the realized gains by asset class and by asset, including the manual
  adjustments of the market file.
`
}

func (c *gainsCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.warnings, "w", true, "display warnings")
}

func (c *gainsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := openApp()
	if err != nil {
		return fail("Error: %v", err)
	}
	result, err := a.engine.GetRealizedPnL(ctx)
	if err != nil {
		return fail("Error computing realized gains: %v", err)
	}
	md := renderer.RenderRealized(result)
	if c.warnings {
		md += renderer.RenderWarnings(result.Warnings)
	}
	printMarkdown(md)
	if err := a.close(ctx); err != nil {
		a.log.WithError(err).Warn("could not save state")
	}
	return subcommands.ExitSuccess
}

// soldCmd holds the flags for the 'sold' subcommand.
type soldCmd struct {
	class    string
	warnings bool
}

func (*soldCmd) Name() string     { return "sold" }
func (*soldCmd) Synopsis() string { return "compare sold assets with keeping them" }
func (*soldCmd) Usage() string {
	return `af sold [-class <asset class>] [-w]

  For every asset with at least one sell, compares the realized gain with the
  gain the sold quantity would show at the current price.
`
}

func (c *soldCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.class, "class", "", "Asset class (equity, fund, crypto, collectible-portfolio), all if empty")
	f.BoolVar(&c.warnings, "w", true, "display warnings")
}

func (c *soldCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	classes := assetflow.AssetClasses
	if c.class != "" {
		class, err := assetflow.ParseAssetClass(c.class)
		if err != nil {
			return usage(f, "Error: %v", err)
		}
		classes = []assetflow.AssetClass{class}
	}
	a, err := openApp()
	if err != nil {
		return fail("Error: %v", err)
	}

	var md string
	var all []error
	for _, class := range classes {
		summaries, warnings, err := a.engine.GetSoldAssetSummaries(ctx, class)
		if err != nil {
			return fail("Error analyzing sold assets: %v", err)
		}
		for _, w := range warnings {
			if !slices.ContainsFunc(all, func(e error) bool { return e.Error() == w.Error() }) {
				all = append(all, w)
			}
		}
		if len(summaries) > 0 || c.class != "" {
			md += renderer.RenderSold(class, summaries)
		}
	}
	if md == "" {
		md = "Nothing sold.\n"
	}
	if c.warnings {
		md += renderer.RenderWarnings(all)
	}
	printMarkdown(md)
	if err := a.close(ctx); err != nil {
		a.log.WithError(err).Warn("could not save state")
	}
	return subcommands.ExitSuccess
}
