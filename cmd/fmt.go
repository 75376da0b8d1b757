package cmd

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"github.com/jffcastro/assetflow"
)

type fmtCmd struct {
	write bool
}

func (*fmtCmd) Name() string     { return "fmt" }
func (*fmtCmd) Synopsis() string { return "check the ledger and list malformed transactions" }
func (*fmtCmd) Usage() string {
	return `af fmt [-w]

  Reads the ledger and lists the transactions that every report excludes
  because they are malformed. With -w, the ledger is rewritten in canonical
  form, malformed lines are kept as they are.
`
}

func (c *fmtCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.write, "w", false, "rewrite the ledger file in canonical form")
}

func (c *fmtCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := loadConfig()
	if err != nil {
		return fail("Error: %v", err)
	}
	snap, err := assetflow.NewFileLedger(cfg.LedgerFile).Load()
	if err != nil {
		return fail("Error: %v", err)
	}

	malformed := snap.Malformed()
	for _, m := range malformed {
		fmt.Fprintln(os.Stderr, m)
	}

	if c.write {
		var buf bytes.Buffer
		if err := assetflow.EncodeLedger(&buf, snap.Transactions()); err != nil {
			return fail("Error encoding ledger: %v", err)
		}
		if err := os.WriteFile(cfg.LedgerFile, buf.Bytes(), 0o644); err != nil {
			return fail("Error writing ledger: %v", err)
		}
	}
	fmt.Printf("%d transactions, %d malformed\n", snap.Len(), len(malformed))
	if len(malformed) > 0 {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
