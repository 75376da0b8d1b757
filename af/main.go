// Command af tracks realized gains from a ledger of transactions.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"
	"github.com/jffcastro/assetflow"
	"github.com/jffcastro/assetflow/cmd"
	"github.com/posener/complete/v2"
	"github.com/posener/complete/v2/predict"
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, "af")
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	cmd.Register(commander)

	completion().Complete("af")

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}

// completion describes the subcommands and their flags for shell completion.
func completion() *complete.Command {
	classes := make([]string, len(assetflow.AssetClasses))
	for i, c := range assetflow.AssetClasses {
		classes[i] = c.String()
	}
	known := map[string]complete.Predictor{
		"class":       predict.Set(classes),
		"type":        predict.Set{"buy", "sell", "value_update", "deposit", "withdrawal"},
		"ledger-file": predict.Files("*.jsonl"),
		"market-file": predict.Files("*.jsonl"),
		"rates-file":  predict.Files("*.jsonl"),
		"env-file":    predict.Files("*"),
		"cost-basis":  predict.Set{"average", "fifo"},
	}
	flags := func(fs *flag.FlagSet) map[string]complete.Predictor {
		m := make(map[string]complete.Predictor)
		fs.VisitAll(func(f *flag.Flag) {
			if p, ok := known[f.Name]; ok {
				m[f.Name] = p
			} else {
				m[f.Name] = predict.Something
			}
		})
		return m
	}

	root := &complete.Command{
		Sub:   make(map[string]*complete.Command),
		Flags: flags(flag.CommandLine),
	}
	for _, c := range cmd.Commands {
		fs := flag.NewFlagSet(c.Command.Name(), flag.ContinueOnError)
		c.Command.SetFlags(fs)
		root.Sub[c.Command.Name()] = &complete.Command{Flags: flags(fs)}
	}
	return root
}
