// Package assetflow reconstructs the state of a personal investment
// portfolio from its append-only transaction ledger.
//
// The ledger is the single source of truth. Everything else is derived from
// it on demand and never stored:
//   - Holdings: current positions and their cost basis, rebuilt by replaying
//     every transaction.
//   - Realized P&L: gains and losses of sells, matched against buys in FIFO
//     order per asset, summed per asset class.
//   - Sold asset analysis: what every sold asset would be worth today had it
//     been kept.
//
// Foreign currency records keep their original price and the exchange rate
// of their date, so reporting currency values can always be recomputed.
//
// The Engine ties a LedgerStore, a CurrencyConverter and market data
// together and memoizes derivations until the ledger changes. It backs the
// `af` command-line tool.
package assetflow
