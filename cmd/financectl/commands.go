package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"finflow/internal/auth"
	"finflow/internal/money"
	"finflow/internal/rates"
	"finflow/internal/services"
	"finflow/internal/store"

	"github.com/google/subcommands"
)

type ledgerMaintainer interface {
	CheckIntegrity(ctx context.Context, userID string) ([]store.AccountDrift, error)
	RecomputeAll(ctx context.Context, userID string) ([]services.Reconciliation, error)
}

type rateSource interface {
	Rates(ctx context.Context) rates.Table
	Snapshot() (rates.Table, bool)
	Invalidate()
}

// checkCmd reports drift between stored and derived balances.
type checkCmd struct {
	open   func() (ledgerMaintainer, error)
	out    io.Writer
	userID string
	all    bool
}

func (*checkCmd) Name() string     { return "check" }
func (*checkCmd) Synopsis() string { return "compare stored balances with the transaction sum" }
func (*checkCmd) Usage() string {
	return `financectl check [-user <id>] [-all]

  Lists accounts whose stored balance differs from initial balance plus
  transactions. Exits non-zero when any drift is found.
`
}

func (c *checkCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.userID, "user", "", "Only check accounts of this user")
	f.BoolVar(&c.all, "all", false, "Also list consistent accounts")
}

func (c *checkCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	ledger, err := c.open()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect database: %v\n", err)
		return subcommands.ExitFailure
	}
	drifts, err := ledger.CheckIntegrity(ctx, c.userID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "integrity check failed: %v\n", err)
		return subcommands.ExitFailure
	}
	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ACCOUNT\tUSER\tCURRENCY\tSTORED\tCALCULATED\tDIFFERENCE")
	drifted := 0
	for _, d := range drifts {
		if !d.Difference.IsZero() {
			drifted++
		} else if !c.all {
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", d.AccountID, d.UserID, d.Currency,
			money.Format(d.StoredBalance, d.Currency),
			money.Format(d.CalculatedBalance, d.Currency),
			money.Format(d.Difference, d.Currency))
	}
	w.Flush()
	fmt.Fprintf(c.out, "%d of %d accounts drifted\n", drifted, len(drifts))
	if drifted > 0 {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// recomputeCmd rewrites stored balances from the transaction log.
type recomputeCmd struct {
	open   func() (ledgerMaintainer, error)
	out    io.Writer
	userID string
}

func (*recomputeCmd) Name() string     { return "recompute" }
func (*recomputeCmd) Synopsis() string { return "recompute stored balances from transactions" }
func (*recomputeCmd) Usage() string {
	return `financectl recompute [-user <id>]

  Sets every account balance to initial balance plus the sum of its
  transactions and prints the accounts that changed.
`
}

func (c *recomputeCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.userID, "user", "", "Only recompute accounts of this user")
}

func (c *recomputeCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	ledger, err := c.open()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect database: %v\n", err)
		return subcommands.ExitFailure
	}
	results, err := ledger.RecomputeAll(ctx, c.userID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "recompute failed: %v\n", err)
		return subcommands.ExitFailure
	}
	changed := 0
	for _, r := range results {
		if !r.Changed() {
			continue
		}
		changed++
		fmt.Fprintf(c.out, "%s %s: %s -> %s\n", r.AccountID, r.Currency,
			money.Format(r.Previous, r.Currency), money.Format(r.Recomputed, r.Currency))
	}
	fmt.Fprintf(c.out, "recomputed %d accounts, %d changed\n", len(results), changed)
	return subcommands.ExitSuccess
}

// ratesCmd prints the current rate table.
type ratesCmd struct {
	rates   rateSource
	out     io.Writer
	refresh bool
}

func (*ratesCmd) Name() string     { return "rates" }
func (*ratesCmd) Synopsis() string { return "print exchange rates relative to the base currency" }
func (*ratesCmd) Usage() string {
	return `financectl rates [-refresh]

  Prints one rate per currency. -refresh drops any cached table first.
`
}

func (c *ratesCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.refresh, "refresh", false, "Ignore the cached table")
}

func (c *ratesCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.refresh {
		c.rates.Invalidate()
	}
	table := c.rates.Rates(ctx)
	if _, loaded := c.rates.Snapshot(); !loaded {
		fmt.Fprintln(os.Stderr, "warning: rate source unavailable, showing fallback rates")
	}
	codes := make([]string, 0, len(table.Rates))
	for code := range table.Rates {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	fmt.Fprintf(c.out, "base %s\n", table.Base)
	for _, code := range codes {
		fmt.Fprintf(c.out, "%s\t%s\n", code, table.Rates[code].String())
	}
	return subcommands.ExitSuccess
}

// tokenCmd signs a short-lived token for local testing against the API.
type tokenCmd struct {
	secret string
	out    io.Writer
	userID string
	ttl    time.Duration
}

func (*tokenCmd) Name() string     { return "token" }
func (*tokenCmd) Synopsis() string { return "sign a development bearer token" }
func (*tokenCmd) Usage() string {
	return `financectl token -user <id> [-ttl 1h]

  Prints an HS256 token signed with JWT_SECRET. Production tokens come from
  the identity service.
`
}

func (c *tokenCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.userID, "user", "", "User id to put in the token")
	f.DurationVar(&c.ttl, "ttl", time.Hour, "Token lifetime")
}

func (c *tokenCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.userID == "" {
		fmt.Fprintln(os.Stderr, "-user is required")
		return subcommands.ExitUsageError
	}
	token, err := auth.GenerateToken(c.secret, c.userID, c.ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to sign token: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Fprintln(c.out, token)
	return subcommands.ExitSuccess
}
