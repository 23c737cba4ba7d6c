// Command financectl runs ledger maintenance against the configured database.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"path"
	"sync"

	"finflow/internal/config"
	"finflow/internal/db"
	"finflow/internal/rates"
	"finflow/internal/services"
	"finflow/internal/store"
	"finflow/internal/websocket"

	"github.com/google/subcommands"
	"github.com/jmoiron/sqlx"
)

func main() {
	cfg := config.Load()
	rateCache := rates.NewCache(rates.Options{
		URL:      cfg.Rates.URL,
		JSONPath: cfg.Rates.JSONPath,
		Base:     cfg.Rates.BaseCurrency,
		Timeout:  cfg.Rates.Timeout,
		TTL:      cfg.Rates.TTL,
	})

	// The database is only opened by commands that need it.
	var (
		once     sync.Once
		database *sqlx.DB
		openErr  error
	)
	openLedger := func() (ledgerMaintainer, error) {
		once.Do(func() { database, openErr = db.Connect(cfg.DatabaseURL) })
		if openErr != nil {
			return nil, openErr
		}
		return services.NewLedgerService(
			db.NewTxRunner(database),
			store.NewAccountStore(database),
			store.NewCategoryStore(database),
			store.NewTransactionStore(database),
			store.NewAuditStore(database),
			rateCache,
			websocket.NewHub(),
		), nil
	}

	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(&checkCmd{open: openLedger, out: os.Stdout}, "ledger")
	commander.Register(&recomputeCmd{open: openLedger, out: os.Stdout}, "ledger")
	commander.Register(&ratesCmd{rates: rateCache, out: os.Stdout}, "rates")
	commander.Register(&tokenCmd{secret: cfg.JWTSecret, out: os.Stdout}, "dev")

	flag.Parse()
	status := commander.Execute(context.Background())
	if database != nil {
		if err := database.Close(); err != nil {
			log.Printf("warning: close database: %v", err)
		}
	}
	os.Exit(int(status))
}
