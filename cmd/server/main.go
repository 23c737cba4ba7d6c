package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"finflow/internal/config"
	"finflow/internal/db"
	"finflow/internal/handlers"
	"finflow/internal/rates"
	"finflow/internal/services"
	"finflow/internal/store"
	"finflow/internal/websocket"
)

func main() {
	cfg := config.Load()
	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	defer database.Close()

	accounts := store.NewAccountStore(database)
	categories := store.NewCategoryStore(database)
	transactions := store.NewTransactionStore(database)
	plans := store.NewPlanStore(database)
	preferences := store.NewPreferencesStore(database)
	audit := store.NewAuditStore(database)
	txRunner := db.NewTxRunner(database)

	rateCache := rates.NewCache(rates.Options{
		URL:      cfg.Rates.URL,
		JSONPath: cfg.Rates.JSONPath,
		Base:     cfg.Rates.BaseCurrency,
		Timeout:  cfg.Rates.Timeout,
		TTL:      cfg.Rates.TTL,
	})
	hub := websocket.NewHub()

	ledger := services.NewLedgerService(txRunner, accounts, categories, transactions, audit, rateCache, hub)
	imports := services.NewImportService(categories, accounts, ledger, rateCache, cfg.Import.Workers)
	analytics := services.NewAnalyticsService(accounts, transactions, plans, preferences, rateCache)

	handler := handlers.New(cfg, ledger, imports, analytics, accounts, transactions, preferences, audit, rateCache, websocket.NewServer(hub, handlers.SplitOrigins(cfg.AllowedOrigins)))
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("finflow API listening on %s (base currency %s)", server.Addr, cfg.Rates.BaseCurrency)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("shutdown error: %v", err)
	}
}
