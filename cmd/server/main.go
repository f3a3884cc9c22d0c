package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"richjet-go/internal/config"
	"richjet-go/internal/database"
	"richjet-go/internal/ledger"
	"richjet-go/internal/logger"
	"richjet-go/internal/providers"
	"richjet-go/internal/rates"
	"richjet-go/internal/resolver"
)

func main() {
	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	// Initialize database
	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connection successful and schema migrated.")

	// Build the enabled provider adapters. The priority list is the
	// enablement order and stays authoritative for ranking and fallback.
	clients, err := buildProviders(&cfg, log)
	if err != nil {
		log.Fatal("Failed to build providers", zap.Error(err))
	}
	if len(clients) == 0 {
		log.Warn("No providers enabled; expand search and quotes will fail")
	}

	converter, err := rates.NewConverter(&cfg.Rates, cfg.Cache.Capacity, log)
	if err != nil {
		log.Fatal("Failed to build currency converter", zap.Error(err))
	}

	res := resolver.New(log, db, clients, converter)
	led := ledger.New(db, log)

	// Setup HTTP server
	mux := http.NewServeMux()
	apiHandler := NewAPIHandler(log, db, res, led)

	mux.HandleFunc("GET /api/search", apiHandler.SearchHandler)
	mux.HandleFunc("GET /api/quote/{source}/{ticker}", apiHandler.QuoteHandler)
	mux.HandleFunc("POST /api/symbols", apiHandler.CreateSymbolHandler)
	mux.HandleFunc("/api/watchlist", apiHandler.WatchlistHandler)
	mux.HandleFunc("/api/watchlist/{id}", apiHandler.WatchlistItemHandler)
	mux.HandleFunc("/api/transactions", apiHandler.TransactionsHandler)
	mux.HandleFunc("/api/transactions/{id}", apiHandler.TransactionHandler)
	mux.HandleFunc("PUT /api/transactions/{ticker}/account", apiHandler.ReassignAccountHandler)
	mux.HandleFunc("/api/accounts", apiHandler.AccountsHandler)
	mux.HandleFunc("POST /api/accounts/{id}/balance", apiHandler.AccountBalanceHandler)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: mux,
	}

	// Setup context for graceful shutdown
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
		<-sigchan
		log.Info("Shutdown signal received, gracefully shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Error("Server shutdown failed", zap.Error(err))
		}
	}()

	log.Info("Starting server", zap.String("address", server.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("Server failed", zap.Error(err))
	}
	log.Info("Server has been shut down.")
}

// buildProviders instantiates an adapter for every source named in the
// priority list, in order.
func buildProviders(cfg *config.Config, log *zap.Logger) ([]providers.Client, error) {
	clients := make([]providers.Client, 0, len(cfg.Providers.Priority))
	for _, name := range cfg.Providers.Priority {
		settings, ok := cfg.Providers.ByName(name)
		if !ok {
			return nil, fmt.Errorf("unknown provider %q in priority list", name)
		}

		var (
			client providers.Client
			err    error
		)
		switch name {
		case "finnhub":
			client, err = providers.NewFinnhub(&settings, cfg.Cache.Capacity, log)
		case "vantage":
			client, err = providers.NewVantage(&settings, cfg.Cache.Capacity, log)
		case "openfigi":
			client, err = providers.NewOpenFIGI(&settings, cfg.Cache.Capacity, log)
		case "cnbc":
			client, err = providers.NewCNBC(&settings, cfg.Cache.Capacity, log)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to build provider %q: %w", name, err)
		}

		log.Info("Provider enabled", zap.String("provider", name))
		clients = append(clients, client)
	}
	return clients, nil
}
