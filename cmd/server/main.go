package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bankledger/internal/config"
	"bankledger/internal/db"
	"bankledger/internal/handlers"
	"bankledger/internal/services"
	"bankledger/internal/store"
	"bankledger/internal/websocket"
)

func main() {
	cfg := config.Load()
	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	defer database.Close()

	accounts := store.NewAccountStore(database)
	ledger := store.NewLedgerStore(database)
	audit := store.NewAuditStore(database)
	loans := store.NewLoanStore(database)
	lookup := store.NewLookupStore(database)
	txRunner := db.NewTxRunner(database, cfg.LockTimeout)
	hub := websocket.NewHub()
	engine := services.NewLedgerService(txRunner, accounts, ledger, audit, lookup, hub)
	loanService := services.NewLoanService(txRunner, loans, lookup, audit, engine)

	handler := handlers.New(database, cfg, accounts, ledger, audit, engine, loanService, hub)
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("ledger API listening on %s", server.Addr)
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
