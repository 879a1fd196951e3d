package handlers

import (
	"net/http"

	"bankledger/internal/config"
	"bankledger/internal/middleware"
	"bankledger/internal/store"
	"bankledger/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Handler struct {
	reconcileDB store.Selecter
	cfg         config.Config
	accounts    AccountReader
	ledger      LedgerReader
	audit       AuditReader
	engine      LedgerEngine
	loans       LoanService
	hub         *websocket.Hub
}

func New(reconcileDB store.Selecter, cfg config.Config, accounts AccountReader, ledger LedgerReader, audit AuditReader, engine LedgerEngine, loans LoanService, hub *websocket.Hub) *Handler {
	return &Handler{
		reconcileDB: reconcileDB,
		cfg:         cfg,
		accounts:    accounts,
		ledger:      ledger,
		audit:       audit,
		engine:      engine,
		loans:       loans,
		hub:         hub,
	}
}

func (h *Handler) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.Logger)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{h.cfg.AllowedOrigins},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Actor-ID", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Group(func(r chi.Router) {
		r.Use(middleware.Actor)
		r.Post("/accounts", h.OpenAccount)
		r.Get("/accounts/{id}", h.GetAccount)
		r.Get("/customers/{id}/accounts", h.ListCustomerAccounts)
		r.Get("/accounts/{id}/balance", h.GetBalance)
		r.Get("/accounts/{id}/transactions", h.ListTransactions)
		r.Get("/accounts/{id}/self-check", h.SelfCheck)
		r.Post("/accounts/{id}/freeze", h.FreezeAccount)
		r.Post("/accounts/{id}/unfreeze", h.UnfreezeAccount)
		r.Post("/accounts/{id}/close", h.CloseAccount)

		r.Post("/transactions/deposit", h.Deposit)
		r.Post("/transactions/withdraw", h.Withdraw)
		r.Post("/transactions/transfer", h.Transfer)
		r.Post("/transactions/fee", h.PostFee)
		r.Post("/batches/interest", h.PostInterestBatch)

		r.Post("/loans", h.CreateLoan)
		r.Get("/loans/{id}", h.GetLoan)
		r.Post("/loans/{id}/payments", h.RecordLoanPayment)
		r.Post("/loans/{id}/default", h.DefaultLoan)

		r.Get("/audit", h.ListAuditRecords)
	})

	router.Get("/ws/balances", h.WSBalances)
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return router
}

func (h *Handler) WSBalances(w http.ResponseWriter, r *http.Request) {
	customerID := r.URL.Query().Get("customer_id")
	if customerID == "" {
		respondError(w, http.StatusBadRequest, "customer_id is required")
		return
	}
	websocket.ServeWS(w, r, h.hub, customerID)
}
