package api

import (
	"bank_ledger/internal/domain"
	"bank_ledger/internal/processor"
	"bank_ledger/internal/repository"
	"bank_ledger/internal/service"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type APIHandler struct {
	processor      *processor.TransferProcessor
	accounts       *service.AccountService
	logger         *slog.Logger
	requestTimeout time.Duration
}

func NewAPIHandler(processor *processor.TransferProcessor, accounts *service.AccountService, logger *slog.Logger) *APIHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &APIHandler{
		processor:      processor,
		accounts:       accounts,
		logger:         logger,
		requestTimeout: 30 * time.Second,
	}
}

type CreateTransferRequest struct {
	SenderAccountID   string          `json:"sender_account_id"`
	ReceiverAccountID string          `json:"receiver_account_id"`
	Amount            decimal.Decimal `json:"amount"`
}

type TransferResponse struct {
	Status        string                   `json:"status"`
	TransactionID string                   `json:"transaction_id"`
	State         domain.TransactionStatus `json:"state"`
	Amount        string                   `json:"amount"`
	Fee           string                   `json:"fee"`
	FeeType       string                   `json:"fee_type,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func (h *APIHandler) CreateTransferHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	var req CreateTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST")
		return
	}

	result, err := h.processor.Transfer(ctx, req.SenderAccountID, req.ReceiverAccountID, req.Amount)
	if err != nil {
		status, code := statusFor(err)
		h.sendError(w, err.Error(), status, code)
		return
	}

	tx := result.Transaction
	h.sendJSON(w, TransferResponse{
		Status:        result.Status,
		TransactionID: tx.ID.String(),
		State:         tx.Status,
		Amount:        tx.Amount.StringFixed(2),
		Fee:           tx.Fee.StringFixed(2),
		FeeType:       tx.FeeType,
	}, http.StatusCreated)
}

func (h *APIHandler) GetTransactionHandler(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.sendError(w, "Transaction ID must be a UUID", http.StatusBadRequest, "INVALID_ID")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	tx, err := h.processor.GetTransaction(ctx, id)
	if err != nil {
		status, code := statusFor(err)
		h.sendError(w, err.Error(), status, code)
		return
	}

	h.sendJSON(w, tx, http.StatusOK)
}

func (h *APIHandler) GetAuditTrailHandler(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.sendError(w, "Transaction ID must be a UUID", http.StatusBadRequest, "INVALID_ID")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	entries, err := h.processor.AuditTrail(ctx, id)
	if err != nil {
		status, code := statusFor(err)
		h.sendError(w, err.Error(), status, code)
		return
	}

	h.sendJSON(w, entries, http.StatusOK)
}

func (h *APIHandler) OpenAccountHandler(w http.ResponseWriter, r *http.Request) {
	var req service.OpenAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	account, err := h.accounts.OpenAccount(ctx, req)
	if err != nil {
		status, code := statusFor(err)
		h.sendError(w, err.Error(), status, code)
		return
	}

	h.sendJSON(w, account, http.StatusCreated)
}

func (h *APIHandler) CustomerBalanceHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	balance, err := h.accounts.CustomerBalance(ctx, chi.URLParam(r, "id"))
	if err != nil {
		status, code := statusFor(err)
		h.sendError(w, err.Error(), status, code)
		return
	}

	h.sendJSON(w, map[string]interface{}{
		"customer_id": balance.CustomerID,
		"accounts":    balance.Accounts,
		"total":       balance.Total.StringFixed(2),
	}, http.StatusOK)
}

func (h *APIHandler) GetAccountHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	account, err := h.processor.GetAccount(ctx, chi.URLParam(r, "id"))
	if err != nil {
		status, code := statusFor(err)
		h.sendError(w, err.Error(), status, code)
		return
	}

	h.sendJSON(w, account, http.StatusOK)
}

func (h *APIHandler) ListAccountTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 50)
	if err != nil || limit <= 0 || limit > 500 {
		h.sendError(w, "limit must be between 1 and 500", http.StatusBadRequest, "INVALID_LIMIT")
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		h.sendError(w, "offset must be non-negative", http.StatusBadRequest, "INVALID_OFFSET")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	txs, err := h.processor.History(ctx, chi.URLParam(r, "id"), limit, offset)
	if err != nil {
		status, code := statusFor(err)
		h.sendError(w, err.Error(), status, code)
		return
	}

	h.sendJSON(w, txs, http.StatusOK)
}

func (h *APIHandler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	h.sendJSON(w, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	}, http.StatusOK)
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrAccountNotFound),
		errors.Is(err, domain.ErrCustomerNotFound),
		errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrInvalidAmount):
		return http.StatusBadRequest, "INVALID_AMOUNT"
	case errors.Is(err, domain.ErrInvalidTransfer):
		return http.StatusBadRequest, "INVALID_TRANSFER"
	case errors.Is(err, domain.ErrInvalidAccount):
		return http.StatusBadRequest, "INVALID_ACCOUNT"
	case errors.Is(err, repository.ErrDuplicate):
		return http.StatusConflict, "DUPLICATE"
	case errors.Is(err, domain.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS"
	case errors.Is(err, domain.ErrKYCRequired):
		return http.StatusUnprocessableEntity, "KYC_REQUIRED"
	case errors.Is(err, domain.ErrUnknownAccountType):
		return http.StatusUnprocessableEntity, "UNKNOWN_ACCOUNT_TYPE"
	case errors.Is(err, domain.ErrLockTimeout):
		return http.StatusServiceUnavailable, "LOCK_TIMEOUT"
	default:
		return http.StatusInternalServerError, "SERVER_ERROR"
	}
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

func (h *APIHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", slog.String("error", err.Error()))
	}
}

func (h *APIHandler) sendError(w http.ResponseWriter, message string, statusCode int, code string) {
	if statusCode >= http.StatusInternalServerError && statusCode != http.StatusServiceUnavailable {
		message = "internal error"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: message, Code: code})

	h.logger.Warn("API error response",
		slog.String("message", message),
		slog.String("code", code),
		slog.Int("status", statusCode))
}

func (h *APIHandler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/api/health", h.HealthCheckHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/transfers", h.CreateTransferHandler)
		r.Get("/transactions/{id}", h.GetTransactionHandler)
		r.Get("/transactions/{id}/audit", h.GetAuditTrailHandler)
		r.Post("/accounts", h.OpenAccountHandler)
		r.Get("/accounts/{id}", h.GetAccountHandler)
		r.Get("/accounts/{id}/transactions", h.ListAccountTransactionsHandler)
		r.Get("/customers/{id}/balance", h.CustomerBalanceHandler)
	})

	return r
}
