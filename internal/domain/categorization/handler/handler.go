package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/FACorreiaa/statement-reconciler/internal/domain/categorization"
	"github.com/FACorreiaa/statement-reconciler/internal/domain/import/repository"
)

// Service is the categorization surface the handler drives.
type Service interface {
	SuggestCounterparties(ctx context.Context, txID uuid.UUID) ([]categorization.CounterpartySuggestion, error)
	ConfirmCategory(ctx context.Context, txID uuid.UUID, account, counterparty string) (*repository.BankTransaction, error)
	Recategorize(ctx context.Context, txID uuid.UUID) (*repository.BankTransaction, error)
	SearchCounterparties(query string, limit int) ([]categorization.SearchResult, error)
	AddRule(ctx context.Context, rule *categorization.Rule) error
	Reload(ctx context.Context) error
}

type CategorizationHandler struct {
	svc    Service
	logger *slog.Logger
}

func NewCategorizationHandler(svc Service, logger *slog.Logger) *CategorizationHandler {
	return &CategorizationHandler{svc: svc, logger: logger}
}

// TransactionRoutes mounts the per-transaction routes under /transactions.
func (h *CategorizationHandler) TransactionRoutes(r chi.Router) {
	r.Get("/{id}/counterparties", h.suggestCounterparties)
	r.Post("/{id}/category", h.confirmCategory)
	r.Post("/{id}/recategorize", h.recategorize)
}

// Routes mounts counterparty search and rule management.
func (h *CategorizationHandler) Routes(r chi.Router) {
	r.Get("/counterparties", h.searchCounterparties)
	r.Post("/rules", h.addRule)
	r.Post("/rules/reload", h.reloadRules)
}

type categoryRequest struct {
	Account      string `json:"account"`
	Counterparty string `json:"counterparty"`
}

type ruleRequest struct {
	ID           uuid.UUID `json:"id,omitempty"`
	Name         string    `json:"name"`
	Priority     int       `json:"priority"`
	Patterns     []string  `json:"patterns"`
	Account      string    `json:"account"`
	Counterparty string    `json:"counterparty"`
	Tax          string    `json:"tax"`
	PaymentMode  string    `json:"payment_mode"`
}

type transactionResponse struct {
	ID                    uuid.UUID `json:"id"`
	Description           string    `json:"description"`
	Status                string    `json:"status"`
	SuggestedAccount      string    `json:"suggested_account,omitempty"`
	SuggestedCounterparty string    `json:"suggested_counterparty,omitempty"`
	SuggestedTax          string    `json:"suggested_tax,omitempty"`
	Confidence            float64   `json:"confidence"`
	Rule                  string    `json:"rule,omitempty"`
	Confirmed             bool      `json:"confirmed"`
}

func (h *CategorizationHandler) suggestCounterparties(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	suggestions, err := h.svc.SuggestCounterparties(r.Context(), id)
	if err != nil {
		h.writeError(w, "failed to suggest counterparties", err)
		return
	}
	if suggestions == nil {
		suggestions = []categorization.CounterpartySuggestion{}
	}

	writeJSON(w, http.StatusOK, suggestions)
}

func (h *CategorizationHandler) confirmCategory(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var req categoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	t, err := h.svc.ConfirmCategory(r.Context(), id, req.Account, req.Counterparty)
	if err != nil {
		h.writeError(w, "failed to confirm category", err)
		return
	}

	writeJSON(w, http.StatusOK, toResponse(t))
}

func (h *CategorizationHandler) recategorize(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	t, err := h.svc.Recategorize(r.Context(), id)
	if err != nil {
		h.writeError(w, "failed to recategorize", err)
		return
	}

	writeJSON(w, http.StatusOK, toResponse(t))
}

func (h *CategorizationHandler) searchCounterparties(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}

	res, err := h.svc.SearchCounterparties(r.URL.Query().Get("q"), limit)
	if err != nil {
		h.writeError(w, "failed to search counterparties", err)
		return
	}
	if res == nil {
		res = []categorization.SearchResult{}
	}

	writeJSON(w, http.StatusOK, res)
}

func (h *CategorizationHandler) addRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	rule := &categorization.Rule{
		Name:         req.Name,
		Priority:     req.Priority,
		Patterns:     req.Patterns,
		Account:      req.Account,
		Counterparty: req.Counterparty,
		Tax:          req.Tax,
		PaymentMode:  req.PaymentMode,
	}
	if err := rule.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.svc.AddRule(r.Context(), rule); err != nil {
		h.writeError(w, "failed to add rule", err)
		return
	}

	req.ID = rule.ID
	writeJSON(w, http.StatusCreated, req)
}

func (h *CategorizationHandler) reloadRules(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Reload(r.Context()); err != nil {
		h.writeError(w, "failed to reload rules", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CategorizationHandler) writeError(w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		http.Error(w, "transaction not found", http.StatusNotFound)
	case errors.Is(err, categorization.ErrAccountRequired), errors.Is(err, categorization.ErrInvalidRule):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.Error(msg, slog.Any("error", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func toResponse(t *repository.BankTransaction) transactionResponse {
	return transactionResponse{
		ID:                    t.ID,
		Description:           t.Description,
		Status:                string(t.Status),
		SuggestedAccount:      t.SuggestedAccount,
		SuggestedCounterparty: t.SuggestedCounterparty,
		SuggestedTax:          t.SuggestedTax,
		Confidence:            t.SuggestionConfidence,
		Rule:                  t.SuggestionRule,
		Confirmed:             t.CategoryConfirmed,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
