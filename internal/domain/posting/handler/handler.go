package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/FACorreiaa/statement-reconciler/internal/domain/import/repository"
	"github.com/FACorreiaa/statement-reconciler/internal/domain/posting"
)

// Engine is the posting surface the handler drives.
type Engine interface {
	Preview(ctx context.Context, id uuid.UUID) (posting.Voucher, error)
	Post(ctx context.Context, id uuid.UUID) (*repository.BankTransaction, error)
	Reverse(ctx context.Context, id uuid.UUID) (*repository.BankTransaction, error)
	AutoPost(ctx context.Context, minConfidence float64, limit int) (posting.AutoPostResult, error)
}

type PostingHandler struct {
	engine Engine
	logger *slog.Logger
}

func NewPostingHandler(engine Engine, logger *slog.Logger) *PostingHandler {
	return &PostingHandler{engine: engine, logger: logger}
}

// Routes mounts the posting routes under /transactions.
func (h *PostingHandler) Routes(r chi.Router) {
	r.Get("/{id}/voucher", h.preview)
	r.Post("/{id}/post", h.post)
	r.Post("/{id}/reverse", h.reverse)
	r.Post("/auto-post", h.autoPost)
}

type lineResponse struct {
	Account string `json:"account"`
	Party   string `json:"party,omitempty"`
	Debit   string `json:"debit"`
	Credit  string `json:"credit"`
}

type voucherResponse struct {
	Type        string         `json:"voucher_type"`
	PostingDate string         `json:"posting_date"`
	Currency    string         `json:"currency"`
	Reference   string         `json:"reference,omitempty"`
	Remark      string         `json:"remark,omitempty"`
	Amount      string         `json:"amount"`
	Lines       []lineResponse `json:"lines"`
}

type postingResponse struct {
	ID          uuid.UUID  `json:"id"`
	Status      string     `json:"status"`
	Voucher     string     `json:"voucher,omitempty"`
	VoucherType string     `json:"voucher_type,omitempty"`
	PostedAt    *time.Time `json:"posted_at,omitempty"`
}

type autoPostRequest struct {
	MinConfidence float64 `json:"min_confidence"`
	Limit         int     `json:"limit"`
}

type autoPostResponse struct {
	Candidates int `json:"candidates"`
	Posted     int `json:"posted"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
}

type errorResponse struct {
	Error      string                    `json:"error"`
	Violations []posting.ValidationError `json:"violations,omitempty"`
}

func (h *PostingHandler) preview(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	v, err := h.engine.Preview(r.Context(), id)
	if err != nil {
		h.writeError(w, "failed to preview voucher", err)
		return
	}

	writeJSON(w, http.StatusOK, toVoucherResponse(v))
}

func (h *PostingHandler) post(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	t, err := h.engine.Post(r.Context(), id)
	if err != nil {
		h.writeError(w, "failed to post transaction", err)
		return
	}

	writeJSON(w, http.StatusCreated, toPostingResponse(t))
}

func (h *PostingHandler) reverse(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	t, err := h.engine.Reverse(r.Context(), id)
	if err != nil {
		h.writeError(w, "failed to reverse posting", err)
		return
	}

	writeJSON(w, http.StatusOK, toPostingResponse(t))
}

func (h *PostingHandler) autoPost(w http.ResponseWriter, r *http.Request) {
	req := autoPostRequest{MinConfidence: 100, Limit: 200}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
	}

	res, err := h.engine.AutoPost(r.Context(), req.MinConfidence, req.Limit)
	if err != nil {
		h.writeError(w, "auto-post failed", err)
		return
	}

	writeJSON(w, http.StatusOK, autoPostResponse{
		Candidates: res.Candidates,
		Posted:     res.Posted,
		Skipped:    res.Skipped,
		Failed:     res.Failed,
	})
}

func (h *PostingHandler) writeError(w http.ResponseWriter, msg string, err error) {
	var verrs posting.ValidationErrors
	switch {
	case errors.Is(err, repository.ErrNotFound):
		http.Error(w, "transaction not found", http.StatusNotFound)
	case errors.Is(err, posting.ErrAlreadyPosted), errors.Is(err, repository.ErrNotPosted):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.As(err, &verrs):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), Violations: verrs})
	case errors.Is(err, posting.ErrCategoryAccountRequired),
		errors.Is(err, posting.ErrBankAccountRequired),
		errors.Is(err, posting.ErrZeroAmount),
		errors.Is(err, posting.ErrUnbalancedVoucher),
		errors.Is(err, posting.ErrInvalidVoucher):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
	default:
		h.logger.Error(msg, slog.Any("error", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func toVoucherResponse(v posting.Voucher) voucherResponse {
	meta := v.Meta()
	resp := voucherResponse{
		Type:        string(v.Type()),
		PostingDate: meta.PostingDate.Format(time.DateOnly),
		Currency:    meta.Currency,
		Reference:   meta.Reference,
		Remark:      meta.Remark,
		Amount:      v.Amount().StringFixed(2),
	}
	for _, l := range v.Lines() {
		resp.Lines = append(resp.Lines, lineResponse{
			Account: l.Account,
			Party:   l.Party,
			Debit:   l.Debit.StringFixed(2),
			Credit:  l.Credit.StringFixed(2),
		})
	}
	return resp
}

func toPostingResponse(t *repository.BankTransaction) postingResponse {
	return postingResponse{
		ID:          t.ID,
		Status:      string(t.Status),
		Voucher:     t.PostedVoucher,
		VoucherType: t.PostedVoucherType,
		PostedAt:    t.PostedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
