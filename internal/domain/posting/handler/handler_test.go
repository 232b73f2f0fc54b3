package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/statement-reconciler/internal/domain/import/repository"
	"github.com/FACorreiaa/statement-reconciler/internal/domain/posting"
)

type fakeEngine struct {
	txns     map[uuid.UUID]*repository.BankTransaction
	autoArgs autoPostRequest
}

func (f *fakeEngine) get(id uuid.UUID) (*repository.BankTransaction, error) {
	t, ok := f.txns[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return t, nil
}

func (f *fakeEngine) Preview(_ context.Context, id uuid.UUID) (posting.Voucher, error) {
	t, err := f.get(id)
	if err != nil {
		return nil, err
	}
	return posting.BuildVoucher(t, nil)
}

func (f *fakeEngine) Post(_ context.Context, id uuid.UUID) (*repository.BankTransaction, error) {
	t, err := f.get(id)
	if err != nil {
		return nil, err
	}
	if _, err := posting.BuildVoucher(t, nil); err != nil {
		return nil, err
	}
	now := time.Now()
	t.Status = repository.StatusPosted
	t.PostedVoucher = "JV-000001"
	t.PostedVoucherType = string(posting.VoucherJournalEntry)
	t.PostedAt = &now
	return t, nil
}

func (f *fakeEngine) Reverse(_ context.Context, id uuid.UUID) (*repository.BankTransaction, error) {
	t, err := f.get(id)
	if err != nil {
		return nil, err
	}
	if t.Status != repository.StatusPosted {
		return nil, repository.ErrNotPosted
	}
	t.Status = repository.StatusMatched
	t.PostedVoucher, t.PostedVoucherType, t.PostedAt = "", "", nil
	return t, nil
}

func (f *fakeEngine) AutoPost(_ context.Context, minConfidence float64, limit int) (posting.AutoPostResult, error) {
	f.autoArgs = autoPostRequest{MinConfidence: minConfidence, Limit: limit}
	return posting.AutoPostResult{Candidates: 3, Posted: 2, Failed: 1}, nil
}

func matchedTransaction() *repository.BankTransaction {
	return &repository.BankTransaction{
		ID:               uuid.New(),
		Date:             time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Description:      "ATM WDL/CASH 0042",
		Debit:            decimal.RequireFromString("2000.50"),
		Currency:         "INR",
		BankAccount:      "HDFC Current",
		Status:           repository.StatusMatched,
		SuggestedAccount: "Cash",
	}
}

func newRouter(engine Engine) http.Handler {
	h := NewPostingHandler(engine, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r := chi.NewRouter()
	r.Route("/transactions", h.Routes)
	return r
}

func do(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(method, path, rd))
	return rec
}

func TestPostingHandler_PreviewPostReverse(t *testing.T) {
	txn := matchedTransaction()
	router := newRouter(&fakeEngine{txns: map[uuid.UUID]*repository.BankTransaction{txn.ID: txn}})
	base := "/transactions/" + txn.ID.String()

	rec := do(router, http.MethodGet, base+"/voucher", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var v voucherResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.Equal(t, "Journal Entry", v.Type)
	assert.Equal(t, "2000.50", v.Amount)
	require.Len(t, v.Lines, 2)

	rec = do(router, http.MethodPost, base+"/post", "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var p postingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, "Posted", p.Status)
	assert.Equal(t, "JV-000001", p.Voucher)

	rec = do(router, http.MethodPost, base+"/post", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(router, http.MethodPost, base+"/reverse", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var reversed postingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reversed))
	assert.Equal(t, "Matched", reversed.Status)
	assert.Empty(t, reversed.Voucher)

	rec = do(router, http.MethodPost, base+"/reverse", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestPostingHandler_Errors(t *testing.T) {
	uncategorized := matchedTransaction()
	uncategorized.SuggestedAccount = ""
	router := newRouter(&fakeEngine{txns: map[uuid.UUID]*repository.BankTransaction{uncategorized.ID: uncategorized}})

	tests := []struct {
		name string
		path string
		want int
	}{
		{"unknown transaction", "/transactions/" + uuid.NewString() + "/post", http.StatusNotFound},
		{"bad id", "/transactions/42/post", http.StatusBadRequest},
		{"category missing", "/transactions/" + uncategorized.ID.String() + "/post", http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, do(router, http.MethodPost, tt.path, "").Code)
		})
	}
}

func TestPostingHandler_ValidationViolations(t *testing.T) {
	h := NewPostingHandler(&fakeEngine{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	rec := httptest.NewRecorder()

	err := fmt.Errorf("failed to build voucher: %w", posting.ValidationErrors{
		{Rule: posting.RuleBalance, Description: "debits 10.00 != credits 5.00"},
	})
	h.writeError(rec, "post", err)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Violations, 1)
	assert.Equal(t, "balance", resp.Violations[0].Rule)
}

func TestPostingHandler_AutoPost(t *testing.T) {
	engine := &fakeEngine{}
	router := newRouter(engine)

	rec := do(router, http.MethodPost, "/transactions/auto-post", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, autoPostRequest{MinConfidence: 100, Limit: 200}, engine.autoArgs)
	assert.JSONEq(t, `{"candidates":3,"posted":2,"skipped":0,"failed":1}`, rec.Body.String())

	rec = do(router, http.MethodPost, "/transactions/auto-post", `{"min_confidence":80,"limit":10}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, autoPostRequest{MinConfidence: 80, Limit: 10}, engine.autoArgs)
}
