package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/statement-reconciler/internal/domain/categorization"
	"github.com/FACorreiaa/statement-reconciler/internal/domain/import/repository"
)

type fakeService struct {
	txns     map[uuid.UUID]*repository.BankTransaction
	rules    []*categorization.Rule
	reloaded int
}

func (f *fakeService) SuggestCounterparties(_ context.Context, id uuid.UUID) ([]categorization.CounterpartySuggestion, error) {
	t, ok := f.txns[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return categorization.SuggestCounterparties(t.Description, []string{"Swiggy", "Zomato", "Acme Corp"}, 5, 50), nil
}

func (f *fakeService) ConfirmCategory(_ context.Context, id uuid.UUID, account, counterparty string) (*repository.BankTransaction, error) {
	if account == "" {
		return nil, categorization.ErrAccountRequired
	}
	t, ok := f.txns[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	t.SuggestedAccount = account
	t.SuggestedCounterparty = counterparty
	t.SuggestionConfidence = 100
	t.CategoryConfirmed = true
	t.Status = repository.StatusMatched
	return t, nil
}

func (f *fakeService) Recategorize(_ context.Context, id uuid.UUID) (*repository.BankTransaction, error) {
	t, ok := f.txns[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return t, nil
}

func (f *fakeService) SearchCounterparties(query string, _ int) ([]categorization.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	return []categorization.SearchResult{{Document: categorization.SearchDocument{Name: "Swiggy"}, Score: 1.2}}, nil
}

func (f *fakeService) AddRule(_ context.Context, rule *categorization.Rule) error {
	rule.ID = uuid.New()
	f.rules = append(f.rules, rule)
	return nil
}

func (f *fakeService) Reload(context.Context) error {
	f.reloaded++
	return nil
}

func setup(t *testing.T) (*fakeService, http.Handler, uuid.UUID) {
	t.Helper()
	id := uuid.New()
	svc := &fakeService{txns: map[uuid.UUID]*repository.BankTransaction{
		id: {ID: id, Description: "Swigy", Status: repository.StatusUnmatched},
	}}

	h := NewCategorizationHandler(svc, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r := chi.NewRouter()
	r.Route("/transactions", h.TransactionRoutes)
	r.Route("/categorization", h.Routes)
	return svc, r, id
}

func TestCategorizationHandler_SuggestCounterparties(t *testing.T) {
	_, router, id := setup(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/transactions/"+id.String()+"/counterparties", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got []categorization.CounterpartySuggestion
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.NotEmpty(t, got)
	assert.Equal(t, "Swiggy", got[0].Name)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/transactions/"+uuid.NewString()+"/counterparties", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCategorizationHandler_ConfirmCategory(t *testing.T) {
	svc, router, id := setup(t)

	t.Run("confirms", func(t *testing.T) {
		body := `{"account":"Meals - Office","counterparty":"Swiggy"}`
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/transactions/"+id.String()+"/category", strings.NewReader(body)))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp transactionResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "Matched", resp.Status)
		assert.True(t, resp.Confirmed)
		assert.True(t, svc.txns[id].CategoryConfirmed)
	})

	t.Run("account required", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/transactions/"+id.String()+"/category", strings.NewReader(`{}`)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("bad body", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/transactions/"+id.String()+"/category", strings.NewReader(`{`)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestCategorizationHandler_Rules(t *testing.T) {
	svc, router, _ := setup(t)

	body := `{"name":"food","priority":10,"patterns":["swiggy"],"account":"Meals"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/categorization/rules", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, svc.rules, 1)
	assert.Contains(t, rec.Body.String(), svc.rules[0].ID.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/categorization/rules", strings.NewReader(`{"name":"empty","account":"Meals"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/categorization/rules/reload", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1, svc.reloaded)
}

func TestCategorizationHandler_Search(t *testing.T) {
	_, router, _ := setup(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/categorization/counterparties?q=swig", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Swiggy")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/categorization/counterparties", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}
