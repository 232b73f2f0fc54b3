package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
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

	"github.com/FACorreiaa/statement-reconciler/internal/domain/import/mapper"
	"github.com/FACorreiaa/statement-reconciler/internal/domain/import/parser"
	"github.com/FACorreiaa/statement-reconciler/internal/domain/import/repository"
	importservice "github.com/FACorreiaa/statement-reconciler/internal/domain/import/service"
	"github.com/FACorreiaa/statement-reconciler/internal/domain/import/sniffer"
	"github.com/FACorreiaa/statement-reconciler/pkg/storage"
)

type fakeService struct {
	lastReq   importservice.ImportRequest
	analyzeFn func(req importservice.ImportRequest) (*importservice.Analysis, error)
	committed *mapper.Profile
	batches   map[uuid.UUID]*repository.ImportBatch
	files     map[uuid.UUID]string
}

func (f *fakeService) Analyze(_ context.Context, req importservice.ImportRequest) (*importservice.Analysis, error) {
	f.lastReq = req
	return f.analyzeFn(req)
}

func (f *fakeService) Import(_ context.Context, req importservice.ImportRequest) (*importservice.ImportResult, error) {
	f.lastReq = req
	a, err := f.analyzeFn(req)
	if err != nil {
		return nil, err
	}
	batch := &repository.ImportBatch{
		ID:          uuid.New(),
		Filename:    req.Filename,
		BankAccount: req.BankAccount,
		Imported:    len(a.Candidates),
		Status:      repository.BatchCompleted,
		StartedAt:   time.Now(),
	}
	return &importservice.ImportResult{Batch: batch, Analysis: a, Inserted: a.Candidates}, nil
}

func (f *fakeService) ProposeProfile(_ context.Context, req importservice.ImportRequest) (*mapper.Profile, error) {
	a, err := f.analyzeFn(req)
	if err != nil {
		return nil, err
	}
	if a.ProposedProfile == nil {
		return nil, importservice.ErrNoProposal
	}
	return a.ProposedProfile, nil
}

func (f *fakeService) CommitProfile(_ context.Context, p *mapper.Profile) (*mapper.Profile, error) {
	f.committed = p
	stored := *p
	stored.CreatedAt = time.Now()
	return &stored, nil
}

func (f *fakeService) ListProfiles(context.Context) ([]*mapper.Profile, error) {
	if f.committed == nil {
		return nil, nil
	}
	return []*mapper.Profile{f.committed}, nil
}

func (f *fakeService) GetBatch(_ context.Context, id uuid.UUID) (*repository.ImportBatch, error) {
	if b, ok := f.batches[id]; ok {
		return b, nil
	}
	return nil, repository.ErrBatchNotFound
}

func (f *fakeService) ListBatches(context.Context, int) ([]*repository.ImportBatch, error) {
	out := make([]*repository.ImportBatch, 0, len(f.batches))
	for _, b := range f.batches {
		out = append(out, b)
	}
	return out, nil
}

func (f *fakeService) DeleteBatch(ctx context.Context, id uuid.UUID) (*repository.ImportBatch, error) {
	b, err := f.GetBatch(ctx, id)
	if err != nil {
		return nil, err
	}
	delete(f.batches, id)
	return b, nil
}

func (f *fakeService) BatchFile(ctx context.Context, id uuid.UUID) (io.ReadCloser, *storage.FileInfo, error) {
	b, err := f.GetBatch(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	content, ok := f.files[id]
	if !ok {
		return nil, nil, importservice.ErrNoStoredFile
	}
	info := &storage.FileInfo{ID: uuid.New(), BatchID: id, Name: b.Filename, Size: int64(len(content)), ContentType: "text/csv"}
	return io.NopCloser(strings.NewReader(content)), info, nil
}

func sampleAnalysis(req importservice.ImportRequest) (*importservice.Analysis, error) {
	if req.BankAccount == "" {
		return nil, importservice.ErrBankAccountMissing
	}
	return &importservice.Analysis{
		Filename:    req.Filename,
		Format:      "csv",
		Delimiter:   ',',
		HeaderFound: true,
		Headers:     []string{"Date", "Narration", "Withdrawal", "Deposit"},
		Resolution: &mapper.Resolution{
			Source:     mapper.SourceAutoDetect,
			Logic:      sniffer.LogicSeparateColumns,
			Confidence: 0.8,
			Mapping: sniffer.ColumnMapping{
				sniffer.FieldDate:        0,
				sniffer.FieldDescription: 1,
				sniffer.FieldDebit:       2,
				sniffer.FieldCredit:      3,
			},
		},
		Candidates: []*repository.BankTransaction{{
			RowNumber:   2,
			Date:        time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
			Description: "UPI Payment to Merchant",
			Debit:       decimal.NewFromInt(100),
			Currency:    "INR",
			Status:      repository.StatusUnmatched,
			PaymentMode: "UPI",
		}},
		Faults:    []parser.FieldError{{Row: 5, Field: sniffer.FieldDate, Message: "invalid date", Raw: "31/31/2024"}},
		TotalRows: 2,
		ValidRows: 1,
		ProposedProfile: &mapper.Profile{
			BankName:         "HDFC",
			HeaderSignature:  "date|narration|withdrawal|deposit",
			DebitCreditLogic: sniffer.LogicSeparateColumns,
			ColumnMapping:    map[sniffer.Field]string{sniffer.FieldDate: "Date"},
		},
	}, nil
}

func newTestRouter(svc Service) http.Handler {
	h := NewImportHandler(svc, slog.New(slog.NewTextHandler(io.Discard, nil)), 1<<20)
	r := chi.NewRouter()
	r.Route("/import", h.Routes)
	return r
}

func multipartRequest(t *testing.T, path string, fields map[string]string, filename, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = io.WriteString(fw, content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestImportHandler_Analyze(t *testing.T) {
	svc := &fakeService{analyzeFn: sampleAnalysis}
	router := newTestRouter(svc)

	req := multipartRequest(t, "/import/analyze",
		map[string]string{"bank_account": "HDFC Current", "currency": "INR"},
		"jan.csv", "Date,Narration,Withdrawal,Deposit\n")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "jan.csv", svc.lastReq.Filename)
	assert.Equal(t, "HDFC Current", svc.lastReq.BankAccount)

	var resp analysisResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "auto", resp.MappingSource)
	assert.Equal(t, 1, resp.Mapping["description"])
	assert.Equal(t, ",", resp.Delimiter)
	require.Len(t, resp.Transactions, 1)
	assert.Equal(t, "100.00", resp.Transactions[0].Debit)
	assert.Equal(t, "2024-01-15", resp.Transactions[0].Date)
	require.Len(t, resp.Faults, 1)
	assert.Equal(t, "date", resp.Faults[0].Field)
	require.NotNil(t, resp.Profile)
	assert.Equal(t, "HDFC", resp.Profile.BankName)
}

func TestImportHandler_UploadErrors(t *testing.T) {
	router := newTestRouter(&fakeService{analyzeFn: sampleAnalysis})

	tests := []struct {
		name     string
		fields   map[string]string
		filename string
		want     int
	}{
		{"missing file", map[string]string{"bank_account": "HDFC"}, "", http.StatusBadRequest},
		{"missing bank account", nil, "jan.csv", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := multipartRequest(t, "/import/analyze", tt.fields, tt.filename, "a,b\n")
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestImportHandler_StatusMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: headers [a b]", importservice.ErrUnmappable), http.StatusUnprocessableEntity},
		{fmt.Errorf("failed to locate header: %w", sniffer.ErrNoHeadersFound), http.StatusUnprocessableEntity},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		svc := &fakeService{analyzeFn: func(importservice.ImportRequest) (*importservice.Analysis, error) { return nil, tt.err }}
		req := multipartRequest(t, "/import/analyze", map[string]string{"bank_account": "HDFC"}, "x.csv", "x")
		rec := httptest.NewRecorder()
		newTestRouter(svc).ServeHTTP(rec, req)

		assert.Equal(t, tt.want, rec.Code, tt.err.Error())
		if tt.want == http.StatusInternalServerError {
			assert.NotContains(t, rec.Body.String(), "connection reset")
		}
	}
}

func TestImportHandler_Import(t *testing.T) {
	svc := &fakeService{analyzeFn: sampleAnalysis}
	router := newTestRouter(svc)

	req := multipartRequest(t, "/import/",
		map[string]string{"bank_account": "HDFC Current", "learn_profile": "true"},
		"jan.csv", "Date,Narration\n")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.True(t, svc.lastReq.LearnProfile)

	var resp importResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "completed", resp.Batch.Status)
	assert.Equal(t, 1, resp.Batch.Imported)
	assert.Len(t, resp.Inserted, 1)
	assert.Len(t, resp.Faults, 1)
}

func TestImportHandler_Profiles(t *testing.T) {
	svc := &fakeService{analyzeFn: sampleAnalysis}
	router := newTestRouter(svc)

	t.Run("propose", func(t *testing.T) {
		req := multipartRequest(t, "/import/profiles/propose", map[string]string{"bank_account": "HDFC"}, "jan.csv", "x")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "date|narration|withdrawal|deposit")
	})

	t.Run("commit", func(t *testing.T) {
		body := `{"bank_name":"HDFC","header_signature":"date|narration|withdrawal|deposit",
			"date_format":"02/01/2006","debit_credit_logic":"SeparateColumns",
			"column_mapping":{"date":"Date","debit":"Withdrawal","credit":"Deposit"}}`
		req := httptest.NewRequest(http.MethodPost, "/import/profiles", strings.NewReader(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		require.NotNil(t, svc.committed)
		assert.NotEqual(t, uuid.Nil, svc.committed.ID)
		assert.Equal(t, "Withdrawal", svc.committed.ColumnMapping[sniffer.FieldDebit])
	})

	t.Run("commit rejects unknown logic", func(t *testing.T) {
		body := `{"header_signature":"a|b","debit_credit_logic":"Sideways","column_mapping":{"date":"A"}}`
		req := httptest.NewRequest(http.MethodPost, "/import/profiles", strings.NewReader(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("list", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/import/profiles", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var out []profileDTO
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
		require.Len(t, out, 1)
		assert.Equal(t, "HDFC", out[0].BankName)
	})
}

func TestImportHandler_Batches(t *testing.T) {
	id := uuid.New()
	svc := &fakeService{
		analyzeFn: sampleAnalysis,
		batches: map[uuid.UUID]*repository.ImportBatch{
			id: {ID: id, Filename: "jan.csv", Status: repository.BatchCompleted, Imported: 3},
		},
	}
	router := newTestRouter(svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/import/batches/"+id.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "jan.csv")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/import/batches/"+id.String(), nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/import/batches/"+id.String(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/import/batches/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImportHandler_BatchFile(t *testing.T) {
	archived, bare := uuid.New(), uuid.New()
	svc := &fakeService{
		analyzeFn: sampleAnalysis,
		batches: map[uuid.UUID]*repository.ImportBatch{
			archived: {ID: archived, Filename: "jan 2024.csv"},
			bare:     {ID: bare, Filename: "feb.csv"},
		},
		files: map[uuid.UUID]string{archived: "Date,Description,Amount\n"},
	}
	router := newTestRouter(svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/import/batches/"+archived.String()+"/file", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Date,Description,Amount\n", rec.Body.String())
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="jan 2024.csv"`, rec.Header().Get("Content-Disposition"))

	tests := []struct {
		name string
		path string
		want int
	}{
		{"no archive", "/import/batches/" + bare.String() + "/file", http.StatusNotFound},
		{"unknown batch", "/import/batches/" + uuid.NewString() + "/file", http.StatusNotFound},
		{"bad id", "/import/batches/42/file", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
