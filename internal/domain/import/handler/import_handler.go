package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/FACorreiaa/statement-reconciler/internal/domain/import/decoder"
	"github.com/FACorreiaa/statement-reconciler/internal/domain/import/mapper"
	"github.com/FACorreiaa/statement-reconciler/internal/domain/import/repository"
	importservice "github.com/FACorreiaa/statement-reconciler/internal/domain/import/service"
	"github.com/FACorreiaa/statement-reconciler/internal/domain/import/sniffer"
	"github.com/FACorreiaa/statement-reconciler/pkg/storage"
)

const defaultMaxUpload = 20 << 20

// Service is the import surface the handler drives.
type Service interface {
	Analyze(ctx context.Context, req importservice.ImportRequest) (*importservice.Analysis, error)
	Import(ctx context.Context, req importservice.ImportRequest) (*importservice.ImportResult, error)
	ProposeProfile(ctx context.Context, req importservice.ImportRequest) (*mapper.Profile, error)
	CommitProfile(ctx context.Context, p *mapper.Profile) (*mapper.Profile, error)
	ListProfiles(ctx context.Context) ([]*mapper.Profile, error)
	GetBatch(ctx context.Context, id uuid.UUID) (*repository.ImportBatch, error)
	ListBatches(ctx context.Context, limit int) ([]*repository.ImportBatch, error)
	DeleteBatch(ctx context.Context, id uuid.UUID) (*repository.ImportBatch, error)
	BatchFile(ctx context.Context, id uuid.UUID) (io.ReadCloser, *storage.FileInfo, error)
}

// ImportHandler serves statement analysis, import and profile routes.
type ImportHandler struct {
	importSvc Service
	logger    *slog.Logger
	maxUpload int64
}

// NewImportHandler creates a new import handler
func NewImportHandler(importSvc Service, logger *slog.Logger, maxUpload int64) *ImportHandler {
	if maxUpload <= 0 {
		maxUpload = defaultMaxUpload
	}
	return &ImportHandler{
		importSvc: importSvc,
		logger:    logger,
		maxUpload: maxUpload,
	}
}

// Routes mounts the handler under /import.
func (h *ImportHandler) Routes(r chi.Router) {
	r.Post("/", h.importFile)
	r.Post("/analyze", h.analyze)
	r.Get("/profiles", h.listProfiles)
	r.Post("/profiles", h.commitProfile)
	r.Post("/profiles/propose", h.proposeProfile)
	r.Get("/batches", h.listBatches)
	r.Get("/batches/{id}", h.getBatch)
	r.Get("/batches/{id}/file", h.downloadBatchFile)
	r.Delete("/batches/{id}", h.deleteBatch)
}

type faultResponse struct {
	Row     int    `json:"row"`
	Field   string `json:"field"`
	Message string `json:"message"`
	Raw     string `json:"raw,omitempty"`
}

type transactionResponse struct {
	ID                    uuid.UUID `json:"id,omitempty"`
	Row                   int       `json:"row"`
	Date                  string    `json:"date"`
	Description           string    `json:"description"`
	Debit                 string    `json:"debit"`
	Credit                string    `json:"credit"`
	Balance               *string   `json:"balance,omitempty"`
	Currency              string    `json:"currency"`
	BankReference         string    `json:"bank_reference,omitempty"`
	PaymentMode           string    `json:"payment_mode,omitempty"`
	Status                string    `json:"status"`
	SuggestedAccount      string    `json:"suggested_account,omitempty"`
	SuggestedCounterparty string    `json:"suggested_counterparty,omitempty"`
	SuggestedTax          string    `json:"suggested_tax,omitempty"`
	Confidence            float64   `json:"confidence,omitempty"`
}

type dialectResponse struct {
	DecimalSeparator string  `json:"decimal_separator"`
	DayFirst         bool    `json:"day_first"`
	CurrencyHint     string  `json:"currency_hint,omitempty"`
	Confidence       float64 `json:"confidence"`
}

type analysisResponse struct {
	Filename      string                `json:"filename"`
	Format        string                `json:"format"`
	Encoding      string                `json:"encoding,omitempty"`
	Delimiter     string                `json:"delimiter,omitempty"`
	HeaderRow     int                   `json:"header_row"`
	HeaderFound   bool                  `json:"header_found"`
	Headers       []string              `json:"headers"`
	MappingSource string                `json:"mapping_source"`
	Mapping       map[string]int        `json:"mapping"`
	Logic         string                `json:"debit_credit_logic"`
	Confidence    float64               `json:"confidence"`
	DateFormat    string                `json:"date_format,omitempty"`
	Dialect       *dialectResponse      `json:"dialect,omitempty"`
	TotalRows     int                   `json:"total_rows"`
	ValidRows     int                   `json:"valid_rows"`
	SkippedRows   int                   `json:"skipped_rows"`
	Duplicates    int                   `json:"duplicates"`
	Matched       int                   `json:"matched"`
	Faults        []faultResponse       `json:"faults"`
	Warnings      []string              `json:"warnings,omitempty"`
	Transactions  []transactionResponse `json:"transactions"`
	Profile       *profileDTO           `json:"proposed_profile,omitempty"`
	ProposalError string                `json:"proposal_error,omitempty"`
}

type batchResponse struct {
	ID           uuid.UUID  `json:"id"`
	Filename     string     `json:"filename"`
	BankAccount  string     `json:"bank_account"`
	Currency     string     `json:"currency"`
	ProfileID    *uuid.UUID `json:"profile_id,omitempty"`
	TotalRows    int        `json:"total_rows"`
	Imported     int        `json:"imported"`
	Duplicates   int        `json:"duplicates"`
	Faults       int        `json:"faults"`
	Status       string     `json:"status"`
	StoredFileID string     `json:"stored_file_id,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

type importResponse struct {
	Batch      batchResponse         `json:"batch"`
	Profile    *profileDTO           `json:"profile,omitempty"`
	Inserted   []transactionResponse `json:"inserted"`
	Duplicates int                   `json:"duplicates"`
	Faults     []faultResponse       `json:"faults"`
}

type profileDTO struct {
	ID               uuid.UUID         `json:"id,omitempty"`
	BankName         string            `json:"bank_name"`
	HeaderSignature  string            `json:"header_signature"`
	HeaderRowOffset  int               `json:"header_row_offset"`
	DateFormat       string            `json:"date_format"`
	DebitCreditLogic string            `json:"debit_credit_logic"`
	ColumnMapping    map[string]string `json:"column_mapping"`
	CreatedAt        *time.Time        `json:"created_at,omitempty"`
}

func (h *ImportHandler) analyze(w http.ResponseWriter, r *http.Request) {
	req, err := h.readUpload(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	a, err := h.importSvc.Analyze(r.Context(), req)
	if err != nil {
		h.writeError(w, "failed to analyze statement", err)
		return
	}

	writeJSON(w, http.StatusOK, toAnalysisResponse(a))
}

func (h *ImportHandler) importFile(w http.ResponseWriter, r *http.Request) {
	req, err := h.readUpload(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req.LearnProfile, _ = strconv.ParseBool(r.FormValue("learn_profile"))

	res, err := h.importSvc.Import(r.Context(), req)
	if err != nil {
		h.writeError(w, "failed to import statement", err)
		return
	}

	resp := importResponse{
		Batch:      toBatchResponse(res.Batch),
		Inserted:   toTransactionList(res.Inserted),
		Duplicates: len(res.Duplicates),
		Faults:     toFaults(res.Analysis),
	}
	if res.Profile != nil {
		resp.Profile = toProfileDTO(res.Profile)
	}

	writeJSON(w, http.StatusCreated, resp)
}

func (h *ImportHandler) proposeProfile(w http.ResponseWriter, r *http.Request) {
	req, err := h.readUpload(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	p, err := h.importSvc.ProposeProfile(r.Context(), req)
	if err != nil {
		h.writeError(w, "failed to propose profile", err)
		return
	}

	writeJSON(w, http.StatusOK, toProfileDTO(p))
}

func (h *ImportHandler) commitProfile(w http.ResponseWriter, r *http.Request) {
	var dto profileDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	p, err := fromProfileDTO(dto)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	stored, err := h.importSvc.CommitProfile(r.Context(), p)
	if err != nil {
		h.writeError(w, "failed to commit profile", err)
		return
	}

	writeJSON(w, http.StatusCreated, toProfileDTO(stored))
}

func (h *ImportHandler) listProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.importSvc.ListProfiles(r.Context())
	if err != nil {
		h.writeError(w, "failed to list profiles", err)
		return
	}

	out := make([]*profileDTO, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, toProfileDTO(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *ImportHandler) listBatches(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}

	batches, err := h.importSvc.ListBatches(r.Context(), limit)
	if err != nil {
		h.writeError(w, "failed to list batches", err)
		return
	}

	out := make([]batchResponse, 0, len(batches))
	for _, b := range batches {
		out = append(out, toBatchResponse(b))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *ImportHandler) getBatch(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	batch, err := h.importSvc.GetBatch(r.Context(), id)
	if err != nil {
		h.writeError(w, "failed to get batch", err)
		return
	}
	writeJSON(w, http.StatusOK, toBatchResponse(batch))
}

func (h *ImportHandler) downloadBatchFile(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	rc, info, err := h.importSvc.BatchFile(r.Context(), id)
	if err != nil {
		h.writeError(w, "failed to open batch file", err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", info.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": info.Name}))
	if info.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("failed to stream batch file",
			slog.String("batch_id", id.String()),
			slog.Any("error", err))
	}
}

func (h *ImportHandler) deleteBatch(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	if _, err := h.importSvc.DeleteBatch(r.Context(), id); err != nil {
		h.writeError(w, "failed to delete batch", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// readUpload parses the multipart form: file, bank_account, currency and
// bank_name.
func (h *ImportHandler) readUpload(w http.ResponseWriter, r *http.Request) (importservice.ImportRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		return importservice.ImportRequest{}, fmt.Errorf("failed to parse form: %w", err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return importservice.ImportRequest{}, errors.New("file field is required")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return importservice.ImportRequest{}, fmt.Errorf("failed to read file: %w", err)
	}

	return importservice.ImportRequest{
		Filename:    header.Filename,
		Data:        data,
		BankAccount: r.FormValue("bank_account"),
		Currency:    r.FormValue("currency"),
		BankName:    r.FormValue("bank_name"),
	}, nil
}

func (h *ImportHandler) writeError(w http.ResponseWriter, msg string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(msg, slog.Any("error", err))
		http.Error(w, "internal error", status)
		return
	}
	http.Error(w, err.Error(), status)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, repository.ErrNotFound),
		errors.Is(err, mapper.ErrProfileNotFound),
		errors.Is(err, importservice.ErrNoStoredFile):
		return http.StatusNotFound
	case errors.Is(err, importservice.ErrBankAccountMissing):
		return http.StatusBadRequest
	case errors.Is(err, decoder.ErrNoData),
		errors.Is(err, decoder.ErrUnsupportedFormat),
		errors.Is(err, sniffer.ErrEmptyFile),
		errors.Is(err, sniffer.ErrNoHeadersFound),
		errors.Is(err, importservice.ErrUnmappable),
		errors.Is(err, importservice.ErrNoProposal):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func toAnalysisResponse(a *importservice.Analysis) analysisResponse {
	resp := analysisResponse{
		Filename:      a.Filename,
		Format:        string(a.Format),
		Encoding:      a.Encoding,
		HeaderRow:     a.HeaderRow,
		HeaderFound:   a.HeaderFound,
		Headers:       a.Headers,
		DateFormat:    a.DateFormat,
		TotalRows:     a.TotalRows,
		ValidRows:     a.ValidRows,
		SkippedRows:   a.SkippedRows,
		Duplicates:    a.Duplicates,
		Matched:       a.Matched,
		Faults:        toFaults(a),
		Transactions:  toTransactionList(a.Candidates),
		ProposalError: a.ProposalError,
	}
	if a.Delimiter != 0 {
		resp.Delimiter = string(a.Delimiter)
	}
	if a.Resolution != nil {
		resp.MappingSource = string(a.Resolution.Source)
		resp.Logic = string(a.Resolution.Logic)
		resp.Confidence = a.Resolution.Confidence
		resp.Mapping = make(map[string]int, len(a.Resolution.Mapping))
		for f, idx := range a.Resolution.Mapping {
			resp.Mapping[string(f)] = idx
		}
	}
	if a.Dialect != nil {
		resp.Dialect = &dialectResponse{
			DecimalSeparator: string(a.Dialect.DecimalSeparator),
			DayFirst:         a.Dialect.DayFirst,
			CurrencyHint:     a.Dialect.CurrencyHint,
			Confidence:       a.Dialect.Confidence,
		}
	}
	for _, warn := range a.Warnings {
		resp.Warnings = append(resp.Warnings, warn.String())
	}
	if a.ProposedProfile != nil {
		resp.Profile = toProfileDTO(a.ProposedProfile)
	}
	return resp
}

func toFaults(a *importservice.Analysis) []faultResponse {
	if a == nil {
		return []faultResponse{}
	}
	out := make([]faultResponse, 0, len(a.Faults))
	for _, f := range a.Faults {
		out = append(out, faultResponse{
			Row:     f.Row,
			Field:   string(f.Field),
			Message: f.Message,
			Raw:     f.Raw,
		})
	}
	return out
}

func toTransactionList(txns []*repository.BankTransaction) []transactionResponse {
	out := make([]transactionResponse, 0, len(txns))
	for _, t := range txns {
		out = append(out, toTransactionResponse(t))
	}
	return out
}

func toTransactionResponse(t *repository.BankTransaction) transactionResponse {
	resp := transactionResponse{
		ID:                    t.ID,
		Row:                   t.RowNumber,
		Date:                  t.Date.Format(time.DateOnly),
		Description:           t.Description,
		Debit:                 t.Debit.StringFixed(2),
		Credit:                t.Credit.StringFixed(2),
		Currency:              t.Currency,
		BankReference:         t.BankReference,
		PaymentMode:           t.PaymentMode,
		Status:                string(t.Status),
		SuggestedAccount:      t.SuggestedAccount,
		SuggestedCounterparty: t.SuggestedCounterparty,
		SuggestedTax:          t.SuggestedTax,
		Confidence:            t.SuggestionConfidence,
	}
	if t.Balance.Valid {
		b := t.Balance.Decimal.StringFixed(2)
		resp.Balance = &b
	}
	return resp
}

func toBatchResponse(b *repository.ImportBatch) batchResponse {
	return batchResponse{
		ID:           b.ID,
		Filename:     b.Filename,
		BankAccount:  b.BankAccount,
		Currency:     b.Currency,
		ProfileID:    b.ProfileID,
		TotalRows:    b.TotalRows,
		Imported:     b.Imported,
		Duplicates:   b.Duplicates,
		Faults:       b.Faults,
		Status:       string(b.Status),
		StoredFileID: b.StoredFileID,
		StartedAt:    b.StartedAt,
		CompletedAt:  b.CompletedAt,
	}
}

func toProfileDTO(p *mapper.Profile) *profileDTO {
	dto := &profileDTO{
		ID:               p.ID,
		BankName:         p.BankName,
		HeaderSignature:  p.HeaderSignature,
		HeaderRowOffset:  p.HeaderRowOffset,
		DateFormat:       p.DateFormat,
		DebitCreditLogic: string(p.DebitCreditLogic),
		ColumnMapping:    make(map[string]string, len(p.ColumnMapping)),
	}
	for f, header := range p.ColumnMapping {
		dto.ColumnMapping[string(f)] = header
	}
	if !p.CreatedAt.IsZero() {
		created := p.CreatedAt
		dto.CreatedAt = &created
	}
	return dto
}

func fromProfileDTO(dto profileDTO) (*mapper.Profile, error) {
	if dto.HeaderSignature == "" {
		return nil, errors.New("header_signature is required")
	}

	logic := sniffer.DebitCreditLogic(dto.DebitCreditLogic)
	switch logic {
	case sniffer.LogicSeparateColumns, sniffer.LogicSignedAmount, sniffer.LogicIndicatorColumn:
	case "":
		logic = sniffer.LogicSeparateColumns
	default:
		return nil, fmt.Errorf("unknown debit_credit_logic %q", dto.DebitCreditLogic)
	}

	cols := make(map[sniffer.Field]string, len(dto.ColumnMapping))
	for f, header := range dto.ColumnMapping {
		cols[sniffer.Field(f)] = header
	}
	if _, ok := cols[sniffer.FieldDate]; !ok {
		return nil, errors.New("column_mapping needs a date column")
	}

	id := dto.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	bank := dto.BankName
	if bank == "" {
		bank = "Unknown"
	}

	return &mapper.Profile{
		ID:               id,
		BankName:         bank,
		HeaderSignature:  dto.HeaderSignature,
		HeaderRowOffset:  dto.HeaderRowOffset,
		DateFormat:       dto.DateFormat,
		DebitCreditLogic: logic,
		ColumnMapping:    cols,
	}, nil
}
