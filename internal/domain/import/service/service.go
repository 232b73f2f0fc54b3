// Package service provides the import orchestration logic.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/statement-reconciler/internal/domain/categorization"
	"github.com/FACorreiaa/statement-reconciler/internal/domain/import/decoder"
	"github.com/FACorreiaa/statement-reconciler/internal/domain/import/dedupe"
	"github.com/FACorreiaa/statement-reconciler/internal/domain/import/mapper"
	"github.com/FACorreiaa/statement-reconciler/internal/domain/import/normalizer"
	"github.com/FACorreiaa/statement-reconciler/internal/domain/import/parser"
	"github.com/FACorreiaa/statement-reconciler/internal/domain/import/repository"
	"github.com/FACorreiaa/statement-reconciler/internal/domain/import/sniffer"
	"github.com/FACorreiaa/statement-reconciler/pkg/metrics"
	"github.com/FACorreiaa/statement-reconciler/pkg/storage"
)

var (
	ErrUnmappable         = errors.New("statement has no date or amount column")
	ErrBankAccountMissing = errors.New("bank account required")
	ErrNoProposal         = errors.New("no profile to propose for this layout")
	ErrNoStoredFile       = errors.New("no archived statement for this batch")
)

// dialectSampleRows is how many body rows feed the regional dialect probe.
const dialectSampleRows = 50

// Categorizer suggests ledger hints for descriptions.
type Categorizer interface {
	CategorizeBatch(ctx context.Context, descriptions []string) []categorization.Result
}

// Config tunes the import pipeline.
type Config struct {
	HeaderScanRows     int
	Workers            int
	DefaultCurrency    string
	PreferReference    bool
	ProfileSimilarity  float64
	ProposalConfidence float64
}

// ImportRequest is one statement file to analyze or import.
type ImportRequest struct {
	Filename    string
	Data        []byte
	BankAccount string
	Currency    string
	BankName    string
	// LearnProfile commits a proposed profile with the batch.
	LearnProfile bool
}

// Analysis is everything known about a statement before it is persisted.
type Analysis struct {
	Filename    string
	Format      decoder.Format
	Encoding    string
	Delimiter   rune
	HeaderRow   int
	HeaderFound bool
	Headers     []string
	Resolution  *mapper.Resolution
	Dialect     *sniffer.RegionalDialect
	DateFormat  string

	Candidates []*repository.BankTransaction
	Faults     []parser.FieldError
	Warnings   []decoder.Warning

	TotalRows   int
	ValidRows   int
	SkippedRows int
	// Duplicates counts candidates already stored or repeated in the file.
	Duplicates int
	Matched    int

	ProposedProfile *mapper.Profile
	// ProposalError explains why no profile was proposed.
	ProposalError string
}

// ImportResult reports a persisted import.
type ImportResult struct {
	Batch      *repository.ImportBatch
	Profile    *mapper.Profile
	Analysis   *Analysis
	Inserted   []*repository.BankTransaction
	Duplicates []*repository.BankTransaction
}

// ImportService orchestrates file analysis and import operations
type ImportService struct {
	repo        repository.ImportRepository
	mapper      *mapper.Mapper
	categorizer Categorizer
	storage     storage.Storage
	modes       *normalizer.PaymentModeDetector
	dedupe      *dedupe.Engine
	metrics     *metrics.Metrics
	tracer      trace.Tracer
	logger      *slog.Logger
	cfg         Config
}

// Option configures an ImportService.
type Option func(*ImportService)

// WithCategorizer adds rule-based suggestions to imported lines.
func WithCategorizer(c Categorizer) Option { return func(s *ImportService) { s.categorizer = c } }

// WithStorage archives uploaded files per batch.
func WithStorage(st storage.Storage) Option { return func(s *ImportService) { s.storage = st } }

func WithMetrics(m *metrics.Metrics) Option { return func(s *ImportService) { s.metrics = m } }

// NewImportService creates a new import service. A nil repo allows Analyze
// only.
func NewImportService(repo repository.ImportRepository, cfg Config, logger *slog.Logger, opts ...Option) *ImportService {
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "INR"
	}

	var store mapper.ProfileStore
	if repo != nil {
		store = repo
	}

	s := &ImportService{
		repo: repo,
		mapper: mapper.New(store, logger,
			mapper.WithSimilarity(cfg.ProfileSimilarity),
			mapper.WithProposalConfidence(cfg.ProposalConfidence)),
		modes:  normalizer.NewPaymentModeDetector(),
		dedupe: &dedupe.Engine{PreferReference: cfg.PreferReference},
		tracer: otel.Tracer("statement-reconciler/import"),
		logger: logger,
		cfg:    cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Analyze runs the whole pipeline without persisting anything. When a
// repository is configured, candidates already stored are counted as
// duplicates.
func (s *ImportService) Analyze(ctx context.Context, req ImportRequest) (*Analysis, error) {
	ctx, span := s.tracer.Start(ctx, "import.Analyze",
		trace.WithAttributes(attribute.String("filename", req.Filename)))
	defer span.End()

	a, err := s.analyze(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "analyze failed")
		return nil, err
	}

	if s.repo != nil && len(a.Candidates) > 0 {
		keys := make([]string, len(a.Candidates))
		for i, t := range a.Candidates {
			keys[i] = t.DedupeKey
		}
		existing, err := s.repo.ExistingDedupeKeys(ctx, keys)
		if err != nil {
			return nil, fmt.Errorf("failed to check existing transactions: %w", err)
		}
		a.Duplicates = countDuplicates(a.Candidates, existing)
	} else {
		a.Duplicates = countDuplicates(a.Candidates, nil)
	}
	return a, nil
}

func countDuplicates(txns []*repository.BankTransaction, existing map[string]bool) int {
	seen := make(map[string]bool, len(txns))
	dupes := 0
	for _, t := range txns {
		if existing[t.DedupeKey] || seen[t.DedupeKey] {
			dupes++
			continue
		}
		seen[t.DedupeKey] = true
	}
	return dupes
}

func (s *ImportService) analyze(ctx context.Context, req ImportRequest) (*Analysis, error) {
	if req.BankAccount == "" {
		return nil, ErrBankAccountMissing
	}

	decoded, err := decoder.Decode(req.Filename, req.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode file: %w", err)
	}

	header, err := sniffer.LocateHeader(decoded.Rows, s.cfg.HeaderScanRows)
	if err != nil {
		return nil, fmt.Errorf("failed to locate header: %w", err)
	}
	rows, fitWarnings := decoder.Fit(decoded.Rows, header.Row)

	res, err := s.mapper.Resolve(ctx, header.Headers, header.Row)
	if err != nil {
		return nil, err
	}
	s.metrics.ProfileLookup(string(res.Source))
	if !res.Mapping.Has(sniffer.FieldDate) || !res.Mapping.HasAmountColumn() {
		return nil, fmt.Errorf("%w: headers %v", ErrUnmappable, header.Headers)
	}

	sample := rows[header.Row+1:]
	if len(sample) > dialectSampleRows {
		sample = sample[:dialectSampleRows]
	}
	amountCols := []int{
		res.Mapping.Col(sniffer.FieldDebit),
		res.Mapping.Col(sniffer.FieldCredit),
		res.Mapping.Col(sniffer.FieldAmount),
	}
	dateCol := res.Mapping.Col(sniffer.FieldDate)
	dialect := sniffer.ProbeDialect(sample, amountCols, dateCol)

	dateFormat := res.DateFormat
	if dateFormat == "" {
		dates := make([]string, 0, len(sample))
		for _, row := range sample {
			if dateCol < len(row) {
				dates = append(dates, row[dateCol])
			}
		}
		dateFormat = parser.DetectDateFormat(dates, dialect.DayFirst)
	}

	coercer := parser.NewConcurrentCoercer(parser.Config{
		Mapping:    res.Mapping,
		Logic:      res.Logic,
		DateFormat: dateFormat,
		European:   dialect.IsEuropeanFormat,
		DayFirst:   dialect.DayFirst,
	}, s.cfg.Workers)
	parsed, err := coercer.Parse(ctx, rows, header.Row)
	if err != nil {
		return nil, fmt.Errorf("failed to parse statement: %w", err)
	}

	a := &Analysis{
		Filename:    req.Filename,
		Format:      decoded.Format,
		Encoding:    decoded.Encoding,
		Delimiter:   decoded.Delimiter,
		HeaderRow:   header.Row,
		HeaderFound: header.Found,
		Headers:     header.Headers,
		Resolution:  res,
		Dialect:     dialect,
		DateFormat:  dateFormat,
		Faults:      parsed.Faults,
		Warnings:    append(decoded.Warnings, fitWarnings...),
		TotalRows:   parsed.TotalRows,
		ValidRows:   parsed.ValidRows,
		SkippedRows: parsed.SkippedRows,
	}

	currency := req.Currency
	if currency == "" {
		currency = dialect.CurrencyHint
	}
	if currency == "" {
		currency = s.cfg.DefaultCurrency
	}
	a.Candidates = s.candidates(parsed.Lines, req.BankAccount, currency)
	a.Matched = s.categorize(ctx, a.Candidates)

	if res.Source == mapper.SourceAutoDetect {
		p, err := s.mapper.Propose(res, mapper.ProposeOptions{BankName: req.BankName, DateFormat: dateFormat})
		if err != nil {
			a.ProposalError = err.Error()
		} else {
			a.ProposedProfile = p
		}
	}
	return a, nil
}

func (s *ImportService) candidates(lines []*parser.StatementLine, bankAccount, currency string) []*repository.BankTransaction {
	out := make([]*repository.BankTransaction, 0, len(lines))
	for _, line := range lines {
		if !line.Valid() {
			continue
		}
		key, _ := s.dedupe.Key(dedupe.Input{
			Date:        line.Date,
			Amount:      line.Amount(),
			Description: line.Description,
			BankAccount: bankAccount,
			Reference:   line.Reference,
		})
		out = append(out, &repository.BankTransaction{
			ID:            uuid.New(),
			RowNumber:     line.Row,
			Date:          line.Date,
			Description:   line.Description,
			Debit:         line.Debit,
			Credit:        line.Credit,
			Balance:       line.Balance,
			Currency:      currency,
			BankReference: line.Reference,
			BankAccount:   bankAccount,
			PaymentMode:   string(s.modes.Detect(line.Description)),
			DedupeKey:     key,
			Status:        repository.StatusUnmatched,
		})
	}
	return out
}

func (s *ImportService) categorize(ctx context.Context, txns []*repository.BankTransaction) int {
	if s.categorizer == nil || len(txns) == 0 {
		return 0
	}
	descriptions := make([]string, len(txns))
	for i, t := range txns {
		descriptions[i] = t.Description
	}

	matched := 0
	for i, r := range s.categorizer.CategorizeBatch(ctx, descriptions) {
		if !r.Matched || i >= len(txns) {
			continue
		}
		t := txns[i]
		t.SuggestedAccount = r.Account
		t.SuggestedCounterparty = r.Counterparty
		t.SuggestedTax = r.Tax
		t.SuggestionConfidence = r.Confidence
		t.SuggestionRule = r.Rule
		if r.PaymentMode != "" {
			t.PaymentMode = r.PaymentMode
		}
		if t.SuggestedAccount != "" || t.SuggestedCounterparty != "" {
			t.Status = repository.StatusMatched
			matched++
		}
	}
	return matched
}

// Import analyzes the file and persists the batch, its new transactions and,
// when requested, the learned profile in one database transaction. Lines
// already imported are skipped as duplicates.
func (s *ImportService) Import(ctx context.Context, req ImportRequest) (*ImportResult, error) {
	if s.repo == nil {
		return nil, errors.New("no import repository configured")
	}
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "import.Import",
		trace.WithAttributes(
			attribute.String("filename", req.Filename),
			attribute.String("bank_account", req.BankAccount)))
	defer span.End()

	a, err := s.analyze(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "analyze failed")
		return nil, err
	}

	batch := &repository.ImportBatch{
		ID:          uuid.New(),
		Filename:    req.Filename,
		BankAccount: req.BankAccount,
		TotalRows:   a.TotalRows,
		Faults:      len(a.Faults),
		Status:      repository.BatchProcessing,
	}
	if len(a.Candidates) > 0 {
		batch.Currency = a.Candidates[0].Currency
	} else {
		batch.Currency = s.cfg.DefaultCurrency
	}
	if a.Resolution.Profile != nil {
		batch.ProfileID = &a.Resolution.Profile.ID
	}

	if s.storage != nil {
		info, err := s.storage.Upload(ctx, batch.ID, req.Filename, contentType(req.Filename), bytes.NewReader(req.Data))
		if err != nil {
			return nil, fmt.Errorf("failed to archive statement: %w", err)
		}
		batch.StoredFileID = info.ID.String()
	}

	set := &repository.ImportSet{Batch: batch, Transactions: a.Candidates}
	if req.LearnProfile && a.ProposedProfile != nil {
		set.Profile = a.ProposedProfile
	}

	saved, err := s.repo.SaveImport(ctx, set)
	if err != nil {
		if s.storage != nil {
			if delErr := s.storage.DeleteBatch(ctx, batch.ID); delErr != nil {
				s.logger.Warn("failed to remove archived statement", slog.Any("error", delErr))
			}
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "save failed")
		return nil, fmt.Errorf("failed to save import: %w", err)
	}

	s.metrics.AddImported(len(saved.Inserted))
	s.metrics.AddDuplicates(len(saved.Duplicates))
	for _, f := range a.Faults {
		s.metrics.RowFault(string(f.Field))
	}
	s.metrics.ObserveImport(time.Since(start).Seconds())

	if len(a.Faults) > 0 {
		s.logger.Warn("statement rows with faults",
			slog.String("batch_id", batch.ID.String()),
			slog.Int("faults", len(a.Faults)),
			slog.Any("fields", faultFields(a.Faults)))
	}
	s.logger.Info("statement imported",
		slog.String("batch_id", batch.ID.String()),
		slog.String("filename", req.Filename),
		slog.String("mapping_source", string(a.Resolution.Source)),
		slog.Int("rows", a.TotalRows),
		slog.Int("imported", len(saved.Inserted)),
		slog.Int("duplicates", len(saved.Duplicates)),
		slog.Int("matched", a.Matched),
		slog.Duration("elapsed", time.Since(start)))

	span.SetAttributes(
		attribute.Int("imported", len(saved.Inserted)),
		attribute.Int("duplicates", len(saved.Duplicates)))

	a.Duplicates = len(saved.Duplicates)
	return &ImportResult{
		Batch:      saved.Batch,
		Profile:    saved.Profile,
		Analysis:   a,
		Inserted:   saved.Inserted,
		Duplicates: saved.Duplicates,
	}, nil
}

func faultFields(faults []parser.FieldError) map[string]int {
	out := make(map[string]int)
	for _, f := range faults {
		out[string(f.Field)]++
	}
	return out
}

func contentType(filename string) string {
	if ct := mime.TypeByExtension(filepath.Ext(filename)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// ProposeProfile analyzes a file and returns the profile that would be
// learned from it, without storing it.
func (s *ImportService) ProposeProfile(ctx context.Context, req ImportRequest) (*mapper.Profile, error) {
	a, err := s.analyze(ctx, req)
	if err != nil {
		return nil, err
	}
	if a.ProposedProfile == nil {
		if a.ProposalError != "" {
			return nil, fmt.Errorf("%w: %s", ErrNoProposal, a.ProposalError)
		}
		return nil, ErrNoProposal
	}
	return a.ProposedProfile, nil
}

// CommitProfile stores a proposed profile. An existing profile with the same
// header signature is returned instead.
func (s *ImportService) CommitProfile(ctx context.Context, p *mapper.Profile) (*mapper.Profile, error) {
	return s.mapper.Commit(ctx, p)
}

// ListProfiles returns every learned profile, newest first.
func (s *ImportService) ListProfiles(ctx context.Context) ([]*mapper.Profile, error) {
	if s.repo == nil {
		return nil, nil
	}
	profiles, err := s.repo.ListProfiles(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(profiles, func(i, j int) bool {
		return profiles[i].CreatedAt.After(profiles[j].CreatedAt)
	})
	return profiles, nil
}

// GetBatch returns one import batch.
func (s *ImportService) GetBatch(ctx context.Context, id uuid.UUID) (*repository.ImportBatch, error) {
	return s.repo.GetBatch(ctx, id)
}

// ListBatches returns recent import batches.
func (s *ImportService) ListBatches(ctx context.Context, limit int) ([]*repository.ImportBatch, error) {
	return s.repo.ListBatches(ctx, limit)
}

// BatchFile opens the statement archived for a batch. The caller closes the
// reader.
func (s *ImportService) BatchFile(ctx context.Context, id uuid.UUID) (io.ReadCloser, *storage.FileInfo, error) {
	batch, err := s.repo.GetBatch(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if s.storage == nil {
		return nil, nil, ErrNoStoredFile
	}

	fileID, err := uuid.Parse(batch.StoredFileID)
	if err != nil {
		// Batches archived before the file id was recorded.
		files, err := s.storage.List(ctx, id)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to list archived files: %w", err)
		}
		if len(files) == 0 {
			return nil, nil, ErrNoStoredFile
		}
		fileID = files[0].ID
	}

	rc, info, err := s.storage.Download(ctx, id, fileID)
	if errors.Is(err, storage.ErrFileNotFound) {
		return nil, nil, fmt.Errorf("%w: %v", ErrNoStoredFile, err)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open archived statement: %w", err)
	}
	return rc, info, nil
}

// DeleteBatch removes a batch, its transactions and its archived file.
func (s *ImportService) DeleteBatch(ctx context.Context, id uuid.UUID) (*repository.ImportBatch, error) {
	batch, err := s.repo.DeleteBatch(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.storage != nil {
		if err := s.storage.DeleteBatch(ctx, id); err != nil {
			s.logger.Warn("failed to delete archived statement",
				slog.String("batch_id", id.String()),
				slog.Any("error", err))
		}
	}
	s.logger.Info("import batch deleted",
		slog.String("batch_id", id.String()),
		slog.Int("transactions", batch.Imported))
	return batch, nil
}
