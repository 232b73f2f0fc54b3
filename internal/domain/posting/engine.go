package posting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/statement-reconciler/internal/domain/import/repository"
	"github.com/FACorreiaa/statement-reconciler/pkg/metrics"
)

// Store is the slice of the transaction repository posting needs.
type Store interface {
	GetTransaction(ctx context.Context, id uuid.UUID) (*repository.BankTransaction, error)
	ListAutoPostCandidates(ctx context.Context, minConfidence float64, limit int) ([]*repository.BankTransaction, error)
	PostTransaction(ctx context.Context, id uuid.UUID, post func(ctx context.Context, t *repository.BankTransaction) (*repository.PostingRef, error)) (*repository.BankTransaction, error)
	ReverseTransaction(ctx context.Context, id uuid.UUID, reverse func(ctx context.Context, t *repository.BankTransaction) error) (*repository.BankTransaction, error)
}

// Engine posts categorized transactions to the ledger.
type Engine struct {
	store   Store
	ledger  Ledger
	resolve AccountResolver
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// Option configures an Engine.
type Option func(*Engine)

// WithAccountResolver maps account names through the chart of accounts before posting.
func WithAccountResolver(r AccountResolver) Option { return func(e *Engine) { e.resolve = r } }

func WithMetrics(m *metrics.Metrics) Option { return func(e *Engine) { e.metrics = m } }

// NewEngine creates a posting engine.
func NewEngine(store Store, ledger Ledger, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		ledger:  ledger,
		resolve: identity,
		logger:  logger,
		tracer:  otel.Tracer("statement-reconciler/posting"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Preview builds the voucher a transaction would post, without posting it.
func (e *Engine) Preview(ctx context.Context, id uuid.UUID) (Voucher, error) {
	t, err := e.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	return BuildVoucher(t, e.resolve)
}

// Post creates the voucher for a transaction and marks it Posted. The
// transaction row is locked for the duration, so concurrent posts of the same
// transaction create at most one voucher.
func (e *Engine) Post(ctx context.Context, id uuid.UUID) (*repository.BankTransaction, error) {
	ctx, span := e.tracer.Start(ctx, "posting.Post",
		trace.WithAttributes(attribute.String("transaction_id", id.String())))
	defer span.End()

	var voucherType VoucherType
	t, err := e.store.PostTransaction(ctx, id, func(ctx context.Context, t *repository.BankTransaction) (*repository.PostingRef, error) {
		v, err := BuildVoucher(t, e.resolve)
		if err != nil {
			return nil, err
		}
		ref, err := e.ledger.CreateVoucher(ctx, v)
		if err != nil {
			return nil, fmt.Errorf("failed to create voucher: %w", err)
		}
		voucherType = ref.Type
		return &repository.PostingRef{Voucher: ref.Number, VoucherType: string(ref.Type)}, nil
	})
	if err != nil {
		reason := failureReason(err)
		e.metrics.PostingFailed(reason)
		span.RecordError(err)
		span.SetStatus(codes.Error, reason)
		e.logger.Warn("posting failed",
			slog.String("transaction_id", id.String()),
			slog.String("reason", reason),
			slog.Any("error", err))
		return nil, err
	}

	e.metrics.Posted(string(voucherType))
	span.SetAttributes(attribute.String("voucher", t.PostedVoucher), attribute.String("voucher_type", t.PostedVoucherType))
	e.logger.Info("transaction posted",
		slog.String("transaction_id", id.String()),
		slog.String("voucher", t.PostedVoucher),
		slog.String("voucher_type", t.PostedVoucherType))
	return t, nil
}

// Reverse cancels the voucher of a Posted transaction and returns it to Matched.
func (e *Engine) Reverse(ctx context.Context, id uuid.UUID) (*repository.BankTransaction, error) {
	ctx, span := e.tracer.Start(ctx, "posting.Reverse",
		trace.WithAttributes(attribute.String("transaction_id", id.String())))
	defer span.End()

	var cancelled string
	t, err := e.store.ReverseTransaction(ctx, id, func(ctx context.Context, t *repository.BankTransaction) error {
		cancelled = t.PostedVoucher
		return e.ledger.CancelVoucher(ctx, VoucherRef{Number: t.PostedVoucher, Type: VoucherType(t.PostedVoucherType)})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reverse failed")
		return nil, err
	}

	e.logger.Info("posting reversed",
		slog.String("transaction_id", id.String()),
		slog.String("voucher", cancelled))
	return t, nil
}

// AutoPostResult summarizes one auto-post sweep.
type AutoPostResult struct {
	Candidates int
	Posted     int
	Skipped    int
	Failed     int
}

// AutoPost posts Matched transactions whose suggestion confidence is at least
// minConfidence. A failed posting is counted and the sweep continues.
func (e *Engine) AutoPost(ctx context.Context, minConfidence float64, limit int) (AutoPostResult, error) {
	ctx, span := e.tracer.Start(ctx, "posting.AutoPost")
	defer span.End()

	var res AutoPostResult
	candidates, err := e.store.ListAutoPostCandidates(ctx, minConfidence, limit)
	if err != nil {
		return res, fmt.Errorf("failed to list auto-post candidates: %w", err)
	}
	res.Candidates = len(candidates)

	for _, t := range candidates {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if _, err := e.Post(ctx, t.ID); err != nil {
			if errors.Is(err, ErrAlreadyPosted) {
				res.Skipped++
				continue
			}
			res.Failed++
			continue
		}
		res.Posted++
	}

	span.SetAttributes(
		attribute.Int("candidates", res.Candidates),
		attribute.Int("posted", res.Posted),
		attribute.Int("failed", res.Failed))
	return res, nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrAlreadyPosted):
		return "already_posted"
	case errors.Is(err, ErrCategoryAccountRequired):
		return "category_required"
	case errors.Is(err, repository.ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnbalancedVoucher), errors.Is(err, ErrInvalidVoucher),
		errors.Is(err, ErrBankAccountRequired), errors.Is(err, ErrZeroAmount):
		return "invalid_voucher"
	default:
		return "ledger"
	}
}
