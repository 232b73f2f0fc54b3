package posting

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/FACorreiaa/statement-reconciler/pkg/db"
	"github.com/FACorreiaa/statement-reconciler/pkg/money"
)

// PostgresLedger stores vouchers in the vouchers and voucher_lines tables.
// When the context carries a transaction the voucher joins it.
type PostgresLedger struct {
	pool            db.DBTX
	defaultCurrency string
}

// NewPostgresLedger creates a ledger backed by pool.
func NewPostgresLedger(pool db.DBTX, defaultCurrency string) *PostgresLedger {
	if defaultCurrency == "" {
		defaultCurrency = money.INR
	}
	return &PostgresLedger{pool: pool, defaultCurrency: defaultCurrency}
}

var _ Ledger = (*PostgresLedger)(nil)

func voucherPrefix(t VoucherType) string {
	if t == VoucherPayment {
		return "PAY"
	}
	return "JV"
}

// CreateVoucher writes the voucher header and its lines in minor units.
func (l *PostgresLedger) CreateVoucher(ctx context.Context, v Voucher) (*VoucherRef, error) {
	meta := v.Meta()
	currency := meta.Currency
	if currency == "" {
		currency = l.defaultCurrency
	}

	amount := money.NewFromDecimal(v.Amount(), currency)
	lines := v.Lines()
	var debitMinor, creditMinor int64
	minor := make([][2]int64, len(lines))
	for i, line := range lines {
		minor[i][0] = money.NewFromDecimal(line.Debit, currency).Amount()
		minor[i][1] = money.NewFromDecimal(line.Credit, currency).Amount()
		debitMinor += minor[i][0]
		creditMinor += minor[i][1]
	}
	if debitMinor != creditMinor {
		return nil, fmt.Errorf("%w: %d != %d minor units", ErrUnbalancedVoucher, debitMinor, creditMinor)
	}

	tx, err := db.Conn(ctx, l.pool).Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin voucher transaction: %w", err)
	}

	var seq int64
	if err := tx.QueryRow(ctx, `SELECT nextval('voucher_no_seq')`).Scan(&seq); err != nil {
		_ = tx.Rollback(ctx)
		return nil, fmt.Errorf("failed to allocate voucher number: %w", err)
	}
	ref := &VoucherRef{
		Number: fmt.Sprintf("%s-%06d", voucherPrefix(v.Type()), seq),
		Type:   v.Type(),
	}

	var direction, party string
	if p, ok := v.(Payment); ok {
		direction = string(p.Direction)
		party = p.Party
	}

	voucherID := uuid.New()
	query := `
		INSERT INTO vouchers (id, voucher_no, voucher_type, direction, party, posting_date, currency, amount_minor, reference)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	if _, err := tx.Exec(ctx, query, voucherID, ref.Number, string(ref.Type), direction, party,
		meta.PostingDate, amount.Currency(), amount.Amount(), meta.Reference); err != nil {
		_ = tx.Rollback(ctx)
		return nil, fmt.Errorf("failed to create voucher: %w", err)
	}

	lineQuery := `
		INSERT INTO voucher_lines (id, voucher_id, line_no, account, party, debit_minor, credit_minor)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for i, line := range lines {
		if _, err := tx.Exec(ctx, lineQuery, uuid.New(), voucherID, i+1, line.Account, line.Party,
			minor[i][0], minor[i][1]); err != nil {
			_ = tx.Rollback(ctx)
			return nil, fmt.Errorf("failed to create voucher line %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit voucher: %w", err)
	}
	return ref, nil
}

// CancelVoucher marks a submitted voucher cancelled.
func (l *PostgresLedger) CancelVoucher(ctx context.Context, ref VoucherRef) error {
	query := `
		UPDATE vouchers
		SET status = 'Cancelled', cancelled_at = now()
		WHERE voucher_no = $1 AND status = 'Submitted'
	`
	tag, err := db.Conn(ctx, l.pool).Exec(ctx, query, ref.Number)
	if err != nil {
		return fmt.Errorf("failed to cancel voucher: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrVoucherNotFound, ref.Number)
	}
	return nil
}
