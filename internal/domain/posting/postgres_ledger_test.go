package posting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/statement-reconciler/pkg/db"
)

func journalEntry() JournalEntry {
	return JournalEntry{
		Header: Header{
			PostingDate: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
			Currency:    "INR",
			Reference:   "412345678901",
		},
		Entries: [2]Line{
			{Account: "HDFC Current", Credit: decimal.RequireFromString("2000.50")},
			{Account: "Cash", Debit: decimal.RequireFromString("2000.50")},
		},
	}
}

func TestPostgresLedger_CreateVoucher(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ledger := NewPostgresLedger(mock, "")

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT nextval\('voucher_no_seq'\)`).
		WillReturnRows(pgxmock.NewRows([]string{"nextval"}).AddRow(int64(42)))
	mock.ExpectExec(`INSERT INTO vouchers`).
		WithArgs(pgxmock.AnyArg(), "JV-000042", "Journal Entry", "", "",
			time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), "INR", int64(200050), "412345678901").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO voucher_lines`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), 1, "HDFC Current", "", int64(0), int64(200050)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO voucher_lines`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), 2, "Cash", "", int64(200050), int64(0)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	ref, err := ledger.CreateVoucher(context.Background(), journalEntry())
	require.NoError(t, err)
	assert.Equal(t, "JV-000042", ref.Number)
	assert.Equal(t, VoucherJournalEntry, ref.Type)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedger_CreatePaymentRollsBackOnLineFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ledger := NewPostgresLedger(mock, "INR")
	p := Payment{
		Header:       Header{PostingDate: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)},
		Direction:    DirectionPay,
		Party:        "Acme",
		BankAccount:  "HDFC Current",
		PartyAccount: "Creditors",
		Value:        decimal.NewFromInt(10),
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT nextval`).
		WillReturnRows(pgxmock.NewRows([]string{"nextval"}).AddRow(int64(7)))
	mock.ExpectExec(`INSERT INTO vouchers`).
		WithArgs(pgxmock.AnyArg(), "PAY-000007", "Payment", "Pay", "Acme",
			pgxmock.AnyArg(), "INR", int64(1000), "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO voucher_lines`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), 1, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err = ledger.CreateVoucher(context.Background(), p)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedger_RejectsUnbalanced(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	je := journalEntry()
	je.Entries[1].Debit = decimal.NewFromInt(1)

	_, err = NewPostgresLedger(mock, "INR").CreateVoucher(context.Background(), je)
	assert.ErrorIs(t, err, ErrUnbalancedVoucher)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedger_JoinsContextTransaction(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	mock.ExpectExec(`UPDATE vouchers`).
		WithArgs("JV-000001").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	ledger := NewPostgresLedger(mock, "INR")
	err = ledger.CancelVoucher(db.WithTx(context.Background(), tx), VoucherRef{Number: "JV-000001"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedger_CancelUnknown(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`UPDATE vouchers`).
		WithArgs("JV-404").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = NewPostgresLedger(mock, "INR").CancelVoucher(context.Background(), VoucherRef{Number: "JV-404"})
	assert.ErrorIs(t, err, ErrVoucherNotFound)
}
