package posting

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/statement-reconciler/internal/domain/import/repository"
	"github.com/FACorreiaa/statement-reconciler/pkg/money"
)

func categorized(description string, debit, credit string) *repository.BankTransaction {
	return &repository.BankTransaction{
		ID:               uuid.New(),
		Date:             time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		Description:      description,
		Debit:            decimal.RequireFromString(debit),
		Credit:           decimal.RequireFromString(credit),
		Currency:         "INR",
		BankAccount:      "HDFC Current",
		Status:           repository.StatusMatched,
		SuggestedAccount: "Cash",
	}
}

func TestBuildVoucher_JournalEntryForCashWithdrawal(t *testing.T) {
	txn := categorized("ATM WDL/CASH", "2000.00", "0")

	v, err := BuildVoucher(txn, nil)
	require.NoError(t, err)

	je, ok := v.(JournalEntry)
	require.True(t, ok, "no counterparty builds a journal entry")
	assert.Equal(t, VoucherJournalEntry, je.Type())
	assert.Equal(t, txn.ID, je.TransactionID)

	bank, cash := je.Entries[0], je.Entries[1]
	assert.Equal(t, "HDFC Current", bank.Account)
	assert.True(t, bank.Credit.Equal(decimal.NewFromInt(2000)))
	assert.True(t, bank.Debit.IsZero())
	assert.Equal(t, "Cash", cash.Account)
	assert.True(t, cash.Debit.Equal(decimal.NewFromInt(2000)))
	assert.True(t, cash.Credit.IsZero())
}

func TestBuildVoucher_JournalEntryForInflow(t *testing.T) {
	txn := categorized("INTEREST CREDIT", "0", "12.34")
	txn.SuggestedAccount = "Interest Income"

	v, err := BuildVoucher(txn, nil)
	require.NoError(t, err)
	lines := v.Lines()
	assert.Equal(t, "HDFC Current", lines[0].Account)
	assert.True(t, lines[0].Debit.Equal(decimal.RequireFromString("12.34")))
	assert.True(t, lines[1].Credit.Equal(decimal.RequireFromString("12.34")))
}

func TestBuildVoucher_Payment(t *testing.T) {
	t.Run("debit pays the counterparty", func(t *testing.T) {
		txn := categorized("NEFT ACME SUPPLIES", "500.00", "0")
		txn.SuggestedAccount = "Creditors"
		txn.SuggestedCounterparty = "Acme Supplies"

		v, err := BuildVoucher(txn, nil)
		require.NoError(t, err)
		p, ok := v.(Payment)
		require.True(t, ok)
		assert.Equal(t, DirectionPay, p.Direction)
		assert.Equal(t, "Acme Supplies", p.Party)

		lines := p.Lines()
		assert.Equal(t, "HDFC Current", lines[0].Account)
		assert.True(t, lines[0].Credit.Equal(decimal.NewFromInt(500)))
		assert.Equal(t, "Creditors", lines[1].Account)
		assert.Equal(t, "Acme Supplies", lines[1].Party)
		assert.True(t, lines[1].Debit.Equal(decimal.NewFromInt(500)))
	})

	t.Run("credit receives from the counterparty", func(t *testing.T) {
		txn := categorized("UPI ACME CORP", "0", "750.50")
		txn.SuggestedAccount = "Debtors"
		txn.SuggestedCounterparty = "Acme Corp"

		v, err := BuildVoucher(txn, nil)
		require.NoError(t, err)
		p := v.(Payment)
		assert.Equal(t, DirectionReceive, p.Direction)
		assert.True(t, p.Lines()[0].Debit.Equal(decimal.RequireFromString("750.50")))
		assert.True(t, p.Amount().Equal(decimal.RequireFromString("750.50")))
	})
}

func TestBuildVoucher_Preconditions(t *testing.T) {
	t.Run("already posted", func(t *testing.T) {
		txn := categorized("ATM WDL", "10", "0")
		txn.Status = repository.StatusPosted
		_, err := BuildVoucher(txn, nil)
		assert.ErrorIs(t, err, ErrAlreadyPosted)
	})

	t.Run("category required", func(t *testing.T) {
		txn := categorized("ATM WDL", "10", "0")
		txn.SuggestedAccount = ""
		_, err := BuildVoucher(txn, nil)
		assert.ErrorIs(t, err, ErrCategoryAccountRequired)
	})

	t.Run("bank account required", func(t *testing.T) {
		txn := categorized("ATM WDL", "10", "0")
		txn.BankAccount = ""
		_, err := BuildVoucher(txn, nil)
		assert.ErrorIs(t, err, ErrBankAccountRequired)
	})

	t.Run("zero amount", func(t *testing.T) {
		_, err := BuildVoucher(categorized("ATM WDL", "0", "0"), nil)
		assert.ErrorIs(t, err, ErrZeroAmount)
	})

	t.Run("sub-cent amount fails validation", func(t *testing.T) {
		_, err := BuildVoucher(categorized("ATM WDL", "10.005", "0"), nil)
		assert.ErrorIs(t, err, ErrInvalidVoucher)
	})
}

func TestBuildVoucher_ResolvesAccounts(t *testing.T) {
	txn := categorized("ATM WDL", "10", "0")
	txn.SuggestedAccount = "cash"
	resolve := func(name string) string {
		return map[string]string{"cash": "Cash - HQ", "HDFC Current": "HDFC Bank - 1234"}[name]
	}

	v, err := BuildVoucher(txn, resolve)
	require.NoError(t, err)
	assert.Equal(t, "HDFC Bank - 1234", v.Lines()[0].Account)
	assert.Equal(t, "Cash - HQ", v.Lines()[1].Account)
}

func TestValidateVoucher(t *testing.T) {
	unbalanced := JournalEntry{Entries: [2]Line{
		{Account: "Bank", Debit: decimal.NewFromInt(10)},
		{Account: "Cash", Credit: decimal.NewFromInt(9)},
	}}
	errs := ValidateVoucher(unbalanced)
	require.Len(t, errs, 1)
	assert.Equal(t, RuleBalance, errs[0].Rule)
	assert.ErrorIs(t, errs, ErrUnbalancedVoucher)

	bothSides := JournalEntry{Entries: [2]Line{
		{Account: "Bank", Debit: decimal.NewFromInt(10), Credit: decimal.NewFromInt(10)},
		{Account: "", Credit: decimal.NewFromInt(5)},
	}}
	errs = ValidateVoucher(bothSides)
	rules := make([]string, 0, len(errs))
	for _, e := range errs {
		rules = append(rules, e.Rule)
	}
	assert.Contains(t, rules, RuleOneSide)
	assert.Contains(t, rules, RuleAccount)
	assert.Contains(t, rules, RuleBalance)

	noParty := Payment{Direction: DirectionPay, BankAccount: "Bank", PartyAccount: "Creditors", Value: decimal.NewFromInt(1)}
	errs = ValidateVoucher(noParty)
	require.Len(t, errs, 1)
	assert.Equal(t, RuleParty, errs[0].Rule)
	assert.ErrorIs(t, errs, ErrInvalidVoucher)
}

// Every voucher built from a generated statement balances.
func TestBuildVoucher_AlwaysBalances(t *testing.T) {
	gen := money.NewTestDataGeneratorWithSeed(42)
	for i, line := range gen.Statement(500) {
		txn := &repository.BankTransaction{
			ID:               uuid.New(),
			Date:             line.Date,
			Description:      line.Description,
			Debit:            line.Debit,
			Credit:           line.Credit,
			BankAccount:      "HDFC Current",
			Status:           repository.StatusMatched,
			SuggestedAccount: "Suspense",
		}
		if i%2 == 0 {
			txn.SuggestedCounterparty = "Party"
		}

		v, err := BuildVoucher(txn, nil)
		require.NoError(t, err, "line %d", i)

		debit, credit := decimal.Zero, decimal.Zero
		for _, l := range v.Lines() {
			debit = debit.Add(l.Debit)
			credit = credit.Add(l.Credit)
		}
		require.True(t, debit.Equal(credit), "line %d: %s != %s", i, debit, credit)
		require.True(t, debit.Equal(txn.Amount().Abs()), "line %d", i)
	}
}
