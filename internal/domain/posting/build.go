package posting

import (
	"errors"
	"fmt"

	"github.com/FACorreiaa/statement-reconciler/internal/domain/import/repository"
)

var (
	ErrAlreadyPosted           = repository.ErrAlreadyPosted
	ErrCategoryAccountRequired = errors.New("category account required")
	ErrBankAccountRequired     = errors.New("bank account required")
	ErrZeroAmount              = errors.New("transaction amount is zero")
)

// AccountResolver maps a human-friendly account name to a chart-of-accounts name.
type AccountResolver func(name string) string

func identity(name string) string { return name }

// BuildVoucher turns a categorized transaction into a validated voucher.
// With a counterparty it builds a Payment, otherwise a two-line JournalEntry.
func BuildVoucher(t *repository.BankTransaction, resolve AccountResolver) (Voucher, error) {
	if t.Status == repository.StatusPosted {
		return nil, ErrAlreadyPosted
	}
	if resolve == nil {
		resolve = identity
	}
	category := resolve(t.SuggestedAccount)
	if category == "" {
		return nil, ErrCategoryAccountRequired
	}
	bank := resolve(t.BankAccount)
	if bank == "" {
		return nil, ErrBankAccountRequired
	}
	amount := t.Amount().Abs()
	if amount.IsZero() {
		return nil, ErrZeroAmount
	}

	header := Header{
		TransactionID: t.ID,
		PostingDate:   t.Date,
		Currency:      t.Currency,
		Reference:     t.BankReference,
		Remark:        t.Description,
	}

	var v Voucher
	if t.SuggestedCounterparty != "" {
		dir := DirectionReceive
		if t.IsDebit() {
			dir = DirectionPay
		}
		v = Payment{
			Header:       header,
			Direction:    dir,
			Party:        t.SuggestedCounterparty,
			BankAccount:  bank,
			PartyAccount: category,
			Value:        amount,
		}
	} else {
		bankLine := Line{Account: bank}
		categoryLine := Line{Account: category}
		if t.IsDebit() {
			categoryLine.Debit = amount
			bankLine.Credit = amount
		} else {
			bankLine.Debit = amount
			categoryLine.Credit = amount
		}
		v = JournalEntry{Header: header, Entries: [2]Line{bankLine, categoryLine}}
	}

	if errs := ValidateVoucher(v); len(errs) > 0 {
		return nil, fmt.Errorf("failed to build voucher: %w", errs)
	}
	return v, nil
}
