package repository

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/statement-reconciler/internal/domain/import/mapper"
)

// Status is the lifecycle state of a bank transaction.
type Status string

const (
	StatusUnmatched Status = "Unmatched"
	StatusMatched   Status = "Matched"
	StatusPosted    Status = "Posted"
)

// BatchStatus is the state of one import run.
type BatchStatus string

const (
	BatchProcessing BatchStatus = "processing"
	BatchCompleted  BatchStatus = "completed"
	BatchFailed     BatchStatus = "failed"
)

// BankTransaction is one persisted statement line.
type BankTransaction struct {
	ID            uuid.UUID
	BatchID       uuid.UUID
	RowNumber     int
	Date          time.Time
	Description   string
	Debit         decimal.Decimal
	Credit        decimal.Decimal
	Balance       decimal.NullDecimal
	Currency      string
	BankReference string
	BankAccount   string
	PaymentMode   string
	DedupeKey     string
	Status        Status

	SuggestedAccount      string
	SuggestedCounterparty string
	SuggestedTax          string
	SuggestionConfidence  float64
	SuggestionRule        string
	CategoryConfirmed     bool

	PostedVoucher     string
	PostedVoucherType string
	PostedAt          *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Amount is the signed movement: credit minus debit.
func (t *BankTransaction) Amount() decimal.Decimal {
	return t.Credit.Sub(t.Debit)
}

// IsDebit reports an outflow.
func (t *BankTransaction) IsDebit() bool {
	return t.Debit.IsPositive()
}

// ImportBatch records one imported file and its counters.
type ImportBatch struct {
	ID           uuid.UUID
	Filename     string
	BankAccount  string
	Currency     string
	ProfileID    *uuid.UUID
	TotalRows    int
	Imported     int
	Duplicates   int
	Faults       int
	Status       BatchStatus
	StoredFileID string
	StartedAt    time.Time
	CompletedAt  *time.Time
}

// ImportSet is everything persisted for one imported file.
type ImportSet struct {
	Batch        *ImportBatch
	Transactions []*BankTransaction
	Profile      *mapper.Profile
}

// SaveResult reports what a batch insert did.
type SaveResult struct {
	Batch      *ImportBatch
	Profile    *mapper.Profile
	Inserted   []*BankTransaction
	Duplicates []*BankTransaction
}

// Suggestion is the categorization written onto a transaction.
type Suggestion struct {
	Account      string
	Counterparty string
	Tax          string
	PaymentMode  string
	Confidence   float64
	Rule         string
	Confirmed    bool
}

// PostingRef links a transaction to the voucher that posted it.
type PostingRef struct {
	Voucher     string
	VoucherType string
}

// TransactionFilter narrows ListTransactions.
type TransactionFilter struct {
	BatchID *uuid.UUID
	Status  Status
	Limit   int
}
