// Package repository persists import profiles, batches and bank transactions.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/FACorreiaa/statement-reconciler/internal/domain/import/mapper"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrDuplicate     = errors.New("duplicate transaction")
	ErrAlreadyPosted = errors.New("transaction already posted")
	ErrNotPosted     = errors.New("transaction is not posted")
	ErrBatchNotFound = fmt.Errorf("import batch %w", ErrNotFound)
)

// ImportRepository stores profiles and import batches.
type ImportRepository interface {
	mapper.ProfileStore

	// SaveImport writes the batch, its transactions and an optional learned
	// profile in one database transaction. Lines whose dedupe key already
	// exists are reported as duplicates and skipped.
	SaveImport(ctx context.Context, set *ImportSet) (*SaveResult, error)
	InsertTransaction(ctx context.Context, t *BankTransaction) error
	ExistingDedupeKeys(ctx context.Context, keys []string) (map[string]bool, error)
	GetBatch(ctx context.Context, id uuid.UUID) (*ImportBatch, error)
	ListBatches(ctx context.Context, limit int) ([]*ImportBatch, error)
	DeleteBatch(ctx context.Context, id uuid.UUID) (*ImportBatch, error)
}

// TransactionRepository reads and mutates persisted transactions.
type TransactionRepository interface {
	GetTransaction(ctx context.Context, id uuid.UUID) (*BankTransaction, error)
	ListTransactions(ctx context.Context, f TransactionFilter) ([]*BankTransaction, error)
	ListAutoPostCandidates(ctx context.Context, minConfidence float64, limit int) ([]*BankTransaction, error)
	UpdateSuggestion(ctx context.Context, id uuid.UUID, s Suggestion) (*BankTransaction, error)

	// PostTransaction locks the row, runs post and marks the row Posted with
	// the returned reference. post runs inside the database transaction,
	// which is available to collaborators through db.Conn.
	PostTransaction(ctx context.Context, id uuid.UUID, post func(ctx context.Context, t *BankTransaction) (*PostingRef, error)) (*BankTransaction, error)

	// ReverseTransaction locks a Posted row, runs reverse and returns the row
	// to Matched with the voucher link cleared.
	ReverseTransaction(ctx context.Context, id uuid.UUID, reverse func(ctx context.Context, t *BankTransaction) error) (*BankTransaction, error)
}
