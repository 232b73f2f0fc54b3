package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/FACorreiaa/statement-reconciler/internal/domain/import/mapper"
	"github.com/FACorreiaa/statement-reconciler/internal/domain/import/sniffer"
	"github.com/FACorreiaa/statement-reconciler/pkg/db"
)

const defaultListLimit = 500

const transactionColumns = `id, batch_id, row_number, txn_date, description, debit, credit, balance, currency,
		bank_reference, bank_account, payment_mode, dedupe_key, status,
		suggested_account, suggested_counterparty, suggested_tax, suggestion_confidence, suggestion_rule,
		category_confirmed, COALESCE(posted_voucher, ''), COALESCE(posted_voucher_type, ''), posted_at,
		created_at, updated_at`

const batchColumns = `id, filename, bank_account, currency, profile_id, total_rows, imported, duplicates,
		faults, status, stored_file_id, started_at, completed_at`

const profileColumns = `id, bank_name, header_signature, header_row_offset, date_format,
		debit_credit_logic, column_mapping, created_at`

// PostgresRepository implements ImportRepository and TransactionRepository.
type PostgresRepository struct {
	pool db.DBTX
}

// NewPostgresRepository creates a repository over a pool, a transaction or a mock.
func NewPostgresRepository(pool db.DBTX) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

var (
	_ ImportRepository      = (*PostgresRepository)(nil)
	_ TransactionRepository = (*PostgresRepository)(nil)
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*BankTransaction, error) {
	var t BankTransaction
	err := row.Scan(
		&t.ID, &t.BatchID, &t.RowNumber, &t.Date, &t.Description, &t.Debit, &t.Credit, &t.Balance, &t.Currency,
		&t.BankReference, &t.BankAccount, &t.PaymentMode, &t.DedupeKey, &t.Status,
		&t.SuggestedAccount, &t.SuggestedCounterparty, &t.SuggestedTax, &t.SuggestionConfidence, &t.SuggestionRule,
		&t.CategoryConfirmed, &t.PostedVoucher, &t.PostedVoucherType, &t.PostedAt,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func scanBatch(row rowScanner) (*ImportBatch, error) {
	var b ImportBatch
	err := row.Scan(
		&b.ID, &b.Filename, &b.BankAccount, &b.Currency, &b.ProfileID, &b.TotalRows, &b.Imported, &b.Duplicates,
		&b.Faults, &b.Status, &b.StoredFileID, &b.StartedAt, &b.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func scanProfile(row rowScanner) (*mapper.Profile, error) {
	var (
		p       mapper.Profile
		rawCols []byte
	)
	err := row.Scan(&p.ID, &p.BankName, &p.HeaderSignature, &p.HeaderRowOffset, &p.DateFormat,
		&p.DebitCreditLogic, &rawCols, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	p.ColumnMapping = make(map[sniffer.Field]string)
	if len(rawCols) > 0 {
		if err := json.Unmarshal(rawCols, &p.ColumnMapping); err != nil {
			return nil, fmt.Errorf("failed to decode column mapping: %w", err)
		}
	}
	return &p, nil
}

// statusFor derives the initial status of a new row. A suggested account or
// counterparty makes it Matched.
func statusFor(t *BankTransaction) Status {
	if t.Status != "" {
		return t.Status
	}
	if t.SuggestedAccount != "" || t.SuggestedCounterparty != "" {
		return StatusMatched
	}
	return StatusUnmatched
}

func (r *PostgresRepository) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetProfileBySignature returns mapper.ErrProfileNotFound when no profile matches.
func (r *PostgresRepository) GetProfileBySignature(ctx context.Context, signature string) (*mapper.Profile, error) {
	return r.profileBySignature(ctx, r.pool, signature)
}

func (r *PostgresRepository) profileBySignature(ctx context.Context, q db.DBTX, signature string) (*mapper.Profile, error) {
	query := `
		SELECT ` + profileColumns + `
		FROM bank_import_profiles
		WHERE header_signature = $1
	`

	p, err := scanProfile(q.QueryRow(ctx, query, signature))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, mapper.ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return p, nil
}

// ListProfiles returns every stored profile, oldest first.
func (r *PostgresRepository) ListProfiles(ctx context.Context) ([]*mapper.Profile, error) {
	query := `
		SELECT ` + profileColumns + `
		FROM bank_import_profiles
		ORDER BY created_at
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*mapper.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate profiles: %w", err)
	}
	return profiles, nil
}

// CreateProfile inserts p unless its signature is already stored, then
// returns the stored row.
func (r *PostgresRepository) CreateProfile(ctx context.Context, p *mapper.Profile) (*mapper.Profile, error) {
	return r.createProfile(ctx, r.pool, p)
}

func (r *PostgresRepository) createProfile(ctx context.Context, q db.DBTX, p *mapper.Profile) (*mapper.Profile, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	cols, err := json.Marshal(p.ColumnMapping)
	if err != nil {
		return nil, fmt.Errorf("failed to encode column mapping: %w", err)
	}

	query := `
		INSERT INTO bank_import_profiles (id, bank_name, header_signature, header_row_offset, date_format,
			debit_credit_logic, column_mapping)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (header_signature) DO NOTHING
	`
	if _, err := q.Exec(ctx, query, p.ID, p.BankName, p.HeaderSignature, p.HeaderRowOffset, p.DateFormat,
		string(p.DebitCreditLogic), cols); err != nil {
		return nil, fmt.Errorf("failed to insert profile: %w", err)
	}

	return r.profileBySignature(ctx, q, p.HeaderSignature)
}

// SaveImport implements ImportRepository.
func (r *PostgresRepository) SaveImport(ctx context.Context, set *ImportSet) (*SaveResult, error) {
	if set == nil || set.Batch == nil {
		return nil, errors.New("import set has no batch")
	}
	batch := set.Batch
	if batch.ID == uuid.Nil {
		batch.ID = uuid.New()
	}

	result := &SaveResult{Batch: batch}
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		if set.Profile != nil {
			stored, err := r.createProfile(ctx, tx, set.Profile)
			if err != nil {
				return err
			}
			result.Profile = stored
			batch.ProfileID = &stored.ID
		}

		batchQuery := `
			INSERT INTO import_batches (id, filename, bank_account, currency, profile_id, total_rows, faults,
				status, stored_file_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING started_at
		`
		if err := tx.QueryRow(ctx, batchQuery, batch.ID, batch.Filename, batch.BankAccount, batch.Currency,
			batch.ProfileID, batch.TotalRows, batch.Faults, string(BatchProcessing), batch.StoredFileID,
		).Scan(&batch.StartedAt); err != nil {
			return fmt.Errorf("failed to insert import batch: %w", err)
		}

		for _, t := range set.Transactions {
			t.BatchID = batch.ID
			inserted, err := r.insertIfNew(ctx, tx, t)
			if err != nil {
				return err
			}
			if inserted {
				result.Inserted = append(result.Inserted, t)
			} else {
				result.Duplicates = append(result.Duplicates, t)
			}
		}

		batch.Imported = len(result.Inserted)
		batch.Duplicates = len(result.Duplicates)
		batch.Status = BatchCompleted

		updateQuery := `
			UPDATE import_batches
			SET imported = $2, duplicates = $3, status = $4, completed_at = now()
			WHERE id = $1
			RETURNING completed_at
		`
		if err := tx.QueryRow(ctx, updateQuery, batch.ID, batch.Imported, batch.Duplicates, string(batch.Status)).Scan(&batch.CompletedAt); err != nil {
			return fmt.Errorf("failed to finalize import batch: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

const insertTransactionColumns = `id, batch_id, row_number, txn_date, description, debit, credit, balance, currency,
			bank_reference, bank_account, payment_mode, dedupe_key, status,
			suggested_account, suggested_counterparty, suggested_tax, suggestion_confidence, suggestion_rule`

func transactionArgs(t *BankTransaction) []any {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	t.Status = statusFor(t)
	return []any{
		t.ID, t.BatchID, t.RowNumber, t.Date, t.Description, t.Debit, t.Credit, t.Balance, t.Currency,
		t.BankReference, t.BankAccount, t.PaymentMode, t.DedupeKey, string(t.Status),
		t.SuggestedAccount, t.SuggestedCounterparty, t.SuggestedTax, t.SuggestionConfidence, t.SuggestionRule,
	}
}

// insertIfNew reports false when the dedupe key already exists.
func (r *PostgresRepository) insertIfNew(ctx context.Context, q db.DBTX, t *BankTransaction) (bool, error) {
	query := `
		INSERT INTO bank_transactions (` + insertTransactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (dedupe_key) DO NOTHING
		RETURNING created_at, updated_at
	`
	err := q.QueryRow(ctx, query, transactionArgs(t)...).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to insert transaction row %d: %w", t.RowNumber, err)
	}
	return true, nil
}

// InsertTransaction stores one row and maps a dedupe key collision to ErrDuplicate.
func (r *PostgresRepository) InsertTransaction(ctx context.Context, t *BankTransaction) error {
	query := `
		INSERT INTO bank_transactions (` + insertTransactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		RETURNING created_at, updated_at
	`
	err := r.pool.QueryRow(ctx, query, transactionArgs(t)...).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicate, t.DedupeKey)
		}
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

// ExistingDedupeKeys returns the subset of keys already stored.
func (r *PostgresRepository) ExistingDedupeKeys(ctx context.Context, keys []string) (map[string]bool, error) {
	found := make(map[string]bool)
	if len(keys) == 0 {
		return found, nil
	}

	query := `SELECT dedupe_key FROM bank_transactions WHERE dedupe_key = ANY($1)`
	rows, err := r.pool.Query(ctx, query, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to look up dedupe keys: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan dedupe key: %w", err)
		}
		found[key] = true
	}
	return found, rows.Err()
}

// GetBatch returns ErrBatchNotFound for unknown ids.
func (r *PostgresRepository) GetBatch(ctx context.Context, id uuid.UUID) (*ImportBatch, error) {
	query := `SELECT ` + batchColumns + ` FROM import_batches WHERE id = $1`

	b, err := scanBatch(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBatchNotFound
		}
		return nil, fmt.Errorf("failed to get import batch: %w", err)
	}
	return b, nil
}

// ListBatches returns the most recent batches first.
func (r *PostgresRepository) ListBatches(ctx context.Context, limit int) ([]*ImportBatch, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	query := `SELECT ` + batchColumns + ` FROM import_batches ORDER BY started_at DESC LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list import batches: %w", err)
	}
	defer rows.Close()

	var batches []*ImportBatch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan import batch: %w", err)
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

// DeleteBatch removes a batch; its transactions go with it.
func (r *PostgresRepository) DeleteBatch(ctx context.Context, id uuid.UUID) (*ImportBatch, error) {
	query := `DELETE FROM import_batches WHERE id = $1 RETURNING ` + batchColumns

	b, err := scanBatch(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBatchNotFound
		}
		return nil, fmt.Errorf("failed to delete import batch: %w", err)
	}
	return b, nil
}

// GetTransaction returns ErrNotFound for unknown ids.
func (r *PostgresRepository) GetTransaction(ctx context.Context, id uuid.UUID) (*BankTransaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM bank_transactions WHERE id = $1`

	t, err := scanTransaction(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return t, nil
}

func (r *PostgresRepository) queryTransactions(ctx context.Context, query string, args ...any) ([]*BankTransaction, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var txns []*BankTransaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

// ListTransactions returns rows in statement order.
func (r *PostgresRepository) ListTransactions(ctx context.Context, f TransactionFilter) ([]*BankTransaction, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query := `
		SELECT ` + transactionColumns + `
		FROM bank_transactions
		WHERE ($1::uuid IS NULL OR batch_id = $1)
		  AND ($2 = '' OR status = $2)
		ORDER BY txn_date, row_number
		LIMIT $3
	`
	return r.queryTransactions(ctx, query, f.BatchID, string(f.Status), limit)
}

// ListAutoPostCandidates returns Matched rows with an account and at least minConfidence.
func (r *PostgresRepository) ListAutoPostCandidates(ctx context.Context, minConfidence float64, limit int) ([]*BankTransaction, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	query := `
		SELECT ` + transactionColumns + `
		FROM bank_transactions
		WHERE status = 'Matched'
		  AND suggested_account <> ''
		  AND suggestion_confidence >= $1
		ORDER BY txn_date, row_number
		LIMIT $2
	`
	return r.queryTransactions(ctx, query, minConfidence, limit)
}

// UpdateSuggestion writes categorization onto an unposted row. A row with an
// account or counterparty becomes Matched, one with neither returns to
// Unmatched.
func (r *PostgresRepository) UpdateSuggestion(ctx context.Context, id uuid.UUID, s Suggestion) (*BankTransaction, error) {
	query := `
		UPDATE bank_transactions
		SET suggested_account = $2,
			suggested_counterparty = $3,
			suggested_tax = $4,
			suggestion_confidence = $5,
			suggestion_rule = $6,
			category_confirmed = $7,
			payment_mode = CASE WHEN payment_mode = '' THEN $8 ELSE payment_mode END,
			status = CASE WHEN $2 <> '' OR $3 <> '' THEN 'Matched' ELSE 'Unmatched' END,
			updated_at = now()
		WHERE id = $1 AND status <> 'Posted'
		RETURNING ` + transactionColumns

	t, err := scanTransaction(r.pool.QueryRow(ctx, query, id, s.Account, s.Counterparty, s.Tax,
		s.Confidence, s.Rule, s.Confirmed, s.PaymentMode))
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to update suggestion: %w", err)
	}

	if _, getErr := r.GetTransaction(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, ErrAlreadyPosted
}

func (r *PostgresRepository) lockTransaction(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*BankTransaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM bank_transactions WHERE id = $1 FOR UPDATE`

	t, err := scanTransaction(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to lock transaction: %w", err)
	}
	return t, nil
}

// PostTransaction implements TransactionRepository.
func (r *PostgresRepository) PostTransaction(ctx context.Context, id uuid.UUID, post func(ctx context.Context, t *BankTransaction) (*PostingRef, error)) (*BankTransaction, error) {
	var posted *BankTransaction
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		t, err := r.lockTransaction(ctx, tx, id)
		if err != nil {
			return err
		}
		if t.Status == StatusPosted {
			return ErrAlreadyPosted
		}

		ref, err := post(db.WithTx(ctx, tx), t)
		if err != nil {
			return err
		}

		query := `
			UPDATE bank_transactions
			SET status = 'Posted', posted_voucher = $2, posted_voucher_type = $3,
				posted_at = now(), updated_at = now()
			WHERE id = $1 AND status <> 'Posted'
			RETURNING ` + transactionColumns

		posted, err = scanTransaction(tx.QueryRow(ctx, query, id, ref.Voucher, ref.VoucherType))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrAlreadyPosted
			}
			return fmt.Errorf("failed to mark transaction posted: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return posted, nil
}

// ReverseTransaction implements TransactionRepository.
func (r *PostgresRepository) ReverseTransaction(ctx context.Context, id uuid.UUID, reverse func(ctx context.Context, t *BankTransaction) error) (*BankTransaction, error) {
	var reversed *BankTransaction
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		t, err := r.lockTransaction(ctx, tx, id)
		if err != nil {
			return err
		}
		if t.Status != StatusPosted {
			return ErrNotPosted
		}

		if err := reverse(db.WithTx(ctx, tx), t); err != nil {
			return err
		}

		query := `
			UPDATE bank_transactions
			SET status = 'Matched', posted_voucher = NULL, posted_voucher_type = NULL,
				posted_at = NULL, updated_at = now()
			WHERE id = $1 AND status = 'Posted'
			RETURNING ` + transactionColumns

		reversed, err = scanTransaction(tx.QueryRow(ctx, query, id))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotPosted
			}
			return fmt.Errorf("failed to reverse transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reversed, nil
}
