package categorization

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/FACorreiaa/statement-reconciler/pkg/db"
)

// Store persists rules, counterparties and the chart of accounts.
type Store interface {
	ListRules(ctx context.Context) ([]Rule, error)
	CreateRule(ctx context.Context, r *Rule) error
	ListCounterparties(ctx context.Context) ([]Counterparty, error)
	UpsertCounterparty(ctx context.Context, c *Counterparty) error
	ListAccounts(ctx context.Context) ([]Account, error)
}

// Repository handles database operations for categorization
type Repository struct {
	db db.DBTX
}

// NewRepository creates a new categorization repository
func NewRepository(pool db.DBTX) *Repository {
	return &Repository{db: pool}
}

var _ Store = (*Repository)(nil)

// ListRules fetches enabled rules, highest priority first.
func (r *Repository) ListRules(ctx context.Context) ([]Rule, error) {
	query := `
		SELECT id, name, priority, patterns, account, counterparty, tax, payment_mode
		FROM categorization_rules
		WHERE enabled
		ORDER BY priority DESC, created_at
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var rules []Rule
	for rows.Next() {
		var rule Rule
		if err := rows.Scan(
			&rule.ID,
			&rule.Name,
			&rule.Priority,
			&rule.Patterns,
			&rule.Account,
			&rule.Counterparty,
			&rule.Tax,
			&rule.PaymentMode,
		); err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// CreateRule inserts a rule after validating it.
func (r *Repository) CreateRule(ctx context.Context, rule *Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}

	query := `
		INSERT INTO categorization_rules (id, name, priority, patterns, account, counterparty, tax, payment_mode, enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.Exec(ctx, query, rule.ID, rule.Name, rule.Priority, rule.Patterns,
		rule.Account, rule.Counterparty, rule.Tax, rule.PaymentMode, rule.IsEnabled())
	if err != nil {
		return fmt.Errorf("failed to create rule: %w", err)
	}
	return nil
}

// ListCounterparties returns every known counterparty by name.
func (r *Repository) ListCounterparties(ctx context.Context) ([]Counterparty, error) {
	query := `SELECT id, name, kind, default_account FROM counterparties ORDER BY name`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list counterparties: %w", err)
	}
	defer rows.Close()

	var out []Counterparty
	for rows.Next() {
		var c Counterparty
		if err := rows.Scan(&c.ID, &c.Name, &c.Kind, &c.DefaultAccount); err != nil {
			return nil, fmt.Errorf("failed to scan counterparty: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpsertCounterparty inserts c or updates the row with the same name.
func (r *Repository) UpsertCounterparty(ctx context.Context, c *Counterparty) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Kind == "" {
		c.Kind = "supplier"
	}

	query := `
		INSERT INTO counterparties (id, name, kind, default_account)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE
		SET kind = EXCLUDED.kind, default_account = EXCLUDED.default_account
		RETURNING id
	`
	if err := r.db.QueryRow(ctx, query, c.ID, c.Name, c.Kind, c.DefaultAccount).Scan(&c.ID); err != nil {
		return fmt.Errorf("failed to upsert counterparty: %w", err)
	}
	return nil
}

// ListAccounts returns the chart of accounts.
func (r *Repository) ListAccounts(ctx context.Context) ([]Account, error) {
	query := `SELECT id, name, account_type, is_bank FROM ledger_accounts ORDER BY name`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.Name, &a.Type, &a.IsBank); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
