package categorization

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func TestRepository_ListRules(t *testing.T) {
	mock := newMock(t)
	repo := NewRepository(mock)
	id := uuid.New()

	mock.ExpectQuery(`SELECT id, name, priority, patterns`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "priority", "patterns", "account", "counterparty", "tax", "payment_mode"}).
			AddRow(id, "rent", 4, []string{"rent", "lease"}, "Rent", "", "", "NEFT"))

	rules, err := repo.ListRules(context.Background())
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, id, rules[0].ID)
	assert.Equal(t, []string{"rent", "lease"}, rules[0].Patterns)
	assert.Equal(t, "NEFT", rules[0].PaymentMode)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_CreateRule(t *testing.T) {
	mock := newMock(t)
	repo := NewRepository(mock)

	t.Run("invalid rule never reaches the database", func(t *testing.T) {
		err := repo.CreateRule(context.Background(), &Rule{Name: "empty"})
		assert.ErrorIs(t, err, ErrInvalidRule)
	})

	t.Run("insert", func(t *testing.T) {
		rule := &Rule{Name: "rent", Priority: 4, Patterns: []string{"rent"}, Account: "Rent"}
		mock.ExpectExec(`INSERT INTO categorization_rules`).
			WithArgs(pgxmock.AnyArg(), "rent", 4, []string{"rent"}, "Rent", "", "", "", true).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, repo.CreateRule(context.Background(), rule))
		assert.NotEqual(t, uuid.Nil, rule.ID)
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_UpsertCounterparty(t *testing.T) {
	mock := newMock(t)
	repo := NewRepository(mock)
	existing := uuid.New()

	mock.ExpectQuery(`INSERT INTO counterparties`).
		WithArgs(pgxmock.AnyArg(), "Swiggy", "supplier", "Meals").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(existing))

	c := &Counterparty{Name: "Swiggy", DefaultAccount: "Meals"}
	require.NoError(t, repo.UpsertCounterparty(context.Background(), c))
	assert.Equal(t, existing, c.ID, "conflicting row keeps its id")
	assert.Equal(t, "supplier", c.Kind)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_ListCounterpartiesAndAccounts(t *testing.T) {
	mock := newMock(t)
	repo := NewRepository(mock)

	mock.ExpectQuery(`FROM counterparties`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "kind", "default_account"}).
			AddRow(uuid.New(), "Acme Corp", "customer", "Sales").
			AddRow(uuid.New(), "Swiggy", "supplier", "Meals"))
	mock.ExpectQuery(`FROM ledger_accounts`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "account_type", "is_bank"}).
			AddRow(uuid.New(), "HDFC Current", "Bank", true))

	cps, err := repo.ListCounterparties(context.Background())
	require.NoError(t, err)
	assert.Len(t, cps, 2)

	accounts, err := repo.ListAccounts(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.True(t, accounts[0].IsBank)
	assert.NoError(t, mock.ExpectationsWereMet())
}
