// Package e2etest runs the import and posting flow against a real Postgres.
// Set RECONCILE_E2E=1 together with the DB_* variables to run it.
package e2etest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/statement-reconciler/cmd/api"
	"github.com/FACorreiaa/statement-reconciler/internal/domain/import/mapper"
	"github.com/FACorreiaa/statement-reconciler/internal/domain/import/repository"
	"github.com/FACorreiaa/statement-reconciler/internal/domain/import/service"
	"github.com/FACorreiaa/statement-reconciler/internal/domain/posting"
	"github.com/FACorreiaa/statement-reconciler/pkg/config"
)

// cgdStatement mimics a Caixa Geral de Depósitos export: a preamble before the
// header, semicolon delimiters, Portuguese headers and European amounts.
const cgdStatement = "Consultar saldos e movimentos;;;;\n" +
	"Conta;0123456789;;;\n" +
	";;;;\n" +
	"Data mov;Descrição;Débito;Crédito;Saldo\n" +
	"02-01-2024;LEV ATM 0042 LISBOA;200,00;;1.800,00\n" +
	"05-01-2024;TRF SALARIO ACME LDA;;2.500,00;4.300,00\n" +
	"08-01-2024;COMPRA CONTINENTE;1.234,56;;3.065,44\n"

const rules = `
rules:
  - name: atm withdrawal
    priority: 20
    patterns: ["LEV ATM"]
    account: Cash
  - name: salary
    priority: 10
    patterns: ["SALARIO"]
    account: Salaries Received
`

func setup(t *testing.T) *api.Dependencies {
	t.Helper()
	if os.Getenv("RECONCILE_E2E") == "" {
		t.Skip("RECONCILE_E2E not set")
	}

	cfg, err := config.Load()
	require.NoError(t, err)

	dir := t.TempDir()
	rulesFile := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(rulesFile, []byte(rules), 0o644))

	cfg.Storage.LocalPath = filepath.Join(dir, "statements")
	cfg.Storage.SearchIndexPath = ""
	cfg.Engine.RulesFile = rulesFile
	cfg.Engine.CounterpartySeed = ""
	cfg.Engine.AutoPostEnabled = false
	cfg.Engine.DefaultCurrency = "EUR"

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	deps, err := api.InitDependencies(ctx, cfg, logger)
	require.NoError(t, err)
	t.Cleanup(deps.Cleanup)
	return deps
}

func request(account string) service.ImportRequest {
	return service.ImportRequest{
		Filename:     "comprovativo.csv",
		Data:         []byte(cgdStatement),
		BankAccount:  account,
		BankName:     "CGD",
		LearnProfile: true,
	}
}

func TestCGDStatement_ImportPostReverse(t *testing.T) {
	deps := setup(t)
	ctx := context.Background()
	account := fmt.Sprintf("CGD Ordem %s", uuid.NewString()[:8])

	t.Run("Analyze", func(t *testing.T) {
		a, err := deps.ImportService.Analyze(ctx, request(account))
		require.NoError(t, err)

		assert.Equal(t, ';', a.Delimiter)
		assert.Equal(t, 3, a.HeaderRow)
		assert.True(t, a.Dialect.IsEuropeanFormat)
		assert.Equal(t, 3, a.ValidRows)
		assert.Empty(t, a.Faults)
		assert.Equal(t, 2, a.Matched)
	})

	res, err := deps.ImportService.Import(ctx, request(account))
	require.NoError(t, err)
	require.Len(t, res.Inserted, 3)
	assert.Empty(t, res.Duplicates)
	assert.Equal(t, repository.BatchCompleted, res.Batch.Status)
	assert.Equal(t, "1234.56", res.Inserted[2].Debit.StringFixed(2))

	t.Run("LearnedProfileIsReused", func(t *testing.T) {
		again, err := deps.ImportService.Analyze(ctx, request(account))
		require.NoError(t, err)
		if res.Profile != nil {
			assert.Equal(t, mapper.SourceExact, again.Resolution.Source)
		}
		assert.Equal(t, 3, again.Duplicates)
	})

	t.Run("ReimportIsIdempotent", func(t *testing.T) {
		again, err := deps.ImportService.Import(ctx, request(account))
		require.NoError(t, err)
		assert.Empty(t, again.Inserted)
		assert.Len(t, again.Duplicates, 3)
		_, err = deps.ImportService.DeleteBatch(ctx, again.Batch.ID)
		require.NoError(t, err)
	})

	var atm *repository.BankTransaction
	for _, txn := range res.Inserted {
		if txn.SuggestedAccount == "Cash" {
			atm = txn
		}
	}
	require.NotNil(t, atm, "ATM withdrawal should be categorized")

	t.Run("PostAndReverse", func(t *testing.T) {
		posted, err := deps.PostingEngine.Post(ctx, atm.ID)
		require.NoError(t, err)
		assert.Equal(t, repository.StatusPosted, posted.Status)
		assert.Equal(t, string(posting.VoucherPayment), posted.PostedVoucherType)
		assert.NotEmpty(t, posted.PostedVoucher)

		_, err = deps.PostingEngine.Post(ctx, atm.ID)
		assert.ErrorIs(t, err, posting.ErrAlreadyPosted)

		reversed, err := deps.PostingEngine.Reverse(ctx, atm.ID)
		require.NoError(t, err)
		assert.Equal(t, repository.StatusMatched, reversed.Status)
		assert.Empty(t, reversed.PostedVoucher)
	})

	t.Run("UncategorizedCannotPost", func(t *testing.T) {
		var groceries *repository.BankTransaction
		for _, txn := range res.Inserted {
			if txn.SuggestedAccount == "" {
				groceries = txn
			}
		}
		require.NotNil(t, groceries)
		_, err := deps.PostingEngine.Post(ctx, groceries.ID)
		assert.Error(t, err)
	})

	t.Run("ArchivedFile", func(t *testing.T) {
		rc, info, err := deps.ImportService.BatchFile(ctx, res.Batch.ID)
		require.NoError(t, err)
		defer rc.Close()
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, cgdStatement, string(data))
		assert.Equal(t, "comprovativo.csv", info.Name)
	})

	t.Run("DeleteBatch", func(t *testing.T) {
		deleted, err := deps.ImportService.DeleteBatch(ctx, res.Batch.ID)
		require.NoError(t, err)
		assert.Equal(t, res.Batch.ID, deleted.ID)

		_, err = deps.ImportService.GetBatch(ctx, res.Batch.ID)
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})
}
