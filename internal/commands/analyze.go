package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/FACorreiaa/statement-reconciler/internal/domain/categorization"
	importservice "github.com/FACorreiaa/statement-reconciler/internal/domain/import/service"
	"github.com/FACorreiaa/statement-reconciler/pkg/config"
)

type statementFlags struct {
	bankAccount string
	currency    string
	bankName    string
	report      string
	asJSON      bool
}

func (f *statementFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.bankAccount, "bank-account", "", "ledger bank account the statement belongs to (required)")
	_ = cmd.MarkFlagRequired("bank-account")
	cmd.Flags().StringVar(&f.currency, "currency", "", "statement currency (default from RECONCILE_DEFAULT_CURRENCY)")
	cmd.Flags().StringVar(&f.bankName, "bank-name", "", "bank name stored on a learned profile")
	cmd.Flags().StringVar(&f.report, "report", "", "write a per-row CSV report to this path")
	cmd.Flags().BoolVar(&f.asJSON, "json", false, "print the result as JSON")
}

func (f *statementFlags) request(path string) (importservice.ImportRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return importservice.ImportRequest{}, fmt.Errorf("failed to read statement: %w", err)
	}
	return importservice.ImportRequest{
		Filename:    filepath.Base(path),
		Data:        data,
		BankAccount: f.bankAccount,
		Currency:    f.currency,
		BankName:    f.bankName,
	}, nil
}

func serviceConfig(engine *config.EngineConfig) importservice.Config {
	return importservice.Config{
		HeaderScanRows:     engine.HeaderScanRows,
		Workers:            engine.Workers,
		DefaultCurrency:    engine.DefaultCurrency,
		PreferReference:    engine.PreferReference,
		ProfileSimilarity:  engine.ProfileSimilarity,
		ProposalConfidence: engine.ProposalConfidence,
	}
}

func newAnalyzeCommand(opts *globalOptions) *cobra.Command {
	var (
		flags     statementFlags
		rulesFile string
	)

	cmd := &cobra.Command{
		Use:   "analyze <file>",
		Short: "Parse a statement and show what would be imported, without a database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := config.LoadEngine()
			if err != nil {
				return err
			}
			if rulesFile != "" {
				engine.RulesFile = rulesFile
			}

			req, err := flags.request(args[0])
			if err != nil {
				return err
			}

			logger := opts.logger(cmd.ErrOrStderr())
			a, err := runAnalyze(cmd.Context(), logger, engine, req)
			if err != nil {
				return err
			}

			if flags.report != "" {
				if err := writeReport(flags.report, analysisRows(a)); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if flags.asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(a)
			}
			printSummary(out, a)
			fmt.Fprintln(out)
			return printTransactions(out, a.Candidates)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&rulesFile, "rules", "", "categorization rules YAML (default from RECONCILE_RULES_FILE)")

	return cmd
}

func runAnalyze(ctx context.Context, logger *slog.Logger, engine *config.EngineConfig, req importservice.ImportRequest) (*importservice.Analysis, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	var svcOpts []importservice.Option
	if engine.RulesFile != "" {
		categorizer, err := categorization.NewService(ctx, logger, nil,
			categorization.WithRulesFile(engine.RulesFile))
		if err != nil {
			return nil, fmt.Errorf("failed to load rules: %w", err)
		}
		defer categorizer.Close()
		svcOpts = append(svcOpts, importservice.WithCategorizer(categorizer))
	}

	svc := importservice.NewImportService(nil, serviceConfig(engine), logger, svcOpts...)
	return svc.Analyze(ctx, req)
}
