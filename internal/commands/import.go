package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/FACorreiaa/statement-reconciler/cmd/api"
)

func newImportCommand(opts *globalOptions) *cobra.Command {
	var (
		flags statementFlags
		learn bool
	)

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a statement into Postgres",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := flags.request(args[0])
			if err != nil {
				return err
			}
			req.LearnProfile = learn

			return withDependencies(cmd, opts, func(ctx context.Context, deps *api.Dependencies) error {
				res, err := deps.ImportService.Import(ctx, req)
				if err != nil {
					return err
				}

				if flags.report != "" {
					if err := writeReport(flags.report, importRows(res)); err != nil {
						return err
					}
				}

				out := cmd.OutOrStdout()
				if flags.asJSON {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(res.Batch)
				}

				printSummary(out, res.Analysis)
				fmt.Fprintf(out, "\nBatch %s: %d inserted, %d duplicates skipped\n",
					res.Batch.ID, len(res.Inserted), len(res.Duplicates))
				if res.Profile != nil {
					fmt.Fprintf(out, "Profile %s stored for %s\n", res.Profile.ID, res.Profile.BankName)
				}
				return nil
			})
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&learn, "learn-profile", true, "store the detected layout as a bank profile")

	return cmd
}
