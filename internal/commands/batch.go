package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/FACorreiaa/statement-reconciler/cmd/api"
)

func newDeleteBatchCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-batch <batch-id>",
		Short: "Delete an import batch, its transactions and its archived file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid batch id %q: %w", args[0], err)
			}

			return withDependencies(cmd, opts, func(ctx context.Context, deps *api.Dependencies) error {
				batch, err := deps.ImportService.DeleteBatch(ctx, id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted batch %s (%s, %d transactions)\n",
					batch.ID, batch.Filename, batch.Imported)
				return nil
			})
		},
	}
}

func newBatchFileCommand(opts *globalOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "batch-file <batch-id>",
		Short: "Write the statement archived for an import batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid batch id %q: %w", args[0], err)
			}

			return withDependencies(cmd, opts, func(ctx context.Context, deps *api.Dependencies) error {
				rc, info, err := deps.ImportService.BatchFile(ctx, id)
				if err != nil {
					return err
				}
				defer rc.Close()

				if output == "" {
					output = filepath.Base(info.Name)
				}
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", output, err)
				}
				defer f.Close()

				n, err := io.Copy(f, rc)
				if err != nil {
					return fmt.Errorf("failed to write %s: %w", output, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", output, n)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "destination path (defaults to the original filename)")
	return cmd
}

func newBatchesCommand(opts *globalOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "batches",
		Short: "List recent import batches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDependencies(cmd, opts, func(ctx context.Context, deps *api.Dependencies) error {
				batches, err := deps.ImportService.ListBatches(ctx, limit)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tFILE\tSTATUS\tIMPORTED\tDUPLICATES\tSTARTED")
				for _, b := range batches {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
						b.ID, b.Filename, b.Status, b.Imported, b.Duplicates, b.StartedAt.Format(time.RFC3339))
				}
				return tw.Flush()
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum batches to list")
	return cmd
}

func newCounterpartiesCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "counterparties",
		Short: "Manage known customers and suppliers",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "seed <file.csv>",
		Short: "Load counterparties from a name,kind,default_account CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDependencies(cmd, opts, func(ctx context.Context, deps *api.Dependencies) error {
				if err := deps.SeedCounterparties(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d counterparties known\n", len(deps.CategorizationService.CounterpartyNames()))
				return nil
			})
		},
	})

	return cmd
}
