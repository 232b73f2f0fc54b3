package commands

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/FACorreiaa/statement-reconciler/cmd/api"
)

func parseIDs(args []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(args))
	for _, a := range args {
		id, err := uuid.Parse(a)
		if err != nil {
			return nil, fmt.Errorf("invalid transaction id %q: %w", a, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func newPostCommand(opts *globalOptions) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "post <transaction-id>...",
		Short: "Post categorized transactions to the ledger",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}

			return withDependencies(cmd, opts, func(ctx context.Context, deps *api.Dependencies) error {
				out := cmd.OutOrStdout()
				failed := 0
				for _, id := range ids {
					if dryRun {
						v, err := deps.PostingEngine.Preview(ctx, id)
						if err != nil {
							fmt.Fprintf(out, "%s\terror: %v\n", id, err)
							failed++
							continue
						}
						fmt.Fprintf(out, "%s\t%s\t%s\n", id, v.Type(), v.Amount().StringFixed(2))
						for _, l := range v.Lines() {
							fmt.Fprintf(out, "\t%-30s Dr %12s  Cr %12s\n", l.Account, l.Debit.StringFixed(2), l.Credit.StringFixed(2))
						}
						continue
					}

					t, err := deps.PostingEngine.Post(ctx, id)
					if err != nil {
						fmt.Fprintf(out, "%s\terror: %v\n", id, err)
						failed++
						continue
					}
					fmt.Fprintf(out, "%s\t%s\t%s\n", id, t.PostedVoucherType, t.PostedVoucher)
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d transactions not posted", failed, len(ids))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show the vouchers without posting")
	return cmd
}

func newReverseCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reverse <transaction-id>",
		Short: "Cancel the voucher of a posted transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}

			return withDependencies(cmd, opts, func(ctx context.Context, deps *api.Dependencies) error {
				t, err := deps.PostingEngine.Reverse(ctx, ids[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", t.ID, t.Status)
				return nil
			})
		},
	}
}

func newAutoPostCommand(opts *globalOptions) *cobra.Command {
	var (
		minConfidence float64
		limit         int
	)

	cmd := &cobra.Command{
		Use:   "auto-post",
		Short: "Post every matched transaction above a confidence threshold",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDependencies(cmd, opts, func(ctx context.Context, deps *api.Dependencies) error {
				if !cmd.Flags().Changed("min-confidence") {
					minConfidence = deps.Config.Engine.AutoPostConfidence
				}
				res, err := deps.PostingEngine.AutoPost(ctx, minConfidence, limit)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "candidates %d, posted %d, skipped %d, failed %d\n",
					res.Candidates, res.Posted, res.Skipped, res.Failed)
				return nil
			})
		},
	}

	cmd.Flags().Float64Var(&minConfidence, "min-confidence", 100, "minimum suggestion confidence")
	cmd.Flags().IntVar(&limit, "limit", 200, "maximum transactions per run")
	return cmd
}
