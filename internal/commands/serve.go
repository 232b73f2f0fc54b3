package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/FACorreiaa/statement-reconciler/cmd/api"
	"github.com/FACorreiaa/statement-reconciler/pkg/config"
)

func newServeCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return api.Serve(ctx, cfg, opts.logger(cmd.ErrOrStderr()))
		},
	}
}

// withDependencies connects to Postgres, runs migrations and hands the wired
// services to fn.
func withDependencies(cmd *cobra.Command, opts *globalOptions, fn func(ctx context.Context, deps *api.Dependencies) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	// one-shot commands never start the sweep
	cfg.Engine.AutoPostEnabled = false

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	deps, err := api.InitDependencies(ctx, cfg, opts.logger(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	defer deps.Cleanup()

	return fn(ctx, deps)
}
