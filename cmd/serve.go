package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/edison-gateway/internal/config"
)

// newServeCmd creates the 'serve' subcommand, which runs the HTTP gateway
// until interrupted.
func newServeCmd(cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Starts the HTTP gateway",
		Long: `Loads configuration from --config, .env and EDISON_GATEWAY_* environment
variables, then serves the gateway until SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), *cfgFile)
		},
	}
}

func runServe(ctx context.Context, cfgFile string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	app, err := newApp(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application services: %w", err)
	}

	if err := app.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		app.Logger().Error("gateway stopped with error", zap.Error(err))
		return fmt.Errorf("run gateway: %w", err)
	}
	return nil
}
