// Package cmd defines the CLI commands for the edison-gateway executable.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/edison-gateway/internal/config"
	"github.com/JakeFAU/edison-gateway/internal/server"
)

// App is the slice of the application the serve command drives. Tests
// substitute a mock.
type App interface {
	Run(ctx context.Context) error
	Close(ctx context.Context) error
	Logger() *zap.Logger
}

// newApp is the application factory, replaced in tests.
var newApp = func(ctx context.Context, cfg config.Config) (App, error) {
	return server.Build(ctx, cfg)
}

// newRootCmd creates the root command and its subcommands.
func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "edison-gateway",
		Short: "HTTP gateway in front of the Edison task-execution platform.",
		Long: `edison-gateway exposes the Edison platform's job types over a small REST
surface. Callers authenticate with their own Edison API key as a bearer
token; the gateway holds no credentials of its own.`,
		Version:       server.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, JSON or TOML)")

	cmd.AddCommand(newServeCmd(&cfgFile))
	cmd.AddCommand(newJobsCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "edison-gateway:", err)
		os.Exit(1)
	}
}
