// Package cmd defines the CLI commands for the journal-ingest executable.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/journal-ingest/internal/app"
	"github.com/JakeFAU/journal-ingest/internal/config"
	"github.com/JakeFAU/journal-ingest/internal/ingest"
	"github.com/JakeFAU/journal-ingest/internal/logging"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App is the part of *app.App the commands use. Tests swap in a fake.
type App interface {
	Run(ctx context.Context) (ingest.Summary, error)
	Logger() *zap.Logger
	Close()
}

// newApp is the application factory, replaced in tests.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	return app.New(ctx, cfg, logger)
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "journal-ingest",
		Short: "Copies the article metadata API into object storage, one blob per page.",
		Long: `journal-ingest walks the article API page by page and stores each page
as page={n}.json under storage.prefix (default metadata) in the configured
bucket. Pages already present are skipped, so an interrupted run can simply
be started again.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Load config and build services before the subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); INGEST_* env vars override it")
	cmd.AddCommand(newRunCmd())
	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, fmt.Errorf("application services are not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	// A missing .env is fine; existing environment variables win.
	_ = godotenv.Load()

	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "journal-ingest: %v\n", err)
		os.Exit(1)
	}
}
