package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Fetches every page not yet stored and uploads it",
		Long: `Starts at source.start_page and requests pages until the API returns an
empty one. Pages whose blob already exists are skipped without a request.
A page that fails to upload is logged and listed in the final summary.`,
		Args: cobra.NoArgs,
		RunE: runIngestCommand,
	}
}

func runIngestCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	summary, err := appInstance.Run(ctx)
	if summary.RunID != "" {
		renderSummary(cmd.OutOrStdout(), summary)
	}
	if err != nil {
		// PersistentPostRun is skipped when RunE fails.
		defer appInstance.Close()
		if errors.Is(err, context.Canceled) {
			appInstance.Logger().Warn("Run interrupted", zap.Int("page", summary.StopPage))
		}
		return fmt.Errorf("run ingest: %w", err)
	}
	if len(summary.FailedPages) > 0 {
		appInstance.Logger().Warn("Some pages failed to upload; rerun to retry them",
			zap.Ints("failed_pages", summary.FailedPages))
	}
	return nil
}
