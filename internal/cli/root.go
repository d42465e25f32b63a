// Package cli implements the feedrelay command line.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"FeedRelay/internal/app"
	"FeedRelay/internal/config"
	"FeedRelay/internal/logging"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Verbose    bool
}

// NewRootCommand creates the root command for the feedrelay CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "feedrelay",
		Short: "RSS ingestion, dedup and publishing pipeline",
		Long: `FeedRelay collects news items from RSS/Atom feeds, filters duplicates,
publishes approved items to WordPress and disables feeds that keep failing.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML config (defaults to $FEEDRELAY_CONFIG)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(newJobCommand(opts, "ingest", "Fetch every active source once", func(ctx context.Context, a *app.Application) (any, error) {
		return a.RunIngestion(ctx)
	}))
	cmd.AddCommand(newJobCommand(opts, "publish", "Publish one batch of approved items", func(ctx context.Context, a *app.Application) (any, error) {
		return a.RunPublish(ctx)
	}))
	cmd.AddCommand(newJobCommand(opts, "health", "Probe every active source and trip the failing ones", func(ctx context.Context, a *app.Application) (any, error) {
		return a.RunHealthCheck(ctx)
	}))
	cmd.AddCommand(newJobCommand(opts, "sweep", "Delete items older than the retention window", func(ctx context.Context, a *app.Application) (any, error) {
		return a.RunRetentionSweep(ctx)
	}))
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewSourcesCommand(opts))

	return cmd
}

type jobFunc func(ctx context.Context, a *app.Application) (any, error)

// newJobCommand runs one job and prints its result as JSON. The result is
// printed even when the job fails fatally.
func newJobCommand(opts *RootOptions, use, short string, run jobFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			result, runErr := run(cmd.Context(), a)
			if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			if runErr != nil {
				return fmt.Errorf("%s: %w", use, runErr)
			}
			return nil
		},
	}
}

func openApp(cmd *cobra.Command, opts *RootOptions) (*app.Application, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	level := cfg.Logging.Level
	if opts.Verbose {
		level = "debug"
	}
	// Logs go to stderr so stdout stays valid JSON.
	logger := logging.NewWithWriter(cmd.ErrOrStderr(), level, cfg.Logging.Format)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", slog.Any("error", err))
		return nil, err
	}
	return a, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
