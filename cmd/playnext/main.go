package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chriscorrea/playnext/internal/app"
	"github.com/chriscorrea/playnext/internal/config"
	"github.com/chriscorrea/playnext/internal/fetch"
	"github.com/chriscorrea/playnext/internal/ingest"
	"github.com/chriscorrea/playnext/internal/recommend"
	"github.com/chriscorrea/playnext/internal/server"
)

// loadSettings layers the config file and environment, then applies any
// flags the user set, and validates the result.
func loadSettings(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()

	path, _ := flags.GetString("config")
	settings, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if flags.Changed("source") {
		settings.Source, _ = flags.GetString("source")
	}
	if flags.Changed("format") {
		settings.Format, _ = flags.GetString("format")
	}
	if flags.Changed("snapshot-dir") {
		settings.SnapshotDir, _ = flags.GetString("snapshot-dir")
	}
	if flags.Changed("top") {
		settings.TopN, _ = flags.GetInt("top")
	}
	if flags.Changed("alpha") {
		settings.Engine.Alpha, _ = flags.GetFloat64("alpha")
	}
	if flags.Changed("quiet") {
		settings.Quiet, _ = flags.GetBool("quiet")
	}
	if flags.Changed("debug") {
		settings.Debug, _ = flags.GetBool("debug")
	}
	if flags.Lookup("addr") != nil && flags.Changed("addr") {
		settings.Server.Addr, _ = flags.GetString("addr")
	}

	// output format flags are mutually exclusive
	mdFlag, _ := flags.GetBool("md")
	textFlag, _ := flags.GetBool("text")
	jsonFlag, _ := flags.GetBool("json")
	switch {
	case mdFlag:
		settings.Output = "markdown"
	case textFlag:
		settings.Output = "text"
	case jsonFlag:
		settings.Output = "json"
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

// buildConfig maps validated settings onto an app.Config.
func buildConfig(settings *config.Config, rebuild bool) (app.Config, error) {
	format, err := ingest.ParseFormat(settings.Format)
	if err != nil {
		return app.Config{}, err
	}
	output, err := app.ParseOutputFormat(settings.Output)
	if err != nil {
		return app.Config{}, err
	}

	fetchOpts := fetch.DefaultOptions()
	fetchOpts.MaxHTTPBytes = settings.Fetch.MaxBytes
	fetchOpts.Timeout = settings.Fetch.Timeout

	return app.Config{
		Source:       settings.Source,
		Format:       format,
		SnapshotDir:  settings.SnapshotDir,
		Rebuild:      rebuild,
		TopN:         settings.TopN,
		QuitCommand:  settings.QuitCommand,
		OutputFormat: output,
		Quiet:        settings.Quiet,
		Engine:       settings.Engine,
		Fetch:        fetchOpts,
	}, nil
}

// setupLogger configures the default slog logger based on debug mode
func setupLogger(debug bool) {
	var level slog.Level
	if debug {
		level = slog.LevelDebug
	} else {
		level = slog.LevelError
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}

// prepare loads settings, installs the logger and builds the engine.
func prepare(ctx context.Context, cmd *cobra.Command) (*config.Config, app.Config, *recommend.Engine, error) {
	settings, err := loadSettings(cmd)
	if err != nil {
		return nil, app.Config{}, nil, fmt.Errorf("configuration error: %w", err)
	}
	setupLogger(settings.Debug)

	rebuild, _ := cmd.Flags().GetBool("rebuild")
	cfg, err := buildConfig(settings, rebuild)
	if err != nil {
		return nil, app.Config{}, nil, fmt.Errorf("configuration error: %w", err)
	}

	engine, err := app.LoadEngine(ctx, cfg)
	if err != nil {
		return nil, app.Config{}, nil, err
	}
	return settings, cfg, engine, nil
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "playnext",
		Short: "Recommend games similar to one you like",
		Long: `Playnext recommends games from a Steam-style catalog by combining
content similarity (genres, tags and categories) with a review-based
quality score.

Examples:
  playnext                       interactive prompt
  playnext recommend "Portal 2"  one-shot recommendation
  playnext serve                 HTTP API on 127.0.0.1:8080`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			_, cfg, engine, err := prepare(ctx, cmd)
			if err != nil {
				return err
			}
			return app.NewSession(engine, cfg, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr()).Run(ctx)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Config file (default: playnext.yaml, or $"+config.PathEnvVar+")")
	flags.StringP("source", "s", "", "Catalog file, http(s) URL, or - for stdin")
	flags.String("format", "", "Catalog format: auto, json or csv")
	flags.String("snapshot-dir", "", "Processed catalog directory (empty disables snapshots)")
	flags.Bool("rebuild", false, "Ignore the stored snapshot and re-ingest the source")
	flags.IntP("top", "n", 0, "Number of recommendations (default 10)")
	flags.Float64("alpha", 0, "Weight of the quality score in the ranking (default 0.5)")

	// output format flags
	flags.Bool("md", false, "Output in Markdown format")
	flags.Bool("text", false, "Output an aligned text table (default)")
	flags.Bool("json", false, "Output in JSON format")
	rootCmd.MarkFlagsMutuallyExclusive("md", "text", "json")

	flags.BoolP("quiet", "q", false, "Suppress prompts, progress and warnings")
	flags.BoolP("debug", "D", false, "Enable debug logging")
	_ = flags.MarkHidden("debug")

	rootCmd.AddCommand(newRecommendCmd(), newServeCmd())
	return rootCmd
}

func newRecommendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recommend <game>",
		Short: "Print recommendations for one game and exit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			_, cfg, engine, err := prepare(ctx, cmd)
			if err != nil {
				return err
			}
			return app.RunOnce(engine, strings.Join(args, " "), cmd.OutOrStdout(), cfg)
		},
	}
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve recommendations over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			settings, cfg, engine, err := prepare(ctx, cmd)
			if err != nil {
				return err
			}

			srv := server.New(engine, server.Config{
				Addr:         settings.Server.Addr,
				ReadTimeout:  settings.Server.ReadTimeout,
				WriteTimeout: settings.Server.WriteTimeout,
				RateLimit:    settings.Server.RateLimit,
				CORSOrigins:  settings.Server.CORSOrigins,
				DefaultTopN:  cfg.TopN,
			})
			if !cfg.Quiet {
				fmt.Fprintf(cmd.ErrOrStderr(), "Listening on http://%s\n", settings.Server.Addr)
			}
			return srv.ListenAndServe(ctx)
		},
	}
	cmd.Flags().String("addr", "", "Listen address (default 127.0.0.1:8080)")
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// unknown games were already reported by the renderer
		var notFound *recommend.NotFoundError
		if !errors.As(err, &notFound) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
