// Package cli implements the callrail-extractor command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Sternrassler/callrail-extractor/pkg/catalog"
	"github.com/Sternrassler/callrail-extractor/pkg/config"
	"github.com/Sternrassler/callrail-extractor/pkg/extract"
	"github.com/Sternrassler/callrail-extractor/pkg/logging"
	"github.com/Sternrassler/callrail-extractor/pkg/metrics"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// errEndpointsFailed is returned when the run completed but at least one
// endpoint failed. It only sets the exit code; the summary already says why.
var errEndpointsFailed = errors.New("one or more endpoints failed")

// Options are the root command flags.
type Options struct {
	APIKey        string
	Endpoints     []string
	All           bool
	Limit         int
	BatchSize     int
	ListEndpoints bool
	EndpointInfo  string
	ConfigPath    string
	Formats       []string
	SummaryJSON   string
	MetricsFile   string
	DataDir       string
	LogLevel      string
}

// NewRootCmd builds the callrail-extractor command.
func NewRootCmd() *cobra.Command {
	opts := &Options{}
	registry := catalog.Default()

	rootCmd := &cobra.Command{
		Use:   "callrail-extractor",
		Short: "Download CallRail v3 resources to CSV or Parquet",
		Long: `callrail-extractor walks CallRail v3 collection endpoints in batches,
normalizes the records and writes one file per endpoint.

Settings come from callrail.yaml, CALLRAIL_* environment variables (.env is
loaded first) and the flags below, in increasing order of precedence.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, opts, registry)
		},
	}

	f := rootCmd.Flags()
	f.StringVar(&opts.APIKey, "api-key", "", "CallRail API key (env CALLRAIL_API_KEY)")
	f.StringSliceVarP(&opts.Endpoints, "endpoints", "e", nil, "Comma separated endpoints to download")
	f.BoolVar(&opts.All, "all", false, "Download every known endpoint")
	f.IntVarP(&opts.Limit, "limit", "l", 100, "Maximum records per endpoint (default from api.max_records)")
	f.IntVarP(&opts.BatchSize, "batch-size", "b", 0, "Records per batch (default from batch.default_size)")
	f.BoolVar(&opts.ListEndpoints, "list-endpoints", false, "List available endpoints and exit")
	f.StringVar(&opts.EndpointInfo, "endpoint-info", "", "Show details for one endpoint and exit")
	f.StringVar(&opts.ConfigPath, "config", "", "Path to a yaml config file (env CALLRAIL_CONFIG)")
	f.StringSliceVar(&opts.Formats, "format", nil, "Output formats: csv, parquet")
	f.StringVar(&opts.SummaryJSON, "summary-json", "", "Run summary path (default <data_dir>/run_summary.json)")
	f.StringVar(&opts.MetricsFile, "metrics-file", "", "Write a Prometheus textfile after the run")
	f.StringVar(&opts.DataDir, "data-dir", "", "Output directory (default data)")
	f.StringVar(&opts.LogLevel, "log-level", "", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(newListCmd(registry), newInfoCmd(registry))

	return rootCmd
}

func newListCmd(registry *catalog.Registry) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := io.WriteString(cmd.OutOrStdout(), renderEndpointList(registry))
			return err
		},
	}
}

func newInfoCmd(registry *catalog.Registry) *cobra.Command {
	return &cobra.Command{
		Use:   "info NAME",
		Short: "Show details for one endpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return showInfo(cmd.OutOrStdout(), registry, args[0])
		},
	}
}

func showInfo(w io.Writer, registry *catalog.Registry, name string) error {
	info, ok := registry.Info(name)
	if !ok {
		return &extract.ConfigError{Invalid: []string{name}, Available: registry.Names()}
	}
	_, err := io.WriteString(w, renderEndpointInfo(info))
	return err
}

// overrides collects the flags the user actually set, keyed by config key.
func overrides(cmd *cobra.Command, opts *Options) map[string]any {
	out := make(map[string]any)
	set := func(flag, key string, value any) {
		if cmd.Flags().Changed(flag) {
			out[key] = value
		}
	}
	set("api-key", "api.key", opts.APIKey)
	set("format", "output.formats", opts.Formats)
	set("summary-json", "output.summary_path", opts.SummaryJSON)
	set("metrics-file", "output.metrics_file", opts.MetricsFile)
	set("data-dir", "output.data_dir", opts.DataDir)
	set("log-level", "log.level", opts.LogLevel)
	return out
}

func run(cmd *cobra.Command, opts *Options, registry *catalog.Registry) error {
	stdout := cmd.OutOrStdout()

	if opts.ListEndpoints {
		_, err := io.WriteString(stdout, renderEndpointList(registry))
		return err
	}
	if opts.EndpointInfo != "" {
		return showInfo(stdout, registry, opts.EndpointInfo)
	}

	names := opts.Endpoints
	if opts.All {
		names = registry.Names()
	}
	if len(names) == 0 {
		fmt.Fprintln(stdout, "Nothing to do: pass --all or --endpoints (see --list-endpoints).")
		return nil
	}
	// Bad names fail here, before redis or the upload bucket is contacted.
	names, err := extract.ValidateNames(registry, names)
	if err != nil {
		return err
	}

	cfg, err := config.Load(opts.ConfigPath, overrides(cmd, opts))
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger, closeLog, err := logging.Open(logging.Config{
		Level:  logging.LogLevel(cfg.Log.Level),
		Pretty: cfg.Log.Pretty,
		Output: cmd.ErrOrStderr(),
		File:   cfg.Log.File,
	})
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	runID := uuid.NewString()
	logger = logger.With().Str("component", "cli").Str("run_id", runID).Logger()

	a, err := newApp(ctx, cfg, registry, runID)
	if err != nil {
		logger.Error().Err(err).Msg("Setup failed")
		return err
	}
	defer func() { _ = a.Close() }()

	limit := cfg.API.MaxRecords
	if cmd.Flags().Changed("limit") {
		limit = opts.Limit
	}

	summary, err := a.coordinator.Run(ctx, names, limit, opts.BatchSize)
	if err != nil {
		logger.Error().Err(err).Msg("Run failed")
		return err
	}

	summary.Log(logger)
	if err := summary.WriteJSON(cfg.SummaryFile()); err != nil {
		logger.Error().Err(err).Msg("Failed to write run summary")
		return err
	}
	logger.Info().Str("path", cfg.SummaryFile()).Msg("Run summary written")

	if _, err := io.WriteString(stdout, renderSummary(summary)); err != nil {
		return err
	}

	if cfg.Output.MetricsFile != "" {
		if err := metrics.WriteTextfile(cfg.Output.MetricsFile); err != nil {
			logger.Warn().Err(err).Msg("Failed to write metrics textfile")
		}
	}

	if summary.ExitCode() != 0 {
		return errEndpointsFailed
	}
	return nil
}

// Execute runs the command with args and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errEndpointsFailed):
		return 1
	default:
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
}
