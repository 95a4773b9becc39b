// Package cli implements the ecfplookup command line: flag parsing, settings
// and parameter loading, wiring of the engine, reader and lookup service, and
// mapping of run errors to process exit codes.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/turtacn/ecfplookup/internal/application/lookup"
	"github.com/turtacn/ecfplookup/internal/config"
	"github.com/turtacn/ecfplookup/internal/domain/ecfp"
	"github.com/turtacn/ecfplookup/internal/domain/molecule"
	"github.com/turtacn/ecfplookup/internal/infrastructure/engine/remote"
	"github.com/turtacn/ecfplookup/internal/infrastructure/molio"
	"github.com/turtacn/ecfplookup/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ecfplookup/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/ecfplookup/pkg/errors"
)

// Build-time variables injected via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Process exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 2
)

// metricsNamespace prefixes every exported metric.
const metricsNamespace = "ecfplookup"

// RootOptions holds the command line flags.
type RootOptions struct {
	IDName       bool
	IDProp       string
	ParamsPath   string
	SettingsPath string

	EngineURL      string
	EngineTimeout  time.Duration
	Format         string
	LogLevel       string
	LogFormat      string
	MetricsPushURL string
}

// usageError marks flag and argument mistakes so they map to ExitUsage.
type usageError struct{ err error }

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

// NewRootCommand creates the ecfplookup command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "ecfplookup [flags] < molecules",
		Short: "Print the substructures behind the ECFP features of molecules",
		Long: "ecfplookup reads molecules (SD file or SMILES, optionally gzip or zstd compressed)\n" +
			"from standard input, computes their ECFP fingerprints and prints every feature\n" +
			"occurrence to standard output as\n\n" +
			"  <SMARTS> <ID> ECFPID: <id> ECFPBIT: <bit> DIA: <diameter> ATOM: <atom>\n\n" +
			"Diagnostics are written to standard error.",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return &usageError{err: fmt.Errorf("unexpected arguments: %s", strings.Join(args, " "))}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("idprop") && strings.TrimSpace(opts.IDProp) == "" {
				return &usageError{err: fmt.Errorf("flag -idprop needs a non-empty property name")}
			}
			return run(cmd, opts)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	f := cmd.Flags()
	f.BoolVar(&opts.IDName, "idname", false, "use molecule names as ids (takes precedence over -idprop)")
	f.StringVar(&opts.IDProp, "idprop", "", "use the value of the named molecule property as id")
	f.StringVarP(&opts.ParamsPath, "config", "c", "", "ECFP parameter file (yaml, json or toml); defaults are used when omitted")
	f.StringVar(&opts.SettingsPath, "settings", "", "tool settings file; ECFPLOOKUP_* environment variables apply without it")

	f.StringVar(&opts.EngineURL, "engine-url", "", "cheminformatics engine base URL")
	f.DurationVar(&opts.EngineTimeout, "engine-timeout", 0, "timeout of a single engine request")
	f.StringVar(&opts.Format, "format", "", "input format: auto, sdf or smiles")
	f.StringVar(&opts.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	f.StringVar(&opts.LogFormat, "log-format", "", "log encoding (console, json)")
	f.StringVar(&opts.MetricsPushURL, "metrics-push-url", "", "Pushgateway URL for run metrics")

	return cmd
}

// normalizeArgs rewrites single-dash long flags such as -idname into their
// double-dash form so that pflag does not read them as shorthand clusters.
// Arguments after "--" are left alone.
func normalizeArgs(flags *pflag.FlagSet, args []string) []string {
	out := make([]string, 0, len(args))
	for i, a := range args {
		if a == "--" {
			return append(out, args[i:]...)
		}
		if len(a) > 2 && a[0] == '-' && a[1] != '-' {
			name := a[1:]
			if j := strings.IndexByte(name, '='); j >= 0 {
				name = name[:j]
			}
			if len(name) > 1 && flags.Lookup(name) != nil {
				a = "-" + a
			}
		}
		out = append(out, a)
	}
	return out
}

// ExecuteArgs runs the command with explicit arguments and streams.
func ExecuteArgs(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	cmd := NewRootCommand()
	cmd.SetArgs(normalizeArgs(cmd.Flags(), args))
	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	if err := cmd.ExecuteContext(ctx); err != nil {
		PrintError(cmd, err)
		return err
	}
	return nil
}

// Execute is the main entry point for the CLI application.
func Execute() error {
	return ExecuteArgs(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
}

// ExitCode maps an Execute error to a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var ue *usageError
	if errors.As(err, &ue) {
		return ExitUsage
	}
	return ExitFailure
}

// PrintError writes a formatted error message to stderr.
func PrintError(cmd *cobra.Command, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", err.Error())
	if ExitCode(err) == ExitUsage {
		fmt.Fprintf(cmd.ErrOrStderr(), "Run '%s -h' for usage.\n", cmd.Name())
	}
}

// loadSettings reads tool settings and applies flag overrides.
func loadSettings(cmd *cobra.Command, opts *RootOptions) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.SettingsPath != "" {
		cfg, err = config.Load(opts.SettingsPath)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfiguration, "invalid settings")
	}

	f := cmd.Flags()
	if f.Changed("engine-url") {
		cfg.Engine.URL = opts.EngineURL
	}
	if f.Changed("engine-timeout") {
		cfg.Engine.Timeout = opts.EngineTimeout
	}
	if f.Changed("format") {
		cfg.Input.Format = strings.ToLower(opts.Format)
	}
	if f.Changed("log-level") {
		cfg.Log.Level = strings.ToLower(opts.LogLevel)
	}
	if f.Changed("log-format") {
		cfg.Log.Format = strings.ToLower(opts.LogFormat)
	}
	if f.Changed("metrics-push-url") {
		cfg.Metrics.PushURL = opts.MetricsPushURL
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfiguration, "invalid settings")
	}
	return cfg, nil
}

// loadParameters returns the fingerprint parameters of the run.
func loadParameters(opts *RootOptions, logger logging.Logger) (*ecfp.Parameters, error) {
	if opts.ParamsPath == "" {
		logger.Info("using default ECFP parameters")
		return ecfp.DefaultParameters(), nil
	}
	logger.Info("reading ECFP parameters", logging.String("path", opts.ParamsPath))
	return ecfp.LoadParameters(opts.ParamsPath)
}

func readerOptions(cfg *config.Config) ([]molio.Option, error) {
	if cfg.Input.Format == "" || cfg.Input.Format == "auto" {
		return nil, nil
	}
	f, err := molecule.ParseFormat(cfg.Input.Format)
	if err != nil {
		return nil, err
	}
	return []molio.Option{molio.WithFormat(f)}, nil
}

func run(cmd *cobra.Command, opts *RootOptions) error {
	ctx := cmd.Context()

	cfg, err := loadSettings(cmd, opts)
	if err != nil {
		return err
	}

	runID := uuid.New().String()
	logger := logging.NewLoggerWithWriter(logging.LogConfig{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	}, cmd.ErrOrStderr()).With(logging.String("run_id", runID))
	defer func() { _ = logger.Sync() }()

	params, err := loadParameters(opts, logger)
	if err != nil {
		return err
	}
	logger.Debug("ECFP parameters", logging.String("parameters", params.String()))

	client, err := remote.NewClient(cfg.Engine.URL,
		remote.WithAPIKey(cfg.Engine.APIKey),
		remote.WithTimeout(cfg.Engine.Timeout),
		remote.WithLogger(logger.Named("engine")),
		remote.WithUserAgent("ecfplookup/"+Version),
	)
	if err != nil {
		return err
	}
	logger.Info("using engine", logging.String("url", client.BaseURL()))

	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{Namespace: metricsNamespace}, logger)
	if err != nil {
		return err
	}
	metrics := prometheus.NewRunMetrics(collector)
	defer func() {
		if cfg.Metrics.PushURL == "" {
			return
		}
		if perr := collector.Push(ctx, cfg.Metrics.PushURL, cfg.Metrics.Job, map[string]string{"run_id": runID}); perr != nil {
			logger.Warn("metrics push failed", logging.Err(perr))
		}
	}()

	ropts, err := readerOptions(cfg)
	if err != nil {
		return err
	}
	logger.Info("reading molecules from standard input")
	reader, err := molio.NewReader(cmd.InOrStdin(), ropts...)
	if err != nil {
		return err
	}
	defer reader.Close()

	svc, err := lookup.NewService(
		remote.NewEngine(client),
		params,
		lookup.IdentifierResolver{UseName: opts.IDName, Property: opts.IDProp},
		lookup.NewReporter(cmd.OutOrStdout()),
		lookup.WithLogger(logger),
		lookup.WithMetrics(metrics),
	)
	if err != nil {
		return err
	}

	_, err = svc.Run(ctx, reader)
	return err
}
