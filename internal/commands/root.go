// Package commands implements the lsctl command tree.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vapeshed/cis-bricks/config"
	"github.com/vapeshed/cis-bricks/httpclient"
	"github.com/vapeshed/cis-bricks/lightspeed"
	"github.com/vapeshed/cis-bricks/logger"
	"github.com/vapeshed/cis-bricks/observability"
)

const (
	// ExitFailure is returned for any failed command.
	ExitFailure = 1
	// ExitCanceled is returned when the command was interrupted.
	ExitCanceled = 130

	shutdownTimeout = 5 * time.Second
	skipSession     = "skip-session"
)

// Options wires the command tree to its environment.
type Options struct {
	Version string
	Stdout  io.Writer
	Stderr  io.Writer
	// Environ defaults to os.Environ.
	Environ func() []string
}

// rootOptions holds the persistent flags.
type rootOptions struct {
	ConfigFile string
	LogLevel   string
	Pretty     bool
}

// session is built once per invocation before a subcommand runs.
type session struct {
	opts     Options
	flags    rootOptions
	cfg      *config.Config
	log      logger.Logger
	provider observability.Provider
	client   *lightspeed.Client
}

// NewRootCommand creates the lsctl command tree.
func NewRootCommand(opts Options) *cobra.Command {
	cmd, _ := newRootCommand(opts)
	return cmd
}

func newRootCommand(opts Options) (*cobra.Command, *session) {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Environ == nil {
		opts.Environ = os.Environ
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}

	rt := &session{opts: opts}

	rootCmd := &cobra.Command{
		Use:   "lsctl",
		Short: "Query the Lightspeed Retail API through the resilient client",
		Long: `lsctl issues calls against the Lightspeed Retail (Vend) 2.0 API using the
same retry, idempotency and correlation-ID handling as the services.

Every command prints a JSON envelope on stdout. Logs go to stderr.`,
		Version:       opts.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[skipSession] == "true" {
				return nil
			}
			return rt.init()
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			return rt.close()
		},
	}
	rootCmd.SetOut(opts.Stdout)
	rootCmd.SetErr(opts.Stderr)

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&rt.flags.ConfigFile, "config", "c", "config.yaml", "YAML configuration file (optional)")
	flags.StringVar(&rt.flags.LogLevel, "log-level", "", "Override log.level")
	flags.BoolVar(&rt.flags.Pretty, "pretty", false, "Human-readable logs on stderr")

	rootCmd.AddCommand(
		newGetCommand(rt),
		newOutletsCommand(rt),
		newSnapshotCommand(rt),
		newConfigCommand(rt),
		newVersionCommand(rt),
	)
	return rootCmd, rt
}

// Execute runs the command tree with args under ctx.
func Execute(ctx context.Context, opts Options, args []string) error {
	cmd, rt := newRootCommand(opts)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	// Post-run hooks are skipped when a command fails.
	if closeErr := rt.close(); err == nil {
		err = closeErr
	}
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
	}
	return err
}

// ExitCode maps the outcome of Execute to a process exit status.
func ExitCode(ctx context.Context, err error) int {
	switch {
	case err == nil:
		return 0
	case ctx.Err() != nil, errors.Is(err, context.Canceled):
		return ExitCanceled
	default:
		return ExitFailure
	}
}

func (rt *session) init() error {
	cfg, err := config.LoadFrom(config.Options{
		Files:   []string{rt.flags.ConfigFile},
		Environ: rt.opts.Environ,
	})
	if err != nil {
		return err
	}
	if rt.flags.LogLevel != "" {
		cfg.Log.Level = rt.flags.LogLevel
	}
	if rt.flags.Pretty {
		cfg.Log.Pretty = true
	}
	rt.cfg = cfg
	rt.log = logger.NewWithWriter(rt.opts.Stderr, cfg.Log.Level, cfg.Log.Pretty, cfg.FilterConfig())

	provider, err := observability.NewProvider(&cfg.Observability,
		observability.WithLogger(rt.log),
		observability.WithStdoutWriter(rt.opts.Stderr),
	)
	if err != nil {
		return err
	}
	rt.provider = provider

	hcCfg := cfg.HTTPClientConfig()
	hcCfg.TracerProvider = provider.TracerProvider()
	hcCfg.MeterProvider = provider.MeterProvider()
	hc, err := httpclient.New(hcCfg, rt.log)
	if err != nil {
		return err
	}

	rt.client, err = lightspeed.New(hc,
		lightspeed.WithLogger(rt.log),
		lightspeed.WithPageSize(cfg.Lightspeed.PageSize),
		lightspeed.WithMaxConcurrent(cfg.Sync.MaxConcurrent),
		lightspeed.WithRateLimit(cfg.Lightspeed.Rate.Limit, cfg.Lightspeed.Rate.Burst),
		lightspeed.WithTracerProvider(provider.TracerProvider()),
	)
	return err
}

func (rt *session) close() error {
	if rt.provider == nil {
		return nil
	}
	err := observability.Shutdown(rt.provider, shutdownTimeout)
	rt.provider = nil
	return err
}
