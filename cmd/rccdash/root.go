package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/NeptuneCipher42/rcc-dashboard/internal/collect"
	"github.com/NeptuneCipher42/rcc-dashboard/internal/config"
	"github.com/NeptuneCipher42/rcc-dashboard/internal/httpapi"
	"github.com/NeptuneCipher42/rcc-dashboard/internal/probe"
	"github.com/NeptuneCipher42/rcc-dashboard/internal/rcc"
	"github.com/NeptuneCipher42/rcc-dashboard/internal/storage"
	"github.com/NeptuneCipher42/rcc-dashboard/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

type rootOptions struct {
	configPath string
	envFile    string

	cfg    config.Config
	logger *zap.Logger
}

// app is the wired dashboard shared by every subcommand.
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *telemetry.Metrics
	store    *storage.Store
	rcc      *rcc.Client
	status   *collect.Service
}

func newApp(cfg config.Config, logger *zap.Logger) *app {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := telemetry.NewMetrics(reg)

	store := storage.NewStore(cfg.RobotsPath, cfg.HololibZipPath, logger)
	client := rcc.NewClient(cfg, rcc.ExecRunner{}, logger, metrics)
	status := collect.NewService(cfg, probe.NewTCPProber(probe.DefaultTimeout), client, store, logger, metrics)

	return &app{
		cfg:      cfg,
		logger:   logger,
		registry: reg,
		metrics:  metrics,
		store:    store,
		rcc:      client,
		status:   status,
	}
}

func (a *app) handler() http.Handler {
	return httpapi.NewRouter(httpapi.Deps{
		Status:         a.status,
		Ops:            a.rcc,
		Robots:         a.store,
		Zips:           a.store,
		Logger:         a.logger,
		Metrics:        a.metrics,
		MetricsHandler: a.metrics.Handler(),
		StaticDir:      a.cfg.StaticDir,
		MaxUploadMB:    a.cfg.MaxUploadMB,
	})
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "rccdash",
		Short:         "Web dashboard for an RCC Remote package server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load(cmd.Flags())
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "optional config file (yaml, toml or json)")
	flags.StringVar(&opts.envFile, "env-file", "", "optional dotenv file loaded before reading the environment")
	flags.Int("port", 0, "listen port (overrides PORT)")
	flags.Bool("debug", false, "development logging (overrides DEBUG)")
	flags.String("log-level", "", "log level: debug, info, warn, error (overrides LOG_LEVEL)")
	flags.String("rcc-execution-mode", "", "local or docker_exec (overrides RCC_EXECUTION_MODE)")

	root.AddCommand(
		newServeCmd(opts),
		newStatusCmd(opts),
		newCatalogsCmd(opts),
	)
	return root
}

// load resolves configuration with precedence flag > env > file > default
// and builds the logger.
func (o *rootOptions) load(flags *pflag.FlagSet) error {
	v := config.NewViper()
	if err := config.ReadFiles(v, o.envFile, o.configPath); err != nil {
		return err
	}
	for key, flag := range map[string]string{
		"port":               "port",
		"debug":              "debug",
		"log_level":          "log-level",
		"rcc_execution_mode": "rcc-execution-mode",
	} {
		if f := flags.Lookup(flag); f != nil && f.Changed {
			if err := v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("bind --%s: %w", flag, err)
			}
		}
	}

	cfg, err := config.FromViper(v)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger, err := telemetry.NewLogger(cfg.Debug, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	o.cfg = cfg
	o.logger = logger
	return nil
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the dashboard HTTP server (default)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func runServe(parent context.Context, opts *rootOptions) error {
	ctx, cancel := signalAwareContext(parent)
	defer cancel()

	logger := opts.logger
	shutdownTracer, err := telemetry.InitTracer(ctx, logger)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer flushCancel()
		if err := shutdownTracer(flushCtx); err != nil {
			logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}()

	a := newApp(opts.cfg, logger)
	srv := &http.Server{
		Addr:              opts.cfg.ListenAddr(),
		Handler:           a.handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("dashboard listening",
			zap.String("addr", srv.Addr),
			zap.String("rcc_mode", opts.cfg.RCCExecutionMode),
			zap.String("robots_path", opts.cfg.RobotsPath),
			zap.String("hololib_zip_path", opts.cfg.HololibZipPath),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print one status snapshot as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := newApp(opts.cfg, opts.logger)
			return printJSON(cmd.OutOrStdout(), a.status.Status(cmd.Context()))
		},
	}
}

func newCatalogsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "catalogs",
		Short: "Print the holotree catalog listing as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := newApp(opts.cfg, opts.logger)
			list, err := a.status.Catalogs(cmd.Context())
			if err != nil {
				var cmdErr *rcc.CommandError
				if errors.As(err, &cmdErr) {
					if details := cmdErr.Details(); details != "" {
						return fmt.Errorf("%w: %s", err, details)
					}
				}
				return err
			}
			return printJSON(cmd.OutOrStdout(), list)
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
