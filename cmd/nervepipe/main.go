package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/nvandessel/nervepipe/internal/checkpoint"
	"github.com/nvandessel/nervepipe/internal/config"
	"github.com/nvandessel/nervepipe/internal/handoff"
	"github.com/nvandessel/nervepipe/internal/logging"
	"github.com/nvandessel/nervepipe/internal/pipeline"
	"github.com/nvandessel/nervepipe/internal/project"
	"github.com/nvandessel/nervepipe/internal/report"
	"github.com/nvandessel/nervepipe/internal/status"
	"github.com/spf13/cobra"
)

// Set via ldflags.
var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := newRootCmd()

	ctx, cancel := signalContext()
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		cancel()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "nervepipe",
		Short: "Sample, model and sim pipeline for peripheral nerve stimulation studies",
		Long: `nervepipe prepares nerve samples, places cuff electrodes, resolves
tissue conductivities and generates simulation inputs for a run, hands the
run to the finite element solver, and expands the solved sims afterwards.

Sample and sim stages are checkpointed; with --smart, verified checkpoints
from earlier runs are reused.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().String("root", ".", "Project root directory")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.nervepipe/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: error, warn, info, debug, trace")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newFinalizeCmd(),
		newPlaceCmd(),
		newStatusCmd(),
		newVerifyCmd(),
		newConfigCmd(),
	)
	return rootCmd
}

// signalContext is cancelled on the first interrupt. The solver process is
// not tied to it; cancellation takes effect between stages.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 1)
	notifySignals(ch)
	go func() {
		defer signal.Stop(ch)
		select {
		case <-ch:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// app holds what every pipeline command opens from the flags and config.
type app struct {
	cfg    *config.PipelineConfig
	layout project.Layout
	logger *slog.Logger
	events *logging.EventLog
	store  *status.Store
}

func loadConfig(cmd *cobra.Command) (*config.PipelineConfig, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func openApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	root, _ := cmd.Flags().GetString("root")
	layout, err := project.NewLayout(root)
	if err != nil {
		return nil, err
	}

	logger := logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr())
	store, err := status.Open(cmd.Context(), status.Options{
		Backend:  cfg.Cache.Backend,
		DSN:      cfg.Cache.DSN,
		StateDir: layout.StateDir(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open status store: %w", err)
	}

	return &app{
		cfg:    cfg,
		layout: layout,
		logger: logger,
		events: logging.OpenEventLog(layout.StateDir(), cfg.Logging.Level),
		store:  store,
	}, nil
}

func (a *app) Close() {
	a.events.Close()
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing status store", "error", err)
	}
}

// orchestrator wires the pipeline. Without a solver command, or with
// skipHandoff, runs stop after the sim stages.
func (a *app) orchestrator(ctx context.Context, skipHandoff bool) (*pipeline.Orchestrator, error) {
	o := &pipeline.Orchestrator{
		Layout:   a.layout,
		Resolver: project.NewFileResolver(a.layout),
		Reporter: report.NewLogReporter(a.logger, a.events),
		Status:   a.store,
		Logger:   a.logger,
		Events:   a.events,
		Gateway:  handoff.SkipGateway{},
	}

	if a.cfg.Mirror.Enabled {
		m := a.cfg.Mirror
		mirror, err := checkpoint.NewMinioMirror(ctx, checkpoint.MirrorConfig{
			Endpoint:  m.Endpoint,
			AccessKey: m.AccessKey,
			SecretKey: m.SecretKey,
			Region:    m.Region,
			UseSSL:    m.UseSSL,
			Bucket:    m.Bucket,
			Prefix:    m.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect checkpoint mirror: %w", err)
		}
		o.Mirror = mirror
	}

	switch {
	case skipHandoff:
	case len(a.cfg.Solver.Command) == 0:
		a.logger.Warn("no solver command configured; the handoff will be skipped")
	default:
		gw, err := handoff.NewCommandGateway(handoff.Config{
			Command:       a.cfg.Solver.Command,
			ServerCommand: a.cfg.Solver.ServerCommand,
			Env:           a.cfg.Solver.Env(),
		}, a.logger)
		if err != nil {
			return nil, err
		}
		o.Gateway = gw
	}
	return o, nil
}
