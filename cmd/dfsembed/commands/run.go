package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittofs-embedded/internal/logger"
	"github.com/marmos91/dittofs-embedded/internal/telemetry"
	"github.com/marmos91/dittofs-embedded/pkg/config"
	"github.com/marmos91/dittofs-embedded/pkg/embedded"
	"github.com/marmos91/dittofs-embedded/pkg/subsystem"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the embedded subsystem and wait for a signal",
		Long: `Start the embedded subsystem in the foreground.

The process stops on SIGINT or SIGTERM, running every registered cleanup
action within shutdown_timeout.

Environment variables override the config file, for example:
  DITTOFS_EMBEDDED_LOGGING_LEVEL=DEBUG dfsembed run`,
		Args: cobra.NoArgs,
		RunE: runRun,
	}
}

func runRun(cmd *cobra.Command, _ []string) error {
	// Loaded here as well as by the controller so logging is set up before it exists.
	cfg, err := config.Load(configPaths...)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "dfsembed",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			logger.Error("Telemetry shutdown error", logger.Err(err))
		}
	}()

	shutdownProfiling, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "dfsembed",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := shutdownProfiling(); err != nil {
			logger.Error("Profiling shutdown error", logger.Err(err))
		}
	}()

	logger.Info("Telemetry", "tracing", telemetry.IsEnabled(), "profiling", telemetry.IsProfilingEnabled())

	ctrl, err := embedded.New(embedded.Options{
		ConfigPaths: configPaths,
		Builder:     subsystem.NewBuilder(),
		Context:     ctx,
		Version:     Version,
	})
	if err != nil {
		return err
	}

	started := ctrl.Start()
	select {
	case <-started.Done():
		if err := started.Err(); err != nil {
			stopController(ctrl)
			return fmt.Errorf("failed to start: %w", err)
		}
	case <-ctx.Done():
	}

	if ctx.Err() == nil {
		if sub, ok := ctrl.Subsystem(); ok {
			if sc, ok := sub.(*subsystem.Context); ok {
				fmt.Fprintf(cmd.OutOrStdout(), "dfsembed running on http://%s (node %s)\n", sc.HTTPServer().Addr(), ctrl.NodeID())
			}
		}
		logger.Info("Running. Press Ctrl+C to stop.")
		<-ctx.Done()
	}

	logger.Info("Shutdown signal received, initiating graceful shutdown")
	return stopController(ctrl)
}

// stopController runs cleanup bounded by shutdown_timeout.
func stopController(ctrl *embedded.Controller) error {
	timeout := ctrl.Config().ShutdownTimeout
	if timeout <= 0 {
		timeout = config.DefaultShutdownTimeout
	}
	return awaitStop(ctrl.Stop(), timeout)
}

// awaitStop waits up to timeout for the stop outcome. It reports a timeout
// only when the outcome is still pending, so cleanup actions that failed on
// their own deadlines are reported as cleanup errors.
func awaitStop(out *embedded.Outcome, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := out.Wait(ctx); err != nil && !out.Resolved() {
		logger.Error("Shutdown timed out", "timeout", timeout.String())
		return err
	}
	if err := out.Err(); err != nil {
		logger.Error("Shutdown completed with errors", logger.Err(err))
		return err
	}
	logger.Info("Stopped gracefully")
	return nil
}
