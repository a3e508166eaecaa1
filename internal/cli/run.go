package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/meltshop/internal/clock"
	"github.com/roach88/meltshop/internal/config"
	"github.com/roach88/meltshop/internal/engine"
	"github.com/roach88/meltshop/internal/forward"
	"github.com/roach88/meltshop/internal/httpapi"
	"github.com/roach88/meltshop/internal/metrics"
	"github.com/roach88/meltshop/internal/plant"
	"github.com/roach88/meltshop/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database     string
	Addr         string
	KafkaBrokers []string
	KafkaTopic   string

	// RunIDs overrides the run id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs engine.RunIDGenerator
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <plant-file>",
		Short: "Monitor a plant and serve its HTTP API",
		Long: `Start the single-writer engine for the plant described by the plant
file, poll its sensors from the metrics database and serve the HTTP API.

Settings default to the MELTSHOP_* environment variables; flags override
them. When Kafka brokers are configured, alerts and events are forwarded
to the notifications topic.

Example:
  meltshop run --db ./meltshop.db ./plant.yaml
  MELTSHOP_KAFKA_BROKERS=localhost:9092 meltshop run ./plant.cue`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlant(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite metrics database (default $MELTSHOP_DB)")
	cmd.Flags().StringVar(&opts.Addr, "addr", "", "HTTP listen address (default $MELTSHOP_HTTP_ADDR)")
	cmd.Flags().StringSliceVar(&opts.KafkaBrokers, "kafka-brokers", nil, "Kafka brokers for notification forwarding")
	cmd.Flags().StringVar(&opts.KafkaTopic, "kafka-topic", "", "Kafka topic (default $MELTSHOP_KAFKA_TOPIC)")

	return cmd
}

// settings merges the environment with explicitly set flags.
func (o *RunOptions) settings(cmd *cobra.Command) (config.Env, error) {
	env, err := config.LoadEnv()
	if err != nil {
		return config.Env{}, err
	}
	if cmd.Flags().Changed("db") {
		env.Database = o.Database
	}
	if cmd.Flags().Changed("addr") {
		env.HTTPAddr = o.Addr
	}
	if cmd.Flags().Changed("kafka-brokers") {
		env.KafkaBrokers = o.KafkaBrokers
	}
	if cmd.Flags().Changed("kafka-topic") {
		env.KafkaTopic = o.KafkaTopic
	}
	return env, nil
}

func runPlant(opts *RunOptions, plantFile string, cmd *cobra.Command) error {
	env, err := opts.settings(cmd)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid environment", err)
	}

	cfg, err := config.Load(plantFile)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load plant", err)
	}

	slog.Info("opening database", "path", env.Database)
	st, err := store.Open(env.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	runIDs := opts.RunIDs
	if runIDs == nil {
		runIDs = engine.UUIDv7Generator{}
	}
	eng := engine.New(engine.WithRunIDs(runIDs))

	clk := clock.System{}
	plantOpts := []plant.Option{plant.WithSubmitter(eng)}
	if env.MonitorInterval > 0 {
		plantOpts = append(plantOpts, plant.WithInterval(env.MonitorInterval))
	}
	p, err := plant.Build(cfg, clk, plant.StoredSensors(st), plantOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build plant", err)
	}

	// Use the command's context if available (for testing).
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	runID := eng.NewRun()
	if err := st.WriteRun(ctx, store.Run{ID: runID, Plant: cfg.Name, StartedAt: clk.Now()}); err != nil {
		return WrapExitError(ExitCommandError, "failed to record run", err)
	}
	defer func() {
		// The run context is gone by now; finishing must still land.
		finishCtx, finishCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer finishCancel()
		if err := st.FinishRun(finishCtx, runID, clk.Now()); err != nil {
			slog.Error("error finishing run", "run", runID, "error", err)
		}
	}()

	m := metrics.New()
	subs := m.Attach(p.Alerts(), p.Events(), p.Sessions())
	defer func() {
		for _, sub := range subs {
			sub.Cancel()
		}
	}()

	if len(env.KafkaBrokers) > 0 {
		fw := forward.New(forward.NewKafkaWriter(env.KafkaBrokers, env.KafkaTopic), forward.WithRecorder(m))
		subs = append(subs, fw.Attach(p.Alerts(), p.Events())...)
		go func() {
			if err := fw.Run(ctx); err != nil && !stopped(err) {
				slog.Error("forwarder stopped", "error", err)
			}
		}()
		slog.Info("forwarding notifications", "brokers", env.KafkaBrokers, "topic", env.KafkaTopic)
	}

	engineDone := make(chan error, 1)
	go func() { engineDone <- eng.Run(ctx) }()

	p.Init(ctx)
	defer p.Stop()

	slog.Info("plant running", "plant", cfg.Name, "run", runID, "addr", env.HTTPAddr)
	fmt.Fprintf(cmd.OutOrStdout(), "Plant %s running (run %s). Press Ctrl-C to stop.\n", cfg.Name, runID)

	srv := httpapi.New(p, eng, m)
	serveErr := srv.ListenAndServe(ctx, env.HTTPAddr)
	cancel()

	if err := <-engineDone; err != nil && !stopped(err) {
		return WrapExitError(ExitFailure, "engine error", err)
	}
	if serveErr != nil {
		return WrapExitError(ExitFailure, "http server error", serveErr)
	}

	slog.Info("plant stopped gracefully", "run", runID)
	return nil
}

// stopped reports whether err only says the run context ended.
func stopped(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
