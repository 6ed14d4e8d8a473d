package main

import (
	"context"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pthm-cable/stim/config"
	"github.com/pthm-cable/stim/sim"
	"github.com/pthm-cable/stim/stream"
	"github.com/pthm-cable/stim/telemetry"
	"github.com/pthm-cable/stim/terminal"
	"github.com/pthm-cable/stim/viewer"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	headless := flag.Bool("headless", false, "Run without graphics")
	ascii := flag.Bool("ascii", false, "Render in the terminal instead of a window")
	serve := flag.String("serve", "", "Serve the websocket frame stream on this address (e.g. :8080)")
	logStats := flag.Bool("log-stats", false, "Output stats via slog")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs, config snapshot and bookmark snapshots")
	resume := flag.String("resume", "", "Continue from a snapshot file")
	seed := flag.Int64("seed", 0, "RNG seed (0 = use config)")
	maxSteps := flag.Int64("max-steps", 0, "Stop after N steps (0 = unlimited)")
	stepsPerSecond := flag.Float64("steps-per-second", -1, "Step rate limit (0 = unthrottled, -1 = use config)")

	flag.Parse()

	// Set up slog (JSON to stdout for structured logging). The terminal view owns
	// stdout, so it logs to a file instead.
	var logOut io.Writer = os.Stdout
	if *ascii {
		f, err := os.OpenFile("stim.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			slog.Error("failed to open log file", "error", err)
			os.Exit(1)
		}
		defer f.Close()
		logOut = f
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(logOut, nil)))

	// Initialize config before anything else
	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()

	opts := sim.Options{
		Seed:      *seed,
		LogStats:  *logStats,
		OutputDir: *outputDir,
	}

	s, err := newSimulation(cfg, opts, *resume)
	if err != nil {
		slog.Error("failed to create simulation", "error", err)
		os.Exit(1)
	}
	defer s.Close()
	cfg = s.Config()

	runnerOpts := sim.RunnerOptions{MaxSteps: *maxSteps}
	if *stepsPerSecond >= 0 {
		runnerOpts.StepsPerSecond = *stepsPerSecond
		cfg.Loop.StepsPerSecond = *stepsPerSecond
	}
	runner := sim.NewRunner(s, runnerOpts)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *serve != "" {
		hub := stream.NewHub(runner, cfg)
		go hub.Run(ctx)
		go func() {
			if err := stream.Serve(ctx, *serve, hub); err != nil {
				slog.Error("stream server failed", "error", err)
			}
		}()
	}

	slog.Info("starting simulation",
		"seed", s.Seed(),
		"n", cfg.Grid.N,
		"step", s.StepCount(),
		"max_steps", *maxSteps,
		"headless", *headless,
		"ascii", *ascii,
		"serve", *serve,
	)

	if err := runner.Start(ctx); err != nil {
		slog.Error("failed to start simulation", "error", err)
		os.Exit(1)
	}

	switch {
	case *headless:
		select {
		case <-ctx.Done():
		case <-runner.Done():
		}
	case *ascii:
		if err := terminal.New(runner).Run(ctx); err != nil {
			slog.Error("terminal view failed", "error", err)
		}
	default:
		viewer.New(runner, cfg).Run(ctx)
	}

	runner.Stop()
	slog.Info("simulation finished", "step", s.StepCount())
}

// newSimulation builds a fresh simulation, or restores one when resume names a snapshot.
func newSimulation(cfg *config.Config, opts sim.Options, resume string) (*sim.Simulation, error) {
	if resume == "" {
		return sim.New(cfg, opts)
	}
	snap, err := telemetry.LoadSnapshot(resume)
	if err != nil {
		return nil, err
	}
	slog.Info("resuming from snapshot", "path", resume, "step", snap.Step)
	return sim.Restore(cfg, snap, opts)
}
