// Package sim sequences solver steps and runs them on a background worker.
package sim

import (
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/pthm-cable/stim/config"
	"github.com/pthm-cable/stim/fluid"
	"github.com/pthm-cable/stim/systems"
	"github.com/pthm-cable/stim/telemetry"
)

// Options holds optional simulation parameters.
type Options struct {
	Seed          int64  // 0 = config seed
	LogStats      bool   // emit stats and perf via slog at every window
	OutputDir     string // CSV logs, config snapshot and bookmark snapshots; "" = disabled
	StatsCallback func(telemetry.WindowStats)
}

// Simulation owns every piece of per-instance state: fields, tracers, RNG and force
// phase. It is not safe for concurrent use; Runner serializes access.
type Simulation struct {
	cfg     *config.Config
	solver  *fluid.Solver
	tracers *systems.TracerSystem
	rng     *rand.Rand
	seed    int64
	step    int64

	// Telemetry
	perf          *telemetry.PerfCollector
	collector     *telemetry.Collector
	bookmarks     *telemetry.BookmarkDetector
	output        *telemetry.OutputManager
	logStats      bool
	statsCallback func(telemetry.WindowStats)
}

// New builds a simulation from a copy of cfg. Construction fails with an error
// wrapping config.ErrInvalid when cfg cannot be simulated.
func New(cfg *config.Config, opts Options) (*Simulation, error) {
	cfg = cfg.Clone()
	seed := opts.Seed
	if seed == 0 {
		seed = cfg.Seed
	}
	cfg.Seed = seed
	return build(cfg, opts, seed, rand.New(rand.NewSource(seed)))
}

func build(cfg *config.Config, opts Options, seed int64, rng *rand.Rand) (*Simulation, error) {
	solver, err := fluid.New(cfg)
	if err != nil {
		return nil, err
	}

	output, err := telemetry.NewOutputManager(opts.OutputDir)
	if err != nil {
		return nil, err
	}
	if err := output.WriteConfig(cfg); err != nil {
		output.Close()
		return nil, fmt.Errorf("writing config snapshot: %w", err)
	}

	s := &Simulation{
		cfg:           cfg,
		solver:        solver,
		tracers:       systems.NewTracerSystem(cfg, rng),
		rng:           rng,
		seed:          seed,
		perf:          telemetry.NewPerfCollector(cfg.Telemetry.PerfWindow),
		collector:     telemetry.NewCollector(cfg.Telemetry.StatsWindow, cfg.Solver.DT),
		bookmarks:     telemetry.NewBookmarkDetector(10),
		output:        output,
		logStats:      opts.LogStats,
		statsCallback: opts.StatsCallback,
	}
	return s, nil
}

// Step advances the simulation by one step. Pending injections are applied first,
// in order; an injection that fails is logged and skipped.
func (s *Simulation) Step(pending ...Injection) {
	solver := s.solver

	s.perf.StartStep()
	solver.ResetStats()

	if len(pending) > 0 {
		s.perf.StartPhase(telemetry.PhaseInjections)
		for _, inj := range pending {
			err := s.Apply(inj)
			s.collector.RecordInjection(err == nil)
			if err != nil {
				slog.Warn("injection rejected", "kind", inj.Kind.String(), "i", inj.I, "j", inj.J, "error", err)
			}
		}
	}

	s.perf.StartPhase(telemetry.PhaseDiffuseVel)
	solver.DiffuseVelocity()

	s.perf.StartPhase(telemetry.PhaseAgents)
	s.tracers.Update(solver.F, s.rng)

	s.perf.StartPhase(telemetry.PhaseProject)
	solver.Project()

	s.perf.StartPhase(telemetry.PhaseAdvectVel)
	solver.AdvectVelocity()

	s.perf.StartPhase(telemetry.PhaseForces)
	vent := solver.Forcing().VentX
	solver.ApplyForces(s.rng)
	if solver.Forcing().VentX != vent {
		s.collector.RecordVentRelocation()
	}

	s.perf.StartPhase(telemetry.PhaseProject)
	solver.Project()

	s.perf.StartPhase(telemetry.PhaseDiffuseDensity)
	solver.DiffuseDensity()

	s.perf.StartPhase(telemetry.PhaseAdvectDensity)
	solver.AdvectDensity()

	s.step++

	s.perf.StartPhase(telemetry.PhaseTelemetry)
	s.flushTelemetry()

	s.perf.EndStep()
}

// StepCount returns the number of completed steps.
func (s *Simulation) StepCount() int64 { return s.step }

// Seed returns the seed the RNG was created from.
func (s *Simulation) Seed() int64 { return s.seed }

// Config returns the simulation's configuration.
func (s *Simulation) Config() *config.Config { return s.cfg }

// Fields exposes the field arrays for reading. Callers outside the worker must
// hold a Runner view.
func (s *Simulation) Fields() *fluid.Fields { return s.solver.F }

// Solver exposes the solver for reading diagnostics.
func (s *Simulation) Solver() *fluid.Solver { return s.solver }

// Tracers returns a snapshot of the tracer agents in creation order.
func (s *Simulation) Tracers() []systems.Tracer { return s.tracers.Tracers() }

// Perf returns the rolling step timing.
func (s *Simulation) Perf() *telemetry.PerfCollector { return s.perf }

// Close flushes and closes telemetry output.
func (s *Simulation) Close() error {
	return s.output.Close()
}
