package sim

import (
	"fmt"
	"math/rand"

	"github.com/pthm-cable/stim/config"
	"github.com/pthm-cable/stim/fluid"
	"github.com/pthm-cable/stim/systems"
	"github.com/pthm-cable/stim/telemetry"
)

// Snapshot copies the complete field and agent state.
func (s *Simulation) Snapshot(bookmark *telemetry.Bookmark) *telemetry.Snapshot {
	f := s.solver.F
	forcing := s.solver.Forcing()

	snap := &telemetry.Snapshot{
		Version:  telemetry.SnapshotVersion,
		RNGSeed:  s.seed,
		N:        f.N,
		Channels: len(f.Dye),
		Step:     s.step,
		Phase:    forcing.Phase,
		VentX:    forcing.VentX,
		VX:       f.VX.Snapshot(),
		VY:       f.VY.Snapshot(),
		Pressure: f.Pressure.Snapshot(),
		Dye:      make([][]float64, len(f.Dye)),
		Boundary: append([]bool(nil), f.Boundary...),
		Bookmark: bookmark,
	}
	for c, d := range f.Dye {
		snap.Dye[c] = d.Snapshot()
	}
	for _, tr := range s.tracers.Tracers() {
		snap.Agents = append(snap.Agents, telemetry.AgentState{
			X: tr.X, Y: tr.Y, Z: tr.Z, W: tr.W, Channel: tr.Channel,
		})
	}
	return snap
}

// Restore builds a simulation that continues from snap. It runs on a copy of cfg
// whose grid size, channel count and agent count are replaced by the snapshot's. The RNG is reseeded from the
// snapshot seed and step, so a restored run is reproducible but does not replay the
// uninterrupted run's random sequence.
func Restore(cfg *config.Config, snap *telemetry.Snapshot, opts Options) (*Simulation, error) {
	if err := snap.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}
	cfg = cfg.Clone()
	cfg.Grid.N = snap.N
	cfg.Dye.Channels = snap.Channels
	cfg.Agents.Count = len(snap.Agents)
	cfg.Seed = snap.RNGSeed
	cfg.ComputeDerived()

	rng := rand.New(rand.NewSource(snap.RNGSeed + snap.Step))
	s, err := build(cfg, opts, snap.RNGSeed, rng)
	if err != nil {
		return nil, err
	}

	f := s.solver.F
	copy(f.VX.Cur, snap.VX)
	copy(f.VY.Cur, snap.VY)
	copy(f.Pressure.Cur, snap.Pressure)
	copy(f.Boundary, snap.Boundary)
	for c, d := range snap.Dye {
		copy(f.Dye[c].Cur, d)
	}
	f.EnforceBounds()
	s.solver.SetForcing(fluid.Forcing{Phase: snap.Phase, VentX: snap.VentX})

	tracers := make([]systems.Tracer, len(snap.Agents))
	for i, a := range snap.Agents {
		tracers[i] = systems.Tracer{X: a.X, Y: a.Y, Z: a.Z, W: a.W, Channel: a.Channel}
	}
	s.tracers = systems.NewTracerSystemFrom(cfg, tracers)

	s.step = snap.Step
	s.collector.StartAt(s.step)
	return s, nil
}
