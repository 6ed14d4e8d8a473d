package fluid

import (
	"math"
	"math/rand"
)

// Forcing is the persistent state of the external force sources.
type Forcing struct {
	Phase float64 // fountain oscillator phase
	VentX int     // current vent column
}

// ApplyForces injects the fountain, vent and gravity momentum for one step.
// rng drives the vent; it is the simulation's seeded source.
func (s *Solver) ApplyForces(rng *rand.Rand) {
	f := s.F
	n := f.N
	cfg := s.cfg
	d := &cfg.Derived

	if cfg.Fountain.Enabled {
		s.forcing.Phase += cfg.Fountain.PhaseRate
		loc := d.FountainCell
		f.VX.Set(loc, loc, math.Sin(s.forcing.Phase)*d.FountainK1+cfg.Fountain.BiasX)
		f.VY.Set(loc, loc, math.Cos(s.forcing.Phase)*d.FountainK1+cfg.Fountain.BiasY)
	}

	if cfg.Vent.Enabled {
		if rng.Float64() < cfg.Vent.RelocateChance {
			s.forcing.VentX = rng.Intn(int(float64(n)*0.8)+int(float64(n)*0.1)) + 1
		}
		row := d.VentRow
		f.VX.Add(s.forcing.VentX, row, rng.Float64()*d.VentJitter-d.VentJitter/2)
		f.VY.Add(s.forcing.VentX, row, -rng.Float64()*d.VentLift)
	}

	if cfg.Gravity.Enabled {
		gx := cfg.Gravity.X * s.dt
		gy := cfg.Gravity.Y * s.dt
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				if f.Boundary[i*n+j] {
					continue
				}
				f.VX.Add(i, j, gx)
				f.VY.Add(i, j, gy)
			}
		}
	}

	f.EnforceBounds()
}

// Forcing returns a copy of the force source state.
func (s *Solver) Forcing() Forcing { return s.forcing }

// SetForcing replaces the force source state, e.g. when resuming from a snapshot.
// The vent column is clamped into the interior.
func (s *Solver) SetForcing(f Forcing) {
	f.VentX = clampInt(f.VentX, 1, s.F.N-2)
	s.forcing = f
}
