// Package fluid implements a 2D stable-fluids solver on a staggered grid.
package fluid

import (
	"errors"
	"fmt"
	"log/slog"

	"gonum.org/v1/gonum/floats"

	"github.com/pthm-cable/stim/config"
)

// ErrOutOfRange is wrapped by injections addressed outside the domain.
var ErrOutOfRange = errors.New("coordinates out of range")

// StepStats collects the relaxation results of the most recent step.
type StepStats struct {
	DiffuseX    SolveStats
	DiffuseY    SolveStats
	DiffuseDye  SolveStats
	Project     SolveStats // last projection of the step
	Projections int
}

// LogValue implements slog.LogValuer for structured logging.
func (s StepStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("diffuse_x_sweeps", s.DiffuseX.Sweeps),
		slog.Int("diffuse_y_sweeps", s.DiffuseY.Sweeps),
		slog.Int("diffuse_dye_sweeps", s.DiffuseDye.Sweeps),
		slog.Int("project_sweeps", s.Project.Sweeps),
		slog.Float64("project_residual", s.Project.Residual),
		slog.Int("projections", s.Projections),
	)
}

// Solver owns the field storage and the numerical kernels that act on it.
// It is not safe for concurrent use; the sim package serializes access.
type Solver struct {
	F *Fields

	cfg     *config.Config
	dt      float64
	visc    float64
	maxIter int
	minErr  float64
	idw     float64

	forcing Forcing
	last    StepStats
}

// New validates cfg and allocates a solver with zeroed fields.
// cfg must have had ComputeDerived called, which Load does.
func New(cfg *config.Config) (*Solver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("creating solver: %w", err)
	}
	n := cfg.Grid.N
	s := &Solver{
		F:       NewFields(n, cfg.Dye.Channels),
		cfg:     cfg,
		dt:      cfg.Solver.DT,
		visc:    cfg.Solver.Viscosity,
		maxIter: cfg.Solver.MaxIter,
		minErr:  cfg.Solver.MinErr,
		idw:     cfg.Derived.IDW,
	}
	s.forcing.VentX = n / 2
	return s, nil
}

// N returns the grid resolution.
func (s *Solver) N() int { return s.F.N }

// Config returns the configuration the solver was built from.
func (s *Solver) Config() *config.Config { return s.cfg }

// LastStats returns the relaxation results of the most recent kernels.
func (s *Solver) LastStats() StepStats { return s.last }

// ResetStats clears the per-step relaxation record. Called at the start of each step.
func (s *Solver) ResetStats() { s.last = StepStats{} }

func (s *Solver) checkCell(i, j int) error {
	if !s.F.Pressure.InBounds(i, j) {
		return fmt.Errorf("%w: cell (%d, %d) not in [0, %d)", ErrOutOfRange, i, j, s.F.N)
	}
	return nil
}

// ToggleBoundary flips the solid flag of an interior cell. The cell's dye is cleared
// and every face touching it is zeroed. The outer ring cannot be toggled.
func (s *Solver) ToggleBoundary(i, j int) error {
	f := s.F
	n := f.N
	if i < 1 || i > n-2 || j < 1 || j > n-2 {
		return fmt.Errorf("%w: boundary cell (%d, %d) not in [1, %d]", ErrOutOfRange, i, j, n-2)
	}
	k := i*n + j
	f.Boundary[k] = !f.Boundary[k]
	for _, d := range f.Dye {
		d.Set(i, j, 0)
	}
	if f.Boundary[k] {
		f.Pressure.Set(i, j, 0)
	}
	f.EnforceBounds()
	return nil
}

// AddVelocity adds (dx, dy) to the faces on the low side of cell (i, j).
func (s *Solver) AddVelocity(i, j int, dx, dy float64) error {
	if err := s.checkCell(i, j); err != nil {
		return err
	}
	f := s.F
	f.VX.Add(i, j, dx)
	f.VY.Add(i, j, dy)
	f.EnforceBounds()
	return nil
}

// AddDye adds amount of dye on the given channel at cell (i, j), clamped to the
// diffusion ceiling.
func (s *Solver) AddDye(i, j, channel int, amount float64) error {
	if err := s.checkCell(i, j); err != nil {
		return err
	}
	f := s.F
	if channel < 0 || channel >= len(f.Dye) {
		return fmt.Errorf("%w: channel %d not in [0, %d)", ErrOutOfRange, channel, len(f.Dye))
	}
	if f.Boundary[i*f.N+j] {
		return nil
	}
	d := f.Dye[channel]
	d.Set(i, j, clamp(d.At(i, j)+amount, 0, s.cfg.Dye.Max))
	return nil
}

// DyeMass returns the summed dye of one channel.
func (s *Solver) DyeMass(channel int) float64 {
	return floats.Sum(s.F.Dye[channel].Cur)
}

// KineticEnergy returns half the sum of squared face velocities.
func (s *Solver) KineticEnergy() float64 {
	vx, vy := s.F.VX.Cur, s.F.VY.Cur
	return 0.5 * (floats.Dot(vx, vx) + floats.Dot(vy, vy))
}
