package telemetry

import (
	"log/slog"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/stim/fluid"
)

// WindowStats holds aggregated statistics for a window of steps.
type WindowStats struct {
	WindowStartStep int64   `csv:"-"`
	WindowEndStep   int64   `csv:"window_end"`
	SimTime         float64 `csv:"sim_time"`

	// Dye (sampled at window end)
	DyeMass0   float64 `csv:"dye_mass_0"`
	DyeMass1   float64 `csv:"dye_mass_1"`
	DyeTotal   float64 `csv:"dye_total"`
	DyeMaxCell float64 `csv:"dye_max_cell"`

	// Velocity (sampled at window end)
	KineticEnergy float64 `csv:"kinetic_energy"`
	MaxVX         float64 `csv:"max_vx"`
	MaxVY         float64 `csv:"max_vy"`
	MaxDivergence float64 `csv:"max_divergence"`
	SolidCells    int     `csv:"solid_cells"`

	// Tracer drift bias magnitude
	AgentCount int     `csv:"agents"`
	BiasMean   float64 `csv:"bias_mean"`
	BiasStd    float64 `csv:"bias_std"`
	BiasP90    float64 `csv:"bias_p90"`

	// Relaxation (last step of the window)
	DiffuseSweeps   int     `csv:"diffuse_sweeps"`
	ProjectSweeps   int     `csv:"project_sweeps"`
	ProjectResidual float64 `csv:"project_residual"`

	// Events during window
	Injections      int `csv:"injections"`
	RejectedInjects int `csv:"rejected_injections"`
	VentRelocations int `csv:"vent_relocations"`
}

// FieldSample is a reduction of the field state at one instant.
type FieldSample struct {
	DyeMass       []float64
	DyeMaxCell    float64
	KineticEnergy float64
	MaxVX         float64
	MaxVY         float64
	MaxDivergence float64
	SolidCells    int
}

// SampleFields reduces the current field arrays. It only reads f.
func SampleFields(f *fluid.Fields) FieldSample {
	s := FieldSample{DyeMass: make([]float64, len(f.Dye))}
	for c, d := range f.Dye {
		s.DyeMass[c] = floats.Sum(d.Cur)
		if m := floats.Max(d.Cur); m > s.DyeMaxCell {
			s.DyeMaxCell = m
		}
	}
	vx, vy := f.VX.Cur, f.VY.Cur
	s.KineticEnergy = 0.5 * (floats.Dot(vx, vx) + floats.Dot(vy, vy))
	s.MaxVX = math.Max(floats.Max(vx), -floats.Min(vx))
	s.MaxVY = math.Max(floats.Max(vy), -floats.Min(vy))
	s.MaxDivergence = f.MaxDivergence()
	for _, b := range f.Boundary {
		if b {
			s.SolidCells++
		}
	}
	return s
}

// Percentile calculates the p-th percentile of a sorted slice.
// p should be in [0, 1]. Returns 0 if slice is empty.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	idx := p * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// ComputeSpread calculates mean, standard deviation and 90th percentile.
func ComputeSpread(values []float64) (mean, std, p90 float64) {
	n := len(values)
	if n == 0 {
		return 0, 0, 0
	}
	if n == 1 {
		return values[0], 0, values[0]
	}

	mean, std = stat.MeanStdDev(values, nil)

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)
	p90 = Percentile(sorted, 0.90)

	return mean, std, p90
}

// LogValue implements slog.LogValuer for structured logging.
func (s WindowStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("window_start", s.WindowStartStep),
		slog.Int64("window_end", s.WindowEndStep),
		slog.Float64("sim_time", s.SimTime),
		slog.Float64("dye_mass_0", s.DyeMass0),
		slog.Float64("dye_mass_1", s.DyeMass1),
		slog.Float64("dye_total", s.DyeTotal),
		slog.Float64("dye_max_cell", s.DyeMaxCell),
		slog.Float64("kinetic_energy", s.KineticEnergy),
		slog.Float64("max_vx", s.MaxVX),
		slog.Float64("max_vy", s.MaxVY),
		slog.Float64("max_divergence", s.MaxDivergence),
		slog.Int("solid_cells", s.SolidCells),
		slog.Int("agents", s.AgentCount),
		slog.Float64("bias_mean", s.BiasMean),
		slog.Float64("bias_std", s.BiasStd),
		slog.Float64("bias_p90", s.BiasP90),
		slog.Int("diffuse_sweeps", s.DiffuseSweeps),
		slog.Int("project_sweeps", s.ProjectSweeps),
		slog.Float64("project_residual", s.ProjectResidual),
		slog.Int("injections", s.Injections),
		slog.Int("rejected_injections", s.RejectedInjects),
		slog.Int("vent_relocations", s.VentRelocations),
	)
}

// LogStats logs the window stats using slog.
func (s WindowStats) LogStats() {
	slog.Info("stats",
		"window_end", s.WindowEndStep,
		"sim_time", s.SimTime,
		"dye_total", s.DyeTotal,
		"dye_max_cell", s.DyeMaxCell,
		"kinetic_energy", s.KineticEnergy,
		"max_vx", s.MaxVX,
		"max_vy", s.MaxVY,
		"max_divergence", s.MaxDivergence,
		"agents", s.AgentCount,
		"bias_mean", s.BiasMean,
		"project_sweeps", s.ProjectSweeps,
		"project_residual", s.ProjectResidual,
		"injections", s.Injections,
		"vent_relocations", s.VentRelocations,
	)
}
