package telemetry

import "github.com/pthm-cable/stim/fluid"

// Collector accumulates events within step windows and produces WindowStats.
type Collector struct {
	windowSteps int64
	dt          float64

	windowStart int64

	injections      int
	rejected        int
	ventRelocations int
}

// NewCollector creates a new stats collector.
// windowSteps: how many steps each stats window covers
// dt: simulated seconds per step
func NewCollector(windowSteps int, dt float64) *Collector {
	if windowSteps < 1 {
		windowSteps = 1
	}
	return &Collector{
		windowSteps: int64(windowSteps),
		dt:          dt,
	}
}

// StartAt begins the current window at step, discarding any counted events.
func (c *Collector) StartAt(step int64) {
	c.windowStart = step
	c.injections = 0
	c.rejected = 0
	c.ventRelocations = 0
}

// RecordInjection records an external write applied between steps.
func (c *Collector) RecordInjection(ok bool) {
	if ok {
		c.injections++
	} else {
		c.rejected++
	}
}

// RecordVentRelocation records the vent jumping to a new column.
func (c *Collector) RecordVentRelocation() {
	c.ventRelocations++
}

// ShouldFlush returns true if enough steps have passed to flush the window.
func (c *Collector) ShouldFlush(step int64) bool {
	return step-c.windowStart >= c.windowSteps
}

// Flush produces a WindowStats and resets counters for the next window.
// The caller provides the field reduction, the agents' bias magnitudes and the
// relaxation record of the last step.
func (c *Collector) Flush(step int64, fs FieldSample, biases []float64, last fluid.StepStats) WindowStats {
	biasMean, biasStd, biasP90 := ComputeSpread(biases)

	stats := WindowStats{
		WindowStartStep: c.windowStart,
		WindowEndStep:   step,
		SimTime:         float64(step) * c.dt,

		DyeMaxCell: fs.DyeMaxCell,

		KineticEnergy: fs.KineticEnergy,
		MaxVX:         fs.MaxVX,
		MaxVY:         fs.MaxVY,
		MaxDivergence: fs.MaxDivergence,
		SolidCells:    fs.SolidCells,

		AgentCount: len(biases),
		BiasMean:   biasMean,
		BiasStd:    biasStd,
		BiasP90:    biasP90,

		DiffuseSweeps:   last.DiffuseX.Sweeps + last.DiffuseY.Sweeps + last.DiffuseDye.Sweeps,
		ProjectSweeps:   last.Project.Sweeps,
		ProjectResidual: last.Project.Residual,

		Injections:      c.injections,
		RejectedInjects: c.rejected,
		VentRelocations: c.ventRelocations,
	}
	for ch, m := range fs.DyeMass {
		switch ch {
		case 0:
			stats.DyeMass0 = m
		case 1:
			stats.DyeMass1 = m
		}
		stats.DyeTotal += m
	}

	c.StartAt(step)

	return stats
}

// WindowSteps returns the number of steps per window.
func (c *Collector) WindowSteps() int64 {
	return c.windowSteps
}
