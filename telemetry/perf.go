package telemetry

import (
	"log/slog"
	"time"
)

// Phase identifies one stage of a simulation step.
type Phase int

// Step phases, in step order. Projection runs twice per step and both passes
// accumulate into PhaseProject.
const (
	PhaseInjections Phase = iota
	PhaseDiffuseVel
	PhaseAgents
	PhaseProject
	PhaseAdvectVel
	PhaseForces
	PhaseDiffuseDensity
	PhaseAdvectDensity
	PhaseTelemetry
	NumPhases
)

var phaseNames = [NumPhases]string{
	"injections", "diffuse_velocity", "agents", "project", "advect_velocity",
	"forces", "diffuse_density", "advect_density", "telemetry",
}

func (p Phase) String() string {
	if p < 0 || p >= NumPhases {
		return "unknown"
	}
	return phaseNames[p]
}

type stepSample struct {
	total  time.Duration
	phases [NumPhases]time.Duration
}

// PerfCollector times step phases over a rolling window of steps and, for the
// viewer, the interval between frames.
type PerfCollector struct {
	now func() time.Time

	samples []stepSample
	next    int
	count   int

	cur        stepSample
	stepStart  time.Time
	phaseStart time.Time
	phase      Phase // -1 outside a phase

	lastFrame time.Time
	frame     time.Duration
}

// NewPerfCollector creates a collector averaging over windowSize steps (60 if < 1).
func NewPerfCollector(windowSize int) *PerfCollector {
	return newPerfCollector(windowSize, time.Now)
}

func newPerfCollector(windowSize int, now func() time.Time) *PerfCollector {
	if windowSize < 1 {
		windowSize = 60
	}
	return &PerfCollector{
		now:     now,
		samples: make([]stepSample, windowSize),
		phase:   -1,
	}
}

// StartStep begins timing a new step.
func (p *PerfCollector) StartStep() {
	p.stepStart = p.now()
	p.cur = stepSample{}
	p.phase = -1
}

// StartPhase closes the running phase, if any, and starts timing phase.
func (p *PerfCollector) StartPhase(phase Phase) {
	t := p.now()
	p.closePhase(t)
	p.phaseStart = t
	p.phase = phase
}

func (p *PerfCollector) closePhase(t time.Time) {
	if p.phase >= 0 && p.phase < NumPhases {
		p.cur.phases[p.phase] += t.Sub(p.phaseStart)
	}
}

// EndStep closes the running phase and records the step in the window.
func (p *PerfCollector) EndStep() {
	t := p.now()
	p.closePhase(t)
	p.phase = -1
	p.cur.total = t.Sub(p.stepStart)

	p.samples[p.next] = p.cur
	p.next = (p.next + 1) % len(p.samples)
	if p.count < len(p.samples) {
		p.count++
	}
}

// RecordFrame marks the end of a rendered frame.
func (p *PerfCollector) RecordFrame() {
	t := p.now()
	if !p.lastFrame.IsZero() {
		p.frame = t.Sub(p.lastFrame)
	}
	p.lastFrame = t
}

// PerfStats aggregates the current window.
type PerfStats struct {
	AvgStep        time.Duration
	MaxStep        time.Duration
	StepsPerSecond float64

	// PhasePct is each phase's share of the average step, in percent.
	PhasePct [NumPhases]float64

	FPS float64
}

// Stats computes statistics over the recorded window.
func (p *PerfCollector) Stats() PerfStats {
	var s PerfStats
	if p.frame > 0 {
		s.FPS = float64(time.Second) / float64(p.frame)
	}
	if p.count == 0 {
		return s
	}

	var total time.Duration
	var phases [NumPhases]time.Duration
	for _, smp := range p.samples[:p.count] {
		total += smp.total
		s.MaxStep = max(s.MaxStep, smp.total)
		for i, d := range smp.phases {
			phases[i] += d
		}
	}

	s.AvgStep = total / time.Duration(p.count)
	if total > 0 {
		s.StepsPerSecond = float64(time.Second) / float64(s.AvgStep)
		for i, d := range phases {
			s.PhasePct[i] = float64(d) / float64(total) * 100
		}
	}
	return s
}

// LogValue implements slog.LogValuer. Phases under 0.1% are left out.
func (s PerfStats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int64("avg_step_us", s.AvgStep.Microseconds()),
		slog.Int64("max_step_us", s.MaxStep.Microseconds()),
		slog.Float64("steps_per_sec", s.StepsPerSecond),
	}
	if s.FPS > 0 {
		attrs = append(attrs, slog.Float64("fps", s.FPS))
	}
	for i, pct := range s.PhasePct {
		if pct > 0.1 {
			attrs = append(attrs, slog.Float64(Phase(i).String()+"_pct", float64(int(pct*10))/10))
		}
	}
	return slog.GroupValue(attrs...)
}

// PerfStatsCSV is one perf.csv row. Both diffusion passes share a column, as do
// both advection passes.
type PerfStatsCSV struct {
	WindowEnd   int64   `csv:"window_end"`
	AvgStepUS   int64   `csv:"avg_step_us"`
	MaxStepUS   int64   `csv:"max_step_us"`
	StepsPerSec float64 `csv:"steps_per_sec"`
	DiffusePct  float64 `csv:"diffuse_pct"`
	ProjectPct  float64 `csv:"project_pct"`
	AdvectPct   float64 `csv:"advect_pct"`
	ForcesPct   float64 `csv:"forces_pct"`
	AgentsPct   float64 `csv:"agents_pct"`
}

// ToCSV flattens s into a perf.csv row.
func (s PerfStats) ToCSV(windowEnd int64) PerfStatsCSV {
	pct := s.PhasePct
	return PerfStatsCSV{
		WindowEnd:   windowEnd,
		AvgStepUS:   s.AvgStep.Microseconds(),
		MaxStepUS:   s.MaxStep.Microseconds(),
		StepsPerSec: s.StepsPerSecond,
		DiffusePct:  pct[PhaseDiffuseVel] + pct[PhaseDiffuseDensity],
		ProjectPct:  pct[PhaseProject],
		AdvectPct:   pct[PhaseAdvectVel] + pct[PhaseAdvectDensity],
		ForcesPct:   pct[PhaseForces],
		AgentsPct:   pct[PhaseAgents],
	}
}
