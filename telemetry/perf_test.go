package telemetry

import (
	"testing"
	"time"
)

// fakeClock advances only when told to.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newFakeCollector(window int) (*PerfCollector, *fakeClock) {
	clk := &fakeClock{t: time.Unix(1000, 0)}
	return newPerfCollector(window, clk.now), clk
}

func TestPerfCollector_BasicTiming(t *testing.T) {
	pc, clk := newFakeCollector(10)

	for i := 0; i < 5; i++ {
		pc.StartStep()
		pc.StartPhase(PhaseProject)
		clk.advance(100 * time.Microsecond)
		pc.StartPhase(PhaseAdvectVel)
		clk.advance(300 * time.Microsecond)
		pc.EndStep()
	}

	stats := pc.Stats()

	if stats.AvgStep != 400*time.Microsecond {
		t.Errorf("avg step = %v, want 400µs", stats.AvgStep)
	}
	if stats.StepsPerSecond != 2500 {
		t.Errorf("steps/s = %v, want 2500", stats.StepsPerSecond)
	}
	if stats.PhasePct[PhaseProject] != 25 || stats.PhasePct[PhaseAdvectVel] != 75 {
		t.Errorf("phase pct = %v", stats.PhasePct)
	}
}

func TestPerfCollector_RepeatedPhaseAccumulates(t *testing.T) {
	pc, clk := newFakeCollector(4)

	pc.StartStep()
	pc.StartPhase(PhaseProject)
	clk.advance(10 * time.Microsecond)
	pc.StartPhase(PhaseForces)
	clk.advance(20 * time.Microsecond)
	pc.StartPhase(PhaseProject)
	clk.advance(10 * time.Microsecond)
	pc.EndStep()

	stats := pc.Stats()
	if stats.PhasePct[PhaseProject] != 50 {
		t.Errorf("project pct = %v, want 50", stats.PhasePct[PhaseProject])
	}
}

func TestPerfCollector_RollingWindow(t *testing.T) {
	pc, clk := newFakeCollector(5)

	// Five slow steps followed by five fast ones; only the fast ones remain.
	for i := 0; i < 10; i++ {
		d := time.Millisecond
		if i >= 5 {
			d = 100 * time.Microsecond
		}
		pc.StartStep()
		pc.StartPhase(PhaseProject)
		clk.advance(d)
		pc.EndStep()
	}

	stats := pc.Stats()
	if stats.AvgStep != 100*time.Microsecond {
		t.Errorf("avg step = %v, want 100µs", stats.AvgStep)
	}
	if stats.MaxStep != 100*time.Microsecond {
		t.Errorf("max step = %v, want 100µs", stats.MaxStep)
	}
}

func TestPerfCollector_PhasePercentages(t *testing.T) {
	pc, clk := newFakeCollector(10)

	for i := 0; i < 5; i++ {
		pc.StartStep()
		pc.StartPhase(PhaseDiffuseVel)
		clk.advance(10 * time.Microsecond)
		pc.StartPhase(PhaseProject)
		clk.advance(90 * time.Microsecond)
		pc.EndStep()
	}

	stats := pc.Stats()
	if stats.PhasePct[PhaseProject] <= stats.PhasePct[PhaseDiffuseVel] {
		t.Errorf("expected project (%v%%) > diffuse (%v%%)",
			stats.PhasePct[PhaseProject], stats.PhasePct[PhaseDiffuseVel])
	}
	if stats.PhasePct[PhaseDiffuseVel] != 10 {
		t.Errorf("diffuse pct = %v, want 10", stats.PhasePct[PhaseDiffuseVel])
	}
}

func TestPerfCollector_EmptyStats(t *testing.T) {
	pc := NewPerfCollector(10)

	stats := pc.Stats()
	if stats.AvgStep != 0 || stats.StepsPerSecond != 0 {
		t.Errorf("expected zero stats for empty collector, got %+v", stats)
	}
}

func TestPerfCollector_FrameTiming(t *testing.T) {
	pc, clk := newFakeCollector(10)

	pc.RecordFrame()
	if fps := pc.Stats().FPS; fps != 0 {
		t.Errorf("one frame should give no FPS, got %v", fps)
	}

	clk.advance(20 * time.Millisecond)
	pc.RecordFrame()

	if fps := pc.Stats().FPS; fps != 50 {
		t.Errorf("FPS = %v, want 50", fps)
	}
}

func TestPhase_String(t *testing.T) {
	tests := []struct {
		phase Phase
		want  string
	}{
		{PhaseInjections, "injections"},
		{PhaseProject, "project"},
		{PhaseTelemetry, "telemetry"},
		{NumPhases, "unknown"},
	}
	for _, tt := range tests {
		if got := tt.phase.String(); got != tt.want {
			t.Errorf("Phase(%d).String() = %q, want %q", tt.phase, got, tt.want)
		}
	}
}

func TestPerfStats_ToCSV(t *testing.T) {
	var stats PerfStats
	stats.AvgStep = 2 * time.Millisecond
	stats.StepsPerSecond = 500
	stats.PhasePct[PhaseProject] = 40
	stats.PhasePct[PhaseDiffuseVel] = 10
	stats.PhasePct[PhaseDiffuseDensity] = 5
	stats.PhasePct[PhaseAdvectDensity] = 5

	row := stats.ToCSV(1200)
	if row.WindowEnd != 1200 {
		t.Errorf("window end = %d, want 1200", row.WindowEnd)
	}
	if row.AvgStepUS != 2000 {
		t.Errorf("avg step = %dus, want 2000", row.AvgStepUS)
	}
	if row.ProjectPct != 40 || row.DiffusePct != 15 || row.AdvectPct != 5 {
		t.Errorf("phase percentages not carried: %+v", row)
	}
	if row.ForcesPct != 0 {
		t.Errorf("untracked phase should be zero, got %v", row.ForcesPct)
	}
}
