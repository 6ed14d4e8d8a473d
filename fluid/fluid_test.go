package fluid

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/pthm-cable/stim/config"
)

// quietConfig returns defaults at resolution n with every force source and agent off.
func quietConfig(n int) *config.Config {
	cfg := config.Default()
	cfg.Grid.N = n
	cfg.Fountain.Enabled = false
	cfg.Vent.Enabled = false
	cfg.Gravity.Enabled = false
	cfg.Agents.Count = 0
	cfg.ComputeDerived()
	return cfg
}

func mustSolver(t *testing.T, cfg *config.Config) *Solver {
	t.Helper()
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

// stepKernels runs the solver part of one step in loop order.
func stepKernels(s *Solver, rng *rand.Rand) {
	s.ResetStats()
	s.DiffuseVelocity()
	s.Project()
	s.AdvectVelocity()
	s.ApplyForces(rng)
	s.Project()
	s.DiffuseDensity()
	s.AdvectDensity()
}

func seedVelocity(s *Solver, rng *rand.Rand, amp float64) {
	for k := range s.F.VX.Cur {
		s.F.VX.Cur[k] = (rng.Float64() - 0.5) * amp
	}
	for k := range s.F.VY.Cur {
		s.F.VY.Cur[k] = (rng.Float64() - 0.5) * amp
	}
	s.F.EnforceBounds()
}

func checkBoundaryFaces(t *testing.T, f *Fields) {
	t.Helper()
	n := f.N
	for i := 0; i <= n; i++ {
		for j := 0; j < n; j++ {
			if f.boundXFace(i, j) && f.VX.At(i, j) != 0 {
				t.Fatalf("vx(%d,%d) = %g next to a solid cell", i, j, f.VX.At(i, j))
			}
		}
	}
	for i := 0; i < n; i++ {
		for j := 0; j <= n; j++ {
			if f.boundYFace(i, j) && f.VY.At(i, j) != 0 {
				t.Fatalf("vy(%d,%d) = %g next to a solid cell", i, j, f.VY.At(i, j))
			}
		}
	}
}

// ---------- construction ----------

func TestNew_RejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *config.Config)
	}{
		{"tiny grid", func(c *config.Config) { c.Grid.N = 4 }},
		{"zero dt", func(c *config.Config) { c.Solver.DT = 0 }},
		{"zero max iter", func(c *config.Config) { c.Solver.MaxIter = 0 }},
		{"negative min err", func(c *config.Config) { c.Solver.MinErr = -1 }},
		{"no channels", func(c *config.Config) { c.Dye.Channels = 0 }},
		{"negative agents", func(c *config.Config) { c.Agents.Count = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := quietConfig(16)
			tt.mutate(cfg)
			if _, err := New(cfg); !errors.Is(err, config.ErrInvalid) {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestNewFields_OuterRingIsBoundary(t *testing.T) {
	f := NewFields(10, 2)
	for i := 0; i < 10; i++ {
		for j := 0; j < 10; j++ {
			ring := i == 0 || j == 0 || i == 9 || j == 9
			if f.Solid(i, j) != ring {
				t.Errorf("Solid(%d,%d) = %v, want %v", i, j, f.Solid(i, j), ring)
			}
		}
	}
	if !f.Solid(-1, 3) || !f.Solid(3, 10) {
		t.Error("cells outside the domain should count as solid")
	}
	if f.VX.W != 11 || f.VX.H != 10 || f.VY.W != 10 || f.VY.H != 11 {
		t.Errorf("unexpected staggered shapes vx %dx%d vy %dx%d", f.VX.W, f.VX.H, f.VY.W, f.VY.H)
	}
}

// ---------- storage ----------

func TestGrid_CommitIdempotent(t *testing.T) {
	g := NewGrid(4, 3)
	for k := range g.Tmp {
		g.Tmp[k] = float64(k) * 0.5
	}
	g.Commit()
	first := g.Snapshot()
	g.Commit()
	for k, v := range g.Cur {
		if v != first[k] {
			t.Fatalf("second commit changed cell %d: %g != %g", k, v, first[k])
		}
	}
}

func TestGrid_InBounds(t *testing.T) {
	g := NewGrid(5, 4) // the VX shape of a 4×4 grid
	tests := []struct {
		i, j int
		want bool
	}{
		{0, 0, true},
		{4, 3, true},
		{5, 0, false},
		{0, 4, false},
		{-1, 2, false},
	}
	for _, tt := range tests {
		if got := g.InBounds(tt.i, tt.j); got != tt.want {
			t.Errorf("InBounds(%d, %d) = %v, want %v", tt.i, tt.j, got, tt.want)
		}
	}
}

func TestGrid_StageAndSwap(t *testing.T) {
	g := NewGrid(3, 3)
	g.Set(1, 2, 7)
	g.Stage()
	if g.Tmp[g.idx(1, 2)] != 7 {
		t.Fatalf("Stage did not copy current into scratch")
	}
	g.Tmp[0] = 3
	g.Swap()
	if g.At(0, 0) != 3 || g.At(1, 2) != 7 {
		t.Errorf("Swap did not exchange buffers")
	}
	g.Reset()
	for _, v := range g.Cur {
		if v != 0 {
			t.Fatal("Reset left a non-zero value")
		}
	}
}

func TestSampleBilinear(t *testing.T) {
	g := NewGrid(5, 5)
	for i := 0; i < 5; i++ {
		for j := 0; j < 5; j++ {
			g.Set(i, j, float64(10*i+j))
		}
	}
	tests := []struct {
		name string
		x, y float64
		want float64
	}{
		{"on sample", 2, 3, 23},
		{"interior", 1.5, 2.25, 17.25},
		{"clamped low", -4, -9, 0},
		{"clamped high", 12, 40, 44},
		{"last column", 4, 1.5, 41.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sampleBilinear(g, tt.x, tt.y)
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("sample(%g, %g) = %g, want %g", tt.x, tt.y, got, tt.want)
			}
		})
	}
}

// ---------- kernels ----------

func TestProject_DivergenceBound(t *testing.T) {
	cfg := quietConfig(16)
	cfg.Solver.MaxIter = 4000
	cfg.Solver.MinErr = 0
	s := mustSolver(t, cfg)
	if err := s.ToggleBoundary(7, 7); err != nil {
		t.Fatal(err)
	}
	if err := s.ToggleBoundary(7, 8); err != nil {
		t.Fatal(err)
	}
	seedVelocity(s, rand.New(rand.NewSource(3)), 1)

	if s.F.MaxDivergence() < 1e-3 {
		t.Fatal("seeded field is already divergence free")
	}
	s.Project()
	if d := s.F.MaxDivergence(); d > 1e-6 {
		t.Errorf("max divergence after projection = %g", d)
	}
	checkBoundaryFaces(t, s.F)
}

func TestProject_ReturnsSweepStats(t *testing.T) {
	cfg := quietConfig(16)
	cfg.Solver.MaxIter = 3
	s := mustSolver(t, cfg)
	seedVelocity(s, rand.New(rand.NewSource(5)), 1)

	stats := s.Project()
	if stats.Sweeps != 3 {
		t.Errorf("expected the sweep cap of 3, got %d", stats.Sweeps)
	}
	if s.LastStats().Projections != 1 {
		t.Errorf("expected 1 projection recorded, got %d", s.LastStats().Projections)
	}
}

func TestProject_SingleImpulse(t *testing.T) {
	s := mustSolver(t, quietConfig(32))
	if err := s.AddVelocity(16, 16, 1, 0); err != nil {
		t.Fatal(err)
	}

	before := math.Abs(s.F.Divergence(16, 16))
	if before < 0.5 {
		t.Fatalf("impulse left divergence %g at its cell", before)
	}
	s.Project()

	if after := math.Abs(s.F.Divergence(16, 16)); after > before/10 {
		t.Errorf("divergence at the impulse went from %g to %g", before, after)
	}
	if d := s.F.MaxDivergence(); d > 0.1 {
		t.Errorf("max divergence after projection = %g", d)
	}
	if vx, vy := s.F.VX.At(4, 4), s.F.VY.At(4, 4); math.Abs(vx) > 1e-6 || math.Abs(vy) > 1e-6 {
		t.Errorf("far field face (4, 4) moved: vx=%g vy=%g", vx, vy)
	}
	checkBoundaryFaces(t, s.F)
}

func TestDiffuseVelocity_EarlyExit(t *testing.T) {
	cfg := quietConfig(16)
	cfg.Solver.MaxIter = 50
	s := mustSolver(t, cfg)

	sx, sy := s.DiffuseVelocity()
	if sx.Sweeps != 1 || sy.Sweeps != 1 {
		t.Errorf("zero field should converge after one sweep, got %d and %d", sx.Sweeps, sy.Sweeps)
	}
}

func TestBoundary_InvariantAfterSteps(t *testing.T) {
	cfg := config.Default()
	cfg.Grid.N = 32
	cfg.Gravity.Enabled = true
	cfg.Gravity.Y = -0.5
	cfg.ComputeDerived()
	s := mustSolver(t, cfg)
	for _, c := range [][2]int{{10, 10}, {10, 11}, {20, 5}} {
		if err := s.ToggleBoundary(c[0], c[1]); err != nil {
			t.Fatal(err)
		}
	}
	rng := rand.New(rand.NewSource(cfg.Seed))
	for step := 0; step < 20; step++ {
		stepKernels(s, rng)
		checkBoundaryFaces(t, s.F)
	}
}

func TestDiffuseDensity_Attraction(t *testing.T) {
	cfg := quietConfig(16)
	cfg.Solver.MaxIter = 1
	s := mustSolver(t, cfg)
	d0, d1 := s.F.Dye[0], s.F.Dye[1]
	d0.Set(5, 5, 10)
	d1.Set(5, 5, 5)
	fade := cfg.Derived.DyeFade

	s.DiffuseDensity()

	if d0.At(5, 5) <= 10-fade {
		t.Errorf("larger channel should gain dye, got %g", d0.At(5, 5))
	}
	if d1.At(5, 5) >= 5-fade {
		t.Errorf("smaller channel should lose dye, got %g", d1.At(5, 5))
	}
	total := d0.At(5, 5) + d1.At(5, 5)
	if math.Abs(total-(15-2*fade)) > 1e-12 {
		t.Errorf("attraction should conserve the pair, total %g", total)
	}
}

func TestDiffuseDensity_ClampsToDyeMax(t *testing.T) {
	cfg := quietConfig(16)
	s := mustSolver(t, cfg)
	s.F.Dye[0].Set(4, 4, 5000)

	s.DiffuseDensity()
	if v := s.F.Dye[0].At(4, 4); v > cfg.Dye.Max {
		t.Errorf("dye %g exceeds max %g", v, cfg.Dye.Max)
	}
}

func TestAdvectDensity_ZeroVelocityIsIdentity(t *testing.T) {
	s := mustSolver(t, quietConfig(16))
	s.F.Dye[0].Set(3, 4, 12.5)
	s.F.Dye[1].Set(8, 9, 99)
	before0 := s.F.Dye[0].Snapshot()
	before1 := s.F.Dye[1].Snapshot()

	s.AdvectDensity()

	for k := range before0 {
		if s.F.Dye[0].Cur[k] != before0[k] || s.F.Dye[1].Cur[k] != before1[k] {
			t.Fatalf("cell %d changed under zero velocity", k)
		}
	}
}

func TestAdvectDensity_ClampsToAdvectedMax(t *testing.T) {
	cfg := quietConfig(16)
	s := mustSolver(t, cfg)
	s.F.Dye[0].Set(6, 6, 500)

	s.AdvectDensity()
	if v := s.F.Dye[0].At(6, 6); v != cfg.Dye.AdvectedMax {
		t.Errorf("expected clamp to %g, got %g", cfg.Dye.AdvectedMax, v)
	}
}

func TestAdvectVelocity_Deterministic(t *testing.T) {
	run := func() ([]float64, []float64) {
		s := mustSolver(t, quietConfig(48))
		seedVelocity(s, rand.New(rand.NewSource(11)), 0.4)
		s.AdvectVelocity()
		return s.F.VX.Snapshot(), s.F.VY.Snapshot()
	}
	ax, ay := run()
	bx, by := run()
	for k := range ax {
		if ax[k] != bx[k] {
			t.Fatalf("vx differs at %d", k)
		}
	}
	for k := range ay {
		if ay[k] != by[k] {
			t.Fatalf("vy differs at %d", k)
		}
	}
}

// ---------- conservation ----------

func TestConservation_DyeMassNonIncreasing(t *testing.T) {
	cfg := quietConfig(16)
	cfg.Dye.Channels = 1
	cfg.Solver.Viscosity = 0.01
	cfg.Solver.MaxIter = 200
	cfg.Solver.MinErr = 1e-20
	s := mustSolver(t, cfg)
	for i := 4; i < 9; i++ {
		for j := 5; j < 10; j++ {
			if err := s.AddDye(i, j, 0, 40); err != nil {
				t.Fatal(err)
			}
		}
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	prev := s.DyeMass(0)
	for step := 0; step < 100; step++ {
		stepKernels(s, rng)
		m := s.DyeMass(0)
		if m > prev+1e-9 {
			t.Fatalf("step %d: dye mass grew from %g to %g", step, prev, m)
		}
		prev = m
	}
}

func TestConservation_ZeroVelocityStaysZero(t *testing.T) {
	s := mustSolver(t, quietConfig(16))
	rng := rand.New(rand.NewSource(1))
	for step := 0; step < 1000; step++ {
		stepKernels(s, rng)
	}
	if e := s.KineticEnergy(); e != 0 {
		t.Errorf("kinetic energy appeared from nothing: %g", e)
	}
}

func TestConservation_VelocityBounded(t *testing.T) {
	cfg := quietConfig(16)
	cfg.Solver.MaxIter = 200
	cfg.Solver.MinErr = 1e-14
	s := mustSolver(t, cfg)
	seedVelocity(s, rand.New(rand.NewSource(9)), 1)
	s.Project()
	initial := s.KineticEnergy()

	rng := rand.New(rand.NewSource(cfg.Seed))
	for step := 0; step < 1000; step++ {
		stepKernels(s, rng)
	}
	e := s.KineticEnergy()
	if math.IsNaN(e) || math.IsInf(e, 0) {
		t.Fatalf("kinetic energy is not finite: %g", e)
	}
	if e > 2*initial {
		t.Errorf("kinetic energy grew from %g to %g", initial, e)
	}
}

// ---------- forcing ----------

func TestApplyForces_FountainImpulse(t *testing.T) {
	cfg := quietConfig(64)
	cfg.Fountain.Enabled = true
	s := mustSolver(t, cfg)

	s.ApplyForces(rand.New(rand.NewSource(1)))

	loc := cfg.Derived.FountainCell
	if loc != 25 {
		t.Fatalf("expected fountain cell 25, got %d", loc)
	}
	k1 := 64.0 / 200
	wantX := math.Sin(0.03)*k1 + 0.15
	wantY := math.Cos(0.03)*k1 + 0.18
	if got := s.F.VX.At(loc, loc); math.Abs(got-wantX) > 1e-12 {
		t.Errorf("vx = %g, want %g", got, wantX)
	}
	if got := s.F.VY.At(loc, loc); math.Abs(got-wantY) > 1e-12 {
		t.Errorf("vy = %g, want %g", got, wantY)
	}
	if s.Forcing().Phase != 0.03 {
		t.Errorf("phase = %g, want 0.03", s.Forcing().Phase)
	}

	var touched int
	for _, v := range s.F.VX.Cur {
		if v != 0 {
			touched++
		}
	}
	if touched != 1 {
		t.Errorf("expected a single vx impulse, found %d non-zero faces", touched)
	}
}

func TestApplyForces_Vent(t *testing.T) {
	tests := []struct {
		name     string
		relocate float64
	}{
		{"fixed", 0},
		{"always relocates", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := quietConfig(64)
			cfg.Vent.Enabled = true
			cfg.Vent.RelocateChance = tt.relocate
			s := mustSolver(t, cfg)

			s.ApplyForces(rand.New(rand.NewSource(7)))

			col := s.Forcing().VentX
			if tt.relocate == 0 && col != 32 {
				t.Errorf("vent moved to %d without relocation", col)
			}
			n := float64(cfg.Grid.N)
			if hi := int(n*0.8) + int(n*0.1); col < 1 || col > hi {
				t.Errorf("vent column %d out of range", col)
			}
			row := cfg.Derived.VentRow
			if row != 61 {
				t.Fatalf("expected vent row 61, got %d", row)
			}
			if vx := s.F.VX.At(col, row); math.Abs(vx) > 64.0/400 {
				t.Errorf("vx jitter %g exceeds n/400", vx)
			}
			if vy := s.F.VY.At(col, row); vy > 0 || vy < -64.0/30 {
				t.Errorf("vy lift %g outside [-n/30, 0]", vy)
			}
		})
	}
}

func TestApplyForces_Gravity(t *testing.T) {
	cfg := quietConfig(16)
	cfg.Gravity.Enabled = true
	cfg.Gravity.Y = -1
	s := mustSolver(t, cfg)

	s.ApplyForces(rand.New(rand.NewSource(1)))

	if got := s.F.VY.At(5, 5); math.Abs(got+cfg.Solver.DT) > 1e-12 {
		t.Errorf("vy = %g, want %g", got, -cfg.Solver.DT)
	}
	if got := s.F.VX.At(5, 5); got != 0 {
		t.Errorf("vx = %g, want 0 with no horizontal gravity", got)
	}
	checkBoundaryFaces(t, s.F)
}

// ---------- injection ----------

func TestInjection_OutOfRange(t *testing.T) {
	s := mustSolver(t, quietConfig(16))
	tests := []struct {
		name string
		call func() error
	}{
		{"velocity negative", func() error { return s.AddVelocity(-1, 3, 1, 1) }},
		{"velocity past edge", func() error { return s.AddVelocity(3, 16, 1, 1) }},
		{"dye cell", func() error { return s.AddDye(16, 0, 0, 1) }},
		{"dye channel", func() error { return s.AddDye(3, 3, 2, 1) }},
		{"boundary ring", func() error { return s.ToggleBoundary(0, 5) }},
		{"boundary outside", func() error { return s.ToggleBoundary(5, 20) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, ErrOutOfRange) {
				t.Errorf("expected ErrOutOfRange, got %v", err)
			}
		})
	}
}

func TestToggleBoundary_ClearsDyeAndFaces(t *testing.T) {
	s := mustSolver(t, quietConfig(16))
	f := s.F
	if err := s.AddDye(5, 5, 0, 20); err != nil {
		t.Fatal(err)
	}
	f.VX.Set(5, 5, 1)
	f.VX.Set(6, 5, 1)
	f.VY.Set(5, 5, 1)
	f.VY.Set(5, 6, 1)

	if err := s.ToggleBoundary(5, 5); err != nil {
		t.Fatal(err)
	}
	if !f.Solid(5, 5) {
		t.Fatal("cell should be solid")
	}
	if f.Dye[0].At(5, 5) != 0 {
		t.Error("dye not cleared")
	}
	if f.VX.At(5, 5) != 0 || f.VX.At(6, 5) != 0 || f.VY.At(5, 5) != 0 || f.VY.At(5, 6) != 0 {
		t.Error("faces touching the new obstacle should be zero")
	}

	if err := s.ToggleBoundary(5, 5); err != nil {
		t.Fatal(err)
	}
	if f.Solid(5, 5) {
		t.Error("second toggle should clear the obstacle")
	}
}

func TestAddDye_SkipsSolidCells(t *testing.T) {
	s := mustSolver(t, quietConfig(16))
	if err := s.AddDye(0, 4, 1, 30); err != nil {
		t.Fatal(err)
	}
	if s.F.Dye[1].At(0, 4) != 0 {
		t.Error("dye painted on the boundary ring")
	}
}
