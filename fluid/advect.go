package fluid

import "math"

// AdvectVelocity transports vx and vy along themselves by tracing every face sample
// backward over dt·idw and resampling bilinearly. The result is committed and the
// boundary rule re-applied.
func (s *Solver) AdvectVelocity() {
	f := s.F
	n := f.N
	dt0 := s.dt * s.idw
	vx, vy := f.VX, f.VY

	parallelRange(0, n+1, func(i int) {
		for j := 0; j < n; j++ {
			var v float64
			switch {
			case i > 0 && i < n:
				v = (vy.At(i, j) + vy.At(i, j+1) + vy.At(i-1, j) + vy.At(i-1, j+1)) * 0.25
			case i == n:
				v = (vy.At(i-1, j) + vy.At(i-1, j+1)) * 0.5
			default:
				v = (vy.At(i, j) + vy.At(i, j+1)) * 0.5
			}
			x := float64(i) - vx.At(i, j)*dt0
			y := float64(j) - v*dt0
			vx.Tmp[i*n+j] = sampleBilinear(vx, x, y)
		}
	})

	parallelRange(0, n, func(i int) {
		for j := 0; j <= n; j++ {
			var u float64
			switch {
			case j > 0 && j < n:
				u = (vx.At(i, j) + vx.At(i+1, j) + vx.At(i, j-1) + vx.At(i+1, j-1)) * 0.25
			case j == n:
				u = (vx.At(i, j-1) + vx.At(i+1, j-1)) * 0.5
			default:
				u = (vx.At(i, j) + vx.At(i+1, j)) * 0.5
			}
			x := float64(i) - u*dt0
			y := float64(j) - vy.At(i, j)*dt0
			vy.Tmp[i*(n+1)+j] = sampleBilinear(vy, x, y)
		}
	})

	vx.Commit()
	vy.Commit()
	f.EnforceBounds()
}

// AdvectDensity transports every dye channel along the cell-centred velocity and clamps
// the result into [0, DyeAdvectedMax].
func (s *Solver) AdvectDensity() {
	f := s.F
	n := f.N
	dt0 := s.dt * s.idw
	hi := s.cfg.Dye.AdvectedMax

	parallelRange(0, n, func(i int) {
		for j := 0; j < n; j++ {
			u, v := f.CellVelocity(i, j)
			x := float64(i) - u*dt0
			y := float64(j) - v*dt0
			for _, d := range f.Dye {
				d.Tmp[i*n+j] = clamp(sampleBilinear(d, x, y), 0, hi)
			}
		}
	})

	for _, d := range f.Dye {
		d.Commit()
	}
}

// sampleBilinear reads g.Cur at the fractional index position (x, y). The position is
// clamped into the array first so the weights always stay in [0, 1].
func sampleBilinear(g *Grid, x, y float64) float64 {
	x = clamp(x, 0, float64(g.W-1))
	y = clamp(y, 0, float64(g.H-1))

	x1 := int(math.Floor(x))
	y1 := int(math.Floor(y))
	x2 := clampInt(x1+1, 0, g.W-1)
	y2 := clampInt(y1+1, 0, g.H-1)

	s1 := x - float64(x1)
	s2 := 1 - s1
	t1 := y - float64(y1)
	t2 := 1 - t1

	h := g.H
	c := g.Cur
	return t1*(s1*c[x2*h+y2]+s2*c[x1*h+y2]) +
		t2*(s1*c[x2*h+y1]+s2*c[x1*h+y1])
}
