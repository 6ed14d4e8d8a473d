package fluid

// SolveStats describes one Gauss-Seidel solve.
type SolveStats struct {
	Sweeps   int     // sweeps actually run
	Residual float64 // sum of squared deltas of the last sweep
}

// DiffuseVelocity relaxes vx and vy toward (I - ν·dt·∇²)⁻¹ applied to the current field.
// Each component is solved separately in its scratch buffer, warm started from the
// current values, then committed.
func (s *Solver) DiffuseVelocity() (SolveStats, SolveStats) {
	f := s.F
	n := f.N
	a := s.dt * s.visc
	c := 1 + 4*a

	sx := s.relax(f.VX, a, c, 1, n-1, 1, n-2, f.SetBoundsX)
	sy := s.relax(f.VY, a, c, 1, n-2, 1, n-1, f.SetBoundsY)

	f.VX.Commit()
	f.VY.Commit()

	s.last.DiffuseX, s.last.DiffuseY = sx, sy
	return sx, sy
}

// relax runs in-place Gauss-Seidel sweeps over g.Tmp for i in [i0, i1], j in [j0, j1],
// reading the right-hand side from g.Cur. bound, when non-nil, is re-applied to the
// scratch buffer after every sweep.
func (s *Solver) relax(g *Grid, a, c float64, i0, i1, j0, j1 int, bound func([]float64)) SolveStats {
	h := g.H
	x0 := g.Cur
	x := g.Tmp
	invC := 1 / c

	g.Stage()

	var stats SolveStats
	for stats.Sweeps < s.maxIter {
		stats.Sweeps++
		diff := 0.0
		for i := i0; i <= i1; i++ {
			for j := j0; j <= j1; j++ {
				k := i*h + j
				old := x[k]
				x[k] = (x0[k] + a*(x[k-h]+x[k+h]+x[k-1]+x[k+1])) * invC
				d := old - x[k]
				diff += d * d
			}
		}
		if bound != nil {
			bound(x)
		}
		stats.Residual = diff
		if diff <= s.minErr {
			break
		}
	}
	return stats
}

// DiffuseDensity relaxes every dye channel with the same coefficients as the velocity,
// clamping into [0, DyeMax] and fading each sweep. With two or more channels, channel 0
// and 1 attract: the larger one pulls a fraction of the difference out of the smaller.
func (s *Solver) DiffuseDensity() SolveStats {
	f := s.F
	n := f.N
	a := s.dt * s.visc
	invC := 1 / (1 + 4*a)
	dyeMax := s.cfg.Dye.Max
	fade := s.cfg.Derived.DyeFade
	attract := s.cfg.Dye.Attraction
	pair := len(f.Dye) >= 2

	for _, d := range f.Dye {
		d.Stage()
	}

	var stats SolveStats
	for stats.Sweeps < s.maxIter {
		stats.Sweeps++
		diff := 0.0
		for i := 1; i < n-1; i++ {
			for j := 1; j < n-1; j++ {
				k := i*n + j
				for _, d := range f.Dye {
					x := d.Tmp
					old := x[k]
					v := (d.Cur[k] + a*(x[k-n]+x[k+n]+x[k-1]+x[k+1])) * invC
					v = clamp(v-fade, 0, dyeMax)
					x[k] = v
					dd := old - v
					diff += dd * dd
				}

				if pair {
					x0, x1 := f.Dye[0].Tmp, f.Dye[1].Tmp
					delta := x0[k] - x1[k]
					inc := delta * attract
					if inc < 0 {
						inc = -inc
					}
					if delta > 0 && x1[k] > inc {
						x0[k] += inc
						x1[k] -= inc
					} else if delta < 0 && x0[k] > inc {
						x0[k] -= inc
						x1[k] += inc
					}
				}
			}
		}
		stats.Residual = diff
		if diff <= s.minErr {
			break
		}
	}

	for _, d := range f.Dye {
		d.Commit()
	}

	s.last.DiffuseDye = stats
	return stats
}
