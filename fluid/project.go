package fluid

// Project removes the divergent part of the velocity field.
//
// The divergence b = -∇·u is written over the pressure buffer, ∇²p = -b is relaxed in the
// scratch buffer starting from the previous solution, and the pressure gradient is then
// subtracted from every face between two fluid cells. Solid neighbours drop out of the
// stencil, which leaves c = 4 away from walls and gives a zero-flux condition next to them.
// Beside a wall c is the number of fluid neighbours rather than a fixed 4, so cells next
// to obstacles reach the same divergence bound as open ones.
func (s *Solver) Project() SolveStats {
	f := s.F
	n := f.N
	p := f.Pressure
	solid := f.Boundary

	// The previous solution is the warm start; b overwrites the current buffer.
	p.Stage()
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			p.Cur[i*n+j] = -f.Divergence(i, j)
		}
	}

	b := p.Cur
	x := p.Tmp
	var stats SolveStats
	for stats.Sweeps < s.maxIter {
		stats.Sweeps++
		diff := 0.0
		for i := 1; i < n-1; i++ {
			for j := 1; j < n-1; j++ {
				k := i*n + j
				if solid[k] {
					continue
				}
				var sum, count float64
				if !solid[k-n] {
					sum += x[k-n]
					count++
				}
				if !solid[k+n] {
					sum += x[k+n]
					count++
				}
				if !solid[k-1] {
					sum += x[k-1]
					count++
				}
				if !solid[k+1] {
					sum += x[k+1]
					count++
				}
				if count == 0 {
					continue
				}
				old := x[k]
				x[k] = (b[k] + sum) / count
				d := old - x[k]
				diff += d * d
			}
		}
		stats.Residual = diff
		if diff <= s.minErr {
			break
		}
	}
	p.Commit()

	pc := p.Cur
	vx := f.VX.Cur
	for i := 1; i < n; i++ {
		for j := 0; j < n; j++ {
			vx[i*n+j] -= pc[i*n+j] - pc[(i-1)*n+j]
		}
	}
	vy := f.VY.Cur
	h := n + 1
	for i := 0; i < n; i++ {
		for j := 1; j < n; j++ {
			vy[i*h+j] -= pc[i*n+j] - pc[i*n+j-1]
		}
	}
	f.EnforceBounds()

	s.last.Project = stats
	s.last.Projections++
	return stats
}
