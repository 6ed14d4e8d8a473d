package fluid

// Fields owns every array of the staggered (MAC) grid.
//
//	VX       (n+1)×n   horizontal velocity on vertical cell faces
//	VY       n×(n+1)   vertical velocity on horizontal cell faces
//	Pressure n×n       cell centred, kept as the next solve's warm start
//	Dye      n×n       one grid per channel, cell centred
//	Boundary n×n       solid cells; the outer ring is always solid
type Fields struct {
	N        int
	VX       *Grid
	VY       *Grid
	Pressure *Grid
	Dye      []*Grid
	Boundary []bool
}

// NewFields allocates zeroed storage for an n×n domain with the given number of dye
// channels and marks the outer ring as boundary.
func NewFields(n, channels int) *Fields {
	f := &Fields{
		N:        n,
		VX:       NewGrid(n+1, n),
		VY:       NewGrid(n, n+1),
		Pressure: NewGrid(n, n),
		Dye:      make([]*Grid, channels),
		Boundary: make([]bool, n*n),
	}
	for c := range f.Dye {
		f.Dye[c] = NewGrid(n, n)
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			f.Boundary[i*n+j] = i == 0 || i == n-1 || j == 0 || j == n-1
		}
	}
	return f
}

// Solid reports whether cell (i, j) is boundary. Out-of-domain cells count as solid.
func (f *Fields) Solid(i, j int) bool {
	if i < 0 || i >= f.N || j < 0 || j >= f.N {
		return true
	}
	return f.Boundary[i*f.N+j]
}

// boundXFace reports whether the vx face at (i, j) touches a solid cell.
// The face separates cells (i-1, j) and (i, j).
func (f *Fields) boundXFace(i, j int) bool {
	return f.Solid(i-1, j) || f.Solid(i, j)
}

// boundYFace reports whether the vy face at (i, j) touches a solid cell.
// The face separates cells (i, j-1) and (i, j).
func (f *Fields) boundYFace(i, j int) bool {
	return f.Solid(i, j-1) || f.Solid(i, j)
}

// SetBoundsX zeroes every vx sample adjacent to a boundary cell.
func (f *Fields) SetBoundsX(vx []float64) {
	n := f.N
	for i := 0; i <= n; i++ {
		for j := 0; j < n; j++ {
			if f.boundXFace(i, j) {
				vx[i*n+j] = 0
			}
		}
	}
}

// SetBoundsY zeroes every vy sample adjacent to a boundary cell.
func (f *Fields) SetBoundsY(vy []float64) {
	n := f.N
	h := n + 1
	for i := 0; i < n; i++ {
		for j := 0; j <= n; j++ {
			if f.boundYFace(i, j) {
				vy[i*h+j] = 0
			}
		}
	}
}

// EnforceBounds applies the zero normal velocity rule to both current velocity arrays.
func (f *Fields) EnforceBounds() {
	f.SetBoundsX(f.VX.Cur)
	f.SetBoundsY(f.VY.Cur)
}

// Divergence returns the discrete divergence of the current velocity at cell (i, j).
func (f *Fields) Divergence(i, j int) float64 {
	return f.VX.At(i+1, j) - f.VX.At(i, j) + f.VY.At(i, j+1) - f.VY.At(i, j)
}

// MaxDivergence returns the largest |divergence| over non-boundary cells.
func (f *Fields) MaxDivergence() float64 {
	var worst float64
	for i := 1; i < f.N-1; i++ {
		for j := 1; j < f.N-1; j++ {
			if f.Solid(i, j) {
				continue
			}
			d := f.Divergence(i, j)
			if d < 0 {
				d = -d
			}
			if d > worst {
				worst = d
			}
		}
	}
	return worst
}

// CellVelocity averages the staggered faces onto the centre of cell (i, j).
func (f *Fields) CellVelocity(i, j int) (float64, float64) {
	u := 0.5 * (f.VX.At(i, j) + f.VX.At(i+1, j))
	v := 0.5 * (f.VY.At(i, j) + f.VY.At(i, j+1))
	return u, v
}
