package fluid

// Grid is a dense W×H array of float64 with a scratch twin of identical shape.
// Cells are stored column-major as i*H+j so that a fixed i walks contiguous memory.
type Grid struct {
	W, H int
	Cur  []float64 // current values
	Tmp  []float64 // scratch written by relaxation and advection passes
}

// NewGrid allocates a zeroed grid.
func NewGrid(w, h int) *Grid {
	return &Grid{
		W:   w,
		H:   h,
		Cur: make([]float64, w*h),
		Tmp: make([]float64, w*h),
	}
}

func (g *Grid) idx(i, j int) int { return i*g.H + j }

// At returns the current value at (i, j).
func (g *Grid) At(i, j int) float64 { return g.Cur[i*g.H+j] }

// Set writes the current value at (i, j).
func (g *Grid) Set(i, j int, v float64) { g.Cur[i*g.H+j] = v }

// Add increments the current value at (i, j).
func (g *Grid) Add(i, j int, v float64) { g.Cur[i*g.H+j] += v }

// InBounds reports whether (i, j) addresses a sample of this grid.
func (g *Grid) InBounds(i, j int) bool {
	return i >= 0 && i < g.W && j >= 0 && j < g.H
}

// Stage copies current into scratch, the warm start for a relaxation pass.
func (g *Grid) Stage() { copy(g.Tmp, g.Cur) }

// Commit copies scratch back into current at the end of a pass.
func (g *Grid) Commit() { copy(g.Cur, g.Tmp) }

// Swap exchanges current and scratch without copying.
func (g *Grid) Swap() { g.Cur, g.Tmp = g.Tmp, g.Cur }

// Reset zeroes both buffers.
func (g *Grid) Reset() {
	fill(g.Cur, 0)
	fill(g.Tmp, 0)
}

// Snapshot returns a copy of the current values.
func (g *Grid) Snapshot() []float64 {
	out := make([]float64, len(g.Cur))
	copy(out, g.Cur)
	return out
}

func fill[T any](slice []T, val T) {
	for i := range slice {
		slice[i] = val
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
