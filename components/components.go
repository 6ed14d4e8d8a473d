// Package components defines ECS components for tracer agents.
package components

// Position is an agent's location in grid cell units.
type Position struct {
	X, Y float64
}

// Cell returns the grid cell containing the position, clamped into [lo, hi].
func (p Position) Cell(lo, hi int) (int, int) {
	i, j := int(p.X), int(p.Y)
	if i < lo {
		i = lo
	} else if i > hi {
		i = hi
	}
	if j < lo {
		j = lo
	} else if j > hi {
		j = hi
	}
	return i, j
}

// Drift is the random-walk bias added to an agent's displacement every step.
type Drift struct {
	Z, W float64
}

// Marker identifies an agent and the dye channel it deposits into.
type Marker struct {
	Index   int
	Channel int
}
