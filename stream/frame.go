// Package stream broadcasts simulation frames to websocket clients and accepts
// injection commands from them.
package stream

import (
	"fmt"

	"github.com/pthm-cable/stim/fluid"
	"github.com/pthm-cable/stim/sim"
)

// Frame is one downsampled picture of the tank.
type Frame struct {
	Type       string       `json:"type"` // always "frame"
	Generation int64        `json:"gen"`
	Step       int64        `json:"step"`
	N          int          `json:"n"`
	Size       int          `json:"size"` // cells per side after downsampling
	Dye        [][]float32  `json:"dye"`  // per channel, row-major Size×Size
	Solid      []bool       `json:"solid"`
	Agents     [][2]float32 `json:"agents"`
}

// errorMessage is sent back when a client command is rejected.
type errorMessage struct {
	Type  string `json:"type"` // always "error"
	Error string `json:"error"`
}

// BuildFrame copies the visible state of s. The caller must hold a runner view.
func BuildFrame(gen int64, s *sim.Simulation, downsample int) Frame {
	f := s.Fields()
	size, solid := downsampleSolid(f, downsample)
	frame := Frame{
		Type:       "frame",
		Generation: gen,
		Step:       s.StepCount(),
		N:          f.N,
		Size:       size,
		Dye:        make([][]float32, len(f.Dye)),
		Solid:      solid,
	}
	for c, d := range f.Dye {
		frame.Dye[c] = Downsample(d.Cur, f.N, downsample)
	}
	for _, tr := range s.Tracers() {
		frame.Agents = append(frame.Agents, [2]float32{float32(tr.X), float32(tr.Y)})
	}
	return frame
}

// Downsample averages k×k blocks of an n×n field stored as values[i*n+j]. Blocks at
// the far edge may be partial; they average only the cells they cover.
func Downsample(values []float64, n, k int) []float32 {
	if k < 1 {
		k = 1
	}
	size := (n + k - 1) / k
	out := make([]float32, size*size)
	for bi := 0; bi < size; bi++ {
		for bj := 0; bj < size; bj++ {
			var sum float64
			var count int
			for i := bi * k; i < (bi+1)*k && i < n; i++ {
				for j := bj * k; j < (bj+1)*k && j < n; j++ {
					sum += values[i*n+j]
					count++
				}
			}
			out[bi*size+bj] = float32(sum / float64(count))
		}
	}
	return out
}

// downsampleSolid marks a block solid when any cell inside it is.
func downsampleSolid(f *fluid.Fields, k int) (int, []bool) {
	if k < 1 {
		k = 1
	}
	n := f.N
	size := (n + k - 1) / k
	out := make([]bool, size*size)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if f.Boundary[i*n+j] {
				out[(i/k)*size+j/k] = true
			}
		}
	}
	return size, out
}

// Command is an injection request sent by a client.
//
//	{"op":"dye","i":10,"j":12,"channel":0,"amount":45}
//	{"op":"velocity","i":10,"j":12,"dx":0.5,"dy":-0.2}
//	{"op":"boundary","i":10,"j":12}
//	{"op":"gravity"}
type Command struct {
	Op      string  `json:"op"`
	I       int     `json:"i"`
	J       int     `json:"j"`
	DX      float64 `json:"dx"`
	DY      float64 `json:"dy"`
	Channel int     `json:"channel"`
	Amount  float64 `json:"amount"`
}

// Injection converts the command. A dye command without an amount uses paint.
func (c Command) Injection(paint float64) (sim.Injection, error) {
	kind, ok := sim.ParseInjectionKind(c.Op)
	if !ok {
		return sim.Injection{}, fmt.Errorf("unknown op %q", c.Op)
	}
	inj := sim.Injection{
		Kind:    kind,
		I:       c.I,
		J:       c.J,
		DX:      c.DX,
		DY:      c.DY,
		Channel: c.Channel,
		Amount:  c.Amount,
	}
	if kind == sim.InjectDye && inj.Amount == 0 {
		inj.Amount = paint
	}
	return inj, nil
}
