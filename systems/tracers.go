package systems

import (
	"math"
	"math/rand"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/stim/components"
	"github.com/pthm-cable/stim/config"
	"github.com/pthm-cable/stim/fluid"
)

// Tracer is a read-only copy of one agent.
type Tracer struct {
	X, Y    float64
	Z, W    float64
	Channel int
}

// TracerSystem moves passive tracer agents with the flow and lets them deposit dye.
type TracerSystem struct {
	world  *ecs.World
	mapper *ecs.Map3[components.Position, components.Drift, components.Marker]
	filter *ecs.Filter3[components.Position, components.Drift, components.Marker]

	n        int
	channels int
	gain     float64
	maxStep  float64
	bias     float64
	drift    float64
	sink     float64
	deposit  float64
	dyeMax   float64
	count    int
}

// NewTracerSystem creates the agent population, seeding positions from rng.
func NewTracerSystem(cfg *config.Config, rng *rand.Rand) *TracerSystem {
	world := ecs.NewWorld()
	s := &TracerSystem{
		world:    world,
		mapper:   ecs.NewMap3[components.Position, components.Drift, components.Marker](world),
		filter:   ecs.NewFilter3[components.Position, components.Drift, components.Marker](world),
		n:        cfg.Grid.N,
		channels: cfg.Dye.Channels,
		gain:     cfg.Agents.Gain,
		maxStep:  cfg.Agents.MaxStep,
		bias:     cfg.Agents.BiasLimit,
		drift:    cfg.Derived.AgentDrift,
		sink:     cfg.Derived.AgentSink,
		deposit:  cfg.Derived.AgentDeposit,
		dyeMax:   cfg.Dye.Max,
	}
	for i := 0; i < cfg.Agents.Count; i++ {
		s.spawn(i, rng)
	}
	return s
}

// NewTracerSystemFrom recreates agents from saved state, clamping them back into
// the domain. cfg.Agents.Count is ignored.
func NewTracerSystemFrom(cfg *config.Config, tracers []Tracer) *TracerSystem {
	c := *cfg
	c.Agents.Count = 0
	s := NewTracerSystem(&c, nil)
	hi := float64(s.n - 3)
	for i, tr := range tracers {
		pos := components.Position{X: clampF(tr.X, 2, hi), Y: clampF(tr.Y, 2, hi)}
		drift := components.Drift{Z: clampF(tr.Z, -s.bias, s.bias), W: clampF(tr.W, -s.bias, s.bias)}
		channel := tr.Channel
		if channel < 0 || channel >= s.channels {
			channel = i % s.channels
		}
		s.add(i, pos, drift, channel)
	}
	return s
}

func (s *TracerSystem) spawn(index int, rng *rand.Rand) {
	pos := components.Position{
		X: float64(rng.Intn(s.n-4) + 2),
		Y: float64(rng.Intn(s.n-4) + 2),
	}
	s.add(index, pos, components.Drift{}, index%s.channels)
}

func (s *TracerSystem) add(index int, pos components.Position, drift components.Drift, channel int) {
	marker := components.Marker{Index: index, Channel: channel}
	s.mapper.NewEntity(&pos, &drift, &marker)
	s.count++
}

// Count returns the number of agents.
func (s *TracerSystem) Count() int { return s.count }

// Update advances every agent by one step using the current velocity field and
// deposits dye at the cell it was sampled from. rng supplies the drift walk.
func (s *TracerSystem) Update(f *fluid.Fields, rng *rand.Rand) {
	lo := 2.0
	hi := float64(s.n - 3)

	query := s.filter.Query()
	for query.Next() {
		pos, drift, marker := query.Get()

		ax, ay := pos.Cell(1, s.n-2)
		xd, yd := stencil5(f, ax, ay)

		pos.X += math.Min(s.maxStep, xd*s.gain) + drift.Z
		pos.Y += math.Min(s.maxStep, yd*s.gain) + drift.W + s.sink
		drift.Z += s.drift * (rng.Float64() - 0.5)
		drift.W += s.drift * (rng.Float64() - 0.5)

		pos.X = clampF(pos.X, lo, hi)
		pos.Y = clampF(pos.Y, lo, hi)
		drift.Z = clampF(drift.Z, -s.bias, s.bias)
		drift.W = clampF(drift.W, -s.bias, s.bias)

		if f.Solid(ax, ay) {
			continue
		}
		d := f.Dye[marker.Channel]
		d.Set(ax, ay, math.Min(d.At(ax, ay)+s.deposit, s.dyeMax))
	}
}

// stencil5 averages vx and vy over cell (i, j) and its four neighbours' samples.
func stencil5(f *fluid.Fields, i, j int) (float64, float64) {
	vx, vy := f.VX, f.VY
	xd := (vx.At(i, j) + vx.At(i+1, j) + vx.At(i-1, j) + vx.At(i, j+1) + vx.At(i, j-1)) / 5
	yd := (vy.At(i, j) + vy.At(i+1, j) + vy.At(i-1, j) + vy.At(i, j+1) + vy.At(i, j-1)) / 5
	return xd, yd
}

// Tracers returns a snapshot of every agent in creation order.
func (s *TracerSystem) Tracers() []Tracer {
	out := make([]Tracer, s.count)
	query := s.filter.Query()
	for query.Next() {
		pos, drift, marker := query.Get()
		out[marker.Index] = Tracer{X: pos.X, Y: pos.Y, Z: drift.Z, W: drift.W, Channel: marker.Channel}
	}
	return out
}

// BiasMagnitudes returns |(z, w)| for every agent, for telemetry.
func (s *TracerSystem) BiasMagnitudes() []float64 {
	out := make([]float64, 0, s.count)
	query := s.filter.Query()
	for query.Next() {
		_, drift, _ := query.Get()
		out = append(out, math.Hypot(drift.Z, drift.W))
	}
	return out
}
