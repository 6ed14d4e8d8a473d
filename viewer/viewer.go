// Package viewer draws the tank in a raylib window and turns mouse input into
// injections.
package viewer

import (
	"context"
	"fmt"
	"log/slog"

	gui "github.com/gen2brain/raylib-go/raygui"
	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/stim/camera"
	"github.com/pthm-cable/stim/config"
	"github.com/pthm-cable/stim/sim"
	"github.com/pthm-cable/stim/systems"
	"github.com/pthm-cable/stim/telemetry"
)

const (
	panelWidth = 220

	// dragGain converts a mouse drag in cells to a velocity impulse, scaled by the
	// grid's on-screen width.
	dragGain = 1300.0

	// velocityScale is the drawn length, in cells, of a unit velocity.
	velocityScale = 100.0
)

// arrow is one sampled velocity line in grid coordinates.
type arrow struct {
	x, y   float32
	vx, vy float32
}

// state is the part of the simulation copied out under a view each generation.
type state struct {
	gen      int64
	step     int64
	energy   float64
	rate     float64 // simulation steps per second
	project  float64 // percent of step time spent projecting
	mass     []float64
	arrows   []arrow
	tracers  []systems.Tracer
	gravity  bool
	fountain bool
	vent     bool
}

// Viewer owns the window and its widgets.
type Viewer struct {
	runner *sim.Runner
	cfg    *config.Config
	n      int

	cam      *camera.Camera
	dye      *DyeRenderer
	renderer *Renderer
	frames   *telemetry.PerfCollector

	st state

	channel      int
	paint        float32
	showVelocity bool
	showAgents   bool

	dragging   bool
	dragI      int
	dragJ      int
	lastStatus string
}

// New creates a viewer for r. The window opens in Run.
func New(r *sim.Runner, cfg *config.Config) *Viewer {
	n := cfg.Grid.N
	viewW := float32(cfg.Screen.Width - panelWidth)
	viewH := float32(cfg.Screen.Height)
	return &Viewer{
		runner:       r,
		cfg:          cfg,
		n:            n,
		cam:          camera.New(viewW, viewH, float32(n)),
		dye:          NewDyeRenderer(n),
		renderer:     NewRenderer(),
		frames:       telemetry.NewPerfCollector(0),
		paint:        float32(cfg.Dye.PaintAmount),
		showVelocity: true,
		showAgents:   true,
		st:           state{gen: -1},
	}
}

// Run opens the window and draws until it is closed, ctx is done, or the runner stops.
// Closing the window stops the runner.
func (v *Viewer) Run(ctx context.Context) {
	rl.SetConfigFlags(rl.FlagWindowResizable)
	rl.InitWindow(int32(v.cfg.Screen.Width), int32(v.cfg.Screen.Height), "Stim")
	defer rl.CloseWindow()
	rl.SetTargetFPS(int32(v.cfg.Screen.TargetFPS))

	v.dye.Init()
	defer v.dye.Unload()

	for !rl.WindowShouldClose() {
		select {
		case <-ctx.Done():
			return
		case <-v.runner.Done():
			return
		default:
		}

		v.handleInput()
		if gen := v.runner.Generation(); gen != v.st.gen {
			v.sync(gen)
		}
		v.draw()
		v.frames.RecordFrame()
	}
	v.runner.Stop()
}

// sync copies what the frame needs under a read view.
func (v *Viewer) sync(gen int64) {
	v.runner.View(func(s *sim.Simulation) {
		f := s.Fields()
		cfg := s.Config()

		v.dye.Update(f)

		v.st.gen = gen
		v.st.step = s.StepCount()
		v.st.energy = s.Solver().KineticEnergy()
		perf := s.Perf().Stats()
		v.st.rate = perf.StepsPerSecond
		v.st.project = perf.PhasePct[telemetry.PhaseProject]
		v.st.mass = v.st.mass[:0]
		for c := range f.Dye {
			v.st.mass = append(v.st.mass, s.Solver().DyeMass(c))
		}
		v.st.gravity = cfg.Gravity.Enabled
		v.st.fountain = cfg.Fountain.Enabled
		v.st.vent = cfg.Vent.Enabled

		v.st.arrows = v.st.arrows[:0]
		if v.showVelocity {
			stride := max(1, v.n/40)
			for i := 1; i < v.n-1; i += stride {
				for j := 1; j < v.n-1; j += stride {
					if f.Solid(i, j) {
						continue
					}
					vx, vy := f.CellVelocity(i, j)
					v.st.arrows = append(v.st.arrows, arrow{
						x: float32(i) + 0.5, y: float32(j) + 0.5,
						vx: float32(vx), vy: float32(vy),
					})
				}
			}
		}
		if v.showAgents {
			v.st.tracers = s.Tracers()
		}
	})
}

// handleInput maps mouse buttons to injections and keys to the camera.
func (v *Viewer) handleInput() {
	if rl.IsWindowResized() {
		v.cam.Resize(float32(rl.GetScreenWidth()-panelWidth), float32(rl.GetScreenHeight()))
	}
	if rl.IsKeyPressed(rl.KeyR) {
		v.cam.Reset()
	}
	if wheel := rl.GetMouseWheelMove(); wheel != 0 {
		v.cam.ZoomBy(1 + wheel*0.1)
	}
	if rl.IsKeyDown(rl.KeyRight) {
		v.cam.Pan(8, 0)
	}
	if rl.IsKeyDown(rl.KeyLeft) {
		v.cam.Pan(-8, 0)
	}
	if rl.IsKeyDown(rl.KeyDown) {
		v.cam.Pan(0, 8)
	}
	if rl.IsKeyDown(rl.KeyUp) {
		v.cam.Pan(0, -8)
	}
	if rl.IsKeyPressed(rl.KeyC) {
		v.channel = (v.channel + 1) % v.cfg.Dye.Channels
	}

	mouse := rl.GetMousePosition()
	if mouse.X >= v.cam.ViewportW {
		v.dragging = false
		return
	}
	i, j, ok := v.cam.CellAt(mouse.X, mouse.Y)
	if !ok {
		v.dragging = false
		return
	}

	// Left drag: push the fluid along the drag.
	switch {
	case rl.IsMouseButtonPressed(rl.MouseButtonLeft):
		v.dragging = true
		v.dragI, v.dragJ = i, j
	case rl.IsMouseButtonDown(rl.MouseButtonLeft) && v.dragging:
		if i != v.dragI || j != v.dragJ {
			width := float64(v.n) * float64(v.cam.Zoom)
			dx := float64(i-v.dragI) * dragGain / float64(v.n) / width
			dy := float64(j-v.dragJ) * dragGain / float64(v.n) / width
			v.inject(sim.Injection{Kind: sim.InjectVelocity, I: i, J: j, DX: dx, DY: dy})
			v.dragI, v.dragJ = i, j
		}
	case rl.IsMouseButtonReleased(rl.MouseButtonLeft):
		v.dragging = false
	}

	// Right button: paint dye.
	if rl.IsMouseButtonDown(rl.MouseButtonRight) {
		v.inject(sim.Injection{Kind: sim.InjectDye, I: i, J: j, Channel: v.channel, Amount: float64(v.paint)})
	}

	// Middle button: toggle an obstacle.
	if rl.IsMouseButtonPressed(rl.MouseButtonMiddle) {
		v.inject(sim.Injection{Kind: sim.InjectBoundary, I: i, J: j})
	}
}

func (v *Viewer) inject(inj sim.Injection) {
	if err := v.runner.Inject(inj); err != nil {
		v.lastStatus = err.Error()
		slog.Debug("injection refused", "kind", inj.Kind.String(), "error", err)
		return
	}
	v.lastStatus = inj.Kind.String()
}

func (v *Viewer) draw() {
	rl.BeginDrawing()
	rl.ClearBackground(rl.Black)

	v.dye.Draw(v.cam)

	if v.showVelocity {
		for _, a := range v.st.arrows {
			sx, sy := v.cam.WorldToScreen(a.x, a.y)
			ex, ey := v.cam.WorldToScreen(a.x+a.vx*velocityScale, a.y+a.vy*velocityScale)
			c := rl.Color{
				R: uint8(255 * min(1, abs32(a.vx*40))),
				G: 0,
				B: uint8(255 * min(1, abs32(a.vy*40))),
				A: 255,
			}
			rl.DrawLine(int32(sx), int32(sy), int32(ex), int32(ey), c)
		}
	}
	if v.showAgents {
		radius := max(2, v.cam.Zoom/2)
		for _, tr := range v.st.tracers {
			if !v.cam.IsVisible(float32(tr.X), float32(tr.Y), 1) {
				continue
			}
			sx, sy := v.cam.WorldToScreen(float32(tr.X), float32(tr.Y))
			rl.DrawCircleV(rl.Vector2{X: sx, Y: sy}, radius, rl.Yellow)
		}
	}

	v.drawPanel()
	rl.EndDrawing()
}

// drawPanel renders stats and the force source controls on the right.
func (v *Viewer) drawPanel() {
	r := v.renderer
	th := r.Theme
	x := int32(rl.GetScreenWidth() - panelWidth)
	h := int32(rl.GetScreenHeight())
	r.DrawPanel(x, 0, panelWidth, h)

	px := x + th.Padding
	w := int32(panelWidth) - 2*th.Padding
	y := th.Padding

	rl.DrawText("Stim", px, y, 20, rl.White)
	y += 28

	y = r.DrawSectionHeader(px, y, "Simulation")
	y = r.DrawLabelValue(px, y, "Step", fmt.Sprintf("%d", v.st.step))
	y = r.DrawLabelValue(px, y, "FPS", fmt.Sprintf("%.0f", v.frames.Stats().FPS))
	y = r.DrawLabelValue(px, y, "Steps/s", fmt.Sprintf("%.1f", v.st.rate))
	y = r.DrawBar(px, y, "Project %", float32(v.st.project), 100, w)
	y = r.DrawLabelValue(px, y, "Energy", fmt.Sprintf("%.4f", v.st.energy))
	for c, m := range v.st.mass {
		y = r.DrawLabelValue(px, y, fmt.Sprintf("Dye %d", c), fmt.Sprintf("%.1f", m))
	}
	y += 6

	y = r.DrawSectionHeader(px, y, "Paint")
	y = r.DrawLabelValue(px, y, "Channel", fmt.Sprintf("%d [c]", v.channel))
	y = r.DrawBar(px, y, "Amount", v.paint, float32(v.cfg.Dye.AdvectedMax), w)
	v.paint = gui.SliderBar(rl.Rectangle{X: float32(px), Y: float32(y), Width: float32(w), Height: 16}, "", "", v.paint, 1, float32(v.cfg.Dye.AdvectedMax))
	y += 26

	y = r.DrawSectionHeader(px, y, "Forces")
	button := func(label string, on bool, kind sim.InjectionKind) {
		text := label + ": off"
		if on {
			text = label + ": on"
		}
		if gui.Button(rl.Rectangle{X: float32(px), Y: float32(y), Width: float32(w), Height: 24}, text) {
			v.inject(sim.Injection{Kind: kind})
		}
		y += 30
	}
	button("Gravity", v.st.gravity, sim.InjectGravity)
	button("Fountain", v.st.fountain, sim.InjectFountain)
	button("Vent", v.st.vent, sim.InjectVent)
	y += 6

	y = r.DrawSectionHeader(px, y, "Display")
	v.showVelocity = gui.CheckBox(rl.Rectangle{X: float32(px), Y: float32(y), Width: 14, Height: 14}, "Velocity", v.showVelocity)
	y += 22
	v.showAgents = gui.CheckBox(rl.Rectangle{X: float32(px), Y: float32(y), Width: 14, Height: 14}, "Agents", v.showAgents)
	y += 30

	if gui.Button(rl.Rectangle{X: float32(px), Y: float32(y), Width: float32(w), Height: 24}, "Stop") {
		go v.runner.Stop()
	}
	y += 34

	rl.DrawText(v.lastStatus, px, y, th.FontSize, th.LabelColor)
	rl.DrawText("L drag: push  R: dye  M: wall", px, h-th.Padding-th.FontSize, th.FontSize-2, rl.Gray)
}

func abs32(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}
