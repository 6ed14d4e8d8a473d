// Package terminal renders the tank as ASCII art with termbox.
package terminal

import (
	"context"
	"fmt"

	"github.com/nsf/termbox-go"

	"github.com/pthm-cable/stim/sim"
)

// ramp orders glyphs from empty to dense.
var ramp = []rune(" .:-=+*#%@")

// Terminal draws dye density and forwards mouse input as injections.
type Terminal struct {
	runner   *sim.Runner
	n        int
	channels int
	paint    float64
	scale    float64 // dye value drawn with the densest glyph

	w, h    int
	channel int
	status  string
}

// New creates a terminal view of r. Nothing is drawn until Run.
func New(r *sim.Runner) *Terminal {
	t := &Terminal{runner: r}
	r.View(func(s *sim.Simulation) {
		cfg := s.Config()
		t.n = cfg.Grid.N
		t.channels = cfg.Dye.Channels
		t.paint = cfg.Dye.PaintAmount
		t.scale = cfg.Dye.AdvectedMax
	})
	return t
}

// Run takes over the terminal until Esc, ctx is done, or the runner stops.
//
// Left click paints dye on the selected channel, right click toggles an obstacle.
// Keys: c cycles the channel, g toggles gravity, f the fountain, v the vent.
func (t *Terminal) Run(ctx context.Context) error {
	if err := termbox.Init(); err != nil {
		return fmt.Errorf("initializing terminal: %w", err)
	}
	defer termbox.Close()
	termbox.SetInputMode(termbox.InputEsc | termbox.InputMouse)
	t.w, t.h = termbox.Size()

	events := make(chan termbox.Event)
	go func() {
		for {
			ev := termbox.PollEvent()
			if ev.Type == termbox.EventInterrupt {
				close(events)
				return
			}
			events <- ev
		}
	}()
	defer func() {
		termbox.Interrupt()
		for range events {
		}
	}()

	updates, cancel := t.runner.Subscribe()
	defer cancel()

	t.redraw(0)
	for {
		select {
		case <-ctx.Done():
			return nil
		case gen, ok := <-updates:
			if !ok {
				return nil
			}
			t.redraw(gen)
		case ev := <-events:
			if quit := t.handle(ev); quit {
				return nil
			}
		}
	}
}

// handle processes one event and reports whether to quit.
func (t *Terminal) handle(ev termbox.Event) bool {
	switch ev.Type {
	case termbox.EventKey:
		switch {
		case ev.Key == termbox.KeyEsc || ev.Key == termbox.KeyCtrlC:
			return true
		case ev.Ch == 'c':
			t.channel = (t.channel + 1) % t.channels
			t.status = fmt.Sprintf("channel %d", t.channel)
		case ev.Ch == 'g':
			t.inject(sim.Injection{Kind: sim.InjectGravity})
		case ev.Ch == 'f':
			t.inject(sim.Injection{Kind: sim.InjectFountain})
		case ev.Ch == 'v':
			t.inject(sim.Injection{Kind: sim.InjectVent})
		}
	case termbox.EventMouse:
		i, j, ok := CellAt(ev.MouseX, ev.MouseY, t.w, t.h-1, t.n)
		if !ok {
			return false
		}
		switch ev.Key {
		case termbox.MouseLeft:
			t.inject(sim.Injection{Kind: sim.InjectDye, I: i, J: j, Channel: t.channel, Amount: t.paint})
		case termbox.MouseRight:
			t.inject(sim.Injection{Kind: sim.InjectBoundary, I: i, J: j})
		}
	case termbox.EventResize:
		t.w, t.h = ev.Width, ev.Height
	}
	return false
}

func (t *Terminal) inject(inj sim.Injection) {
	if err := t.runner.Inject(inj); err != nil {
		t.status = err.Error()
		return
	}
	t.status = inj.Kind.String()
}

func (t *Terminal) redraw(gen int64) {
	termbox.Clear(termbox.ColorDefault, termbox.ColorDefault)
	rows := t.h - 1
	if t.w <= 0 || rows <= 0 {
		termbox.Flush()
		return
	}

	t.runner.View(func(s *sim.Simulation) {
		f := s.Fields()
		for y := 0; y < rows; y++ {
			for x := 0; x < t.w; x++ {
				i, j, _ := CellAt(x, y, t.w, rows, t.n)
				if f.Solid(i, j) {
					termbox.SetCell(x, y, '█', termbox.ColorWhite, termbox.ColorDefault)
					continue
				}
				var total float64
				dominant, best := 0, -1.0
				for c, d := range f.Dye {
					v := d.At(i, j)
					total += v
					if v > best {
						dominant, best = c, v
					}
				}
				termbox.SetCell(x, y, Shade(total, t.scale), channelColor(dominant), termbox.ColorDefault)
			}
		}
		for _, tr := range s.Tracers() {
			x := int(tr.X * float64(t.w) / float64(t.n))
			y := int(tr.Y * float64(rows) / float64(t.n))
			termbox.SetCell(x, y, 'o', termbox.ColorYellow, termbox.ColorDefault)
		}
	})

	line := fmt.Sprintf(" gen %d | ch %d | %s | esc quits", gen, t.channel, t.status)
	for x, r := range line {
		if x >= t.w {
			break
		}
		termbox.SetCell(x, rows, r, termbox.ColorBlack, termbox.ColorWhite)
	}
	termbox.Flush()
}

// CellAt maps terminal position (x, y) on a w×h drawing area to grid cell (i, j).
func CellAt(x, y, w, h, n int) (int, int, bool) {
	if x < 0 || y < 0 || x >= w || y >= h || w <= 0 || h <= 0 {
		return 0, 0, false
	}
	return x * n / w, y * n / h, true
}

// Shade picks the glyph for dye amount v, saturating at scale.
func Shade(v, scale float64) rune {
	if v <= 0 || scale <= 0 {
		return ramp[0]
	}
	idx := int(v / scale * float64(len(ramp)-1))
	if idx >= len(ramp) {
		idx = len(ramp) - 1
	}
	if idx < 1 {
		idx = 1
	}
	return ramp[idx]
}

func channelColor(c int) termbox.Attribute {
	switch c {
	case 0:
		return termbox.ColorCyan
	case 1:
		return termbox.ColorMagenta
	default:
		return termbox.ColorGreen
	}
}
