package viewer

import (
	"image/color"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/stim/camera"
	"github.com/pthm-cable/stim/fluid"
)

// dyeBrightness is the dye amount drawn at full intensity.
const dyeBrightness = 10.0

var boundaryColor = color.RGBA{R: 0, G: 51, B: 128, A: 255}

// DyeRenderer uploads the dye and boundary fields to an n×n texture.
type DyeRenderer struct {
	tex         rl.Texture2D
	n           int
	pixels      []color.RGBA
	initialized bool
}

// NewDyeRenderer creates a renderer for an n×n grid.
func NewDyeRenderer(n int) *DyeRenderer {
	return &DyeRenderer{n: n, pixels: make([]color.RGBA, n*n)}
}

// Init creates the texture (must be called after the raylib window is created).
func (r *DyeRenderer) Init() {
	if r.initialized {
		return
	}
	img := rl.GenImageColor(r.n, r.n, rl.Black)
	r.tex = rl.LoadTextureFromImage(img)
	rl.SetTextureFilter(r.tex, rl.FilterPoint)
	rl.UnloadImage(img)
	r.initialized = true
}

// Update converts the fields to pixels. The caller must hold a runner view.
func (r *DyeRenderer) Update(f *fluid.Fields) {
	n := r.n
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			px := &r.pixels[j*n+i]
			if f.Boundary[i*n+j] {
				*px = boundaryColor
				continue
			}
			var d0, d1 float64
			d0 = f.Dye[0].At(i, j)
			if len(f.Dye) > 1 {
				d1 = f.Dye[1].At(i, j)
			}
			*px = dyeColor(d0, d1)
		}
	}
}

// dyeColor blends channel 0 as warm light and channel 1 as cold light.
func dyeColor(d0, d1 float64) color.RGBA {
	a := channelLevel(d0)
	b := channelLevel(d1)
	return color.RGBA{
		R: uint8(255 * a),
		G: uint8(255 * (0.6*a + 0.6*b) / 1.2),
		B: uint8(255 * (a/4 + b) / 1.25),
		A: 255,
	}
}

func channelLevel(d float64) float64 {
	v := d / dyeBrightness
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Draw uploads the pixels and draws the texture through cam.
func (r *DyeRenderer) Draw(cam *camera.Camera) {
	if !r.initialized {
		r.Init()
	}
	rl.UpdateTexture(r.tex, r.pixels)

	x0, y0 := cam.WorldToScreen(0, 0)
	size := float32(r.n) * cam.Zoom
	srcRect := rl.Rectangle{X: 0, Y: 0, Width: float32(r.n), Height: float32(r.n)}
	dstRect := rl.Rectangle{X: x0, Y: y0, Width: size, Height: size}
	rl.DrawTexturePro(r.tex, srcRect, dstRect, rl.Vector2{}, 0, rl.White)
}

// Unload frees GPU resources.
func (r *DyeRenderer) Unload() {
	if !r.initialized {
		return
	}
	rl.UnloadTexture(r.tex)
	r.initialized = false
}
