// Package camera maps the square fluid grid onto a window viewport.
package camera

// Camera controls the viewport into the grid. World units are grid cells.
type Camera struct {
	// Position is the camera center in world coordinates
	X, Y float32

	// Zoom is pixels per cell
	Zoom float32

	// Viewport dimensions (screen size available to the grid)
	ViewportW, ViewportH float32

	// WorldSize is the grid side length in cells
	WorldSize float32

	// Zoom constraints
	MinZoom, MaxZoom float32
}

// New creates a camera centered on the grid, zoomed so the whole grid fits.
func New(viewportW, viewportH, worldSize float32) *Camera {
	c := &Camera{
		X:         worldSize / 2,
		Y:         worldSize / 2,
		WorldSize: worldSize,
	}
	c.Resize(viewportW, viewportH)
	c.Zoom = c.MinZoom
	return c
}

// WorldToScreen converts world coordinates to screen coordinates.
func (c *Camera) WorldToScreen(wx, wy float32) (sx, sy float32) {
	sx = c.ViewportW/2 + (wx-c.X)*c.Zoom
	sy = c.ViewportH/2 + (wy-c.Y)*c.Zoom
	return sx, sy
}

// ScreenToWorld converts screen coordinates to world coordinates.
func (c *Camera) ScreenToWorld(sx, sy float32) (wx, wy float32) {
	wx = c.X + (sx-c.ViewportW/2)/c.Zoom
	wy = c.Y + (sy-c.ViewportH/2)/c.Zoom
	return wx, wy
}

// CellAt returns the grid cell under a screen position, if any.
func (c *Camera) CellAt(sx, sy float32) (i, j int, ok bool) {
	wx, wy := c.ScreenToWorld(sx, sy)
	if wx < 0 || wy < 0 || wx >= c.WorldSize || wy >= c.WorldSize {
		return 0, 0, false
	}
	return int(wx), int(wy), true
}

// IsVisible returns true if a circle at (wx, wy) with given radius
// could be visible on screen (conservative check for culling).
func (c *Camera) IsVisible(wx, wy, radius float32) bool {
	halfW := c.ViewportW/(2*c.Zoom) + radius
	halfH := c.ViewportH/(2*c.Zoom) + radius
	return absf(wx-c.X) <= halfW && absf(wy-c.Y) <= halfH
}

// Resize updates viewport dimensions and recalculates zoom constraints.
func (c *Camera) Resize(viewportW, viewportH float32) {
	c.ViewportW = viewportW
	c.ViewportH = viewportH
	fit := viewportW / c.WorldSize
	if fitH := viewportH / c.WorldSize; fitH < fit {
		fit = fitH
	}
	c.MinZoom = fit
	c.MaxZoom = fit * 8
	c.Zoom = clamp(c.Zoom, c.MinZoom, c.MaxZoom)
	c.clampCenter()
}

// Pan moves the camera by the given delta in screen pixels. The center stays on the grid.
func (c *Camera) Pan(dx, dy float32) {
	c.X += dx / c.Zoom
	c.Y += dy / c.Zoom
	c.clampCenter()
}

// SetZoom sets the zoom level, clamped to min/max.
func (c *Camera) SetZoom(zoom float32) {
	c.Zoom = clamp(zoom, c.MinZoom, c.MaxZoom)
}

// ZoomBy multiplies the current zoom by the given factor.
func (c *Camera) ZoomBy(factor float32) {
	c.SetZoom(c.Zoom * factor)
}

// Reset returns the camera to the fitted view.
func (c *Camera) Reset() {
	c.X = c.WorldSize / 2
	c.Y = c.WorldSize / 2
	c.Zoom = c.MinZoom
}

// VisibleCells returns the cell range [minI, maxI) × [minJ, maxJ) that intersects
// the viewport, clipped to the grid.
func (c *Camera) VisibleCells() (minI, minJ, maxI, maxJ int) {
	halfW := c.ViewportW / (2 * c.Zoom)
	halfH := c.ViewportH / (2 * c.Zoom)
	n := int(c.WorldSize)

	minI = clampInt(int(c.X-halfW), 0, n)
	minJ = clampInt(int(c.Y-halfH), 0, n)
	maxI = clampInt(int(c.X+halfW)+1, 0, n)
	maxJ = clampInt(int(c.Y+halfH)+1, 0, n)
	return
}

func (c *Camera) clampCenter() {
	c.X = clamp(c.X, 0, c.WorldSize)
	c.Y = clamp(c.Y, 0, c.WorldSize)
}

// absf returns the absolute value of a float32.
func absf(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}

// clamp restricts a value to a range.
func clamp(x, min, max float32) float32 {
	if x < min {
		return min
	}
	if x > max {
		return max
	}
	return x
}

func clampInt(x, min, max int) int {
	if x < min {
		return min
	}
	if x > max {
		return max
	}
	return x
}
