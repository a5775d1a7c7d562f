package debugdraw

import (
	"math"

	"github.com/jakecoffman/cp"
)

// Camera maps world metres, y up, onto screen pixels, y down.
type Camera struct {
	// Origin is the world point drawn at the bottom-left screen corner.
	Origin cp.Vector
	// Zoom is pixels per metre.
	Zoom    float64
	ScreenH float64
}

// FitCamera frames bounds inside a w by h screen with margin pixels on
// every side.
func FitCamera(bounds cp.BB, w, h int, margin float64) Camera {
	bw := math.Max(bounds.R-bounds.L, 1e-3)
	bh := math.Max(bounds.T-bounds.B, 1e-3)
	zoom := math.Min((float64(w)-2*margin)/bw, (float64(h)-2*margin)/bh)
	if zoom <= 0 || math.IsNaN(zoom) {
		zoom = 1
	}
	// Centre the spare space.
	spareX := float64(w) - bw*zoom
	spareY := float64(h) - bh*zoom
	return Camera{
		Origin:  cp.Vector{X: bounds.L - spareX/2/zoom, Y: bounds.B - spareY/2/zoom},
		Zoom:    zoom,
		ScreenH: float64(h),
	}
}

func (c Camera) ToScreen(v cp.Vector) (float32, float32) {
	x := (v.X - c.Origin.X) * c.Zoom
	y := c.ScreenH - (v.Y-c.Origin.Y)*c.Zoom
	return float32(x), float32(y)
}

func (c Camera) ToWorld(x, y int) cp.Vector {
	return cp.Vector{
		X: float64(x)/c.Zoom + c.Origin.X,
		Y: (c.ScreenH-float64(y))/c.Zoom + c.Origin.Y,
	}
}

// Scale converts a world length to pixels.
func (c Camera) Scale(d float64) float32 {
	return float32(d * c.Zoom)
}
