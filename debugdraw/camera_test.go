package debugdraw

import (
	"testing"

	"github.com/jakecoffman/cp"
	"github.com/stretchr/testify/assert"
)

func TestFitCameraFramesBounds(t *testing.T) {
	cam := FitCamera(cp.BB{L: 0, B: 0, R: 20, T: 10}, 420, 420, 10)
	assert.InDelta(t, 20, cam.Zoom, 1e-9)

	x, y := cam.ToScreen(cp.Vector{X: 0, Y: 0})
	assert.InDelta(t, 10, x, 1e-4)
	assert.InDelta(t, 310, y, 1e-4, "the spare height is split evenly")

	x, y = cam.ToScreen(cp.Vector{X: 20, Y: 10})
	assert.InDelta(t, 410, x, 1e-4)
	assert.InDelta(t, 110, y, 1e-4, "world y points up")
	assert.InDelta(t, 40, cam.Scale(2), 1e-4)
}

func TestCameraRoundTrip(t *testing.T) {
	cam := FitCamera(cp.BB{L: -5, B: 2, R: 15, T: 12}, 800, 600, 20)
	p := cp.Vector{X: 3.25, Y: 7.5}
	x, y := cam.ToScreen(p)
	back := cam.ToWorld(int(x+0.5), int(y+0.5))
	assert.InDelta(t, p.X, back.X, 1/cam.Zoom)
	assert.InDelta(t, p.Y, back.Y, 1/cam.Zoom)
}

func TestFitCameraDegenerateBounds(t *testing.T) {
	cam := FitCamera(cp.BB{}, 0, 0, 10)
	assert.Greater(t, cam.Zoom, 0.0)
}
