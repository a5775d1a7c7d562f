package debugdraw

import (
	"fmt"
	"image/color"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/vector"
	"github.com/jakecoffman/cp"
	"github.com/milk9111/navcore/ecs"
	"github.com/milk9111/navcore/ecs/component"
	"github.com/milk9111/navcore/ecs/entity"
	"github.com/milk9111/navcore/navmap"
	"golang.org/x/image/colornames"
)

var (
	areaFill     = color.NRGBA{R: 0x30, G: 0x3c, B: 0x50, A: 0xff}
	slowFill     = color.NRGBA{R: 0x50, G: 0x46, B: 0x28, A: 0xff}
	blockedFill  = color.NRGBA{R: 0x5a, G: 0x20, B: 0x20, A: 0xff}
	areaOutline  = colornames.Slategray
	wallFill     = colornames.Dimgray
	portalColor  = colornames.Gold
	pathColor    = colornames.Lightskyblue
	detourColor  = colornames.Orange
	obstacleFill = colornames.Firebrick
	hitColor     = colornames.Red
)

// Options selects the optional layers.
type Options struct {
	Paths      bool
	Labels     bool
	Collisions bool
	Physics    bool
}

// DrawScene renders the maps, obstacles and agents of s.
func DrawScene(screen *ebiten.Image, s *entity.Scene, cam Camera, opts Options) {
	if screen == nil || s == nil {
		return
	}
	for _, m := range s.Atlas.Maps() {
		drawMap(screen, m, cam)
	}
	for _, e := range s.Obstacles {
		drawObstacle(screen, s.World, e, cam)
	}
	if opts.Paths {
		for _, a := range s.Agents {
			drawPath(screen, s.World, a, cam)
		}
	}
	for _, a := range s.Agents {
		drawAgent(screen, s.World, a, cam, opts.Labels)
	}
	if opts.Collisions {
		DrawCollisions(screen, s, cam)
	}
	if opts.Physics {
		if pw := s.World.PhysicsWorld(); pw != nil {
			DrawPhysics(screen, pw.Space(), cam)
		}
	}
}

func drawMap(screen *ebiten.Image, m *navmap.Map, cam Camera) {
	for _, a := range m.Areas() {
		fill := areaFill
		switch {
		case a.Blocked:
			fill = blockedFill
		case a.SpeedLimit > 0:
			fill = slowFill
		}
		fillBB(screen, a.Bounds, cam, fill)
		strokeBB(screen, a.Bounds, cam, areaOutline)
	}
	for _, w := range m.Walls() {
		fillBB(screen, w, cam, wallFill)
	}
	for _, p := range m.Portals() {
		x, y := cam.ToScreen(p.Point)
		vector.FillCircle(screen, x, y, 3, portalColor, true)
	}
}

func fillBB(screen *ebiten.Image, bb cp.BB, cam Camera, clr color.Color) {
	x, y := cam.ToScreen(cp.Vector{X: bb.L, Y: bb.T})
	vector.FillRect(screen, x, y, cam.Scale(bb.R-bb.L), cam.Scale(bb.T-bb.B), clr, false)
}

func strokeBB(screen *ebiten.Image, bb cp.BB, cam Camera, clr color.Color) {
	x, y := cam.ToScreen(cp.Vector{X: bb.L, Y: bb.T})
	vector.StrokeRect(screen, x, y, cam.Scale(bb.R-bb.L), cam.Scale(bb.T-bb.B), 1, clr, false)
}

func drawObstacle(screen *ebiten.Image, w *ecs.World, e ecs.Entity, cam Camera) {
	tr, ok := ecs.Get(w, e, component.TransformComponent.Kind())
	if !ok {
		return
	}
	ob, ok := ecs.Get(w, e, component.ObstacleComponent.Kind())
	if !ok {
		return
	}
	x, y := cam.ToScreen(tr.Position)
	vector.FillCircle(screen, x, y, cam.Scale(ob.Radius), obstacleFill, true)
}

func drawPath(screen *ebiten.Image, w *ecs.World, a entity.Agent, cam Camera) {
	nav, ok := w.Navigation(a.Entity)
	if !ok {
		return
	}
	tr, ok := ecs.Get(w, a.Entity, component.TransformComponent.Kind())
	if !ok {
		return
	}
	from := tr.Position
	for _, n := range nav.Path().Remaining() {
		clr := color.Color(pathColor)
		if n.Flags.HasAny(component.WaypointEvasion, component.WaypointLocalRoute) {
			clr = detourColor
		}
		line(screen, from, n.Position, cam, clr)
		if n.HasDirection() {
			line(screen, n.Position, n.Position.Add(n.Direction.Mult(0.4)), cam, portalColor)
		}
		from = n.Position
	}
}

func drawAgent(screen *ebiten.Image, w *ecs.World, a entity.Agent, cam Camera, label bool) {
	nav, ok := w.Navigation(a.Entity)
	if !ok {
		return
	}
	tr, ok := ecs.Get(w, a.Entity, component.TransformComponent.Kind())
	if !ok {
		return
	}
	x, y := cam.ToScreen(tr.Position)
	r := max(cam.Scale(nav.Movement.Radius), 2)
	clr := a.Color
	if clr == nil {
		clr = colornames.White
	}
	vector.StrokeCircle(screen, x, y, r, 1.5, clr, true)
	line(screen, tr.Position, tr.Position.Add(tr.Forward().Mult(nav.Movement.Radius*1.5)), cam, clr)

	if !label {
		return
	}
	text := a.Name
	if nav.Braking != component.BrakingNone {
		text = fmt.Sprintf("%s (%s)", a.Name, nav.Braking)
	}
	ebitenutil.DebugPrintAt(screen, text, int(x+r+2), int(y-8))
}

// DrawCollisions draws the collisions the steering considered this tick.
// They are only recorded while draw_collisions is enabled.
func DrawCollisions(screen *ebiten.Image, s *entity.Scene, cam Camera) {
	for _, rec := range s.Steering.Aggregator().Recorded() {
		line(screen, rec.From, rec.Collision.Position, cam, hitColor)
		x, y := cam.ToScreen(rec.Collision.Position)
		vector.StrokeCircle(screen, x, y, max(cam.Scale(rec.Collision.Radius), 2), 1, hitColor, true)
	}
}

func line(screen *ebiten.Image, a, b cp.Vector, cam Camera, clr color.Color) {
	x1, y1 := cam.ToScreen(a)
	x2, y2 := cam.ToScreen(b)
	vector.StrokeLine(screen, x1, y1, x2, y2, 1, clr, true)
}

// Marker draws a small downward triangle pointing at p.
func Marker(screen *ebiten.Image, cam Camera, p cp.Vector, clr color.Color) {
	x, y := cam.ToScreen(p)
	vector.StrokeLine(screen, x-5, y-8, x+5, y-8, 1.5, clr, true)
	vector.StrokeLine(screen, x-5, y-8, x, y, 1.5, clr, true)
	vector.StrokeLine(screen, x+5, y-8, x, y, 1.5, clr, true)
}
