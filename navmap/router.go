package navmap

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/jakecoffman/cp"
	"github.com/milk9111/navcore/ecs/system"
)

const (
	defaultRouterMargin   = 4
	defaultRouterMaxCells = 20000
)

// GridRouter plans short detours on a fine grid laid over the map around
// the start and goal. Fresh obstacles are rasterised into the grid
// inflated by the agent radius.
type GridRouter struct {
	atlas  *Atlas
	logger *slog.Logger

	// Margin widens the window around start and goal, in cells.
	Margin int
	// MaxCells bounds the window size.
	MaxCells int
}

func NewGridRouter(atlas *Atlas, opts ...Option) *GridRouter {
	o := resolveOptions(opts)
	return &GridRouter{
		atlas:    atlas,
		logger:   o.logger,
		Margin:   defaultRouterMargin,
		MaxCells: defaultRouterMaxCells,
	}
}

// disc is an obstacle already inflated by the agent radius.
type disc struct {
	center cp.Vector
	radius float64
}

func (r *GridRouter) Route(req system.LocalRouteRequest) (system.LocalRoute, error) {
	if r.atlas == nil {
		return system.LocalRoute{}, fmt.Errorf("%w: no maps loaded", system.ErrNoRoute)
	}
	m, ok := r.atlas.Map(req.MapID)
	if !ok {
		return system.LocalRoute{}, fmt.Errorf("%w: unknown map %d", system.ErrNoRoute, req.MapID)
	}
	cell := m.CellSize

	discs := make([]disc, 0, len(req.Obstacles))
	reach := req.Radius
	for _, o := range req.Obstacles {
		rad := o.Radius + req.Radius
		// An agent already brushing the obstacle must still be able to
		// leave; shrink the disc so the start sits just outside it.
		if d := req.Start.Distance(o.Position); d < rad {
			rad = max(0, d-cell*0.25)
		}
		discs = append(discs, disc{center: o.Position, radius: rad})
		reach = max(reach, rad)
	}

	pad := float64(r.Margin)*cell + reach
	window := cp.BB{
		L: min(req.Start.X, req.Goal.X) - pad, B: min(req.Start.Y, req.Goal.Y) - pad,
		R: max(req.Start.X, req.Goal.X) + pad, T: max(req.Start.Y, req.Goal.Y) + pad,
	}
	g := newGrid(window, cell)
	if g.w*g.h > r.MaxCells {
		return system.LocalRoute{}, fmt.Errorf("%w: window of %dx%d cells too large", system.ErrNoRoute, g.w, g.h)
	}

	blockedAt := func(p cp.Vector) bool {
		return r.blocked(m, req.Radius, discs, p)
	}
	blocked := make([]bool, g.w*g.h)
	for y := 0; y < g.h; y++ {
		for x := 0; x < g.w; x++ {
			p := gridPos{x: x, y: y}
			blocked[g.index(p)] = blockedAt(g.center(p))
		}
	}
	start := g.gridCoord(req.Start)
	goal := g.gridCoord(req.Goal)
	blocked[g.index(start)] = false

	cells, complete := astarPath(g, start, goal, blocked)
	if len(cells) == 0 {
		return system.LocalRoute{}, fmt.Errorf("%w: boxed in at %v", system.ErrNoRoute, req.Start)
	}

	pts := g.gridPathToWorld(cells)
	pts[0] = req.Start
	if complete {
		if len(pts) == 1 {
			pts = append(pts, req.Goal)
		} else {
			pts[len(pts)-1] = req.Goal
		}
	}
	route := system.LocalRoute{Points: smooth(pts, cell, blockedAt), Partial: !complete}
	r.logger.Debug("navmap: local route",
		slog.Int("cells", len(cells)), slog.Int("points", len(route.Points)), slog.Bool("partial", route.Partial))
	return route, nil
}

// blocked reports a point where an agent of radius cannot stand.
func (r *GridRouter) blocked(m *Map, radius float64, discs []disc, p cp.Vector) bool {
	for _, d := range discs {
		if p.Distance(d.center) < d.radius {
			return true
		}
	}
	if m.PointBlocked(m.ID, p) {
		return true
	}
	if radius <= 0 {
		return false
	}
	for _, off := range [...]cp.Vector{{X: radius}, {X: -radius}, {Y: radius}, {Y: -radius}} {
		if m.PointBlocked(m.ID, p.Add(off)) {
			return true
		}
	}
	return false
}

// smooth drops intermediate points whenever a straight segment between
// the surviving neighbours stays clear.
func smooth(pts []cp.Vector, step float64, blockedAt func(cp.Vector) bool) []cp.Vector {
	if len(pts) <= 2 {
		return pts
	}
	out := []cp.Vector{pts[0]}
	for i := 0; i < len(pts)-1; {
		j := len(pts) - 1
		for j > i+1 && !segmentClear(pts[i], pts[j], step/2, blockedAt) {
			j--
		}
		out = append(out, pts[j])
		i = j
	}
	return out
}

func segmentClear(a, b cp.Vector, step float64, blockedAt func(cp.Vector) bool) bool {
	n := int(math.Ceil(a.Distance(b) / step))
	for k := 1; k <= n; k++ {
		if blockedAt(a.Lerp(b, float64(k)/float64(n))) {
			return false
		}
	}
	return true
}
