package navmap

import (
	"container/heap"
	"fmt"
	"log/slog"
	"math"

	"github.com/jakecoffman/cp"
	"github.com/milk9111/navcore/ecs/component"
	"github.com/milk9111/navcore/ecs/system"
)

const (
	defaultMaxExpansions = 4096
	defaultSnapDistance  = 1.0
)

type options struct {
	logger *slog.Logger
}

type Option func(*options)

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func resolveOptions(opts []Option) options {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Searcher finds area paths with A* over the portal graph of an atlas.
// Within an area paths run straight, which is safe because areas are
// convex.
type Searcher struct {
	atlas  *Atlas
	logger *slog.Logger

	// MaxExpansions bounds the work of one search.
	MaxExpansions int
	// SnapDistance lets a start just off the walkable space join the
	// nearest area.
	SnapDistance float64
}

func NewSearcher(atlas *Atlas, opts ...Option) *Searcher {
	o := resolveOptions(opts)
	return &Searcher{
		atlas:         atlas,
		logger:        o.logger,
		MaxExpansions: defaultMaxExpansions,
		SnapDistance:  defaultSnapDistance,
	}
}

type stateKey struct {
	portal int
	area   uint32
}

type searchNode struct {
	pos      cp.Vector
	area     uint32
	parent   int
	portal   bool
	terminal bool
}

func (s *Searcher) FindPath(req system.PathRequest) (*component.Path, error) {
	if req.Goal == nil {
		return nil, fmt.Errorf("%w: no goal", system.ErrNoPath)
	}
	m, start, err := s.startArea(req)
	if err != nil {
		return nil, err
	}
	test, err := newGoalTest(req, m)
	if err != nil {
		return nil, err
	}
	avoid := make(map[uint32]bool, len(req.AvoidAreas))
	for _, a := range req.AvoidAreas {
		if a.MapID == m.ID {
			avoid[a.AreaID] = true
		}
	}

	nodes := []searchNode{{pos: req.Start, area: start.ID, parent: -1}}
	gScore := []float64{0}
	best := map[stateKey]float64{{portal: -1, area: start.ID}: 0}
	open := &openSet{}
	heap.Init(open)
	heap.Push(open, &openItem{id: 0, f: test.estimate(req.Start)})

	push := func(n searchNode, g, h float64) {
		nodes = append(nodes, n)
		gScore = append(gScore, g)
		heap.Push(open, &openItem{id: len(nodes) - 1, f: g + h, g: g})
	}

	for expanded := 0; open.Len() > 0; expanded++ {
		if expanded >= s.MaxExpansions {
			return nil, fmt.Errorf("%w: search budget of %d expansions exhausted", system.ErrNoPath, s.MaxExpansions)
		}
		item := heap.Pop(open).(*openItem)
		cur := nodes[item.id]
		g := gScore[item.id]
		if cur.terminal {
			return s.buildPath(m, nodes, item.id), nil
		}

		area, _ := m.Area(cur.area)
		for _, c := range test.candidates(m, area, cur.pos, req.Radius) {
			push(searchNode{pos: c, area: area.ID, parent: item.id, terminal: true}, g+cur.pos.Distance(c), 0)
		}
		for _, pi := range m.links[area.ID] {
			portal := m.portals[pi]
			next, ok := portal.Other(area.ID)
			if !ok || avoid[next] {
				continue
			}
			if na, _ := m.Area(next); na.Blocked {
				continue
			}
			ng := g + cur.pos.Distance(portal.Point)
			key := stateKey{portal: pi, area: next}
			if old, seen := best[key]; seen && old <= ng {
				continue
			}
			best[key] = ng
			push(searchNode{pos: portal.Point, area: next, parent: item.id, portal: true}, ng, test.estimate(portal.Point))
		}
	}
	return nil, fmt.Errorf("%w: goal unreachable from area %d of map %d", system.ErrNoPath, start.ID, m.ID)
}

// startArea picks the first bound map whose walkable space holds the start.
func (s *Searcher) startArea(req system.PathRequest) (*Map, Area, error) {
	if s.atlas == nil {
		return nil, Area{}, fmt.Errorf("%w: no maps loaded", system.ErrNoPath)
	}
	ids := []uint32{req.Maps.Primary}
	if req.Maps.HasSecondary {
		ids = append(ids, req.Maps.Secondary)
	}
	for _, id := range ids {
		m, ok := s.atlas.Map(id)
		if !ok {
			continue
		}
		if a, ok := m.areaAt(req.Start); ok {
			return m, a, nil
		}
		if a, d := m.nearestArea(req.Start); d <= s.SnapDistance {
			s.logger.Debug("navmap: start snapped to area", slog.Any("start", req.Start), slog.Uint64("area", uint64(a.ID)))
			return m, a, nil
		}
	}
	return nil, Area{}, fmt.Errorf("%w: start %v is off every bound map", system.ErrNoPath, req.Start)
}

// buildPath walks the parent chain back from the terminal node. Portal
// nodes belong to the area they enter, carry the limit of the area they
// leave and face the way they are crossed.
func (s *Searcher) buildPath(m *Map, nodes []searchNode, last int) *component.Path {
	var chain []searchNode
	for i := last; i >= 0; i = nodes[i].parent {
		chain = append(chain, nodes[i])
	}
	p := component.NewPath()
	prevArea := chain[len(chain)-1].area
	for i := len(chain) - 1; i >= 0; i-- {
		n := chain[i]
		wp := component.NewWaypoint(n.pos, component.NewAreaConfiguration(m.ID, n.area))
		if i != len(chain)-1 {
			if a, ok := m.Area(prevArea); ok {
				wp.SpeedLimit = a.SpeedLimit
			}
		}
		if n.portal {
			wp = wp.WithFlags(component.WaypointPortal)
			if prev, ok := p.LastNode(); ok && prev.Position.DistanceSq(n.pos) > 0 {
				wp.Direction = n.pos.Sub(prev.Position).Normalize()
			}
		}
		p.AddNode(wp)
		prevArea = n.area
	}
	return p
}

// goalTest decides where a search may end.
type goalTest struct {
	goal    component.NavigationGoal
	ctx     component.GoalContext
	configs []component.GoalConfiguration
	// region goals are satisfied by any point meeting a condition rather
	// than by reaching listed positions.
	region bool
}

func newGoalTest(req system.PathRequest, m *Map) (*goalTest, error) {
	t := &goalTest{goal: req.Goal, ctx: req.Context, configs: req.Goal.GoalConfigurations()}
	switch req.Goal.Kind() {
	case component.GoalLineOfSight:
		if len(t.configs) == 0 || t.configs[0].Failed {
			return nil, fmt.Errorf("%w: line of sight target unknown", system.ErrNoPath)
		}
		t.region = true
		return t, nil
	case component.GoalAvoidThreats:
		t.region = true
		return t, nil
	case component.GoalReachConsecutivePoints:
		if len(t.configs) > 1 {
			t.configs = t.configs[:1]
		}
	}

	usable := 0
	for i, c := range t.configs {
		if c.Failed {
			continue
		}
		if _, ok := m.areaAt(c.Position); !ok || m.PointBlocked(m.ID, c.Position) {
			// Nothing can stand there; the goal learns so for its own verdict.
			if err := req.Goal.MarkConfigurationFailed(i); err == nil {
				t.configs[i].Failed = true
			}
			continue
		}
		usable++
	}
	if usable == 0 {
		return nil, fmt.Errorf("%w: no reachable goal configuration", system.ErrNoPath)
	}
	return t, nil
}

func (t *goalTest) estimate(p cp.Vector) float64 {
	h := t.goal.EstimateDistanceToTarget(p)
	if math.IsNaN(h) || math.IsInf(h, 0) || h < 0 {
		return 0
	}
	return h
}

func (t *goalTest) satisfied(p cp.Vector) bool {
	switch g := t.goal.(type) {
	case *component.LineOfSightGoal:
		c := t.configs[0]
		sees := p.Distance(c.Position) <= c.Radius && (t.ctx == nil || t.ctx.LineOfSight(p, c.Position))
		return sees != g.Avoid
	case *component.AvoidThreatsGoal:
		return g.EstimateDistanceToTarget(p) <= 0
	}
	return false
}

// candidates lists the end points available in area for a search that
// entered it at entry.
func (t *goalTest) candidates(m *Map, area Area, entry cp.Vector, radius float64) []cp.Vector {
	if !t.region {
		var out []cp.Vector
		for _, c := range t.configs {
			if !c.Failed && contains(area.Bounds, c.Position) {
				out = append(out, c.Position)
			}
		}
		return out
	}

	inner := inset(area.Bounds, radius)
	samples := []cp.Vector{
		entry,
		inner.Center(),
		{X: inner.L, Y: inner.B}, {X: inner.R, Y: inner.B},
		{X: inner.L, Y: inner.T}, {X: inner.R, Y: inner.T},
	}
	for _, c := range t.configs {
		samples = append(samples, clampToBB(inner, c.Position))
	}
	var out []cp.Vector
	for _, p := range samples {
		if !m.PointBlocked(m.ID, p) && t.satisfied(p) {
			out = append(out, p)
		}
	}
	return out
}

// inset shrinks bb by d on every side, collapsing to the center line when
// bb is too thin.
func inset(bb cp.BB, d float64) cp.BB {
	c := bb.Center()
	hw := max(0, (bb.R-bb.L)/2-d)
	hh := max(0, (bb.T-bb.B)/2-d)
	return cp.NewBBForExtents(c, hw, hh)
}
