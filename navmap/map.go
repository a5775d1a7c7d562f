package navmap

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/jakecoffman/cp"
	"github.com/milk9111/navcore/ecs"
	"github.com/milk9111/navcore/ecs/component"
	"github.com/milk9111/navcore/levels"
)

const defaultCellSize = 0.5

var ErrInvalidMap = errors.New("navmap: invalid map")

// Area is an axis aligned convex walkable region.
type Area struct {
	ID         uint32
	Bounds     cp.BB
	Height     float64
	SpeedLimit float64
	Blocked    bool
}

func (a Area) Center() cp.Vector {
	return a.Bounds.Center()
}

// Portal is a crossing point between two areas.
type Portal struct {
	From, To uint32
	Point    cp.Vector
	OneWay   bool
}

// Other returns the area on the far side of the portal when entered from
// area, and whether the portal may be crossed in that direction.
func (p Portal) Other(area uint32) (uint32, bool) {
	switch area {
	case p.From:
		return p.To, true
	case p.To:
		return p.From, !p.OneWay
	}
	return 0, false
}

// Map is one navigation map: areas joined by portals, with walls outside
// the walkable space.
type Map struct {
	ID       uint32
	CellSize float64

	areas   []Area
	byID    map[uint32]int
	portals []Portal
	// links lists portal indices touching each area.
	links  map[uint32][]int
	walls  []cp.BB
	bounds cp.BB
}

// NewMap builds and validates a map from its level description.
func NewMap(spec levels.MapSpec) (*Map, error) {
	m := &Map{
		ID:       spec.ID,
		CellSize: spec.CellSize,
		byID:     make(map[uint32]int, len(spec.Areas)),
		links:    make(map[uint32][]int),
	}
	if m.CellSize <= 0 {
		m.CellSize = defaultCellSize
	}
	if len(spec.Areas) == 0 {
		return nil, fmt.Errorf("%w: map %d has no areas", ErrInvalidMap, spec.ID)
	}

	for i, as := range spec.Areas {
		bb := levels.BoxSpec{Min: as.Min, Max: as.Max}.BB()
		if bb.R-bb.L <= 0 || bb.T-bb.B <= 0 {
			return nil, fmt.Errorf("%w: area %d of map %d is empty", ErrInvalidMap, as.ID, spec.ID)
		}
		if _, dup := m.byID[as.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate area %d in map %d", ErrInvalidMap, as.ID, spec.ID)
		}
		for _, other := range m.areas {
			if overlaps(bb, other.Bounds) {
				return nil, fmt.Errorf("%w: areas %d and %d overlap", ErrInvalidMap, as.ID, other.ID)
			}
		}
		m.byID[as.ID] = i
		m.areas = append(m.areas, Area{ID: as.ID, Bounds: bb, Height: as.Height, SpeedLimit: as.SpeedLimit, Blocked: as.Blocked})
		if i == 0 {
			m.bounds = bb
		} else {
			m.bounds = m.bounds.Merge(bb)
		}
	}

	for _, ps := range spec.Portals {
		from, okFrom := m.Area(ps.From)
		to, okTo := m.Area(ps.To)
		if !okFrom || !okTo || ps.From == ps.To {
			return nil, fmt.Errorf("%w: portal %d->%d joins unknown areas", ErrInvalidMap, ps.From, ps.To)
		}
		pt := ps.Point.V()
		if !contains(from.Bounds, pt) || !contains(to.Bounds, pt) {
			return nil, fmt.Errorf("%w: portal %d->%d at %v is not on a shared edge", ErrInvalidMap, ps.From, ps.To, pt)
		}
		idx := len(m.portals)
		m.portals = append(m.portals, Portal{From: ps.From, To: ps.To, Point: pt, OneWay: ps.OneWay})
		m.links[ps.From] = append(m.links[ps.From], idx)
		m.links[ps.To] = append(m.links[ps.To], idx)
	}

	for _, ws := range spec.Walls {
		bb := ws.BB()
		for _, a := range m.areas {
			if overlaps(bb, a.Bounds) {
				return nil, fmt.Errorf("%w: wall %v overlaps area %d", ErrInvalidMap, bb, a.ID)
			}
		}
		m.walls = append(m.walls, bb)
		m.bounds = m.bounds.Merge(bb)
	}
	return m, nil
}

func (m *Map) Area(id uint32) (Area, bool) {
	i, ok := m.byID[id]
	if !ok {
		return Area{}, false
	}
	return m.areas[i], true
}

func (m *Map) Areas() []Area {
	return m.areas
}

func (m *Map) Portals() []Portal {
	return m.portals
}

// PortalsOf returns the portals touching area.
func (m *Map) PortalsOf(area uint32) []Portal {
	out := make([]Portal, 0, len(m.links[area]))
	for _, i := range m.links[area] {
		out = append(out, m.portals[i])
	}
	return out
}

func (m *Map) Walls() []cp.BB {
	return m.walls
}

// Bounds covers every area and wall.
func (m *Map) Bounds() cp.BB {
	return m.bounds
}

// SetAreaBlocked opens or closes an area at runtime, e.g. a door.
func (m *Map) SetAreaBlocked(id uint32, blocked bool) bool {
	i, ok := m.byID[id]
	if !ok {
		return false
	}
	m.areas[i].Blocked = blocked
	return true
}

// AreaAt returns the area containing p. Points on a shared edge belong to
// the area listed first.
func (m *Map) AreaAt(mapID uint32, p cp.Vector) (component.AreaConfiguration, bool) {
	if mapID != m.ID {
		return component.AreaConfiguration{}, false
	}
	a, ok := m.areaAt(p)
	if !ok {
		return component.AreaConfiguration{}, false
	}
	return component.NewAreaConfiguration(m.ID, a.ID), true
}

func (m *Map) areaAt(p cp.Vector) (Area, bool) {
	for _, a := range m.areas {
		if contains(a.Bounds, p) {
			return a, true
		}
	}
	return Area{}, false
}

// nearestArea returns the area closest to p and the distance to it.
func (m *Map) nearestArea(p cp.Vector) (Area, float64) {
	best, bestDist := m.areas[0], math.Inf(1)
	for _, a := range m.areas {
		d := clampToBB(a.Bounds, p).Distance(p)
		if d < bestDist {
			best, bestDist = a, d
		}
	}
	return best, bestDist
}

func (m *Map) AreaBlocked(area component.AreaConfiguration) bool {
	if area.MapID != m.ID {
		return false
	}
	a, ok := m.Area(area.AreaID)
	return ok && a.Blocked
}

// PointBlocked reports points off the walkable space, inside a blocked area
// or inside a wall.
func (m *Map) PointBlocked(mapID uint32, p cp.Vector) bool {
	if mapID != m.ID {
		return false
	}
	for _, w := range m.walls {
		if strictlyInside(w, p) {
			return true
		}
	}
	a, ok := m.areaAt(p)
	return !ok || a.Blocked
}

func (m *Map) GroundHeight(mapID uint32, p cp.Vector) float64 {
	if mapID != m.ID {
		return 0
	}
	if a, ok := m.areaAt(p); ok {
		return a.Height
	}
	return 0
}

// AddStatics registers the walls with the physics world so line of sight
// and sweeps see them.
func (m *Map) AddStatics(pw *ecs.PhysicsWorld) {
	for _, w := range m.walls {
		pw.AddStaticBox(w)
	}
}

// Atlas holds every map of a level and answers world model queries by map
// id.
type Atlas struct {
	maps map[uint32]*Map
	ids  []uint32
}

func NewAtlas(maps ...*Map) *Atlas {
	a := &Atlas{maps: make(map[uint32]*Map, len(maps))}
	for _, m := range maps {
		a.Add(m)
	}
	return a
}

// FromLevel builds every map of lvl.
func FromLevel(lvl *levels.Level) (*Atlas, error) {
	a := NewAtlas()
	for _, spec := range lvl.Maps {
		if _, dup := a.maps[spec.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate map %d", ErrInvalidMap, spec.ID)
		}
		m, err := NewMap(spec)
		if err != nil {
			return nil, fmt.Errorf("level %s: %w", lvl.Name, err)
		}
		a.Add(m)
	}
	return a, nil
}

func (a *Atlas) Add(m *Map) {
	if m == nil {
		return
	}
	if _, ok := a.maps[m.ID]; !ok {
		a.ids = append(a.ids, m.ID)
		slices.Sort(a.ids)
	}
	a.maps[m.ID] = m
}

func (a *Atlas) Map(id uint32) (*Map, bool) {
	m, ok := a.maps[id]
	return m, ok
}

// Maps returns the maps ordered by id.
func (a *Atlas) Maps() []*Map {
	out := make([]*Map, 0, len(a.ids))
	for _, id := range a.ids {
		out = append(out, a.maps[id])
	}
	return out
}

func (a *Atlas) AreaAt(mapID uint32, p cp.Vector) (component.AreaConfiguration, bool) {
	if m, ok := a.maps[mapID]; ok {
		return m.AreaAt(mapID, p)
	}
	return component.AreaConfiguration{}, false
}

func (a *Atlas) AreaBlocked(area component.AreaConfiguration) bool {
	if m, ok := a.maps[area.MapID]; ok {
		return m.AreaBlocked(area)
	}
	return false
}

func (a *Atlas) PointBlocked(mapID uint32, p cp.Vector) bool {
	if m, ok := a.maps[mapID]; ok {
		return m.PointBlocked(mapID, p)
	}
	return false
}

func (a *Atlas) GroundHeight(mapID uint32, p cp.Vector) float64 {
	if m, ok := a.maps[mapID]; ok {
		return m.GroundHeight(mapID, p)
	}
	return 0
}

// Bounds encloses every map. It is the zero box for an empty atlas.
func (a *Atlas) Bounds() cp.BB {
	maps := a.Maps()
	if len(maps) == 0 {
		return cp.BB{}
	}
	bb := maps[0].Bounds()
	for _, m := range maps[1:] {
		bb = bb.Merge(m.Bounds())
	}
	return bb
}

// AddStatics registers the walls of every map.
func (a *Atlas) AddStatics(pw *ecs.PhysicsWorld) {
	for _, m := range a.Maps() {
		m.AddStatics(pw)
	}
}

func contains(bb cp.BB, p cp.Vector) bool {
	return p.X >= bb.L && p.X <= bb.R && p.Y >= bb.B && p.Y <= bb.T
}

func strictlyInside(bb cp.BB, p cp.Vector) bool {
	return p.X > bb.L && p.X < bb.R && p.Y > bb.B && p.Y < bb.T
}

// overlaps ignores shared edges.
func overlaps(a, b cp.BB) bool {
	return a.L < b.R && b.L < a.R && a.B < b.T && b.B < a.T
}

func clampToBB(bb cp.BB, p cp.Vector) cp.Vector {
	return cp.Vector{X: max(bb.L, min(p.X, bb.R)), Y: max(bb.B, min(p.Y, bb.T))}
}
