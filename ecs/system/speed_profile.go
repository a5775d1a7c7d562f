package system

import (
	"math"

	"github.com/jakecoffman/cp"
	"github.com/milk9111/navcore/common"
	"github.com/milk9111/navcore/ecs/component"
)

// minTravelSpeed keeps arrival estimates finite while starting or stopping.
const minTravelSpeed = 0.1

// reversalCos is the segment cosine below which a corner counts as a
// reversal that needs a full stop.
const reversalCos = -0.9

// profileNode is one path node inside the lookahead.
type profileNode struct {
	index    int
	position cp.Vector
	area     component.AreaConfiguration
	// length and limit describe the segment ending at this node.
	length float64
	limit  float64
	// speed is the planned speed on arrival, arrival the seconds from now.
	speed   float64
	arrival float64
}

// speedProfile is the planned speed along the lookahead part of a path.
type speedProfile struct {
	start float64
	nodes []profileNode
	// stops is set when the entity has to be at rest on the last node.
	stops  bool
	reason component.BrakingReason
	// allowed is the fastest speed at the current position that still
	// meets every later constraint.
	allowed float64
}

func movesBackwards(nav *component.NavigationComponent, node component.Waypoint) bool {
	return node.Flags.Has(component.WaypointMoveBackwards) && nav.Flags.Has(component.MovementAllowBackwards)
}

func segmentLimit(nav *component.NavigationComponent, node component.Waypoint) float64 {
	limit := nav.Movement.MaxForwardSpeed
	if movesBackwards(nav, node) {
		limit = nav.Movement.MaxBackwardSpeed
	}
	if node.SpeedLimit > 0 {
		limit = min(limit, node.SpeedLimit)
	}
	return limit
}

func travelTime(v0, v1, dist float64) float64 {
	if dist <= common.Epsilon {
		return 0
	}
	return dist / math.Max((v0+v1)/2, minTravelSpeed)
}

// buildProfile plans speeds over the remaining path of nav from pos. It
// looks ahead until MinLookaheadTime has passed and the entity could stop,
// the node cap is hit, a blocked node or area shows up, or the path ends.
func (s *SteeringSystem) buildProfile(nav *component.NavigationComponent, pos cp.Vector, speed float64) speedProfile {
	path := nav.Path()
	mp := nav.Movement
	prof := speedProfile{start: math.Abs(speed)}
	remaining := path.Remaining()
	cur := path.CurrentNodeIndex()

	prev := pos
	var prevDir cp.Vector
	prevBackwards := false
	v := prof.start
	elapsed, travelled := 0.0, 0.0
	for k, node := range remaining {
		if k >= s.cfg.MaxLookaheadNodes {
			break
		}
		if s.model != nil {
			if s.model.PointBlocked(nav.Maps.Primary, node.Position) {
				prof.stops, prof.reason = true, component.BrakingNodeBlocked
				break
			}
			if s.model.AreaBlocked(node.Area) {
				prof.stops, prof.reason = true, component.BrakingAreaBlocked
				break
			}
		}

		seg := node.Position.Sub(prev)
		length := seg.Length()
		backwards := movesBackwards(nav, node)
		var dir cp.Vector
		if length > common.Epsilon {
			dir = seg.Mult(1 / length)
		}
		if k > 0 && len(prof.nodes) > 0 {
			last := &prof.nodes[len(prof.nodes)-1]
			corner := last.speed
			if dir.LengthSq() > 0 && prevDir.LengthSq() > 0 {
				cos := common.Clamp(prevDir.Dot(dir), -1, 1)
				corner = mp.CornerSpeed(math.Acos(cos))
				if cos < reversalCos {
					corner = 0
				}
			}
			if backwards != prevBackwards || remaining[k-1].Flags.Has(component.WaypointManeuver) {
				corner = 0
			}
			if corner < last.speed {
				last.speed = corner
				v = corner
			}
		}

		limit := segmentLimit(nav, node)
		arrive := min(limit, common.SpeedAfterDistance(v, mp.MaxAcceleration, length))
		elapsed += travelTime(v, arrive, length)
		travelled += length
		v = arrive
		prof.nodes = append(prof.nodes, profileNode{
			index:    cur + k,
			position: node.Position,
			area:     node.Area,
			length:   length,
			limit:    limit,
			speed:    arrive,
		})
		if dir.LengthSq() > 0 {
			prevDir = dir
		}
		prevBackwards = backwards
		prev = node.Position

		if elapsed >= s.cfg.MinLookaheadTime && travelled >= common.BrakingDistance(v, 0, mp.MaxDeceleration) {
			break
		}
	}
	if prof.reason == component.BrakingNone && len(prof.nodes) == len(remaining) {
		prof.stops, prof.reason = true, component.BrakingPathEnds
	}
	prof.backward(mp.MaxDeceleration)
	return prof
}

// backward caps every node speed so the entity can still brake for all
// later constraints, then recomputes arrival times.
func (p *speedProfile) backward(decel float64) {
	next := math.Inf(1)
	if p.stops {
		next = 0
	}
	for i := len(p.nodes) - 1; i >= 0; i-- {
		n := &p.nodes[i]
		n.speed = min(n.speed, next)
		next = min(n.limit, common.SpeedAfterDistance(n.speed, decel, n.length))
	}
	p.allowed = next

	v, t := p.start, 0.0
	for i := range p.nodes {
		n := &p.nodes[i]
		t += travelTime(v, n.speed, n.length)
		n.arrival = t
		v = n.speed
	}
}

// truncate makes the entity stop on the node before profile index i.
func (p *speedProfile) truncate(i int, reason component.BrakingReason, decel float64) {
	if i < len(p.nodes) {
		p.nodes = p.nodes[:i]
	}
	p.stops = true
	p.reason = reason
	p.backward(decel)
}

// distance is the path length from the current position to the last
// profile node.
func (p *speedProfile) distance() float64 {
	d := 0.0
	for _, n := range p.nodes {
		d += n.length
	}
	return d
}

// lastArrival is the arrival time on the final profile node.
func (p *speedProfile) lastArrival() float64 {
	if len(p.nodes) == 0 {
		return 0
	}
	return p.nodes[len(p.nodes)-1].arrival
}
