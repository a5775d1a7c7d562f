package system

import (
	"math"

	"github.com/jakecoffman/cp"
	"github.com/milk9111/navcore/ecs"
	"github.com/milk9111/navcore/ecs/component"
)

const (
	defaultBulletLookahead = 3.0
	defaultRouterLookahead = 6.0
	// routerSlack widens the arrival window tested against reservations.
	routerSlack = 0.5
	// routerMinSpeed keeps arrival estimates finite for standing entities.
	routerMinSpeed = 0.25
)

// BulletCollisionAggregator gathers physical candidates from the Chipmunk
// space: every agent proxy in the box swept by the query disc over the
// lookahead.
type BulletCollisionAggregator struct {
	Physics *ecs.PhysicsWorld
	// Lookahead is in seconds of travel at the current speed.
	Lookahead float64
	// MinReach is the sweep length used when standing still.
	MinReach float64
}

func NewBulletCollisionAggregator(physics *ecs.PhysicsWorld) *BulletCollisionAggregator {
	return &BulletCollisionAggregator{Physics: physics, Lookahead: defaultBulletLookahead, MinReach: 1}
}

// SweepBounds is the area searched for q.
func (b *BulletCollisionAggregator) SweepBounds(q CollisionQuery) cp.BB {
	reach := math.Max(b.MinReach, math.Abs(q.Speed)*b.Lookahead)
	end := q.Position.Add(q.MovementDirection().Mult(reach))
	pad := q.Radius + q.Margin
	bb := cp.NewBBForCircle(q.Position, pad).Merge(cp.NewBBForCircle(end, pad))
	h := reach * 0.5
	return cp.BB{L: bb.L - h, B: bb.B - h, R: bb.R + h, T: bb.T + h}
}

// Gather feeds every physical candidate around the query into agg.
func (b *BulletCollisionAggregator) Gather(agg *CollisionAggregator) int {
	if b == nil || b.Physics == nil {
		return 0
	}
	q := agg.Query()
	agg.SetMode(CollisionModePhysical)
	found := 0
	b.Physics.QueryAgents(b.SweepBounds(q), func(c ecs.Contact) {
		if !agg.ShouldConsiderCollision(c.Entity.Ref()) {
			return
		}
		if agg.Consider(CollisionCandidate{
			Entity:   c.Entity.Ref(),
			Position: c.Position,
			Velocity: c.Velocity,
			Radius:   c.Radius,
		}) {
			found++
		}
	})
	return found
}

// RouterCollisionAggregator turns foreign reservations on the areas the path
// enters next into reservation collisions. It covers what the entity itself
// did not reserve: nodes past its reservation window, or entities that move
// without reserving.
type RouterCollisionAggregator struct {
	Reservations *ReservationContainer
	// Lookahead bounds the arrival time of tested nodes in seconds.
	Lookahead float64
}

func NewRouterCollisionAggregator(reservations *ReservationContainer) *RouterCollisionAggregator {
	return &RouterCollisionAggregator{Reservations: reservations, Lookahead: defaultRouterLookahead}
}

// Gather walks the remaining path from the query position and reports the
// first foreign reservation met in each area entered at node index from or
// later.
func (r *RouterCollisionAggregator) Gather(agg *CollisionAggregator, path *component.Path, from int, now float64) int {
	if r == nil || r.Reservations == nil || path == nil {
		return 0
	}
	q := agg.Query()
	agg.SetMode(CollisionModeReservation)
	speed := math.Max(math.Abs(q.Speed), routerMinSpeed)

	current, ok := path.CurrentNode()
	if !ok {
		return 0
	}
	// The area the entity stands in was settled when it entered it.
	here := current.Area
	if i := path.CurrentNodeIndex(); i > 0 {
		here = path.Nodes()[i-1].Area
	}
	seen := map[component.AreaConfiguration]struct{}{here: {}}
	found := 0
	dist := 0.0
	pos := q.Position
	cur := path.CurrentNodeIndex()
	for k, node := range path.Remaining() {
		dist += pos.Distance(node.Position)
		pos = node.Position
		eta := dist / speed
		if r.Lookahead > 0 && eta > r.Lookahead {
			break
		}
		if _, ok := seen[node.Area]; ok {
			continue
		}
		seen[node.Area] = struct{}{}
		if cur+k < from {
			continue
		}

		visit := component.Reservation{Begin: now + eta - routerSlack, End: now + eta + routerSlack, Reserver: q.Self}
		for _, held := range r.Reservations.conflicts(visit, node.Area, ReservationFlags{}) {
			if held.Reserver == q.Self || !agg.ShouldConsiderCollision(held.Reserver) {
				continue
			}
			if agg.AddCollision(NavigationComponentCollision{
				Entity:        held.Reserver,
				Distance:      math.Max(0, dist-q.Radius),
				RelativeSpeed: math.Abs(q.Speed),
				TimeToCollide: eta,
				Position:      node.Position,
			}) {
				found++
			}
		}
	}
	return found
}
