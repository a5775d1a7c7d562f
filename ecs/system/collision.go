package system

import (
	"math"

	"github.com/jakecoffman/cp"
	"github.com/milk9111/navcore/common"
	"github.com/milk9111/navcore/ecs/component"
)

// CollisionMode tags where a collision was found.
type CollisionMode uint8

const (
	CollisionModePhysical CollisionMode = iota
	CollisionModeReservation
)

func (m CollisionMode) String() string {
	if m == CollisionModeReservation {
		return "reservation"
	}
	return "physical"
}

// NavigationComponentCollision is the projected collision steering reacts
// to. It is recomputed every tick.
type NavigationComponentCollision struct {
	Entity component.EntityID
	Mode   CollisionMode
	// Distance is the clearance left before contact.
	Distance float64
	// RelativeSpeed is the closing speed along the line of contact.
	RelativeSpeed float64
	TimeToCollide float64
	// Position is where the obstacle is, or where the conflict begins for
	// reservation collisions.
	Position cp.Vector
	Radius   float64
}

// MoreCriticalThan orders by sooner time to collide, then by smaller
// distance.
func (c NavigationComponentCollision) MoreCriticalThan(o NavigationComponentCollision) bool {
	if c.TimeToCollide != o.TimeToCollide {
		return c.TimeToCollide < o.TimeToCollide
	}
	return c.Distance < o.Distance
}

// CollisionQuery describes the entity looking for collisions.
type CollisionQuery struct {
	Self     component.EntityID
	Position cp.Vector
	// Heading is the unit facing; Speed is signed and negative in reverse.
	Heading cp.Vector
	Speed   float64
	Radius  float64
	// Margin widens the contact distance.
	Margin float64
	// Horizon bounds the time to collide worth reporting.
	Horizon float64
	// Accept filters candidate entities, typically by avoidance mask.
	Accept func(component.EntityID) bool
}

// Velocity is the movement vector implied by heading and signed speed.
func (q CollisionQuery) Velocity() cp.Vector {
	return q.Heading.Mult(q.Speed)
}

// MovementDirection points where the entity actually moves.
func (q CollisionQuery) MovementDirection() cp.Vector {
	if q.Speed < 0 {
		return q.Heading.Neg()
	}
	return q.Heading
}

// CollisionCandidate is an obstacle reported by a collision source.
type CollisionCandidate struct {
	Entity   component.EntityID
	Position cp.Vector
	Velocity cp.Vector
	Radius   float64
}

// RecordedCollision keeps a considered collision for debug drawing.
type RecordedCollision struct {
	From      cp.Vector
	Collision NavigationComponentCollision
}

// CollisionAggregator reduces every candidate of one query pass to the
// single most critical collision. One aggregator is reused across entities;
// Begin starts a new pass.
type CollisionAggregator struct {
	query      CollisionQuery
	mode       CollisionMode
	considered map[component.EntityID]struct{}
	best       NavigationComponentCollision
	hasBest    bool

	// DrawCollisions keeps every evaluated collision for debug drawing.
	DrawCollisions bool
	recorded       []RecordedCollision
}

func NewCollisionAggregator() *CollisionAggregator {
	return &CollisionAggregator{considered: make(map[component.EntityID]struct{})}
}

// Begin resets the pass for q and switches to physical mode.
func (a *CollisionAggregator) Begin(q CollisionQuery) {
	a.query = q
	a.mode = CollisionModePhysical
	clear(a.considered)
	a.best = NavigationComponentCollision{}
	a.hasBest = false
}

func (a *CollisionAggregator) Query() CollisionQuery {
	return a.query
}

// SetMode tags the collisions added from now on.
func (a *CollisionAggregator) SetMode(m CollisionMode) {
	a.mode = m
}

func (a *CollisionAggregator) Mode() CollisionMode {
	return a.mode
}

// ShouldConsiderCollision reports whether id has not been looked at in this
// pass and marks it. The querying entity and rejected entities are skipped.
func (a *CollisionAggregator) ShouldConsiderCollision(id component.EntityID) bool {
	if id == a.query.Self || !id.Valid() {
		return false
	}
	if _, seen := a.considered[id]; seen {
		return false
	}
	a.considered[id] = struct{}{}
	if a.query.Accept != nil && !a.query.Accept(id) {
		return false
	}
	return true
}

// Consider evaluates a candidate against the query and keeps it if it is
// the most critical so far.
func (a *CollisionAggregator) Consider(c CollisionCandidate) bool {
	col, ok := a.evaluate(c)
	if !ok {
		return false
	}
	return a.AddCollision(col)
}

// AddCollision keeps col if it is more critical than the held one. The mode
// of the aggregator overrides col.Mode.
func (a *CollisionAggregator) AddCollision(col NavigationComponentCollision) bool {
	col.Mode = a.mode
	if a.DrawCollisions {
		a.recorded = append(a.recorded, RecordedCollision{From: a.query.Position, Collision: col})
	}
	if a.hasBest && !col.MoreCriticalThan(a.best) {
		return false
	}
	a.best = col
	a.hasBest = true
	return true
}

// Result returns the most critical collision of the pass.
func (a *CollisionAggregator) Result() (NavigationComponentCollision, bool) {
	return a.best, a.hasBest
}

// Recorded returns the collisions kept for drawing since the last reset.
func (a *CollisionAggregator) Recorded() []RecordedCollision {
	return a.recorded
}

func (a *CollisionAggregator) ResetRecorded() {
	a.recorded = a.recorded[:0]
}

// evaluate projects the candidate's relative motion: it must lie ahead in
// the direction of movement, and the two discs must come within contact
// distance before the horizon.
func (a *CollisionAggregator) evaluate(c CollisionCandidate) (NavigationComponentCollision, bool) {
	q := a.query
	rel := c.Position.Sub(q.Position)
	contact := q.Radius + c.Radius + q.Margin
	dist := rel.Length()
	clearance := math.Max(0, dist-contact)

	col := NavigationComponentCollision{
		Entity:   c.Entity,
		Distance: clearance,
		Position: c.Position,
		Radius:   c.Radius,
	}

	if dist <= contact {
		// Already in contact: only relevant if it is not behind us.
		if dist > common.Epsilon && rel.Dot(q.MovementDirection()) < 0 {
			return col, false
		}
		col.RelativeSpeed = math.Abs(q.Speed)
		return col, true
	}

	if rel.Dot(q.MovementDirection()) <= 0 {
		return col, false
	}

	relVel := c.Velocity.Sub(q.Velocity())
	closing := -rel.Dot(relVel) / dist
	if closing <= common.Epsilon {
		return col, false
	}

	vv := relVel.LengthSq()
	pv := rel.Dot(relVel)
	disc := pv*pv - vv*(rel.LengthSq()-contact*contact)
	if disc < 0 {
		// Closest approach stays outside contact distance.
		return col, false
	}
	ttc := (-pv - math.Sqrt(disc)) / vv
	if ttc < 0 || (q.Horizon > 0 && ttc > q.Horizon) {
		return col, false
	}
	col.RelativeSpeed = closing
	col.TimeToCollide = ttc
	return col, true
}
