package ecs

import (
	"github.com/jakecoffman/cp"
)

const (
	categoryStatic uint = 1 << iota
	categoryAgent
)

var (
	staticFilter = cp.NewShapeFilter(cp.NO_GROUP, categoryStatic, cp.ALL_CATEGORIES)
	agentFilter  = cp.NewShapeFilter(cp.NO_GROUP, categoryAgent, cp.ALL_CATEGORIES)
	// queries only see shapes whose category they mask in
	staticQuery = cp.NewShapeFilter(cp.NO_GROUP, cp.ALL_CATEGORIES, categoryStatic)
	agentQuery  = cp.NewShapeFilter(cp.NO_GROUP, cp.ALL_CATEGORIES, categoryAgent)
)

// body is the physical proxy of one navigating entity. Chipmunk only keeps
// positions; velocities live here because kinematic bodies would otherwise
// be integrated a second time on Step.
type body struct {
	body     *cp.Body
	shape    *cp.Shape
	velocity cp.Vector
	radius   float64
}

// Contact is one agent found by a physics query.
type Contact struct {
	Entity   Entity
	Position cp.Vector
	Velocity cp.Vector
	Radius   float64
}

// PhysicsWorld owns the Chipmunk space: static blockers from the navigation
// map and one kinematic circle per navigating entity.
type PhysicsWorld struct {
	space  *cp.Space
	bodies map[Entity]*body
	static []*cp.Shape
}

// NewPhysicsWorld creates an empty, gravity-free space.
func NewPhysicsWorld() *PhysicsWorld {
	space := cp.NewSpace()
	space.Iterations = 10
	space.SetGravity(cp.Vector{})
	return &PhysicsWorld{
		space:  space,
		bodies: make(map[Entity]*body),
	}
}

// Space returns the underlying Chipmunk space.
func (pw *PhysicsWorld) Space() *cp.Space {
	if pw == nil {
		return nil
	}
	return pw.space
}

// AddStaticBox adds an impassable box, e.g. a blocked area or a wall.
func (pw *PhysicsWorld) AddStaticBox(bb cp.BB) {
	if pw == nil {
		return
	}
	shape := cp.NewBox2(pw.space.StaticBody, bb, 0)
	shape.SetFilter(staticFilter)
	pw.space.AddShape(shape)
	pw.static = append(pw.static, shape)
}

// AddStaticSegment adds a thin wall between a and b.
func (pw *PhysicsWorld) AddStaticSegment(a, b cp.Vector, radius float64) {
	if pw == nil {
		return
	}
	shape := cp.NewSegment(pw.space.StaticBody, a, b, radius)
	shape.SetFilter(staticFilter)
	pw.space.AddShape(shape)
	pw.static = append(pw.static, shape)
}

// ClearStatic removes every static shape.
func (pw *PhysicsWorld) ClearStatic() {
	if pw == nil {
		return
	}
	for _, s := range pw.static {
		pw.space.RemoveShape(s)
	}
	pw.static = nil
}

// EnsureBody creates the kinematic proxy for e if needed and resizes it
// when the radius changed.
func (pw *PhysicsWorld) EnsureBody(e Entity, pos cp.Vector, radius float64) {
	if pw == nil || !e.Valid() {
		return
	}
	if b, ok := pw.bodies[e]; ok {
		if b.radius == radius {
			return
		}
		pw.RemoveBody(e)
	}
	cpBody := cp.NewKinematicBody()
	cpBody.SetPosition(pos)
	shape := cp.NewCircle(cpBody, radius, cp.Vector{})
	shape.SetSensor(true)
	shape.SetFilter(agentFilter)
	shape.UserData = e
	pw.space.AddBody(cpBody)
	pw.space.AddShape(shape)
	pw.bodies[e] = &body{body: cpBody, shape: shape, radius: radius}
}

// SyncBody moves the proxy of e. Shape bounds are refreshed on Step.
func (pw *PhysicsWorld) SyncBody(e Entity, pos, vel cp.Vector, yaw float64) bool {
	if pw == nil {
		return false
	}
	b, ok := pw.bodies[e]
	if !ok {
		return false
	}
	b.body.SetPosition(pos)
	b.body.SetAngle(yaw)
	b.velocity = vel
	return true
}

// RemoveBody drops the proxy of e.
func (pw *PhysicsWorld) RemoveBody(e Entity) {
	if pw == nil {
		return
	}
	b, ok := pw.bodies[e]
	if !ok {
		return
	}
	pw.space.RemoveShape(b.shape)
	pw.space.RemoveBody(b.body)
	delete(pw.bodies, e)
}

func (pw *PhysicsWorld) HasBody(e Entity) bool {
	if pw == nil {
		return false
	}
	_, ok := pw.bodies[e]
	return ok
}

// Step refreshes the spatial index.
func (pw *PhysicsWorld) Step(dt float64) {
	if pw == nil || pw.space == nil {
		return
	}
	pw.space.Step(dt)
}

// QueryAgents reports every agent proxy overlapping bb.
func (pw *PhysicsWorld) QueryAgents(bb cp.BB, fn func(Contact)) {
	if pw == nil {
		return
	}
	pw.space.BBQuery(bb, agentQuery, func(shape *cp.Shape, _ interface{}) {
		e, ok := shape.UserData.(Entity)
		if !ok {
			return
		}
		b := pw.bodies[e]
		if b == nil {
			return
		}
		fn(Contact{Entity: e, Position: b.body.Position(), Velocity: b.velocity, Radius: b.radius})
	}, nil)
}

// LineOfSight reports whether the segment misses every static shape.
func (pw *PhysicsWorld) LineOfSight(from, to cp.Vector) bool {
	if pw == nil {
		return true
	}
	visible := true
	pw.space.SegmentQuery(from, to, 0, staticQuery, func(*cp.Shape, cp.Vector, cp.Vector, float64, interface{}) {
		visible = false
	}, nil)
	return visible
}

// SweepClear reports whether a circle of radius moved from a to b touches
// no static shape.
func (pw *PhysicsWorld) SweepClear(a, b cp.Vector, radius float64) bool {
	if pw == nil {
		return true
	}
	info := pw.space.SegmentQueryFirst(a, b, radius, staticQuery)
	return info.Shape == nil
}
