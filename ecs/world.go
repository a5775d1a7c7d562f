package ecs

import (
	"math/rand/v2"

	"github.com/jakecoffman/cp"
	"github.com/milk9111/navcore/ecs/component"
)

// DefaultTimeStep is the fixed tick length used until SetTimeStep is called.
const DefaultTimeStep = 1.0 / 60.0

// World owns entities, components, and system order.
type World struct {
	entities  entityStore
	stores    map[component.ComponentID]componentStore
	scheduler *Scheduler
	events    EventQueue

	physicsWorld *PhysicsWorld

	dt   float64
	time float64
	tick uint64
	rng  *rand.Rand
}

// NewWorld creates an empty ECS world.
func NewWorld() *World {
	return &World{
		stores:    make(map[component.ComponentID]componentStore),
		scheduler: NewScheduler(),
		dt:        DefaultTimeStep,
		rng:       rand.New(rand.NewPCG(1, 2)),
	}
}

// CreateEntity allocates a new entity.
func (w *World) CreateEntity() Entity {
	return w.entities.create()
}

// DestroyEntity removes e and all of its components. A driver or vehicle
// left behind is unlinked.
func (w *World) DestroyEntity(e Entity) bool {
	if !w.entities.isAlive(e) {
		return false
	}
	if nav, ok := Get(w, e, component.NavComponent.Kind()); ok && nav.Partner().Valid() {
		partner, _ := w.NavigationByRef(nav.Partner())
		component.Unlink(nav, partner)
	}
	for _, s := range w.stores {
		s.remove(e)
	}
	w.physicsWorld.RemoveBody(e)
	w.entities.destroy(e)
	w.events.Push(Event{Type: EventEntityDestroyed, Data: EntityDestroyedEvent{Entity: e}})
	return true
}

// IsAlive reports whether an entity handle is valid.
func (w *World) IsAlive(e Entity) bool {
	return w.entities.isAlive(e)
}

// Entities lists the live entities in slot order.
func (w *World) Entities() []Entity {
	return w.entities.entities()
}

// AddSystem appends a system to the update order.
func (w *World) AddSystem(s System) {
	w.scheduler.Add(s)
}

// Systems returns the update order.
func (w *World) Systems() []System {
	return w.scheduler.Systems()
}

// Timings reports how long each system took on the last tick.
func (w *World) Timings() []SystemTiming {
	return w.scheduler.Timings()
}

// Update runs all systems once, then advances the clock.
func (w *World) Update() {
	if w == nil {
		return
	}
	w.scheduler.Update(w)
	w.time += w.dt
	w.tick++
	w.events.flush()
}

// SetTimeStep changes the tick length. Non-positive steps are ignored.
func (w *World) SetTimeStep(dt float64) {
	if dt > 0 {
		w.dt = dt
	}
}

// DeltaTime is the length of the current tick.
func (w *World) DeltaTime() float64 {
	return w.dt
}

// Time is the simulation time at the start of the current tick.
func (w *World) Time() float64 {
	return w.time
}

func (w *World) Tick() uint64 {
	return w.tick
}

// Rand is the world's deterministic random source.
func (w *World) Rand() *rand.Rand {
	return w.rng
}

// Seed resets the random source.
func (w *World) Seed(seed uint64) {
	w.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Events returns the world event queue.
func (w *World) Events() *EventQueue {
	if w == nil {
		return nil
	}
	return &w.events
}

// SetPhysicsWorld attaches a physics world to this ECS world.
func (w *World) SetPhysicsWorld(pw *PhysicsWorld) {
	if w == nil {
		return
	}
	w.physicsWorld = pw
}

// PhysicsWorld returns the attached physics world, if any.
func (w *World) PhysicsWorld() *PhysicsWorld {
	if w == nil {
		return nil
	}
	return w.physicsWorld
}

// Resolve turns a weak reference into a live handle.
func (w *World) Resolve(id component.EntityID) (Entity, bool) {
	e := FromRef(id)
	return e, id.Valid() && w.IsAlive(e)
}

// Navigation returns the navigation component of e.
func (w *World) Navigation(e Entity) (*component.NavigationComponent, bool) {
	return Get(w, e, component.NavComponent.Kind())
}

// NavigationByRef resolves a weak reference to its navigation component.
func (w *World) NavigationByRef(id component.EntityID) (*component.NavigationComponent, bool) {
	e, ok := w.Resolve(id)
	if !ok {
		return nil, false
	}
	return w.Navigation(e)
}

// RelevantNavigation returns the component that actually moves for e: a
// driver's commands go to its vehicle, everyone else moves themselves.
func (w *World) RelevantNavigation(e Entity) (Entity, *component.NavigationComponent, bool) {
	nav, ok := w.Navigation(e)
	if !ok {
		return e, nil, false
	}
	if nav.IsDriver() {
		if ve, ok := w.Resolve(nav.Partner()); ok {
			if vnav, ok := w.Navigation(ve); ok {
				return ve, vnav, true
			}
		}
	}
	return e, nav, true
}

// Transform looks up the pose of a referenced entity.
func (w *World) Transform(id component.EntityID) (component.Transform, bool) {
	e, ok := w.Resolve(id)
	if !ok {
		return component.Transform{}, false
	}
	t, ok := Get(w, e, component.TransformComponent.Kind())
	if !ok {
		return component.Transform{}, false
	}
	return *t, true
}

// LineOfSight reports whether no static shape blocks the segment. Without a
// physics world every segment is clear.
func (w *World) LineOfSight(from, to cp.Vector) bool {
	if w.physicsWorld == nil {
		return true
	}
	return w.physicsWorld.LineOfSight(from, to)
}

var _ component.GoalContext = (*World)(nil)
