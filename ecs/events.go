package ecs

import "github.com/milk9111/navcore/ecs/component"

// Event is a generic ECS event payload.
type Event struct {
	Type string
	Data any
}

const (
	EventEntityDestroyed = "entity_destroyed"
	EventBraking         = "braking"
	EventGoalFinished    = "goal_finished"
	EventPathFound       = "path_found"
	EventPathFailed      = "path_failed"
	EventCollisionEvaded = "collision_evaded"
)

// EntityDestroyedEvent is pushed when an entity leaves the world.
type EntityDestroyedEvent struct {
	Entity Entity
}

// BrakingEvent is pushed when an entity starts braking for a new reason.
type BrakingEvent struct {
	Entity Entity
	Reason component.BrakingReason
	Speed  float64
}

// GoalFinishedEvent reports the final verdict of a goal.
type GoalFinishedEvent struct {
	Entity Entity
	State  component.GoalState
}

// PathEvent reports the outcome of a path search.
type PathEvent struct {
	Entity Entity
	Nodes  int
	Err    error
}

// EvasionEvent reports a collision the local planner routed around.
type EvasionEvent struct {
	Entity   Entity
	Obstacle component.EntityID
	Outcome  component.EvasionOutcome
}

// EventQueue is a simple FIFO queue. Events pushed during a tick stay
// visible to later systems of that tick and are dropped after it.
type EventQueue struct {
	items []Event
}

// Push adds an event.
func (q *EventQueue) Push(evt Event) {
	if q == nil {
		return
	}
	q.items = append(q.items, evt)
}

// Pending returns queued events without consuming them.
func (q *EventQueue) Pending() []Event {
	if q == nil {
		return nil
	}
	return q.items
}

// Drain returns all events and clears the queue.
func (q *EventQueue) Drain() []Event {
	if q == nil || len(q.items) == 0 {
		return nil
	}
	out := q.items
	q.items = nil
	return out
}

func (q *EventQueue) flush() {
	if q == nil {
		return
	}
	q.items = nil
}
