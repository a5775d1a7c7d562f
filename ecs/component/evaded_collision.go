package component

import (
	"github.com/jakecoffman/cp"
	"github.com/milk9111/navcore/wire"
)

// EvasionOrigin tells which collision source produced an evaded obstacle.
type EvasionOrigin uint8

const (
	EvasionOriginPhysical EvasionOrigin = iota
	EvasionOriginReservation
)

func (o EvasionOrigin) String() string {
	if o == EvasionOriginReservation {
		return "reservation"
	}
	return "physical"
}

// EvasionOutcome is the progress of an evasion the path accounts for.
type EvasionOutcome uint8

const (
	EvasionPending EvasionOutcome = iota
	EvadedSuccessfully
	EvadedUnsuccessfully
	EvasionFailed
	// EvasionBlockingGoal means the obstacle sits on the goal itself.
	EvasionBlockingGoal
)

var evasionOutcomeNames = [...]string{"pending", "evaded", "evaded_unsuccessfully", "failed", "blocking_goal"}

func (o EvasionOutcome) String() string {
	if int(o) < len(evasionOutcomeNames) {
		return evasionOutcomeNames[o]
	}
	return "unknown"
}

// EvadedCollisionInfo records an obstacle the path already works around.
type EvadedCollisionInfo struct {
	Entity           EntityID
	Origin           EvasionOrigin
	Outcome          EvasionOutcome
	ObstaclePosition cp.Vector
}

func (e EvadedCollisionInfo) Write(w *wire.Writer) {
	w.Uint64(uint64(e.Entity))
	w.Uint8(uint8(e.Origin))
	w.Uint8(uint8(e.Outcome))
	w.Vector(e.ObstaclePosition)
}

func (e *EvadedCollisionInfo) Read(r *wire.Reader) {
	e.Entity = EntityID(r.Uint64())
	e.Origin = EvasionOrigin(r.Uint8())
	e.Outcome = EvasionOutcome(r.Uint8())
	e.ObstaclePosition = r.Vector()
}
