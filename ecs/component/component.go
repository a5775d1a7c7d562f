package component

import (
	"errors"
	"strconv"
	"sync/atomic"
)

var (
	ErrIndexOutOfRange       = errors.New("navigation: waypoint index out of range")
	ErrEmptyPath             = errors.New("navigation: path is empty")
	ErrPathUnderConstruction = errors.New("navigation: path is under construction")
	ErrIllegalPathTransition = errors.New("navigation: illegal path state transition")
	ErrInvalidReservation    = errors.New("navigation: reservation begins after it ends")
	ErrRoleConflict          = errors.New("navigation: driver/vehicle role conflict")
	ErrUnknownGoalConfig     = errors.New("navigation: goal configuration out of range")

	ErrEntityNotAlive       = errors.New("ecs: entity not alive")
	ErrNilComponent         = errors.New("ecs: component is nil")
	ErrInvalidComponentKind = errors.New("ecs: invalid component kind")
)

// EntityID is a weak reference to an entity. Resolve it through the world;
// never hold the referenced component directly.
type EntityID uint64

// NoEntity is the zero reference.
const NoEntity EntityID = 0

func (id EntityID) Valid() bool {
	return id != NoEntity
}

func (id EntityID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ComponentKind identifies a storage in the world.
type ComponentKind[T any] struct {
	id ComponentID
}

func NewComponentKind[T any]() ComponentKind[T] {
	return ComponentKind[T]{id: ComponentID(nextComponentID.Add(1))}
}

func (k ComponentKind[T]) ID() ComponentID {
	return k.id
}

func (k ComponentKind[T]) Valid() bool {
	return k.id != 0
}

type ComponentHandle[T any] struct {
	kind ComponentKind[T]
}

func NewComponent[T any]() ComponentHandle[T] {
	return ComponentHandle[T]{kind: NewComponentKind[T]()}
}

func (h ComponentHandle[T]) Kind() ComponentKind[T] {
	return h.kind
}

type ComponentID uint32

var nextComponentID atomic.Uint32

var (
	TransformComponent = NewComponent[Transform]()
	MotionComponent    = NewComponent[Motion]()
	NavComponent       = NewComponent[NavigationComponent]()
	ObstacleComponent  = NewComponent[Obstacle]()
)
