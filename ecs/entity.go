package ecs

import (
	"strconv"

	"github.com/milk9111/navcore/ecs/component"
)

// Entity packs a slot index and a generation. A destroyed slot is reused
// with a bumped generation, so stale handles never resolve.
type Entity uint64

type entityID uint32
type generation uint32

const entityIDBits = 32

func makeEntity(id entityID, gen generation) Entity {
	return Entity(uint64(gen)<<entityIDBits | uint64(id))
}

func (e Entity) id() entityID {
	return entityID(uint32(e))
}

func (e Entity) generation() generation {
	return generation(uint32(uint64(e) >> entityIDBits))
}

func (e Entity) String() string {
	return strconv.FormatUint(uint64(e), 10)
}

func (e Entity) Valid() bool {
	return e > 0
}

// Ref is the weak reference components store for this entity.
func (e Entity) Ref() component.EntityID {
	return component.EntityID(e)
}

// FromRef converts a weak reference back to a handle. The handle still has
// to be checked with IsAlive.
func FromRef(id component.EntityID) Entity {
	return Entity(id)
}
