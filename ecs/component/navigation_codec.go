package component

import (
	"fmt"

	"github.com/milk9111/navcore/common"
	"github.com/milk9111/navcore/wire"
)

func (m MovementParameters) Write(w *wire.Writer) {
	w.Float64(m.MaxForwardSpeed)
	w.Float64(m.MaxBackwardSpeed)
	w.Float64(m.MaxAcceleration)
	w.Float64(m.MaxDeceleration)
	w.Float64(m.MaxTurningRate)
	w.Float64(m.TurningRadius)
	w.Float64(m.Radius)
}

func (m *MovementParameters) Read(r *wire.Reader) {
	m.MaxForwardSpeed = r.Float64()
	m.MaxBackwardSpeed = r.Float64()
	m.MaxAcceleration = r.Float64()
	m.MaxDeceleration = r.Float64()
	m.MaxTurningRate = r.Float64()
	m.TurningRadius = r.Float64()
	m.Radius = r.Float64()
}

// Write encodes everything but the goal, which references live entities and
// is re-issued by its owner after a load.
func (n *NavigationComponent) Write(w *wire.Writer) {
	w.Uint64(uint64(n.Owner))
	w.Bool(n.Active)
	n.Movement.Write(w)
	w.Uint32(n.Maps.Primary)
	w.Uint32(n.Maps.Secondary)
	w.Bool(n.Maps.HasSecondary)
	w.Uint32(n.Measures.Bits())
	w.Uint32(n.Flags.Bits())
	w.Uint32(n.Category.Bits())
	w.Uint32(n.AvoidMask.Bits())
	w.Int32(n.Priority)
	w.Float64(n.CurrentSpeed)
	w.Uint8(uint8(n.Braking))
	w.Bool(n.HasObstacle)
	w.Uint64(uint64(n.Obstacle.Entity))
	w.Vector(n.Obstacle.Position)
	w.Float64(n.Obstacle.Radius)
	w.Float64(n.Obstacle.Since)
	w.Float64(n.UpdateRate)
	w.Float64(n.accumulated)
	w.Uint8(uint8(n.role))
	w.Uint64(uint64(n.partner))
	n.Path().Write(w)
}

func (n *NavigationComponent) Read(r *wire.Reader) {
	n.Owner = EntityID(r.Uint64())
	n.Active = r.Bool()
	n.Movement.Read(r)
	n.Maps.Primary = r.Uint32()
	n.Maps.Secondary = r.Uint32()
	n.Maps.HasSecondary = r.Bool()
	n.Measures = common.FlagSetFromBits[AvoidanceMeasure](r.Uint32())
	n.Flags = common.FlagSetFromBits[MovementFlag](r.Uint32())
	n.Category = common.FlagSetFromBits[CollisionCategory](r.Uint32())
	n.AvoidMask = common.FlagSetFromBits[CollisionCategory](r.Uint32())
	n.Priority = r.Int32()
	n.CurrentSpeed = r.Float64()
	n.Braking = BrakingReason(r.Uint8())
	n.HasObstacle = r.Bool()
	n.Obstacle.Entity = EntityID(r.Uint64())
	n.Obstacle.Position = r.Vector()
	n.Obstacle.Radius = r.Float64()
	n.Obstacle.Since = r.Float64()
	n.UpdateRate = r.Float64()
	n.accumulated = r.Float64()
	n.role = Role(r.Uint8())
	n.partner = EntityID(r.Uint64())
	p := NewPath()
	p.Read(r)
	n.path = p
}

func (n *NavigationComponent) MarshalBinary() ([]byte, error) {
	w := wire.NewWriter(256 + 64*n.Path().Len())
	n.Write(w)
	return w.Bytes(), nil
}

// UnmarshalBinary replaces everything but the goal.
func (n *NavigationComponent) UnmarshalBinary(data []byte) error {
	r := wire.NewReader(data)
	var decoded NavigationComponent
	decoded.Read(r)
	if err := r.Finish(); err != nil {
		return fmt.Errorf("navigation: decode component: %w", err)
	}
	if err := decoded.path.validate(); err != nil {
		return fmt.Errorf("navigation: decode component: %w", err)
	}
	if decoded.Braking > BrakingPathFail || decoded.role > RoleVehicle {
		return fmt.Errorf("navigation: decode component: enum out of range")
	}
	if (decoded.role == RoleNone) != (decoded.partner == NoEntity) {
		return fmt.Errorf("navigation: decode component: %w: role %s with partner %s", ErrRoleConflict, decoded.role, decoded.partner)
	}
	decoded.goal = n.goal
	*n = decoded
	return nil
}
