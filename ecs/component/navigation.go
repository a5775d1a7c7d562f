package component

import (
	"fmt"
	"math"

	"github.com/jakecoffman/cp"
	"github.com/milk9111/navcore/common"
)

// AvoidanceMeasure is a collision reaction an entity may use. An entity with
// no measures ignores collisions.
type AvoidanceMeasure uint8

const (
	AvoidStop AvoidanceMeasure = iota
	AvoidSlowDown
	AvoidEvadeSideways
	AvoidLocalRouter
)

var avoidanceMeasureNames = [...]string{"stop", "slow_down", "evade_sideways", "local_router"}

func (m AvoidanceMeasure) String() string {
	if int(m) < len(avoidanceMeasureNames) {
		return avoidanceMeasureNames[m]
	}
	return fmt.Sprintf("measure(%d)", uint8(m))
}

type AvoidanceMeasures = common.FlagSet[AvoidanceMeasure]

// CollisionCategory classifies an entity for the avoidance masks.
type CollisionCategory uint8

const (
	CategoryPerson CollisionCategory = iota
	CategoryVehicle
	CategoryObstacle
)

var collisionCategoryNames = [...]string{"person", "vehicle", "obstacle"}

func (c CollisionCategory) String() string {
	if int(c) < len(collisionCategoryNames) {
		return collisionCategoryNames[c]
	}
	return fmt.Sprintf("category(%d)", uint8(c))
}

type CollisionCategories = common.FlagSet[CollisionCategory]

// MovementFlag toggles optional movement behavior.
type MovementFlag uint8

const (
	MovementAllowBackwards MovementFlag = iota
	MovementIgnoreReservations
	MovementLocalSteering
)

type MovementFlags = common.FlagSet[MovementFlag]

// BrakingReason records why an entity is slowing or halted.
type BrakingReason uint8

const (
	BrakingNone BrakingReason = iota
	BrakingPathEnds
	BrakingNodeBlocked
	BrakingAreaBlocked
	BrakingReservationMissed
	BrakingAvoidCollision
	BrakingPathFail
)

var brakingReasonNames = [...]string{"none", "path_ends", "node_blocked", "area_blocked", "reservation_missed", "avoid_collision", "path_fail"}

func (b BrakingReason) String() string {
	if int(b) < len(brakingReasonNames) {
		return brakingReasonNames[b]
	}
	return fmt.Sprintf("braking(%d)", uint8(b))
}

// Role is the side an entity plays in a driver/vehicle pair.
type Role uint8

const (
	RoleNone Role = iota
	RoleDriver
	RoleVehicle
)

func (r Role) String() string {
	switch r {
	case RoleDriver:
		return "driver"
	case RoleVehicle:
		return "vehicle"
	}
	return "none"
}

// MovementParameters bound what steering may ask of an entity.
type MovementParameters struct {
	MaxForwardSpeed  float64 `yaml:"max_forward_speed"`
	MaxBackwardSpeed float64 `yaml:"max_backward_speed"`
	MaxAcceleration  float64 `yaml:"max_acceleration"`
	MaxDeceleration  float64 `yaml:"max_deceleration"`
	// MaxTurningRate is in radians per second.
	MaxTurningRate float64 `yaml:"max_turning_rate"`
	// TurningRadius of zero means the entity turns on the spot.
	TurningRadius float64 `yaml:"turning_radius"`
	Radius        float64 `yaml:"radius"`
}

// Validate rejects parameters steering cannot integrate.
func (m MovementParameters) Validate() error {
	vals := []float64{m.MaxForwardSpeed, m.MaxBackwardSpeed, m.MaxAcceleration, m.MaxDeceleration, m.MaxTurningRate, m.TurningRadius, m.Radius}
	for _, v := range vals {
		if !common.IsFinite(v) || v < 0 {
			return fmt.Errorf("navigation: movement parameters: %v is not a finite non-negative value", v)
		}
	}
	if m.MaxForwardSpeed > 0 && (m.MaxAcceleration == 0 || m.MaxDeceleration == 0) {
		return fmt.Errorf("navigation: movement parameters: moving entity needs acceleration and deceleration")
	}
	return nil
}

// CornerSpeed is the fastest speed at which a heading change of angle
// radians can be taken. Entities with a turning radius cut gentle corners on
// a wider arc; entities that turn on the spot slow down toward zero for a
// full reversal.
func (m MovementParameters) CornerSpeed(angle float64) float64 {
	angle = math.Abs(angle)
	if angle <= common.Epsilon {
		return m.MaxForwardSpeed
	}
	if m.TurningRadius > 0 && m.MaxTurningRate > 0 {
		return min(m.MaxForwardSpeed, m.MaxTurningRate*m.TurningRadius/math.Sin(min(angle, math.Pi)/2))
	}
	return m.MaxForwardSpeed * (1 + math.Cos(angle)) / 2
}

// ActiveObstacle is the obstacle steering currently reacts to.
type ActiveObstacle struct {
	Entity   EntityID
	Position cp.Vector
	Radius   float64
	// Since is the simulation time the obstacle was first reacted to.
	Since float64
}

// MapBinding names the navigation maps an entity moves on.
type MapBinding struct {
	Primary      uint32
	Secondary    uint32
	HasSecondary bool
}

func (b MapBinding) Uses(mapID uint32) bool {
	return mapID == b.Primary || (b.HasSecondary && mapID == b.Secondary)
}

// Shares reports whether both bindings have a map in common.
func (b MapBinding) Shares(o MapBinding) bool {
	return b.Uses(o.Primary) || (o.HasSecondary && b.Uses(o.Secondary))
}

// NavigationComponent is the per-entity navigation record.
type NavigationComponent struct {
	Owner  EntityID
	Active bool

	Movement MovementParameters
	Maps     MapBinding
	Measures AvoidanceMeasures
	Flags    MovementFlags
	// Category is what this entity is; AvoidMask is what it gives way to.
	Category  CollisionCategories
	AvoidMask CollisionCategories
	// Priority orders entities under the priority conflict resolver.
	Priority int32

	CurrentSpeed float64
	Braking      BrakingReason
	Obstacle     ActiveObstacle
	HasObstacle  bool

	// UpdateRate is the interval between full steering updates; zero steers
	// every tick.
	UpdateRate float64

	goal        NavigationGoal
	path        *Path
	role        Role
	partner     EntityID
	accumulated float64
}

func NewNavigationComponent(owner EntityID, movement MovementParameters) *NavigationComponent {
	return &NavigationComponent{
		Owner:    owner,
		Active:   true,
		Movement: movement,
		Measures: common.NewFlagSet(AvoidStop, AvoidSlowDown),
		path:     NewPath(),
	}
}

// Path is never nil.
func (n *NavigationComponent) Path() *Path {
	if n.path == nil {
		n.path = NewPath()
	}
	return n.path
}

// SetPath replaces the owned path. A nil path leaves an empty one.
func (n *NavigationComponent) SetPath(p *Path) {
	if p == nil {
		p = NewPath()
	}
	n.path = p
}

// ClearPath empties the owned path.
func (n *NavigationComponent) ClearPath() {
	n.Path().Clear()
}

func (n *NavigationComponent) Goal() NavigationGoal {
	return n.goal
}

func (n *NavigationComponent) HasGoal() bool {
	return n.goal != nil
}

// SetGoal takes ownership of goal and drops the previous goal's path.
func (n *NavigationComponent) SetGoal(goal NavigationGoal) {
	n.goal = goal
	n.ClearPath()
	n.Braking = BrakingNone
}

// ClearGoal drops the goal and its path.
func (n *NavigationComponent) ClearGoal() {
	n.SetGoal(nil)
}

// TransferGoal hands the goal to another component and leaves this one
// without a goal.
func (n *NavigationComponent) TransferGoal(to *NavigationComponent) {
	if to == nil || to == n {
		return
	}
	g := n.goal
	n.ClearGoal()
	to.SetGoal(g)
}

func (n *NavigationComponent) Role() Role {
	return n.role
}

// Partner is the other side of the driver/vehicle pair.
func (n *NavigationComponent) Partner() EntityID {
	return n.partner
}

func (n *NavigationComponent) IsDriver() bool {
	return n.role == RoleDriver
}

func (n *NavigationComponent) IsVehicle() bool {
	return n.role == RoleVehicle
}

// LinkDriverAndVehicle pairs the two components. Relinking the same pair is a
// no-op; any other existing role is a conflict.
func LinkDriverAndVehicle(driver, vehicle *NavigationComponent) error {
	if driver == nil || vehicle == nil || driver == vehicle || driver.Owner == vehicle.Owner {
		return fmt.Errorf("%w: driver and vehicle must be two components", ErrRoleConflict)
	}
	if driver.role == RoleDriver && driver.partner == vehicle.Owner &&
		vehicle.role == RoleVehicle && vehicle.partner == driver.Owner {
		return nil
	}
	if driver.role != RoleNone {
		return fmt.Errorf("%w: %s is already a %s of %s", ErrRoleConflict, driver.Owner, driver.role, driver.partner)
	}
	if vehicle.role != RoleNone {
		return fmt.Errorf("%w: %s is already a %s of %s", ErrRoleConflict, vehicle.Owner, vehicle.role, vehicle.partner)
	}
	driver.role, driver.partner = RoleDriver, vehicle.Owner
	vehicle.role, vehicle.partner = RoleVehicle, driver.Owner
	return nil
}

// Unlink dissolves the pair on both sides. partner may be nil when the other
// component no longer exists.
func Unlink(n, partner *NavigationComponent) {
	if partner != nil && partner.partner == n.Owner {
		partner.role, partner.partner = RoleNone, NoEntity
	}
	n.role, n.partner = RoleNone, NoEntity
}

// Avoids reports whether this entity gives way to other.
func (n *NavigationComponent) Avoids(other *NavigationComponent) bool {
	if other == nil || n.Measures.Empty() || !n.Maps.Shares(other.Maps) {
		return false
	}
	if n.AvoidMask.Empty() {
		return true
	}
	return n.AvoidMask.Intersects(other.Category)
}

func (n *NavigationComponent) SetActiveObstacle(o ActiveObstacle) {
	n.Obstacle = o
	n.HasObstacle = true
}

func (n *NavigationComponent) ClearActiveObstacle() {
	n.Obstacle = ActiveObstacle{}
	n.HasObstacle = false
}

// Throttle accumulates dt and reports whether a full update is due. When it
// is, elapsed is the time since the previous full update.
func (n *NavigationComponent) Throttle(dt float64) (elapsed float64, due bool) {
	n.accumulated += dt
	if n.accumulated+common.Epsilon < n.UpdateRate {
		return 0, false
	}
	elapsed = n.accumulated
	n.accumulated = 0
	return elapsed, true
}

// IsRunning reports whether the component takes part in navigation.
func (n *NavigationComponent) IsRunning() bool {
	return n.Active && n.Path().IsActive()
}
