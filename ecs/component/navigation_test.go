package component

import (
	"math"
	"testing"

	"github.com/jakecoffman/cp"
	"github.com/milk9111/navcore/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var walker = MovementParameters{
	MaxForwardSpeed:  2,
	MaxBackwardSpeed: 1,
	MaxAcceleration:  1,
	MaxDeceleration:  2,
	MaxTurningRate:   math.Pi,
	Radius:           0.4,
}

func TestNavigationComponentPathAlwaysPresent(t *testing.T) {
	var n NavigationComponent
	require.NotNil(t, n.Path())
	assert.True(t, n.Path().IsEmpty())

	n.SetPath(nil)
	require.NotNil(t, n.Path())
}

func TestNavigationComponentGoalOwnership(t *testing.T) {
	n := NewNavigationComponent(1, walker)
	n.Path().AddNodes(wp(0, 0), wp(5, 0))
	require.NoError(t, n.Path().FinishConstruction())
	n.Braking = BrakingPathEnds

	n.SetGoal(NewReachSinglePointGoal(cp.Vector{X: 5}, 0.5))
	assert.True(t, n.HasGoal())
	assert.True(t, n.Path().IsEmpty(), "a new goal invalidates the old path")
	assert.Equal(t, PathUnderConstruction, n.Path().State())
	assert.Equal(t, BrakingNone, n.Braking)

	other := NewNavigationComponent(2, walker)
	g := n.Goal()
	n.TransferGoal(other)
	assert.False(t, n.HasGoal())
	assert.Same(t, g, other.Goal())

	other.ClearGoal()
	assert.Nil(t, other.Goal())
}

func TestLinkDriverAndVehicle(t *testing.T) {
	driver := NewNavigationComponent(1, walker)
	vehicle := NewNavigationComponent(2, walker)
	third := NewNavigationComponent(3, walker)

	require.NoError(t, LinkDriverAndVehicle(driver, vehicle))
	assert.True(t, driver.IsDriver())
	assert.True(t, vehicle.IsVehicle())
	assert.Equal(t, EntityID(2), driver.Partner())
	assert.Equal(t, EntityID(1), vehicle.Partner())

	require.NoError(t, LinkDriverAndVehicle(driver, vehicle), "relinking the same pair")

	tests := []struct {
		name    string
		driver  *NavigationComponent
		vehicle *NavigationComponent
	}{
		{"driver_already_driving", driver, third},
		{"vehicle_already_driven", third, vehicle},
		{"driver_cannot_become_vehicle", third, driver},
		{"self_link", third, third},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, LinkDriverAndVehicle(tt.driver, tt.vehicle), ErrRoleConflict)
		})
	}
	assert.Equal(t, RoleNone, third.Role())

	Unlink(vehicle, driver)
	assert.Equal(t, RoleNone, driver.Role())
	assert.Equal(t, RoleNone, vehicle.Role())
	require.NoError(t, LinkDriverAndVehicle(third, driver))
}

func TestNavigationComponentAvoids(t *testing.T) {
	car := NewNavigationComponent(1, walker)
	car.Category = common.NewFlagSet(CategoryVehicle)
	person := NewNavigationComponent(2, walker)
	person.Category = common.NewFlagSet(CategoryPerson)

	assert.True(t, person.Avoids(car), "empty mask avoids everything")

	person.AvoidMask = common.NewFlagSet(CategoryObstacle)
	assert.False(t, person.Avoids(car))
	person.AvoidMask.Set(CategoryVehicle)
	assert.True(t, person.Avoids(car))

	car.Maps = MapBinding{Primary: 2}
	assert.False(t, person.Avoids(car), "different maps never meet")
	person.Maps = MapBinding{Primary: 1, Secondary: 2, HasSecondary: true}
	assert.True(t, person.Avoids(car))

	person.Measures = AvoidanceMeasures{}
	assert.False(t, person.Avoids(car), "no measures ignores collisions")
}

func TestNavigationComponentThrottle(t *testing.T) {
	n := NewNavigationComponent(1, walker)
	elapsed, due := n.Throttle(0.016)
	assert.True(t, due)
	assert.InDelta(t, 0.016, elapsed, 1e-12)

	n.UpdateRate = 0.1
	for i := 0; i < 4; i++ {
		_, due = n.Throttle(0.025)
		if i < 3 {
			assert.False(t, due, "tick %d", i)
		}
	}
	assert.True(t, due)
}

func TestMovementParameters(t *testing.T) {
	require.NoError(t, walker.Validate())

	bad := walker
	bad.MaxAcceleration = math.NaN()
	require.Error(t, bad.Validate())
	bad = walker
	bad.MaxDeceleration = 0
	require.Error(t, bad.Validate())

	assert.Equal(t, walker.MaxForwardSpeed, walker.CornerSpeed(0))
	assert.InDelta(t, 0, walker.CornerSpeed(math.Pi), 1e-9)
	assert.InDelta(t, 1, walker.CornerSpeed(math.Pi/2), 1e-9)

	car := MovementParameters{MaxForwardSpeed: 20, MaxTurningRate: 1, TurningRadius: 4}
	assert.InDelta(t, 4, car.CornerSpeed(math.Pi), 1e-9)
	assert.Equal(t, 20.0, car.CornerSpeed(0.05))
}

func TestNavigationComponentBinaryRoundTrip(t *testing.T) {
	n := NewNavigationComponent(7, walker)
	n.Maps = MapBinding{Primary: 1, Secondary: 4, HasSecondary: true}
	n.Flags = common.NewFlagSet(MovementAllowBackwards)
	n.Category = common.NewFlagSet(CategoryPerson)
	n.Priority = -3
	n.CurrentSpeed = 1.5
	n.Braking = BrakingReservationMissed
	n.SetActiveObstacle(ActiveObstacle{Entity: 9, Position: cp.Vector{X: 3, Y: 1}, Radius: 0.5, Since: 12})
	n.UpdateRate = 0.2
	n.Path().AddNodes(wp(0, 0), wp(4, 0), wp(8, 0))
	require.NoError(t, n.Path().FinishConstruction())
	require.True(t, n.Path().SelectNextNode())
	require.NoError(t, LinkDriverAndVehicle(n, NewNavigationComponent(8, walker)))
	goal := NewReachSinglePointGoal(cp.Vector{X: 8}, 1)
	n.SetGoal(goal)
	n.Path().AddNodes(wp(0, 0), wp(4, 0))

	data, err := n.MarshalBinary()
	require.NoError(t, err)

	decoded := NewNavigationComponent(0, MovementParameters{})
	require.NoError(t, decoded.UnmarshalBinary(data))
	assert.Nil(t, decoded.Goal(), "goals are not persisted")
	assert.Equal(t, n.Owner, decoded.Owner)
	assert.Equal(t, n.Movement, decoded.Movement)
	assert.Equal(t, n.Maps, decoded.Maps)
	assert.Equal(t, n.Flags, decoded.Flags)
	assert.Equal(t, n.Measures, decoded.Measures)
	assert.Equal(t, n.Priority, decoded.Priority)
	assert.Equal(t, n.Braking, decoded.Braking)
	assert.Equal(t, n.Obstacle, decoded.Obstacle)
	assert.Equal(t, RoleDriver, decoded.Role())
	assert.Equal(t, EntityID(8), decoded.Partner())
	assert.True(t, n.Path().Equal(decoded.Path()))

	require.Error(t, decoded.UnmarshalBinary(data[:len(data)-1]))
	assert.Equal(t, n.Owner, decoded.Owner, "failed decode leaves state untouched")
}
