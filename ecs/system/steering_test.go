package system

import (
	"bytes"
	"log/slog"
	"math"
	"testing"

	"github.com/jakecoffman/cp"
	"github.com/milk9111/navcore/ecs"
	"github.com/milk9111/navcore/ecs/component"
	"github.com/milk9111/navcore/prefabs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// eventRecorder keeps every event seen at the end of each tick.
type eventRecorder struct {
	events []ecs.Event
}

func (r *eventRecorder) Update(w *ecs.World) {
	r.events = append(r.events, w.Events().Pending()...)
}

func (r *eventRecorder) braking(reason component.BrakingReason) bool {
	for _, evt := range r.events {
		if b, ok := evt.Data.(ecs.BrakingEvent); ok && b.Reason == reason {
			return true
		}
	}
	return false
}

func (r *eventRecorder) evasions() []component.EvasionOutcome {
	var out []component.EvasionOutcome
	for _, evt := range r.events {
		if ev, ok := evt.Data.(ecs.EvasionEvent); ok {
			out = append(out, ev.Outcome)
		}
	}
	return out
}

func run(w *ecs.World, ticks int) {
	for range ticks {
		w.Update()
	}
}

func steeringWorld(t *testing.T, steering *SteeringSystem, extra ...ecs.System) (*ecs.World, *eventRecorder) {
	t.Helper()
	w := ecs.NewWorld()
	w.SetPhysicsWorld(ecs.NewPhysicsWorld())
	for _, s := range extra {
		w.AddSystem(s)
	}
	w.AddSystem(steering)
	w.AddSystem(NewPhysicsSyncSystem())
	rec := &eventRecorder{}
	w.AddSystem(rec)
	return w, rec
}

func TestSteeringConfigValidate(t *testing.T) {
	require.NoError(t, DefaultSteeringConfig().Validate())

	cfg := DefaultSteeringConfig()
	cfg.StopBuffer = -1
	assert.ErrorContains(t, cfg.Validate(), "StopBuffer")

	cfg = DefaultSteeringConfig()
	cfg.CollisionHorizon = math.NaN()
	assert.Error(t, cfg.Validate())

	cfg = DefaultSteeringConfig()
	cfg.MaxLookaheadNodes = 0
	assert.Error(t, cfg.Validate())

	s := NewSteeringSystem(DefaultSteeringConfig(), nil, nil, nil, WithLogger(quietLogger()))
	assert.Error(t, s.SetConfig(cfg))
	assert.Equal(t, DefaultSteeringConfig(), s.Config(), "rejected config is not applied")
}

func TestSteeringConfigFromSpec(t *testing.T) {
	cfg, err := SteeringConfigFromSpec(&prefabs.SteeringSpec{Steering: map[string]any{"stop_buffer": 0.5, "max_lookahead_nodes": 4}})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, cfg.StopBuffer, 1e-9)
	assert.Equal(t, 4, cfg.MaxLookaheadNodes)
	assert.Equal(t, DefaultSteeringConfig().CollisionHorizon, cfg.CollisionHorizon, "omitted keys keep defaults")

	cfg, err = SteeringConfigFromSpec(&prefabs.SteeringSpec{Steering: map[string]any{"halt_jitter": 3}})
	assert.Error(t, err)
	assert.Equal(t, DefaultSteeringConfig(), cfg)

	cfg, err = SteeringConfigFromSpec(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultSteeringConfig(), cfg)

	_, err = LoadSteeringConfig()
	assert.NoError(t, err, "the shipped steering.yaml is valid")
}

func TestSteeringAccelerates(t *testing.T) {
	w, _ := steeringWorld(t, NewSteeringSystem(DefaultSteeringConfig(), nil, nil, nil, WithLogger(quietLogger())))
	e, nav := spawnAgent(t, w, cp.Vector{}, wp(0, 0, 1), wp(100, 0, 1))

	run(w, 60)

	mo := motionOf(t, w, e)
	assert.InDelta(t, 1.0, mo.Speed, 1e-6, "one second at max acceleration")
	assert.InDelta(t, 1.0, nav.CurrentSpeed, 1e-6)
	assert.InDelta(t, 1.0, mo.Velocity.X, 1e-6)
	tr := transformOf(t, w, e)
	assert.InDelta(t, 0.5, tr.Position.X, 0.02)
	assert.Zero(t, tr.Position.Y)
	assert.Equal(t, component.BrakingNone, nav.Braking)

	run(w, 120)
	assert.InDelta(t, walker.MaxForwardSpeed, motionOf(t, w, e).Speed, 1e-9, "capped at max forward speed")
}

func TestSteeringStopsAtPathEnd(t *testing.T) {
	model := &openModel{height: 1.5}
	w, rec := steeringWorld(t, NewSteeringSystem(DefaultSteeringConfig(), model, nil, nil, WithLogger(quietLogger())))
	e, nav := spawnAgent(t, w, cp.Vector{}, wp(0, 0, 1), wp(1, 0, 1))

	run(w, 600)

	tr := transformOf(t, w, e)
	assert.Equal(t, cp.Vector{X: 1}, tr.Position)
	assert.Equal(t, 1.5, tr.Height, "ground height from the world model")
	assert.Zero(t, motionOf(t, w, e).Speed)
	assert.Equal(t, component.PathFinished, nav.Path().State())
	assert.True(t, rec.braking(component.BrakingPathEnds))
}

func TestSteeringStopsBeforeBlockedNode(t *testing.T) {
	model := &openModel{blocked: map[cp.Vector]bool{{X: 4}: true}}
	w, _ := steeringWorld(t, NewSteeringSystem(DefaultSteeringConfig(), model, nil, nil, WithLogger(quietLogger())))
	e, nav := spawnAgent(t, w, cp.Vector{}, wp(0, 0, 1), wp(2, 0, 1), wp(4, 0, 1), wp(6, 0, 1))

	run(w, 600)

	assert.InDelta(t, 2, transformOf(t, w, e).Position.X, 1e-6)
	assert.InDelta(t, 0, motionOf(t, w, e).Speed, 1e-6)
	assert.Equal(t, component.BrakingNodeBlocked, nav.Braking)
	assert.True(t, nav.Path().IsActive())
}

func TestSteeringWaitsForReservation(t *testing.T) {
	rs := NewReservationSystem(nil, WithLogger(quietLogger()))
	steering := NewSteeringSystem(DefaultSteeringConfig(), nil, rs, nil, WithLogger(quietLogger()))
	w, rec := steeringWorld(t, steering, rs)

	// The holder never gets a full update, so it stands on a running path.
	holder, holderNav := spawnAgent(t, w, cp.Vector{X: 50, Y: 50}, wp(50, 50, 9), wp(60, 50, 9))
	holderNav.UpdateRate = 1e9
	ok, _ := rs.Container().InsertReservation(res(t, 0, 100, holder.Ref()), area(2), ReservationFlags{})
	require.True(t, ok)

	e, nav := spawnAgent(t, w, cp.Vector{}, wp(0, 0, 1), wp(2, 0, 1), wp(4, 0, 2), wp(6, 0, 2))

	run(w, 600)

	x := transformOf(t, w, e).Position.X
	assert.InDelta(t, 2, x, 1e-6)
	assert.LessOrEqual(t, x, 2.0, "never enters the held area")
	assert.Equal(t, component.BrakingReservationMissed, nav.Braking)
	assert.True(t, rec.braking(component.BrakingReservationMissed))
	require.True(t, nav.HasObstacle)
	assert.Equal(t, holder.Ref(), nav.Obstacle.Entity)
	assert.Equal(t, component.PathTryAlternative, nav.Path().State(), "asks for another path after waiting")
	assert.Contains(t, rs.Container().AreasOf(e.Ref()), area(1))
	assert.NotContains(t, rs.Container().AreasOf(e.Ref()), area(2))
}

// reachTracker records the largest x an entity had at the end of any tick.
type reachTracker struct {
	e    ecs.Entity
	maxX float64
}

func (r *reachTracker) Update(w *ecs.World) {
	if tr, ok := ecs.Get(w, r.e, component.TransformComponent.Kind()); ok {
		r.maxX = math.Max(r.maxX, tr.Position.X)
	}
}

func TestSteeringNeverOverrunsStop(t *testing.T) {
	cases := []struct {
		name   string
		stop   float64
		reason component.BrakingReason
		setup  func(t *testing.T) (*ecs.World, ecs.Entity, *component.NavigationComponent)
	}{
		{
			name:   "missed_reservation",
			stop:   2,
			reason: component.BrakingReservationMissed,
			setup:  func(t *testing.T) (*ecs.World, ecs.Entity, *component.NavigationComponent) {
				rs := NewReservationSystem(nil, WithLogger(quietLogger()))
				w, _ := steeringWorld(t, NewSteeringSystem(DefaultSteeringConfig(), nil, rs, nil, WithLogger(quietLogger())), rs)
				holder, holderNav := spawnAgent(t, w, cp.Vector{X: 50, Y: 50}, wp(50, 50, 9), wp(60, 50, 9))
				holderNav.UpdateRate = 1e9
				ok, _ := rs.Container().InsertReservation(res(t, 0, 100, holder.Ref()), area(2), ReservationFlags{})
				require.True(t, ok)
				e, nav := spawnAgent(t, w, cp.Vector{}, wp(0, 0, 1), wp(2, 0, 1), wp(4, 0, 2))
				return w, e, nav
			},
		},
		{
			name:   "blocked_node",
			stop:   2,
			reason: component.BrakingNodeBlocked,
			setup:  func(t *testing.T) (*ecs.World, ecs.Entity, *component.NavigationComponent) {
				model := &openModel{blocked: map[cp.Vector]bool{{X: 4}: true}}
				w, _ := steeringWorld(t, NewSteeringSystem(DefaultSteeringConfig(), model, nil, nil, WithLogger(quietLogger())))
				e, nav := spawnAgent(t, w, cp.Vector{}, wp(0, 0, 1), wp(2, 0, 1), wp(4, 0, 1))
				return w, e, nav
			},
		},
		{
			name:   "obstacle",
			stop:   2.7,
			reason: component.BrakingAvoidCollision,
			setup:  func(t *testing.T) (*ecs.World, ecs.Entity, *component.NavigationComponent) {
				w, _ := steeringWorld(t, NewSteeringSystem(DefaultSteeringConfig(), nil, nil, nil, WithLogger(quietLogger())))
				e, nav := spawnAgent(t, w, cp.Vector{}, wp(0, 0, 1), wp(10, 0, 1))
				crate := w.CreateEntity()
				require.NoError(t, ecs.Add(w, crate, component.TransformComponent.Kind(), &component.Transform{Position: cp.Vector{X: 4}}))
				require.NoError(t, ecs.Add(w, crate, component.ObstacleComponent.Kind(), &component.Obstacle{Radius: 0.5}))
				return w, e, nav
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w, e, nav := tc.setup(t)
			reach := &reachTracker{e: e}
			w.AddSystem(reach)

			run(w, 600)

			assert.LessOrEqual(t, reach.maxX, tc.stop+1e-9, "passed the stop on some tick")
			assert.InDelta(t, tc.stop, transformOf(t, w, e).Position.X, 1e-6)
			assert.InDelta(t, 0, motionOf(t, w, e).Speed, 1e-6)
			assert.Equal(t, tc.reason, nav.Braking)
		})
	}
}

func TestSteeringStartsFromStandingNode(t *testing.T) {
	w, _ := steeringWorld(t, NewSteeringSystem(DefaultSteeringConfig(), nil, nil, nil, WithLogger(quietLogger())))
	e, nav := spawnAgent(t, w, cp.Vector{X: 1}, wp(1, 0, 1), wp(5, 0, 1))

	run(w, 1)

	assert.InDelta(t, walker.MaxAcceleration/60, motionOf(t, w, e).Speed, 1e-12, "accelerates on the first tick")
	assert.Greater(t, transformOf(t, w, e).Position.X, 1.0)
	assert.Equal(t, 1, nav.Path().CurrentNodeIndex())
}

func TestSteeringReservesAheadAndReleasesOnArrival(t *testing.T) {
	rs := NewReservationSystem(nil, WithLogger(quietLogger()))
	steering := NewSteeringSystem(DefaultSteeringConfig(), nil, rs, nil, WithLogger(quietLogger()))
	w, _ := steeringWorld(t, steering, rs)
	e, nav := spawnAgent(t, w, cp.Vector{}, wp(0, 0, 1), wp(1, 0, 2), wp(2, 0, 3))

	run(w, 1)
	assert.Equal(t, []component.AreaConfiguration{area(1), area(2), area(3)}, rs.Container().AreasOf(e.Ref()))
	begin, end := nav.Path().ReservationWindow()
	assert.Equal(t, 1, begin, "the start node is passed before planning")
	assert.Equal(t, 3, end)

	run(w, 600)
	assert.Equal(t, component.PathFinished, nav.Path().State())
	assert.Empty(t, rs.Container().AreasOf(e.Ref()))
}

func TestSteeringStopsForObstacle(t *testing.T) {
	w, rec := steeringWorld(t, NewSteeringSystem(DefaultSteeringConfig(), nil, nil, nil, WithLogger(quietLogger())))
	e, nav := spawnAgent(t, w, cp.Vector{}, wp(0, 0, 1), wp(10, 0, 1))
	crate := w.CreateEntity()
	require.NoError(t, ecs.Add(w, crate, component.TransformComponent.Kind(), &component.Transform{Position: cp.Vector{X: 4}}))
	require.NoError(t, ecs.Add(w, crate, component.ObstacleComponent.Kind(), &component.Obstacle{Radius: 0.5}))

	run(w, 600)

	// contact distance 1.1 plus the stop buffer
	assert.InDelta(t, 2.7, transformOf(t, w, e).Position.X, 1e-6)
	assert.InDelta(t, 0, motionOf(t, w, e).Speed, 1e-3)
	assert.Equal(t, component.BrakingAvoidCollision, nav.Braking)
	assert.True(t, rec.braking(component.BrakingAvoidCollision))
	require.True(t, nav.HasObstacle)
	assert.Equal(t, crate.Ref(), nav.Obstacle.Entity)
}

func TestSteeringIgnoresUnmaskedCategories(t *testing.T) {
	w, _ := steeringWorld(t, NewSteeringSystem(DefaultSteeringConfig(), nil, nil, nil, WithLogger(quietLogger())))
	e, nav := spawnAgent(t, w, cp.Vector{}, wp(0, 0, 1), wp(10, 0, 1))
	nav.AvoidMask.Set(component.CategoryVehicle)
	crate := w.CreateEntity()
	require.NoError(t, ecs.Add(w, crate, component.TransformComponent.Kind(), &component.Transform{Position: cp.Vector{X: 4}}))
	require.NoError(t, ecs.Add(w, crate, component.ObstacleComponent.Kind(), &component.Obstacle{Radius: 0.5}))

	run(w, 600)

	assert.Equal(t, cp.Vector{X: 10}, transformOf(t, w, e).Position, "drives through what it does not avoid")
}

func TestSteeringEvadesSideways(t *testing.T) {
	planner := NewDynamicCollisionLocalPlanner(nil, nil, WithLogger(quietLogger()))
	w, rec := steeringWorld(t, NewSteeringSystem(DefaultSteeringConfig(), nil, nil, planner, WithLogger(quietLogger())))
	e, nav := spawnAgent(t, w, cp.Vector{}, wp(0, 0, 1), wp(10, 0, 1))
	nav.Measures.Set(component.AvoidEvadeSideways)
	crate := w.CreateEntity()
	require.NoError(t, ecs.Add(w, crate, component.TransformComponent.Kind(), &component.Transform{Position: cp.Vector{X: 4}}))
	require.NoError(t, ecs.Add(w, crate, component.ObstacleComponent.Kind(), &component.Obstacle{Radius: 0.5}))

	run(w, 900)

	assert.Equal(t, cp.Vector{X: 10}, transformOf(t, w, e).Position)
	assert.Equal(t, component.PathFinished, nav.Path().State())
	got, ok := nav.Path().EvadedCollision(crate.Ref())
	require.True(t, ok)
	assert.Equal(t, component.EvadedSuccessfully, got.Outcome)
	assert.Equal(t, []component.EvasionOutcome{component.EvasionPending, component.EvadedSuccessfully}, rec.evasions())
}

func TestSteeringHaltsWithoutPath(t *testing.T) {
	w, _ := steeringWorld(t, NewSteeringSystem(DefaultSteeringConfig(), nil, nil, nil, WithLogger(quietLogger())))
	e, nav := spawnAgent(t, w, cp.Vector{})
	mo := motionOf(t, w, e)
	mo.Speed = 1
	mo.Velocity = cp.Vector{X: 1}

	run(w, 1)
	v := motionOf(t, w, e).Speed
	assert.LessOrEqual(t, v, 1-walker.MaxDeceleration*0.75/60+1e-9)
	assert.GreaterOrEqual(t, v, 1-walker.MaxDeceleration/60-1e-9)
	assert.Equal(t, component.BrakingPathEnds, nav.Braking)

	run(w, 120)
	assert.Zero(t, motionOf(t, w, e).Speed)
	assert.Greater(t, transformOf(t, w, e).Position.X, 0.0)
}

func TestSteeringLocalSteering(t *testing.T) {
	w, _ := steeringWorld(t, NewSteeringSystem(DefaultSteeringConfig(), nil, nil, nil, WithLogger(quietLogger())))
	e, nav := spawnAgent(t, w, cp.Vector{})
	nav.Flags.Set(component.MovementLocalSteering)
	nav.SetGoal(component.NewReachSinglePointGoal(cp.Vector{X: 3}, 0.1))

	run(w, 600)

	assert.InDelta(t, 2.9, transformOf(t, w, e).Position.X, 0.02)
	assert.InDelta(t, 0, motionOf(t, w, e).Speed, 0.05)
}

func TestSteeringThrottle(t *testing.T) {
	w, _ := steeringWorld(t, NewSteeringSystem(DefaultSteeringConfig(), nil, nil, nil, WithLogger(quietLogger())))
	e, nav := spawnAgent(t, w, cp.Vector{}, wp(0, 0, 1), wp(10, 0, 1))
	nav.UpdateRate = 0.5

	run(w, 10)
	assert.Zero(t, motionOf(t, w, e).Speed, "no full update yet")

	run(w, 21)
	assert.Greater(t, motionOf(t, w, e).Speed, 0.0)
}

func TestSteeringDropsNonFiniteMovement(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	w, _ := steeringWorld(t, NewSteeringSystem(DefaultSteeringConfig(), nil, nil, nil, WithLogger(logger)))
	e, _ := spawnAgent(t, w, cp.Vector{}, wp(0, 0, 1), wp(math.NaN(), 0, 1))

	run(w, 3)

	assert.Equal(t, cp.Vector{}, transformOf(t, w, e).Position)
	assert.Zero(t, motionOf(t, w, e).Speed)
	assert.Contains(t, buf.String(), "non-finite movement dropped")
}

func TestSteeringCarriesDriver(t *testing.T) {
	w, _ := steeringWorld(t, NewSteeringSystem(DefaultSteeringConfig(), nil, nil, nil, WithLogger(quietLogger())))
	vehicle, vnav := spawnAgent(t, w, cp.Vector{}, wp(0, 0, 1), wp(5, 0, 1))
	driver, dnav := spawnAgent(t, w, cp.Vector{Y: 3}, wp(0, 3, 1), wp(0, 8, 1))
	require.NoError(t, component.LinkDriverAndVehicle(dnav, vnav))

	run(w, 60)

	vt := transformOf(t, w, vehicle)
	assert.Greater(t, vt.Position.X, 0.0)
	assert.Equal(t, *vt, *transformOf(t, w, driver), "the driver rides along")
	assert.Equal(t, vnav.CurrentSpeed, dnav.CurrentSpeed)
	assert.False(t, w.PhysicsWorld().HasBody(driver), "a seated driver has no own proxy")
}
