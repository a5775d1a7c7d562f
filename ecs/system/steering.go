package system

import (
	"errors"
	"log/slog"
	"math"

	"github.com/jakecoffman/cp"
	"github.com/milk9111/navcore/common"
	"github.com/milk9111/navcore/ecs"
	"github.com/milk9111/navcore/ecs/component"
)

// SteeringSystem drives entities along their paths: it plans a speed
// profile, reserves the areas ahead, reacts to the most critical collision
// and integrates the pose.
type SteeringSystem struct {
	cfg          SteeringConfig
	model        WorldModel
	reservations *ReservationSystem
	planner      *DynamicCollisionLocalPlanner

	agg    *CollisionAggregator
	bullet *BulletCollisionAggregator
	router *RouterCollisionAggregator
	logger *slog.Logger
}

// NewSteeringSystem builds a steering system. model, reservations and
// planner are optional; without them blockages, reservations and evasion
// are skipped.
func NewSteeringSystem(cfg SteeringConfig, model WorldModel, reservations *ReservationSystem, planner *DynamicCollisionLocalPlanner, opts ...Option) *SteeringSystem {
	o := resolveOptions(opts)
	s := &SteeringSystem{
		model:        model,
		reservations: reservations,
		planner:      planner,
		agg:          NewCollisionAggregator(),
		bullet:       NewBulletCollisionAggregator(nil),
		router:       NewRouterCollisionAggregator(nil),
		logger:       o.logger,
	}
	if err := s.SetConfig(cfg); err != nil {
		s.logger.Warn("steering: invalid config, using defaults", slog.Any("error", err))
		_ = s.SetConfig(DefaultSteeringConfig())
	}
	if reservations != nil {
		s.router.Reservations = reservations.Container()
	}
	return s
}

func (s *SteeringSystem) Config() SteeringConfig {
	return s.cfg
}

// SetConfig swaps the tuning. Invalid configs are rejected and the current
// one is kept.
func (s *SteeringSystem) SetConfig(cfg SteeringConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.cfg = cfg
	s.agg.DrawCollisions = cfg.DrawCollisions
	return nil
}

// Aggregator exposes the collisions recorded during the last update.
func (s *SteeringSystem) Aggregator() *CollisionAggregator {
	return s.agg
}

func (s *SteeringSystem) Update(w *ecs.World) {
	if s == nil || w == nil {
		return
	}
	s.bullet.Physics = w.PhysicsWorld()
	if s.planner != nil {
		s.planner.Physics = w.PhysicsWorld()
	}
	s.agg.ResetRecorded()
	dt := w.DeltaTime()

	ecs.ForEach3(w, component.NavComponent.Kind(), component.TransformComponent.Kind(), component.MotionComponent.Kind(),
		func(e ecs.Entity, nav *component.NavigationComponent, tr *component.Transform, mo *component.Motion) {
			if !nav.Active {
				return
			}
			if nav.IsDriver() {
				if _, ok := w.Resolve(nav.Partner()); ok {
					return
				}
			}
			if _, due := nav.Throttle(dt); due {
				s.steer(w, e, nav, tr, mo, dt)
			} else {
				s.coast(w, e, nav, tr, mo, dt)
			}
			if nav.IsVehicle() {
				s.carryDriver(w, nav, tr, mo)
			}
		})
}

func (s *SteeringSystem) steer(w *ecs.World, e ecs.Entity, nav *component.NavigationComponent, tr *component.Transform, mo *component.Motion, dt float64) {
	path := nav.Path()
	if !path.IsActive() {
		s.idle(w, e, nav, tr, mo, dt)
		return
	}
	now := w.Time()
	s.skipReached(w, e, nav, tr.Position)
	if s.reservations != nil {
		s.reservations.ReleasePassed(nav.Owner, path)
	}

	prof := s.buildProfile(nav, tr.Position, mo.Speed)
	cur := path.CurrentNodeIndex()
	windowEnd := cur
	reserving := s.reservations != nil && !nav.Flags.Has(component.MovementIgnoreReservations)
	waiting := false
	if reserving {
		blockedAt, blocker, ok := s.reserve(nav, s.hereArea(nav, tr.Position), &prof, now)
		windowEnd = cur + blockedAt
		if !ok {
			prof.truncate(blockedAt, component.BrakingReservationMissed, nav.Movement.MaxDeceleration)
			waiting = true
			s.holdObstacle(e, nav, component.ActiveObstacle{Entity: blocker.Reserver, Position: s.blockedNodePosition(path, windowEnd)}, now)
		}
	}
	if err := path.SetReservationWindow(cur, min(windowEnd, path.Len())); err != nil {
		s.logger.Debug("steering: reservation window", slog.String("entity", e.String()), slog.Any("error", err))
	}

	target := min(prof.allowed, nav.Movement.MaxForwardSpeed)
	if len(prof.nodes) > 0 {
		target = min(target, prof.nodes[0].limit)
	}
	reason := prof.reason
	// travel bounds the distance of this tick so a stop is never overrun.
	travel := math.Inf(1)
	if prof.stops {
		travel = prof.distance()
	}

	if col, ok := s.collide(w, nav, tr, mo, target, windowEnd, reserving, now); ok {
		target, reason = s.react(w, e, nav, tr, col, target, reason, now)
		if reason == component.BrakingAvoidCollision {
			travel = min(travel, math.Max(0, col.Distance-s.cfg.StopBuffer))
		}
	} else if !waiting {
		nav.ClearActiveObstacle()
	}

	prev := math.Abs(mo.Speed)
	speed := approachSpeed(prev, target, nav.Movement, dt)
	cut := s.move(w, e, nav, tr, mo, speed, travel, dt)
	if !cut && speed >= prev-common.Epsilon && target > common.Epsilon && reason != component.BrakingReservationMissed {
		reason = component.BrakingNone
	}
	s.setBraking(w, e, nav, reason)
}

// skipReached passes the nodes the entity already stands on, so the
// profile starts with a segment it still has to travel. The last node is
// left to move, which finishes the path.
func (s *SteeringSystem) skipReached(w *ecs.World, e ecs.Entity, nav *component.NavigationComponent, pos cp.Vector) {
	path := nav.Path()
	for path.CurrentNodeIndex() < path.Len()-1 {
		node, ok := path.CurrentNode()
		if !ok || node.Position.Sub(pos).LengthSq() > common.Epsilon {
			return
		}
		s.passNode(w, e, nav, node)
		if !path.SelectNextNode() {
			return
		}
	}
}

// coast keeps the current speed between full updates of throttled entities.
func (s *SteeringSystem) coast(w *ecs.World, e ecs.Entity, nav *component.NavigationComponent, tr *component.Transform, mo *component.Motion, dt float64) {
	if !nav.Path().IsActive() {
		s.idle(w, e, nav, tr, mo, dt)
		return
	}
	s.move(w, e, nav, tr, mo, math.Abs(mo.Speed), math.Inf(1), dt)
}

func approachSpeed(v, target float64, mp component.MovementParameters, dt float64) float64 {
	if target > v {
		return min(target, v+mp.MaxAcceleration*dt)
	}
	return max(target, v-mp.MaxDeceleration*dt, 0)
}

// hereArea is the area the entity stands in.
func (s *SteeringSystem) hereArea(nav *component.NavigationComponent, pos cp.Vector) component.AreaConfiguration {
	path := nav.Path()
	if s.model != nil {
		if a, ok := s.model.AreaAt(nav.Maps.Primary, pos); ok {
			return a
		}
	}
	if i := path.CurrentNodeIndex(); i > 0 {
		return path.Nodes()[i-1].Area
	}
	n, _ := path.CurrentNode()
	return n.Area
}

func (s *SteeringSystem) blockedNodePosition(path *component.Path, index int) cp.Vector {
	if n, err := path.Node(index); err == nil {
		return n.Position
	}
	if n, ok := path.LastNode(); ok {
		return n.Position
	}
	return cp.Vector{}
}

// reserve claims every area the profile passes through, in order. It
// returns the profile index of the first node whose area was refused and
// the reservation that refused it. The area the entity stands in is never
// refused.
func (s *SteeringSystem) reserve(nav *component.NavigationComponent, here component.AreaConfiguration, prof *speedProfile, now float64) (int, component.Reservation, bool) {
	type visit struct {
		area         component.AreaConfiguration
		first        int
		enter, leave float64
	}
	visits := []visit{{area: here, first: 0}}
	for i, n := range prof.nodes {
		last := &visits[len(visits)-1]
		if n.area == last.area {
			continue
		}
		enter := 0.0
		if i > 0 {
			enter = prof.nodes[i-1].arrival
		}
		last.leave = n.arrival
		visits = append(visits, visit{area: n.area, first: i, enter: enter})
	}
	tail := &visits[len(visits)-1]
	tail.leave = max(tail.enter, prof.lastArrival())
	if prof.stops {
		tail.leave += s.cfg.StopHoldTime
	}

	c := s.reservations.Container()
	slack := s.cfg.ReservationSlack
	for j, v := range visits {
		r, err := component.NewReservation(now+v.enter-slack, now+v.leave+slack, nav.Owner)
		if err != nil {
			continue
		}
		admitted, blocker := c.InsertReservation(r, v.area, ReservationFlags{})
		if admitted || j == 0 {
			continue
		}
		return v.first, blocker, false
	}
	return len(prof.nodes), component.Reservation{}, true
}

// holdObstacle records obstacle as the one the entity waits for. Waiting
// on the same obstacle for AlternativeAfter asks for another path.
func (s *SteeringSystem) holdObstacle(e ecs.Entity, nav *component.NavigationComponent, o component.ActiveObstacle, now float64) {
	o.Since = now
	if nav.HasObstacle && nav.Obstacle.Entity == o.Entity {
		o.Since = nav.Obstacle.Since
	}
	nav.SetActiveObstacle(o)
	if s.cfg.AlternativeAfter <= 0 || now-o.Since < s.cfg.AlternativeAfter {
		return
	}
	path := nav.Path()
	if path.State() != component.PathRunning {
		return
	}
	if err := path.RequestTryToFindAnAlternative(); err != nil {
		s.logger.Debug("steering: alternative request", slog.String("entity", e.String()), slog.Any("error", err))
		return
	}
	s.logger.Debug("steering: blocked, looking for an alternative",
		slog.String("entity", e.String()), slog.String("obstacle", o.Entity.String()), slog.Float64("waited", now-o.Since))
}

// collide gathers the most critical collision ahead. Reservation
// collisions are only looked for past the entity's own reservation window.
func (s *SteeringSystem) collide(w *ecs.World, nav *component.NavigationComponent, tr *component.Transform, mo *component.Motion, target float64, windowEnd int, reserving bool, now float64) (NavigationComponentCollision, bool) {
	if nav.Measures.Empty() {
		return NavigationComponentCollision{}, false
	}
	path := nav.Path()
	heading := tr.Forward()
	speed := math.Max(math.Abs(mo.Speed), target)
	if node, ok := path.CurrentNode(); ok {
		if to := node.Position.Sub(tr.Position); to.LengthSq() > common.Epsilon {
			heading = to.Normalize()
		}
		if movesBackwards(nav, node) {
			heading = heading.Neg()
			speed = -speed
		}
	}
	s.agg.Begin(CollisionQuery{
		Self:     nav.Owner,
		Position: tr.Position,
		Heading:  heading,
		Speed:    speed,
		Radius:   nav.Movement.Radius,
		Margin:   s.cfg.CollisionMargin,
		Horizon:  s.cfg.CollisionHorizon,
		Accept: func(id component.EntityID) bool {
			if id == nav.Partner() {
				return false
			}
			other, ok := w.NavigationByRef(id)
			if !ok {
				return nav.AvoidMask.Empty() || nav.AvoidMask.Has(component.CategoryObstacle)
			}
			return nav.Avoids(other)
		},
	})
	s.bullet.Gather(s.agg)
	from := path.CurrentNodeIndex()
	if reserving {
		from = windowEnd
	}
	s.router.Gather(s.agg, path, from, now)
	return s.agg.Result()
}

// react applies the avoidance measures of nav to col and returns the
// adjusted target speed and braking reason.
func (s *SteeringSystem) react(w *ecs.World, e ecs.Entity, nav *component.NavigationComponent, tr *component.Transform, col NavigationComponentCollision, target float64, reason component.BrakingReason, now float64) (float64, component.BrakingReason) {
	s.holdObstacle(e, nav, component.ActiveObstacle{Entity: col.Entity, Position: col.Position, Radius: col.Radius}, now)

	if s.evade(w, e, nav, tr, col) {
		return target, reason
	}

	limit := common.SpeedAfterDistance(0, nav.Movement.MaxDeceleration, math.Max(0, col.Distance-s.cfg.StopBuffer))
	if nav.Measures.Has(component.AvoidSlowDown) && col.Distance > s.cfg.StopBuffer {
		if follow := math.Abs(s.agg.Query().Speed) - col.RelativeSpeed; follow > 0 {
			limit = math.Max(limit, follow)
		}
	}
	if limit < target {
		return limit, component.BrakingAvoidCollision
	}
	return target, reason
}

// evade tries to route around a physical obstacle that barely moves. Every
// obstacle is evaded at most once per path; meeting it again after an
// evasion marks that evasion unsuccessful.
func (s *SteeringSystem) evade(w *ecs.World, e ecs.Entity, nav *component.NavigationComponent, tr *component.Transform, col NavigationComponentCollision) bool {
	if s.planner == nil || col.Mode != CollisionModePhysical ||
		!nav.Measures.HasAny(component.AvoidEvadeSideways, component.AvoidLocalRouter) {
		return false
	}
	if other, ok := w.NavigationByRef(col.Entity); ok && math.Abs(other.CurrentSpeed) > s.cfg.EvadeMaxObstacleSpeed {
		return false
	}
	path := nav.Path()
	if rec, seen := path.EvadedCollision(col.Entity); seen {
		if rec.Outcome == component.EvasionPending || rec.Outcome == component.EvadedSuccessfully {
			path.SetEvasionOutcome(col.Entity, component.EvadedUnsuccessfully)
			s.pushEvasion(w, e, col.Entity, component.EvadedUnsuccessfully)
		}
		return false
	}

	var err error
	switch {
	case nav.Measures.Has(component.AvoidLocalRouter) && s.planner.HasRouter():
		err = s.planner.PlanDetour(nav, tr.Position, col.Distance, col)
		if err != nil && nav.Measures.Has(component.AvoidEvadeSideways) && !errors.Is(err, component.ErrIllegalPathTransition) {
			path.ForgetEvadedCollision(col.Entity)
			err = s.planner.MoveToSide(nav, tr.Position, s.agg.Query().MovementDirection(), col.Distance, col)
		}
	case nav.Measures.Has(component.AvoidEvadeSideways):
		err = s.planner.MoveToSide(nav, tr.Position, s.agg.Query().MovementDirection(), col.Distance, col)
	default:
		return false
	}
	if err != nil {
		s.logger.Debug("steering: evasion failed", slog.String("entity", e.String()),
			slog.String("obstacle", col.Entity.String()), slog.Any("error", err))
		if rec, ok := path.EvadedCollision(col.Entity); ok {
			s.pushEvasion(w, e, col.Entity, rec.Outcome)
		}
		return false
	}
	s.pushEvasion(w, e, col.Entity, component.EvasionPending)
	return true
}

func (s *SteeringSystem) pushEvasion(w *ecs.World, e ecs.Entity, obstacle component.EntityID, outcome component.EvasionOutcome) {
	w.Events().Push(ecs.Event{Type: ecs.EventCollisionEvaded, Data: ecs.EvasionEvent{Entity: e, Obstacle: obstacle, Outcome: outcome}})
}

// move advances the entity speed*dt along its path, passing nodes as it
// reaches them, and writes the pose. It never travels further than travel;
// when that bound cuts the step short the speed drops with it and move
// reports true.
func (s *SteeringSystem) move(w *ecs.World, e ecs.Entity, nav *component.NavigationComponent, tr *component.Transform, mo *component.Motion, speed, travel, dt float64) bool {
	path := nav.Path()
	pos := tr.Position
	dist := (math.Abs(mo.Speed) + speed) / 2 * dt
	cut := dist > travel
	if cut {
		dist = travel
		speed = math.Max(0, math.Min(speed, travel/dt))
	}
	var dir cp.Vector
	backwards := false
	for path.IsActive() {
		node, ok := path.CurrentNode()
		if !ok {
			break
		}
		backwards = movesBackwards(nav, node)
		to := node.Position.Sub(pos)
		d := to.Length()
		if d > common.Epsilon {
			dir = to.Mult(1 / d)
		}
		last := path.CurrentNodeIndex() == path.Len()-1
		if d > dist && !(last && d <= s.cfg.ArriveTolerance) {
			pos = pos.Add(dir.Mult(dist))
			break
		}
		pos = node.Position
		dist = math.Max(0, dist-d)
		s.passNode(w, e, nav, node)
		if !path.SelectNextNode() {
			speed = 0
			s.finishPath(nav)
			break
		}
	}

	yaw := tr.Yaw
	if dir.LengthSq() > 0 {
		want := dir.ToAngle()
		if backwards {
			want = common.NormalizeAngle(want + math.Pi)
		}
		yaw = turnToward(yaw, want, nav.Movement.MaxTurningRate, dt)
	}
	signed := speed
	if backwards {
		signed = -speed
	}
	s.write(w, e, nav, tr, mo, pos, yaw, dir.Mult(speed), signed)
	return cut
}

func turnToward(yaw, want, rate, dt float64) float64 {
	delta := common.NormalizeAngle(want - yaw)
	if rate > 0 {
		delta = common.Clamp(delta, -rate*dt, rate*dt)
	}
	return common.NormalizeAngle(yaw + delta)
}

// passNode settles evasions once the last node of a detour is passed.
func (s *SteeringSystem) passNode(w *ecs.World, e ecs.Entity, nav *component.NavigationComponent, node component.Waypoint) {
	if !node.Flags.Has(component.WaypointEvasion) {
		return
	}
	path := nav.Path()
	if next, err := path.Node(path.CurrentNodeIndex() + 1); err == nil && next.Flags.Has(component.WaypointEvasion) {
		return
	}
	for _, rec := range path.EvadedCollisions() {
		if rec.Outcome != component.EvasionPending {
			continue
		}
		path.SetEvasionOutcome(rec.Entity, component.EvadedSuccessfully)
		s.pushEvasion(w, e, rec.Entity, component.EvadedSuccessfully)
	}
}

func (s *SteeringSystem) finishPath(nav *component.NavigationComponent) {
	if s.reservations != nil {
		s.reservations.ReleaseAll(nav.Owner)
	}
	nav.ClearActiveObstacle()
}

// idle handles entities without a running path: local steering toward the
// goal when allowed, a randomized halt otherwise.
func (s *SteeringSystem) idle(w *ecs.World, e ecs.Entity, nav *component.NavigationComponent, tr *component.Transform, mo *component.Motion, dt float64) {
	if nav.HasGoal() && nav.Flags.Has(component.MovementLocalSteering) && s.steerLocally(w, e, nav, tr, mo, dt) {
		return
	}
	v := math.Abs(mo.Speed)
	if v <= common.Epsilon && mo.Velocity.LengthSq() <= common.Epsilon {
		nav.CurrentSpeed = 0
		return
	}

	decel := nav.Movement.MaxDeceleration * (1 - s.cfg.HaltJitter*w.Rand().Float64())
	next := math.Max(0, v-decel*dt)
	dir := mo.Velocity
	if dir.LengthSq() > common.Epsilon {
		dir = dir.Normalize()
	} else {
		dir = tr.Forward()
		if mo.Speed < 0 {
			dir = dir.Neg()
		}
	}
	pos := tr.Position.Add(dir.Mult((v + next) / 2 * dt))
	signed := next
	if mo.Speed < 0 {
		signed = -next
	}
	s.write(w, e, nav, tr, mo, pos, tr.Yaw, dir.Mult(next), signed)

	reason := component.BrakingPathEnds
	if nav.HasGoal() && nav.Path().State() != component.PathFinished {
		reason = component.BrakingPathFail
	}
	s.setBraking(w, e, nav, reason)
}

// steerLocally drives straight at the first open goal configuration when
// nothing static is in the way. It reports false when it cannot.
func (s *SteeringSystem) steerLocally(w *ecs.World, e ecs.Entity, nav *component.NavigationComponent, tr *component.Transform, mo *component.Motion, dt float64) bool {
	var goal component.GoalConfiguration
	found := false
	for _, c := range nav.Goal().GoalConfigurations() {
		if !c.Failed {
			goal, found = c, true
			break
		}
	}
	if !found {
		return false
	}
	to := goal.Position.Sub(tr.Position)
	d := to.Length()
	if d <= math.Max(goal.Radius, s.cfg.ArriveTolerance) {
		return false
	}
	if pw := w.PhysicsWorld(); !pw.SweepClear(tr.Position, goal.Position, nav.Movement.Radius) {
		return false
	}
	dir := to.Mult(1 / d)
	target := min(nav.Movement.MaxForwardSpeed, common.SpeedAfterDistance(0, nav.Movement.MaxDeceleration, d-goal.Radius))
	reason := component.BrakingNone
	if !nav.Measures.Empty() {
		s.agg.Begin(CollisionQuery{
			Self:     nav.Owner,
			Position: tr.Position,
			Heading:  dir,
			Speed:    math.Max(math.Abs(mo.Speed), target),
			Radius:   nav.Movement.Radius,
			Margin:   s.cfg.CollisionMargin,
			Horizon:  s.cfg.CollisionHorizon,
			Accept: func(id component.EntityID) bool {
				other, ok := w.NavigationByRef(id)
				return id != nav.Partner() && (!ok || nav.Avoids(other))
			},
		})
		s.bullet.Gather(s.agg)
		if col, ok := s.agg.Result(); ok {
			if limit := common.SpeedAfterDistance(0, nav.Movement.MaxDeceleration, math.Max(0, col.Distance-s.cfg.StopBuffer)); limit < target {
				target, reason = limit, component.BrakingAvoidCollision
			}
		}
	}
	speed := approachSpeed(math.Abs(mo.Speed), target, nav.Movement, dt)
	step := math.Min(d, (math.Abs(mo.Speed)+speed)/2*dt)
	yaw := turnToward(tr.Yaw, dir.ToAngle(), nav.Movement.MaxTurningRate, dt)
	s.write(w, e, nav, tr, mo, tr.Position.Add(dir.Mult(step)), yaw, dir.Mult(speed), speed)
	s.setBraking(w, e, nav, reason)
	return true
}

// write stores the new pose. Non-finite results are dropped and the entity
// is stopped where it is.
func (s *SteeringSystem) write(w *ecs.World, e ecs.Entity, nav *component.NavigationComponent, tr *component.Transform, mo *component.Motion, pos cp.Vector, yaw float64, vel cp.Vector, speed float64) {
	if !common.IsFiniteVector(pos) || !common.IsFinite(yaw) || !common.IsFiniteVector(vel) || !common.IsFinite(speed) {
		s.logger.Warn("steering: non-finite movement dropped",
			slog.String("entity", e.String()), slog.Any("position", pos), slog.Float64("yaw", yaw), slog.Float64("speed", speed))
		mo.Velocity = cp.Vector{}
		mo.Speed = 0
		nav.CurrentSpeed = 0
		return
	}
	tr.Position = pos
	tr.Yaw = yaw
	if s.model != nil {
		tr.Height = s.model.GroundHeight(nav.Maps.Primary, pos)
	}
	mo.Velocity = vel
	mo.Speed = speed
	nav.CurrentSpeed = speed
}

func (s *SteeringSystem) setBraking(w *ecs.World, e ecs.Entity, nav *component.NavigationComponent, reason component.BrakingReason) {
	if nav.Braking == reason {
		return
	}
	nav.Braking = reason
	if reason == component.BrakingNone {
		return
	}
	w.Events().Push(ecs.Event{Type: ecs.EventBraking, Data: ecs.BrakingEvent{Entity: e, Reason: reason, Speed: nav.CurrentSpeed}})
	s.logger.Debug("steering: braking", slog.String("entity", e.String()), slog.String("reason", reason.String()),
		slog.Float64("speed", nav.CurrentSpeed))
}

// carryDriver keeps a driver on its vehicle.
func (s *SteeringSystem) carryDriver(w *ecs.World, vehicle *component.NavigationComponent, tr *component.Transform, mo *component.Motion) {
	de, ok := w.Resolve(vehicle.Partner())
	if !ok {
		return
	}
	if dtr, ok := ecs.Get(w, de, component.TransformComponent.Kind()); ok {
		*dtr = *tr
	}
	if dmo, ok := ecs.Get(w, de, component.MotionComponent.Kind()); ok {
		*dmo = *mo
	}
	if dnav, ok := w.Navigation(de); ok {
		dnav.CurrentSpeed = vehicle.CurrentSpeed
	}
}
