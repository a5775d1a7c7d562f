package system

import (
	"fmt"
	"log/slog"

	"github.com/jakecoffman/cp"
	"github.com/milk9111/navcore/common"
	"github.com/milk9111/navcore/ecs"
	"github.com/milk9111/navcore/ecs/component"
)

const (
	defaultSideStep       = 0.3
	defaultRejoinDistance = 1.0
)

// DynamicCollisionLocalPlanner splices short detours into a running path
// when an obstacle shows up on it. It never replaces the path.
type DynamicCollisionLocalPlanner struct {
	router LocalRouter
	model  WorldModel
	// Physics, when set, vets sidestep points against static geometry.
	Physics *ecs.PhysicsWorld
	// SideStep is the extra clearance of a sidestep point.
	SideStep float64
	// RejoinDistance is how far past the obstacle the detour rejoins.
	RejoinDistance float64
	logger         *slog.Logger
}

func NewDynamicCollisionLocalPlanner(router LocalRouter, model WorldModel, opts ...Option) *DynamicCollisionLocalPlanner {
	o := resolveOptions(opts)
	return &DynamicCollisionLocalPlanner{
		router:         router,
		model:          model,
		SideStep:       defaultSideStep,
		RejoinDistance: defaultRejoinDistance,
		logger:         o.logger,
	}
}

func (p *DynamicCollisionLocalPlanner) HasRouter() bool {
	return p != nil && p.router != nil
}

// rejoinIndex is the first remaining node at least reach away from start
// along the path, or -1 when the path ends first.
func rejoinIndex(path *component.Path, start cp.Vector, reach float64) int {
	dist := 0.0
	pos := start
	for i := path.CurrentNodeIndex(); i < path.Len(); i++ {
		n := path.Nodes()[i]
		dist += pos.Distance(n.Position)
		pos = n.Position
		if dist >= reach {
			return i
		}
	}
	return -1
}

func evasionOrigin(col NavigationComponentCollision) component.EvasionOrigin {
	if col.Mode == CollisionModeReservation {
		return component.EvasionOriginReservation
	}
	return component.EvasionOriginPhysical
}

func (p *DynamicCollisionLocalPlanner) areaFor(nav *component.NavigationComponent, pos cp.Vector, fallback component.AreaConfiguration) component.AreaConfiguration {
	if p.model == nil {
		return fallback
	}
	if a, ok := p.model.AreaAt(nav.Maps.Primary, pos); ok {
		return a
	}
	return fallback
}

// PlanDetour asks the local router for a detour from start around obstacle,
// distanceToObstacle ahead, and splices it into the path. A partial detour
// lets the path restart its search once it runs out.
func (p *DynamicCollisionLocalPlanner) PlanDetour(nav *component.NavigationComponent, start cp.Vector, distanceToObstacle float64, obstacle NavigationComponentCollision) error {
	if !p.HasRouter() {
		return fmt.Errorf("%w: no local router configured", ErrNoRoute)
	}
	path := nav.Path()
	if !path.IsActive() {
		return fmt.Errorf("%w: plan detour on %s path", component.ErrIllegalPathTransition, path.State())
	}

	info := component.EvadedCollisionInfo{
		Entity:           obstacle.Entity,
		Origin:           evasionOrigin(obstacle),
		ObstaclePosition: obstacle.Position,
	}
	reach := distanceToObstacle + 2*obstacle.Radius + nav.Movement.Radius + p.RejoinDistance
	j := rejoinIndex(path, start, reach)
	if j < 0 {
		info.Outcome = component.EvasionBlockingGoal
		path.RecordEvadedCollision(info)
		return fmt.Errorf("%w: obstacle %s sits on the goal", ErrNoRoute, obstacle.Entity)
	}
	rejoin := path.Nodes()[j]

	route, err := p.router.Route(LocalRouteRequest{
		MapID:     nav.Maps.Primary,
		Start:     start,
		Goal:      rejoin.Position,
		Radius:    nav.Movement.Radius,
		Obstacles: []LocalObstacle{{Position: obstacle.Position, Radius: obstacle.Radius}},
	})
	if err != nil || len(route.Points) == 0 {
		info.Outcome = component.EvasionFailed
		path.RecordEvadedCollision(info)
		if err == nil {
			err = ErrNoRoute
		}
		return fmt.Errorf("local planner: detour around %s: %w", obstacle.Entity, err)
	}

	cur := path.CurrentNodeIndex()
	fallbackArea := rejoin.Area
	if n, ok := path.CurrentNode(); ok {
		fallbackArea = n.Area
	}
	detour := make([]component.Waypoint, 0, len(route.Points))
	for _, pt := range route.Points {
		if pt.Near(start, common.Epsilon) || pt.Near(rejoin.Position, common.Epsilon) {
			continue
		}
		wp := component.NewWaypoint(pt, p.areaFor(nav, pt, fallbackArea)).
			WithFlags(component.WaypointLocalRoute, component.WaypointEvasion)
		detour = append(detour, wp)
	}

	if err := path.RequestAdaptation(); err != nil {
		return err
	}
	if err := path.EraseNodesBetween(cur, j); err != nil {
		return err
	}
	if route.Partial {
		// The rejoin node was not reached; drop it and what follows.
		if err := path.EraseNodesFromToPathEnd(cur); err != nil {
			return err
		}
	}
	if err := path.InsertNodes(cur, detour...); err != nil {
		return err
	}
	if err := path.FinishConstruction(); err != nil {
		return err
	}
	if route.Partial {
		path.OnPartialLocalRouterResultIntegrated()
	}
	info.Outcome = component.EvasionPending
	path.RecordEvadedCollision(info)
	p.logger.Debug("local planner: detour spliced",
		slog.String("entity", nav.Owner.String()), slog.String("obstacle", obstacle.Entity.String()),
		slog.Int("nodes", len(detour)), slog.Bool("partial", route.Partial))
	return nil
}

// MoveToSide inserts one evasion waypoint beside the obstacle, on the side
// away from it, and drops the nodes it would have passed through.
func (p *DynamicCollisionLocalPlanner) MoveToSide(nav *component.NavigationComponent, start cp.Vector, heading cp.Vector, distanceToObstacle float64, obstacle NavigationComponentCollision) error {
	path := nav.Path()
	if !path.IsActive() {
		return fmt.Errorf("%w: move to side on %s path", component.ErrIllegalPathTransition, path.State())
	}
	info := component.EvadedCollisionInfo{
		Entity:           obstacle.Entity,
		Origin:           evasionOrigin(obstacle),
		ObstaclePosition: obstacle.Position,
	}

	if heading.LengthSq() <= common.Epsilon {
		heading = obstacle.Position.Sub(start)
	}
	heading = heading.Normalize()
	toObstacle := obstacle.Position.Sub(start)
	side := heading.Perp()
	if side.Dot(toObstacle) > 0 {
		side = side.Neg()
	}
	offset := obstacle.Radius + nav.Movement.Radius + p.SideStep
	lateral := toObstacle.Dot(side)
	along := toObstacle.Dot(heading)
	point := start.Add(heading.Mult(along)).Add(side.Mult(lateral + offset))

	reach := distanceToObstacle + 2*obstacle.Radius + nav.Movement.Radius + p.RejoinDistance
	j := rejoinIndex(path, start, reach)
	if j < 0 {
		info.Outcome = component.EvasionBlockingGoal
		path.RecordEvadedCollision(info)
		return fmt.Errorf("%w: obstacle %s sits on the goal", ErrNoRoute, obstacle.Entity)
	}
	rejoin := path.Nodes()[j]

	if !p.Physics.SweepClear(start, point, nav.Movement.Radius) || !p.Physics.SweepClear(point, rejoin.Position, nav.Movement.Radius) ||
		(p.model != nil && p.model.PointBlocked(nav.Maps.Primary, point)) {
		info.Outcome = component.EvasionFailed
		path.RecordEvadedCollision(info)
		return fmt.Errorf("%w: no room beside %s", ErrNoRoute, obstacle.Entity)
	}

	cur := path.CurrentNodeIndex()
	fallbackArea := rejoin.Area
	if n, ok := path.CurrentNode(); ok {
		fallbackArea = n.Area
	}
	wp := component.NewWaypoint(point, p.areaFor(nav, point, fallbackArea)).WithFlags(component.WaypointEvasion)

	if err := path.RequestAdaptation(); err != nil {
		return err
	}
	if err := path.EraseNodesBetween(cur, j); err != nil {
		return err
	}
	if err := path.InsertNode(cur, wp); err != nil {
		return err
	}
	if err := path.FinishConstruction(); err != nil {
		return err
	}
	info.Outcome = component.EvasionPending
	path.RecordEvadedCollision(info)
	return nil
}
