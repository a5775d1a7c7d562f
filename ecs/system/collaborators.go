package system

import (
	"errors"

	"github.com/jakecoffman/cp"
	"github.com/milk9111/navcore/ecs/component"
)

var (
	ErrNoPath  = errors.New("navigation: no path to goal")
	ErrNoRoute = errors.New("navigation: no local route")
)

// WorldModel is the read-only navigable world: areas, blockages and ground
// height.
type WorldModel interface {
	// AreaAt returns the area of mapID containing p.
	AreaAt(mapID uint32, p cp.Vector) (component.AreaConfiguration, bool)
	AreaBlocked(area component.AreaConfiguration) bool
	PointBlocked(mapID uint32, p cp.Vector) bool
	GroundHeight(mapID uint32, p cp.Vector) float64
}

// PathRequest asks for a route from Start that satisfies Goal.
type PathRequest struct {
	Entity component.EntityID
	Start  cp.Vector
	Maps   component.MapBinding
	Goal   component.NavigationGoal
	// Context resolves dynamic targets and line of sight for the goal.
	Context component.GoalContext
	Radius  float64
	// AvoidAreas are excluded, e.g. areas held by other reservers when
	// looking for an alternative.
	AvoidAreas []component.AreaConfiguration
}

// PathSearcher produces a path under construction for a request.
type PathSearcher interface {
	FindPath(req PathRequest) (*component.Path, error)
}

// LocalObstacle is a disc the local router must keep clear of.
type LocalObstacle struct {
	Position cp.Vector
	Radius   float64
}

// LocalRouteRequest asks for a short detour between two points.
type LocalRouteRequest struct {
	MapID     uint32
	Start     cp.Vector
	Goal      cp.Vector
	Radius    float64
	Obstacles []LocalObstacle
}

// LocalRoute is a detour from the request start. A partial route stops
// short of the goal.
type LocalRoute struct {
	Points  []cp.Vector
	Partial bool
}

// LocalRouter computes short detours around fresh obstacles.
type LocalRouter interface {
	Route(req LocalRouteRequest) (LocalRoute, error)
}
