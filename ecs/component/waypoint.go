package component

import (
	"github.com/jakecoffman/cp"
	"github.com/milk9111/navcore/common"
	"github.com/milk9111/navcore/wire"
)

// WaypointFlag is a bit position in a waypoint's marker set.
type WaypointFlag uint8

const (
	// WaypointEvasion marks a node inserted to evade an obstacle.
	WaypointEvasion WaypointFlag = iota
	// WaypointManeuver marks an intentional direction reversal.
	WaypointManeuver
	// WaypointMoveBackwards asks the entity to reach the node in reverse.
	WaypointMoveBackwards
	// WaypointLocalRoute marks nodes produced by the local router.
	WaypointLocalRoute
	// WaypointPortal marks a node placed on a portal between areas.
	WaypointPortal
)

var waypointFlagNames = [...]string{"evasion", "maneuver", "backwards", "local_route", "portal"}

func (f WaypointFlag) String() string {
	if int(f) < len(waypointFlagNames) {
		return waypointFlagNames[f]
	}
	return "unknown"
}

type WaypointFlags = common.FlagSet[WaypointFlag]

// Waypoint is one node of a path.
type Waypoint struct {
	Position cp.Vector
	// Direction is the desired heading at the node; zero means unspecified.
	Direction cp.Vector
	Area      AreaConfiguration
	// SpeedLimit caps the speed on the segment ending at this node; zero
	// means the entity's own limit applies.
	SpeedLimit float64
	Flags      WaypointFlags
}

func NewWaypoint(pos cp.Vector, area AreaConfiguration) Waypoint {
	return Waypoint{Position: pos, Area: area}
}

// WithFlags returns a copy with the given markers raised.
func (w Waypoint) WithFlags(flags ...WaypointFlag) Waypoint {
	for _, f := range flags {
		w.Flags.Set(f)
	}
	return w
}

func (w Waypoint) HasDirection() bool {
	return w.Direction.LengthSq() > common.Epsilon
}

// AllowsReversal reports whether a direction reversal at this node is
// intentional.
func (w Waypoint) AllowsReversal() bool {
	return w.Flags.HasAny(WaypointManeuver, WaypointMoveBackwards)
}

func (w Waypoint) Write(wr *wire.Writer) {
	wr.Vector(w.Position)
	wr.Vector(w.Direction)
	w.Area.Write(wr)
	wr.Float64(w.SpeedLimit)
	wr.Uint32(w.Flags.Bits())
}

func (w *Waypoint) Read(r *wire.Reader) {
	w.Position = r.Vector()
	w.Direction = r.Vector()
	w.Area.Read(r)
	w.SpeedLimit = r.Float64()
	w.Flags = common.FlagSetFromBits[WaypointFlag](r.Uint32())
}
