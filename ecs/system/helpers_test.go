package system

import (
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/jakecoffman/cp"
	"github.com/milk9111/navcore/ecs"
	"github.com/milk9111/navcore/ecs/component"
	"github.com/stretchr/testify/require"
)

var walker = component.MovementParameters{
	MaxForwardSpeed:  2,
	MaxBackwardSpeed: 1,
	MaxAcceleration:  1,
	MaxDeceleration:  2,
	MaxTurningRate:   math.Pi,
	Radius:           0.5,
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func area(id uint32) component.AreaConfiguration {
	return component.NewAreaConfiguration(1, id)
}

func wp(x, y float64, areaID uint32) component.Waypoint {
	return component.NewWaypoint(cp.Vector{X: x, Y: y}, area(areaID))
}

func res(t *testing.T, begin, end float64, reserver component.EntityID) component.Reservation {
	t.Helper()
	r, err := component.NewReservation(begin, end, reserver)
	require.NoError(t, err)
	return r
}

// spawnAgent creates an entity with a transform, motion and navigation
// component. With nodes it also gets a running path through them.
func spawnAgent(t *testing.T, w *ecs.World, pos cp.Vector, nodes ...component.Waypoint) (ecs.Entity, *component.NavigationComponent) {
	t.Helper()
	e := w.CreateEntity()
	require.NoError(t, ecs.Add(w, e, component.TransformComponent.Kind(), &component.Transform{Position: pos}))
	require.NoError(t, ecs.Add(w, e, component.MotionComponent.Kind(), &component.Motion{}))
	nav := component.NewNavigationComponent(e.Ref(), walker)
	if len(nodes) > 0 {
		nav.Path().AddNodes(nodes...)
		require.NoError(t, nav.Path().FinishConstruction())
	}
	require.NoError(t, ecs.Add(w, e, component.NavComponent.Kind(), nav))
	return e, nav
}

func transformOf(t *testing.T, w *ecs.World, e ecs.Entity) *component.Transform {
	t.Helper()
	tr, ok := ecs.Get(w, e, component.TransformComponent.Kind())
	require.True(t, ok)
	return tr
}

func motionOf(t *testing.T, w *ecs.World, e ecs.Entity) *component.Motion {
	t.Helper()
	m, ok := ecs.Get(w, e, component.MotionComponent.Kind())
	require.True(t, ok)
	return m
}
