package system

import (
	"github.com/jakecoffman/cp"
	"github.com/milk9111/navcore/ecs"
	"github.com/milk9111/navcore/ecs/component"
)

// PhysicsSyncSystem mirrors navigating entities and obstacles into the
// Chipmunk space after steering, so the next tick's collision queries see
// the poses just written.
type PhysicsSyncSystem struct{}

func NewPhysicsSyncSystem() *PhysicsSyncSystem {
	return &PhysicsSyncSystem{}
}

func (s *PhysicsSyncSystem) Update(w *ecs.World) {
	if s == nil || w == nil {
		return
	}
	pw := w.PhysicsWorld()
	if pw == nil {
		return
	}

	ecs.ForEach3(w, component.NavComponent.Kind(), component.TransformComponent.Kind(), component.MotionComponent.Kind(),
		func(e ecs.Entity, nav *component.NavigationComponent, tr *component.Transform, mo *component.Motion) {
			// A seated driver is covered by its vehicle's proxy.
			if nav.IsDriver() {
				if _, ok := w.Resolve(nav.Partner()); ok {
					pw.RemoveBody(e)
					return
				}
			}
			pw.EnsureBody(e, tr.Position, nav.Movement.Radius)
			pw.SyncBody(e, tr.Position, mo.Velocity, tr.Yaw)
		})

	ecs.ForEach2(w, component.ObstacleComponent.Kind(), component.TransformComponent.Kind(),
		func(e ecs.Entity, ob *component.Obstacle, tr *component.Transform) {
			pw.EnsureBody(e, tr.Position, ob.Radius)
			pw.SyncBody(e, tr.Position, cp.Vector{}, tr.Yaw)
		})

	pw.Step(w.DeltaTime())
}
