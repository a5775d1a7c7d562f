package entity

import (
	"fmt"
	"image/color"

	"github.com/jakecoffman/cp"
	"github.com/milk9111/navcore/ecs"
	"github.com/milk9111/navcore/ecs/component"
	"github.com/milk9111/navcore/prefabs"
	"golang.org/x/image/colornames"
)

// Agent is a spawned navigating entity.
type Agent struct {
	Name      string
	Archetype string
	Entity    ecs.Entity
	Color     color.Color
}

// Ref is the weak reference other entities' goals use.
func (a Agent) Ref() component.EntityID {
	return a.Entity.Ref()
}

// NewAgentAt creates an entity from an archetype standing at pos on map
// mapID. height is the ground height under pos.
func NewAgentAt(w *ecs.World, spec prefabs.AgentSpec, mapID uint32, pos cp.Vector, height float64) (ecs.Entity, *component.NavigationComponent, error) {
	e := w.CreateEntity()
	nav, err := spec.BuildNavigation(e.Ref())
	if err != nil {
		w.DestroyEntity(e)
		return 0, nil, fmt.Errorf("agent: %w", err)
	}
	nav.Maps = component.MapBinding{Primary: mapID}

	if err := ecs.Add(w, e, component.TransformComponent.Kind(), &component.Transform{Position: pos, Height: height}); err != nil {
		return 0, nil, fmt.Errorf("agent: add transform: %w", err)
	}
	if err := ecs.Add(w, e, component.MotionComponent.Kind(), &component.Motion{}); err != nil {
		return 0, nil, fmt.Errorf("agent: add motion: %w", err)
	}
	if err := ecs.Add(w, e, component.NavComponent.Kind(), nav); err != nil {
		return 0, nil, fmt.Errorf("agent: add navigation: %w", err)
	}
	return e, nav, nil
}

// NewObstacleAt creates a disc that agents steer around.
func NewObstacleAt(w *ecs.World, pos cp.Vector, radius float64) (ecs.Entity, error) {
	if radius <= 0 {
		return 0, fmt.Errorf("obstacle: radius must be positive, got %v", radius)
	}
	e := w.CreateEntity()
	if err := ecs.Add(w, e, component.TransformComponent.Kind(), &component.Transform{Position: pos}); err != nil {
		return 0, fmt.Errorf("obstacle: add transform: %w", err)
	}
	if err := ecs.Add(w, e, component.ObstacleComponent.Kind(), &component.Obstacle{Radius: radius}); err != nil {
		return 0, fmt.Errorf("obstacle: add obstacle: %w", err)
	}
	return e, nil
}

func agentColor(spec prefabs.AgentSpec) color.Color {
	return spec.Color.Or(colornames.Lightgray)
}
