package entity

import (
	"fmt"

	"github.com/milk9111/navcore/ecs"
	"github.com/milk9111/navcore/ecs/component"
	"github.com/milk9111/navcore/levels"
	"github.com/milk9111/navcore/navmap"
	"github.com/milk9111/navcore/prefabs"
)

// LoadLevelToWorld spawns the obstacles and agents of lvl. Goals are
// attached after every spawn exists so they can name each other, and
// drivers are seated last.
func LoadLevelToWorld(world *ecs.World, atlas *navmap.Atlas, lvl *levels.Level, agents *prefabs.AgentsSpec) ([]Agent, []ecs.Entity, error) {
	if lvl == nil || len(lvl.Maps) == 0 {
		return nil, nil, fmt.Errorf("level: nothing to load")
	}
	if agents == nil {
		return nil, nil, fmt.Errorf("level %s: no agent archetypes", lvl.Name)
	}
	defaultMap := lvl.Maps[0].ID

	obstacles := make([]ecs.Entity, 0, len(lvl.Obstacles))
	for i, o := range lvl.Obstacles {
		e, err := NewObstacleAt(world, o.Position.V(), o.Radius)
		if err != nil {
			return nil, nil, fmt.Errorf("level %s: obstacle %d: %w", lvl.Name, i, err)
		}
		obstacles = append(obstacles, e)
	}

	spawned := make([]Agent, 0, len(lvl.Spawns))
	navs := make(map[string]*component.NavigationComponent, len(lvl.Spawns))
	refs := make(map[string]component.EntityID, len(lvl.Spawns))
	for _, s := range lvl.Spawns {
		if s.Name == "" {
			return nil, nil, fmt.Errorf("level %s: spawn without a name", lvl.Name)
		}
		if _, dup := refs[s.Name]; dup {
			return nil, nil, fmt.Errorf("level %s: duplicate spawn %q", lvl.Name, s.Name)
		}
		spec, err := agents.Archetype(s.Archetype)
		if err != nil {
			return nil, nil, fmt.Errorf("level %s: spawn %s: %w", lvl.Name, s.Name, err)
		}
		mapID := s.Map
		if mapID == 0 {
			mapID = defaultMap
		}
		if _, ok := atlas.Map(mapID); !ok {
			return nil, nil, fmt.Errorf("level %s: spawn %s: unknown map %d", lvl.Name, s.Name, mapID)
		}
		pos := s.Position.V()
		e, nav, err := NewAgentAt(world, spec, mapID, pos, atlas.GroundHeight(mapID, pos))
		if err != nil {
			return nil, nil, fmt.Errorf("level %s: spawn %s: %w", lvl.Name, s.Name, err)
		}
		if s.Priority != 0 {
			nav.Priority = int32(s.Priority)
		}
		spawned = append(spawned, Agent{Name: s.Name, Archetype: s.Archetype, Entity: e, Color: agentColor(spec)})
		navs[s.Name] = nav
		refs[s.Name] = e.Ref()
	}

	for _, s := range lvl.Spawns {
		if s.Goal == nil {
			continue
		}
		goal, err := GoalFromSpec(*s.Goal, refs)
		if err != nil {
			return nil, nil, fmt.Errorf("level %s: spawn %s: %w", lvl.Name, s.Name, err)
		}
		navs[s.Name].SetGoal(goal)
	}

	for _, s := range lvl.Spawns {
		if s.Vehicle == "" {
			continue
		}
		vehicle, ok := navs[s.Vehicle]
		if !ok {
			return nil, nil, fmt.Errorf("level %s: spawn %s: unknown vehicle %q", lvl.Name, s.Name, s.Vehicle)
		}
		if err := component.LinkDriverAndVehicle(navs[s.Name], vehicle); err != nil {
			return nil, nil, fmt.Errorf("level %s: spawn %s: %w", lvl.Name, s.Name, err)
		}
	}

	return spawned, obstacles, nil
}
