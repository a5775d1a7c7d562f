package entity

import (
	"fmt"
	"strings"

	"github.com/jakecoffman/cp"
	"github.com/milk9111/navcore/ecs/component"
	"github.com/milk9111/navcore/levels"
)

const defaultGoalRadius = 0.5

// GoalFromSpec builds the goal a spawn starts with. Named targets resolve
// through refs, the spawns created so far keyed by name.
func GoalFromSpec(spec levels.GoalSpec, refs map[string]component.EntityID) (component.NavigationGoal, error) {
	radius := spec.Radius
	if radius <= 0 {
		radius = defaultGoalRadius
	}
	points := func() ([]cp.Vector, error) {
		if len(spec.Positions) == 0 {
			return nil, fmt.Errorf("goal %s: no positions", spec.Kind)
		}
		out := make([]cp.Vector, len(spec.Positions))
		for i, p := range spec.Positions {
			out[i] = p.V()
		}
		return out, nil
	}
	target := func(name string) (component.EntityID, error) {
		id, ok := refs[name]
		if !ok {
			return component.NoEntity, fmt.Errorf("goal %s: unknown target %q", spec.Kind, name)
		}
		return id, nil
	}

	switch strings.ToLower(spec.Kind) {
	case "point":
		pts, err := points()
		if err != nil {
			return nil, err
		}
		return component.NewReachSinglePointGoal(pts[0], radius), nil
	case "points":
		pts, err := points()
		if err != nil {
			return nil, err
		}
		configs := make([]component.GoalConfiguration, len(pts))
		for i, p := range pts {
			configs[i] = component.GoalConfiguration{Position: p, Radius: radius}
		}
		return component.NewReachOneOfPointsGoal(configs...), nil
	case "consecutive":
		pts, err := points()
		if err != nil {
			return nil, err
		}
		return component.NewReachConsecutivePointsGoal(radius, pts...), nil
	case "object":
		id, err := target(spec.Target)
		if err != nil {
			return nil, err
		}
		return component.NewReachObjectGoal(id, radius, spec.ReplanDistance), nil
	case "line_of_sight":
		id, err := target(spec.Target)
		if err != nil {
			return nil, err
		}
		if spec.Range <= 0 {
			return nil, fmt.Errorf("goal %s: range must be positive", spec.Kind)
		}
		return component.NewLineOfSightGoal(id, spec.Range, spec.Avoid), nil
	case "avoid_threats":
		if len(spec.Threats) == 0 {
			return nil, fmt.Errorf("goal %s: no threats", spec.Kind)
		}
		if spec.SafeDistance <= 0 {
			return nil, fmt.Errorf("goal %s: safe_distance must be positive", spec.Kind)
		}
		threats := make([]component.EntityID, 0, len(spec.Threats))
		for _, name := range spec.Threats {
			id, err := target(name)
			if err != nil {
				return nil, err
			}
			threats = append(threats, id)
		}
		return component.NewAvoidThreatsGoal(spec.SafeDistance, threats...), nil
	}
	return nil, fmt.Errorf("goal: unknown kind %q", spec.Kind)
}
