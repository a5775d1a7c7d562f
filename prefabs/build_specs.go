package prefabs

import (
	"fmt"
	"math"
	"slices"

	"github.com/milk9111/navcore/common"
	"github.com/milk9111/navcore/ecs/component"
	"gopkg.in/yaml.v3"
)

var (
	measureByName = map[string]component.AvoidanceMeasure{
		"stop":           component.AvoidStop,
		"slow_down":      component.AvoidSlowDown,
		"evade_sideways": component.AvoidEvadeSideways,
		"local_router":   component.AvoidLocalRouter,
	}
	flagByName = map[string]component.MovementFlag{
		"allow_backwards":     component.MovementAllowBackwards,
		"ignore_reservations": component.MovementIgnoreReservations,
		"local_steering":      component.MovementLocalSteering,
	}
	categoryByName = map[string]component.CollisionCategory{
		"person":   component.CategoryPerson,
		"vehicle":  component.CategoryVehicle,
		"obstacle": component.CategoryObstacle,
	}
)

// DecodeInto re-encodes a loosely typed YAML value onto out, keeping the
// fields of out that raw does not mention.
func DecodeInto(raw any, out any) error {
	if raw == nil {
		return nil
	}
	b, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, out)
}

// MovementParameters converts the yaml values, turning rate from degrees.
func (m MovementSpec) MovementParameters() component.MovementParameters {
	return component.MovementParameters{
		MaxForwardSpeed:  m.MaxForwardSpeed,
		MaxBackwardSpeed: m.MaxBackwardSpeed,
		MaxAcceleration:  m.MaxAcceleration,
		MaxDeceleration:  m.MaxDeceleration,
		MaxTurningRate:   m.MaxTurningRate * math.Pi / 180,
		TurningRadius:    m.TurningRadius,
		Radius:           m.Radius,
	}
}

// BuildNavigation creates the navigation component of an archetype.
func (a AgentSpec) BuildNavigation(owner component.EntityID) (*component.NavigationComponent, error) {
	movement := a.Movement.MovementParameters()
	if err := movement.Validate(); err != nil {
		return nil, fmt.Errorf("prefabs: movement: %w", err)
	}
	nav := component.NewNavigationComponent(owner, movement)
	nav.Priority = a.Priority
	nav.UpdateRate = a.UpdateRate

	// An explicit empty list disables avoidance; an omitted one keeps the defaults.
	if a.Measures != nil {
		measures, err := parseNames(a.Measures, measureByName, "measure")
		if err != nil {
			return nil, err
		}
		nav.Measures = common.NewFlagSet(measures...)
	}
	flags, err := parseNames(a.Flags, flagByName, "flag")
	if err != nil {
		return nil, err
	}
	nav.Flags = common.NewFlagSet(flags...)

	category := component.CategoryPerson
	if a.Category != "" {
		c, ok := categoryByName[a.Category]
		if !ok {
			return nil, fmt.Errorf("prefabs: unknown category %q", a.Category)
		}
		category = c
	}
	nav.Category = common.NewFlagSet(category)
	avoids, err := parseNames(a.Avoids, categoryByName, "category")
	if err != nil {
		return nil, err
	}
	nav.AvoidMask = common.NewFlagSet(avoids...)
	return nav, nil
}

func parseNames[F any](names []string, table map[string]F, what string) ([]F, error) {
	out := make([]F, 0, len(names))
	for _, n := range names {
		f, ok := table[n]
		if !ok {
			known := make([]string, 0, len(table))
			for k := range table {
				known = append(known, k)
			}
			slices.Sort(known)
			return nil, fmt.Errorf("prefabs: unknown %s %q (want one of %v)", what, n, known)
		}
		out = append(out, f)
	}
	return out, nil
}

// Archetype looks up a named archetype.
func (s *AgentsSpec) Archetype(name string) (AgentSpec, error) {
	a, ok := s.Archetypes[name]
	if !ok {
		return AgentSpec{}, fmt.Errorf("prefabs: unknown archetype %q", name)
	}
	return a, nil
}
