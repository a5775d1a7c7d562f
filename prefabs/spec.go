package prefabs

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"

	"golang.org/x/image/colornames"
	"gopkg.in/yaml.v3"
)

const (
	AgentsFile   = "agents.yaml"
	SteeringFile = "steering.yaml"
)

func LoadSpec[T any](filename string) (T, error) {
	var zero T
	data, err := Load(filename)
	if err != nil {
		return zero, fmt.Errorf("prefabs: load %s: %w", filename, err)
	}

	var spec T
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return zero, fmt.Errorf("prefabs: unmarshal %s: %w", filename, err)
	}

	return spec, nil
}

// AgentsSpec is the archetype catalogue of agents.yaml.
type AgentsSpec struct {
	Archetypes map[string]AgentSpec `yaml:"archetypes"`
}

// AgentSpec describes one kind of navigating entity.
type AgentSpec struct {
	Movement MovementSpec `yaml:"movement"`
	// Measures lists avoidance reactions: stop, slow_down, evade_sideways,
	// local_router.
	Measures []string `yaml:"measures"`
	// Flags lists movement options: allow_backwards, ignore_reservations,
	// local_steering.
	Flags    []string `yaml:"flags"`
	Category string   `yaml:"category"`
	// Avoids lists the categories this archetype gives way to; empty means
	// every category.
	Avoids     []string  `yaml:"avoids"`
	Priority   int32     `yaml:"priority"`
	UpdateRate float64   `yaml:"update_rate"`
	Color      YAMLColor `yaml:"color"`
}

type MovementSpec struct {
	MaxForwardSpeed  float64 `yaml:"max_forward_speed"`
	MaxBackwardSpeed float64 `yaml:"max_backward_speed"`
	MaxAcceleration  float64 `yaml:"max_acceleration"`
	MaxDeceleration  float64 `yaml:"max_deceleration"`
	// MaxTurningRate is in degrees per second.
	MaxTurningRate float64 `yaml:"max_turning_rate"`
	TurningRadius  float64 `yaml:"turning_radius"`
	Radius         float64 `yaml:"radius"`
}

func LoadAgentsSpec() (*AgentsSpec, error) {
	spec, err := LoadSpec[AgentsSpec](AgentsFile)
	if err != nil {
		return nil, err
	}
	if len(spec.Archetypes) == 0 {
		return nil, fmt.Errorf("prefabs: %s defines no archetypes", AgentsFile)
	}
	return &spec, nil
}

// SteeringSpec is steering.yaml. Steering is decoded onto the steering
// defaults by the consumer so omitted keys keep their default values.
type SteeringSpec struct {
	Steering     map[string]any  `yaml:"steering"`
	Reservations ReservationSpec `yaml:"reservations"`
}

// ReservationSpec selects the reservation conflict policy.
type ReservationSpec struct {
	// Resolver is fcfs, priority or script.
	Resolver string `yaml:"resolver"`
	// Script names a file under prefabs/scripts for the script resolver.
	Script string `yaml:"script"`
}

func LoadSteeringSpec() (*SteeringSpec, error) {
	spec, err := LoadSpec[SteeringSpec](SteeringFile)
	if err != nil {
		return nil, err
	}
	return &spec, nil
}

// YAMLColor accepts #rrggbb, #rrggbbaa or an SVG color name.
type YAMLColor struct {
	color.Color
}

func (c *YAMLColor) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("color must be a string")
	}

	if named, ok := colornames.Map[strings.ToLower(value.Value)]; ok {
		c.Color = named
		return nil
	}

	s := strings.TrimPrefix(value.Value, "#")

	if len(s) != 6 && len(s) != 8 {
		return fmt.Errorf("invalid color format: %s", value.Value)
	}

	parse := func(start int) (uint8, error) {
		v, err := strconv.ParseUint(s[start:start+2], 16, 8)
		return uint8(v), err
	}

	r, err := parse(0)
	if err != nil {
		return err
	}
	g, err := parse(2)
	if err != nil {
		return err
	}
	b, err := parse(4)
	if err != nil {
		return err
	}

	a := uint8(255)
	if len(s) == 8 {
		a, err = parse(6)
		if err != nil {
			return err
		}
	}

	c.Color = color.NRGBA{R: r, G: g, B: b, A: a}
	return nil
}

// Or returns c, or fallback when c was never set.
func (c YAMLColor) Or(fallback color.Color) color.Color {
	if c.Color == nil {
		return fallback
	}
	return c.Color
}
