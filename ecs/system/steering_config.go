package system

import (
	"fmt"
	"reflect"

	"github.com/milk9111/navcore/common"
	"github.com/milk9111/navcore/prefabs"
)

// SteeringConfig tunes the steering driver. It is loaded from
// prefabs/steering.yaml and may be swapped at run time.
type SteeringConfig struct {
	// MinLookaheadTime is the travel time the speed profile covers at least.
	MinLookaheadTime float64 `yaml:"min_lookahead_time"`
	// MaxLookaheadNodes caps the profile length.
	MaxLookaheadNodes int `yaml:"max_lookahead_nodes"`
	// ReservationSlack widens every reserved window on both sides.
	ReservationSlack float64 `yaml:"reservation_slack"`
	// StopHoldTime extends the window of the area the profile stops in.
	StopHoldTime     float64 `yaml:"stop_hold_time"`
	CollisionHorizon float64 `yaml:"collision_horizon"`
	CollisionMargin  float64 `yaml:"collision_margin"`
	// StopBuffer is the gap kept to an obstacle when stopping for it.
	StopBuffer float64 `yaml:"stop_buffer"`
	// HaltJitter randomizes the deceleration of entities halting without
	// a path, as a fraction of their max deceleration.
	HaltJitter float64 `yaml:"halt_jitter"`
	// AlternativeAfter is how long an entity waits on a missed reservation
	// before it asks for an alternative path.
	AlternativeAfter float64 `yaml:"alternative_after"`
	// EvadeMaxObstacleSpeed is the fastest obstacle worth a detour; faster
	// ones are braked for.
	EvadeMaxObstacleSpeed float64 `yaml:"evade_max_obstacle_speed"`
	ArriveTolerance       float64 `yaml:"arrive_tolerance"`
	DrawCollisions        bool    `yaml:"draw_collisions"`
}

func DefaultSteeringConfig() SteeringConfig {
	return SteeringConfig{
		MinLookaheadTime:      2,
		MaxLookaheadNodes:     16,
		ReservationSlack:      0.25,
		StopHoldTime:          2,
		CollisionHorizon:      4,
		CollisionMargin:       0.1,
		StopBuffer:            0.2,
		HaltJitter:            0.25,
		AlternativeAfter:      3,
		EvadeMaxObstacleSpeed: 0.2,
		ArriveTolerance:       0.05,
	}
}

// Validate rejects negative or non-finite tuning values.
func (c SteeringConfig) Validate() error {
	v := reflect.ValueOf(c)
	for i := 0; i < v.NumField(); i++ {
		f := v.Field(i)
		if f.Kind() != reflect.Float64 {
			continue
		}
		if x := f.Float(); !common.IsFinite(x) || x < 0 {
			return fmt.Errorf("steering: %s must be a finite non-negative value, got %v", v.Type().Field(i).Name, x)
		}
	}
	if c.MaxLookaheadNodes <= 0 {
		return fmt.Errorf("steering: max_lookahead_nodes must be positive, got %d", c.MaxLookaheadNodes)
	}
	if c.HaltJitter > 1 {
		return fmt.Errorf("steering: halt_jitter must not exceed 1, got %v", c.HaltJitter)
	}
	return nil
}

// SteeringConfigFromSpec decodes the steering section of spec over the
// defaults.
func SteeringConfigFromSpec(spec *prefabs.SteeringSpec) (SteeringConfig, error) {
	cfg := DefaultSteeringConfig()
	if spec == nil {
		return cfg, nil
	}
	if err := prefabs.DecodeInto(spec.Steering, &cfg); err != nil {
		return DefaultSteeringConfig(), fmt.Errorf("steering: decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return DefaultSteeringConfig(), err
	}
	return cfg, nil
}

// LoadSteeringConfig reads prefabs/steering.yaml.
func LoadSteeringConfig() (SteeringConfig, error) {
	spec, err := prefabs.LoadSteeringSpec()
	if err != nil {
		return DefaultSteeringConfig(), err
	}
	return SteeringConfigFromSpec(spec)
}
