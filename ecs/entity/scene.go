package entity

import (
	"fmt"
	"log/slog"

	"github.com/milk9111/navcore/ecs"
	"github.com/milk9111/navcore/ecs/system"
	"github.com/milk9111/navcore/levels"
	"github.com/milk9111/navcore/navmap"
	"github.com/milk9111/navcore/prefabs"
)

// Scene is a level loaded into a world with the navigation systems wired
// in tick order: reservations, navigation, steering, physics sync, report.
type Scene struct {
	Level     *levels.Level
	Atlas     *navmap.Atlas
	World     *ecs.World
	Agents    []Agent
	Obstacles []ecs.Entity

	Reservations *system.ReservationSystem
	Navigation   *system.NavigationSystem
	Steering     *system.SteeringSystem
	Report       *ReportSystem

	agents   *prefabs.AgentsSpec
	steering *prefabs.SteeringSpec
	logger   *slog.Logger
}

type sceneOptions struct {
	logger   *slog.Logger
	agents   *prefabs.AgentsSpec
	steering *prefabs.SteeringSpec
	seed     uint64
	hasSeed  bool
}

type SceneOption func(*sceneOptions)

func WithLogger(l *slog.Logger) SceneOption {
	return func(o *sceneOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithAgents replaces prefabs/agents.yaml.
func WithAgents(spec *prefabs.AgentsSpec) SceneOption {
	return func(o *sceneOptions) { o.agents = spec }
}

// WithSteering replaces prefabs/steering.yaml.
func WithSteering(spec *prefabs.SteeringSpec) SceneOption {
	return func(o *sceneOptions) { o.steering = spec }
}

// WithSeed seeds the world's random source.
func WithSeed(seed uint64) SceneOption {
	return func(o *sceneOptions) { o.seed, o.hasSeed = seed, true }
}

// NewScene loads lvl and wires the navigation systems around it.
func NewScene(lvl *levels.Level, opts ...SceneOption) (*Scene, error) {
	o := sceneOptions{logger: slog.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	var err error
	if o.agents == nil {
		if o.agents, err = prefabs.LoadAgentsSpec(); err != nil {
			return nil, fmt.Errorf("scene: %w", err)
		}
	}
	if o.steering == nil {
		if o.steering, err = prefabs.LoadSteeringSpec(); err != nil {
			return nil, fmt.Errorf("scene: %w", err)
		}
	}
	cfg, err := system.SteeringConfigFromSpec(o.steering)
	if err != nil {
		return nil, fmt.Errorf("scene: %w", err)
	}

	atlas, err := navmap.FromLevel(lvl)
	if err != nil {
		return nil, fmt.Errorf("scene: %w", err)
	}

	w := ecs.NewWorld()
	if o.hasSeed {
		w.Seed(o.seed)
	}
	pw := ecs.NewPhysicsWorld()
	atlas.AddStatics(pw)
	w.SetPhysicsWorld(pw)

	resolver, err := system.ResolverFromSpec(o.steering.Reservations, system.NavigationPriority(w), o.logger)
	if err != nil {
		return nil, fmt.Errorf("scene: %w", err)
	}
	logOpt := system.WithLogger(o.logger)
	reservations := system.NewReservationSystem(resolver, logOpt)
	reservations.Bind(w)
	router := navmap.NewGridRouter(atlas, navmap.WithLogger(o.logger))
	planner := system.NewDynamicCollisionLocalPlanner(router, atlas, logOpt)

	s := &Scene{
		Level:        lvl,
		Atlas:        atlas,
		World:        w,
		Reservations: reservations,
		Navigation:   system.NewNavigationSystem(navmap.NewSearcher(atlas, navmap.WithLogger(o.logger)), reservations, logOpt),
		Steering:     system.NewSteeringSystem(cfg, atlas, reservations, planner, logOpt),
		Report:       NewReportSystem(),
		agents:       o.agents,
		steering:     o.steering,
		logger:       o.logger,
	}

	s.Agents, s.Obstacles, err = LoadLevelToWorld(w, atlas, lvl, o.agents)
	if err != nil {
		return nil, fmt.Errorf("scene: %w", err)
	}
	for _, a := range s.Agents {
		s.Report.Track(a)
	}

	w.AddSystem(s.Reservations)
	w.AddSystem(s.Navigation)
	w.AddSystem(s.Steering)
	w.AddSystem(system.NewPhysicsSyncSystem())
	w.AddSystem(s.Report)

	s.logger.Info("scene: loaded",
		slog.String("level", lvl.Name),
		slog.Int("maps", len(atlas.Maps())),
		slog.Int("agents", len(s.Agents)),
		slog.Int("obstacles", len(s.Obstacles)))
	return s, nil
}

// LoadScene reads a level by name and builds its scene.
func LoadScene(name string, opts ...SceneOption) (*Scene, error) {
	lvl, err := levels.Load(name)
	if err != nil {
		return nil, fmt.Errorf("scene: load level %s: %w", name, err)
	}
	return NewScene(lvl, opts...)
}

// Step advances the world n ticks.
func (s *Scene) Step(n int) {
	for range n {
		s.World.Update()
	}
}

// Agent looks up a spawn by name.
func (s *Scene) Agent(name string) (Agent, bool) {
	for _, a := range s.Agents {
		if a.Name == name {
			return a, true
		}
	}
	return Agent{}, false
}

// Done reports whether every goal has finished or the level's duration
// has elapsed.
func (s *Scene) Done() bool {
	if s.Level.Duration > 0 && s.World.Time() >= s.Level.Duration {
		return true
	}
	return s.Report.Done(s.World)
}

// Reload applies an edited prefab or script. A failed reload leaves the
// running configuration untouched.
func (s *Scene) Reload(c prefabs.Change) error {
	switch {
	case c.Kind == prefabs.ChangeScript:
		if s.steering.Reservations.Resolver != "script" || c.Name() != s.steering.Reservations.Script {
			return nil
		}
		return s.reloadResolver(s.steering)
	case c.Name() == prefabs.SteeringFile:
		spec, err := prefabs.LoadSteeringSpec()
		if err != nil {
			return err
		}
		cfg, err := system.SteeringConfigFromSpec(spec)
		if err != nil {
			return err
		}
		if err := s.reloadResolver(spec); err != nil {
			return err
		}
		if err := s.Steering.SetConfig(cfg); err != nil {
			return err
		}
		s.steering = spec
	case c.Name() == prefabs.AgentsFile:
		spec, err := prefabs.LoadAgentsSpec()
		if err != nil {
			return err
		}
		if err := s.reloadAgents(spec); err != nil {
			return err
		}
		s.agents = spec
	default:
		return nil
	}
	s.logger.Info("scene: reloaded", slog.String("file", c.Name()), slog.String("kind", c.Kind.String()))
	return nil
}

func (s *Scene) reloadResolver(spec *prefabs.SteeringSpec) error {
	resolver, err := system.ResolverFromSpec(spec.Reservations, system.NavigationPriority(s.World), s.logger)
	if err != nil {
		return err
	}
	s.Reservations.Container().SetResolver(resolver)
	return nil
}

// reloadAgents rebuilds every agent's movement settings from spec. Goals,
// paths and driver pairs are kept.
func (s *Scene) reloadAgents(spec *prefabs.AgentsSpec) error {
	for _, a := range s.Agents {
		arch, err := spec.Archetype(a.Archetype)
		if err != nil {
			return err
		}
		if _, err := arch.BuildNavigation(a.Ref()); err != nil {
			return fmt.Errorf("archetype %s: %w", a.Archetype, err)
		}
	}
	for i, a := range s.Agents {
		nav, ok := s.World.Navigation(a.Entity)
		if !ok {
			continue
		}
		arch, _ := spec.Archetype(a.Archetype)
		fresh, _ := arch.BuildNavigation(a.Ref())
		nav.Movement = fresh.Movement
		nav.Measures = fresh.Measures
		nav.Flags = fresh.Flags
		nav.Category = fresh.Category
		nav.AvoidMask = fresh.AvoidMask
		nav.UpdateRate = fresh.UpdateRate
		s.Agents[i].Color = agentColor(arch)
	}
	return nil
}
