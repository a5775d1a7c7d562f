package system

import (
	"errors"
	"log/slog"

	"github.com/milk9111/navcore/common"
	"github.com/milk9111/navcore/ecs"
	"github.com/milk9111/navcore/ecs/component"
)

const (
	defaultRetryInterval = 1.0
	defaultReplanLimit   = 3
	// alternativeHorizon is how far ahead reservations held by others are
	// avoided when looking for an alternative path.
	alternativeHorizon = 5.0
)

// NavigationSystem watches goals and keeps a path under every entity that
// has one. Searches are synchronous and run on the tick.
type NavigationSystem struct {
	searcher     PathSearcher
	reservations *ReservationSystem
	logger       *slog.Logger

	// RetryInterval is the wait after a failed search before the next one.
	RetryInterval float64
	// ReplanLimit bounds searches for a goal whose paths keep ending short
	// of it.
	ReplanLimit int

	retryAt map[ecs.Entity]float64
	replans map[ecs.Entity]int
}

func NewNavigationSystem(searcher PathSearcher, reservations *ReservationSystem, opts ...Option) *NavigationSystem {
	o := resolveOptions(opts)
	return &NavigationSystem{
		searcher:      searcher,
		reservations:  reservations,
		logger:        o.logger,
		RetryInterval: defaultRetryInterval,
		ReplanLimit:   defaultReplanLimit,
		retryAt:       make(map[ecs.Entity]float64),
		replans:       make(map[ecs.Entity]int),
	}
}

func (s *NavigationSystem) Update(w *ecs.World) {
	if s == nil || w == nil {
		return
	}
	for _, evt := range w.Events().Pending() {
		if data, ok := evt.Data.(ecs.EntityDestroyedEvent); ok {
			delete(s.retryAt, data.Entity)
			delete(s.replans, data.Entity)
		}
	}

	ecs.ForEach2(w, component.NavComponent.Kind(), component.TransformComponent.Kind(),
		func(e ecs.Entity, nav *component.NavigationComponent, tr *component.Transform) {
			if !nav.Active || !nav.HasGoal() {
				return
			}
			if nav.IsDriver() && s.handOver(w, e, nav) {
				return
			}
			s.monitor(w, e, nav, tr)
		})
}

// handOver moves a seated driver's goal to its vehicle.
func (s *NavigationSystem) handOver(w *ecs.World, e ecs.Entity, driver *component.NavigationComponent) bool {
	ve, vehicle, ok := w.RelevantNavigation(e)
	if !ok || ve == e {
		return false
	}
	vehicle.SetGoal(driver.Goal().Clone())
	driver.ClearGoal()
	delete(s.retryAt, ve)
	delete(s.replans, ve)
	s.logger.Debug("navigation: goal handed to vehicle", slog.String("driver", e.String()), slog.String("vehicle", ve.String()))
	return true
}

func (s *NavigationSystem) monitor(w *ecs.World, e ecs.Entity, nav *component.NavigationComponent, tr *component.Transform) {
	goal := nav.Goal()
	path := nav.Path()

	switch path.State() {
	case component.PathFinished:
		if path.RestartSearchWhenFinished() {
			s.search(w, e, nav, tr, false)
			return
		}
		state := goal.EvaluateState(w, nav.Owner)
		if state != component.GoalRunning {
			s.finish(w, e, nav, state)
			return
		}
		s.replans[e]++
		if s.replans[e] > s.ReplanLimit {
			s.finish(w, e, nav, component.GoalFailure)
			return
		}
		s.search(w, e, nav, tr, false)

	case component.PathUnderConstruction:
		if nav.Flags.Has(component.MovementLocalSteering) {
			if state := goal.EvaluateStateWhileRunning(w, nav.Owner); state == component.GoalSuccess {
				s.finish(w, e, nav, state)
				return
			}
		}
		if at, ok := s.retryAt[e]; ok && w.Time() < at {
			return
		}
		s.search(w, e, nav, tr, false)

	case component.PathNeedsAdaptation:
		s.search(w, e, nav, tr, false)

	case component.PathTryAlternative:
		s.search(w, e, nav, tr, true)

	default:
		if state := goal.EvaluateStateWhileRunning(w, nav.Owner); state != component.GoalRunning {
			s.finish(w, e, nav, state)
			return
		}
		if goal.CheckForChangedGoalSituation(w) {
			if err := path.RequestAdaptation(); err != nil {
				s.logger.Debug("navigation: adaptation request", slog.String("entity", e.String()), slog.Any("error", err))
				return
			}
			s.search(w, e, nav, tr, false)
		}
	}
}

// search replaces the path of nav with a fresh one. A failed search leaves
// a running path in place and schedules a retry.
func (s *NavigationSystem) search(w *ecs.World, e ecs.Entity, nav *component.NavigationComponent, tr *component.Transform, alternative bool) {
	if s.searcher == nil {
		return
	}
	req := PathRequest{
		Entity:  nav.Owner,
		Start:   tr.Position,
		Maps:    nav.Maps,
		Goal:    nav.Goal(),
		Context: w,
		Radius:  nav.Movement.Radius,
	}
	if len(req.Goal.GoalConfigurations()) == 0 {
		// Dynamic goals learn their targets on the first observation.
		req.Goal.CheckForChangedGoalSituation(w)
	}
	if alternative {
		req.AvoidAreas = s.heldByOthers(nav, w.Time())
	}

	p, err := s.searcher.FindPath(req)
	if err == nil && p != nil {
		err = p.FinishConstruction()
	}
	if err != nil || p == nil {
		if err == nil {
			err = ErrNoPath
		}
		s.retryAt[e] = w.Time() + s.RetryInterval
		w.Events().Push(ecs.Event{Type: ecs.EventPathFailed, Data: ecs.PathEvent{Entity: e, Err: err}})
		s.logger.Debug("navigation: search failed", slog.String("entity", e.String()),
			slog.Bool("alternative", alternative), slog.Any("error", err))

		old := nav.Path()
		if old.IsActive() {
			// Keep following the old path; the waiting timer starts over.
			if ferr := old.FinishConstruction(); ferr != nil {
				s.logger.Warn("navigation: resume old path", slog.String("entity", e.String()), slog.Any("error", ferr))
			}
			nav.ClearActiveObstacle()
			return
		}
		if errors.Is(err, ErrNoPath) && !nav.Flags.Has(component.MovementLocalSteering) {
			s.finish(w, e, nav, component.GoalFailure)
		}
		return
	}

	if s.reservations != nil {
		s.reservations.ReleaseAll(nav.Owner)
	}
	nav.SetPath(p)
	nav.ClearActiveObstacle()
	delete(s.retryAt, e)
	w.Events().Push(ecs.Event{Type: ecs.EventPathFound, Data: ecs.PathEvent{Entity: e, Nodes: p.Len()}})
	s.logger.Debug("navigation: path found", slog.String("entity", e.String()), slog.Int("nodes", p.Len()),
		slog.Bool("alternative", alternative))
}

// heldByOthers lists the remaining path areas that other reservers hold in
// the near future.
func (s *NavigationSystem) heldByOthers(nav *component.NavigationComponent, now float64) []component.AreaConfiguration {
	if s.reservations == nil {
		return nil
	}
	window, err := component.NewReservation(now, now+alternativeHorizon, nav.Owner)
	if err != nil {
		return nil
	}
	var out []component.AreaConfiguration
	seen := map[component.AreaConfiguration]struct{}{}
	for _, n := range nav.Path().Remaining() {
		if _, ok := seen[n.Area]; ok {
			continue
		}
		seen[n.Area] = struct{}{}
		if len(s.reservations.Container().conflicts(window, n.Area, common.NewFlagSet(ReservationIgnoreOwn))) > 0 {
			out = append(out, n.Area)
		}
	}
	return out
}

func (s *NavigationSystem) finish(w *ecs.World, e ecs.Entity, nav *component.NavigationComponent, state component.GoalState) {
	if s.reservations != nil {
		s.reservations.ReleaseAll(nav.Owner)
	}
	nav.ClearGoal()
	nav.ClearActiveObstacle()
	delete(s.retryAt, e)
	delete(s.replans, e)
	w.Events().Push(ecs.Event{Type: ecs.EventGoalFinished, Data: ecs.GoalFinishedEvent{Entity: e, State: state}})
	s.logger.Debug("navigation: goal finished", slog.String("entity", e.String()), slog.String("state", state.String()))
}
