package system

import (
	"log/slog"
	"slices"

	"github.com/milk9111/navcore/ecs"
	"github.com/milk9111/navcore/ecs/component"
)

const defaultReservationPurgeInterval = 1.0

// ReservationSystem owns the shared reservation container. Steering inserts
// and releases reservations during its own update; this system only keeps
// the container clean between ticks.
type ReservationSystem struct {
	container *ReservationContainer
	logger    *slog.Logger

	// PurgeInterval is the simulation time between sweeps for expired and
	// inactive reservations.
	PurgeInterval float64
	lastPurge     float64
	bound         *ecs.World
}

func NewReservationSystem(resolver ReservationConflictResolver, opts ...Option) *ReservationSystem {
	o := resolveOptions(opts)
	return &ReservationSystem{
		container:     NewReservationContainer(resolver),
		logger:        o.logger,
		PurgeInterval: defaultReservationPurgeInterval,
	}
}

func (s *ReservationSystem) Container() *ReservationContainer {
	return s.container
}

// Bind points the activity check at w. Update binds automatically; callers
// that query before the first tick bind explicitly.
func (s *ReservationSystem) Bind(w *ecs.World) {
	if s == nil || w == nil || s.bound == w {
		return
	}
	s.bound = w
	s.container.SetActivityCheck(func(id component.EntityID) bool {
		nav, ok := w.NavigationByRef(id)
		return ok && nav.IsRunning()
	})
}

func (s *ReservationSystem) Update(w *ecs.World) {
	if s == nil || w == nil {
		return
	}
	s.Bind(w)

	for _, evt := range w.Events().Pending() {
		if evt.Type != ecs.EventEntityDestroyed {
			continue
		}
		data, ok := evt.Data.(ecs.EntityDestroyedEvent)
		if !ok {
			continue
		}
		removed, missed := s.container.ForceRemoveAllReservations(data.Entity.Ref())
		if missed > 0 {
			s.logger.Warn("reservation: owner index missed reservations",
				slog.String("entity", data.Entity.String()), slog.Int("missed", missed))
		} else if removed > 0 {
			s.logger.Debug("reservation: released destroyed entity",
				slog.String("entity", data.Entity.String()), slog.Int("removed", removed))
		}
	}

	now := w.Time()
	if now-s.lastPurge < s.PurgeInterval {
		return
	}
	s.lastPurge = now
	expired := s.container.PurgeExpired(now)
	inactive := s.container.PurgeInactive()
	if expired+inactive > 0 {
		s.logger.Debug("reservation: purged",
			slog.Int("expired", expired), slog.Int("inactive", inactive), slog.Int("left", s.container.Len()))
	}
}

// ReleasePassed drops the reservations reserver held on the areas of the
// nodes it has already passed. Areas the path enters again inside its
// reservation window are kept.
func (s *ReservationSystem) ReleasePassed(reserver component.EntityID, path *component.Path) int {
	if s == nil || path == nil {
		return 0
	}
	cur := path.CurrentNodeIndex()
	if cur == 0 {
		return 0
	}
	nodes := path.Nodes()
	_, end := path.ReservationWindow()
	ahead := nodes[min(cur, len(nodes)):min(max(end, cur+1), len(nodes))]
	areas := make([]component.AreaConfiguration, 0, cur)
	for _, n := range nodes[:min(cur, len(nodes))] {
		if slices.ContainsFunc(ahead, func(a component.Waypoint) bool { return a.Area == n.Area }) {
			continue
		}
		if !slices.Contains(areas, n.Area) {
			areas = append(areas, n.Area)
		}
	}
	return s.container.RemoveReservationsAlongPath(reserver, areas)
}

// ReleaseAll drops everything reserver holds. A mismatch between the owner
// index and the container is logged and repaired.
func (s *ReservationSystem) ReleaseAll(reserver component.EntityID) int {
	if s == nil {
		return 0
	}
	removed, missed := s.container.ForceRemoveAllReservations(reserver)
	if missed > 0 {
		s.logger.Warn("reservation: owner index missed reservations",
			slog.String("entity", reserver.String()), slog.Int("missed", missed))
	}
	return removed
}
