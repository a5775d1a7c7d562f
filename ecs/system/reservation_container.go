package system

import (
	"slices"

	"github.com/milk9111/navcore/common"
	"github.com/milk9111/navcore/ecs/component"
)

// ReservationFlag tunes a single reservation query.
type ReservationFlag uint8

const (
	// ReservationIncludeInactive also tests reservations of reservers that
	// are no longer running.
	ReservationIncludeInactive ReservationFlag = iota
	// ReservationIgnoreOwn skips the querying reserver's own entries.
	ReservationIgnoreOwn
)

type ReservationFlags = common.FlagSet[ReservationFlag]

// ReservationContainer holds every reservation, keyed by area. It also
// indexes the areas each reserver holds so releasing a reserver never scans
// the whole container.
type ReservationContainer struct {
	byArea   map[component.AreaConfiguration][]component.Reservation
	byOwner  map[component.EntityID]map[component.AreaConfiguration]struct{}
	resolver ReservationConflictResolver
	isActive func(component.EntityID) bool
	count    int
}

func NewReservationContainer(resolver ReservationConflictResolver) *ReservationContainer {
	if resolver == nil {
		resolver = AllowsNoConflictsResolver{}
	}
	return &ReservationContainer{
		byArea:   make(map[component.AreaConfiguration][]component.Reservation),
		byOwner:  make(map[component.EntityID]map[component.AreaConfiguration]struct{}),
		resolver: resolver,
	}
}

// SetResolver swaps the conflict policy. Nil restores the default.
func (c *ReservationContainer) SetResolver(r ReservationConflictResolver) {
	if r == nil {
		r = AllowsNoConflictsResolver{}
	}
	c.resolver = r
}

func (c *ReservationContainer) Resolver() ReservationConflictResolver {
	return c.resolver
}

// SetActivityCheck installs the test for whether a reserver still runs.
// Reservations of inactive reservers are ignored by queries until purged.
func (c *ReservationContainer) SetActivityCheck(fn func(component.EntityID) bool) {
	c.isActive = fn
}

func (c *ReservationContainer) active(id component.EntityID) bool {
	return c.isActive == nil || c.isActive(id)
}

// Len is the number of stored reservations.
func (c *ReservationContainer) Len() int {
	return c.count
}

// Reservations returns a copy of the reservations held on area.
func (c *ReservationContainer) Reservations(area component.AreaConfiguration) []component.Reservation {
	return slices.Clone(c.byArea[area])
}

// AreasOf lists the areas reserver holds, in stable order.
func (c *ReservationContainer) AreasOf(reserver component.EntityID) []component.AreaConfiguration {
	out := make([]component.AreaConfiguration, 0, len(c.byOwner[reserver]))
	for a := range c.byOwner[reserver] {
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b component.AreaConfiguration) int {
		if a.Less(b) {
			return -1
		}
		if b.Less(a) {
			return 1
		}
		return 0
	})
	return out
}

// conflicts returns the stored reservations on area that intersect r and
// take part in the query.
func (c *ReservationContainer) conflicts(r component.Reservation, area component.AreaConfiguration, flags ReservationFlags) []component.Reservation {
	var out []component.Reservation
	for _, existing := range c.byArea[area] {
		if !existing.Intersects(r) {
			continue
		}
		if existing.Reserver == r.Reserver && flags.Has(ReservationIgnoreOwn) {
			continue
		}
		if existing.Reserver != r.Reserver && !flags.Has(ReservationIncludeInactive) && !c.active(existing.Reserver) {
			continue
		}
		out = append(out, existing)
	}
	return out
}

// CanReservationBeEntered asks the resolver whether r could be inserted on
// area. It never mutates the container. When entry is refused, blocking is
// the first conflicting reservation the resolver would not evict.
func (c *ReservationContainer) CanReservationBeEntered(r component.Reservation, area component.AreaConfiguration, flags ReservationFlags) (allowed bool, blocking component.Reservation, hasBlocking bool) {
	conflicts := c.conflicts(r, area, flags)
	if len(conflicts) == 0 {
		return true, component.Reservation{}, false
	}
	d := c.resolver.Resolve(r, conflicts)
	if d.Admit {
		return true, component.Reservation{}, false
	}
	for _, cf := range conflicts {
		if cf.Reserver != r.Reserver && !slices.Contains(d.Evict, cf) {
			return false, cf, true
		}
	}
	return false, conflicts[0], true
}

// InsertReservation commits r on area when the resolver admits it, evicting
// what the resolver names. Overlapping reservations of the same reserver are
// merged into one.
func (c *ReservationContainer) InsertReservation(r component.Reservation, area component.AreaConfiguration, flags ReservationFlags) (bool, component.Reservation) {
	conflicts := c.conflicts(r, area, flags)
	if len(conflicts) > 0 {
		d := c.resolver.Resolve(r, conflicts)
		if !d.Admit {
			_, blocking, _ := c.CanReservationBeEntered(r, area, flags)
			return false, blocking
		}
		for _, ev := range d.Evict {
			c.removeExact(area, ev)
		}
	}

	list := c.byArea[area]
	merged := r
	kept := list[:0]
	for _, existing := range list {
		if existing.Reserver == r.Reserver && existing.Intersects(merged) {
			merged.Begin = min(merged.Begin, existing.Begin)
			merged.End = max(merged.End, existing.End)
			c.count--
			continue
		}
		kept = append(kept, existing)
	}
	c.byArea[area] = append(kept, merged)
	c.count++
	c.index(r.Reserver, area)
	return true, component.Reservation{}
}

func (c *ReservationContainer) index(reserver component.EntityID, area component.AreaConfiguration) {
	owned := c.byOwner[reserver]
	if owned == nil {
		owned = make(map[component.AreaConfiguration]struct{})
		c.byOwner[reserver] = owned
	}
	owned[area] = struct{}{}
}

func (c *ReservationContainer) unindexIfEmpty(reserver component.EntityID, area component.AreaConfiguration) {
	for _, r := range c.byArea[area] {
		if r.Reserver == reserver {
			return
		}
	}
	if owned := c.byOwner[reserver]; owned != nil {
		delete(owned, area)
		if len(owned) == 0 {
			delete(c.byOwner, reserver)
		}
	}
}

func (c *ReservationContainer) removeExact(area component.AreaConfiguration, r component.Reservation) {
	list := c.byArea[area]
	i := slices.Index(list, r)
	if i < 0 {
		return
	}
	list = slices.Delete(list, i, i+1)
	c.count--
	c.store(area, list)
	c.unindexIfEmpty(r.Reserver, area)
}

func (c *ReservationContainer) store(area component.AreaConfiguration, list []component.Reservation) {
	if len(list) == 0 {
		delete(c.byArea, area)
		return
	}
	c.byArea[area] = list
}

// removeWhere drops the reservations on area for which drop holds and
// returns how many were removed.
func (c *ReservationContainer) removeWhere(area component.AreaConfiguration, drop func(component.Reservation) bool) int {
	list := c.byArea[area]
	n := len(list)
	list = slices.DeleteFunc(list, drop)
	removed := n - len(list)
	c.count -= removed
	c.store(area, list)
	return removed
}

// RemoveReservationsAlongPath releases what reserver holds on the given
// areas, typically the areas of path nodes it has passed.
func (c *ReservationContainer) RemoveReservationsAlongPath(reserver component.EntityID, areas []component.AreaConfiguration) int {
	removed := 0
	for _, area := range areas {
		removed += c.removeWhere(area, func(r component.Reservation) bool { return r.Reserver == reserver })
		c.unindexIfEmpty(reserver, area)
	}
	return removed
}

// RemoveReservationsBefore releases reserver's reservations on area that end
// before t.
func (c *ReservationContainer) RemoveReservationsBefore(reserver component.EntityID, area component.AreaConfiguration, t float64) int {
	removed := c.removeWhere(area, func(r component.Reservation) bool { return r.Reserver == reserver && r.End < t })
	c.unindexIfEmpty(reserver, area)
	return removed
}

// RemoveAllReservations releases everything reserver holds, using the owner
// index.
func (c *ReservationContainer) RemoveAllReservations(reserver component.EntityID) int {
	return c.RemoveReservationsAlongPath(reserver, c.AreasOf(reserver))
}

// ForceRemoveAllReservations scans every area for reserver's reservations.
// It is the fallback for when the owner index is suspected to be out of
// date; the return value counts entries the index did not know about.
func (c *ReservationContainer) ForceRemoveAllReservations(reserver component.EntityID) (removed, missed int) {
	removed = c.RemoveAllReservations(reserver)
	for area := range c.byArea {
		n := c.removeWhere(area, func(r component.Reservation) bool { return r.Reserver == reserver })
		missed += n
	}
	delete(c.byOwner, reserver)
	return removed + missed, missed
}

// PurgeExpired drops reservations that ended before now.
func (c *ReservationContainer) PurgeExpired(now float64) int {
	return c.purge(func(r component.Reservation) bool { return r.End < now })
}

// PurgeInactive drops reservations of reservers that no longer run.
func (c *ReservationContainer) PurgeInactive() int {
	if c.isActive == nil {
		return 0
	}
	return c.purge(func(r component.Reservation) bool { return !c.isActive(r.Reserver) })
}

func (c *ReservationContainer) purge(drop func(component.Reservation) bool) int {
	removed := 0
	touched := make(map[component.EntityID][]component.AreaConfiguration)
	for area, list := range c.byArea {
		for _, r := range list {
			if drop(r) {
				touched[r.Reserver] = append(touched[r.Reserver], area)
			}
		}
		removed += c.removeWhere(area, drop)
	}
	for reserver, areas := range touched {
		for _, area := range areas {
			c.unindexIfEmpty(reserver, area)
		}
	}
	return removed
}

// Clear drops everything.
func (c *ReservationContainer) Clear() {
	clear(c.byArea)
	clear(c.byOwner)
	c.count = 0
}
