package system

import (
	"testing"

	"github.com/jakecoffman/cp"
	"github.com/milk9111/navcore/common"
	"github.com/milk9111/navcore/ecs"
	"github.com/milk9111/navcore/ecs/component"
	"github.com/milk9111/navcore/prefabs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	reserverA component.EntityID = 10
	reserverB component.EntityID = 20
	reserverC component.EntityID = 30
)

func TestReservationDefaultResolverBlocksOtherReserver(t *testing.T) {
	c := NewReservationContainer(nil)
	a := res(t, 0, 10, reserverA)
	ok, _ := c.InsertReservation(a, area(1), ReservationFlags{})
	require.True(t, ok)

	b := res(t, 5, 15, reserverB)
	allowed, blocking, has := c.CanReservationBeEntered(b, area(1), ReservationFlags{})
	assert.False(t, allowed)
	require.True(t, has)
	assert.Equal(t, a, blocking)

	ok, blocking = c.InsertReservation(b, area(1), ReservationFlags{})
	assert.False(t, ok)
	assert.Equal(t, a, blocking)
	assert.Equal(t, []component.Reservation{a}, c.Reservations(area(1)), "rejected insert leaves the container untouched")
}

func TestReservationSameReserverAlwaysSucceeds(t *testing.T) {
	c := NewReservationContainer(AllowsNoConflictsResolver{})
	for _, r := range []component.Reservation{
		res(t, 0, 10, reserverA),
		res(t, 5, 15, reserverA),
		res(t, 14, 20, reserverA),
		res(t, 2, 3, reserverA),
	} {
		ok, _ := c.InsertReservation(r, area(1), ReservationFlags{})
		require.True(t, ok, "%s", r)
	}
	assert.Equal(t, []component.Reservation{res(t, 0, 20, reserverA)}, c.Reservations(area(1)))
	assert.Equal(t, 1, c.Len())
}

func TestReservationIntersectionCases(t *testing.T) {
	tests := []struct {
		name    string
		held    component.Reservation
		heldIn  component.AreaConfiguration
		try     component.Reservation
		allowed bool
	}{
		{"disjoint", res(t, 0, 10, reserverA), area(1), res(t, 11, 20, reserverB), true},
		{"touching_endpoints", res(t, 0, 10, reserverA), area(1), res(t, 10, 20, reserverB), false},
		{"contained", res(t, 0, 10, reserverA), area(1), res(t, 2, 3, reserverB), false},
		{"other_area", res(t, 0, 10, reserverA), area(2), res(t, 0, 10, reserverB), true},
		{"same_area_id_other_map", res(t, 0, 10, reserverA), component.NewAreaConfiguration(2, 1), res(t, 0, 10, reserverB), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewReservationContainer(nil)
			ok, _ := c.InsertReservation(tt.held, tt.heldIn, ReservationFlags{})
			require.True(t, ok)
			allowed, _, _ := c.CanReservationBeEntered(tt.try, area(1), ReservationFlags{})
			assert.Equal(t, tt.allowed, allowed)
			assert.Equal(t, tt.try.Intersects(tt.held), tt.held.Intersects(tt.try))
		})
	}
}

func TestReservationInactiveReserversAreSkipped(t *testing.T) {
	c := NewReservationContainer(nil)
	active := map[component.EntityID]bool{reserverA: false, reserverB: true}
	c.SetActivityCheck(func(id component.EntityID) bool { return active[id] })

	_, _ = c.InsertReservation(res(t, 0, 10, reserverA), area(1), ReservationFlags{})
	b := res(t, 5, 15, reserverB)

	allowed, _, _ := c.CanReservationBeEntered(b, area(1), ReservationFlags{})
	assert.True(t, allowed, "stale reservation of an inactive reserver is tolerated")
	allowed, _, _ = c.CanReservationBeEntered(b, area(1), common.NewFlagSet(ReservationIncludeInactive))
	assert.False(t, allowed)

	assert.Equal(t, 1, c.PurgeInactive())
	assert.Empty(t, c.AreasOf(reserverA))
	assert.Zero(t, c.Len())
}

func TestReservationIgnoreOwn(t *testing.T) {
	c := NewReservationContainer(alwaysReject{})
	_, _ = c.InsertReservation(res(t, 0, 10, reserverA), area(1), ReservationFlags{})

	allowed, _, _ := c.CanReservationBeEntered(res(t, 5, 6, reserverA), area(1), ReservationFlags{})
	assert.False(t, allowed)
	allowed, _, _ = c.CanReservationBeEntered(res(t, 5, 6, reserverA), area(1), common.NewFlagSet(ReservationIgnoreOwn))
	assert.True(t, allowed)
}

type alwaysReject struct{}

func (alwaysReject) Resolve(component.Reservation, []component.Reservation) ConflictDecision {
	return ConflictDecision{}
}

func TestPriorityResolverEvictsLowerPriority(t *testing.T) {
	prio := map[component.EntityID]int32{reserverA: 1, reserverB: 5, reserverC: 5}
	c := NewReservationContainer(NewPriorityConflictResolver(func(id component.EntityID) int32 { return prio[id] }))

	a := res(t, 0, 10, reserverA)
	b := res(t, 5, 15, reserverB)
	_, _ = c.InsertReservation(a, area(1), ReservationFlags{})
	ok, _ := c.InsertReservation(b, area(1), ReservationFlags{})
	require.True(t, ok)
	assert.Equal(t, []component.Reservation{b}, c.Reservations(area(1)))
	assert.Empty(t, c.AreasOf(reserverA), "evicted reserver loses its index entry")

	ok, blocking := c.InsertReservation(res(t, 0, 20, reserverC), area(1), ReservationFlags{})
	assert.False(t, ok, "equal priority keeps the existing reservation")
	assert.Equal(t, b, blocking)
}

func TestReservationRemoval(t *testing.T) {
	c := NewReservationContainer(nil)
	for i := uint32(1); i <= 3; i++ {
		_, _ = c.InsertReservation(res(t, 0, 10, reserverA), area(i), ReservationFlags{})
	}
	_, _ = c.InsertReservation(res(t, 0, 10, reserverB), area(4), ReservationFlags{})
	require.Equal(t, []component.AreaConfiguration{area(1), area(2), area(3)}, c.AreasOf(reserverA))

	assert.Equal(t, 2, c.RemoveReservationsAlongPath(reserverA, []component.AreaConfiguration{area(1), area(2), area(4)}))
	assert.Equal(t, []component.AreaConfiguration{area(3)}, c.AreasOf(reserverA))
	assert.Len(t, c.Reservations(area(4)), 1, "other reservers are untouched")

	assert.Equal(t, 1, c.RemoveAllReservations(reserverA))
	assert.Equal(t, 1, c.Len())
}

func TestReservationForceRemoveRepairsIndex(t *testing.T) {
	c := NewReservationContainer(nil)
	_, _ = c.InsertReservation(res(t, 0, 10, reserverA), area(1), ReservationFlags{})
	_, _ = c.InsertReservation(res(t, 0, 10, reserverA), area(2), ReservationFlags{})
	delete(c.byOwner[reserverA], area(2))

	assert.Equal(t, 1, c.RemoveAllReservations(reserverA))
	assert.Equal(t, 1, c.Len(), "fast path misses the unindexed entry")

	_, _ = c.InsertReservation(res(t, 0, 10, reserverA), area(1), ReservationFlags{})
	delete(c.byOwner[reserverA], area(1))
	removed, missed := c.ForceRemoveAllReservations(reserverA)
	assert.Equal(t, 2, removed)
	assert.Equal(t, 2, missed)
	assert.Zero(t, c.Len())
	assert.Empty(t, c.AreasOf(reserverA))
}

func TestReservationPurgeExpired(t *testing.T) {
	c := NewReservationContainer(nil)
	_, _ = c.InsertReservation(res(t, 0, 2, reserverA), area(1), ReservationFlags{})
	_, _ = c.InsertReservation(res(t, 3, 8, reserverB), area(1), ReservationFlags{})
	_, _ = c.InsertReservation(res(t, 1, 3, reserverA), area(2), ReservationFlags{})
	require.Equal(t, 3, c.Len())

	assert.Equal(t, 2, c.PurgeExpired(5))
	assert.Empty(t, c.AreasOf(reserverA))
	assert.Equal(t, []component.Reservation{res(t, 3, 8, reserverB)}, c.Reservations(area(1)))
}

func TestScriptedResolverPriority(t *testing.T) {
	prio := map[component.EntityID]int32{reserverA: 1, reserverB: 5}
	r, err := NewScriptedConflictResolver("reservation_priority.tengo", func(id component.EntityID) int32 { return prio[id] }, quietLogger())
	require.NoError(t, err)

	a := res(t, 0, 10, reserverA)
	d := r.Resolve(res(t, 5, 15, reserverB), []component.Reservation{a})
	assert.True(t, d.Admit)
	assert.Equal(t, []component.Reservation{a}, d.Evict)

	d = r.Resolve(res(t, 5, 15, reserverA), []component.Reservation{res(t, 0, 10, reserverB)})
	assert.False(t, d.Admit)

	d = r.Resolve(res(t, 5, 15, reserverA), []component.Reservation{a})
	assert.True(t, d.Admit, "own reservations never block")
	assert.Empty(t, d.Evict)
}

func TestScriptedResolverShortFirst(t *testing.T) {
	r, err := NewScriptedConflictResolver("scripts/reservation_short_first.tengo", nil, quietLogger())
	require.NoError(t, err)

	c := NewReservationContainer(r)
	long := res(t, 0, 10, reserverA)
	_, _ = c.InsertReservation(long, area(1), ReservationFlags{})
	ok, _ := c.InsertReservation(res(t, 4, 6, reserverB), area(1), ReservationFlags{})
	require.True(t, ok)
	assert.Empty(t, c.AreasOf(reserverA))
	ok, _ = c.InsertReservation(res(t, 3, 5, reserverC), area(1), ReservationFlags{})
	assert.False(t, ok, "a window as long as the holder's does not cut in")
}

func TestScriptedResolverInlineScript(t *testing.T) {
	r, err := compileConflictScript("inline", []byte(`resolve := func(c, cs) { return {admit: true} }`), nil, quietLogger())
	require.NoError(t, err, "a resolve declared by the script itself is enough")

	d := r.Resolve(res(t, 0, 1, reserverA), []component.Reservation{res(t, 0, 1, reserverB)})
	assert.True(t, d.Admit)
	assert.Empty(t, d.Evict)
}

func TestShippedScriptsCompile(t *testing.T) {
	entries, err := prefabs.ScriptsFS.ReadDir("scripts")
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	for _, e := range entries {
		t.Run(e.Name(), func(t *testing.T) {
			_, err := NewScriptedConflictResolver(e.Name(), nil, quietLogger())
			assert.NoError(t, err)
		})
	}
}

func TestScriptedResolverErrors(t *testing.T) {
	_, err := compileConflictScript("missing", []byte(`x := 1`), nil, quietLogger())
	require.Error(t, err)

	_, err = compileConflictScript("syntax", []byte(`resolve := func(`), nil, quietLogger())
	require.Error(t, err)

	_, err = NewScriptedConflictResolver("does_not_exist.tengo", nil, quietLogger())
	require.Error(t, err)

	r, err := compileConflictScript("bad_result", []byte(`resolve := func(c, cs) { return 5 }`), nil, quietLogger())
	require.NoError(t, err)
	d := r.Resolve(res(t, 0, 1, reserverA), []component.Reservation{res(t, 0, 1, reserverB)})
	assert.False(t, d.Admit, "falls back to first come, first served")
	d = r.Resolve(res(t, 0, 1, reserverA), []component.Reservation{res(t, 0, 1, reserverA)})
	assert.True(t, d.Admit)

	r, err = compileConflictScript("bad_index", []byte(`resolve := func(c, cs) { return {admit: true, evict: [7]} }`), nil, quietLogger())
	require.NoError(t, err)
	d = r.Resolve(res(t, 0, 1, reserverA), []component.Reservation{res(t, 0, 1, reserverB)})
	assert.False(t, d.Admit)
}

func TestResolverFromSpec(t *testing.T) {
	prio := func(component.EntityID) int32 { return 0 }

	r, err := ResolverFromSpec(prefabs.ReservationSpec{}, prio, quietLogger())
	require.NoError(t, err)
	assert.IsType(t, AllowsNoConflictsResolver{}, r)

	r, err = ResolverFromSpec(prefabs.ReservationSpec{Resolver: "Priority"}, prio, quietLogger())
	require.NoError(t, err)
	assert.IsType(t, PriorityConflictResolver{}, r)

	r, err = ResolverFromSpec(prefabs.ReservationSpec{Resolver: "script", Script: "reservation_priority.tengo"}, prio, quietLogger())
	require.NoError(t, err)
	assert.IsType(t, &ScriptedConflictResolver{}, r)

	_, err = ResolverFromSpec(prefabs.ReservationSpec{Resolver: "script"}, prio, quietLogger())
	assert.Error(t, err)
	_, err = ResolverFromSpec(prefabs.ReservationSpec{Resolver: "lottery"}, prio, quietLogger())
	assert.Error(t, err)
}

func TestNavigationPriority(t *testing.T) {
	w := ecs.NewWorld()
	e, nav := spawnAgent(t, w, cp.Vector{})
	nav.Priority = 7

	prio := NavigationPriority(w)
	assert.Equal(t, int32(7), prio(e.Ref()))
	w.DestroyEntity(e)
	assert.Equal(t, int32(0), prio(e.Ref()))
}

func TestReservationSystemUpdate(t *testing.T) {
	w := ecs.NewWorld()
	w.SetTimeStep(0.5)
	sys := NewReservationSystem(nil, WithLogger(quietLogger()))
	w.AddSystem(sys)

	a, _ := spawnAgent(t, w, cp.Vector{}, wp(0, 0, 1), wp(4, 0, 2))
	b, _ := spawnAgent(t, w, cp.Vector{}, wp(0, 0, 1), wp(4, 0, 2))
	idle, idleNav := spawnAgent(t, w, cp.Vector{}, wp(0, 0, 1), wp(4, 0, 2))
	sys.Bind(w)

	c := sys.Container()
	_, _ = c.InsertReservation(res(t, 0, 10, a.Ref()), area(1), ReservationFlags{})
	_, _ = c.InsertReservation(res(t, 0, 10, b.Ref()), area(2), ReservationFlags{})
	_, _ = c.InsertReservation(res(t, 0, 0.2, b.Ref()), area(3), ReservationFlags{})
	_, _ = c.InsertReservation(res(t, 0, 10, idle.Ref()), area(4), ReservationFlags{})

	allowed, _, _ := c.CanReservationBeEntered(res(t, 0, 1, b.Ref()), area(1), ReservationFlags{})
	assert.False(t, allowed)

	require.True(t, w.DestroyEntity(a))
	w.Update()
	assert.Empty(t, c.Reservations(area(1)), "destroyed entities release everything")
	assert.Equal(t, 3, c.Len())

	idleNav.Active = false
	w.Update()
	assert.Equal(t, 3, c.Len(), "no sweep before the purge interval")
	w.Update()
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, []component.Reservation{res(t, 0, 10, b.Ref())}, c.Reservations(area(2)))
}

func TestReservationSystemReleasePassed(t *testing.T) {
	sys := NewReservationSystem(nil, WithLogger(quietLogger()))
	p := component.NewPath(wp(0, 0, 1), wp(2, 0, 1), wp(4, 0, 2), wp(6, 0, 3))
	require.NoError(t, p.FinishConstruction())
	for i := uint32(1); i <= 3; i++ {
		_, _ = sys.Container().InsertReservation(res(t, 0, 10, reserverA), area(i), ReservationFlags{})
	}

	assert.Zero(t, sys.ReleasePassed(reserverA, p))
	require.True(t, p.SelectNextNode())
	assert.Zero(t, sys.ReleasePassed(reserverA, p), "still inside the first area")
	require.True(t, p.SelectNextNode())
	assert.Equal(t, 1, sys.ReleasePassed(reserverA, p))
	assert.Equal(t, []component.AreaConfiguration{area(2), area(3)}, sys.Container().AreasOf(reserverA))

	assert.Equal(t, 2, sys.ReleaseAll(reserverA))
}

func TestReservationSystemReleasePassedKeepsReenteredArea(t *testing.T) {
	sys := NewReservationSystem(nil, WithLogger(quietLogger()))
	// area 1, then 2 and 3, then back into 1
	p := component.NewPath(wp(0, 0, 1), wp(2, 0, 2), wp(4, 0, 3), wp(6, 0, 1))
	require.NoError(t, p.FinishConstruction())
	for i := uint32(1); i <= 3; i++ {
		_, _ = sys.Container().InsertReservation(res(t, 0, 10, reserverA), area(i), ReservationFlags{})
	}
	require.True(t, p.SelectNextNode())
	require.True(t, p.SelectNextNode())
	require.NoError(t, p.SetReservationWindow(2, 4))

	assert.Equal(t, 1, sys.ReleasePassed(reserverA, p))
	assert.Equal(t, []component.AreaConfiguration{area(1), area(3)}, sys.Container().AreasOf(reserverA),
		"area 1 is entered again inside the window")

	require.NoError(t, p.SetReservationWindow(2, 3))
	assert.Equal(t, 1, sys.ReleasePassed(reserverA, p), "released once the window no longer reaches it")
	assert.Equal(t, []component.AreaConfiguration{area(3)}, sys.Container().AreasOf(reserverA))
}
