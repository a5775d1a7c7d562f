package system

import (
	"testing"

	"github.com/jakecoffman/cp"
	"github.com/milk9111/navcore/ecs"
	"github.com/milk9111/navcore/ecs/component"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func forward(speed float64) CollisionQuery {
	return CollisionQuery{
		Self:    1,
		Heading: cp.Vector{X: 1},
		Speed:   speed,
		Radius:  0.5,
		Horizon: 10,
	}
}

func TestCollisionAggregatorOrdering(t *testing.T) {
	agg := NewCollisionAggregator()
	agg.Begin(forward(1))

	times := []float64{5, 2, 2}
	dists := []float64{1, 3, 1}
	for i := range times {
		agg.AddCollision(NavigationComponentCollision{
			Entity:        component.EntityID(100 + i),
			TimeToCollide: times[i],
			Distance:      dists[i],
		})
	}
	got, ok := agg.Result()
	require.True(t, ok)
	assert.Equal(t, 2.0, got.TimeToCollide)
	assert.Equal(t, 1.0, got.Distance)
	assert.Equal(t, component.EntityID(102), got.Entity)
}

func TestCollisionAggregatorShouldConsider(t *testing.T) {
	agg := NewCollisionAggregator()
	q := forward(1)
	q.Accept = func(id component.EntityID) bool { return id != 9 }
	agg.Begin(q)

	assert.False(t, agg.ShouldConsiderCollision(1), "self")
	assert.False(t, agg.ShouldConsiderCollision(component.NoEntity))
	assert.True(t, agg.ShouldConsiderCollision(5))
	assert.False(t, agg.ShouldConsiderCollision(5), "already considered this pass")
	assert.False(t, agg.ShouldConsiderCollision(9), "rejected by the avoidance filter")

	agg.Begin(q)
	assert.True(t, agg.ShouldConsiderCollision(5), "Begin resets the set")
	_, ok := agg.Result()
	assert.False(t, ok)
}

func TestCollisionAggregatorConsider(t *testing.T) {
	tests := []struct {
		name     string
		query    CollisionQuery
		cand     CollisionCandidate
		want     bool
		ttc      float64
		distance float64
	}{
		{
			name:     "head_on",
			query:    forward(2),
			cand:     CollisionCandidate{Entity: 2, Position: cp.Vector{X: 10}, Velocity: cp.Vector{X: -2}, Radius: 0.5},
			want:     true,
			ttc:      2.25,
			distance: 9,
		},
		{
			name:  "behind",
			query: forward(2),
			cand:  CollisionCandidate{Entity: 2, Position: cp.Vector{X: -5}, Radius: 0.5},
		},
		{
			name:     "behind_while_reversing",
			query:    forward(-1),
			cand:     CollisionCandidate{Entity: 2, Position: cp.Vector{X: -5}, Radius: 0.5},
			want:     true,
			ttc:      4,
			distance: 4,
		},
		{
			name:  "passing_in_other_lane",
			query: forward(2),
			cand:  CollisionCandidate{Entity: 2, Position: cp.Vector{X: 5, Y: 3}, Velocity: cp.Vector{X: -2}, Radius: 0.5},
		},
		{
			name:  "moving_away_faster",
			query: forward(1),
			cand:  CollisionCandidate{Entity: 2, Position: cp.Vector{X: 3}, Velocity: cp.Vector{X: 2}, Radius: 0.5},
		},
		{
			name:  "beyond_horizon",
			query: forward(0.5),
			cand:  CollisionCandidate{Entity: 2, Position: cp.Vector{X: 40}, Radius: 0.5},
		},
		{
			name:     "already_touching",
			query:    forward(1),
			cand:     CollisionCandidate{Entity: 2, Position: cp.Vector{X: 0.8}, Radius: 0.5},
			want:     true,
			ttc:      0,
			distance: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := NewCollisionAggregator()
			agg.Begin(tt.query)
			assert.Equal(t, tt.want, agg.Consider(tt.cand))
			got, ok := agg.Result()
			require.Equal(t, tt.want, ok)
			if !tt.want {
				return
			}
			assert.InDelta(t, tt.ttc, got.TimeToCollide, 1e-9)
			assert.InDelta(t, tt.distance, got.Distance, 1e-9)
			assert.Equal(t, CollisionModePhysical, got.Mode)
		})
	}
}

func TestCollisionAggregatorDrawCollisions(t *testing.T) {
	agg := NewCollisionAggregator()
	agg.Begin(forward(1))
	agg.AddCollision(NavigationComponentCollision{Entity: 2, TimeToCollide: 1})
	assert.Empty(t, agg.Recorded())

	agg.DrawCollisions = true
	agg.SetMode(CollisionModeReservation)
	agg.AddCollision(NavigationComponentCollision{Entity: 3, TimeToCollide: 4})
	require.Len(t, agg.Recorded(), 1)
	assert.Equal(t, CollisionModeReservation, agg.Recorded()[0].Collision.Mode)

	agg.ResetRecorded()
	assert.Empty(t, agg.Recorded())
}

func TestBulletCollisionAggregator(t *testing.T) {
	w := ecs.NewWorld()
	pw := ecs.NewPhysicsWorld()
	self, ahead, behind := w.CreateEntity(), w.CreateEntity(), w.CreateEntity()
	pw.EnsureBody(self, cp.Vector{}, 0.5)
	pw.EnsureBody(ahead, cp.Vector{X: 4}, 0.5)
	pw.EnsureBody(behind, cp.Vector{X: -2}, 0.5)
	pw.SyncBody(ahead, cp.Vector{X: 4}, cp.Vector{X: -1}, 0)
	pw.Step(ecs.DefaultTimeStep)

	bullet := NewBulletCollisionAggregator(pw)
	agg := NewCollisionAggregator()
	q := forward(1)
	q.Self = self.Ref()
	agg.Begin(q)

	assert.Equal(t, 1, bullet.Gather(agg))
	got, ok := agg.Result()
	require.True(t, ok)
	assert.Equal(t, ahead.Ref(), got.Entity)
	assert.InDelta(t, 1.5, got.TimeToCollide, 1e-9)

	assert.Zero(t, NewBulletCollisionAggregator(nil).Gather(agg))
}

func TestBulletSweepBounds(t *testing.T) {
	bullet := NewBulletCollisionAggregator(nil)

	assert.Equal(t, cp.BB{L: -3.5, B: -3.5, R: 9.5, T: 3.5}, bullet.SweepBounds(forward(2)),
		"six units of reach padded by the radius and half the reach")
	assert.Equal(t, cp.BB{L: -1, B: -1, R: 2, T: 1}, bullet.SweepBounds(forward(0)), "standing still uses MinReach")

	back := forward(-2)
	assert.Equal(t, cp.BB{L: -9.5, B: -3.5, R: 3.5, T: 3.5}, bullet.SweepBounds(back), "reversing sweeps behind")
}

func TestRouterCollisionAggregator(t *testing.T) {
	c := NewReservationContainer(nil)
	_, _ = c.InsertReservation(res(t, 0, 10, 7), area(3), ReservationFlags{})
	_, _ = c.InsertReservation(res(t, 0, 10, 8), area(1), ReservationFlags{})

	path := component.NewPath(wp(0, 0, 1), wp(2, 0, 2), wp(4, 0, 3))
	require.NoError(t, path.FinishConstruction())

	router := NewRouterCollisionAggregator(c)
	agg := NewCollisionAggregator()
	agg.Begin(forward(1))
	assert.Equal(t, 1, router.Gather(agg, path, 0, 0))

	got, ok := agg.Result()
	require.True(t, ok)
	assert.Equal(t, component.EntityID(7), got.Entity)
	assert.Equal(t, CollisionModeReservation, got.Mode)
	assert.InDelta(t, 4, got.TimeToCollide, 1e-9)
	assert.InDelta(t, 3.5, got.Distance, 1e-9)
	assert.Equal(t, cp.Vector{X: 4}, got.Position)

	agg.Begin(forward(1))
	assert.Zero(t, router.Gather(agg, path, 0, 20), "reservation already over on arrival")

	agg.Begin(forward(1))
	assert.Zero(t, router.Gather(agg, path, 3, 0), "areas inside the own reservation window are skipped")

	agg.Begin(forward(1))
	require.True(t, agg.ShouldConsiderCollision(7))
	assert.Zero(t, router.Gather(agg, path, 0, 0), "entity reported by another source is not evaluated twice")
}
