package component

import (
	"testing"

	"github.com/jakecoffman/cp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGoalContext struct {
	poses   map[EntityID]cp.Vector
	blocked bool
}

func newFakeGoalContext() *fakeGoalContext {
	return &fakeGoalContext{poses: map[EntityID]cp.Vector{}}
}

func (c *fakeGoalContext) Transform(id EntityID) (Transform, bool) {
	p, ok := c.poses[id]
	return Transform{Position: p}, ok
}

func (c *fakeGoalContext) LineOfSight(_, _ cp.Vector) bool {
	return !c.blocked
}

func (c *fakeGoalContext) put(id EntityID, x, y float64) {
	c.poses[id] = cp.Vector{X: x, Y: y}
}

const (
	selfID   EntityID = 1
	targetID EntityID = 2
)

func TestReachSinglePointGoal(t *testing.T) {
	ctx := newFakeGoalContext()
	g := NewReachSinglePointGoal(cp.Vector{X: 10}, 1)

	ctx.put(selfID, 0, 0)
	assert.Equal(t, GoalRunning, g.EvaluateState(ctx, selfID))
	assert.InDelta(t, 9, g.EstimateDistanceToTarget(cp.Vector{}), 1e-9)

	ctx.put(selfID, 9.5, 0)
	assert.Equal(t, GoalSuccess, g.EvaluateState(ctx, selfID))
	assert.Zero(t, g.EstimateDistanceToTarget(cp.Vector{X: 9.5}))

	require.NoError(t, g.MarkConfigurationFailed(0))
	assert.Equal(t, GoalFailure, g.EvaluateState(ctx, selfID))
	require.ErrorIs(t, g.MarkConfigurationFailed(1), ErrUnknownGoalConfig)
}

func TestReachOneOfPointsGoalSkipsFailedCandidates(t *testing.T) {
	ctx := newFakeGoalContext()
	g := NewReachOneOfPointsGoal(
		GoalConfiguration{Position: cp.Vector{X: 5}, Radius: 0.5},
		GoalConfiguration{Position: cp.Vector{X: 20}, Radius: 0.5},
	)
	ctx.put(selfID, 5, 0)
	require.Equal(t, GoalSuccess, g.EvaluateState(ctx, selfID))

	require.NoError(t, g.MarkConfigurationFailed(0))
	assert.True(t, g.GoalConfigurations()[0].Failed)
	assert.Equal(t, GoalRunning, g.EvaluateState(ctx, selfID))
	assert.InDelta(t, 14.5, g.EstimateDistanceToTarget(cp.Vector{X: 5}), 1e-9)

	require.NoError(t, g.MarkConfigurationFailed(1))
	assert.Equal(t, GoalFailure, g.EvaluateState(ctx, selfID))
}

func TestReachConsecutivePointsGoalAdvancesInOrder(t *testing.T) {
	ctx := newFakeGoalContext()
	g := NewReachConsecutivePointsGoal(0.5, cp.Vector{X: 10}, cp.Vector{X: 10, Y: 10}, cp.Vector{Y: 10})

	ctx.put(selfID, 0, 10)
	assert.Equal(t, GoalRunning, g.EvaluateState(ctx, selfID), "last point first does not count")
	assert.Equal(t, 0, g.NextIndex())

	ctx.put(selfID, 10, 0)
	assert.Equal(t, GoalRunning, g.EvaluateState(ctx, selfID))
	assert.Equal(t, 1, g.NextIndex())
	assert.Len(t, g.GoalConfigurations(), 2)

	ctx.put(selfID, 10, 10)
	g.EvaluateState(ctx, selfID)
	ctx.put(selfID, 0, 10)
	assert.Equal(t, GoalSuccess, g.EvaluateState(ctx, selfID))
}

func TestReachConsecutivePointsEstimateIsAdmissible(t *testing.T) {
	g := NewReachConsecutivePointsGoal(1, cp.Vector{X: 10}, cp.Vector{X: 20})
	// Any real route from the origin is at least 20 minus the radius slack.
	assert.InDelta(t, 9+8, g.EstimateDistanceToTarget(cp.Vector{}), 1e-9)
	assert.LessOrEqual(t, g.EstimateDistanceToTarget(cp.Vector{}), 20.0)
}

func TestReachObjectGoalWhileRunning(t *testing.T) {
	ctx := newFakeGoalContext()
	g := NewReachObjectGoal(targetID, 1, 3)
	ctx.put(selfID, 0, 0)
	ctx.put(targetID, 10, 0)

	assert.Equal(t, GoalFailure, g.EvaluateState(ctx, selfID))
	assert.Equal(t, GoalRunning, g.EvaluateStateWhileRunning(ctx, selfID))

	ctx.put(selfID, 9.5, 0)
	assert.Equal(t, GoalSuccess, g.EvaluateStateWhileRunning(ctx, selfID))

	delete(ctx.poses, targetID)
	assert.Equal(t, GoalFailure, g.EvaluateStateWhileRunning(ctx, selfID))
}

func TestReachObjectGoalChangedSituation(t *testing.T) {
	ctx := newFakeGoalContext()
	g := NewReachObjectGoal(targetID, 1, 3)
	ctx.put(selfID, 0, 0)
	ctx.put(targetID, 10, 0)
	require.True(t, g.CheckForChangedGoalSituation(ctx), "first sighting needs a plan")

	ctx.put(targetID, 12, 0)
	assert.False(t, g.CheckForChangedGoalSituation(ctx))

	g.EvaluateState(ctx, selfID)
	ctx.put(targetID, 6, 0)
	assert.True(t, g.CheckForChangedGoalSituation(ctx))
	assert.True(t, g.IsTargetMovingCloser())

	ctx.put(targetID, 8, 0)
	assert.False(t, g.CheckForChangedGoalSituation(ctx))
	assert.False(t, g.IsTargetMovingCloser())

	pos, ok := g.TargetPosition()
	require.True(t, ok)
	assert.Equal(t, cp.Vector{X: 8}, pos)
}

func TestReachObjectGoalCloneIsIndependent(t *testing.T) {
	ctx := newFakeGoalContext()
	g := NewReachObjectGoal(targetID, 1, 3)
	ctx.put(targetID, 10, 0)
	g.CheckForChangedGoalSituation(ctx)

	c := g.Clone().(*ReachObjectGoal)
	ctx.put(targetID, 50, 0)
	c.CheckForChangedGoalSituation(ctx)

	p, _ := g.TargetPosition()
	assert.Equal(t, cp.Vector{X: 10}, p)
	p, _ = c.TargetPosition()
	assert.Equal(t, cp.Vector{X: 50}, p)
}

func TestLineOfSightGoal(t *testing.T) {
	tests := []struct {
		name    string
		avoid   bool
		blocked bool
		dist    float64
		want    GoalState
		running GoalState
	}{
		{"achieve_visible", false, false, 5, GoalSuccess, GoalSuccess},
		{"achieve_out_of_range", false, false, 50, GoalFailure, GoalRunning},
		{"achieve_blocked", false, true, 5, GoalFailure, GoalRunning},
		{"avoid_visible", true, false, 5, GoalFailure, GoalRunning},
		{"avoid_blocked", true, true, 5, GoalSuccess, GoalSuccess},
		{"avoid_out_of_range", true, false, 50, GoalSuccess, GoalSuccess},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := newFakeGoalContext()
			ctx.blocked = tt.blocked
			ctx.put(selfID, 0, 0)
			ctx.put(targetID, tt.dist, 0)
			g := NewLineOfSightGoal(targetID, 20, tt.avoid)
			assert.Equal(t, tt.want, g.EvaluateState(ctx, selfID))
			assert.Equal(t, tt.running, g.EvaluateStateWhileRunning(ctx, selfID))
		})
	}
}

func TestLineOfSightGoalEstimate(t *testing.T) {
	ctx := newFakeGoalContext()
	ctx.put(targetID, 100, 0)
	achieve := NewLineOfSightGoal(targetID, 20, false)
	achieve.CheckForChangedGoalSituation(ctx)
	assert.InDelta(t, 80, achieve.EstimateDistanceToTarget(cp.Vector{}), 1e-9)

	avoid := NewLineOfSightGoal(targetID, 20, true)
	avoid.CheckForChangedGoalSituation(ctx)
	assert.Zero(t, avoid.EstimateDistanceToTarget(cp.Vector{X: 100}))
}

func TestAvoidThreatsGoal(t *testing.T) {
	ctx := newFakeGoalContext()
	g := NewAvoidThreatsGoal(10, 2, 3)
	ctx.put(selfID, 0, 0)
	ctx.put(2, 4, 0)
	ctx.put(3, -20, 0)

	assert.Equal(t, GoalFailure, g.EvaluateState(ctx, selfID))
	assert.Equal(t, GoalRunning, g.EvaluateStateWhileRunning(ctx, selfID))
	assert.InDelta(t, 6, g.EstimateDistanceToTarget(cp.Vector{}), 1e-9)

	ctx.put(selfID, -6, 0)
	assert.Equal(t, GoalSuccess, g.EvaluateState(ctx, selfID))
	require.Error(t, g.MarkConfigurationFailed(0))
}

func TestAvoidThreatsGoalChangedSituation(t *testing.T) {
	ctx := newFakeGoalContext()
	g := NewAvoidThreatsGoal(10, 2)
	ctx.put(selfID, 0, 0)
	ctx.put(2, 20, 0)
	g.EvaluateState(ctx, selfID)

	assert.False(t, g.CheckForChangedGoalSituation(ctx))
	ctx.put(2, 15, 0)
	assert.True(t, g.CheckForChangedGoalSituation(ctx))
	assert.True(t, g.IsTargetMovingCloser())

	delete(ctx.poses, 2)
	assert.True(t, g.CheckForChangedGoalSituation(ctx))
}

func TestGoalCloneDeepCopiesConfigurations(t *testing.T) {
	g := NewReachOneOfPointsGoal(GoalConfiguration{Position: cp.Vector{X: 1}}, GoalConfiguration{Position: cp.Vector{X: 2}})
	c := g.Clone()
	require.NoError(t, c.MarkConfigurationFailed(0))
	assert.False(t, g.GoalConfigurations()[0].Failed)
	assert.True(t, c.GoalConfigurations()[0].Failed)
	assert.Equal(t, GoalReachOneOfPoints, c.Kind())
}
