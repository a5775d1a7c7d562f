package component

import (
	"math"
	"slices"

	"github.com/jakecoffman/cp"
)

// ReachObjectGoal follows another entity. The target is resolved by id each
// time the situation is checked, so a despawned target fails the goal.
type ReachObjectGoal struct {
	Target EntityID
	// Radius is the acceptance distance to the target.
	Radius float64
	// ReplanDistance is how far the target may move from the position the
	// current path was planned against before a replan is warranted.
	ReplanDistance float64

	planned cp.Vector
	last    cp.Vector
	known   bool
	lost    bool
	tracker approachTracker
}

func NewReachObjectGoal(target EntityID, radius, replanDistance float64) *ReachObjectGoal {
	return &ReachObjectGoal{Target: target, Radius: radius, ReplanDistance: replanDistance}
}

func (g *ReachObjectGoal) Kind() GoalKind { return GoalReachObject }

// TargetPosition is the last observed target position.
func (g *ReachObjectGoal) TargetPosition() (cp.Vector, bool) {
	return g.last, g.known
}

func (g *ReachObjectGoal) observe(ctx GoalContext) bool {
	if ctx == nil {
		return g.known
	}
	t, ok := ctx.Transform(g.Target)
	if !ok {
		g.lost = true
		return false
	}
	if g.known {
		g.tracker.targetMoved(g.last, t.Position)
	} else {
		g.planned = t.Position
	}
	g.last = t.Position
	g.known = true
	g.lost = false
	return true
}

func (g *ReachObjectGoal) EvaluateState(ctx GoalContext, self EntityID) GoalState {
	pos, ok := selfPosition(ctx, self)
	if !ok {
		return GoalFailure
	}
	g.tracker.selfAt(pos)
	if !g.observe(ctx) {
		return GoalFailure
	}
	if pos.Distance(g.last) <= g.Radius {
		return GoalSuccess
	}
	return GoalFailure
}

// EvaluateStateWhileRunning keeps the goal running while the target is
// alive but not yet reached.
func (g *ReachObjectGoal) EvaluateStateWhileRunning(ctx GoalContext, self EntityID) GoalState {
	if g.EvaluateState(ctx, self) == GoalSuccess {
		return GoalSuccess
	}
	if g.lost {
		return GoalFailure
	}
	if _, ok := selfPosition(ctx, self); !ok {
		return GoalFailure
	}
	return GoalRunning
}

func (g *ReachObjectGoal) CheckForChangedGoalSituation(ctx GoalContext) bool {
	wasKnown := g.known
	if !g.observe(ctx) {
		return wasKnown
	}
	if !wasKnown {
		return true
	}
	if g.planned.Distance(g.last) > g.ReplanDistance {
		g.planned = g.last
		return true
	}
	return false
}

func (g *ReachObjectGoal) IsTargetMovingCloser() bool {
	return g.tracker.closer
}

func (g *ReachObjectGoal) EstimateDistanceToTarget(p cp.Vector) float64 {
	if !g.known {
		return 0
	}
	return math.Max(0, p.Distance(g.last)-g.Radius)
}

func (g *ReachObjectGoal) GoalConfigurations() []GoalConfiguration {
	if !g.known {
		return nil
	}
	return []GoalConfiguration{{Position: g.last, Radius: g.Radius, Failed: g.lost}}
}

func (g *ReachObjectGoal) MarkConfigurationFailed(i int) error {
	if i != 0 || !g.known {
		return violation(ErrUnknownGoalConfig, "config %d of reach-object goal", i)
	}
	g.lost = true
	return nil
}

func (g *ReachObjectGoal) Clone() NavigationGoal {
	c := *g
	return &c
}

// LineOfSightGoal seeks a position with (or without) an unobstructed view of
// a target entity within Range.
type LineOfSightGoal struct {
	Target EntityID
	Range  float64
	// Avoid inverts the goal: success is being out of sight.
	Avoid bool

	target  cp.Vector
	known   bool
	lost    bool
	moved   float64
	planned cp.Vector
	tracker approachTracker
}

func NewLineOfSightGoal(target EntityID, rng float64, avoid bool) *LineOfSightGoal {
	return &LineOfSightGoal{Target: target, Range: rng, Avoid: avoid}
}

func (g *LineOfSightGoal) Kind() GoalKind { return GoalLineOfSight }

func (g *LineOfSightGoal) refresh(ctx GoalContext) bool {
	if ctx == nil {
		return g.known
	}
	t, ok := ctx.Transform(g.Target)
	if !ok {
		g.lost = true
		return false
	}
	if g.known {
		g.moved = g.planned.Distance(t.Position)
		g.tracker.targetMoved(g.target, t.Position)
	} else {
		g.planned = t.Position
	}
	g.target = t.Position
	g.known = true
	g.lost = false
	return true
}

func (g *LineOfSightGoal) sees(ctx GoalContext, from cp.Vector) bool {
	return from.Distance(g.target) <= g.Range && ctx.LineOfSight(from, g.target)
}

func (g *LineOfSightGoal) EvaluateState(ctx GoalContext, self EntityID) GoalState {
	pos, ok := selfPosition(ctx, self)
	if !ok {
		return GoalFailure
	}
	g.tracker.selfAt(pos)
	if !g.refresh(ctx) {
		if g.Avoid && g.lost {
			return GoalSuccess
		}
		return GoalFailure
	}
	if g.sees(ctx, pos) != g.Avoid {
		return GoalSuccess
	}
	return GoalFailure
}

func (g *LineOfSightGoal) EvaluateStateWhileRunning(ctx GoalContext, self EntityID) GoalState {
	st := g.EvaluateState(ctx, self)
	if st == GoalFailure && g.known && !g.lost {
		return GoalRunning
	}
	return st
}

// CheckForChangedGoalSituation asks for a replan once the target moved a
// quarter of the sight range away from where the path was planned.
func (g *LineOfSightGoal) CheckForChangedGoalSituation(ctx GoalContext) bool {
	wasKnown := g.known
	if !g.refresh(ctx) {
		return wasKnown
	}
	if !wasKnown {
		return true
	}
	if g.moved > g.Range/4 {
		g.planned = g.target
		g.moved = 0
		return true
	}
	return false
}

func (g *LineOfSightGoal) IsTargetMovingCloser() bool {
	return g.tracker.closer
}

// EstimateDistanceToTarget is zero when avoiding: any point may already be
// hidden and the estimate must stay admissible.
func (g *LineOfSightGoal) EstimateDistanceToTarget(p cp.Vector) float64 {
	if g.Avoid || !g.known {
		return 0
	}
	return math.Max(0, p.Distance(g.target)-g.Range)
}

func (g *LineOfSightGoal) GoalConfigurations() []GoalConfiguration {
	if !g.known {
		return nil
	}
	return []GoalConfiguration{{Position: g.target, Radius: g.Range, Failed: g.lost}}
}

func (g *LineOfSightGoal) MarkConfigurationFailed(i int) error {
	if i != 0 || !g.known {
		return violation(ErrUnknownGoalConfig, "config %d of line-of-sight goal", i)
	}
	g.lost = true
	return nil
}

func (g *LineOfSightGoal) Clone() NavigationGoal {
	c := *g
	return &c
}

// AvoidThreatsGoal succeeds once every threat is at least SafeDistance away.
type AvoidThreatsGoal struct {
	Threats      []EntityID
	SafeDistance float64

	positions []cp.Vector
	previous  []cp.Vector
	tracker   approachTracker
}

func NewAvoidThreatsGoal(safeDistance float64, threats ...EntityID) *AvoidThreatsGoal {
	return &AvoidThreatsGoal{Threats: slices.Clone(threats), SafeDistance: safeDistance}
}

func (g *AvoidThreatsGoal) Kind() GoalKind { return GoalAvoidThreats }

func (g *AvoidThreatsGoal) refresh(ctx GoalContext) {
	if ctx == nil {
		return
	}
	g.previous = g.positions
	g.positions = make([]cp.Vector, 0, len(g.Threats))
	for _, id := range g.Threats {
		if t, ok := ctx.Transform(id); ok {
			g.positions = append(g.positions, t.Position)
		}
	}
	if len(g.previous) > 0 && len(g.positions) > 0 {
		g.tracker.targetMoved(g.tracker.nearest(g.previous), g.tracker.nearest(g.positions))
	}
}

func (g *AvoidThreatsGoal) EvaluateState(ctx GoalContext, self EntityID) GoalState {
	pos, ok := selfPosition(ctx, self)
	if !ok {
		return GoalFailure
	}
	g.tracker.selfAt(pos)
	g.refresh(ctx)
	if g.EstimateDistanceToTarget(pos) == 0 {
		return GoalSuccess
	}
	return GoalFailure
}

func (g *AvoidThreatsGoal) EvaluateStateWhileRunning(ctx GoalContext, self EntityID) GoalState {
	if g.EvaluateState(ctx, self) == GoalSuccess {
		return GoalSuccess
	}
	if _, ok := selfPosition(ctx, self); !ok {
		return GoalFailure
	}
	return GoalRunning
}

// CheckForChangedGoalSituation reports a change when a threat appeared,
// vanished or moved more than a tenth of the safe distance.
func (g *AvoidThreatsGoal) CheckForChangedGoalSituation(ctx GoalContext) bool {
	g.refresh(ctx)
	if len(g.previous) != len(g.positions) {
		return true
	}
	for i := range g.positions {
		if g.previous[i].Distance(g.positions[i]) > g.SafeDistance/10 {
			return true
		}
	}
	return false
}

// IsTargetMovingCloser follows the nearest threat.
func (g *AvoidThreatsGoal) IsTargetMovingCloser() bool {
	return g.tracker.closer
}

// EstimateDistanceToTarget is the largest shortfall to the safe distance
// over all threats. Moving by less than that cannot clear the closest one.
func (g *AvoidThreatsGoal) EstimateDistanceToTarget(p cp.Vector) float64 {
	shortfall := 0.0
	for _, t := range g.positions {
		shortfall = math.Max(shortfall, g.SafeDistance-p.Distance(t))
	}
	return shortfall
}

func (g *AvoidThreatsGoal) GoalConfigurations() []GoalConfiguration {
	out := make([]GoalConfiguration, 0, len(g.positions))
	for _, p := range g.positions {
		out = append(out, GoalConfiguration{Position: p, Radius: g.SafeDistance})
	}
	return out
}

func (g *AvoidThreatsGoal) MarkConfigurationFailed(i int) error {
	return violation(ErrUnknownGoalConfig, "avoid-threats goal has no selectable config %d", i)
}

func (g *AvoidThreatsGoal) Clone() NavigationGoal {
	return &AvoidThreatsGoal{
		Threats:      slices.Clone(g.Threats),
		SafeDistance: g.SafeDistance,
		positions:    slices.Clone(g.positions),
		previous:     slices.Clone(g.previous),
	}
}

// approachTracker remembers the owner's last evaluated position so target
// moves can be classified as approaching or not.
type approachTracker struct {
	self    cp.Vector
	hasSelf bool
	closer  bool
}

func (t *approachTracker) selfAt(p cp.Vector) {
	t.self = p
	t.hasSelf = true
}

func (t *approachTracker) targetMoved(from, to cp.Vector) {
	t.closer = t.hasSelf && t.self.DistanceSq(to) < t.self.DistanceSq(from)
}

func (t *approachTracker) nearest(ps []cp.Vector) cp.Vector {
	best := ps[0]
	for _, p := range ps[1:] {
		if t.self.DistanceSq(p) < t.self.DistanceSq(best) {
			best = p
		}
	}
	return best
}
