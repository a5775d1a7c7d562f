package component

import (
	"math"
	"slices"

	"github.com/jakecoffman/cp"
)

// GoalState is the verdict of a goal evaluation.
type GoalState uint8

const (
	GoalRunning GoalState = iota
	GoalSuccess
	GoalFailure
)

func (s GoalState) String() string {
	switch s {
	case GoalSuccess:
		return "success"
	case GoalFailure:
		return "failure"
	}
	return "running"
}

// GoalKind names a goal variant.
type GoalKind uint8

const (
	GoalReachPoint GoalKind = iota
	GoalReachOneOfPoints
	GoalReachConsecutivePoints
	GoalReachObject
	GoalLineOfSight
	GoalAvoidThreats
)

// GoalContext is how goals observe the world.
type GoalContext interface {
	// Transform resolves an entity's pose.
	Transform(id EntityID) (Transform, bool)
	// LineOfSight reports whether nothing static blocks the segment.
	LineOfSight(from, to cp.Vector) bool
}

// GoalConfiguration is one concrete candidate target of a goal.
type GoalConfiguration struct {
	Position cp.Vector
	// Radius is the acceptance distance around Position.
	Radius float64
	Failed bool
}

// NavigationGoal describes where an entity wants to go and how success is
// judged.
type NavigationGoal interface {
	Kind() GoalKind
	// EvaluateState judges the goal at the end of a path.
	EvaluateState(ctx GoalContext, self EntityID) GoalState
	// EvaluateStateWhileRunning judges the goal en route. Dynamic goals
	// report running where EvaluateState would report failure.
	EvaluateStateWhileRunning(ctx GoalContext, self EntityID) GoalState
	// CheckForChangedGoalSituation refreshes dynamic targets and reports
	// whether they moved enough to warrant replanning.
	CheckForChangedGoalSituation(ctx GoalContext) bool
	IsTargetMovingCloser() bool
	// EstimateDistanceToTarget never overestimates.
	EstimateDistanceToTarget(p cp.Vector) float64
	Clone() NavigationGoal
	GoalConfigurations() []GoalConfiguration
	MarkConfigurationFailed(i int) error
}

func selfPosition(ctx GoalContext, self EntityID) (cp.Vector, bool) {
	if ctx == nil {
		return cp.Vector{}, false
	}
	t, ok := ctx.Transform(self)
	return t.Position, ok
}

// pointSet is shared by the static point goals.
type pointSet struct {
	configs []GoalConfiguration
}

func (s *pointSet) GoalConfigurations() []GoalConfiguration {
	return s.configs
}

func (s *pointSet) MarkConfigurationFailed(i int) error {
	if i < 0 || i >= len(s.configs) {
		return violation(ErrUnknownGoalConfig, "config %d of %d", i, len(s.configs))
	}
	s.configs[i].Failed = true
	return nil
}

func (s *pointSet) allFailed() bool {
	for _, c := range s.configs {
		if !c.Failed {
			return false
		}
	}
	return true
}

func (s *pointSet) reached(p cp.Vector) bool {
	for _, c := range s.configs {
		if !c.Failed && p.Distance(c.Position) <= c.Radius {
			return true
		}
	}
	return false
}

func (s *pointSet) nearest(p cp.Vector) float64 {
	best := math.Inf(1)
	for _, c := range s.configs {
		if c.Failed {
			continue
		}
		best = math.Min(best, math.Max(0, p.Distance(c.Position)-c.Radius))
	}
	return best
}

func (s *pointSet) evaluate(ctx GoalContext, self EntityID) GoalState {
	if s.allFailed() {
		return GoalFailure
	}
	pos, ok := selfPosition(ctx, self)
	if !ok {
		return GoalFailure
	}
	if s.reached(pos) {
		return GoalSuccess
	}
	return GoalRunning
}

func (s *pointSet) clone() pointSet {
	return pointSet{configs: slices.Clone(s.configs)}
}

// ReachSinglePointGoal is reached within Radius of one static point.
type ReachSinglePointGoal struct {
	pointSet
}

func NewReachSinglePointGoal(target cp.Vector, radius float64) *ReachSinglePointGoal {
	return &ReachSinglePointGoal{pointSet{configs: []GoalConfiguration{{Position: target, Radius: radius}}}}
}

func (g *ReachSinglePointGoal) Target() cp.Vector {
	return g.configs[0].Position
}

func (g *ReachSinglePointGoal) Kind() GoalKind { return GoalReachPoint }

func (g *ReachSinglePointGoal) EvaluateState(ctx GoalContext, self EntityID) GoalState {
	return g.evaluate(ctx, self)
}

func (g *ReachSinglePointGoal) EvaluateStateWhileRunning(ctx GoalContext, self EntityID) GoalState {
	return g.evaluate(ctx, self)
}

func (g *ReachSinglePointGoal) CheckForChangedGoalSituation(GoalContext) bool { return false }

func (g *ReachSinglePointGoal) IsTargetMovingCloser() bool { return false }

func (g *ReachSinglePointGoal) EstimateDistanceToTarget(p cp.Vector) float64 {
	return g.nearest(p)
}

func (g *ReachSinglePointGoal) Clone() NavigationGoal {
	return &ReachSinglePointGoal{g.clone()}
}

// ReachOneOfPointsGoal is reached at any of several static points. A search
// may mark unreachable candidates failed and continue with the rest.
type ReachOneOfPointsGoal struct {
	pointSet
}

func NewReachOneOfPointsGoal(configs ...GoalConfiguration) *ReachOneOfPointsGoal {
	return &ReachOneOfPointsGoal{pointSet{configs: slices.Clone(configs)}}
}

func (g *ReachOneOfPointsGoal) Kind() GoalKind { return GoalReachOneOfPoints }

func (g *ReachOneOfPointsGoal) EvaluateState(ctx GoalContext, self EntityID) GoalState {
	return g.evaluate(ctx, self)
}

func (g *ReachOneOfPointsGoal) EvaluateStateWhileRunning(ctx GoalContext, self EntityID) GoalState {
	return g.evaluate(ctx, self)
}

func (g *ReachOneOfPointsGoal) CheckForChangedGoalSituation(GoalContext) bool { return false }

func (g *ReachOneOfPointsGoal) IsTargetMovingCloser() bool { return false }

func (g *ReachOneOfPointsGoal) EstimateDistanceToTarget(p cp.Vector) float64 {
	return g.nearest(p)
}

func (g *ReachOneOfPointsGoal) Clone() NavigationGoal {
	return &ReachOneOfPointsGoal{g.clone()}
}

// ReachConsecutivePointsGoal visits its points in order.
type ReachConsecutivePointsGoal struct {
	pointSet
	next int
}

func NewReachConsecutivePointsGoal(radius float64, points ...cp.Vector) *ReachConsecutivePointsGoal {
	configs := make([]GoalConfiguration, 0, len(points))
	for _, p := range points {
		configs = append(configs, GoalConfiguration{Position: p, Radius: radius})
	}
	return &ReachConsecutivePointsGoal{pointSet: pointSet{configs: configs}}
}

func (g *ReachConsecutivePointsGoal) Kind() GoalKind { return GoalReachConsecutivePoints }

// NextIndex is the index of the next point to visit.
func (g *ReachConsecutivePointsGoal) NextIndex() int {
	return g.next
}

func (g *ReachConsecutivePointsGoal) EvaluateState(ctx GoalContext, self EntityID) GoalState {
	pos, ok := selfPosition(ctx, self)
	if !ok || len(g.configs) == 0 {
		return GoalFailure
	}
	for g.next < len(g.configs) {
		c := g.configs[g.next]
		if c.Failed {
			return GoalFailure
		}
		if pos.Distance(c.Position) > c.Radius {
			break
		}
		g.next++
	}
	if g.next >= len(g.configs) {
		return GoalSuccess
	}
	return GoalRunning
}

func (g *ReachConsecutivePointsGoal) EvaluateStateWhileRunning(ctx GoalContext, self EntityID) GoalState {
	return g.EvaluateState(ctx, self)
}

func (g *ReachConsecutivePointsGoal) CheckForChangedGoalSituation(GoalContext) bool { return false }

func (g *ReachConsecutivePointsGoal) IsTargetMovingCloser() bool { return false }

// EstimateDistanceToTarget is the distance to the next point plus the chain
// of remaining points, each shortened by its acceptance radius.
func (g *ReachConsecutivePointsGoal) EstimateDistanceToTarget(p cp.Vector) float64 {
	if g.next >= len(g.configs) {
		return 0
	}
	c := g.configs[g.next]
	total := math.Max(0, p.Distance(c.Position)-c.Radius)
	for i := g.next + 1; i < len(g.configs); i++ {
		prev, cur := g.configs[i-1], g.configs[i]
		total += math.Max(0, prev.Position.Distance(cur.Position)-prev.Radius-cur.Radius)
	}
	return total
}

// GoalConfigurations returns only the points still to visit.
func (g *ReachConsecutivePointsGoal) GoalConfigurations() []GoalConfiguration {
	return g.configs[g.next:]
}

func (g *ReachConsecutivePointsGoal) MarkConfigurationFailed(i int) error {
	return g.pointSet.MarkConfigurationFailed(g.next + i)
}

func (g *ReachConsecutivePointsGoal) Clone() NavigationGoal {
	return &ReachConsecutivePointsGoal{pointSet: g.clone(), next: g.next}
}
