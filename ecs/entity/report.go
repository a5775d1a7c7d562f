package entity

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/jakecoffman/cp"
	"github.com/milk9111/navcore/ecs"
	"github.com/milk9111/navcore/ecs/component"
)

// AgentReport summarises one agent's run.
type AgentReport struct {
	Name      string
	Archetype string
	Distance  float64
	Goal      component.GoalState
	// FinishedAt is the simulation time of the goal verdict, zero while
	// the goal runs.
	FinishedAt   float64
	Searches     int
	SearchErrors int
	// Evasions counts detours started; FailedEvasions those that could not
	// be planned or did not get past the obstacle.
	Evasions       int
	FailedEvasions int
	Brakings       map[component.BrakingReason]int
}

func (r AgentReport) LogValue() slog.Value {
	reasons := make([]string, 0, len(r.Brakings))
	for reason, n := range r.Brakings {
		reasons = append(reasons, fmt.Sprintf("%s=%d", reason, n))
	}
	sort.Strings(reasons)
	return slog.GroupValue(
		slog.String("archetype", r.Archetype),
		slog.Float64("distance", r.Distance),
		slog.String("goal", r.Goal.String()),
		slog.Float64("finished_at", r.FinishedAt),
		slog.Int("searches", r.Searches),
		slog.Int("search_errors", r.SearchErrors),
		slog.Int("evasions", r.Evasions),
		slog.Int("failed_evasions", r.FailedEvasions),
		slog.String("brakings", strings.Join(reasons, ",")),
	)
}

// ReportSystem tallies events and travel per agent. It must run last so it
// sees every event of the tick.
type ReportSystem struct {
	order   []ecs.Entity
	reports map[ecs.Entity]*AgentReport
	last    map[ecs.Entity]cp.Vector
	// owners maps a vehicle to the driver whose goal it carries.
	owners map[ecs.Entity]ecs.Entity
}

func NewReportSystem() *ReportSystem {
	return &ReportSystem{
		reports: make(map[ecs.Entity]*AgentReport),
		last:    make(map[ecs.Entity]cp.Vector),
		owners:  make(map[ecs.Entity]ecs.Entity),
	}
}

// Track starts a report for a.
func (s *ReportSystem) Track(a Agent) {
	if _, ok := s.reports[a.Entity]; ok {
		return
	}
	s.order = append(s.order, a.Entity)
	s.reports[a.Entity] = &AgentReport{Name: a.Name, Archetype: a.Archetype, Brakings: make(map[component.BrakingReason]int)}
}

func (s *ReportSystem) Update(w *ecs.World) {
	if s == nil || w == nil {
		return
	}
	for _, e := range s.order {
		tr, ok := ecs.Get(w, e, component.TransformComponent.Kind())
		if !ok {
			continue
		}
		if prev, seen := s.last[e]; seen {
			s.reports[e].Distance += tr.Position.Distance(prev)
		}
		s.last[e] = tr.Position
		if nav, ok := w.Navigation(e); ok && nav.IsDriver() {
			if v, ok := w.Resolve(nav.Partner()); ok {
				s.owners[v] = e
			}
		}
	}

	for _, evt := range w.Events().Pending() {
		switch data := evt.Data.(type) {
		case ecs.BrakingEvent:
			if r := s.report(data.Entity); r != nil {
				r.Brakings[data.Reason]++
			}
		case ecs.PathEvent:
			if r := s.report(data.Entity); r != nil {
				r.Searches++
				if data.Err != nil {
					r.SearchErrors++
				}
			}
		case ecs.EvasionEvent:
			if r := s.report(data.Entity); r != nil {
				switch data.Outcome {
				case component.EvasionPending:
					r.Evasions++
				case component.EvasionFailed, component.EvadedUnsuccessfully:
					r.FailedEvasions++
				}
			}
		case ecs.GoalFinishedEvent:
			if r := s.report(data.Entity); r != nil {
				r.Goal = data.State
				r.FinishedAt = w.Time()
			}
			if driver, ok := s.owners[data.Entity]; ok {
				if r := s.reports[driver]; r != nil {
					r.Goal = data.State
					r.FinishedAt = w.Time()
				}
			}
		}
	}
}

func (s *ReportSystem) report(e ecs.Entity) *AgentReport {
	return s.reports[e]
}

// Reports returns copies in spawn order.
func (s *ReportSystem) Reports() []AgentReport {
	out := make([]AgentReport, 0, len(s.order))
	for _, e := range s.order {
		r := *s.reports[e]
		r.Brakings = make(map[component.BrakingReason]int, len(s.reports[e].Brakings))
		for k, v := range s.reports[e].Brakings {
			r.Brakings[k] = v
		}
		out = append(out, r)
	}
	return out
}

// Done reports whether no tracked agent still holds a goal.
func (s *ReportSystem) Done(w *ecs.World) bool {
	for _, e := range s.order {
		if nav, ok := w.Navigation(e); ok && nav.HasGoal() {
			return false
		}
	}
	return true
}

// String renders the reports as a plain table.
func (s *ReportSystem) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-10s %-8s %9s %-8s %8s %8s %8s\n", "agent", "type", "distance", "goal", "time", "searches", "evasions")
	for _, r := range s.Reports() {
		fmt.Fprintf(&b, "%-10s %-8s %9.2f %-8s %8.2f %8d %8d\n", r.Name, r.Archetype, r.Distance, r.Goal, r.FinishedAt, r.Searches, r.Evasions)
	}
	return b.String()
}
