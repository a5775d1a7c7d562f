package system

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/d5/tengo/v2"
	"github.com/d5/tengo/v2/stdlib"
	"github.com/milk9111/navcore/ecs"
	"github.com/milk9111/navcore/ecs/component"
	"github.com/milk9111/navcore/prefabs"
)

// ConflictDecision is a resolver's verdict on a candidate reservation.
type ConflictDecision struct {
	Admit bool
	// Evict lists existing reservations to delete when Admit is set.
	Evict []component.Reservation
}

// ReservationConflictResolver decides whether a candidate reservation may
// enter an area that already holds intersecting reservations. conflicts is
// never empty and may include the candidate's own reserver.
type ReservationConflictResolver interface {
	Resolve(candidate component.Reservation, conflicts []component.Reservation) ConflictDecision
}

// AllowsNoConflictsResolver is first come, first served: a candidate is
// rejected as soon as another reserver holds an intersecting window.
type AllowsNoConflictsResolver struct{}

func (AllowsNoConflictsResolver) Resolve(candidate component.Reservation, conflicts []component.Reservation) ConflictDecision {
	for _, c := range conflicts {
		if c.Reserver != candidate.Reserver {
			return ConflictDecision{}
		}
	}
	return ConflictDecision{Admit: true}
}

// PriorityConflictResolver admits a candidate whose reserver outranks every
// other conflicting reserver and evicts their reservations. Ties keep the
// existing reservation.
type PriorityConflictResolver struct {
	Priority func(component.EntityID) int32
}

func NewPriorityConflictResolver(priority func(component.EntityID) int32) PriorityConflictResolver {
	return PriorityConflictResolver{Priority: priority}
}

func (r PriorityConflictResolver) Resolve(candidate component.Reservation, conflicts []component.Reservation) ConflictDecision {
	if r.Priority == nil {
		return AllowsNoConflictsResolver{}.Resolve(candidate, conflicts)
	}
	mine := r.Priority(candidate.Reserver)
	var evict []component.Reservation
	for _, c := range conflicts {
		if c.Reserver == candidate.Reserver {
			continue
		}
		if r.Priority(c.Reserver) >= mine {
			return ConflictDecision{}
		}
		evict = append(evict, c)
	}
	return ConflictDecision{Admit: true, Evict: evict}
}

const resolverDispatchScript = `
__result = resolve(__candidate, __conflicts)
`

// ScriptedConflictResolver delegates the decision to a tengo script that
// defines resolve(candidate, conflicts). Both arguments carry begin, end,
// reserver and priority fields; the script returns a map with an admit bool
// and an evict array of indices into conflicts. Script errors fall back to
// first come, first served.
type ScriptedConflictResolver struct {
	name     string
	compiled *tengo.Compiled
	priority func(component.EntityID) int32
	fallback ReservationConflictResolver
	logger   *slog.Logger
}

// NewScriptedConflictResolver compiles the named script from
// prefabs/scripts.
func NewScriptedConflictResolver(name string, priority func(component.EntityID) int32, logger *slog.Logger) (*ScriptedConflictResolver, error) {
	src, err := prefabs.LoadScript(name)
	if err != nil {
		return nil, fmt.Errorf("reservation: load script %s: %w", name, err)
	}
	return compileConflictScript(name, src, priority, logger)
}

func compileConflictScript(name string, src []byte, priority func(component.EntityID) int32, logger *slog.Logger) (*ScriptedConflictResolver, error) {
	if logger == nil {
		logger = slog.Default()
	}
	script := tengo.NewScript([]byte(string(src) + "\n" + resolverDispatchScript))
	_ = script.Add("__candidate", map[string]any{})
	_ = script.Add("__conflicts", []any{})
	_ = script.Add("__result", map[string]any{})
	script.SetImports(stdlib.GetModuleMap(stdlib.AllModuleNames()...))

	// A script without resolve fails here on the dispatch line.
	compiled, err := script.Compile()
	if err != nil {
		return nil, fmt.Errorf("reservation: compile script %s: %w", name, err)
	}
	return &ScriptedConflictResolver{
		name:     name,
		compiled: compiled,
		priority: priority,
		fallback: AllowsNoConflictsResolver{},
		logger:   logger,
	}, nil
}

func (s *ScriptedConflictResolver) Name() string {
	return s.name
}

func (s *ScriptedConflictResolver) reservationObject(r component.Reservation) map[string]any {
	var prio int64
	if s.priority != nil {
		prio = int64(s.priority(r.Reserver))
	}
	return map[string]any{
		"begin":    r.Begin,
		"end":      r.End,
		"reserver": int64(r.Reserver),
		"priority": prio,
	}
}

func (s *ScriptedConflictResolver) Resolve(candidate component.Reservation, conflicts []component.Reservation) ConflictDecision {
	d, err := s.run(candidate, conflicts)
	if err != nil {
		s.logger.Warn("reservation: script resolver failed, using first come first served",
			slog.String("script", s.name), slog.Any("err", err))
		return s.fallback.Resolve(candidate, conflicts)
	}
	return d
}

func (s *ScriptedConflictResolver) run(candidate component.Reservation, conflicts []component.Reservation) (ConflictDecision, error) {
	list := make([]any, 0, len(conflicts))
	for _, c := range conflicts {
		list = append(list, s.reservationObject(c))
	}
	if err := s.compiled.Set("__candidate", s.reservationObject(candidate)); err != nil {
		return ConflictDecision{}, err
	}
	if err := s.compiled.Set("__conflicts", list); err != nil {
		return ConflictDecision{}, err
	}
	if err := s.compiled.Run(); err != nil {
		return ConflictDecision{}, err
	}

	result, ok := objectToAny(s.compiled.Get("__result").Object()).(map[string]any)
	if !ok {
		return ConflictDecision{}, fmt.Errorf("resolve must return a map")
	}
	admit, _ := result["admit"].(bool)
	d := ConflictDecision{Admit: admit}
	if !admit {
		return d, nil
	}
	evict, _ := result["evict"].([]any)
	for _, v := range evict {
		i, ok := v.(int)
		if !ok || i < 0 || i >= len(conflicts) {
			return ConflictDecision{}, fmt.Errorf("evict index %v out of range", v)
		}
		d.Evict = append(d.Evict, conflicts[i])
	}
	return d, nil
}

func objectAsString(obj tengo.Object) string {
	if obj == nil {
		return ""
	}
	switch v := obj.(type) {
	case *tengo.String:
		return v.Value
	default:
		return strings.Trim(v.String(), "\"")
	}
}

func objectToAny(obj tengo.Object) any {
	if obj == nil {
		return nil
	}

	switch v := obj.(type) {
	case *tengo.String:
		return v.Value
	case *tengo.Int:
		return int(v.Value)
	case *tengo.Float:
		return v.Value
	case *tengo.Bool:
		return !v.IsFalsy()
	case *tengo.Array:
		out := make([]any, 0, len(v.Value))
		for _, item := range v.Value {
			out = append(out, objectToAny(item))
		}
		return out
	case *tengo.ImmutableArray:
		out := make([]any, 0, len(v.Value))
		for _, item := range v.Value {
			out = append(out, objectToAny(item))
		}
		return out
	case *tengo.Map:
		out := make(map[string]any, len(v.Value))
		for k, item := range v.Value {
			out[k] = objectToAny(item)
		}
		return out
	case *tengo.ImmutableMap:
		out := make(map[string]any, len(v.Value))
		for k, item := range v.Value {
			out[k] = objectToAny(item)
		}
		return out
	default:
		return objectAsString(obj)
	}
}

// ResolverFromSpec builds the resolver selected in steering.yaml.
func ResolverFromSpec(spec prefabs.ReservationSpec, priority func(component.EntityID) int32, logger *slog.Logger) (ReservationConflictResolver, error) {
	switch strings.ToLower(spec.Resolver) {
	case "", "fcfs":
		return AllowsNoConflictsResolver{}, nil
	case "priority":
		return NewPriorityConflictResolver(priority), nil
	case "script":
		if spec.Script == "" {
			return nil, fmt.Errorf("reservation: script resolver needs a script")
		}
		return NewScriptedConflictResolver(spec.Script, priority, logger)
	}
	return nil, fmt.Errorf("reservation: unknown resolver %q", spec.Resolver)
}

// NavigationPriority ranks reservers by the priority on their navigation
// component. Unknown entities rank lowest.
func NavigationPriority(w *ecs.World) func(component.EntityID) int32 {
	return func(id component.EntityID) int32 {
		if nav, ok := w.NavigationByRef(id); ok {
			return nav.Priority
		}
		return 0
	}
}
