package ecs

import (
	"fmt"
	"strings"
	"time"
)

// System updates a world each tick.
type System interface {
	Update(w *World)
}

// SystemTiming is the wall time one system spent in its update.
type SystemTiming struct {
	Name string
	Last time.Duration
	Max  time.Duration
}

// Scheduler runs systems in insertion order and times each one.
type Scheduler struct {
	systems []System
	timings []SystemTiming
	now     func() time.Time
}

func NewScheduler(systems ...System) *Scheduler {
	s := &Scheduler{now: time.Now}
	for _, sys := range systems {
		s.Add(sys)
	}
	return s
}

func (s *Scheduler) Add(system System) {
	if system == nil {
		return
	}
	s.systems = append(s.systems, system)
	s.timings = append(s.timings, SystemTiming{Name: systemName(system)})
}

func (s *Scheduler) Update(w *World) {
	for i, system := range s.systems {
		start := s.now()
		system.Update(w)
		took := s.now().Sub(start)
		s.timings[i].Last = took
		s.timings[i].Max = max(s.timings[i].Max, took)
	}
}

func (s *Scheduler) Systems() []System {
	systems := make([]System, 0, len(s.systems))
	return append(systems, s.systems...)
}

// Timings returns one entry per system in update order.
func (s *Scheduler) Timings() []SystemTiming {
	out := make([]SystemTiming, len(s.timings))
	copy(out, s.timings)
	return out
}

// systemName is the bare type name, e.g. SteeringSystem for
// *system.SteeringSystem.
func systemName(s System) string {
	name := fmt.Sprintf("%T", s)
	name = strings.TrimPrefix(name, "*")
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	return name
}
