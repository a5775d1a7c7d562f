package ecs

import "github.com/milk9111/navcore/ecs/component"

// ForEach visits every entity holding a component of kind a.
func ForEach[A any](w *World, a component.ComponentKind[A], fn func(Entity, *A)) {
	sa := storeFor(w, a, false)
	if sa == nil {
		return
	}
	for _, e := range snapshot(sa.Entities()) {
		if v := sa.Get(e); v != nil {
			fn(e, v)
		}
	}
}

// ForEach2 visits entities holding both kinds.
func ForEach2[A, B any](w *World, a component.ComponentKind[A], b component.ComponentKind[B], fn func(Entity, *A, *B)) {
	sa, sb := storeFor(w, a, false), storeFor(w, b, false)
	if sa == nil || sb == nil {
		return
	}
	for _, e := range snapshot(sa.Entities()) {
		va, vb := sa.Get(e), sb.Get(e)
		if va != nil && vb != nil {
			fn(e, va, vb)
		}
	}
}

// ForEach3 visits entities holding all three kinds.
func ForEach3[A, B, C any](w *World, a component.ComponentKind[A], b component.ComponentKind[B], c component.ComponentKind[C], fn func(Entity, *A, *B, *C)) {
	sa, sb, sc := storeFor(w, a, false), storeFor(w, b, false), storeFor(w, c, false)
	if sa == nil || sb == nil || sc == nil {
		return
	}
	for _, e := range snapshot(sa.Entities()) {
		va, vb, vc := sa.Get(e), sb.Get(e), sc.Get(e)
		if va != nil && vb != nil && vc != nil {
			fn(e, va, vb, vc)
		}
	}
}

// snapshot lets callbacks add or remove components while iterating.
func snapshot(ents []Entity) []Entity {
	return append([]Entity(nil), ents...)
}
