package common

import "strings"

// FlagSet is a typed bit set. F values are bit positions, so the stored
// bits are exactly the ones written to the wire.
type FlagSet[F ~uint8] struct {
	bits uint32
}

// NewFlagSet returns a set with the given flags raised.
func NewFlagSet[F ~uint8](flags ...F) FlagSet[F] {
	var s FlagSet[F]
	for _, f := range flags {
		s.Set(f)
	}
	return s
}

// FlagSetFromBits rebuilds a set from its raw bits.
func FlagSetFromBits[F ~uint8](bits uint32) FlagSet[F] {
	return FlagSet[F]{bits: bits}
}

func (s FlagSet[F]) Has(f F) bool {
	return f < 32 && s.bits&(1<<uint32(f)) != 0
}

// HasAny reports whether any of flags is raised.
func (s FlagSet[F]) HasAny(flags ...F) bool {
	for _, f := range flags {
		if s.Has(f) {
			return true
		}
	}
	return false
}

func (s *FlagSet[F]) Set(f F) {
	if f >= 32 {
		return
	}
	s.bits |= 1 << uint32(f)
}

func (s *FlagSet[F]) Clear(f F) {
	if f >= 32 {
		return
	}
	s.bits &^= 1 << uint32(f)
}

// Assign raises or clears f.
func (s *FlagSet[F]) Assign(f F, on bool) {
	if on {
		s.Set(f)
		return
	}
	s.Clear(f)
}

// Union returns the flags raised in either set.
func (s FlagSet[F]) Union(o FlagSet[F]) FlagSet[F] {
	return FlagSet[F]{bits: s.bits | o.bits}
}

// Intersects reports whether the sets share a raised flag.
func (s FlagSet[F]) Intersects(o FlagSet[F]) bool {
	return s.bits&o.bits != 0
}

func (s FlagSet[F]) Empty() bool {
	return s.bits == 0
}

func (s FlagSet[F]) Bits() uint32 {
	return s.bits
}

// Describe lists raised bit positions using name, e.g. "evasion|portal".
func (s FlagSet[F]) Describe(name func(F) string) string {
	if s.bits == 0 {
		return "none"
	}
	parts := make([]string, 0, 4)
	for i := F(0); i < 32; i++ {
		if s.Has(i) {
			parts = append(parts, name(i))
		}
	}
	return strings.Join(parts, "|")
}
