package common

import (
	"math"

	"github.com/jakecoffman/cp"
)

// Epsilon is the tolerance used for float comparisons in navigation math.
const Epsilon = 1e-9

func Lerp(a, b, t float64) float64 {
	return a + t*(b-a)
}

func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// IsFinite reports whether f is neither NaN nor infinite.
func IsFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// IsFiniteVector reports whether both components of v are finite.
func IsFiniteVector(v cp.Vector) bool {
	return IsFinite(v.X) && IsFinite(v.Y)
}

// NearZero reports whether |f| is within Epsilon.
func NearZero(f float64) bool {
	return math.Abs(f) <= Epsilon
}

// NormalizeAngle wraps an angle into (-pi, pi].
func NormalizeAngle(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	if a <= -math.Pi {
		a += 2 * math.Pi
	} else if a > math.Pi {
		a -= 2 * math.Pi
	}
	return a
}

// Heading returns the yaw of v, or fallback when v is (near) zero.
func Heading(v cp.Vector, fallback float64) float64 {
	if v.LengthSq() <= Epsilon {
		return fallback
	}
	return v.ToAngle()
}

// SpeedAfterDistance returns the speed reached from v0 after accelerating
// with accel over dist. Negative accel decelerates and clamps at zero.
func SpeedAfterDistance(v0, accel, dist float64) float64 {
	sq := v0*v0 + 2*accel*dist
	if sq <= 0 {
		return 0
	}
	return math.Sqrt(sq)
}

// BrakingDistance is the distance needed to slow from v to target with decel.
func BrakingDistance(v, target, decel float64) float64 {
	if v <= target || decel <= 0 {
		return 0
	}
	return (v*v - target*target) / (2 * decel)
}
