package common

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

type testFlag uint8

const (
	testFlagA testFlag = iota
	testFlagB
	testFlagC
)

func TestFlagSetBits(t *testing.T) {
	s := NewFlagSet(testFlagA, testFlagC)
	assert.Equal(t, uint32(0b101), s.Bits())
	assert.True(t, s.Has(testFlagA))
	assert.False(t, s.Has(testFlagB))
	assert.True(t, s.HasAny(testFlagB, testFlagC))

	s.Clear(testFlagA)
	s.Assign(testFlagB, true)
	assert.Equal(t, uint32(0b110), s.Bits())

	back := FlagSetFromBits[testFlag](s.Bits())
	assert.Equal(t, s, back)
	assert.True(t, back.Intersects(NewFlagSet(testFlagC)))
	assert.False(t, FlagSet[testFlag]{}.Intersects(back))
}

func TestFlagSetDescribe(t *testing.T) {
	name := func(f testFlag) string { return fmt.Sprintf("f%d", f) }
	assert.Equal(t, "none", FlagSet[testFlag]{}.Describe(name))
	assert.Equal(t, "f0|f2", NewFlagSet(testFlagA, testFlagC).Describe(name))
}

func TestFlagSetIgnoresOutOfRange(t *testing.T) {
	var s FlagSet[testFlag]
	s.Set(40)
	assert.True(t, s.Empty())
	assert.False(t, s.Has(40))
}

func TestMathHelpers(t *testing.T) {
	assert.InDelta(t, 4.0, SpeedAfterDistance(0, 2, 4), 1e-9)
	assert.Equal(t, 0.0, SpeedAfterDistance(1, -10, 5))
	assert.InDelta(t, 2.0, BrakingDistance(4, 0, 4), 1e-9)
	assert.Equal(t, 0.0, BrakingDistance(1, 2, 4))
	assert.False(t, IsFinite(math.NaN()))
	assert.InDelta(t, -3.0, NormalizeAngle(-3.0), 1e-9)
	assert.InDelta(t, 0.5, NormalizeAngle(0.5+4*math.Pi), 1e-9)
}
