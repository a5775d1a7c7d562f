package component

import "github.com/jakecoffman/cp"

// Transform is the pose the steering writes each tick.
type Transform struct {
	Position cp.Vector
	// Height is the ground height under Position, supplied by the world model.
	Height float64
	Yaw    float64
}

// Forward is the unit vector along Yaw.
func (t Transform) Forward() cp.Vector {
	return cp.ForAngle(t.Yaw)
}

// Motion is the kinematic state paired with a Transform.
type Motion struct {
	Velocity cp.Vector
	// Speed is signed: negative while reversing.
	Speed float64
}
