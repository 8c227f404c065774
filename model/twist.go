package model

import "math"

// Twist is a velocity command for the platform base: linear velocity along
// the body x-axis and angular velocity about the vertical axis, both in SI
// units (m/s, rad/s).
type Twist struct {
	Linear  float64 `json:"linear"`
	Angular float64 `json:"angular"`
}

// Valid reports whether both components are finite. Commands carrying NaN or
// Inf are rejected at the simulator boundary rather than propagated into the
// state vector.
func (t Twist) Valid() bool {
	return !math.IsNaN(t.Linear) && !math.IsInf(t.Linear, 0) &&
		!math.IsNaN(t.Angular) && !math.IsInf(t.Angular, 0)
}
