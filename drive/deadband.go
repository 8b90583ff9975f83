package drive

import "math"

// Deadband returns 0 when |value| < threshold and value unchanged otherwise.
// The remaining range is not rescaled.
func Deadband(value, threshold float64) float64 {
	if math.Abs(value) < threshold {
		return 0.0
	}
	return value
}

// Intent is a normalized driver request in [-1, 1] per axis.
type Intent struct {
	Forward  float64
	Strafe   float64
	Rotation float64
}

// Shaper applies the per-axis deadband and the turn scale to raw stick input.
type Shaper struct {
	Threshold float64
	TurnScale float64 // 0 means unscaled
}

// Shape deadbands every axis, then scales rotation. Kinematics only ever sees
// shaped input.
func (s Shaper) Shape(in Intent) Intent {
	out := Intent{
		Forward:  Deadband(in.Forward, s.Threshold),
		Strafe:   Deadband(in.Strafe, s.Threshold),
		Rotation: Deadband(in.Rotation, s.Threshold),
	}
	if s.TurnScale > 0 {
		out.Rotation *= s.TurnScale
	}
	return out
}
