// Package drive turns normalized driver intent into per-actuator output
// fractions: input shaping, drive kinematics and output limiting.
package drive

import "math"

// ClampFloat clamps value between min and max
func ClampFloat(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// Command holds one output fraction per actuator slot, in the slot order of the
// Kinematics that produced it.
type Command []float64

// Zero returns a stop command with n slots.
func Zero(n int) Command {
	return make(Command, n)
}

// MaxAbs returns the largest component magnitude.
func (c Command) MaxAbs() float64 {
	m := 0.0
	for _, v := range c {
		m = math.Max(m, math.Abs(v))
	}
	return m
}
