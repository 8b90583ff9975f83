package drive

import "fmt"

// ValidateMaxOutput reports whether maxOutput is a usable output ceiling.
func ValidateMaxOutput(maxOutput float64) error {
	if !(maxOutput > 0 && maxOutput <= 1.0) {
		return fmt.Errorf("max output %.3f outside (0, 1]", maxOutput)
	}
	return nil
}

// Limit clamps every component to [-maxOutput, +maxOutput]. NaN components,
// which can only come from a faulted input path, become 0.
func Limit(cmd Command, maxOutput float64) Command {
	out := make(Command, len(cmd))
	for i, v := range cmd {
		if v != v {
			continue
		}
		out[i] = ClampFloat(v, -maxOutput, maxOutput)
	}
	return out
}
