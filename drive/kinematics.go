package drive

import "fmt"

// Slot names shared by the drive variants.
const (
	LeftDrive  = "left_drive"
	RightDrive = "right_drive"
	LeftSteer  = "left_steer"
	RightSteer = "right_steer"
)

// Variant names accepted in configuration.
const (
	ArcadeDifferentialVariant = "arcade_differential"
	SkidSteerQuadVariant      = "skid_steer_quad"
)

// Kinematics converts a normalized (forward, strafe, rotation) request into
// per-actuator output fractions.
type Kinematics interface {
	// Compute returns one output per slot, in SlotNames order
	Compute(forward, strafe, rotation float64) Command

	// SlotNames returns the actuator slots this model drives
	SlotNames() []string

	// Name returns the configuration name of the variant
	Name() string
}

// NewKinematics builds the variant selected in configuration.
func NewKinematics(variant string, maxSpeed float64) (Kinematics, error) {
	if err := ValidateMaxOutput(maxSpeed); err != nil {
		return nil, fmt.Errorf("%s: %w", variant, err)
	}
	switch variant {
	case ArcadeDifferentialVariant:
		return &ArcadeDifferential{MaxSpeed: maxSpeed}, nil
	case SkidSteerQuadVariant:
		return &SkidSteerQuad{Drive: ArcadeDifferential{MaxSpeed: maxSpeed}}, nil
	default:
		return nil, fmt.Errorf("unknown drive variant %q (want %s or %s)",
			variant, ArcadeDifferentialVariant, SkidSteerQuadVariant)
	}
}

// ArcadeDifferential mixes forward and rotation into a left and right output.
// Sums beyond the range saturate instead of being normalized, so full forward
// plus full rotation pins one side at MaxSpeed and stops the other.
type ArcadeDifferential struct {
	MaxSpeed float64
}

func (k *ArcadeDifferential) Compute(forward, _, rotation float64) Command {
	left := (forward - rotation) * k.MaxSpeed
	right := (forward + rotation) * k.MaxSpeed
	return Command{
		ClampFloat(left, -k.MaxSpeed, k.MaxSpeed),
		ClampFloat(right, -k.MaxSpeed, k.MaxSpeed),
	}
}

func (k *ArcadeDifferential) SlotNames() []string {
	return []string{LeftDrive, RightDrive}
}

func (k *ArcadeDifferential) Name() string { return ArcadeDifferentialVariant }

// SkidSteerQuad drives two modules that each have a drive and a steer motor.
// Drive outputs follow ArcadeDifferential. Steering is not solved: both steer
// outputs are always 0, which holds the modules straight ahead.
type SkidSteerQuad struct {
	Drive ArcadeDifferential
}

func (k *SkidSteerQuad) Compute(forward, strafe, rotation float64) Command {
	d := k.Drive.Compute(forward, strafe, rotation)
	return Command{d[0], d[1], 0, 0}
}

func (k *SkidSteerQuad) SlotNames() []string {
	return []string{LeftDrive, RightDrive, LeftSteer, RightSteer}
}

func (k *SkidSteerQuad) Name() string { return SkidSteerQuadVariant }
