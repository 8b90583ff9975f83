package robot

import "fmt"

// Axis names one analog input of the driver's gamepad.
type Axis string

const (
	AxisLeftX        Axis = "left_x"
	AxisLeftY        Axis = "left_y"
	AxisRightX       Axis = "right_x"
	AxisRightY       Axis = "right_y"
	AxisLeftTrigger  Axis = "left_trigger"
	AxisRightTrigger Axis = "right_trigger"
)

// Button names one digital input of the driver's gamepad.
type Button string

const (
	ButtonA           Button = "a"
	ButtonB           Button = "b"
	ButtonX           Button = "x"
	ButtonY           Button = "y"
	ButtonLeftBumper  Button = "lb"
	ButtonRightBumper Button = "rb"
	ButtonBack        Button = "back"
	ButtonStart       Button = "start"
)

var (
	knownAxes = map[Axis]bool{
		AxisLeftX: true, AxisLeftY: true, AxisRightX: true,
		AxisRightY: true, AxisLeftTrigger: true, AxisRightTrigger: true,
	}
	knownButtons = map[Button]bool{
		ButtonA: true, ButtonB: true, ButtonX: true, ButtonY: true,
		ButtonLeftBumper: true, ButtonRightBumper: true, ButtonBack: true, ButtonStart: true,
	}
)

func ParseAxis(s string) (Axis, error) {
	a := Axis(s)
	if !knownAxes[a] {
		return "", fmt.Errorf("unknown axis %q", s)
	}
	return a, nil
}

func ParseButton(s string) (Button, error) {
	b := Button(s)
	if !knownButtons[b] {
		return "", fmt.Errorf("unknown button %q", s)
	}
	return b, nil
}

// AxisSample is the driver's request for one cycle, each value in [-1, 1].
type AxisSample struct {
	Forward  float64
	Strafe   float64
	Rotation float64
}

// ButtonState is the held state of every sampled button for one cycle.
type ButtonState map[Button]bool

// NeutralMode is what a motor controller does when commanded zero output.
type NeutralMode int

const (
	NeutralCoast NeutralMode = iota
	NeutralBrake
)

func (m NeutralMode) String() string {
	switch m {
	case NeutralCoast:
		return "coast"
	case NeutralBrake:
		return "brake"
	default:
		return "unknown"
	}
}
