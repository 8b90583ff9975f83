package robot

// InputDevice is a polled gamepad. Reads return the physical state as of the
// call; there is no buffering.
type InputDevice interface {
	Axis(Axis) (float64, error)
	Button(Button) (bool, error)
}

// Actuator is one motor controller addressed by a fixed bus id.
type Actuator interface {
	ID() int
	// SetOutput commands an open-loop output fraction in [-1, 1]
	SetOutput(fraction float64) error
	SetNeutralMode(NeutralMode) error
	SetInverted(bool) error
}

// OrientationSensor reports the robot heading in degrees relative to the last
// ResetHeading.
type OrientationSensor interface {
	ResetHeading() error
	ReadHeading() (float64, error)
}

// Encoder reports the absolute position of a module in rotations.
type Encoder interface {
	ID() int
	AbsolutePosition() (float64, error)
}

// Hardware constructs device handles by their fixed identifiers. Construction
// failures are fatal at init.
type Hardware interface {
	Actuator(id int) (Actuator, error)
	Encoder(id int) (Encoder, error)
	Orientation(id int) (OrientationSensor, error)
	InputDevice(port int) (InputDevice, error)
}

// ModeSource tells the scheduler whether the operator wants the robot enabled.
// Implementations report false when the operator link is lost.
type ModeSource interface {
	Enabled() bool
}

// Logger is the subset of utils.Logger the control core writes to.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	Critical(msg string, args ...any)
}
