// Package robot is the control core of the minibot: the per-cycle
// sense, filter, kinematics, actuate pipeline and the lifecycle that enables
// and disables it.
package robot

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"minibot-core/drive"
)

// State is the lifecycle state.
type State int

const (
	StateInit State = iota
	StateDisabled
	StateTeleop
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateDisabled:
		return "disabled"
	case StateTeleop:
		return "teleop"
	default:
		return "unknown"
	}
}

// Devices holds every hardware handle. It is built once by RobotInit and is
// the only place handles live.
type Devices struct {
	Bank     *ActuatorBank
	Sampler  *InputSampler
	Gyro     OrientationSensor
	Encoders []NamedEncoder

	lastHeading float64
	lastEncoder map[string]float64
}

type NamedEncoder struct {
	Name    string
	Encoder Encoder
}

// Diagnostics is a read-only snapshot of the orientation and encoder readings.
type Diagnostics struct {
	HeadingDeg float64
	Encoders   map[string]float64
	Output     drive.Command
}

func (d Diagnostics) String() string {
	names := make([]string, 0, len(d.Encoders))
	for n := range d.Encoders {
		names = append(names, n)
	}
	sort.Strings(names)

	var sb strings.Builder
	fmt.Fprintf(&sb, "heading=%.2fdeg", d.HeadingDeg)
	for _, n := range names {
		fmt.Fprintf(&sb, " encoder[%s]=%.4frot", n, d.Encoders[n])
	}
	fmt.Fprintf(&sb, " output=%.3f peak=%.3f", []float64(d.Output), d.Output.MaxAbs())
	return sb.String()
}

// Robot runs the lifecycle callbacks. All callbacks must be called from one
// goroutine; the Scheduler does that.
type Robot struct {
	cfg    Config
	hw     Hardware
	log    Logger
	faults *faultLog

	state   State
	dev     *Devices
	kin     drive.Kinematics
	shaper  drive.Shaper
	edges   *EdgeTrigger
	resetBt Button
	diagBt  Button

	session string
	cycles  uint64
}

func New(cfg Config, hw Hardware, log Logger) *Robot {
	return &Robot{
		cfg:    cfg,
		hw:     hw,
		log:    log,
		faults: newFaultLog(log, time.Second, 5),
	}
}

func (r *Robot) State() State { return r.state }

// Cycles returns the number of teleop cycles run in the current session.
func (r *Robot) Cycles() uint64 { return r.cycles }

// RobotInit validates the configuration, builds and configures every device
// handle and leaves the robot disabled. Any error is fatal.
func (r *Robot) RobotInit() error {
	if r.state != StateInit {
		return fmt.Errorf("robot already initialized (state %s)", r.state)
	}
	if err := r.cfg.Validate(); err != nil {
		return err
	}

	kin, err := drive.NewKinematics(r.cfg.Robot.Drive, r.cfg.Safety.MaxOutput)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	slots := make([]ActuatorSlot, 0, len(r.cfg.Actuators))
	for _, a := range r.cfg.Actuators {
		act, err := r.hw.Actuator(a.CANID)
		if err != nil {
			return fmt.Errorf("%w: actuator %s (id %d): %w", ErrHardwareUnavailable, a.Slot, a.CANID, err)
		}
		slots = append(slots, ActuatorSlot{Name: a.Slot, Actuator: act, Inverted: a.Inverted})
	}
	bank, err := NewActuatorBank(slots, kin.SlotNames())
	if err != nil {
		return err
	}

	gyro, err := r.hw.Orientation(r.cfg.Orientation.CANID)
	if err != nil {
		return fmt.Errorf("%w: orientation sensor (id %d): %w", ErrHardwareUnavailable, r.cfg.Orientation.CANID, err)
	}

	encoders := make([]NamedEncoder, 0, len(r.cfg.Encoders))
	for _, e := range r.cfg.Encoders {
		enc, err := r.hw.Encoder(e.CANID)
		if err != nil {
			return fmt.Errorf("%w: encoder %s (id %d): %w", ErrHardwareUnavailable, e.Name, e.CANID, err)
		}
		encoders = append(encoders, NamedEncoder{Name: e.Name, Encoder: enc})
	}

	pad, err := r.hw.InputDevice(r.cfg.Input.Port)
	if err != nil {
		return fmt.Errorf("%w: input device (port %d): %w", ErrHardwareUnavailable, r.cfg.Input.Port, err)
	}

	if err := bank.Configure(NeutralBrake); err != nil {
		return err
	}

	r.resetBt = Button(r.cfg.Input.ResetHeadingButton)
	r.diagBt = Button(r.cfg.Input.DiagnosticsButton)
	r.kin = kin
	r.shaper = drive.Shaper{Threshold: r.cfg.Safety.Deadband, TurnScale: r.cfg.Safety.TurnScale}
	r.edges = NewEdgeTrigger(r.resetBt, r.diagBt)
	r.dev = &Devices{
		Bank:        bank,
		Sampler:     NewInputSampler(pad, bindingsFromConfig(r.cfg.Input, r.resetBt, r.diagBt), r.faults),
		Gyro:        gyro,
		Encoders:    encoders,
		lastEncoder: make(map[string]float64, len(encoders)),
	}
	r.state = StateDisabled

	if err := bank.StopAll(); err != nil {
		r.log.Warn("initial stop: %v", err)
	}
	r.log.Info("%s initialized: drive=%s slots=%v max_output=%.2f deadband=%.2f neutral=%s",
		r.cfg.Robot.Name, kin.Name(), bank.Slots(), r.cfg.Safety.MaxOutput, r.cfg.Safety.Deadband, NeutralBrake)
	return nil
}

// TeleopInit enters teleop. The heading reference is reset so readings are
// relative to the pose at enable time.
func (r *Robot) TeleopInit() error {
	if r.state == StateInit || r.dev == nil {
		return ErrNotInitialized
	}
	r.session = uuid.NewString()
	r.cycles = 0
	r.edges.Reset()
	r.state = StateTeleop
	if err := r.resetHeading(); err != nil {
		r.log.Warn("teleop started (session %s): could not reset heading: %v", r.session, err)
		return nil
	}
	r.log.Info("teleop started (session %s): heading reset", r.session)
	return nil
}

// TeleopPeriodic runs one control cycle. It never returns an error: faults are
// logged and the cycle completes with fallback values.
func (r *Robot) TeleopPeriodic() {
	if r.state != StateTeleop {
		return
	}
	d := r.dev

	sample, buttons := d.Sampler.Sample()
	in := r.shaper.Shape(drive.Intent{
		Forward:  sample.Forward,
		Strafe:   sample.Strafe,
		Rotation: sample.Rotation,
	})
	cmd := r.kin.Compute(in.Forward, in.Strafe, in.Rotation)
	cmd = drive.Limit(cmd, r.cfg.Safety.MaxOutput)
	if err := d.Bank.Apply(cmd); err != nil {
		r.faults.Warn("apply: %v", err)
	}

	r.edges.Update(buttons)
	if r.edges.Fired(r.resetBt) {
		if err := r.resetHeading(); err != nil {
			r.faults.Warn("could not reset heading: %v", err)
		} else {
			r.log.Info("heading reset (session %s)", r.session)
		}
	}
	if r.edges.Fired(r.diagBt) {
		r.log.Info("diagnostics: %s", r.Diagnostics())
	}
	r.cycles++
}

// DisabledInit stops every actuator before doing anything else. It is safe to
// call in any state and always completes.
func (r *Robot) DisabledInit() {
	if r.dev != nil {
		if err := r.dev.Bank.StopAll(); err != nil {
			r.log.Error("stop all: %v", err)
		}
	}
	switch r.state {
	case StateTeleop:
		r.log.Info("disabled after %d cycles (session %s)", r.cycles, r.session)
		r.state = StateDisabled
	case StateDisabled:
	default:
		r.log.Warn("disable requested before init")
	}
}

// DisabledPeriodic keeps writing zero while disabled.
func (r *Robot) DisabledPeriodic() {
	if r.dev == nil {
		return
	}
	if err := r.dev.Bank.StopAll(); err != nil {
		r.faults.Warn("disabled stop: %v", err)
	}
}

// Diagnostics reads the orientation sensor and every encoder. Failed reads
// report the last good value. Nothing is written to the actuators.
func (r *Robot) Diagnostics() Diagnostics {
	if r.dev == nil {
		return Diagnostics{}
	}
	d := r.dev
	out := Diagnostics{
		HeadingDeg: r.heading(),
		Encoders:   make(map[string]float64, len(d.Encoders)),
		Output:     d.Bank.Last(),
	}
	for _, e := range d.Encoders {
		pos, err := e.Encoder.AbsolutePosition()
		if err != nil {
			pos = d.lastEncoder[e.Name]
			r.faults.Warn("encoder %s: %v; holding %.4f", e.Name, err, pos)
		} else {
			d.lastEncoder[e.Name] = pos
		}
		out.Encoders[e.Name] = pos
	}
	return out
}

func (r *Robot) heading() float64 {
	h, err := r.dev.Gyro.ReadHeading()
	if err != nil {
		r.faults.Warn("orientation: %v; holding %.2f", err, r.dev.lastHeading)
		return r.dev.lastHeading
	}
	r.dev.lastHeading = h
	return h
}

func (r *Robot) resetHeading() error {
	if err := r.dev.Gyro.ResetHeading(); err != nil {
		return err
	}
	r.dev.lastHeading = 0
	return nil
}
