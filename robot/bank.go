package robot

import (
	"errors"
	"fmt"

	"minibot-core/drive"
)

// ActuatorSlot binds a kinematics output slot to its motor controller.
type ActuatorSlot struct {
	Name     string
	Actuator Actuator
	Inverted bool
}

// ActuatorBank is the only writer of actuator handles.
type ActuatorBank struct {
	slots []ActuatorSlot
	last  drive.Command
}

// NewActuatorBank orders slots to match slotNames, the output order of the
// kinematics model, and rejects any mismatch.
func NewActuatorBank(slots []ActuatorSlot, slotNames []string) (*ActuatorBank, error) {
	byName := make(map[string]ActuatorSlot, len(slots))
	for _, s := range slots {
		if s.Actuator == nil {
			return nil, fmt.Errorf("%w: slot %s has no actuator", ErrConfiguration, s.Name)
		}
		if _, dup := byName[s.Name]; dup {
			return nil, fmt.Errorf("%w: slot %s bound twice", ErrConfiguration, s.Name)
		}
		byName[s.Name] = s
	}
	if len(byName) != len(slotNames) {
		return nil, fmt.Errorf("%w: %d actuators for %d slots", ErrConfiguration, len(byName), len(slotNames))
	}

	ordered := make([]ActuatorSlot, 0, len(slotNames))
	for _, name := range slotNames {
		s, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("%w: no actuator for slot %s", ErrConfiguration, name)
		}
		ordered = append(ordered, s)
	}
	return &ActuatorBank{
		slots: ordered,
		last:  drive.Zero(len(ordered)),
	}, nil
}

// Configure applies the neutral mode and inversion flags. Called once at init;
// a failure here means the device cannot be trusted and is fatal.
func (b *ActuatorBank) Configure(mode NeutralMode) error {
	for _, s := range b.slots {
		if err := s.Actuator.SetNeutralMode(mode); err != nil {
			return fmt.Errorf("%w: %s (id %d) neutral mode: %w", ErrHardwareUnavailable, s.Name, s.Actuator.ID(), err)
		}
		if err := s.Actuator.SetInverted(s.Inverted); err != nil {
			return fmt.Errorf("%w: %s (id %d) inversion: %w", ErrHardwareUnavailable, s.Name, s.Actuator.ID(), err)
		}
	}
	return nil
}

// Apply writes one component per actuator. Every actuator is written even if
// an earlier write fails or panics, and a zero command is written like any other. A
// command of the wrong length is replaced by a stop.
func (b *ActuatorBank) Apply(cmd drive.Command) error {
	var errs []error
	if len(cmd) != len(b.slots) {
		errs = append(errs, fmt.Errorf("command has %d components for %d actuators; stopping", len(cmd), len(b.slots)))
		cmd = drive.Zero(len(b.slots))
	}
	for i, s := range b.slots {
		if err := setOutput(s.Actuator, cmd[i]); err != nil {
			errs = append(errs, fmt.Errorf("%s (id %d): %w", s.Name, s.Actuator.ID(), err))
		}
	}
	copy(b.last, cmd)
	return errors.Join(errs...)
}

// setOutput turns a panicking actuator into an error so the rest of the bank
// is still written.
func setOutput(a Actuator, v float64) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("set output panicked: %v", rec)
		}
	}()
	return a.SetOutput(v)
}

// StopAll writes zero to every actuator regardless of what was commanded before.
func (b *ActuatorBank) StopAll() error {
	return b.Apply(drive.Zero(len(b.slots)))
}

// Last returns a copy of the most recent command written.
func (b *ActuatorBank) Last() drive.Command {
	out := make(drive.Command, len(b.last))
	copy(out, b.last)
	return out
}

func (b *ActuatorBank) Slots() []string {
	out := make([]string, len(b.slots))
	for i, s := range b.slots {
		out[i] = s.Name
	}
	return out
}
