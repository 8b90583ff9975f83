package robot

import (
	"fmt"
	"math"

	"minibot-core/drive"
)

// InputBindings maps gamepad axes and buttons onto driver intent.
type InputBindings struct {
	Forward       Axis
	Strafe        Axis
	Rotation      Axis
	InvertForward bool
	Buttons       []Button
}

func bindingsFromConfig(c InputConfig, buttons ...Button) InputBindings {
	return InputBindings{
		Forward:       Axis(c.ForwardAxis),
		Strafe:        Axis(c.StrafeAxis),
		Rotation:      Axis(c.RotationAxis),
		InvertForward: c.InvertForward,
		Buttons:       buttons,
	}
}

// InputSampler polls the input device once per cycle. A failed read of one
// signal falls back to the last good value of that signal only.
type InputSampler struct {
	dev        InputDevice
	bind       InputBindings
	lastAxis   map[Axis]float64
	lastButton map[Button]bool
	faults     *faultLog
}

func NewInputSampler(dev InputDevice, bind InputBindings, faults *faultLog) *InputSampler {
	return &InputSampler{
		dev:        dev,
		bind:       bind,
		lastAxis:   make(map[Axis]float64, 3),
		lastButton: make(map[Button]bool, len(bind.Buttons)),
		faults:     faults,
	}
}

// Sample reads the bound axes and buttons.
func (s *InputSampler) Sample() (AxisSample, ButtonState) {
	sample := AxisSample{
		Forward:  s.axis(s.bind.Forward),
		Strafe:   s.axis(s.bind.Strafe),
		Rotation: s.axis(s.bind.Rotation),
	}
	if s.bind.InvertForward {
		sample.Forward = -sample.Forward
	}

	buttons := make(ButtonState, len(s.bind.Buttons))
	for _, b := range s.bind.Buttons {
		buttons[b] = s.button(b)
	}
	return sample, buttons
}

func (s *InputSampler) axis(a Axis) float64 {
	v, err := s.dev.Axis(a)
	if err == nil && math.IsNaN(v) {
		err = fmt.Errorf("%w: axis %s returned NaN", ErrTransientRead, a)
	}
	if err != nil {
		last := s.lastAxis[a]
		s.faults.Warn("input axis %s: %v; holding %.3f", a, err, last)
		return last
	}
	v = drive.ClampFloat(v, -1, 1)
	s.lastAxis[a] = v
	return v
}

func (s *InputSampler) button(b Button) bool {
	v, err := s.dev.Button(b)
	if err != nil {
		last := s.lastButton[b]
		s.faults.Warn("input button %s: %v; holding %t", b, err, last)
		return last
	}
	s.lastButton[b] = v
	return v
}
