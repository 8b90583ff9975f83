// Package sim provides in-memory hardware for bench runs and tests.
package sim

import (
	"errors"
	"fmt"
	"sync"

	"minibot-core/robot"
)

var ErrNoDevice = errors.New("no such device")

// Write is one recorded actuator output.
type Write struct {
	ID    int
	Value float64
}

// Hardware hands out simulated devices. Ids listed in Missing fail to
// construct, which exercises the fatal init path.
type Hardware struct {
	mu        sync.Mutex
	actuators map[int]*Motor
	encoders  map[int]*Encoder
	gyros     map[int]*Gyro
	pads      map[int]*Gamepad
	writes    []Write

	Missing map[int]bool
}

var _ robot.Hardware = (*Hardware)(nil)

func NewHardware() *Hardware {
	return &Hardware{
		actuators: map[int]*Motor{},
		encoders:  map[int]*Encoder{},
		gyros:     map[int]*Gyro{},
		pads:      map[int]*Gamepad{},
		Missing:   map[int]bool{},
	}
}

func (h *Hardware) Actuator(id int) (robot.Actuator, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.Missing[id] {
		return nil, fmt.Errorf("motor %d: %w", id, ErrNoDevice)
	}
	return h.motorLocked(id), nil
}

func (h *Hardware) motorLocked(id int) *Motor {
	m, ok := h.actuators[id]
	if !ok {
		m = &Motor{id: id, hw: h}
		h.actuators[id] = m
	}
	return m
}

func (h *Hardware) Encoder(id int) (robot.Encoder, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.encoders[id]
	if !ok {
		e = &Encoder{id: id}
		h.encoders[id] = e
	}
	return e, nil
}

func (h *Hardware) Orientation(id int) (robot.OrientationSensor, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	g, ok := h.gyros[id]
	if !ok {
		g = &Gyro{}
		h.gyros[id] = g
	}
	return g, nil
}

func (h *Hardware) InputDevice(port int) (robot.InputDevice, error) {
	return h.Gamepad(port), nil
}

// Motor returns the simulated motor with id, creating it if needed.
func (h *Hardware) Motor(id int) *Motor {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.motorLocked(id)
}

func (h *Hardware) Gyro(id int) *Gyro {
	g, _ := h.Orientation(id)
	return g.(*Gyro)
}

func (h *Hardware) EncoderAt(id int) *Encoder {
	e, _ := h.Encoder(id)
	return e.(*Encoder)
}

func (h *Hardware) Gamepad(port int) *Gamepad {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.pads[port]
	if !ok {
		p = NewGamepad()
		h.pads[port] = p
	}
	return p
}

// Writes returns every actuator write in order, across all motors.
func (h *Hardware) Writes() []Write {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Write, len(h.writes))
	copy(out, h.writes)
	return out
}

func (h *Hardware) ClearWrites() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.writes = h.writes[:0]
}

func (h *Hardware) record(w Write) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.writes = append(h.writes, w)
}

type Motor struct {
	mu       sync.Mutex
	id       int
	hw       *Hardware
	output   float64
	neutral  robot.NeutralMode
	inverted bool
	fail     error
}

func (m *Motor) ID() int { return m.id }

func (m *Motor) SetOutput(fraction float64) error {
	m.mu.Lock()
	if m.fail != nil {
		err := m.fail
		m.mu.Unlock()
		return err
	}
	m.output = fraction
	m.mu.Unlock()
	m.hw.record(Write{ID: m.id, Value: fraction})
	return nil
}

func (m *Motor) SetNeutralMode(mode robot.NeutralMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.neutral = mode
	return nil
}

func (m *Motor) SetInverted(inv bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inverted = inv
	return nil
}

// Fail makes every later SetOutput return err. Pass nil to recover.
func (m *Motor) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

func (m *Motor) Output() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.output
}

func (m *Motor) NeutralMode() robot.NeutralMode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.neutral
}

func (m *Motor) Inverted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inverted
}

// Gyro keeps a raw yaw and the raw yaw captured at the last reset.
type Gyro struct {
	mu     sync.Mutex
	raw    float64
	offset float64
	fail   error
}

func (g *Gyro) ResetHeading() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail != nil {
		return g.fail
	}
	g.offset = g.raw
	return nil
}

func (g *Gyro) ReadHeading() (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail != nil {
		return 0, g.fail
	}
	return g.raw - g.offset, nil
}

// SetRaw sets the yaw the sensor would measure with no reset applied.
func (g *Gyro) SetRaw(deg float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.raw = deg
}

func (g *Gyro) Fail(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fail = err
}

type Encoder struct {
	mu   sync.Mutex
	id   int
	pos  float64
	fail error
}

func (e *Encoder) ID() int { return e.id }

func (e *Encoder) AbsolutePosition() (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fail != nil {
		return 0, e.fail
	}
	return e.pos, nil
}

func (e *Encoder) Set(rot float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pos = rot
}

func (e *Encoder) Fail(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fail = err
}

// Gamepad holds settable stick and button state. Individual axes or buttons
// can be made to fail reads.
type Gamepad struct {
	mu          sync.Mutex
	axes        map[robot.Axis]float64
	buttons     map[robot.Button]bool
	failAxis    map[robot.Axis]error
	failButtons map[robot.Button]error
}

var _ robot.InputDevice = (*Gamepad)(nil)

func NewGamepad() *Gamepad {
	return &Gamepad{
		axes:        map[robot.Axis]float64{},
		buttons:     map[robot.Button]bool{},
		failAxis:    map[robot.Axis]error{},
		failButtons: map[robot.Button]error{},
	}
}

func (p *Gamepad) Axis(a robot.Axis) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failAxis[a]; err != nil {
		return 0, err
	}
	return p.axes[a], nil
}

func (p *Gamepad) Button(b robot.Button) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failButtons[b]; err != nil {
		return false, err
	}
	return p.buttons[b], nil
}

func (p *Gamepad) SetAxis(a robot.Axis, v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.axes[a] = v
}

func (p *Gamepad) SetButton(b robot.Button, held bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buttons[b] = held
}

func (p *Gamepad) FailAxis(a robot.Axis, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failAxis[a] = err
}

func (p *Gamepad) FailButton(b robot.Button, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failButtons[b] = err
}

// Release centers the sticks and releases every button.
func (p *Gamepad) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	clear(p.axes)
	clear(p.buttons)
}
