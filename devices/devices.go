package devices

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"minibot-core/robot"
	"minibot-core/utils"
)

// ErrNoInput is returned for an input port with no device attached.
var ErrNoInput = errors.New("no input device on port")

// Motor is a motor controller taking a duty cycle command.
type Motor struct {
	bus *Bus
	id  int

	mu       sync.Mutex
	brake    bool
	inverted bool
}

func (m *Motor) ID() int { return m.id }

func (m *Motor) SetOutput(fraction float64) error {
	return m.bus.Send(FrameMotorCmd, m.id, map[string]float64{SignalDutyCycle: fraction})
}

func (m *Motor) SetNeutralMode(mode robot.NeutralMode) error {
	m.mu.Lock()
	m.brake = mode == robot.NeutralBrake
	m.mu.Unlock()
	return m.sendConfig()
}

func (m *Motor) SetInverted(inverted bool) error {
	m.mu.Lock()
	m.inverted = inverted
	m.mu.Unlock()
	return m.sendConfig()
}

// sendConfig always sends both flags; the frame carries them together.
func (m *Motor) sendConfig() error {
	m.mu.Lock()
	values := map[string]float64{
		SignalNeutralBrake: boolToFloat(m.brake),
		SignalInverted:     boolToFloat(m.inverted),
	}
	m.mu.Unlock()
	return m.bus.Send(FrameMotorCfg, m.id, values)
}

// Gyro reads yaw from a status-broadcasting IMU. The heading reference is kept
// here: ResetHeading captures the current raw yaw as zero. With no fresh status
// frame cached the reset is queued and taken from the next one that arrives.
type Gyro struct {
	bus *Bus
	id  int

	mu      sync.Mutex
	offset  float64
	pending bool
}

func (g *Gyro) raw() (float64, error) {
	v, err := g.bus.Latest(FrameGyroStatus, g.id)
	if err != nil {
		return 0, err
	}
	return v[SignalYaw], nil
}

func (g *Gyro) ReadHeading() (float64, error) {
	raw, err := g.raw()
	if err != nil {
		return 0, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending {
		g.offset = raw
		g.pending = false
	}
	return raw - g.offset, nil
}

func (g *Gyro) ResetHeading() error {
	raw, err := g.raw()
	g.mu.Lock()
	defer g.mu.Unlock()
	if err != nil {
		if !errors.Is(err, robot.ErrTransientRead) {
			return fmt.Errorf("reset heading: %w", err)
		}
		g.pending = true
		g.bus.log.Debug("gyro %d: reset queued until the next status frame", g.id)
		return nil
	}
	g.offset = raw
	g.pending = false
	return nil
}

type Encoder struct {
	bus *Bus
	id  int
}

func (e *Encoder) ID() int { return e.id }

func (e *Encoder) AbsolutePosition() (float64, error) {
	v, err := e.bus.Latest(FrameEncoderStatus, e.id)
	if err != nil {
		return 0, err
	}
	return v[SignalAbsPosition], nil
}

// Hardware hands out CAN-backed devices. The input device is not on the bus;
// it is supplied by the caller, typically the driver station.
type Hardware struct {
	bus   *Bus
	input map[int]robot.InputDevice
}

var _ robot.Hardware = (*Hardware)(nil)

func NewHardware(bus *Bus, inputs map[int]robot.InputDevice) *Hardware {
	return &Hardware{bus: bus, input: inputs}
}

func (h *Hardware) checkID(frame string, id int) error {
	fd, err := h.bus.cmap.FrameByName(frame)
	if err != nil {
		return err
	}
	_, err = fd.DeviceFrameID(id)
	return err
}

func (h *Hardware) Actuator(id int) (robot.Actuator, error) {
	if err := h.checkID(FrameMotorCmd, id); err != nil {
		return nil, err
	}
	return &Motor{bus: h.bus, id: id}, nil
}

func (h *Hardware) Orientation(id int) (robot.OrientationSensor, error) {
	if err := h.checkID(FrameGyroStatus, id); err != nil {
		return nil, err
	}
	return &Gyro{bus: h.bus, id: id}, nil
}

func (h *Hardware) Encoder(id int) (robot.Encoder, error) {
	if err := h.checkID(FrameEncoderStatus, id); err != nil {
		return nil, err
	}
	return &Encoder{bus: h.bus, id: id}, nil
}

func (h *Hardware) InputDevice(port int) (robot.InputDevice, error) {
	dev, ok := h.input[port]
	if !ok || dev == nil {
		return nil, fmt.Errorf("port %d: %w", port, ErrNoInput)
	}
	return dev, nil
}

func boolToFloat(b bool) float64 {
	if b {
		return 1.0
	}
	return 0.0
}

// LoadBus loads the CAN map and wraps w in a Bus configured from cfg.
func LoadBus(cfg robot.BusConfig, w utils.CANWriter, log *utils.Logger) (*Bus, error) {
	cmap, err := utils.LoadCANMap(cfg.MapPath)
	if err != nil {
		return nil, fmt.Errorf("load can map: %w", err)
	}
	return NewBus(cmap, w, BusOptions{
		WriteTimeout: msToDuration(cfg.WriteTimeoutMS),
		StaleAfter:   msToDuration(cfg.StaleAfterMS),
	}, log)
}

func msToDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
