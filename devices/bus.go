// Package devices drives the minibot's motor controllers and sensors over CAN.
//
// Commands are encoded through the CAN map and written straight to the bus.
// Sensors broadcast status frames on their own cycle; Listen decodes them into
// a cache so that every read from the control cycle is non-blocking.
package devices

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.einride.tech/can"

	"minibot-core/robot"
	"minibot-core/utils"
)

// Frame templates and signals in the CAN map.
const (
	FrameMotorCmd      = "MOTOR_CMD"
	FrameMotorCfg      = "MOTOR_CFG"
	FrameGyroStatus    = "GYRO_STATUS"
	FrameEncoderStatus = "ENCODER_STATUS"

	SignalDutyCycle    = "duty_cycle"
	SignalNeutralBrake = "neutral_brake"
	SignalInverted     = "inverted"
	SignalYaw          = "yaw_deg"
	SignalAbsPosition  = "abs_position_rot"
)

var requiredFrames = map[string][]string{
	FrameMotorCmd:      {SignalDutyCycle},
	FrameMotorCfg:      {SignalNeutralBrake, SignalInverted},
	FrameGyroStatus:    {SignalYaw},
	FrameEncoderStatus: {SignalAbsPosition},
}

type BusOptions struct {
	WriteTimeout time.Duration
	StaleAfter   time.Duration
}

type statusKey struct {
	frame  string
	device int
}

type statusEntry struct {
	values map[string]float64
	at     time.Time
}

// Bus is shared by every device handle. Send is called from the control cycle
// and Listen from its own goroutine.
type Bus struct {
	cmap *utils.CANMap
	w    utils.CANWriter
	log  *utils.Logger
	opts BusOptions
	now  func() time.Time

	mu     sync.RWMutex
	status map[statusKey]statusEntry

	sent     atomic.Uint64
	received atomic.Uint64
	dropped  atomic.Uint64
}

// CheckMap reports whether cmap carries every frame and signal the device
// layer uses.
func CheckMap(cmap *utils.CANMap) error {
	for frame, signals := range requiredFrames {
		fd, err := cmap.FrameByName(frame)
		if err != nil {
			return fmt.Errorf("%w: can map: %w", robot.ErrConfiguration, err)
		}
		for _, s := range signals {
			if _, ok := fd.Signal(s); !ok {
				return fmt.Errorf("%w: can map: frame %s has no signal %s", robot.ErrConfiguration, frame, s)
			}
		}
	}
	return nil
}

func NewBus(cmap *utils.CANMap, w utils.CANWriter, opts BusOptions, log *utils.Logger) (*Bus, error) {
	if err := CheckMap(cmap); err != nil {
		return nil, err
	}
	if opts.WriteTimeout <= 0 || opts.StaleAfter <= 0 {
		return nil, fmt.Errorf("%w: bus timeouts must be positive", robot.ErrConfiguration)
	}
	return &Bus{
		cmap:   cmap,
		w:      w,
		log:    log,
		opts:   opts,
		now:    time.Now,
		status: make(map[statusKey]statusEntry),
	}, nil
}

// Send encodes and transmits one frame to a device. The write gives up after
// the configured write timeout.
func (b *Bus) Send(frameName string, deviceID int, values map[string]float64) error {
	frame, err := b.cmap.EncodeDeviceFrame(frameName, deviceID, values)
	if err != nil {
		return fmt.Errorf("encode %s for device %d: %w", frameName, deviceID, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), b.opts.WriteTimeout)
	defer cancel()
	if err := b.w.WriteFrame(ctx, frame); err != nil {
		return fmt.Errorf("write %s id=0x%X: %w", frameName, frame.ID, err)
	}
	b.sent.Add(1)
	b.log.Trace("TX %s id=0x%X data=% X", frameName, frame.ID, frame.Data[:frame.Length])
	return nil
}

// Ingest decodes one received frame into the status cache. Frames that no rx
// template covers are counted and ignored.
func (b *Bus) Ingest(frame can.Frame) error {
	fd, device, values, err := b.cmap.DecodeDeviceFrame(frame)
	if err != nil {
		b.dropped.Add(1)
		return err
	}
	if fd.Direction != "rx" {
		b.dropped.Add(1)
		return fmt.Errorf("frame 0x%X is a %s command, not a status frame", frame.ID, fd.Name)
	}
	b.mu.Lock()
	b.status[statusKey{frame: fd.Name, device: device}] = statusEntry{values: values, at: b.now()}
	b.mu.Unlock()
	b.received.Add(1)
	return nil
}

// Listen feeds the status cache from r until ctx ends or r fails.
func (b *Bus) Listen(ctx context.Context, r utils.CANReader) error {
	b.log.Debug("RX loop started")
	defer b.log.Debug("RX loop stopped")

	for {
		frame, err := r.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("can rx: %w", err)
		}
		if err := b.Ingest(frame); err != nil {
			b.log.Debug("RX ignored: %v", err)
			continue
		}
	}
}

// Latest returns the most recent values of a status frame from one device.
// Nothing received yet, or nothing within the staleness window, is a transient
// read fault.
func (b *Bus) Latest(frameName string, deviceID int) (map[string]float64, error) {
	b.mu.RLock()
	e, ok := b.status[statusKey{frame: frameName, device: deviceID}]
	b.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no %s from device %d", robot.ErrTransientRead, frameName, deviceID)
	}
	if age := b.now().Sub(e.at); age > b.opts.StaleAfter {
		return nil, fmt.Errorf("%w: %s from device %d is %s old", robot.ErrTransientRead, frameName, deviceID, age.Round(time.Millisecond))
	}
	return e.values, nil
}

// Counters reports frames sent, status frames cached and frames dropped.
func (b *Bus) Counters() (sent, received, dropped uint64) {
	return b.sent.Load(), b.received.Load(), b.dropped.Load()
}

func (b *Bus) Close() error {
	return b.w.Close()
}
