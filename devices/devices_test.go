package devices

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.einride.tech/can"

	"minibot-core/robot"
	"minibot-core/sim"
	"minibot-core/utils"
)

type fakeWriter struct {
	mu     sync.Mutex
	frames []can.Frame
	block  bool
	closed bool
}

func (w *fakeWriter) WriteFrame(ctx context.Context, f can.Frame) error {
	if w.block {
		<-ctx.Done()
		return ctx.Err()
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.frames = append(w.frames, f)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func (w *fakeWriter) sent() []can.Frame {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]can.Frame(nil), w.frames...)
}

type chanReader struct{ frames chan can.Frame }

func (r *chanReader) ReadFrame(ctx context.Context) (can.Frame, error) {
	select {
	case <-ctx.Done():
		return can.Frame{}, ctx.Err()
	case f, ok := <-r.frames:
		if !ok {
			return can.Frame{}, io.EOF
		}
		return f, nil
	}
}

func (r *chanReader) Close() error { return nil }

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func testBus(t *testing.T) (*Bus, *fakeWriter, *clock) {
	t.Helper()
	w := &fakeWriter{}
	bus, err := LoadBus(shippedBusConfig(), w, utils.NewLogger(&bytes.Buffer{}, utils.TRACE))
	require.NoError(t, err)
	c := &clock{t: time.Unix(1000, 0)}
	bus.now = c.now
	return bus, w, c
}

func statusFrame(t *testing.T, bus *Bus, frame string, device int, values map[string]float64) can.Frame {
	t.Helper()
	f, err := bus.cmap.EncodeDeviceFrame(frame, device, values)
	require.NoError(t, err)
	return f
}

func TestMotor_SetOutputEncodesDutyCycle(t *testing.T) {
	bus, w, _ := testBus(t)
	hw := NewHardware(bus, nil)
	act, err := hw.Actuator(3)
	require.NoError(t, err)

	require.NoError(t, act.SetOutput(1))
	require.NoError(t, act.SetOutput(-0.25))

	frames := w.sent()
	require.Len(t, frames, 2)
	assert.Equal(t, uint32(0x203), frames[0].ID)
	assert.Equal(t, uint8(2), frames[0].Length)
	assert.Equal(t, []byte{0xFF, 0x7F}, frames[0].Data[:2])

	fd, device, values, err := bus.cmap.DecodeDeviceFrame(frames[1])
	require.NoError(t, err)
	assert.Equal(t, FrameMotorCmd, fd.Name)
	assert.Equal(t, 3, device)
	assert.InDelta(t, -0.25, values[SignalDutyCycle], 1e-4)
}

func TestMotor_ConfigCarriesBothFlags(t *testing.T) {
	bus, w, _ := testBus(t)
	m := &Motor{bus: bus, id: 4}

	require.NoError(t, m.SetNeutralMode(robot.NeutralBrake))
	require.NoError(t, m.SetInverted(true))
	require.NoError(t, m.SetNeutralMode(robot.NeutralCoast))

	frames := w.sent()
	require.Len(t, frames, 3)
	for _, f := range frames {
		assert.Equal(t, uint32(0x244), f.ID)
	}
	assert.Equal(t, byte(0x01), frames[0].Data[0])
	assert.Equal(t, byte(0x03), frames[1].Data[0])
	assert.Equal(t, byte(0x02), frames[2].Data[0])
}

func TestBus_WriteTimeout(t *testing.T) {
	bus, w, _ := testBus(t)
	w.block = true

	start := time.Now()
	err := bus.Send(FrameMotorCmd, 2, map[string]float64{SignalDutyCycle: 0})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestHardware_RejectsOutOfRangeIDs(t *testing.T) {
	bus, _, _ := testBus(t)
	hw := NewHardware(bus, nil)

	_, err := hw.Actuator(63)
	assert.Error(t, err)
	_, err = hw.Encoder(-1)
	assert.Error(t, err)
	_, err = hw.InputDevice(0)
	assert.ErrorIs(t, err, ErrNoInput)
}

func TestGyro_ResetAndStale(t *testing.T) {
	bus, _, clk := testBus(t)
	hw := NewHardware(bus, nil)
	s, err := hw.Orientation(0)
	require.NoError(t, err)

	_, err = s.ReadHeading()
	assert.ErrorIs(t, err, robot.ErrTransientRead, "nothing received yet")

	require.NoError(t, bus.Ingest(statusFrame(t, bus, FrameGyroStatus, 0, map[string]float64{SignalYaw: -90})))
	h, err := s.ReadHeading()
	require.NoError(t, err)
	assert.InDelta(t, -90, h, 1e-9)

	require.NoError(t, s.ResetHeading())
	h, err = s.ReadHeading()
	require.NoError(t, err)
	assert.Zero(t, h)

	require.NoError(t, bus.Ingest(statusFrame(t, bus, FrameGyroStatus, 0, map[string]float64{SignalYaw: -45.5})))
	h, err = s.ReadHeading()
	require.NoError(t, err)
	assert.InDelta(t, 44.5, h, 1e-9)

	clk.advance(201 * time.Millisecond)
	_, err = s.ReadHeading()
	assert.ErrorIs(t, err, robot.ErrTransientRead)
}

func TestGyro_ResetQueuedUntilFreshFrame(t *testing.T) {
	bus, _, clk := testBus(t)
	s, err := NewHardware(bus, nil).Orientation(0)
	require.NoError(t, err)

	require.NoError(t, s.ResetHeading(), "no frame yet: reset is queued")
	require.NoError(t, bus.Ingest(statusFrame(t, bus, FrameGyroStatus, 0, map[string]float64{SignalYaw: 90})))
	h, err := s.ReadHeading()
	require.NoError(t, err)
	assert.Zero(t, h)

	clk.advance(time.Second)
	require.NoError(t, s.ResetHeading(), "stale frame: reset is queued")
	require.NoError(t, bus.Ingest(statusFrame(t, bus, FrameGyroStatus, 0, map[string]float64{SignalYaw: 30})))
	h, err = s.ReadHeading()
	require.NoError(t, err)
	assert.Zero(t, h)

	require.NoError(t, bus.Ingest(statusFrame(t, bus, FrameGyroStatus, 0, map[string]float64{SignalYaw: 40})))
	h, err = s.ReadHeading()
	require.NoError(t, err)
	assert.InDelta(t, 10, h, 1e-9)
}

func TestRobot_EnableBeforeFirstGyroFrame(t *testing.T) {
	bus, _, _ := testBus(t)
	pad := sim.NewGamepad()
	cfg := robot.DefaultConfig()
	cfg.Bus = shippedBusConfig()
	var logged bytes.Buffer
	bot := robot.New(cfg, NewHardware(bus, map[int]robot.InputDevice{0: pad}), utils.NewLogger(&logged, utils.DEBUG))

	require.NoError(t, bot.RobotInit())
	require.NoError(t, bot.TeleopInit())
	require.NoError(t, bus.Ingest(statusFrame(t, bus, FrameGyroStatus, 0, map[string]float64{SignalYaw: 90})))
	bot.TeleopPeriodic()

	assert.Equal(t, robot.StateTeleop, bot.State())
	assert.Zero(t, bot.Diagnostics().HeadingDeg)
	assert.Contains(t, logged.String(), "reset queued")
	assert.NotContains(t, logged.String(), "could not reset heading")
}

func TestEncoder_PerDevice(t *testing.T) {
	bus, _, _ := testBus(t)
	hw := NewHardware(bus, nil)
	left, err := hw.Encoder(0)
	require.NoError(t, err)
	right, err := hw.Encoder(1)
	require.NoError(t, err)

	require.NoError(t, bus.Ingest(statusFrame(t, bus, FrameEncoderStatus, 1, map[string]float64{SignalAbsPosition: 0.25})))

	_, err = left.AbsolutePosition()
	assert.ErrorIs(t, err, robot.ErrTransientRead)
	pos, err := right.AbsolutePosition()
	require.NoError(t, err)
	assert.InDelta(t, 0.25, pos, 1.0/4096)
}

func TestBus_IngestRejectsCommandsAndUnknownIDs(t *testing.T) {
	bus, _, _ := testBus(t)

	err := bus.Ingest(statusFrame(t, bus, FrameMotorCmd, 2, map[string]float64{SignalDutyCycle: 0.1}))
	assert.Error(t, err)
	assert.Error(t, bus.Ingest(can.Frame{ID: 0x7E0, Length: 8}))

	_, received, dropped := bus.Counters()
	assert.Zero(t, received)
	assert.Equal(t, uint64(2), dropped)
}

func TestBus_ListenFeedsCache(t *testing.T) {
	bus, _, _ := testBus(t)
	r := &chanReader{frames: make(chan can.Frame, 4)}
	r.frames <- can.Frame{ID: 0x7E0, Length: 1}
	r.frames <- statusFrame(t, bus, FrameEncoderStatus, 0, map[string]float64{SignalAbsPosition: -0.5})
	close(r.frames)

	err := bus.Listen(context.Background(), r)
	assert.ErrorIs(t, err, io.EOF)

	v, err := bus.Latest(FrameEncoderStatus, 0)
	require.NoError(t, err)
	assert.InDelta(t, -0.5, v[SignalAbsPosition], 1e-9)
}

func TestBus_ListenStopsOnCancel(t *testing.T) {
	bus, _, _ := testBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := bus.Listen(ctx, &chanReader{frames: make(chan can.Frame)})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestNewBus_RequiresFrames(t *testing.T) {
	cmap, err := utils.ParseCANMap(bytes.NewBufferString(
		"frame_id,frame_name,dlc,direction,cycle_ms,signal_name,start_bit,bit_length,endianness,signed,factor,offset,min,max,default,unit,comment\n" +
			"0x200,MOTOR_CMD,2,tx,20,duty_cycle,0,16,little,1,0.0001,0,-1,1,0,frac,\n"))
	require.NoError(t, err)
	_, err = NewBus(cmap, &fakeWriter{}, BusOptions{WriteTimeout: time.Millisecond, StaleAfter: time.Second}, utils.NewLogger(io.Discard, utils.INFO))
	assert.ErrorIs(t, err, robot.ErrConfiguration)
}

func TestBus_Close(t *testing.T) {
	bus, w, _ := testBus(t)
	require.NoError(t, bus.Close())
	assert.True(t, w.closed)
}

func shippedBusConfig() robot.BusConfig {
	cfg := robot.DefaultConfig().Bus
	cfg.MapPath = filepath.Join("..", "config", "can", "minibot_can_map.csv")
	return cfg
}
