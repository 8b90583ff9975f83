package robot_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minibot-core/drive"
	"minibot-core/robot"
	"minibot-core/sim"
	"minibot-core/utils"
)

func arcadeConfig() robot.Config {
	cfg := robot.DefaultConfig()
	cfg.Robot.Drive = drive.ArcadeDifferentialVariant
	cfg.Actuators = []robot.ActuatorConfig{
		{Slot: drive.LeftDrive, CANID: 2},
		{Slot: drive.RightDrive, CANID: 3},
	}
	return cfg
}

type bench struct {
	hw  *sim.Hardware
	pad *sim.Gamepad
	bot *robot.Robot
	log *bytes.Buffer
}

func newBench(t *testing.T, cfg robot.Config) *bench {
	t.Helper()
	hw := sim.NewHardware()
	var buf bytes.Buffer
	bot := robot.New(cfg, hw, utils.NewLogger(&buf, utils.TRACE))
	require.NoError(t, bot.RobotInit())
	return &bench{hw: hw, pad: hw.Gamepad(cfg.Input.Port), bot: bot, log: &buf}
}

// drive sets the sticks so the shaped intent is (forward, rotation).
func (b *bench) drive(forward, rotation float64) {
	b.pad.SetAxis(robot.AxisLeftY, -forward)
	b.pad.SetAxis(robot.AxisRightX, rotation)
}

func (b *bench) outputs(ids ...int) []float64 {
	out := make([]float64, len(ids))
	for i, id := range ids {
		out[i] = b.hw.Motor(id).Output()
	}
	return out
}

func TestRobotInit_ConfiguresBrakeAndInversion(t *testing.T) {
	cfg := robot.DefaultConfig()
	cfg.Actuators[1].Inverted = true
	b := newBench(t, cfg)

	assert.Equal(t, robot.StateDisabled, b.bot.State())
	for _, a := range cfg.Actuators {
		m := b.hw.Motor(a.CANID)
		assert.Equal(t, robot.NeutralBrake, m.NeutralMode(), "motor %d", a.CANID)
		assert.Equal(t, a.Inverted, m.Inverted(), "motor %d", a.CANID)
		assert.Zero(t, m.Output())
	}
	assert.Contains(t, b.log.String(), "initialized")
}

func TestRobotInit_MissingDeviceIsFatal(t *testing.T) {
	hw := sim.NewHardware()
	hw.Missing[4] = true
	bot := robot.New(robot.DefaultConfig(), hw, utils.NewLogger(&bytes.Buffer{}, utils.TRACE))

	err := bot.RobotInit()
	require.ErrorIs(t, err, robot.ErrHardwareUnavailable)
	assert.ErrorIs(t, err, sim.ErrNoDevice)
	assert.Equal(t, robot.StateInit, bot.State())
	assert.ErrorIs(t, bot.TeleopInit(), robot.ErrNotInitialized)
}

func TestRobotInit_BadConfig(t *testing.T) {
	cfg := robot.DefaultConfig()
	cfg.Safety.MaxOutput = 0
	bot := robot.New(cfg, sim.NewHardware(), utils.NewLogger(&bytes.Buffer{}, utils.TRACE))
	assert.ErrorIs(t, bot.RobotInit(), robot.ErrConfiguration)
}

func TestRobotInit_Twice(t *testing.T) {
	b := newBench(t, robot.DefaultConfig())
	assert.Error(t, b.bot.RobotInit())
}

func TestTeleop_EndToEnd(t *testing.T) {
	cases := []struct {
		name              string
		forward, rotation float64
		want              []float64
	}{
		{"full forward", 1, 0, []float64{0.5, 0.5}},
		{"spin in place", 0, 1, []float64{-0.5, 0.5}},
		{"inside deadband", 0.05, 0, []float64{0, 0}},
		{"clamped mix", 1, 1, []float64{0, 0.5}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := newBench(t, arcadeConfig())
			require.NoError(t, b.bot.TeleopInit())

			b.drive(tc.forward, tc.rotation)
			b.bot.TeleopPeriodic()

			got := b.outputs(2, 3)
			assert.InDeltaSlice(t, tc.want, got, 1e-9)
		})
	}
}

func TestTeleop_SkidSteerQuadStubsSteer(t *testing.T) {
	b := newBench(t, robot.DefaultConfig())
	require.NoError(t, b.bot.TeleopInit())

	b.drive(0.8, 0.2)
	b.pad.SetAxis(robot.AxisLeftX, 1)
	b.bot.TeleopPeriodic()

	out := b.outputs(2, 3, 4, 5)
	assert.InDelta(t, 0.3, out[0], 1e-9)
	assert.InDelta(t, 0.5, out[1], 1e-9)
	assert.Zero(t, out[2])
	assert.Zero(t, out[3])
}

func TestTeleop_NeverExceedsMaxOutput(t *testing.T) {
	b := newBench(t, robot.DefaultConfig())
	require.NoError(t, b.bot.TeleopInit())

	for _, f := range []float64{-1, -0.6, 0, 0.4, 1} {
		for _, r := range []float64{-1, -0.3, 0, 0.7, 1} {
			b.drive(f, r)
			b.bot.TeleopPeriodic()
		}
	}
	for _, w := range b.hw.Writes() {
		assert.LessOrEqual(t, w.Value, 0.5)
		assert.GreaterOrEqual(t, w.Value, -0.5)
	}
}

func TestTeleopInit_ZeroesHeading(t *testing.T) {
	b := newBench(t, robot.DefaultConfig())
	gyro := b.hw.Gyro(0)
	gyro.SetRaw(137)

	require.NoError(t, b.bot.TeleopInit())
	assert.Equal(t, robot.StateTeleop, b.bot.State())
	assert.Zero(t, b.bot.Diagnostics().HeadingDeg)

	gyro.SetRaw(147)
	assert.InDelta(t, 10, b.bot.Diagnostics().HeadingDeg, 1e-9)
}

func TestTeleopInit_ReportsFailedHeadingReset(t *testing.T) {
	b := newBench(t, robot.DefaultConfig())
	b.hw.Gyro(0).Fail(errors.New("gyro offline"))

	require.NoError(t, b.bot.TeleopInit())
	assert.Equal(t, robot.StateTeleop, b.bot.State())
	assert.Contains(t, b.log.String(), "could not reset heading: gyro offline")
	assert.NotContains(t, b.log.String(), "heading reset")
}

func TestTeleop_ResetButtonFiresOncePerPress(t *testing.T) {
	b := newBench(t, robot.DefaultConfig())
	gyro := b.hw.Gyro(0)
	require.NoError(t, b.bot.TeleopInit())

	gyro.SetRaw(30)
	b.pad.SetButton(robot.ButtonA, true)
	b.bot.TeleopPeriodic()
	assert.Zero(t, b.bot.Diagnostics().HeadingDeg)

	// Held: no further resets.
	gyro.SetRaw(45)
	b.bot.TeleopPeriodic()
	assert.InDelta(t, 15, b.bot.Diagnostics().HeadingDeg, 1e-9)

	b.pad.SetButton(robot.ButtonA, false)
	b.bot.TeleopPeriodic()
	b.pad.SetButton(robot.ButtonA, true)
	b.bot.TeleopPeriodic()
	assert.Zero(t, b.bot.Diagnostics().HeadingDeg)
	assert.Equal(t, 3, strings.Count(b.log.String(), "heading reset"))
}

func TestTeleop_DiagnosticsButtonDoesNotActuate(t *testing.T) {
	b := newBench(t, robot.DefaultConfig())
	b.hw.EncoderAt(0).Set(0.25)
	b.hw.EncoderAt(1).Set(-0.125)
	b.hw.Gyro(0).SetRaw(12)
	require.NoError(t, b.bot.TeleopInit())

	b.bot.TeleopPeriodic()
	before := len(b.hw.Writes())

	b.pad.SetButton(robot.ButtonB, true)
	b.bot.TeleopPeriodic()

	// One write per actuator for the cycle itself, nothing extra.
	assert.Len(t, b.hw.Writes(), before+4)
	logged := b.log.String()
	assert.Contains(t, logged, "encoder[left]=0.2500rot")
	assert.Contains(t, logged, "encoder[right]=-0.1250rot")
	assert.Contains(t, logged, "heading=0.00deg")
}

func TestDiagnostics_HoldsLastGoodOnFault(t *testing.T) {
	b := newBench(t, robot.DefaultConfig())
	require.NoError(t, b.bot.TeleopInit())
	b.hw.EncoderAt(0).Set(0.5)
	b.hw.Gyro(0).SetRaw(20)
	first := b.bot.Diagnostics()

	b.hw.EncoderAt(0).Fail(robot.ErrTransientRead)
	b.hw.Gyro(0).Fail(robot.ErrTransientRead)
	second := b.bot.Diagnostics()

	assert.Equal(t, first.HeadingDeg, second.HeadingDeg)
	assert.Equal(t, 0.5, second.Encoders["left"])
	assert.Contains(t, b.log.String(), "holding")
}

func TestDisabledInit_StopsEveryActuatorFirst(t *testing.T) {
	b := newBench(t, robot.DefaultConfig())
	require.NoError(t, b.bot.TeleopInit())
	b.drive(1, 0)
	b.bot.TeleopPeriodic()
	require.InDelta(t, 0.5, b.hw.Motor(2).Output(), 1e-9)

	b.hw.ClearWrites()
	b.bot.DisabledInit()

	writes := b.hw.Writes()
	require.Len(t, writes, 4)
	ids := make([]int, 0, len(writes))
	for _, w := range writes {
		assert.Zero(t, w.Value)
		ids = append(ids, w.ID)
	}
	assert.ElementsMatch(t, []int{2, 3, 4, 5}, ids)
	assert.Equal(t, robot.StateDisabled, b.bot.State())

	// Still zero on the next disabled cycle even with sticks deflected.
	b.bot.DisabledPeriodic()
	b.bot.TeleopPeriodic()
	assert.Equal(t, []float64{0, 0, 0, 0}, b.outputs(2, 3, 4, 5))
}

func TestDisabledInit_StopsRemainingActuatorsWhenOneFails(t *testing.T) {
	b := newBench(t, robot.DefaultConfig())
	require.NoError(t, b.bot.TeleopInit())
	b.drive(1, 0)
	b.bot.TeleopPeriodic()

	b.hw.Motor(2).Fail(errors.New("bus off"))
	b.bot.DisabledInit()

	assert.Zero(t, b.hw.Motor(3).Output())
	assert.Contains(t, b.log.String(), "bus off")
}

func TestTeleop_ActuatorFaultKeepsCycling(t *testing.T) {
	b := newBench(t, arcadeConfig())
	require.NoError(t, b.bot.TeleopInit())
	b.hw.Motor(2).Fail(errors.New("timeout"))

	b.drive(1, 0)
	b.bot.TeleopPeriodic()
	b.bot.TeleopPeriodic()

	assert.InDelta(t, 0.5, b.hw.Motor(3).Output(), 1e-9)
	assert.Equal(t, uint64(2), b.bot.Cycles())
}
