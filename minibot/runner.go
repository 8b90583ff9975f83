package main

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"minibot-core/devices"
	"minibot-core/robot"
	"minibot-core/sim"
	"minibot-core/station"
	"minibot-core/utils"
)

type RunnerConfig struct {
	Robot        robot.Config
	Sim          bool
	ScenarioPath string
}

// operator is where enable and stick input come from.
type operator interface {
	robot.InputDevice
	robot.ModeSource
}

// simRig serves the operator's input on the configured port and simulated
// devices for everything else.
type simRig struct {
	*sim.Hardware
	port  int
	input robot.InputDevice
}

func (r simRig) InputDevice(port int) (robot.InputDevice, error) {
	if port != r.port {
		return nil, fmt.Errorf("port %d: %w", port, devices.ErrNoInput)
	}
	return r.input, nil
}

type Runner struct {
	cfg RunnerConfig
	log *utils.Logger

	op      operator
	station *station.Websocket
	player  *station.Player

	simHW  *sim.Hardware
	bus    *devices.Bus
	reader utils.CANReader

	bot   *robot.Robot
	sched *robot.Scheduler
}

func NewRunner(ctx context.Context, cfg RunnerConfig, log *utils.Logger) (*Runner, error) {
	rc := cfg.Robot
	r := &Runner{cfg: cfg, log: log}

	if cfg.ScenarioPath != "" {
		scen, err := station.LoadScenario(cfg.ScenarioPath)
		if err != nil {
			return nil, fmt.Errorf("load scenario: %w", err)
		}
		r.player = station.NewPlayer(scen, log)
		r.op = r.player
	} else {
		r.station = station.NewWebsocket(time.Duration(rc.Station.LinkTimeoutMS)*time.Millisecond, log)
		if rc.Station.TokenSecret != "" {
			r.station.RequireToken([]byte(rc.Station.TokenSecret))
		}
		r.op = r.station
	}

	var hw robot.Hardware
	if cfg.Sim {
		r.simHW = sim.NewHardware()
		hw = simRig{Hardware: r.simHW, port: rc.Input.Port, input: r.op}
	} else {
		writer, err := utils.NewSocketCANWriter(ctx, rc.Bus.Interface)
		if err != nil {
			return nil, err
		}
		reader, err := utils.NewSocketCANReader(ctx, rc.Bus.Interface)
		if err != nil {
			writer.Close()
			return nil, err
		}
		bus, err := devices.LoadBus(rc.Bus, writer, log)
		if err != nil {
			reader.Close()
			writer.Close()
			return nil, err
		}
		r.bus = bus
		r.reader = reader
		hw = devices.NewHardware(bus, map[int]robot.InputDevice{rc.Input.Port: r.op})
	}

	r.bot = robot.New(rc, hw, log)
	if err := r.bot.RobotInit(); err != nil {
		r.Close()
		return nil, err
	}
	r.sched = robot.NewScheduler(rc.Period(), r.bot, r.op, log)
	return r, nil
}

func (r *Runner) Close() {
	if r.reader != nil {
		_ = r.reader.Close()
	}
	if r.bus != nil {
		_ = r.bus.Close()
	}
}

// Run drives the scheduler alongside the CAN receive loop and the operator
// input source. It returns when ctx ends, a scenario finishes or any of them
// fails; the robot is disabled on the way out in every case.
func (r *Runner) Run(ctx context.Context) error {
	rc := r.cfg.Robot
	hwName := "socketcan " + rc.Bus.Interface
	if r.cfg.Sim {
		hwName = "sim"
	}
	input := "driver station " + rc.Station.Listen
	if r.player != nil {
		input = "scenario " + r.cfg.ScenarioPath
	}
	r.log.Info("Starting %s: drive=%s period=%s hardware=%s input=%s",
		rc.Robot.Name, rc.Robot.Drive, rc.Period(), hwName, input)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return r.sched.Run(gctx) })
	if r.bus != nil {
		g.Go(func() error { return r.bus.Listen(gctx, r.reader) })
	}
	if r.station != nil {
		g.Go(func() error { return r.station.Serve(gctx, rc.Station.Listen) })
	}
	if r.player != nil {
		g.Go(func() error {
			err := r.player.Run(gctx)
			cancel()
			return err
		})
	}

	err := g.Wait()
	r.log.Info("Completed: cycles=%d overruns=%d faulted=%t", r.bot.Cycles(), r.sched.Overruns(), r.sched.Faulted())
	if r.bus != nil {
		sent, received, dropped := r.bus.Counters()
		r.log.Info("CAN: frames_sent=%d status_received=%d dropped=%d", sent, received, dropped)
	}
	return err
}
