package robot

import (
	"context"
	"fmt"
	"time"
)

// Callbacks are the lifecycle hooks the Scheduler drives. *Robot implements them.
type Callbacks interface {
	TeleopInit() error
	TeleopPeriodic()
	DisabledInit()
	DisabledPeriodic()
}

// Scheduler calls exactly one periodic callback per period and one transition
// callback per mode change. A panic in a callback is a cycle fault: the robot
// is disabled and stays disabled until the mode source itself reports disabled.
type Scheduler struct {
	period time.Duration
	robot  Callbacks
	mode   ModeSource
	log    Logger
	now    func() time.Time

	enabled  bool
	faulted  bool
	ticks    uint64
	overruns uint64
}

func NewScheduler(period time.Duration, robot Callbacks, mode ModeSource, log Logger) *Scheduler {
	return &Scheduler{
		period: period,
		robot:  robot,
		mode:   mode,
		log:    log,
		now:    time.Now,
	}
}

func (s *Scheduler) Enabled() bool    { return s.enabled }
func (s *Scheduler) Faulted() bool    { return s.faulted }
func (s *Scheduler) Overruns() uint64 { return s.overruns }

// Run ticks until ctx ends, then disables the robot before returning.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	s.log.Info("scheduler started: period=%s", s.period)
	for {
		select {
		case <-ctx.Done():
			s.disable("shutdown")
			s.log.Info("scheduler stopped: ticks=%d overruns=%d", s.ticks, s.overruns)
			return ctx.Err()
		case <-ticker.C:
			s.Step()
		}
	}
}

// Step runs one period: a transition callback if the mode changed, then the
// periodic callback for the resulting mode.
func (s *Scheduler) Step() {
	start := s.now()
	s.ticks++

	want := s.mode.Enabled()
	if !want {
		s.faulted = false
	}

	switch {
	case want && !s.enabled && !s.faulted:
		var err error
		if perr := s.guard("teleop init", func() { err = s.robot.TeleopInit() }); perr != nil {
			s.fault(perr)
		} else if err != nil {
			s.log.Error("enable refused: %v", err)
			s.faulted = true
		} else {
			s.enabled = true
		}
	case !want && s.enabled:
		s.disable("operator")
	}

	if s.enabled {
		if perr := s.guard("teleop periodic", s.robot.TeleopPeriodic); perr != nil {
			s.fault(perr)
		}
	} else {
		if perr := s.guard("disabled periodic", s.robot.DisabledPeriodic); perr != nil {
			s.log.Critical("%v", perr)
		}
	}

	if elapsed := s.now().Sub(start); elapsed > s.period {
		s.overruns++
		s.log.Debug("cycle overrun: %s > %s", elapsed, s.period)
	}
}

func (s *Scheduler) fault(err error) {
	s.log.Critical("cycle fault: %v", err)
	s.faulted = true
	s.disable("cycle fault")
}

func (s *Scheduler) disable(cause string) {
	s.enabled = false
	if perr := s.guard("disabled init", s.robot.DisabledInit); perr != nil {
		s.log.Critical("%v", perr)
	}
	s.log.Info("disabled: %s", cause)
}

func (s *Scheduler) guard(name string, fn func()) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%s panicked: %v", name, rec)
		}
	}()
	fn()
	return nil
}
