package station

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"sync"
	"time"

	"minibot-core/robot"
	"minibot-core/utils"
)

// Scenario scripts operator input over time for bench runs.
type Scenario struct {
	Meta     ScenarioMeta      `json:"meta"`
	Timing   ScenarioTiming    `json:"timing"`
	Defaults Packet            `json:"defaults"`
	Segments []ScenarioSegment `json:"segments"`
}

type ScenarioMeta struct {
	Name        string `json:"name"`
	Version     int    `json:"version"`
	Description string `json:"description"`
}

type ScenarioTiming struct {
	DurationS float64 `json:"duration_s"`
}

// ScenarioSegment overrides the defaults for t in [T0, T1). T1 < 0 runs to the
// end of the scenario. Axes and buttons not named keep their default.
type ScenarioSegment struct {
	T0      float64                `json:"t0"`
	T1      float64                `json:"t1"`
	Enabled *bool                  `json:"enabled,omitempty"`
	Axes    map[robot.Axis]float64 `json:"axes,omitempty"`
	Buttons map[robot.Button]bool  `json:"buttons,omitempty"`
	Comment string                 `json:"comment,omitempty"`
}

func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return ParseScenario(data)
}

func ParseScenario(data []byte) (*Scenario, error) {
	var scen Scenario
	if err := json.Unmarshal(data, &scen); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	if scen.Timing.DurationS <= 0 {
		return nil, fmt.Errorf("invalid duration_s: %f", scen.Timing.DurationS)
	}
	if err := checkNames(scen.Defaults.Axes, scen.Defaults.Buttons); err != nil {
		return nil, fmt.Errorf("defaults: %w", err)
	}
	for i, seg := range scen.Segments {
		if seg.T0 < 0 || (seg.T1 >= 0 && seg.T1 <= seg.T0) {
			return nil, fmt.Errorf("segment %d: invalid window [%g, %g)", i, seg.T0, seg.T1)
		}
		if err := checkNames(seg.Axes, seg.Buttons); err != nil {
			return nil, fmt.Errorf("segment %d: %w", i, err)
		}
	}
	return &scen, nil
}

func checkNames(axes map[robot.Axis]float64, buttons map[robot.Button]bool) error {
	for a := range axes {
		if _, err := robot.ParseAxis(string(a)); err != nil {
			return err
		}
	}
	for b := range buttons {
		if _, err := robot.ParseButton(string(b)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scenario) Duration() time.Duration {
	return time.Duration(s.Timing.DurationS * float64(time.Second))
}

// EvalAt returns the operator input at t seconds. The first segment covering t
// wins. Past the end the robot is disabled with released sticks.
func (s *Scenario) EvalAt(t float64) Packet {
	if t >= s.Timing.DurationS {
		return Packet{}
	}
	p := Packet{
		Enabled: s.Defaults.Enabled,
		Axes:    maps.Clone(s.Defaults.Axes),
		Buttons: maps.Clone(s.Defaults.Buttons),
	}
	if p.Axes == nil {
		p.Axes = map[robot.Axis]float64{}
	}
	if p.Buttons == nil {
		p.Buttons = map[robot.Button]bool{}
	}

	for _, seg := range s.Segments {
		t1 := seg.T1
		if t1 < 0 {
			t1 = s.Timing.DurationS
		}
		if t >= seg.T0 && t < t1 {
			if seg.Enabled != nil {
				p.Enabled = *seg.Enabled
			}
			maps.Copy(p.Axes, seg.Axes)
			maps.Copy(p.Buttons, seg.Buttons)
			break
		}
	}
	return p
}

// Player replays a Scenario against the wall clock from Start.
type Player struct {
	scen *Scenario
	log  *utils.Logger
	now  func() time.Time

	mu    sync.Mutex
	start time.Time
}

var (
	_ robot.InputDevice = (*Player)(nil)
	_ robot.ModeSource  = (*Player)(nil)
)

func NewPlayer(scen *Scenario, log *utils.Logger) *Player {
	return &Player{scen: scen, log: log, now: time.Now}
}

func (p *Player) current() Packet {
	p.mu.Lock()
	start := p.start
	p.mu.Unlock()
	if start.IsZero() {
		return Packet{}
	}
	return p.scen.EvalAt(p.now().Sub(start).Seconds())
}

func (p *Player) Enabled() bool { return p.current().Enabled }

func (p *Player) Axis(a robot.Axis) (float64, error) {
	return p.current().Axes[a], nil
}

func (p *Player) Button(b robot.Button) (bool, error) {
	return p.current().Buttons[b], nil
}

// Run starts playback and returns when the scenario has finished or ctx ends.
func (p *Player) Run(ctx context.Context) error {
	p.mu.Lock()
	p.start = p.now()
	p.mu.Unlock()

	p.log.Info("scenario %q started: duration=%.2fs segments=%d",
		p.scen.Meta.Name, p.scen.Timing.DurationS, len(p.scen.Segments))

	timer := time.NewTimer(p.scen.Duration())
	defer timer.Stop()
	select {
	case <-ctx.Done():
		p.log.Warn("scenario %q interrupted", p.scen.Meta.Name)
		return ctx.Err()
	case <-timer.C:
		p.log.Info("scenario %q completed", p.scen.Meta.Name)
		return nil
	}
}
