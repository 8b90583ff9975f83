package robot

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"minibot-core/drive"
)

// MaxCANID is the highest device id a frame template can address.
const MaxCANID = 62

// MinTokenSecret is the shortest accepted HMAC secret for operator tokens.
const MinTokenSecret = 16

// Config is the robot description loaded once at startup. Nothing mutates it
// after Validate succeeds.
type Config struct {
	Robot       RobotConfig      `toml:"robot"`
	Safety      SafetyConfig     `toml:"safety"`
	Input       InputConfig      `toml:"input"`
	Actuators   []ActuatorConfig `toml:"actuators"`
	Orientation DeviceConfig     `toml:"orientation"`
	Encoders    []EncoderConfig  `toml:"encoders"`
	Bus         BusConfig        `toml:"bus"`
	Station     StationConfig    `toml:"station"`
}

type RobotConfig struct {
	Name     string `toml:"name"`
	Drive    string `toml:"drive"`
	PeriodMS int    `toml:"period_ms"`
}

// SafetyConfig holds the per-session output limits.
type SafetyConfig struct {
	MaxOutput float64 `toml:"max_output"`
	Deadband  float64 `toml:"deadband"`
	TurnScale float64 `toml:"turn_scale"`
}

type InputConfig struct {
	Port               int    `toml:"port"`
	ForwardAxis        string `toml:"forward_axis"`
	StrafeAxis         string `toml:"strafe_axis"`
	RotationAxis       string `toml:"rotation_axis"`
	InvertForward      bool   `toml:"invert_forward"`
	ResetHeadingButton string `toml:"reset_heading_button"`
	DiagnosticsButton  string `toml:"diagnostics_button"`
}

type ActuatorConfig struct {
	Slot     string `toml:"slot"`
	CANID    int    `toml:"can_id"`
	Inverted bool   `toml:"inverted"`
}

type DeviceConfig struct {
	CANID int `toml:"can_id"`
}

type EncoderConfig struct {
	Name  string `toml:"name"`
	CANID int    `toml:"can_id"`
}

type BusConfig struct {
	Interface      string `toml:"interface"`
	MapPath        string `toml:"map"`
	WriteTimeoutMS int    `toml:"write_timeout_ms"`
	StaleAfterMS   int    `toml:"stale_after_ms"`
}

type StationConfig struct {
	Listen        string `toml:"listen"`
	LinkTimeoutMS int    `toml:"link_timeout_ms"`
	// TokenSecret, when set, makes /control require a signed operator token.
	TokenSecret string `toml:"token_secret"`
}

// DefaultConfig describes the two-module minibot: drive motors on ids 2 and 3,
// steer motors on 4 and 5, encoders 0 and 1, gyro 0, half output.
func DefaultConfig() Config {
	return Config{
		Robot: RobotConfig{
			Name:     "minibot",
			Drive:    drive.SkidSteerQuadVariant,
			PeriodMS: 20,
		},
		Safety: SafetyConfig{
			MaxOutput: 0.5,
			Deadband:  0.1,
			TurnScale: 1.0,
		},
		Input: InputConfig{
			Port:               0,
			ForwardAxis:        string(AxisLeftY),
			StrafeAxis:         string(AxisLeftX),
			RotationAxis:       string(AxisRightX),
			InvertForward:      true,
			ResetHeadingButton: string(ButtonA),
			DiagnosticsButton:  string(ButtonB),
		},
		Actuators: []ActuatorConfig{
			{Slot: drive.LeftDrive, CANID: 2},
			{Slot: drive.RightDrive, CANID: 3},
			{Slot: drive.LeftSteer, CANID: 4},
			{Slot: drive.RightSteer, CANID: 5},
		},
		Orientation: DeviceConfig{CANID: 0},
		Encoders: []EncoderConfig{
			{Name: "left", CANID: 0},
			{Name: "right", CANID: 1},
		},
		Bus: BusConfig{
			Interface:      "can0",
			MapPath:        "config/can/minibot_can_map.csv",
			WriteTimeoutMS: 5,
			StaleAfterMS:   200,
		},
		Station: StationConfig{
			Listen:        ":5810",
			LinkTimeoutMS: 250,
		},
	}
}

// LoadConfig decodes a TOML file over DefaultConfig and validates the result.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return ParseConfig(data)
}

func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	// Lists replace the defaults wholesale rather than merging element-wise.
	cfg.Actuators = nil
	cfg.Encoders = nil

	var probe struct {
		Actuators []ActuatorConfig `toml:"actuators"`
		Encoders  []EncoderConfig  `toml:"encoders"`
	}
	if err := toml.Unmarshal(data, &probe); err != nil {
		return Config{}, fmt.Errorf("%w: decode toml: %w", ErrConfiguration, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: decode toml: %w", ErrConfiguration, err)
	}
	if probe.Actuators == nil {
		cfg.Actuators = DefaultConfig().Actuators
	}
	if probe.Encoders == nil {
		cfg.Encoders = DefaultConfig().Encoders
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Period is the scheduler cycle length.
func (c Config) Period() time.Duration {
	return time.Duration(c.Robot.PeriodMS) * time.Millisecond
}

// Validate reports every problem found, wrapped in ErrConfiguration.
func (c Config) Validate() error {
	var problems []error
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Errorf(format, args...))
	}

	if c.Robot.PeriodMS <= 0 {
		add("robot.period_ms must be positive, got %d", c.Robot.PeriodMS)
	}

	if err := drive.ValidateMaxOutput(c.Safety.MaxOutput); err != nil {
		add("safety.max_output: %w", err)
	}
	if !(c.Safety.Deadband >= 0 && c.Safety.Deadband < 1) {
		add("safety.deadband %.3f outside [0, 1)", c.Safety.Deadband)
	}
	if !(c.Safety.TurnScale > 0 && c.Safety.TurnScale <= 1) {
		add("safety.turn_scale %.3f outside (0, 1]", c.Safety.TurnScale)
	}

	for _, a := range []struct{ key, val string }{
		{"input.forward_axis", c.Input.ForwardAxis},
		{"input.strafe_axis", c.Input.StrafeAxis},
		{"input.rotation_axis", c.Input.RotationAxis},
	} {
		if _, err := ParseAxis(a.val); err != nil {
			add("%s: %w", a.key, err)
		}
	}
	for _, b := range []struct{ key, val string }{
		{"input.reset_heading_button", c.Input.ResetHeadingButton},
		{"input.diagnostics_button", c.Input.DiagnosticsButton},
	} {
		if _, err := ParseButton(b.val); err != nil {
			add("%s: %w", b.key, err)
		}
	}
	if c.Input.ResetHeadingButton == c.Input.DiagnosticsButton {
		add("input.reset_heading_button and input.diagnostics_button are both %q", c.Input.ResetHeadingButton)
	}
		if c.Input.Port < 0 {
		add("input.port must be >= 0, got %d", c.Input.Port)
	}

	k, err := drive.NewKinematics(c.Robot.Drive, 1)
	if err != nil {
		add("robot.drive: %w", err)
	} else {
		want := map[string]bool{}
		for _, s := range k.SlotNames() {
			want[s] = true
		}
		seen := map[string]bool{}
		for _, a := range c.Actuators {
			switch {
			case !want[a.Slot]:
				add("actuator slot %q is not driven by %s", a.Slot, k.Name())
			case seen[a.Slot]:
				add("actuator slot %q configured twice", a.Slot)
			}
			seen[a.Slot] = true
		}
		for _, s := range k.SlotNames() {
			if !seen[s] {
				add("%s needs an actuator for slot %q", k.Name(), s)
			}
		}
	}

	motorIDs := map[int]bool{}
	for _, a := range c.Actuators {
		if !validCANID(a.CANID) {
			add("actuator %s: can_id %d outside 0..%d", a.Slot, a.CANID, MaxCANID)
		}
		if motorIDs[a.CANID] {
			add("actuator %s: can_id %d already used by another actuator", a.Slot, a.CANID)
		}
		motorIDs[a.CANID] = true
	}
	if !validCANID(c.Orientation.CANID) {
		add("orientation: can_id %d outside 0..%d", c.Orientation.CANID, MaxCANID)
	}
	encIDs := map[int]bool{}
	encNames := map[string]bool{}
	for _, e := range c.Encoders {
		if e.Name == "" {
			add("encoder with can_id %d has no name", e.CANID)
		}
		if encNames[e.Name] {
			add("encoder name %q used twice", e.Name)
		}
		encNames[e.Name] = true
		if !validCANID(e.CANID) {
			add("encoder %s: can_id %d outside 0..%d", e.Name, e.CANID, MaxCANID)
		}
		if encIDs[e.CANID] {
			add("encoder %s: can_id %d already used by another encoder", e.Name, e.CANID)
		}
		encIDs[e.CANID] = true
	}

	if c.Bus.WriteTimeoutMS <= 0 {
		add("bus.write_timeout_ms must be positive, got %d", c.Bus.WriteTimeoutMS)
	}
	if c.Bus.StaleAfterMS <= 0 {
		add("bus.stale_after_ms must be positive, got %d", c.Bus.StaleAfterMS)
	}
	if c.Station.LinkTimeoutMS <= 0 {
		add("station.link_timeout_ms must be positive, got %d", c.Station.LinkTimeoutMS)
	}
	if s := c.Station.TokenSecret; s != "" && len(s) < MinTokenSecret {
		add("station.token_secret must be at least %d bytes", MinTokenSecret)
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %w", ErrConfiguration, errors.Join(problems...))
	}
	return nil
}

func validCANID(id int) bool {
	return id >= 0 && id <= MaxCANID
}
