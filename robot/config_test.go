package robot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minibot-core/drive"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 0.5, cfg.Safety.MaxOutput)
	assert.Equal(t, 0.1, cfg.Safety.Deadband)
	assert.Equal(t, int64(20), cfg.Period().Milliseconds())
}

func TestParseConfig_ArcadeOverridesActuators(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
[robot]
drive = "arcade_differential"

[safety]
max_output = 0.8

[[actuators]]
slot = "left_drive"
can_id = 10
inverted = true

[[actuators]]
slot = "right_drive"
can_id = 11
`))
	require.NoError(t, err)
	assert.Equal(t, drive.ArcadeDifferentialVariant, cfg.Robot.Drive)
	assert.Equal(t, 0.8, cfg.Safety.MaxOutput)
	assert.Equal(t, 0.1, cfg.Safety.Deadband, "untouched keys keep defaults")
	require.Len(t, cfg.Actuators, 2)
	assert.Equal(t, ActuatorConfig{Slot: "left_drive", CANID: 10, Inverted: true}, cfg.Actuators[0])
	assert.Len(t, cfg.Encoders, 2, "encoders default when omitted")
}

func TestParseConfig_Rejects(t *testing.T) {
	cases := map[string]string{
		"max output above one": "[safety]\nmax_output = 1.2\n",
		"max output zero":      "[safety]\nmax_output = 0.0\n",
		"negative deadband":    "[safety]\ndeadband = -0.1\n",
		"turn scale":           "[safety]\nturn_scale = 2.0\n",
		"unknown variant":      "[robot]\ndrive = \"swerve\"\n",
		"zero period":          "[robot]\nperiod_ms = 0\n",
		"unknown axis":         "[input]\nforward_axis = \"wheel\"\n",
		"unknown button":       "[input]\ndiagnostics_button = \"z\"\n",
		"missing slots":        "[robot]\ndrive = \"skid_steer_quad\"\n[[actuators]]\nslot = \"left_drive\"\ncan_id = 2\n",
		"foreign slot": "[robot]\ndrive = \"arcade_differential\"\n" +
			"[[actuators]]\nslot = \"left_drive\"\ncan_id = 2\n" +
			"[[actuators]]\nslot = \"right_drive\"\ncan_id = 3\n" +
			"[[actuators]]\nslot = \"left_steer\"\ncan_id = 4\n",
		"duplicate can id": "[robot]\ndrive = \"arcade_differential\"\n" +
			"[[actuators]]\nslot = \"left_drive\"\ncan_id = 2\n" +
			"[[actuators]]\nslot = \"right_drive\"\ncan_id = 2\n",
		"can id out of range": "[orientation]\ncan_id = 63\n",
		"encoder unnamed":     "[[encoders]]\ncan_id = 1\n",
		"short token secret":  "[station]\ntoken_secret = \"abc\"\n",
		"shared button":       "[input]\ndiagnostics_button = \"a\"\n",
		"bad toml":            "[safety\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseConfig([]byte(doc))
			assert.ErrorIs(t, err, ErrConfiguration)
		})
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Safety.MaxOutput = 3
	cfg.Safety.Deadband = 1
	err := cfg.Validate()
	require.ErrorIs(t, err, ErrConfiguration)
	assert.Contains(t, err.Error(), "max_output")
	assert.Contains(t, err.Error(), "deadband")
}

func TestLoadConfig_ShippedFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("..", "config", "minibot.toml"))
	require.NoError(t, err)
	assert.Equal(t, drive.SkidSteerQuadVariant, cfg.Robot.Drive)
	assert.Len(t, cfg.Actuators, 4)
}

func TestLoadConfig_Missing(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrConfiguration)
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.toml")
	require.NoError(t, os.WriteFile(path, []byte("[station]\nlisten = \"127.0.0.1:9000\"\n"), 0o600))
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Station.Listen)
}
