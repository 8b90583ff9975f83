package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"minibot-core/robot"
	"minibot-core/utils"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the drive control loop",
	Long: `Initializes the robot and runs the control loop until interrupted.

Operator input comes from the websocket driver station, or from a scenario file
with --scenario. With --sim the motors and sensors are simulated in memory
instead of being driven over SocketCAN.`,
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.String("config", "config/minibot.toml", "Path to the robot TOML configuration")
	f.Bool("sim", false, "Use simulated hardware instead of SocketCAN")
	f.String("scenario", "", "Replay operator input from a scenario JSON file")
	f.String("log", "info", "trace|debug|info|warn|error|critical")
	f.String("log-file", "minibot.log", "Log file, appended to")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	cfgPath, _ := flags.GetString("config")
	useSim, _ := flags.GetBool("sim")
	scenPath, _ := flags.GetString("scenario")
	level, _ := flags.GetString("log")
	logPath, _ := flags.GetString("log-file")

	log, err := utils.NewFileLogger(logPath, utils.ParseLevel(level), true)
	if err != nil {
		return fmt.Errorf("cannot open %s: %w", logPath, err)
	}
	defer log.Close()

	cfg, err := robot.LoadConfig(cfgPath)
	if err != nil {
		log.Critical("Startup failed: %v", err)
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner, err := NewRunner(ctx, RunnerConfig{
		Robot:        cfg,
		Sim:          useSim,
		ScenarioPath: scenPath,
	}, log)
	if err != nil {
		log.Critical("Startup failed: %v", err)
		return err
	}
	defer runner.Close()

	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Critical("Run failed: %v", err)
		return err
	}
	return nil
}
