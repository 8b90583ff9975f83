package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"minibot-core/devices"
	"minibot-core/drive"
	"minibot-core/robot"
	"minibot-core/utils"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration and CAN map",
	Long: `Loads the configuration and the CAN map it points at, validates both and
prints which CAN frame each configured device is addressed with.`,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().String("config", "config/minibot.toml", "Path to the robot TOML configuration")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := robot.LoadConfig(path)
	if err != nil {
		return err
	}
	cmap, err := utils.LoadCANMap(cfg.Bus.MapPath)
	if err != nil {
		return fmt.Errorf("load can map: %w", err)
	}
	if err := devices.CheckMap(cmap); err != nil {
		return err
	}
	kin, err := drive.NewKinematics(cfg.Robot.Drive, cfg.Safety.MaxOutput)
	if err != nil {
		return err
	}

	cmd.Printf("%s: drive=%s period=%s max_output=%.2f deadband=%.2f\n",
		cfg.Robot.Name, kin.Name(), cfg.Period(), cfg.Safety.MaxOutput, cfg.Safety.Deadband)
	cmd.Printf("bus %s, map %s (%d frames)\n", cfg.Bus.Interface, cfg.Bus.MapPath, len(cmap.ByName))

	byslot := make(map[string]robot.ActuatorConfig, len(cfg.Actuators))
	for _, a := range cfg.Actuators {
		byslot[a.Slot] = a
	}
	for _, slot := range kin.SlotNames() {
		a := byslot[slot]
		id, err := frameID(cmap, devices.FrameMotorCmd, a.CANID)
		if err != nil {
			return err
		}
		cmd.Printf("  %-12s can_id=%-3d %s=0x%03X inverted=%t\n", slot, a.CANID, devices.FrameMotorCmd, id, a.Inverted)
	}

	id, err := frameID(cmap, devices.FrameGyroStatus, cfg.Orientation.CANID)
	if err != nil {
		return err
	}
	cmd.Printf("  %-12s can_id=%-3d %s=0x%03X\n", "orientation", cfg.Orientation.CANID, devices.FrameGyroStatus, id)
	for _, e := range cfg.Encoders {
		id, err := frameID(cmap, devices.FrameEncoderStatus, e.CANID)
		if err != nil {
			return err
		}
		cmd.Printf("  %-12s can_id=%-3d %s=0x%03X\n", "encoder "+e.Name, e.CANID, devices.FrameEncoderStatus, id)
	}
	cmd.Println("configuration OK")
	return nil
}

func frameID(cmap *utils.CANMap, frame string, deviceID int) (uint32, error) {
	fd, err := cmap.FrameByName(frame)
	if err != nil {
		return 0, err
	}
	return fd.DeviceFrameID(deviceID)
}
