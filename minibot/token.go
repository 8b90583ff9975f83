package main

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"minibot-core/robot"
	"minibot-core/station"
)

var tokenCmd = &cobra.Command{
	Use:   "token <operator>",
	Short: "Issue a driver station token",
	Long: `Signs an operator token with the station.token_secret from the
configuration. Present it as a bearer token, or as the token query parameter,
when connecting to /control.`,
	Args: cobra.ExactArgs(1),
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().String("config", "config/minibot.toml", "Path to the robot TOML configuration")
	tokenCmd.Flags().Duration("ttl", 8*time.Hour, "How long the token stays valid")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	ttl, _ := cmd.Flags().GetDuration("ttl")
	cfg, err := robot.LoadConfig(path)
	if err != nil {
		return err
	}
	if cfg.Station.TokenSecret == "" {
		return errors.New("station.token_secret is not set; the driver station accepts any client")
	}
	tok, err := station.IssueToken([]byte(cfg.Station.TokenSecret), args[0], ttl, time.Now())
	if err != nil {
		return err
	}
	cmd.Println(tok)
	return nil
}
