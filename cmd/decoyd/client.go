package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shehryarbajwa/decoyd/internal/control"
	"github.com/shehryarbajwa/decoyd/pkg/models"
)

var startDuration int

// errCommandFailed is returned when the daemon answers success:false, so
// the process exits non-zero after printing the response.
var errCommandFailed = errors.New("daemon reported failure")

func clientCommands() []*cobra.Command {
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start a decoy session in the running daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := models.Command{Command: models.CommandStart}
			if cmd.Flags().Changed("duration") {
				req.Duration = &startDuration
			}
			return sendCommand(cmd, req)
		},
	}
	startCmd.Flags().IntVarP(&startDuration, "duration", "d", 0, "Session duration in minutes, 0 runs until stopped (default: service.session_duration)")

	simple := func(name, short string) *cobra.Command {
		return &cobra.Command{
			Use:   name,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return sendCommand(cmd, models.Command{Command: name})
			},
		}
	}

	return []*cobra.Command{
		startCmd,
		simple(models.CommandStop, "Stop the current decoy session"),
		simple(models.CommandStatus, "Show whether a session is running and its counters"),
		simple(models.CommandActivityLog, "Show the most recent activity lines"),
		simple(models.CommandShutdown, "Stop the session and exit the daemon"),
	}
}

// sendCommand delivers req to the daemon socket and prints the JSON reply.
func sendCommand(cmd *cobra.Command, req models.Command) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), control.DefaultClientTimeout)
	defer cancel()

	resp, err := control.NewClient(cfg.Daemon.SocketPath).Send(ctx, req)
	if err != nil {
		return fmt.Errorf("%w (is \"decoyd serve\" running?)", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp); err != nil {
		return err
	}
	if !resp.Success {
		return errCommandFailed
	}
	return nil
}
