package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var recordCmd = &cobra.Command{
	Use:   "record [context]",
	Short: "Record the screen and system audio until interrupted",
	Long: `Start a screen recording with system audio loopback and run until
Ctrl+C. The optional context (usually the game title) becomes part of the
output filename.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		contextName := ""
		if len(args) == 1 {
			contextName = args[0]
		}

		session, err := svc.StartRecording(contextName)
		if err != nil {
			return fmt.Errorf("failed to start recording: %w", err)
		}
		slog.Info("recording, press Ctrl+C to stop", "output", session.OutputPath)

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		slog.Info("stopping recording")
		path, err := svc.StopRecording()
		if err != nil {
			return fmt.Errorf("failed to stop recording: %w", err)
		}

		if path == "" {
			// A hotkey-driven external utility owns the output file.
			fmt.Println("recording stopped")
			return nil
		}

		if info, probeErr := svc.ProbeRecording(path); probeErr == nil {
			slog.Info("recording saved",
				"path", path,
				"duration", info.Duration.Round(time.Millisecond),
				"tracks", len(info.Tracks),
			)
		} else {
			slog.Warn("recording saved but could not be probed", "path", path, "error", probeErr)
		}

		fmt.Println(path)
		return nil
	},
}
