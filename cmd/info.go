package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info <file>",
	Short: "Probe a recording and print its duration and track layout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		info, err := svc.ProbeRecording(args[0])
		if err != nil {
			return err
		}

		fmt.Printf("path:     %s\n", info.Path)
		fmt.Printf("size:     %d bytes\n", info.SizeBytes)
		fmt.Printf("duration: %s\n", info.Duration.Round(time.Millisecond))
		fmt.Printf("tracks:\n")
		for _, t := range info.Tracks {
			fmt.Printf("  %d. %s", t.ID, t.Type)
			if t.Codec != "" {
				fmt.Printf(" (%s)", t.Codec)
			}
			if t.Width > 0 && t.Height > 0 {
				fmt.Printf(" %dx%d", t.Width, t.Height)
			}
			fmt.Printf(" %s\n", t.Duration.Round(time.Millisecond))
		}
		return nil
	},
}
