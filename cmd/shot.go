package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var shotCmd = &cobra.Command{
	Use:   "shot [context]",
	Short: "Take a screenshot of the configured display",
	Long: `Capture one frame of the configured display and save it as a still
image. The optional context (usually the game title) becomes part of the
filename. Black frames right after a scene change are retried before being
reported.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		contextName := ""
		if len(args) == 1 {
			contextName = args[0]
		}

		path, err := svc.TakeScreenshot(contextName)
		if err != nil {
			return fmt.Errorf("screenshot failed: %w", err)
		}

		if path == "" {
			// A hotkey-driven external utility saved the file itself.
			fmt.Println("screenshot triggered")
			return nil
		}
		fmt.Println(path)
		return nil
	},
}
