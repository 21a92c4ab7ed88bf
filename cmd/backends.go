package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "List detected capture backends and their availability",
	RunE: func(cmd *cobra.Command, args []string) error {
		backends := svc.Backends()

		// The first available backend per capability is the one a request
		// will actually use.
		activeShot, activeRecord := "", ""
		for _, b := range backends {
			if activeShot == "" && b.Available && b.Screenshot {
				activeShot = b.Name
			}
			if activeRecord == "" && b.Available && b.Record {
				activeRecord = b.Name
			}
		}

		for _, b := range backends {
			status := "unavailable"
			if b.Available {
				status = "available"
			}

			caps := ""
			if b.Screenshot {
				caps += "screenshot"
			}
			if b.Record {
				if caps != "" {
					caps += ","
				}
				caps += "record"
			}

			fmt.Printf("%-16s %-12s %s", b.Name, status, caps)
			if b.Detail != "" {
				fmt.Printf("  (%s)", b.Detail)
			}
			if b.Name == activeShot || b.Name == activeRecord {
				fmt.Print("  [active]")
			}
			fmt.Println()
		}
		return nil
	},
}
