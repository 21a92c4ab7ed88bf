package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clipdeck/clipdeck/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP control server",
	Long: `Start the control server overlays and remote triggers talk to.
Every capture operation is exposed as a small JSON endpoint: status,
screenshot, record start/stop/cancel, backend detection and recording
probes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		srv := server.New(svc, serveAddr)
		if err := srv.Start(); err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "127.0.0.1:8275", "listen address")
}
