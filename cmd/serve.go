package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/gis-compliance/internal/api"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initAuditor(ctx, 0, true)
		if err != nil {
			return err
		}
		defer env.Close()

		srv := &api.Server{
			Auditor:        env.Auditor,
			Sessions:       env.Sessions,
			Projector:      env.Auditor.Projector,
			ThresholdSqMi:  cfg.Compliance.ThresholdSqMi,
			Source:         cfg.Service.URL,
			AllowedOrigins: cfg.Server.AllowedOrigins,
		}
		return api.StartServer(ctx, srv.Router(), resolvePort(servePort, cfg.Server.Port))
	},
}

// resolvePort prefers the flag over the configured port.
func resolvePort(flagPort, cfgPort int) int {
	if flagPort != 0 {
		return flagPort
	}
	return cfgPort
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
