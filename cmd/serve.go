// File: cmd/serve.go
package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/serp-harvester/internal/server"
)

func newServeCmd(a *app) *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serves POST /article over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			orch, shutdown, err := a.newOrchestrator()
			if err != nil {
				return err
			}
			defer a.shutdown(ctx, shutdown)

			srv := server.New(a.cfg, orch, a.logger)
			a.logger.Info("Serving.", zap.String("address", a.cfg.Server.ListenAddr))
			return srv.Start(ctx)
		},
	}

	serveCmd.Flags().StringP("listen", "l", ":3000", "address to listen on")
	return serveCmd
}
