package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/ppiankov/casefile/internal/server"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API and the websocket question loop",
	Long: `Serve exposes upload, status, graph inspection and question answering over
HTTP. Questions sent on /ws stream their progress events back as they
happen; /metrics serves Prometheus metrics.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			sc := server.DefaultConfig()
			sc.Addr = a.cfg.Server.Addr
			sc.DocsDir = a.cfg.Server.DocsDir
			return server.New(a.svc, sc, a.logger).ListenAndServe(ctx)
		})
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "listen address (default from config)")
	bindFlag(serveCmd, "server.addr", "addr")
}
