package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/adi-253/Talkie/chatsync/internal/metrics"
	"github.com/adi-253/Talkie/chatsync/internal/server"
)

func init() {
	rootCmd.AddCommand(serveCmd)

	flags := serveCmd.Flags()
	flags.String("port", "8080", "port to listen on")
	flags.StringSlice("cors-origins", nil, "allowed CORS origins")
	flags.Duration("retention", 0, "how long an idle conversation is kept")
	bindFlags(flags.Lookup, map[string]string{
		"server_port":     "port",
		"cors_origins":    "cors-origins",
		"relay_retention": "retention",
	})
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the in-memory development relay",
	Long: `Runs a relay that implements the chat REST endpoints and the realtime
protocol in memory. Bearer tokens are taken as user ids.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return server.New(cfg, metrics.New(), nil).ListenAndServe(ctx)
	},
}
