package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/adi-253/Talkie/chatsync/internal/config"
	"github.com/adi-253/Talkie/chatsync/internal/logging"
)

var (
	version = "dev"

	// v collects flag values; config.Load layers them over files and environment
	v = viper.New()

	cfg *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "talkie",
	Short: "Talkie workspace chat client and development relay",
	Long: `Talkie keeps a workspace chat in sync over REST and websockets.
"talkie serve" runs an in-memory relay for development; "talkie chat" opens
the workspace chat in the terminal.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(v)
		if err != nil {
			return err
		}
		logging.Setup(cfg.LogLevel, cfg.LogPretty)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	// Disable completion command
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	flags.Bool("log-pretty", true, "human readable log output")
	bindFlags(flags.Lookup, map[string]string{
		"log_level":  "log-level",
		"log_pretty": "log-pretty",
	})
}
