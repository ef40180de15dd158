package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/phantomwg/wsbridge/internal/config"
	wsversion "github.com/phantomwg/wsbridge/internal/version"
)

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "wsbridge",
		Short: "wsbridge - persistent lifecycle manager for wstunnel",
		Long: `wsbridge keeps wstunnel client or server configuration in a local
SQLite database and runs a single wstunnel session built from it.

Configure once, then start, stop and restart without repeating flags:
  wsbridge init --mode client
  wsbridge config client set remote_url=wss://vpn.example.com:443
  wsbridge tunnel add udp --local 127.0.0.1:51820 --remote 127.0.0.1:51820
  wsbridge run`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.Version = wsversion.String()
	rootCmd.SetVersionTemplate("{{printf \"%s\\n\" .Version}}")

	flags := rootCmd.PersistentFlags()
	flags.Bool("json", false, "Output in JSON format")
	flags.String("instance", config.DefaultInstance, "Instance name under $"+config.HomeEnv+" (default ~/.wsbridge)")
	flags.String("db", "", "Explicit state database path (overrides --instance)")
	flags.String("log-level", "info", "Process log level (panic, fatal, error, warn, info, debug, trace)")
	flags.String("log-format", "text", "Process log format (text or json)")
	flags.String("wstunnel", "", "Path to the wstunnel binary (default: wstunnel on PATH)")

	rootCmd.AddCommand(
		newInitCommand(),
		newRunCommand(),
		newStopCommand(),
		newStatusCommand(),
		newConfigCommand(),
		newTunnelCommand(),
		newRestrictionCommand(),
		newHeaderCommand(),
		newProbeCommand(),
		newVersionCommand(),
	)
	return rootCmd
}

func main() {
	rootCmd := newRootCommand()
	if err := rootCmd.Execute(); err != nil {
		if !isReported(err) {
			newOutputFormatter(rootCmd).Error("Error", err)
		}
		os.Exit(1)
	}
}
