package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/phantomwg/wsbridge/internal/config/store"
	"github.com/phantomwg/wsbridge/internal/constants"
	"github.com/phantomwg/wsbridge/internal/probe"
)

func newProbeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Check that the configured wstunnel server answers an upgrade request",
		Long: `Probe sends one websocket upgrade to <remote_url>/<http_upgrade_path_prefix>/events
using the stored client headers, credentials, TLS and proxy settings, and reports
whether the server was reachable and accepted the upgrade.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runProbe,
	}
	cmd.Flags().Duration("timeout", constants.ProbeTimeout, "Handshake timeout")
	return cmd
}

func runProbe(cmd *cobra.Command, _ []string) error {
	out := newOutputFormatter(cmd)
	timeout, _ := cmd.Flags().GetDuration("timeout")

	var opts probe.Options
	err := withStore(cmd, true, func(ctx context.Context, st *store.Store) error {
		cfg, err := st.GetClientConfig(ctx)
		if err != nil {
			return err
		}
		headers, err := st.ListHeaders(ctx)
		if err != nil {
			return err
		}
		opts = probe.Options{Config: cfg, Headers: headers, Timeout: timeout}
		return nil
	})
	if err != nil {
		return out.Error("Failed to read client configuration", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout+constants.Duration500Milliseconds)
	defer cancel()

	result, err := probe.Run(ctx, opts)
	if err != nil {
		return out.Error("Cannot probe", err)
	}

	if err := out.Render(CommandResult{
		Data: result,
		HumanReadable: func() error {
			w := out.Writer()
			fmt.Fprintf(w, "URL:       %s\n", result.URL)
			switch {
			case result.Upgraded:
				fmt.Fprintf(w, "Result:    %s\n", out.paint(color.FgGreen, "upgrade accepted"))
			case result.Reachable:
				fmt.Fprintf(w, "Result:    %s\n", out.paint(color.FgYellow, result.Error))
			default:
				fmt.Fprintf(w, "Result:    %s\n", out.paint(color.FgRed, "unreachable: "+result.Error))
			}
			fmt.Fprintf(w, "Latency:   %s\n", result.Latency.Round(time.Millisecond))
			return nil
		},
	}); err != nil {
		return err
	}
	if !result.Reachable {
		return reportedError{errors.New(result.Error)}
	}
	return nil
}
