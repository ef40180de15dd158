package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/phantomwg/wsbridge/internal/constants"
	"github.com/phantomwg/wsbridge/internal/logging"
	wsversion "github.com/phantomwg/wsbridge/internal/version"
)

type versionInfo struct {
	Version         string `json:"version"`
	Engine          string `json:"engine,omitempty"`
	EngineVersion   string `json:"engine_version,omitempty"`
	EngineError     string `json:"engine_error,omitempty"`
	EngineMismatch  string `json:"engine_mismatch,omitempty"`
	SupportedEngine string `json:"supported_engine"`
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:           "version",
		Short:         "Show wsbridge and wstunnel versions",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          showVersion,
	}
}

func showVersion(cmd *cobra.Command, _ []string) error {
	out := newOutputFormatter(cmd)

	info := versionInfo{
		Version:         wsversion.String(),
		SupportedEngine: fmt.Sprintf("%d.x", wsversion.SupportedEngineMajor),
	}

	ctx, cancel := context.WithTimeout(context.Background(), constants.EngineVersionTimeout)
	defer cancel()

	banner, err := newEngine(cmd, logging.Discard()).Version(ctx)
	if err != nil {
		info.EngineError = err.Error()
	} else {
		info.Engine = banner
		if e, ok := wsversion.ParseEngine(banner); ok {
			info.EngineVersion = e.String()
		}
		info.EngineMismatch = wsversion.EngineWarning(banner)
	}

	return out.Render(CommandResult{
		Data: info,
		HumanReadable: func() error {
			w := out.Writer()
			fmt.Fprintf(w, "wsbridge %s\n", info.Version)
			switch {
			case info.EngineError != "":
				fmt.Fprintf(w, "wstunnel: %s\n", out.paint(color.FgYellow, "unavailable ("+info.EngineError+")"))
			case info.EngineVersion != "":
				fmt.Fprintf(w, "wstunnel %s\n", info.EngineVersion)
			default:
				fmt.Fprintf(w, "wstunnel: %s\n", info.Engine)
			}
			if info.EngineMismatch != "" {
				fmt.Fprintln(out.errOut, out.paint(color.FgYellow, info.EngineMismatch))
			}
			return nil
		},
	})
}
