package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/phantomwg/wsbridge/internal/bridgeerr"
	"github.com/phantomwg/wsbridge/internal/config/store"
	"github.com/phantomwg/wsbridge/internal/constants"
)

func newConfigCommand() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Show and edit client/server configuration",
		Long: `Show and edit the stored client and server configuration.

Fields are set with key=value pairs; unknown keys reject the whole update.

Examples:
  wsbridge config client set remote_url=wss://vpn.example.com:443 tls_verify=true
  wsbridge config server set bind_url=wss://0.0.0.0:8443 worker_threads=4
  wsbridge config client show
  wsbridge config export > wsbridge.yaml
  wsbridge config import wsbridge.yaml`,
	}

	configCmd.AddCommand(
		newConfigSectionCommand("client", store.ClientFieldNames()),
		newConfigSectionCommand("server", store.ServerFieldNames()),
	)

	importCmd := &cobra.Command{
		Use:           "import <file.yaml>",
		Short:         "Load configuration and collections from a YAML document",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          configImport,
	}

	exportCmd := &cobra.Command{
		Use:           "export [file.yaml]",
		Short:         "Write configuration and collections as a YAML document",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          configExport,
	}
	exportCmd.Flags().Bool("include-secrets", false, "Include http_upgrade_credentials in the export")

	configCmd.AddCommand(importCmd, exportCmd)
	return configCmd
}

func newConfigSectionCommand(section string, fields []string) *cobra.Command {
	sectionCmd := &cobra.Command{
		Use:   section,
		Short: fmt.Sprintf("Manage %s-mode configuration", section),
	}

	setCmd := &cobra.Command{
		Use:           "set <key=value>...",
		Short:         fmt.Sprintf("Update %s fields (%s)", section, strings.Join(fields, ", ")),
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return configSet(cmd, section, args)
		},
	}

	showCmd := &cobra.Command{
		Use:           "show",
		Short:         fmt.Sprintf("Show %s configuration", section),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return configShow(cmd, section)
		},
	}

	sectionCmd.AddCommand(setCmd, showCmd)
	if section == "client" {
		sectionCmd.AddCommand(newCredentialsCommand())
	}
	return sectionCmd
}

// parseFieldAssignments turns key=value arguments into typed store fields.
func parseFieldAssignments(section string, args []string) (store.Fields, error) {
	parse := store.ParseClientField
	if section == "server" {
		parse = store.ParseServerField
	}

	fields := make(store.Fields, len(args))
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, bridgeerr.New(bridgeerr.InvalidParam, "expected key=value, got %q", arg)
		}
		value, err := parse(key, raw)
		if err != nil {
			return nil, err
		}
		fields[key] = value
	}
	return fields, nil
}

func configSet(cmd *cobra.Command, section string, args []string) error {
	out := newOutputFormatter(cmd)

	fields, err := parseFieldAssignments(section, args)
	if err != nil {
		return out.Error("Invalid field", err)
	}

	st, err := openStore(cmd, false)
	if err != nil {
		return out.Error("Failed to open state database", err)
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), constants.StoreOperationTimeout)
	defer cancel()

	if section == "server" {
		err = st.SetServerConfig(ctx, fields)
	} else {
		err = st.SetClientConfig(ctx, fields)
	}
	if err != nil {
		return out.Error(fmt.Sprintf("Failed to update %s configuration", section), err)
	}

	return out.Success(fmt.Sprintf("Updated %d %s field(s)", len(fields), section), map[string]any{"fields": sortedKeys(fields)})
}

func configShow(cmd *cobra.Command, section string) error {
	out := newOutputFormatter(cmd)

	st, err := openStore(cmd, true)
	if err != nil {
		return out.Error("Failed to open state database", err)
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), constants.StoreOperationTimeout)
	defer cancel()

	var values map[string]any
	if section == "server" {
		cfg, err := st.GetServerConfig(ctx)
		if err != nil {
			return out.Error("Failed to read server configuration", err)
		}
		values = serverValues(cfg)
	} else {
		cfg, err := st.GetClientConfig(ctx)
		if err != nil {
			return out.Error("Failed to read client configuration", err)
		}
		values = clientValues(cfg, false)
	}

	return out.Render(CommandResult{
		Data: values,
		HumanReadable: func() error {
			tw := tabwriter.NewWriter(out.Writer(), 0, 0, 2, ' ', 0)
			for _, key := range sortedKeys(values) {
				fmt.Fprintf(tw, "%s\t%v\n", key, values[key])
			}
			return tw.Flush()
		},
	})
}

func configImport(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)

	data, err := os.ReadFile(args[0])
	if err != nil {
		return out.Error("Failed to read document", err)
	}
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return out.Error("Failed to parse document", err)
	}

	st, err := openStore(cmd, false)
	if err != nil {
		return out.Error("Failed to open state database", err)
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), constants.StoreOpenTimeout)
	defer cancel()

	summary, err := doc.apply(ctx, st)
	if err != nil {
		return out.Error("Import failed", err)
	}
	return out.Success(fmt.Sprintf("Imported %s", args[0]), summary)
}

func configExport(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)
	includeSecrets, _ := cmd.Flags().GetBool("include-secrets")

	st, err := openStore(cmd, true)
	if err != nil {
		return out.Error("Failed to open state database", err)
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), constants.StoreOperationTimeout)
	defer cancel()

	doc, err := exportDocument(ctx, st, includeSecrets)
	if err != nil {
		return out.Error("Export failed", err)
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return out.Error("Failed to encode document", err)
	}

	if len(args) == 0 {
		_, err := out.Writer().Write(data)
		return err
	}
	if err := os.WriteFile(args[0], data, 0o600); err != nil {
		return out.Error("Failed to write document", err)
	}
	return out.Success(fmt.Sprintf("Exported to %s", args[0]), map[string]any{"path": args[0]})
}
