package main

import (
	"context"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/phantomwg/wsbridge/internal/bridgeerr"
	"github.com/phantomwg/wsbridge/internal/config/store"
	"github.com/phantomwg/wsbridge/internal/constants"
)

// collection describes the list/rm/clear operations shared by tunnels,
// restrictions and headers.
type collection struct {
	noun   string
	list   func(ctx context.Context, st *store.Store) ([]collectionRow, error)
	remove func(st *store.Store, ctx context.Context, id int64) error
	clear  func(st *store.Store, ctx context.Context) error
	header string
}

// collectionRow is one listed entry: its id, the JSON payload and the
// tab-separated columns printed in human mode.
type collectionRow struct {
	ID      int64  `json:"id"`
	Entry   any    `json:"entry"`
	Columns string `json:"-"`
}

func newTunnelCommand() *cobra.Command {
	tunnelCmd := &cobra.Command{
		Use:   "tunnel",
		Short: "Manage client tunnel rules",
		Long: `Manage the forwarding rules a client session registers.

Examples:
  wsbridge tunnel add udp --local 51820 --remote 127.0.0.1:51820 --timeout 0
  wsbridge tunnel add tcp --local 127.0.0.1:8080 --remote internal.example.com:80
  wsbridge tunnel add socks5 --local 1080
  wsbridge tunnel list
  wsbridge tunnel rm 2`,
	}

	addCmd := &cobra.Command{
		Use:           "add <udp|tcp|socks5>",
		Short:         "Add a tunnel rule",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          tunnelAdd,
	}
	addCmd.Flags().String("local", "", "Local listen endpoint (host:port or port)")
	addCmd.Flags().String("remote", "", "Remote endpoint host:port (udp and tcp only)")
	addCmd.Flags().Int("timeout", 0, "Idle timeout in seconds (udp and socks5; 0 keeps the engine default)")
	_ = addCmd.MarkFlagRequired("local")

	tunnelCmd.AddCommand(addCmd)
	addCollectionCommands(tunnelCmd, collection{
		noun:   "tunnel",
		header: "ID\tTYPE\tLOCAL\tREMOTE\tTIMEOUT",
		list: func(ctx context.Context, st *store.Store) ([]collectionRow, error) {
			tunnels, err := st.ListTunnels(ctx)
			if err != nil {
				return nil, err
			}
			rows := make([]collectionRow, 0, len(tunnels))
			for _, t := range tunnels {
				entry := entryForTunnel(t.Rule)
				remote, timeout := entry.Remote, strconv.Itoa(entry.Timeout)
				if remote == "" {
					remote = "-"
				}
				if entry.Type == store.TunnelTCP {
					timeout = "-"
				}
				rows = append(rows, collectionRow{
					ID:      t.ID,
					Entry:   entry,
					Columns: fmt.Sprintf("%s\t%s\t%s\t%s", entry.Type, entry.Local, remote, timeout),
				})
			}
			return rows, nil
		},
		remove: (*store.Store).DeleteTunnel,
		clear:  (*store.Store).ClearTunnels,
	})
	return tunnelCmd
}

func newRestrictionCommand() *cobra.Command {
	restrictionCmd := &cobra.Command{
		Use:   "restriction",
		Short: "Manage server restrictions",
		Long: `Manage what a server session accepts.

Examples:
  wsbridge restriction add target 127.0.0.1:51820
  wsbridge restriction add path_prefix my-secret
  wsbridge restriction list`,
	}

	addCmd := &cobra.Command{
		Use:           "add <target|path_prefix> <value>",
		Short:         "Add a server restriction",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          restrictionAdd,
	}

	restrictionCmd.AddCommand(addCmd)
	addCollectionCommands(restrictionCmd, collection{
		noun:   "restriction",
		header: "ID\tTYPE\tVALUE",
		list: func(ctx context.Context, st *store.Store) ([]collectionRow, error) {
			restrictions, err := st.ListRestrictions(ctx)
			if err != nil {
				return nil, err
			}
			rows := make([]collectionRow, 0, len(restrictions))
			for _, r := range restrictions {
				entry := restrictionEntry{Type: r.Rule.Kind(), Value: r.Rule.Value()}
				rows = append(rows, collectionRow{
					ID:      r.ID,
					Entry:   entry,
					Columns: fmt.Sprintf("%s\t%s", entry.Type, entry.Value),
				})
			}
			return rows, nil
		},
		remove: (*store.Store).DeleteRestriction,
		clear:  (*store.Store).ClearRestrictions,
	})
	return restrictionCmd
}

func newHeaderCommand() *cobra.Command {
	headerCmd := &cobra.Command{
		Use:   "header",
		Short: "Manage HTTP headers sent on the client upgrade request",
		Long: `Manage extra HTTP headers sent with the client's websocket upgrade.

Examples:
  wsbridge header add X-Forwarded-Host vpn.example.com
  wsbridge header list
  wsbridge header clear`,
	}

	addCmd := &cobra.Command{
		Use:           "add <name> <value>",
		Short:         "Add an HTTP header",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          headerAdd,
	}

	headerCmd.AddCommand(addCmd)
	addCollectionCommands(headerCmd, collection{
		noun:   "header",
		header: "ID\tNAME\tVALUE",
		list: func(ctx context.Context, st *store.Store) ([]collectionRow, error) {
			headers, err := st.ListHeaders(ctx)
			if err != nil {
				return nil, err
			}
			rows := make([]collectionRow, 0, len(headers))
			for _, h := range headers {
				rows = append(rows, collectionRow{
					ID:      h.ID,
					Entry:   headerEntry{Name: h.Name, Value: h.Value},
					Columns: fmt.Sprintf("%s\t%s", h.Name, h.Value),
				})
			}
			return rows, nil
		},
		remove: (*store.Store).DeleteHeader,
		clear:  (*store.Store).ClearHeaders,
	})
	return headerCmd
}

// addCollectionCommands attaches list, rm and clear to parent.
func addCollectionCommands(parent *cobra.Command, c collection) {
	listCmd := &cobra.Command{
		Use:           "list",
		Aliases:       []string{"ls"},
		Short:         fmt.Sprintf("List %ss", c.noun),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return collectionList(cmd, c)
		},
	}

	rmCmd := &cobra.Command{
		Use:           "rm <id>",
		Aliases:       []string{"remove"},
		Short:         fmt.Sprintf("Remove a %s by id", c.noun),
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return collectionRemove(cmd, c, args[0])
		},
	}

	clearCmd := &cobra.Command{
		Use:           "clear",
		Short:         fmt.Sprintf("Remove every %s", c.noun),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return collectionClear(cmd, c)
		},
	}

	parent.AddCommand(listCmd, rmCmd, clearCmd)
}

// withStore opens the selected database for the duration of fn.
func withStore(cmd *cobra.Command, readOnly bool, fn func(ctx context.Context, st *store.Store) error) error {
	st, err := openStore(cmd, readOnly)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), constants.StoreOperationTimeout)
	defer cancel()
	return fn(ctx, st)
}

func collectionList(cmd *cobra.Command, c collection) error {
	out := newOutputFormatter(cmd)

	var rows []collectionRow
	err := withStore(cmd, true, func(ctx context.Context, st *store.Store) error {
		var err error
		rows, err = c.list(ctx, st)
		return err
	})
	if err != nil {
		return out.Error(fmt.Sprintf("Failed to list %ss", c.noun), err)
	}

	return out.Render(CommandResult{
		Data: map[string]any{c.noun + "s": rows},
		HumanReadable: func() error {
			if len(rows) == 0 {
				fmt.Fprintf(out.Writer(), "No %ss configured\n", c.noun)
				return nil
			}
			tw := tabwriter.NewWriter(out.Writer(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, c.header)
			for _, row := range rows {
				fmt.Fprintf(tw, "%d\t%s\n", row.ID, row.Columns)
			}
			return tw.Flush()
		},
	})
}

func collectionRemove(cmd *cobra.Command, c collection, rawID string) error {
	out := newOutputFormatter(cmd)

	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		return out.Error(fmt.Sprintf("Invalid %s id", c.noun), bridgeerr.New(bridgeerr.InvalidParam, "%q is not a positive integer", rawID))
	}

	err = withStore(cmd, false, func(ctx context.Context, st *store.Store) error {
		return c.remove(st, ctx, id)
	})
	if err != nil {
		return out.Error(fmt.Sprintf("Failed to remove %s %d", c.noun, id), err)
	}
	return out.Success(fmt.Sprintf("Removed %s %d", c.noun, id), map[string]any{"id": id})
}

func collectionClear(cmd *cobra.Command, c collection) error {
	out := newOutputFormatter(cmd)

	err := withStore(cmd, false, func(ctx context.Context, st *store.Store) error {
		return c.clear(st, ctx)
	})
	if err != nil {
		return out.Error(fmt.Sprintf("Failed to clear %ss", c.noun), err)
	}
	return out.Success(fmt.Sprintf("Cleared all %ss", c.noun), nil)
}

func tunnelAdd(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)

	local, _ := cmd.Flags().GetString("local")
	remote, _ := cmd.Flags().GetString("remote")
	timeout, _ := cmd.Flags().GetInt("timeout")

	rule, err := buildTunnel(tunnelEntry{
		Type:    store.TunnelKind(args[0]),
		Local:   local,
		Remote:  remote,
		Timeout: timeout,
	})
	if err != nil {
		return out.Error("Invalid tunnel", err)
	}

	var id int64
	err = withStore(cmd, false, func(ctx context.Context, st *store.Store) error {
		id, err = st.AddTunnel(ctx, rule)
		return err
	})
	if err != nil {
		return out.Error("Failed to add tunnel", err)
	}
	return out.Success(fmt.Sprintf("Added %s tunnel %d", rule.Kind(), id), map[string]any{"id": id})
}

func restrictionAdd(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)

	rule, err := store.NewRestriction(store.RestrictionKind(args[0]), args[1])
	if err != nil {
		return out.Error("Invalid restriction", bridgeerr.Wrap(bridgeerr.InvalidParam, err, "restriction"))
	}

	var id int64
	err = withStore(cmd, false, func(ctx context.Context, st *store.Store) error {
		id, err = st.AddRestriction(ctx, rule)
		return err
	})
	if err != nil {
		return out.Error("Failed to add restriction", err)
	}
	return out.Success(fmt.Sprintf("Added %s restriction %d", rule.Kind(), id), map[string]any{"id": id})
}

func headerAdd(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)

	var id int64
	err := withStore(cmd, false, func(ctx context.Context, st *store.Store) error {
		var err error
		id, err = st.AddHeader(ctx, args[0], args[1])
		return err
	})
	if err != nil {
		return out.Error("Failed to add header", err)
	}
	return out.Success(fmt.Sprintf("Added header %d", id), map[string]any{"id": id})
}
