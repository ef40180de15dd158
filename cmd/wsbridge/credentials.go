package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/phantomwg/wsbridge/internal/bridgeerr"
	"github.com/phantomwg/wsbridge/internal/config/store"
)

func newCredentialsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials [user]",
		Short: "Set the HTTP upgrade credentials without putting the password on the command line",
		Long: `Set http_upgrade_credentials to user:password. The password is read from the
terminal without echo, or from the first line of stdin when it is not a terminal.

Examples:
  wsbridge config client credentials alice
  printf 's3cret\n' | wsbridge config client credentials alice
  wsbridge config client credentials --clear`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          setCredentials,
	}
	cmd.Flags().Bool("clear", false, "Remove the stored credentials")
	return cmd
}

func setCredentials(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)
	clearCreds, _ := cmd.Flags().GetBool("clear")

	var value string
	switch {
	case clearCreds && len(args) > 0:
		return out.Error("Invalid arguments", bridgeerr.New(bridgeerr.InvalidParam, "--clear takes no user"))
	case clearCreds:
	case len(args) == 0:
		return out.Error("Invalid arguments", bridgeerr.New(bridgeerr.InvalidParam, "user is required unless --clear is given"))
	default:
		user := strings.TrimSpace(args[0])
		if user == "" || strings.Contains(user, ":") {
			return out.Error("Invalid user", bridgeerr.New(bridgeerr.InvalidParam, "user must be non-empty and must not contain ':'"))
		}
		password, err := readSecret(cmd.InOrStdin(), cmd.ErrOrStderr(), "Password: ")
		if err != nil {
			return out.Error("Failed to read password", err)
		}
		if password == "" {
			return out.Error("Invalid password", bridgeerr.New(bridgeerr.InvalidParam, "password is empty"))
		}
		value = user + ":" + password
	}

	err := withStore(cmd, false, func(ctx context.Context, st *store.Store) error {
		return st.SetClientConfig(ctx, store.Fields{store.ClientHTTPUpgradeCredentials: value})
	})
	if err != nil {
		return out.Error("Failed to store credentials", err)
	}
	if clearCreds {
		return out.Success("Cleared HTTP upgrade credentials", nil)
	}
	return out.Success(fmt.Sprintf("Stored HTTP upgrade credentials for %s", args[0]), map[string]any{"user": args[0]})
}

// readSecret reads a password from in. A terminal gets a prompt and no echo;
// anything else is read up to the first newline.
func readSecret(in io.Reader, prompt io.Writer, label string) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(prompt, label)
		secret, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", err
		}
		return string(secret), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
