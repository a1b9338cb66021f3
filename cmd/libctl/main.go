// cmd/libctl/main.go
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"unilib/internal/clients"
)

type options struct {
	server    string
	tokenFile string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "libctl",
		Short:         "Operate the university library from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	server := os.Getenv("UNILIB_SERVER")
	if server == "" {
		server = "http://localhost:8080"
	}
	root.PersistentFlags().StringVar(&opts.server, "server", server, "API base URL")
	root.PersistentFlags().StringVar(&opts.tokenFile, "token-file", defaultTokenFile(), "where the session token is stored")

	root.AddCommand(newLoginCmd(opts), newPresenceCmd(opts), newLoansCmd(opts))
	return root
}

func defaultTokenFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".unilib-token"
	}
	return filepath.Join(home, ".unilib", "token")
}

// client builds an API client carrying the saved token, if any.
func (o *options) client() *clients.APIClient {
	token, _ := os.ReadFile(o.tokenFile)
	return clients.NewAPIClient(o.server, strings.TrimSpace(string(token)))
}

func (o *options) saveToken(token string) error {
	if err := os.MkdirAll(filepath.Dir(o.tokenFile), 0o700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	return os.WriteFile(o.tokenFile, []byte(token+"\n"), 0o600)
}

// readPassword reads a password without echoing it.
func readPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
