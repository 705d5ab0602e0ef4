// Command prefsync runs the preference sync HTTP server and offers
// operator commands for reading and writing a user's stored preferences.
// All settings come from PREFSYNC_* environment variables or a .env file.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "prefsync",
		Short: "Three-tier user preference sync",
		Long: `prefsync keeps user preferences consistent across a request cookie,
a shared cache and a durable store.

Available subcommands:
  serve  - Run the HTTP API
  get    - Print a user's effective preference
  set    - Store a preference for a user
  clear  - Remove a user's preference
  list   - Print every preference for a user
  token  - Issue a bearer token for a user`,
		SilenceUsage: true,
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newGetCmd())
	root.AddCommand(newSetCmd())
	root.AddCommand(newClearCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newTokenCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
