// Package commands implements the dshield-mcp-server CLI: serve,
// validate-config, and version, grounded on
// fyrsmithlabs-contextd/cmd/ctxd's cobra command layout.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

// Exit codes per the graceful-shutdown contract: 0 normal, 1 startup
// failure, 2 fatal runtime error.
const (
	ExitOK           = 0
	ExitStartupError = 1
	ExitRuntimeError = 2
)

var rootCmd = &cobra.Command{
	Use:     "dshield-mcp-server",
	Short:   "MCP server mediating AI-client access to DShield-indexed Elasticsearch events and DShield threat intelligence",
	Version: version,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(validateConfigCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the server version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version)
	},
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if exitCode != ExitOK {
			return exitCode
		}
		return ExitStartupError
	}
	return exitCode
}

// exitCode lets a RunE handler (which can only return an error) signal
// a more specific code than the generic startup-failure one; commands
// that need ExitRuntimeError set this before returning their error.
var exitCode = ExitOK
