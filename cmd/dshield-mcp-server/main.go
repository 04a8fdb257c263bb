// Package main is the dshield-mcp-server entry point: wires config,
// logging, the Elasticsearch/DShield backends, the tool registry, and
// the stdio/TCP protocol frontend, then serves until shutdown.
package main

import (
	"os"

	"github.com/dshield-mcp/dshield-mcp-server/cmd/dshield-mcp-server/commands"
)

func main() {
	os.Exit(commands.Execute())
}
