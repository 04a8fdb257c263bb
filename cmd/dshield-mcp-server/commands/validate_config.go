package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshield-mcp/dshield-mcp-server/internal/config"
)

var validateConfigCmd = &cobra.Command{
	Use:   "validate-config",
	Short: "Load configuration and report whether it is valid",
	RunE:  runValidateConfig,
}

func runValidateConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		exitCode = ExitStartupError
		return err
	}
	fmt.Printf("configuration OK: elasticsearch=%s dshield=%s max_results=%d\n",
		cfg.Elasticsearch.URL, cfg.DShield.APIURL, cfg.Query.MaxResults)
	return nil
}
