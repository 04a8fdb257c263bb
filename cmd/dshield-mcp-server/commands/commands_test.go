package commands

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCommandSucceeds(t *testing.T) {
	rootCmd.SetArgs([]string{"version"})
	exitCode = ExitOK
	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, ExitOK, exitCode)
}

func TestValidateConfigSucceedsWithDefaults(t *testing.T) {
	t.Setenv("ELASTICSEARCH_URL", "http://localhost:9200")
	t.Setenv("DSHIELD_API_URL", "https://dshield.org/api")
	os.Unsetenv("DSHIELD_MCP_CONFIG_PATH")

	rootCmd.SetArgs([]string{"validate-config"})
	exitCode = ExitOK
	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, ExitOK, exitCode)
}

func TestServeRequiresAPIKeyWithTCPListen(t *testing.T) {
	rootCmd.SetArgs([]string{"serve", "--tcp-listen", "127.0.0.1:0"})
	exitCode = ExitOK
	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitStartupError, exitCode)
	tcpListenAddr = ""
	tcpAPIKey = ""
}
