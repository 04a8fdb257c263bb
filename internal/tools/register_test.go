package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshield-mcp/dshield-mcp-server/internal/dispatch"
	"github.com/dshield-mcp/dshield-mcp-server/internal/feature"
	"github.com/dshield-mcp/dshield-mcp-server/internal/registry"
)

func TestRegisterAllWiresEveryToolOnce(t *testing.T) {
	reg := registry.New()
	fm := feature.NewManager()
	disp := dispatch.New(reg, fm)

	require.NoError(t, RegisterAll(reg, disp, Deps{DefaultTimeRangeHours: 24}))

	names := []string{
		"query_dshield_events",
		"stream_dshield_events_with_session_context",
		"get_data_dictionary",
		"analyze_campaign",
		"expand_campaign_indicators",
		"get_campaign_timeline",
		"enrich_ip_with_dshield",
		"generate_attack_report",
		"get_health_status",
	}
	for _, name := range names {
		_, ok := reg.Get(name)
		assert.Truef(t, ok, "expected %s to be registered", name)
	}

	// Registering a second time hits the registry's duplicate-name guard.
	err := RegisterAll(reg, disp, Deps{})
	assert.Error(t, err)
}

func TestRegisterAllGatesOnRequiredFeatures(t *testing.T) {
	reg := registry.New()
	fm := feature.NewManager()
	disp := dispatch.New(reg, fm)
	require.NoError(t, RegisterAll(reg, disp, Deps{}))

	available := reg.ListAvailable(fm)
	names := make(map[string]bool, len(available))
	for _, d := range available {
		names[d.Name] = true
	}
	assert.True(t, names["get_data_dictionary"], "no-required-feature tools are always listed")
	assert.True(t, names["get_health_status"], "no-required-feature tools are always listed")
	assert.False(t, names["query_dshield_events"], "elasticsearch-gated tools are hidden until probed available")
}
