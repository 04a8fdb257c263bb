package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshield-mcp/dshield-mcp-server/internal/campaign"
	"github.com/dshield-mcp/dshield-mcp-server/internal/esclient"
	"github.com/dshield-mcp/dshield-mcp-server/internal/mcperr"
)

const campaignFixtureSearchResponse = `{
  "took": 1,
  "hits": {
    "total": {"value": 1},
    "hits": [
      {"_id": "doc-1", "_index": "dshield-2026.07.30", "_source": {"@timestamp": "2026-07-30T00:00:00Z", "source.ip": "1.1.1.1", "destination.ip": "9.9.9.9"}}
    ]
  },
  "aggregations": {"timeline": {"buckets": []}},
  "_shards": {"total": 1}
}`

func newCampaignDeps(t *testing.T) (Deps, func()) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(campaignFixtureSearchResponse))
	}))
	es := esclient.New(esclient.Config{URL: srv.URL, Timeout: 2 * time.Second})
	analyzer := &campaign.Analyzer{ES: es, Store: campaign.NewStore()}
	reporter := &campaign.Reporter{Analyzer: analyzer}
	return Deps{ES: es, Campaign: analyzer, Report: reporter, DefaultTimeRangeHours: 24}, srv.Close
}

func TestAnalyzeCampaignHandler(t *testing.T) {
	d, closeSrv := newCampaignDeps(t)
	defer closeSrv()

	raw, err := json.Marshal(map[string]any{"seed_iocs": []string{"1.1.1.1"}})
	require.NoError(t, err)

	res, err := d.AnalyzeCampaign(context.Background(), raw)
	require.NoError(t, err)
	c, ok := res.(*campaign.Campaign)
	require.True(t, ok)
	assert.NotEmpty(t, c.ID)
	assert.Contains(t, c.CorrelatedIOCs, "9.9.9.9")
}

func TestAnalyzeCampaignHandlerRejectsEmptySeeds(t *testing.T) {
	d, closeSrv := newCampaignDeps(t)
	defer closeSrv()

	raw, err := json.Marshal(map[string]any{"seed_iocs": []string{}})
	require.NoError(t, err)

	_, err = d.AnalyzeCampaign(context.Background(), raw)
	require.Error(t, err)
	serr, ok := err.(*mcperr.StructuredError)
	require.True(t, ok)
	assert.Equal(t, mcperr.CodeInvalidParams, serr.Code)
}

func TestExpandCampaignIndicatorsHandler(t *testing.T) {
	d, closeSrv := newCampaignDeps(t)
	defer closeSrv()

	seedRaw, err := json.Marshal(map[string]any{"seed_iocs": []string{"1.1.1.1"}})
	require.NoError(t, err)
	res, err := d.AnalyzeCampaign(context.Background(), seedRaw)
	require.NoError(t, err)
	c := res.(*campaign.Campaign)

	raw, err := json.Marshal(map[string]any{"campaign_id": c.ID})
	require.NoError(t, err)
	res2, err := d.ExpandCampaignIndicators(context.Background(), raw)
	require.NoError(t, err)
	expanded := res2.(*campaign.Campaign)
	assert.Equal(t, c.ID, expanded.ID)
}

func TestExpandCampaignIndicatorsHandlerUnknownID(t *testing.T) {
	d, closeSrv := newCampaignDeps(t)
	defer closeSrv()

	raw, err := json.Marshal(map[string]any{"campaign_id": "does-not-exist"})
	require.NoError(t, err)
	_, err = d.ExpandCampaignIndicators(context.Background(), raw)
	require.Error(t, err)
}

func TestGetCampaignTimelineHandler(t *testing.T) {
	d, closeSrv := newCampaignDeps(t)
	defer closeSrv()

	seedRaw, err := json.Marshal(map[string]any{"seed_iocs": []string{"1.1.1.1"}})
	require.NoError(t, err)
	res, err := d.AnalyzeCampaign(context.Background(), seedRaw)
	require.NoError(t, err)
	c := res.(*campaign.Campaign)

	raw, err := json.Marshal(map[string]any{"campaign_id": c.ID, "granularity": "daily"})
	require.NoError(t, err)
	_, err = d.GetCampaignTimeline(context.Background(), raw)
	require.NoError(t, err)
}

func TestGetCampaignTimelineHandlerRejectsBadGranularity(t *testing.T) {
	d, closeSrv := newCampaignDeps(t)
	defer closeSrv()

	raw, err := json.Marshal(map[string]any{"campaign_id": "abc", "granularity": "monthly"})
	require.NoError(t, err)
	_, err = d.GetCampaignTimeline(context.Background(), raw)
	require.Error(t, err)
}

func TestGenerateAttackReportHandler(t *testing.T) {
	d, closeSrv := newCampaignDeps(t)
	defer closeSrv()

	seedRaw, err := json.Marshal(map[string]any{"seed_iocs": []string{"1.1.1.1"}})
	require.NoError(t, err)
	res, err := d.AnalyzeCampaign(context.Background(), seedRaw)
	require.NoError(t, err)
	c := res.(*campaign.Campaign)

	raw, err := json.Marshal(map[string]any{"campaign_id": c.ID})
	require.NoError(t, err)
	res2, err := d.GenerateAttackReport(context.Background(), raw)
	require.NoError(t, err)
	report := res2.(*campaign.Report)
	assert.Equal(t, c.ID, report.CampaignID)
}
