package campaign

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshield-mcp/dshield-mcp-server/internal/esclient"
)

const fixtureSearchResponse = `{
  "took": 3,
  "hits": {
    "total": {"value": 2},
    "hits": [
      {"_id": "doc-1", "_index": "dshield-2026.07.30", "_source": {"@timestamp": "2026-07-30T00:00:00Z", "source.ip": "1.1.1.1", "destination.ip": "9.9.9.9"}},
      {"_id": "doc-2", "_index": "dshield-2026.07.30", "_source": {"@timestamp": "2026-07-30T00:05:00Z", "source.ip": "1.1.1.1", "destination.ip": "8.8.8.8"}}
    ]
  },
  "_shards": {"total": 1}
}`

func newTestAnalyzer(t *testing.T, handler http.HandlerFunc) (*Analyzer, func()) {
	t.Helper()
	srv := httptest.NewServer(handler)
	client := esclient.New(esclient.Config{URL: srv.URL, Timeout: 2 * time.Second})
	return &Analyzer{ES: client, Store: NewStore()}, srv.Close
}

func TestAnalyzeCorrelatesIndicators(t *testing.T) {
	analyzer, closeSrv := newTestAnalyzer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(fixtureSearchResponse))
	})
	defer closeSrv()

	c, err := analyzer.Analyze(context.Background(), []string{"1.1.1.1"}, esclient.TimeRange{TimeRangeHours: 24}, 30*time.Minute)
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, 2, c.EventCount)
	assert.Contains(t, c.CorrelatedIOCs, "9.9.9.9")
	assert.Contains(t, c.CorrelatedIOCs, "8.8.8.8")
	assert.NotContains(t, c.CorrelatedIOCs, "1.1.1.1", "a seed IOC is not re-reported as correlated")

	stored, ok := analyzer.Store.Get(c.ID)
	require.True(t, ok)
	assert.Equal(t, c.ID, stored.ID)
}

func TestExpandGrowsCorrelatedSet(t *testing.T) {
	analyzer, closeSrv := newTestAnalyzer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(fixtureSearchResponse))
	})
	defer closeSrv()

	c, err := analyzer.Analyze(context.Background(), []string{"1.1.1.1"}, esclient.TimeRange{TimeRangeHours: 24}, 30*time.Minute)
	require.NoError(t, err)

	expanded, err := analyzer.Expand(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, expanded.ID)
	assert.Contains(t, expanded.CorrelatedIOCs, "9.9.9.9")
}

func TestExpandUnknownCampaignErrors(t *testing.T) {
	analyzer := &Analyzer{Store: NewStore()}
	_, err := analyzer.Expand(context.Background(), "does-not-exist")
	assert.Error(t, err)
}

func TestLooksLikeIP(t *testing.T) {
	assert.True(t, looksLikeIP("1.2.3.4"))
	assert.False(t, looksLikeIP("not-an-ip"))
	assert.False(t, looksLikeIP("evil.example.com"))
}
