package esclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const clientFixtureSearchResponse = `{
  "took": 2,
  "hits": {
    "total": {"value": 1},
    "hits": [
      {"_id": "doc-1", "_index": "dshield-2026.07.30", "_source": {"@timestamp": "2026-07-30T00:00:00Z", "source.ip": "1.2.3.4"}}
    ]
  },
  "_shards": {"total": 1}
}`

func TestConnectIsIdempotent(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := New(Config{URL: srv.URL, Timeout: 2 * time.Second})
	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestQueryReturnsEventsAndCursorPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(clientFixtureSearchResponse))
	}))
	defer srv.Close()

	c := New(Config{URL: srv.URL, Timeout: 2 * time.Second})
	resp, err := c.Query(context.Background(), QueryRequest{Indices: []string{"dshield-*"}, PageSize: 10})
	require.Nil(t, err)
	require.Len(t, resp.Events, 1)
	assert.Equal(t, "doc-1", resp.Events[0].DocID)
	require.NotNil(t, resp.CursorPage)
	assert.True(t, resp.CursorPage.HasMore)
}

func TestQueryRejectsDeepPagination(t *testing.T) {
	c := New(Config{URL: "http://unused.invalid"})
	_, err := c.Query(context.Background(), QueryRequest{PageNumber: 1000, PageSize: 100})
	require.NotNil(t, err)
	assert.Equal(t, "invalid_params", string(err.Code))
}

func TestQueryRejectsMalformedCursor(t *testing.T) {
	c := New(Config{URL: "http://unused.invalid"})
	_, err := c.Query(context.Background(), QueryRequest{Cursor: "not-a-valid-cursor"})
	require.NotNil(t, err)
	assert.Equal(t, "invalid_cursor", string(err.Code))
}

func TestQueryRetriesTransientFailureThenSucceeds(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(clientFixtureSearchResponse))
	}))
	defer srv.Close()

	c := New(Config{URL: srv.URL, Timeout: 2 * time.Second})
	resp, err := c.Query(context.Background(), QueryRequest{Indices: []string{"dshield-*"}, PageSize: 10})
	require.Nil(t, err)
	require.Len(t, resp.Events, 1)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&attempts), int32(2))
}

func TestQueryDoesNotRetryClientErrors(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New(Config{URL: srv.URL, Timeout: 2 * time.Second})
	_, err := c.Query(context.Background(), QueryRequest{Indices: []string{"dshield-*"}, PageSize: 10})
	require.NotNil(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

func TestCircuitBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(Config{URL: srv.URL, Timeout: 2 * time.Second})
	for i := 0; i < 5; i++ {
		_, err := c.Query(context.Background(), QueryRequest{Indices: []string{"dshield-*"}, PageSize: 10})
		require.NotNil(t, err)
	}
	assert.True(t, c.IsOpen())

	_, err := c.Query(context.Background(), QueryRequest{Indices: []string{"dshield-*"}, PageSize: 10})
	require.NotNil(t, err)
	assert.Equal(t, "upstream_unavailable", string(err.Code))
}

func TestExecuteAggregationQueryReturnsAggregations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"aggregations":{"timeline":{"buckets":[]}},"_shards":{"total":1}}`))
	}))
	defer srv.Close()

	c := New(Config{URL: srv.URL, Timeout: 2 * time.Second})
	aggs, metrics, err := c.ExecuteAggregationQuery(context.Background(), []string{"dshield-*"}, AggregationRequest{})
	require.Nil(t, err)
	assert.Contains(t, aggs, "timeline")
	assert.True(t, metrics.AggregationsUsed)
	assert.Equal(t, ComplexityAggregation, metrics.QueryComplexity)
}
