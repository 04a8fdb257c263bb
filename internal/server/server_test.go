package server

import (
	"bytes"
	"context"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshield-mcp/dshield-mcp-server/internal/dispatch"
	"github.com/dshield-mcp/dshield-mcp-server/internal/feature"
	"github.com/dshield-mcp/dshield-mcp-server/internal/frame"
	"github.com/dshield-mcp/dshield-mcp-server/internal/ratelimit"
	"github.com/dshield-mcp/dshield-mcp-server/internal/registry"
	"github.com/dshield-mcp/dshield-mcp-server/internal/transport"
)

func newTestServer() (*Server, *registry.Registry, *feature.Manager, *dispatch.Dispatcher) {
	reg := registry.New()
	fm := feature.NewManager()
	d := dispatch.New(reg, fm)
	s := New(reg, fm, d, ratelimit.NewHierarchy())
	return s, reg, fm, d
}

func decodeResponse(t *testing.T, raw []byte) frame.Response {
	t.Helper()
	var resp frame.Response
	require.NoError(t, json.Unmarshal(raw, &resp))
	return resp
}

func TestHandleMessageToolsList(t *testing.T) {
	s, reg, fm, _ := newTestServer()
	require.NoError(t, reg.Register(registry.Descriptor{
		Name:             "enrich_ip_with_dshield",
		Category:         registry.CategoryEnrichment,
		RequiredFeatures: []feature.Tag{feature.DShield},
		TimeoutSeconds:   30,
	}))

	var buf bytes.Buffer
	conn := newConnection("test", "", &buf, 4)

	s.handleMessage(context.Background(), conn, []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`), transport.FramingLine)
	conn.wg.Wait()

	resp := decodeResponse(t, bytes.TrimRight(buf.Bytes(), "\n"))
	assert.Nil(t, resp.Error)

	var result struct {
		Tools []registry.Descriptor `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.Empty(t, result.Tools, "dshield feature not yet probed available, so the tool should be gated out")

	fm.Register(feature.DShield, func(ctx context.Context) feature.Status {
		return feature.Status{Available: true}
	})
	fm.ProbeAll(context.Background(), time.Second)

	buf.Reset()
	s.handleMessage(context.Background(), conn, []byte(`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`), transport.FramingLine)
	conn.wg.Wait()
	resp = decodeResponse(t, bytes.TrimRight(buf.Bytes(), "\n"))
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.Len(t, result.Tools, 1)
}

func TestHandleMessageDropsMalformedFrame(t *testing.T) {
	s, _, _, _ := newTestServer()
	var buf bytes.Buffer
	conn := newConnection("test", "", &buf, 4)

	s.handleMessage(context.Background(), conn, []byte(`not json at all`), transport.FramingLine)
	conn.wg.Wait()

	assert.Empty(t, buf.Bytes(), "a structurally invalid frame must be dropped silently, not answered")
}

func TestHandleMessageDropsNotification(t *testing.T) {
	s, _, _, _ := newTestServer()
	var buf bytes.Buffer
	conn := newConnection("test", "", &buf, 4)

	s.handleMessage(context.Background(), conn, []byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`), transport.FramingLine)
	conn.wg.Wait()

	assert.Empty(t, buf.Bytes(), "notifications carry no response")
}

func TestHandleMessageUnknownMethod(t *testing.T) {
	s, _, _, _ := newTestServer()
	var buf bytes.Buffer
	conn := newConnection("test", "", &buf, 4)

	s.handleMessage(context.Background(), conn, []byte(`{"jsonrpc":"2.0","id":1,"method":"bogus/method"}`), transport.FramingLine)
	conn.wg.Wait()

	resp := decodeResponse(t, bytes.TrimRight(buf.Bytes(), "\n"))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "unknown_tool", resp.Error.Data.(map[string]any)["code"])
}

func TestHandleMessageToolCallUnknownTool(t *testing.T) {
	s, _, _, _ := newTestServer()
	var buf bytes.Buffer
	conn := newConnection("test", "", &buf, 4)

	s.handleMessage(context.Background(), conn, []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"does_not_exist","arguments":{}}}`), transport.FramingLine)
	conn.wg.Wait()

	resp := decodeResponse(t, bytes.TrimRight(buf.Bytes(), "\n"))
	require.NotNil(t, resp.Error)
	assert.EqualValues(t, -32601, resp.Error.Code)
}

func TestHandleMessageRateLimited(t *testing.T) {
	s, reg, _, d := newTestServer()
	require.NoError(t, reg.Register(registry.Descriptor{Name: "get_health_status", Category: registry.CategoryMonitoring, TimeoutSeconds: 5}))
	d.RegisterHandler("get_health_status", func(ctx context.Context, args json.RawMessage) (any, error) {
		return map[string]string{"status": "ok"}, nil
	})

	s.Limits = ratelimit.NewHierarchy()
	s.Limits.Global = ratelimit.NewGlobalLimiter(0, ratelimit.DefaultGlobalWindow)

	var buf bytes.Buffer
	conn := newConnection("test", "key", &buf, 4)
	s.handleMessage(context.Background(), conn, []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"get_health_status","arguments":{}}}`), transport.FramingLine)
	conn.wg.Wait()

	resp := decodeResponse(t, bytes.TrimRight(buf.Bytes(), "\n"))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "rate_limited", resp.Error.Data.(map[string]any)["code"])
}

func TestHandleMessageToolCallSuccess(t *testing.T) {
	s, reg, _, d := newTestServer()
	require.NoError(t, reg.Register(registry.Descriptor{Name: "get_health_status", Category: registry.CategoryMonitoring, TimeoutSeconds: 5}))
	d.RegisterHandler("get_health_status", func(ctx context.Context, args json.RawMessage) (any, error) {
		return map[string]string{"status": "ok"}, nil
	})

	var buf bytes.Buffer
	conn := newConnection("test", "", &buf, 4)
	s.handleMessage(context.Background(), conn, []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"get_health_status","arguments":{}}}`), transport.FramingLine)
	conn.wg.Wait()

	resp := decodeResponse(t, bytes.TrimRight(buf.Bytes(), "\n"))
	require.Nil(t, resp.Error)
	var result map[string]string
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.Equal(t, "ok", result["status"])
}
