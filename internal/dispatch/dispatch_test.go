package dispatch

import (
	"context"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/dshield-mcp/dshield-mcp-server/internal/feature"
	"github.com/dshield-mcp/dshield-mcp-server/internal/registry"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *registry.Registry, *feature.Manager) {
	t.Helper()
	reg := registry.New()
	fm := feature.NewManager()
	return New(reg, fm), reg, fm
}

func TestDispatchUnknownTool(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	_, err := d.Dispatch(context.Background(), "does_not_exist", nil, 0)
	if err == nil || err.Code != "unknown_tool" {
		t.Fatalf("expected unknown_tool, got %v", err)
	}
}

func TestDispatchFeatureUnavailable(t *testing.T) {
	d, reg, _ := newTestDispatcher(t)
	reg.Register(registry.Descriptor{
		Name:             "query_dshield_events",
		Category:         registry.CategoryQuery,
		RequiredFeatures: []feature.Tag{feature.Elasticsearch},
		TimeoutSeconds:   30,
	})
	d.RegisterHandler("query_dshield_events", func(ctx context.Context, args json.RawMessage) (any, error) {
		return "ok", nil
	})
	_, err := d.Dispatch(context.Background(), "query_dshield_events", nil, 0)
	if err == nil || err.Code != "feature_unavailable" {
		t.Fatalf("expected feature_unavailable, got %v", err)
	}
}

func TestDispatchSuccess(t *testing.T) {
	d, reg, fm := newTestDispatcher(t)
	reg.Register(registry.Descriptor{Name: "get_health_status", Category: registry.CategoryMonitoring, TimeoutSeconds: 30})
	d.RegisterHandler("get_health_status", func(ctx context.Context, args json.RawMessage) (any, error) {
		return map[string]string{"status": "ok"}, nil
	})
	_ = fm
	result, err := d.Dispatch(context.Background(), "get_health_status", nil, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m, ok := result.(map[string]string); !ok || m["status"] != "ok" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestDispatchTimeout(t *testing.T) {
	d, reg, _ := newTestDispatcher(t)
	reg.Register(registry.Descriptor{Name: "slow_tool", Category: registry.CategoryQuery, TimeoutSeconds: 0.05})
	d.RegisterHandler("slow_tool", func(ctx context.Context, args json.RawMessage) (any, error) {
		select {
		case <-time.After(time.Second):
			return "too late", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	_, err := d.Dispatch(context.Background(), "slow_tool", nil, 0)
	if err == nil || err.Code != "timeout" {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestResolveTimeoutPrecedence(t *testing.T) {
	got := resolveTimeout(10, 30, GlobalTimeoutCeiling)
	if got != 10*time.Second {
		t.Fatalf("expected argument cap to win, got %v", got)
	}
	got = resolveTimeout(0, 30, GlobalTimeoutCeiling)
	if got != 30*time.Second {
		t.Fatalf("expected descriptor timeout when no arg cap, got %v", got)
	}
	got = resolveTimeout(0, 0, GlobalTimeoutCeiling)
	if got != GlobalTimeoutCeiling {
		t.Fatalf("expected ceiling when nothing else set, got %v", got)
	}
}

func TestCategoryFallbackHandler(t *testing.T) {
	d, reg, _ := newTestDispatcher(t)
	reg.Register(registry.Descriptor{Name: "generate_attack_report", Category: registry.CategoryReporting, TimeoutSeconds: 30})
	d.RegisterCategoryHandler(registry.CategoryReporting, func(ctx context.Context, args json.RawMessage) (any, error) {
		return "fallback", nil
	})
	result, err := d.Dispatch(context.Background(), "generate_attack_report", nil, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "fallback" {
		t.Fatalf("expected fallback handler result, got %v", result)
	}
}
