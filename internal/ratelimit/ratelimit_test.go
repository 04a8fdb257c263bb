package ratelimit

import (
	"testing"
	"time"
)

func TestSlidingWindowPrunesOldEntries(t *testing.T) {
	w := NewSlidingWindow(2, time.Minute)
	base := time.Unix(1000, 0)
	if !w.AllowAt(base) {
		t.Fatalf("first request should be allowed")
	}
	if !w.AllowAt(base.Add(time.Second)) {
		t.Fatalf("second request should be allowed")
	}
	if w.AllowAt(base.Add(2 * time.Second)) {
		t.Fatalf("third request within window should be denied")
	}
	// After the window elapses, both early entries are pruned.
	if !w.AllowAt(base.Add(90 * time.Second)) {
		t.Fatalf("request after window elapses should be allowed")
	}
}

func TestAPIKeyLimiterBlockedKeyAlwaysDenied(t *testing.T) {
	l := NewAPIKeyLimiter()
	l.Configure("key1", 600, 600)
	l.Block("key1")
	if l.Allow("key1") {
		t.Fatalf("blocked key should never be allowed")
	}
}

func TestAPIKeyLimiterUnknownKeyGetsConservativeDefault(t *testing.T) {
	l := NewAPIKeyLimiter()
	stats := l.Stats("never-configured")
	if stats.RequestsPerMinute != DefaultUnknownKeyRPM {
		t.Fatalf("expected conservative default %v rpm, got %v", DefaultUnknownKeyRPM, stats.RequestsPerMinute)
	}
}

func TestHierarchyShortCircuitsOnFirstRejection(t *testing.T) {
	h := NewHierarchy()
	h.Keys.Configure("k", 60, 1)
	if err := h.Check("k", "conn-1"); err != nil {
		t.Fatalf("first call should pass: %v", err)
	}
	err := h.Check("k", "conn-1")
	if err == nil || err.Code != "rate_limited" {
		t.Fatalf("expected rate_limited after burst exhausted, got %v", err)
	}
	if !err.Retryable {
		t.Fatalf("rate_limited should be retryable")
	}
}
