package context_test

import (
	"context"
	"strings"
	"testing"
	"time"

	pcontext "github.com/coreobjects/coreobjects/pkg/context"
)

func TestCycleID(t *testing.T) {
	ctx := context.Background()
	if pcontext.HasCycleID(ctx) {
		t.Fatal("empty context should not carry a cycle ID")
	}

	ctx = pcontext.WithCycleID(ctx, "")
	id := pcontext.GetCycleID(ctx)
	if !strings.HasPrefix(id, "gc_") {
		t.Errorf("expected generated gc_ prefix, got %s", id)
	}

	ctx = pcontext.WithCycleID(ctx, "fixed")
	if got := pcontext.GetCycleID(ctx); got != "fixed" {
		t.Errorf("expected fixed, got %s", got)
	}
}

func TestGenerateCycleID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := pcontext.GenerateCycleID()
		if seen[id] {
			t.Fatalf("duplicate cycle ID %s", id)
		}
		seen[id] = true
	}
}

func TestTick(t *testing.T) {
	if _, ok := pcontext.GetTick(context.Background()); ok {
		t.Error("expected no tick on empty context")
	}
	ctx := pcontext.WithTick(context.Background(), 42)
	tick, ok := pcontext.GetTick(ctx)
	if !ok || tick != 42 {
		t.Errorf("expected tick 42, got %d (%v)", tick, ok)
	}
}

func TestEnrichContext(t *testing.T) {
	ctx := pcontext.EnrichContext(context.Background())
	if !strings.HasPrefix(pcontext.GetCorrelationID(ctx), "cor_") {
		t.Error("expected generated correlation ID")
	}

	again := pcontext.EnrichContext(ctx)
	if pcontext.GetCorrelationID(again) != pcontext.GetCorrelationID(ctx) {
		t.Error("existing correlation ID must be preserved")
	}
}

func TestTracingFields(t *testing.T) {
	ctx := pcontext.WithOperation(context.Background(), "collect")
	ctx = pcontext.WithStartTime(ctx, time.Now().Add(-50*time.Millisecond))
	ctx = pcontext.WithTick(ctx, 3)

	fields := pcontext.TracingFields(ctx)
	if fields["operation"] != "collect" {
		t.Errorf("unexpected operation %v", fields["operation"])
	}
	if fields["cycle_id"] != "unknown-cycle" {
		t.Errorf("unexpected cycle_id %v", fields["cycle_id"])
	}
	if ms, _ := fields["duration_ms"].(int64); ms < 50 {
		t.Errorf("expected at least 50ms, got %v", fields["duration_ms"])
	}
	if fields["tick"] != uint64(3) {
		t.Errorf("unexpected tick %v", fields["tick"])
	}
}
