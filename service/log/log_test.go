package log

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWith(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	SetLogger(zap.New(core))

	ctx := With(context.Background(), "tile", "31TCJ")
	Logger(ctx).Info("lookup")
	Logger(context.Background()).Info("no field")

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if v, ok := entries[0].ContextMap()["tile"]; !ok || v != "31TCJ" {
		t.Errorf("expected tile field, got %v", entries[0].ContextMap())
	}
	if len(entries[1].Context) != 0 {
		t.Errorf("unexpected fields %v", entries[1].Context)
	}
}
