package telemetry

import (
	"context"
	"log/slog"
	"testing"
)

func TestInitTracerReturnsShutdown(t *testing.T) {
	shutdown, err := InitTracer("code-iq-test", slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("init tracer: %v", err)
	}
	if shutdown == nil {
		t.Fatal("nil shutdown function")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}
