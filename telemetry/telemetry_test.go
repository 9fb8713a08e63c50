package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestSetupWithoutEndpointIsNoop(t *testing.T) {
	before := otel.GetTracerProvider()
	shutdown, err := Setup(context.Background(), "worklogd", "")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("expected noop shutdown, got %v", err)
	}
	if otel.GetTracerProvider() != before {
		t.Fatalf("expected global provider untouched")
	}
}

func TestSetupInstallsProvider(t *testing.T) {
	before := otel.GetTracerProvider()
	shutdown, err := Setup(context.Background(), "worklogd", "http://127.0.0.1:4318")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if otel.GetTracerProvider() == before {
		t.Fatalf("expected global provider replaced")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = shutdown(ctx)
}
