package otel

import (
	"context"
	"testing"
)

func TestSetupDisabledWithoutEndpoint(t *testing.T) {
	t.Setenv("CRITTERCHAT_OTEL_ENDPOINT", "")

	shutdown, err := Setup(context.Background(), "chatd")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if shutdown == nil {
		t.Fatal("expected no-op shutdown function")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("noop shutdown: %v", err)
	}
}

func TestSetupDisabledExplicitly(t *testing.T) {
	t.Setenv("CRITTERCHAT_OTEL_ENDPOINT", "http://localhost:4318")
	t.Setenv("CRITTERCHAT_OTEL_ENABLED", "false")

	shutdown, err := Setup(context.Background(), "chatd")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("noop shutdown: %v", err)
	}
}
