package otel_test

import (
	"context"
	"testing"

	"github.com/lyricsflip/lyricsflip-go/internal/platform/otel"
)

func TestSetupNoopWhenEndpointEmpty(t *testing.T) {
	t.Setenv("LYRICSFLIP_OTEL_ENDPOINT", "")
	t.Setenv("LYRICSFLIP_OTEL_ENABLED", "")

	shutdown, err := otel.Setup(context.Background(), "flipsim")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestSetupNoopWhenExplicitlyDisabled(t *testing.T) {
	t.Setenv("LYRICSFLIP_OTEL_ENDPOINT", "http://localhost:4318")
	t.Setenv("LYRICSFLIP_OTEL_ENABLED", "false")

	shutdown, err := otel.Setup(context.Background(), "flipsim")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestSetupCreatesProviderWhenEndpointSet(t *testing.T) {
	// Non-routable address so no actual export happens.
	t.Setenv("LYRICSFLIP_OTEL_ENDPOINT", "http://192.0.2.1:4318")
	t.Setenv("LYRICSFLIP_OTEL_ENABLED", "")

	shutdown, err := otel.Setup(context.Background(), "roundwatch")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestSetupNoopShutdownIgnoresCancelledContext(t *testing.T) {
	t.Setenv("LYRICSFLIP_OTEL_ENDPOINT", "")
	t.Setenv("LYRICSFLIP_OTEL_ENABLED", "")

	shutdown, err := otel.Setup(context.Background(), "noop-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := shutdown(ctx); err != nil {
		t.Fatalf("noop shutdown should not error: %v", err)
	}
}
