package config

import (
	"strings"
	"testing"
)

type envTestConfig struct {
	Interval int `env:"LYRICSFLIP_TEST_INTERVAL" envDefault:"500"`
}

func TestParseEnvDefaults(t *testing.T) {
	var cfg envTestConfig

	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Interval != 500 {
		t.Fatalf("expected default interval 500, got %d", cfg.Interval)
	}
}

func TestParseEnvError(t *testing.T) {
	var cfg envTestConfig
	t.Setenv("LYRICSFLIP_TEST_INTERVAL", "not-an-int")

	err := ParseEnv(&cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}
