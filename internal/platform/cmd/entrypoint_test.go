package cmd

import (
	"context"
	"flag"
	"testing"
)

type testConfig struct {
	IndexerURL string `env:"CMD_TEST_INDEXER_URL" envDefault:"ws://127.0.0.1:8080/ws"`
	Account    string `env:"CMD_TEST_ACCOUNT" envDefault:"0x0"`
}

func TestParseConfigReadsEnvAndFlags(t *testing.T) {
	t.Setenv("CMD_TEST_INDEXER_URL", "ws://env:9000/ws")
	t.Setenv("CMD_TEST_ACCOUNT", "0xenv")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg := testConfig{}
	if err := ParseConfig(&cfg); err != nil {
		t.Fatalf("load config defaults: %v", err)
	}
	fs.StringVar(&cfg.IndexerURL, "indexer-url", cfg.IndexerURL, "indexer url")
	fs.StringVar(&cfg.Account, "account", cfg.Account, "account")

	if err := ParseArgs(fs, []string{"-indexer-url", "ws://flag:9001/ws"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	if cfg.IndexerURL != "ws://flag:9001/ws" {
		t.Fatalf("expected flag value for indexer url, got %q", cfg.IndexerURL)
	}
	if cfg.Account != "0xenv" {
		t.Fatalf("expected env default account, got %q", cfg.Account)
	}
}

func TestParseConfigFromArgsReadsEnvAndFlags(t *testing.T) {
	t.Setenv("CMD_TEST_INDEXER_URL", "ws://configarg:9000/ws")
	t.Setenv("CMD_TEST_ACCOUNT", "0xconfigarg")

	cfg := testConfig{}
	fs := flag.NewFlagSet("configargs", flag.ContinueOnError)
	fs.StringVar(&cfg.IndexerURL, "indexer-url", "", "indexer url")
	fs.StringVar(&cfg.Account, "account", "", "account")
	if err := ParseConfigFromArgs(&cfg, fs, []string{"-indexer-url", "ws://flag:9002/ws"}); err != nil {
		t.Fatalf("parse config and args: %v", err)
	}
	if cfg.IndexerURL != "ws://flag:9002/ws" {
		t.Fatalf("expected parsed flag indexer url, got %q", cfg.IndexerURL)
	}
	if cfg.Account != "0xconfigarg" {
		t.Fatalf("expected env default account, got %q", cfg.Account)
	}
}

func TestParseArgsRejectsNilParser(t *testing.T) {
	if err := ParseArgs(nil, []string{}); err == nil {
		t.Fatal("expected parse args to reject nil parser")
	}
}

func TestRunWithTelemetryRejectsMissingInputs(t *testing.T) {
	if err := RunWithTelemetry(context.Background(), "", func(context.Context) error { return nil }); err == nil {
		t.Fatal("expected missing service error")
	}
	if err := RunWithTelemetry(context.Background(), ServiceFlipSim, nil); err == nil {
		t.Fatal("expected missing run function error")
	}
}
