// Package main tails a LyricsFlip indexer websocket feed and logs
// reconciled round views as they converge.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	roundwatchcmd "github.com/lyricsflip/lyricsflip-go/internal/cmd/roundwatch"
	"github.com/lyricsflip/lyricsflip-go/internal/platform/config"
)

func main() {
	cfg, err := roundwatchcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}
	log.SetPrefix("[ROUNDWATCH] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := roundwatchcmd.Run(ctx, cfg, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		config.Exitf("watch failed: %v", err)
	}
}
