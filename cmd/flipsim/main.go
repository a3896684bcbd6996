// Package main runs a scripted solo LyricsFlip round end-to-end against an
// in-memory contract, printing phase transitions and the final score.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	flipsimcmd "github.com/lyricsflip/lyricsflip-go/internal/cmd/flipsim"
	"github.com/lyricsflip/lyricsflip-go/internal/platform/config"
)

func main() {
	cfg, err := flipsimcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}
	log.SetPrefix("[FLIPSIM] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := flipsimcmd.Run(ctx, cfg, os.Stdout); err != nil {
		config.Exitf("simulation failed: %v", err)
	}
}
