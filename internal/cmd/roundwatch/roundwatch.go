// Package roundwatch parses roundwatch flags and tails an indexer websocket
// feed, logging reconciled round views as they converge.
package roundwatch

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/lyricsflip/lyricsflip-go/internal/chain"
	"github.com/lyricsflip/lyricsflip-go/internal/entity"
	"github.com/lyricsflip/lyricsflip-go/internal/indexer"
	entrypoint "github.com/lyricsflip/lyricsflip-go/internal/platform/cmd"
	"github.com/lyricsflip/lyricsflip-go/internal/reconcile"
	"github.com/lyricsflip/lyricsflip-go/internal/round"
)

// Config holds roundwatch command configuration.
type Config struct {
	IndexerURL string `env:"LYRICSFLIP_INDEXER_URL" envDefault:"ws://127.0.0.1:8080/ws"`
	Account    string `env:"LYRICSFLIP_ACCOUNT"`
	RoundID    string `env:"LYRICSFLIP_ROUND_ID"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.IndexerURL, "indexer-url", cfg.IndexerURL, "indexer websocket endpoint")
	fs.StringVar(&cfg.Account, "account", cfg.Account, "account to attribute answers to")
	fs.StringVar(&cfg.RoundID, "round", cfg.RoundID, "round id to follow (empty follows the newest)")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run tails the feed until ctx is cancelled.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	if out == nil {
		out = io.Discard
	}

	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceRoundWatch, func(ctx context.Context) error {
		store := entity.NewStore()
		bus := reconcile.NewBus(nil)
		rec, err := reconcile.New(reconcile.Config{
			Store:   store,
			Bus:     bus,
			Account: chain.Address(cfg.Account),
		})
		if err != nil {
			return err
		}

		if cfg.RoundID != "" {
			id, err := round.ParseID(cfg.RoundID)
			if err != nil {
				return err
			}
			rec.Bind(id)
		}

		// Follow the newest round automatically when none was pinned.
		if cfg.RoundID == "" {
			unsub := bus.Subscribe(reconcile.EventRoundCreated, func(ev reconcile.Event) error {
				if rec.Bound().IsZero() {
					rec.Bind(ev.RoundID)
				}
				return nil
			})
			defer unsub()
		}

		for _, t := range []reconcile.EventType{
			reconcile.EventRoundCreated,
			reconcile.EventRoundUpdated,
			reconcile.EventPlayerJoined,
			reconcile.EventPlayerReady,
			reconcile.EventPlayerAnswered,
			reconcile.EventRoundCompleted,
		} {
			t := t
			unsub := bus.Subscribe(t, func(ev reconcile.Event) error {
				view := rec.View()
				fmt.Fprintf(out, "%s round=%s state=%s players=%d score(me)=%d\n",
					t, ev.RoundID, view.Round.State, len(view.Players), view.Me.TotalScore)
				return nil
			})
			defer unsub()
		}

		client, err := indexer.New(indexer.Config{URL: cfg.IndexerURL, Sink: rec})
		if err != nil {
			return err
		}
		return client.Run(ctx)
	})
}
