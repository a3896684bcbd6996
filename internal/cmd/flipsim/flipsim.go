// Package flipsim parses flipsim flags and runs a scripted solo round
// end-to-end against an in-memory contract, printing phase transitions and
// the final score. It exists to exercise the full gameplay stack without a
// deployment.
package flipsim

import (
	"context"
	"flag"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/lyricsflip/lyricsflip-go/internal/chain"
	"github.com/lyricsflip/lyricsflip-go/internal/entity"
	"github.com/lyricsflip/lyricsflip-go/internal/game"
	"github.com/lyricsflip/lyricsflip-go/internal/journal"
	journalsqlite "github.com/lyricsflip/lyricsflip-go/internal/journal/sqlite"
	"github.com/lyricsflip/lyricsflip-go/internal/phase"
	entrypoint "github.com/lyricsflip/lyricsflip-go/internal/platform/cmd"
	"github.com/lyricsflip/lyricsflip-go/internal/reconcile"
	"github.com/lyricsflip/lyricsflip-go/internal/testkit"
	"github.com/lyricsflip/lyricsflip-go/internal/txqueue"
)

// Config holds flipsim command configuration.
type Config struct {
	Account     string        `env:"LYRICSFLIP_ACCOUNT" envDefault:"0xf11b"`
	Odds        uint64        `env:"LYRICSFLIP_ODDS" envDefault:"3"`
	MaxRounds   uint64        `env:"LYRICSFLIP_MAX_ROUNDS" envDefault:"5"`
	Countdown   time.Duration `env:"LYRICSFLIP_CARD_COUNTDOWN" envDefault:"30s"`
	JournalPath string        `env:"LYRICSFLIP_JOURNAL_PATH"`
	// Answers scripts the play: one option digit (0-3) per card. Cards
	// beyond the script reuse its last digit.
	Answers string `env:"LYRICSFLIP_ANSWERS" envDefault:"1111111"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.Account, "account", cfg.Account, "player account address")
	fs.Uint64Var(&cfg.Odds, "odds", cfg.Odds, "wrong-answer budget")
	fs.Uint64Var(&cfg.MaxRounds, "max-rounds", cfg.MaxRounds, "target score")
	fs.DurationVar(&cfg.Countdown, "countdown", cfg.Countdown, "per-card countdown")
	fs.StringVar(&cfg.JournalPath, "journal", cfg.JournalPath, "sqlite journal path (empty disables)")
	fs.StringVar(&cfg.Answers, "answers", cfg.Answers, "scripted answer options, one digit per card")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// songBank is the built-in card script.
var songBank = []struct {
	lyric  string
	artist [4]string
	title  [4]string
}{
	{"Is this the real life, is this just fantasy", [4]string{"ABBA", "Queen", "The Who", "Kiss"}, [4]string{"SOS", "Bohemian Rhapsody", "Baba O'Riley", "Beth"}},
	{"Hello darkness my old friend", [4]string{"The Doors", "Simon & Garfunkel", "Bob Dylan", "The Byrds"}, [4]string{"The End", "The Sound of Silence", "Hurricane", "Turn Turn Turn"}},
	{"I see a red door and I want it painted black", [4]string{"The Kinks", "The Rolling Stones", "Cream", "The Animals"}, [4]string{"Lola", "Paint It Black", "White Room", "House of the Rising Sun"}},
	{"We don't need no education", [4]string{"The Clash", "Pink Floyd", "Rush", "Yes"}, [4]string{"London Calling", "Another Brick in the Wall", "Tom Sawyer", "Roundabout"}},
	{"Load up on guns, bring your friends", [4]string{"Pearl Jam", "Nirvana", "Soundgarden", "Alice in Chains"}, [4]string{"Alive", "Smells Like Teen Spirit", "Black Hole Sun", "Rooster"}},
	{"Just a small town girl, living in a lonely world", [4]string{"Foreigner", "Journey", "Boston", "Toto"}, [4]string{"Cold as Ice", "Don't Stop Believin'", "More Than a Feeling", "Africa"}},
	{"Buddy you're a boy make a big noise", [4]string{"AC/DC", "Queen", "Slade", "Sweet"}, [4]string{"TNT", "We Will Rock You", "Cum On Feel the Noize", "Ballroom Blitz"}},
	{"Yesterday, all my troubles seemed so far away", [4]string{"The Hollies", "The Beatles", "The Zombies", "Badfinger"}, [4]string{"Bus Stop", "Yesterday", "Time of the Season", "Day After Day"}},
}

// scriptedCards felt-encodes the song bank the way the contract delivers
// card options. The correct option is always index 1.
func scriptedCards() ([]chain.RawCard, []uint8) {
	cards := make([]chain.RawCard, len(songBank))
	correct := make([]uint8, len(songBank))
	for i, song := range songBank {
		card := chain.RawCard{Lyric: song.lyric}
		for j := 0; j < 4; j++ {
			artist, err := chain.EncodeShortString(chain.TruncateShortString(song.artist[j]))
			if err != nil {
				artist = "0x0"
			}
			title, err := chain.EncodeShortString(chain.TruncateShortString(song.title[j]))
			if err != nil {
				title = "0x0"
			}
			card.Options[j] = chain.RawOption{Artist: artist, Title: title}
		}
		cards[i] = card
		correct[i] = 1
	}
	return cards, correct
}

// Run plays one scripted solo round and reports the outcome.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	if cfg.Answers == "" {
		cfg.Answers = "1"
	}

	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceFlipSim, func(ctx context.Context) error {
		fake := testkit.NewFakeChain()
		fake.Cards, fake.Correct = scriptedCards()
		fake.AutoFlush = 20 * time.Millisecond

		account := chain.Address(cfg.Account)
		store := entity.NewStore()
		bus := reconcile.NewBus(nil)

		var recorder *journal.Recorder
		if cfg.JournalPath != "" {
			js, err := journalsqlite.Open(cfg.JournalPath)
			if err != nil {
				return fmt.Errorf("open journal: %w", err)
			}
			defer js.Close()
			recorder = journal.NewRecorder(js)
		}

		rec, err := reconcile.New(reconcile.Config{
			Store:   store,
			Bus:     bus,
			Journal: recorder,
			Account: account,
		})
		if err != nil {
			return err
		}
		fake.AddSink(rec.ApplyEntity, rec.ApplyEvent)

		sess, err := game.NewSolo(game.SoloConfig{
			Config: game.Config{
				Chain:         fake.Client(account),
				Store:         store,
				Queue:         txqueue.New(txqueue.DefaultDelay),
				Bus:           bus,
				Reconciler:    rec,
				Account:       account,
				Countdown:     cfg.Countdown,
				InferInterval: 20 * time.Millisecond,
				InferTries:    100,
			},
			Odds:      cfg.Odds,
			MaxRounds: cfg.MaxRounds,
		})
		if err != nil {
			return err
		}
		defer sess.Close()

		var printMu sync.Mutex
		last := phase.Waiting
		unsub := sess.Subscribe(func(snap game.Snapshot) {
			printMu.Lock()
			defer printMu.Unlock()
			if snap.GamePhase != last {
				last = snap.GamePhase
				fmt.Fprintf(out, "phase: %s (score %d, %d/%d correct)\n",
					snap.GamePhase, snap.MyScore, snap.CorrectAnswers, snap.TotalAnswers)
			}
		})
		defer unsub()

		if err := sess.Start(ctx); err != nil {
			return err
		}

		for i := 0; ; i++ {
			snap, err := waitSettled(ctx, sess)
			if err != nil {
				return err
			}
			if snap.GamePhase == phase.Completed {
				break
			}
			option := scriptedOption(cfg.Answers, i)
			fmt.Fprintf(out, "card %d: %q -> option %d\n", snap.CardIndex, snap.CurrentCard.Lyric, option)
			if err := sess.SubmitAnswer(ctx, option); err != nil {
				return err
			}
		}

		final := sess.Snapshot()
		fmt.Fprintf(out, "finished: won=%v score=%d correct=%d/%d\n",
			sess.Won(), final.MyScore, final.CorrectAnswers, final.TotalAnswers)
		return nil
	})
}

// waitSettled blocks until the session is either showing a card or done.
func waitSettled(ctx context.Context, sess *game.SoloSession) (game.Snapshot, error) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		snap := sess.Snapshot()
		if snap.GamePhase == phase.Completed || (snap.GamePhase == phase.CardActive && snap.CurrentCard != nil) {
			return snap, nil
		}
		if snap.Err != nil {
			return snap, snap.Err
		}
		select {
		case <-ctx.Done():
			return snap, ctx.Err()
		case <-ticker.C:
		}
	}
}

func scriptedOption(answers string, i int) uint8 {
	if i >= len(answers) {
		i = len(answers) - 1
	}
	c := answers[i]
	if c < '0' || c > '3' {
		return game.DefaultAnswerOption
	}
	return c - '0'
}
