// Package indexer subscribes to the indexer's websocket feed and forwards
// entity diffs and typed events to the reconciliation layer. The feed is the
// authoritative source of round state; the client's only job is transport,
// decoding, and staying connected.
package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"

	"github.com/lyricsflip/lyricsflip-go/internal/entity"
	"github.com/lyricsflip/lyricsflip-go/internal/reconcile"
)

// Sink consumes decoded indexer updates. *reconcile.Reconciler satisfies it.
type Sink interface {
	ApplyEntity(ctx context.Context, ent *entity.Entity) error
	ApplyEvent(ctx context.Context, ev reconcile.IndexedEvent) error
}

// DefaultMaxReconnectWait caps the reconnect backoff.
const DefaultMaxReconnectWait = 30 * time.Second

// Config wires a Client.
type Config struct {
	// URL is the websocket endpoint, ws:// or wss://.
	URL  string
	Sink Sink

	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer
	// MaxReconnectWait caps the exponential reconnect backoff.
	MaxReconnectWait time.Duration
	Logf             func(format string, args ...any)
}

// Client maintains the subscription across disconnects.
type Client struct {
	url    string
	sink   Sink
	dialer *websocket.Dialer
	maxRW  time.Duration
	logf   func(format string, args ...any)
}

// New builds a Client.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("indexer url is required")
	}
	if cfg.Sink == nil {
		return nil, fmt.Errorf("indexer sink is required")
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.MaxReconnectWait <= 0 {
		cfg.MaxReconnectWait = DefaultMaxReconnectWait
	}
	if cfg.Logf == nil {
		cfg.Logf = log.Printf
	}
	return &Client{
		url:    cfg.URL,
		sink:   cfg.Sink,
		dialer: cfg.Dialer,
		maxRW:  cfg.MaxReconnectWait,
		logf:   cfg.Logf,
	}, nil
}

// frame is one websocket message from the indexer. A message batches any
// number of entity diffs and typed events; batches may redeliver records the
// client has already seen.
type frame struct {
	Entities []entityFrame `json:"entities,omitempty"`
	Events   []eventFrame  `json:"events,omitempty"`
}

type entityFrame struct {
	ID   string         `json:"id"`
	Data map[string]any `json:"data"`
}

type eventFrame struct {
	Key       string `json:"key"`
	ID        string `json:"id"`
	RoundID   string `json:"round_id"`
	Player    string `json:"player"`
	CardIndex uint64 `json:"card_index"`
	IsCorrect bool   `json:"is_correct"`
	TimeTaken uint64 `json:"time_taken"`
	Timestamp int64  `json:"timestamp"`
}

// Run connects and forwards updates until ctx is cancelled. Connection
// drops are retried with exponential backoff; the backoff resets after
// every successful connect.
func (c *Client) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = c.maxRW

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
		if err != nil {
			c.logf("indexer: dial %s: %v", c.url, err)
			if err := sleepCtx(ctx, bo.NextBackOff()); err != nil {
				return err
			}
			continue
		}
		bo.Reset()
		c.logf("indexer: connected to %s", c.url)

		err = c.readLoop(ctx, conn)
		conn.Close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		c.logf("indexer: connection lost: %v", err)
		if err := sleepCtx(ctx, bo.NextBackOff()); err != nil {
			return err
		}
	}
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	// Unblock ReadMessage when ctx is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var f frame
		if err := json.Unmarshal(msg, &f); err != nil {
			c.logf("indexer: skip malformed frame: %v", err)
			continue
		}
		c.forward(ctx, f)
	}
}

func (c *Client) forward(ctx context.Context, f frame) {
	for _, ef := range f.Entities {
		ent := &entity.Entity{ID: ef.ID, Data: ef.Data}
		if err := c.sink.ApplyEntity(ctx, ent); err != nil {
			c.logf("indexer: apply entity %s: %v", ef.ID, err)
		}
	}
	for _, ev := range f.Events {
		indexed := reconcile.IndexedEvent{
			Key:       ev.Key,
			ID:        ev.ID,
			RoundID:   ev.RoundID,
			Player:    ev.Player,
			CardIndex: ev.CardIndex,
			IsCorrect: ev.IsCorrect,
			TimeTaken: ev.TimeTaken,
			Timestamp: time.Unix(ev.Timestamp, 0).UTC(),
		}
		if err := c.sink.ApplyEvent(ctx, indexed); err != nil {
			c.logf("indexer: apply event %s: %v", ev.ID, err)
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
