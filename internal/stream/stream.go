// Package stream implements the websocket subscription client that
// feeds live quote pushes into the runtime.
//
// The live driver subscribes symbols through the broker adapter; the
// quote provider pushes tick/minute updates over a websocket, which this
// client decodes and hands to the driver as snapshot updates.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"github.com/parachutel/bullet-trade/internal/data"
	"github.com/parachutel/bullet-trade/internal/market"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// QuoteMessage is the wire form of one pushed quote.
type QuoteMessage struct {
	Security  string  `json:"security"`
	LastPrice float64 `json:"last_price"`
	HighLimit float64 `json:"high_limit"`
	LowLimit  float64 `json:"low_limit"`
	Paused    int     `json:"paused"`
	// Time is the exchange timestamp in seconds since epoch.
	Time int64 `json:"time"`
}

// QuoteHandler receives each decoded quote with the exchange timestamp.
type QuoteHandler func(sec market.Security, snap data.Snapshot, at time.Time)

// Client maintains the websocket connection and the read loop.
type Client struct {
	url     string
	onQuote QuoteHandler
	logger  *log.Logger
}

// NewClient creates a quote stream client for the provider endpoint.
func NewClient(url string, onQuote QuoteHandler, logger *log.Logger) *Client {
	return &Client{url: url, onQuote: onQuote, logger: logger}
}

// Run dials the endpoint and pumps quotes until the context is done.
// Connection failures reconnect with bounded backoff.
func (c *Client) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if err := c.runOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Printf("[stream] connection lost: %v — reconnecting in %v", err, backoff)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

// runOnce handles a single connection lifetime.
func (c *Client) runOnce(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: writeWait}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("stream: dial %s: %w", c.url, err)
	}
	defer conn.Close()
	c.logger.Printf("[stream] connected to %s", c.url)

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// Keepalive pings; the read loop detects the dead peer.
	pingDone := make(chan struct{})
	defer close(pingDone)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-pingDone:
				return
			case <-ctx.Done():
				conn.Close()
				return
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				return fmt.Errorf("stream: read: %w", err)
			}
			return err
		}
		c.dispatch(raw)
	}
}

// dispatch decodes one frame and forwards it. Malformed frames are
// logged and skipped.
func (c *Client) dispatch(raw []byte) {
	var msg QuoteMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.logger.Printf("[stream] malformed frame skipped: %v", err)
		return
	}

	sec, err := market.ParseSecurity(msg.Security)
	if err != nil {
		c.logger.Printf("[stream] frame with bad security skipped: %v", err)
		return
	}

	snap := data.Snapshot{
		LastPrice: msg.LastPrice,
		HighLimit: msg.HighLimit,
		LowLimit:  msg.LowLimit,
		Paused:    msg.Paused == 1,
	}
	c.onQuote(sec, snap, time.Unix(msg.Time, 0).In(market.CST))
}
