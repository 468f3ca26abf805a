// Package storage - listener.go listens for Postgres NOTIFY events.
//
// Brokerage-side postbacks land in the database (written by the
// operator's ingest job or a trigger on the trades table); LISTEN lets
// the live driver reconcile orders the moment an event arrives instead
// of waiting for the next sync tick.
package storage

import (
	"context"
	"log"
	"time"

	"github.com/lib/pq"
)

// OrderEventsChannel is the NOTIFY channel carrying order updates.
const OrderEventsChannel = "bullet_order_events"

// EventListener relays Postgres notifications to a callback.
type EventListener struct {
	dbURL    string
	onEvent  func(channel, payload string)
	logger   *log.Logger
	shutdown chan struct{}
}

// NewEventListener creates a listener on the order events channel.
func NewEventListener(dbURL string, onEvent func(channel, payload string), logger *log.Logger) *EventListener {
	return &EventListener{
		dbURL:    dbURL,
		onEvent:  onEvent,
		logger:   logger,
		shutdown: make(chan struct{}),
	}
}

// Start begins listening in the background.
func (el *EventListener) Start(ctx context.Context) {
	go el.listenLoop(ctx)
}

// Stop terminates the listen loop.
func (el *EventListener) Stop() {
	close(el.shutdown)
}

// listenLoop maintains the LISTEN connection with bounded reconnect
// backoff.
func (el *EventListener) listenLoop(ctx context.Context) {
	defer el.logger.Println("[listener] shutting down")

	minRetryDelay := 100 * time.Millisecond
	maxRetryDelay := 10 * time.Second

	for {
		select {
		case <-ctx.Done():
			return
		case <-el.shutdown:
			return
		default:
		}

		listener := pq.NewListener(el.dbURL, minRetryDelay, maxRetryDelay, func(_ pq.ListenerEventType, err error) {
			if err != nil {
				el.logger.Printf("[listener] %v", err)
			}
		})

		if err := listener.Listen(OrderEventsChannel); err != nil {
			el.logger.Printf("[listener] LISTEN failed: %v — retrying", err)
			listener.Close()
			select {
			case <-ctx.Done():
				return
			case <-el.shutdown:
				return
			case <-time.After(maxRetryDelay):
			}
			continue
		}

		el.logger.Printf("[listener] listening on %s", OrderEventsChannel)
		el.handleNotifications(ctx, listener)
		listener.Close()
	}
}

func (el *EventListener) handleNotifications(ctx context.Context, listener *pq.Listener) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-el.shutdown:
			return
		case n, ok := <-listener.Notify:
			if !ok {
				return
			}
			if n == nil {
				// Reconnect marker; the connection was re-established.
				continue
			}
			el.onEvent(n.Channel, n.Extra)
		case <-time.After(90 * time.Second):
			// Periodic liveness check on an idle connection.
			if err := listener.Ping(); err != nil {
				el.logger.Printf("[listener] ping failed: %v — reconnecting", err)
				return
			}
		}
	}
}
