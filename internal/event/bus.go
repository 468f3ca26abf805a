// Package event provides the typed event bus and the priority message
// queue that drive the strategy runtime.
//
// Design rules:
//   - Events are a closed set of variants, each with a typed payload.
//   - Subscribers fire in descending priority, then subscription order.
//   - A failing handler is logged; remaining handlers still run.
//   - Delivery is cooperative: handlers run inline on the driver's
//     goroutine, never concurrently with each other.
package event

import (
	"context"
	"log"
	"sort"
	"time"
)

// Type names an event variant.
type Type string

const (
	TypeAccountSync Type = "account_sync"
	TypeOrdersSync  Type = "orders_sync"
	TypeBar         Type = "bar"
	TypeTask        Type = "task"
	TypeQuote       Type = "quote"
)

// Predefined priorities, high to low. Higher fires first at equal time.
const (
	PriorityAccountSync = 40
	PriorityOrdersSync  = 30
	PriorityBar         = 20
	PriorityDefault     = 10
)

// DefaultPriority returns the standard priority for an event type.
func DefaultPriority(t Type) int {
	switch t {
	case TypeAccountSync:
		return PriorityAccountSync
	case TypeOrdersSync:
		return PriorityOrdersSync
	case TypeBar:
		return PriorityBar
	default:
		return PriorityDefault
	}
}

// Event is one dispatchable occurrence on the virtual clock.
type Event struct {
	Type     Type
	Time     time.Time // virtual time of the occurrence
	Priority int       // higher fires first
	seq      uint64    // FIFO tiebreaker, assigned by the queue
	Payload  any
}

// Handler processes one event. Errors are logged by the bus, never
// propagated to other handlers of the same event.
type Handler func(ctx context.Context, ev Event) error

type subscription struct {
	priority int
	order    int
	fn       Handler
}

// Bus dispatches events to priority-ordered subscribers.
type Bus struct {
	subs   map[Type][]subscription
	nextID int
	queue  *Queue
	logger *log.Logger
}

// NewBus creates an event bus backed by the given queue for deferred
// emission. queue may be nil when EmitNowait is not used.
func NewBus(queue *Queue, logger *log.Logger) *Bus {
	return &Bus{
		subs:   make(map[Type][]subscription),
		queue:  queue,
		logger: logger,
	}
}

// Subscribe registers a handler for an event type at the given priority.
// Handlers with equal priority fire in subscription order.
func (b *Bus) Subscribe(t Type, priority int, fn Handler) {
	b.nextID++
	subs := append(b.subs[t], subscription{priority: priority, order: b.nextID, fn: fn})
	sort.SliceStable(subs, func(i, j int) bool {
		if subs[i].priority != subs[j].priority {
			return subs[i].priority > subs[j].priority
		}
		return subs[i].order < subs[j].order
	})
	b.subs[t] = subs
}

// Emit delivers the event to every subscriber before returning.
// A handler error is logged and dispatch continues with the remaining
// handlers of the same event.
func (b *Bus) Emit(ctx context.Context, ev Event) {
	for _, sub := range b.subs[ev.Type] {
		if err := sub.fn(ctx, ev); err != nil {
			b.logger.Printf("[bus] handler failed for %s at %s: %v",
				ev.Type, ev.Time.Format("2006-01-02 15:04:05"), err)
		}
	}
}

// EmitNowait queues the event for the driver's dispatch loop without
// awaiting handler completion.
func (b *Bus) EmitNowait(ev Event) {
	if b.queue == nil {
		b.logger.Printf("[bus] dropped nowait %s event: no queue attached", ev.Type)
		return
	}
	b.queue.Push(ev)
}
