package event

import (
	"context"
	"fmt"
	"io"
	"log"
	"testing"
	"time"
)

func makeTestBus() (*Bus, *Queue) {
	q := NewQueue()
	return NewBus(q, log.New(io.Discard, "", 0)), q
}

func TestQueue_OrdersByTimePrioritySeq(t *testing.T) {
	q := NewQueue()
	t0 := time.Date(2024, 6, 14, 9, 30, 0, 0, time.UTC)
	t1 := t0.Add(time.Minute)

	q.Push(Event{Type: TypeBar, Time: t1, Priority: PriorityBar})
	q.Push(Event{Type: TypeTask, Time: t0, Priority: PriorityDefault, Payload: "second"})
	q.Push(Event{Type: TypeAccountSync, Time: t0, Priority: PriorityAccountSync})
	q.Push(Event{Type: TypeTask, Time: t0, Priority: PriorityDefault, Payload: "third"})

	ev, _ := q.Pop()
	if ev.Type != TypeAccountSync {
		t.Fatalf("expected account_sync first, got %s", ev.Type)
	}
	ev, _ = q.Pop()
	if ev.Payload != "second" {
		t.Fatalf("expected FIFO within equal priority, got %v", ev.Payload)
	}
	ev, _ = q.Pop()
	if ev.Payload != "third" {
		t.Fatalf("expected FIFO within equal priority, got %v", ev.Payload)
	}
	ev, _ = q.Pop()
	if !ev.Time.Equal(t1) {
		t.Fatalf("expected later time last, got %v", ev.Time)
	}
	if _, ok := q.Pop(); ok {
		t.Error("expected empty queue")
	}
}

func TestQueue_MonotoneTime(t *testing.T) {
	q := NewQueue()
	base := time.Date(2024, 6, 14, 9, 30, 0, 0, time.UTC)
	for i := 10; i > 0; i-- {
		q.Push(Event{Type: TypeBar, Time: base.Add(time.Duration(i) * time.Minute)})
	}

	var last time.Time
	for {
		ev, ok := q.Pop()
		if !ok {
			break
		}
		if ev.Time.Before(last) {
			t.Fatalf("virtual clock went backwards: %v after %v", ev.Time, last)
		}
		last = ev.Time
	}
}

func TestBus_PriorityThenSubscriptionOrder(t *testing.T) {
	bus, _ := makeTestBus()
	var got []string

	bus.Subscribe(TypeBar, PriorityDefault, func(_ context.Context, _ Event) error {
		got = append(got, "low-1")
		return nil
	})
	bus.Subscribe(TypeBar, PriorityAccountSync, func(_ context.Context, _ Event) error {
		got = append(got, "high")
		return nil
	})
	bus.Subscribe(TypeBar, PriorityDefault, func(_ context.Context, _ Event) error {
		got = append(got, "low-2")
		return nil
	})

	bus.Emit(context.Background(), Event{Type: TypeBar})

	want := []string{"high", "low-1", "low-2"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}
}

func TestBus_HandlerErrorDoesNotStopDispatch(t *testing.T) {
	bus, _ := makeTestBus()
	ran := false

	bus.Subscribe(TypeTask, PriorityDefault, func(_ context.Context, _ Event) error {
		return fmt.Errorf("boom")
	})
	bus.Subscribe(TypeTask, PriorityDefault, func(_ context.Context, _ Event) error {
		ran = true
		return nil
	})

	bus.Emit(context.Background(), Event{Type: TypeTask})
	if !ran {
		t.Error("expected second handler to run after first failed")
	}
}

func TestBus_EmitNowaitQueues(t *testing.T) {
	bus, q := makeTestBus()
	bus.EmitNowait(Event{Type: TypeQuote})

	if q.Len() != 1 {
		t.Fatalf("expected 1 queued event, got %d", q.Len())
	}
}
