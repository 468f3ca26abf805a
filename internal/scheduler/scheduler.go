// Package scheduler manages the runtime's scheduled-task lifecycle.
//
// Design rules:
//   - Tasks are registered against symbolic time expressions and an
//     optional weekday/monthday scope.
//   - The per-day timeline is precomputed once at day start; tasks
//     registered from inside a callback take effect the next trade day.
//   - Tasks sharing a timepoint execute in registration order.
//   - A task's overlap policy decides what happens when a new trigger
//     fires while the previous invocation is still running.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/parachutel/bullet-trade/internal/market"
)

// Overlap is the policy applied when a task's previous invocation has
// not completed by the time a new trigger fires.
type Overlap int

const (
	// OverlapSkip drops the new trigger (default).
	OverlapSkip Overlap = iota
	// OverlapWait serializes: the new trigger runs after the previous
	// invocation completes, in order.
	OverlapWait
	// OverlapConcurrent runs both invocations concurrently.
	OverlapConcurrent
)

func (o Overlap) String() string {
	switch o {
	case OverlapSkip:
		return "SKIP"
	case OverlapWait:
		return "WAIT"
	case OverlapConcurrent:
		return "CONCURRENT"
	}
	return fmt.Sprintf("Overlap(%d)", int(o))
}

// scope restricts which trade days a task fires on.
type scopeKind int

const (
	scopeDaily scopeKind = iota
	scopeWeekly
	scopeMonthly
)

// Callback is a scheduled strategy callback.
type Callback func(ctx context.Context) error

// Task is one registered scheduled task.
type Task struct {
	ID       string
	Name     string
	Callback Callback
	Expr     market.Expression
	Overlap  Overlap
	Enabled  bool

	kind     scopeKind
	weekday  time.Weekday
	monthday int

	// mu serializes invocations for the WAIT policy; running backs the
	// SKIP policy's drop decision.
	mu      sync.Mutex
	running bool
	rmu     sync.Mutex
}

// Scheduler is the registry of scheduled tasks and the per-day timeline
// generator. Registration mutates the registry immediately, but timelines
// are built from a snapshot taken at day start, so mid-day registrations
// only fire from the next trade day.
type Scheduler struct {
	mu      sync.Mutex
	tasks   []*Task // registration order
	byID    map[string]*Task
	periods []market.Period
	freq    market.Frequency

	// monthlyFired records, per (task, year, month), the day the task
	// fired on, keeping Timeline a pure function of its inputs.
	monthlyFired map[string]time.Time

	logger *log.Logger
}

// New creates a scheduler for the given session periods and bar frequency.
func New(periods []market.Period, freq market.Frequency, logger *log.Logger) *Scheduler {
	if len(periods) == 0 {
		periods = market.DefaultPeriods()
	}
	return &Scheduler{
		byID:         make(map[string]*Task),
		periods:      periods,
		freq:         freq,
		monthlyFired: make(map[string]time.Time),
		logger:       logger,
	}
}

// RunDaily registers a task firing on every trade day at the expression's
// timepoints. Returns the task id.
func (s *Scheduler) RunDaily(name string, cb Callback, expr string, overlap Overlap) (string, error) {
	e, err := market.ParseTimeExpression(expr)
	if err != nil {
		return "", err
	}
	return s.register(&Task{
		Name:     name,
		Callback: cb,
		Expr:     e,
		Overlap:  overlap,
		kind:     scopeDaily,
	}), nil
}

// RunWeekly registers a task firing only on trade days whose weekday
// matches.
func (s *Scheduler) RunWeekly(name string, cb Callback, weekday time.Weekday, expr string) (string, error) {
	e, err := market.ParseTimeExpression(expr)
	if err != nil {
		return "", err
	}
	return s.register(&Task{
		Name:     name,
		Callback: cb,
		Expr:     e,
		kind:     scopeWeekly,
		weekday:  weekday,
	}), nil
}

// RunMonthly registers a task firing once per calendar month, on the
// first trade day whose day-of-month is >= monthday (rolling forward
// across weekends and holidays).
func (s *Scheduler) RunMonthly(name string, cb Callback, monthday int, expr string) (string, error) {
	if monthday < 1 || monthday > 31 {
		return "", fmt.Errorf("scheduler: monthday must be in 1..31, got %d", monthday)
	}
	e, err := market.ParseTimeExpression(expr)
	if err != nil {
		return "", err
	}
	return s.register(&Task{
		Name:     name,
		Callback: cb,
		Expr:     e,
		kind:     scopeMonthly,
		monthday: monthday,
	}), nil
}

func (s *Scheduler) register(t *Task) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	t.ID = uuid.NewString()
	t.Enabled = true
	s.tasks = append(s.tasks, t)
	s.byID[t.ID] = t
	s.logger.Printf("[scheduler] registered task %s (%s, overlap=%s)", t.Name, t.Expr, t.Overlap)
	return t.ID
}

// Unschedule removes a task by id.
func (s *Scheduler) Unschedule(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("scheduler: unknown task id %q", id)
	}
	delete(s.byID, id)
	for i, task := range s.tasks {
		if task == t {
			s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
			break
		}
	}
	s.logger.Printf("[scheduler] unscheduled task %s", t.Name)
	return nil
}

// UnscheduleAll removes every task.
func (s *Scheduler) UnscheduleAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = nil
	s.byID = make(map[string]*Task)
	s.logger.Printf("[scheduler] all tasks unscheduled")
}

// Enable re-enables a disabled task.
func (s *Scheduler) Enable(id string) error { return s.setEnabled(id, true) }

// Disable prevents a task from appearing in future timelines without
// removing it.
func (s *Scheduler) Disable(id string) error { return s.setEnabled(id, false) }

func (s *Scheduler) setEnabled(id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("scheduler: unknown task id %q", id)
	}
	t.Enabled = enabled
	return nil
}

// TimeSlot groups the tasks due at one timepoint, in registration order.
type TimeSlot struct {
	At    time.Time
	Tasks []*Task
}

// Timeline assembles the ordered timeline for one trade day. cal is used
// for the monthly rollover rule. Two calls with equal registry state,
// calendar, and day produce equal timelines.
func (s *Scheduler) Timeline(day time.Time, cal *market.Calendar) []TimeSlot {
	s.mu.Lock()
	tasks := make([]*Task, len(s.tasks))
	copy(tasks, s.tasks)
	s.mu.Unlock()

	d := market.Midnight(day)
	buckets := make(map[time.Time][]*Task)
	var order []time.Time

	for _, t := range tasks {
		if !t.Enabled || !s.scopeMatches(t, d, cal) {
			continue
		}
		for _, at := range t.Expr.Resolve(d, s.periods, s.freq) {
			if _, seen := buckets[at]; !seen {
				order = append(order, at)
			}
			buckets[at] = append(buckets[at], t)
		}
	}

	sort.Slice(order, func(i, j int) bool { return order[i].Before(order[j]) })

	slots := make([]TimeSlot, 0, len(order))
	for _, at := range order {
		slots = append(slots, TimeSlot{At: at, Tasks: buckets[at]})
	}
	return slots
}

// scopeMatches applies the daily/weekly/monthly scope for day d.
func (s *Scheduler) scopeMatches(t *Task, d time.Time, cal *market.Calendar) bool {
	switch t.kind {
	case scopeDaily:
		return true
	case scopeWeekly:
		return d.Weekday() == t.weekday
	case scopeMonthly:
		fireDay := cal.MonthFirstFireDay(d, t.monthday)
		if fireDay.IsZero() || !fireDay.Equal(d) {
			return false
		}
		key := fmt.Sprintf("%s|%04d-%02d", t.ID, d.Year(), int(d.Month()))
		s.mu.Lock()
		defer s.mu.Unlock()
		if fired, ok := s.monthlyFired[key]; ok {
			return fired.Equal(d)
		}
		s.monthlyFired[key] = d
		return true
	}
	return false
}

// Execute runs one task invocation under its overlap policy. The caller
// decides whether to run Execute inline (backtest) or on a goroutine
// (live CONCURRENT tasks).
func (s *Scheduler) Execute(ctx context.Context, t *Task) {
	switch t.Overlap {
	case OverlapSkip:
		t.rmu.Lock()
		if t.running {
			t.rmu.Unlock()
			s.logger.Printf("[scheduler] %s still running, trigger skipped", t.Name)
			return
		}
		t.running = true
		t.rmu.Unlock()
		defer func() {
			t.rmu.Lock()
			t.running = false
			t.rmu.Unlock()
		}()
		s.invoke(ctx, t)

	case OverlapWait:
		t.mu.Lock()
		defer t.mu.Unlock()
		s.invoke(ctx, t)

	case OverlapConcurrent:
		s.invoke(ctx, t)
	}
}

// invoke runs the callback, logging failures. Callback errors never stop
// the other tasks of the timepoint.
func (s *Scheduler) invoke(ctx context.Context, t *Task) {
	start := time.Now()
	if err := t.Callback(ctx); err != nil {
		s.logger.Printf("[scheduler] FAILED task %s: %v", t.Name, err)
		return
	}
	s.logger.Printf("[scheduler] completed task %s in %v", t.Name, time.Since(start))
}
