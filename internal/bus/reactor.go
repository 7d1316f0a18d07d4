package bus

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/inkblue/inkblue-core/internal/sched"
)

// DefaultPollInterval is the reactor tick period while active.
const DefaultPollInterval = 100 * time.Millisecond

// DefaultPriority is used when a subscriber does not care about ordering.
const DefaultPriority = 100

// Handler receives every dispatched property-change event. Handlers run on
// the scheduler loop and must not block it.
type Handler func(address string, properties map[string]any)

// subscriber pairs a handler with its dispatch priority. seq breaks ties so
// equal priorities dispatch in registration order.
type subscriber struct {
	key      string
	priority int
	seq      uint64
	fn       Handler
}

// Reactor is the non-blocking poll loop over a signal Transport. It owns the
// line-accumulation state machine and fans parsed events out to subscribers
// in ascending priority order.
//
// State machine: Idle → Active → Idle. Start and Stop are idempotent.
type Reactor struct {
	transport Transport
	scheduler sched.Scheduler
	logger    Logger
	interval  time.Duration

	mu      sync.Mutex
	subs    map[string]*subscriber
	ordered []*subscriber // rebuilt copy-on-write, sorted by (priority, seq)
	seq     uint64
	active  bool
	task    *sched.Task
	block   []string
}

// ReactorOption customises a Reactor.
type ReactorOption func(*Reactor)

// WithPollInterval overrides the tick period.
func WithPollInterval(d time.Duration) ReactorOption {
	return func(r *Reactor) { r.interval = d }
}

// WithReactorLogger sets the reactor's logger.
func WithReactorLogger(logger Logger) ReactorOption {
	return func(r *Reactor) { r.logger = logger }
}

// NewReactor creates an idle reactor over the given transport and scheduler.
func NewReactor(transport Transport, scheduler sched.Scheduler, opts ...ReactorOption) *Reactor {
	r := &Reactor{
		transport: transport,
		scheduler: scheduler,
		logger:    noopLogger{},
		interval:  DefaultPollInterval,
		subs:      make(map[string]*subscriber),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start opens the transport and schedules the first poll tick. Returns true
// on success and when already active; false leaves the reactor fully idle.
// The open happens under the state lock so concurrent Start calls can never
// leave a second transport running.
func (r *Reactor) Start(ctx context.Context) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active {
		return true
	}

	if err := r.transport.Open(ctx); err != nil {
		r.logger.Error("signal transport failed to open", "error", err)
		return false
	}

	r.active = true
	r.block = nil
	r.task = r.scheduler.ScheduleAfter(r.interval, r.tick)

	r.logger.Info("signal reactor started", "interval", r.interval)
	return true
}

// Stop unschedules the poll tick, closes the transport, clears accumulation
// state and returns the reactor to Idle. No-op when already idle.
func (r *Reactor) Stop() {
	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return
	}
	r.active = false
	task := r.task
	r.task = nil
	r.block = nil
	r.mu.Unlock()

	r.scheduler.Unschedule(task)
	r.transport.Close()
	r.logger.Info("signal reactor stopped")
}

// Active reports whether the reactor is polling.
func (r *Reactor) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// tick is one poll cycle: zero-timeout readiness check, drain, reschedule.
// Runs on the scheduler loop.
func (r *Reactor) tick() {
	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	switch r.transport.Poll() {
	case ReadinessHangup:
		// Terminal for this session: release everything, do not reschedule.
		r.logger.Warn("signal stream hangup, stopping reactor")
		r.Stop()
		return
	case ReadinessData:
		for {
			line, ok := r.transport.ReadLine()
			if !ok {
				break
			}
			r.feed(line)
		}
	case ReadinessEmpty:
	}

	r.mu.Lock()
	if r.active {
		r.task = r.scheduler.ScheduleAfter(r.interval, r.tick)
	}
	r.mu.Unlock()
}

// feed advances the line-accumulation state machine.
//
// A header line opens a block; a header arriving while a non-trivial block is
// open flushes that block first. A blank line flushes and resets. Other lines
// append to the open block; lines outside any block are discarded.
func (r *Reactor) feed(line string) {
	var flushed []string

	r.mu.Lock()
	switch {
	case isSignalHeader(line):
		if len(r.block) > 1 {
			flushed = r.block
		}
		r.block = []string{line}
	case isBlank(line):
		if len(r.block) > 1 {
			flushed = r.block
		}
		r.block = nil
	default:
		if len(r.block) > 0 {
			r.block = append(r.block, line)
		}
	}
	r.mu.Unlock()

	if flushed != nil {
		r.flush(flushed)
	}
}

// flush parses an accumulated block and dispatches the event, if any.
func (r *Reactor) flush(block []string) {
	event, ok := parseBlock(block)
	if !ok {
		return
	}
	r.dispatch(event)
}

// dispatch invokes subscribers in ascending priority order. A panic in one
// subscriber is logged and does not stop the remaining subscribers.
func (r *Reactor) dispatch(event Event) {
	r.mu.Lock()
	subs := r.ordered
	r.mu.Unlock()

	for _, sub := range subs {
		r.invoke(sub, event)
	}
}

func (r *Reactor) invoke(sub *subscriber, event Event) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("subscriber panicked",
				"key", sub.key,
				"address", event.Address,
				"panic", rec,
			)
		}
	}()
	sub.fn(event.Address, event.Properties)
}

// RegisterCallback registers or replaces the subscriber under key. Lower
// priority numbers dispatch earlier; equal priorities dispatch in
// registration order.
func (r *Reactor) RegisterCallback(key string, fn Handler, priority int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	r.subs[key] = &subscriber{key: key, priority: priority, seq: r.seq, fn: fn}
	r.rebuildLocked()
}

// UnregisterCallback removes the subscriber under key. Unknown keys are a
// no-op.
func (r *Reactor) UnregisterCallback(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.subs[key]; !ok {
		return
	}
	delete(r.subs, key)
	r.rebuildLocked()
}

// SubscriberCount returns the number of registered subscribers.
func (r *Reactor) SubscriberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// rebuildLocked replaces the ordered list with a freshly sorted copy so an
// in-flight dispatch iterating the previous slice is unaffected.
func (r *Reactor) rebuildLocked() {
	ordered := make([]*subscriber, 0, len(r.subs))
	for _, sub := range r.subs {
		ordered = append(ordered, sub)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].priority == ordered[j].priority {
			return ordered[i].seq < ordered[j].seq
		}
		return ordered[i].priority < ordered[j].priority
	})
	r.ordered = ordered
}

// isBlank reports whether a line contains only whitespace.
func isBlank(line string) bool {
	for i := 0; i < len(line); i++ {
		if line[i] != ' ' && line[i] != '\t' && line[i] != '\r' {
			return false
		}
	}
	return true
}
