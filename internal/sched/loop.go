package sched

import (
	"container/heap"
	"sync"
	"sync/atomic"
	"time"
)

// wakeBuffer is the buffer size for the loop's wake channel. A single slot is
// enough: the loop re-examines the timer heap on every wake.
const wakeBuffer = 1

// Task is a handle for a scheduled callback. It can be passed to Unschedule
// to cancel the callback before it runs.
type Task struct {
	fn       func()
	deadline time.Time
	seq      uint64
	index    int // heap index, -1 once removed

	cancelled atomic.Bool
}

// Scheduler is the subset of Loop that components schedule work against.
// It exists so tests can substitute a manually stepped implementation.
type Scheduler interface {
	// ScheduleAfter runs fn on the loop goroutine after the given delay.
	ScheduleAfter(delay time.Duration, fn func()) *Task

	// Unschedule cancels a previously scheduled task. Cancelling a task that
	// already ran, or a nil task, is a no-op.
	Unschedule(task *Task)

	// Post runs fn on the loop goroutine as soon as possible.
	Post(fn func())
}

// Loop is a single-goroutine cooperative scheduler. Callbacks execute one at
// a time, in deadline order, on the loop's own goroutine.
type Loop struct {
	mu      sync.Mutex
	timers  timerHeap
	posted  []func()
	seq     uint64
	stopped bool

	wake chan struct{}
	done chan struct{}
}

// NewLoop creates a Loop and starts its goroutine.
func NewLoop() *Loop {
	l := &Loop{
		wake: make(chan struct{}, wakeBuffer),
		done: make(chan struct{}),
	}
	go l.run()
	return l
}

// ScheduleAfter implements Scheduler.
func (l *Loop) ScheduleAfter(delay time.Duration, fn func()) *Task {
	t := &Task{
		fn:       fn,
		deadline: time.Now().Add(delay),
	}

	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		t.cancelled.Store(true)
		return t
	}
	l.seq++
	t.seq = l.seq
	heap.Push(&l.timers, t)
	l.mu.Unlock()

	l.notify()
	return t
}

// Unschedule implements Scheduler.
func (l *Loop) Unschedule(task *Task) {
	if task == nil {
		return
	}
	task.cancelled.Store(true)

	l.mu.Lock()
	if task.index >= 0 && task.index < len(l.timers) && l.timers[task.index] == task {
		heap.Remove(&l.timers, task.index)
	}
	l.mu.Unlock()
}

// Post implements Scheduler.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.posted = append(l.posted, fn)
	l.mu.Unlock()

	l.notify()
}

// Stop shuts the loop down. Pending tasks are discarded. Stop does not wait
// for a callback that is currently executing; it is safe to call more than
// once.
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	l.timers = nil
	l.posted = nil
	l.mu.Unlock()

	l.notify()
	<-l.done
}

// notify wakes the run goroutine. Non-blocking; a single pending wake is
// sufficient because run re-reads all state.
func (l *Loop) notify() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) run() {
	defer close(l.done)

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		fn, wait, ok := l.next()
		if !ok {
			return
		}

		if fn != nil {
			fn()
			continue
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-l.wake:
		case <-timer.C:
		}
	}
}

// next returns the callback to run now, or the wait until the earliest
// deadline. ok is false once the loop is stopped.
func (l *Loop) next() (fn func(), wait time.Duration, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stopped {
		return nil, 0, false
	}

	if len(l.posted) > 0 {
		fn = l.posted[0]
		l.posted = l.posted[1:]
		return fn, 0, true
	}

	for len(l.timers) > 0 {
		t := l.timers[0]
		if t.cancelled.Load() {
			heap.Pop(&l.timers)
			continue
		}
		now := time.Now()
		if !t.deadline.After(now) {
			heap.Pop(&l.timers)
			return t.fn, 0, true
		}
		return nil, t.deadline.Sub(now), true
	}

	return nil, time.Hour, true
}

// timerHeap orders tasks by deadline, then scheduling order.
type timerHeap []*Task

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].seq < h[j].seq
	}
	return h[i].deadline.Before(h[j].deadline)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*Task)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}
