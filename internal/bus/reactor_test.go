package bus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/inkblue/inkblue-core/internal/sched"
)

// manualScheduler queues callbacks and runs them only when the test says so,
// standing in for the cooperative loop.
type manualScheduler struct {
	pending     []func()
	scheduled   int
	unscheduled int
	posted      int
}

func (s *manualScheduler) ScheduleAfter(_ time.Duration, fn func()) *sched.Task {
	s.scheduled++
	s.pending = append(s.pending, fn)
	return &sched.Task{}
}

func (s *manualScheduler) Unschedule(*sched.Task) { s.unscheduled++ }

func (s *manualScheduler) Post(fn func()) {
	s.posted++
	s.pending = append(s.pending, fn)
}

// runNext executes the oldest queued callback.
func (s *manualScheduler) runNext(t *testing.T) {
	t.Helper()
	if len(s.pending) == 0 {
		t.Fatal("no scheduled callback to run")
	}
	fn := s.pending[0]
	s.pending = s.pending[1:]
	fn()
}

// fakeTransport scripts readiness and serves lines from a queue.
type fakeTransport struct {
	openErr   error
	openDelay time.Duration
	opens     int
	closes    int
	lines     []string
	hangup    bool
}

func (f *fakeTransport) Open(context.Context) error {
	if f.openDelay > 0 {
		time.Sleep(f.openDelay)
	}
	if f.openErr != nil {
		return f.openErr
	}
	f.opens++
	return nil
}

func (f *fakeTransport) Poll() Readiness {
	if len(f.lines) > 0 {
		return ReadinessData
	}
	if f.hangup {
		return ReadinessHangup
	}
	return ReadinessEmpty
}

func (f *fakeTransport) ReadLine() (string, bool) {
	if len(f.lines) == 0 {
		return "", false
	}
	line := f.lines[0]
	f.lines = f.lines[1:]
	return line, true
}

func (f *fakeTransport) Close() { f.closes++ }

func signalBlockLines(addr, property, variantValue string) []string {
	return []string{
		"signal time=1.0 sender=:1.3 -> destination=(null) serial=1 path=/org/bluez/hci0/dev_" + addr + "; interface=org.freedesktop.DBus.Properties; member=PropertiesChanged",
		`   string "org.bluez.Device1"`,
		`   array [`,
		`      string "` + property + `"`,
		`      variant             ` + variantValue,
		`   ]`,
		"",
	}
}

func TestStartIsIdempotentAndOpensOneTransport(t *testing.T) {
	transport := &fakeTransport{}
	scheduler := &manualScheduler{}
	r := NewReactor(transport, scheduler)

	if !r.Start(context.Background()) || !r.Start(context.Background()) {
		t.Fatal("Start should return true both times")
	}
	if transport.opens != 1 {
		t.Errorf("transport opens = %d, want 1", transport.opens)
	}
	if scheduler.scheduled != 1 {
		t.Errorf("scheduled ticks = %d, want 1", scheduler.scheduled)
	}
	if !r.Active() {
		t.Error("reactor not active after Start")
	}
}

func TestConcurrentStartOpensOneTransport(t *testing.T) {
	transport := &fakeTransport{openDelay: 5 * time.Millisecond}
	scheduler := &manualScheduler{}
	r := NewReactor(transport, scheduler)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !r.Start(context.Background()) {
				t.Error("Start returned false")
			}
		}()
	}
	wg.Wait()

	if transport.opens != 1 {
		t.Errorf("transport opens = %d, want 1", transport.opens)
	}
	if scheduler.scheduled != 1 {
		t.Errorf("scheduled ticks = %d, want 1", scheduler.scheduled)
	}
}

func TestStartFailsClosedOnTransportError(t *testing.T) {
	transport := &fakeTransport{openErr: errors.New("no monitor binary")}
	scheduler := &manualScheduler{}
	r := NewReactor(transport, scheduler)

	if r.Start(context.Background()) {
		t.Fatal("Start returned true with a broken transport")
	}
	if r.Active() {
		t.Error("reactor active after failed Start")
	}
	if scheduler.scheduled != 0 {
		t.Error("tick scheduled despite failed Start")
	}
}

func TestStopWhileIdleIsNoOp(t *testing.T) {
	transport := &fakeTransport{}
	scheduler := &manualScheduler{}
	r := NewReactor(transport, scheduler)

	r.Stop()
	if transport.closes != 0 || scheduler.unscheduled != 0 {
		t.Error("idle Stop touched transport or scheduler")
	}
}

func TestStopTearsDownOnce(t *testing.T) {
	transport := &fakeTransport{}
	scheduler := &manualScheduler{}
	r := NewReactor(transport, scheduler)
	r.Start(context.Background())

	r.Stop()
	r.Stop()

	if transport.closes != 1 {
		t.Errorf("transport closes = %d, want 1", transport.closes)
	}
	if scheduler.unscheduled != 1 {
		t.Errorf("unscheduled = %d, want 1", scheduler.unscheduled)
	}
	if r.Active() {
		t.Error("reactor still active after Stop")
	}
}

func TestTickDispatchesInPriorityOrder(t *testing.T) {
	transport := &fakeTransport{lines: signalBlockLines("E4_17_D8_EC_04_1E", "Connected", "boolean true")}
	scheduler := &manualScheduler{}
	r := NewReactor(transport, scheduler)

	var order []string
	r.RegisterCallback("policy", func(addr string, props map[string]any) {
		order = append(order, "policy")
	}, 50)
	r.RegisterCallback("cache", func(addr string, props map[string]any) {
		order = append(order, "cache")
		if addr != "E4:17:D8:EC:04:1E" {
			t.Errorf("address = %q", addr)
		}
		if v, ok := props["Connected"].(bool); !ok || !v {
			t.Errorf("Connected = %v", props["Connected"])
		}
	}, 10)

	r.Start(context.Background())
	scheduler.runNext(t) // one tick drains the whole block

	if len(order) != 2 || order[0] != "cache" || order[1] != "policy" {
		t.Fatalf("dispatch order = %v, want [cache policy]", order)
	}
	// Still active: the tick rescheduled itself.
	if scheduler.scheduled != 2 {
		t.Errorf("scheduled = %d, want 2", scheduler.scheduled)
	}
}

func TestNewHeaderFlushesOpenBlock(t *testing.T) {
	first := signalBlockLines("E4_17_D8_EC_04_1E", "Connected", "boolean true")
	second := signalBlockLines("AA_BB_CC_DD_EE_FF", "RSSI", "int16 -61")
	// Drop the blank line that would normally flush the first block: the
	// second header must flush it instead.
	lines := append(first[:len(first)-1], second...)

	transport := &fakeTransport{lines: lines}
	scheduler := &manualScheduler{}
	r := NewReactor(transport, scheduler)

	var addrs []string
	r.RegisterCallback("record", func(addr string, _ map[string]any) {
		addrs = append(addrs, addr)
	}, DefaultPriority)

	r.Start(context.Background())
	scheduler.runNext(t)

	if len(addrs) != 2 || addrs[0] != "E4:17:D8:EC:04:1E" || addrs[1] != "AA:BB:CC:DD:EE:FF" {
		t.Fatalf("dispatched addresses = %v", addrs)
	}
}

func TestHangupStopsReactor(t *testing.T) {
	transport := &fakeTransport{hangup: true}
	scheduler := &manualScheduler{}
	r := NewReactor(transport, scheduler)
	r.Start(context.Background())

	scheduler.runNext(t)

	if r.Active() {
		t.Error("reactor still active after hangup")
	}
	if transport.closes != 1 {
		t.Errorf("transport closes = %d, want 1", transport.closes)
	}
	if len(scheduler.pending) != 0 {
		t.Error("tick rescheduled after hangup")
	}
}

func TestRegisterReplacesExistingKey(t *testing.T) {
	r := NewReactor(&fakeTransport{}, &manualScheduler{})

	r.RegisterCallback("policy", func(string, map[string]any) {}, 50)
	r.RegisterCallback("policy", func(string, map[string]any) {}, 20)

	if got := r.SubscriberCount(); got != 1 {
		t.Fatalf("SubscriberCount = %d, want 1 after replace", got)
	}
}

func TestUnregisterPreservesOrderOfRest(t *testing.T) {
	transport := &fakeTransport{lines: signalBlockLines("E4_17_D8_EC_04_1E", "Connected", "boolean true")}
	scheduler := &manualScheduler{}
	r := NewReactor(transport, scheduler)

	var order []string
	mk := func(name string) Handler {
		return func(string, map[string]any) { order = append(order, name) }
	}
	r.RegisterCallback("a", mk("a"), 10)
	r.RegisterCallback("b", mk("b"), 20)
	r.RegisterCallback("c", mk("c"), 30)
	r.UnregisterCallback("b")
	r.UnregisterCallback("missing") // no-op

	if got := r.SubscriberCount(); got != 2 {
		t.Fatalf("SubscriberCount = %d, want 2", got)
	}

	r.Start(context.Background())
	scheduler.runNext(t)

	if len(order) != 2 || order[0] != "a" || order[1] != "c" {
		t.Fatalf("dispatch order = %v, want [a c]", order)
	}
}

func TestPanickingSubscriberDoesNotStopDispatch(t *testing.T) {
	transport := &fakeTransport{lines: signalBlockLines("E4_17_D8_EC_04_1E", "Connected", "boolean true")}
	scheduler := &manualScheduler{}
	r := NewReactor(transport, scheduler)

	var reached bool
	r.RegisterCallback("bad", func(string, map[string]any) { panic("boom") }, 10)
	r.RegisterCallback("good", func(string, map[string]any) { reached = true }, 50)

	r.Start(context.Background())
	scheduler.runNext(t)

	if !reached {
		t.Error("later subscriber skipped after earlier panic")
	}
	if !r.Active() {
		t.Error("reactor stopped by a subscriber panic")
	}
}

func TestMalformedBlockIsDiscardedSilently(t *testing.T) {
	transport := &fakeTransport{lines: []string{
		"signal sender=:1.3 serial=9", // no path
		`   string "Connected"`,
		`   variant             boolean true`,
		"",
	}}
	scheduler := &manualScheduler{}
	r := NewReactor(transport, scheduler)

	var calls int
	r.RegisterCallback("count", func(string, map[string]any) { calls++ }, DefaultPriority)

	r.Start(context.Background())
	scheduler.runNext(t)

	if calls != 0 {
		t.Errorf("dispatches = %d, want 0 for an address-less block", calls)
	}
	if !r.Active() {
		t.Error("reactor stopped by malformed input")
	}
}
