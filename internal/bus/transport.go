package bus

import (
	"bufio"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/inkblue/inkblue-core/internal/process"
)

// lineBuffer is the number of monitor lines buffered between the reader
// goroutine and the reactor. Signal blocks are a handful of lines each; the
// reactor drains every tick, so bursts well beyond one block fit.
const lineBuffer = 512

// Readiness is the result of a zero-timeout transport poll.
type Readiness int

const (
	// ReadinessEmpty means no complete line is currently available.
	ReadinessEmpty Readiness = iota

	// ReadinessData means at least one complete line can be read.
	ReadinessData

	// ReadinessHangup means the monitor stream has ended and no buffered
	// lines remain. The session is over.
	ReadinessHangup
)

// Transport is the reactor's view of the signal stream. Implementations must
// never block the caller: Poll and ReadLine return immediately.
type Transport interface {
	// Open starts the stream. It fails closed: on error no subprocess or
	// buffer state is retained and Open may be retried.
	Open(ctx context.Context) error

	// Poll is a zero-timeout readiness check.
	Poll() Readiness

	// ReadLine returns the next complete line if one is available.
	ReadLine() (string, bool)

	// Close tears the stream down. Idempotent.
	Close()
}

// MonitorConfig configures the bus monitor subprocess.
type MonitorConfig struct {
	// Binary is the monitor executable, typically dbus-monitor.
	Binary string

	// Args are passed verbatim. Empty means the default signal match rule.
	Args []string

	// GracefulTimeout is forwarded to the process manager.
	GracefulTimeout time.Duration
}

// withDefaults fills zero values.
func (c MonitorConfig) withDefaults() MonitorConfig {
	if c.Binary == "" {
		c.Binary = "/usr/bin/dbus-monitor"
	}
	if len(c.Args) == 0 {
		c.Args = []string{"--system", "type='signal',sender='" + bluezService + "'"}
	}
	return c
}

// MonitorTransport streams signal text from a long-lived monitor subprocess.
// A reader goroutine feeds complete lines into a buffered channel; the
// reactor side consumes them without ever blocking.
type MonitorTransport struct {
	cfg    MonitorConfig
	logger Logger

	mu     sync.Mutex
	proc   *process.Manager
	lines  chan string
	done   chan struct{}
	open   bool
	hungup atomic.Bool
}

// NewMonitorTransport creates a transport; Open starts the subprocess.
func NewMonitorTransport(cfg MonitorConfig, logger Logger) *MonitorTransport {
	if logger == nil {
		logger = noopLogger{}
	}
	return &MonitorTransport{cfg: cfg.withDefaults(), logger: logger}
}

// Open implements Transport.
func (t *MonitorTransport) Open(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.open {
		return fmt.Errorf("monitor transport already open")
	}

	proc := process.NewManager(process.Config{
		Name:            "bus-monitor",
		Binary:          t.cfg.Binary,
		Args:            t.cfg.Args,
		GracefulTimeout: t.cfg.GracefulTimeout,
	})

	stdout, err := proc.Start(ctx)
	if err != nil {
		return fmt.Errorf("starting bus monitor: %w", err)
	}

	t.proc = proc
	t.lines = make(chan string, lineBuffer)
	t.done = make(chan struct{})
	t.hungup.Store(false)
	t.open = true

	go t.readLines(stdout, t.lines, t.done)

	return nil
}

// readLines pumps monitor output into the line channel until the stream ends
// or the transport closes.
func (t *MonitorTransport) readLines(r interface{ Read([]byte) (int, error) }, lines chan string, done chan struct{}) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)

	for scanner.Scan() {
		select {
		case lines <- scanner.Text():
		case <-done:
			return
		}
	}
	if err := scanner.Err(); err != nil {
		t.logger.Debug("monitor stream ended", "error", err)
	}
	t.hungup.Store(true)
}

// Poll implements Transport.
func (t *MonitorTransport) Poll() Readiness {
	t.mu.Lock()
	lines := t.lines
	open := t.open
	t.mu.Unlock()

	if !open {
		return ReadinessHangup
	}
	if len(lines) > 0 {
		return ReadinessData
	}
	if t.hungup.Load() {
		return ReadinessHangup
	}
	return ReadinessEmpty
}

// ReadLine implements Transport.
func (t *MonitorTransport) ReadLine() (string, bool) {
	t.mu.Lock()
	lines := t.lines
	open := t.open
	t.mu.Unlock()

	if !open {
		return "", false
	}
	select {
	case line := <-lines:
		return line, true
	default:
		return "", false
	}
}

// Close implements Transport. The subprocess is terminated best-effort and
// buffered lines are discarded; closing twice is a no-op.
func (t *MonitorTransport) Close() {
	t.mu.Lock()
	if !t.open {
		t.mu.Unlock()
		return
	}
	t.open = false
	proc := t.proc
	done := t.done
	t.proc = nil
	t.lines = nil
	t.mu.Unlock()

	close(done)
	if proc != nil {
		proc.Stop()
	}
}
