package bus

import (
	"context"
	"testing"
	"time"
)

// newEchoTransport runs a short shell that prints a few lines and exits,
// standing in for the monitor subprocess.
func newEchoTransport(script string) *MonitorTransport {
	return NewMonitorTransport(MonitorConfig{
		Binary:          "/bin/sh",
		Args:            []string{"-c", script},
		GracefulTimeout: time.Second,
	}, nil)
}

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestMonitorTransportStreamsLines(t *testing.T) {
	tr := newEchoTransport(`printf 'one\ntwo\n'; sleep 5`)
	if err := tr.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer tr.Close()

	waitFor(t, func() bool { return tr.Poll() == ReadinessData })

	line, ok := tr.ReadLine()
	if !ok || line != "one" {
		t.Fatalf("first line = %q, %v", line, ok)
	}
	waitFor(t, func() bool { return tr.Poll() == ReadinessData })
	line, ok = tr.ReadLine()
	if !ok || line != "two" {
		t.Fatalf("second line = %q, %v", line, ok)
	}
	if _, ok := tr.ReadLine(); ok {
		t.Error("ReadLine returned a line that was never written")
	}
}

func TestMonitorTransportHangupAfterDrain(t *testing.T) {
	tr := newEchoTransport(`printf 'last\n'`)
	if err := tr.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer tr.Close()

	// Once the subprocess exits, buffered lines still read out before the
	// transport reports hangup.
	waitFor(t, func() bool { return tr.Poll() == ReadinessData })
	if line, ok := tr.ReadLine(); !ok || line != "last" {
		t.Fatalf("line = %q, %v", line, ok)
	}
	waitFor(t, func() bool { return tr.Poll() == ReadinessHangup })
}

func TestMonitorTransportOpenFailsClosed(t *testing.T) {
	tr := NewMonitorTransport(MonitorConfig{Binary: "/nonexistent/monitor"}, nil)
	if err := tr.Open(context.Background()); err == nil {
		t.Fatal("Open succeeded with a missing binary")
	}
	if tr.Poll() != ReadinessHangup {
		t.Error("failed transport should read as hung up")
	}
	// A failed Open leaves the transport reopenable; Close stays a no-op.
	tr.Close()
}

func TestMonitorTransportDoubleOpenRejected(t *testing.T) {
	tr := newEchoTransport(`sleep 5`)
	if err := tr.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer tr.Close()

	if err := tr.Open(context.Background()); err == nil {
		t.Fatal("second Open succeeded on an open transport")
	}
}

func TestMonitorTransportCloseIdempotent(t *testing.T) {
	tr := newEchoTransport(`sleep 5`)
	if err := tr.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}

	tr.Close()
	tr.Close()

	if tr.Poll() != ReadinessHangup {
		t.Error("closed transport should read as hung up")
	}
	if _, ok := tr.ReadLine(); ok {
		t.Error("closed transport served a line")
	}
}
