package process

import (
	"context"
	"io"
	"testing"
	"time"
)

func TestNewManager_Defaults(t *testing.T) {
	m := NewManager(Config{
		Name:   "test-proc",
		Binary: "/usr/bin/test",
		Args:   []string{"--flag"},
	})

	if m.config.Name != "test-proc" {
		t.Errorf("Name = %q, want %q", m.config.Name, "test-proc")
	}
	if m.config.GracefulTimeout != defaultGracefulTimeout {
		t.Errorf("GracefulTimeout = %v, want %v", m.config.GracefulTimeout, defaultGracefulTimeout)
	}
}

func TestManager_InitialState(t *testing.T) {
	m := NewManager(Config{Name: "test", Binary: "/bin/true"})

	if m.Status() != StatusStopped {
		t.Errorf("initial Status() = %q, want %q", m.Status(), StatusStopped)
	}
	if m.IsRunning() {
		t.Error("IsRunning() = true, want false")
	}
	if m.PID() != 0 {
		t.Errorf("PID() = %d, want 0", m.PID())
	}
}

func TestManager_StartMissingBinary(t *testing.T) {
	m := NewManager(Config{
		Name:   "missing",
		Binary: "/nonexistent/binary/path",
	})

	stdout, err := m.Start(context.Background())
	if err == nil {
		stdout.Close()
		t.Fatal("Start() with missing binary should fail")
	}
	if m.Status() != StatusStopped {
		t.Errorf("Status() after failed start = %q, want %q", m.Status(), StatusStopped)
	}
}

func TestManager_StartStdoutAndExit(t *testing.T) {
	exited := make(chan error, 1)
	m := NewManager(Config{
		Name:   "echo",
		Binary: "/bin/echo",
		Args:   []string{"hello"},
		OnExit: func(err error) { exited <- err },
	})

	stdout, err := m.Start(context.Background())
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	out, err := io.ReadAll(stdout)
	if err != nil {
		t.Fatalf("reading stdout: %v", err)
	}
	if string(out) != "hello\n" {
		t.Errorf("stdout = %q, want %q", out, "hello\n")
	}

	select {
	case exitErr := <-exited:
		if exitErr != nil {
			t.Errorf("OnExit error = %v, want nil", exitErr)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnExit not called")
	}

	if m.Status() != StatusExited {
		t.Errorf("Status() = %q, want %q", m.Status(), StatusExited)
	}
}

func TestManager_StopLongRunning(t *testing.T) {
	m := NewManager(Config{
		Name:            "sleep",
		Binary:          "/bin/sleep",
		Args:            []string{"60"},
		GracefulTimeout: time.Second,
	})

	stdout, err := m.Start(context.Background())
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer stdout.Close()

	if !m.IsRunning() {
		t.Fatal("IsRunning() = false after Start")
	}
	if m.PID() == 0 {
		t.Error("PID() = 0 while running")
	}

	m.Stop()

	if m.Status() != StatusExited {
		t.Errorf("Status() after Stop = %q, want %q", m.Status(), StatusExited)
	}

	// Second stop is a no-op.
	m.Stop()
}

func TestManager_DoubleStart(t *testing.T) {
	m := NewManager(Config{
		Name:   "sleep",
		Binary: "/bin/sleep",
		Args:   []string{"60"},
	})

	stdout, err := m.Start(context.Background())
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer func() {
		m.Stop()
		stdout.Close()
	}()

	if _, err := m.Start(context.Background()); err == nil {
		t.Error("second Start() while running should fail")
	}
}
