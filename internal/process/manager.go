package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Status represents the current state of a managed process.
type Status string

const (
	StatusStopped Status = "stopped"
	StatusRunning Status = "running"
	StatusExited  Status = "exited"
)

// defaultGracefulTimeout is how long Stop waits after SIGTERM before SIGKILL.
const defaultGracefulTimeout = 3 * time.Second

// Config holds configuration for a managed subprocess.
type Config struct {
	// Name is a human-readable identifier for logging.
	Name string

	// Binary is the path to the executable.
	Binary string

	// Args are command-line arguments to pass to the binary.
	Args []string

	// Env are additional environment variables (key=value format).
	// If nil, inherits from parent process.
	Env []string

	// GracefulTimeout is how long to wait for graceful shutdown before SIGKILL.
	GracefulTimeout time.Duration

	// OnExit is called once when the process exits for any reason.
	// The error is nil on a clean exit.
	OnExit func(err error)
}

// Logger defines the logging interface for the process manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Manager manages the lifecycle of a single subprocess whose stdout is
// consumed by the caller.
type Manager struct {
	config Config
	logger Logger

	mu            sync.Mutex
	cmd           *exec.Cmd
	status        Status
	stopRequested bool
	exited        chan struct{}
}

// NewManager creates a new process manager with the given configuration.
func NewManager(cfg Config) *Manager {
	if cfg.GracefulTimeout == 0 {
		cfg.GracefulTimeout = defaultGracefulTimeout
	}
	return &Manager{
		config: cfg,
		logger: noopLogger{},
		status: StatusStopped,
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// Start launches the subprocess and returns its stdout. The returned reader
// is closed when the process exits. Start fails closed: on any error no
// process or pipe is left behind.
func (m *Manager) Start(ctx context.Context) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status == StatusRunning {
		return nil, fmt.Errorf("process %s is already running", m.config.Name)
	}

	cmd := exec.CommandContext(ctx, m.config.Binary, m.config.Args...) //nolint:gosec // binary path comes from validated config
	// New process group so Stop can signal helpers the child spawns.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if m.config.Env != nil {
		cmd.Env = m.config.Env
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		stdout.Close()
		return nil, fmt.Errorf("starting %s: %w", m.config.Name, err)
	}

	m.cmd = cmd
	m.status = StatusRunning
	m.stopRequested = false
	m.exited = make(chan struct{})

	m.logger.Info("process started",
		"name", m.config.Name,
		"pid", cmd.Process.Pid,
	)

	go m.wait(cmd, m.exited)

	return stdout, nil
}

// wait reaps the child and records its exit.
func (m *Manager) wait(cmd *exec.Cmd, exited chan struct{}) {
	err := cmd.Wait()
	close(exited)

	m.mu.Lock()
	m.status = StatusExited
	requested := m.stopRequested
	m.mu.Unlock()

	if requested {
		m.logger.Info("process stopped as requested", "name", m.config.Name)
	} else {
		m.logger.Warn("process exited",
			"name", m.config.Name,
			"error", err,
		)
	}

	if m.config.OnExit != nil {
		m.config.OnExit(err)
	}
}

// Stop terminates the subprocess. It sends SIGTERM to the process group,
// escalates to SIGKILL after GracefulTimeout, and waits for the child to be
// reaped. Stopping an already stopped manager is a no-op.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.status != StatusRunning {
		m.mu.Unlock()
		return
	}
	m.stopRequested = true
	cmd := m.cmd
	exited := m.exited
	m.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return
	}

	pid := cmd.Process.Pid
	m.logger.Info("stopping process", "name", m.config.Name, "pid", pid)

	// Negative PID signals the whole process group (Setpgid above).
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil {
		if !errors.Is(err, syscall.ESRCH) {
			m.logger.Warn("failed to send SIGTERM", "name", m.config.Name, "error", err)
		}
	}

	select {
	case <-exited:
		return
	case <-time.After(m.config.GracefulTimeout):
	}

	m.logger.Warn("graceful shutdown timeout, sending SIGKILL",
		"name", m.config.Name,
		"timeout", m.config.GracefulTimeout,
	)
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil {
		if !errors.Is(err, syscall.ESRCH) {
			m.logger.Error("failed to kill process group", "name", m.config.Name, "error", err)
		}
	}
	<-exited
}

// Status returns the current status of the managed process.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// IsRunning returns true if the process is currently running.
func (m *Manager) IsRunning() bool {
	return m.Status() == StatusRunning
}

// PID returns the process ID, or 0 if not running.
func (m *Manager) PID() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status == StatusRunning && m.cmd != nil && m.cmd.Process != nil {
		return m.cmd.Process.Pid
	}
	return 0
}
