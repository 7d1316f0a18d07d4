package bus

import (
	"context"
	"os"
)

// Well-known bus names and interfaces for the Bluetooth daemon.
const (
	bluezService     = "org.bluez"
	adapterInterface = "org.bluez.Adapter1"
	deviceInterface  = "org.bluez.Device1"
	propsInterface   = "org.freedesktop.DBus.Properties"
	objmgrInterface  = "org.freedesktop.DBus.ObjectManager"

	// DefaultAdapterPath is the object path of the first host adapter.
	DefaultAdapterPath = "/org/bluez/hci0"
)

// Commander is the request/response command surface against the bus. All
// operations report plain success/failure; a false return covers both
// "command failed" and "not applicable on this host" — callers must check it
// and may not assume anything further. Implementations hold no peripheral
// state.
type Commander interface {
	// Kind identifies the selected backend ("cli" or "native").
	Kind() string

	PowerOn(ctx context.Context) bool
	PowerOff(ctx context.Context) bool

	// Powered queries the adapter power state. A query failure reads as
	// powered-off.
	Powered(ctx context.Context) bool

	StartDiscovery(ctx context.Context) bool
	StopDiscovery(ctx context.Context) bool

	Connect(ctx context.Context, devicePath string) bool

	// ConnectBackground launches the connect attempt detached and returns
	// immediately. The result reports only whether the attempt was launched;
	// the outcome arrives later as property-change signals.
	ConnectBackground(devicePath string) bool

	Disconnect(ctx context.Context, devicePath string) bool
	Remove(ctx context.Context, devicePath string) bool
	SetTrusted(ctx context.Context, devicePath string, trusted bool) bool

	// EnumerateDevices performs a bulk enumeration of all known bus objects
	// and returns the per-peripheral records.
	EnumerateDevices(ctx context.Context) ([]ObjectRecord, bool)
}

// Logger is the logging interface used throughout the bus package.
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

// BackendConfig selects and parameterises the command backend.
type BackendConfig struct {
	// Backend forces a backend: "cli", "native" or "" for probing.
	Backend string

	// AdapterPath is the bus object path of the host adapter.
	AdapterPath string

	// DBusSendBinary is the dbus-send path used by the cli backend.
	DBusSendBinary string
}

// withDefaults fills zero values.
func (c BackendConfig) withDefaults() BackendConfig {
	if c.AdapterPath == "" {
		c.AdapterPath = DefaultAdapterPath
	}
	if c.DBusSendBinary == "" {
		c.DBusSendBinary = "/usr/bin/dbus-send"
	}
	return c
}

// DetectCommander probes the host once and returns the matching backend.
// Order: explicit config override, then a native system-bus connection, then
// the CLI tools that older reader firmwares ship. Returns false when the
// host exposes no usable bus at all.
func DetectCommander(cfg BackendConfig, logger Logger) (Commander, bool) {
	if logger == nil {
		logger = noopLogger{}
	}
	cfg = cfg.withDefaults()

	switch cfg.Backend {
	case "cli":
		return newCLICommander(cfg, logger), true
	case "native":
		c, err := newNativeCommander(cfg, logger)
		if err != nil {
			logger.Error("native bus backend unavailable", "error", err)
			return nil, false
		}
		return c, true
	}

	if c, err := newNativeCommander(cfg, logger); err == nil {
		logger.Info("bus backend selected", "backend", c.Kind())
		return c, true
	}

	if _, err := os.Stat(cfg.DBusSendBinary); err == nil {
		c := newCLICommander(cfg, logger)
		logger.Info("bus backend selected", "backend", c.Kind())
		return c, true
	}

	logger.Error("no usable bus backend on this host")
	return nil, false
}
