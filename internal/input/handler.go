package input

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// DeviceInfo identifies the peripheral a kernel input node is wanted for.
type DeviceInfo struct {
	// Address is the canonical colon-separated hardware address.
	Address string

	// Name is the advertised device name, used for fallback matching.
	Name string
}

// Handler binds and releases kernel input nodes for peripherals.
type Handler interface {
	// OpenDevice locates and opens the input node for the peripheral.
	// preferNameMatch tries the name before the address; allowFallback
	// permits the other strategy when the preferred one finds nothing.
	// Returns false when no node could be opened.
	OpenDevice(info DeviceInfo, preferNameMatch, allowFallback bool) bool

	// CloseDevice releases the node held for the peripheral, if any.
	CloseDevice(address string)
}

// Logger defines the logging interface used by the tracking handler.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

const defaultSysInputDir = "/sys/class/input"

// TrackingHandler is the default Handler. It scans the input class directory
// for a node whose uniq attribute matches the peripheral address (or whose
// name attribute matches the advertised name) and holds the corresponding
// /dev/input/eventN open per address.
type TrackingHandler struct {
	sysDir string
	devDir string
	logger Logger

	mu   sync.Mutex
	open map[string]*os.File
}

// Option configures a TrackingHandler.
type Option func(*TrackingHandler)

// WithSysDir overrides the input class directory, for tests.
func WithSysDir(dir string) Option {
	return func(h *TrackingHandler) { h.sysDir = dir }
}

// WithDevDir overrides the event-node directory, for tests.
func WithDevDir(dir string) Option {
	return func(h *TrackingHandler) { h.devDir = dir }
}

// WithLogger sets the logger for the handler.
func WithLogger(logger Logger) Option {
	return func(h *TrackingHandler) { h.logger = logger }
}

// NewTrackingHandler creates a handler over the standard kernel paths.
func NewTrackingHandler(opts ...Option) *TrackingHandler {
	h := &TrackingHandler{
		sysDir: defaultSysInputDir,
		devDir: "/dev/input",
		logger: noopLogger{},
		open:   make(map[string]*os.File),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// OpenDevice implements Handler.
func (h *TrackingHandler) OpenDevice(info DeviceInfo, preferNameMatch, allowFallback bool) bool {
	strategies := []func(DeviceInfo) string{h.findByAddress, h.findByName}
	if preferNameMatch {
		strategies[0], strategies[1] = strategies[1], strategies[0]
	}
	if !allowFallback {
		strategies = strategies[:1]
	}

	var node string
	for _, find := range strategies {
		if node = find(info); node != "" {
			break
		}
	}
	if node == "" {
		h.logger.Debug("no input node found", "address", info.Address, "name", info.Name)
		return false
	}

	f, err := os.Open(node)
	if err != nil {
		h.logger.Warn("opening input node failed", "node", node, "error", err)
		return false
	}

	h.mu.Lock()
	if prev, ok := h.open[info.Address]; ok {
		prev.Close()
	}
	h.open[info.Address] = f
	h.mu.Unlock()

	h.logger.Info("input node attached", "address", info.Address, "node", node)
	return true
}

// CloseDevice implements Handler.
func (h *TrackingHandler) CloseDevice(address string) {
	h.mu.Lock()
	f, ok := h.open[address]
	if ok {
		delete(h.open, address)
	}
	h.mu.Unlock()

	if ok {
		f.Close()
		h.logger.Info("input node released", "address", address)
	}
}

// CloseAll releases every held node. Called on shutdown.
func (h *TrackingHandler) CloseAll() {
	h.mu.Lock()
	for address, f := range h.open {
		f.Close()
		delete(h.open, address)
	}
	h.mu.Unlock()
}

// findByAddress matches the sysfs uniq attribute, which the kernel fills
// with the peripheral address for wireless input devices.
func (h *TrackingHandler) findByAddress(info DeviceInfo) string {
	if info.Address == "" {
		return ""
	}
	want := strings.ToLower(info.Address)
	return h.scan(func(dir string) bool {
		return strings.EqualFold(readAttr(filepath.Join(dir, "device", "uniq")), want)
	})
}

// findByName matches the sysfs name attribute against the advertised name.
func (h *TrackingHandler) findByName(info DeviceInfo) string {
	if info.Name == "" {
		return ""
	}
	return h.scan(func(dir string) bool {
		return readAttr(filepath.Join(dir, "device", "name")) == info.Name
	})
}

// scan walks the eventN entries of the input class directory and returns the
// /dev node of the first entry the predicate accepts.
func (h *TrackingHandler) scan(match func(dir string) bool) string {
	entries, err := os.ReadDir(h.sysDir)
	if err != nil {
		h.logger.Debug("reading input class directory failed", "dir", h.sysDir, "error", err)
		return ""
	}
	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), "event") {
			continue
		}
		if match(filepath.Join(h.sysDir, entry.Name())) {
			return filepath.Join(h.devDir, entry.Name())
		}
	}
	return ""
}

// readAttr reads a single-line sysfs attribute, empty on any error.
func readAttr(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
