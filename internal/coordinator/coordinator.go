package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/inkblue/inkblue-core/internal/bus"
	"github.com/inkblue/inkblue-core/internal/input"
	"github.com/inkblue/inkblue-core/internal/registry"
	"github.com/inkblue/inkblue-core/internal/settings"
)

// Subscriber priorities. Cache-sync must run before the policies within a
// single dispatch so the policies read an up-to-date registry.
const (
	cacheSyncPriority = 10
	policyPriority    = 50
)

// Subscriber keys.
const (
	keyCacheSync   = "cache-sync"
	keyAutoDetect  = "auto-detect"
	keyAutoConnect = "auto-connect"
)

// Defaults for Config fields left zero.
const (
	defaultRSSIFloor        = -90
	defaultResumeRetries    = 10
	defaultResumeRetryDelay = 500 * time.Millisecond
)

// Config carries the coordinator's tunables.
type Config struct {
	// RSSIFloor is the out-of-range threshold: readings at or below it are
	// ignored by auto-connect. Zero means the default floor.
	RSSIFloor int

	// ResumeRetries bounds the power-confirmation loop after resume.
	ResumeRetries int

	// ResumeRetryDelay is the wait between power-state probes on resume.
	ResumeRetryDelay time.Duration

	// PreferNameMatch makes the input handler try the advertised name
	// before the hardware address when locating the input node.
	PreferNameMatch bool

	// AllowInputFallback permits the input handler's secondary matching
	// strategy when the preferred one finds nothing.
	AllowInputFallback bool
}

func (c Config) withDefaults() Config {
	if c.RSSIFloor == 0 {
		c.RSSIFloor = defaultRSSIFloor
	}
	if c.ResumeRetries == 0 {
		c.ResumeRetries = defaultResumeRetries
	}
	if c.ResumeRetryDelay == 0 {
		c.ResumeRetryDelay = defaultResumeRetryDelay
	}
	return c
}

// SignalReactor is the reactor surface the coordinator drives. Satisfied by
// *bus.Reactor.
type SignalReactor interface {
	Start(ctx context.Context) bool
	Stop()
	RegisterCallback(key string, fn bus.Handler, priority int)
	UnregisterCallback(key string)
}

// Devices is the registry surface the coordinator and policies use.
// Satisfied by *registry.Registry.
type Devices interface {
	LoadDevices(ctx context.Context) bool
	DeviceByAddress(address string) (registry.Peripheral, bool)
	UpdateProperties(address string, properties map[string]any) registry.Peripheral
	// ConnectDeviceBackground launches a detached connect attempt and
	// returns immediately; the outcome arrives as property-change events.
	ConnectDeviceBackground(device registry.Peripheral) bool
}

// PowerCommander is the slice of the bus command surface the coordinator
// itself issues. Satisfied by bus.Commander.
type PowerCommander interface {
	PowerOn(ctx context.Context) bool
	PowerOff(ctx context.Context) bool
	Powered(ctx context.Context) bool
	StartDiscovery(ctx context.Context) bool
	StopDiscovery(ctx context.Context) bool
}

// Toggles is the read surface of the behaviour toggle store. Satisfied by
// *settings.Store.
type Toggles interface {
	Get(key string) bool
}

// EventSink receives lifecycle notifications for publication outside the
// subsystem. Optional; satisfied by *StatePublisher.
type EventSink interface {
	SubsystemState(enabled bool)
	DeviceConnected(p registry.Peripheral)
	DeviceDisconnected(p registry.Peripheral)
}

// TelemetrySink receives RSSI samples and lifecycle counters. Optional.
type TelemetrySink interface {
	RecordRSSI(address string, rssi int)
	CountEvent(kind string)
}

// Logger defines the logging interface used by the Coordinator.
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

// Coordinator drives the peripheral subsystem lifecycle. All exported
// methods are safe for concurrent use; policy callbacks run on the reactor's
// scheduler loop.
type Coordinator struct {
	cfg       Config
	reactor   SignalReactor
	devices   Devices
	commander PowerCommander
	toggles   Toggles
	inputs    input.Handler

	events    EventSink     // optional
	telemetry TelemetrySink // optional

	proximity *proximityTracker
	logger    Logger

	mu                sync.Mutex
	enabled           bool
	autoDetectActive  bool
	autoConnectActive bool
	// discoveryOwned is set when auto-connect started discovery itself and
	// therefore must stop it on the way down.
	discoveryOwned bool
	// enabledBeforeSuspend records the state Suspend tore down so Resume
	// knows whether to bring it back.
	enabledBeforeSuspend bool
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(logger Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

// WithEventSink attaches a lifecycle event sink.
func WithEventSink(sink EventSink) Option {
	return func(c *Coordinator) { c.events = sink }
}

// WithTelemetrySink attaches a telemetry sink.
func WithTelemetrySink(sink TelemetrySink) Option {
	return func(c *Coordinator) { c.telemetry = sink }
}

// New assembles a coordinator over its collaborators.
func New(cfg Config, reactor SignalReactor, devices Devices, commander PowerCommander, toggles Toggles, inputs input.Handler, opts ...Option) *Coordinator {
	c := &Coordinator{
		cfg:       cfg.withDefaults(),
		reactor:   reactor,
		devices:   devices,
		commander: commander,
		toggles:   toggles,
		inputs:    inputs,
		proximity: newProximityTracker(),
		logger:    noopLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Enable brings the subsystem up: adapter power, device cache, reactor,
// cache-sync subscriber, then whichever policies the toggles enable.
// Idempotent; enabling an enabled coordinator returns true immediately.
func (c *Coordinator) Enable(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.enabled {
		return true
	}
	if !c.commander.PowerOn(ctx) {
		c.logger.Error("adapter power-on failed")
		return false
	}
	return c.bringUpLocked(ctx)
}

// bringUpLocked finishes enablement once the adapter is powered. Fails
// closed: a reactor that cannot start powers the adapter back off.
func (c *Coordinator) bringUpLocked(ctx context.Context) bool {
	if !c.devices.LoadDevices(ctx) {
		c.logger.Warn("initial device enumeration failed, continuing with empty cache")
	}

	if !c.reactor.Start(ctx) {
		c.logger.Error("signal reactor failed to start")
		c.commander.PowerOff(ctx)
		return false
	}

	c.reactor.RegisterCallback(keyCacheSync, c.cacheSync, cacheSyncPriority)

	if c.toggles.Get(settings.KeyAutoDetectPolling) {
		c.startAutoDetectLocked()
	}
	if c.toggles.Get(settings.KeyAutoConnectPolling) {
		c.startAutoConnectLocked(ctx)
	}

	c.enabled = true
	c.logger.Info("peripheral subsystem enabled")
	if c.events != nil {
		c.events.SubsystemState(true)
	}
	return true
}

// Disable tears the subsystem down: policies first, then cache-sync, then
// the reactor, then adapter power. Idempotent.
func (c *Coordinator) Disable(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disableLocked(ctx)
}

func (c *Coordinator) disableLocked(ctx context.Context) {
	if !c.enabled {
		return
	}

	c.stopAutoDetectLocked()
	c.stopAutoConnectLocked(ctx)
	c.reactor.UnregisterCallback(keyCacheSync)
	c.reactor.Stop()

	if !c.commander.PowerOff(ctx) {
		c.logger.Warn("adapter power-off failed")
	}

	c.enabled = false
	c.logger.Info("peripheral subsystem disabled")
	if c.events != nil {
		c.events.SubsystemState(false)
	}
}

// Enabled reports whether the subsystem is currently up.
func (c *Coordinator) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// Suspend releases the subsystem ahead of platform sleep, remembering
// whether it was enabled so Resume can restore it.
func (c *Coordinator) Suspend(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.enabledBeforeSuspend = c.enabled
	c.disableLocked(ctx)
	c.logger.Info("subsystem suspended", "was_enabled", c.enabledBeforeSuspend)
}

// Resume restores the subsystem after platform sleep. The adapter is powered
// on and probed until it confirms the powered state, bounded by the
// configured retry budget; on exhaustion the subsystem stays disabled.
func (c *Coordinator) Resume(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.enabledBeforeSuspend {
		return true
	}
	if !c.toggles.Get(settings.KeyBluetoothAutoResume) {
		c.logger.Info("auto-resume disabled, leaving subsystem down")
		return true
	}
	if c.enabled {
		return true
	}

	if !c.awaitPoweredLocked(ctx) {
		c.logger.Error("adapter did not confirm power-on after resume, giving up")
		return false
	}
	return c.bringUpLocked(ctx)
}

// awaitPoweredLocked issues power-on and polls the power state until it
// confirms or the retry budget runs out.
func (c *Coordinator) awaitPoweredLocked(ctx context.Context) bool {
	for attempt := 0; attempt < c.cfg.ResumeRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return false
			case <-time.After(c.cfg.ResumeRetryDelay):
			}
		}
		c.commander.PowerOn(ctx)
		if c.commander.Powered(ctx) {
			return true
		}
		c.logger.Debug("adapter not yet powered", "attempt", attempt+1)
	}
	return false
}

// cacheSync is the priority-10 subscriber keeping the registry current
// before any policy runs in the same dispatch.
func (c *Coordinator) cacheSync(address string, properties map[string]any) {
	c.devices.UpdateProperties(address, properties)

	if c.telemetry != nil {
		if rssi, ok := properties["RSSI"].(int); ok {
			c.telemetry.RecordRSSI(address, rssi)
		}
	}
}

// StartAutoDetect registers the auto-detect policy. Safe to call while the
// policy is already active.
func (c *Coordinator) StartAutoDetect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startAutoDetectLocked()
}

func (c *Coordinator) startAutoDetectLocked() {
	c.reactor.RegisterCallback(keyAutoDetect, c.autoDetect, policyPriority)
	if !c.autoDetectActive {
		c.autoDetectActive = true
		c.logger.Info("auto-detect policy started")
	}
}

// StopAutoDetect unregisters the auto-detect policy.
func (c *Coordinator) StopAutoDetect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopAutoDetectLocked()
}

func (c *Coordinator) stopAutoDetectLocked() {
	if !c.autoDetectActive {
		return
	}
	c.reactor.UnregisterCallback(keyAutoDetect)
	c.autoDetectActive = false
	c.logger.Info("auto-detect policy stopped")
}

// StartAutoConnect ensures discovery is running and registers the
// auto-connect policy. Safe to call while the policy is already active.
func (c *Coordinator) StartAutoConnect(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startAutoConnectLocked(ctx)
}

func (c *Coordinator) startAutoConnectLocked(ctx context.Context) {
	// Retry ownership on every start while unowned, so a failed initial
	// start-discovery does not leave the policy blind for the whole
	// activation.
	if !c.discoveryOwned {
		if c.commander.StartDiscovery(ctx) {
			c.discoveryOwned = true
		} else {
			// Discovery may already be running on someone else's behalf;
			// the policy still works off whatever RSSI signals arrive.
			c.logger.Warn("start-discovery failed, auto-connect runs without owned discovery")
		}
	}
	c.reactor.RegisterCallback(keyAutoConnect, c.autoConnect, policyPriority)
	if !c.autoConnectActive {
		c.autoConnectActive = true
		c.logger.Info("auto-connect policy started")
	}
}

// StopAutoConnect unregisters the auto-connect policy, clears the proximity
// tracker, and stops discovery if this policy started it.
func (c *Coordinator) StopAutoConnect(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopAutoConnectLocked(ctx)
}

func (c *Coordinator) stopAutoConnectLocked(ctx context.Context) {
	if !c.autoConnectActive {
		return
	}
	c.reactor.UnregisterCallback(keyAutoConnect)
	c.autoConnectActive = false
	c.proximity.reset()

	if c.discoveryOwned {
		if !c.commander.StopDiscovery(ctx) {
			c.logger.Warn("stop-discovery failed")
		}
		c.discoveryOwned = false
	}
	c.logger.Info("auto-connect policy stopped")
}

// AutoDetectActive reports whether the auto-detect policy is registered.
func (c *Coordinator) AutoDetectActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.autoDetectActive
}

// AutoConnectActive reports whether the auto-connect policy is registered.
func (c *Coordinator) AutoConnectActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.autoConnectActive
}
