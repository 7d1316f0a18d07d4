package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/inkblue/inkblue-core/internal/bus"
)

// Commander is the slice of the bus command surface the registry drives.
// Satisfied by bus.Commander.
type Commander interface {
	Connect(ctx context.Context, devicePath string) bool
	ConnectBackground(devicePath string) bool
	Disconnect(ctx context.Context, devicePath string) bool
	Remove(ctx context.Context, devicePath string) bool
	SetTrusted(ctx context.Context, devicePath string, trusted bool) bool
	EnumerateDevices(ctx context.Context) ([]bus.ObjectRecord, bool)
}

// Sink receives peripheral sightings for persistence. Satisfied by *Journal.
type Sink interface {
	RecordSighting(p Peripheral)
}

// Logger defines the logging interface used by the Registry.
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

// Observer is notified after a successful connect or disconnect.
type Observer func(p Peripheral)

// OnSuccess is an optional per-call hook invoked with the updated peripheral
// after a successful command.
type OnSuccess func(p Peripheral)

// Registry is the peripheral cache plus the command operations that keep it
// consistent. All public methods are safe for concurrent use; in normal
// operation mutations arrive on the scheduler loop.
type Registry struct {
	commander   Commander
	adapterPath string

	mu    sync.RWMutex
	cache map[string]*Peripheral

	journal Sink // optional

	observerMu   sync.RWMutex
	onConnect    []Observer
	onDisconnect []Observer

	logger Logger
}

// NewRegistry creates an empty registry over the given command surface.
func NewRegistry(commander Commander, adapterPath string) *Registry {
	if adapterPath == "" {
		adapterPath = bus.DefaultAdapterPath
	}
	return &Registry{
		commander:   commander,
		adapterPath: adapterPath,
		cache:       make(map[string]*Peripheral),
		logger:      noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// SetJournal attaches a persistence sink for peripheral sightings.
func (r *Registry) SetJournal(journal Sink) {
	r.journal = journal
}

// LoadDevices replaces the whole cache from a bus enumeration. Entries for
// peripherals no longer reported are dropped. Returns false and leaves the
// cache untouched when the enumeration itself fails.
func (r *Registry) LoadDevices(ctx context.Context) bool {
	records, ok := r.commander.EnumerateDevices(ctx)
	if !ok {
		r.logger.Warn("peripheral enumeration failed, keeping existing cache")
		return false
	}

	fresh := make(map[string]*Peripheral, len(records))
	for _, rec := range records {
		p := &Peripheral{Address: rec.Address, Path: rec.Path}
		applyProperties(p, rec.Properties)
		fresh[p.Address] = p
	}

	r.mu.Lock()
	r.cache = fresh
	r.mu.Unlock()

	r.recordAll(fresh)
	r.logger.Info("peripheral cache loaded", "count", len(fresh))
	return true
}

// Devices returns copies of all cached peripherals, sorted by address.
func (r *Registry) Devices() []Peripheral {
	r.mu.RLock()
	out := make([]Peripheral, 0, len(r.cache))
	for _, p := range r.cache {
		out = append(out, *p.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// DeviceByAddress returns a copy of the cached peripheral, if present.
func (r *Registry) DeviceByAddress(address string) (Peripheral, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.cache[address]; ok {
		return *p.Clone(), true
	}
	return Peripheral{}, false
}

// Count returns the number of cached peripherals.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}

// UpdateProperties upserts a cache entry from a property-change event. An
// unseen address gets a minimal synthesized entry (derived path, default
// flags) before the deltas apply. Exactly Connected, Paired, Trusted, RSSI
// and Name are recognised; anything else is ignored. The updated snapshot is
// returned.
func (r *Registry) UpdateProperties(address string, properties map[string]any) Peripheral {
	r.mu.Lock()
	p, ok := r.cache[address]
	if !ok {
		p = &Peripheral{
			Address: address,
			Path:    bus.DevicePath(r.adapterPath, address),
		}
		r.cache[address] = p
	}
	applyProperties(p, properties)
	snapshot := *p.Clone()
	r.mu.Unlock()

	if r.journal != nil {
		r.journal.RecordSighting(snapshot)
	}
	return snapshot
}

// applyProperties applies the recognised property deltas to a peripheral.
func applyProperties(p *Peripheral, properties map[string]any) {
	for name, value := range properties {
		switch name {
		case "Connected":
			if v, ok := value.(bool); ok {
				p.Connected = v
			}
		case "Paired":
			if v, ok := value.(bool); ok {
				p.Paired = v
			}
		case "Trusted":
			if v, ok := value.(bool); ok {
				p.Trusted = v
			}
		case "RSSI":
			if v, ok := value.(int); ok {
				rssi := v
				p.RSSI = &rssi
			}
		case "Name":
			if v, ok := value.(string); ok {
				p.Name = v
			}
		}
	}
}

// ConnectDevice issues a connect command. On success the cache row is
// created or updated, onSuccess runs, and connect observers are notified.
// On failure the cache is untouched.
func (r *Registry) ConnectDevice(ctx context.Context, device Peripheral, onSuccess OnSuccess) bool {
	if !r.commander.Connect(ctx, r.pathFor(device)) {
		r.logger.Warn("connect failed", "address", device.Address)
		return false
	}

	updated := r.setConnected(device, true)
	if onSuccess != nil {
		onSuccess(updated)
	}
	r.notify(r.connectObservers(), updated)
	return true
}

// ConnectDeviceBackground launches a detached connect attempt. The cache is
// not touched: the outcome arrives as property-change events.
func (r *Registry) ConnectDeviceBackground(device Peripheral) bool {
	return r.commander.ConnectBackground(r.pathFor(device))
}

// DisconnectDevice issues a disconnect command; cache update, onSuccess and
// disconnect observers follow only on success.
func (r *Registry) DisconnectDevice(ctx context.Context, device Peripheral, onSuccess OnSuccess) bool {
	if !r.commander.Disconnect(ctx, r.pathFor(device)) {
		r.logger.Warn("disconnect failed", "address", device.Address)
		return false
	}

	updated := r.setConnected(device, false)
	if onSuccess != nil {
		onSuccess(updated)
	}
	r.notify(r.disconnectObservers(), updated)
	return true
}

// TrustDevice marks the peripheral trusted on the bus and in the cache.
func (r *Registry) TrustDevice(ctx context.Context, device Peripheral, onSuccess OnSuccess) bool {
	return r.setTrusted(ctx, device, true, onSuccess)
}

// UntrustDevice clears the peripheral's trusted flag.
func (r *Registry) UntrustDevice(ctx context.Context, device Peripheral, onSuccess OnSuccess) bool {
	return r.setTrusted(ctx, device, false, onSuccess)
}

func (r *Registry) setTrusted(ctx context.Context, device Peripheral, trusted bool, onSuccess OnSuccess) bool {
	if !r.commander.SetTrusted(ctx, r.pathFor(device), trusted) {
		r.logger.Warn("trust change failed", "address", device.Address, "trusted", trusted)
		return false
	}

	updated := r.mutate(device, func(p *Peripheral) { p.Trusted = trusted })
	if onSuccess != nil {
		onSuccess(updated)
	}
	return true
}

// RemoveDevice forgets a peripheral. A failing disconnect beforehand is
// logged but does not abort the removal; on a successful remove the cache
// entry is dropped.
func (r *Registry) RemoveDevice(ctx context.Context, device Peripheral, onSuccess OnSuccess) bool {
	path := r.pathFor(device)

	if device.Connected && !r.commander.Disconnect(ctx, path) {
		r.logger.Warn("disconnect before remove failed", "address", device.Address)
	}

	if !r.commander.Remove(ctx, path) {
		r.logger.Warn("remove failed", "address", device.Address)
		return false
	}

	r.mu.Lock()
	delete(r.cache, device.Address)
	r.mu.Unlock()

	if onSuccess != nil {
		onSuccess(device)
	}
	r.logger.Info("peripheral removed", "address", device.Address)
	return true
}

// RegisterDeviceConnectCallback appends a connect observer. Observers cannot
// be removed; their lifetime is the registry's.
func (r *Registry) RegisterDeviceConnectCallback(fn Observer) {
	r.observerMu.Lock()
	r.onConnect = append(r.onConnect, fn)
	r.observerMu.Unlock()
}

// RegisterDeviceDisconnectCallback appends a disconnect observer.
func (r *Registry) RegisterDeviceDisconnectCallback(fn Observer) {
	r.observerMu.Lock()
	r.onDisconnect = append(r.onDisconnect, fn)
	r.observerMu.Unlock()
}

func (r *Registry) connectObservers() []Observer {
	r.observerMu.RLock()
	defer r.observerMu.RUnlock()
	return r.onConnect
}

func (r *Registry) disconnectObservers() []Observer {
	r.observerMu.RLock()
	defer r.observerMu.RUnlock()
	return r.onDisconnect
}

// notify runs observers with panic isolation so one failing observer cannot
// starve the rest.
func (r *Registry) notify(observers []Observer, p Peripheral) {
	for _, fn := range observers {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					r.logger.Error("device observer panicked", "address", p.Address, "panic", rec)
				}
			}()
			fn(p)
		}()
	}
}

// setConnected upserts the cache row with the new connected state. The row
// is synthesized when the command was issued for an address not yet cached.
func (r *Registry) setConnected(device Peripheral, connected bool) Peripheral {
	return r.mutate(device, func(p *Peripheral) {
		p.Connected = connected
		if !connected {
			p.RSSI = nil
		}
	})
}

// mutate applies fn to the cached row for device, creating the row first if
// needed, and returns the updated snapshot.
func (r *Registry) mutate(device Peripheral, fn func(*Peripheral)) Peripheral {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.cache[device.Address]
	if !ok {
		clone := device.Clone()
		if clone.Path == "" {
			clone.Path = bus.DevicePath(r.adapterPath, device.Address)
		}
		p = clone
		r.cache[device.Address] = p
	}
	fn(p)
	return *p.Clone()
}

// recordAll journals every entry of a freshly loaded cache.
func (r *Registry) recordAll(cache map[string]*Peripheral) {
	if r.journal == nil {
		return
	}
	for _, p := range cache {
		r.journal.RecordSighting(*p.Clone())
	}
}

// pathFor resolves the bus object path for a peripheral.
func (r *Registry) pathFor(device Peripheral) string {
	if device.Path != "" {
		return device.Path
	}
	return bus.DevicePath(r.adapterPath, device.Address)
}
