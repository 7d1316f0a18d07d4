// Package registry holds the authoritative in-memory peripheral cache.
//
// The cache is keyed by canonical address. It is rebuilt wholesale by
// LoadDevices (bus enumeration) and kept current incrementally by
// UpdateProperties, which the reactor's cache-sync subscriber feeds with
// every property-change event. Mutating operations (connect, disconnect,
// trust, remove) go through the bus command surface first and touch the
// cache only on success.
//
// An optional journal persists every peripheral sighting to SQLite so the
// set of known accessories survives restarts.
package registry
