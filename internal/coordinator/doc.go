// Package coordinator orchestrates the peripheral subsystem lifecycle.
//
// The Coordinator owns one signal reactor, one device registry and one bus
// command surface. Enable powers the adapter, loads the device cache, starts
// the reactor and registers the cache-sync subscriber; the two connection
// policies (auto-detect and auto-connect) register on top of that according
// to the behaviour toggles. Disable tears everything down in the reverse
// order. Suspend and Resume bracket platform sleep: the subsystem is fully
// released on suspend and brought back, with a bounded power-confirmation
// loop, on resume.
//
// Subscriber ordering is load-bearing: cache-sync runs at a lower priority
// number than the policies, so every policy callback observes a registry
// that already reflects the event it is reacting to.
package coordinator
