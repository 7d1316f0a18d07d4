// Package settings stores the runtime behaviour toggles in SQLite.
//
// Toggles control the connection policies (auto-detection, auto-connect,
// power resume) and survive restarts. Each toggle has a compiled-in default
// that applies until the first explicit write, so a fresh database behaves
// the same as the shipped configuration.
package settings
