// Package bus talks to the Bluetooth system bus on behalf of the subsystem.
//
// It contains three layers:
//
//   - Commander: the request/response command surface (power, discovery,
//     connect/disconnect/trust/remove, object enumeration). Two backends
//     exist — one shelling out to dbus-send for hosts whose firmware ships
//     only the CLI tools, and one speaking D-Bus natively via godbus. The
//     backend is probed once at startup.
//
//   - MonitorTransport: a long-lived bus monitor subprocess streaming signal
//     text, exposed as strictly non-blocking line reads.
//
//   - Reactor: the poll loop that drains the transport on a cooperative
//     scheduler tick, accumulates lines into signal blocks, parses them into
//     property-change events and dispatches the events to priority-ordered
//     subscribers.
//
// Command results are reported as booleans, not errors: the subsystem treats
// "failed" and "not applicable" identically and callers are expected to check
// return values. Parse failures inside the reactor are discarded silently.
package bus
