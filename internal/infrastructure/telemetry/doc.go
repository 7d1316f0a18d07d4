// Package telemetry writes peripheral signal metrics to InfluxDB.
//
// The writer records RSSI samples per device and counts connect and
// disconnect events, giving a view of signal quality and link churn
// over time. Telemetry is optional and disabled by default; when off
// the subsystem runs identically with a nil sink.
//
// Writes are non-blocking and batched by the InfluxDB client. Failures
// never propagate into the bluetooth event path.
package telemetry
