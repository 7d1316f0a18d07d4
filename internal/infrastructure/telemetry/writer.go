package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/inkblue/inkblue-core/internal/infrastructure/config"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPingTimeout    = 5 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 // seconds
)

// Writer records bluetooth signal metrics in InfluxDB. It satisfies the
// coordinator's telemetry sink and is safe for concurrent use. Writes
// are buffered by the non-blocking write API.
type Writer struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	cfg      config.TelemetryConfig

	connected bool
	mu        sync.RWMutex

	onError func(err error)
}

// Connect creates a writer and verifies the server with a ping. Returns
// ErrDisabled when telemetry is off in configuration, so callers can
// treat that case as a soft skip.
func Connect(cfg config.TelemetryConfig) (*Writer, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}

	// #nosec G115 -- values validated above to be positive
	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(uint(batchSize)).
			SetFlushInterval(uint(flushInterval)*1000),
	)

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()

	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)

	w := &Writer{
		client:    client,
		writeAPI:  writeAPI,
		cfg:       cfg,
		connected: true,
	}

	go w.handleWriteErrors(writeAPI.Errors())

	return w, nil
}

// handleWriteErrors forwards async write failures to the error callback.
func (w *Writer) handleWriteErrors(errorsCh <-chan error) {
	for err := range errorsCh {
		w.mu.RLock()
		callback := w.onError
		w.mu.RUnlock()

		if callback != nil {
			callback(err)
		}
	}
}

// RecordRSSI records a signal strength sample for a device.
func (w *Writer) RecordRSSI(address string, rssi int) {
	if !w.IsConnected() {
		return
	}

	point := write.NewPoint(
		"peripheral_rssi",
		map[string]string{
			"address": address,
		},
		map[string]interface{}{
			"rssi": rssi,
		},
		time.Now(),
	)

	w.writeAPI.WritePoint(point)
}

// CountEvent counts a lifecycle event, "connect" or "disconnect".
func (w *Writer) CountEvent(kind string) {
	if !w.IsConnected() {
		return
	}

	point := write.NewPoint(
		"peripheral_events",
		map[string]string{
			"kind": kind,
		},
		map[string]interface{}{
			"count": 1,
		},
		time.Now(),
	)

	w.writeAPI.WritePoint(point)
}

// Close flushes pending writes and shuts the client down.
func (w *Writer) Close() error {
	if w.client == nil {
		return nil
	}

	w.mu.Lock()
	w.connected = false
	w.mu.Unlock()

	w.writeAPI.Flush()
	w.client.Close()

	return nil
}

// HealthCheck pings the server.
func (w *Writer) HealthCheck(ctx context.Context) error {
	if !w.IsConnected() {
		return ErrNotConnected
	}

	checkCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	healthy, err := w.client.Ping(checkCtx)
	if err != nil {
		return fmt.Errorf("telemetry health check failed: %w", err)
	}
	if !healthy {
		return fmt.Errorf("telemetry health check failed: server not healthy")
	}

	return nil
}

// IsConnected returns the last known connection state.
func (w *Writer) IsConnected() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.connected
}

// SetOnError registers a callback for async write failures.
func (w *Writer) SetOnError(callback func(err error)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onError = callback
}

// Flush blocks until buffered points are written. No-op when closed.
func (w *Writer) Flush() {
	if w.writeAPI == nil {
		return
	}
	if !w.IsConnected() {
		return
	}
	w.writeAPI.Flush()
}
