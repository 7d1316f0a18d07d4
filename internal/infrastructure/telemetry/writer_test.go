package telemetry_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/inkblue/inkblue-core/internal/infrastructure/config"
	"github.com/inkblue/inkblue-core/internal/infrastructure/telemetry"
)

// newFakeInflux returns a test server that accepts pings and writes.
func newFakeInflux(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ping":
			w.WriteHeader(http.StatusNoContent)
		case "/api/v2/write":
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(url string) config.TelemetryConfig {
	return config.TelemetryConfig{
		Enabled:       true,
		URL:           url,
		Token:         "test-token",
		Org:           "inkblue",
		Bucket:        "bluetooth",
		BatchSize:     10,
		FlushInterval: 1,
	}
}

func TestConnectDisabled(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:8086")
	cfg.Enabled = false

	_, err := telemetry.Connect(cfg)
	if !errors.Is(err, telemetry.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnectUnreachable(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")

	_, err := telemetry.Connect(cfg)
	if !errors.Is(err, telemetry.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnectAndRecord(t *testing.T) {
	srv := newFakeInflux(t)

	w, err := telemetry.Connect(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer w.Close()

	if !w.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}

	// Buffered writes must not block or panic.
	w.RecordRSSI("E4:17:D8:EC:04:1E", -61)
	w.CountEvent("connect")
	w.CountEvent("disconnect")
	w.Flush()
}

func TestHealthCheck(t *testing.T) {
	srv := newFakeInflux(t)

	w, err := telemetry.Connect(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer w.Close()

	if err := w.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() = %v, want nil", err)
	}
}

func TestRecordAfterClose(t *testing.T) {
	srv := newFakeInflux(t)

	w, err := telemetry.Connect(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// Writes after close are silently dropped.
	w.RecordRSSI("E4:17:D8:EC:04:1E", -61)
	w.CountEvent("connect")
	w.Flush()

	if w.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
	if err := w.HealthCheck(context.Background()); !errors.Is(err, telemetry.ErrNotConnected) {
		t.Errorf("HealthCheck() after Close = %v, want ErrNotConnected", err)
	}
}

func TestDefaultBatchSettings(t *testing.T) {
	srv := newFakeInflux(t)

	cfg := testConfig(srv.URL)
	cfg.BatchSize = 0
	cfg.FlushInterval = -1

	w, err := telemetry.Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer w.Close()

	if !w.IsConnected() {
		t.Error("IsConnected() = false with defaulted batch settings")
	}
}
