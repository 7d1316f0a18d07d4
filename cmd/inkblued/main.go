// inkblued is the bluetooth peripheral daemon for inkblue readers.
//
// It supervises the adapter power state, mirrors device properties from
// the system bus into an in-memory registry, attaches input devices as
// page-turn remotes arrive, and exposes a loopback control API plus an
// optional MQTT event feed for the rest of the device software.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/inkblue/inkblue-core/internal/api"
	"github.com/inkblue/inkblue-core/internal/bus"
	"github.com/inkblue/inkblue-core/internal/coordinator"
	"github.com/inkblue/inkblue-core/internal/infrastructure/config"
	"github.com/inkblue/inkblue-core/internal/infrastructure/database"
	"github.com/inkblue/inkblue-core/internal/infrastructure/logging"
	"github.com/inkblue/inkblue-core/internal/infrastructure/mqtt"
	"github.com/inkblue/inkblue-core/internal/infrastructure/telemetry"
	"github.com/inkblue/inkblue-core/internal/input"
	"github.com/inkblue/inkblue-core/internal/registry"
	"github.com/inkblue/inkblue-core/internal/sched"
	"github.com/inkblue/inkblue-core/internal/settings"
)

// Version information, set at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// defaultConfigPath is used when INKBLUE_CONFIG is not set.
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting inkblued",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Behaviour toggles
	toggles, err := settings.NewStore(db.DB)
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}
	toggles.SetLogger(log)

	// Sighting journal
	journal, err := registry.NewJournal(db.DB)
	if err != nil {
		return fmt.Errorf("opening journal: %w", err)
	}
	journal.SetLogger(log)
	defer journal.Close()

	// Bus command backend
	backend := cfg.Bluetooth.Backend
	if backend == "auto" {
		backend = ""
	}
	commander, ok := bus.DetectCommander(bus.BackendConfig{
		Backend:        backend,
		AdapterPath:    cfg.Bluetooth.AdapterPath,
		DBusSendBinary: cfg.Bluetooth.DBusSendBinary,
	}, log)
	if !ok {
		return fmt.Errorf("no usable bus command backend on this host")
	}
	log.Info("bus command backend selected", "kind", commander.Kind())

	// Cooperative scheduler and signal reactor
	loop := sched.NewLoop()
	defer loop.Stop()

	transport := bus.NewMonitorTransport(bus.MonitorConfig{
		Binary:          cfg.Bluetooth.Monitor.Binary,
		Args:            cfg.Bluetooth.Monitor.Args,
		GracefulTimeout: cfg.MonitorGracefulTimeout(),
	}, log)

	reactor := bus.NewReactor(transport, loop,
		bus.WithPollInterval(cfg.PollInterval()),
		bus.WithReactorLogger(log),
	)

	// Device registry
	devices := registry.NewRegistry(commander, cfg.Bluetooth.AdapterPath)
	devices.SetLogger(log)
	devices.SetJournal(journal)

	// Input attachment
	inputs := input.NewTrackingHandler(input.WithLogger(log))
	defer inputs.CloseAll()

	// Lifecycle event fan-out: MQTT publisher and the WebSocket hub are
	// attached as they come up.
	events := &eventFanout{}

	// MQTT broker, optional
	var broker *mqtt.Client
	if cfg.MQTT.Enabled {
		broker, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			log.Warn("MQTT broker unavailable, events disabled", "error", err)
		} else {
			defer func() {
				log.Info("disconnecting from MQTT")
				if closeErr := broker.Close(); closeErr != nil {
					log.Error("error closing MQTT", "error", closeErr)
				}
			}()
			broker.SetLogger(log)
			broker.SetOnConnect(func() { log.Info("MQTT reconnected") })
			broker.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
			events.Add(coordinator.NewStatePublisher(broker, log))
			log.Info("MQTT connected",
				"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
				"client_id", cfg.MQTT.Broker.ClientID,
			)
		}
	} else {
		log.Info("MQTT disabled")
	}

	// Telemetry, optional
	coordOpts := []coordinator.Option{
		coordinator.WithLogger(log),
		coordinator.WithEventSink(events),
	}
	if cfg.Telemetry.Enabled {
		writer, telErr := telemetry.Connect(cfg.Telemetry)
		if telErr != nil {
			log.Warn("telemetry unavailable", "error", telErr)
		} else {
			defer func() {
				log.Info("closing telemetry")
				if closeErr := writer.Close(); closeErr != nil {
					log.Error("error closing telemetry", "error", closeErr)
				}
			}()
			writer.SetOnError(func(err error) {
				log.Error("telemetry write error", "error", err)
			})
			coordOpts = append(coordOpts, coordinator.WithTelemetrySink(writer))
			log.Info("telemetry connected", "url", cfg.Telemetry.URL, "bucket", cfg.Telemetry.Bucket)
		}
	}

	// Connection coordinator
	coord := coordinator.New(coordinator.Config{
		RSSIFloor:          cfg.Bluetooth.RSSIFloor,
		ResumeRetries:      cfg.Bluetooth.ResumeRetries,
		ResumeRetryDelay:   cfg.ResumeRetryDelay(),
		PreferNameMatch:    cfg.Bluetooth.PreferNameMatch,
		AllowInputFallback: cfg.Bluetooth.AllowInputFallback,
	}, reactor, devices, commander, toggles, inputs, coordOpts...)

	// Control API
	if cfg.API.Enabled {
		server, apiErr := api.New(api.Deps{
			Config:    cfg.API,
			WS:        cfg.WebSocket,
			Logger:    log,
			Devices:   devices,
			Subsystem: coord,
			History:   journal,
			Settings:  toggles,
			Version:   version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := server.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
		events.Add(server.Hub())
		log.Info("API server listening", "host", cfg.API.Host, "port", cfg.API.Port)
	} else {
		log.Info("API disabled")
	}

	// Bring the subsystem up
	if cfg.Bluetooth.EnableOnStart {
		if !coord.Enable(ctx) {
			log.Warn("subsystem failed to start, control API remains available")
		}
	}
	defer coord.Disable(context.Background())

	// Platform suspend/resume notifications arrive as user signals from
	// the power manager.
	go watchPowerSignals(ctx, coord, log)

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	return nil
}

// loadConfig reads the config file when one exists, the built-in
// defaults otherwise. Readers ship without a config file by default.
func loadConfig() (*config.Config, error) {
	path := os.Getenv("INKBLUE_CONFIG")
	if path != "" {
		return config.Load(path)
	}
	if _, err := os.Stat(defaultConfigPath); err == nil {
		return config.Load(defaultConfigPath)
	}
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// watchPowerSignals maps SIGUSR1 to suspend and SIGUSR2 to resume.
func watchPowerSignals(ctx context.Context, coord *coordinator.Coordinator, log *logging.Logger) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(signals)

	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-signals:
			switch sig {
			case syscall.SIGUSR1:
				log.Info("suspend signal received")
				coord.Suspend(ctx)
			case syscall.SIGUSR2:
				log.Info("resume signal received")
				if !coord.Resume(ctx) {
					log.Warn("subsystem did not resume")
				}
			}
		}
	}
}

// eventFanout forwards lifecycle events to every attached sink. Sinks
// are attached during startup as optional components come up.
type eventFanout struct {
	mu    sync.RWMutex
	sinks []coordinator.EventSink
}

// Add attaches a sink. Nil sinks are ignored.
func (f *eventFanout) Add(sink coordinator.EventSink) {
	if sink == nil {
		return
	}
	f.mu.Lock()
	f.sinks = append(f.sinks, sink)
	f.mu.Unlock()
}

func (f *eventFanout) snapshot() []coordinator.EventSink {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]coordinator.EventSink(nil), f.sinks...)
}

func (f *eventFanout) SubsystemState(enabled bool) {
	for _, s := range f.snapshot() {
		s.SubsystemState(enabled)
	}
}

func (f *eventFanout) DeviceConnected(p registry.Peripheral) {
	for _, s := range f.snapshot() {
		s.DeviceConnected(p)
	}
}

func (f *eventFanout) DeviceDisconnected(p registry.Peripheral) {
	for _, s := range f.snapshot() {
		s.DeviceDisconnected(p)
	}
}
